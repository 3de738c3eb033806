// Package config provides configuration management for gyre.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default config file name
	ConfigFileName = "config.yaml"
	// GyreDir is the gyre state directory
	GyreDir = ".gyre"
)

// AgentConfig describes how to invoke the coding agent.
type AgentConfig struct {
	// Command is the agent binary (default: "claude")
	Command string `yaml:"command"`

	// Args are extra arguments appended to every invocation
	Args []string `yaml:"args,omitempty"`

	// SkipPermissions passes the agent's permission-bypass flag (default: true)
	SkipPermissions bool `yaml:"skip_permissions"`
}

// HostingConfig controls the hosted-provider integration (PRs, remote branches).
type HostingConfig struct {
	// Provider is "github", "gitlab", or "auto" to detect from the origin URL
	Provider string `yaml:"provider"`

	// BaseURL for self-hosted instances; empty for github.com / gitlab.com
	BaseURL string `yaml:"base_url,omitempty"`

	// TokenEnvVar overrides the token environment variable
	// (default GITHUB_TOKEN / GITLAB_TOKEN)
	TokenEnvVar string `yaml:"token_env_var,omitempty"`

	// CreatePR opens a pull/merge request after a pushed finalization (default: true)
	CreatePR bool `yaml:"create_pr"`

	// DraftPR opens the PR as a draft (default: false)
	DraftPR bool `yaml:"draft_pr"`

	// DeleteBranchOnMerge deletes the remote working branch on markMerged (default: true)
	DeleteBranchOnMerge bool `yaml:"delete_branch_on_merge"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	// Host is the server bind address (default: "127.0.0.1")
	Host string `yaml:"host"`

	// Port is the server port (default: 8080)
	Port int `yaml:"port"`
}

// Addr returns the host:port bind address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SQLiteConfig holds SQLite driver settings.
type SQLiteConfig struct {
	// Path is the database file, relative to the repo root (default: ".gyre/gyre.db")
	Path string `yaml:"path"`
}

// PostgresConfig holds PostgreSQL driver settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"` // Use env GYRE_DB_PASSWORD
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN returns a connection string for the pgx stdlib driver.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		p.Host, p.Port, p.Database, p.User, p.Password, p.SSLMode)
}

// DatabaseConfig selects and configures the mirror database.
type DatabaseConfig struct {
	// Driver is the database type: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// Config represents the gyre configuration.
type Config struct {
	// Version is the config file version
	Version int `yaml:"version"`

	// Agent invocation settings
	Agent AgentConfig `yaml:"agent"`

	// Model settings
	Model         string `yaml:"model"`
	FallbackModel string `yaml:"fallback_model,omitempty"`

	// Execution settings
	MaxIterations        int           `yaml:"max_iterations"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors"`
	ActivityTimeout      time.Duration `yaml:"activity_timeout"`
	CompletionPromise    string        `yaml:"completion_promise"`

	// Git settings
	BaseBranch   string   `yaml:"base_branch"`
	BranchPrefix string   `yaml:"branch_prefix"`
	CommitPrefix string   `yaml:"commit_prefix"`
	IgnoreGlobs  []string `yaml:"ignore_globs,omitempty"`

	// Hosted-provider settings
	Hosting HostingConfig `yaml:"hosting"`

	// Server settings
	Server ServerConfig `yaml:"server"`

	// Database settings
	Database DatabaseConfig `yaml:"database"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Agent: AgentConfig{
			Command:         "claude",
			SkipPermissions: true,
		},
		Model:                "claude-opus-4-5-20251101",
		MaxIterations:        30,
		MaxConsecutiveErrors: 10,
		ActivityTimeout:      5 * time.Minute,
		CompletionPromise:    "LOOP_COMPLETE",
		BaseBranch:           "main",
		BranchPrefix:         "gyre/",
		CommitPrefix:         "[gyre]",
		Hosting: HostingConfig{
			Provider:            "auto",
			CreatePR:            true,
			DeleteBranchOnMerge: true,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path: filepath.Join(GyreDir, "gyre.db"),
			},
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				SSLMode: "disable",
			},
		},
	}
}

// Load loads the config from the default location.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(GyreDir, ConfigFileName))
}

// LoadFrom loads the config from a specific path.
// Returns defaults if the file does not exist.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to the default location.
func (c *Config) Save() error {
	return c.SaveTo(filepath.Join(GyreDir, ConfigFileName))
}

// SaveTo writes the config to a specific path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be >= 0, got %d", c.MaxIterations)
	}
	if c.MaxConsecutiveErrors < 1 {
		return fmt.Errorf("max_consecutive_errors must be >= 1, got %d", c.MaxConsecutiveErrors)
	}
	if c.ActivityTimeout < 0 {
		return fmt.Errorf("activity_timeout must be >= 0, got %s", c.ActivityTimeout)
	}
	if c.CompletionPromise == "" {
		return fmt.Errorf("completion_promise must not be empty")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	return nil
}

// IsInitialized reports whether the current directory is a gyre project.
func IsInitialized() bool {
	_, err := os.Stat(GyreDir)
	return err == nil
}

// RequireInit returns an error if the current directory is not a gyre project.
func RequireInit() error {
	if !IsInitialized() {
		return fmt.Errorf("not a gyre project (no %s directory). Run 'gyre init' first", GyreDir)
	}
	return nil
}
