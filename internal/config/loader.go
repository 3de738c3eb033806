package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadWithSources loads configuration with source tracking.
// Load order (later sources override earlier):
//  1. Built-in defaults
//  2. System config (/etc/gyre/config.yaml) - optional
//  3. User config (~/.gyre/config.yaml) - optional
//  4. Project config (.gyre/config.yaml)
//  5. Environment variables (GYRE_*)
func LoadWithSources() (*TrackedConfig, error) {
	return LoadWithSourcesFrom(".")
}

// LoadWithSourcesFrom loads layered configuration treating dir as the repo root.
func LoadWithSourcesFrom(dir string) (*TrackedConfig, error) {
	tc := NewTrackedConfig()

	// Mark all defaults with SourceDefault
	markDefaults(tc)

	// 2. System config (/etc/gyre/config.yaml)
	systemPath := "/etc/gyre/config.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		if err := mergeFromFile(tc, systemPath, SourceSystem); err != nil {
			slog.Warn("failed to load system config", "path", systemPath, "error", err)
		}
	}

	// 3. User config (~/.gyre/config.yaml)
	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, GyreDir, ConfigFileName)
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(tc, userPath, SourceUser); err != nil {
				slog.Warn("failed to load user config", "path", userPath, "error", err)
			}
		}
	}

	// 4. Project config (.gyre/config.yaml)
	projectPath := filepath.Join(dir, GyreDir, ConfigFileName)
	if _, err := os.Stat(projectPath); err == nil {
		if err := mergeFromFile(tc, projectPath, SourceProject); err != nil {
			return nil, err // Project config errors are fatal
		}
	}

	// 5. Environment variables
	ApplyEnvVars(tc)

	return tc, nil
}

// markDefaults records SourceDefault for every known config path.
func markDefaults(tc *TrackedConfig) {
	for _, path := range knownPaths {
		tc.SetSource(path, SourceDefault)
	}
}

// knownPaths lists every trackable config path.
var knownPaths = []string{
	"version",
	"agent.command",
	"agent.args",
	"agent.skip_permissions",
	"model",
	"fallback_model",
	"max_iterations",
	"max_consecutive_errors",
	"activity_timeout",
	"completion_promise",
	"base_branch",
	"branch_prefix",
	"commit_prefix",
	"ignore_globs",
	"hosting.provider",
	"hosting.base_url",
	"hosting.token_env_var",
	"hosting.create_pr",
	"hosting.draft_pr",
	"hosting.delete_branch_on_merge",
	"server.host",
	"server.port",
	"database.driver",
	"database.sqlite.path",
	"database.postgres.host",
	"database.postgres.port",
	"database.postgres.database",
	"database.postgres.user",
	"database.postgres.password",
	"database.postgres.ssl_mode",
}

// mergeFromFile merges configuration from a file into tc.
func mergeFromFile(tc *TrackedConfig, path string, source ConfigSource) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	// Parse YAML into a map to track which fields are set
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	// Parse into Config
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	mergeConfig(tc, &fileCfg, raw, source, path)

	return nil
}

// mergeConfig merges fileCfg into tc.Config, tracking sources.
// Only keys present in raw are merged, so zero values in lower layers
// do not clobber higher-priority settings.
func mergeConfig(tc *TrackedConfig, fileCfg *Config, raw map[string]interface{}, source ConfigSource, filePath string) {
	cfg := tc.Config

	set := func(path string) {
		tc.SetSourceWithPath(path, source, filePath)
	}

	// Top-level fields
	if _, ok := raw["version"]; ok {
		cfg.Version = fileCfg.Version
		set("version")
	}
	if _, ok := raw["model"]; ok {
		cfg.Model = fileCfg.Model
		set("model")
	}
	if _, ok := raw["fallback_model"]; ok {
		cfg.FallbackModel = fileCfg.FallbackModel
		set("fallback_model")
	}
	if _, ok := raw["max_iterations"]; ok {
		cfg.MaxIterations = fileCfg.MaxIterations
		set("max_iterations")
	}
	if _, ok := raw["max_consecutive_errors"]; ok {
		cfg.MaxConsecutiveErrors = fileCfg.MaxConsecutiveErrors
		set("max_consecutive_errors")
	}
	if _, ok := raw["activity_timeout"]; ok {
		cfg.ActivityTimeout = fileCfg.ActivityTimeout
		set("activity_timeout")
	}
	if _, ok := raw["completion_promise"]; ok {
		cfg.CompletionPromise = fileCfg.CompletionPromise
		set("completion_promise")
	}
	if _, ok := raw["base_branch"]; ok {
		cfg.BaseBranch = fileCfg.BaseBranch
		set("base_branch")
	}
	if _, ok := raw["branch_prefix"]; ok {
		cfg.BranchPrefix = fileCfg.BranchPrefix
		set("branch_prefix")
	}
	if _, ok := raw["commit_prefix"]; ok {
		cfg.CommitPrefix = fileCfg.CommitPrefix
		set("commit_prefix")
	}
	if _, ok := raw["ignore_globs"]; ok {
		cfg.IgnoreGlobs = fileCfg.IgnoreGlobs
		set("ignore_globs")
	}

	// Agent section
	if rawAgent, ok := raw["agent"].(map[string]interface{}); ok {
		if _, ok := rawAgent["command"]; ok {
			cfg.Agent.Command = fileCfg.Agent.Command
			set("agent.command")
		}
		if _, ok := rawAgent["args"]; ok {
			cfg.Agent.Args = fileCfg.Agent.Args
			set("agent.args")
		}
		if _, ok := rawAgent["skip_permissions"]; ok {
			cfg.Agent.SkipPermissions = fileCfg.Agent.SkipPermissions
			set("agent.skip_permissions")
		}
	}

	// Hosting section
	if rawHosting, ok := raw["hosting"].(map[string]interface{}); ok {
		if _, ok := rawHosting["provider"]; ok {
			cfg.Hosting.Provider = fileCfg.Hosting.Provider
			set("hosting.provider")
		}
		if _, ok := rawHosting["base_url"]; ok {
			cfg.Hosting.BaseURL = fileCfg.Hosting.BaseURL
			set("hosting.base_url")
		}
		if _, ok := rawHosting["token_env_var"]; ok {
			cfg.Hosting.TokenEnvVar = fileCfg.Hosting.TokenEnvVar
			set("hosting.token_env_var")
		}
		if _, ok := rawHosting["create_pr"]; ok {
			cfg.Hosting.CreatePR = fileCfg.Hosting.CreatePR
			set("hosting.create_pr")
		}
		if _, ok := rawHosting["draft_pr"]; ok {
			cfg.Hosting.DraftPR = fileCfg.Hosting.DraftPR
			set("hosting.draft_pr")
		}
		if _, ok := rawHosting["delete_branch_on_merge"]; ok {
			cfg.Hosting.DeleteBranchOnMerge = fileCfg.Hosting.DeleteBranchOnMerge
			set("hosting.delete_branch_on_merge")
		}
	}

	// Server section
	if rawServer, ok := raw["server"].(map[string]interface{}); ok {
		if _, ok := rawServer["host"]; ok {
			cfg.Server.Host = fileCfg.Server.Host
			set("server.host")
		}
		if _, ok := rawServer["port"]; ok {
			cfg.Server.Port = fileCfg.Server.Port
			set("server.port")
		}
	}

	// Database section
	if rawDB, ok := raw["database"].(map[string]interface{}); ok {
		if _, ok := rawDB["driver"]; ok {
			cfg.Database.Driver = fileCfg.Database.Driver
			set("database.driver")
		}
		if rawSQLite, ok := rawDB["sqlite"].(map[string]interface{}); ok {
			if _, ok := rawSQLite["path"]; ok {
				cfg.Database.SQLite.Path = fileCfg.Database.SQLite.Path
				set("database.sqlite.path")
			}
		}
		if rawPG, ok := rawDB["postgres"].(map[string]interface{}); ok {
			if _, ok := rawPG["host"]; ok {
				cfg.Database.Postgres.Host = fileCfg.Database.Postgres.Host
				set("database.postgres.host")
			}
			if _, ok := rawPG["port"]; ok {
				cfg.Database.Postgres.Port = fileCfg.Database.Postgres.Port
				set("database.postgres.port")
			}
			if _, ok := rawPG["database"]; ok {
				cfg.Database.Postgres.Database = fileCfg.Database.Postgres.Database
				set("database.postgres.database")
			}
			if _, ok := rawPG["user"]; ok {
				cfg.Database.Postgres.User = fileCfg.Database.Postgres.User
				set("database.postgres.user")
			}
			if _, ok := rawPG["password"]; ok {
				cfg.Database.Postgres.Password = fileCfg.Database.Postgres.Password
				set("database.postgres.password")
			}
			if _, ok := rawPG["ssl_mode"]; ok {
				cfg.Database.Postgres.SSLMode = fileCfg.Database.Postgres.SSLMode
				set("database.postgres.ssl_mode")
			}
		}
	}
}
