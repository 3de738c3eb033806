package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Agent.Command != "claude" {
		t.Errorf("Agent.Command = %q, want claude", cfg.Agent.Command)
	}
	if !cfg.Agent.SkipPermissions {
		t.Error("Agent.SkipPermissions = false, want true")
	}
	if cfg.MaxIterations != 30 {
		t.Errorf("MaxIterations = %d, want 30", cfg.MaxIterations)
	}
	if cfg.MaxConsecutiveErrors != 10 {
		t.Errorf("MaxConsecutiveErrors = %d, want 10", cfg.MaxConsecutiveErrors)
	}
	if cfg.ActivityTimeout != 5*time.Minute {
		t.Errorf("ActivityTimeout = %s, want 5m", cfg.ActivityTimeout)
	}
	if cfg.CompletionPromise != "LOOP_COMPLETE" {
		t.Errorf("CompletionPromise = %q, want LOOP_COMPLETE", cfg.CompletionPromise)
	}
	if cfg.BranchPrefix != "gyre/" {
		t.Errorf("BranchPrefix = %q, want gyre/", cfg.BranchPrefix)
	}
	if cfg.BaseBranch != "main" {
		t.Errorf("BaseBranch = %q, want main", cfg.BaseBranch)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, ".gyre", "config.yaml")

	cfg := Default()
	cfg.Model = "claude-sonnet-4-5"
	cfg.MaxIterations = 50
	cfg.CompletionPromise = "ALL_DONE"
	cfg.Server.Port = 9090

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if loaded.Model != "claude-sonnet-4-5" {
		t.Errorf("Model = %q, want claude-sonnet-4-5", loaded.Model)
	}
	if loaded.MaxIterations != 50 {
		t.Errorf("MaxIterations = %d, want 50", loaded.MaxIterations)
	}
	if loaded.CompletionPromise != "ALL_DONE" {
		t.Errorf("CompletionPromise = %q, want ALL_DONE", loaded.CompletionPromise)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", loaded.Server.Port)
	}
}

func TestLoadFrom_Missing(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope", "config.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom missing file should return defaults, got error: %v", err)
	}
	if cfg.MaxIterations != 30 {
		t.Errorf("MaxIterations = %d, want default 30", cfg.MaxIterations)
	}
}

func TestLoadFrom_PartialFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	partial := "model: custom-model\nmax_iterations: 5\n"
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}

	if cfg.Model != "custom-model" {
		t.Errorf("Model = %q, want custom-model", cfg.Model)
	}
	if cfg.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", cfg.MaxIterations)
	}
	// Unset fields keep defaults
	if cfg.CompletionPromise != "LOOP_COMPLETE" {
		t.Errorf("CompletionPromise = %q, want default", cfg.CompletionPromise)
	}
	if cfg.BranchPrefix != "gyre/" {
		t.Errorf("BranchPrefix = %q, want default", cfg.BranchPrefix)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"unbounded iterations", func(c *Config) { c.MaxIterations = 0 }, false},
		{"negative iterations", func(c *Config) { c.MaxIterations = -1 }, true},
		{"zero error threshold", func(c *Config) { c.MaxConsecutiveErrors = 0 }, true},
		{"empty promise", func(c *Config) { c.CompletionPromise = "" }, true},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"postgres driver", func(c *Config) { c.Database.Driver = "postgres" }, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	pg := PostgresConfig{
		Host:     "db.example.com",
		Port:     5433,
		Database: "gyre",
		User:     "gyre",
		Password: "secret",
		SSLMode:  "require",
	}
	want := "host=db.example.com port=5433 dbname=gyre user=gyre password=secret sslmode=require"
	if got := pg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
