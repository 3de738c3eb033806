package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvVarMapping defines the mapping between environment variables and config paths.
var EnvVarMapping = map[string]string{
	"GYRE_MODEL":                  "model",
	"GYRE_FALLBACK_MODEL":         "fallback_model",
	"GYRE_MAX_ITERATIONS":         "max_iterations",
	"GYRE_MAX_CONSECUTIVE_ERRORS": "max_consecutive_errors",
	"GYRE_ACTIVITY_TIMEOUT":       "activity_timeout",
	"GYRE_COMPLETION_PROMISE":     "completion_promise",
	"GYRE_AGENT_COMMAND":          "agent.command",
	"GYRE_AGENT_SKIP_PERMISSIONS": "agent.skip_permissions",
	"GYRE_BASE_BRANCH":            "base_branch",
	"GYRE_BRANCH_PREFIX":          "branch_prefix",
	"GYRE_COMMIT_PREFIX":          "commit_prefix",
	"GYRE_HOSTING_PROVIDER":       "hosting.provider",
	"GYRE_HOSTING_BASE_URL":       "hosting.base_url",
	"GYRE_CREATE_PR":              "hosting.create_pr",
	"GYRE_DRAFT_PR":               "hosting.draft_pr",
	"GYRE_DELETE_BRANCH_ON_MERGE": "hosting.delete_branch_on_merge",
	"GYRE_HOST":                   "server.host",
	"GYRE_PORT":                   "server.port",
	"GYRE_DB_DRIVER":              "database.driver",
	"GYRE_DB_PATH":                "database.sqlite.path",
	"GYRE_DB_HOST":                "database.postgres.host",
	"GYRE_DB_PORT":                "database.postgres.port",
	"GYRE_DB_NAME":                "database.postgres.database",
	"GYRE_DB_USER":                "database.postgres.user",
	"GYRE_DB_PASSWORD":            "database.postgres.password",
	"GYRE_DB_SSL_MODE":            "database.postgres.ssl_mode",
}

// ApplyEnvVars applies environment variable overrides to a TrackedConfig.
// Returns a list of paths that were overridden.
func ApplyEnvVars(tc *TrackedConfig) []string {
	var overridden []string

	for envVar, configPath := range EnvVarMapping {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}

		if applyEnvVar(tc.Config, configPath, value) {
			tc.SetSource(configPath, SourceEnv)
			overridden = append(overridden, configPath)
		}
	}

	return overridden
}

// applyEnvVar applies a single environment variable to the config.
// Returns true if the value was applied.
func applyEnvVar(cfg *Config, path string, value string) bool {
	switch path {
	case "model":
		cfg.Model = value
	case "fallback_model":
		cfg.FallbackModel = value
	case "max_iterations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		cfg.MaxIterations = n
	case "max_consecutive_errors":
		n, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		cfg.MaxConsecutiveErrors = n
	case "activity_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return false
		}
		cfg.ActivityTimeout = d
	case "completion_promise":
		cfg.CompletionPromise = value
	case "agent.command":
		cfg.Agent.Command = value
	case "agent.skip_permissions":
		cfg.Agent.SkipPermissions = parseBool(value)
	case "base_branch":
		cfg.BaseBranch = value
	case "branch_prefix":
		cfg.BranchPrefix = value
	case "commit_prefix":
		cfg.CommitPrefix = value
	case "hosting.provider":
		cfg.Hosting.Provider = value
	case "hosting.base_url":
		cfg.Hosting.BaseURL = value
	case "hosting.create_pr":
		cfg.Hosting.CreatePR = parseBool(value)
	case "hosting.draft_pr":
		cfg.Hosting.DraftPR = parseBool(value)
	case "hosting.delete_branch_on_merge":
		cfg.Hosting.DeleteBranchOnMerge = parseBool(value)
	case "server.host":
		cfg.Server.Host = value
	case "server.port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		cfg.Server.Port = n
	case "database.driver":
		cfg.Database.Driver = value
	case "database.sqlite.path":
		cfg.Database.SQLite.Path = value
	case "database.postgres.host":
		cfg.Database.Postgres.Host = value
	case "database.postgres.port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		cfg.Database.Postgres.Port = n
	case "database.postgres.database":
		cfg.Database.Postgres.Database = value
	case "database.postgres.user":
		cfg.Database.Postgres.User = value
	case "database.postgres.password":
		cfg.Database.Postgres.Password = value
	case "database.postgres.ssl_mode":
		cfg.Database.Postgres.SSLMode = value
	default:
		return false
	}
	return true
}

func parseBool(value string) bool {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
