// Package cli implements the gyre command-line interface.
// This file wires the shared dependency graph behind every command.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gyrelabs/gyre/internal/config"
	"github.com/gyrelabs/gyre/internal/events"
	"github.com/gyrelabs/gyre/internal/executor"
	"github.com/gyrelabs/gyre/internal/git"
	"github.com/gyrelabs/gyre/internal/hosting"
	"github.com/gyrelabs/gyre/internal/lifecycle"
	"github.com/gyrelabs/gyre/internal/review"
	"github.com/gyrelabs/gyre/internal/store"
	"github.com/gyrelabs/gyre/internal/store/driver"

	// Hosted-provider drivers register themselves on import.
	_ "github.com/gyrelabs/gyre/internal/hosting/github"
	_ "github.com/gyrelabs/gyre/internal/hosting/gitlab"
)

// services bundles the dependencies shared by most commands: the layered
// config, the mirror store, the git working copy, and the lifecycle
// machine built on top of them. Always Close() what openServices returns.
type services struct {
	cfg       *config.Config
	store     *store.Store
	repo      *git.Git // nil outside a git repository
	machine   *lifecycle.Machine
	publisher events.Publisher
	logger    *slog.Logger
}

// openServices builds the shared dependency graph for the current project.
// pub may be nil for commands that do not stream progress.
func openServices(pub events.Publisher) (*services, error) {
	if err := config.RequireInit(); err != nil {
		return nil, err
	}

	tc, err := config.LoadWithSources()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := tc.Config

	logger := cliLogger()

	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	s := &services{
		cfg:       cfg,
		store:     st,
		publisher: pub,
		logger:    logger,
	}

	opts := &lifecycle.Options{
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
		MaxIterations:        cfg.MaxIterations,
		BranchPrefix:         cfg.BranchPrefix,
	}

	var workspace lifecycle.WorkingCopy
	if repo, err := git.New(".", git.WithIgnoreGlobs(cfg.IgnoreGlobs)); err == nil {
		s.repo = repo
		workspace = repo
	} else {
		logger.Debug("not a git repository, dirty-tree guard disabled", "error", err)
	}

	s.machine = lifecycle.New(".", st, pub, workspace, opts, logger)
	return s, nil
}

// Close releases the store connection.
func (s *services) Close() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

// openStore opens the mirror database named by the config.
func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Database.Driver == "postgres" {
		st, err := store.OpenWithDialect(cfg.Database.Postgres.DSN(), driver.DialectPostgres)
		if err != nil {
			return nil, fmt.Errorf("open postgres mirror: %w", err)
		}
		if err := st.Migrate(); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate mirror: %w", err)
		}
		return st, nil
	}
	return store.Open(cfg.Database.SQLite.Path)
}

// agent builds the subprocess agent from the config.
func (s *services) agent() executor.Agent {
	return executor.NewSubprocessAgent(
		executor.WithAgentCommand(s.cfg.Agent.Command),
		executor.WithAgentArgs(s.cfg.Agent.Args),
		executor.WithAgentSkipPermissions(s.cfg.Agent.SkipPermissions),
		executor.WithAgentLogger(s.logger),
	)
}

// newRunner builds the iteration runner for in-process execution.
func (s *services) newRunner() *executor.Runner {
	opts := []executor.RunnerOption{
		executor.WithRunnerLogger(s.logger),
		executor.WithCompletionPromise(s.cfg.CompletionPromise),
		executor.WithActivityTimeout(s.cfg.ActivityTimeout),
		executor.WithCommitPrefix(s.cfg.CommitPrefix),
		executor.WithDefaultModel(s.cfg.Model),
	}
	if s.publisher != nil {
		opts = append(opts, executor.WithRunnerEvents(s.publisher))
	}
	if s.repo != nil {
		opts = append(opts, executor.WithRunnerRepo(s.repo))
	}
	return executor.NewRunner(s.machine, s.agent(), opts...)
}

// newFinalizer builds the sync engine. Errors when the project is not a
// git repository, since every finalization drives git.
func (s *services) newFinalizer() (*executor.Finalizer, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("not a git repository")
	}
	opts := []executor.FinalizerOption{
		executor.WithFinalizerLogger(s.logger),
		executor.WithFinalizerCommitPrefix(s.cfg.CommitPrefix),
		executor.WithFinalizerAgent(s.agent()),
	}
	if provider := s.hostingProvider(); provider != nil {
		opts = append(opts, executor.WithFinalizerProvider(provider))
	}
	return executor.NewFinalizer(s.machine, s.repo, opts...), nil
}

// newReviews builds the review-comment query service.
func (s *services) newReviews() *review.Service {
	return review.NewService(s.store, s.logger)
}

// hostingProvider resolves the configured hosted-git provider from the
// origin remote. Returns nil when hosting is disabled or unresolvable;
// finalization then skips PR creation.
func (s *services) hostingProvider() hosting.Provider {
	if s.cfg.Hosting.Provider == "none" || s.repo == nil {
		return nil
	}
	remote, err := s.repo.RemoteURL("origin")
	if err != nil {
		s.logger.Debug("no origin remote, hosting disabled", "error", err)
		return nil
	}
	p, err := hosting.NewProvider(remote, hosting.Config{
		Provider:    s.cfg.Hosting.Provider,
		BaseURL:     s.cfg.Hosting.BaseURL,
		TokenEnvVar: s.cfg.Hosting.TokenEnvVar,
	})
	if err != nil {
		s.logger.Debug("hosting provider unavailable", "error", err)
		return nil
	}
	return p
}

// cliLogger returns the logger for command execution. Defaults to warnings
// only so command output stays clean; --verbose lowers it to debug.
func cliLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
