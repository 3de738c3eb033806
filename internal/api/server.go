// Package api provides the REST API and WebSocket server for gyre.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gyrelabs/gyre/internal/config"
	"github.com/gyrelabs/gyre/internal/events"
	"github.com/gyrelabs/gyre/internal/executor"
	"github.com/gyrelabs/gyre/internal/git"
	"github.com/gyrelabs/gyre/internal/lifecycle"
	"github.com/gyrelabs/gyre/internal/loop"
	"github.com/gyrelabs/gyre/internal/review"
	"github.com/gyrelabs/gyre/internal/store"
)

// Server is the gyre API server. It exposes the lifecycle machine over
// REST, streams events over WebSocket, and owns the background goroutines
// that drive agent runs and branch synchronization.
type Server struct {
	addr    string
	workDir string // Project directory
	mux     *http.ServeMux
	logger  *slog.Logger

	// Gyre configuration
	gyreConfig *config.Config

	machine   *lifecycle.Machine
	runner    *executor.Runner
	finalizer *executor.Finalizer
	reviews   *review.Service
	store     *store.Store

	// Event publisher for real-time updates
	publisher events.Publisher
	wsHandler *WSHandler

	// Status-group cache for the dashboard listing
	groups *groupsCache

	// Running loops for cancellation
	runningLoops   map[string]context.CancelFunc
	runningLoopsMu sync.RWMutex
}

// Config holds server configuration. Machine is required; Runner and
// Finalizer are optional — without them start/resolve requests are
// accepted as state changes only and nothing drives the agent.
type Config struct {
	Addr    string
	WorkDir string // Project directory (defaults to ".")
	Logger  *slog.Logger

	Machine   *lifecycle.Machine
	Runner    *executor.Runner
	Finalizer *executor.Finalizer
	Reviews   *review.Service
	Store     *store.Store
	Publisher events.Publisher
	Gyre      *config.Config
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:    ":8080",
		WorkDir: ".",
		Logger:  slog.Default(),
	}
}

// New creates a new API server. Dependencies missing from cfg are built
// from the work directory so the server is usable standalone.
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = "."
	}

	gyreCfg := cfg.Gyre
	if gyreCfg == nil {
		loaded, err := config.LoadFrom(filepath.Join(workDir, config.GyreDir, config.ConfigFileName))
		if err != nil {
			logger.Warn("failed to load gyre config, using defaults", "error", err)
			loaded = config.Default()
		}
		gyreCfg = loaded
	}

	pub := cfg.Publisher
	if pub == nil {
		pub = events.NewMemoryPublisher()
	}

	machine := cfg.Machine
	if machine == nil {
		var workspace lifecycle.WorkingCopy
		if repo, err := git.New(workDir, git.WithIgnoreGlobs(gyreCfg.IgnoreGlobs)); err == nil {
			workspace = repo
		}
		machine = lifecycle.New(workDir, cfg.Store, pub, workspace, &lifecycle.Options{
			MaxConsecutiveErrors: gyreCfg.MaxConsecutiveErrors,
			MaxIterations:        gyreCfg.MaxIterations,
			BranchPrefix:         gyreCfg.BranchPrefix,
		}, logger)
	}

	s := &Server{
		addr:         cfg.Addr,
		workDir:      workDir,
		mux:          http.NewServeMux(),
		logger:       logger,
		gyreConfig:   gyreCfg,
		machine:      machine,
		runner:       cfg.Runner,
		finalizer:    cfg.Finalizer,
		reviews:      cfg.Reviews,
		store:        cfg.Store,
		publisher:    pub,
		runningLoops: make(map[string]context.CancelFunc),
	}

	s.groups = newGroupsCache(machine, 2*time.Second)
	s.wsHandler = NewWSHandler(pub, s, logger)

	s.registerRoutes()
	return s
}

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	// CORS middleware wrapper
	cors := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			h(w, r)
		}
	}

	// Health check
	s.mux.HandleFunc("GET /api/health", cors(s.handleHealth))

	// Loops
	s.mux.HandleFunc("GET /api/loops", cors(s.handleListLoops))
	s.mux.HandleFunc("POST /api/loops", cors(s.handleCreateLoop))
	s.mux.HandleFunc("GET /api/loops/{id}", cors(s.handleGetLoop))
	s.mux.HandleFunc("PATCH /api/loops/{id}", cors(s.handleUpdateLoop))
	s.mux.HandleFunc("DELETE /api/loops/{id}", cors(s.handleDeleteLoop))
	s.mux.HandleFunc("POST /api/loops/{id}/purge", cors(s.handlePurgeLoop))

	// Status groups (dashboard listing)
	s.mux.HandleFunc("GET /api/groups", cors(s.handleGetGroups))

	// Run control
	s.mux.HandleFunc("POST /api/loops/{id}/start", cors(s.handleStartLoop))
	s.mux.HandleFunc("POST /api/loops/{id}/stop", cors(s.handleStopLoop))

	// One-shot pending overrides
	s.mux.HandleFunc("POST /api/loops/{id}/pending", cors(s.handleSetPending))
	s.mux.HandleFunc("DELETE /api/loops/{id}/pending", cors(s.handleClearPending))

	// Plan gate
	s.mux.HandleFunc("GET /api/loops/{id}/plan", cors(s.handleGetPlan))
	s.mux.HandleFunc("POST /api/loops/{id}/plan/feedback", cors(s.handlePlanFeedback))
	s.mux.HandleFunc("POST /api/loops/{id}/plan/accept", cors(s.handleAcceptPlan))
	s.mux.HandleFunc("POST /api/loops/{id}/plan/discard", cors(s.handleDiscardPlan))

	// Finalization (branch sync)
	s.mux.HandleFunc("POST /api/loops/{id}/accept", cors(s.handleAcceptLoop))
	s.mux.HandleFunc("POST /api/loops/{id}/push", cors(s.handlePushLoop))
	s.mux.HandleFunc("POST /api/loops/{id}/update-branch", cors(s.handleUpdateBranch))
	s.mux.HandleFunc("POST /api/loops/{id}/merged", cors(s.handleMarkMerged))
	s.mux.HandleFunc("POST /api/loops/{id}/resolve", cors(s.handleResolveConflicts))

	// Review comments
	s.mux.HandleFunc("GET /api/loops/{id}/comments", cors(s.handleListComments))
	s.mux.HandleFunc("POST /api/loops/{id}/comments", cors(s.handleAddressComments))
	s.mux.HandleFunc("GET /api/loops/{id}/comments/stats", cors(s.handleCommentStats))

	// Event history
	s.mux.HandleFunc("GET /api/loops/{id}/events", cors(s.handleListEvents))

	// WebSocket endpoint for real-time updates
	s.mux.HandleFunc("GET /ws", s.wsHandler.ServeHTTP)
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.mux)
}

// StartContext starts the API server with context for graceful shutdown.
func (s *Server) StartContext(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", s.addr)
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Handler returns the server's HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Publisher returns the event publisher for external use.
func (s *Server) Publisher() events.Publisher {
	return s.publisher
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, map[string]string{"status": "ok"})
}

// startRun launches the iteration loop for a loop in the background. A
// second start for the same ID while the first is still running is a no-op.
func (s *Server) startRun(id string) {
	if s.runner == nil {
		s.logger.Warn("no runner configured, loop will not execute", "loop", id)
		return
	}

	s.runningLoopsMu.Lock()
	if _, exists := s.runningLoops[id]; exists {
		s.runningLoopsMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.runningLoops[id] = cancel
	s.runningLoopsMu.Unlock()

	go func() {
		defer func() {
			s.runningLoopsMu.Lock()
			delete(s.runningLoops, id)
			s.runningLoopsMu.Unlock()
			s.groups.Invalidate()
		}()

		res, err := s.runner.Run(ctx, id)
		if err != nil {
			s.logger.Error("loop run failed", "loop", id, "error", err)
			return
		}
		s.logger.Info("loop run finished",
			"loop", id, "status", res.Status, "iterations", res.Iterations)
	}()
}

// startPlanRun launches the planning turn for a loop in the background.
func (s *Server) startPlanRun(id string) {
	if s.runner == nil {
		s.logger.Warn("no runner configured, plan will not generate", "loop", id)
		return
	}

	s.runningLoopsMu.Lock()
	if _, exists := s.runningLoops[id]; exists {
		s.runningLoopsMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.runningLoops[id] = cancel
	s.runningLoopsMu.Unlock()

	go func() {
		defer func() {
			s.runningLoopsMu.Lock()
			delete(s.runningLoops, id)
			s.runningLoopsMu.Unlock()
			s.groups.Invalidate()
		}()

		if _, err := s.runner.RunPlan(ctx, id); err != nil {
			s.logger.Error("plan generation failed", "loop", id, "error", err)
		}
	}()
}

// startFinalize drives the branch-sync engine in the background.
func (s *Server) startFinalize(id string) {
	if s.finalizer == nil {
		return
	}
	go func() {
		defer s.groups.Invalidate()
		if _, err := s.finalizer.Finalize(context.Background(), id); err != nil {
			s.logger.Error("finalize failed", "loop", id, "error", err)
		}
	}()
}

// cancelRun cancels the background run for a loop, if one is active.
func (s *Server) cancelRun(id string) {
	s.runningLoopsMu.RLock()
	cancel, exists := s.runningLoops[id]
	s.runningLoopsMu.RUnlock()
	if exists {
		cancel()
	}
}

// RunningLoops reports the IDs with an active background run.
func (s *Server) RunningLoops() []string {
	s.runningLoopsMu.RLock()
	defer s.runningLoopsMu.RUnlock()
	ids := make([]string, 0, len(s.runningLoops))
	for id := range s.runningLoops {
		ids = append(ids, id)
	}
	return ids
}

// stopLoopCommand stops a loop (called by the WebSocket handler).
func (s *Server) stopLoopCommand(id string) (map[string]any, error) {
	current, err := s.machine.Get(id)
	if err != nil {
		return nil, err
	}

	var l *loop.Loop
	if current.Status == loop.StatusResolvingConflicts && s.finalizer != nil {
		l, err = s.finalizer.Abort(id)
	} else {
		l, err = s.machine.Stop(id)
	}
	if err != nil {
		return nil, err
	}

	s.cancelRun(id)
	s.groups.Invalidate()
	return map[string]any{"loop_id": id, "status": string(l.Status)}, nil
}

// startLoopCommand starts a loop's run (called by the WebSocket handler).
func (s *Server) startLoopCommand(id string) (map[string]any, error) {
	l, err := s.machine.Start(id, lifecycle.StartOptions{})
	if err != nil {
		return nil, err
	}

	if l.Status == loop.StatusPlanning {
		s.startPlanRun(id)
	} else {
		s.startRun(id)
	}

	s.groups.Invalidate()
	return map[string]any{"loop_id": id, "status": string(l.Status)}, nil
}
