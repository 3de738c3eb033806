package executor

import (
	"context"
	"sync"
	"time"
)

// ActivityState is the coarse liveness of the current agent turn.
type ActivityState int

const (
	// ActivityIdle means no turn is in flight.
	ActivityIdle ActivityState = iota

	// ActivityWaiting means a turn started but no output has arrived.
	ActivityWaiting

	// ActivityStreaming means output is flowing.
	ActivityStreaming
)

func (s ActivityState) String() string {
	switch s {
	case ActivityIdle:
		return "idle"
	case ActivityWaiting:
		return "waiting"
	case ActivityStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

const (
	// DefaultHeartbeatInterval is how often a live turn emits heartbeats.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultStallTimeout is how long a turn may go without output before
	// the stall callback fires.
	DefaultStallTimeout = 5 * time.Minute
)

// ActivityTracker watches one loop's agent turns for liveness. It emits
// periodic heartbeats while a turn is in flight and fires the stall
// callback when no output arrives within the timeout, letting the caller
// cancel the turn.
//
// Thread-safe: recording methods may be called from the stream goroutine
// while the monitor runs.
type ActivityTracker struct {
	mu           sync.RWMutex
	state        ActivityState
	lastActivity time.Time
	turnStart    time.Time
	chunks       int
	iteration    int

	onHeartbeat func(iteration int)
	onStall     func(idle time.Duration)

	heartbeatInterval time.Duration
	stallTimeout      time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ActivityTrackerOption configures an ActivityTracker.
type ActivityTrackerOption func(*ActivityTracker)

// WithHeartbeatInterval sets the heartbeat cadence.
func WithHeartbeatInterval(d time.Duration) ActivityTrackerOption {
	return func(t *ActivityTracker) { t.heartbeatInterval = d }
}

// WithStallTimeout sets the no-output window. Zero disables stall
// detection.
func WithStallTimeout(d time.Duration) ActivityTrackerOption {
	return func(t *ActivityTracker) { t.stallTimeout = d }
}

// WithHeartbeatCallback sets the heartbeat callback.
func WithHeartbeatCallback(fn func(iteration int)) ActivityTrackerOption {
	return func(t *ActivityTracker) { t.onHeartbeat = fn }
}

// WithStallCallback sets the stall callback.
func WithStallCallback(fn func(idle time.Duration)) ActivityTrackerOption {
	return func(t *ActivityTracker) { t.onStall = fn }
}

// NewActivityTracker creates a tracker with default timings.
func NewActivityTracker(opts ...ActivityTrackerOption) *ActivityTracker {
	t := &ActivityTracker{
		state:             ActivityIdle,
		lastActivity:      time.Now(),
		heartbeatInterval: DefaultHeartbeatInterval,
		stallTimeout:      DefaultStallTimeout,
		stopCh:            make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Start launches the monitor goroutine. Call Stop to shut it down.
func (t *ActivityTracker) Start(ctx context.Context) {
	t.wg.Add(1)
	go t.monitor(ctx)
}

// Stop halts the monitor and waits for it to exit. Idempotent.
func (t *ActivityTracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.wg.Wait()
}

// BeginTurn marks the start of an agent turn.
func (t *ActivityTracker) BeginTurn(iteration int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = ActivityWaiting
	t.iteration = iteration
	t.turnStart = time.Now()
	t.lastActivity = t.turnStart
	t.chunks = 0
}

// RecordChunk notes agent output. The first chunk of a turn moves the
// state from waiting to streaming.
func (t *ActivityTracker) RecordChunk() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastActivity = time.Now()
	t.chunks++
	if t.state == ActivityWaiting {
		t.state = ActivityStreaming
	}
}

// EndTurn marks the turn finished.
func (t *ActivityTracker) EndTurn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = ActivityIdle
}

// State returns the current activity state.
func (t *ActivityTracker) State() ActivityState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// TurnDuration returns how long the current turn has been running.
func (t *ActivityTracker) TurnDuration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.turnStart.IsZero() {
		return 0
	}
	return time.Since(t.turnStart)
}

// Chunks returns the output chunks seen in the current turn.
func (t *ActivityTracker) Chunks() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chunks
}

func (t *ActivityTracker) monitor(ctx context.Context) {
	defer t.wg.Done()

	hb := t.heartbeatInterval
	if hb <= 0 {
		hb = DefaultHeartbeatInterval
	}
	heartbeat := time.NewTicker(hb)
	defer heartbeat.Stop()

	// Check frequently enough to catch a stall soon after the window
	// elapses without spinning on short timeouts in tests.
	check := t.stallTimeout / 4
	if t.stallTimeout <= 0 || check > 10*time.Second {
		check = 10 * time.Second
	}
	if check < 10*time.Millisecond {
		check = 10 * time.Millisecond
	}
	stall := time.NewTicker(check)
	defer stall.Stop()

	var lastStall time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return

		case <-heartbeat.C:
			t.mu.RLock()
			state := t.state
			iteration := t.iteration
			callback := t.onHeartbeat
			t.mu.RUnlock()
			if callback != nil && state != ActivityIdle {
				callback(iteration)
			}

		case <-stall.C:
			t.mu.RLock()
			state := t.state
			idle := time.Since(t.lastActivity)
			timeout := t.stallTimeout
			callback := t.onStall
			t.mu.RUnlock()
			if callback == nil || state == ActivityIdle || timeout <= 0 {
				continue
			}
			if idle <= timeout {
				continue
			}
			// One callback per stall window.
			if !lastStall.IsZero() && time.Since(lastStall) <= timeout {
				continue
			}
			callback(idle)
			lastStall = time.Now()
		}
	}
}
