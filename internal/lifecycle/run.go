package lifecycle

import (
	"fmt"

	"github.com/gyrelabs/gyre/internal/loop"
)

// IterationInput is the assembled input for one agent turn. Pending
// overrides are already applied.
type IterationInput struct {
	Iteration     int
	MaxIterations int
	Prompt        string
	Model         string
}

// MarkRunning records that the iteration session is live. Legal from
// starting (backend connected) and waiting (next iteration begins).
func (m *Machine) MarkRunning(id string) (*loop.Loop, error) {
	var from loop.Status
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		if l.Status != loop.StatusStarting && l.Status != loop.StatusWaiting {
			return m.reject(l, "run")
		}
		from = l.Status
		l.Status = loop.StatusRunning
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition("run", from, loop.StatusRunning, l)
	return l, nil
}

// MarkWaiting records the end of an iteration with the session still
// open. Lossless counterpart of MarkRunning.
func (m *Machine) MarkWaiting(id string) (*loop.Loop, error) {
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		if l.Status != loop.StatusRunning {
			return m.reject(l, "wait")
		}
		l.Status = loop.StatusWaiting
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition("wait", loop.StatusRunning, loop.StatusWaiting, l)
	return l, nil
}

// Stop is the user-initiated halt. Active loops move to stopped; a
// resolving_conflicts session is abandoned and the record returns to the
// status the sync was entered from, ReviewState untouched.
func (m *Machine) Stop(id string) (*loop.Loop, error) {
	var from loop.Status
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		from = l.Status
		switch {
		case loop.IsActive(l.Status):
			l.Status = loop.StatusStopped
		case l.Status == loop.StatusResolvingConflicts:
			s, ok := l.Syncing()
			if !ok {
				return m.reject(l, "stop")
			}
			l.Status = s.Origin
			l.EndActivity()
		default:
			return m.reject(l, "stop")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition("stop", from, l.Status, l)
	m.logger.Info("loop stopped", "loop", id, "from", from, "status", l.Status)
	return l, nil
}

// BeginIteration opens the next agent turn: bumps the counter, consumes
// any queued pending update into the input, and flips waiting back to
// running. When the iteration ceiling is already reached the loop moves
// to max_iterations instead and the input is nil.
func (m *Machine) BeginIteration(id string) (*IterationInput, error) {
	var input *IterationInput
	var from loop.Status
	var ceiling bool
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		if l.Status != loop.StatusRunning && l.Status != loop.StatusWaiting {
			return m.reject(l, "iteration")
		}
		from = l.Status

		max := l.EffectiveMaxIterations(m.opts.MaxIterations)
		if max > 0 && l.Iteration >= max {
			ceiling = true
			l.Status = loop.StatusMaxIterations
			return nil
		}

		l.Iteration++
		if upd, ok := l.TakePending(); ok {
			if upd.Prompt != nil {
				l.Prompt = *upd.Prompt
			}
			if upd.Model != nil {
				l.Model = *upd.Model
			}
		}
		if l.Status == loop.StatusWaiting {
			l.Status = loop.StatusRunning
		}

		input = &IterationInput{
			Iteration:     l.Iteration,
			MaxIterations: max,
			Prompt:        l.Prompt,
			Model:         l.Model,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ceiling {
		m.events.Transition("maxIterations", from, loop.StatusMaxIterations, l)
		m.logger.Info("iteration ceiling reached", "loop", id, "iteration", l.Iteration)
		return nil, nil
	}
	if from == loop.StatusWaiting {
		m.events.Transition("run", from, loop.StatusRunning, l)
	}
	m.events.Iteration(id, input.Iteration, input.MaxIterations)
	return input, nil
}

// MarkCompleted records a stop-pattern match in the agent output. The
// error tracker is discarded with the successful run.
func (m *Machine) MarkCompleted(id string) (*loop.Loop, error) {
	var from loop.Status
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		if l.Status != loop.StatusRunning && l.Status != loop.StatusWaiting {
			return m.reject(l, "complete")
		}
		from = l.Status
		l.Status = loop.StatusCompleted
		l.Tracker = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Transition("complete", from, loop.StatusCompleted, l)
	m.logger.Info("loop completed", "loop", id, "iteration", l.Iteration)
	return l, nil
}

// Fail moves an active loop to failed with an error detail. Used for
// unrecoverable errors that bypass the consecutive-error tracker.
func (m *Machine) Fail(id, message string) (*loop.Loop, error) {
	var from loop.Status
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		if !loop.IsActive(l.Status) {
			return m.reject(l, "fail")
		}
		from = l.Status
		l.Status = loop.StatusFailed
		l.Error = &loop.ErrorDetail{
			Message:   message,
			Iteration: l.Iteration,
			Timestamp: m.clock.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.events.Error(id, l.Iteration, message, true, 0)
	m.events.Transition("fail", from, loop.StatusFailed, l)
	m.logger.Error("loop failed", "loop", id, "iteration", l.Iteration, "error", message)
	return l, nil
}

// RecordIterationError folds one iteration error into the failsafe
// tracker. Identical consecutive messages increment the count; at the
// configured ceiling the loop is forced to failed and the second return
// is true.
func (m *Machine) RecordIterationError(id, message string) (*loop.Loop, bool, error) {
	var from loop.Status
	var tripped bool
	l, err := m.withLoop(id, func(l *loop.Loop) error {
		if l.Status != loop.StatusRunning && l.Status != loop.StatusWaiting {
			return m.reject(l, "iterationError")
		}
		from = l.Status
		l.Tracker = l.Tracker.Observe(message)
		if l.Tracker.Tripped(m.opts.MaxConsecutiveErrors) {
			tripped = true
			l.Status = loop.StatusFailed
			l.Error = &loop.ErrorDetail{
				Message:   fmt.Sprintf("failsafe tripped after %d consecutive identical errors: %s", l.Tracker.Count, message),
				Iteration: l.Iteration,
				Timestamp: m.clock.Now().UTC(),
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	m.events.Error(id, l.Iteration, message, tripped, l.Tracker.Count)
	if tripped {
		m.events.Transition("fail", from, loop.StatusFailed, l)
		m.logger.Error("failsafe tripped", "loop", id, "count", l.Tracker.Count, "error", message)
	}
	return l, tripped, nil
}

// RecordIterationSuccess discards the error tracker after a successful
// iteration. Consecutive-error counting never survives a success.
func (m *Machine) RecordIterationSuccess(id string) (*loop.Loop, error) {
	return m.withLoop(id, func(l *loop.Loop) error {
		if l.Status != loop.StatusRunning && l.Status != loop.StatusWaiting {
			return m.reject(l, "iterationSuccess")
		}
		l.Tracker = nil
		return nil
	})
}
