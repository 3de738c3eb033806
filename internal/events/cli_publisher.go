package events

import (
	"fmt"
	"io"
	"sync"
)

// CLIPublisher writes loop progress to an io.Writer (typically stdout).
// It wraps another publisher to also fan out events for WebSocket/API use.
type CLIPublisher struct {
	inner      Publisher
	out        io.Writer
	mu         sync.Mutex
	streamMode bool // If true, stream all agent output
}

// CLIPublisherOption configures a CLIPublisher.
type CLIPublisherOption func(*CLIPublisher)

// WithInnerPublisher sets an inner publisher to fan out events to.
func WithInnerPublisher(p Publisher) CLIPublisherOption {
	return func(c *CLIPublisher) {
		c.inner = p
	}
}

// WithStreamMode enables full agent output streaming.
func WithStreamMode(enabled bool) CLIPublisherOption {
	return func(c *CLIPublisher) {
		c.streamMode = enabled
	}
}

// NewCLIPublisher creates a publisher that writes events to the given writer.
func NewCLIPublisher(out io.Writer, opts ...CLIPublisherOption) *CLIPublisher {
	p := &CLIPublisher{
		out:        out,
		streamMode: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish writes progress to the output writer and fans out to the inner
// publisher.
func (p *CLIPublisher) Publish(event Event) {
	if p.inner != nil {
		p.inner.Publish(event)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch event.Type {
	case EventIteration:
		data, ok := event.Data.(IterationData)
		if !ok {
			return
		}
		if data.MaxIterations > 0 {
			fmt.Fprintf(p.out, "\n━━━ Iteration %d/%d ━━━\n", data.Iteration, data.MaxIterations)
		} else {
			fmt.Fprintf(p.out, "\n━━━ Iteration %d ━━━\n", data.Iteration)
		}

	case EventOutput:
		if !p.streamMode {
			return
		}
		data, ok := event.Data.(OutputData)
		if !ok {
			return
		}
		fmt.Fprint(p.out, data.Text)

	case EventTransition:
		data, ok := event.Data.(TransitionData)
		if !ok {
			return
		}
		fmt.Fprintf(p.out, "\n● %s: %s → %s\n", event.LoopID, data.From, data.To)

	case EventSync:
		data, ok := event.Data.(SyncData)
		if !ok {
			return
		}
		if len(data.Conflicts) > 0 {
			fmt.Fprintf(p.out, "\n⚠ Conflicts on %s: %d file(s)\n", data.Phase, len(data.Conflicts))
		} else {
			fmt.Fprintf(p.out, "\n↻ Sync %s: %s\n", data.Phase, data.Status)
		}

	case EventError:
		data, ok := event.Data.(ErrorData)
		if !ok {
			return
		}
		fmt.Fprintf(p.out, "\n❌ Error: %s\n", data.Message)
	}
}

// Subscribe delegates to inner publisher or returns closed channel.
func (p *CLIPublisher) Subscribe(loopID string) <-chan Event {
	if p.inner != nil {
		return p.inner.Subscribe(loopID)
	}
	ch := make(chan Event)
	close(ch)
	return ch
}

// Unsubscribe delegates to inner publisher.
func (p *CLIPublisher) Unsubscribe(loopID string, ch <-chan Event) {
	if p.inner != nil {
		p.inner.Unsubscribe(loopID, ch)
	}
}

// Close delegates to inner publisher.
func (p *CLIPublisher) Close() {
	if p.inner != nil {
		p.inner.Close()
	}
}
