package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gyrelabs/gyre/internal/store"
)

const (
	// Buffer flushes when it reaches this size
	bufferSizeThreshold = 10
	// Buffer flushes automatically every 5 seconds
	flushInterval = 5 * time.Second
)

// EventStore is the slice of the store a PersistentPublisher needs.
type EventStore interface {
	SaveEvents(rows []store.EventRow) error
}

// PersistentPublisher wraps MemoryPublisher and adds database persistence.
// Subscribers keep real-time delivery while events accumulate into the
// event_log table in batches.
type PersistentPublisher struct {
	inner       *MemoryPublisher
	store       EventStore
	source      string
	buffer      []store.EventRow
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	logger      *slog.Logger
	stopCh      chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// NewPersistentPublisher creates a new persistent event publisher. The
// source parameter identifies where events originate (e.g., "executor",
// "api").
func NewPersistentPublisher(es EventStore, source string, logger *slog.Logger, opts ...PublisherOption) *PersistentPublisher {
	if logger == nil {
		logger = slog.Default()
	}

	p := &PersistentPublisher{
		inner:  NewMemoryPublisher(opts...),
		store:  es,
		source: source,
		buffer: make([]store.EventRow, 0, bufferSizeThreshold),
		logger: logger,
		stopCh: make(chan struct{}),
	}

	p.flushTicker = time.NewTicker(flushInterval)
	p.wg.Add(1)
	go p.flushLoop()

	return p
}

// Publish sends an event to subscribers and queues it for persistence.
func (p *PersistentPublisher) Publish(event Event) {
	// Broadcast first so live subscribers are never behind the database.
	p.inner.Publish(event)

	if p.store == nil {
		return
	}

	row := p.eventToRow(event)

	p.bufferMu.Lock()
	p.buffer = append(p.buffer, row)
	shouldFlush := len(p.buffer) >= bufferSizeThreshold
	p.bufferMu.Unlock()

	// Transitions change what list views show, so they flush immediately.
	if shouldFlush || event.Type == EventTransition {
		p.flush()
	}
}

// Subscribe returns a channel that receives events for the given loop.
func (p *PersistentPublisher) Subscribe(loopID string) <-chan Event {
	return p.inner.Subscribe(loopID)
}

// Unsubscribe removes a subscription channel.
func (p *PersistentPublisher) Unsubscribe(loopID string, ch <-chan Event) {
	p.inner.Unsubscribe(loopID, ch)
}

// Close flushes remaining events and releases resources. Close is
// idempotent.
func (p *PersistentPublisher) Close() {
	p.closeOnce.Do(func() {
		close(p.stopCh)
		p.flushTicker.Stop()
		p.wg.Wait()
		p.flush()
		p.inner.Close()
	})
}

func (p *PersistentPublisher) flushLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.flushTicker.C:
			p.flush()
		case <-p.stopCh:
			return
		}
	}
}

// flush writes buffered events to the database in a single batch.
func (p *PersistentPublisher) flush() {
	p.bufferMu.Lock()
	if len(p.buffer) == 0 {
		p.bufferMu.Unlock()
		return
	}
	toFlush := p.buffer
	p.buffer = make([]store.EventRow, 0, bufferSizeThreshold)
	p.bufferMu.Unlock()

	// Write outside the lock. On failure the batch is dropped rather than
	// retried so the buffer cannot grow without bound.
	if err := p.store.SaveEvents(toFlush); err != nil {
		p.logger.Error("failed to persist events", "error", err, "count", len(toFlush))
	}
}

// eventToRow converts an Event to its event_log representation.
func (p *PersistentPublisher) eventToRow(e Event) store.EventRow {
	var iteration *int

	switch data := e.Data.(type) {
	case IterationData:
		iteration = &data.Iteration
	case OutputData:
		iteration = &data.Iteration
	case HeartbeatData:
		iteration = &data.Iteration
	case ErrorData:
		if data.Iteration > 0 {
			iteration = &data.Iteration
		}
	}

	return store.EventRow{
		LoopID:    e.LoopID,
		Iteration: iteration,
		EventType: string(e.Type),
		Data:      store.EncodeEventData(e.Data),
		Source:    p.source,
		CreatedAt: e.Time,
	}
}
