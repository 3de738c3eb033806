package events

import (
	"sync"
)

// GlobalLoopID is the special loop ID for subscribing to all loop events.
// Subscribers to this ID receive events for ALL loops.
const GlobalLoopID = "*"

// Publisher defines the interface for event publishing.
type Publisher interface {
	// Publish sends an event to all subscribers of the loop.
	Publish(event Event)
	// Subscribe returns a channel that receives events for the given loop.
	// Use GlobalLoopID ("*") to receive events for all loops.
	Subscribe(loopID string) <-chan Event
	// Unsubscribe removes a subscription channel.
	Unsubscribe(loopID string, ch <-chan Event)
	// Close shuts down the publisher and all subscriptions.
	Close()
}

// MemoryPublisher is an in-memory implementation of Publisher.
type MemoryPublisher struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
}

// PublisherOption configures a MemoryPublisher.
type PublisherOption func(*MemoryPublisher)

// WithBufferSize sets the channel buffer size for subscribers.
func WithBufferSize(size int) PublisherOption {
	return func(p *MemoryPublisher) {
		p.bufferSize = size
	}
}

// NewMemoryPublisher creates a new in-memory publisher.
func NewMemoryPublisher(opts ...PublisherOption) *MemoryPublisher {
	p := &MemoryPublisher{
		subscribers: make(map[string][]chan Event),
		bufferSize:  100,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends an event to subscribers of the loop and to global
// subscribers. Non-blocking: subscribers with full buffers miss the event.
func (p *MemoryPublisher) Publish(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	p.fanOut(p.subscribers[event.LoopID], event)
	if event.LoopID != GlobalLoopID {
		p.fanOut(p.subscribers[GlobalLoopID], event)
	}
}

// fanOut delivers to each channel without blocking. Callers hold the lock.
func (p *MemoryPublisher) fanOut(subs []chan Event, event Event) {
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel that receives events for the given loop.
func (p *MemoryPublisher) Subscribe(loopID string) <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, p.bufferSize)
	p.subscribers[loopID] = append(p.subscribers[loopID], ch)
	return ch
}

// Unsubscribe removes a subscription channel and closes it.
func (p *MemoryPublisher) Unsubscribe(loopID string, ch <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.subscribers[loopID]
	for i, sub := range subs {
		if sub == ch {
			p.subscribers[loopID] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}

	if len(p.subscribers[loopID]) == 0 {
		delete(p.subscribers, loopID)
	}
}

// Close shuts down the publisher and closes all subscription channels.
func (p *MemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	for loopID, subs := range p.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(p.subscribers, loopID)
	}
}

// SubscriberCount returns the number of subscribers for a loop.
func (p *MemoryPublisher) SubscriberCount(loopID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers[loopID])
}

// NopPublisher is a no-op publisher for testing or when events are disabled.
type NopPublisher struct{}

// NewNopPublisher creates a no-op publisher.
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}

// Publish does nothing.
func (p *NopPublisher) Publish(event Event) {}

// Subscribe returns a closed channel.
func (p *NopPublisher) Subscribe(loopID string) <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}

// Unsubscribe does nothing.
func (p *NopPublisher) Unsubscribe(loopID string, ch <-chan Event) {}

// Close does nothing.
func (p *NopPublisher) Close() {}
