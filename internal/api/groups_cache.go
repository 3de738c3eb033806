package api

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gyrelabs/gyre/internal/lifecycle"
	"github.com/gyrelabs/gyre/internal/loop"
)

// GroupedLoops is the dashboard listing: loops partitioned into display
// groups, in fixed group order.
type GroupedLoops struct {
	Order  []loop.Group                `json:"order"`
	Groups map[loop.Group][]*loop.Loop `json:"groups"`
	Counts map[loop.Group]int          `json:"counts"`
}

// groupsCache provides a TTL-based cache for the grouped loop listing,
// with singleflight coalescing to prevent redundant concurrent loads.
type groupsCache struct {
	mu       sync.RWMutex
	grouped  *GroupedLoops
	loadedAt time.Time
	ttl      time.Duration
	group    singleflight.Group
	machine  *lifecycle.Machine
}

// newGroupsCache creates a new groups cache over the given machine.
func newGroupsCache(machine *lifecycle.Machine, ttl time.Duration) *groupsCache {
	return &groupsCache{
		machine: machine,
		ttl:     ttl,
	}
}

// Groups returns the cached grouped listing or rebuilds it from the
// machine. Concurrent callers share a single List() call via singleflight.
func (c *groupsCache) Groups() (*GroupedLoops, error) {
	// Fast path: check if cache is valid
	c.mu.RLock()
	if c.grouped != nil && time.Since(c.loadedAt) < c.ttl {
		grouped := c.grouped
		c.mu.RUnlock()
		return grouped, nil
	}
	c.mu.RUnlock()

	// Slow path: load via singleflight to coalesce concurrent requests
	result, err, _ := c.group.Do("load", func() (any, error) {
		// Double-check cache after acquiring singleflight slot
		c.mu.RLock()
		if c.grouped != nil && time.Since(c.loadedAt) < c.ttl {
			grouped := c.grouped
			c.mu.RUnlock()
			return grouped, nil
		}
		c.mu.RUnlock()

		loops, err := c.machine.List()
		if err != nil {
			return nil, err
		}

		grouped := &GroupedLoops{
			Order:  loop.GroupOrder(),
			Groups: loop.Partition(loops),
			Counts: loop.GroupCounts(loops),
		}

		c.mu.Lock()
		c.grouped = grouped
		c.loadedAt = time.Now()
		c.mu.Unlock()

		return grouped, nil
	})

	if err != nil {
		return nil, err
	}

	return result.(*GroupedLoops), nil
}

// Invalidate clears the cache, forcing the next Groups() call to reload.
func (c *groupsCache) Invalidate() {
	c.mu.Lock()
	c.grouped = nil
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}
