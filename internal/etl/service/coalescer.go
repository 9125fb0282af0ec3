package service

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

// coalescer merges concurrent trigger calls into a single pending batch and
// guarantees at most one run in flight. Ids arriving while a run is active
// queue into a side-set and drain into a follow-up run; none are dropped.
type coalescer struct {
	mu       sync.Mutex
	pending  map[snowflake.ID]struct{}
	inflight bool
	run      func([]snowflake.ID)
	idle     *sync.Cond
}

func newCoalescer(run func([]snowflake.ID)) *coalescer {
	c := &coalescer{
		pending: make(map[snowflake.ID]struct{}),
		run:     run,
	}
	c.idle = sync.NewCond(&c.mu)
	return c
}

func (c *coalescer) Trigger(fileIDs ...snowflake.ID) {
	c.mu.Lock()
	for _, id := range fileIDs {
		if id != 0 {
			c.pending[id] = struct{}{}
		}
	}
	if c.inflight || len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	c.inflight = true
	c.mu.Unlock()

	go c.drain()
}

func (c *coalescer) drain() {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.inflight = false
			c.idle.Broadcast()
			c.mu.Unlock()
			return
		}
		batch := make([]snowflake.ID, 0, len(c.pending))
		for id := range c.pending {
			batch = append(batch, id)
		}
		c.pending = make(map[snowflake.ID]struct{})
		c.mu.Unlock()

		c.run(batch)
	}
}

// Wait blocks until no run is in flight and nothing is pending.
func (c *coalescer) Wait() {
	c.mu.Lock()
	for c.inflight || len(c.pending) > 0 {
		c.idle.Wait()
	}
	c.mu.Unlock()
}
