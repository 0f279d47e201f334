package bus

import (
	"log/slog"
	"sync"
	"time"
)

// Coalescer delivers only the latest event per key once a key has been
// quiet for the window. Snapshots are cumulative, so a slow consumer
// loses nothing by skipping intermediate ones. Events for which
// Immediate returns true flush any pending event for the key and are
// delivered at once. flushFn may be called from timer goroutines and
// must tolerate an older event arriving after a newer one; Event.Seq
// orders them.
type Coalescer struct {
	window    time.Duration
	flushFn   func(Event)
	Immediate func(Event) bool

	mu      sync.Mutex
	pending map[string]*pendingEvent
}

type pendingEvent struct {
	event   Event
	dropped int
	timer   *time.Timer
}

// NewCoalescer creates a coalescer. A window <= 0 disables coalescing.
func NewCoalescer(window time.Duration, flushFn func(Event)) *Coalescer {
	return &Coalescer{
		window:  window,
		flushFn: flushFn,
		pending: make(map[string]*pendingEvent),
	}
}

// Push queues event under its run ID, replacing any pending event.
func (c *Coalescer) Push(event Event) {
	if c.window <= 0 {
		c.flushFn(event)
		return
	}
	key := event.RunID

	if c.Immediate != nil && c.Immediate(event) {
		c.mu.Lock()
		if p, ok := c.pending[key]; ok {
			p.timer.Stop()
			delete(c.pending, key)
		}
		c.mu.Unlock()
		c.flushFn(event)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[key]
	if !ok {
		p = &pendingEvent{}
		c.pending[key] = p
	} else {
		p.timer.Stop()
		p.dropped++
	}
	p.event = event
	p.timer = time.AfterFunc(c.window, func() { c.flushKey(key) })
}

// Stop delivers all pending events immediately.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.pending))
	for k := range c.pending {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	for _, k := range keys {
		c.flushKey(k)
	}
}

func (c *Coalescer) flushKey(key string) {
	c.mu.Lock()
	p, ok := c.pending[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	p.timer.Stop()
	delete(c.pending, key)
	c.mu.Unlock()

	if p.dropped > 0 {
		slog.Debug("bus.coalesced", "run_id", key, "dropped", p.dropped)
	}
	c.flushFn(p.event)
}
