// Package frame produces the shared tick stream that drives every binding.
package frame

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Nominal is the delta reported by the first tick after a (re)start.
const Nominal = 16.0

// Listener receives the elapsed milliseconds since the previous tick.
type Listener func(deltaMs float64)

// Ticker is implemented by Clock and Gate.
type Ticker interface {
	Subscribe(fn Listener) *Subscription
}

// Subscription is a handle to a registered listener. After Unsubscribe
// returns the listener is never called again.
type Subscription struct {
	active atomic.Bool
	once   sync.Once
	cancel func()
}

func newSubscription(cancel func()) *Subscription {
	s := &Subscription{cancel: cancel}
	s.active.Store(true)
	return s
}

func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.active.Store(false)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Active reports whether the subscription still receives ticks.
func (s *Subscription) Active() bool { return s != nil && s.active.Load() }

type entry struct {
	fn  Listener
	sub *Subscription
}

// Clock multicasts one Source to any number of listeners. The source runs
// only while at least one listener is subscribed.
type Clock struct {
	src Source
	log zerolog.Logger

	mu      sync.Mutex
	entries []entry
	running bool
	gen     uint64
	last    time.Time
	primed  bool
}

func NewClock(src Source) *Clock {
	return &Clock{src: src, log: log.Logger.With().Str("component", "clock").Logger()}
}

func (c *Clock) Subscribe(fn Listener) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sub *Subscription
	sub = newSubscription(func() { c.remove(sub) })
	c.entries = append(c.entries, entry{fn: fn, sub: sub})
	if !c.running {
		c.start()
	}
	return sub
}

// Listeners returns the number of subscribed listeners.
func (c *Clock) Listeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Running reports whether the underlying source is started.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// start must be called with mu held.
func (c *Clock) start() {
	c.running = true
	c.primed = false
	c.gen++
	gen := c.gen
	c.log.Debug().Uint64("gen", gen).Msg("frame source start")
	c.src.Start(func(now time.Time) { c.frame(gen, now) })
}

func (c *Clock) remove(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.sub == sub {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	if len(c.entries) == 0 && c.running {
		c.running = false
		c.gen++
		c.log.Debug().Msg("frame source stop")
		c.src.Stop()
	}
}

func (c *Clock) frame(gen uint64, now time.Time) {
	c.mu.Lock()
	if gen != c.gen || !c.running {
		c.mu.Unlock()
		return
	}
	delta := Nominal
	if c.primed {
		delta = float64(now.Sub(c.last)) / float64(time.Millisecond)
	}
	c.primed = true
	c.last = now
	entries := append([]entry(nil), c.entries...)
	c.mu.Unlock()

	for _, e := range entries {
		if e.sub.Active() {
			e.fn(delta)
		}
	}
}
