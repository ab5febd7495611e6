package frame

import "sync"

// Gate suppresses ticks while its surface is not visible. A hidden gate
// holds no subscription on the clock, and the first tick after it becomes
// visible again reports Nominal instead of the time spent hidden.
type Gate struct {
	clock Ticker

	mu      sync.Mutex
	visible bool
	rearm   bool
	entries []entry
	sub     *Subscription
	shown   chan struct{}
}

// NewGate wraps clock. Surfaces start hidden unless visible is set.
func NewGate(clock Ticker, visible bool) *Gate {
	g := &Gate{clock: clock, visible: visible, shown: make(chan struct{})}
	if visible {
		close(g.shown)
	}
	return g
}

func (g *Gate) Subscribe(fn Listener) *Subscription {
	g.mu.Lock()
	defer g.mu.Unlock()
	var sub *Subscription
	sub = newSubscription(func() { g.remove(sub) })
	g.entries = append(g.entries, entry{fn: fn, sub: sub})
	g.attach()
	return sub
}

// SetVisible records a visibility observation of the surface.
func (g *Gate) SetVisible(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v == g.visible {
		return
	}
	g.visible = v
	if v {
		g.rearm = true
		close(g.shown)
		g.attach()
		return
	}
	g.shown = make(chan struct{})
	g.detach()
}

func (g *Gate) Visible() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.visible
}

// Shown returns a channel closed once the surface is visible.
func (g *Gate) Shown() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shown
}

func (g *Gate) attach() {
	if g.sub != nil || !g.visible || len(g.entries) == 0 {
		return
	}
	g.sub = g.clock.Subscribe(g.tick)
}

func (g *Gate) detach() {
	if g.sub == nil {
		return
	}
	sub := g.sub
	g.sub = nil
	sub.Unsubscribe()
}

func (g *Gate) remove(sub *Subscription) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, e := range g.entries {
		if e.sub == sub {
			g.entries = append(g.entries[:i], g.entries[i+1:]...)
			break
		}
	}
	if len(g.entries) == 0 {
		g.detach()
	}
}

func (g *Gate) tick(delta float64) {
	g.mu.Lock()
	if !g.visible {
		g.mu.Unlock()
		return
	}
	if g.rearm {
		delta = Nominal
		g.rearm = false
	}
	entries := append([]entry(nil), g.entries...)
	g.mu.Unlock()

	for _, e := range entries {
		if e.sub.Active() {
			e.fn(delta)
		}
	}
}
