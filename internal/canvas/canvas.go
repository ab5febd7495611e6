// Package canvas binds one artboard and one renderer to a drawing surface.
//
// Every engine call on a canvas happens inside a turn: the turn lock is
// shared by all canvases on the same runtime, so only one
// advance/apply/draw sequence is ever in flight.
package canvas

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/rivesched/internal/cache"
	"github.com/coreman2200/rivesched/internal/engine"
	"github.com/coreman2200/rivesched/internal/frame"
	"github.com/coreman2200/rivesched/internal/pointer"
)

var (
	ErrNoRuntime  = errors.New("canvas: engine runtime not loaded")
	ErrNoArtboard = errors.New("canvas: artboard not loaded")
	ErrNoRenderer = errors.New("canvas: renderer not created")
	ErrClosed     = errors.New("canvas: closed")
)

// Host is what bindings need from a canvas.
type Host interface {
	Ready() bool
	Turn(fn func(p *Pass) error) error
	WithTurn(fn func())
	OnArtboard(fn func(ab engine.Artboard)) (cancel func())
	AddPointerListener(l engine.PointerListener) (remove func())
}

// Presenter receives every frame drawn by renderers able to snapshot.
type Presenter interface {
	Present(img image.Image) error
}

type Options struct {
	Source    cache.Identity
	Artboard  string
	Fit       engine.Fit
	Alignment engine.Alignment
	Width     int
	Height    int
	Viewbox   string
	// Lazy delays loading until the surface is first visible.
	Lazy bool
}

type Canvas struct {
	id    uuid.UUID
	rt    engine.Runtime
	cache *cache.Cache
	gate  *frame.Gate
	turn  sync.Locker
	log   zerolog.Logger

	mu        sync.Mutex
	opts      Options
	viewbox   Viewbox
	boxes     map[string]engine.AABB
	ref       *cache.FileRef
	artboard  engine.Artboard
	renderer  engine.Renderer
	presenter Presenter
	closed    bool
	origin    pointer.Point

	nextID    int
	watchers  []watcher
	listeners []listener
}

type watcher struct {
	id int
	fn func(engine.Artboard)
}

type listener struct {
	id int
	l  engine.PointerListener
}

type Option func(*Canvas)

func WithPresenter(p Presenter) Option   { return func(c *Canvas) { c.presenter = p } }
func WithLogger(l zerolog.Logger) Option { return func(c *Canvas) { c.log = l } }

// WithGate gates lazy loading on the surface visibility.
func WithGate(g *frame.Gate) Option { return func(c *Canvas) { c.gate = g } }

func New(rt engine.Runtime, fc *cache.Cache, turn sync.Locker, opts Options, options ...Option) (*Canvas, error) {
	vb, err := ParseViewbox(opts.Viewbox)
	if err != nil {
		return nil, err
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("canvas: invalid size %dx%d", opts.Width, opts.Height)
	}
	id := uuid.New()
	c := &Canvas{
		id:      id,
		rt:      rt,
		cache:   fc,
		turn:    turn,
		log:     log.Logger.With().Str("component", "canvas").Str("canvas", id.String()).Logger(),
		opts:    opts,
		viewbox: vb,
		boxes:   map[string]engine.AABB{},
	}
	for _, o := range options {
		o(c)
	}
	return c, nil
}

func (c *Canvas) ID() uuid.UUID { return c.id }

// Open loads the source file, creates the renderer and selects the artboard.
// A lazy canvas first waits for its gate to report the surface visible.
func (c *Canvas) Open(ctx context.Context) error {
	if c.opts.Lazy && c.gate != nil {
		c.log.Debug().Msg("waiting for surface to be visible")
		select {
		case <-c.gate.Shown():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.rt == nil {
		return ErrNoRuntime
	}

	c.mu.Lock()
	src, w, h := c.opts.Source, c.opts.Width, c.opts.Height
	c.mu.Unlock()

	ref, err := c.cache.Load(ctx, src)
	if err != nil {
		return err
	}
	c.turn.Lock()
	r, err := c.rt.NewRenderer(w, h)
	c.turn.Unlock()
	if err != nil {
		c.cache.Unload(ref)
		return fmt.Errorf("canvas: new renderer: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.cache.Reaper().Defer(r.Delete)
		c.cache.Unload(ref)
		return ErrClosed
	}
	c.ref, c.renderer = ref, r
	name := c.opts.Artboard
	c.mu.Unlock()

	c.log.Info().Str("source", src.String()).Int("width", w).Int("height", h).Msg("canvas opened")
	return c.selectArtboard(name)
}

// SetArtboard switches to another artboard. Bindings drop their instances
// before the old artboard is deleted and recreate them on the new one.
func (c *Canvas) SetArtboard(name string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.opts.Artboard = name
	loaded := c.ref != nil
	c.mu.Unlock()
	if !loaded {
		return nil
	}
	return c.selectArtboard(name)
}

func (c *Canvas) selectArtboard(name string) error {
	c.mu.Lock()
	prev := c.artboard
	c.artboard = nil
	ref := c.ref
	c.mu.Unlock()
	if prev != nil {
		c.notify(nil)
	}

	ab, err := c.cache.SelectArtboard(c.id, ref, name)
	if err != nil {
		c.log.Error().Err(err).Str("artboard", name).Msg("select artboard")
		return err
	}
	c.mu.Lock()
	c.artboard = ab
	c.mu.Unlock()
	c.log.Info().Str("artboard", ab.Name()).Msg("artboard ready")
	c.notify(ab)
	return nil
}

// Artboard returns the current artboard name, empty before it is loaded.
func (c *Canvas) Artboard() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.artboard == nil {
		return ""
	}
	return c.artboard.Name()
}

func (c *Canvas) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.artboard != nil && c.renderer != nil
}

// OnArtboard registers fn to be called with every new artboard, and with nil
// right before the current artboard goes away. Bindings must release the
// instances they created on it when called with nil.
func (c *Canvas) OnArtboard(fn func(ab engine.Artboard)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.watchers = append(c.watchers, watcher{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, w := range c.watchers {
			if w.id == id {
				c.watchers = append(c.watchers[:i], c.watchers[i+1:]...)
				return
			}
		}
	}
}

func (c *Canvas) notify(ab engine.Artboard) {
	c.mu.Lock()
	ws := append([]watcher(nil), c.watchers...)
	c.mu.Unlock()
	for _, w := range ws {
		w.fn(ab)
	}
}

// AddPointerListener receives mapped pointer events until removed.
func (c *Canvas) AddPointerListener(l engine.PointerListener) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, l: l})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, x := range c.listeners {
			if x.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// Turn runs fn with the turn lock held, after checking that everything a
// draw needs exists.
func (c *Canvas) Turn(fn func(p *Pass) error) error {
	c.turn.Lock()
	defer c.turn.Unlock()
	c.mu.Lock()
	closed, ab, r := c.closed, c.artboard, c.renderer
	c.mu.Unlock()
	switch {
	case closed:
		return ErrClosed
	case c.rt == nil:
		return ErrNoRuntime
	case ab == nil:
		return ErrNoArtboard
	case r == nil:
		return ErrNoRenderer
	}
	return fn(&Pass{c: c, ab: ab, r: r})
}

// WithTurn runs fn with the turn lock held and no precondition, for
// releasing handles.
func (c *Canvas) WithTurn(fn func()) {
	c.turn.Lock()
	defer c.turn.Unlock()
	fn()
}

// Box is the frame the artboard is aligned into, memoized per viewbox and size.
func (c *Canvas) Box() engine.AABB {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.box()
}

func (c *Canvas) box() engine.AABB {
	key := fmt.Sprintf("%s %d %d", c.viewbox, c.opts.Width, c.opts.Height)
	if b, ok := c.boxes[key]; ok {
		return b
	}
	b := c.viewbox.Box(c.opts.Width, c.opts.Height)
	c.boxes[key] = b
	return b
}

func (c *Canvas) SetViewbox(s string) error {
	vb, err := ParseViewbox(s)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.viewbox = vb
	c.mu.Unlock()
	return nil
}

func (c *Canvas) SetFit(f engine.Fit) {
	c.mu.Lock()
	c.opts.Fit = f
	c.mu.Unlock()
}

func (c *Canvas) SetAlignment(a engine.Alignment) {
	c.mu.Lock()
	c.opts.Alignment = a
	c.mu.Unlock()
}

// SetOrigin records where the surface sits in client coordinates.
func (c *Canvas) SetOrigin(p pointer.Point) {
	c.mu.Lock()
	c.origin = p
	c.mu.Unlock()
}

// SetSize resizes the surface. A loaded canvas gets a new renderer; the old
// one is released after the grace period.
func (c *Canvas) SetSize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("canvas: invalid size %dx%d", w, h)
	}
	c.mu.Lock()
	c.opts.Width, c.opts.Height = w, h
	loaded := c.renderer != nil && !c.closed
	c.mu.Unlock()
	if !loaded || c.rt == nil {
		return nil
	}

	c.turn.Lock()
	r, err := c.rt.NewRenderer(w, h)
	c.turn.Unlock()
	if err != nil {
		return fmt.Errorf("canvas: new renderer: %w", err)
	}
	c.mu.Lock()
	old := c.renderer
	c.renderer = r
	c.mu.Unlock()
	if old != nil {
		c.cache.Reaper().Defer(old.Delete)
	}
	return nil
}

// Pointer maps a client event into artboard space and forwards it to every
// pointer listener. Events without coordinates are dropped.
func (c *Canvas) Pointer(ev pointer.Event) error {
	p, ok := ev.ClientCoordinates()
	if !ok {
		return nil
	}
	return c.Turn(func(pass *Pass) error {
		c.mu.Lock()
		fit, align := c.opts.Fit, c.opts.Alignment
		frameBox := engine.AABB{MaxX: float64(c.opts.Width), MaxY: float64(c.opts.Height)}
		local := pointer.Point{X: p.X - c.origin.X, Y: p.Y - c.origin.Y}
		ls := append([]listener(nil), c.listeners...)
		c.mu.Unlock()

		pt, err := pointer.Mapper{Runtime: c.rt}.Map(fit, align, frameBox, pass.ab.Bounds(), local)
		if err != nil {
			return err
		}
		for _, x := range ls {
			pointer.Dispatch(x.l, ev.Kind, pt)
		}
		return nil
	})
}

// Close tears the canvas down: bindings release their instances first, then
// the artboard and the renderer are deleted after the grace period and the
// file reference is given back.
func (c *Canvas) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ab, r, ref := c.artboard, c.renderer, c.ref
	c.artboard, c.renderer, c.ref = nil, nil, nil
	c.mu.Unlock()

	if ab != nil {
		c.notify(nil)
	}
	c.cache.ReleaseOwner(c.id)
	if r != nil {
		c.cache.Reaper().Defer(r.Delete)
	}
	c.cache.Unload(ref)
	c.log.Info().Msg("canvas closed")
}
