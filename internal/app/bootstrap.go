package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/rivesched/internal/automation"
	"github.com/coreman2200/rivesched/internal/cache"
	"github.com/coreman2200/rivesched/internal/canvas"
	"github.com/coreman2200/rivesched/internal/config"
	"github.com/coreman2200/rivesched/internal/diagnostics"
	"github.com/coreman2200/rivesched/internal/engine"
	"github.com/coreman2200/rivesched/internal/events"
	"github.com/coreman2200/rivesched/internal/frame"
	"github.com/coreman2200/rivesched/internal/node"
	"github.com/coreman2200/rivesched/internal/player"
	"github.com/coreman2200/rivesched/internal/statemachine"
)

var ErrClosed = errors.New("app: closed")

// Core owns one canvas and every binding drawn on it. All engine calls are
// serialized by a single turn lock shared with the cache and the canvas.
type Core struct {
	cfg *config.Config
	log zerolog.Logger
	bus *events.Bus

	turn   sync.Mutex
	clock  *frame.Clock
	gate   *frame.Gate
	files  *cache.Cache
	canvas *canvas.Canvas

	fetch     cache.Fetcher
	presenter canvas.Presenter
	grace     time.Duration

	// cells serializes input creation; bridge hooks never take it.
	cells sync.Mutex

	mu         sync.Mutex
	width      int
	height     int
	players    map[string]*player.Player
	animations map[string]*player.Animation
	machines   map[string]*statemachine.Bridge
	inputs     map[string]*statemachine.Input
	nodes      map[string]*node.Transform
	auto       *automation.Runner
	autoPlayer string
	started    time.Time
	closed     bool
	unwatch    func()
}

type Option func(*Core)

func WithLogger(l zerolog.Logger) Option { return func(c *Core) { c.log = l } }
func WithBus(b *events.Bus) Option       { return func(c *Core) { c.bus = b } }

// WithFetcher replaces the asset folder lookup.
func WithFetcher(f cache.Fetcher) Option { return func(c *Core) { c.fetch = f } }

// WithPresenter pushes every drawn frame to p, usually a surface strip.
func WithPresenter(p canvas.Presenter) Option { return func(c *Core) { c.presenter = p } }

// WithGrace sets how long released handles wait before deletion.
func WithGrace(d time.Duration) Option { return func(c *Core) { c.grace = d } }

// New wires the scene described by cfg on top of rt. Frames come from src;
// nothing is loaded until Open.
func New(cfg *config.Config, rt engine.Runtime, src frame.Source, opts ...Option) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Core{
		cfg:        cfg,
		log:        log.Logger.With().Str("component", "core").Logger(),
		grace:      cache.DefaultGrace,
		width:      cfg.Scene.Width,
		height:     cfg.Scene.Height,
		players:    map[string]*player.Player{},
		animations: map[string]*player.Animation{},
		machines:   map[string]*statemachine.Bridge{},
		inputs:     map[string]*statemachine.Input{},
		nodes:      map[string]*node.Transform{},
	}
	for _, o := range opts {
		o(c)
	}
	if c.bus == nil {
		c.bus = events.NewBus()
	}
	if c.fetch == nil {
		c.fetch = cache.DirFetcher{Folder: cfg.Assets}
	}

	// validated above
	fit, _ := engine.ParseFit(cfg.Scene.Fit)
	align, _ := engine.ParseAlignment(cfg.Scene.Alignment)

	c.clock = frame.NewClock(src)
	c.gate = frame.NewGate(c.clock, !cfg.Scene.Hidden)
	reaper := cache.NewReaper(&c.turn, c.grace)
	c.files = cache.New(rt, c.fetch, &c.turn, reaper, cache.WithLogger(c.sub("cache")))

	cvOpts := []canvas.Option{canvas.WithGate(c.gate), canvas.WithLogger(c.sub("canvas"))}
	if c.presenter != nil {
		cvOpts = append(cvOpts, canvas.WithPresenter(&reporter{p: c.presenter, bus: c.bus}))
	}
	cv, err := canvas.New(rt, c.files, &c.turn, canvas.Options{
		Source:    cache.Named(cfg.Scene.File),
		Artboard:  cfg.Scene.Artboard,
		Fit:       fit,
		Alignment: align,
		Width:     cfg.Scene.Width,
		Height:    cfg.Scene.Height,
		Viewbox:   cfg.Scene.Viewbox,
		Lazy:      cfg.Scene.Lazy,
	}, cvOpts...)
	if err != nil {
		return nil, err
	}
	c.canvas = cv
	c.unwatch = cv.OnArtboard(func(ab engine.Artboard) {
		if ab != nil {
			c.bus.Publish(events.ArtboardChanged("canvas", ab.Name()))
		}
	})

	for _, pc := range cfg.Players {
		c.addPlayer(pc)
	}
	for _, ac := range cfg.Animations {
		c.addAnimation(ac)
	}
	for _, mc := range cfg.Machines {
		if err := c.addMachine(mc); err != nil {
			c.Close()
			return nil, err
		}
	}
	for _, nc := range cfg.Nodes {
		if err := c.addNode(nc); err != nil {
			c.Close()
			return nil, err
		}
	}
	if cfg.Automation != nil {
		if err := c.loadAutomation(cfg.Automation); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Core) sub(component string) zerolog.Logger {
	return c.log.With().Str("component", component).Logger()
}

func (c *Core) addPlayer(pc config.Player) {
	mode, _ := player.ParseMode(pc.Mode)
	st := player.DefaultState()
	if pc.Speed != nil {
		st.Speed = *pc.Speed
	}
	if pc.Mix != nil {
		st.Mix = *pc.Mix
	}
	st.Mode, st.Playing, st.Autoreset = mode, pc.Playing, pc.Autoreset

	src := "player:" + pc.ID
	var p *player.Player
	p = player.New(c.canvas, c.gate, player.Hooks{
		OnLoad:        func(engine.AnimationInstance) { c.bus.Publish(events.Loaded(src, p.Name())) },
		OnTimeChange:  func(t float64) { c.bus.Publish(events.TimeChanged(src, t)) },
		OnPlayChange:  func(b bool) { c.bus.Publish(events.PlayChanged(src, b)) },
		OnSpeedChange: func(v float64) { c.bus.Publish(events.SpeedChanged(src, v)) },
	}, player.WithState(st), player.WithLogger(c.sub("player").With().Str("player", pc.ID).Logger()))
	c.players[pc.ID] = p
}

func (c *Core) addAnimation(ac config.Animation) {
	src := "animation:" + ac.ID
	sel := selector(ac.Animation, ac.Index)
	a := player.NewAnimation(c.canvas, c.gate, func(engine.AnimationInstance) {
		c.bus.Publish(events.Loaded(src, sel.String()))
	})
	if ac.Speed != nil {
		a.SetSpeed(*ac.Speed)
	}
	if ac.Mix != nil {
		a.SetMix(*ac.Mix)
	}
	a.SetPlaying(ac.Playing)
	c.animations[ac.ID] = a
}

func (c *Core) addMachine(mc config.Machine) error {
	src := "machine:" + mc.ID
	opts := []statemachine.Option{
		statemachine.WithLogger(c.sub("statemachine").With().Str("machine", mc.ID).Logger()),
		statemachine.WithPlaying(mc.Playing),
	}
	if mc.Speed != nil {
		opts = append(opts, statemachine.WithSpeed(*mc.Speed))
	}
	var b *statemachine.Bridge
	b = statemachine.New(c.canvas, c.gate, statemachine.Hooks{
		OnLoad: func(engine.StateMachineInstance) {
			c.bus.Publish(events.Loaded(src, b.Name()))
			c.reportInert(mc.ID)
		},
		OnStateChange: func(states []string) { c.bus.Publish(events.StatesChanged(src, states)) },
	}, opts...)
	c.machines[mc.ID] = b

	for _, in := range mc.Inputs {
		cell, err := c.input(mc.ID, in.Name)
		if err != nil {
			return err
		}
		if in.Value == nil {
			continue
		}
		if err := writeInput(cell, in.Value); err != nil {
			return fmt.Errorf("machine:%s input %s: %w", mc.ID, in.Name, err)
		}
	}
	return nil
}

// input returns the cell for machine/name, declaring it on first use.
func (c *Core) input(machine, name string) (*statemachine.Input, error) {
	c.cells.Lock()
	defer c.cells.Unlock()
	key := machine + "/" + name

	c.mu.Lock()
	cell, ok := c.inputs[key]
	b := c.machines[machine]
	c.mu.Unlock()
	if ok {
		return cell, nil
	}
	if b == nil {
		return nil, fmt.Errorf("%w: machine %q", errUnknown, machine)
	}

	src := "machine:" + machine
	cell = b.Input(name, statemachine.InputHooks{
		OnLoad:   func(r statemachine.Reading) { c.bus.Publish(events.InputLoaded(src, r.Name, r.Value())) },
		OnChange: func(r statemachine.Reading) { c.bus.Publish(events.InputChanged(src, r.Name, r.Value())) },
	})
	c.mu.Lock()
	c.inputs[key] = cell
	c.mu.Unlock()
	return cell, nil
}

// reportInert publishes a diagnostic for every declared input the loaded
// machine does not have.
func (c *Core) reportInert(machine string) {
	prefix := machine + "/"
	c.mu.Lock()
	var inert []string
	for key, cell := range c.inputs {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix && cell.Inert() {
			inert = append(inert, cell.Name())
		}
	}
	c.mu.Unlock()
	sort.Strings(inert)
	for _, name := range inert {
		c.log.Warn().Str("machine", machine).Str("input", name).Msg("input not declared by the machine")
		c.bus.Publish(events.Diagnosed("machine:"+machine, diagnostics.InputUnresolved(machine, name)))
	}
}

func (c *Core) addNode(nc config.Node) error {
	k, _ := node.ParseKind(nc.Kind)
	t := node.New(c.canvas, k)
	c.nodes[nc.ID] = t

	props := make([]string, 0, len(nc.Set))
	for p := range nc.Set {
		props = append(props, p)
	}
	// scale first so an explicit scaleX or scaleY wins
	sort.Slice(props, func(i, j int) bool {
		if props[i] == "scale" || props[j] == "scale" {
			return props[i] == "scale"
		}
		return props[i] < props[j]
	})
	for _, p := range props {
		if err := setNode(t, p, nc.Set[p]); err != nil {
			return fmt.Errorf("node:%s: %w", nc.ID, err)
		}
	}
	return nil
}

func selector(name string, index *int) player.Selector {
	if name == "" && index != nil {
		return player.ByIndex(*index)
	}
	return player.ByName(name)
}

func machineSelector(name string, index *int) statemachine.Selector {
	if name == "" && index != nil {
		return statemachine.ByIndex(*index)
	}
	return statemachine.ByName(name)
}

// Open loads the scene and registers every binding. A binding whose
// animation, machine or component is missing is reported on the bus and
// does not fail the scene.
func (c *Core) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.started = time.Now()
	c.mu.Unlock()

	if err := c.canvas.Open(ctx); err != nil {
		c.bus.Publish(events.Diagnosed("canvas", diagnostics.LoadFailed(c.cfg.Scene.File, err)))
		return err
	}

	for _, pc := range c.cfg.Players {
		c.report("player:"+pc.ID, c.players[pc.ID].Register(selector(pc.Animation, pc.Index)))
	}
	for _, ac := range c.cfg.Animations {
		c.report("animation:"+ac.ID, c.animations[ac.ID].Register(selector(ac.Animation, ac.Index)))
	}
	for _, mc := range c.cfg.Machines {
		c.report("machine:"+mc.ID, c.machines[mc.ID].Register(machineSelector(mc.Name, mc.Index)))
	}
	for _, nc := range c.cfg.Nodes {
		if err := c.nodes[nc.ID].Bind(nc.Name); err != nil {
			k, _ := node.ParseKind(nc.Kind)
			c.bus.Publish(events.Diagnosed("node:"+nc.ID, diagnostics.ComponentMissing(k.String(), nc.Name)))
		}
	}

	c.mu.Lock()
	auto := c.auto
	c.mu.Unlock()
	if auto != nil && c.cfg.Automation.Autostart {
		auto.Start()
	}

	c.bus.Publish(events.Diagnosed("canvas", diagnostics.SceneReady(c.cfg.Scene.File, c.canvas.Artboard())))
	c.log.Info().Str("file", c.cfg.Scene.File).Str("artboard", c.canvas.Artboard()).
		Int("players", len(c.players)).Int("machines", len(c.machines)).Msg("scene ready")
	return nil
}

func (c *Core) report(source string, err error) {
	if err == nil {
		return
	}
	c.log.Warn().Err(err).Str("source", source).Msg("binding not loaded")
	c.bus.Publish(events.Diagnosed(source, diagnostics.FromError(source, err)))
}

// Close stops every binding, then the canvas, then waits out the grace
// period so every engine handle is deleted before returning.
func (c *Core) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	auto := c.auto
	c.mu.Unlock()

	if auto != nil {
		auto.Close()
	}
	for _, p := range c.players {
		p.Close()
	}
	for _, a := range c.animations {
		a.Close()
	}
	for _, b := range c.machines {
		b.Close()
	}
	for _, t := range c.nodes {
		t.Close()
	}
	if c.unwatch != nil {
		c.unwatch()
	}
	c.canvas.Close()
	c.files.Reaper().Flush()
	c.bus.Publish(events.Diagnosed("canvas", diagnostics.SceneClosed(c.cfg.Scene.File)))
	c.log.Info().Msg("scene closed")
}

func (c *Core) Bus() *events.Bus { return c.bus }

// SetVisible gates ticks: hidden surfaces do not advance.
func (c *Core) SetVisible(v bool) { c.gate.SetVisible(v) }

// Health is merged into the /health response.
func (c *Core) Health() map[string]any {
	c.mu.Lock()
	h := map[string]any{
		"scene":      c.cfg.Scene.File,
		"players":    len(c.players),
		"animations": len(c.animations),
		"machines":   len(c.machines),
		"inputs":     len(c.inputs),
		"nodes":      len(c.nodes),
	}
	auto, started := c.auto, c.started
	c.mu.Unlock()

	h["artboard"] = c.canvas.Artboard()
	h["ready"] = c.canvas.Ready()
	h["visible"] = c.gate.Visible()
	h["listeners"] = c.clock.Listeners()
	h["pending_deletes"] = c.files.Reaper().Pending()
	if auto != nil {
		pos, clip := auto.Position()
		h["automation"] = map[string]any{"state": auto.State(), "position_s": pos, "clip": clip}
	}
	if !started.IsZero() {
		h["scene_uptime_s"] = time.Since(started).Seconds()
	}
	return h
}

// reporter publishes one diagnostic per run of failed presents.
type reporter struct {
	p   canvas.Presenter
	bus *events.Bus

	mu      sync.Mutex
	failing bool
}

func (r *reporter) Present(img image.Image) error {
	err := r.p.Present(img)
	r.mu.Lock()
	first := err != nil && !r.failing
	r.failing = err != nil
	r.mu.Unlock()
	if first {
		r.bus.Publish(events.Diagnosed("surface", diagnostics.SurfaceFailed(err)))
	}
	return err
}
