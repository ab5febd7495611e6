// Package player schedules linear animations on a canvas.
//
// A Player folds clock ticks and explicit seeks into one delta per
// evaluation, applying loop, ping-pong and one-shot rules at the work range
// bounds. External changes only update the state; they are picked up by the
// next evaluation.
package player

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/rivesched/internal/canvas"
	"github.com/coreman2200/rivesched/internal/engine"
	"github.com/coreman2200/rivesched/internal/frame"
)

var (
	ErrNoInstance = errors.New("player: animation instance not loaded")
	ErrClosed     = errors.New("player: closed")
)

// Hooks are called after an evaluation, never while a turn is in flight.
type Hooks struct {
	OnLoad        func(inst engine.AnimationInstance)
	OnTimeChange  func(t float64)
	OnPlayChange  func(playing bool)
	OnSpeedChange func(speed float64)
}

type Player struct {
	host   canvas.Host
	ticker frame.Ticker
	hooks  Hooks
	log    zerolog.Logger

	mu      sync.Mutex
	state   State
	seek    *float64
	sel     *Selector
	inst    engine.AnimationInstance
	name    string
	bounds  Bounds
	sub     *frame.Subscription
	closed  bool
	unwatch func()
}

type Option func(*Player)

func WithState(s State) Option           { return func(p *Player) { p.state = sanitize(s, DefaultState()) } }
func WithLogger(l zerolog.Logger) Option { return func(p *Player) { p.log = l } }

func New(host canvas.Host, ticker frame.Ticker, hooks Hooks, opts ...Option) *Player {
	p := &Player{
		host:   host,
		ticker: ticker,
		hooks:  hooks,
		state:  DefaultState(),
		log:    log.Logger.With().Str("component", "player").Logger(),
	}
	for _, o := range opts {
		o(p)
	}
	p.unwatch = host.OnArtboard(p.onArtboard)
	return p
}

// Register selects the animation to play. The previous instance is deleted
// before the new one is created. When the canvas is not ready yet the
// instance is created as soon as an artboard arrives.
func (p *Player) Register(sel Selector) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.sel = &sel
	p.mu.Unlock()
	if !p.host.Ready() {
		p.log.Debug().Str("animation", sel.String()).Msg("register deferred until artboard is ready")
		return nil
	}
	return p.instantiate()
}

func (p *Player) instantiate() error {
	var loaded engine.AnimationInstance
	err := p.host.Turn(func(pass *canvas.Pass) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed || p.sel == nil {
			return nil
		}
		p.releaseLocked()
		a, err := lookupAnimation(pass.Artboard(), *p.sel)
		if err != nil {
			return err
		}
		inst, err := pass.Runtime().NewAnimationInstance(a, pass.Artboard())
		if err != nil {
			return fmt.Errorf("player: new instance of %s: %w", a.Name(), err)
		}
		p.inst, p.name, p.bounds = inst, a.Name(), BoundsOf(a)
		loaded = inst
		return nil
	})
	if err != nil {
		p.log.Error().Err(err).Msg("register animation")
		return err
	}
	if loaded != nil {
		p.mu.Lock()
		name, b := p.name, p.bounds
		p.mu.Unlock()
		p.log.Info().Str("animation", name).Float64("start", b.Start).Float64("end", b.End).Msg("animation loaded")
		if p.hooks.OnLoad != nil {
			p.hooks.OnLoad(loaded)
		}
	}
	p.sync()
	return nil
}

func (p *Player) onArtboard(ab engine.Artboard) {
	if ab == nil {
		p.host.WithTurn(func() {
			p.mu.Lock()
			p.releaseLocked()
			p.mu.Unlock()
		})
		p.sync()
		return
	}
	p.mu.Lock()
	pending := p.sel != nil && !p.closed
	p.mu.Unlock()
	if pending {
		_ = p.instantiate()
	}
}

// releaseLocked must be called with the turn lock and mu held.
func (p *Player) releaseLocked() {
	if p.inst == nil {
		return
	}
	p.inst.Delete()
	p.inst = nil
	p.log.Debug().Str("animation", p.name).Msg("instance deleted")
}

// sync keeps the clock subscription alive exactly while there is something
// to evaluate.
func (p *Player) sync() {
	p.mu.Lock()
	defer p.mu.Unlock()
	want := !p.closed && p.inst != nil && (p.state.Playing || p.seek != nil)
	switch {
	case want && p.sub == nil:
		p.sub = p.ticker.Subscribe(p.tick)
	case !want && p.sub != nil:
		p.sub.Unsubscribe()
		p.sub = nil
	}
}

func (p *Player) tick(elapsedMs float64) {
	var (
		fx      Effects
		speed   float64
		now     float64
		applied bool
	)
	err := p.host.Turn(func(pass *canvas.Pass) error {
		p.mu.Lock()
		inst := p.inst
		if inst == nil || p.closed {
			p.mu.Unlock()
			return nil
		}
		t := inst.Time()
		var delta float64
		switch {
		case p.seek != nil:
			delta = SeekDelta(p.bounds, t, *p.seek)
			p.seek = nil
			if delta == 0 {
				p.mu.Unlock()
				return nil
			}
		case p.state.Playing:
			var next State
			delta, next, fx = Step(p.state, p.bounds, t, elapsedMs)
			p.state = next
			speed = next.Speed
		default:
			p.mu.Unlock()
			return nil
		}
		mix := p.state.Mix
		p.mu.Unlock()

		pass.DrawAnimation(inst, delta, mix)
		now = inst.Time()
		applied = true
		return nil
	})
	if err != nil {
		p.log.Error().Err(err).Msg("evaluate animation")
	}

	if fx.SpeedChanged {
		p.log.Debug().Float64("speed", speed).Msg("direction reversed")
		if p.hooks.OnSpeedChange != nil {
			p.hooks.OnSpeedChange(speed)
		}
	}
	if fx.Stopped {
		p.log.Debug().Msg("one-shot finished")
		if p.hooks.OnPlayChange != nil {
			p.hooks.OnPlayChange(false)
		}
	}
	if applied && p.hooks.OnTimeChange != nil {
		p.hooks.OnTimeChange(now)
	}
	p.sync()
}

func (p *Player) update(fn func(s State) State) {
	p.mu.Lock()
	p.state = fn(p.state)
	p.mu.Unlock()
	p.sync()
}

// SetSpeed ignores non-finite values.
func (p *Player) SetSpeed(v float64) {
	if !finite(v) {
		p.log.Debug().Float64("speed", v).Msg("ignoring non-finite speed")
		return
	}
	p.update(func(s State) State { s.Speed = v; return s })
}

// SetMix clamps v into [0,1] and ignores non-finite values.
func (p *Player) SetMix(v float64) {
	if !finite(v) {
		p.log.Debug().Float64("mix", v).Msg("ignoring non-finite mix")
		return
	}
	p.update(func(s State) State { s.Mix = clamp01(v); return s })
}

func (p *Player) SetPlaying(b bool) {
	p.update(func(s State) State { s.Playing = b; return s })
}

func (p *Player) SetMode(m Mode) {
	p.update(func(s State) State { s.Mode = m; return s })
}

func (p *Player) SetAutoreset(b bool) {
	p.update(func(s State) State { s.Autoreset = b; return s })
}

// Seek moves the instance to t (clamped into the work range) on the next
// evaluation, whether playing or not.
func (p *Player) Seek(t float64) {
	if !finite(t) {
		return
	}
	p.mu.Lock()
	p.seek = &t
	p.mu.Unlock()
	p.sync()
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) Bounds() Bounds {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bounds
}

// Name is the loaded animation name, empty before load.
func (p *Player) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inst == nil {
		return ""
	}
	return p.name
}

// Time reads the instance time from the engine.
func (p *Player) Time() (float64, error) {
	var t float64
	err := p.host.Turn(func(*canvas.Pass) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.inst == nil {
			return ErrNoInstance
		}
		t = p.inst.Time()
		return nil
	})
	return t, err
}

// Close stops tick consumption at once and deletes the instance.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.sub != nil {
		p.sub.Unsubscribe()
		p.sub = nil
	}
	unwatch := p.unwatch
	p.mu.Unlock()

	unwatch()
	p.host.WithTurn(func() {
		p.mu.Lock()
		p.releaseLocked()
		p.mu.Unlock()
	})
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }

func sanitize(s, prev State) State {
	if !finite(s.Speed) {
		s.Speed = prev.Speed
	}
	if !finite(s.Mix) {
		s.Mix = prev.Mix
	}
	s.Mix = clamp01(s.Mix)
	return s
}
