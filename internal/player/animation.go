package player

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/rivesched/internal/canvas"
	"github.com/coreman2200/rivesched/internal/engine"
	"github.com/coreman2200/rivesched/internal/frame"
)

// Animation is the plain binding: it plays an animation at a given speed
// and mix with no seek, no modes and no boundary handling.
type Animation struct {
	host   canvas.Host
	ticker frame.Ticker
	onLoad func(inst engine.AnimationInstance)
	log    zerolog.Logger

	mu      sync.Mutex
	sel     *Selector
	inst    engine.AnimationInstance
	speed   float64
	mix     float64
	playing bool
	sub     *frame.Subscription
	closed  bool
	unwatch func()
}

func NewAnimation(host canvas.Host, ticker frame.Ticker, onLoad func(engine.AnimationInstance)) *Animation {
	a := &Animation{
		host:   host,
		ticker: ticker,
		onLoad: onLoad,
		speed:  1,
		mix:    1,
		log:    log.Logger.With().Str("component", "animation").Logger(),
	}
	a.unwatch = host.OnArtboard(a.onArtboard)
	return a
}

func (a *Animation) Register(sel Selector) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.sel = &sel
	a.mu.Unlock()
	if !a.host.Ready() {
		return nil
	}
	return a.instantiate()
}

func (a *Animation) instantiate() error {
	var loaded engine.AnimationInstance
	err := a.host.Turn(func(pass *canvas.Pass) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.closed || a.sel == nil {
			return nil
		}
		a.release()
		la, err := lookupAnimation(pass.Artboard(), *a.sel)
		if err != nil {
			return err
		}
		inst, err := pass.Runtime().NewAnimationInstance(la, pass.Artboard())
		if err != nil {
			return fmt.Errorf("animation: new instance of %s: %w", la.Name(), err)
		}
		a.inst, loaded = inst, inst
		return nil
	})
	if err != nil {
		a.log.Error().Err(err).Msg("register animation")
		return err
	}
	if loaded != nil && a.onLoad != nil {
		a.onLoad(loaded)
	}
	a.sync()
	return nil
}

func (a *Animation) onArtboard(ab engine.Artboard) {
	if ab == nil {
		a.host.WithTurn(func() {
			a.mu.Lock()
			a.release()
			a.mu.Unlock()
		})
		a.sync()
		return
	}
	a.mu.Lock()
	pending := a.sel != nil && !a.closed
	a.mu.Unlock()
	if pending {
		_ = a.instantiate()
	}
}

func (a *Animation) release() {
	if a.inst != nil {
		a.inst.Delete()
		a.inst = nil
	}
}

func (a *Animation) sync() {
	a.mu.Lock()
	defer a.mu.Unlock()
	want := !a.closed && a.inst != nil && a.playing
	switch {
	case want && a.sub == nil:
		a.sub = a.ticker.Subscribe(a.tick)
	case !want && a.sub != nil:
		a.sub.Unsubscribe()
		a.sub = nil
	}
}

func (a *Animation) tick(elapsedMs float64) {
	err := a.host.Turn(func(pass *canvas.Pass) error {
		a.mu.Lock()
		inst, speed, mix := a.inst, a.speed, a.mix
		a.mu.Unlock()
		if inst == nil {
			return nil
		}
		pass.DrawAnimation(inst, elapsedMs/1000*speed, mix)
		return nil
	})
	if err != nil {
		a.log.Error().Err(err).Msg("evaluate animation")
	}
}

func (a *Animation) SetSpeed(v float64) {
	if !finite(v) {
		return
	}
	a.mu.Lock()
	a.speed = v
	a.mu.Unlock()
}

func (a *Animation) SetMix(v float64) {
	if !finite(v) {
		return
	}
	a.mu.Lock()
	a.mix = clamp01(v)
	a.mu.Unlock()
}

func (a *Animation) SetPlaying(b bool) {
	a.mu.Lock()
	a.playing = b
	a.mu.Unlock()
	a.sync()
}

func (a *Animation) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	if a.sub != nil {
		a.sub.Unsubscribe()
		a.sub = nil
	}
	a.mu.Unlock()
	a.unwatch()
	a.host.WithTurn(func() {
		a.mu.Lock()
		a.release()
		a.mu.Unlock()
	})
}
