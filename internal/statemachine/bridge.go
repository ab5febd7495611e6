// Package statemachine binds engine state machine instances to a canvas and
// exposes their inputs as named cells that can be written before the
// instance exists.
package statemachine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/rivesched/internal/canvas"
	"github.com/coreman2200/rivesched/internal/engine"
	"github.com/coreman2200/rivesched/internal/frame"
)

var ErrClosed = errors.New("statemachine: closed")

type Status int

const (
	Unloaded Status = iota
	Loading
	Ready
	Advancing
	Destroyed
)

func (s Status) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Advancing:
		return "advancing"
	case Destroyed:
		return "destroyed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Selector picks a state machine by name, or by index when Name is empty.
type Selector struct {
	Name  string
	Index int
}

func ByName(name string) Selector { return Selector{Name: name} }
func ByIndex(i int) Selector      { return Selector{Index: i} }

func (s Selector) String() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("#%d", s.Index)
}

// Hooks are called outside the turn lock.
type Hooks struct {
	OnLoad func(inst engine.StateMachineInstance)
	// OnStateChange receives every state entered during one advance at once.
	OnStateChange func(states []string)
}

type Bridge struct {
	host   canvas.Host
	ticker frame.Ticker
	hooks  Hooks
	log    zerolog.Logger

	mu       sync.Mutex
	status   Status
	sel      *Selector
	inst     engine.StateMachineInstance
	name     string
	inputs   map[string]engine.Input
	cells    []*Input
	speed    float64
	playing  bool
	sub      *frame.Subscription
	unwatch  func()
	unlisten func()
}

type Option func(*Bridge)

func WithLogger(l zerolog.Logger) Option { return func(b *Bridge) { b.log = l } }
func WithSpeed(v float64) Option {
	return func(b *Bridge) {
		if finite(v) {
			b.speed = v
		}
	}
}
func WithPlaying(p bool) Option { return func(b *Bridge) { b.playing = p } }

func New(host canvas.Host, ticker frame.Ticker, hooks Hooks, opts ...Option) *Bridge {
	b := &Bridge{
		host:   host,
		ticker: ticker,
		hooks:  hooks,
		speed:  1,
		log:    log.Logger.With().Str("component", "statemachine").Logger(),
	}
	for _, o := range opts {
		o(b)
	}
	b.unwatch = host.OnArtboard(b.onArtboard)
	return b
}

// Register selects the state machine to run, destroying the previous
// instance first. Without an artboard the instance is created once one
// arrives.
func (b *Bridge) Register(sel Selector) error {
	b.mu.Lock()
	if b.status == Destroyed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.sel = &sel
	b.mu.Unlock()
	if !b.host.Ready() {
		b.log.Debug().Str("machine", sel.String()).Msg("register deferred until artboard is ready")
		return nil
	}
	return b.instantiate()
}

func (b *Bridge) instantiate() error {
	var (
		loaded engine.StateMachineInstance
		events []func()
	)
	err := b.host.Turn(func(pass *canvas.Pass) error {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.status == Destroyed || b.sel == nil {
			return nil
		}
		b.releaseLocked()
		b.status = Loading
		sm, err := lookupMachine(pass.Artboard(), *b.sel)
		if err != nil {
			b.status = Unloaded
			return err
		}
		inst, err := pass.Runtime().NewStateMachineInstance(sm, pass.Artboard())
		if err != nil {
			b.status = Unloaded
			return fmt.Errorf("statemachine: new instance of %s: %w", sm.Name(), err)
		}
		b.inst, b.name, loaded = inst, sm.Name(), inst
		b.inputs = make(map[string]engine.Input, inst.InputCount())
		for i := 0; i < inst.InputCount(); i++ {
			in := inst.Input(i)
			b.inputs[in.Name()] = in
		}
		if pl, ok := inst.(engine.PointerListener); ok {
			b.unlisten = b.host.AddPointerListener(pl)
		}
		b.status = Ready
		for _, c := range b.cells {
			events = append(events, c.resolve(b.inputs)...)
		}
		return nil
	})
	if err != nil {
		b.log.Error().Err(err).Msg("register state machine")
		return err
	}
	if loaded != nil {
		b.log.Info().Str("machine", b.Name()).Int("inputs", loaded.InputCount()).Msg("state machine loaded")
		if b.hooks.OnLoad != nil {
			b.hooks.OnLoad(loaded)
		}
	}
	for _, fn := range events {
		fn()
	}
	b.sync()
	return nil
}

func (b *Bridge) onArtboard(ab engine.Artboard) {
	if ab == nil {
		b.host.WithTurn(func() {
			b.mu.Lock()
			b.releaseLocked()
			b.mu.Unlock()
		})
		b.sync()
		return
	}
	b.mu.Lock()
	pending := b.sel != nil && b.status != Destroyed
	b.mu.Unlock()
	if pending {
		_ = b.instantiate()
	}
}

// releaseLocked must be called with the turn lock and mu held.
func (b *Bridge) releaseLocked() {
	if b.inst == nil {
		return
	}
	if b.unlisten != nil {
		b.unlisten()
		b.unlisten = nil
	}
	for _, c := range b.cells {
		c.unbind()
	}
	b.inst.Delete()
	b.inst, b.inputs = nil, nil
	if b.status != Destroyed {
		b.status = Unloaded
	}
	b.log.Debug().Str("machine", b.name).Msg("instance deleted")
}

func (b *Bridge) sync() {
	b.mu.Lock()
	defer b.mu.Unlock()
	want := b.status == Ready && b.playing
	switch {
	case want && b.sub == nil:
		b.sub = b.ticker.Subscribe(b.tick)
	case !want && b.sub != nil:
		b.sub.Unsubscribe()
		b.sub = nil
	}
}

func (b *Bridge) tick(elapsedMs float64) {
	var changed []string
	err := b.host.Turn(func(pass *canvas.Pass) error {
		b.mu.Lock()
		inst, speed := b.inst, b.speed
		if inst == nil || b.status != Ready {
			b.mu.Unlock()
			return nil
		}
		b.status = Advancing
		b.mu.Unlock()

		changed = pass.DrawStateMachine(inst, elapsedMs/1000*speed)

		b.mu.Lock()
		if b.status == Advancing {
			b.status = Ready
		}
		b.mu.Unlock()
		return nil
	})
	if err != nil {
		b.log.Error().Err(err).Msg("advance state machine")
		return
	}
	if len(changed) > 0 {
		b.log.Debug().Strs("states", changed).Msg("state changed")
		if b.hooks.OnStateChange != nil {
			b.hooks.OnStateChange(changed)
		}
	}
}

// SetSpeed ignores non-finite values.
func (b *Bridge) SetSpeed(v float64) {
	if !finite(v) {
		b.log.Debug().Float64("speed", v).Msg("ignoring non-finite speed")
		return
	}
	b.mu.Lock()
	b.speed = v
	b.mu.Unlock()
}

func (b *Bridge) SetPlaying(p bool) {
	b.mu.Lock()
	b.playing = p
	b.mu.Unlock()
	b.sync()
}

func (b *Bridge) Speed() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speed
}

func (b *Bridge) Playing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.playing
}

func (b *Bridge) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Name is the loaded state machine name, empty before load.
func (b *Bridge) Name() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inst == nil {
		return ""
	}
	return b.name
}

// Inputs lists the input names of the loaded instance.
func (b *Bridge) Inputs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.inputs))
	for n := range b.inputs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close stops ticking at once and deletes the instance. Input cells become
// no-ops.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.status == Destroyed {
		b.mu.Unlock()
		return
	}
	b.status = Destroyed
	if b.sub != nil {
		b.sub.Unsubscribe()
		b.sub = nil
	}
	unwatch := b.unwatch
	b.mu.Unlock()

	unwatch()
	b.host.WithTurn(func() {
		b.mu.Lock()
		b.releaseLocked()
		b.mu.Unlock()
	})
}

func lookupMachine(ab engine.Artboard, sel Selector) (engine.StateMachine, error) {
	if sel.Name != "" {
		if sm, ok := ab.StateMachineByName(sel.Name); ok {
			return sm, nil
		}
		return nil, &engine.LookupError{Kind: "state machine", Name: sel.Name, Available: engine.StateMachineNames(ab)}
	}
	if sm, ok := ab.StateMachineByIndex(sel.Index); ok {
		return sm, nil
	}
	return nil, &engine.LookupError{Kind: "state machine", Index: sel.Index, ByIndex: true, Available: engine.StateMachineNames(ab)}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
