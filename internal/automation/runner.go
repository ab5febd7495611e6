package automation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/rivesched/internal/frame"
)

var ErrEmpty = errors.New("automation: program has no clips")

// Runner owns a Program timeline and drives Hooks from clock ticks while
// running.
type Runner struct {
	ticker frame.Ticker
	hooks  Hooks
	log    zerolog.Logger

	mu    sync.Mutex
	state State
	prog  Program
	nowS  float64
	idx   int
	sub   *frame.Subscription
}

func NewRunner(ticker frame.Ticker, h Hooks) *Runner {
	return &Runner{
		ticker: ticker,
		hooks:  h,
		state:  Idle,
		log:    log.Logger.With().Str("component", "automation").Logger(),
	}
}

// Load replaces the program and resets to Idle.
func (r *Runner) Load(prog Program) error {
	if len(prog.Clips) == 0 {
		return ErrEmpty
	}
	for i := range prog.Clips {
		c := &prog.Clips[i]
		if c.DurationS <= 0 || math.IsNaN(c.DurationS) || math.IsInf(c.DurationS, 0) {
			return fmt.Errorf("automation: clip %q: duration must be positive", c.Name)
		}
		for _, envs := range []map[string]Envelope{c.Params, c.Bools} {
			for target, env := range envs {
				if err := env.Normalize(); err != nil {
					return fmt.Errorf("automation: clip %q target %s: %w", c.Name, target, err)
				}
				envs[target] = env
			}
		}
	}
	r.mu.Lock()
	r.prog = prog
	r.nowS, r.idx = 0, 0
	r.state = Idle
	r.mu.Unlock()
	r.sync()
	r.log.Info().Int("clips", len(prog.Clips)).Bool("loop", prog.Loop).Msg("program loaded")
	return nil
}

// Start moves to Running and selects the current clip's animation.
func (r *Runner) Start() {
	r.mu.Lock()
	if r.state == Running || len(r.prog.Clips) == 0 {
		r.mu.Unlock()
		return
	}
	r.state = Running
	anim := r.prog.Clips[r.idx].Animation
	r.mu.Unlock()
	r.setAnimation(anim)
	r.sync()
}

func (r *Runner) Pause() {
	r.mu.Lock()
	if r.state == Running {
		r.state = Paused
	}
	r.mu.Unlock()
	r.sync()
}

func (r *Runner) Resume() {
	r.mu.Lock()
	if r.state == Paused {
		r.state = Running
	}
	r.mu.Unlock()
	r.sync()
}

// Stop rewinds to the start and goes Idle.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.state = Idle
	r.nowS, r.idx = 0, 0
	r.mu.Unlock()
	r.sync()
}

// Seek jumps to program time t, clamped into [0, total).
func (r *Runner) Seek(t float64) {
	r.mu.Lock()
	if len(r.prog.Clips) == 0 || math.IsNaN(t) {
		r.mu.Unlock()
		return
	}
	if t < 0 {
		t = 0
	}
	if total := r.totalDuration(); t >= total {
		t = math.Nextafter(total, -1)
	}
	acc := 0.0
	for i, c := range r.prog.Clips {
		if t < acc+c.DurationS {
			r.idx = i
			break
		}
		acc += c.DurationS
	}
	r.nowS = t
	anim := r.prog.Clips[r.idx].Animation
	r.mu.Unlock()
	r.setAnimation(anim)
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Position is the program time and the current clip name.
func (r *Runner) Position() (float64, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.prog.Clips) == 0 {
		return 0, ""
	}
	return r.nowS, r.prog.Clips[r.idx].Name
}

// Close detaches from the clock.
func (r *Runner) Close() {
	r.mu.Lock()
	r.state = Idle
	r.mu.Unlock()
	r.sync()
}

func (r *Runner) sync() {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := r.state == Running
	switch {
	case want && r.sub == nil && r.ticker != nil:
		r.sub = r.ticker.Subscribe(func(ms float64) { r.Tick(ms / 1000) })
	case !want && r.sub != nil:
		r.sub.Unsubscribe()
		r.sub = nil
	}
}

// Tick advances the program by dt seconds and applies the active clip.
func (r *Runner) Tick(dt float64) {
	r.mu.Lock()
	if r.state != Running || len(r.prog.Clips) == 0 || dt <= 0 {
		r.mu.Unlock()
		return
	}
	r.nowS += dt
	clip, localT := r.currentClip()

	var calls []func()
	for _, target := range sortedKeys(clip.Params) {
		v := clip.Params[target].Eval(localT)
		if r.hooks.SetParam != nil {
			target := target
			calls = append(calls, func() { r.hooks.SetParam(target, v) })
		}
	}
	for _, target := range sortedKeys(clip.Bools) {
		b := clip.Bools[target].BoolEval(localT)
		if r.hooks.SetBool != nil {
			target := target
			calls = append(calls, func() { r.hooks.SetBool(target, b) })
		}
	}

	var next string
	switched := false
	if localT >= clip.DurationS {
		switched = r.advanceClip()
		if switched {
			next = r.prog.Clips[r.idx].Animation
		}
	}
	r.mu.Unlock()

	for _, fn := range calls {
		fn()
	}
	if switched {
		r.setAnimation(next)
	}
	r.sync()
}

func (r *Runner) setAnimation(name string) {
	if name != "" && r.hooks.SetAnimation != nil {
		r.hooks.SetAnimation(name)
	}
}

// currentClip must be called with mu held.
func (r *Runner) currentClip() (Clip, float64) {
	acc := 0.0
	for i := 0; i < r.idx; i++ {
		acc += r.prog.Clips[i].DurationS
	}
	return r.prog.Clips[r.idx], r.nowS - acc
}

func (r *Runner) totalDuration() float64 {
	total := 0.0
	for _, c := range r.prog.Clips {
		total += c.DurationS
	}
	return total
}

// advanceClip moves to the next clip, wrapping the program clock on loop.
// It reports false at the end of a non looping program.
func (r *Runner) advanceClip() bool {
	ni := r.idx + 1
	if ni >= len(r.prog.Clips) {
		if !r.prog.Loop {
			r.state = Idle
			r.log.Debug().Msg("program finished")
			return false
		}
		r.nowS = math.Max(0, r.nowS-r.totalDuration())
		ni = 0
	}
	r.idx = ni
	r.log.Debug().Str("clip", r.prog.Clips[ni].Name).Msg("clip started")
	return true
}

func sortedKeys(m map[string]Envelope) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
