package player

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/rivesched/internal/cache"
	"github.com/coreman2200/rivesched/internal/canvas"
	"github.com/coreman2200/rivesched/internal/engine"
	"github.com/coreman2200/rivesched/internal/engine/enginetest"
	"github.com/coreman2200/rivesched/internal/frame"
)

type rig struct {
	rt     *enginetest.Runtime
	src    *frame.ManualSource
	clock  *frame.Clock
	canvas *canvas.Canvas
	reaper *cache.Reaper
}

func newRig(t *testing.T, open bool) *rig {
	t.Helper()
	rt := enginetest.NewRuntime(
		enginetest.ArtboardSpec{
			Name:   "main",
			Bounds: engine.AABB{MaxX: 100, MaxY: 100},
			Animations: []enginetest.AnimationSpec{
				{Name: "two", FPS: 10, Duration: 20, WorkStart: -1, WorkEnd: -1},
				{Name: "unit", FPS: 10, Duration: 10, WorkStart: -1, WorkEnd: -1},
			},
		},
		enginetest.ArtboardSpec{
			Name:       "other",
			Animations: []enginetest.AnimationSpec{{Name: "two", FPS: 10, Duration: 20, WorkStart: -1, WorkEnd: -1}},
		},
	)
	turn := &sync.Mutex{}
	reaper := cache.NewReaper(turn, time.Hour)
	fc := cache.New(rt, cache.DirFetcher{}, turn, reaper)
	c, err := canvas.New(rt, fc, turn, canvas.Options{Source: cache.Inline([]byte("riv")), Width: 100, Height: 100})
	require.NoError(t, err)
	if open {
		require.NoError(t, c.Open(context.Background()))
	}
	src := frame.NewManualSource()
	return &rig{rt: rt, src: src, clock: frame.NewClock(src), canvas: c, reaper: reaper}
}

func (r *rig) step(ms ...int) {
	for _, m := range ms {
		r.src.Step(time.Duration(m) * time.Millisecond)
	}
}

type recorder struct {
	mu     sync.Mutex
	loads  int
	times  []float64
	plays  []bool
	speeds []float64
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnLoad:        func(engine.AnimationInstance) { r.mu.Lock(); r.loads++; r.mu.Unlock() },
		OnTimeChange:  func(t float64) { r.mu.Lock(); r.times = append(r.times, t); r.mu.Unlock() },
		OnPlayChange:  func(b bool) { r.mu.Lock(); r.plays = append(r.plays, b); r.mu.Unlock() },
		OnSpeedChange: func(s float64) { r.mu.Lock(); r.speeds = append(r.speeds, s); r.mu.Unlock() },
	}
}

func timeOf(t *testing.T, p *Player) float64 {
	t.Helper()
	v, err := p.Time()
	require.NoError(t, err)
	return v
}

func TestPlayerLoopScenario(t *testing.T) {
	r := newRig(t, true)
	rec := &recorder{}
	p := New(r.canvas, r.clock, rec.hooks(), WithState(State{Speed: 1, Mix: 1, Mode: Loop}))
	require.NoError(t, p.Register(ByName("two")))
	assert.Equal(t, 1, rec.loads)
	assert.Equal(t, Bounds{0, 2}, p.Bounds())
	assert.False(t, r.src.Running(), "paused player does not hold the clock")

	p.SetPlaying(true)
	r.step(0) // first tick after start is nominal
	p.Seek(0)
	r.step(0)
	r.step(1000, 1000, 500)
	require.Len(t, rec.times, 5)
	assert.InDelta(t, 0.0, rec.times[1], 1e-9)
	assert.InDelta(t, 1.0, rec.times[2], 1e-9)
	assert.InDelta(t, 0.0, rec.times[3], 1e-9)
	assert.InDelta(t, 0.5, rec.times[4], 1e-9)
	assert.InDelta(t, 0.5, timeOf(t, p), 1e-9)
}

func TestPlayerSeekRegardlessOfPlaying(t *testing.T) {
	r := newRig(t, true)
	rec := &recorder{}
	p := New(r.canvas, r.clock, rec.hooks())
	require.NoError(t, p.Register(ByName("two")))

	p.Seek(1.5)
	assert.True(t, r.src.Running(), "a pending seek subscribes to the clock")
	r.step(100)
	assert.InDelta(t, 1.5, timeOf(t, p), 1e-9)
	assert.False(t, r.src.Running(), "released after the seek is applied")

	p.Seek(9)
	r.step(16)
	assert.InDelta(t, 2.0, timeOf(t, p), 1e-9)
	p.Seek(-1)
	r.step(16)
	assert.InDelta(t, 0.0, timeOf(t, p), 1e-9)

	// while playing, the seek is the only thing evaluated in its tick
	p.SetPlaying(true)
	p.Seek(1.0)
	r.step(500)
	assert.InDelta(t, 1.0, timeOf(t, p), 1e-9)
	r.step(500)
	assert.InDelta(t, 1.5, timeOf(t, p), 1e-9)

	// seeking to where the instance already is advances nothing
	p.SetPlaying(false)
	r.rt.Log.Reset()
	p.Seek(1.5)
	r.step(16)
	assert.Zero(t, r.rt.Log.Count("advance 0.0000"))
	assert.Empty(t, r.rt.Log.Calls())
}

func TestPlayerOneShotStopsOnce(t *testing.T) {
	r := newRig(t, true)
	rec := &recorder{}
	p := New(r.canvas, r.clock, rec.hooks(), WithState(State{Speed: 1, Mix: 1, Mode: OneShot, Playing: true}))
	require.NoError(t, p.Register(ByName("unit")))
	assert.True(t, r.src.Running())

	r.step(16, 500, 500, 500, 500)
	assert.Equal(t, []bool{false}, rec.plays)
	assert.False(t, p.State().Playing)
	assert.InDelta(t, 1.0, timeOf(t, p), 1e-9)
	assert.False(t, r.src.Running())

	r.step(500)
	assert.Equal(t, []bool{false}, rec.plays)

	// playing again at the end stops again right away, with one notification
	p.SetPlaying(true)
	r.step(16)
	assert.Equal(t, []bool{false, false}, rec.plays)
}

func TestPlayerOneShotAutoresetKeepsPlaying(t *testing.T) {
	r := newRig(t, true)
	rec := &recorder{}
	p := New(r.canvas, r.clock, rec.hooks(), WithState(State{Speed: 1, Mix: 1, Mode: OneShot, Autoreset: true, Playing: true}))
	require.NoError(t, p.Register(ByName("unit")))

	r.step(16, 500, 500)
	assert.InDelta(t, 1.0, timeOf(t, p), 1e-9)
	r.step(500)
	assert.InDelta(t, 0.0, timeOf(t, p), 1e-9)
	assert.Empty(t, rec.plays)
	assert.True(t, p.State().Playing)
	assert.True(t, r.src.Running())
}

func TestPlayerPingPongNotifiesSpeed(t *testing.T) {
	r := newRig(t, true)
	rec := &recorder{}
	p := New(r.canvas, r.clock, rec.hooks(), WithState(State{Speed: 1, Mix: 1, Mode: PingPong}))
	require.NoError(t, p.Register(ByName("unit")))
	// keeps the clock primed across the pause between seek and play
	r.clock.Subscribe(func(float64) {})
	p.Seek(0.9)
	r.step(16)
	p.SetPlaying(true)
	r.step(300)
	assert.InDelta(t, 0.7, timeOf(t, p), 1e-9)
	assert.Equal(t, []float64{-1}, rec.speeds)
	assert.Equal(t, -1.0, p.State().Speed)
}

func TestPlayerRejectsNonFinite(t *testing.T) {
	r := newRig(t, true)
	p := New(r.canvas, r.clock, Hooks{})
	p.SetSpeed(2)
	p.SetSpeed(math.NaN())
	p.SetSpeed(math.Inf(1))
	p.SetMix(0.5)
	p.SetMix(math.Inf(-1))
	assert.Equal(t, 2.0, p.State().Speed)
	assert.Equal(t, 0.5, p.State().Mix)

	p.SetMix(3)
	assert.Equal(t, 1.0, p.State().Mix)
	p.SetMix(-3)
	assert.Equal(t, 0.0, p.State().Mix)

	p = New(r.canvas, r.clock, Hooks{}, WithState(State{Speed: math.NaN(), Mix: 7}))
	assert.Equal(t, 1.0, p.State().Speed)
	assert.Equal(t, 1.0, p.State().Mix)
}

func TestPlayerLookupErrors(t *testing.T) {
	r := newRig(t, true)
	p := New(r.canvas, r.clock, Hooks{})

	err := p.Register(ByName("jump"))
	var lerr *engine.LookupError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, []string{"two", "unit"}, lerr.Available)

	err = p.Register(ByIndex(5))
	require.ErrorAs(t, err, &lerr)
	assert.Contains(t, err.Error(), "index 5 out of range: 2 available")

	require.NoError(t, p.Register(ByIndex(1)))
	assert.Equal(t, "unit", p.Name())
}

func TestPlayerTimeBeforeLoad(t *testing.T) {
	r := newRig(t, true)
	p := New(r.canvas, r.clock, Hooks{})
	_, err := p.Time()
	assert.ErrorIs(t, err, ErrNoInstance)

	r2 := newRig(t, false)
	p2 := New(r2.canvas, r2.clock, Hooks{})
	_, err = p2.Time()
	assert.ErrorIs(t, err, canvas.ErrNoArtboard)
}

func TestPlayerRegisterDeferredUntilOpen(t *testing.T) {
	r := newRig(t, false)
	rec := &recorder{}
	p := New(r.canvas, r.clock, rec.hooks(), WithState(State{Speed: 1, Mix: 1, Playing: true}))
	require.NoError(t, p.Register(ByName("two")))
	assert.Equal(t, 0, rec.loads)
	assert.False(t, r.src.Running())

	require.NoError(t, r.canvas.Open(context.Background()))
	assert.Equal(t, 1, rec.loads)
	assert.True(t, r.src.Running())
}

func TestPlayerReregisterDeletesFirst(t *testing.T) {
	r := newRig(t, true)
	p := New(r.canvas, r.clock, Hooks{})
	require.NoError(t, p.Register(ByName("two")))
	r.rt.Log.Reset()
	require.NoError(t, p.Register(ByName("unit")))
	assert.Equal(t, []string{"delete animation two", "new animation unit"}, r.rt.Log.Calls())
	assert.Equal(t, 1, r.rt.Live("animation"))
}

func TestPlayerFollowsArtboardChange(t *testing.T) {
	r := newRig(t, true)
	rec := &recorder{}
	p := New(r.canvas, r.clock, rec.hooks())
	require.NoError(t, p.Register(ByName("two")))
	r.rt.Log.Reset()

	require.NoError(t, r.canvas.SetArtboard("other"))
	assert.Equal(t, []string{
		"delete animation two", "delete artboard main", "new artboard other", "new animation two",
	}, r.rt.Log.Calls())
	assert.Equal(t, 2, rec.loads)
}

func TestPlayerCloseStopsTicks(t *testing.T) {
	r := newRig(t, true)
	rec := &recorder{}
	p := New(r.canvas, r.clock, rec.hooks(), WithState(State{Speed: 1, Mix: 1, Playing: true}))
	require.NoError(t, p.Register(ByName("two")))
	r.step(16)
	require.Len(t, rec.times, 1)

	p.Close()
	p.Close()
	assert.False(t, r.src.Running())
	assert.Equal(t, 0, r.rt.Live("animation"))
	r.step(16)
	assert.Len(t, rec.times, 1)
	assert.ErrorIs(t, p.Register(ByName("two")), ErrClosed)

	// canvas teardown after the player is gone leaves nothing behind
	r.canvas.Close()
	r.reaper.Flush()
	for _, kind := range []string{"file", "artboard", "animation", "renderer"} {
		assert.Equal(t, 0, r.rt.Live(kind), kind)
	}
}

func TestCanvasCloseReleasesPlayerInstance(t *testing.T) {
	r := newRig(t, true)
	p := New(r.canvas, r.clock, Hooks{}, WithState(State{Speed: 1, Mix: 1, Playing: true}))
	require.NoError(t, p.Register(ByName("two")))
	r.rt.Log.Reset()

	r.canvas.Close()
	assert.Equal(t, []string{"delete animation two"}, r.rt.Log.Calls())
	assert.False(t, r.src.Running())
	r.reaper.Flush()
	assert.Equal(t, 0, r.rt.Live("artboard"))
}

func TestPlainAnimation(t *testing.T) {
	r := newRig(t, true)
	loads := 0
	a := NewAnimation(r.canvas, r.clock, func(engine.AnimationInstance) { loads++ })
	require.NoError(t, a.Register(ByName("two")))
	assert.Equal(t, 1, loads)

	a.SetSpeed(2)
	a.SetMix(0.5)
	a.SetPlaying(true)
	r.rt.Log.Reset()
	r.step(16, 1500)
	assert.Equal(t, 1, r.rt.Log.Count("advance 0.0320"))
	assert.Equal(t, 1, r.rt.Log.Count("advance 3.0000"), "no boundary handling")
	assert.Equal(t, 2, r.rt.Log.Count("apply 0.50"))

	a.SetPlaying(false)
	assert.False(t, r.src.Running())
	a.Close()
	assert.Equal(t, 0, r.rt.Live("animation"))
}
