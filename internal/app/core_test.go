package app

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/rivesched/internal/automation"
	"github.com/coreman2200/rivesched/internal/cache"
	"github.com/coreman2200/rivesched/internal/command"
	"github.com/coreman2200/rivesched/internal/config"
	"github.com/coreman2200/rivesched/internal/diagnostics"
	"github.com/coreman2200/rivesched/internal/engine/sim"
	"github.com/coreman2200/rivesched/internal/events"
	"github.com/coreman2200/rivesched/internal/frame"
	"github.com/coreman2200/rivesched/internal/node"
	"github.com/coreman2200/rivesched/internal/player"
)

const demo = `
artboards:
  - name: main
    width: 100
    height: 100
    nodes:
      - {name: ball, x: 10, y: 50, radius: 10, color: "#00ff00"}
    animations:
      - name: slide
        fps: 10
        duration: 10
        tracks:
          - node: ball
            property: x
            keys: [{frame: 0, value: 0}, {frame: 10, value: 100}]
      - {name: fade, fps: 10, duration: 20}
    stateMachines:
      - name: ui
        inputs:
          - {name: level, type: number}
          - {name: press, type: trigger}
        states:
          - {name: pressed, when: {input: press}}
          - {name: high, when: {input: level, gte: 5}}
          - {name: idle}
        listeners:
          - {node: ball, on: down, input: press}
  - name: other
    width: 50
    height: 50
    animations:
      - {name: slide, fps: 10, duration: 5}
`

var demoFetcher = cache.FetcherFunc(func(ctx context.Context, name string) ([]byte, error) {
	if name != "demo" {
		return nil, errors.New("no asset " + name)
	}
	return []byte(demo), nil
})

type rig struct {
	core *Core
	rt   *sim.Runtime
	src  *frame.ManualSource
	sub  *events.Subscriber
}

func scene() *config.Config {
	c := config.Default()
	c.Scene.File = "demo"
	c.Scene.Width, c.Scene.Height = 100, 100
	return c
}

func newRig(t *testing.T, cfg *config.Config, opts ...Option) *rig {
	t.Helper()
	r := &rig{rt: sim.New(), src: frame.NewManualSource()}
	opts = append([]Option{WithFetcher(demoFetcher), WithGrace(time.Millisecond)}, opts...)
	core, err := New(cfg, r.rt, r.src, opts...)
	require.NoError(t, err)
	r.core = core
	r.sub = core.Bus().Subscribe("test", 1024, nil)
	t.Cleanup(core.Close)
	return r
}

func (r *rig) open(t *testing.T) {
	t.Helper()
	require.NoError(t, r.core.Open(context.Background()))
}

func (r *rig) step(n int, d time.Duration) {
	for i := 0; i < n; i++ {
		r.src.Step(d)
	}
}

func (r *rig) drain() []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-r.sub.C():
			out = append(out, e)
		default:
			return out
		}
	}
}

func find(evs []events.Event, kind events.Kind, source string) []events.Event {
	var out []events.Event
	for _, e := range evs {
		if e.Kind == kind && e.Source == source {
			out = append(out, e)
		}
	}
	return out
}

func codes(evs []events.Event) []string {
	var out []string
	for _, e := range evs {
		if e.Kind == events.Diagnostic {
			out = append(out, e.Diag.Code)
		}
	}
	return out
}

func TestOpenLoadsBindings(t *testing.T) {
	cfg := scene()
	cfg.Players = []config.Player{{ID: "hero", Animation: "slide", Mode: "loop"}}
	cfg.Machines = []config.Machine{{ID: "ui", Name: "ui", Inputs: []config.Input{{Name: "level", Value: 7}, {Name: "ghost"}}}}
	r := newRig(t, cfg)
	r.open(t)
	evs := r.drain()

	ab := find(evs, events.ArtboardChange, "canvas")
	require.Len(t, ab, 1)
	assert.Equal(t, "main", ab[0].Name)

	hero := find(evs, events.Load, "player:hero")
	require.Len(t, hero, 1)
	assert.Equal(t, "slide", hero[0].Name)
	ui := find(evs, events.Load, "machine:ui")
	require.Len(t, ui, 1)
	assert.Equal(t, "ui", ui[0].Name)

	loaded := find(evs, events.InputLoad, "machine:ui")
	require.Len(t, loaded, 1)
	assert.Equal(t, "level", loaded[0].Name)
	changed := find(evs, events.InputChange, "machine:ui")
	require.Len(t, changed, 1)
	assert.Equal(t, 7.0, changed[0].Value)

	assert.Equal(t, []string{diagnostics.CodeInput, diagnostics.CodeSceneReady}, codes(evs))
	assert.Equal(t, "main", r.core.Health()["artboard"])
}

func TestOpenReportsMissingBindings(t *testing.T) {
	cfg := scene()
	cfg.Players = []config.Player{{ID: "hero", Animation: "walk"}}
	cfg.Nodes = []config.Node{{ID: "arm", Name: "arm", Kind: "bone"}}
	r := newRig(t, cfg)
	r.open(t)
	evs := r.drain()

	var lookup *events.Event
	for i, e := range evs {
		if e.Kind == events.Diagnostic && e.Source == "player:hero" {
			lookup = &evs[i]
		}
	}
	require.NotNil(t, lookup)
	assert.Equal(t, diagnostics.CodeLookup, lookup.Diag.Code)
	assert.Equal(t, []string{"slide", "fade"}, lookup.Diag.Evidence["available"])
	assert.Contains(t, codes(evs), diagnostics.CodeComponent)
}

func TestOpenMissingFile(t *testing.T) {
	cfg := scene()
	cfg.Scene.File = "absent"
	r := newRig(t, cfg)
	assert.Error(t, r.core.Open(context.Background()))
	assert.Equal(t, []string{diagnostics.CodeLoad}, codes(r.drain()))
}

func TestTicksAdvancePlayer(t *testing.T) {
	cfg := scene()
	cfg.Players = []config.Player{{ID: "hero", Animation: "slide", Mode: "loop", Playing: true}}
	r := newRig(t, cfg)
	r.open(t)
	r.drain()

	r.step(3, 100*time.Millisecond)
	ts := find(r.drain(), events.TimeChange, "player:hero")
	require.Len(t, ts, 3)
	assert.InDelta(t, 0.216, *ts[2].Time, 1e-9)

	r.core.SetVisible(false)
	r.step(2, 100*time.Millisecond)
	assert.Empty(t, find(r.drain(), events.TimeChange, "player:hero"))
}

func TestApplyRoutesCommands(t *testing.T) {
	cfg := scene()
	cfg.Players = []config.Player{{ID: "hero", Animation: "slide"}}
	cfg.Animations = []config.Animation{{ID: "bg", Animation: "fade"}}
	cfg.Machines = []config.Machine{{ID: "ui", Name: "ui"}}
	cfg.Nodes = []config.Node{{ID: "ball", Name: "ball"}}
	r := newRig(t, cfg)
	r.open(t)
	c := r.core

	apply := func(target, attr string, v any) error {
		return c.Apply(command.Command{Target: target, Attr: attr, Value: v})
	}

	require.NoError(t, apply("player:hero", "speed", "2"))
	require.NoError(t, apply("player:hero", "mode", "ping-pong"))
	require.NoError(t, apply("player:hero", "mix", 0.25))
	st := c.players["hero"].State()
	assert.Equal(t, 2.0, st.Speed)
	assert.Equal(t, player.PingPong, st.Mode)
	assert.Equal(t, 0.25, st.Mix)

	require.NoError(t, apply("player:hero", "animation", 1))
	assert.Equal(t, "fade", c.players["hero"].Name())

	require.NoError(t, apply("animation:bg", "playing", true))
	require.NoError(t, apply("machine:ui", "speed", 0.5))
	assert.Equal(t, 0.5, c.machines["ui"].Speed())

	require.NoError(t, apply("input:ui/level", "value", "3"))
	cell, err := c.input("ui", "level")
	require.NoError(t, err)
	reading, ok := cell.Value()
	require.True(t, ok)
	assert.Equal(t, 3.0, reading.Number)
	require.NoError(t, apply("input:ui/press", "fire", nil))

	require.NoError(t, apply("node:ball", "x", 42))
	x, ok := c.nodes["ball"].Get(node.X)
	require.True(t, ok)
	assert.Equal(t, 42.0, x)

	require.NoError(t, apply("canvas", "fit", "cover"))
	require.NoError(t, apply("canvas", "alignment", "topLeft"))
	require.NoError(t, apply("canvas", "viewbox", "0 0 50% 50%"))
	require.NoError(t, apply("canvas", "width", 200))
	require.NoError(t, apply("player:hero", "animation", "slide"))
	require.NoError(t, apply("canvas", "artboard", "other"))
	assert.Equal(t, "other", c.canvas.Artboard())
	assert.Equal(t, "slide", c.players["hero"].Name())
	r.drain()

	assert.ErrorIs(t, apply("player:ghost", "speed", 1), errUnknown)
	assert.ErrorIs(t, apply("player:hero", "volume", 1), errAttr)
	assert.Error(t, apply("player:hero", "speed", "fast"))
	assert.Error(t, apply("canvas", "fit", "stretch"))
	assert.Error(t, apply("canvas", "width", 0))
	assert.ErrorIs(t, apply("input:ui", "value", 1), command.ErrTarget)
	assert.ErrorIs(t, apply("input:nope/level", "value", 1), errUnknown)
	assert.ErrorIs(t, apply("automation", "start", nil), errUnknown)

	for _, code := range codes(r.drain()) {
		assert.Equal(t, diagnostics.CodeCommand, code)
	}
}

func TestPointerReachesMachine(t *testing.T) {
	cfg := scene()
	cfg.Machines = []config.Machine{{ID: "ui", Name: "ui", Playing: true}}
	r := newRig(t, cfg)
	r.open(t)

	r.step(1, 16*time.Millisecond)
	sc := find(r.drain(), events.StateChange, "machine:ui")
	require.Len(t, sc, 1)
	assert.Equal(t, []string{"idle"}, sc[0].States)

	down := map[string]any{"kind": "mousedown", "x": 12, "y": 50}
	require.NoError(t, r.core.Apply(command.Command{Target: "canvas", Attr: "pointer", Value: down}))
	r.step(1, 16*time.Millisecond)
	sc = find(r.drain(), events.StateChange, "machine:ui")
	require.Len(t, sc, 1)
	assert.Equal(t, []string{"pressed"}, sc[0].States)

	assert.Error(t, r.core.Apply(command.Command{Target: "canvas", Attr: "pointer", Value: "down"}))
}

func TestAutomationDrivesPlayer(t *testing.T) {
	cfg := scene()
	cfg.Players = []config.Player{{ID: "hero", Animation: "slide", Mode: "loop", Playing: true}}
	cfg.Automation = &config.Automation{
		Player:    "hero",
		Autostart: true,
		Program: automation.Program{Clips: []automation.Clip{{
			Name:      "intro",
			Animation: "fade",
			DurationS: 2,
			Params: map[string]automation.Envelope{
				"player:hero/mix": {Keys: []automation.Keyframe{{T: 0, V: 0}, {T: 1, V: 1}}},
			},
		}}},
	}
	r := newRig(t, cfg)
	r.open(t)
	assert.Equal(t, "fade", r.core.players["hero"].Name())

	r.step(2, 500*time.Millisecond)
	assert.InDelta(t, 0.516, r.core.players["hero"].State().Mix, 1e-9)

	require.NoError(t, r.core.Apply(command.Command{Target: "automation", Attr: "pause"}))
	assert.Equal(t, automation.Paused, r.core.auto.State())
	r.step(1, 500*time.Millisecond)
	assert.InDelta(t, 0.516, r.core.players["hero"].State().Mix, 1e-9)
}

func TestNewRejectsBadAutomationTarget(t *testing.T) {
	cfg := scene()
	cfg.Automation = &config.Automation{Program: automation.Program{Clips: []automation.Clip{{
		Name:      "intro",
		DurationS: 1,
		Params:    map[string]automation.Envelope{"player:ghost/mix": {}},
	}}}}
	_, err := New(cfg, sim.New(), frame.NewManualSource(), WithFetcher(demoFetcher))
	assert.ErrorIs(t, err, errUnknown)

	cfg.Automation.Clips[0].Params = map[string]automation.Envelope{"canvas": {}}
	_, err = New(cfg, sim.New(), frame.NewManualSource(), WithFetcher(demoFetcher))
	assert.Error(t, err)
}

type failing struct{ n int }

func (f *failing) Present(image.Image) error {
	f.n++
	return errors.New("spi gone")
}

func TestSurfaceFailureReportedOnce(t *testing.T) {
	cfg := scene()
	cfg.Players = []config.Player{{ID: "hero", Animation: "slide", Playing: true}}
	f := &failing{}
	r := newRig(t, cfg, WithPresenter(f))
	r.open(t)
	r.drain()

	r.step(3, 16*time.Millisecond)
	assert.Equal(t, 3, f.n)
	assert.Equal(t, []string{diagnostics.CodeSurface}, codes(r.drain()))
}

func TestCloseReleasesEngineHandles(t *testing.T) {
	cfg := scene()
	cfg.Players = []config.Player{{ID: "hero", Animation: "slide", Playing: true}}
	cfg.Machines = []config.Machine{{ID: "ui", Name: "ui", Playing: true}}
	cfg.Nodes = []config.Node{{ID: "ball", Name: "ball", Set: map[string]float64{"scale": 2, "scaleX": 3}}}
	r := newRig(t, cfg)
	r.open(t)
	r.step(2, 16*time.Millisecond)
	sx, _ := r.core.nodes["ball"].Get(node.ScaleX)
	assert.Equal(t, 3.0, sx)
	require.NotZero(t, r.rt.Live())

	r.core.Close()
	assert.Eventually(t, func() bool { return r.rt.Live() == 0 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, r.core.Apply(command.Command{Target: "canvas", Attr: "fit", Value: "fill"}), ErrClosed)
	assert.ErrorIs(t, r.core.Open(context.Background()), ErrClosed)
	assert.Contains(t, codes(r.drain()), diagnostics.CodeSceneClosed)
}
