package sim

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/rivesched/internal/engine"
)

const scene = `
artboards:
  - name: main
    width: 100
    height: 100
    background: "#ff0000"
    nodes:
      - {name: ball, x: 10, y: 50, radius: 10, color: "#00ff00"}
      - {name: arm, kind: bone, x: 0, y: 0, length: 20}
      - {name: root, kind: rootBone, x: 0, y: 0, length: 5}
    animations:
      - name: slide
        fps: 10
        duration: 10
        tracks:
          - node: ball
            property: x
            keys: [{frame: 0, value: 0}, {frame: 10, value: 100}]
          - node: ball
            property: y
            keys: [{frame: 0, value: 0, ease: in}, {frame: 10, value: 100}]
      - name: fade
        fps: 10
        duration: 10
        workStart: 2
        workEnd: 8
        tracks:
          - node: ball
            property: color
            keys: [{frame: 0, color: "#000000"}, {frame: 10, color: "#ffffff"}]
    stateMachines:
      - name: ui
        inputs:
          - {name: level, type: number}
          - {name: hover, type: boolean}
          - {name: press, type: trigger}
        states:
          - {name: pressed, when: {input: press}}
          - {name: high, animation: slide, when: {input: level, gte: 5}}
          - {name: idle}
        listeners:
          - {node: ball, on: enter, input: hover, value: 1}
          - {node: ball, on: exit, input: hover, value: 0}
          - {node: ball, on: down, input: press}
  - name: other
    width: 50
    height: 50
`

func load(t *testing.T) (*Runtime, engine.File) {
	t.Helper()
	rt := New()
	f, err := rt.Load([]byte(scene))
	require.NoError(t, err)
	return rt, f
}

func TestAlignTransform(t *testing.T) {
	content := engine.AABB{MaxX: 100, MaxY: 100}

	m := alignTransform(engine.Contain, engine.Center, engine.AABB{MaxX: 200, MaxY: 100}, content)
	x, y := m.apply(0, 0)
	assert.Equal(t, []float64{50, 0}, []float64{x, y})
	x, y = m.apply(100, 100)
	assert.Equal(t, []float64{150, 100}, []float64{x, y})

	m = alignTransform(engine.Fill, engine.TopLeft, engine.AABB{MaxX: 200, MaxY: 100}, content)
	x, y = m.apply(100, 100)
	assert.Equal(t, []float64{200, 100}, []float64{x, y})

	m = alignTransform(engine.NoFit, engine.BottomRight, engine.AABB{MaxX: 200, MaxY: 200}, content)
	x, y = m.apply(0, 0)
	assert.Equal(t, []float64{100, 100}, []float64{x, y})

	assert.Equal(t, identity, alignTransform(engine.Fill, engine.Center, engine.AABB{MaxX: 10, MaxY: 10}, engine.AABB{}))
}

func TestLoadAndLookup(t *testing.T) {
	rt, f := load(t)

	ab, ok := f.DefaultArtboard()
	require.True(t, ok)
	assert.Equal(t, "main", ab.Name())
	assert.Equal(t, engine.AABB{MaxX: 100, MaxY: 100}, ab.Bounds())
	assert.Equal(t, []string{"slide", "fade"}, engine.AnimationNames(ab))
	assert.Equal(t, []string{"ui"}, engine.StateMachineNames(ab))
	assert.Equal(t, []string{"main", "other"}, engine.ArtboardNames(f))

	slide, ok := ab.AnimationByName("slide")
	require.True(t, ok)
	assert.Equal(t, 10, slide.FPS())
	assert.Equal(t, 10, slide.Duration())
	assert.Equal(t, -1, slide.WorkStart())
	assert.Equal(t, -1, slide.WorkEnd())

	fade, ok := ab.AnimationByIndex(1)
	require.True(t, ok)
	assert.Equal(t, 2, fade.WorkStart())
	assert.Equal(t, 8, fade.WorkEnd())

	_, ok = ab.AnimationByName("missing")
	assert.False(t, ok)
	_, ok = ab.StateMachineByIndex(3)
	assert.False(t, ok)
	_, ok = f.ArtboardByName("missing")
	assert.False(t, ok)

	_, ok = ab.Node("ball")
	assert.True(t, ok)
	_, ok = ab.Node("arm")
	assert.False(t, ok)
	_, ok = ab.Bone("arm")
	assert.True(t, ok)
	_, ok = ab.Bone("root")
	assert.True(t, ok)
	_, ok = ab.RootBone("arm")
	assert.False(t, ok)

	other, ok := f.ArtboardByName("other")
	require.True(t, ok)
	assert.Equal(t, 0, other.AnimationCount())

	other.Delete()
	ab.Delete()
	f.Delete()
	assert.Zero(t, rt.Live())
}

func TestParseRejects(t *testing.T) {
	bad := map[string]string{
		"empty":      `artboards: []`,
		"size":       `artboards: [{name: a, width: 0, height: 10}]`,
		"kind":       `artboards: [{name: a, width: 1, height: 1, nodes: [{name: n, kind: mesh}]}]`,
		"color":      `artboards: [{name: a, width: 1, height: 1, background: "red"}]`,
		"track node": `artboards: [{name: a, width: 1, height: 1, animations: [{name: x, fps: 1, tracks: [{node: n, property: x}]}]}]`,
		"ease":       `artboards: [{name: a, width: 1, height: 1, nodes: [{name: n}], animations: [{name: x, fps: 1, tracks: [{node: n, property: x, keys: [{frame: 0, ease: wobble}]}]}]}]`,
		"input type": `artboards: [{name: a, width: 1, height: 1, stateMachines: [{name: m, inputs: [{name: i, type: text}]}]}]`,
		"yaml":       `artboards: {`,
	}
	for name, src := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			assert.ErrorIs(t, err, ErrInvalidAsset)
		})
	}
}

func TestAnimationApply(t *testing.T) {
	rt, f := load(t)
	ab, _ := f.DefaultArtboard()
	slide, _ := ab.AnimationByName("slide")
	inst, err := rt.NewAnimationInstance(slide, ab)
	require.NoError(t, err)
	ball, _ := ab.Node("ball")

	inst.Advance(0.5)
	inst.Apply(0.5)
	assert.InDelta(t, 30, ball.X(), 1e-9)

	inst.Apply(1)
	assert.InDelta(t, 50, ball.X(), 1e-9)
	assert.InDelta(t, 25, ball.Y(), 1e-9)

	inst.Advance(2)
	inst.Apply(1)
	assert.Equal(t, 2.5, inst.Time())
	assert.InDelta(t, 100, ball.X(), 1e-9)

	inst.Advance(-5)
	inst.Apply(1)
	assert.InDelta(t, 0, ball.X(), 1e-9)

	fade, _ := ab.AnimationByName("fade")
	fi, err := rt.NewAnimationInstance(fade, ab)
	require.NoError(t, err)
	fi.Advance(1)
	fi.Apply(1)
	assert.Equal(t, "#ffffff", ab.(*Artboard).nodes[0].Color().Hex())

	inst.Delete()
	fi.Delete()
	ab.Delete()
	f.Delete()
	assert.Zero(t, rt.Live())
}

func TestStateMachineStates(t *testing.T) {
	rt, f := load(t)
	ab, _ := f.DefaultArtboard()
	sm, _ := ab.StateMachineByName("ui")
	inst, err := rt.NewStateMachineInstance(sm, ab)
	require.NoError(t, err)
	m := inst.(*Machine)

	changed := func() []string {
		var out []string
		for i := 0; i < inst.StateChangedCount(); i++ {
			out = append(out, inst.StateChangedNameByIndex(i))
		}
		return out
	}

	require.Equal(t, 3, inst.InputCount())
	level, ok := inst.Input(0).AsNumber()
	require.True(t, ok)
	_, ok = inst.Input(0).AsBool()
	assert.False(t, ok)
	press, ok := inst.Input(2).AsTrigger()
	require.True(t, ok)
	assert.Equal(t, engine.BooleanInputType, inst.Input(1).Type())
	assert.Nil(t, inst.Input(3))

	inst.Advance(ab, 0.016)
	assert.Equal(t, []string{"idle"}, changed())

	level.SetValue(7)
	inst.Advance(ab, 1.5)
	assert.Equal(t, []string{"high"}, changed())
	ball, _ := ab.Node("ball")
	assert.InDelta(t, 50, ball.X(), 1e-9)

	inst.Advance(ab, 0.1)
	assert.Empty(t, changed())

	press.Fire()
	inst.Advance(ab, 0.1)
	assert.Equal(t, []string{"pressed"}, changed())
	inst.Advance(ab, 0.1)
	assert.Equal(t, []string{"high"}, changed())
	assert.Equal(t, "high", m.State())

	inst.Delete()
	ab.Delete()
	f.Delete()
	assert.Zero(t, rt.Live())
}

func TestStateMachinePointer(t *testing.T) {
	rt, f := load(t)
	ab, _ := f.DefaultArtboard()
	sm, _ := ab.StateMachineByName("ui")
	inst, err := rt.NewStateMachineInstance(sm, ab)
	require.NoError(t, err)
	pl, ok := inst.(engine.PointerListener)
	require.True(t, ok)
	hover, _ := inst.Input(1).AsBool()

	pl.PointerMove(12, 50)
	assert.True(t, hover.Value())

	pl.PointerDown(12, 50)
	inst.Advance(ab, 0.016)
	assert.Equal(t, "pressed", inst.(*Machine).State())

	pl.PointerMove(90, 90)
	assert.False(t, hover.Value())

	pl.PointerDown(90, 90)
	inst.Advance(ab, 0.016)
	assert.Equal(t, "idle", inst.(*Machine).State())
}

func TestRendererDraw(t *testing.T) {
	rt, f := load(t)
	_, err := rt.NewRenderer(0, 10)
	assert.Error(t, err)

	r, err := rt.NewRenderer(200, 200)
	require.NoError(t, err)
	ab, _ := f.DefaultArtboard()

	r.Clear()
	r.Save()
	r.Align(engine.Fill, engine.Center, engine.AABB{MaxX: 200, MaxY: 200}, ab.Bounds())
	ab.Draw(r)
	r.Restore()

	img := r.(engine.Snapshotter).Snapshot()
	assert.Equal(t, color.RGBA{G: 255, A: 255}, img.At(20, 100))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.At(190, 10))

	r.Clear()
	assert.Equal(t, color.RGBA{}, r.(engine.Snapshotter).Snapshot().At(190, 10))
	assert.Equal(t, color.RGBA{G: 255, A: 255}, img.At(20, 100), "snapshot is a copy")

	r.Delete()
	ab.Delete()
	f.Delete()
	assert.Zero(t, rt.Live())
}

func TestMatrices(t *testing.T) {
	rt := New()
	fwd := rt.ComputeAlignment(engine.Fill, engine.Center, engine.AABB{MaxX: 200, MaxY: 200}, engine.AABB{MaxX: 100, MaxY: 100})
	inv := rt.NewMat2D()
	require.True(t, fwd.Invert(inv))

	v := rt.NewVec2D(100, 40)
	out := rt.MapXY(inv, v)
	assert.InDelta(t, 50, out.X(), 1e-9)
	assert.InDelta(t, 20, out.Y(), 1e-9)

	flat := rt.ComputeAlignment(engine.Fill, engine.Center, engine.AABB{}, engine.AABB{MaxX: 1, MaxY: 1})
	assert.False(t, flat.Invert(inv))

	for _, d := range []engine.Deleter{fwd, inv, v, out, flat} {
		d.Delete()
	}
	out.Delete()
	assert.Zero(t, rt.Live())
}
