package canvas

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/rivesched/internal/cache"
	"github.com/coreman2200/rivesched/internal/engine"
	"github.com/coreman2200/rivesched/internal/engine/enginetest"
	"github.com/coreman2200/rivesched/internal/frame"
	"github.com/coreman2200/rivesched/internal/pointer"
)

var boards = []enginetest.ArtboardSpec{
	{
		Name:       "main",
		Bounds:     engine.AABB{MaxX: 100, MaxY: 50},
		Animations: []enginetest.AnimationSpec{{Name: "idle", FPS: 60, Duration: 60, WorkStart: -1, WorkEnd: -1}},
	},
	{Name: "alt", Bounds: engine.AABB{MaxX: 10, MaxY: 10}},
}

func newCanvas(t *testing.T, opts Options, options ...Option) (*Canvas, *enginetest.Runtime) {
	t.Helper()
	rt := enginetest.NewRuntime(boards...)
	turn := &sync.Mutex{}
	fc := cache.New(rt, cache.DirFetcher{}, turn, cache.NewReaper(turn, time.Hour))
	if opts.Source.Bytes == nil && opts.Source.Name == "" {
		opts.Source = cache.Inline([]byte("riv"))
	}
	if opts.Width == 0 {
		opts.Width, opts.Height = 200, 100
	}
	c, err := New(rt, fc, turn, opts, options...)
	require.NoError(t, err)
	return c, rt
}

func TestTurnPreconditions(t *testing.T) {
	c, _ := newCanvas(t, Options{})
	err := c.Turn(func(*Pass) error { return nil })
	assert.ErrorIs(t, err, ErrNoArtboard)

	require.NoError(t, c.Open(context.Background()))
	assert.True(t, c.Ready())
	assert.NoError(t, c.Turn(func(*Pass) error { return nil }))

	c.Close()
	assert.ErrorIs(t, c.Turn(func(*Pass) error { return nil }), ErrClosed)
	assert.False(t, c.Ready())
}

func TestNilRuntime(t *testing.T) {
	turn := &sync.Mutex{}
	fc := cache.New(nil, cache.DirFetcher{}, turn, cache.NewReaper(turn, 0))
	c, err := New(nil, fc, turn, Options{Width: 1, Height: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Open(context.Background()), ErrNoRuntime)
	assert.ErrorIs(t, c.Turn(func(*Pass) error { return nil }), ErrNoRuntime)
}

func TestDrawOrder(t *testing.T) {
	c, rt := newCanvas(t, Options{})
	require.NoError(t, c.Open(context.Background()))

	var inst engine.AnimationInstance
	require.NoError(t, c.Turn(func(p *Pass) error {
		a, _ := p.Artboard().AnimationByName("idle")
		var err error
		inst, err = p.Runtime().NewAnimationInstance(a, p.Artboard())
		return err
	}))
	rt.Log.Reset()
	require.NoError(t, c.Turn(func(p *Pass) error {
		p.DrawAnimation(inst, 0.5, 0.25)
		return nil
	}))
	assert.Equal(t, []string{
		"clear", "advance 0.5000", "apply 0.25", "artboard advance 0.5000", "align", "draw",
	}, rt.Log.Calls())
}

func TestSetArtboardNotifiesAroundSwap(t *testing.T) {
	c, rt := newCanvas(t, Options{Artboard: "main"})
	var seen []string
	c.OnArtboard(func(ab engine.Artboard) {
		if ab == nil {
			seen = append(seen, "<nil>")
			return
		}
		seen = append(seen, ab.Name())
	})
	require.NoError(t, c.Open(context.Background()))
	require.NoError(t, c.SetArtboard("alt"))
	assert.Equal(t, []string{"main", "<nil>", "alt"}, seen)
	assert.Equal(t, "alt", c.Artboard())
	assert.Equal(t, 1, rt.Live("artboard"))

	err := c.SetArtboard("missing")
	var lerr *engine.LookupError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, []string{"main", "alt"}, lerr.Available)
	assert.False(t, c.Ready())
}

func TestSetArtboardBeforeOpen(t *testing.T) {
	c, _ := newCanvas(t, Options{})
	require.NoError(t, c.SetArtboard("alt"))
	require.NoError(t, c.Open(context.Background()))
	assert.Equal(t, "alt", c.Artboard())
}

func TestCloseReleasesInOrder(t *testing.T) {
	c, rt := newCanvas(t, Options{})
	var inst engine.AnimationInstance
	c.OnArtboard(func(ab engine.Artboard) {
		if ab == nil && inst != nil {
			c.WithTurn(func() { inst.Delete() })
			inst = nil
		}
	})
	require.NoError(t, c.Open(context.Background()))
	require.NoError(t, c.Turn(func(p *Pass) error {
		a, _ := p.Artboard().AnimationByName("idle")
		inst, _ = p.Runtime().NewAnimationInstance(a, p.Artboard())
		return nil
	}))
	rt.Log.Reset()

	c.Close()
	c.Close()
	assert.Equal(t, []string{"delete animation idle"}, rt.Log.Calls(), "handles wait for the grace period")

	c.cache.Reaper().Flush()
	assert.Equal(t, []string{
		"delete animation idle", "delete artboard main", "delete renderer", "delete file 1",
	}, rt.Log.Calls())
	for _, kind := range []string{"file", "artboard", "animation", "renderer"} {
		assert.Equal(t, 0, rt.Live(kind), kind)
	}
}

func TestLazyWaitsForVisibility(t *testing.T) {
	g := frame.NewGate(frame.NewClock(frame.NewManualSource()), false)
	c, rt := newCanvas(t, Options{Lazy: true}, WithGate(g))

	done := make(chan error, 1)
	go func() { done <- c.Open(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, rt.Loads())

	g.SetVisible(true)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("lazy canvas never opened")
	}
	assert.Equal(t, 1, rt.Loads())
}

func TestLazyCancelled(t *testing.T) {
	g := frame.NewGate(frame.NewClock(frame.NewManualSource()), false)
	c, _ := newCanvas(t, Options{Lazy: true}, WithGate(g))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Open(ctx), context.Canceled)
}

func TestViewbox(t *testing.T) {
	cases := []struct {
		vb   string
		want engine.AABB
	}{
		{"", engine.AABB{MaxX: 200, MaxY: 100}},
		{"0 0 100% 100%", engine.AABB{MaxX: 200, MaxY: 100}},
		{"10% 0 50% 100%", engine.AABB{MinX: -20, MaxX: 400, MaxY: 100}},
		{"0 10 200 50", engine.AABB{MinY: -10, MaxX: 200, MaxY: 200}},
	}
	for _, c := range cases {
		vb, err := ParseViewbox(c.vb)
		require.NoError(t, err, c.vb)
		assert.Equal(t, c.want, vb.Box(200, 100), c.vb)
	}

	for _, bad := range []string{"0 0 100%", "a b c d", "0 0 0 100%"} {
		_, err := ParseViewbox(bad)
		assert.Error(t, err, bad)
	}
}

func TestBoxIsMemoized(t *testing.T) {
	c, _ := newCanvas(t, Options{Viewbox: "0 0 50% 50%"})
	assert.Equal(t, engine.AABB{MaxX: 400, MaxY: 200}, c.Box())
	assert.Len(t, c.boxes, 1)
	c.Box()
	assert.Len(t, c.boxes, 1)
	require.NoError(t, c.SetSize(100, 100))
	assert.Equal(t, engine.AABB{MaxX: 200, MaxY: 200}, c.Box())
	assert.Len(t, c.boxes, 2)
}

func TestPointerDispatch(t *testing.T) {
	c, rt := newCanvas(t, Options{Fit: engine.Fill})
	require.NoError(t, c.Open(context.Background()))
	m := &enginetest.Machine{}
	remove := c.AddPointerListener(m)
	c.SetOrigin(pointer.Point{X: 10, Y: 10})

	require.NoError(t, c.Pointer(pointer.Event{Kind: pointer.Down, Client: pointer.Point{X: 110, Y: 60}}))
	require.NoError(t, c.Pointer(pointer.Event{Kind: pointer.Up, Touch: true}))
	remove()
	require.NoError(t, c.Pointer(pointer.Event{Kind: pointer.Move, Client: pointer.Point{X: 10, Y: 10}}))

	assert.Equal(t, []string{"down 50.0 25.0"}, m.Pointer)
	assert.Equal(t, 0, rt.Live("mat"))
	assert.Equal(t, 0, rt.Live("vec"))
}

type recordPresenter struct{ frames int }

func (r *recordPresenter) Present(image.Image) error { r.frames++; return nil }

type snapRenderer struct{ engine.Renderer }

func (snapRenderer) Snapshot() image.Image { return image.NewRGBA(image.Rect(0, 0, 1, 1)) }

func TestPresenterOnlyForSnapshotters(t *testing.T) {
	p := &recordPresenter{}
	c, _ := newCanvas(t, Options{}, WithPresenter(p))
	require.NoError(t, c.Open(context.Background()))
	require.NoError(t, c.Turn(func(pass *Pass) error { pass.draw(); return nil }))
	assert.Equal(t, 0, p.frames)

	c.mu.Lock()
	c.renderer = snapRenderer{c.renderer}
	c.mu.Unlock()
	require.NoError(t, c.Turn(func(pass *Pass) error { pass.draw(); return nil }))
	assert.Equal(t, 1, p.frames)
}
