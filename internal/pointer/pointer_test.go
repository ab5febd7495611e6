package pointer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/rivesched/internal/engine"
	"github.com/coreman2200/rivesched/internal/engine/enginetest"
)

func TestMapInvertsAlignment(t *testing.T) {
	rt := enginetest.NewRuntime()
	m := Mapper{Runtime: rt}
	box := engine.AABB{MaxX: 200, MaxY: 100}
	content := engine.AABB{MaxX: 100, MaxY: 50}

	p, err := m.Map(engine.Fill, engine.Center, box, content, Point{X: 100, Y: 50})
	require.NoError(t, err)
	assert.InDelta(t, 50, p.X, 1e-9)
	assert.InDelta(t, 25, p.Y, 1e-9)

	for _, kind := range []string{"mat", "vec"} {
		assert.Equal(t, 0, rt.Live(kind), "transient %s leaked", kind)
	}
}

func TestMapSingular(t *testing.T) {
	rt := enginetest.NewRuntime()
	m := Mapper{Runtime: rt}
	_, err := m.Map(engine.Fill, engine.Center, engine.AABB{}, engine.AABB{MaxX: 1, MaxY: 1}, Point{})
	assert.ErrorIs(t, err, ErrSingular)
	assert.Equal(t, 0, rt.Live("mat"))
	assert.Equal(t, 0, rt.Live("vec"))
}

func TestClientCoordinates(t *testing.T) {
	cases := []struct {
		name string
		ev   Event
		want Point
		ok   bool
	}{
		{"mouse", Event{Kind: Move, Client: Point{3, 4}}, Point{3, 4}, true},
		{"touch start", Event{Kind: Down, Touch: true, Touches: []Point{{1, 1}, {2, 2}}}, Point{1, 1}, true},
		{"touch move", Event{Kind: Move, Touch: true, Touches: []Point{{5, 6}}}, Point{5, 6}, true},
		{"touch end", Event{Kind: Up, Touch: true, ChangedTouches: []Point{{7, 8}}}, Point{7, 8}, true},
		{"touch end without changes", Event{Kind: Up, Touch: true, Touches: []Point{{7, 8}}}, Point{}, false},
		{"touch without touches", Event{Kind: Down, Touch: true}, Point{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p, ok := c.ev.ClientCoordinates()
			assert.Equal(t, c.ok, ok)
			assert.Equal(t, c.want, p)
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("touchend")
	require.NoError(t, err)
	assert.Equal(t, Up, k)
	_, err = ParseKind("wheel")
	assert.Error(t, err)
}
