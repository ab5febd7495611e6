package sim

import (
	"fmt"
	"image/color"
	"math"
	"sync/atomic"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/rivesched/internal/engine"
)

// Runtime implements engine.Runtime. Live counts every handle not yet
// deleted, which is how leaks show up in tests and in the diagnostics.
type Runtime struct {
	log  zerolog.Logger
	live atomic.Int64
}

func New() *Runtime {
	return &Runtime{log: log.Logger.With().Str("component", "sim").Logger()}
}

// Live is the number of handles created and not deleted.
func (r *Runtime) Live() int64 { return r.live.Load() }

type handle struct {
	rt      *Runtime
	deleted atomic.Bool
}

func (h *handle) init(rt *Runtime) {
	h.rt = rt
	rt.live.Add(1)
}

func (h *handle) Delete() {
	if h.deleted.Swap(true) {
		h.rt.log.Warn().Msg("handle deleted twice")
		return
	}
	h.rt.live.Add(-1)
}

func (r *Runtime) Load(data []byte) (engine.File, error) {
	a, err := Parse(data)
	if err != nil {
		return nil, err
	}
	f := &File{asset: a}
	f.init(r)
	r.log.Debug().Int("artboards", len(a.Artboards)).Msg("asset loaded")
	return f, nil
}

func (r *Runtime) NewRenderer(w, h int) (engine.Renderer, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("sim: renderer size %dx%d", w, h)
	}
	return newRenderer(r, w, h), nil
}

func (r *Runtime) NewAnimationInstance(a engine.LinearAnimation, ab engine.Artboard) (engine.AnimationInstance, error) {
	la, ok := a.(*LinearAnimation)
	if !ok {
		return nil, fmt.Errorf("sim: foreign animation %T", a)
	}
	board, ok := ab.(*Artboard)
	if !ok {
		return nil, fmt.Errorf("sim: foreign artboard %T", ab)
	}
	inst := &AnimationInstance{anim: la, ab: board}
	inst.init(r)
	return inst, nil
}

func (r *Runtime) NewStateMachineInstance(sm engine.StateMachine, ab engine.Artboard) (engine.StateMachineInstance, error) {
	def, ok := sm.(*StateMachine)
	if !ok {
		return nil, fmt.Errorf("sim: foreign state machine %T", sm)
	}
	board, ok := ab.(*Artboard)
	if !ok {
		return nil, fmt.Errorf("sim: foreign artboard %T", ab)
	}
	return newMachine(r, def, board), nil
}

func (r *Runtime) ComputeAlignment(fit engine.Fit, align engine.Alignment, frame, content engine.AABB) engine.Mat2D {
	m := &Mat{m: alignTransform(fit, align, frame, content)}
	m.init(r)
	return m
}

func (r *Runtime) NewMat2D() engine.Mat2D {
	m := &Mat{m: identity}
	m.init(r)
	return m
}

func (r *Runtime) NewVec2D(x, y float64) engine.Vec2D {
	v := &Vec{x: x, y: y}
	v.init(r)
	return v
}

func (r *Runtime) MapXY(m engine.Mat2D, v engine.Vec2D) engine.Vec2D {
	x, y := m.(*Mat).m.apply(v.X(), v.Y())
	return r.NewVec2D(x, y)
}

type File struct {
	handle
	asset *Asset
}

func (f *File) newArtboard(d *ArtboardDef) *Artboard {
	ab := &Artboard{def: d}
	ab.init(f.rt)
	ab.background = color.RGBA{A: 0}
	if d.Background != "" {
		c, _ := colorful.Hex(d.Background)
		ab.background = toRGBA(c)
	}
	for _, n := range d.Nodes {
		ab.nodes = append(ab.nodes, newComponent(n))
	}
	return ab
}

func (f *File) DefaultArtboard() (engine.Artboard, bool) {
	return f.newArtboard(&f.asset.Artboards[0]), true
}

func (f *File) ArtboardByName(name string) (engine.Artboard, bool) {
	for i := range f.asset.Artboards {
		if f.asset.Artboards[i].Name == name {
			return f.newArtboard(&f.asset.Artboards[i]), true
		}
	}
	return nil, false
}

func (f *File) ArtboardCount() int { return len(f.asset.Artboards) }

func (f *File) ArtboardByIndex(i int) (engine.Artboard, bool) {
	if i < 0 || i >= len(f.asset.Artboards) {
		return nil, false
	}
	return f.newArtboard(&f.asset.Artboards[i]), true
}

// Artboard is an instance of an artboard definition with its own component
// state.
type Artboard struct {
	handle
	def        *ArtboardDef
	nodes      []*Component
	background color.RGBA
	elapsed    float64
}

func (a *Artboard) Name() string { return a.def.Name }

func (a *Artboard) Bounds() engine.AABB {
	return engine.AABB{MaxX: a.def.Width, MaxY: a.def.Height}
}

// Advance accumulates artboard time; components have no simulation of
// their own.
func (a *Artboard) Advance(seconds float64) { a.elapsed += seconds }

func (a *Artboard) Draw(r engine.Renderer) {
	sr, ok := r.(*Renderer)
	if !ok {
		return
	}
	sr.fillRect(0, 0, a.def.Width, a.def.Height, a.background)
	for _, n := range a.nodes {
		n.draw(sr)
	}
}

func (a *Artboard) AnimationCount() int { return len(a.def.Animations) }

func (a *Artboard) AnimationByName(name string) (engine.LinearAnimation, bool) {
	for i := range a.def.Animations {
		if a.def.Animations[i].Name == name {
			return &LinearAnimation{def: &a.def.Animations[i]}, true
		}
	}
	return nil, false
}

func (a *Artboard) AnimationByIndex(i int) (engine.LinearAnimation, bool) {
	if i < 0 || i >= len(a.def.Animations) {
		return nil, false
	}
	return &LinearAnimation{def: &a.def.Animations[i]}, true
}

func (a *Artboard) StateMachineCount() int { return len(a.def.StateMachines) }

func (a *Artboard) StateMachineByName(name string) (engine.StateMachine, bool) {
	for i := range a.def.StateMachines {
		if a.def.StateMachines[i].Name == name {
			return &StateMachine{def: &a.def.StateMachines[i]}, true
		}
	}
	return nil, false
}

func (a *Artboard) StateMachineByIndex(i int) (engine.StateMachine, bool) {
	if i < 0 || i >= len(a.def.StateMachines) {
		return nil, false
	}
	return &StateMachine{def: &a.def.StateMachines[i]}, true
}

func (a *Artboard) component(name string, kinds ...string) (*Component, bool) {
	for _, n := range a.nodes {
		if n.name != name {
			continue
		}
		for _, k := range kinds {
			if n.kind == k {
				return n, true
			}
		}
	}
	return nil, false
}

func (a *Artboard) Node(name string) (engine.Node, bool) {
	c, ok := a.component(name, "node")
	if !ok {
		return nil, false
	}
	return c, true
}

func (a *Artboard) Bone(name string) (engine.Bone, bool) {
	c, ok := a.component(name, "bone", "rootBone")
	if !ok {
		return nil, false
	}
	return c, true
}

func (a *Artboard) RootBone(name string) (engine.RootBone, bool) {
	c, ok := a.component(name, "rootBone")
	if !ok {
		return nil, false
	}
	return c, true
}

// Component is a node or bone. Nodes draw as filled circles, bones as
// segments of their length along their rotation.
type Component struct {
	name     string
	kind     string
	x, y     float64
	radius   float64
	length   float64
	scaleX   float64
	scaleY   float64
	rotation float64
	color    colorful.Color
}

func newComponent(d NodeDef) *Component {
	c := &Component{
		name:     d.Name,
		kind:     d.Kind,
		x:        d.X,
		y:        d.Y,
		radius:   d.Radius,
		length:   d.Length,
		rotation: d.Rotation,
		scaleX:   1,
		scaleY:   1,
		color:    colorful.Color{R: 1, G: 1, B: 1},
	}
	if c.kind == "" {
		c.kind = "node"
	}
	if d.Color != "" {
		c.color, _ = colorful.Hex(d.Color)
	}
	return c
}

func (c *Component) Name() string            { return c.name }
func (c *Component) X() float64              { return c.x }
func (c *Component) Y() float64              { return c.y }
func (c *Component) SetX(v float64)          { c.x = v }
func (c *Component) SetY(v float64)          { c.y = v }
func (c *Component) Length() float64         { return c.length }
func (c *Component) SetLength(v float64)     { c.length = v }
func (c *Component) SetScaleX(v float64)     { c.scaleX = v }
func (c *Component) SetScaleY(v float64)     { c.scaleY = v }
func (c *Component) SetRotation(rad float64) { c.rotation = rad }

// Color is the current fill.
func (c *Component) Color() colorful.Color { return c.color }

// hit reports whether artboard point (x,y) lies on the node's circle.
func (c *Component) hit(x, y float64) bool {
	r := c.radius * math.Max(math.Abs(c.scaleX), math.Abs(c.scaleY))
	return math.Hypot(x-c.x, y-c.y) <= r
}

func (c *Component) draw(r *Renderer) {
	fill := toRGBA(c.color)
	if c.kind == "node" {
		r.fillEllipse(c.x, c.y, c.radius*c.scaleX, c.radius*c.scaleY, fill)
		return
	}
	l := c.length * c.scaleX
	r.strokeLine(c.x, c.y, c.x+l*math.Cos(c.rotation), c.y+l*math.Sin(c.rotation), fill)
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
