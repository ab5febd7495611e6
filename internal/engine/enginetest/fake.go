// Package enginetest provides an in-memory engine that records every call,
// for unit tests of the scheduler packages.
package enginetest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/coreman2200/rivesched/internal/engine"
)

// Log collects calls made against fake handles, in order.
type Log struct {
	mu    sync.Mutex
	calls []string
}

func (l *Log) add(format string, args ...any) {
	l.mu.Lock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (l *Log) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// Count returns how many recorded calls equal call.
func (l *Log) Count(call string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (l *Log) Reset() {
	l.mu.Lock()
	l.calls = nil
	l.mu.Unlock()
}

// AnimationSpec describes one fake timeline.
type AnimationSpec struct {
	Name      string
	FPS       int
	Duration  int
	WorkStart int
	WorkEnd   int
}

// MachineSpec describes one fake state machine.
type MachineSpec struct {
	Name   string
	Inputs []InputSpec
}

type InputSpec struct {
	Name string
	Type engine.InputType
}

// ArtboardSpec describes one fake artboard.
type ArtboardSpec struct {
	Name       string
	Bounds     engine.AABB
	Animations []AnimationSpec
	Machines   []MachineSpec
	Nodes      []string
}

// Runtime is a recording engine.Runtime. Files loaded from any bytes expose
// the configured artboards.
type Runtime struct {
	Log       *Log
	Artboards []ArtboardSpec
	// LoadErr, when set, is returned by Load.
	LoadErr error

	mu      sync.Mutex
	loads   int
	live    map[string]int
	Machine *Machine // last created state machine instance
}

func NewRuntime(boards ...ArtboardSpec) *Runtime {
	return &Runtime{Log: &Log{}, Artboards: boards, live: map[string]int{}}
}

func (r *Runtime) track(kind string, d int) {
	r.mu.Lock()
	r.live[kind] += d
	r.mu.Unlock()
}

// Live returns the number of undeleted handles of a kind ("file",
// "artboard", "animation", "machine", "renderer", "mat", "vec").
func (r *Runtime) Live(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live[kind]
}

// Loads returns how many times Load was called.
func (r *Runtime) Loads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads
}

func (r *Runtime) Load(data []byte) (engine.File, error) {
	r.mu.Lock()
	r.loads++
	n := r.loads
	r.mu.Unlock()
	if r.LoadErr != nil {
		return nil, r.LoadErr
	}
	r.track("file", 1)
	r.Log.add("load %d", len(data))
	return &File{rt: r, id: n}, nil
}

func (r *Runtime) NewRenderer(w, h int) (engine.Renderer, error) {
	if w <= 0 || h <= 0 {
		return nil, errors.New("enginetest: empty surface")
	}
	r.track("renderer", 1)
	return &Renderer{rt: r}, nil
}

func (r *Runtime) NewAnimationInstance(a engine.LinearAnimation, ab engine.Artboard) (engine.AnimationInstance, error) {
	spec := a.(*Animation).spec
	r.track("animation", 1)
	r.Log.add("new animation %s", spec.Name)
	return &AnimationInstance{rt: r, name: spec.Name}, nil
}

func (r *Runtime) NewStateMachineInstance(sm engine.StateMachine, ab engine.Artboard) (engine.StateMachineInstance, error) {
	spec := sm.(*StateMachine).spec
	m := &Machine{rt: r, name: spec.Name}
	for _, in := range spec.Inputs {
		m.inputs = append(m.inputs, &Input{m: m, name: in.Name, typ: in.Type})
	}
	r.track("machine", 1)
	r.Log.add("new machine %s", spec.Name)
	r.mu.Lock()
	r.Machine = m
	r.mu.Unlock()
	return m, nil
}

func (r *Runtime) ComputeAlignment(fit engine.Fit, align engine.Alignment, frame, content engine.AABB) engine.Mat2D {
	r.track("mat", 1)
	sx := frame.Width() / content.Width()
	sy := frame.Height() / content.Height()
	return &Mat{rt: r, m: [6]float64{sx, 0, 0, sy, frame.MinX - content.MinX*sx, frame.MinY - content.MinY*sy}}
}

func (r *Runtime) NewMat2D() engine.Mat2D {
	r.track("mat", 1)
	return &Mat{rt: r}
}

func (r *Runtime) NewVec2D(x, y float64) engine.Vec2D {
	r.track("vec", 1)
	return &Vec{rt: r, x: x, y: y}
}

func (r *Runtime) MapXY(m engine.Mat2D, v engine.Vec2D) engine.Vec2D {
	mm := m.(*Mat).m
	x, y := v.X(), v.Y()
	return r.NewVec2D(mm[0]*x+mm[2]*y+mm[4], mm[1]*x+mm[3]*y+mm[5])
}

type File struct {
	rt *Runtime
	id int
}

func (f *File) Delete() {
	f.rt.track("file", -1)
	f.rt.Log.add("delete file %d", f.id)
}

func (f *File) artboard(spec ArtboardSpec) *Artboard {
	f.rt.track("artboard", 1)
	f.rt.Log.add("new artboard %s", spec.Name)
	return &Artboard{rt: f.rt, spec: spec}
}

func (f *File) DefaultArtboard() (engine.Artboard, bool) {
	if len(f.rt.Artboards) == 0 {
		return nil, false
	}
	return f.artboard(f.rt.Artboards[0]), true
}

func (f *File) ArtboardByName(name string) (engine.Artboard, bool) {
	for _, s := range f.rt.Artboards {
		if s.Name == name {
			return f.artboard(s), true
		}
	}
	return nil, false
}

func (f *File) ArtboardCount() int { return len(f.rt.Artboards) }

func (f *File) ArtboardByIndex(i int) (engine.Artboard, bool) {
	if i < 0 || i >= len(f.rt.Artboards) {
		return nil, false
	}
	return f.artboard(f.rt.Artboards[i]), true
}

type Artboard struct {
	rt   *Runtime
	spec ArtboardSpec
}

func (a *Artboard) Delete() {
	a.rt.track("artboard", -1)
	a.rt.Log.add("delete artboard %s", a.spec.Name)
}

func (a *Artboard) Name() string        { return a.spec.Name }
func (a *Artboard) Bounds() engine.AABB { return a.spec.Bounds }

func (a *Artboard) Advance(seconds float64) { a.rt.Log.add("artboard advance %.4f", seconds) }
func (a *Artboard) Draw(engine.Renderer)     { a.rt.Log.add("draw") }

func (a *Artboard) AnimationCount() int { return len(a.spec.Animations) }

func (a *Artboard) AnimationByName(name string) (engine.LinearAnimation, bool) {
	for _, s := range a.spec.Animations {
		if s.Name == name {
			return &Animation{spec: s}, true
		}
	}
	return nil, false
}

func (a *Artboard) AnimationByIndex(i int) (engine.LinearAnimation, bool) {
	if i < 0 || i >= len(a.spec.Animations) {
		return nil, false
	}
	return &Animation{spec: a.spec.Animations[i]}, true
}

func (a *Artboard) StateMachineCount() int { return len(a.spec.Machines) }

func (a *Artboard) StateMachineByName(name string) (engine.StateMachine, bool) {
	for _, s := range a.spec.Machines {
		if s.Name == name {
			return &StateMachine{spec: s}, true
		}
	}
	return nil, false
}

func (a *Artboard) StateMachineByIndex(i int) (engine.StateMachine, bool) {
	if i < 0 || i >= len(a.spec.Machines) {
		return nil, false
	}
	return &StateMachine{spec: a.spec.Machines[i]}, true
}

func (a *Artboard) component(name string) (*Component, bool) {
	for _, n := range a.spec.Nodes {
		if n == name {
			return &Component{rt: a.rt, name: name}, true
		}
	}
	return nil, false
}

func (a *Artboard) Node(name string) (engine.Node, bool) {
	c, ok := a.component(name)
	if !ok {
		return nil, false
	}
	return c, true
}

func (a *Artboard) Bone(name string) (engine.Bone, bool) {
	c, ok := a.component(name)
	if !ok {
		return nil, false
	}
	return c, true
}

func (a *Artboard) RootBone(name string) (engine.RootBone, bool) {
	c, ok := a.component(name)
	if !ok {
		return nil, false
	}
	return c, true
}

type Animation struct{ spec AnimationSpec }

// NewAnimation returns a standalone timeline definition.
func NewAnimation(spec AnimationSpec) *Animation { return &Animation{spec: spec} }

func (a *Animation) Name() string   { return a.spec.Name }
func (a *Animation) FPS() int       { return a.spec.FPS }
func (a *Animation) Duration() int  { return a.spec.Duration }
func (a *Animation) WorkStart() int { return a.spec.WorkStart }
func (a *Animation) WorkEnd() int   { return a.spec.WorkEnd }

// AnimationInstance keeps time as the plain sum of advances.
type AnimationInstance struct {
	rt   *Runtime
	name string
	t    float64
}

func (i *AnimationInstance) Delete() {
	i.rt.track("animation", -1)
	i.rt.Log.add("delete animation %s", i.name)
}

func (i *AnimationInstance) Time() float64 { return i.t }

func (i *AnimationInstance) Advance(seconds float64) {
	i.t += seconds
	i.rt.Log.add("advance %.4f", seconds)
}

func (i *AnimationInstance) Apply(mix float64) { i.rt.Log.add("apply %.2f", mix) }

type StateMachine struct{ spec MachineSpec }

func (s *StateMachine) Name() string { return s.spec.Name }

// Machine is a fake state machine instance. Tests queue state changes with
// QueueStates; they are reported after the next Advance.
type Machine struct {
	rt      *Runtime
	name    string
	inputs  []*Input
	queued  []string
	changed []string
	Pointer []string
}

func (m *Machine) Delete() {
	m.rt.track("machine", -1)
	m.rt.Log.add("delete machine %s", m.name)
}

func (m *Machine) QueueStates(names ...string) { m.queued = append(m.queued, names...) }

func (m *Machine) Advance(ab engine.Artboard, seconds float64) {
	m.changed, m.queued = m.queued, nil
	m.rt.Log.add("machine advance %.4f", seconds)
}

func (m *Machine) InputCount() int             { return len(m.inputs) }
func (m *Machine) Input(i int) engine.Input    { return m.inputs[i] }
func (m *Machine) StateChangedCount() int      { return len(m.changed) }
func (m *Machine) StateChangedNameByIndex(i int) string { return m.changed[i] }

func (m *Machine) PointerDown(x, y float64) { m.Pointer = append(m.Pointer, fmt.Sprintf("down %.1f %.1f", x, y)) }
func (m *Machine) PointerMove(x, y float64) { m.Pointer = append(m.Pointer, fmt.Sprintf("move %.1f %.1f", x, y)) }
func (m *Machine) PointerUp(x, y float64)   { m.Pointer = append(m.Pointer, fmt.Sprintf("up %.1f %.1f", x, y)) }

// Input implements the number, boolean and trigger interfaces at once; the
// bridge only uses the one matching Type.
type Input struct {
	m     *Machine
	name  string
	typ   engine.InputType
	num   float64
	flag  bool
	Fired int
}

func (i *Input) Name() string           { return i.name }
func (i *Input) Type() engine.InputType { return i.typ }

// InputByName returns the fake input of the machine, nil when missing.
func (m *Machine) InputByName(name string) *Input {
	for _, in := range m.inputs {
		if in.name == name {
			return in
		}
	}
	return nil
}

type numberInput struct{ *Input }

func (n numberInput) Value() float64     { return n.num }
func (n numberInput) SetValue(v float64) { n.num = v; n.m.rt.Log.add("set %s %g", n.name, v) }

type boolInput struct{ *Input }

func (b boolInput) Value() bool     { return b.flag }
func (b boolInput) SetValue(v bool) { b.flag = v; b.m.rt.Log.add("set %s %t", b.name, v) }

func (i *Input) Fire() {
	i.Fired++
	i.m.rt.Log.add("fire %s", i.name)
}

func (i *Input) AsNumber() (engine.NumberInput, bool) {
	return numberInput{i}, i.typ == engine.NumberInputType
}

func (i *Input) AsBool() (engine.BooleanInput, bool) {
	return boolInput{i}, i.typ == engine.BooleanInputType
}

func (i *Input) AsTrigger() (engine.TriggerInput, bool) {
	return i, i.typ == engine.TriggerInputType
}

func (i *Input) NumberValue() float64 { return i.num }
func (i *Input) BoolValue() bool      { return i.flag }

type Renderer struct{ rt *Runtime }

func (r *Renderer) Delete() {
	r.rt.track("renderer", -1)
	r.rt.Log.add("delete renderer")
}
func (r *Renderer) Clear()   { r.rt.Log.add("clear") }
func (r *Renderer) Save()    {}
func (r *Renderer) Restore() {}
func (r *Renderer) Align(engine.Fit, engine.Alignment, engine.AABB, engine.AABB) {
	r.rt.Log.add("align")
}

type Mat struct {
	rt *Runtime
	m  [6]float64
}

func (m *Mat) Delete() { m.rt.track("mat", -1) }

func (m *Mat) Invert(out engine.Mat2D) bool {
	a := m.m
	det := a[0]*a[3] - a[1]*a[2]
	if det == 0 {
		return false
	}
	inv := 1 / det
	o := out.(*Mat)
	o.m = [6]float64{
		a[3] * inv, -a[1] * inv,
		-a[2] * inv, a[0] * inv,
		(a[2]*a[5] - a[3]*a[4]) * inv,
		(a[1]*a[4] - a[0]*a[5]) * inv,
	}
	return true
}

type Vec struct {
	rt   *Runtime
	x, y float64
}

func (v *Vec) Delete()    { v.rt.track("vec", -1) }
func (v *Vec) X() float64 { return v.x }
func (v *Vec) Y() float64 { return v.y }

type Component struct {
	rt   *Runtime
	name string
	x, y float64
	len  float64
}

func (c *Component) Name() string          { return c.name }
func (c *Component) X() float64            { return c.x }
func (c *Component) Y() float64            { return c.y }
func (c *Component) SetX(v float64)        { c.x = v; c.rt.Log.add("%s x %g", c.name, v) }
func (c *Component) SetY(v float64)        { c.y = v; c.rt.Log.add("%s y %g", c.name, v) }
func (c *Component) Length() float64       { return c.len }
func (c *Component) SetLength(v float64)   { c.len = v; c.rt.Log.add("%s length %g", c.name, v) }
func (c *Component) SetScaleX(v float64)   { c.rt.Log.add("%s scaleX %g", c.name, v) }
func (c *Component) SetScaleY(v float64)   { c.rt.Log.add("%s scaleY %g", c.name, v) }
func (c *Component) SetRotation(v float64) { c.rt.Log.add("%s rotation %.4f", c.name, v) }
