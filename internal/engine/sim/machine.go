package sim

import (
	"math"

	"github.com/coreman2200/rivesched/internal/engine"
)

type StateMachine struct {
	def *StateMachineDef
}

func (s *StateMachine) Name() string { return s.def.Name }

// Machine is a running state machine. On every Advance it enters the first
// state whose condition holds, loops that state's animation, then clears
// fired triggers.
type Machine struct {
	handle
	def     *StateMachineDef
	ab      *Artboard
	inputs  []*input
	current int
	t       float64
	changed []string
	hover   map[string]bool
}

func newMachine(rt *Runtime, sm *StateMachine, ab *Artboard) *Machine {
	m := &Machine{def: sm.def, ab: ab, current: -1, hover: map[string]bool{}}
	m.init(rt)
	for _, d := range sm.def.Inputs {
		in := &input{name: d.Name, typ: inputTypes[d.Type]}
		switch in.typ {
		case engine.NumberInputType:
			in.num = d.Value
		case engine.BooleanInputType:
			in.on = d.Value != 0
		}
		m.inputs = append(m.inputs, in)
	}
	return m
}

func (m *Machine) InputCount() int { return len(m.inputs) }

func (m *Machine) Input(i int) engine.Input {
	if i < 0 || i >= len(m.inputs) {
		return nil
	}
	return m.inputs[i]
}

// StateChangedCount reports the states entered during the last Advance.
func (m *Machine) StateChangedCount() int { return len(m.changed) }

func (m *Machine) StateChangedNameByIndex(i int) string {
	if i < 0 || i >= len(m.changed) {
		return ""
	}
	return m.changed[i]
}

// State is the name of the current state, empty before the first Advance.
func (m *Machine) State() string {
	if m.current < 0 {
		return ""
	}
	return m.def.States[m.current].Name
}

func (m *Machine) Advance(ab engine.Artboard, seconds float64) {
	board := m.ab
	if b, ok := ab.(*Artboard); ok {
		board = b
	}
	m.changed = m.changed[:0]
	for i, st := range m.def.States {
		if !m.holds(st.When) {
			continue
		}
		if i != m.current {
			m.current = i
			m.t = 0
			m.changed = append(m.changed, st.Name)
		}
		break
	}
	if m.current >= 0 {
		m.play(board, m.def.States[m.current].Animation, seconds)
	}
	for _, in := range m.inputs {
		in.fired = false
	}
}

// play advances the state's animation, looping over its whole timeline.
func (m *Machine) play(ab *Artboard, name string, seconds float64) {
	if name == "" {
		return
	}
	for i := range ab.def.Animations {
		def := &ab.def.Animations[i]
		if def.Name != name {
			continue
		}
		m.t += seconds
		end := (&LinearAnimation{def: def}).seconds()
		t := m.t
		if end > 0 {
			t = math.Mod(t, end)
			if t < 0 {
				t += end
			}
		}
		apply(def, ab, t, 1)
		return
	}
}

func (m *Machine) holds(c *Condition) bool {
	if c == nil {
		return true
	}
	in := m.input(c.Input)
	if in == nil {
		return false
	}
	var v float64
	switch in.typ {
	case engine.TriggerInputType:
		return in.fired
	case engine.BooleanInputType:
		if in.on {
			v = 1
		}
	default:
		v = in.num
	}
	if c.Equals == nil && c.Gte == nil && c.Lt == nil {
		return v != 0
	}
	if c.Equals != nil && v != *c.Equals {
		return false
	}
	if c.Gte != nil && v < *c.Gte {
		return false
	}
	if c.Lt != nil && v >= *c.Lt {
		return false
	}
	return true
}

func (m *Machine) input(name string) *input {
	for _, in := range m.inputs {
		if in.name == name {
			return in
		}
	}
	return nil
}

func (m *Machine) PointerDown(x, y float64) { m.pointer("down", x, y) }
func (m *Machine) PointerMove(x, y float64) { m.pointer("move", x, y) }
func (m *Machine) PointerUp(x, y float64)   { m.pointer("up", x, y) }

// pointer tracks hover per listened node, firing enter and exit on
// transitions, then dispatches the event itself to nodes under (x,y).
func (m *Machine) pointer(kind string, x, y float64) {
	var nodes []string
	hit := map[string]bool{}
	for _, l := range m.def.Listeners {
		if _, seen := hit[l.Node]; seen {
			continue
		}
		c, ok := m.ab.component(l.Node, "node", "bone", "rootBone")
		hit[l.Node] = ok && c.hit(x, y)
		nodes = append(nodes, l.Node)
	}
	for _, node := range nodes {
		was := m.hover[node]
		m.hover[node] = hit[node]
		switch {
		case hit[node] && !was:
			m.dispatch("enter", node)
		case !hit[node] && was:
			m.dispatch("exit", node)
		}
	}
	for _, node := range nodes {
		if hit[node] {
			m.dispatch(kind, node)
		}
	}
}

func (m *Machine) dispatch(kind, node string) {
	for _, l := range m.def.Listeners {
		if l.On != kind || l.Node != node {
			continue
		}
		in := m.input(l.Input)
		if in == nil {
			continue
		}
		switch in.typ {
		case engine.NumberInputType:
			in.num = l.Value
		case engine.BooleanInputType:
			in.on = l.Value != 0
		case engine.TriggerInputType:
			in.fired = true
		}
	}
}

type input struct {
	name  string
	typ   engine.InputType
	num   float64
	on    bool
	fired bool
}

func (in *input) Name() string           { return in.name }
func (in *input) Type() engine.InputType { return in.typ }

func (in *input) AsNumber() (engine.NumberInput, bool) {
	if in.typ != engine.NumberInputType {
		return nil, false
	}
	return numberInput{in}, true
}

func (in *input) AsBool() (engine.BooleanInput, bool) {
	if in.typ != engine.BooleanInputType {
		return nil, false
	}
	return boolInput{in}, true
}

func (in *input) AsTrigger() (engine.TriggerInput, bool) {
	if in.typ != engine.TriggerInputType {
		return nil, false
	}
	return triggerInput{in}, true
}

type numberInput struct{ *input }

func (n numberInput) Value() float64     { return n.num }
func (n numberInput) SetValue(v float64) { n.num = v }

type boolInput struct{ *input }

func (b boolInput) Value() bool     { return b.on }
func (b boolInput) SetValue(v bool) { b.on = v }

type triggerInput struct{ *input }

func (t triggerInput) Fire() { t.fired = true }
