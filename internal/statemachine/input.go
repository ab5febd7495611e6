package statemachine

import (
	"sync"

	"github.com/coreman2200/rivesched/internal/engine"
)

// Reading is a copy of an input taken under the turn lock, safe to hand to
// hooks.
type Reading struct {
	Name   string
	Type   engine.InputType
	Number float64
	Bool   bool
}

// Value is the number or boolean held by the input, nil for triggers.
func (r Reading) Value() any {
	switch r.Type {
	case engine.NumberInputType:
		return r.Number
	case engine.BooleanInputType:
		return r.Bool
	}
	return nil
}

type InputHooks struct {
	// OnLoad is called when the cell binds to an engine input.
	OnLoad func(r Reading)
	// OnChange is called after every value forwarded or trigger fired.
	OnChange func(r Reading)
}

type value struct {
	num    float64
	flag   bool
	isBool bool
}

// Input is a named cell for one state machine input. Writes made before the
// instance exists are kept and forwarded when it binds; a pending fire is
// replayed once. A name the machine does not declare leaves the cell inert.
type Input struct {
	b     *Bridge
	name  string
	hooks InputHooks

	mu    sync.Mutex
	raw   engine.Input
	inert bool
	last  *value
	fire  bool
}

// Input declares a cell for name. When the machine is already loaded the
// cell binds right away, otherwise at the next load.
func (b *Bridge) Input(name string, hooks InputHooks) *Input {
	c := &Input{b: b, name: name, hooks: hooks}
	var events []func()
	b.host.WithTurn(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.cells = append(b.cells, c)
		if b.status == Ready {
			events = c.resolve(b.inputs)
		}
	})
	for _, fn := range events {
		fn()
	}
	return c
}

func (c *Input) Name() string { return c.name }

// Bound reports whether the cell forwards to a live engine input.
func (c *Input) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raw != nil
}

// Inert reports whether the loaded machine has no input with this name.
func (c *Input) Inert() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inert
}

// resolve runs with the turn lock and the bridge mutex held. It returns the
// hook calls to make once both are released.
func (c *Input) resolve(inputs map[string]engine.Input) []func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	in, ok := inputs[c.name]
	if !ok {
		c.inert, c.raw = true, nil
		c.b.log.Debug().Str("input", c.name).Msg("input not declared by the machine; writes are ignored")
		return nil
	}
	c.raw, c.inert = in, false
	r := read(in)
	events := []func(){func() {
		if c.hooks.OnLoad != nil {
			c.hooks.OnLoad(r)
		}
	}}
	if c.last != nil && c.applyLocked(*c.last) {
		events = append(events, c.changed(read(in)))
	}
	if c.fire {
		c.fire = false
		if t, ok := in.AsTrigger(); ok {
			t.Fire()
			events = append(events, c.changed(read(in)))
		}
	}
	return events
}

func (c *Input) unbind() {
	c.mu.Lock()
	c.raw, c.inert = nil, false
	c.mu.Unlock()
}

func (c *Input) changed(r Reading) func() {
	return func() {
		if c.hooks.OnChange != nil {
			c.hooks.OnChange(r)
		}
	}
}

// SetNumber writes a number input. A boolean input receives v != 0.
func (c *Input) SetNumber(v float64) {
	if !finite(v) {
		c.b.log.Debug().Str("input", c.name).Float64("value", v).Msg("ignoring non-finite input value")
		return
	}
	c.write(value{num: v})
}

// SetBool writes a boolean input. A number input receives 1 or 0.
func (c *Input) SetBool(v bool) {
	c.write(value{flag: v, isBool: true})
}

func (c *Input) write(v value) {
	var r *Reading
	c.b.host.WithTurn(func() {
		if c.b.Status() == Destroyed {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.last = &v
		if c.raw != nil && c.applyLocked(v) {
			rr := read(c.raw)
			r = &rr
		}
	})
	if r != nil {
		c.changed(*r)()
	}
}

// Fire triggers a trigger input. Before the machine loads the fire is kept
// and replayed once on bind; on an inert cell it does nothing.
func (c *Input) Fire() {
	var r *Reading
	c.b.host.WithTurn(func() {
		if c.b.Status() == Destroyed {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		switch {
		case c.raw != nil:
			t, ok := c.raw.AsTrigger()
			if !ok {
				c.b.log.Debug().Str("input", c.name).Msg("fire on a non-trigger input ignored")
				return
			}
			t.Fire()
			rr := read(c.raw)
			r = &rr
		case c.inert:
			c.b.log.Debug().Str("input", c.name).Msg("fire on unresolved input ignored")
		default:
			c.fire = true
		}
	})
	if r != nil {
		c.changed(*r)()
	}
}

// Value reads the bound input, false while unbound.
func (c *Input) Value() (Reading, bool) {
	var (
		r  Reading
		ok bool
	)
	c.b.host.WithTurn(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.raw != nil {
			r, ok = read(c.raw), true
		}
	})
	return r, ok
}

// applyLocked forwards v to the bound input. It reports false for triggers,
// which hold no value.
func (c *Input) applyLocked(v value) bool {
	switch c.raw.Type() {
	case engine.NumberInputType:
		n, _ := c.raw.AsNumber()
		if v.isBool {
			n.SetValue(boolNumber(v.flag))
		} else {
			n.SetValue(v.num)
		}
		return true
	case engine.BooleanInputType:
		bi, _ := c.raw.AsBool()
		if v.isBool {
			bi.SetValue(v.flag)
		} else {
			bi.SetValue(v.num != 0)
		}
		return true
	}
	c.b.log.Debug().Str("input", c.name).Msg("value on a trigger input ignored")
	return false
}

func read(in engine.Input) Reading {
	r := Reading{Name: in.Name(), Type: in.Type()}
	if n, ok := in.AsNumber(); ok {
		r.Number = n.Value()
	}
	if b, ok := in.AsBool(); ok {
		r.Bool = b.Value()
	}
	return r
}

func boolNumber(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
