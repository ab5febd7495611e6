package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/coreman2200/rivesched/internal/attr"
	"github.com/coreman2200/rivesched/internal/command"
	"github.com/coreman2200/rivesched/internal/engine"
	"github.com/coreman2200/rivesched/internal/node"
	"github.com/coreman2200/rivesched/internal/player"
	"github.com/coreman2200/rivesched/internal/pointer"
	"github.com/coreman2200/rivesched/internal/statemachine"
)

var (
	errUnknown = errors.New("unknown target")
	errAttr    = errors.New("unknown attribute")
)

func unknownAttr(cmd command.Command) error {
	return fmt.Errorf("%w %q on %s", errAttr, cmd.Attr, cmd.Target)
}

// Apply sets one attribute of one binding. Rejected commands are also
// reported on the bus as diagnostics.
func (c *Core) Apply(cmd command.Command) error {
	err := c.apply(cmd)
	if err != nil {
		c.reject(cmd, err)
		return err
	}
	c.log.Debug().Stringer("command", cmd).Msg("applied")
	return nil
}

func (c *Core) apply(cmd command.Command) error {
	kind, id, err := cmd.Split()
	if err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	p := c.players[id]
	a := c.animations[id]
	b := c.machines[id]
	t := c.nodes[id]
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	switch kind {
	case "player":
		if p != nil {
			return applyPlayer(p, cmd)
		}
	case "animation":
		if a != nil {
			return applyAnimation(a, cmd)
		}
	case "machine":
		if b != nil {
			return applyMachine(b, cmd)
		}
	case "input":
		machine, name, ok := strings.Cut(id, "/")
		if !ok || name == "" {
			return fmt.Errorf("%w %q: want input:<machine>/<name>", command.ErrTarget, cmd.Target)
		}
		cell, err := c.input(machine, name)
		if err != nil {
			return err
		}
		return applyInput(cell, cmd)
	case "node":
		if t != nil {
			return applyNode(t, cmd)
		}
	case "canvas":
		return c.applyCanvas(cmd)
	case "automation":
		return c.applyAutomation(cmd)
	}
	return fmt.Errorf("%w %q", errUnknown, cmd.Target)
}

func applyPlayer(p *player.Player, cmd command.Command) error {
	switch cmd.Attr {
	case "animation", "index":
		sel, err := selectorValue(cmd.Value)
		if err != nil {
			return err
		}
		return p.Register(sel)
	case "speed":
		return withFloat(cmd.Value, p.SetSpeed)
	case "mix":
		return withFloat(cmd.Value, p.SetMix)
	case "playing":
		return withBool(cmd.Value, p.SetPlaying)
	case "autoreset":
		return withBool(cmd.Value, p.SetAutoreset)
	case "mode":
		s, err := attr.String(cmd.Value)
		if err != nil && !errors.Is(err, attr.ErrAbsent) {
			return err
		}
		m, err := player.ParseMode(s)
		if err != nil {
			return err
		}
		p.SetMode(m)
		return nil
	case "seek", "time":
		return withFloat(cmd.Value, p.Seek)
	}
	return unknownAttr(cmd)
}

func applyAnimation(a *player.Animation, cmd command.Command) error {
	switch cmd.Attr {
	case "animation", "index":
		sel, err := selectorValue(cmd.Value)
		if err != nil {
			return err
		}
		return a.Register(sel)
	case "speed":
		return withFloat(cmd.Value, a.SetSpeed)
	case "mix":
		return withFloat(cmd.Value, a.SetMix)
	case "playing":
		return withBool(cmd.Value, a.SetPlaying)
	}
	return unknownAttr(cmd)
}

func applyMachine(b *statemachine.Bridge, cmd command.Command) error {
	switch cmd.Attr {
	case "name", "index":
		sel, err := selectorValue(cmd.Value)
		if err != nil {
			return err
		}
		if sel.Name != "" {
			return b.Register(statemachine.ByName(sel.Name))
		}
		return b.Register(statemachine.ByIndex(sel.Index))
	case "speed":
		return withFloat(cmd.Value, b.SetSpeed)
	case "playing":
		return withBool(cmd.Value, b.SetPlaying)
	}
	return unknownAttr(cmd)
}

func applyInput(cell *statemachine.Input, cmd command.Command) error {
	switch cmd.Attr {
	case "value":
		return writeInput(cell, cmd.Value)
	case "fire":
		cell.Fire()
		return nil
	}
	return unknownAttr(cmd)
}

// writeInput sends booleans and "true"/"false" as booleans and everything
// else as a number. The cell converts between the two when the machine
// declares the other type.
func writeInput(cell *statemachine.Input, v any) error {
	switch x := v.(type) {
	case bool:
		cell.SetBool(x)
		return nil
	case string:
		if s := strings.TrimSpace(strings.ToLower(x)); s == "true" || s == "false" {
			cell.SetBool(s == "true")
			return nil
		}
	}
	f, err := attr.Float(v)
	if err != nil {
		return err
	}
	cell.SetNumber(f)
	return nil
}

func applyNode(t *node.Transform, cmd command.Command) error {
	if cmd.Attr == "name" {
		name, err := attr.String(cmd.Value)
		if err != nil {
			return err
		}
		return t.Bind(name)
	}
	v, err := attr.Float(cmd.Value)
	if err != nil {
		return err
	}
	return setNode(t, cmd.Attr, v)
}

func setNode(t *node.Transform, prop string, v float64) error {
	if prop == "scale" {
		return t.SetScale(v)
	}
	p, err := node.ParseProperty(prop)
	if err != nil {
		return err
	}
	return t.Set(p, v)
}

func (c *Core) applyCanvas(cmd command.Command) error {
	switch cmd.Attr {
	case "fit":
		s, err := attr.String(cmd.Value)
		if err != nil {
			return err
		}
		f, err := engine.ParseFit(s)
		if err != nil {
			return err
		}
		c.canvas.SetFit(f)
	case "alignment":
		s, err := attr.String(cmd.Value)
		if err != nil {
			return err
		}
		a, err := engine.ParseAlignment(s)
		if err != nil {
			return err
		}
		c.canvas.SetAlignment(a)
	case "viewbox":
		s, err := attr.String(cmd.Value)
		if err != nil {
			return err
		}
		return c.canvas.SetViewbox(s)
	case "artboard":
		s, err := attr.String(cmd.Value)
		if err != nil && !errors.Is(err, attr.ErrAbsent) {
			return err
		}
		return c.canvas.SetArtboard(s)
	case "visible":
		return withBool(cmd.Value, c.SetVisible)
	case "width", "height":
		v, err := attr.Int(cmd.Value)
		if err != nil {
			return err
		}
		return c.resize(cmd.Attr, v)
	case "origin":
		pt, err := pointValue(cmd.Value)
		if err != nil {
			return err
		}
		c.canvas.SetOrigin(pt)
	case "pointer":
		ev, err := pointerValue(cmd.Value)
		if err != nil {
			return err
		}
		return c.canvas.Pointer(ev)
	default:
		return unknownAttr(cmd)
	}
	return nil
}

func (c *Core) resize(dim string, v int) error {
	c.mu.Lock()
	w, h := c.width, c.height
	c.mu.Unlock()
	if dim == "width" {
		w = v
	} else {
		h = v
	}
	if err := c.canvas.SetSize(w, h); err != nil {
		return err
	}
	c.mu.Lock()
	c.width, c.height = w, h
	c.mu.Unlock()
	return nil
}

// selectorValue reads a name, or an index when the value is numeric.
func selectorValue(v any) (player.Selector, error) {
	if s, ok := v.(string); ok {
		if s == "" {
			return player.Selector{}, fmt.Errorf("%w: empty name", attr.ErrInvalid)
		}
		return player.ByName(s), nil
	}
	i, err := attr.Int(v)
	if err != nil {
		return player.Selector{}, err
	}
	if i < 0 {
		return player.Selector{}, fmt.Errorf("%w: negative index %d", attr.ErrInvalid, i)
	}
	return player.ByIndex(i), nil
}

func floatValue(v any) (float64, error) { return attr.Float(v) }
func boolValue(v any) (bool, error)     { return attr.Bool(v) }

func withFloat(v any, set func(float64)) error {
	f, err := attr.Float(v)
	if err != nil {
		return err
	}
	set(f)
	return nil
}

func withBool(v any, set func(bool)) error {
	b, err := attr.Bool(v)
	if err != nil {
		return err
	}
	set(b)
	return nil
}

func pointValue(v any) (pointer.Point, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return pointer.Point{}, fmt.Errorf("%w: want {x, y}, got %T", attr.ErrInvalid, v)
	}
	x, err := attr.Float(m["x"])
	if err != nil {
		return pointer.Point{}, fmt.Errorf("x: %w", err)
	}
	y, err := attr.Float(m["y"])
	if err != nil {
		return pointer.Point{}, fmt.Errorf("y: %w", err)
	}
	return pointer.Point{X: x, Y: y}, nil
}

// pointerValue reads {"kind": "down", "x": 10, "y": 20, "touch": true}.
// A touch event carries its point as the first active and changed touch.
func pointerValue(v any) (pointer.Event, error) {
	pt, err := pointValue(v)
	if err != nil {
		return pointer.Event{}, err
	}
	m := v.(map[string]any)
	s, err := attr.String(m["kind"])
	if err != nil {
		return pointer.Event{}, fmt.Errorf("kind: %w", err)
	}
	k, err := pointer.ParseKind(s)
	if err != nil {
		return pointer.Event{}, err
	}
	ev := pointer.Event{Kind: k, Client: pt}
	if touch, ok := m["touch"].(bool); ok && touch {
		ev.Touch = true
		ev.Touches = []pointer.Point{pt}
		ev.ChangedTouches = []pointer.Point{pt}
	}
	return ev, nil
}
