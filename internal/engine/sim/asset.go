// Package sim is a software engine.Runtime. Its compiled asset format is a
// YAML scene description: artboards holding circle nodes and bones, keyed
// animations and state machines with typed inputs, conditional states and
// pointer listeners. Frames are rasterized into an image.RGBA.
package sim

import (
	"errors"
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
	"gopkg.in/yaml.v3"

	"github.com/coreman2200/rivesched/internal/automation"
	"github.com/coreman2200/rivesched/internal/engine"
)

var ErrInvalidAsset = errors.New("sim: invalid asset")

type Asset struct {
	Artboards []ArtboardDef `yaml:"artboards"`
}

type ArtboardDef struct {
	Name          string            `yaml:"name"`
	Width         float64           `yaml:"width"`
	Height        float64           `yaml:"height"`
	Background    string            `yaml:"background,omitempty"`
	Nodes         []NodeDef         `yaml:"nodes,omitempty"`
	Animations    []AnimationDef    `yaml:"animations,omitempty"`
	StateMachines []StateMachineDef `yaml:"stateMachines,omitempty"`
}

type NodeDef struct {
	Name     string  `yaml:"name"`
	Kind     string  `yaml:"kind,omitempty"` // node, bone or rootBone
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Radius   float64 `yaml:"radius,omitempty"`
	Length   float64 `yaml:"length,omitempty"`
	Rotation float64 `yaml:"rotation,omitempty"`
	Color    string  `yaml:"color,omitempty"`
}

type AnimationDef struct {
	Name     string `yaml:"name"`
	FPS      int    `yaml:"fps"`
	Duration int    `yaml:"duration"`
	// WorkStart and WorkEnd default to -1: no work range.
	WorkStart *int       `yaml:"workStart,omitempty"`
	WorkEnd   *int       `yaml:"workEnd,omitempty"`
	Tracks    []TrackDef `yaml:"tracks,omitempty"`
}

// TrackDef keys one property of one node. Keys are in frames; Value is a
// number, or a hex colour for the color property.
type TrackDef struct {
	Node     string   `yaml:"node"`
	Property string   `yaml:"property"`
	Keys     []KeyDef `yaml:"keys"`
}

type KeyDef struct {
	Frame int     `yaml:"frame"`
	Value float64 `yaml:"value,omitempty"`
	Color string  `yaml:"color,omitempty"`
	Ease  string  `yaml:"ease,omitempty"`
}

type StateMachineDef struct {
	Name      string        `yaml:"name"`
	Inputs    []InputDef    `yaml:"inputs,omitempty"`
	States    []StateDef    `yaml:"states"`
	Listeners []ListenerDef `yaml:"listeners,omitempty"`
}

type InputDef struct {
	Name  string  `yaml:"name"`
	Type  string  `yaml:"type"` // number, boolean or trigger
	Value float64 `yaml:"value,omitempty"`
}

// StateDef is entered when its condition holds; states are tried in order
// and one without a condition always matches.
type StateDef struct {
	Name      string     `yaml:"name"`
	Animation string     `yaml:"animation,omitempty"`
	When      *Condition `yaml:"when,omitempty"`
}

// Condition tests one input. A trigger holds for the advance after it fired.
type Condition struct {
	Input  string   `yaml:"input"`
	Equals *float64 `yaml:"equals,omitempty"`
	Gte    *float64 `yaml:"gte,omitempty"`
	Lt     *float64 `yaml:"lt,omitempty"`
}

// ListenerDef reacts to pointer events hitting a node.
type ListenerDef struct {
	Node  string  `yaml:"node"`
	On    string  `yaml:"on"` // down, up, move, enter or exit
	Input string  `yaml:"input"`
	Value float64 `yaml:"value,omitempty"`
}

var inputTypes = map[string]engine.InputType{
	"number":  engine.NumberInputType,
	"boolean": engine.BooleanInputType,
	"trigger": engine.TriggerInputType,
}

var trackProperties = map[string]bool{
	"x": true, "y": true, "radius": true, "length": true,
	"scaleX": true, "scaleY": true, "rotation": true, "color": true,
}

// Parse decodes and validates an asset.
func Parse(data []byte) (*Asset, error) {
	var a Asset
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAsset, err)
	}
	if len(a.Artboards) == 0 {
		return nil, fmt.Errorf("%w: no artboards", ErrInvalidAsset)
	}
	for i := range a.Artboards {
		if err := a.Artboards[i].validate(); err != nil {
			return nil, fmt.Errorf("%w: artboard %q: %v", ErrInvalidAsset, a.Artboards[i].Name, err)
		}
	}
	return &a, nil
}

func (d *ArtboardDef) validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("size %gx%g", d.Width, d.Height)
	}
	if d.Background != "" {
		if _, err := colorful.Hex(d.Background); err != nil {
			return fmt.Errorf("background: %v", err)
		}
	}
	nodes := map[string]bool{}
	for _, n := range d.Nodes {
		switch n.Kind {
		case "", "node", "bone", "rootBone":
		default:
			return fmt.Errorf("node %q: unknown kind %q", n.Name, n.Kind)
		}
		if n.Color != "" {
			if _, err := colorful.Hex(n.Color); err != nil {
				return fmt.Errorf("node %q: %v", n.Name, err)
			}
		}
		nodes[n.Name] = true
	}
	anims := map[string]bool{}
	for _, an := range d.Animations {
		if an.FPS <= 0 {
			return fmt.Errorf("animation %q: fps %d", an.Name, an.FPS)
		}
		for _, tr := range an.Tracks {
			if !nodes[tr.Node] {
				return fmt.Errorf("animation %q: track on unknown node %q", an.Name, tr.Node)
			}
			if !trackProperties[tr.Property] {
				return fmt.Errorf("animation %q: unknown property %q", an.Name, tr.Property)
			}
			for _, k := range tr.Keys {
				if !automation.ValidEase(k.Ease) {
					return fmt.Errorf("animation %q: unknown ease %q", an.Name, k.Ease)
				}
				if tr.Property == "color" {
					if _, err := colorful.Hex(k.Color); err != nil {
						return fmt.Errorf("animation %q: %v", an.Name, err)
					}
				}
			}
		}
		anims[an.Name] = true
	}
	for _, sm := range d.StateMachines {
		inputs := map[string]bool{}
		for _, in := range sm.Inputs {
			if _, ok := inputTypes[in.Type]; !ok {
				return fmt.Errorf("state machine %q: input %q: unknown type %q", sm.Name, in.Name, in.Type)
			}
			inputs[in.Name] = true
		}
		for _, st := range sm.States {
			if st.Animation != "" && !anims[st.Animation] {
				return fmt.Errorf("state machine %q: state %q: unknown animation %q", sm.Name, st.Name, st.Animation)
			}
			if st.When != nil && !inputs[st.When.Input] {
				return fmt.Errorf("state machine %q: state %q: unknown input %q", sm.Name, st.Name, st.When.Input)
			}
		}
		for _, l := range sm.Listeners {
			if !nodes[l.Node] || !inputs[l.Input] {
				return fmt.Errorf("state machine %q: listener on %q/%q", sm.Name, l.Node, l.Input)
			}
			switch l.On {
			case "down", "up", "move", "enter", "exit":
			default:
				return fmt.Errorf("state machine %q: listener event %q", sm.Name, l.On)
			}
		}
	}
	return nil
}
