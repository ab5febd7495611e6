// Package node drives transform properties of named artboard components:
// nodes, bones and root bones.
package node

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/rivesched/internal/canvas"
	"github.com/coreman2200/rivesched/internal/engine"
)

var (
	ErrNotFound    = errors.New("node: component not found")
	ErrUnsupported = errors.New("node: property not supported by component")
	ErrClosed      = errors.New("node: closed")
)

type Kind int

const (
	Node Kind = iota
	Bone
	RootBone
)

func (k Kind) String() string {
	switch k {
	case Node:
		return "node"
	case Bone:
		return "bone"
	case RootBone:
		return "root bone"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "node":
		return Node, nil
	case "bone":
		return Bone, nil
	case "rootBone", "root-bone", "root bone":
		return RootBone, nil
	}
	return Node, fmt.Errorf("unknown component kind %q", s)
}

type Property int

const (
	X Property = iota
	Y
	Length
	ScaleX
	ScaleY
	Rotation
)

// applied in this order when a component binds
var properties = []Property{X, Y, Length, ScaleX, ScaleY, Rotation}

var propertyNames = map[Property]string{
	X:        "x",
	Y:        "y",
	Length:   "length",
	ScaleX:   "scaleX",
	ScaleY:   "scaleY",
	Rotation: "rotation",
}

func (p Property) String() string {
	if s, ok := propertyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Property(%d)", int(p))
}

func ParseProperty(s string) (Property, error) {
	for p, name := range propertyNames {
		if name == s {
			return p, nil
		}
	}
	return X, fmt.Errorf("unknown transform property %q", s)
}

// Supports reports whether components of kind k carry property p.
func (k Kind) Supports(p Property) bool {
	switch p {
	case X, Y:
		return k == Node || k == RootBone
	case Length:
		return k == Bone || k == RootBone
	}
	return true
}

// Transform is bound to one named component of the canvas artboard.
// Values set before the component is found are kept and applied on bind,
// and again on every new artboard.
type Transform struct {
	host canvas.Host
	kind Kind
	log  zerolog.Logger

	mu      sync.Mutex
	name    string
	comp    engine.TransformComponent
	values  map[Property]float64
	closed  bool
	unwatch func()
}

func New(host canvas.Host, kind Kind) *Transform {
	t := &Transform{
		host:   host,
		kind:   kind,
		values: map[Property]float64{},
		log:    log.Logger.With().Str("component", "node").Str("kind", kind.String()).Logger(),
	}
	t.unwatch = host.OnArtboard(t.onArtboard)
	return t
}

// Bind looks the component up by name. Before the canvas is ready the
// lookup waits for the artboard.
func (t *Transform) Bind(name string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.name = name
	t.mu.Unlock()
	if !t.host.Ready() {
		return nil
	}
	return t.bind()
}

func (t *Transform) bind() error {
	err := t.host.Turn(func(pass *canvas.Pass) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed || t.name == "" {
			return nil
		}
		comp, ok := find(pass.Artboard(), t.kind, t.name)
		if !ok {
			t.comp = nil
			return fmt.Errorf("%w: %s %q", ErrNotFound, t.kind, t.name)
		}
		t.comp = comp
		for _, p := range properties {
			if v, ok := t.values[p]; ok {
				apply(comp, p, v)
			}
		}
		return nil
	})
	if err != nil {
		t.log.Error().Err(err).Msg("bind component")
	}
	return err
}

func (t *Transform) onArtboard(ab engine.Artboard) {
	if ab == nil {
		t.host.WithTurn(func() {
			t.mu.Lock()
			t.comp = nil
			t.mu.Unlock()
		})
		return
	}
	_ = t.bind()
}

// Set writes property p. Rotations larger than a full turn in magnitude
// are taken as degrees. Non-finite values are ignored.
func (t *Transform) Set(p Property, v float64) error {
	if !t.kind.Supports(p) {
		return fmt.Errorf("%w: %s on %s", ErrUnsupported, p, t.kind)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		t.log.Debug().Stringer("property", p).Msg("ignoring non-finite value")
		return nil
	}
	if p == Rotation && math.Abs(v) > 2*math.Pi {
		v = v * math.Pi / 180
	}
	var err error
	t.host.WithTurn(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.closed {
			err = ErrClosed
			return
		}
		t.values[p] = v
		if t.comp != nil {
			apply(t.comp, p, v)
		}
	})
	return err
}

// SetScale sets both axes.
func (t *Transform) SetScale(v float64) error {
	if err := t.Set(ScaleX, v); err != nil {
		return err
	}
	return t.Set(ScaleY, v)
}

// Get reads p from the bound component when it exposes it, otherwise the
// last value set.
func (t *Transform) Get(p Property) (float64, bool) {
	var (
		v  float64
		ok bool
	)
	t.host.WithTurn(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.comp != nil {
			if v, ok = read(t.comp, p); ok {
				return
			}
		}
		v, ok = t.values[p]
	})
	return v, ok
}

func (t *Transform) Bound() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.comp != nil
}

func (t *Transform) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.name
}

func (t *Transform) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.comp = nil
	t.mu.Unlock()
	t.unwatch()
}

func find(ab engine.Artboard, k Kind, name string) (engine.TransformComponent, bool) {
	switch k {
	case Bone:
		return ab.Bone(name)
	case RootBone:
		return ab.RootBone(name)
	}
	return ab.Node(name)
}

type movable interface {
	SetX(v float64)
	SetY(v float64)
}

type positioned interface {
	X() float64
	Y() float64
}

type lengthed interface {
	SetLength(v float64)
	Length() float64
}

func apply(c engine.TransformComponent, p Property, v float64) {
	switch p {
	case X:
		if n, ok := c.(movable); ok {
			n.SetX(v)
		}
	case Y:
		if n, ok := c.(movable); ok {
			n.SetY(v)
		}
	case Length:
		if b, ok := c.(lengthed); ok {
			b.SetLength(v)
		}
	case ScaleX:
		c.SetScaleX(v)
	case ScaleY:
		c.SetScaleY(v)
	case Rotation:
		c.SetRotation(v)
	}
}

func read(c engine.TransformComponent, p Property) (float64, bool) {
	switch p {
	case X:
		if n, ok := c.(positioned); ok {
			return n.X(), true
		}
	case Y:
		if n, ok := c.(positioned); ok {
			return n.Y(), true
		}
	case Length:
		if b, ok := c.(lengthed); ok {
			return b.Length(), true
		}
	}
	return 0, false
}
