// Package pointer converts surface pointer events into artboard coordinates.
package pointer

import (
	"errors"

	"github.com/coreman2200/rivesched/internal/engine"
)

var ErrSingular = errors.New("alignment transform is not invertible")

type Kind int

const (
	Down Kind = iota
	Move
	Up
)

func (k Kind) String() string {
	switch k {
	case Down:
		return "down"
	case Move:
		return "move"
	case Up:
		return "up"
	}
	return "unknown"
}

// ParseKind accepts both mouse and touch event names.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "down", "mousedown", "touchstart", "pointerdown":
		return Down, nil
	case "move", "mousemove", "touchmove", "pointermove":
		return Move, nil
	case "up", "mouseup", "touchend", "pointerup":
		return Up, nil
	}
	return Down, errors.New("unknown pointer event " + s)
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Event is a raw pointer event in client coordinates.
type Event struct {
	Kind           Kind    `json:"kind"`
	Touch          bool    `json:"touch,omitempty"`
	Client         Point   `json:"client"`
	Touches        []Point `json:"touches,omitempty"`
	ChangedTouches []Point `json:"changedTouches,omitempty"`
}

// ClientCoordinates picks the point an event refers to. Touch start and move
// use the first active touch, touch end the first changed touch.
func (e Event) ClientCoordinates() (Point, bool) {
	if !e.Touch {
		return e.Client, true
	}
	if e.Kind == Up {
		if len(e.ChangedTouches) == 0 {
			return Point{}, false
		}
		return e.ChangedTouches[0], true
	}
	if len(e.Touches) == 0 {
		return Point{}, false
	}
	return e.Touches[0], true
}

// Mapper maps surface-local pixels into artboard space.
type Mapper struct {
	Runtime engine.Runtime
}

// Map inverts the forward alignment of content into box and applies it to p.
// Every matrix and vector created here is deleted before returning.
func (m Mapper) Map(fit engine.Fit, align engine.Alignment, box, content engine.AABB, p Point) (Point, error) {
	fwd := m.Runtime.ComputeAlignment(fit, align, box, content)
	defer fwd.Delete()
	inv := m.Runtime.NewMat2D()
	defer inv.Delete()
	if !fwd.Invert(inv) {
		return Point{}, ErrSingular
	}
	in := m.Runtime.NewVec2D(p.X, p.Y)
	defer in.Delete()
	out := m.Runtime.MapXY(inv, in)
	defer out.Delete()
	return Point{X: out.X(), Y: out.Y()}, nil
}

// Dispatch forwards a mapped event to a listener.
func Dispatch(l engine.PointerListener, k Kind, p Point) {
	switch k {
	case Down:
		l.PointerDown(p.X, p.Y)
	case Move:
		l.PointerMove(p.X, p.Y)
	case Up:
		l.PointerUp(p.X, p.Y)
	}
}
