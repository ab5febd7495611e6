package engine

import "fmt"

// Fit decides how artboard content is scaled into the surface box.
type Fit int

const (
	Contain Fit = iota
	Cover
	Fill
	FitWidth
	FitHeight
	NoFit
	ScaleDown
)

var fitNames = map[Fit]string{
	Contain:   "contain",
	Cover:     "cover",
	Fill:      "fill",
	FitWidth:  "fitWidth",
	FitHeight: "fitHeight",
	NoFit:     "none",
	ScaleDown: "scaleDown",
}

func (f Fit) String() string {
	if s, ok := fitNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Fit(%d)", int(f))
}

// ParseFit accepts the host attribute spelling ("contain", "fitWidth", ...).
// An empty string means contain.
func ParseFit(s string) (Fit, error) {
	if s == "" {
		return Contain, nil
	}
	for f, name := range fitNames {
		if name == s {
			return f, nil
		}
	}
	return Contain, fmt.Errorf("unknown fit %q", s)
}

// Alignment anchors content inside the surface box. X and Y are in {-1,0,1}.
type Alignment struct {
	X, Y float64
}

var (
	TopLeft      = Alignment{-1, -1}
	TopCenter    = Alignment{0, -1}
	TopRight     = Alignment{1, -1}
	CenterLeft   = Alignment{-1, 0}
	Center       = Alignment{0, 0}
	CenterRight  = Alignment{1, 0}
	BottomLeft   = Alignment{-1, 1}
	BottomCenter = Alignment{0, 1}
	BottomRight  = Alignment{1, 1}
)

var alignmentNames = map[string]Alignment{
	"topLeft":      TopLeft,
	"topCenter":    TopCenter,
	"topRight":     TopRight,
	"centerLeft":   CenterLeft,
	"center":       Center,
	"centerRight":  CenterRight,
	"bottomLeft":   BottomLeft,
	"bottomCenter": BottomCenter,
	"bottomRight":  BottomRight,
}

func (a Alignment) String() string {
	for name, v := range alignmentNames {
		if v == a {
			return name
		}
	}
	return fmt.Sprintf("Alignment(%g,%g)", a.X, a.Y)
}

// ParseAlignment accepts the nine anchor names. An empty string means center.
func ParseAlignment(s string) (Alignment, error) {
	if s == "" {
		return Center, nil
	}
	if a, ok := alignmentNames[s]; ok {
		return a, nil
	}
	return Center, fmt.Errorf("unknown alignment %q", s)
}

// InputType is the engine reported type tag of a state machine input.
type InputType uint16

const (
	NumberInputType  InputType = 56
	TriggerInputType InputType = 58
	BooleanInputType InputType = 59
)

// Input is a raw state machine input as enumerated by the engine. The As
// conversions succeed only for the view matching Type.
type Input interface {
	Name() string
	Type() InputType
	AsNumber() (NumberInput, bool)
	AsBool() (BooleanInput, bool)
	AsTrigger() (TriggerInput, bool)
}

type NumberInput interface {
	Name() string
	Value() float64
	SetValue(v float64)
}

type BooleanInput interface {
	Name() string
	Value() bool
	SetValue(v bool)
}

type TriggerInput interface {
	Name() string
	Fire()
}
