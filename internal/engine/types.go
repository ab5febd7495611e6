// Package engine declares the contract of the external animation runtime.
//
// Nothing in here rasterizes or parses assets. A Runtime is given (see the
// sim package for the simulated one used by the binary and the tests) and
// every handle it returns must be released with Delete exactly once.
package engine

import "image"

// AABB is an axis aligned box, used both for surface boxes and artboard bounds.
type AABB struct {
	MinX, MinY, MaxX, MaxY float64
}

func (b AABB) Width() float64  { return b.MaxX - b.MinX }
func (b AABB) Height() float64 { return b.MaxY - b.MinY }

// Contains reports whether (x,y) lies inside the box, edges included.
func (b AABB) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Deleter is implemented by every native handle.
type Deleter interface {
	Delete()
}

// Runtime is the loaded engine module.
type Runtime interface {
	// Load parses a compiled asset.
	Load(data []byte) (File, error)
	// NewRenderer creates a renderer targeting a surface of w x h pixels.
	NewRenderer(w, h int) (Renderer, error)

	NewAnimationInstance(a LinearAnimation, ab Artboard) (AnimationInstance, error)
	NewStateMachineInstance(sm StateMachine, ab Artboard) (StateMachineInstance, error)

	// ComputeAlignment returns the forward transform placing content into frame.
	ComputeAlignment(fit Fit, align Alignment, frame, content AABB) Mat2D
	NewMat2D() Mat2D
	NewVec2D(x, y float64) Vec2D
	// MapXY transforms v by m into a new vector.
	MapXY(m Mat2D, v Vec2D) Vec2D
}

type File interface {
	Deleter
	DefaultArtboard() (Artboard, bool)
	ArtboardByName(name string) (Artboard, bool)
	ArtboardCount() int
	ArtboardByIndex(i int) (Artboard, bool)
}

type Artboard interface {
	Deleter
	Name() string
	Bounds() AABB
	Advance(seconds float64)
	Draw(r Renderer)

	AnimationCount() int
	AnimationByName(name string) (LinearAnimation, bool)
	AnimationByIndex(i int) (LinearAnimation, bool)

	StateMachineCount() int
	StateMachineByName(name string) (StateMachine, bool)
	StateMachineByIndex(i int) (StateMachine, bool)

	Node(name string) (Node, bool)
	Bone(name string) (Bone, bool)
	RootBone(name string) (RootBone, bool)
}

// LinearAnimation is the immutable definition of a timeline. Frame based
// values are in frames; WorkStart and WorkEnd are -1 when no work range is set.
type LinearAnimation interface {
	Name() string
	FPS() int
	Duration() int
	WorkStart() int
	WorkEnd() int
}

type AnimationInstance interface {
	Deleter
	// Time is the current position in seconds.
	Time() float64
	Advance(seconds float64)
	Apply(mix float64)
}

type StateMachine interface {
	Name() string
}

type StateMachineInstance interface {
	Deleter
	Advance(ab Artboard, seconds float64)
	InputCount() int
	Input(i int) Input
	StateChangedCount() int
	StateChangedNameByIndex(i int) string
}

// PointerListener is implemented by state machine instances that react to
// pointer events. Coordinates are in artboard space.
type PointerListener interface {
	PointerDown(x, y float64)
	PointerMove(x, y float64)
	PointerUp(x, y float64)
}

type Renderer interface {
	Deleter
	Clear()
	Save()
	Restore()
	Align(fit Fit, align Alignment, frame, content AABB)
}

// Snapshotter is implemented by renderers able to hand out the last frame.
type Snapshotter interface {
	Snapshot() image.Image
}

type Mat2D interface {
	Deleter
	// Invert writes the inverse into out, false when not invertible.
	Invert(out Mat2D) bool
}

type Vec2D interface {
	Deleter
	X() float64
	Y() float64
}

type TransformComponent interface {
	Name() string
	SetScaleX(v float64)
	SetScaleY(v float64)
	SetRotation(rad float64)
}

type Node interface {
	TransformComponent
	X() float64
	Y() float64
	SetX(v float64)
	SetY(v float64)
}

type Bone interface {
	TransformComponent
	Length() float64
	SetLength(v float64)
}

type RootBone interface {
	Bone
	SetX(v float64)
	SetY(v float64)
}
