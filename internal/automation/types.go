// Package automation plays keyframed programs against the scene: each clip
// selects an animation and drives numeric and boolean targets through
// eased envelopes on every clock tick.
package automation

// Clip holds one animation for DurationS seconds. Param and Bool keys are
// control targets such as "player:hero/mix" or "input:ui/level"; their
// envelopes run on clip-local time.
type Clip struct {
	Name      string              `yaml:"name" json:"name"`
	Animation string              `yaml:"animation,omitempty" json:"animation,omitempty"`
	DurationS float64             `yaml:"durationS" json:"durationS"`
	Params    map[string]Envelope `yaml:"params,omitempty" json:"params,omitempty"`
	Bools     map[string]Envelope `yaml:"bools,omitempty" json:"bools,omitempty"`
}

// Program is a sequence of clips.
type Program struct {
	Loop  bool   `yaml:"loop,omitempty" json:"loop,omitempty"`
	Clips []Clip `yaml:"clips" json:"clips"`
}

type State string

const (
	Idle    State = "idle"
	Running State = "running"
	Paused  State = "paused"
)

// Hooks apply a program to the scene. They are called outside the runner
// lock, in clip order: animation first, then params, then bools.
type Hooks struct {
	SetAnimation func(name string)
	SetParam     func(target string, v float64)
	SetBool      func(target string, b bool)
}
