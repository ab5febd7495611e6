package player

import (
	"fmt"
	"math"

	"github.com/coreman2200/rivesched/internal/engine"
)

// Mode selects what happens when playback reaches the work range bounds.
type Mode int

const (
	// ModeNone passes elapsed time through without any boundary handling.
	ModeNone Mode = iota
	Loop
	PingPong
	OneShot
)

func (m Mode) String() string {
	switch m {
	case Loop:
		return "loop"
	case PingPong:
		return "ping-pong"
	case OneShot:
		return "one-shot"
	}
	return ""
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "":
		return ModeNone, nil
	case "loop":
		return Loop, nil
	case "ping-pong", "pingpong":
		return PingPong, nil
	case "one-shot", "oneshot":
		return OneShot, nil
	}
	return ModeNone, fmt.Errorf("unknown mode %q", s)
}

// State is a snapshot of the playback parameters. It is replaced as a whole
// on every change.
type State struct {
	Speed     float64
	Playing   bool
	Mix       float64
	Mode      Mode
	Autoreset bool
}

func DefaultState() State {
	return State{Speed: 1, Mix: 1}
}

// Bounds is the work range in seconds.
type Bounds struct {
	Start, End float64
}

// BoundsOf derives the work range of a, falling back to the full duration
// when the animation has none.
func BoundsOf(a engine.LinearAnimation) Bounds {
	fps := float64(a.FPS())
	if fps <= 0 {
		return Bounds{}
	}
	start, end := 0.0, float64(a.Duration())/fps
	if ws := a.WorkStart(); ws != -1 {
		start = float64(ws) / fps
	}
	if we := a.WorkEnd(); we != -1 {
		end = float64(we) / fps
	}
	return Bounds{Start: round4(start), End: round4(end)}
}

func (b Bounds) clamp(t float64) float64 {
	return math.Max(b.Start, math.Min(b.End, t))
}

// round4 keeps four decimals, so float noise in instance time does not decide
// boundary comparisons.
func round4(v float64) float64 {
	return math.Round((v+math.SmallestNonzeroFloat64)*10000) / 10000
}

// Effects are the notifications one evaluation produces.
type Effects struct {
	Stopped      bool
	SpeedChanged bool
}

// SeekDelta is the delta moving an instance at t to target, clamped into b.
func SeekDelta(b Bounds, t, target float64) float64 {
	return b.clamp(target) - t
}

// Step computes the delta for elapsedMs of playback from time t and the
// state that results from it. It does not check Playing.
func Step(s State, b Bounds, t, elapsedMs float64) (float64, State, Effects) {
	next := s
	var fx Effects
	raw := elapsedMs / 1000 * s.Speed
	if s.Mode == ModeNone {
		return raw, next, fx
	}

	cur := round4(t)
	tentative := round4(t + raw)
	forward := s.Speed > 0
	reverse := s.Speed < 0

	// restart a one-shot that was left sitting on its far bound
	if s.Mode == OneShot && s.Autoreset {
		if forward && cur >= b.End {
			return b.Start - t, next, fx
		}
		if reverse && cur <= b.Start {
			return b.End - t, next, fx
		}
	}

	var delta float64
	switch {
	case tentative < b.Start || (s.Mode == Loop && reverse && tentative <= b.Start):
		switch s.Mode {
		case Loop:
			if reverse {
				// jumps to the end without carrying the overshoot
				delta = b.End - t
			} else {
				delta = b.Start - t
			}
		case PingPong:
			delta = b.Start - tentative
			next.Speed = -s.Speed
			fx.SpeedChanged = true
		case OneShot:
			delta = b.Start - t
			if !s.Autoreset {
				next.Playing = false
				fx.Stopped = true
			}
		}
	case tentative > b.End || (s.Mode == Loop && forward && tentative >= b.End):
		switch s.Mode {
		case Loop:
			if forward {
				delta = b.Start - t
			} else {
				delta = b.End - t
			}
		case PingPong:
			delta = b.End - tentative
			next.Speed = -s.Speed
			fx.SpeedChanged = true
		case OneShot:
			delta = b.End - t
			if !s.Autoreset {
				next.Playing = false
				fx.Stopped = true
			}
		}
	default:
		return raw, next, fx
	}
	return b.clamp(t+delta) - t, next, fx
}
