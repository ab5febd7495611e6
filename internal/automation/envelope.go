package automation

import (
	"fmt"
	"sort"

	"github.com/fogleman/ease"
)

// Keyframe is a value at time T (seconds). Ease shapes the segment that
// starts at this keyframe.
type Keyframe struct {
	T    float64 `yaml:"t" json:"t"`
	V    float64 `yaml:"v" json:"v"`
	Ease string  `yaml:"ease,omitempty" json:"ease,omitempty"`
}

// Envelope interpolates between keyframes sorted by T.
type Envelope struct {
	Keys []Keyframe `yaml:"keys" json:"keys"`
}

var easings = map[string]func(float64) float64{
	"":       ease.Linear,
	"linear": ease.Linear,
	"in":     ease.InQuad,
	"out":    ease.OutQuad,
	"smooth": ease.InOutQuad,
	"cubic":  ease.InOutCubic,
	"sine":   ease.InOutSine,
	"bounce": ease.OutBounce,
}

// ValidEase reports whether name is a known easing.
func ValidEase(name string) bool {
	_, ok := easings[name]
	return ok
}

func easeApply(kind string, x float64) float64 {
	if fn, ok := easings[kind]; ok {
		return fn(x)
	}
	return x
}

// Normalize sorts the keys and rejects unknown easings.
func (e *Envelope) Normalize() error {
	for _, k := range e.Keys {
		if !ValidEase(k.Ease) {
			return fmt.Errorf("unknown ease %q at t=%g", k.Ease, k.T)
		}
	}
	sort.SliceStable(e.Keys, func(i, j int) bool { return e.Keys[i].T < e.Keys[j].T })
	return nil
}

// Eval returns the value at t seconds: 0 without keys, the first or last
// value outside the keyed range.
func (e Envelope) Eval(t float64) float64 {
	n := len(e.Keys)
	if n == 0 {
		return 0
	}
	if t <= e.Keys[0].T {
		return e.Keys[0].V
	}
	if t >= e.Keys[n-1].T {
		return e.Keys[n-1].V
	}
	for i := 0; i < n-1; i++ {
		a, b := e.Keys[i], e.Keys[i+1]
		if t < a.T || t > b.T {
			continue
		}
		den := b.T - a.T
		if den <= 0 {
			return b.V
		}
		u := clamp01((t - a.T) / den)
		return a.V + (b.V-a.V)*easeApply(a.Ease, u)
	}
	return e.Keys[n-1].V
}

// BoolEval thresholds the envelope at 0.5.
func (e Envelope) BoolEval(t float64) bool {
	return e.Eval(t) >= 0.5
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
