package automation

import (
	"math"
	"testing"
)

func TestEnvelopeEval(t *testing.T) {
	env := Envelope{Keys: []Keyframe{
		{T: 0, V: 0, Ease: "linear"},
		{T: 10, V: 10, Ease: "linear"},
	}}
	if v := env.Eval(-1); v != 0 {
		t.Fatalf("expected 0 before start, got %v", v)
	}
	if v := env.Eval(5); v != 5 {
		t.Fatalf("expected 5 at t=5, got %v", v)
	}
	if v := env.Eval(11); v != 10 {
		t.Fatalf("expected 10 after end, got %v", v)
	}
	if v := (Envelope{}).Eval(3); v != 0 {
		t.Fatalf("expected 0 without keys, got %v", v)
	}
}

func TestEnvelopeEasing(t *testing.T) {
	smooth := Envelope{Keys: []Keyframe{{T: 0, V: 0, Ease: "smooth"}, {T: 1, V: 1}}}
	if v := smooth.Eval(0.5); math.Abs(v-0.5) > 1e-9 {
		t.Fatalf("smooth midpoint should be 0.5, got %v", v)
	}
	if v := smooth.Eval(0.25); v >= 0.25 {
		t.Fatalf("smooth should start slower than linear, got %v", v)
	}
	in := Envelope{Keys: []Keyframe{{T: 0, V: 0, Ease: "in"}, {T: 2, V: 4}}}
	if v := in.Eval(1); math.Abs(v-1) > 1e-9 {
		t.Fatalf("quadratic in at half way should be a quarter, got %v", v)
	}
}

func TestEnvelopeNormalize(t *testing.T) {
	env := Envelope{Keys: []Keyframe{{T: 2, V: 1}, {T: 0, V: 0}}}
	if err := env.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if env.Keys[0].T != 0 {
		t.Fatalf("keys not sorted: %+v", env.Keys)
	}
	bad := Envelope{Keys: []Keyframe{{T: 0, Ease: "wobble"}}}
	if err := bad.Normalize(); err == nil {
		t.Fatalf("expected unknown ease to be rejected")
	}
	if !(Envelope{Keys: []Keyframe{{V: 0.5}}}).BoolEval(0) {
		t.Fatalf("0.5 should threshold to true")
	}
}
