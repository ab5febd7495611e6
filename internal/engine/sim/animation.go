package sim

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/coreman2200/rivesched/internal/automation"
)

type LinearAnimation struct {
	def *AnimationDef
}

func (a *LinearAnimation) Name() string  { return a.def.Name }
func (a *LinearAnimation) FPS() int      { return a.def.FPS }
func (a *LinearAnimation) Duration() int { return a.def.Duration }

func (a *LinearAnimation) WorkStart() int {
	if a.def.WorkStart == nil {
		return -1
	}
	return *a.def.WorkStart
}

func (a *LinearAnimation) WorkEnd() int {
	if a.def.WorkEnd == nil {
		return -1
	}
	return *a.def.WorkEnd
}

// seconds is the full length of the timeline.
func (a *LinearAnimation) seconds() float64 {
	return float64(a.def.Duration) / float64(a.def.FPS)
}

// AnimationInstance holds a playhead over one animation of one artboard.
// Time is never wrapped here; looping belongs to whoever advances it.
type AnimationInstance struct {
	handle
	anim *LinearAnimation
	ab   *Artboard
	t    float64
}

func (i *AnimationInstance) Time() float64     { return i.t }
func (i *AnimationInstance) Advance(s float64) { i.t += s }

// Apply samples at the current time, held inside the timeline.
func (i *AnimationInstance) Apply(mix float64) {
	apply(i.anim.def, i.ab, clampTime(i.t, i.anim.seconds()), mix)
}

func clampTime(t, end float64) float64 {
	return math.Max(0, math.Min(t, end))
}

// apply samples every track of def at t seconds and mixes the result into
// the artboard's components.
func apply(def *AnimationDef, ab *Artboard, t, mix float64) {
	if mix <= 0 {
		return
	}
	mix = math.Min(mix, 1)
	fps := float64(def.FPS)
	for _, tr := range def.Tracks {
		c, ok := ab.component(tr.Node, "node", "bone", "rootBone")
		if !ok || len(tr.Keys) == 0 {
			continue
		}
		if tr.Property == "color" {
			c.color = c.color.BlendHcl(sampleColor(tr.Keys, t*fps), mix).Clamped()
			continue
		}
		v := envelope(tr.Keys, fps).Eval(t)
		cur := c.property(tr.Property)
		c.setProperty(tr.Property, cur+(v-cur)*mix)
	}
}

func envelope(keys []KeyDef, fps float64) automation.Envelope {
	env := automation.Envelope{Keys: make([]automation.Keyframe, len(keys))}
	for i, k := range keys {
		env.Keys[i] = automation.Keyframe{T: float64(k.Frame) / fps, V: k.Value, Ease: k.Ease}
	}
	// eases were checked when the asset was parsed
	_ = env.Normalize()
	return env
}

// sampleColor blends the two colour keys around frame in HCL space.
func sampleColor(keys []KeyDef, frame float64) colorful.Color {
	hex := func(k KeyDef) colorful.Color {
		c, _ := colorful.Hex(k.Color)
		return c
	}
	if frame <= float64(keys[0].Frame) {
		return hex(keys[0])
	}
	for i := 0; i < len(keys)-1; i++ {
		a, b := keys[i], keys[i+1]
		if frame > float64(b.Frame) {
			continue
		}
		span := float64(b.Frame - a.Frame)
		if span <= 0 {
			return hex(b)
		}
		u := automation.Envelope{Keys: []automation.Keyframe{{T: 0, V: 0, Ease: a.Ease}, {T: 1, V: 1}}}.Eval((frame - float64(a.Frame)) / span)
		return hex(a).BlendHcl(hex(b), u)
	}
	return hex(keys[len(keys)-1])
}

func (c *Component) property(p string) float64 {
	switch p {
	case "x":
		return c.x
	case "y":
		return c.y
	case "radius":
		return c.radius
	case "length":
		return c.length
	case "scaleX":
		return c.scaleX
	case "scaleY":
		return c.scaleY
	case "rotation":
		return c.rotation
	}
	return 0
}

func (c *Component) setProperty(p string, v float64) {
	switch p {
	case "x":
		c.x = v
	case "y":
		c.y = v
	case "radius":
		c.radius = v
	case "length":
		c.length = v
	case "scaleX":
		c.scaleX = v
	case "scaleY":
		c.scaleY = v
	case "rotation":
		c.rotation = v
	}
}
