package canvas

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/coreman2200/rivesched/internal/engine"
)

// DefaultViewbox shows the whole surface.
const DefaultViewbox = "0 0 100% 100%"

type length struct {
	v       float64
	percent bool
}

// Viewbox is a parsed "minX minY maxX maxY" attribute. Each value is either
// pixels or a percentage of the surface size. Min values pan the content,
// max values zoom it: "0 0 50% 50%" shows the content at half size.
type Viewbox struct {
	src  string
	vals [4]length
}

func ParseViewbox(s string) (Viewbox, error) {
	if s == "" {
		s = DefaultViewbox
	}
	fields := strings.Fields(s)
	if len(fields) != 4 {
		return Viewbox{}, fmt.Errorf("viewbox %q should look like %q", s, DefaultViewbox)
	}
	vb := Viewbox{src: s}
	for i, f := range fields {
		l := length{}
		if strings.HasSuffix(f, "%") {
			l.percent = true
			f = strings.TrimSuffix(f, "%")
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Viewbox{}, fmt.Errorf("viewbox %q: %w", s, err)
		}
		if i >= 2 && v == 0 {
			return Viewbox{}, fmt.Errorf("viewbox %q: zero extent", s)
		}
		l.v = v
		vb.vals[i] = l
	}
	return vb, nil
}

func (v Viewbox) String() string {
	if v.src == "" {
		return DefaultViewbox
	}
	return v.src
}

// Box resolves the viewbox against a w x h surface.
func (v Viewbox) Box(w, h int) engine.AABB {
	if v.src == "" {
		v, _ = ParseViewbox(DefaultViewbox)
	}
	var out [4]float64
	for i, l := range v.vals {
		size := float64(w)
		if i%2 == 1 {
			size = float64(h)
		}
		ratio := l.v / 100
		if !l.percent {
			ratio = l.v / size
		}
		if i < 2 {
			out[i] = -size * ratio
		} else {
			out[i] = size / ratio
		}
	}
	return engine.AABB{MinX: out[0], MinY: out[1], MaxX: out[2], MaxY: out[3]}
}
