package sim

import (
	"image"
	"image/color"
	"math"

	"github.com/coreman2200/rivesched/internal/engine"
)

// affine is {xx, xy, yx, yy, tx, ty}: x' = xx*x + yx*y + tx, y' = xy*x + yy*y + ty.
type affine [6]float64

var identity = affine{1, 0, 0, 1, 0, 0}

func (a affine) apply(x, y float64) (float64, float64) {
	return a[0]*x + a[2]*y + a[4], a[1]*x + a[3]*y + a[5]
}

// mul returns a·b, applying b first.
func (a affine) mul(b affine) affine {
	return affine{
		a[0]*b[0] + a[2]*b[1],
		a[1]*b[0] + a[3]*b[1],
		a[0]*b[2] + a[2]*b[3],
		a[1]*b[2] + a[3]*b[3],
		a[0]*b[4] + a[2]*b[5] + a[4],
		a[1]*b[4] + a[3]*b[5] + a[5],
	}
}

func (a affine) invert() (affine, bool) {
	det := a[0]*a[3] - a[1]*a[2]
	if det == 0 || math.IsNaN(det) {
		return affine{}, false
	}
	inv := 1 / det
	return affine{
		a[3] * inv,
		-a[1] * inv,
		-a[2] * inv,
		a[0] * inv,
		(a[2]*a[5] - a[3]*a[4]) * inv,
		(a[1]*a[4] - a[0]*a[5]) * inv,
	}, true
}

// alignTransform places content into frame. The content anchor given by align
// lands on the same anchor of the frame.
func alignTransform(fit engine.Fit, align engine.Alignment, frame, content engine.AABB) affine {
	cw, ch := content.Width(), content.Height()
	fw, fh := frame.Width(), frame.Height()
	if cw <= 0 || ch <= 0 {
		return identity
	}
	posX := -content.MinX - cw/2 - align.X*cw/2
	posY := -content.MinY - ch/2 - align.Y*ch/2

	sx, sy := 1.0, 1.0
	switch fit {
	case engine.Fill:
		sx, sy = fw/cw, fh/ch
	case engine.Contain:
		s := math.Min(fw/cw, fh/ch)
		sx, sy = s, s
	case engine.Cover:
		s := math.Max(fw/cw, fh/ch)
		sx, sy = s, s
	case engine.FitWidth:
		sx, sy = fw/cw, fw/cw
	case engine.FitHeight:
		sx, sy = fh/ch, fh/ch
	case engine.ScaleDown:
		s := math.Min(1, math.Min(fw/cw, fh/ch))
		sx, sy = s, s
	}

	tx := frame.MinX + fw/2 + align.X*fw/2
	ty := frame.MinY + fh/2 + align.Y*fh/2
	return affine{sx, 0, 0, sy, tx + sx*posX, ty + sy*posY}
}

type Mat struct {
	handle
	m affine
}

func (m *Mat) Invert(out engine.Mat2D) bool {
	o, ok := out.(*Mat)
	if !ok {
		return false
	}
	inv, ok := m.m.invert()
	if !ok {
		return false
	}
	o.m = inv
	return true
}

type Vec struct {
	handle
	x, y float64
}

func (v *Vec) X() float64 { return v.x }
func (v *Vec) Y() float64 { return v.y }

// Renderer rasterizes into an RGBA image. It implements engine.Snapshotter.
type Renderer struct {
	handle
	img   *image.RGBA
	m     affine
	stack []affine
}

func newRenderer(rt *Runtime, w, h int) *Renderer {
	r := &Renderer{img: image.NewRGBA(image.Rect(0, 0, w, h)), m: identity}
	r.init(rt)
	return r
}

func (r *Renderer) Clear() {
	for i := range r.img.Pix {
		r.img.Pix[i] = 0
	}
	r.m = identity
	r.stack = r.stack[:0]
}

func (r *Renderer) Save() { r.stack = append(r.stack, r.m) }

func (r *Renderer) Restore() {
	if n := len(r.stack); n > 0 {
		r.m = r.stack[n-1]
		r.stack = r.stack[:n-1]
	}
}

func (r *Renderer) Align(fit engine.Fit, align engine.Alignment, frame, content engine.AABB) {
	r.m = r.m.mul(alignTransform(fit, align, frame, content))
}

// Snapshot copies the current frame.
func (r *Renderer) Snapshot() image.Image {
	out := image.NewRGBA(r.img.Rect)
	copy(out.Pix, r.img.Pix)
	return out
}

func (r *Renderer) fillRect(x0, y0, x1, y1 float64, c color.RGBA) {
	if c.A == 0 {
		return
	}
	ax, ay := r.m.apply(x0, y0)
	bx, by := r.m.apply(x1, y1)
	r.fillPixels(math.Min(ax, bx), math.Min(ay, by), math.Max(ax, bx), math.Max(ay, by), func(float64, float64) bool { return true }, c)
}

func (r *Renderer) fillEllipse(cx, cy, rx, ry float64, c color.RGBA) {
	px, py := r.m.apply(cx, cy)
	rx = math.Abs(rx * r.m[0])
	ry = math.Abs(ry * r.m[3])
	if rx == 0 || ry == 0 {
		return
	}
	inside := func(x, y float64) bool {
		dx, dy := (x-px)/rx, (y-py)/ry
		return dx*dx+dy*dy <= 1
	}
	r.fillPixels(px-rx, py-ry, px+rx, py+ry, inside, c)
}

func (r *Renderer) strokeLine(x0, y0, x1, y1 float64, c color.RGBA) {
	ax, ay := r.m.apply(x0, y0)
	bx, by := r.m.apply(x1, y1)
	steps := int(math.Max(math.Abs(bx-ax), math.Abs(by-ay))) + 1
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := int(math.Floor(ax + (bx-ax)*t))
		y := int(math.Floor(ay + (by-ay)*t))
		if image.Pt(x, y).In(r.img.Rect) {
			r.img.SetRGBA(x, y, c)
		}
	}
}

// fillPixels sets every pixel whose centre lies in the box and satisfies in.
func (r *Renderer) fillPixels(x0, y0, x1, y1 float64, in func(x, y float64) bool, c color.RGBA) {
	b := r.img.Rect
	minX := max(b.Min.X, int(math.Floor(x0)))
	minY := max(b.Min.Y, int(math.Floor(y0)))
	maxX := min(b.Max.X, int(math.Ceil(x1)))
	maxY := min(b.Max.Y, int(math.Ceil(y1)))
	for y := minY; y < maxY; y++ {
		for x := minX; x < maxX; x++ {
			fx, fy := float64(x)+0.5, float64(y)+0.5
			if fx < x0 || fx > x1 || fy < y0 || fy > y1 || !in(fx, fy) {
				continue
			}
			r.img.SetRGBA(x, y, c)
		}
	}
}
