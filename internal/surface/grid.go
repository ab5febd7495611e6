package surface

import (
	"image"
	"image/color"
)

// Grid lays a strip out as Cols x Rows cells, row after row. With Serpentine
// every odd row runs right to left, as LED panels are usually wired.
type Grid struct {
	Cols       int  `yaml:"cols"`
	Rows       int  `yaml:"rows"`
	Serpentine bool `yaml:"serpentine"`
}

// Index maps cell x,y to its position on the strip.
func (g Grid) Index(x, y int) int {
	xx := x
	if g.Serpentine && y%2 == 1 {
		xx = g.Cols - 1 - x
	}
	return y*g.Cols + xx
}

func (g Grid) Count() int {
	return g.Cols * g.Rows
}

// Sample reads img at the centre of every cell and returns the colours as a
// 1 pixel high image in strip order.
func (g Grid) Sample(img image.Image) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, g.Count(), 1))
	b := img.Bounds()
	if b.Empty() || g.Count() == 0 {
		return out
	}
	for y := 0; y < g.Rows; y++ {
		py := b.Min.Y + (2*y+1)*b.Dy()/(2*g.Rows)
		for x := 0; x < g.Cols; x++ {
			px := b.Min.X + (2*x+1)*b.Dx()/(2*g.Cols)
			c := color.NRGBAModel.Convert(img.At(px, py)).(color.NRGBA)
			out.SetNRGBA(g.Index(x, y), 0, c)
		}
	}
	return out
}
