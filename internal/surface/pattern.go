package surface

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"
)

// Pattern is a calibration sequence used to check wiring order and colour
// order before a scene is attached.
type Pattern string

const (
	// Sweep lights one cell at a time, row after row.
	Sweep Pattern = "sweep"
	// Channels fills the grid red, then green, then blue.
	Channels Pattern = "channels"
	// Rows lights one full row at a time in cyan.
	Rows Pattern = "rows"
)

func ParsePattern(s string) (Pattern, error) {
	switch p := Pattern(s); p {
	case Sweep, Channels, Rows:
		return p, nil
	}
	return "", fmt.Errorf("surface: unknown pattern %q", s)
}

// Frame draws step of p at one pixel per cell. It returns false once the
// pattern is complete.
func (g Grid) Frame(p Pattern, step int) (*image.NRGBA, bool) {
	img := image.NewNRGBA(image.Rect(0, 0, g.Cols, g.Rows))
	switch p {
	case Sweep:
		if step >= g.Count() {
			return img, false
		}
		img.SetNRGBA(step%g.Cols, step/g.Cols, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	case Channels:
		if step >= 3 {
			return img, false
		}
		c := color.NRGBA{A: 255}
		switch step {
		case 0:
			c.R = 255
		case 1:
			c.G = 255
		case 2:
			c.B = 255
		}
		fill(img, image.Rect(0, 0, g.Cols, g.Rows), c)
	case Rows:
		if step >= g.Rows {
			return img, false
		}
		fill(img, image.Rect(0, step, g.Cols, step+1), color.NRGBA{G: 255, B: 255, A: 255})
	default:
		return img, false
	}
	return img, true
}

func fill(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

// Calibrate presents every step of p, one every interval, then blanks the
// strip. It stops early when ctx ends.
func (s *Strip) Calibrate(ctx context.Context, p Pattern, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	s.log.Info().Str("pattern", string(p)).Dur("every", every).Msg("calibrating")
	for step := 0; ; step++ {
		img, ok := s.grid.Frame(p, step)
		if !ok {
			break
		}
		if err := s.Present(img); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	blank, _ := s.grid.Frame(Sweep, s.grid.Count())
	return s.Present(blank)
}
