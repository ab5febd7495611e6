// Package surface pushes rendered frames out to LED hardware, or to the
// console when no SPI port is present.
package surface

import (
	"errors"
	"image"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/display"
)

var ErrHalted = errors.New("surface: halted")

// Strip samples each presented frame through a Grid and draws it on a
// one-dimensional display.
type Strip struct {
	log    zerolog.Logger
	grid   Grid
	limit  Limit
	drawer display.Drawer
	port   io.Closer

	mu     sync.Mutex
	halted bool
	frames uint64
	failed uint64
	drawMA float64
	last   *image.NRGBA
}

type Option func(*Strip)

func WithLogger(l zerolog.Logger) Option { return func(s *Strip) { s.log = l } }
func WithLimit(l Limit) Option           { return func(s *Strip) { s.limit = l } }

func NewStrip(d display.Drawer, g Grid, opts ...Option) *Strip {
	s := &Strip{
		log:    log.Logger.With().Str("component", "surface").Str("drawer", d.String()).Logger(),
		grid:   g,
		drawer: d,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Present implements canvas.Presenter.
func (s *Strip) Present(img image.Image) error {
	line := s.grid.Sample(img)
	ma := s.limit.Apply(line)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halted {
		return ErrHalted
	}
	if err := s.drawer.Draw(s.drawer.Bounds(), line, image.Point{}); err != nil {
		s.failed++
		return err
	}
	s.frames++
	s.drawMA = ma
	s.last = line
	return nil
}

// Last is the most recent strip image drawn, nil before the first frame.
func (s *Strip) Last() *image.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

type Stats struct {
	Frames uint64 `json:"frames"`
	Failed uint64 `json:"failed"`
	Pixels int    `json:"pixels"`
	// DrawMA is the estimated draw of the last frame.
	DrawMA float64 `json:"draw_mA"`
}

func (s *Strip) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Frames: s.frames, Failed: s.failed, Pixels: s.grid.Count(), DrawMA: s.drawMA}
}

// Halt blanks the display; later frames are refused.
func (s *Strip) Halt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halted {
		return nil
	}
	s.halted = true
	s.log.Info().Uint64("frames", s.frames).Uint64("failed", s.failed).Msg("halting")
	err := s.drawer.Halt()
	if s.port != nil {
		if cerr := s.port.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
