package surface

import (
	"fmt"

	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/extra/devices/screen"
)

const (
	None    = "none"
	Console = "console"
	SPI     = "spi"
	// Auto uses SPI when a port opens, the console otherwise.
	Auto = "auto"
)

// DefaultFreq suits WS2812 strips driven over SPI.
const DefaultFreq = 2500 * physic.KiloHertz

type Config struct {
	Kind    string `yaml:"kind"`
	Port    string `yaml:"port,omitempty"`
	FreqKHz int    `yaml:"freqKHz,omitempty"`
	Grid    Grid   `yaml:"grid"`
	Limit   Limit  `yaml:"limit,omitempty"`
}

// Open builds the strip described by cfg. It returns nil, nil for None.
// host.Init must have run before SPI ports can be found.
func Open(cfg Config, opts ...Option) (*Strip, error) {
	if cfg.Grid.Count() <= 0 && cfg.Kind != None && cfg.Kind != "" {
		return nil, fmt.Errorf("surface: grid %dx%d", cfg.Grid.Cols, cfg.Grid.Rows)
	}
	opts = append([]Option{WithLimit(cfg.Limit)}, opts...)
	switch cfg.Kind {
	case "", None:
		return nil, nil
	case Console:
		return NewStrip(screen.New(cfg.Grid.Count()), cfg.Grid, opts...), nil
	case SPI, Auto:
		p, err := spireg.Open(cfg.Port)
		if err != nil {
			if cfg.Kind == Auto {
				return NewStrip(screen.New(cfg.Grid.Count()), cfg.Grid, opts...), nil
			}
			return nil, fmt.Errorf("surface: open spi %q: %w", cfg.Port, err)
		}
		d, err := newLEDs(p, cfg)
		if err != nil {
			p.Close()
			return nil, err
		}
		s := NewStrip(d, cfg.Grid, opts...)
		s.port = p
		return s, nil
	}
	return nil, fmt.Errorf("surface: unknown kind %q", cfg.Kind)
}

func newLEDs(p spi.Port, cfg Config) (display.Drawer, error) {
	freq := DefaultFreq
	if cfg.FreqKHz > 0 {
		freq = physic.Frequency(cfg.FreqKHz) * physic.KiloHertz
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{
		NumPixels: cfg.Grid.Count(),
		Channels:  3,
		Freq:      freq,
	})
	if err != nil {
		return nil, fmt.Errorf("surface: nrzled: %w", err)
	}
	d.Halt()
	return d, nil
}
