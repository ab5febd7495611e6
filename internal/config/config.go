package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/coreman2200/rivesched/internal/automation"
	"github.com/coreman2200/rivesched/internal/cache"
	"github.com/coreman2200/rivesched/internal/canvas"
	"github.com/coreman2200/rivesched/internal/emitter"
	"github.com/coreman2200/rivesched/internal/engine"
	"github.com/coreman2200/rivesched/internal/node"
	"github.com/coreman2200/rivesched/internal/player"
	"github.com/coreman2200/rivesched/internal/surface"
)

type Scene struct {
	File      string `yaml:"file"` // name under Assets, without .riv
	Artboard  string `yaml:"artboard,omitempty"`
	Fit       string `yaml:"fit,omitempty"`
	Alignment string `yaml:"alignment,omitempty"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	Viewbox   string `yaml:"viewbox,omitempty"`
	Lazy      bool   `yaml:"lazy,omitempty"`
	// Hidden starts the surface invisible; ticks and lazy loading wait for
	// a visible=true command.
	Hidden bool `yaml:"hidden,omitempty"`
}

type Player struct {
	ID        string   `yaml:"id"`
	Animation string   `yaml:"animation,omitempty"`
	Index     *int     `yaml:"index,omitempty"`
	Speed     *float64 `yaml:"speed,omitempty"`
	Mix       *float64 `yaml:"mix,omitempty"`
	Mode      string   `yaml:"mode,omitempty"` // loop | ping-pong | one-shot
	Playing   bool     `yaml:"playing,omitempty"`
	Autoreset bool     `yaml:"autoreset,omitempty"`
}

// Animation is a plain animation: no seek and no modes.
type Animation struct {
	ID        string   `yaml:"id"`
	Animation string   `yaml:"animation,omitempty"`
	Index     *int     `yaml:"index,omitempty"`
	Speed     *float64 `yaml:"speed,omitempty"`
	Mix       *float64 `yaml:"mix,omitempty"`
	Playing   bool     `yaml:"playing,omitempty"`
}

type Input struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value,omitempty"`
}

type Machine struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name,omitempty"`
	Index   *int     `yaml:"index,omitempty"`
	Speed   *float64 `yaml:"speed,omitempty"`
	Playing bool     `yaml:"playing,omitempty"`
	Inputs  []Input  `yaml:"inputs,omitempty"`
}

type Node struct {
	ID   string             `yaml:"id"`
	Name string             `yaml:"name"`
	Kind string             `yaml:"kind,omitempty"` // node | bone | rootBone
	Set  map[string]float64 `yaml:"set,omitempty"`
}

// Automation runs a program whose clip animations are played by Player.
type Automation struct {
	Player    string `yaml:"player,omitempty"`
	Autostart bool   `yaml:"autostart,omitempty"`

	automation.Program `yaml:",inline"`
}

type Config struct {
	Assets string `yaml:"assets"`
	FPS    int    `yaml:"fps"`
	HTTP   string `yaml:"http"`

	Scene      Scene       `yaml:"scene"`
	Players    []Player    `yaml:"players,omitempty"`
	Animations []Animation `yaml:"animations,omitempty"`
	Machines   []Machine   `yaml:"machines,omitempty"`
	Nodes      []Node      `yaml:"nodes,omitempty"`
	Automation *Automation `yaml:"automation,omitempty"`

	Surface surface.Config  `yaml:"surface"`
	MQTT    *emitter.Config `yaml:"mqtt,omitempty"`
}

func Default() *Config {
	return &Config{
		Assets:  cache.DefaultFolder,
		FPS:     60,
		HTTP:    ":8080",
		Scene:   Scene{Width: 300, Height: 150, Viewbox: canvas.DefaultViewbox},
		Surface: surface.Config{Kind: surface.None},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Validate checks every enumerated value and id up front so a bad scene
// fails at startup instead of on the first tick.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.FPS < 0 {
		fail("fps: %d is negative", c.FPS)
	}
	if c.Scene.File == "" {
		fail("scene.file: required")
	}
	if c.Scene.Width <= 0 || c.Scene.Height <= 0 {
		fail("scene: invalid size %dx%d", c.Scene.Width, c.Scene.Height)
	}
	if _, err := engine.ParseFit(c.Scene.Fit); err != nil {
		fail("scene.fit: %w", err)
	}
	if _, err := engine.ParseAlignment(c.Scene.Alignment); err != nil {
		fail("scene.alignment: %w", err)
	}
	if _, err := canvas.ParseViewbox(c.Scene.Viewbox); err != nil {
		fail("scene.viewbox: %w", err)
	}

	ids := map[string]bool{}
	unique := func(kind, id string) {
		key := kind + ":" + id
		switch {
		case id == "":
			fail("%s: missing id", kind)
		case ids[key]:
			fail("%s: duplicate id", key)
		}
		ids[key] = true
	}
	for _, p := range c.Players {
		unique("player", p.ID)
		if p.Animation == "" && p.Index == nil {
			fail("player:%s: animation or index required", p.ID)
		}
		if _, err := player.ParseMode(p.Mode); err != nil {
			fail("player:%s: %w", p.ID, err)
		}
	}
	for _, a := range c.Animations {
		unique("animation", a.ID)
		if a.Animation == "" && a.Index == nil {
			fail("animation:%s: animation or index required", a.ID)
		}
	}
	for _, m := range c.Machines {
		unique("machine", m.ID)
		if m.Name == "" && m.Index == nil {
			fail("machine:%s: name or index required", m.ID)
		}
		for _, in := range m.Inputs {
			if in.Name == "" {
				fail("machine:%s: input without name", m.ID)
			}
		}
	}
	for _, n := range c.Nodes {
		unique("node", n.ID)
		if n.Name == "" {
			fail("node:%s: name required", n.ID)
		}
		k, err := node.ParseKind(n.Kind)
		if err != nil {
			fail("node:%s: %w", n.ID, err)
			continue
		}
		for prop := range n.Set {
			if prop == "scale" {
				continue
			}
			p, err := node.ParseProperty(prop)
			if err != nil {
				fail("node:%s: %w", n.ID, err)
			} else if !k.Supports(p) {
				fail("node:%s: %s has no %s", n.ID, k, p)
			}
		}
	}
	if a := c.Automation; a != nil && a.Player != "" && !ids["player:"+a.Player] {
		fail("automation.player: no player %q", a.Player)
	}
	return errors.Join(errs...)
}
