package app

import (
	"fmt"
	"strings"

	"github.com/coreman2200/rivesched/internal/automation"
	"github.com/coreman2200/rivesched/internal/command"
	"github.com/coreman2200/rivesched/internal/config"
	"github.com/coreman2200/rivesched/internal/diagnostics"
	"github.com/coreman2200/rivesched/internal/events"
)

// loadAutomation builds the runner. Clip animations go to the configured
// player; params and bools are routed through Apply like host commands.
func (c *Core) loadAutomation(a *config.Automation) error {
	hooks := automation.Hooks{
		SetAnimation: func(name string) { c.conduct(c.animationCommand(name)) },
		SetParam:     func(target string, v float64) { c.conduct(targetCommand(target, v)) },
		SetBool:      func(target string, b bool) { c.conduct(targetCommand(target, b)) },
	}
	if err := c.checkTargets(a.Program); err != nil {
		return err
	}
	r := automation.NewRunner(c.gate, hooks)
	if err := r.Load(a.Program); err != nil {
		return err
	}
	c.mu.Lock()
	c.auto, c.autoPlayer = r, a.Player
	c.mu.Unlock()
	return nil
}

func (c *Core) animationCommand(name string) command.Command {
	c.mu.Lock()
	id := c.autoPlayer
	c.mu.Unlock()
	if name == "" || id == "" {
		return command.Command{}
	}
	return command.Command{Target: "player:" + id, Attr: "animation", Value: name}
}

// targetCommand splits "player:hero/mix" into target and attribute. Input
// targets name the input itself, so "input:ui/level" writes its value.
func targetCommand(target string, v any) command.Command {
	if strings.HasPrefix(target, "input:") {
		return command.Command{Target: target, Attr: "value", Value: v}
	}
	i := strings.LastIndex(target, "/")
	if i < 0 {
		return command.Command{Target: target, Value: v}
	}
	return command.Command{Target: target[:i], Attr: target[i+1:], Value: v}
}

func (c *Core) conduct(cmd command.Command) {
	if cmd.Target == "" {
		return
	}
	_ = c.Apply(cmd)
}

func (c *Core) reject(cmd command.Command, err error) {
	c.log.Warn().Err(err).Stringer("command", cmd).Msg("command rejected")
	c.bus.Publish(events.Diagnosed(cmd.Target, diagnostics.Rejected(cmd.Target, cmd.Attr, err)))
}

// checkTargets fails on targets that can never apply, so a typo does not
// surface as one rejection per tick.
func (c *Core) checkTargets(p automation.Program) error {
	for _, clip := range p.Clips {
		for _, envs := range []map[string]automation.Envelope{clip.Params, clip.Bools} {
			for target := range envs {
				cmd := targetCommand(target, nil)
				kind, id, err := cmd.Split()
				if err != nil {
					return fmt.Errorf("automation: clip %q: %w", clip.Name, err)
				}
				if cmd.Attr == "" {
					return fmt.Errorf("automation: clip %q: target %q has no attribute", clip.Name, target)
				}
				if !c.known(kind, id) {
					return fmt.Errorf("automation: clip %q: %w %q", clip.Name, errUnknown, target)
				}
			}
		}
	}
	return nil
}

func (c *Core) known(kind, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case "player":
		return c.players[id] != nil
	case "animation":
		return c.animations[id] != nil
	case "machine":
		return c.machines[id] != nil
	case "node":
		return c.nodes[id] != nil
	case "input":
		machine, name, ok := strings.Cut(id, "/")
		return ok && name != "" && c.machines[machine] != nil
	case "canvas":
		return true
	}
	return false
}

func (c *Core) applyAutomation(cmd command.Command) error {
	c.mu.Lock()
	r := c.auto
	c.mu.Unlock()
	if r == nil {
		return fmt.Errorf("%w: no automation program", errUnknown)
	}
	switch cmd.Attr {
	case "start":
		r.Start()
	case "pause":
		r.Pause()
	case "resume":
		r.Resume()
	case "stop":
		r.Stop()
	case "seek":
		t, err := floatValue(cmd.Value)
		if err != nil {
			return err
		}
		r.Seek(t)
	case "playing":
		on, err := boolValue(cmd.Value)
		if err != nil {
			return err
		}
		switch {
		case on && r.State() == automation.Paused:
			r.Resume()
		case on:
			r.Start()
		default:
			r.Pause()
		}
	default:
		return unknownAttr(cmd)
	}
	return nil
}
