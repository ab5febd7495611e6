// Package command is the wire form of host commands arriving over the
// control socket or MQTT.
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrTarget = errors.New("command: bad target")

// Command sets one attribute of one binding. Target is "canvas",
// "automation" or "<kind>:<id>", e.g. "player:hero" or "input:ui/level".
type Command struct {
	Target string `json:"target"`
	Attr   string `json:"attr"`
	Value  any    `json:"value,omitempty"`
}

func (c Command) String() string {
	return fmt.Sprintf("%s.%s=%v", c.Target, c.Attr, c.Value)
}

// singletons are targets without an id.
var singletons = map[string]bool{"canvas": true, "automation": true}

// Split returns the target kind and id. Singletons have no id.
func (c Command) Split() (kind, id string, err error) {
	if singletons[c.Target] {
		return c.Target, "", nil
	}
	kind, id, ok := strings.Cut(c.Target, ":")
	if !ok || kind == "" || id == "" {
		return "", "", fmt.Errorf("%w %q", ErrTarget, c.Target)
	}
	return kind, id, nil
}

// Decode reads a JSON command, keeping numbers as json.Number.
func Decode(data []byte) (Command, error) {
	var c Command
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&c); err != nil {
		return Command{}, fmt.Errorf("command: %w", err)
	}
	if c.Attr == "" {
		return Command{}, errors.New("command: missing attr")
	}
	if _, _, err := c.Split(); err != nil {
		return Command{}, err
	}
	return c, nil
}

type Applier interface {
	Apply(c Command) error
}

type ApplierFunc func(c Command) error

func (f ApplierFunc) Apply(c Command) error { return f(c) }

// Reply is sent back on the control socket for every command.
type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func ReplyTo(err error) Reply {
	if err != nil {
		return Reply{Error: err.Error()}
	}
	return Reply{OK: true}
}
