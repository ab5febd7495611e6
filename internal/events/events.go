// Package events carries binding notifications out of the scheduler.
//
// Hooks fire on the frame goroutine, so the Bus never blocks a publisher:
// a subscriber whose buffer is full misses the new event and the drop is
// counted.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/coreman2200/rivesched/internal/diagnostics"
)

type Kind string

const (
	Load           Kind = "load"
	TimeChange     Kind = "timeChange"
	PlayChange     Kind = "playChange"
	SpeedChange    Kind = "speedChange"
	StateChange    Kind = "stateChange"
	InputLoad      Kind = "inputLoad"
	InputChange    Kind = "inputChange"
	ArtboardChange Kind = "artboardChange"
	Diagnostic     Kind = "diagnostic"
)

// Event is one notification. Source names the binding, e.g. "player:hero".
// Only the fields matching Kind are set.
type Event struct {
	Seq     uint64    `json:"seq" msgpack:"seq"`
	At      time.Time `json:"at" msgpack:"at"`
	Kind    Kind      `json:"kind" msgpack:"kind"`
	Source  string    `json:"source" msgpack:"source"`
	Name    string    `json:"name,omitempty" msgpack:"name,omitempty"`
	Time    *float64  `json:"time,omitempty" msgpack:"time,omitempty"`
	Playing *bool     `json:"playing,omitempty" msgpack:"playing,omitempty"`
	Speed   *float64  `json:"speed,omitempty" msgpack:"speed,omitempty"`
	States  []string  `json:"states,omitempty" msgpack:"states,omitempty"`
	Value   any       `json:"value,omitempty" msgpack:"value,omitempty"`

	Diag *diagnostics.Diagnostic `json:"diag,omitempty" msgpack:"diag,omitempty"`
}

func Loaded(source, name string) Event { return Event{Kind: Load, Source: source, Name: name} }

func TimeChanged(source string, t float64) Event {
	return Event{Kind: TimeChange, Source: source, Time: &t}
}

func PlayChanged(source string, playing bool) Event {
	return Event{Kind: PlayChange, Source: source, Playing: &playing}
}

func SpeedChanged(source string, speed float64) Event {
	return Event{Kind: SpeedChange, Source: source, Speed: &speed}
}

func StatesChanged(source string, states []string) Event {
	return Event{Kind: StateChange, Source: source, States: states}
}

func InputLoaded(source, name string, value any) Event {
	return Event{Kind: InputLoad, Source: source, Name: name, Value: value}
}

func InputChanged(source, name string, value any) Event {
	return Event{Kind: InputChange, Source: source, Name: name, Value: value}
}

func ArtboardChanged(source, name string) Event {
	return Event{Kind: ArtboardChange, Source: source, Name: name}
}

func Diagnosed(source string, d diagnostics.Diagnostic) Event {
	return Event{Kind: Diagnostic, Source: source, Diag: &d}
}

func (e Event) String() string {
	return fmt.Sprintf("#%d %s %s", e.Seq, e.Source, e.Kind)
}

// Codec selects the wire encoding of events.
type Codec string

const (
	JSON    Codec = "json"
	MsgPack Codec = "msgpack"
)

func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case "", JSON:
		return JSON, nil
	case MsgPack:
		return MsgPack, nil
	}
	return JSON, fmt.Errorf("unknown codec %q", s)
}

func (c Codec) Marshal(e Event) ([]byte, error) {
	if c == MsgPack {
		return msgpack.Marshal(e)
	}
	return json.Marshal(e)
}

func (c Codec) Unmarshal(data []byte, e *Event) error {
	if c == MsgPack {
		return msgpack.Unmarshal(data, e)
	}
	return json.Unmarshal(data, e)
}
