package engine

import (
	"fmt"
	"strings"
)

// LookupError is returned when a binding names an artboard, animation or
// state machine the asset does not contain.
type LookupError struct {
	Kind      string // "artboard", "animation", "state machine"
	Name      string
	Index     int
	ByIndex   bool
	Available []string
}

func (e *LookupError) Error() string {
	if e.ByIndex {
		return fmt.Sprintf("%s index %d out of range: %d available", e.Kind, e.Index, len(e.Available))
	}
	if len(e.Available) == 0 {
		return fmt.Sprintf("%s %q not found: none available", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s %q not found: available are %s", e.Kind, e.Name, strings.Join(quote(e.Available), ", "))
}

func quote(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = fmt.Sprintf("%q", n)
	}
	return out
}

// AnimationNames lists the animations of ab in index order.
func AnimationNames(ab Artboard) []string {
	names := make([]string, 0, ab.AnimationCount())
	for i := 0; i < ab.AnimationCount(); i++ {
		if a, ok := ab.AnimationByIndex(i); ok {
			names = append(names, a.Name())
		}
	}
	return names
}

// StateMachineNames lists the state machines of ab in index order.
func StateMachineNames(ab Artboard) []string {
	names := make([]string, 0, ab.StateMachineCount())
	for i := 0; i < ab.StateMachineCount(); i++ {
		if sm, ok := ab.StateMachineByIndex(i); ok {
			names = append(names, sm.Name())
		}
	}
	return names
}

// ArtboardNames lists the artboards of f. Every artboard handed out by the
// file is an owned instance, so each one is deleted right after reading it.
func ArtboardNames(f File) []string {
	names := make([]string, 0, f.ArtboardCount())
	for i := 0; i < f.ArtboardCount(); i++ {
		if ab, ok := f.ArtboardByIndex(i); ok {
			names = append(names, ab.Name())
			ab.Delete()
		}
	}
	return names
}
