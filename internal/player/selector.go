package player

import (
	"fmt"

	"github.com/coreman2200/rivesched/internal/engine"
)

// Selector picks an animation by name, or by index when Name is empty.
type Selector struct {
	Name  string
	Index int
}

func ByName(name string) Selector { return Selector{Name: name} }
func ByIndex(i int) Selector      { return Selector{Index: i} }

func (s Selector) String() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("#%d", s.Index)
}

func lookupAnimation(ab engine.Artboard, sel Selector) (engine.LinearAnimation, error) {
	if sel.Name != "" {
		if a, ok := ab.AnimationByName(sel.Name); ok {
			return a, nil
		}
		return nil, &engine.LookupError{Kind: "animation", Name: sel.Name, Available: engine.AnimationNames(ab)}
	}
	if a, ok := ab.AnimationByIndex(sel.Index); ok {
		return a, nil
	}
	return nil, &engine.LookupError{Kind: "animation", Index: sel.Index, ByIndex: true, Available: engine.AnimationNames(ab)}
}
