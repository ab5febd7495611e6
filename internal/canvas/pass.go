package canvas

import "github.com/coreman2200/rivesched/internal/engine"

// Pass is one turn on a canvas. It is only valid inside the Turn callback.
type Pass struct {
	c  *Canvas
	ab engine.Artboard
	r  engine.Renderer
}

func (p *Pass) Artboard() engine.Artboard { return p.ab }
func (p *Pass) Runtime() engine.Runtime   { return p.c.rt }

// DrawAnimation advances inst by delta seconds, applies it with mix and draws
// the artboard.
func (p *Pass) DrawAnimation(inst engine.AnimationInstance, delta, mix float64) {
	p.r.Clear()
	inst.Advance(delta)
	inst.Apply(mix)
	p.ab.Advance(delta)
	p.draw()
}

// DrawStateMachine advances inst by delta seconds, draws the artboard and
// returns the names of the states entered during the advance.
func (p *Pass) DrawStateMachine(inst engine.StateMachineInstance, delta float64) []string {
	p.r.Clear()
	inst.Advance(p.ab, delta)
	var changed []string
	if n := inst.StateChangedCount(); n > 0 {
		changed = make([]string, 0, n)
		for i := 0; i < n; i++ {
			changed = append(changed, inst.StateChangedNameByIndex(i))
		}
	}
	p.ab.Advance(delta)
	p.draw()
	return changed
}

func (p *Pass) draw() {
	p.c.mu.Lock()
	fit, align := p.c.opts.Fit, p.c.opts.Alignment
	box := p.c.box()
	presenter := p.c.presenter
	p.c.mu.Unlock()

	p.r.Save()
	p.r.Align(fit, align, box, p.ab.Bounds())
	p.ab.Draw(p.r)
	p.r.Restore()

	if presenter == nil {
		return
	}
	snap, ok := p.r.(engine.Snapshotter)
	if !ok {
		return
	}
	if err := presenter.Present(snap.Snapshot()); err != nil {
		p.c.log.Warn().Err(err).Msg("present frame")
	}
}
