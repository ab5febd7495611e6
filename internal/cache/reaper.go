package cache

import (
	"sync"
	"time"
)

// DefaultGrace covers a draw that may still be in flight when a handle is
// released.
const DefaultGrace = 100 * time.Millisecond

type job struct {
	due time.Time
	fn  func()
}

// Reaper runs deletions after a grace period, in the order they were
// deferred, while holding the turn lock.
type Reaper struct {
	turn  sync.Locker
	grace time.Duration

	mu   sync.Mutex
	jobs []job
}

func NewReaper(turn sync.Locker, grace time.Duration) *Reaper {
	return &Reaper{turn: turn, grace: grace}
}

// Defer schedules fn. It never runs fn on the calling goroutine, so it is
// safe to call while holding the turn lock.
func (r *Reaper) Defer(fn func()) {
	r.mu.Lock()
	r.jobs = append(r.jobs, job{due: time.Now().Add(r.grace), fn: fn})
	r.mu.Unlock()
	time.AfterFunc(r.grace, r.runDue)
}

// Pending returns the number of deletions not yet run.
func (r *Reaper) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Flush runs every pending deletion now. It must not be called with the turn
// lock held.
func (r *Reaper) Flush() {
	r.run(func(job) bool { return true })
}

func (r *Reaper) runDue() {
	now := time.Now()
	r.run(func(j job) bool { return !j.due.After(now) })
}

func (r *Reaper) run(ready func(job) bool) {
	r.turn.Lock()
	defer r.turn.Unlock()
	for {
		r.mu.Lock()
		if len(r.jobs) == 0 || !ready(r.jobs[0]) {
			r.mu.Unlock()
			return
		}
		j := r.jobs[0]
		r.jobs = r.jobs[1:]
		r.mu.Unlock()
		j.fn()
	}
}
