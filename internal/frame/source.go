package frame

import (
	"sync"
	"time"
)

// Source is a platform frame callback. Start begins delivering frames to fn
// until Stop is called. Implementations call fn from a single goroutine.
type Source interface {
	Start(fn func(now time.Time))
	Stop()
}

// TickerSource delivers frames at a fixed rate. Like the LED looper it
// corrects the next interval by the time the previous frame took, so slow
// frames do not accumulate drift.
type TickerSource struct {
	interval time.Duration

	mu   sync.Mutex
	done chan struct{}
}

// NewTickerSource returns a source running at fps frames per second (60 when
// fps <= 0).
func NewTickerSource(fps int) *TickerSource {
	if fps <= 0 {
		fps = 60
	}
	return &TickerSource{interval: time.Second / time.Duration(fps)}
}

func (s *TickerSource) Start(fn func(now time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	done := make(chan struct{})
	s.done = done
	go s.run(done, fn)
}

// Stop does not wait for the running frame to finish, so it is safe to call
// from inside fn.
func (s *TickerSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return
	}
	close(s.done)
	s.done = nil
}

func (s *TickerSource) run(done chan struct{}, fn func(now time.Time)) {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-timer.C:
			fn(now)
			next := s.interval - time.Since(now)
			if next <= 0 {
				next = time.Millisecond
			}
			timer.Reset(next)
		}
	}
}

// ManualSource is driven by Step, for tests and offline rendering.
type ManualSource struct {
	mu  sync.Mutex
	fn  func(now time.Time)
	now time.Time
}

func NewManualSource() *ManualSource {
	return &ManualSource{now: time.Unix(0, 0)}
}

func (s *ManualSource) Start(fn func(now time.Time)) {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
}

func (s *ManualSource) Stop() {
	s.mu.Lock()
	s.fn = nil
	s.mu.Unlock()
}

// Running reports whether a consumer started the source.
func (s *ManualSource) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn != nil
}

// Step advances the fake time by d and delivers one frame if running.
func (s *ManualSource) Step(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	fn, now := s.fn, s.now
	s.mu.Unlock()
	if fn != nil {
		fn(now)
	}
}
