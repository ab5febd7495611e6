package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBuffer is the per subscriber queue length.
const DefaultBuffer = 64

type Subscriber struct {
	name   string
	ch     chan Event
	filter func(Event) bool
	bus    *Bus
	once   sync.Once
}

// C delivers events until the subscriber is closed.
func (s *Subscriber) C() <-chan Event { return s.ch }

func (s *Subscriber) Name() string { return s.name }

func (s *Subscriber) Close() {
	s.once.Do(func() { s.bus.remove(s) })
}

type Stats struct {
	Subscribers int
	Published   uint64
	Dropped     map[string]uint64
}

type Bus struct {
	log zerolog.Logger
	now func() time.Time

	mu        sync.RWMutex
	subs      []*Subscriber
	seq       uint64
	published uint64
	dropped   map[string]uint64
}

func NewBus() *Bus {
	return &Bus{
		log:     log.Logger.With().Str("component", "events").Logger(),
		now:     time.Now,
		dropped: map[string]uint64{},
	}
}

// Subscribe registers a named queue of buf events. filter may be nil.
func (b *Bus) Subscribe(name string, buf int, filter func(Event) bool) *Subscriber {
	if buf <= 0 {
		buf = DefaultBuffer
	}
	s := &Subscriber{name: name, ch: make(chan Event, buf), filter: filter, bus: b}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.dropped[name] += 0
	n := len(b.subs)
	b.mu.Unlock()
	b.log.Debug().Str("subscriber", name).Int("total", n).Msg("subscribed")
	return s
}

func (b *Bus) remove(s *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, x := range b.subs {
		if x == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(s.ch)
			return
		}
	}
}

// Publish stamps e and offers it to every subscriber without blocking.
func (b *Bus) Publish(e Event) Event {
	b.mu.Lock()
	b.seq++
	e.Seq = b.seq
	if e.At.IsZero() {
		e.At = b.now()
	}
	b.published++
	// remove closes channels under the same lock
	for _, s := range b.subs {
		if s.filter != nil && !s.filter(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped[s.name]++
			b.log.Debug().Str("subscriber", s.name).Uint64("seq", e.Seq).Msg("event dropped")
		}
	}
	b.mu.Unlock()
	return e
}

func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	dropped := make(map[string]uint64, len(b.dropped))
	for k, v := range b.dropped {
		dropped[k] = v
	}
	return Stats{Subscribers: len(b.subs), Published: b.published, Dropped: dropped}
}

// Only keeps events of the given kinds.
func Only(kinds ...Kind) func(Event) bool {
	return func(e Event) bool {
		for _, k := range kinds {
			if e.Kind == k {
				return true
			}
		}
		return false
	}
}

// Except drops events of the given kinds.
func Except(kinds ...Kind) func(Event) bool {
	only := Only(kinds...)
	return func(e Event) bool { return !only(e) }
}
