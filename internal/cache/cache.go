// Package cache owns the engine files and artboards shared between bindings.
//
// Named files are reference counted: every Load must be paired with exactly
// one Unload, and the engine file is deleted once, after the last Unload.
// Inline bytes are never shared. Deletions go through the Reaper so no draw
// in flight can touch a freed handle.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/rivesched/internal/engine"
)

var ErrEmptyIdentity = errors.New("identity has neither name nor bytes")

// Identity names an asset or carries it inline.
type Identity struct {
	Name  string
	Bytes []byte
}

func Named(name string) Identity { return Identity{Name: name} }
func Inline(b []byte) Identity   { return Identity{Bytes: b} }

// Inline reports whether the asset bytes are carried by the identity.
func (id Identity) Inline() bool { return id.Bytes != nil }

func (id Identity) String() string {
	if id.Inline() {
		return fmt.Sprintf("inline(%d bytes)", len(id.Bytes))
	}
	return id.Name
}

type entry struct {
	name  string
	refs  int
	done  bool
	ready chan struct{}
	file  engine.File
	err   error
}

// FileRef is one acquired reference on a file.
type FileRef struct {
	File engine.File

	id    Identity
	entry *entry
	once  sync.Once
}

func (r *FileRef) Identity() Identity { return r.id }

type Cache struct {
	rt     engine.Runtime
	fetch  Fetcher
	turn   sync.Locker
	reaper *Reaper
	log    zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	boards  map[uuid.UUID]engine.Artboard
}

type Option func(*Cache)

func WithLogger(l zerolog.Logger) Option { return func(c *Cache) { c.log = l } }

// New returns a cache loading through rt. Engine calls are made while
// holding turn, the lock shared with every draw on rt.
func New(rt engine.Runtime, fetch Fetcher, turn sync.Locker, reaper *Reaper, opts ...Option) *Cache {
	c := &Cache{
		rt:      rt,
		fetch:   fetch,
		turn:    turn,
		reaper:  reaper,
		log:     log.Logger.With().Str("component", "cache").Logger(),
		entries: map[string]*entry{},
		boards:  map[uuid.UUID]engine.Artboard{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Cache) Reaper() *Reaper { return c.reaper }

// Load acquires a reference on the file for id. Concurrent loads of the same
// name share one fetch. If ctx ends first the reference is given back and
// ctx.Err() returned.
func (c *Cache) Load(ctx context.Context, id Identity) (*FileRef, error) {
	if id.Inline() {
		c.turn.Lock()
		f, err := c.rt.Load(id.Bytes)
		c.turn.Unlock()
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", id, err)
		}
		return &FileRef{File: f, id: id}, nil
	}
	if id.Name == "" {
		return nil, ErrEmptyIdentity
	}

	c.mu.Lock()
	e, ok := c.entries[id.Name]
	if !ok {
		e = &entry{name: id.Name, ready: make(chan struct{})}
		c.entries[id.Name] = e
		go c.populate(e)
	}
	e.refs++
	c.mu.Unlock()

	select {
	case <-e.ready:
	case <-ctx.Done():
		c.release(e)
		return nil, ctx.Err()
	}
	if e.err != nil {
		c.release(e)
		return nil, e.err
	}
	return &FileRef{File: e.file, id: id, entry: e}, nil
}

func (c *Cache) populate(e *entry) {
	data, err := c.fetch.Fetch(context.Background(), e.name)
	var f engine.File
	if err == nil {
		c.turn.Lock()
		f, err = c.rt.Load(data)
		c.turn.Unlock()
		if err != nil {
			err = fmt.Errorf("load %s: %w", e.name, err)
		}
	}

	c.mu.Lock()
	e.file, e.err, e.done = f, err, true
	orphan := e.refs == 0
	if err != nil || orphan {
		if c.entries[e.name] == e {
			delete(c.entries, e.name)
		}
	}
	close(e.ready)
	c.mu.Unlock()

	if err != nil {
		c.log.Warn().Err(err).Str("file", e.name).Msg("file load failed")
		return
	}
	if orphan && f != nil {
		c.log.Debug().Str("file", e.name).Msg("load finished after last unload")
		c.turn.Lock()
		f.Delete()
		c.turn.Unlock()
		return
	}
	c.log.Info().Str("file", e.name).Msg("file loaded")
}

// Unload gives back ref. Calling it twice on the same ref is a no-op.
func (c *Cache) Unload(ref *FileRef) {
	if ref == nil {
		return
	}
	ref.once.Do(func() {
		if ref.entry == nil {
			f := ref.File
			c.reaper.Defer(f.Delete)
			return
		}
		c.release(ref.entry)
	})
}

func (c *Cache) release(e *entry) {
	c.mu.Lock()
	e.refs--
	if e.refs > 0 {
		c.mu.Unlock()
		return
	}
	if c.entries[e.name] == e {
		delete(c.entries, e.name)
	}
	f := e.file
	done := e.done
	c.mu.Unlock()

	// a load still running deletes its own result
	if done && f != nil {
		c.log.Debug().Str("file", e.name).Msg("file evicted")
		c.reaper.Defer(f.Delete)
	}
}

// Refs returns the reference count of a named file.
func (c *Cache) Refs(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[name]; ok {
		return e.refs
	}
	return 0
}

// SelectArtboard creates the artboard called name (the default artboard when
// empty) for owner, deleting the artboard owner selected before. The caller
// must not hold the turn lock.
func (c *Cache) SelectArtboard(owner uuid.UUID, ref *FileRef, name string) (engine.Artboard, error) {
	c.mu.Lock()
	prev := c.boards[owner]
	delete(c.boards, owner)
	c.mu.Unlock()

	c.turn.Lock()
	if prev != nil {
		prev.Delete()
	}
	var (
		ab  engine.Artboard
		ok  bool
		err error
	)
	if name == "" {
		ab, ok = ref.File.DefaultArtboard()
		if !ok {
			err = &engine.LookupError{Kind: "artboard", Name: "<default>"}
		}
	} else {
		ab, ok = ref.File.ArtboardByName(name)
		if !ok {
			err = &engine.LookupError{Kind: "artboard", Name: name, Available: engine.ArtboardNames(ref.File)}
		}
	}
	c.turn.Unlock()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.boards[owner] = ab
	c.mu.Unlock()
	return ab, nil
}

// ReleaseOwner schedules deletion of the artboard held by owner, if any.
func (c *Cache) ReleaseOwner(owner uuid.UUID) {
	c.mu.Lock()
	ab := c.boards[owner]
	delete(c.boards, owner)
	c.mu.Unlock()
	if ab != nil {
		c.reaper.Defer(ab.Delete)
	}
}
