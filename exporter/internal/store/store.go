package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/prtg"
)

// Store is a lock-free holder of the current snapshot.
type Store struct {
	current  atomic.Pointer[prtg.Snapshot]
	gen      atomic.Uint64
	ready    chan struct{}
	once     sync.Once
	blocking bool
}

// New creates an empty Store. When blockUntilReady is set, Read waits for
// the first Publish instead of reporting an empty store.
func New(blockUntilReady bool) *Store {
	return &Store{
		ready:    make(chan struct{}),
		blocking: blockUntilReady,
	}
}

// Publish assigns the next generation to snap and makes it visible.
// Callers must not modify snap after calling Publish.
func (s *Store) Publish(snap *prtg.Snapshot) {
	snap.Generation = s.gen.Add(1)
	s.current.Store(snap)
	s.once.Do(func() { close(s.ready) })
}

// Read returns the current snapshot. In blocking mode it waits for the first
// publish or for ctx to be done; otherwise it returns false when nothing has
// been published yet.
func (s *Store) Read(ctx context.Context) (*prtg.Snapshot, bool) {
	if snap := s.current.Load(); snap != nil {
		return snap, true
	}
	if !s.blocking {
		return nil, false
	}
	select {
	case <-s.ready:
		return s.current.Load(), true
	case <-ctx.Done():
		return nil, false
	}
}

// Latest returns the current snapshot without ever blocking.
func (s *Store) Latest() (*prtg.Snapshot, bool) {
	snap := s.current.Load()
	return snap, snap != nil
}

// Ready is closed once the first snapshot has been published.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Blocking reports whether Read waits for the first snapshot.
func (s *Store) Blocking() bool {
	return s.blocking
}
