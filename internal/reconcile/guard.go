package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/mamadbah2/dairysync/internal/domain/models"
)

type guardState struct {
	// slot admits one reconciliation pass at a time.
	slot      chan struct{}
	full      bool
	epoch     uint64
	lastWrite time.Time
}

// Guards serialises reconciliation passes per entity type and tracks when
// the last remote write happened. Realtime reconciliation consults it to avoid
// acting on snapshots that predate local writes.
type Guards struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	state  map[models.EntityType]*guardState
}

func NewGuards(window time.Duration) *Guards {
	return &Guards{
		window: window,
		now:    time.Now,
		state:  make(map[models.EntityType]*guardState),
	}
}

// SetClock replaces the time source.
func (g *Guards) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Window returns the protection window length.
func (g *Guards) Window() time.Duration { return g.window }

func (g *Guards) get(kind models.EntityType) *guardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.state[kind]
	if !ok {
		s = &guardState{slot: make(chan struct{}, 1)}
		g.state[kind] = s
	}
	return s
}

// Begin waits for kind's slot and marks a full pass as running. The release
// func ends the pass, moves the epoch and opens the protection window.
func (g *Guards) Begin(ctx context.Context, kind models.EntityType) (func(), error) {
	s := g.get(kind)
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	}

	g.mu.Lock()
	s.full = true
	s.epoch++
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			s.full = false
			s.epoch++
			s.lastWrite = g.now()
			g.mu.Unlock()
			<-s.slot
		})
	}, nil
}

// Enter claims kind's slot for an incremental pass without waiting. Unlike
// Begin it neither moves the epoch nor opens a protection window.
func (g *Guards) Enter(kind models.EntityType) (func(), bool) {
	s := g.get(kind)
	select {
	case s.slot <- struct{}{}:
	default:
		return func() {}, false
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-s.slot })
	}, true
}

// Busy reports whether a full pass for kind is running.
func (g *Guards) Busy(kind models.EntityType) bool {
	s := g.get(kind)
	g.mu.Lock()
	defer g.mu.Unlock()
	return s.full
}

// MarkRemoteWrite records a local write to the remote store.
func (g *Guards) MarkRemoteWrite(kind models.EntityType) {
	s := g.get(kind)
	g.mu.Lock()
	defer g.mu.Unlock()
	s.epoch++
	s.lastWrite = g.now()
}

// Protected reports whether deletions of kind must be suppressed.
func (g *Guards) Protected(kind models.EntityType) bool {
	return !g.ProtectedUntil(kind).IsZero()
}

// ProtectedUntil returns when the protection for kind lapses, or the zero
// time if it is not protected. A running full pass reports now plus the window.
func (g *Guards) ProtectedUntil(kind models.EntityType) time.Time {
	s := g.get(kind)
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if s.full {
		return now.Add(g.window)
	}
	if s.lastWrite.IsZero() {
		return time.Time{}
	}
	until := s.lastWrite.Add(g.window)
	if !now.Before(until) {
		return time.Time{}
	}
	return until
}

// Epoch returns a token that changes whenever kind is written remotely or a
// full pass starts or ends.
func (g *Guards) Epoch(kind models.EntityType) uint64 {
	s := g.get(kind)
	g.mu.Lock()
	defer g.mu.Unlock()
	return s.epoch
}
