// Package memory is an in-process remote.Store with the same owner scoping
// and snapshot semantics as the MongoDB client.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/repository/remote"
)

type subKey struct {
	kind  models.EntityType
	owner string
}

// Store keeps documents in a map keyed by path.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]remote.Document
	subs   map[subKey][]chan remote.Snapshot
	fail   error
	writes int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		docs: make(map[string]remote.Document),
		subs: make(map[subKey][]chan remote.Snapshot),
	}
}

// SetFailure makes every subsequent call return err; nil restores service.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Writes counts successful Put and Delete calls.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// FetchAll implements remote.Store.
func (s *Store) FetchAll(_ context.Context, kind models.EntityType, ownerID string) ([]remote.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, s.fail
	}
	return s.collect(kind, ownerID), nil
}

// Put implements remote.Store.
func (s *Store) Put(_ context.Context, doc remote.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}

	s.docs[doc.Path()] = clone(doc)
	s.writes++
	s.notify(doc.Kind, doc.OwnerID)
	return nil
}

// Delete implements remote.Store. Deleting a missing document is a no-op.
func (s *Store) Delete(_ context.Context, kind models.EntityType, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}

	path := remote.Path(kind, ownerID, id)
	if _, ok := s.docs[path]; ok {
		delete(s.docs, path)
		s.writes++
		s.notify(kind, ownerID)
	}
	return nil
}

// Subscribe implements remote.Store.
func (s *Store) Subscribe(ctx context.Context, kind models.EntityType, ownerID string) (<-chan remote.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}

	key := subKey{kind: kind, owner: ownerID}
	ch := make(chan remote.Snapshot, 1)
	ch <- remote.Snapshot{Kind: kind, OwnerID: ownerID, Docs: s.collect(kind, ownerID)}
	s.subs[key] = append(s.subs[key], ch)

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[key]
		for i, c := range subs {
			if c == ch {
				s.subs[key] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

func (s *Store) collect(kind models.EntityType, ownerID string) []remote.Document {
	out := make([]remote.Document, 0)
	for _, doc := range s.docs {
		if doc.Kind == kind && doc.OwnerID == ownerID {
			out = append(out, clone(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// notify delivers the latest snapshot, replacing an unread older one.
func (s *Store) notify(kind models.EntityType, ownerID string) {
	subs := s.subs[subKey{kind: kind, owner: ownerID}]
	if len(subs) == 0 {
		return
	}
	snap := remote.Snapshot{Kind: kind, OwnerID: ownerID, Docs: s.collect(kind, ownerID)}
	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func clone(doc remote.Document) remote.Document {
	fields := make(map[string]any, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = v
	}
	doc.Fields = fields
	return doc
}
