package reconcile

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// sides is an in-memory Target over a local and a remote record set.
type sides struct {
	local  []rec
	remote []rec
	fail   map[string]error
}

func (s *sides) InsertLocal(_ context.Context, item rec) error {
	if err := s.fail["insert:"+item.key]; err != nil {
		return err
	}
	item.synced = true
	for i, l := range s.local {
		if l.id == item.id {
			s.local[i] = item
			return nil
		}
	}
	s.local = append(s.local, item)
	return nil
}

func (s *sides) DeleteLocal(_ context.Context, item rec) error {
	for i, l := range s.local {
		if l.id == item.id && l.key == item.key {
			s.local = append(s.local[:i], s.local[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *sides) DeleteRemote(_ context.Context, item rec) error {
	for i, r := range s.remote {
		if r.id == item.id {
			s.remote = append(s.remote[:i], s.remote[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *sides) Resubmit(_ context.Context, item rec) error {
	for i, l := range s.local {
		if l.id == item.id {
			s.local[i].synced = false
		}
	}
	return nil
}

// upload pushes unsynced local records the way a repository upload does.
func (s *sides) upload() {
	for i, l := range s.local {
		if l.synced {
			continue
		}
		s.local[i].synced = true
		replaced := false
		for j, r := range s.remote {
			if r.id == l.id {
				s.remote[j] = s.local[i]
				replaced = true
			}
		}
		if !replaced {
			s.remote = append(s.remote, s.local[i])
		}
	}
}

func sortedIDs(items []rec) []string {
	out := ids(items)
	sort.Strings(out)
	return out
}

func TestApply_ExecutesPlan(t *testing.T) {
	s := &sides{
		local:  []rec{synced("keep", 0), synced("gone", 0)},
		remote: []rec{synced("keep", 0), synced("added", 1)},
	}

	res := Run(context.Background(), s.local, s.remote, Options[rec]{}, Target[rec](s), zap.NewNop())

	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.DeletedLocal)
	assert.True(t, res.Changed())
	assert.Equal(t, []string{"added", "keep"}, sortedIDs(s.local))
}

func TestApply_IsIdempotent(t *testing.T) {
	dirty := synced("dirty", 4)
	dirty.synced = false
	edited := rec{key: "edited-new", id: "edited-new", lineage: "L", synced: true, created: at(0), stamp: at(6)}
	s := &sides{
		local: []rec{synced("a", 0), synced("b", 0), synced("b", 2), dirty,
			{key: "edited-old", id: "edited-old", lineage: "L", synced: true, created: at(0), stamp: at(0)}},
		remote: []rec{synced("a", 3), synced("c", 1), edited},
	}
	s.local[2].id = "b-copy"

	opts := Options[rec]{Now: at(60), RecentWindow: 0}
	first := Build(s.local, s.remote, opts)
	require.False(t, first.Empty())
	res := Apply(context.Background(), first, Target[rec](s), zap.NewNop())
	require.NoError(t, res.Err())

	second := Build(s.local, s.remote, opts)
	assert.True(t, second.Empty(), "second plan: %+v", second)
}

func TestApply_Converges(t *testing.T) {
	s := &sides{
		local:  []rec{synced("a", 0), {key: "b", id: "b", lineage: "uid-b", created: at(1), stamp: at(1)}},
		remote: []rec{synced("a", 2), synced("c", 0), {key: "c", id: "c-dup", created: at(1), stamp: at(1)}},
	}

	for i := 0; i < 2; i++ {
		s.upload()
		res := Run(context.Background(), s.local, s.remote, Options[rec]{}, Target[rec](s), zap.NewNop())
		require.NoError(t, res.Err())
	}

	assert.Equal(t, sortedIDs(s.remote), sortedIDs(s.local))
	assert.Equal(t, []string{"a", "b", "c-dup"}, sortedIDs(s.local))
}

func TestApply_NoSilentLoss(t *testing.T) {
	dirty := rec{key: "offline", id: "offline", lineage: "uid-offline", created: at(5), stamp: at(5)}
	s := &sides{local: []rec{dirty}}

	Run(context.Background(), s.local, s.remote, Options[rec]{}, Target[rec](s), zap.NewNop())
	require.Len(t, s.local, 1)

	s.upload()
	Run(context.Background(), s.local, s.remote, Options[rec]{}, Target[rec](s), zap.NewNop())
	assert.Equal(t, []string{"offline"}, ids(s.local))
	assert.Equal(t, []string{"offline"}, ids(s.remote))
}

func TestApply_ContinuesPastFailures(t *testing.T) {
	boom := errors.New("disk full")
	s := &sides{
		remote: []rec{synced("a", 0), synced("b", 0)},
		fail:   map[string]error{"insert:a": boom},
	}

	res := Run(context.Background(), s.local, s.remote, Options[rec]{}, Target[rec](s), zap.NewNop())

	assert.Equal(t, 1, res.Inserted)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Err(), boom)
}

func TestApply_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &sides{remote: []rec{synced("a", 0), synced("b", 0)}}

	res := Run(ctx, s.local, s.remote, Options[rec]{}, Target[rec](s), zap.NewNop())

	assert.Zero(t, res.Inserted)
	assert.ErrorIs(t, res.Err(), context.Canceled)
	assert.Empty(t, s.local)
}

func TestResult_Merge(t *testing.T) {
	a := Result{Inserted: 1, DeletedRemote: 2, Errors: []error{errors.New("x")}}
	a.Merge(Result{Inserted: 2, Skipped: 3, Errors: []error{errors.New("y")}})

	assert.Equal(t, 3, a.Inserted)
	assert.Equal(t, 2, a.DeletedRemote)
	assert.Equal(t, 3, a.Skipped)
	assert.Len(t, a.Errors, 2)
	assert.False(t, Result{Skipped: 4}.Changed())
}
