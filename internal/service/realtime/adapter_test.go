package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/reconcile"
	"github.com/mamadbah2/dairysync/internal/repository/remote"
	"github.com/mamadbah2/dairysync/internal/repository/remote/memory"
	"github.com/mamadbah2/dairysync/internal/service/entities"
)

const owner = "owner-1"

type recordingSyncer struct {
	mu     sync.Mutex
	kind   models.EntityType
	snaps  []remote.Snapshot
	epochs []uint64
	result reconcile.Result
	err    error
}

func (s *recordingSyncer) Kind() models.EntityType { return s.kind }

func (s *recordingSyncer) Upload(context.Context) (int, error) { return 0, nil }

func (s *recordingSyncer) Download(context.Context) (reconcile.Result, error) {
	return reconcile.Result{}, nil
}

func (s *recordingSyncer) Dedup(context.Context) (reconcile.Result, error) {
	return reconcile.Result{}, nil
}

func (s *recordingSyncer) ReconcileSnapshot(_ context.Context, snap remote.Snapshot, epoch uint64) (reconcile.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	s.epochs = append(s.epochs, epoch)
	return s.result, s.err
}

func (s *recordingSyncer) received() []remote.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.Snapshot{}, s.snaps...)
}

func farmer(id string) remote.Document {
	return remote.Document{Kind: models.EntityFarmer, OwnerID: owner, ID: id, Fields: map[string]any{"name": id}}
}

func TestAdapter_AppliesSettledSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	syncer := &recordingSyncer{kind: models.EntityFarmer, result: reconcile.Result{Inserted: 1}}
	a := NewAdapter(store, reconcile.NewGuards(0), []entities.Syncer{syncer}, Config{SettleDelay: 20 * time.Millisecond}, zap.NewNop())

	var mu sync.Mutex
	var changes []models.EntityType
	a.OnChange(func(kind models.EntityType, _ reconcile.Result) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, kind)
	})

	a.Start(ctx, owner)
	t.Cleanup(a.Stop)

	require.Eventually(t, func() bool { return len(syncer.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, syncer.received()[0].Docs)

	for _, id := range []string{"f1", "f2", "f3"} {
		require.NoError(t, store.Put(ctx, farmer(id)))
	}
	require.Eventually(t, func() bool {
		snaps := syncer.received()
		return len(snaps) >= 2 && len(snaps[len(snaps)-1].Docs) == 3
	}, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, len(syncer.received()), 4)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, changes, models.EntityFarmer)
}

func TestAdapter_StaleSnapshotIsNotReported(t *testing.T) {
	store := memory.New()
	syncer := &recordingSyncer{kind: models.EntityFarmer, err: entities.ErrStaleSnapshot, result: reconcile.Result{Inserted: 1}}
	a := NewAdapter(store, reconcile.NewGuards(0), []entities.Syncer{syncer}, Config{SettleDelay: 5 * time.Millisecond}, zap.NewNop())

	called := make(chan struct{}, 1)
	a.OnChange(func(models.EntityType, reconcile.Result) { called <- struct{}{} })

	a.Start(context.Background(), owner)
	t.Cleanup(a.Stop)

	require.Eventually(t, func() bool { return len(syncer.received()) > 0 }, time.Second, 5*time.Millisecond)
	select {
	case <-called:
		t.Fatal("stale snapshot reported as a change")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestAdapter_WaitsOutProtectionWindow(t *testing.T) {
	store := memory.New()
	guards := reconcile.NewGuards(150 * time.Millisecond)
	guards.MarkRemoteWrite(models.EntityFarmer)
	syncer := &recordingSyncer{kind: models.EntityFarmer}
	a := NewAdapter(store, guards, []entities.Syncer{syncer}, Config{SettleDelay: 5 * time.Millisecond}, zap.NewNop())

	a.Start(context.Background(), owner)
	t.Cleanup(a.Stop)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, syncer.received())
	require.Eventually(t, func() bool { return len(syncer.received()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestAdapter_StopEndsStreams(t *testing.T) {
	store := memory.New()
	syncer := &recordingSyncer{kind: models.EntityFarmer}
	a := NewAdapter(store, reconcile.NewGuards(0), []entities.Syncer{syncer}, Config{SettleDelay: time.Millisecond}, zap.NewNop())

	a.Start(context.Background(), owner)
	require.Eventually(t, func() bool { return len(syncer.received()) == 1 }, time.Second, 5*time.Millisecond)
	a.Stop()

	require.NoError(t, store.Put(context.Background(), farmer("f1")))
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, syncer.received(), 1)
}
