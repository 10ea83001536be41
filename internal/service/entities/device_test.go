package entities

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/reconcile"
	"github.com/mamadbah2/dairysync/internal/repository/journal"
	"github.com/mamadbah2/dairysync/internal/repository/local"
	"github.com/mamadbah2/dairysync/internal/repository/remote"
	"github.com/mamadbah2/dairysync/internal/repository/remote/memory"
	"github.com/mamadbah2/dairysync/internal/service/aggregation"
)

const testOwner = "owner-1"

var firstDay = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type fakeAuth struct{ id string }

func (a *fakeAuth) CurrentUserID() (string, error) {
	if a.id == "" {
		return "", models.ErrNotAuthenticated
	}
	return a.id, nil
}

type fakeNet struct{ offline atomic.Bool }

func (n *fakeNet) IsOnline() bool { return !n.offline.Load() }

// testClock ticks one second per reading so every write gets a distinct stamp.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// device is one installation: its own local store and journal, sharing the
// remote store with other devices of the same owner.
type device struct {
	sc     *SyncContext
	repos  *Set
	store  *local.Store
	remote *memory.Store
	auth   *fakeAuth
	net    *fakeNet
}

func newDevice(t *testing.T, shared *memory.Store, start time.Time) *device {
	t.Helper()
	logger := zap.NewNop()

	store, err := local.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared", gormlogger.Silent, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ops, err := journal.New(store.DB(), logger)
	require.NoError(t, err)

	clock := &testClock{now: start}
	store.SetClock(clock.Now)
	guards := reconcile.NewGuards(0)
	guards.SetClock(clock.Now)

	d := &device{store: store, remote: shared, auth: &fakeAuth{id: testOwner}, net: &fakeNet{}}
	d.sc = &SyncContext{
		Local:      store,
		Journal:    ops,
		Remote:     shared,
		Auth:       d.auth,
		Net:        d.net,
		Guards:     guards,
		Aggregates: aggregation.NewCalculator(store, logger),
		Validate:   validator.New(),
		Logger:     logger,
		Now:        clock.Now,
	}
	d.repos = NewSet(d.sc)
	return d
}

func (d *device) uploadAll(t *testing.T) {
	t.Helper()
	for _, s := range d.repos.Syncers() {
		_, err := s.Upload(context.Background())
		require.NoError(t, err, "upload %s", s.Kind())
	}
}

func (d *device) downloadAll(t *testing.T) {
	t.Helper()
	for _, s := range d.repos.Syncers() {
		_, err := s.Download(context.Background())
		require.NoError(t, err, "download %s", s.Kind())
	}
}

func (d *device) addFarmer(t *testing.T, name string) models.Farmer {
	t.Helper()
	f := models.Farmer{Name: name}
	require.NoError(t, d.repos.Farmers.Save(context.Background(), &f))
	return f
}

func remoteIDs(t *testing.T, store remote.Store, kind models.EntityType) []string {
	t.Helper()
	docs, err := store.FetchAll(context.Background(), kind, testOwner)
	require.NoError(t, err)
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}
