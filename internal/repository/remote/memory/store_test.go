package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/repository/remote"
)

func farmerDoc(owner, id string) remote.Document {
	return remote.Document{Kind: models.EntityFarmer, OwnerID: owner, ID: id, Fields: map[string]any{"name": id}}
}

func TestStore_OwnerScoping(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Put(ctx, farmerDoc("u1", "f1")))
	require.NoError(t, s.Put(ctx, farmerDoc("u2", "f2")))

	docs, err := s.FetchAll(ctx, models.EntityFarmer, "u1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "f1", docs[0].ID)

	require.NoError(t, s.Delete(ctx, models.EntityFarmer, "u1", "f2"))
	docs, err = s.FetchAll(ctx, models.EntityFarmer, "u2")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestStore_DeleteMissingIsNoop(t *testing.T) {
	s := New()

	require.NoError(t, s.Delete(context.Background(), models.EntityFarmer, "u1", "ghost"))
	assert.Zero(t, s.Writes())
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	doc := farmerDoc("u1", "f1")
	require.NoError(t, s.Put(ctx, doc))

	doc.Fields["name"] = "changed"
	docs, err := s.FetchAll(ctx, models.EntityFarmer, "u1")
	require.NoError(t, err)
	assert.Equal(t, "f1", docs[0].Fields["name"])
}

func TestStore_SetFailure(t *testing.T) {
	ctx := context.Background()
	s := New()
	errDown := errors.New("unavailable")

	s.SetFailure(errDown)
	assert.ErrorIs(t, s.Put(ctx, farmerDoc("u1", "f1")), errDown)
	_, err := s.FetchAll(ctx, models.EntityFarmer, "u1")
	assert.ErrorIs(t, err, errDown)

	s.SetFailure(nil)
	assert.NoError(t, s.Put(ctx, farmerDoc("u1", "f1")))
	assert.Equal(t, 1, s.Writes())
}

func TestStore_Subscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New()
	require.NoError(t, s.Put(ctx, farmerDoc("u1", "f1")))

	ch, err := s.Subscribe(ctx, models.EntityFarmer, "u1")
	require.NoError(t, err)

	first := receive(t, ch)
	assert.Len(t, first.Docs, 1)

	require.NoError(t, s.Put(ctx, farmerDoc("u1", "f2")))
	require.NoError(t, s.Put(ctx, farmerDoc("u2", "other")))
	latest := receive(t, ch)
	assert.Len(t, latest.Docs, 2)

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, 10*time.Millisecond)
}

func receive(t *testing.T, ch <-chan remote.Snapshot) remote.Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(time.Second):
		t.Fatal("no snapshot received")
		return remote.Snapshot{}
	}
}
