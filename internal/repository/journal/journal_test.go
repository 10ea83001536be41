package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mamadbah2/dairysync/internal/domain/models"
)

func newTestJournal(t *testing.T) (*Journal, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	j, err := New(db, zap.NewNop())
	require.NoError(t, err)
	return j, db
}

func TestJournal_Record(t *testing.T) {
	ctx := context.Background()
	j, _ := newTestJournal(t)

	t.Run("assigns id and enqueue time", func(t *testing.T) {
		op, err := j.Record(ctx, NewDelete(models.EntityFarmer, "owner-1", "f1", "f1"))
		require.NoError(t, err)
		assert.NotEmpty(t, op.ID)
		assert.False(t, op.EnqueuedAt.IsZero())
	})

	t.Run("rejects unknown kinds", func(t *testing.T) {
		_, err := j.Record(ctx, models.PendingOperation{Kind: "rename", Entity: models.EntityFarmer, OwnerID: "owner-1", Key: "f1"})
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestJournal_ListPendingKeepsOrder(t *testing.T) {
	ctx := context.Background()
	j, _ := newTestJournal(t)
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	for i, key := range []string{"third", "first", "second"} {
		op := NewDelete(models.EntityCollection, "owner-1", key, key)
		op.EnqueuedAt = base.Add(time.Duration([]int{3, 1, 2}[i]) * time.Second)
		_, err := j.Record(ctx, op)
		require.NoError(t, err)
	}
	_, err := j.Record(ctx, NewDelete(models.EntityCollection, "owner-2", "foreign", "foreign"))
	require.NoError(t, err)

	ops, err := j.ListPending(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, "first", ops[0].Key)
	assert.Equal(t, "second", ops[1].Key)
	assert.Equal(t, "third", ops[2].Key)

	n, err := j.Len(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestJournal_PendingKeys(t *testing.T) {
	ctx := context.Background()
	j, _ := newTestJournal(t)

	update, err := NewUpdate(models.EntityPriceBracket, "owner-1", "3_4_50", "3_4_50", models.PriceBracket{From: 3, To: 4.5, Price: 52})
	require.NoError(t, err)
	_, err = j.Record(ctx, update)
	require.NoError(t, err)
	_, err = j.Record(ctx, NewDelete(models.EntityFarmer, "owner-1", "f1", "f1"))
	require.NoError(t, err)

	keys, err := j.PendingKeys(ctx, "owner-1", models.EntityPriceBracket)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"3_4_50": true}, keys)

	ops, err := j.ListPending(ctx, "owner-1")
	require.NoError(t, err)
	var payload models.PriceBracket
	require.NoError(t, ops[0].DecodePayload(&payload))
	assert.Equal(t, 4.5, payload.To)
}

func TestJournal_Remove(t *testing.T) {
	ctx := context.Background()
	j, _ := newTestJournal(t)

	op, err := j.Record(ctx, NewDelete(models.EntityFarmer, "owner-1", "f1", "f1"))
	require.NoError(t, err)

	require.NoError(t, j.Remove(ctx, op.ID))
	assert.ErrorIs(t, j.Remove(ctx, op.ID), models.ErrNotFound)
}

func TestJournal_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	j, db := newTestJournal(t)
	errAbort := errors.New("abort")

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := j.WithTx(tx).Record(ctx, NewDelete(models.EntityFarmer, "owner-1", "f1", "f1")); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	n, err := j.Len(ctx, "owner-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}
