// Package journal keeps the durable log of mutations awaiting remote replay.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mamadbah2/dairysync/internal/domain/models"
)

// Journal is an append-only table of pending operations.
type Journal struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// New migrates the journal table on db.
func New(db *gorm.DB, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&models.PendingOperation{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db, logger: logger, now: time.Now}, nil
}

// WithTx returns a journal writing through tx, so operations commit together
// with the local mutation they describe.
func (j *Journal) WithTx(tx *gorm.DB) *Journal {
	return &Journal{db: tx, logger: j.logger, now: j.now}
}

// Record appends op, assigning its id and enqueue time when unset.
func (j *Journal) Record(ctx context.Context, op models.PendingOperation) (models.PendingOperation, error) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = j.now().UTC()
	}
	if op.Kind != models.OperationDelete && op.Kind != models.OperationUpdate {
		return op, fmt.Errorf("%w: unknown operation kind %q", models.ErrValidation, op.Kind)
	}

	if err := j.db.WithContext(ctx).Create(&op).Error; err != nil {
		return op, fmt.Errorf("record %s %s: %w", op.Kind, op.Key, err)
	}

	j.logger.Debug("operation journaled",
		zap.String("id", op.ID),
		zap.String("kind", string(op.Kind)),
		zap.String("entity", string(op.Entity)),
		zap.String("key", op.Key))
	return op, nil
}

// ListPending returns the owner's operations in enqueue order.
func (j *Journal) ListPending(ctx context.Context, ownerID string) ([]models.PendingOperation, error) {
	var ops []models.PendingOperation
	err := j.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("enqueued_at ASC, id ASC").
		Find(&ops).Error
	if err != nil {
		return nil, fmt.Errorf("list pending operations: %w", err)
	}
	return ops, nil
}

// PendingKeys returns the business keys with a pending operation for entity.
func (j *Journal) PendingKeys(ctx context.Context, ownerID string, entity models.EntityType) (map[string]bool, error) {
	var keys []string
	err := j.db.WithContext(ctx).Model(&models.PendingOperation{}).
		Where("owner_id = ? AND entity = ?", ownerID, entity).
		Pluck("business_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("list pending keys: %w", err)
	}

	out := make(map[string]bool, len(keys))
	for _, k := range keys {
		out[k] = true
	}
	return out, nil
}

// Remove deletes a consumed operation. Removing an already-removed entry
// returns models.ErrNotFound.
func (j *Journal) Remove(ctx context.Context, id string) error {
	res := j.db.WithContext(ctx).Where("id = ?", id).Delete(&models.PendingOperation{})
	if res.Error != nil {
		return fmt.Errorf("remove operation %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Len counts the owner's pending operations.
func (j *Journal) Len(ctx context.Context, ownerID string) (int, error) {
	var count int64
	if err := j.db.WithContext(ctx).Model(&models.PendingOperation{}).Where("owner_id = ?", ownerID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count pending operations: %w", err)
	}
	return int(count), nil
}

// NewDelete builds a delete operation for the remote document docID.
func NewDelete(entity models.EntityType, ownerID, key, docID string) models.PendingOperation {
	return models.PendingOperation{
		Kind:    models.OperationDelete,
		Entity:  entity,
		OwnerID: ownerID,
		Key:     key,
		DocID:   docID,
	}
}

// NewUpdate builds an update operation replacing oldDocID with payload.
func NewUpdate(entity models.EntityType, ownerID, oldKey, oldDocID string, payload any) (models.PendingOperation, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.PendingOperation{}, fmt.Errorf("encode %s payload: %w", entity, err)
	}
	return models.PendingOperation{
		Kind:    models.OperationUpdate,
		Entity:  entity,
		OwnerID: ownerID,
		Key:     oldKey,
		DocID:   oldDocID,
		Payload: raw,
	}, nil
}
