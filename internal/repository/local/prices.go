package local

import (
	"context"
	"fmt"

	"github.com/mamadbah2/dairysync/internal/domain/models"
)

// SavePriceBracket inserts (ID zero) or updates a bracket.
func (s *Store) SavePriceBracket(ctx context.Context, b *models.PriceBracket, origin Origin) error {
	s.stamp(&b.SyncMeta, origin)
	if err := s.db.WithContext(ctx).Save(b).Error; err != nil {
		return fmt.Errorf("save price bracket %s: %w", b.BusinessKey(), err)
	}
	return nil
}

// GetPriceBracket loads a bracket by local id.
func (s *Store) GetPriceBracket(ctx context.Context, ownerID string, id uint) (models.PriceBracket, error) {
	return take[models.PriceBracket](ctx, s.db, "", "added_by = ? AND id = ?", ownerID, id)
}

// FindPriceBracketByRemoteID loads the bracket mirrored from a remote document.
func (s *Store) FindPriceBracketByRemoteID(ctx context.Context, ownerID, remoteID string) (models.PriceBracket, error) {
	return take[models.PriceBracket](ctx, s.db, "updated_at DESC", "added_by = ? AND remote_id = ?", ownerID, remoteID)
}

// ListPriceBrackets returns the owner's brackets ordered by lower bound.
func (s *Store) ListPriceBrackets(ctx context.Context, ownerID string) ([]models.PriceBracket, error) {
	return find[models.PriceBracket](ctx, s.db, "fat_from ASC, id ASC", "added_by = ?", ownerID)
}

// ListUnsyncedPriceBrackets returns dirty brackets.
func (s *Store) ListUnsyncedPriceBrackets(ctx context.Context, ownerID string) ([]models.PriceBracket, error) {
	return find[models.PriceBracket](ctx, s.db, "id ASC", "added_by = ? AND synced = ?", ownerID, false)
}

// MarkPriceBracketSynced flips the dirty flag if the row is still at b's revision.
func (s *Store) MarkPriceBracketSynced(ctx context.Context, b models.PriceBracket) error {
	return markSynced[models.PriceBracket](ctx, s.db, b.ID, b.Revision)
}

// MarkPriceBracketUnsynced re-queues a bracket for upload.
func (s *Store) MarkPriceBracketUnsynced(ctx context.Context, id uint) error {
	return markUnsynced[models.PriceBracket](ctx, s.db, id)
}

// DeletePriceBracket removes a bracket by local id.
func (s *Store) DeletePriceBracket(ctx context.Context, ownerID string, id uint) error {
	n, err := remove[models.PriceBracket](ctx, s.db, "added_by = ? AND id = ?", ownerID, id)
	if err != nil {
		return fmt.Errorf("delete price bracket %d: %w", id, err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
