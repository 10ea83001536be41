package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/mamadbah2/dairysync/internal/domain/models"
)

// CollectionFilter narrows collection queries; empty fields are ignored.
// From and To are inclusive date keys.
type CollectionFilter struct {
	FarmerID string
	From     string
	To       string
}

// SaveCollection inserts (ID zero) or updates a daily collection.
func (s *Store) SaveCollection(ctx context.Context, c *models.DailyCollection, origin Origin) error {
	s.stamp(&c.SyncMeta, origin)
	if err := s.db.WithContext(ctx).Save(c).Error; err != nil {
		return fmt.Errorf("save collection %s: %w", c.BusinessKey(), err)
	}
	return nil
}

// FindCollection returns the most recently updated row for (farmer, date).
func (s *Store) FindCollection(ctx context.Context, ownerID, farmerID, date string) (models.DailyCollection, error) {
	return take[models.DailyCollection](ctx, s.db, "updated_at DESC, id DESC",
		"owner_id = ? AND farmer_id = ? AND date = ?", ownerID, farmerID, date)
}

// ListCollections returns collections matching filter ordered by date.
func (s *Store) ListCollections(ctx context.Context, ownerID string, filter CollectionFilter) ([]models.DailyCollection, error) {
	clauses := []string{"owner_id = ?"}
	args := []any{ownerID}
	if filter.FarmerID != "" {
		clauses = append(clauses, "farmer_id = ?")
		args = append(args, filter.FarmerID)
	}
	if filter.From != "" {
		clauses = append(clauses, "date >= ?")
		args = append(args, filter.From)
	}
	if filter.To != "" {
		clauses = append(clauses, "date <= ?")
		args = append(args, filter.To)
	}
	return find[models.DailyCollection](ctx, s.db, "date ASC, farmer_id ASC, id ASC", strings.Join(clauses, " AND "), args...)
}

// ListUnsyncedCollections returns dirty collections.
func (s *Store) ListUnsyncedCollections(ctx context.Context, ownerID string) ([]models.DailyCollection, error) {
	return find[models.DailyCollection](ctx, s.db, "id ASC", "owner_id = ? AND synced = ?", ownerID, false)
}

// MarkCollectionSynced flips the dirty flag if the row is still at c's revision.
func (s *Store) MarkCollectionSynced(ctx context.Context, c models.DailyCollection) error {
	return markSynced[models.DailyCollection](ctx, s.db, c.ID, c.Revision)
}

// MarkCollectionUnsynced re-queues a collection for upload.
func (s *Store) MarkCollectionUnsynced(ctx context.Context, id uint) error {
	return markUnsynced[models.DailyCollection](ctx, s.db, id)
}

// DeleteCollection removes a collection by local id.
func (s *Store) DeleteCollection(ctx context.Context, ownerID string, id uint) error {
	n, err := remove[models.DailyCollection](ctx, s.db, "owner_id = ? AND id = ?", ownerID, id)
	if err != nil {
		return fmt.Errorf("delete collection %d: %w", id, err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
