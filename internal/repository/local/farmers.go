package local

import (
	"context"
	"fmt"

	"github.com/mamadbah2/dairysync/internal/domain/models"
)

// FarmerCascade lists the rows removed alongside a farmer.
type FarmerCascade struct {
	Farmer      models.Farmer
	Collections []models.DailyCollection
	Details     []models.FarmerBillingDetail
}

// SaveFarmer upserts a farmer.
func (s *Store) SaveFarmer(ctx context.Context, f *models.Farmer, origin Origin) error {
	s.stamp(&f.SyncMeta, origin)
	if err := s.db.WithContext(ctx).Save(f).Error; err != nil {
		return fmt.Errorf("save farmer %s: %w", f.ID, err)
	}
	return nil
}

// GetFarmer loads one farmer.
func (s *Store) GetFarmer(ctx context.Context, ownerID, id string) (models.Farmer, error) {
	return take[models.Farmer](ctx, s.db, "", "owner_id = ? AND id = ?", ownerID, id)
}

// ListFarmers returns the owner's farmers sorted by name.
func (s *Store) ListFarmers(ctx context.Context, ownerID string) ([]models.Farmer, error) {
	return find[models.Farmer](ctx, s.db, "name ASC, id ASC", "owner_id = ?", ownerID)
}

// ListUnsyncedFarmers returns dirty farmers.
func (s *Store) ListUnsyncedFarmers(ctx context.Context, ownerID string) ([]models.Farmer, error) {
	return find[models.Farmer](ctx, s.db, "created_at ASC", "owner_id = ? AND synced = ?", ownerID, false)
}

// MarkFarmerSynced flips the dirty flag if the row is still at f's revision.
func (s *Store) MarkFarmerSynced(ctx context.Context, f models.Farmer) error {
	return markSynced[models.Farmer](ctx, s.db, f.ID, f.Revision)
}

// MarkFarmerUnsynced re-queues a farmer for upload.
func (s *Store) MarkFarmerUnsynced(ctx context.Context, id string) error {
	return markUnsynced[models.Farmer](ctx, s.db, id)
}

// UpdateFarmerTotals rewrites derived figures without touching the dirty flag.
func (s *Store) UpdateFarmerTotals(ctx context.Context, ownerID, id string, total, pending float64, earnings string) error {
	res := s.db.WithContext(ctx).Model(&models.Farmer{}).
		Where("owner_id = ? AND id = ?", ownerID, id).
		Updates(map[string]any{
			"total_amount":   total,
			"pending_amount": pending,
			"earnings":       earnings,
		})
	if res.Error != nil {
		return fmt.Errorf("update farmer totals %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteFarmer removes the farmer row only.
func (s *Store) DeleteFarmer(ctx context.Context, ownerID, id string) error {
	_, err := remove[models.Farmer](ctx, s.db, "owner_id = ? AND id = ?", ownerID, id)
	return err
}

// DeleteFarmerCascade removes a farmer with its collections and billing
// details in one transaction and returns what was removed.
func (s *Store) DeleteFarmerCascade(ctx context.Context, ownerID, id string) (FarmerCascade, error) {
	var out FarmerCascade
	err := s.Transaction(ctx, func(tx *Store) error {
		farmer, err := tx.GetFarmer(ctx, ownerID, id)
		if err != nil {
			return err
		}
		out.Farmer = farmer

		if out.Collections, err = find[models.DailyCollection](ctx, tx.db, "", "owner_id = ? AND farmer_id = ?", ownerID, id); err != nil {
			return err
		}
		if out.Details, err = find[models.FarmerBillingDetail](ctx, tx.db, "", "owner_id = ? AND farmer_id = ?", ownerID, id); err != nil {
			return err
		}

		if _, err := remove[models.DailyCollection](ctx, tx.db, "owner_id = ? AND farmer_id = ?", ownerID, id); err != nil {
			return err
		}
		if _, err := remove[models.FarmerBillingDetail](ctx, tx.db, "owner_id = ? AND farmer_id = ?", ownerID, id); err != nil {
			return err
		}
		_, err = remove[models.Farmer](ctx, tx.db, "owner_id = ? AND id = ?", ownerID, id)
		return err
	})
	if err != nil {
		return FarmerCascade{}, fmt.Errorf("delete farmer %s: %w", id, err)
	}
	return out, nil
}
