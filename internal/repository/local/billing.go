package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/mamadbah2/dairysync/internal/domain/models"
)

// DetailFilter narrows billing detail queries; empty fields are ignored.
type DetailFilter struct {
	CycleID  string
	FarmerID string
}

// SaveBillingCycle upserts a billing cycle.
func (s *Store) SaveBillingCycle(ctx context.Context, c *models.BillingCycle, origin Origin) error {
	s.stamp(&c.SyncMeta, origin)
	if err := s.db.WithContext(ctx).Save(c).Error; err != nil {
		return fmt.Errorf("save billing cycle %s: %w", c.ID, err)
	}
	return nil
}

// GetBillingCycle loads one cycle.
func (s *Store) GetBillingCycle(ctx context.Context, ownerID, id string) (models.BillingCycle, error) {
	return take[models.BillingCycle](ctx, s.db, "", "owner_id = ? AND id = ?", ownerID, id)
}

// ListBillingCycles returns the owner's cycles, newest range first.
func (s *Store) ListBillingCycles(ctx context.Context, ownerID string) ([]models.BillingCycle, error) {
	return find[models.BillingCycle](ctx, s.db, "start_date DESC, created_at ASC", "owner_id = ?", ownerID)
}

// ListUnsyncedBillingCycles returns dirty cycles.
func (s *Store) ListUnsyncedBillingCycles(ctx context.Context, ownerID string) ([]models.BillingCycle, error) {
	return find[models.BillingCycle](ctx, s.db, "created_at ASC", "owner_id = ? AND synced = ?", ownerID, false)
}

// MarkBillingCycleSynced flips the dirty flag if the row is still at c's revision.
func (s *Store) MarkBillingCycleSynced(ctx context.Context, c models.BillingCycle) error {
	return markSynced[models.BillingCycle](ctx, s.db, c.ID, c.Revision)
}

// MarkBillingCycleUnsynced re-queues a cycle for upload.
func (s *Store) MarkBillingCycleUnsynced(ctx context.Context, id string) error {
	return markUnsynced[models.BillingCycle](ctx, s.db, id)
}

// DeleteBillingCycleCascade removes a cycle and its details atomically and
// returns the removed details.
func (s *Store) DeleteBillingCycleCascade(ctx context.Context, ownerID, id string) ([]models.FarmerBillingDetail, error) {
	var details []models.FarmerBillingDetail
	err := s.Transaction(ctx, func(tx *Store) error {
		var err error
		if details, err = find[models.FarmerBillingDetail](ctx, tx.db, "", "owner_id = ? AND billing_cycle_id = ?", ownerID, id); err != nil {
			return err
		}
		if _, err := remove[models.FarmerBillingDetail](ctx, tx.db, "owner_id = ? AND billing_cycle_id = ?", ownerID, id); err != nil {
			return err
		}
		n, err := remove[models.BillingCycle](ctx, tx.db, "owner_id = ? AND id = ?", ownerID, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete billing cycle %s: %w", id, err)
	}
	return details, nil
}

// SaveBillingDetail upserts a farmer billing detail.
func (s *Store) SaveBillingDetail(ctx context.Context, d *models.FarmerBillingDetail, origin Origin) error {
	s.stamp(&d.SyncMeta, origin)
	if err := s.db.WithContext(ctx).Save(d).Error; err != nil {
		return fmt.Errorf("save billing detail %s: %w", d.BusinessKey(), err)
	}
	return nil
}

// GetBillingDetail loads the detail of farmerID in cycleID.
func (s *Store) GetBillingDetail(ctx context.Context, ownerID, cycleID, farmerID string) (models.FarmerBillingDetail, error) {
	return take[models.FarmerBillingDetail](ctx, s.db, "",
		"owner_id = ? AND billing_cycle_id = ? AND farmer_id = ?", ownerID, cycleID, farmerID)
}

// ListBillingDetails returns details matching filter.
func (s *Store) ListBillingDetails(ctx context.Context, ownerID string, filter DetailFilter) ([]models.FarmerBillingDetail, error) {
	clauses := []string{"owner_id = ?"}
	args := []any{ownerID}
	if filter.CycleID != "" {
		clauses = append(clauses, "billing_cycle_id = ?")
		args = append(args, filter.CycleID)
	}
	if filter.FarmerID != "" {
		clauses = append(clauses, "farmer_id = ?")
		args = append(args, filter.FarmerID)
	}
	return find[models.FarmerBillingDetail](ctx, s.db, "billing_cycle_id ASC, farmer_id ASC", strings.Join(clauses, " AND "), args...)
}

// ListUnsyncedBillingDetails returns dirty details.
func (s *Store) ListUnsyncedBillingDetails(ctx context.Context, ownerID string) ([]models.FarmerBillingDetail, error) {
	return find[models.FarmerBillingDetail](ctx, s.db, "id ASC", "owner_id = ? AND synced = ?", ownerID, false)
}

// MarkBillingDetailSynced flips the dirty flag if the row is still at d's revision.
func (s *Store) MarkBillingDetailSynced(ctx context.Context, d models.FarmerBillingDetail) error {
	return markSynced[models.FarmerBillingDetail](ctx, s.db, d.ID, d.Revision)
}

// MarkBillingDetailUnsynced re-queues a detail for upload.
func (s *Store) MarkBillingDetailUnsynced(ctx context.Context, id uint) error {
	return markUnsynced[models.FarmerBillingDetail](ctx, s.db, id)
}

// DeleteBillingDetail removes a detail by local id.
func (s *Store) DeleteBillingDetail(ctx context.Context, ownerID string, id uint) error {
	_, err := remove[models.FarmerBillingDetail](ctx, s.db, "owner_id = ? AND id = ?", ownerID, id)
	return err
}
