package entities

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/reconcile"
	"github.com/mamadbah2/dairysync/internal/repository/journal"
	"github.com/mamadbah2/dairysync/internal/repository/local"
	"github.com/mamadbah2/dairysync/internal/repository/remote"
)

// FarmerRepository manages farmers.
type FarmerRepository struct {
	sc *SyncContext
	*binding[models.Farmer]
}

func NewFarmerRepository(sc *SyncContext) *FarmerRepository {
	r := &FarmerRepository{sc: sc}
	r.binding = &binding[models.Farmer]{
		sc:     sc,
		kind:   models.EntityFarmer,
		keep:   reconcile.KeepLatest,
		logger: sc.logger().Named("svc.farmers"),

		listLocal: func(ctx context.Context, store *local.Store, ownerID string) ([]models.Farmer, error) {
			return store.ListFarmers(ctx, ownerID)
		},
		listUnsynced: func(ctx context.Context, store *local.Store, ownerID string) ([]models.Farmer, error) {
			return store.ListUnsyncedFarmers(ctx, ownerID)
		},
		markSynced: func(ctx context.Context, store *local.Store, f models.Farmer) error {
			return store.MarkFarmerSynced(ctx, f)
		},
		markUnsynced: func(ctx context.Context, store *local.Store, f models.Farmer) error {
			return store.MarkFarmerUnsynced(ctx, f.ID)
		},
		encode: remote.EncodeFarmer,
		decode: remote.DecodeFarmer,
		insert: func(ctx context.Context, store *local.Store, f models.Farmer) error {
			return store.SaveFarmer(ctx, &f, local.OriginRemote)
		},
		remove: func(ctx context.Context, store *local.Store, ownerID string, f models.Farmer) error {
			_, err := store.DeleteFarmerCascade(ctx, ownerID, f.ID)
			return err
		},
		farmerOf: func(f models.Farmer) string { return f.ID },
	}
	return r
}

// Save creates or edits a farmer. Derived totals are kept from the stored row.
func (r *FarmerRepository) Save(ctx context.Context, f *models.Farmer) error {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return err
	}
	f.OwnerID = ownerID
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if err := r.sc.validate(f); err != nil {
		return err
	}

	existing, err := r.sc.Local.GetFarmer(ctx, ownerID, f.ID)
	switch {
	case err == nil:
		f.SyncMeta = existing.SyncMeta
		f.TotalAmount = existing.TotalAmount
		f.PendingAmount = existing.PendingAmount
		f.Earnings = existing.Earnings
	case !errors.Is(err, models.ErrNotFound):
		return err
	}

	if err := r.sc.Local.SaveFarmer(ctx, f, local.OriginLocal); err != nil {
		return err
	}
	r.schedulePush()
	return nil
}

// Get loads a farmer of the signed-in owner.
func (r *FarmerRepository) Get(ctx context.Context, id string) (models.Farmer, error) {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return models.Farmer{}, err
	}
	return r.sc.Local.GetFarmer(ctx, ownerID, id)
}

// List returns the signed-in owner's farmers.
func (r *FarmerRepository) List(ctx context.Context) ([]models.Farmer, error) {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return nil, err
	}
	return r.sc.Local.ListFarmers(ctx, ownerID)
}

// Delete removes a farmer with its collections and billing details, and
// journals the matching remote deletions in the same transaction.
func (r *FarmerRepository) Delete(ctx context.Context, id string) error {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return err
	}

	var removed local.FarmerCascade
	err = r.sc.Local.Transaction(ctx, func(tx *local.Store) error {
		if removed, err = tx.DeleteFarmerCascade(ctx, ownerID, id); err != nil {
			return err
		}

		jr := r.sc.Journal.WithTx(tx.DB())
		ops := make([]models.PendingOperation, 0, 1+len(removed.Collections)+len(removed.Details))
		for _, c := range removed.Collections {
			ops = append(ops, journal.NewDelete(models.EntityCollection, ownerID, c.BusinessKey(), c.Identity()))
		}
		for _, d := range removed.Details {
			ops = append(ops, journal.NewDelete(models.EntityBillingDetail, ownerID, d.BusinessKey(), d.Identity()))
		}
		ops = append(ops, journal.NewDelete(models.EntityFarmer, ownerID, removed.Farmer.BusinessKey(), removed.Farmer.Identity()))
		for _, op := range ops {
			if _, err := jr.Record(ctx, op); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete farmer %s: %w", id, err)
	}

	r.logger.Info("Farmer deleted",
		zap.String("farmer_id", id),
		zap.Int("collections", len(removed.Collections)),
		zap.Int("billing_details", len(removed.Details)),
	)
	r.sc.scheduleDrain(ownerID)
	return nil
}

// Import validates a batch and saves it through the regular write path. The
// batch is rejected as a whole if any farmer is invalid.
func (r *FarmerRepository) Import(ctx context.Context, farmers []models.Farmer) (int, error) {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return 0, err
	}
	for i := range farmers {
		farmers[i].OwnerID = ownerID
		if farmers[i].ID == "" {
			farmers[i].ID = uuid.NewString()
		}
		if err := r.sc.validate(farmers[i]); err != nil {
			return 0, fmt.Errorf("farmer %d (%s): %w", i+1, farmers[i].Name, err)
		}
	}

	saved := 0
	for i := range farmers {
		if err := r.Save(ctx, &farmers[i]); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}
