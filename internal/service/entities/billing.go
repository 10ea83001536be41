package entities

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/reconcile"
	"github.com/mamadbah2/dairysync/internal/repository/journal"
	"github.com/mamadbah2/dairysync/internal/repository/local"
	"github.com/mamadbah2/dairysync/internal/repository/remote"
)

// BillingRepository manages billing cycles and their per-farmer details.
// Cycles sharing a date range are resolved in favour of the first created.
type BillingRepository struct {
	sc *SyncContext
	*binding[models.BillingCycle]
	details *binding[models.FarmerBillingDetail]
}

func NewBillingRepository(sc *SyncContext) *BillingRepository {
	r := &BillingRepository{sc: sc}
	r.binding = &binding[models.BillingCycle]{
		sc:     sc,
		kind:   models.EntityBillingCycle,
		keep:   reconcile.KeepEarliest,
		logger: sc.logger().Named("svc.billing_cycles"),

		listLocal: func(ctx context.Context, store *local.Store, ownerID string) ([]models.BillingCycle, error) {
			return store.ListBillingCycles(ctx, ownerID)
		},
		listUnsynced: func(ctx context.Context, store *local.Store, ownerID string) ([]models.BillingCycle, error) {
			return store.ListUnsyncedBillingCycles(ctx, ownerID)
		},
		markSynced: func(ctx context.Context, store *local.Store, c models.BillingCycle) error {
			return store.MarkBillingCycleSynced(ctx, c)
		},
		markUnsynced: func(ctx context.Context, store *local.Store, c models.BillingCycle) error {
			return store.MarkBillingCycleUnsynced(ctx, c.ID)
		},
		encode: remote.EncodeBillingCycle,
		decode: remote.DecodeBillingCycle,
		insert: func(ctx context.Context, store *local.Store, c models.BillingCycle) error {
			return store.SaveBillingCycle(ctx, &c, local.OriginRemote)
		},
		remove: func(ctx context.Context, store *local.Store, ownerID string, c models.BillingCycle) error {
			details, err := store.DeleteBillingCycleCascade(ctx, ownerID, c.ID)
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(details))
			for _, d := range details {
				ids = append(ids, d.FarmerID)
			}
			sc.recompute(ctx, ownerID, ids...)
			return nil
		},
		afterDelete: r.deleteRemoteDetails,
	}

	r.details = &binding[models.FarmerBillingDetail]{
		sc:     sc,
		kind:   models.EntityBillingDetail,
		keep:   reconcile.KeepLatest,
		logger: sc.logger().Named("svc.billing_details"),

		listLocal: func(ctx context.Context, store *local.Store, ownerID string) ([]models.FarmerBillingDetail, error) {
			return store.ListBillingDetails(ctx, ownerID, local.DetailFilter{})
		},
		listUnsynced: func(ctx context.Context, store *local.Store, ownerID string) ([]models.FarmerBillingDetail, error) {
			return store.ListUnsyncedBillingDetails(ctx, ownerID)
		},
		markSynced: func(ctx context.Context, store *local.Store, d models.FarmerBillingDetail) error {
			return store.MarkBillingDetailSynced(ctx, d)
		},
		markUnsynced: func(ctx context.Context, store *local.Store, d models.FarmerBillingDetail) error {
			return store.MarkBillingDetailUnsynced(ctx, d.ID)
		},
		encode: remote.EncodeBillingDetail,
		decode: remote.DecodeBillingDetail,
		insert: func(ctx context.Context, store *local.Store, d models.FarmerBillingDetail) error {
			existing, err := store.GetBillingDetail(ctx, d.OwnerID, d.BillingCycleID, d.FarmerID)
			switch {
			case err == nil:
				d.ID = existing.ID
			case !errors.Is(err, models.ErrNotFound):
				return err
			}
			return store.SaveBillingDetail(ctx, &d, local.OriginRemote)
		},
		remove: func(ctx context.Context, store *local.Store, ownerID string, d models.FarmerBillingDetail) error {
			return store.DeleteBillingDetail(ctx, ownerID, d.ID)
		},
		parents:  r.detailParents,
		farmerOf: func(d models.FarmerBillingDetail) string { return d.FarmerID },
	}
	return r
}

// DetailSyncer exposes the farmer billing details to the coordinator.
func (r *BillingRepository) DetailSyncer() Syncer { return r.details }

// deleteRemoteDetails prunes the remote details of a deleted cycle.
func (r *BillingRepository) deleteRemoteDetails(ctx context.Context, ownerID string, c models.BillingCycle) error {
	docs, err := r.sc.Remote.FetchAll(ctx, models.EntityBillingDetail, ownerID)
	if err != nil {
		return fmt.Errorf("%w: fetch details of %s: %v", models.ErrNetworkUnavailable, c.ID, err)
	}
	var errs []error
	for _, doc := range docs {
		d, err := remote.DecodeBillingDetail(doc)
		if err != nil || d.BillingCycleID != c.ID {
			continue
		}
		if err := r.sc.delete(ctx, models.EntityBillingDetail, ownerID, doc.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// detailParents requires both the cycle and the farmer of a detail to exist
// locally or remotely.
func (r *BillingRepository) detailParents(ctx context.Context, ownerID string) (func(models.FarmerBillingDetail) bool, error) {
	farmers, err := farmerIDs(ctx, r.sc, ownerID)
	if err != nil {
		return nil, err
	}
	cycles := make(map[string]bool)
	locals, err := r.sc.Local.ListBillingCycles(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, c := range locals {
		cycles[c.ID] = true
	}
	docs, err := r.sc.Remote.FetchAll(ctx, models.EntityBillingCycle, ownerID)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		cycles[d.ID] = true
	}
	return func(d models.FarmerBillingDetail) bool {
		return farmers[d.FarmerID] && cycles[d.BillingCycleID]
	}, nil
}

// CreateCycle opens a cycle over [start, end] and bills every farmer with
// collections in that range for the sum of their daily totals.
func (r *BillingRepository) CreateCycle(ctx context.Context, name, start, end string) (models.BillingCycle, []models.FarmerBillingDetail, error) {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return models.BillingCycle{}, nil, err
	}
	from, err := models.ParseDateKey(start)
	if err != nil {
		return models.BillingCycle{}, nil, fmt.Errorf("%w: start date %q", models.ErrValidation, start)
	}
	to, err := models.ParseDateKey(end)
	if err != nil {
		return models.BillingCycle{}, nil, fmt.Errorf("%w: end date %q", models.ErrValidation, end)
	}
	if to.Before(from) {
		return models.BillingCycle{}, nil, fmt.Errorf("%w: cycle ends before it starts", models.ErrValidation)
	}

	cycles, err := r.sc.Local.ListBillingCycles(ctx, ownerID)
	if err != nil {
		return models.BillingCycle{}, nil, err
	}
	for _, c := range cycles {
		if c.StartDate == start && c.EndDate == end {
			return models.BillingCycle{}, nil, fmt.Errorf("%w: cycle %s already covers %s..%s", models.ErrValidation, c.ID, start, end)
		}
	}

	collections, err := r.sc.Local.ListCollections(ctx, ownerID, local.CollectionFilter{From: start, To: end})
	if err != nil {
		return models.BillingCycle{}, nil, err
	}
	amounts := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, c := range collections {
		amount := decimal.NewFromFloat(c.TotalAmount)
		amounts[c.FarmerID] = amounts[c.FarmerID].Add(amount)
		total = total.Add(amount)
	}
	billed := make([]string, 0, len(amounts))
	for id := range amounts {
		billed = append(billed, id)
	}
	sort.Strings(billed)

	created := r.sc.now().UTC().Truncate(time.Millisecond)
	cycle := models.BillingCycle{
		ID:          models.CycleID(start, end, created),
		OwnerID:     ownerID,
		Name:        name,
		StartDate:   start,
		EndDate:     end,
		TotalAmount: total.InexactFloat64(),
		Active:      true,
		SyncMeta:    models.SyncMeta{CreatedAt: created},
	}
	if err := r.sc.validate(cycle); err != nil {
		return models.BillingCycle{}, nil, err
	}

	details := make([]models.FarmerBillingDetail, 0, len(billed))
	for _, id := range billed {
		amount := amounts[id].InexactFloat64()
		details = append(details, models.FarmerBillingDetail{
			OwnerID:        ownerID,
			BillingCycleID: cycle.ID,
			FarmerID:       id,
			OriginalAmount: amount,
			BalanceAmount:  amount,
			Paid:           amount <= 0,
			SyncMeta:       models.SyncMeta{CreatedAt: created},
		})
	}

	err = r.sc.Local.Transaction(ctx, func(tx *local.Store) error {
		if err := tx.SaveBillingCycle(ctx, &cycle, local.OriginLocal); err != nil {
			return err
		}
		for i := range details {
			if err := tx.SaveBillingDetail(ctx, &details[i], local.OriginLocal); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.BillingCycle{}, nil, fmt.Errorf("create billing cycle: %w", err)
	}

	r.logger.Info("Billing cycle created",
		zap.String("cycle_id", cycle.ID),
		zap.Int("farmers", len(details)),
		zap.Float64("total_amount", cycle.TotalAmount),
	)
	r.sc.recompute(ctx, ownerID, billed...)
	r.schedulePush()
	r.details.schedulePush()
	return cycle, details, nil
}

// PayFarmer records a payment against a farmer's detail. The cycle is marked
// paid once every detail is settled.
func (r *BillingRepository) PayFarmer(ctx context.Context, cycleID, farmerID string, amount float64) (models.FarmerBillingDetail, error) {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return models.FarmerBillingDetail{}, err
	}
	if amount <= 0 {
		return models.FarmerBillingDetail{}, fmt.Errorf("%w: payment must be positive", models.ErrValidation)
	}

	var detail models.FarmerBillingDetail
	err = r.sc.Local.Transaction(ctx, func(tx *local.Store) error {
		var err error
		if detail, err = tx.GetBillingDetail(ctx, ownerID, cycleID, farmerID); err != nil {
			return err
		}
		detail.Settle(amount)
		if err := tx.SaveBillingDetail(ctx, &detail, local.OriginLocal); err != nil {
			return err
		}

		siblings, err := tx.ListBillingDetails(ctx, ownerID, local.DetailFilter{CycleID: cycleID})
		if err != nil {
			return err
		}
		for _, d := range siblings {
			if !d.Paid {
				return nil
			}
		}
		cycle, err := tx.GetBillingCycle(ctx, ownerID, cycleID)
		if err != nil {
			return err
		}
		if cycle.Paid {
			return nil
		}
		cycle.Paid = true
		cycle.Active = false
		return tx.SaveBillingCycle(ctx, &cycle, local.OriginLocal)
	})
	if err != nil {
		return models.FarmerBillingDetail{}, fmt.Errorf("pay farmer %s in %s: %w", farmerID, cycleID, err)
	}

	r.sc.recompute(ctx, ownerID, farmerID)
	r.schedulePush()
	r.details.schedulePush()
	return detail, nil
}

// DeleteCycle removes a cycle with its details and journals the remote
// deletions.
func (r *BillingRepository) DeleteCycle(ctx context.Context, id string) error {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return err
	}
	cycle, err := r.sc.Local.GetBillingCycle(ctx, ownerID, id)
	if err != nil {
		return err
	}

	var details []models.FarmerBillingDetail
	err = r.sc.Local.Transaction(ctx, func(tx *local.Store) error {
		var err error
		if details, err = tx.DeleteBillingCycleCascade(ctx, ownerID, id); err != nil {
			return err
		}
		jr := r.sc.Journal.WithTx(tx.DB())
		for _, d := range details {
			if _, err := jr.Record(ctx, journal.NewDelete(models.EntityBillingDetail, ownerID, d.BusinessKey(), d.Identity())); err != nil {
				return err
			}
		}
		_, err = jr.Record(ctx, journal.NewDelete(r.kind, ownerID, cycle.BusinessKey(), cycle.Identity()))
		return err
	})
	if err != nil {
		return fmt.Errorf("delete billing cycle %s: %w", id, err)
	}

	affected := make([]string, 0, len(details))
	for _, d := range details {
		affected = append(affected, d.FarmerID)
	}
	r.sc.recompute(ctx, ownerID, affected...)
	r.sc.scheduleDrain(ownerID)
	return nil
}

// ListCycles returns the owner's cycles.
func (r *BillingRepository) ListCycles(ctx context.Context) ([]models.BillingCycle, error) {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return nil, err
	}
	return r.sc.Local.ListBillingCycles(ctx, ownerID)
}

// ListDetails returns the details of cycleID, or all details when empty.
func (r *BillingRepository) ListDetails(ctx context.Context, cycleID string) ([]models.FarmerBillingDetail, error) {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return nil, err
	}
	return r.sc.Local.ListBillingDetails(ctx, ownerID, local.DetailFilter{CycleID: cycleID})
}
