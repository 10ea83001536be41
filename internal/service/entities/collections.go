package entities

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/reconcile"
	"github.com/mamadbah2/dairysync/internal/repository/journal"
	"github.com/mamadbah2/dairysync/internal/repository/local"
	"github.com/mamadbah2/dairysync/internal/repository/remote"
)

// CollectionRepository manages daily milk collections.
type CollectionRepository struct {
	sc     *SyncContext
	prices *PriceRepository
	*binding[models.DailyCollection]
}

func NewCollectionRepository(sc *SyncContext, prices *PriceRepository) *CollectionRepository {
	r := &CollectionRepository{sc: sc, prices: prices}
	r.binding = &binding[models.DailyCollection]{
		sc:     sc,
		kind:   models.EntityCollection,
		keep:   reconcile.KeepLatest,
		logger: sc.logger().Named("svc.collections"),

		listLocal: func(ctx context.Context, store *local.Store, ownerID string) ([]models.DailyCollection, error) {
			return store.ListCollections(ctx, ownerID, local.CollectionFilter{})
		},
		listUnsynced: func(ctx context.Context, store *local.Store, ownerID string) ([]models.DailyCollection, error) {
			return store.ListUnsyncedCollections(ctx, ownerID)
		},
		markSynced: func(ctx context.Context, store *local.Store, c models.DailyCollection) error {
			return store.MarkCollectionSynced(ctx, c)
		},
		markUnsynced: func(ctx context.Context, store *local.Store, c models.DailyCollection) error {
			return store.MarkCollectionUnsynced(ctx, c.ID)
		},
		encode: remote.EncodeCollection,
		decode: remote.DecodeCollection,
		insert: func(ctx context.Context, store *local.Store, c models.DailyCollection) error {
			return store.Transaction(ctx, func(tx *local.Store) error {
				existing, err := tx.FindCollection(ctx, c.OwnerID, c.FarmerID, c.Date)
				switch {
				case err == nil:
					c.ID = existing.ID
				case !errors.Is(err, models.ErrNotFound):
					return err
				}
				return tx.SaveCollection(ctx, &c, local.OriginRemote)
			})
		},
		remove: func(ctx context.Context, store *local.Store, ownerID string, c models.DailyCollection) error {
			return store.DeleteCollection(ctx, ownerID, c.ID)
		},
		parents:  farmerParents(sc, collectionFarmer),
		farmerOf: collectionFarmer,
	}
	return r
}

func collectionFarmer(c models.DailyCollection) string { return c.FarmerID }

// farmerParents reports whether the farmer of a child record still exists on
// either side. Children of a farmer gone from both are orphans.
func farmerParents[T any](sc *SyncContext, farmerOf func(T) string) func(ctx context.Context, ownerID string) (func(T) bool, error) {
	return func(ctx context.Context, ownerID string) (func(T) bool, error) {
		known, err := farmerIDs(ctx, sc, ownerID)
		if err != nil {
			return nil, err
		}
		return func(item T) bool { return known[farmerOf(item)] }, nil
	}
}

func farmerIDs(ctx context.Context, sc *SyncContext, ownerID string) (map[string]bool, error) {
	known := make(map[string]bool)
	farmers, err := sc.Local.ListFarmers(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, f := range farmers {
		known[f.ID] = true
	}
	docs, err := sc.Remote.FetchAll(ctx, models.EntityFarmer, ownerID)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		known[d.ID] = true
	}
	return known, nil
}

// Record applies one session's reading to the (farmer, date) collection,
// keeping the other session's reading.
func (r *CollectionRepository) Record(ctx context.Context, farmerID, date string, session models.Session, reading models.Reading) (models.DailyCollection, error) {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return models.DailyCollection{}, err
	}
	if session != models.SessionAM && session != models.SessionPM {
		return models.DailyCollection{}, fmt.Errorf("%w: unknown session %q", models.ErrValidation, session)
	}
	if err := r.sc.validate(reading); err != nil {
		return models.DailyCollection{}, err
	}
	if _, err := models.ParseDateKey(date); err != nil {
		return models.DailyCollection{}, fmt.Errorf("%w: date %q", models.ErrValidation, date)
	}
	if _, err := r.sc.Local.GetFarmer(ctx, ownerID, farmerID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.DailyCollection{}, fmt.Errorf("%w: unknown farmer %s", models.ErrValidation, farmerID)
		}
		return models.DailyCollection{}, err
	}

	// Lookup and write share one transaction: concurrent AM and PM readings
	// of a day land in one row.
	var c models.DailyCollection
	err = r.sc.Local.Transaction(ctx, func(tx *local.Store) error {
		existing, err := tx.FindCollection(ctx, ownerID, farmerID, date)
		switch {
		case err == nil:
			c = existing
		case errors.Is(err, models.ErrNotFound):
			c = models.DailyCollection{OwnerID: ownerID, FarmerID: farmerID, Date: date}
		default:
			return err
		}
		c.Apply(session, reading)
		return tx.SaveCollection(ctx, &c, local.OriginLocal)
	})
	if err != nil {
		return models.DailyCollection{}, err
	}
	r.sc.recompute(ctx, ownerID, farmerID)
	r.schedulePush()
	return c, nil
}

// RecordAM stores the morning reading.
func (r *CollectionRepository) RecordAM(ctx context.Context, farmerID, date string, reading models.Reading) (models.DailyCollection, error) {
	return r.Record(ctx, farmerID, date, models.SessionAM, reading)
}

// RecordPM stores the evening reading.
func (r *CollectionRepository) RecordPM(ctx context.Context, farmerID, date string, reading models.Reading) (models.DailyCollection, error) {
	return r.Record(ctx, farmerID, date, models.SessionPM, reading)
}

// PriceReading builds a reading whose price is milk times the bracket rate
// for fat.
func (r *CollectionRepository) PriceReading(ctx context.Context, milk, fat float64) (models.Reading, error) {
	rate, err := r.prices.RateFor(ctx, fat)
	if err != nil {
		return models.Reading{}, err
	}
	amount, _ := decimal.NewFromFloat(milk).Mul(decimal.NewFromFloat(rate)).Round(2).Float64()
	return models.Reading{Milk: milk, Fat: fat, Price: amount}, nil
}

// Delete removes the (farmer, date) collection and journals its remote deletion.
func (r *CollectionRepository) Delete(ctx context.Context, farmerID, date string) error {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return err
	}
	c, err := r.sc.Local.FindCollection(ctx, ownerID, farmerID, date)
	if err != nil {
		return err
	}

	err = r.sc.Local.Transaction(ctx, func(tx *local.Store) error {
		if err := tx.DeleteCollection(ctx, ownerID, c.ID); err != nil {
			return err
		}
		_, err := r.sc.Journal.WithTx(tx.DB()).Record(ctx,
			journal.NewDelete(r.kind, ownerID, c.BusinessKey(), c.Identity()))
		return err
	})
	if err != nil {
		return fmt.Errorf("delete collection %s: %w", c.BusinessKey(), err)
	}
	r.sc.recompute(ctx, ownerID, farmerID)
	r.sc.scheduleDrain(ownerID)
	return nil
}

// ListByFarmer returns a farmer's collections by date.
func (r *CollectionRepository) ListByFarmer(ctx context.Context, farmerID string) ([]models.DailyCollection, error) {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return nil, err
	}
	return r.sc.Local.ListCollections(ctx, ownerID, local.CollectionFilter{FarmerID: farmerID})
}

// ListRange returns all collections dated within [from, to].
func (r *CollectionRepository) ListRange(ctx context.Context, from, to string) ([]models.DailyCollection, error) {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return nil, err
	}
	return r.sc.Local.ListCollections(ctx, ownerID, local.CollectionFilter{From: from, To: to})
}
