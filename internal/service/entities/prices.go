package entities

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/reconcile"
	"github.com/mamadbah2/dairysync/internal/repository/journal"
	"github.com/mamadbah2/dairysync/internal/repository/local"
	"github.com/mamadbah2/dairysync/internal/repository/remote"
)

// PriceRepository manages the fat-percentage price table. Writes are
// serialised so that the overlap check and the save see the same table.
type PriceRepository struct {
	sc *SyncContext
	mu sync.Mutex
	*binding[models.PriceBracket]
}

func NewPriceRepository(sc *SyncContext) *PriceRepository {
	r := &PriceRepository{sc: sc}
	r.binding = &binding[models.PriceBracket]{
		sc:     sc,
		kind:   models.EntityPriceBracket,
		keep:   reconcile.KeepLatest,
		logger: sc.logger().Named("svc.prices"),

		listLocal: func(ctx context.Context, store *local.Store, ownerID string) ([]models.PriceBracket, error) {
			return store.ListPriceBrackets(ctx, ownerID)
		},
		listUnsynced: func(ctx context.Context, store *local.Store, ownerID string) ([]models.PriceBracket, error) {
			return store.ListUnsyncedPriceBrackets(ctx, ownerID)
		},
		markSynced: func(ctx context.Context, store *local.Store, b models.PriceBracket) error {
			return store.MarkPriceBracketSynced(ctx, b)
		},
		markUnsynced: func(ctx context.Context, store *local.Store, b models.PriceBracket) error {
			return store.MarkPriceBracketUnsynced(ctx, b.ID)
		},
		encode: remote.EncodePriceBracket,
		decode: remote.DecodePriceBracket,
		insert: func(ctx context.Context, store *local.Store, b models.PriceBracket) error {
			existing, err := store.FindPriceBracketByRemoteID(ctx, b.AddedBy, b.RemoteID)
			switch {
			case err == nil:
				b.ID = existing.ID
			case !errors.Is(err, models.ErrNotFound):
				return err
			}
			return store.SavePriceBracket(ctx, &b, local.OriginRemote)
		},
		remove: func(ctx context.Context, store *local.Store, ownerID string, b models.PriceBracket) error {
			return store.DeletePriceBracket(ctx, ownerID, b.ID)
		},
		similar: similarBracket,
	}
	return r
}

// similarBracket is the legacy update heuristic: same price and one shared
// bound means one bracket was resized into the other.
func similarBracket(l, r models.PriceBracket) bool {
	return l.Price == r.Price && (l.From == r.From || l.To == r.To)
}

// checkOverlap rejects b when its range intersects another bracket.
func checkOverlap(ctx context.Context, store *local.Store, ownerID string, b models.PriceBracket) error {
	existing, err := store.ListPriceBrackets(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID == b.ID && b.ID != 0 {
			continue
		}
		if b.Overlaps(other) {
			return fmt.Errorf("%w: [%g, %g) intersects [%g, %g)", models.ErrOverlappingRange, b.From, b.To, other.From, other.To)
		}
	}
	return nil
}

// Add inserts a new bracket after checking it against the existing table.
func (r *PriceRepository) Add(ctx context.Context, b *models.PriceBracket) error {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.sc.Local.Transaction(ctx, func(tx *local.Store) error {
		return r.add(ctx, tx, ownerID, b)
	})
	if err != nil {
		return err
	}
	r.schedulePush()
	return nil
}

func (r *PriceRepository) add(ctx context.Context, tx *local.Store, ownerID string, b *models.PriceBracket) error {
	b.ID = 0
	b.AddedBy = ownerID
	b.SyncMeta = models.SyncMeta{}
	if err := r.sc.validate(b); err != nil {
		return err
	}
	if err := checkOverlap(ctx, tx, ownerID, *b); err != nil {
		return err
	}
	b.RemoteID = remote.PriceBracketDocID(*b)
	return tx.SavePriceBracket(ctx, b, local.OriginLocal)
}

// Update edits the bracket identified by b.ID. A change of range or price moves
// the remote document, so the replacement is journaled with the old id.
func (r *PriceRepository) Update(ctx context.Context, b *models.PriceBracket) error {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return err
	}
	current, err := r.sc.Local.GetPriceBracket(ctx, ownerID, b.ID)
	if err != nil {
		return err
	}

	b.AddedBy = ownerID
	b.SyncMeta = current.SyncMeta
	if err := r.sc.validate(b); err != nil {
		return err
	}

	keyChanged := b.BusinessKey() != current.BusinessKey()
	b.RemoteID = current.RemoteID
	if keyChanged {
		b.RemoteID = remote.PriceBracketDocID(*b)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.sc.Local.Transaction(ctx, func(tx *local.Store) error {
		if err := checkOverlap(ctx, tx, ownerID, *b); err != nil {
			return err
		}
		if err := tx.SavePriceBracket(ctx, b, local.OriginLocal); err != nil {
			return err
		}
		if !keyChanged {
			return nil
		}
		op, err := journal.NewUpdate(r.kind, ownerID, current.BusinessKey(), current.Identity(), remote.EncodePriceBracket(*b))
		if err != nil {
			return err
		}
		_, err = r.sc.Journal.WithTx(tx.DB()).Record(ctx, op)
		return err
	})
	if err != nil {
		return fmt.Errorf("update price bracket %d: %w", b.ID, err)
	}

	if keyChanged {
		r.sc.scheduleDrain(ownerID)
	}
	r.schedulePush()
	return nil
}

// Delete removes a bracket and journals its remote deletion.
func (r *PriceRepository) Delete(ctx context.Context, id uint) error {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return err
	}
	current, err := r.sc.Local.GetPriceBracket(ctx, ownerID, id)
	if err != nil {
		return err
	}

	err = r.sc.Local.Transaction(ctx, func(tx *local.Store) error {
		if err := tx.DeletePriceBracket(ctx, ownerID, id); err != nil {
			return err
		}
		_, err := r.sc.Journal.WithTx(tx.DB()).Record(ctx,
			journal.NewDelete(r.kind, ownerID, current.BusinessKey(), current.Identity()))
		return err
	})
	if err != nil {
		return fmt.Errorf("delete price bracket %d: %w", id, err)
	}
	r.sc.scheduleDrain(ownerID)
	return nil
}

// List returns the table ordered by lower bound.
func (r *PriceRepository) List(ctx context.Context) ([]models.PriceBracket, error) {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return nil, err
	}
	return r.sc.Local.ListPriceBrackets(ctx, ownerID)
}

// RateFor returns the price per litre for fat.
func (r *PriceRepository) RateFor(ctx context.Context, fat float64) (float64, error) {
	brackets, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, b := range brackets {
		if b.Contains(fat) {
			return b.Price, nil
		}
	}
	return 0, fmt.Errorf("%w: no price bracket for fat %g", models.ErrNotFound, fat)
}

// Import adds a batch of brackets in one transaction. The batch is rejected as
// a whole if any bracket is invalid or overlaps another one.
func (r *PriceRepository) Import(ctx context.Context, brackets []models.PriceBracket) (int, error) {
	ownerID, err := r.sc.Owner()
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	err = r.sc.Local.Transaction(ctx, func(tx *local.Store) error {
		for i := range brackets {
			if err := r.add(ctx, tx, ownerID, &brackets[i]); err != nil {
				return fmt.Errorf("bracket %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.schedulePush()
	return len(brackets), nil
}
