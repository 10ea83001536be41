// Package aggregation re-derives farmer totals from reconciled local state.
package aggregation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/repository/local"
)

// Totals are the derived figures of one farmer over the farmer's whole
// history: Total covers every collection on record, not only the current
// billing period. Per-period figures live in Earnings, keyed by cycle id.
type Totals struct {
	FarmerID string
	Total    decimal.Decimal
	Settled  decimal.Decimal
	Pending  decimal.Decimal
	Earnings map[string]decimal.Decimal
}

// Calculator recomputes totals from scratch on every call; nothing is
// accumulated incrementally.
type Calculator struct {
	store  *local.Store
	logger *zap.Logger
}

func NewCalculator(store *local.Store, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{store: store, logger: logger}
}

// Compute derives the totals of farmerID without writing them:
// Total sums the farmer's collection amounts, Settled sums the original
// amounts of the farmer's billing details and Pending is their difference.
func (c *Calculator) Compute(ctx context.Context, ownerID, farmerID string) (Totals, error) {
	collections, err := c.store.ListCollections(ctx, ownerID, local.CollectionFilter{FarmerID: farmerID})
	if err != nil {
		return Totals{}, err
	}
	details, err := c.store.ListBillingDetails(ctx, ownerID, local.DetailFilter{FarmerID: farmerID})
	if err != nil {
		return Totals{}, err
	}

	t := Totals{
		FarmerID: farmerID,
		Total:    decimal.Zero,
		Settled:  decimal.Zero,
		Earnings: make(map[string]decimal.Decimal, len(details)),
	}
	for _, col := range collections {
		t.Total = t.Total.Add(decimal.NewFromFloat(col.TotalAmount))
	}
	for _, d := range details {
		amount := decimal.NewFromFloat(d.OriginalAmount)
		t.Settled = t.Settled.Add(amount)
		t.Earnings[d.BillingCycleID] = t.Earnings[d.BillingCycleID].Add(amount)
	}
	t.Pending = t.Total.Sub(t.Settled)
	return t, nil
}

// Recompute derives and stores the totals of farmerID. Only derived columns
// are written; the farmer's sync state is untouched.
func (c *Calculator) Recompute(ctx context.Context, ownerID, farmerID string) error {
	t, err := c.Compute(ctx, ownerID, farmerID)
	if err != nil {
		return err
	}

	earnings := make(map[string]float64, len(t.Earnings))
	for cycleID, amount := range t.Earnings {
		earnings[cycleID] = amount.Round(2).InexactFloat64()
	}
	raw, err := json.Marshal(earnings)
	if err != nil {
		return fmt.Errorf("encode earnings of %s: %w", farmerID, err)
	}

	return c.store.UpdateFarmerTotals(ctx, ownerID, farmerID,
		t.Total.Round(2).InexactFloat64(),
		t.Pending.Round(2).InexactFloat64(),
		string(raw),
	)
}

// RecomputeAll recomputes every farmer of ownerID and returns how many were
// updated.
func (c *Calculator) RecomputeAll(ctx context.Context, ownerID string) (int, error) {
	farmers, err := c.store.ListFarmers(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, f := range farmers {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		if err := c.Recompute(ctx, ownerID, f.ID); err != nil {
			c.logger.Warn("Recompute failed", zap.String("farmer_id", f.ID), zap.Error(err))
			continue
		}
		updated++
	}
	c.logger.Debug("Aggregates recomputed", zap.String("owner_id", ownerID), zap.Int("farmers", updated))
	return updated, nil
}
