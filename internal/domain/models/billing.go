package models

import (
	"fmt"
	"time"
)

// BillingCycle is a named date range over which farmer earnings are settled.
type BillingCycle struct {
	ID          string  `gorm:"primaryKey;size:64" json:"id"`
	OwnerID     string  `gorm:"column:owner_id;index;not null" json:"owner_id" validate:"required"`
	Name        string  `gorm:"not null" json:"name" validate:"required,max=120"`
	StartDate   string  `gorm:"column:start_date;size:10;not null" json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string  `gorm:"column:end_date;size:10;not null" json:"end_date" validate:"required,datetime=2006-01-02"`
	TotalAmount float64 `gorm:"column:total_amount" json:"total_amount"`
	Active      bool    `gorm:"column:active" json:"active"`
	Paid        bool    `gorm:"column:paid" json:"paid"`

	SyncMeta
}

// CycleID derives a cycle id from its date range and creation instant.
func CycleID(start, end string, created time.Time) string {
	return fmt.Sprintf("%s_%s_%d", start, end, created.UnixMilli())
}

// BusinessKey is the [start, end] range.
func (c BillingCycle) BusinessKey() string { return c.StartDate + "_" + c.EndDate }

// Identity is the remote document id.
func (c BillingCycle) Identity() string { return c.ID }

// FarmerBillingDetail is one farmer's share of a billing cycle.
type FarmerBillingDetail struct {
	ID             uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID        string  `gorm:"column:owner_id;index;not null" json:"owner_id" validate:"required"`
	BillingCycleID string  `gorm:"column:billing_cycle_id;size:64;not null;uniqueIndex:idx_detail_cycle_farmer" json:"billing_cycle_id" validate:"required"`
	FarmerID       string  `gorm:"column:farmer_id;size:36;not null;uniqueIndex:idx_detail_cycle_farmer" json:"farmer_id" validate:"required"`
	OriginalAmount float64 `gorm:"column:original_amount" json:"original_amount" validate:"gte=0"`
	PaidAmount     float64 `gorm:"column:paid_amount" json:"paid_amount" validate:"gte=0"`
	BalanceAmount  float64 `gorm:"column:balance_amount" json:"balance_amount"`
	Paid           bool    `gorm:"column:paid" json:"paid"`

	SyncMeta
}

// BusinessKey is the (billingCycleId, farmerId) pair.
func (d FarmerBillingDetail) BusinessKey() string { return d.BillingCycleID + "_" + d.FarmerID }

// Identity is the remote document id.
func (d FarmerBillingDetail) Identity() string { return d.BillingCycleID + "/" + d.FarmerID }

// Settle records a payment and refreshes the balance.
func (d *FarmerBillingDetail) Settle(amount float64) {
	d.PaidAmount += amount
	d.BalanceAmount = d.OriginalAmount - d.PaidAmount
	d.Paid = d.BalanceAmount <= 0
}
