package models

import "encoding/json"

// Farmer is a milk supplier owned by exactly one user.
type Farmer struct {
	ID      string `gorm:"primaryKey;size:36" json:"id"`
	OwnerID string `gorm:"column:owner_id;index;not null" json:"owner_id" validate:"required"`
	Name    string `gorm:"not null" json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
	Address string `json:"address" validate:"omitempty,max=255"`

	// Derived figures, rewritten by the aggregation calculator.
	TotalAmount   float64 `json:"total_amount"`
	PendingAmount float64 `json:"pending_amount"`
	Earnings      string  `gorm:"type:text" json:"earnings"`

	SyncMeta
}

// BusinessKey identifies a farmer across stores.
func (f Farmer) BusinessKey() string { return f.ID }

// Identity is the remote document id.
func (f Farmer) Identity() string { return f.ID }

// EarningsByCycle decodes the serialised per-cycle earnings map.
func (f Farmer) EarningsByCycle() (map[string]float64, error) {
	out := make(map[string]float64)
	if f.Earnings == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(f.Earnings), &out); err != nil {
		return nil, err
	}
	return out, nil
}
