package models

import "fmt"

// PriceBracket maps the half-open fat range [From, To) to a price per litre.
type PriceBracket struct {
	ID      uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	AddedBy string  `gorm:"column:added_by;index;not null" json:"added_by" validate:"required"`
	From    float64 `gorm:"column:fat_from;not null" json:"from" validate:"gte=0"`
	To      float64 `gorm:"column:fat_to;not null" json:"to" validate:"gtfield=From"`
	Price   float64 `gorm:"column:price;not null" json:"price" validate:"gt=0"`

	// RemoteID is the remote document id; legacy documents use generated ids.
	RemoteID string `gorm:"column:remote_id;index" json:"remote_id"`

	SyncMeta
}

// BusinessKey is the (from, to, price) triple.
func (b PriceBracket) BusinessKey() string {
	return fmt.Sprintf("%s_%s_%s", formatNumber(b.From), formatNumber(b.To), formatNumber(b.Price))
}

// Identity is the remote document id.
func (b PriceBracket) Identity() string {
	if b.RemoteID != "" {
		return b.RemoteID
	}
	return b.BusinessKey()
}

// Overlaps reports whether two half-open ranges intersect.
func (b PriceBracket) Overlaps(other PriceBracket) bool {
	return b.To > other.From && other.To > b.From
}

// Contains reports whether fat falls inside the bracket.
func (b PriceBracket) Contains(fat float64) bool {
	return fat >= b.From && fat < b.To
}
