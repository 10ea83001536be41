package models

import "fmt"

// Session identifies the morning or evening reading of a day.
type Session string

const (
	SessionAM Session = "am"
	SessionPM Session = "pm"
)

// Reading is a single AM or PM measurement.
type Reading struct {
	Milk  float64 `json:"milk" validate:"gte=0"`
	Fat   float64 `json:"fat" validate:"gte=0,lte=100"`
	Price float64 `json:"price" validate:"gte=0"`
}

// DailyCollection aggregates one farmer's intake for one day.
type DailyCollection struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID  string `gorm:"column:owner_id;index;not null;uniqueIndex:idx_collection_owner_farmer_date" json:"owner_id" validate:"required"`
	FarmerID string `gorm:"column:farmer_id;index;not null;uniqueIndex:idx_collection_owner_farmer_date" json:"farmer_id" validate:"required"`
	Date     string `gorm:"column:date;size:10;index;not null;uniqueIndex:idx_collection_owner_farmer_date" json:"date" validate:"required,datetime=2006-01-02"`

	AMMilk  float64 `gorm:"column:am_milk" json:"am_milk"`
	AMFat   float64 `gorm:"column:am_fat" json:"am_fat"`
	AMPrice float64 `gorm:"column:am_price" json:"am_price"`
	PMMilk  float64 `gorm:"column:pm_milk" json:"pm_milk"`
	PMFat   float64 `gorm:"column:pm_fat" json:"pm_fat"`
	PMPrice float64 `gorm:"column:pm_price" json:"pm_price"`

	TotalMilk   float64 `gorm:"column:total_milk" json:"total_milk"`
	TotalFat    float64 `gorm:"column:total_fat" json:"total_fat"`
	TotalAmount float64 `gorm:"column:total_amount" json:"total_amount"`

	SyncMeta
}

// CollectionKey renders the (farmerId, date) business key.
func CollectionKey(farmerID, date string) string {
	return fmt.Sprintf("%s_%s", farmerID, date)
}

// BusinessKey is the (farmerId, date) pair.
func (c DailyCollection) BusinessKey() string { return CollectionKey(c.FarmerID, c.Date) }

// Identity is the remote document id.
func (c DailyCollection) Identity() string { return c.Date + "/" + c.FarmerID }

// Apply replaces one session's reading and recomputes the totals.
func (c *DailyCollection) Apply(session Session, r Reading) {
	switch session {
	case SessionAM:
		c.AMMilk, c.AMFat, c.AMPrice = r.Milk, r.Fat, r.Price
	case SessionPM:
		c.PMMilk, c.PMFat, c.PMPrice = r.Milk, r.Fat, r.Price
	}
	c.Recalculate()
}

// Recalculate derives totals from the AM and PM readings. TotalFat is the
// volume-weighted mean fat.
func (c *DailyCollection) Recalculate() {
	c.TotalMilk = c.AMMilk + c.PMMilk
	c.TotalAmount = c.AMPrice + c.PMPrice
	if c.TotalMilk > 0 {
		c.TotalFat = (c.AMMilk*c.AMFat + c.PMMilk*c.PMFat) / c.TotalMilk
	} else {
		c.TotalFat = 0
	}
}
