package models

import (
	"strconv"
	"time"
)

// EntityType names a synchronised collection. The value doubles as the remote
// collection segment under users/{owner}/.
type EntityType string

const (
	EntityUser          EntityType = "users"
	EntityFarmer        EntityType = "farmers"
	EntityPriceBracket  EntityType = "fat_table"
	EntityCollection    EntityType = "milk-collection"
	EntityBillingCycle  EntityType = "billing_cycle"
	EntityBillingDetail EntityType = "billing_cycle_farmers"
)

// SyncOrder lists entity types parents first, the order every full pass follows.
func SyncOrder() []EntityType {
	return []EntityType{
		EntityUser,
		EntityFarmer,
		EntityPriceBracket,
		EntityCollection,
		EntityBillingCycle,
		EntityBillingDetail,
	}
}

// DateLayout is the calendar-day layout used for collection and billing dates.
const DateLayout = "2006-01-02"

// DateKey renders t as a calendar-day key.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDateKey parses a calendar-day key.
func ParseDateKey(value string) (time.Time, error) {
	return time.Parse(DateLayout, value)
}

// SyncMeta is embedded in every synchronised entity.
type SyncMeta struct {
	// UID identifies the logical record across business-key edits.
	UID       string    `gorm:"column:uid;size:36;index" json:"uid"`
	Revision  int64     `gorm:"column:revision;not null;default:0" json:"revision"`
	Synced    bool      `gorm:"column:synced;index;not null;default:false" json:"synced"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime:false" json:"updated_at"`
}

// Lineage returns the stable record id carried across key changes.
func (m SyncMeta) Lineage() string { return m.UID }

// IsSynced reports whether the last local mutation was confirmed remotely.
func (m SyncMeta) IsSynced() bool { return m.Synced }

// Created returns the creation instant.
func (m SyncMeta) Created() time.Time { return m.CreatedAt }

// Stamp returns the most recent of the creation and update instants.
func (m SyncMeta) Stamp() time.Time {
	if m.UpdatedAt.After(m.CreatedAt) {
		return m.UpdatedAt
	}
	return m.CreatedAt
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
