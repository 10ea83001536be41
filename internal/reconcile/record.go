// Package reconcile diff-merges a local entity set against a remote one for a
// single entity type and owner.
//
// Build is a pure function producing a Plan; Apply executes a Plan against a
// Target. Running Build+Apply twice with no outside mutation in between yields
// an empty second plan.
package reconcile

import "time"

// Record is the view the engine needs of an entity.
type Record interface {
	// BusinessKey identifies the real-world record independent of storage ids.
	BusinessKey() string
	// Identity is the remote document id. Two records sharing a key but not an
	// identity are duplicates.
	Identity() string
	// Lineage is a stable id carried across business-key edits, or empty for
	// legacy documents.
	Lineage() string
	IsSynced() bool
	// Stamp is the last modification instant.
	Stamp() time.Time
	Created() time.Time
}

// KeepPolicy selects the survivor among records sharing a business key.
type KeepPolicy int

const (
	// KeepLatest keeps the most recently modified record.
	KeepLatest KeepPolicy = iota
	// KeepEarliest keeps the first created record.
	KeepEarliest
)

func (p KeepPolicy) String() string {
	if p == KeepEarliest {
		return "keep_earliest"
	}
	return "keep_latest"
}

// prefer reports whether a wins over b. Ties fall back to the smaller identity
// so every device elects the same survivor.
func prefer[T Record](p KeepPolicy, a, b T) bool {
	switch p {
	case KeepEarliest:
		if !a.Created().Equal(b.Created()) {
			return a.Created().Before(b.Created())
		}
	default:
		if !a.Stamp().Equal(b.Stamp()) {
			return a.Stamp().After(b.Stamp())
		}
	}
	return a.Identity() < b.Identity()
}

// dedupe groups items by business key, returning survivors, keys in first-seen
// order, and the losers.
func dedupe[T Record](items []T, keep KeepPolicy) (map[string]T, []string, []T) {
	survivors := make(map[string]T, len(items))
	keys := make([]string, 0, len(items))
	var losers []T

	for _, item := range items {
		key := item.BusinessKey()
		current, ok := survivors[key]
		if !ok {
			survivors[key] = item
			keys = append(keys, key)
			continue
		}
		if prefer(keep, item, current) {
			losers = append(losers, current)
			survivors[key] = item
		} else {
			losers = append(losers, item)
		}
	}
	return survivors, keys, losers
}
