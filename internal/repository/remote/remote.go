// Package remote defines the owner-namespaced document store the engine
// reconciles against, and the entity codecs for it.
package remote

import (
	"context"
	"strings"

	"github.com/mamadbah2/dairysync/internal/domain/models"
)

// Document is one remote record. ID is unique within (Kind, OwnerID) and may
// contain a slash for nested collections (date/farmerId, cycleId/farmerId).
type Document struct {
	Kind    models.EntityType `json:"kind"`
	OwnerID string            `json:"owner_id"`
	ID      string            `json:"id"`
	Fields  map[string]any    `json:"fields"`
}

// Path renders the hierarchical document path:
//
//	users/{U}
//	users/{U}/farmers/{farmerId}
//	users/{U}/fat_table/{id}
//	users/{U}/milk-collection/{date}/farmers/{farmerId}
//	users/{U}/billing_cycle/{cycleId}
//	users/{U}/billing_cycle/{cycleId}/farmers/{farmerId}
func (d Document) Path() string {
	return Path(d.Kind, d.OwnerID, d.ID)
}

// Path renders the document path of id in kind for owner.
func Path(kind models.EntityType, ownerID, id string) string {
	root := "users/" + ownerID
	switch kind {
	case models.EntityUser:
		return root
	case models.EntityCollection:
		date, farmerID := splitNested(id)
		return root + "/milk-collection/" + date + "/farmers/" + farmerID
	case models.EntityBillingDetail:
		cycleID, farmerID := splitNested(id)
		return root + "/billing_cycle/" + cycleID + "/farmers/" + farmerID
	default:
		return root + "/" + string(kind) + "/" + id
	}
}

// Snapshot is the full remote state of one collection for one owner.
type Snapshot struct {
	Kind    models.EntityType
	OwnerID string
	Docs    []Document
}

// Store is the remote document store contract. Every call is scoped to a single
// owner so one tenant can never read or write another's documents.
type Store interface {
	FetchAll(ctx context.Context, kind models.EntityType, ownerID string) ([]Document, error)
	Put(ctx context.Context, doc Document) error
	Delete(ctx context.Context, kind models.EntityType, ownerID, id string) error
	// Subscribe emits the current snapshot, then a new one after every change.
	// The channel closes when ctx is done or the stream fails.
	Subscribe(ctx context.Context, kind models.EntityType, ownerID string) (<-chan Snapshot, error)
}

func splitNested(id string) (string, string) {
	parent, child, ok := strings.Cut(id, "/")
	if !ok {
		return id, ""
	}
	return parent, child
}
