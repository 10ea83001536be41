package models

import (
	"encoding/json"
	"time"
)

// OperationKind enumerates journaled mutations.
type OperationKind string

const (
	OperationDelete OperationKind = "delete"
	OperationUpdate OperationKind = "update"
)

// PendingOperation is a mutation awaiting remote replay.
type PendingOperation struct {
	ID      string        `gorm:"primaryKey;size:36" json:"id"`
	Kind    OperationKind `gorm:"size:16;not null" json:"kind"`
	Entity  EntityType    `gorm:"size:32;not null;index" json:"entity"`
	OwnerID string        `gorm:"column:owner_id;index;not null" json:"owner_id"`
	// Key is the business key of the affected entity before the mutation.
	Key string `gorm:"column:business_key;not null" json:"key"`
	// DocID is the remote document id removed by the replay.
	DocID string `gorm:"column:doc_id" json:"doc_id"`
	// Payload carries the replacement document for updates.
	Payload    []byte    `gorm:"type:blob" json:"payload,omitempty"`
	EnqueuedAt time.Time `gorm:"column:enqueued_at;index;not null" json:"enqueued_at"`
}

// TableName pins the journal table name.
func (PendingOperation) TableName() string { return "pending_operations" }

// DecodePayload unmarshals the payload into dst.
func (op PendingOperation) DecodePayload(dst any) error {
	return json.Unmarshal(op.Payload, dst)
}
