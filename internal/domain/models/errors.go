package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNetworkUnavailable means the remote step was skipped; the local write stands.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrNotAuthenticated aborts an operation before any write.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrRemoteWrite means the entity stays unsynced until the next pass.
	ErrRemoteWrite = errors.New("remote write failed")
	// ErrValidation rejects a mutation before anything is persisted.
	ErrValidation = errors.New("validation failed")
	// ErrAmbiguousReconciliation marks a heuristic match that was left unmerged.
	ErrAmbiguousReconciliation = errors.New("ambiguous reconciliation")
	// ErrNotFound is returned when a record does not exist locally.
	ErrNotFound = errors.New("record not found")
	// ErrOverlappingRange rejects a price bracket intersecting an existing one.
	ErrOverlappingRange = fmt.Errorf("%w: overlapping fat range", ErrValidation)
)
