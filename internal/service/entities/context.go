// Package entities holds the entity repositories. Each wraps the local store,
// the remote store and the reconciliation engine for one entity type.
package entities

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/domain/ports"
	"github.com/mamadbah2/dairysync/internal/reconcile"
	"github.com/mamadbah2/dairysync/internal/repository/journal"
	"github.com/mamadbah2/dairysync/internal/repository/local"
	"github.com/mamadbah2/dairysync/internal/repository/remote"
	"github.com/mamadbah2/dairysync/internal/worker"
)

// Aggregator re-derives farmer totals from local state.
type Aggregator interface {
	Recompute(ctx context.Context, ownerID, farmerID string) error
}

// SyncContext carries every collaborator a repository needs. It is built once
// by the process entry point and shared by all repositories.
type SyncContext struct {
	Local      *local.Store
	Journal    *journal.Journal
	Remote     remote.Store
	Auth       ports.Authenticator
	Net        ports.Connectivity
	Pool       *worker.Pool
	Guards     *reconcile.Guards
	Aggregates Aggregator
	Validate   *validator.Validate
	Logger     *zap.Logger
	Now        func() time.Time

	// RecentWindow bounds "recently synced" for stale-copy detection.
	RecentWindow time.Duration

	drainMu sync.Mutex
}

func (sc *SyncContext) logger() *zap.Logger {
	if sc.Logger == nil {
		return zap.NewNop()
	}
	return sc.Logger
}

func (sc *SyncContext) now() time.Time {
	if sc.Now == nil {
		return time.Now()
	}
	return sc.Now()
}

func (sc *SyncContext) validate(v any) error {
	if sc.Validate == nil {
		return nil
	}
	if err := sc.Validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", models.ErrValidation, err.Error())
	}
	return nil
}

// Owner returns the signed-in user id.
func (sc *SyncContext) Owner() (string, error) {
	if sc.Auth == nil {
		return "", models.ErrNotAuthenticated
	}
	owner, err := sc.Auth.CurrentUserID()
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrNotAuthenticated, err)
	}
	return owner, nil
}

// Online reports connectivity; a missing collaborator counts as online.
func (sc *SyncContext) Online() bool {
	return sc.Net == nil || sc.Net.IsOnline()
}

// background runs task on the pool when online and reports whether it was
// queued. Offline or with a full queue the task is dropped; the affected rows
// stay unsynced for the next pass.
func (sc *SyncContext) background(name string, task worker.Task) bool {
	if !sc.Online() {
		sc.logger().Debug("Offline, remote step deferred", zap.String("task", name))
		return false
	}
	if sc.Pool == nil {
		return false
	}
	if err := sc.Pool.Submit(name, task); err != nil {
		sc.logger().Warn("Background task not queued", zap.String("task", name), zap.Error(err))
		return false
	}
	return true
}

func (sc *SyncContext) recompute(ctx context.Context, ownerID string, farmerIDs ...string) {
	if sc.Aggregates == nil {
		return
	}
	seen := make(map[string]bool, len(farmerIDs))
	for _, id := range farmerIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if err := sc.Aggregates.Recompute(ctx, ownerID, id); err != nil && !errors.Is(err, models.ErrNotFound) {
			sc.logger().Warn("Aggregate recompute failed", zap.String("farmer_id", id), zap.Error(err))
		}
	}
}

func (sc *SyncContext) put(ctx context.Context, doc remote.Document) error {
	if err := sc.Remote.Put(ctx, doc); err != nil {
		return fmt.Errorf("%w: put %s: %v", models.ErrRemoteWrite, doc.Path(), err)
	}
	if sc.Guards != nil {
		sc.Guards.MarkRemoteWrite(doc.Kind)
	}
	return nil
}

func (sc *SyncContext) delete(ctx context.Context, kind models.EntityType, ownerID, id string) error {
	if err := sc.Remote.Delete(ctx, kind, ownerID, id); err != nil {
		return fmt.Errorf("%w: delete %s: %v", models.ErrRemoteWrite, remote.Path(kind, ownerID, id), err)
	}
	if sc.Guards != nil {
		sc.Guards.MarkRemoteWrite(kind)
	}
	return nil
}

// scheduleDrain replays the journal in the background.
func (sc *SyncContext) scheduleDrain(ownerID string) {
	sc.background("drain journal", func(ctx context.Context) error {
		_, err := sc.DrainJournal(ctx, ownerID)
		return err
	})
}

// DrainJournal replays the owner's pending operations in order and returns how
// many were applied. It stops at the first remote failure so later operations
// never overtake earlier ones.
func (sc *SyncContext) DrainJournal(ctx context.Context, ownerID string) (int, error) {
	if !sc.Online() {
		return 0, models.ErrNetworkUnavailable
	}
	sc.drainMu.Lock()
	defer sc.drainMu.Unlock()

	ops, err := sc.Journal.ListPending(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		if err := sc.Replay(ctx, op); err != nil {
			sc.logger().Warn("Journal replay stopped",
				zap.String("op_id", op.ID),
				zap.String("entity", string(op.Entity)),
				zap.String("key", op.Key),
				zap.Error(err),
			)
			return applied, err
		}
		if err := sc.Journal.Remove(ctx, op.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
			return applied, err
		}
		applied++
	}
	if applied > 0 {
		sc.logger().Info("Journal drained", zap.String("owner_id", ownerID), zap.Int("applied", applied))
	}
	return applied, nil
}

// Replay applies one journaled operation to the remote store. Remote writes
// are keyed by document id, so replaying twice is harmless.
func (sc *SyncContext) Replay(ctx context.Context, op models.PendingOperation) error {
	switch op.Kind {
	case models.OperationDelete:
		return sc.delete(ctx, op.Entity, op.OwnerID, op.DocID)
	case models.OperationUpdate:
		var doc remote.Document
		if err := op.DecodePayload(&doc); err != nil {
			return fmt.Errorf("decode %s payload: %w", op.Entity, err)
		}
		if err := sc.put(ctx, doc); err != nil {
			return err
		}
		if op.DocID != "" && op.DocID != doc.ID {
			return sc.delete(ctx, op.Entity, op.OwnerID, op.DocID)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown operation kind %q", models.ErrValidation, op.Kind)
	}
}
