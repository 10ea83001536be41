package entities

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/reconcile"
	"github.com/mamadbah2/dairysync/internal/repository/local"
	"github.com/mamadbah2/dairysync/internal/repository/remote"
)

// Syncer is the sync surface every repository exposes to the coordinator and
// the realtime adapter.
type Syncer interface {
	Kind() models.EntityType
	// Upload pushes every unsynced local record and returns how many landed.
	Upload(ctx context.Context) (int, error)
	// Download fetches the remote collection and reconciles it as a full pass.
	Download(ctx context.Context) (reconcile.Result, error)
	// ReconcileSnapshot reconciles a pushed snapshot received at epoch. It is
	// skipped when the epoch has moved since.
	ReconcileSnapshot(ctx context.Context, snap remote.Snapshot, epoch uint64) (reconcile.Result, error)
	// Dedup removes duplicates on both sides.
	Dedup(ctx context.Context) (reconcile.Result, error)
}

// ErrStaleSnapshot is returned when a snapshot predates a local remote write.
var ErrStaleSnapshot = errors.New("snapshot predates a local remote write")

// binding adapts one entity type to Syncer.
type binding[T reconcile.Record] struct {
	sc     *SyncContext
	kind   models.EntityType
	keep   reconcile.KeepPolicy
	logger *zap.Logger

	listLocal    func(ctx context.Context, store *local.Store, ownerID string) ([]T, error)
	listUnsynced func(ctx context.Context, store *local.Store, ownerID string) ([]T, error)
	markSynced   func(ctx context.Context, store *local.Store, item T) error
	markUnsynced func(ctx context.Context, store *local.Store, item T) error
	encode       func(item T) remote.Document
	decode       func(doc remote.Document) (T, error)
	// insert stores a remote record locally as synced, replacing any row with
	// the same identity.
	insert func(ctx context.Context, store *local.Store, item T) error
	// remove deletes a local record with its dependents.
	remove func(ctx context.Context, store *local.Store, ownerID string, item T) error

	// Optional hooks.
	similar     func(l, r T) bool
	parents     func(ctx context.Context, ownerID string) (func(T) bool, error)
	afterDelete func(ctx context.Context, ownerID string, item T) error
	farmerOf    func(item T) string
	keepLocal   bool
	pushQueued  atomic.Bool
}

func (b *binding[T]) Kind() models.EntityType { return b.kind }

// schedulePush queues one upload of the kind. Writes landing while it waits
// are covered by the same run.
func (b *binding[T]) schedulePush() {
	if !b.sc.Online() || !b.pushQueued.CompareAndSwap(false, true) {
		return
	}
	queued := b.sc.background("upload "+string(b.kind), func(ctx context.Context) error {
		b.pushQueued.Store(false)
		_, err := b.Upload(ctx)
		return err
	})
	if !queued {
		b.pushQueued.Store(false)
	}
}

func (b *binding[T]) Upload(ctx context.Context) (int, error) {
	ownerID, err := b.sc.Owner()
	if err != nil {
		return 0, err
	}
	if !b.sc.Online() {
		return 0, models.ErrNetworkUnavailable
	}

	items, err := b.listUnsynced(ctx, b.sc.Local, ownerID)
	if err != nil {
		return 0, fmt.Errorf("list unsynced %s: %w", b.kind, err)
	}

	var errs []error
	uploaded := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := b.sc.put(ctx, b.encode(item)); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := b.markSynced(ctx, b.sc.Local, item); err != nil {
			errs = append(errs, fmt.Errorf("mark %s synced: %w", item.BusinessKey(), err))
			continue
		}
		uploaded++
	}

	if uploaded > 0 || len(errs) > 0 {
		b.logger.Info("Upload finished",
			zap.Int("uploaded", uploaded),
			zap.Int("failed", len(errs)),
		)
	}
	return uploaded, errors.Join(errs...)
}

func (b *binding[T]) Download(ctx context.Context) (reconcile.Result, error) {
	ownerID, err := b.sc.Owner()
	if err != nil {
		return reconcile.Result{}, err
	}
	if !b.sc.Online() {
		return reconcile.Result{}, models.ErrNetworkUnavailable
	}

	release, err := b.sc.Guards.Begin(ctx, b.kind)
	if err != nil {
		return reconcile.Result{}, err
	}
	defer release()

	// Local rows are read before the fetch: a row already synced here was
	// written remotely before the fetch started, so the fetch includes it.
	locals, err := b.listLocal(ctx, b.sc.Local, ownerID)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("list local %s: %w", b.kind, err)
	}
	docs, err := b.sc.Remote.FetchAll(ctx, b.kind, ownerID)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("%w: fetch %s: %v", models.ErrNetworkUnavailable, b.kind, err)
	}
	return b.reconcile(ctx, ownerID, locals, docs, b.keepLocal)
}

func (b *binding[T]) ReconcileSnapshot(ctx context.Context, snap remote.Snapshot, epoch uint64) (reconcile.Result, error) {
	ownerID, err := b.sc.Owner()
	if err != nil {
		return reconcile.Result{}, err
	}
	if snap.OwnerID != ownerID {
		return reconcile.Result{}, fmt.Errorf("%w: snapshot for another owner", models.ErrNotAuthenticated)
	}

	release, ok := b.sc.Guards.Enter(b.kind)
	if !ok {
		return reconcile.Result{Skipped: len(snap.Docs)}, nil
	}
	defer release()

	locals, err := b.listLocal(ctx, b.sc.Local, ownerID)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("list local %s: %w", b.kind, err)
	}
	if b.sc.Guards.Epoch(b.kind) != epoch {
		return reconcile.Result{}, ErrStaleSnapshot
	}
	protected := b.keepLocal || b.sc.Guards.Protected(b.kind)
	return b.reconcile(ctx, ownerID, locals, snap.Docs, protected)
}

func (b *binding[T]) Dedup(ctx context.Context) (reconcile.Result, error) {
	ownerID, err := b.sc.Owner()
	if err != nil {
		return reconcile.Result{}, err
	}
	release, err := b.sc.Guards.Begin(ctx, b.kind)
	if err != nil {
		return reconcile.Result{}, err
	}
	defer release()

	locals, err := b.listLocal(ctx, b.sc.Local, ownerID)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("list local %s: %w", b.kind, err)
	}
	var remotes []T
	if b.sc.Online() {
		docs, err := b.sc.Remote.FetchAll(ctx, b.kind, ownerID)
		if err != nil {
			return reconcile.Result{}, fmt.Errorf("%w: fetch %s: %v", models.ErrNetworkUnavailable, b.kind, err)
		}
		remotes = b.decodeAll(docs)
	}

	plan := reconcile.Duplicates(locals, remotes, b.keep)
	res := reconcile.Apply(ctx, plan, b.target(ownerID), b.logger)
	b.afterApply(ctx, ownerID, plan, res)
	return res, res.Err()
}

func (b *binding[T]) reconcile(ctx context.Context, ownerID string, locals []T, docs []remote.Document, protected bool) (reconcile.Result, error) {
	pending, err := b.sc.Journal.PendingKeys(ctx, ownerID, b.kind)
	if err != nil {
		return reconcile.Result{}, err
	}

	opts := reconcile.Options[T]{
		Protected:    protected,
		Now:          b.sc.now(),
		RecentWindow: b.sc.RecentWindow,
		Similar:      b.similar,
		Pending:      func(key string) bool { return pending[key] },
		Keep:         b.keep,
	}
	if b.parents != nil {
		exists, err := b.parents(ctx, ownerID)
		if err != nil {
			b.logger.Warn("Parent lookup failed, orphan pruning disabled", zap.Error(err))
		} else {
			opts.Orphaned = func(item T) bool { return !exists(item) }
		}
	}

	plan := reconcile.Build(locals, b.decodeAll(docs), opts)
	if plan.Empty() {
		return reconcile.Result{Skipped: plan.Skipped, Ambiguous: len(plan.Ambiguous)}, nil
	}

	res := reconcile.Apply(ctx, plan, b.target(ownerID), b.logger)
	b.afterApply(ctx, ownerID, plan, res)
	if res.Changed() || res.DeletedRemote > 0 {
		b.logger.Info("Reconciled",
			zap.Int("inserted", res.Inserted),
			zap.Int("refreshed", res.Refreshed),
			zap.Int("updated", res.Updated),
			zap.Int("deleted_local", res.DeletedLocal),
			zap.Int("duplicates_removed", res.DuplicatesRemoved),
			zap.Int("deleted_remote", res.DeletedRemote),
			zap.Int("resubmitted", res.Resubmitted),
			zap.Int("skipped", res.Skipped),
			zap.Int("ambiguous", res.Ambiguous),
		)
	}
	return res, res.Err()
}

func (b *binding[T]) afterApply(ctx context.Context, ownerID string, plan reconcile.Plan[T], res reconcile.Result) {
	if len(plan.Resubmit) > 0 {
		b.schedulePush()
	}
	if b.farmerOf == nil || !res.Changed() {
		return
	}
	touched := plan.Touched()
	ids := make([]string, 0, len(touched))
	for _, item := range touched {
		ids = append(ids, b.farmerOf(item))
	}
	b.sc.recompute(ctx, ownerID, ids...)
}

func (b *binding[T]) decodeAll(docs []remote.Document) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := b.decode(doc)
		if err != nil {
			b.logger.Warn("Skipping undecodable document", zap.String("path", doc.Path()), zap.Error(err))
			continue
		}
		out = append(out, item)
	}
	return out
}

func (b *binding[T]) target(ownerID string) reconcile.Target[T] {
	return &target[T]{b: b, ownerID: ownerID}
}

type target[T reconcile.Record] struct {
	b       *binding[T]
	ownerID string
}

func (t *target[T]) InsertLocal(ctx context.Context, item T) error {
	return t.b.insert(ctx, t.b.sc.Local, item)
}

func (t *target[T]) DeleteLocal(ctx context.Context, item T) error {
	err := t.b.remove(ctx, t.b.sc.Local, t.ownerID, item)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	return err
}

func (t *target[T]) DeleteRemote(ctx context.Context, item T) error {
	if err := t.b.sc.delete(ctx, t.b.kind, t.ownerID, item.Identity()); err != nil {
		return err
	}
	if t.b.afterDelete != nil {
		return t.b.afterDelete(ctx, t.ownerID, item)
	}
	return nil
}

func (t *target[T]) Resubmit(ctx context.Context, item T) error {
	return t.b.markUnsynced(ctx, t.b.sc.Local, item)
}
