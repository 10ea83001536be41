// Package realtime applies remote change snapshots to the local store as they
// arrive.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/reconcile"
	"github.com/mamadbah2/dairysync/internal/repository/remote"
	"github.com/mamadbah2/dairysync/internal/service/entities"
)

// ChangeFunc is called after a snapshot changed local state.
type ChangeFunc func(kind models.EntityType, res reconcile.Result)

// Config tunes the adapter.
type Config struct {
	// SettleDelay is waited after a snapshot before reconciling it; newer
	// snapshots arriving meanwhile replace it.
	SettleDelay time.Duration
	// RetryDelay is waited before re-subscribing after a stream failure.
	RetryDelay time.Duration
}

type pendingSnapshot struct {
	snap  remote.Snapshot
	epoch uint64
}

// Adapter subscribes to every entity type of the signed-in owner.
type Adapter struct {
	store   remote.Store
	guards  *reconcile.Guards
	syncers []entities.Syncer
	config  Config
	logger  *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	listeners []ChangeFunc
}

func NewAdapter(store remote.Store, guards *reconcile.Guards, syncers []entities.Syncer, config Config, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	return &Adapter{
		store:   store,
		guards:  guards,
		syncers: syncers,
		config:  config,
		logger:  logger,
	}
}

// OnChange registers fn for local changes caused by snapshots.
func (a *Adapter) OnChange(fn ChangeFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Start subscribes every entity type for ownerID, replacing any previous
// subscriptions.
func (a *Adapter) Start(ctx context.Context, ownerID string) {
	a.Stop()

	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	for _, s := range a.syncers {
		a.wg.Add(1)
		go a.watch(ctx, s, ownerID)
	}
	a.logger.Info("Realtime adapter started", zap.String("owner_id", ownerID), zap.Int("streams", len(a.syncers)))
}

// Stop cancels every subscription and waits for the watchers to exit.
func (a *Adapter) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	a.wg.Wait()
	a.logger.Info("Realtime adapter stopped")
}

func (a *Adapter) watch(ctx context.Context, s entities.Syncer, ownerID string) {
	defer a.wg.Done()
	logger := a.logger.With(zap.String("entity", string(s.Kind())))

	for {
		ch, err := a.store.Subscribe(ctx, s.Kind(), ownerID)
		if err != nil {
			logger.Warn("Subscribe failed", zap.Error(err))
		} else {
			a.consume(ctx, s, ch, logger)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.config.RetryDelay):
		}
	}
}

// consume reconciles the latest snapshot once the stream has settled and the
// entity type is out of its protection window.
func (a *Adapter) consume(ctx context.Context, s entities.Syncer, ch <-chan remote.Snapshot, logger *zap.Logger) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var latest *pendingSnapshot
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				logger.Debug("Snapshot stream closed")
				return
			}
			latest = &pendingSnapshot{snap: snap, epoch: a.guards.Epoch(s.Kind())}
			timer.Reset(a.config.SettleDelay)
		case <-timer.C:
			if latest == nil {
				continue
			}
			if until := a.guards.ProtectedUntil(s.Kind()); !until.IsZero() {
				wait := time.Until(until)
				if wait < a.config.SettleDelay {
					wait = a.config.SettleDelay
				}
				timer.Reset(wait)
				continue
			}

			p := latest
			latest = nil
			a.apply(ctx, s, p, logger)
		}
	}
}

func (a *Adapter) apply(ctx context.Context, s entities.Syncer, p *pendingSnapshot, logger *zap.Logger) {
	res, err := s.ReconcileSnapshot(ctx, p.snap, p.epoch)
	switch {
	case errors.Is(err, entities.ErrStaleSnapshot):
		logger.Debug("Dropped snapshot older than a local write")
		return
	case err != nil:
		logger.Warn("Snapshot reconciliation failed", zap.Error(err))
	}
	if !res.Changed() {
		return
	}

	a.mu.Lock()
	listeners := append([]ChangeFunc{}, a.listeners...)
	a.mu.Unlock()
	for _, fn := range listeners {
		fn(s.Kind(), res)
	}
}
