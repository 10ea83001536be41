// Package coordinator drives full and incremental synchronisation runs.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/service/entities"
)

// ErrAlreadyRunning is returned when a run is requested while one is active.
var ErrAlreadyRunning = errors.New("sync run already in progress")

// State is the coordinator's position in its run cycle:
// Idle -> Checking -> FullRestore | QuickSync -> Reconciling -> Idle.
type State int32

const (
	StateIdle State = iota
	StateChecking
	StateFullRestore
	StateQuickSync
	StateReconciling
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateFullRestore:
		return "full_restore"
	case StateQuickSync:
		return "quick_sync"
	case StateReconciling:
		return "reconciling"
	default:
		return "idle"
	}
}

// ProgressFunc receives full-restore progress in percent with a status line.
type ProgressFunc func(percent int, status string)

// Aggregator re-derives every farmer's totals.
type Aggregator interface {
	RecomputeAll(ctx context.Context, ownerID string) (int, error)
}

var stageLabels = map[models.EntityType]string{
	models.EntityUser:          "Restoring account",
	models.EntityFarmer:        "Restoring farmers",
	models.EntityPriceBracket:  "Restoring price table",
	models.EntityCollection:    "Restoring milk collections",
	models.EntityBillingCycle:  "Restoring billing cycles",
	models.EntityBillingDetail: "Restoring farmer billing details",
}

// Coordinator owns synchronisation runs. At most one run is active per process.
type Coordinator struct {
	sc         *entities.SyncContext
	syncers    []entities.Syncer
	aggregates Aggregator
	logger     *zap.Logger

	state   atomic.Int32
	running atomic.Bool

	mu       sync.Mutex
	cancel   context.CancelFunc
	last     *Report
	progress []ProgressFunc
}

func New(sc *entities.SyncContext, syncers []entities.Syncer, aggregates Aggregator, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		sc:         sc,
		syncers:    syncers,
		aggregates: aggregates,
		logger:     logger,
	}
}

// OnProgress registers fn for full-restore progress.
func (c *Coordinator) OnProgress(fn ProgressFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = append(c.progress, fn)
}

// State returns the current state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Running reports whether a run is active.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// LastReport returns the report of the last finished run.
func (c *Coordinator) LastReport() (Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Report{}, false
	}
	return *c.last, true
}

// Trigger runs a sync on the worker pool. A request while a run is active is
// ignored.
func (c *Coordinator) Trigger() error {
	if c.running.Load() {
		c.logger.Info("Sync already running, request ignored")
		return ErrAlreadyRunning
	}
	if c.sc.Pool == nil {
		return fmt.Errorf("no worker pool configured")
	}
	return c.sc.Pool.Submit("sync run", func(ctx context.Context) error {
		_, err := c.Run(ctx)
		if errors.Is(err, ErrAlreadyRunning) {
			return nil
		}
		return err
	})
}

// Cancel aborts the active run, if any.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run performs one synchronous run for the signed-in user. Stage failures are
// recorded in the report; the returned error is reserved for runs that could
// not start.
func (c *Coordinator) Run(ctx context.Context) (Report, error) {
	if !c.running.CompareAndSwap(false, true) {
		c.logger.Info("Sync already running, request ignored")
		return Report{}, ErrAlreadyRunning
	}
	defer c.running.Store(false)
	defer c.setState(StateIdle)

	ownerID, err := c.sc.Owner()
	if err != nil {
		return Report{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()

	report := newReport(ownerID, c.syncers, c.now())
	logger := c.logger.With(zap.String("owner_id", ownerID))

	c.setState(StateChecking)
	hasData, err := c.sc.Local.HasData(ctx, ownerID)
	if err != nil {
		report.fail(err)
		hasData = true
	}
	report.Online = c.sc.Online()

	switch {
	case !report.Online:
		report.Mode = ModeOffline
		logger.Info("Offline, remote stages skipped")
	case !hasData:
		report.Mode = ModeFullRestore
		c.setState(StateFullRestore)
		c.fullRestore(ctx, ownerID, &report)
	default:
		report.Mode = ModeQuickSync
		c.setState(StateQuickSync)
		c.quickSync(ctx, ownerID, &report)
	}

	c.setState(StateReconciling)
	c.reconcile(ctx, ownerID, &report)

	report.Duration = c.now().Sub(report.StartedAt)
	logger.Info("Sync run finished",
		zap.String("mode", string(report.Mode)),
		zap.Duration("duration", report.Duration),
		zap.Int("replayed", report.Replayed),
		zap.Int("recomputed", report.Recomputed),
		zap.Int("failures", report.Failures()),
	)

	c.mu.Lock()
	c.last = &report
	c.mu.Unlock()
	return report, nil
}

// fullRestore fetches and reconciles every entity type parents first,
// reporting progress and continuing past failed stages.
func (c *Coordinator) fullRestore(ctx context.Context, ownerID string, report *Report) {
	c.emit(0, "Preparing restore")
	c.drain(ctx, ownerID, report)

	total := len(c.syncers)
	for i, s := range c.syncers {
		c.emit(i*100/total, stageLabels[s.Kind()])
		c.syncKind(ctx, s, report)
	}
	c.emit(100, "Restore complete")
}

// quickSync replays the journal, then uploads and downloads each entity type.
func (c *Coordinator) quickSync(ctx context.Context, ownerID string, report *Report) {
	c.drain(ctx, ownerID, report)
	for _, s := range c.syncers {
		c.syncKind(ctx, s, report)
	}
}

func (c *Coordinator) drain(ctx context.Context, ownerID string, report *Report) {
	n, err := c.sc.DrainJournal(ctx, ownerID)
	report.Replayed += n
	if err != nil {
		report.fail(fmt.Errorf("journal replay: %w", err))
	}
}

func (c *Coordinator) syncKind(ctx context.Context, s entities.Syncer, report *Report) {
	kr := report.kind(s.Kind())
	if ctx.Err() != nil {
		kr.fail(ctx.Err())
		return
	}

	uploaded, err := s.Upload(ctx)
	kr.Uploaded += uploaded
	if err != nil {
		kr.fail(fmt.Errorf("upload: %w", err))
	}

	res, err := s.Download(ctx)
	kr.Result.Merge(res)
	if err != nil {
		kr.fail(fmt.Errorf("download: %w", err))
	}
}

// reconcile removes duplicates across every entity type and re-derives the
// farmer aggregates.
func (c *Coordinator) reconcile(ctx context.Context, ownerID string, report *Report) {
	for _, s := range c.syncers {
		kr := report.kind(s.Kind())
		res, err := s.Dedup(ctx)
		kr.Result.Merge(res)
		if err != nil {
			kr.fail(fmt.Errorf("dedup: %w", err))
		}
	}

	if c.aggregates == nil {
		return
	}
	n, err := c.aggregates.RecomputeAll(ctx, ownerID)
	report.Recomputed = n
	if err != nil {
		report.fail(fmt.Errorf("recompute aggregates: %w", err))
	}
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Coordinator) emit(percent int, status string) {
	c.mu.Lock()
	listeners := append([]ProgressFunc{}, c.progress...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(percent, status)
	}
}

func (c *Coordinator) now() time.Time {
	if c.sc.Now != nil {
		return c.sc.Now()
	}
	return time.Now()
}
