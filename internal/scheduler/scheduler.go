package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/config"
	"github.com/mamadbah2/dairysync/internal/domain/ports"
	"github.com/mamadbah2/dairysync/internal/service/coordinator"
)

// SyncTrigger starts a background sync run.
type SyncTrigger interface {
	Trigger() error
}

// Prober refreshes the connectivity state.
type Prober interface {
	Check(ctx context.Context) bool
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron   *cron.Cron
	sync   SyncTrigger
	prober Prober
	auth   ports.Authenticator
	cfg    config.Config
	logger *zap.Logger
}

// NewScheduler creates a new scheduler instance. Scheduled syncs are skipped
// while auth reports nobody signed in; a nil auth never skips.
func NewScheduler(cfg config.Config, sync SyncTrigger, prober Prober, auth ports.Authenticator, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Billing.Timezone)
	if err != nil {
		loc = time.Local
	}

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		sync:   sync,
		prober: prober,
		auth:   auth,
		cfg:    cfg,
		logger: logger,
	}
}

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler",
		zap.String("sync_schedule", s.cfg.Sync.CronSchedule),
		zap.Duration("connectivity_interval", s.cfg.Connectivity.CheckInterval),
	)

	if _, err := s.cron.AddFunc(s.cfg.Sync.CronSchedule, s.runSync); err != nil {
		return err
	}
	if s.prober != nil {
		spec := "@every " + s.cfg.Connectivity.CheckInterval.String()
		if _, err := s.cron.AddFunc(spec, s.checkConnectivity); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runSync() {
	if s.auth != nil {
		if _, err := s.auth.CurrentUserID(); err != nil {
			s.logger.Debug("scheduled sync skipped, nobody signed in")
			return
		}
	}

	err := s.sync.Trigger()
	switch {
	case err == nil:
		s.logger.Debug("scheduled sync queued")
	case errors.Is(err, coordinator.ErrAlreadyRunning):
		s.logger.Debug("scheduled sync skipped, run in progress")
	default:
		s.logger.Warn("failed to queue scheduled sync", zap.Error(err))
	}
}

func (s *Scheduler) checkConnectivity() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Connectivity.Timeout+time.Second)
	defer cancel()
	s.prober.Check(ctx)
}
