package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/dairysync/internal/config"
	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/service/coordinator"
)

type countingTrigger struct {
	calls atomic.Int32
	err   error
}

func (c *countingTrigger) Trigger() error {
	c.calls.Add(1)
	return c.err
}

type countingProber struct{ calls atomic.Int32 }

func (c *countingProber) Check(context.Context) bool {
	c.calls.Add(1)
	return true
}

type signedIn string

func (s signedIn) CurrentUserID() (string, error) {
	if s == "" {
		return "", models.ErrNotAuthenticated
	}
	return string(s), nil
}

func testConfig(schedule string) config.Config {
	return config.Config{
		Sync:         config.SyncConfig{CronSchedule: schedule},
		Connectivity: config.ConnectivityConfig{CheckInterval: time.Second, Timeout: time.Second},
		Billing:      config.BillingConfig{Timezone: "UTC"},
	}
}

func TestScheduler_RunsJobs(t *testing.T) {
	trigger := &countingTrigger{err: coordinator.ErrAlreadyRunning}
	prober := &countingProber{}
	s := NewScheduler(testConfig("@every 1s"), trigger, prober, signedIn("u1"), nil)

	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	assert.Eventually(t, func() bool {
		return trigger.calls.Load() > 0 && prober.calls.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := NewScheduler(testConfig("not a schedule"), &countingTrigger{}, nil, nil, nil)

	assert.Error(t, s.Start())
}

func TestScheduler_SkipsSyncWhenSignedOut(t *testing.T) {
	trigger := &countingTrigger{}

	NewScheduler(testConfig("@every 1s"), trigger, nil, signedIn(""), nil).runSync()
	assert.Zero(t, trigger.calls.Load())

	NewScheduler(testConfig("@every 1s"), trigger, nil, signedIn("u1"), nil).runSync()
	assert.Equal(t, int32(1), trigger.calls.Load())

	NewScheduler(testConfig("@every 1s"), trigger, nil, nil, nil).runSync()
	assert.Equal(t, int32(2), trigger.calls.Load())
}
