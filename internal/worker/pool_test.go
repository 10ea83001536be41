package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := NewPool(Config{Workers: 2, QueueSize: 8}, zap.NewNop())
	p.Start(context.Background())
	t.Cleanup(func() { _ = p.Stop(context.Background()) })

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit("count", func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}
	require.NoError(t, p.Submit("fail", func(context.Context) error { return errors.New("boom") }))
	require.NoError(t, p.Submit("panic", func(context.Context) error { panic("boom") }))
	require.NoError(t, p.Submit("after-panic", func(context.Context) error {
		ran.Add(1)
		return nil
	}))

	p.Wait()
	assert.Equal(t, int32(6), ran.Load())
}

func TestPool_SubmitRequiresRunningPool(t *testing.T) {
	p := NewPool(Config{}, nil)
	assert.ErrorIs(t, p.Submit("x", func(context.Context) error { return nil }), ErrNotRunning)

	p.Start(context.Background())
	require.NoError(t, p.Stop(context.Background()))
	assert.ErrorIs(t, p.Submit("x", func(context.Context) error { return nil }), ErrNotRunning)
}

func TestPool_QueueFull(t *testing.T) {
	p := NewPool(Config{Workers: 1, QueueSize: 1}, zap.NewNop())
	p.Start(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.Submit("block", func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	require.NoError(t, p.Submit("queued", func(context.Context) error { return nil }))
	assert.ErrorIs(t, p.Submit("overflow", func(context.Context) error { return nil }), ErrQueueFull)

	close(release)
	p.Wait()
	require.NoError(t, p.Stop(context.Background()))
}

func TestPool_StopCancelsRunningTasks(t *testing.T) {
	p := NewPool(Config{Workers: 1, QueueSize: 4}, zap.NewNop())
	p.Start(context.Background())

	started := make(chan struct{})
	cancelled := make(chan struct{})
	require.NoError(t, p.Submit("long", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}))
	require.NoError(t, p.Submit("discarded", func(context.Context) error {
		t.Error("queued task ran after stop")
		return nil
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))

	select {
	case <-cancelled:
	default:
		t.Fatal("running task was not cancelled")
	}
	p.Wait()
}
