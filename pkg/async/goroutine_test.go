package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/kennel/pkg/observability"
)

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not finish")
	}
}

func TestSafeGo(t *testing.T) {
	var executed atomic.Bool

	wait(t, SafeGo(context.Background(), observability.NopLogger(), time.Second, "test", func(ctx context.Context) error {
		executed.Store(true)
		return nil
	}))

	assert.True(t, executed.Load())
}

func TestSafeGoError(t *testing.T) {
	wait(t, SafeGo(context.Background(), observability.NopLogger(), time.Second, "test", func(ctx context.Context) error {
		return errors.New("boom")
	}))
}

func TestSafeGoTimeout(t *testing.T) {
	var cause error

	wait(t, SafeGo(context.Background(), observability.NopLogger(), 20*time.Millisecond, "test", func(ctx context.Context) error {
		<-ctx.Done()
		cause = ctx.Err()
		return cause
	}))

	assert.ErrorIs(t, cause, context.DeadlineExceeded)
}

func TestSafeGoPanic(t *testing.T) {
	wait(t, SafeGo(context.Background(), observability.NopLogger(), time.Second, "test", func(ctx context.Context) error {
		panic("boom")
	}))
}

func TestGroupOutlivesCaller(t *testing.T) {
	g := NewGroup(nil, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	release := make(chan struct{})

	g.Go(ctx, "test", func(ctx context.Context) error {
		<-release
		ran.Store(ctx.Err() == nil)
		return nil
	})
	cancel()
	close(release)

	require.NoError(t, g.Wait(context.Background()))
	assert.True(t, ran.Load())
}

func TestGroupWaitDeadline(t *testing.T) {
	g := NewGroup(nil, time.Second)
	release := make(chan struct{})
	defer close(release)
	g.Go(context.Background(), "test", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)
}
