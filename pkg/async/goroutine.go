package async

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/kennel/pkg/observability"
)

// SafeGo executes fn in a goroutine with:
// - a timeout derived from parent
// - panic recovery
// - error logging
//
// The returned channel is closed once fn has returned or panicked.
func SafeGo(parent context.Context, logger *observability.Logger, timeout time.Duration, task string, fn func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer observability.RecoverPanic(logger, task)

		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", task).Warn("background task failed")
		}
	}()
	return done
}

// Group runs SafeGo tasks and lets shutdown wait for the ones in flight
type Group struct {
	logger  *observability.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewGroup creates a group whose tasks run at most timeout each
func NewGroup(logger *observability.Logger, timeout time.Duration) *Group {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Group{logger: logger, timeout: timeout}
}

// Go starts fn. The task outlives the cancellation of ctx, so request
// scoped contexts can be passed in; only their values are kept.
func (g *Group) Go(ctx context.Context, task string, fn func(context.Context) error) {
	g.wg.Add(1)
	done := SafeGo(context.WithoutCancel(ctx), g.logger, g.timeout, task, fn)
	go func() {
		<-done
		g.wg.Done()
	}()
}

// Wait blocks until every started task returned or ctx is done
func (g *Group) Wait(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
