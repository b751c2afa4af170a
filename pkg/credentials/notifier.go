package credentials

import (
	"context"
	"time"

	"github.com/platinummonkey/kennel/pkg/async"
	"github.com/platinummonkey/kennel/pkg/observability"
)

// Notifier delivers password reset codes to their owner
type Notifier interface {
	SendPasswordReset(ctx context.Context, c *Credentials, code string) error
}

// LogNotifier logs reset notifications instead of delivering them
type LogNotifier struct {
	logger *observability.Logger
}

// NewLogNotifier creates a notifier writing to logger
func NewLogNotifier(logger *observability.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SendPasswordReset logs the recipient. The code itself is only logged at
// debug level.
func (n *LogNotifier) SendPasswordReset(ctx context.Context, c *Credentials, code string) error {
	logger := n.logger.WithFields(map[string]interface{}{
		"tenant":         c.Tenant,
		"credentials_id": c.ID,
		"email":          c.Email,
	})
	logger.Info("password reset code issued")
	logger.WithField("code", code).Debug("password reset code")
	return nil
}

// AsyncNotifier delivers through next in the background so that requests
// do not wait on delivery
type AsyncNotifier struct {
	next  Notifier
	group *async.Group
}

// NewAsyncNotifier wraps next; each delivery may take up to timeout
func NewAsyncNotifier(next Notifier, logger *observability.Logger, timeout time.Duration) *AsyncNotifier {
	return &AsyncNotifier{next: next, group: async.NewGroup(logger, timeout)}
}

// SendPasswordReset schedules the delivery and returns immediately
func (n *AsyncNotifier) SendPasswordReset(ctx context.Context, c *Credentials, code string) error {
	n.group.Go(ctx, "password reset notification", func(ctx context.Context) error {
		return n.next.SendPasswordReset(ctx, c, code)
	})
	return nil
}

// Wait blocks until pending deliveries are done or ctx expires
func (n *AsyncNotifier) Wait(ctx context.Context) error {
	return n.group.Wait(ctx)
}
