package credentials

import (
	"context"
	"errors"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/errs"
	"github.com/platinummonkey/kennel/pkg/observability"
	"github.com/platinummonkey/kennel/pkg/tenant"
)

// DefaultSweepSchedule runs the janitor every fifteen minutes
const DefaultSweepSchedule = "*/15 * * * *"

// SweepStats summarizes one janitor run
type SweepStats struct {
	Tenants    int
	Tokens     int
	ResetCodes int
	Conflicts  int
}

// Janitor prunes expired tokens and reset codes from every tenant
type Janitor struct {
	service     *Service
	concurrency int
	logger      *observability.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewJanitor creates a janitor sweeping up to concurrency tenants at once
func NewJanitor(s *Service, concurrency int, logger *observability.Logger) *Janitor {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Janitor{service: s, concurrency: concurrency, logger: logger}
}

// Start schedules Sweep on a cron expression
func (j *Janitor) Start(schedule string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return errors.New("janitor already started")
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		stats, err := j.Sweep(context.Background())
		if err != nil {
			j.logger.WithError(err).Error("credentials sweep failed")
			return
		}
		j.logger.WithFields(map[string]interface{}{
			"tenants":     stats.Tenants,
			"tokens":      stats.Tokens,
			"reset_codes": stats.ResetCodes,
			"conflicts":   stats.Conflicts,
		}).Info("credentials sweep finished")
	})
	if err != nil {
		return err
	}
	c.Start()
	j.cron = c
	return nil
}

// Stop waits for a running sweep and stops the schedule
func (j *Janitor) Stop() {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()
	if c == nil {
		return
	}
	ctx := c.Stop()
	<-ctx.Done()
}

// Sweep prunes every tenant once
func (j *Janitor) Sweep(ctx context.Context) (SweepStats, error) {
	indices, err := j.service.engine.ListIndices(ctx, "")
	if err != nil {
		return SweepStats{}, errs.Internal(err, "failed to list indices")
	}
	var tenants []string
	for _, idx := range indices {
		if id, typ, ok := tenant.ParseAlias(idx.Alias); ok && typ == tenant.CredentialsType {
			tenants = append(tenants, id)
		}
	}

	var (
		mu    sync.Mutex
		total = SweepStats{Tenants: len(tenants)}
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(j.concurrency)
	for _, id := range tenants {
		eg.Go(func() error {
			stats, err := j.sweepTenant(ctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			total.Tokens += stats.Tokens
			total.ResetCodes += stats.ResetCodes
			total.Conflicts += stats.Conflicts
			mu.Unlock()
			return nil
		})
	}
	err = eg.Wait()
	j.service.metrics.AddSessionsSwept(total.Tokens)
	return total, err
}

func (j *Janitor) sweepTenant(ctx context.Context, tenantID string) (SweepStats, error) {
	var stats SweepStats
	all, err := j.service.repo.all(ctx, tenantID, engine.Query{})
	if err != nil {
		return stats, err
	}
	now := j.service.now()
	for _, c := range all {
		live := liveTokens(c.Tokens, now)
		pruned := len(c.Tokens) - len(live)
		expiredCode := c.PasswordResetCodeExpiresAt != nil && !now.Before(*c.PasswordResetCodeExpiresAt)
		if pruned == 0 && !expiredCode {
			continue
		}
		c.Tokens = live
		if expiredCode {
			c.PasswordResetCode = ""
			c.PasswordResetCodeExpiresAt = nil
		}
		if err := j.service.repo.save(ctx, c); err != nil {
			if errors.Is(err, errs.ErrConflict) || errors.Is(err, errs.ErrNotFound) {
				stats.Conflicts++
				continue
			}
			return stats, err
		}
		stats.Tokens += pruned
		if expiredCode {
			stats.ResetCodes++
		}
	}
	return stats, nil
}
