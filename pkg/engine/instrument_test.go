package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/engine/enginetest"
	"github.com/platinummonkey/kennel/pkg/engine/memory"
	"github.com/platinummonkey/kennel/pkg/observability"
)

func TestInstrumentedConformance(t *testing.T) {
	enginetest.Run(t, func(t *testing.T) engine.Engine {
		return engine.Instrument(memory.New(), "memory", time.Second, nil)
	})
}

func TestInstrumentRecordsMetrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	e := engine.Instrument(memory.New(), "memory", time.Second, metrics)
	ctx := context.Background()

	require.NoError(t, e.CreateIndex(ctx, "acme-dog-0", "acme-dog", enginetest.DogMapping()))
	_, err := e.Get(ctx, "acme-dog", "nope")
	require.ErrorIs(t, err, engine.ErrDocumentNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EngineOperationsTotal.WithLabelValues("create_index", "memory", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EngineOperationsTotal.WithLabelValues("get", "memory", "error")))
}

type slowEngine struct {
	engine.Engine
}

func (s slowEngine) Exists(ctx context.Context, alias string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func TestInstrumentTimeout(t *testing.T) {
	e := engine.Instrument(slowEngine{Engine: memory.New()}, "slow", 10*time.Millisecond, nil)
	_, err := e.Exists(context.Background(), "acme-dog")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "engine exists")
}
