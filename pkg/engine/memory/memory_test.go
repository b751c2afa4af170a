package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/kennel/pkg/engine"
	"github.com/platinummonkey/kennel/pkg/engine/enginetest"
)

func TestConformance(t *testing.T) {
	enginetest.Run(t, func(t *testing.T) engine.Engine { return New() })
}

func TestCancelledContext(t *testing.T) {
	e := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, e.CreateIndex(ctx, "a-b-0", "a-b", engine.Mapping{}), context.Canceled)
	_, err := e.Search(ctx, engine.SearchRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}
