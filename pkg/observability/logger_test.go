package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		" error ": ErrorLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
	assert.Equal(t, "INFO", LogLevel(42).String())
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	logger.WithTenant("acme").
		WithField("type", "dogs").
		WithError(errors.New("boom")).
		Infof("indexed %d documents", 3)

	rec := decodeLine(t, &buf)
	assert.Equal(t, "indexed 3 documents", rec["msg"])
	assert.Equal(t, "acme", rec["tenant"])
	assert.Equal(t, "dogs", rec["type"])
	assert.Equal(t, "boom", rec["error"])
	assert.Equal(t, "INFO", rec["level"])
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)
	logger.Info("dropped")
	assert.Zero(t, buf.Len())
	logger.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestWithErrorNil(t *testing.T) {
	logger := NopLogger()
	assert.Same(t, logger, logger.WithError(nil))
	assert.Same(t, logger, logger.WithTenant(""))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTenantID(ctx, "acme")

	FromContext(ctx).Info("hello")

	rec := decodeLine(t, &buf)
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "acme", rec["tenant"])
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "acme", GetTenantID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
}
