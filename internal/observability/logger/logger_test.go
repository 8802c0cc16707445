package logger

import (
	"context"
	"testing"

	"github.com/apipatb/earning-sub011/internal/orgcontext"
	"github.com/apipatb/earning-sub011/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsOrgAndCorrelation(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := orgcontext.WithOrgID(context.Background(), 42)
	ctx = correlation.WithID(ctx, "cid-1")

	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "42", fields["org_id"])
	assert.Equal(t, "cid-1", fields["correlation_id"])
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestStatementVerb(t *testing.T) {
	assert.Equal(t, "SELECT", statementVerb("  select * from customers"))
	assert.Equal(t, "DELETE", statementVerb("DELETE FROM segment_members WHERE segment_id = ?"))
	assert.Equal(t, "UNKNOWN", statementVerb(""))
}
