package errtrack

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapReporter_Capture(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reporter := NewZapReporter(zap.New(core))

	ctx := WithComponent(context.Background(), "history")
	reporter.Capture(ctx, errors.New("query failed"), zap.String("monitor_id", "m1"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Captured error", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "history", fields["component"])
	assert.Equal(t, "m1", fields["monitor_id"])
	assert.Equal(t, "query failed", fields["error"])
}

func TestZapReporter_IgnoresNilAndCanceled(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reporter := NewZapReporter(zap.New(core))

	reporter.Capture(context.Background(), nil)
	reporter.Capture(context.Background(), fmt.Errorf("load: %w", context.Canceled))

	assert.Equal(t, 0, logs.Len())
}

func TestComponent(t *testing.T) {
	assert.Equal(t, "unknown", Component(context.Background()))
	assert.Equal(t, "api", Component(WithComponent(context.Background(), "api")))
}

func TestNopReporter(t *testing.T) {
	var r Reporter = NopReporter{}
	r.Capture(context.Background(), errors.New("ignored"))
}
