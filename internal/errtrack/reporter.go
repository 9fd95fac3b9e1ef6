// Package errtrack funnels unexpected errors from the query and aggregation
// paths into one place so they are logged and counted consistently.
package errtrack

import (
	"context"
	"errors"

	"github.com/aaronlmathis/kuptime/internal/metrics"
	"go.uber.org/zap"
)

// Reporter captures an error together with structured context.
type Reporter interface {
	Capture(ctx context.Context, err error, fields ...zap.Field)
}

type componentKey struct{}

// WithComponent tags ctx with the component name reported alongside captured errors.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey{}, component)
}

// Component returns the component stored on ctx, or "unknown".
func Component(ctx context.Context) string {
	if v, ok := ctx.Value(componentKey{}).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// ZapReporter logs captured errors and counts them per component.
type ZapReporter struct {
	logger *zap.Logger
}

// NewZapReporter creates a reporter that writes to logger.
func NewZapReporter(logger *zap.Logger) *ZapReporter {
	return &ZapReporter{logger: logger.Named("errtrack")}
}

// Capture logs err. Cancellation errors are dropped since they only mean the caller went away.
func (r *ZapReporter) Capture(ctx context.Context, err error, fields ...zap.Field) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	component := Component(ctx)
	metrics.RecordCapturedError(component)

	fields = append(fields, zap.String("component", component), zap.Error(err))
	r.logger.Error("Captured error", fields...)
}

// NopReporter discards everything.
type NopReporter struct{}

// Capture implements Reporter.
func (NopReporter) Capture(context.Context, error, ...zap.Field) {}
