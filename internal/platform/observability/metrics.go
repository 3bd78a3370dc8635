package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/sharashena/07.E-Commerce-server/internal/platform/observability"

// AuthMetrics records token verification outcomes as OpenTelemetry instruments.
type AuthMetrics struct {
	verifications metric.Int64Counter
	latency       metric.Float64Histogram
}

// NewAuthMetrics registers the instruments on meter, or on the global provider when meter is nil.
// Registration failures are logged and leave the recorder inert.
func NewAuthMetrics(meter metric.Meter, logger *zap.Logger) *AuthMetrics {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &AuthMetrics{}
	var err error
	if m.verifications, err = meter.Int64Counter("auth.verifications",
		metric.WithDescription("Token verification attempts by kind and outcome")); err != nil {
		logger.Warn("observability: unable to register verification counter", zap.Error(err))
		m.verifications = nil
	}
	if m.latency, err = meter.Float64Histogram("auth.verification.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Token verification latency in milliseconds")); err != nil {
		logger.Warn("observability: unable to register verification latency", zap.Error(err))
		m.latency = nil
	}
	return m
}

// RecordVerification implements auth.MetricsRecorder.
func (m *AuthMetrics) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	)
	if m.verifications != nil {
		m.verifications.Add(ctx, 1, attrs)
	}
	if m.latency != nil {
		m.latency.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
	}
}
