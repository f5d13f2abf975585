package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("synthesis-metrics")

// SynthesisMetrics provides metrics collection for generation calls and
// live sessions.
type SynthesisMetrics struct {
	callsStartedCounter   metric.Int64Counter
	callsCompletedCounter metric.Int64Counter
	callsFailedCounter    metric.Int64Counter
	callDurationHistogram metric.Float64Histogram
	sessionsActiveGauge   metric.Int64UpDownCounter
}

// NewSynthesisMetrics creates a new synthesis metrics collector
func NewSynthesisMetrics() (*SynthesisMetrics, error) {
	callsStartedCounter, err := meter.Int64Counter(
		"prompt_enhancer.synthesis.started",
		metric.WithDescription("Total number of generation calls started"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	callsCompletedCounter, err := meter.Int64Counter(
		"prompt_enhancer.synthesis.completed",
		metric.WithDescription("Total number of generation calls completed successfully"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	callsFailedCounter, err := meter.Int64Counter(
		"prompt_enhancer.synthesis.failed",
		metric.WithDescription("Total number of generation calls that failed"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	callDurationHistogram, err := meter.Float64Histogram(
		"prompt_enhancer.synthesis.duration",
		metric.WithDescription("Duration of generation calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	sessionsActiveGauge, err := meter.Int64UpDownCounter(
		"prompt_enhancer.sessions.active",
		metric.WithDescription("Number of currently live sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	return &SynthesisMetrics{
		callsStartedCounter:   callsStartedCounter,
		callsCompletedCounter: callsCompletedCounter,
		callsFailedCounter:    callsFailedCounter,
		callDurationHistogram: callDurationHistogram,
		sessionsActiveGauge:   sessionsActiveGauge,
	}, nil
}

// RecordCallStarted records the start of one generation call
func (sm *SynthesisMetrics) RecordCallStarted(ctx context.Context, mode, variant string) {
	sm.callsStartedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("session.mode", mode),
			attribute.String("response.variant", variant),
		),
	)
}

// RecordCallCompleted records a successful generation call
func (sm *SynthesisMetrics) RecordCallCompleted(ctx context.Context, mode, variant string, duration time.Duration) {
	sm.callsCompletedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("session.mode", mode),
			attribute.String("response.variant", variant),
			attribute.String("status", "completed"),
		),
	)
	sm.callDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("session.mode", mode),
			attribute.String("response.variant", variant),
			attribute.String("status", "completed"),
		),
	)
}

// RecordCallFailed records a failed generation call by error kind
func (sm *SynthesisMetrics) RecordCallFailed(ctx context.Context, mode, variant, errorType string, duration time.Duration) {
	sm.callsFailedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("session.mode", mode),
			attribute.String("response.variant", variant),
			attribute.String("status", "failed"),
			attribute.String("error.type", errorType),
		),
	)
	sm.callDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("session.mode", mode),
			attribute.String("response.variant", variant),
			attribute.String("status", "failed"),
		),
	)
}

// RecordSessionStarted bumps the active session gauge
func (sm *SynthesisMetrics) RecordSessionStarted(ctx context.Context, mode string) {
	sm.sessionsActiveGauge.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("session.mode", mode),
		),
	)
}

// RecordSessionEnded drops the active session gauge
func (sm *SynthesisMetrics) RecordSessionEnded(ctx context.Context, mode string) {
	sm.sessionsActiveGauge.Add(ctx, -1,
		metric.WithAttributes(
			attribute.String("session.mode", mode),
		),
	)
}
