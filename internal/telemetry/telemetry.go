// Package telemetry initializes OpenTelemetry metrics export and holds the
// instruments recorded by the control loop.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Shutdown flushes and stops the exporters.
type Shutdown func(ctx context.Context) error

// Init configures the global meter provider.
// If endpoint is empty, metrics are disabled and the no-op provider stays in place.
func Init(ctx context.Context, endpoint, serviceName, version string, insecure bool) (Shutdown, error) {
	if endpoint == "" {
		return func(ctx context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(endpoint),
	}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp,
				sdkmetric.WithInterval(15*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}

// Meter returns the global meter for the given instrumentation scope.
func Meter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// Metrics is the set of instruments shared by the companion components.
// The zero value is not usable; build one with NewMetrics or Noop.
type Metrics struct {
	turns         metric.Int64Counter
	fallbacks     metric.Int64Counter
	turnDuration  metric.Float64Histogram
	polls         metric.Int64Counter
	pollFailures  metric.Int64Counter
	tailReactions metric.Int64Counter
	stepFailures  metric.Int64Counter
}

// NewMetrics creates the instruments on m.
func NewMetrics(m metric.Meter) (*Metrics, error) {
	var (
		out Metrics
		err error
	)
	if out.turns, err = m.Int64Counter("momo.turns",
		metric.WithDescription("Completed conversation turns.")); err != nil {
		return nil, err
	}
	if out.fallbacks, err = m.Int64Counter("momo.turn.fallbacks",
		metric.WithDescription("Turns answered with a canned reply.")); err != nil {
		return nil, err
	}
	if out.turnDuration, err = m.Float64Histogram("momo.turn.duration",
		metric.WithDescription("Wall time of a conversation turn."),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if out.polls, err = m.Int64Counter("momo.perception.polls",
		metric.WithDescription("Perception polls.")); err != nil {
		return nil, err
	}
	if out.pollFailures, err = m.Int64Counter("momo.perception.failures",
		metric.WithDescription("Perception sub-reads that failed, by sensor.")); err != nil {
		return nil, err
	}
	if out.tailReactions, err = m.Int64Counter("momo.tail.reactions",
		metric.WithDescription("Tail reactions started.")); err != nil {
		return nil, err
	}
	if out.stepFailures, err = m.Int64Counter("momo.turn.step_failures",
		metric.WithDescription("Conversation turn steps that failed, by step.")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Noop returns metrics bound to the current global provider, which is the
// no-op provider unless Init was called with an endpoint.
func Noop() *Metrics {
	m, err := NewMetrics(Meter("github.com/sptcnl/momo"))
	if err != nil {
		// Instrument creation only fails on invalid names.
		panic(err)
	}
	return m
}

// TurnCompleted records one finished turn.
func (m *Metrics) TurnCompleted(ctx context.Context, d time.Duration, fallback bool) {
	if m == nil {
		return
	}
	m.turns.Add(ctx, 1)
	if fallback {
		m.fallbacks.Add(ctx, 1)
	}
	m.turnDuration.Record(ctx, d.Seconds())
}

// StepFailed records a failed turn step ("emotion", "stt", "reply", "speak").
func (m *Metrics) StepFailed(ctx context.Context, step string) {
	if m == nil {
		return
	}
	m.stepFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
}

// Polled records one perception poll.
func (m *Metrics) Polled(ctx context.Context) {
	if m == nil {
		return
	}
	m.polls.Add(ctx, 1)
}

// PollFailed records a failed sub-read ("face" or "distance").
func (m *Metrics) PollFailed(ctx context.Context, sensor string) {
	if m == nil {
		return
	}
	m.pollFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("sensor", sensor)))
}

// TailReacted records the start of a tail reaction.
func (m *Metrics) TailReacted(ctx context.Context) {
	if m == nil {
		return
	}
	m.tailReactions.Add(ctx, 1)
}
