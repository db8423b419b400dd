// Package observe provides application-wide observability primitives for
// recite: OpenTelemetry metrics, tracing helpers, and the SDK provider
// setup that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so metrics can be scraped
// via the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all recite metrics.
const meterName = "github.com/mushafapp/recite"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// AlignDuration tracks per-update alignment processing latency.
	AlignDuration metric.Float64Histogram

	// Matches counts applied matches. Use with attribute:
	//   attribute.String("phase", ...)
	Matches metric.Int64Counter

	// TranscriptUpdates counts every transcript update received from the
	// speech provider.
	TranscriptUpdates metric.Int64Counter

	// SessionRestarts counts recognition session restarts. Use with
	// attribute: attribute.String("reason", ...)
	SessionRestarts metric.Int64Counter

	// Stalls counts forced cursor advances after repeated no-match updates.
	Stalls metric.Int64Counter

	// JumpRequests counts manual jumps. Use with attribute:
	//   attribute.String("outcome", "confirmed"|"abandoned")
	JumpRequests metric.Int64Counter

	// ActiveSessions tracks the number of live recognition sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for per-update alignment latencies.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AlignDuration, err = m.Float64Histogram("recite.align.duration",
		metric.WithDescription("Latency of one transcript-to-reference alignment pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Matches, err = m.Int64Counter("recite.align.matches",
		metric.WithDescription("Total applied matches by search phase."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptUpdates, err = m.Int64Counter("recite.transcript.updates",
		metric.WithDescription("Total transcript updates received from the speech provider."),
	); err != nil {
		return nil, err
	}
	if met.SessionRestarts, err = m.Int64Counter("recite.session.restarts",
		metric.WithDescription("Total recognition session restarts by reason."),
	); err != nil {
		return nil, err
	}
	if met.Stalls, err = m.Int64Counter("recite.align.stall_advances",
		metric.WithDescription("Total forced cursor advances after repeated no-match updates."),
	); err != nil {
		return nil, err
	}
	if met.JumpRequests, err = m.Int64Counter("recite.align.jumps",
		metric.WithDescription("Total manual jump requests by outcome."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("recite.active_sessions",
		metric.WithDescription("Number of live recognition sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordMatch records an applied match for the given search phase.
func (m *Metrics) RecordMatch(ctx context.Context, phase string) {
	m.Matches.Add(ctx, 1, metric.WithAttributes(Attr("phase", phase)))
}

// RecordRestart records a recognition session restart with its reason.
func (m *Metrics) RecordRestart(ctx context.Context, reason string) {
	m.SessionRestarts.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}

// RecordJump records the outcome of a manual jump request.
func (m *Metrics) RecordJump(ctx context.Context, outcome string) {
	m.JumpRequests.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}
