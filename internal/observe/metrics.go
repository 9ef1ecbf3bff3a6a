// Package observe provides application-wide observability primitives for
// Parlance: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Parlance metrics.
const meterName = "github.com/parlance-ai/parlance"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// CallDuration tracks total call length from answer to teardown.
	CallDuration metric.Float64Histogram

	// ProviderConnectDuration tracks AI provider WebSocket connection setup.
	ProviderConnectDuration metric.Float64Histogram

	// ToolExecutionDuration tracks tool execution latency.
	ToolExecutionDuration metric.Float64Histogram

	// --- Counters ---

	// CallsStarted counts voice sessions. Use with attributes:
	//   attribute.String("direction", ...), attribute.String("agent_id", ...)
	CallsStarted metric.Int64Counter

	// CallsEnded counts session terminations. Use with attribute:
	//   attribute.String("state", ...)
	CallsEnded metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// BargeIns counts caller interruptions of in-flight responses.
	BargeIns metric.Int64Counter

	// DTMFSent counts digit sequences transmitted to the carrier.
	DTMFSent metric.Int64Counter

	// IVRModeSwitches counts detector mode changes. Use with attribute:
	//   attribute.String("mode", ...)
	IVRModeSwitches metric.Int64Counter

	// CampaignSends counts campaign messages and dials. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	CampaignSends metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// RunningCampaigns tracks the number of campaigns in the running state.
	RunningCampaigns metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// short-lived operations such as provider connects and tool calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// callBuckets defines bucket boundaries (in seconds) for whole-call lengths.
var callBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1200, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CallDuration, err = m.Float64Histogram("parlance.call.duration",
		metric.WithDescription("Call length from answer to teardown."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderConnectDuration, err = m.Float64Histogram("parlance.provider.connect.duration",
		metric.WithDescription("AI provider WebSocket connection setup latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolExecutionDuration, err = m.Float64Histogram("parlance.tool_execution.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CallsStarted, err = m.Int64Counter("parlance.calls.started",
		metric.WithDescription("Total voice sessions by direction and agent."),
	); err != nil {
		return nil, err
	}
	if met.CallsEnded, err = m.Int64Counter("parlance.calls.ended",
		metric.WithDescription("Total session terminations by final state."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("parlance.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("parlance.barge_ins",
		metric.WithDescription("Total caller interruptions of in-flight responses."),
	); err != nil {
		return nil, err
	}
	if met.DTMFSent, err = m.Int64Counter("parlance.dtmf.sent",
		metric.WithDescription("Total DTMF sequences transmitted to the carrier."),
	); err != nil {
		return nil, err
	}
	if met.IVRModeSwitches, err = m.Int64Counter("parlance.ivr.mode_switches",
		metric.WithDescription("Total detector mode changes by new mode."),
	); err != nil {
		return nil, err
	}
	if met.CampaignSends, err = m.Int64Counter("parlance.campaign.sends",
		metric.WithDescription("Total campaign messages and dials by kind and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("parlance.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("parlance.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.RunningCampaigns, err = m.Int64UpDownCounter("parlance.running_campaigns",
		metric.WithDescription("Number of campaigns in the running state."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("parlance.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// RecordCallStarted records a session start with the standard attribute set.
func (m *Metrics) RecordCallStarted(ctx context.Context, direction, agentID string) {
	m.CallsStarted.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("direction", direction),
			attribute.String("agent_id", agentID),
		),
	)
}

// RecordCallEnded records a session termination by final state.
func (m *Metrics) RecordCallEnded(ctx context.Context, state string) {
	m.CallsEnded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", state)),
	)
}

// RecordToolCall records a tool call counter increment with the standard
// attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordModeSwitch records an IVR detector mode change.
func (m *Metrics) RecordModeSwitch(ctx context.Context, mode string) {
	m.IVRModeSwitches.Add(ctx, 1,
		metric.WithAttributes(attribute.String("mode", mode)),
	)
}

// RecordCampaignSend records a campaign message or dial.
func (m *Metrics) RecordCampaignSend(ctx context.Context, kind, status string) {
	m.CampaignSends.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
