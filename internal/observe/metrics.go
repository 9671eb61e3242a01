// Package observe provides OpenTelemetry metric instruments for the
// streaming bridge, plus a Prometheus-exporter provider init so the metrics
// can be scraped via the standard /metrics endpoint.
//
// A package-level default instance is deliberately avoided; construct
// [Metrics] with [NewMetrics] and inject it, so tests with a custom
// metric.MeterProvider do not pollute each other.
package observe

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all bridge metrics.
const meterName = "github.com/onidzelskyi/stereo-camera"

// Metrics holds all metric instruments for the bridge. The underlying OTel
// instruments are safe for concurrent use.
type Metrics struct {
	// FramesCaptured counts capture completions stored into the frame slot.
	FramesCaptured metric.Int64Counter

	// FramesEmitted counts frames successfully pushed to the sink.
	FramesEmitted metric.Int64Counter

	// TicksSkipped counts pump ticks where the sink refused the frame.
	// Recorded with attribute.String("reason", "backpressure"). Empty
	// ticks never reach the sink and show up in BridgeStats instead.
	TicksSkipped metric.Int64Counter

	// PlanesTruncated counts writes clamped because the reported payload
	// exceeded plane capacity.
	PlanesTruncated metric.Int64Counter

	// PlanesRejected counts malformed (empty) planes skipped.
	PlanesRejected metric.Int64Counter

	// PushFailures counts sink push errors. Use with
	// attribute.String("kind", "backpressure"|"fatal").
	PushFailures metric.Int64Counter

	// PushDuration tracks sink push latency in seconds.
	PushDuration metric.Float64Histogram
}

// pushLatencyBuckets are histogram boundaries (seconds) sized for a push
// that must stay well under one frame period (33ms at 30 fps).
var pushLatencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.033, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] using the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesCaptured, err = m.Int64Counter("camstream.frames.captured",
		metric.WithDescription("Capture completions stored into the frame slot."),
	); err != nil {
		return nil, err
	}
	if met.FramesEmitted, err = m.Int64Counter("camstream.frames.emitted",
		metric.WithDescription("Frames pushed to the sink."),
	); err != nil {
		return nil, err
	}
	if met.TicksSkipped, err = m.Int64Counter("camstream.ticks.skipped",
		metric.WithDescription("Pump ticks that emitted nothing."),
	); err != nil {
		return nil, err
	}
	if met.PlanesTruncated, err = m.Int64Counter("camstream.planes.truncated",
		metric.WithDescription("Plane writes clamped to capacity."),
	); err != nil {
		return nil, err
	}
	if met.PlanesRejected, err = m.Int64Counter("camstream.planes.rejected",
		metric.WithDescription("Malformed planes skipped."),
	); err != nil {
		return nil, err
	}
	if met.PushFailures, err = m.Int64Counter("camstream.push.failures",
		metric.WithDescription("Sink push errors."),
	); err != nil {
		return nil, err
	}
	if met.PushDuration, err = m.Float64Histogram("camstream.push.duration",
		metric.WithDescription("Sink push latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(pushLatencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// ReasonAttr builds the skip/failure reason attribute set.
func ReasonAttr(key, value string) metric.AddOption {
	return metric.WithAttributes(attribute.String(key, value))
}
