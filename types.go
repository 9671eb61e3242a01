package camstream

import (
	"time"

	"github.com/onidzelskyi/stereo-camera/internal/capture"
	"github.com/onidzelskyi/stereo-camera/internal/pump"
	"github.com/onidzelskyi/stereo-camera/internal/store"
)

// Frame is re-exported from the internal store package.
// See internal/store/frame.go for full documentation.
type Frame = store.Frame

// Geometry is re-exported from the internal store package.
type Geometry = store.Geometry

// PixelFormat is re-exported from the internal store package.
type PixelFormat = store.PixelFormat

// Supported pixel formats.
const (
	FormatBGRx = store.FormatBGRx
	FormatRGB  = store.FormatRGB
	FormatI420 = store.FormatI420
	FormatYUY2 = store.FormatYUY2
)

// Sink is the opaque consumer of timestamped raw frames.
// See internal/pump for the push/close contract.
type Sink = pump.Sink

// ErrBackpressure is the sentinel a Sink returns when it momentarily refuses
// data; the pump skips the tick instead of waiting.
var ErrBackpressure = pump.ErrBackpressure

// Capture subsystem boundary types, re-exported from internal/capture.
type (
	// CaptureSource is the consumed capture-subsystem interface.
	CaptureSource = capture.Source
	// Request is a single-owner capture request cycling through the pool.
	Request = capture.Request
	// Plane is one data plane of a completed request.
	Plane = capture.Plane
	// RequestStatus is the completion status of a request.
	RequestStatus = capture.RequestStatus
	// CompletionHandler is the registered completion callback.
	CompletionHandler = capture.CompletionHandler
)

// Request completion statuses.
const (
	RequestComplete  = capture.RequestComplete
	RequestCancelled = capture.RequestCancelled
	RequestError     = capture.RequestError
)

// DefaultFPS is the pump cadence used when BridgeConfig.FPS is zero.
const DefaultFPS = 30.0

// BridgeConfig configures the frame hand-off bridge.
type BridgeConfig struct {
	// FPS is the fixed emission cadence (frames per second).
	// Valid range 0.1-60; 0 selects DefaultFPS.
	FPS float64
}

// BridgeStats is a snapshot of bridge operational state, combining the
// store's capture-side counters with the pump's emission-side counters.
type BridgeStats struct {
	// FramesStored is the number of capture completions written to the slot.
	FramesStored uint64
	// FramesOverwritten counts frames replaced before the pump read them
	// (intentional lossy decoupling, not an error).
	FramesOverwritten uint64
	// PlanesTruncated counts writes clamped to plane capacity.
	PlanesTruncated uint64
	// PlanesRejected counts malformed planes skipped.
	PlanesRejected uint64
	// RequeueFailures counts requests that could not be resubmitted.
	RequeueFailures uint64

	// Ticks is the total pump ticks handled.
	Ticks uint64
	// FramesEmitted is the number of frames pushed to the sink.
	FramesEmitted uint64
	// EmptyTicks counts ticks skipped before the first capture completed.
	EmptyTicks uint64
	// BackpressureSkips counts ticks the sink refused.
	BackpressureSkips uint64

	// Timestamp is the next presentation timestamp to be emitted.
	Timestamp time.Duration
	// PumpState is the pump lifecycle state ("idle", "running", "stopped").
	PumpState string

	// FPSTarget is the configured cadence.
	FPSTarget float64
	// FPSReal is the measured emission rate since Start.
	FPSReal float64
	// Resolution is the negotiated geometry (e.g. "800x600 BGRx").
	Resolution string
	// Uptime is the time since Start.
	Uptime time.Duration
}
