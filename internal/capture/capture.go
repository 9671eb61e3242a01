// Package capture defines the consumed interface to the camera capture
// subsystem: completion-notified requests carrying plane buffers, and the
// mandatory return-and-resubmit contract that keeps the subsystem's finite
// buffer pool cycling.
package capture

import (
	"context"

	"github.com/onidzelskyi/stereo-camera/internal/store"
)

// Plane is one data plane of a completed capture request.
//
// Data is the mapped plane buffer; its length is the plane capacity.
// BytesUsed is the producer-reported payload size and may exceed the
// capacity on misbehaving producers — consumers must clamp, never overread.
type Plane struct {
	Data      []byte
	BytesUsed int
}

// RequestStatus is the completion status reported by the capture subsystem.
type RequestStatus int

const (
	// RequestComplete means all planes carry valid data.
	RequestComplete RequestStatus = iota
	// RequestCancelled means the request was aborted (e.g. during teardown).
	RequestCancelled
	// RequestError means the capture failed; plane contents are undefined.
	RequestError
)

// String returns a human-readable status name.
func (s RequestStatus) String() string {
	switch s {
	case RequestComplete:
		return "complete"
	case RequestCancelled:
		return "cancelled"
	case RequestError:
		return "error"
	}
	return "unknown"
}

// Request is a capture request cycling between the capture subsystem and the
// completion handler. Requests are single-owner and reused, never duplicated:
// after handling, the request MUST be given back via Source.Requeue — on
// every path, including truncation warnings — or the subsystem's buffer pool
// (typically 4-8 requests) drains and capture stalls.
type Request struct {
	// ID identifies the request within the source's pool.
	ID uint32
	// Status is the completion status.
	Status RequestStatus
	// Planes are the data planes of this capture.
	Planes []Plane
}

// CompletionHandler is invoked by the capture subsystem once per completed
// request, on the subsystem's own goroutine. It must complete in bounded
// time: copy out what is needed and return, no network or disk I/O.
type CompletionHandler func(*Request)

// Source is the capture subsystem boundary the bridge depends on:
// "notify me with a buffer+metadata when a frame is ready" and
// "let me resubmit a buffer for reuse".
//
// Implementations must guarantee that after Stop returns, the completion
// handler is no longer invoked — the bridge relies on this ordering to tear
// down shared state safely.
type Source interface {
	// Geometry returns the negotiated frame geometry. Valid after
	// construction, fixed for the session.
	Geometry() store.Geometry

	// Start begins capturing and registers the completion handler.
	// Returns immediately; completions arrive asynchronously.
	Start(ctx context.Context, complete CompletionHandler) error

	// Requeue returns a request's buffers to the subsystem for reuse and
	// resubmits it for a new capture.
	Requeue(req *Request) error

	// Stop halts capture. Blocks until no further handler invocation can
	// occur. Idempotent.
	Stop() error
}
