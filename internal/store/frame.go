package store

import (
	"fmt"
	"time"
)

// PixelFormat identifies the pixel layout of a raw frame, using GStreamer
// format names so the value can be spliced directly into a caps string.
type PixelFormat string

const (
	// FormatBGRx is 32-bit BGRx (libcamera XRGB8888 little-endian).
	FormatBGRx PixelFormat = "BGRx"
	// FormatRGB is 24-bit packed RGB.
	FormatRGB PixelFormat = "RGB"
	// FormatI420 is planar YUV 4:2:0.
	FormatI420 PixelFormat = "I420"
	// FormatYUY2 is packed YUV 4:2:2.
	FormatYUY2 PixelFormat = "YUY2"
)

// BytesPerPixel returns the storage cost of one pixel for packed formats.
// Planar formats return 0; their frame size is not a per-pixel multiple.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatBGRx:
		return 4
	case FormatRGB:
		return 3
	case FormatYUY2:
		return 2
	default:
		return 0
	}
}

// Geometry is the negotiated frame geometry for a capture session.
// It is fixed once the capture source has been configured.
type Geometry struct {
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Stride is the number of bytes per row, including padding
	Stride int
	// Format is the pixel format tag
	Format PixelFormat
}

// FrameSize returns the expected byte length of one full frame.
func (g Geometry) FrameSize() int {
	return g.Stride * g.Height
}

// Valid reports whether the geometry describes a usable frame layout.
func (g Geometry) Valid() bool {
	return g.Width > 0 && g.Height > 0 && g.Stride > 0 && g.Format != ""
}

// String returns a human-readable geometry description, e.g. "800x600 BGRx".
func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d %s", g.Width, g.Height, g.Format)
}

// Frame is a snapshot of the most recent completed capture.
//
// Data is a private copy owned by the reader: the store never hands out a
// reference into its live slot, so a Frame stays valid across later writes.
type Frame struct {
	// Data contains the raw frame bytes (length = bytes actually captured).
	Data []byte

	// Geometry is the negotiated capture geometry.
	Geometry Geometry

	// Seq is the arrival sequence number assigned on write.
	// Monotonically increasing, starts at 1.
	Seq uint64

	// CapturedAt is when the frame was written into the store.
	CapturedAt time.Time

	// TraceID is a unique identifier for distributed tracing.
	TraceID string
}
