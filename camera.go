package camstream

import (
	"log/slog"

	"github.com/onidzelskyi/stereo-camera/internal/gstcam"
)

// CameraConfig configures the GStreamer-backed camera capture source.
type CameraConfig struct {
	// Device is the video device path (default /dev/video0).
	Device string
	// Element selects the capture element: "v4l2src" (default) or
	// "libcamerasrc".
	Element string
	// Width and Height request the capture resolution.
	Width  int
	Height int
	// Format requests a pixel format (default BGRx).
	Format PixelFormat
	// FPS is the requested capture rate.
	FPS float64
	// Buffers sizes the in-flight request pool (default 4).
	Buffers int
}

// NewCameraSource creates a capture source backed by a local camera device.
// The device is not opened until Bridge.Start.
func NewCameraSource(cfg CameraConfig) (CaptureSource, error) {
	if cfg.Device == "" {
		cfg.Device = "/dev/video0"
	}
	src, err := gstcam.NewSource(gstcam.Config{
		Device:  cfg.Device,
		Element: cfg.Element,
		Width:   cfg.Width,
		Height:  cfg.Height,
		Format:  string(cfg.Format),
		FPS:     cfg.FPS,
		Buffers: cfg.Buffers,
	}, slog.Default())
	if err != nil {
		return nil, err
	}
	return src, nil
}
