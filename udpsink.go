package camstream

import (
	"log/slog"

	"github.com/onidzelskyi/stereo-camera/internal/gstout"
)

// UDPSinkConfig configures the RTP/H.264 UDP output sink.
type UDPSinkConfig struct {
	// Host is the UDP destination address (required).
	Host string
	// Port is the UDP destination port (required).
	Port int
	// BitrateKbps is the H.264 target bitrate in kbit/s. 0 keeps the
	// encoder default.
	BitrateKbps uint
	// KeyIntMax is the maximum keyframe interval in frames. 0 keeps the
	// encoder default.
	KeyIntMax uint
}

// NewUDPSink creates a sink that encodes raw frames to H.264 and streams
// them as RTP over UDP. The geometry and cadence must match the frames the
// bridge will push. The pipeline starts immediately.
func NewUDPSink(cfg UDPSinkConfig, geo Geometry, fps float64) (Sink, error) {
	sink, err := gstout.NewSink(gstout.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		Width:       geo.Width,
		Height:      geo.Height,
		Format:      string(geo.Format),
		FPS:         fps,
		BitrateKbps: cfg.BitrateKbps,
		KeyIntMax:   cfg.KeyIntMax,
	}, slog.Default())
	if err != nil {
		return nil, err
	}
	return sink, nil
}
