// Package config provides the configuration schema and loader for the
// stereo-camera streaming service.
package config

// LogLevel controls log verbosity for the service.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// CaptureElement selects the GStreamer camera capture element.
type CaptureElement string

const (
	ElementV4L2      CaptureElement = "v4l2src"
	ElementLibcamera CaptureElement = "libcamerasrc"
)

// IsValid reports whether e is a recognised capture element.
func (e CaptureElement) IsValid() bool {
	return e == ElementV4L2 || e == ElementLibcamera
}

// Config is the root configuration structure for the streaming service.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Destination DestinationConfig `yaml:"destination"`
	Camera      CameraConfig      `yaml:"camera"`
	Stream      StreamConfig      `yaml:"stream"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// DestinationConfig identifies the UDP receiver of the RTP stream.
type DestinationConfig struct {
	// Host is the destination IP address or hostname.
	Host string `yaml:"host"`

	// Port is the destination UDP port.
	Port int `yaml:"port"`
}

// CameraConfig holds capture device settings.
type CameraConfig struct {
	// Device is the video device path (e.g., "/dev/video0").
	Device string `yaml:"device"`

	// Element selects the capture element. Defaults to v4l2src.
	Element CaptureElement `yaml:"element"`

	// Width and Height request the capture resolution.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// Buffers sizes the in-flight capture request pool. 0 uses the
	// capture layer default.
	Buffers int `yaml:"buffers"`

	// Simulate replaces the camera with a synthetic frame generator.
	// Useful on hosts without a capture device.
	Simulate bool `yaml:"simulate"`
}

// StreamConfig holds encoding and cadence settings.
type StreamConfig struct {
	// FPS is the fixed emission cadence in frames per second.
	// Valid range (0.1, 60]. 0 selects the default of 30.
	FPS float64 `yaml:"fps"`

	// BitrateKbps is the H.264 target bitrate in kbit/s. 0 keeps the
	// encoder default.
	BitrateKbps uint `yaml:"bitrate_kbps"`

	// KeyIntMax is the maximum keyframe interval in frames. 0 keeps the
	// encoder default.
	KeyIntMax uint `yaml:"key_int_max"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level controls verbosity.
	Level LogLevel `yaml:"level"`
}

// MetricsConfig holds the Prometheus metrics endpoint settings.
type MetricsConfig struct {
	// Addr is the TCP address the metrics HTTP server listens on
	// (e.g., ":9090"). Empty disables the endpoint.
	Addr string `yaml:"addr"`
}
