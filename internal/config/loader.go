package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [Validate] when fields are left zero.
const (
	DefaultDevice = "/dev/video0"
	DefaultWidth  = 800
	DefaultHeight = 600
	DefaultFPS    = 30.0
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for omitted fields. It returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Destination
	if cfg.Destination.Host == "" {
		errs = append(errs, errors.New("destination.host is required"))
	} else if looksLikeIP(cfg.Destination.Host) && net.ParseIP(cfg.Destination.Host) == nil {
		// Hostnames are allowed; reject only strings shaped like
		// malformed IP literals.
		errs = append(errs, fmt.Errorf("destination.host %q is not a valid IP address", cfg.Destination.Host))
	}
	if cfg.Destination.Port <= 0 || cfg.Destination.Port > 65535 {
		errs = append(errs, fmt.Errorf("destination.port %d is out of range [1, 65535]", cfg.Destination.Port))
	}

	// Camera
	if cfg.Camera.Device == "" {
		cfg.Camera.Device = DefaultDevice
	}
	if cfg.Camera.Element == "" {
		cfg.Camera.Element = ElementV4L2
	} else if !cfg.Camera.Element.IsValid() {
		errs = append(errs, fmt.Errorf("camera.element %q is invalid; valid values: v4l2src, libcamerasrc", cfg.Camera.Element))
	}
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = DefaultWidth
	} else if cfg.Camera.Width < 0 {
		errs = append(errs, fmt.Errorf("camera.width %d must be positive", cfg.Camera.Width))
	}
	if cfg.Camera.Height == 0 {
		cfg.Camera.Height = DefaultHeight
	} else if cfg.Camera.Height < 0 {
		errs = append(errs, fmt.Errorf("camera.height %d must be positive", cfg.Camera.Height))
	}
	if cfg.Camera.Buffers < 0 {
		errs = append(errs, fmt.Errorf("camera.buffers %d must not be negative", cfg.Camera.Buffers))
	}

	// Stream
	if cfg.Stream.FPS == 0 {
		cfg.Stream.FPS = DefaultFPS
	} else if cfg.Stream.FPS < 0.1 || cfg.Stream.FPS > 60 {
		errs = append(errs, fmt.Errorf("stream.fps %.2f is out of range [0.1, 60]", cfg.Stream.FPS))
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = LogInfo
	} else if !cfg.Log.Level.IsValid() {
		errs = append(errs, fmt.Errorf("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level))
	}

	return errors.Join(errs...)
}

// looksLikeIP reports whether s is shaped like an IP literal (digits and
// dots, or contains a colon) as opposed to a hostname.
func looksLikeIP(s string) bool {
	dotted := true
	for _, r := range s {
		if r == ':' {
			return true
		}
		if (r < '0' || r > '9') && r != '.' {
			dotted = false
		}
	}
	return dotted
}
