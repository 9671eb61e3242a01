package config_test

import (
	"strings"
	"testing"

	"github.com/onidzelskyi/stereo-camera/internal/config"
)

func TestLoadFromReader_MinimalConfigAppliesDefaults(t *testing.T) {
	t.Parallel()
	yaml := `
destination:
  host: 192.168.1.50
  port: 5000
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
	if cfg.Camera.Device != config.DefaultDevice {
		t.Errorf("device default = %q, want %q", cfg.Camera.Device, config.DefaultDevice)
	}
	if cfg.Camera.Width != config.DefaultWidth || cfg.Camera.Height != config.DefaultHeight {
		t.Errorf("resolution default = %dx%d, want %dx%d",
			cfg.Camera.Width, cfg.Camera.Height, config.DefaultWidth, config.DefaultHeight)
	}
	if cfg.Stream.FPS != config.DefaultFPS {
		t.Errorf("fps default = %v, want %v", cfg.Stream.FPS, config.DefaultFPS)
	}
	if cfg.Log.Level != config.LogInfo {
		t.Errorf("log level default = %q, want %q", cfg.Log.Level, config.LogInfo)
	}
}

func TestValidate_MissingDestination(t *testing.T) {
	t.Parallel()
	yaml := `
stream:
  fps: 30
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing destination, got nil")
	}
	if !strings.Contains(err.Error(), "destination.host") {
		t.Errorf("error should mention destination.host, got: %v", err)
	}
	if !strings.Contains(err.Error(), "destination.port") {
		t.Errorf("error should mention destination.port, got: %v", err)
	}
}

func TestValidate_MalformedIPRejected(t *testing.T) {
	t.Parallel()
	yaml := `
destination:
  host: 192.168.300.1
  port: 5000
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for malformed IP literal, got nil")
	}
	if !strings.Contains(err.Error(), "not a valid IP address") {
		t.Errorf("error should mention invalid IP, got: %v", err)
	}
}

func TestValidate_HostnameAccepted(t *testing.T) {
	t.Parallel()
	yaml := `
destination:
  host: receiver.local
  port: 5000
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("hostname destination should be accepted, got: %v", err)
	}
}

func TestValidate_FPSOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
destination:
  host: 10.0.0.1
  port: 5000
stream:
  fps: 120
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for fps out of range, got nil")
	}
	if !strings.Contains(err.Error(), "stream.fps") {
		t.Errorf("error should mention stream.fps, got: %v", err)
	}
}

func TestValidate_InvalidCaptureElement(t *testing.T) {
	t.Parallel()
	yaml := `
destination:
  host: 10.0.0.1
  port: 5000
camera:
  element: dshowsrc
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid capture element, got nil")
	}
	if !strings.Contains(err.Error(), "camera.element") {
		t.Errorf("error should mention camera.element, got: %v", err)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
destination:
  host: 10.0.0.1
  port: 5000
encoder:
  preset: fast
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestValidate_JoinsMultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
destination:
  port: 70000
stream:
  fps: -1
log:
  level: loud
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected joined validation errors, got nil")
	}
	for _, want := range []string{"destination.host", "destination.port", "stream.fps", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %s, got: %v", want, err)
		}
	}
}
