package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/onidzelskyi/stereo-camera/internal/config"
)

// TestNewLogger_LevelMapping verifies that each configured log level maps to
// the matching slog threshold: messages at the level pass, messages one step
// below are suppressed.
func TestNewLogger_LevelMapping(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		level    config.LogLevel
		enabled  slog.Level
		disabled slog.Level
	}{
		{config.LogDebug, slog.LevelDebug, slog.LevelDebug - 4},
		{config.LogInfo, slog.LevelInfo, slog.LevelDebug},
		{config.LogWarn, slog.LevelWarn, slog.LevelInfo},
		{config.LogError, slog.LevelError, slog.LevelWarn},
		{"", slog.LevelInfo, slog.LevelDebug}, // unset falls back to info
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			logger := newLogger(tt.level)
			if !logger.Enabled(ctx, tt.enabled) {
				t.Errorf("level %q should enable %v", tt.level, tt.enabled)
			}
			if logger.Enabled(ctx, tt.disabled) {
				t.Errorf("level %q should suppress %v", tt.level, tt.disabled)
			}
		})
	}
}

// TestApplyFlagOverrides_Debug verifies the -debug flag forces debug-level
// logging over whatever the config file said.
func TestApplyFlagOverrides_Debug(t *testing.T) {
	cfg := &config.Config{}
	cfg.Log.Level = config.LogWarn

	applyFlagOverrides(cfg, "", 0, 0, 0, 0, false, "", true)

	if cfg.Log.Level != config.LogDebug {
		t.Errorf("log level = %q after -debug, want %q", cfg.Log.Level, config.LogDebug)
	}
	if !newLogger(cfg.Log.Level).Enabled(context.Background(), slog.LevelDebug) {
		t.Error("resulting logger should enable debug records")
	}
}
