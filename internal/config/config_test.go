package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 8081 {
		t.Errorf("Expected default port 8081, got %d", cfg.Port)
	}
	if cfg.DedupTimeWindow != 300*time.Second || cfg.HashRetention != 10*time.Minute {
		t.Errorf("Unexpected dedup defaults: %v / %v", cfg.DedupTimeWindow, cfg.HashRetention)
	}
	if cfg.DetectionWidth != 640 || cfg.DetectionHeight != 360 {
		t.Errorf("Expected 640x360 detection size, got %dx%d", cfg.DetectionWidth, cfg.DetectionHeight)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CAMERA_URL", "udp://:5005")
	t.Setenv("MIN_SPEED_KPH", "0")
	t.Setenv("SKIP_INFERENCE", "3")
	t.Setenv("DEDUP_TIME_WINDOW", "120")
	t.Setenv("SWEEP_INTERVAL", "90s")
	t.Setenv("TARGET_FPS", "not-a-number")

	cfg := Load()

	if cfg.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Port)
	}
	if cfg.CameraURL != "udp://:5005" {
		t.Errorf("Unexpected camera url %s", cfg.CameraURL)
	}
	if cfg.MinSpeedKPH != 0 {
		t.Errorf("Expected speed gating disabled, got %v", cfg.MinSpeedKPH)
	}
	if cfg.SkipInference != 3 {
		t.Errorf("Expected skip factor 3, got %d", cfg.SkipInference)
	}
	if cfg.DedupTimeWindow != 120*time.Second {
		t.Errorf("Expected plain seconds to parse, got %v", cfg.DedupTimeWindow)
	}
	if cfg.SweepInterval != 90*time.Second {
		t.Errorf("Expected Go duration to parse, got %v", cfg.SweepInterval)
	}
	if cfg.TargetFPS != 30 {
		t.Errorf("Expected invalid value to fall back to default, got %d", cfg.TargetFPS)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero fps", func(c *Config) { c.TargetFPS = 0 }},
		{"zero skip", func(c *Config) { c.SkipInference = 0 }},
		{"negative width", func(c *Config) { c.DetectionWidth = -1 }},
		{"zero pixels per meter", func(c *Config) { c.PixelsPerMeter = 0 }},
		{"negative min speed", func(c *Config) { c.MinSpeedKPH = -1 }},
		{"jpeg quality", func(c *Config) { c.JPEGQuality = 101 }},
		{"no camera", func(c *Config) { c.CameraURL = "" }},
		{"zero queue timeout", func(c *Config) { c.QueueTimeout = 0 }},
		{"negative sweep interval", func(c *Config) { c.SweepInterval = -time.Second }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestFrameInterval(t *testing.T) {
	cfg := &Config{TargetFPS: 25}
	if got := cfg.FrameInterval(); got != 40*time.Millisecond {
		t.Errorf("Expected 40ms, got %v", got)
	}
}
