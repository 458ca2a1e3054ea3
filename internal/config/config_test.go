package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		LogLevel:         "info",
		StorageMode:      "local",
		LocalStorageDir:  "./storage",
		CodecBackend:     "libwebp",
		WebPQuality:      85,
		MaxWidth:         1200,
		MaxHeight:        900,
		WatermarkOpacity: 0.5,
		BatchConcurrency: 1,
		OrphanBatchSize:  50,
		OrphanMaxRetries: 3,
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		valid  bool
	}{
		{name: "valid", mutate: func(c *Config) {}, valid: true},
		{name: "original size sentinel", mutate: func(c *Config) { c.MaxWidth, c.MaxHeight = 0, 0 }, valid: true},
		{name: "quality below range", mutate: func(c *Config) { c.WebPQuality = 40 }, valid: false},
		{name: "half sentinel", mutate: func(c *Config) { c.MaxHeight = 0 }, valid: false},
		{name: "too large for webp", mutate: func(c *Config) { c.MaxWidth = 20000 }, valid: false},
		{name: "unknown storage mode", mutate: func(c *Config) { c.StorageMode = "ftp" }, valid: false},
		{name: "s3 without bucket", mutate: func(c *Config) { c.StorageMode, c.StorageBucket = "s3", "" }, valid: false},
		{name: "unknown codec", mutate: func(c *Config) { c.CodecBackend = "magick" }, valid: false},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "verbose" }, valid: false},
		{name: "zero concurrency", mutate: func(c *Config) { c.BatchConcurrency = 0 }, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.valid && err != nil {
				t.Errorf("Expected valid config, got %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("WEBPSYNC_TEST_INT", "42")
	if v, err := getEnvAsInt("WEBPSYNC_TEST_INT", 1); err != nil || v != 42 {
		t.Errorf("Expected 42, got %d (%v)", v, err)
	}

	t.Setenv("WEBPSYNC_TEST_INT", "abc")
	if _, err := getEnvAsInt("WEBPSYNC_TEST_INT", 1); err == nil {
		t.Error("Expected error for non-integer value")
	}

	if v, err := getEnvAsInt("WEBPSYNC_TEST_MISSING", 7); err != nil || v != 7 {
		t.Errorf("Expected fallback 7, got %d (%v)", v, err)
	}
}

func TestLoadPresets(t *testing.T) {
	presets, err := LoadPresets("")
	if err != nil || len(presets) != len(DefaultPresets) {
		t.Fatalf("Expected built-in presets, got %v (%v)", presets, err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	content := `presets:
  - name: gallery
    quality: 80
    width: 1600
    height: 1200
  - name: raw
    quality: 95
    width: 0
    height: 0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write presets: %v", err)
	}

	presets, err = LoadPresets(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	p, ok := FindPreset(presets, "gallery")
	if !ok || p.Width != 1600 || p.Height != 1200 || p.Quality != 80 {
		t.Errorf("Unexpected gallery preset: %+v", p)
	}
	if _, ok := FindPreset(presets, "listing"); ok {
		t.Error("File presets must replace the built-in ones")
	}
}

func TestLoadPresetsRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	content := "presets:\n  - name: broken\n    quality: 20\n    width: 10\n    height: 10\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write presets: %v", err)
	}
	if _, err := LoadPresets(path); err == nil {
		t.Error("Expected error for quality out of range")
	}
}

func TestPresetApplyKeepsWatermark(t *testing.T) {
	cfg := validConfig()
	cfg.WatermarkText = "Griya Estate"
	base := cfg.CodecDefaults()
	base.Watermark.Enabled = true

	p, _ := FindPreset(DefaultPresets, "thumbnail")
	opts := p.Apply(base)
	if opts.Quality != 75 || opts.TargetWidth != 400 || opts.TargetHeight != 300 {
		t.Errorf("Unexpected options %+v", opts)
	}
	if !opts.Watermark.Enabled || opts.Watermark.Text != "Griya Estate" {
		t.Errorf("Preset must not touch the watermark: %+v", opts.Watermark)
	}
	if err := opts.Validate(); err != nil {
		t.Errorf("Unexpected validation error: %v", err)
	}
}
