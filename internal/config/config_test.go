package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad backend", func(c *Config) { c.Detector.Backend = "tensorflow" }},
		{"zero shape", func(c *Config) { c.Tiling.ShapeX = 0 }},
		{"overlap at 100", func(c *Config) { c.Tiling.OverlapX = 100 }},
		{"negative overlap", func(c *Config) { c.Tiling.OverlapY = -1 }},
		{"zero imgsz", func(c *Config) { c.Inference.ImageSize = 0 }},
		{"conf above 1", func(c *Config) { c.Inference.Conf = 1.5 }},
		{"negative iou", func(c *Config) { c.Inference.IoU = -0.1 }},
		{"quality out of range", func(c *Config) { c.Output.Quality = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Tiling.ShapeX = 512
	cfg.Tiling.OverlapX = 30
	cfg.Inference.ResizeResults = true
	cfg.Detector.ClassNames = []string{"person", "car"}

	path := filepath.Join(t.TempDir(), "nested", "config.json")
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if loaded.Tiling.ShapeX != 512 || loaded.Tiling.OverlapX != 30 {
		t.Errorf("tiling options lost in round trip: %+v", loaded.Tiling)
	}
	if !loaded.Inference.ResizeResults {
		t.Error("resize_results lost in round trip")
	}
	if len(loaded.Detector.ClassNames) != 2 {
		t.Errorf("class names lost in round trip: %v", loaded.Detector.ClassNames)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestGetConfigPath(t *testing.T) {
	if GetConfigPath() == "" {
		t.Error("expected a non-empty config path")
	}
}
