package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the application configuration
type Config struct {
	Detector  DetectorConfig  `json:"detector"`
	Tiling    TilingConfig    `json:"tiling"`
	Inference InferenceConfig `json:"inference"`
	Output    OutputConfig    `json:"output"`
}

// DetectorConfig holds backend selection and model options
type DetectorConfig struct {
	Backend    string   `json:"backend"` // "onnx" or "ollama"
	ModelPath  string   `json:"model_path"`
	ServerURL  string   `json:"server_url"`
	Model      string   `json:"model"`
	ClassNames []string `json:"class_names"`
	PoolSize   int      `json:"pool_size"`
}

// TilingConfig holds crop placement options
type TilingConfig struct {
	ShapeX    int     `json:"shape_x"`
	ShapeY    int     `json:"shape_y"`
	OverlapX  float64 `json:"overlap_x"`
	OverlapY  float64 `json:"overlap_y"`
	ShowCrops bool    `json:"show_crops"`
}

// InferenceConfig holds per-crop inference options
type InferenceConfig struct {
	ImageSize     int     `json:"imgsz"`
	Conf          float64 `json:"conf"`
	IoU           float64 `json:"iou"`
	Segment       bool    `json:"segment"`
	ResizeResults bool    `json:"resize_results"`
	Workers       int     `json:"workers"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Format    string `json:"format"`
	Quality   int    `json:"quality"`
	OutputDir string `json:"output_dir"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Detector: DetectorConfig{
			Backend:   "onnx",
			ServerURL: "http://localhost:11434",
			Model:     "llava",
			PoolSize:  1,
		},
		Tiling: TilingConfig{
			ShapeX:   700,
			ShapeY:   700,
			OverlapX: 25,
			OverlapY: 25,
		},
		Inference: InferenceConfig{
			ImageSize:     640,
			Conf:          0.5,
			IoU:           0.7,
			Segment:       false,
			ResizeResults: false,
			Workers:       0, // auto
		},
		Output: OutputConfig{
			Format:    "jpg",
			Quality:   90,
			OutputDir: "./out",
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Detector.Backend != "onnx" && c.Detector.Backend != "ollama" {
		return fmt.Errorf("detector.backend must be onnx or ollama")
	}

	if c.Tiling.ShapeX < 1 || c.Tiling.ShapeY < 1 {
		return fmt.Errorf("tiling.shape_x and tiling.shape_y must be positive")
	}

	if c.Tiling.OverlapX < 0 || c.Tiling.OverlapX >= 100 {
		return fmt.Errorf("tiling.overlap_x must be in [0, 100)")
	}

	if c.Tiling.OverlapY < 0 || c.Tiling.OverlapY >= 100 {
		return fmt.Errorf("tiling.overlap_y must be in [0, 100)")
	}

	if c.Inference.ImageSize < 1 {
		return fmt.Errorf("inference.imgsz must be positive")
	}

	if c.Inference.Conf < 0 || c.Inference.Conf > 1 {
		return fmt.Errorf("inference.conf must be between 0 and 1")
	}

	if c.Inference.IoU < 0 || c.Inference.IoU > 1 {
		return fmt.Errorf("inference.iou must be between 0 and 1")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "patch-detect", "config.json")
}
