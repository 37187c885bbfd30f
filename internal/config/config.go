package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/menta2k/cropmask/pkg/analyzer"
	"github.com/menta2k/cropmask/pkg/cropper"
	"github.com/menta2k/cropmask/pkg/processing"
	"github.com/menta2k/cropmask/pkg/region"
	"github.com/menta2k/cropmask/pkg/types"
)

// Config holds the application configuration
type Config struct {
	Detection    DetectionConfig    `json:"detection"`
	Conversion   ConversionConfig   `json:"conversion"`
	Segmentation SegmentationConfig `json:"segmentation"`
	Server       ServerConfig       `json:"server"`
	Output       OutputConfig       `json:"output"`
	Log          LogConfig          `json:"log"`
}

// DetectionConfig holds configuration for the selection tools
type DetectionConfig struct {
	WandTolerance   int     `json:"wand_tolerance"`
	WandEpsilon     float64 `json:"wand_epsilon"`
	MinRegionPixels int     `json:"min_region_pixels"`
	MaxRegions      int     `json:"max_regions"`
	MaxRegionPixels int     `json:"max_region_pixels"`
	// SmartTolerance below zero means derive it from the seed neighborhood.
	SmartTolerance  float64 `json:"smart_tolerance"`
	SmartEpsilon    float64 `json:"smart_epsilon"`
	AutoMin         float64 `json:"auto_min"`
	AutoMax         float64 `json:"auto_max"`
	WindowRadius    int     `json:"window_radius"`
	HoverDelayMS    int     `json:"hover_delay_ms"`
	PersonThreshold int     `json:"person_threshold"`
	PersonEpsilon   float64 `json:"person_epsilon"`
}

// ConversionConfig holds configuration for decoding, resizing and encoding
type ConversionConfig struct {
	DefaultFormat        string   `json:"default_format"`
	DefaultQuality       int      `json:"default_quality"`
	SupportedFormats     []string `json:"supported_formats"`
	MaxPixels            int      `json:"max_pixels"`
	Sharpen              float64  `json:"sharpen"`
	SmallSharpen         float64  `json:"small_sharpen"`
	SmallTargetThreshold int      `json:"small_target_threshold"`
	FetchTimeoutSeconds  int      `json:"fetch_timeout_seconds"`
}

// SegmentationConfig selects the vision backend used for person selection
type SegmentationConfig struct {
	// Backend is "ollama", "llamacpp" or "none".
	Backend string `json:"backend"`
	URL     string `json:"url"`
	Model   string `json:"model"`
	MaxDim  int    `json:"max_dim"`
}

// ServerConfig holds configuration for the HTTP server
type ServerConfig struct {
	Addr                string `json:"addr"`
	MaxUploadMB         int    `json:"max_upload_mb"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
}

// OutputConfig holds configuration for output file naming
type OutputConfig struct {
	OutputDir string `json:"output_dir"`
	Prefix    string `json:"prefix"`
	Suffix    string `json:"suffix"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `json:"level"`
}

// Default returns a configuration with default values
func Default() *Config {
	wand := region.DefaultWandConfig()
	smart := region.DefaultSmartConfig()
	tools := cropper.DefaultConfig()
	proc := processing.DefaultConfig()

	return &Config{
		Detection: DetectionConfig{
			WandTolerance:   tools.WandTolerance,
			WandEpsilon:     tools.WandEpsilon,
			MinRegionPixels: wand.MinRegionPixels,
			MaxRegions:      wand.MaxRegions,
			MaxRegionPixels: wand.MaxRegionPixels,
			SmartTolerance:  tools.SmartTolerance,
			SmartEpsilon:    tools.SmartEpsilon,
			AutoMin:         smart.AutoMin,
			AutoMax:         smart.AutoMax,
			WindowRadius:    smart.WindowRadius,
			HoverDelayMS:    int(tools.HoverDelay / time.Millisecond),
			PersonThreshold: int(tools.PersonThreshold),
			PersonEpsilon:   tools.PersonEpsilon,
		},
		Conversion: ConversionConfig{
			DefaultFormat:        "png",
			DefaultQuality:       90,
			SupportedFormats:     []string{"png", "jpeg", "webp", "gif", "bmp", "tiff"},
			MaxPixels:            50_000_000,
			Sharpen:              proc.Sharpen,
			SmallSharpen:         proc.SmallSharpen,
			SmallTargetThreshold: proc.SmallTargetThreshold,
			FetchTimeoutSeconds:  int(proc.HTTPTimeout / time.Second),
		},
		Segmentation: SegmentationConfig{
			Backend: "none",
			URL:     "http://localhost:11434",
			Model:   "llava",
			MaxDim:  768,
		},
		Server: ServerConfig{
			Addr:                ":8080",
			MaxUploadMB:         32,
			ReadTimeoutSeconds:  60,
			WriteTimeoutSeconds: 120,
		},
		Output: OutputConfig{
			OutputDir: "./output",
			Prefix:    "",
			Suffix:    "_masked",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Missing keys keep
// their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
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
	d := c.Detection
	if d.WandTolerance < 0 || d.WandTolerance > 255 {
		return fmt.Errorf("detection.wand_tolerance must be between 0 and 255")
	}
	if d.WandEpsilon < 0 || d.SmartEpsilon < 0 || d.PersonEpsilon < 0 {
		return fmt.Errorf("detection epsilons must not be negative")
	}
	if d.MaxRegions < 1 {
		return fmt.Errorf("detection.max_regions must be positive")
	}
	if d.MaxRegionPixels < 1 {
		return fmt.Errorf("detection.max_region_pixels must be positive")
	}
	if d.AutoMin < 0 || d.AutoMin > d.AutoMax {
		return fmt.Errorf("detection.auto_min must be between 0 and detection.auto_max")
	}
	if d.HoverDelayMS < 0 {
		return fmt.Errorf("detection.hover_delay_ms must not be negative")
	}
	if d.PersonThreshold < 0 || d.PersonThreshold > 255 {
		return fmt.Errorf("detection.person_threshold must be between 0 and 255")
	}

	conv := c.Conversion
	if _, ok := types.NormalizeFormat(conv.DefaultFormat); !ok {
		return fmt.Errorf("conversion.default_format %q is not supported", conv.DefaultFormat)
	}
	if conv.DefaultQuality < 1 || conv.DefaultQuality > 100 {
		return fmt.Errorf("conversion.default_quality must be between 1 and 100")
	}
	if len(conv.SupportedFormats) == 0 {
		return fmt.Errorf("conversion.supported_formats cannot be empty")
	}
	if conv.MaxPixels < 0 {
		return fmt.Errorf("conversion.max_pixels must not be negative")
	}

	switch c.Segmentation.Backend {
	case "none", "":
	case "ollama", "llamacpp":
		if c.Segmentation.Model == "" {
			return fmt.Errorf("segmentation.model is required for backend %s", c.Segmentation.Backend)
		}
	default:
		return fmt.Errorf("segmentation.backend %q is not one of ollama, llamacpp, none", c.Segmentation.Backend)
	}

	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

// Tools returns the selection tool configuration
func (c *Config) Tools() cropper.Config {
	d := c.Detection
	return cropper.Config{
		WandTolerance:   d.WandTolerance,
		WandEpsilon:     d.WandEpsilon,
		SmartTolerance:  d.SmartTolerance,
		SmartEpsilon:    d.SmartEpsilon,
		HoverDelay:      time.Duration(d.HoverDelayMS) * time.Millisecond,
		PersonThreshold: uint8(d.PersonThreshold),
		PersonEpsilon:   d.PersonEpsilon,
	}
}

// Detector builds a region detector from the detection section
func (c *Config) Detector() *region.Detector {
	d := c.Detection
	return region.NewWithConfig(
		region.WandConfig{
			MinRegionPixels: d.MinRegionPixels,
			MaxRegions:      d.MaxRegions,
			MaxRegionPixels: d.MaxRegionPixels,
		},
		region.SmartConfig{
			WindowRadius:    d.WindowRadius,
			AutoMin:         d.AutoMin,
			AutoMax:         d.AutoMax,
			MaxRegionPixels: d.MaxRegionPixels,
		},
	)
}

// Processor builds an image processor from the conversion section
func (c *Config) Processor() *processing.Processor {
	conv := c.Conversion
	return processing.NewProcessorWithConfig(processing.Config{
		SmallTargetThreshold: conv.SmallTargetThreshold,
		Sharpen:              conv.Sharpen,
		SmallSharpen:         conv.SmallSharpen,
		HTTPTimeout:          time.Duration(conv.FetchTimeoutSeconds) * time.Second,
	})
}

// Analyzer builds a source inspector from the conversion section
func (c *Config) Analyzer() *analyzer.ImageAnalyzer {
	return analyzer.NewWithConfig(analyzer.Config{
		SupportedFormats: c.Conversion.SupportedFormats,
		MinImageSize:     1,
		MaxPixels:        c.Conversion.MaxPixels,
	})
}

// ParseLevel maps a level name to a slog level
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if level == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", level)
	}
	return l, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "cropmask", "config.json")
}
