package analyzer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/cropmask/pkg/types"
)

var (
	// ErrUnsupportedFormat is returned for sources in a format outside SupportedFormats
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrTooLarge is returned when a source exceeds MaxPixels
	ErrTooLarge = errors.New("image too large")
)

// ImageAnalyzer inspects source images before they are decoded
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	// MaxPixels bounds width*height; 0 disables the check.
	MaxPixels int
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{
		config: Config{
			SupportedFormats: []string{"png", "jpeg", "webp", "gif", "bmp", "tiff"},
			MinImageSize:     1,
			MaxPixels:        50_000_000,
		},
	}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Format      string
	Width       int
	Height      int
	AspectRatio float64
	Area        int
}

// Inspect reads only the image header and reports format and dimensions.
// Sources that are too large or in an unsupported format are rejected.
func (a *ImageAnalyzer) Inspect(data []byte) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to read image header: %w", err)
	}
	if f, ok := types.NormalizeFormat(format); ok {
		format = f
	}
	if !a.isFormatSupported(format) {
		return ImageInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	info := newInfo(format, cfg.Width, cfg.Height)
	if err := a.validate(info); err != nil {
		return ImageInfo{}, err
	}
	return info, nil
}

// CheckTarget rejects output dimensions whose area exceeds MaxPixels
func (a *ImageAnalyzer) CheckTarget(width, height int) error {
	if a.config.MaxPixels > 0 && width*height > a.config.MaxPixels {
		return fmt.Errorf("%w: target %dx%d exceeds %d pixels", ErrTooLarge, width, height, a.config.MaxPixels)
	}
	return nil
}

// SniffFormat returns the canonical format name of data, or "" if unknown
func (a *ImageAnalyzer) SniffFormat(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	if f, ok := types.NormalizeFormat(format); ok {
		return f
	}
	return format
}

// GetImageInfo returns basic information about a decoded image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	return newInfo("", bounds.Dx(), bounds.Dy())
}

// ValidateImage checks if a decoded image meets the size limits
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	return a.validate(a.GetImageInfo(img))
}

func (a *ImageAnalyzer) validate(info ImageInfo) error {
	if info.Width < a.config.MinImageSize || info.Height < a.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			info.Width, info.Height, a.config.MinImageSize)
	}
	if a.config.MaxPixels > 0 && info.Area > a.config.MaxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, info.Width, info.Height, a.config.MaxPixels)
	}
	return nil
}

func newInfo(format string, width, height int) ImageInfo {
	info := ImageInfo{
		Format: format,
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}
