package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidOptions is returned when a conversion options document is rejected
var ErrInvalidOptions = errors.New("invalid conversion options")

// MaxDimension bounds each requested output edge
const MaxDimension = 16384

// ConversionOptions controls one decode → mask → resize → encode run
type ConversionOptions struct {
	// ToFormat is the output format: png, jpeg, webp, gif, bmp or tiff.
	ToFormat string
	// Quality is the encoder quality, 1-100.
	Quality int
	// Width and Height are optional target dimensions; 0 means unset.
	Width  int
	Height int
	// Crop is the optional selection to composite.
	Crop CropSpec
	// InvertSelection keeps everything except the selection.
	InvertSelection bool
	// OriginalFormat is a hint for the source format.
	OriginalFormat string
}

type wireOptions struct {
	ToFormat        string          `json:"toFormat"`
	Quality         int             `json:"quality"`
	Width           int             `json:"width,omitempty"`
	Height          int             `json:"height,omitempty"`
	Crop            json.RawMessage `json:"crop,omitempty"`
	InvertSelection bool            `json:"invertSelection,omitempty"`
	OriginalFormat  string          `json:"originalFormat,omitempty"`
}

// UnmarshalJSON decodes the wire form, including the crop union
func (o *ConversionOptions) UnmarshalJSON(data []byte) error {
	var w wireOptions
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	crop, err := ParseCropSpec(w.Crop)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	*o = ConversionOptions{
		ToFormat:        w.ToFormat,
		Quality:         w.Quality,
		Width:           w.Width,
		Height:          w.Height,
		Crop:            crop,
		InvertSelection: w.InvertSelection,
		OriginalFormat:  w.OriginalFormat,
	}
	return nil
}

// MarshalJSON encodes the options in wire form
func (o ConversionOptions) MarshalJSON() ([]byte, error) {
	w := wireOptions{
		ToFormat:        o.ToFormat,
		Quality:         o.Quality,
		Width:           o.Width,
		Height:          o.Height,
		InvertSelection: o.InvertSelection,
		OriginalFormat:  o.OriginalFormat,
	}
	if o.Crop != nil {
		crop, err := MarshalCropSpec(o.Crop)
		if err != nil {
			return nil, err
		}
		w.Crop = crop
	}
	return json.Marshal(w)
}

// ParseOptions decodes and validates an options document
func ParseOptions(data []byte) (ConversionOptions, error) {
	var o ConversionOptions
	if err := json.Unmarshal(data, &o); err != nil {
		if errors.Is(err, ErrInvalidOptions) {
			return ConversionOptions{}, err
		}
		return ConversionOptions{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if err := o.Validate(); err != nil {
		return ConversionOptions{}, err
	}
	return o, nil
}

// Validate checks ranges and normalizes format names in place
func (o *ConversionOptions) Validate() error {
	format, ok := NormalizeFormat(o.ToFormat)
	if !ok {
		return fmt.Errorf("%w: unsupported output format %q", ErrInvalidOptions, o.ToFormat)
	}
	o.ToFormat = format

	if o.OriginalFormat != "" {
		if orig, ok := NormalizeFormat(o.OriginalFormat); ok {
			o.OriginalFormat = orig
		}
	}

	if o.Quality < 1 || o.Quality > 100 {
		return fmt.Errorf("%w: quality must be between 1 and 100, got %d", ErrInvalidOptions, o.Quality)
	}
	if o.Width < 0 || o.Height < 0 {
		return fmt.Errorf("%w: width and height must not be negative", ErrInvalidOptions)
	}
	if o.Width > MaxDimension || o.Height > MaxDimension {
		return fmt.Errorf("%w: width and height must not exceed %d, got %dx%d", ErrInvalidOptions, MaxDimension, o.Width, o.Height)
	}
	return nil
}

// Resizes reports whether a target size was requested
func (o ConversionOptions) Resizes() bool {
	return o.Width > 0 || o.Height > 0
}

// NormalizeFormat maps user-facing format names to canonical ones
func NormalizeFormat(format string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(format, "."))) {
	case "png":
		return "png", true
	case "jpg", "jpeg":
		return "jpeg", true
	case "webp":
		return "webp", true
	case "gif":
		return "gif", true
	case "bmp":
		return "bmp", true
	case "tif", "tiff":
		return "tiff", true
	}
	return "", false
}
