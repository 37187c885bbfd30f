package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidCrop is returned when a crop document cannot be understood
var ErrInvalidCrop = errors.New("invalid crop specification")

type wireCrop struct {
	Type    Kind              `json:"type"`
	Regions json.RawMessage   `json:"regions,omitempty"`
	Crops   []json.RawMessage `json:"crops,omitempty"`
}

// ParseCropSpec decodes the wire form of a CropSpec. A null or empty
// document yields a nil CropSpec and no error.
func ParseCropSpec(data []byte) (CropSpec, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var w wireCrop
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCrop, err)
	}

	if w.Type == KindMulti {
		if len(w.Crops) == 0 {
			return nil, fmt.Errorf("%w: multi crop without crops", ErrInvalidCrop)
		}
		multi := MultiShape{Crops: make([]SingleShape, 0, len(w.Crops))}
		for i, raw := range w.Crops {
			var inner wireCrop
			if err := json.Unmarshal(raw, &inner); err != nil {
				return nil, fmt.Errorf("%w: crops[%d]: %v", ErrInvalidCrop, i, err)
			}
			if inner.Type == KindMulti {
				return nil, fmt.Errorf("%w: crops[%d]: nested multi crop", ErrInvalidCrop, i)
			}
			single, err := parseSingle(inner)
			if err != nil {
				return nil, fmt.Errorf("crops[%d]: %w", i, err)
			}
			multi.Crops = append(multi.Crops, single)
		}
		return multi, nil
	}

	return parseSingle(w)
}

func parseSingle(w wireCrop) (SingleShape, error) {
	switch {
	case w.Type == KindRect:
		var regions []Rect
		if err := unmarshalRegions(w.Regions, &regions); err != nil {
			return nil, err
		}
		for i, r := range regions {
			if r.Width < 0 || r.Height < 0 {
				return nil, fmt.Errorf("%w: rect region %d has negative size", ErrInvalidCrop, i)
			}
		}
		return RectShape{Regions: regions}, nil
	case w.Type == KindCircle:
		var regions []Circle
		if err := unmarshalRegions(w.Regions, &regions); err != nil {
			return nil, err
		}
		for i, c := range regions {
			if c.R < 0 {
				return nil, fmt.Errorf("%w: circle region %d has negative radius", ErrInvalidCrop, i)
			}
		}
		return CircleShape{Regions: regions}, nil
	case w.Type.IsPolygonal():
		var regions []Polygon
		if err := unmarshalRegions(w.Regions, &regions); err != nil {
			return nil, err
		}
		return PolygonShape{Tool: w.Type, Regions: regions}, nil
	case w.Type == "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalidCrop)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidCrop, w.Type)
	}
}

func unmarshalRegions(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: regions: %v", ErrInvalidCrop, err)
	}
	return nil
}

// MarshalCropSpec encodes a CropSpec in its wire form
func MarshalCropSpec(spec CropSpec) ([]byte, error) {
	w, err := toWire(spec)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

type wireOut struct {
	Type    Kind          `json:"type"`
	Regions interface{}   `json:"regions,omitempty"`
	Crops   []interface{} `json:"crops,omitempty"`
}

func toWire(spec CropSpec) (interface{}, error) {
	switch s := spec.(type) {
	case nil:
		return nil, nil
	case RectShape:
		return wireOut{Type: KindRect, Regions: nonNil(s.Regions)}, nil
	case CircleShape:
		return wireOut{Type: KindCircle, Regions: nonNil(s.Regions)}, nil
	case PolygonShape:
		if !s.Tool.IsPolygonal() {
			return nil, fmt.Errorf("%w: polygon shape with kind %q", ErrInvalidCrop, s.Tool)
		}
		return wireOut{Type: s.Tool, Regions: nonNil(s.Regions)}, nil
	case MultiShape:
		out := wireOut{Type: KindMulti, Crops: make([]interface{}, 0, len(s.Crops))}
		for _, c := range s.Crops {
			w, err := toWire(c)
			if err != nil {
				return nil, err
			}
			out.Crops = append(out.Crops, w)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported crop type %T", ErrInvalidCrop, spec)
	}
}

// nonNil keeps empty region lists encoded as [] rather than dropped
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
