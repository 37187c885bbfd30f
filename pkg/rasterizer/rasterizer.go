// Package rasterizer renders small vector shape documents to RGBA rasters.
package rasterizer

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/gogpu/gg"
	"github.com/lucasb-eyer/go-colorful"
)

// ErrEmptyCanvas is returned for documents without a drawable area
var ErrEmptyCanvas = errors.New("canvas has no area")

// Shape kinds understood by Render
const (
	ShapeRect    = "rect"
	ShapeCircle  = "circle"
	ShapePolygon = "polygon"
)

// Vertex is a polygon corner in canvas coordinates
type Vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Shape is one filled primitive. Which fields apply depends on Type.
type Shape struct {
	Type string `json:"type"`
	Fill string `json:"fill"`

	// rect
	X float64 `json:"x,omitempty"`
	Y float64 `json:"y,omitempty"`
	W float64 `json:"w,omitempty"`
	H float64 `json:"h,omitempty"`

	// circle
	CX float64 `json:"cx,omitempty"`
	CY float64 `json:"cy,omitempty"`
	R  float64 `json:"r,omitempty"`

	// polygon
	Points []Vertex `json:"points,omitempty"`
}

// Document is a canvas of explicit pixel size with shapes painted in order
type Document struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Background string  `json:"background"`
	Shapes     []Shape `json:"shapes"`
}

// Render paints doc onto a new raster of exactly doc.Width x doc.Height
func Render(doc Document) (*image.RGBA, error) {
	if doc.Width <= 0 || doc.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyCanvas, doc.Width, doc.Height)
	}

	bg, err := parseColor(doc.Background)
	if err != nil {
		return nil, fmt.Errorf("background: %w", err)
	}

	dc := gg.NewContext(doc.Width, doc.Height)
	defer dc.Close()
	dc.ClearWithColor(gg.RGB(bg.R, bg.G, bg.B))
	dc.SetFillRule(gg.FillRuleNonZero)

	for i, s := range doc.Shapes {
		fill, err := parseColor(s.Fill)
		if err != nil {
			return nil, fmt.Errorf("shape %d: %w", i, err)
		}
		if !tracePath(dc, s) {
			continue
		}
		dc.SetRGB(fill.R, fill.G, fill.B)
		if err := dc.Fill(); err != nil {
			return nil, fmt.Errorf("shape %d: fill failed: %w", i, err)
		}
	}

	if err := dc.FlushGPU(); err != nil {
		return nil, fmt.Errorf("flush failed: %w", err)
	}
	return toRGBA(dc.Image()), nil
}

// tracePath adds the outline of s to the current path. It reports false for
// shapes that cover nothing.
func tracePath(dc *gg.Context, s Shape) bool {
	switch s.Type {
	case ShapeRect:
		if s.W <= 0 || s.H <= 0 {
			return false
		}
		dc.DrawRectangle(s.X, s.Y, s.W, s.H)
	case ShapeCircle:
		if s.R <= 0 {
			return false
		}
		dc.DrawCircle(s.CX, s.CY, s.R)
	case ShapePolygon:
		if len(s.Points) < 3 {
			return false
		}
		dc.MoveTo(s.Points[0].X, s.Points[0].Y)
		for _, p := range s.Points[1:] {
			dc.LineTo(p.X, p.Y)
		}
		dc.ClosePath()
	default:
		return false
	}
	return true
}

func parseColor(hex string) (colorful.Color, error) {
	if hex == "" {
		return colorful.Color{}, nil
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return colorful.Color{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	return c, nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
