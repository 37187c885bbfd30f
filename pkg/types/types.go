package types

import (
	"image"
)

// Point is an integer pixel coordinate in source-image space
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ImagePoint converts p to an image.Point
func (p Point) ImagePoint() image.Point {
	return image.Point{X: p.X, Y: p.Y}
}

// PointFrom converts an image.Point to a Point
func PointFrom(p image.Point) Point {
	return Point{X: p.X, Y: p.Y}
}

// Rect is an axis-aligned rectangle given by its top-left corner and size
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Bounds returns the rectangle as an image.Rectangle
func (r Rect) Bounds() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Left+r.Width, r.Top+r.Height)
}

// Empty reports whether the rectangle has no area
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Circle is given by its center and radius
type Circle struct {
	CX int `json:"cx"`
	CY int `json:"cy"`
	R  int `json:"r"`
}

// Bounds returns the bounding square of the circle
func (c Circle) Bounds() image.Rectangle {
	return image.Rect(c.CX-c.R, c.CY-c.R, c.CX+c.R, c.CY+c.R)
}

// Empty reports whether the circle has no area
func (c Circle) Empty() bool {
	return c.R <= 0
}

// Polygon is a closed outline; the last point connects back to the first
type Polygon []Point

// Bounds returns the bounding box of the polygon. Vertices sit on pixel
// grid lines, so the box covers exactly the pixels the fill can reach.
func (p Polygon) Bounds() image.Rectangle {
	if len(p) == 0 {
		return image.Rectangle{}
	}
	minX, minY, maxX, maxY := p[0].X, p[0].Y, p[0].X, p[0].Y
	for _, pt := range p[1:] {
		if pt.X < minX {
			minX = pt.X
		}
		if pt.X > maxX {
			maxX = pt.X
		}
		if pt.Y < minY {
			minY = pt.Y
		}
		if pt.Y > maxY {
			maxY = pt.Y
		}
	}
	return image.Rect(minX, minY, maxX, maxY)
}

// Valid reports whether the polygon has enough vertices to enclose an area
func (p Polygon) Valid() bool {
	return len(p) >= 3
}

// Kind identifies which crop tool produced a shape
type Kind string

const (
	KindRect    Kind = "rect"
	KindCircle  Kind = "circle"
	KindPolygon Kind = "polygon"
	KindMagic   Kind = "magic"
	KindSelfie  Kind = "selfie"
	KindSAM     Kind = "sam"
	KindMulti   Kind = "multi"
)

// IsPolygonal reports whether shapes of this kind carry polygon regions
func (k Kind) IsPolygonal() bool {
	switch k {
	case KindPolygon, KindMagic, KindSelfie, KindSAM:
		return true
	}
	return false
}

// CropSpec describes the selection handed to the compositor. It is a closed
// set: RectShape, CircleShape, PolygonShape and MultiShape.
type CropSpec interface {
	Kind() Kind
	// Bounds is the union of the bounding boxes of every region.
	Bounds() image.Rectangle
	// Empty reports whether no usable region is present.
	Empty() bool
	cropSpec()
}

// SingleShape is a CropSpec produced by exactly one tool
type SingleShape interface {
	CropSpec
	singleShape()
}

// RectShape holds the rectangles of the rectangle tool
type RectShape struct {
	Regions []Rect
}

func (RectShape) Kind() Kind { return KindRect }

func (s RectShape) Bounds() image.Rectangle {
	var b image.Rectangle
	for _, r := range s.Regions {
		if !r.Empty() {
			b = b.Union(r.Bounds())
		}
	}
	return b
}

func (s RectShape) Empty() bool {
	for _, r := range s.Regions {
		if !r.Empty() {
			return false
		}
	}
	return true
}

func (RectShape) cropSpec()    {}
func (RectShape) singleShape() {}

// CircleShape holds the circles of the circle tool
type CircleShape struct {
	Regions []Circle
}

func (CircleShape) Kind() Kind { return KindCircle }

func (s CircleShape) Bounds() image.Rectangle {
	var b image.Rectangle
	for _, c := range s.Regions {
		if !c.Empty() {
			b = b.Union(c.Bounds())
		}
	}
	return b
}

func (s CircleShape) Empty() bool {
	for _, c := range s.Regions {
		if !c.Empty() {
			return false
		}
	}
	return true
}

func (CircleShape) cropSpec()    {}
func (CircleShape) singleShape() {}

// PolygonShape holds polygon regions from the polygon, magic wand,
// person segmentation or smart object tools. Tool is one of the polygonal kinds.
type PolygonShape struct {
	Tool    Kind
	Regions []Polygon
}

func (s PolygonShape) Kind() Kind { return s.Tool }

func (s PolygonShape) Bounds() image.Rectangle {
	var b image.Rectangle
	for _, p := range s.Regions {
		if p.Valid() {
			b = b.Union(p.Bounds())
		}
	}
	return b
}

func (s PolygonShape) Empty() bool {
	for _, p := range s.Regions {
		if p.Valid() {
			return false
		}
	}
	return true
}

func (PolygonShape) cropSpec()    {}
func (PolygonShape) singleShape() {}

// MultiShape combines the shapes of several tools into one selection
type MultiShape struct {
	Crops []SingleShape
}

func (MultiShape) Kind() Kind { return KindMulti }

func (m MultiShape) Bounds() image.Rectangle {
	var b image.Rectangle
	for _, c := range m.Crops {
		if !c.Empty() {
			b = b.Union(c.Bounds())
		}
	}
	return b
}

func (m MultiShape) Empty() bool {
	for _, c := range m.Crops {
		if !c.Empty() {
			return false
		}
	}
	return true
}

func (MultiShape) cropSpec() {}

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// NormPoint is a point in normalized [0,1] image coordinates
type NormPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SegmentationResult is what a vision model reports about the person in a frame
type SegmentationResult struct {
	Label      string        `json:"label"`
	Confidence float64       `json:"confidence"`
	Box        Box           `json:"box"`
	Outlines   [][]NormPoint `json:"outlines"`
}

// Found reports whether the model located a person at all
func (r *SegmentationResult) Found() bool {
	if r == nil || r.Label == "none" || r.Confidence <= 0 {
		return false
	}
	if len(r.Outlines) > 0 {
		return true
	}
	return r.Box.W > 0 && r.Box.H > 0
}
