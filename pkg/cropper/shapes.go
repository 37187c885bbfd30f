package cropper

import (
	"image"
	"math"
	"sync"

	"github.com/menta2k/cropmask/pkg/types"
)

// RectTool builds rectangles from pairs of corner clicks
type RectTool struct {
	mu      sync.Mutex
	regions []types.Rect
	anchor  *image.Point
	union   bool
	applied bool
}

// NewRectTool creates an idle rectangle tool
func NewRectTool() *RectTool {
	return &RectTool{}
}

func (t *RectTool) Kind() types.Kind { return types.KindRect }

// Click records one corner. The first click of a shape decides whether the
// finished rectangle joins the existing ones (shift) or replaces them.
// Zero-area rectangles are discarded.
func (t *RectTool) Click(p image.Point, shift bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.anchor == nil {
		t.anchor = &p
		t.union = shift
		t.applied = false
		return
	}

	a := *t.anchor
	t.anchor = nil
	r := image.Rectangle{Min: a, Max: p}.Canon()
	rect := types.Rect{Left: r.Min.X, Top: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
	if rect.Empty() {
		return
	}
	if !t.union {
		t.regions = nil
	}
	t.regions = append(t.regions, rect)
}

// Regions returns a copy of the completed rectangles
func (t *RectTool) Regions() []types.Rect {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]types.Rect(nil), t.regions...)
}

func (t *RectTool) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return stateOf(t.anchor != nil, len(t.regions), t.applied)
}

func (t *RectTool) CanApply() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.regions) > 0
}

func (t *RectTool) Apply() (types.SingleShape, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.regions) == 0 {
		return nil, false
	}
	t.applied = true
	return types.RectShape{Regions: append([]types.Rect(nil), t.regions...)}, true
}

// UndoLast drops a pending corner, or else the newest rectangle
func (t *RectTool) UndoLast() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.anchor != nil {
		t.anchor = nil
		return true
	}
	if len(t.regions) == 0 {
		return false
	}
	t.regions = t.regions[:len(t.regions)-1]
	t.applied = false
	return true
}

func (t *RectTool) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.regions, t.anchor, t.union, t.applied = nil, nil, false, false
}

// CircleTool builds circles from a center click followed by a radius click
type CircleTool struct {
	mu      sync.Mutex
	regions []types.Circle
	center  *image.Point
	union   bool
	applied bool
}

// NewCircleTool creates an idle circle tool
func NewCircleTool() *CircleTool {
	return &CircleTool{}
}

func (t *CircleTool) Kind() types.Kind { return types.KindCircle }

// Click records the center, then the radius point. Shift semantics match RectTool.
func (t *CircleTool) Click(p image.Point, shift bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.center == nil {
		t.center = &p
		t.union = shift
		t.applied = false
		return
	}

	c := *t.center
	t.center = nil
	r := int(math.Round(math.Hypot(float64(p.X-c.X), float64(p.Y-c.Y))))
	circle := types.Circle{CX: c.X, CY: c.Y, R: r}
	if circle.Empty() {
		return
	}
	if !t.union {
		t.regions = nil
	}
	t.regions = append(t.regions, circle)
}

// Regions returns a copy of the completed circles
func (t *CircleTool) Regions() []types.Circle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]types.Circle(nil), t.regions...)
}

func (t *CircleTool) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return stateOf(t.center != nil, len(t.regions), t.applied)
}

func (t *CircleTool) CanApply() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.regions) > 0
}

func (t *CircleTool) Apply() (types.SingleShape, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.regions) == 0 {
		return nil, false
	}
	t.applied = true
	return types.CircleShape{Regions: append([]types.Circle(nil), t.regions...)}, true
}

// UndoLast drops a pending center, or else the newest circle
func (t *CircleTool) UndoLast() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.center != nil {
		t.center = nil
		return true
	}
	if len(t.regions) == 0 {
		return false
	}
	t.regions = t.regions[:len(t.regions)-1]
	t.applied = false
	return true
}

func (t *CircleTool) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.regions, t.center, t.union, t.applied = nil, nil, false, false
}

// PolygonTool collects vertices into polygons. Finish closes the current
// polygon so another can be started.
type PolygonTool struct {
	mu      sync.Mutex
	regions []types.Polygon
	current types.Polygon
	applied bool
}

// NewPolygonTool creates an idle polygon tool
func NewPolygonTool() *PolygonTool {
	return &PolygonTool{}
}

func (t *PolygonTool) Kind() types.Kind { return types.KindPolygon }

// AddVertex appends a vertex to the polygon being drawn
func (t *PolygonTool) AddVertex(p image.Point) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = append(t.current, types.PointFrom(p))
	t.applied = false
}

// Finish closes the current polygon. It fails while fewer than three
// vertices have been placed, leaving them in place.
func (t *PolygonTool) Finish() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.current.Valid() {
		return false
	}
	t.regions = append(t.regions, t.current)
	t.current = nil
	return true
}

// Regions returns the finished polygons
func (t *PolygonTool) Regions() []types.Polygon {
	t.mu.Lock()
	defer t.mu.Unlock()
	return validPolygons(t.regions)
}

func (t *PolygonTool) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return stateOf(len(t.current) > 0, len(t.regions), t.applied)
}

func (t *PolygonTool) CanApply() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.regions) > 0 || t.current.Valid()
}

// Apply includes an unfinished polygon once it has three vertices
func (t *PolygonTool) Apply() (types.SingleShape, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	polys := validPolygons(t.regions)
	if t.current.Valid() {
		polys = append(polys, append(types.Polygon(nil), t.current...))
	}
	if len(polys) == 0 {
		return nil, false
	}
	t.applied = true
	return types.PolygonShape{Tool: types.KindPolygon, Regions: polys}, true
}

// UndoLast removes the newest vertex, or the newest finished polygon when
// nothing is being drawn
func (t *PolygonTool) UndoLast() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.current) > 0 {
		t.current = t.current[:len(t.current)-1]
		return true
	}
	if len(t.regions) == 0 {
		return false
	}
	t.regions = t.regions[:len(t.regions)-1]
	t.applied = false
	return true
}

func (t *PolygonTool) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.regions, t.current, t.applied = nil, nil, false
}
