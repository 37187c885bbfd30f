package cropper

import (
	"fmt"
	"image"
	"sync"

	"github.com/menta2k/cropmask/pkg/contour"
	"github.com/menta2k/cropmask/pkg/region"
	"github.com/menta2k/cropmask/pkg/types"
)

// WandTool selects every area of the clicked color across the whole image
type WandTool struct {
	mu        sync.Mutex
	detector  *region.Detector
	raster    image.Image
	tolerance int
	epsilon   float64
	regions   []types.Polygon
	applied   bool
}

// NewWandTool creates a magic wand tool over raster
func NewWandTool(detector *region.Detector, raster image.Image, cfg Config) *WandTool {
	return &WandTool{
		detector:  detector,
		raster:    raster,
		tolerance: cfg.WandTolerance,
		epsilon:   cfg.WandEpsilon,
	}
}

func (t *WandTool) Kind() types.Kind { return types.KindMagic }

// SetTolerance changes the color tolerance used by later clicks
func (t *WandTool) SetTolerance(tolerance int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tolerance = tolerance
}

// Click runs the whole-image scan from p. Shift adds the outlines to the
// current selection, a plain click replaces it. On error the selection is
// left untouched.
func (t *WandTool) Click(p image.Point, shift bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.raster == nil {
		return ErrNoImage
	}

	sets, err := t.detector.MagicWand(t.raster, p, t.tolerance)
	if err != nil {
		return fmt.Errorf("magic wand at %d,%d: %w", p.X, p.Y, err)
	}

	polys := make([]types.Polygon, 0, len(sets))
	for _, set := range sets {
		if poly := contour.Outline(set, t.epsilon); poly.Valid() {
			polys = append(polys, poly)
		}
	}
	if len(polys) == 0 {
		return fmt.Errorf("magic wand at %d,%d: %w", p.X, p.Y, region.ErrNoRegion)
	}

	if !shift {
		t.regions = nil
	}
	t.regions = append(t.regions, polys...)
	t.applied = false
	return nil
}

// Regions returns the current outlines
func (t *WandTool) Regions() []types.Polygon {
	t.mu.Lock()
	defer t.mu.Unlock()
	return validPolygons(t.regions)
}

func (t *WandTool) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return stateOf(false, len(t.regions), t.applied)
}

func (t *WandTool) CanApply() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.regions) > 0
}

func (t *WandTool) Apply() (types.SingleShape, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.regions) == 0 {
		return nil, false
	}
	t.applied = true
	return types.PolygonShape{Tool: types.KindMagic, Regions: validPolygons(t.regions)}, true
}

// UndoLast removes the newest outline
func (t *WandTool) UndoLast() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.regions) == 0 {
		return false
	}
	t.regions = t.regions[:len(t.regions)-1]
	t.applied = false
	return true
}

func (t *WandTool) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.regions, t.applied = nil, false
}
