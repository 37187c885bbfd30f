package cropper

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/menta2k/cropmask/pkg/contour"
	"github.com/menta2k/cropmask/pkg/region"
	"github.com/menta2k/cropmask/pkg/types"
)

// preview is a computed outline remembered for the exact point and tolerance
type preview struct {
	at        image.Point
	tolerance float64
	outline   types.Polygon
}

// SmartTool selects the single color-similar area under the pointer. Hovering
// computes a preview after a pause; clicking at the same point commits that
// preview unchanged.
type SmartTool struct {
	// processing serializes detections; hover skips instead of waiting
	processing sync.Mutex

	mu        sync.Mutex
	detector  *region.Detector
	raster    image.Image
	tolerance float64
	epsilon   float64
	delay     time.Duration
	regions   []types.Polygon
	applied   bool
	cache     *preview
	timer     *time.Timer
	onPreview func(image.Point, types.Polygon)
}

// NewSmartTool creates a smart selection tool over raster
func NewSmartTool(detector *region.Detector, raster image.Image, cfg Config) *SmartTool {
	return &SmartTool{
		detector:  detector,
		raster:    raster,
		tolerance: cfg.SmartTolerance,
		epsilon:   cfg.SmartEpsilon,
		delay:     cfg.HoverDelay,
	}
}

func (t *SmartTool) Kind() types.Kind { return types.KindSAM }

// SetTolerance changes the tolerance; region.AutoTolerance derives it per click
func (t *SmartTool) SetTolerance(tolerance float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tolerance = tolerance
}

// OnPreview registers a callback invoked after each successful hover preview
func (t *SmartTool) OnPreview(fn func(image.Point, types.Polygon)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPreview = fn
}

// Hover schedules a preview at p once the pointer has rested for the hover
// delay. A newer hover cancels the pending one, and a hover that fires while
// a click is being processed is dropped.
func (t *SmartTool) Hover(p image.Point) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.delay, func() {
		if !t.processing.TryLock() {
			return
		}
		defer t.processing.Unlock()

		outline, err := t.outlineAt(p)
		if err != nil {
			return
		}
		t.mu.Lock()
		fn := t.onPreview
		t.mu.Unlock()
		if fn != nil {
			fn(p, outline)
		}
	})
}

// Preview computes (or returns the cached) outline at p without committing it
func (t *SmartTool) Preview(p image.Point) (types.Polygon, error) {
	t.processing.Lock()
	defer t.processing.Unlock()
	return t.outlineAt(p)
}

// CachedPreview returns the most recent preview, if any
func (t *SmartTool) CachedPreview() (image.Point, types.Polygon, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cache == nil {
		return image.Point{}, nil, false
	}
	return t.cache.at, append(types.Polygon(nil), t.cache.outline...), true
}

// Click commits the outline at p, reusing a preview computed at exactly p.
// Shift adds to the selection, a plain click replaces it.
func (t *SmartTool) Click(p image.Point, shift bool) error {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()

	t.processing.Lock()
	defer t.processing.Unlock()

	outline, err := t.outlineAt(p)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !shift {
		t.regions = nil
	}
	t.regions = append(t.regions, outline)
	t.applied = false
	return nil
}

// outlineAt runs detection at p. Callers hold the processing lock.
func (t *SmartTool) outlineAt(p image.Point) (types.Polygon, error) {
	t.mu.Lock()
	raster, tolerance, epsilon := t.raster, t.tolerance, t.epsilon
	if c := t.cache; c != nil && c.at == p && c.tolerance == tolerance {
		outline := append(types.Polygon(nil), c.outline...)
		t.mu.Unlock()
		return outline, nil
	}
	t.mu.Unlock()

	if raster == nil {
		return nil, ErrNoImage
	}

	set, err := t.detector.SmartSelect(raster, p, tolerance)
	if err != nil {
		return nil, fmt.Errorf("smart select at %d,%d: %w", p.X, p.Y, err)
	}
	outline := contour.Outline(set, epsilon)
	if !outline.Valid() {
		return nil, fmt.Errorf("smart select at %d,%d: %w", p.X, p.Y, region.ErrNoRegion)
	}

	t.mu.Lock()
	t.cache = &preview{at: p, tolerance: tolerance, outline: outline}
	t.mu.Unlock()
	return append(types.Polygon(nil), outline...), nil
}

// Regions returns the committed outlines
func (t *SmartTool) Regions() []types.Polygon {
	t.mu.Lock()
	defer t.mu.Unlock()
	return validPolygons(t.regions)
}

func (t *SmartTool) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return stateOf(false, len(t.regions), t.applied)
}

func (t *SmartTool) CanApply() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.regions) > 0
}

func (t *SmartTool) Apply() (types.SingleShape, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.regions) == 0 {
		return nil, false
	}
	t.applied = true
	return types.PolygonShape{Tool: types.KindSAM, Regions: validPolygons(t.regions)}, true
}

// UndoLast removes the newest committed outline
func (t *SmartTool) UndoLast() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.regions) == 0 {
		return false
	}
	t.regions = t.regions[:len(t.regions)-1]
	t.applied = false
	return true
}

// Reset clears the selection, the preview cache and any pending hover
func (t *SmartTool) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.regions, t.applied, t.cache = nil, false, nil
}
