package cropper

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/anthonynsimon/bild/segment"
	"golang.org/x/image/draw"

	"github.com/menta2k/cropmask/pkg/contour"
	"github.com/menta2k/cropmask/pkg/region"
	"github.com/menta2k/cropmask/pkg/types"
)

// Segmenter estimates per-pixel foreground probability for a frame. The
// returned raster may have any resolution; 255 means certainly foreground.
type Segmenter interface {
	Segment(ctx context.Context, frame image.Image) (*image.Gray, error)
}

// Future is a single-resolve handle for an asynchronous segmentation
type Future struct {
	done    chan struct{}
	outline types.Polygon
	err     error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(outline types.Polygon, err error) {
	f.outline, f.err = outline, err
	close(f.done)
}

// Done is closed once the result is available
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is available or ctx ends
func (f *Future) Wait(ctx context.Context) (types.Polygon, error) {
	select {
	case <-f.done:
		return f.outline, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PersonTool selects the most prominent person using an external segmenter.
// It runs at most once per activation: the latch stays closed after a
// success and opens again only on Reset or on failure.
type PersonTool struct {
	latch atomic.Bool

	mu         sync.Mutex
	segmenter  Segmenter
	raster     image.Image
	threshold  uint8
	epsilon    float64
	regions    []types.Polygon
	applied    bool
	running    bool
	last       *Future
	generation uint64
}

// NewPersonTool creates a person segmentation tool over raster
func NewPersonTool(segmenter Segmenter, raster image.Image, cfg Config) *PersonTool {
	return &PersonTool{
		segmenter: segmenter,
		raster:    raster,
		threshold: cfg.PersonThreshold,
		epsilon:   cfg.PersonEpsilon,
	}
}

func (t *PersonTool) Kind() types.Kind { return types.KindSelfie }

// Activate starts segmentation unless the latch is already closed, in which
// case the future of the previous run is returned. onDone, when set, runs
// after the tool state is updated.
func (t *PersonTool) Activate(ctx context.Context, onDone func(types.Polygon, error)) *Future {
	t.mu.Lock()
	if !t.latch.CompareAndSwap(false, true) {
		defer t.mu.Unlock()
		return t.last
	}

	f := newFuture()
	t.last = f
	t.running = true
	gen := t.generation
	segmenter, raster := t.segmenter, t.raster
	t.mu.Unlock()

	go func() {
		outline, err := t.segment(ctx, segmenter, raster)

		t.mu.Lock()
		if gen == t.generation {
			t.running = false
			if err != nil {
				t.latch.Store(false)
			} else {
				t.regions = []types.Polygon{outline}
				t.applied = false
			}
		}
		t.mu.Unlock()

		f.resolve(outline, err)
		if onDone != nil {
			onDone(outline, err)
		}
	}()
	return f
}

func (t *PersonTool) segment(ctx context.Context, segmenter Segmenter, raster image.Image) (types.Polygon, error) {
	if raster == nil {
		return nil, ErrNoImage
	}
	if segmenter == nil {
		return nil, ErrNoSegmenter
	}

	prob, err := segmenter.Segment(ctx, raster)
	if err != nil {
		return nil, fmt.Errorf("person segmentation: %w", err)
	}
	if prob == nil || prob.Bounds().Empty() {
		return nil, ErrNoForeground
	}

	bounds := raster.Bounds()
	if prob.Bounds().Size() != bounds.Size() {
		// Model output is at its own resolution
		scaled := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.BiLinear.Scale(scaled, scaled.Bounds(), prob, prob.Bounds(), draw.Src, nil)
		prob = scaled
	}

	mask := segment.Threshold(prob, t.threshold)
	set, err := region.LargestComponent(mask)
	if errors.Is(err, region.ErrNoRegion) {
		return nil, ErrNoForeground
	}
	if err != nil {
		return nil, err
	}

	outline := contour.Outline(set, t.epsilon)
	if !outline.Valid() {
		return nil, ErrNoForeground
	}
	offset := bounds.Min.Sub(mask.Bounds().Min)
	for i := range outline {
		outline[i].X += offset.X
		outline[i].Y += offset.Y
	}
	return outline, nil
}

// Latched reports whether an activation has run or is running
func (t *PersonTool) Latched() bool {
	return t.latch.Load()
}

// Regions returns the current person outline
func (t *PersonTool) Regions() []types.Polygon {
	t.mu.Lock()
	defer t.mu.Unlock()
	return validPolygons(t.regions)
}

func (t *PersonTool) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return stateOf(t.running, len(t.regions), t.applied)
}

func (t *PersonTool) CanApply() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.regions) > 0
}

func (t *PersonTool) Apply() (types.SingleShape, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.regions) == 0 {
		return nil, false
	}
	t.applied = true
	return types.PolygonShape{Tool: types.KindSelfie, Regions: validPolygons(t.regions)}, true
}

// Reset clears the outline, discards any in-flight result and opens the latch
func (t *PersonTool) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	t.regions, t.applied, t.running, t.last = nil, false, false, nil
	t.latch.Store(false)
}
