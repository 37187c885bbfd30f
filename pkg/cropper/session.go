package cropper

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/menta2k/cropmask/pkg/region"
	"github.com/menta2k/cropmask/pkg/types"
)

// Notice is a recoverable problem reported to the user
type Notice struct {
	Mode types.Kind
	Err  error
}

func (n Notice) String() string {
	switch {
	case errors.Is(n.Err, region.ErrNoRegion):
		return "No matching region found at that point"
	case errors.Is(n.Err, ErrNoForeground):
		return "No person found in the image"
	case errors.Is(n.Err, ErrNoImage):
		return "Load an image first"
	}
	return fmt.Sprintf("%s failed: %v", n.Mode, n.Err)
}

// Session owns one image and one instance of every tool. Tool regions
// survive mode switches so shapes from several tools can be combined.
type Session struct {
	mu        sync.Mutex
	cfg       Config
	detector  *region.Detector
	segmenter Segmenter
	logger    *slog.Logger
	notify    func(Notice)
	mode      types.Kind
	raster    *image.NRGBA

	rect    *RectTool
	circle  *CircleTool
	polygon *PolygonTool
	wand    *WandTool
	smart   *SmartTool
	person  *PersonTool
}

// NewSession creates a session with no image loaded. segmenter may be nil,
// in which case person mode reports ErrNoSegmenter.
func NewSession(cfg Config, detector *region.Detector, segmenter Segmenter) *Session {
	if detector == nil {
		detector = region.New()
	}
	s := &Session{
		cfg:       cfg,
		detector:  detector,
		segmenter: segmenter,
		logger:    slog.New(slog.DiscardHandler),
		mode:      types.KindRect,
	}
	s.buildTools()
	return s
}

// SetLogger sets the logger used for detection diagnostics
func (s *Session) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// OnNotice registers the callback that receives recoverable failures
func (s *Session) OnNotice(fn func(Notice)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// LoadImage replaces the working raster and resets every tool
func (s *Session) LoadImage(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raster = imaging.Clone(img)
	s.buildTools()
}

// Image returns the working raster, or nil before LoadImage
func (s *Session) Image() *image.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raster
}

func (s *Session) buildTools() {
	var raster image.Image
	if s.raster != nil {
		raster = s.raster
	}
	if s.smart != nil {
		s.smart.Reset()
	}
	if s.person != nil {
		s.person.Reset()
	}
	s.rect = NewRectTool()
	s.circle = NewCircleTool()
	s.polygon = NewPolygonTool()
	s.wand = NewWandTool(s.detector, raster, s.cfg)
	s.smart = NewSmartTool(s.detector, raster, s.cfg)
	s.person = NewPersonTool(s.segmenter, raster, s.cfg)
}

func (s *Session) Rect() *RectTool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rect
}

func (s *Session) Circle() *CircleTool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.circle
}

func (s *Session) Polygon() *PolygonTool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polygon
}

func (s *Session) Wand() *WandTool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wand
}

func (s *Session) Smart() *SmartTool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.smart
}

func (s *Session) Person() *PersonTool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.person
}

// Tool returns the tool for a mode
func (s *Session) Tool(mode types.Kind) (Tool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toolLocked(mode)
}

func (s *Session) toolLocked(mode types.Kind) (Tool, bool) {
	switch mode {
	case types.KindRect:
		return s.rect, true
	case types.KindCircle:
		return s.circle, true
	case types.KindPolygon:
		return s.polygon, true
	case types.KindMagic:
		return s.wand, true
	case types.KindSAM:
		return s.smart, true
	case types.KindSelfie:
		return s.person, true
	}
	return nil, false
}

// tools lists every tool in aggregation order
func (s *Session) tools() []Tool {
	return []Tool{s.rect, s.circle, s.polygon, s.wand, s.smart, s.person}
}

// Mode returns the active mode
func (s *Session) Mode() types.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches the active tool. Entering person mode starts segmentation
// once; the returned future is nil for every other mode.
func (s *Session) SetMode(ctx context.Context, mode types.Kind) (*Future, error) {
	s.mu.Lock()
	if _, ok := s.toolLocked(mode); !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("unknown crop mode %q", mode)
	}
	s.mode = mode
	person, logger := s.person, s.logger
	s.mu.Unlock()

	if mode != types.KindSelfie {
		return nil, nil
	}

	return person.Activate(ctx, func(_ types.Polygon, err error) {
		if err != nil {
			logger.Warn("person segmentation failed", "error", err)
			s.report(types.KindSelfie, err)
			return
		}
		logger.Debug("person segmentation finished")
	}), nil
}

// Click forwards a pointer click to the active tool
func (s *Session) Click(p image.Point, shift bool) error {
	s.mu.Lock()
	mode := s.mode
	rect, circle, polygon, wand, smart := s.rect, s.circle, s.polygon, s.wand, s.smart
	s.mu.Unlock()

	var err error
	switch mode {
	case types.KindRect:
		rect.Click(p, shift)
	case types.KindCircle:
		circle.Click(p, shift)
	case types.KindPolygon:
		polygon.AddVertex(p)
	case types.KindMagic:
		err = wand.Click(p, shift)
	case types.KindSAM:
		err = smart.Click(p, shift)
	}
	if err != nil {
		s.report(mode, err)
	}
	return err
}

// Hover forwards pointer movement; only smart mode previews on hover
func (s *Session) Hover(p image.Point) {
	s.mu.Lock()
	mode, smart := s.mode, s.smart
	s.mu.Unlock()
	if mode == types.KindSAM {
		smart.Hover(p)
	}
}

// ResetTool clears one tool without touching the others
func (s *Session) ResetTool(mode types.Kind) error {
	tool, ok := s.Tool(mode)
	if !ok {
		return fmt.Errorf("unknown crop mode %q", mode)
	}
	tool.Reset()
	return nil
}

// ResetAll clears every tool
func (s *Session) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tools() {
		t.Reset()
	}
}

// CanApply reports whether any tool holds a region
func (s *Session) CanApply() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tools() {
		if t.CanApply() {
			return true
		}
	}
	return false
}

// Apply collects every active tool's shape into one CropSpec. It reports
// false when no tool holds a region.
func (s *Session) Apply() (types.CropSpec, bool) {
	s.mu.Lock()
	tools := s.tools()
	logger := s.logger
	s.mu.Unlock()

	var shapes []types.SingleShape
	for _, t := range tools {
		if shape, ok := t.Apply(); ok {
			shapes = append(shapes, shape)
		}
	}
	spec, ok := Aggregate(shapes)
	if ok {
		logger.Debug("selection applied", "kind", spec.Kind(), "tools", len(shapes))
	}
	return spec, ok
}

func (s *Session) report(mode types.Kind, err error) {
	s.mu.Lock()
	fn := s.notify
	s.mu.Unlock()
	if fn != nil {
		fn(Notice{Mode: mode, Err: err})
	}
}

// Aggregate merges per-tool shapes. Nothing active yields false, a single
// shape is passed through and several are wrapped in a MultiShape.
func Aggregate(shapes []types.SingleShape) (types.CropSpec, bool) {
	active := make([]types.SingleShape, 0, len(shapes))
	for _, s := range shapes {
		if s != nil && !s.Empty() {
			active = append(active, s)
		}
	}
	switch len(active) {
	case 0:
		return nil, false
	case 1:
		return active[0], true
	}
	return types.MultiShape{Crops: active}, true
}
