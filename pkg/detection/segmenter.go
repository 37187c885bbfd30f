// Package detection turns vision model replies into foreground masks for
// person selection.
package detection

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/anthonynsimon/bild/effect"

	"github.com/menta2k/cropmask/pkg/client"
	"github.com/menta2k/cropmask/pkg/processing"
	"github.com/menta2k/cropmask/pkg/rasterizer"
	"github.com/menta2k/cropmask/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks for the outline of the most prominent person
const DefaultPrompt = `You are a person segmentation assistant.

Return JSON only:
{
  "label": "person",
  "confidence": 0.0,
  "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0},
  "outlines": [[{"x": 0.0, "y": 0.0}, {"x": 0.0, "y": 0.0}, {"x": 0.0, "y": 0.0}]]
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels), origin top-left.
- "outlines" traces the silhouette of the most prominent person, clockwise, 12 to 60 points per outline.
- Use one outline per visually separate part of that person.
- "box" tightly encloses the same person.
- If there is no person, return {"label":"none","confidence":0.0,"box":{"x":0,"y":0,"w":0,"h":0},"outlines":[]}
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Config holds configuration for the person segmenter
type Config struct {
	Model   string
	Prompt  string
	MaxDim  int
	Quality int
}

// DefaultConfig returns the segmenter defaults for model
func DefaultConfig(model string) Config {
	return Config{
		Model:   model,
		Prompt:  DefaultPrompt,
		MaxDim:  768,
		Quality: 85,
	}
}

// PersonSegmenter asks a vision model where the person is and rasterizes
// the answer into a foreground mask at model resolution
type PersonSegmenter struct {
	client    client.VisionClient
	processor *processing.Processor
	config    Config
	logger    *slog.Logger
}

// NewPersonSegmenter creates a segmenter over a vision backend
func NewPersonSegmenter(c client.VisionClient, config Config) *PersonSegmenter {
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	if config.Quality <= 0 {
		config.Quality = 85
	}
	return &PersonSegmenter{
		client:    c,
		processor: processing.NewProcessor(),
		config:    config,
		logger:    slog.New(slog.DiscardHandler),
	}
}

// SetLogger sets the logger; nil restores the discard logger
func (s *PersonSegmenter) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s.logger = logger
}

// TestVision tests if the model can actually see the image with a simple prompt
func (s *PersonSegmenter) TestVision(ctx context.Context, frame image.Image) (string, error) {
	b64, err := s.processor.PrepareImageForModel(frame, "jpeg", s.config.MaxDim, s.config.Quality)
	if err != nil {
		return "", err
	}
	return s.client.SimpleQuery(ctx, s.config.Model, SimpleTestPrompt, b64)
}

// Segment returns a foreground mask for frame, sized like the image the
// model saw. White is person. A frame without a person yields an all-black mask.
func (s *PersonSegmenter) Segment(ctx context.Context, frame image.Image) (*image.Gray, error) {
	width, height := modelSize(frame.Bounds(), s.config.MaxDim)
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("segment: empty frame")
	}

	b64, err := s.processor.PrepareImageForModel(frame, "jpeg", s.config.MaxDim, s.config.Quality)
	if err != nil {
		return nil, fmt.Errorf("segment: prepare frame: %w", err)
	}

	res, err := s.client.SegmentPerson(ctx, s.config.Model, s.config.Prompt, b64)
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}

	s.logger.Debug("segmentation reply",
		"label", res.Label,
		"confidence", res.Confidence,
		"outlines", len(res.Outlines),
	)

	doc := MaskDocument(res, width, height)
	raster, err := rasterizer.Render(doc)
	if err != nil {
		return nil, fmt.Errorf("segment: render mask: %w", err)
	}
	return effect.Grayscale(raster), nil
}

// MaskDocument builds the shape document for a segmentation reply: the
// outlines when present, the box otherwise, white on black
func MaskDocument(res *types.SegmentationResult, width, height int) rasterizer.Document {
	doc := rasterizer.Document{Width: width, Height: height, Background: "#000000"}
	if !res.Found() {
		return doc
	}

	w, h := float64(width), float64(height)
	for _, outline := range res.Outlines {
		shape := rasterizer.Shape{Type: rasterizer.ShapePolygon, Fill: "#ffffff"}
		for _, p := range outline {
			shape.Points = append(shape.Points, rasterizer.Vertex{X: p.X * w, Y: p.Y * h})
		}
		doc.Shapes = append(doc.Shapes, shape)
	}
	if len(doc.Shapes) == 0 {
		doc.Shapes = append(doc.Shapes, rasterizer.Shape{
			Type: rasterizer.ShapeRect,
			Fill: "#ffffff",
			X:    res.Box.X * w,
			Y:    res.Box.Y * h,
			W:    res.Box.W * w,
			H:    res.Box.H * h,
		})
	}
	return doc
}

// modelSize mirrors the downscale PrepareImageForModel applies
func modelSize(b image.Rectangle, maxDim int) (int, int) {
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, int(float64(h)*float64(maxDim)/float64(w)+0.5))
	}
	return max(1, int(float64(w)*float64(maxDim)/float64(h)+0.5)), maxDim
}
