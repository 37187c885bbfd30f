// Package compositor applies a crop selection to an image as an alpha mask.
package compositor

import (
	"errors"
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/segment"
	"golang.org/x/image/draw"

	"github.com/menta2k/cropmask/pkg/processing"
	"github.com/menta2k/cropmask/pkg/rasterizer"
	"github.com/menta2k/cropmask/pkg/types"
)

// ErrUnknownShape is returned for CropSpec values outside the known set
var ErrUnknownShape = errors.New("unknown crop shape")

const (
	selected   = "#ffffff"
	unselected = "#000000"
)

// Compositor masks images with crop selections
type Compositor struct {
	processor *processing.Processor
}

// New creates a compositor that uses processor for extraction and raw buffers
func New(processor *processing.Processor) *Compositor {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	return &Compositor{processor: processor}
}

// Composite keeps the selected area of img and clears the rest through
// alpha. Normally the result is cut to the selection's bounding box; with
// invert the selection is removed instead and the full canvas is kept.
// When the box is empty after clipping, img is returned as is with
// applied=false.
func (c *Compositor) Composite(img image.Image, spec types.CropSpec, invert bool) (image.Image, bool, error) {
	if spec == nil || spec.Empty() {
		return img, false, nil
	}

	canvas := img.Bounds()
	box := spec.Bounds().Add(canvas.Min).Intersect(canvas)
	if invert {
		box = canvas
	}
	if box.Empty() {
		return img, false, nil
	}

	// Shapes are in image-relative coordinates; the mask is box-relative.
	offset := box.Min.Sub(canvas.Min)
	doc, err := MaskDocument(spec, offset, box.Dx(), box.Dy(), invert)
	if err != nil {
		return nil, false, err
	}
	rendered, err := rasterizer.Render(doc)
	if err != nil {
		return nil, false, fmt.Errorf("rasterize mask: %w", err)
	}

	var extracted image.Image = img
	if !invert {
		extracted = c.processor.Extract(img, box)
	}
	raw := c.processor.ToRaw(extracted)

	mask := image.NewGray(image.Rect(0, 0, raw.Width, raw.Height))
	draw.NearestNeighbor.Scale(mask, mask.Bounds(), rendered, rendered.Bounds(), draw.Src, nil)
	mask = segment.Threshold(mask, 128)

	applyMask(raw, mask)

	out, err := c.processor.FromRaw(raw)
	if err != nil {
		return nil, false, fmt.Errorf("rebuild image: %w", err)
	}
	return out, true, nil
}

// applyMask multiplies each pixel's alpha by the mask intensity
func applyMask(raw processing.RawImage, mask *image.Gray) {
	for y := 0; y < raw.Height; y++ {
		row := y * raw.Width * raw.Channels
		mrow := y * mask.Stride
		for x := 0; x < raw.Width; x++ {
			i := row + x*raw.Channels + 3
			raw.Data[i] = uint8(uint16(raw.Data[i]) * uint16(mask.Pix[mrow+x]) / 255)
		}
	}
}

// MaskDocument builds the shape document for spec at box resolution. Shapes
// are translated by -offset; every shape of a MultiShape lands in the one
// document.
func MaskDocument(spec types.CropSpec, offset image.Point, width, height int, invert bool) (rasterizer.Document, error) {
	fill, bg := selected, unselected
	if invert {
		fill, bg = unselected, selected
	}

	shapes, err := appendShapes(nil, spec, offset, fill)
	if err != nil {
		return rasterizer.Document{}, err
	}
	return rasterizer.Document{
		Width:      width,
		Height:     height,
		Background: bg,
		Shapes:     shapes,
	}, nil
}

func appendShapes(dst []rasterizer.Shape, spec types.CropSpec, offset image.Point, fill string) ([]rasterizer.Shape, error) {
	ox, oy := float64(offset.X), float64(offset.Y)

	switch s := spec.(type) {
	case types.RectShape:
		for _, r := range s.Regions {
			if r.Empty() {
				continue
			}
			dst = append(dst, rasterizer.Shape{
				Type: rasterizer.ShapeRect,
				Fill: fill,
				X:    float64(r.Left) - ox,
				Y:    float64(r.Top) - oy,
				W:    float64(r.Width),
				H:    float64(r.Height),
			})
		}
	case types.CircleShape:
		for _, c := range s.Regions {
			if c.Empty() {
				continue
			}
			dst = append(dst, rasterizer.Shape{
				Type: rasterizer.ShapeCircle,
				Fill: fill,
				CX:   float64(c.CX) - ox,
				CY:   float64(c.CY) - oy,
				R:    float64(c.R),
			})
		}
	case types.PolygonShape:
		for _, poly := range s.Regions {
			if !poly.Valid() {
				continue
			}
			pts := make([]rasterizer.Vertex, len(poly))
			for i, p := range poly {
				pts[i] = rasterizer.Vertex{X: float64(p.X) - ox, Y: float64(p.Y) - oy}
			}
			dst = append(dst, rasterizer.Shape{Type: rasterizer.ShapePolygon, Fill: fill, Points: pts})
		}
	case types.MultiShape:
		for _, crop := range s.Crops {
			var err error
			if dst, err = appendShapes(dst, crop, offset, fill); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownShape, spec)
	}
	return dst, nil
}
