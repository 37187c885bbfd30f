package processing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/cropmask/pkg/types"
)

// ErrUnknownFormat is returned when no registered decoder accepts the data
var ErrUnknownFormat = errors.New("image: unknown or unsupported format")

// Processor handles decoding, resizing and encoding
type Processor struct {
	config Config
}

// Config holds resize and sharpening parameters
type Config struct {
	// SmallTargetThreshold is the longest output edge below which the
	// stronger sharpen is used after a downscale.
	SmallTargetThreshold int
	Sharpen              float64
	SmallSharpen         float64
	HTTPTimeout          time.Duration
}

// DefaultConfig returns the default processor configuration
func DefaultConfig() Config {
	return Config{
		SmallTargetThreshold: 300,
		Sharpen:              0.5,
		SmallSharpen:         1.0,
		HTTPTimeout:          30 * time.Second,
	}
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{config: DefaultConfig()}
}

// NewProcessorWithConfig creates a processor with custom configuration
func NewProcessorWithConfig(config Config) *Processor {
	return &Processor{config: config}
}

// RawImage is an uncompressed NRGBA buffer with explicit geometry
type RawImage struct {
	Data     []byte
	Width    int
	Height   int
	Channels int
}

// FetchURL downloads image bytes from a URL
func (p *Processor) FetchURL(imageURL string) ([]byte, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	client := &http.Client{Timeout: p.config.HTTPTimeout}

	req, err := http.NewRequest("GET", imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", "cropmask/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	return io.ReadAll(resp.Body)
}

// LoadSource reads image bytes from either a file path or URL
func (p *Processor) LoadSource(source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.FetchURL(source)
	}
	return os.ReadFile(source)
}

// Decode decodes data, applying EXIF orientation. The returned format is the
// canonical name of the source format.
func (p *Processor) Decode(data []byte) (image.Image, string, error) {
	_, format, cfgErr := image.DecodeConfig(bytes.NewReader(data))

	if cfgErr == nil {
		img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err == nil {
			return img, canonical(format), nil
		}
	}

	// Fallback: explicit WebP decode
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, "webp", nil
	}

	return nil, "", ErrUnknownFormat
}

// LoadImage decodes an image file
func (p *Processor) LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, _, err := p.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// Extract returns the part of img inside rect as an origin-based raster
func (p *Processor) Extract(img image.Image, rect image.Rectangle) *image.NRGBA {
	return imaging.Crop(img, rect)
}

// Resize scales img. With both dimensions the result is stretched to
// exactly width x height; with one, the other follows the aspect ratio.
// Downscales are sharpened, more strongly for small targets.
func (p *Processor) Resize(img image.Image, width, height int) image.Image {
	if width <= 0 && height <= 0 {
		return img
	}

	src := img.Bounds()
	resized := imaging.Resize(img, width, height, imaging.Lanczos)

	dst := resized.Bounds()
	if dst.Dx()*dst.Dy() >= src.Dx()*src.Dy() {
		return resized
	}

	sigma := p.config.Sharpen
	if max(dst.Dx(), dst.Dy()) < p.config.SmallTargetThreshold {
		sigma = p.config.SmallSharpen
	}
	if sigma <= 0 {
		return resized
	}
	return imaging.Sharpen(resized, sigma)
}

// TargetSize returns the dimensions Resize produces for src. A zero
// dimension follows the aspect ratio, rounded and at least 1.
func TargetSize(src image.Rectangle, width, height int) (int, int) {
	sw, sh := src.Dx(), src.Dy()
	if sw <= 0 || sh <= 0 {
		return 0, 0
	}
	switch {
	case width <= 0 && height <= 0:
		return sw, sh
	case width <= 0:
		width = int(math.Max(1, math.Floor(float64(height)*float64(sw)/float64(sh)+0.5)))
	case height <= 0:
		height = int(math.Max(1, math.Floor(float64(width)*float64(sh)/float64(sw)+0.5)))
	}
	return width, height
}

// ToRaw copies img into a 4-channel NRGBA buffer
func (p *Processor) ToRaw(img image.Image) RawImage {
	nrgba := imaging.Clone(img)
	return RawImage{
		Data:     nrgba.Pix,
		Width:    nrgba.Rect.Dx(),
		Height:   nrgba.Rect.Dy(),
		Channels: 4,
	}
}

// FromRaw rebuilds an image from a raw buffer. The buffer is adopted, not copied.
func (p *Processor) FromRaw(raw RawImage) (*image.NRGBA, error) {
	if raw.Channels != 4 {
		return nil, fmt.Errorf("unsupported channel count %d", raw.Channels)
	}
	if raw.Width <= 0 || raw.Height <= 0 || len(raw.Data) != raw.Width*raw.Height*4 {
		return nil, fmt.Errorf("raw buffer of %d bytes does not match %dx%d", len(raw.Data), raw.Width, raw.Height)
	}
	return &image.NRGBA{
		Pix:    raw.Data,
		Stride: raw.Width * 4,
		Rect:   image.Rect(0, 0, raw.Width, raw.Height),
	}, nil
}

// Encode writes img in the given format. Quality applies to JPEG and WebP;
// WebP at quality 100 is encoded losslessly.
func (p *Processor) Encode(img image.Image, format string, quality int) ([]byte, error) {
	name, ok := types.NormalizeFormat(format)
	if !ok {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var buf bytes.Buffer
	switch name {
	case "webp":
		opts := &webp.Options{Lossless: quality >= 100, Quality: float32(quality)}
		if err := webp.Encode(&buf, img, opts); err != nil {
			return nil, err
		}
	default:
		f, err := imaging.FormatFromExtension(name)
		if err != nil {
			return nil, err
		}
		if err := imaging.Encode(&buf, img, f, imaging.JPEGQuality(quality)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// SaveImage encodes img and writes it to path
func (p *Processor) SaveImage(img image.Image, path, format string, quality int) error {
	data, err := p.Encode(img, format, quality)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// PrepareImageForModel converts an image to base64 for sending to vision models
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, error) {
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", err
		}
	default: // jpg
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// CreateSelectionOverlay draws the bounding box of every region in spec on a
// copy of img, for checking a selection before applying it
func (p *Processor) CreateSelectionOverlay(img image.Image, spec types.CropSpec) image.Image {
	nrgba := imaging.Clone(img)
	if spec == nil {
		return nrgba
	}
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	gold := color.NRGBA{255, 204, 0, 255}
	blue := color.NRGBA{0, 170, 255, 255}
	stroke := int(math.Max(2, 0.004*float64(min(w, h))))

	for _, r := range regionBounds(spec) {
		drawBox(nrgba, r, gold, stroke)
	}
	drawBox(nrgba, spec.Bounds(), blue, 1)

	return nrgba
}

// regionBounds lists the bounding box of each individual region
func regionBounds(spec types.CropSpec) []image.Rectangle {
	var out []image.Rectangle
	switch s := spec.(type) {
	case types.RectShape:
		for _, r := range s.Regions {
			out = append(out, r.Bounds())
		}
	case types.CircleShape:
		for _, c := range s.Regions {
			out = append(out, c.Bounds())
		}
	case types.PolygonShape:
		for _, poly := range s.Regions {
			out = append(out, poly.Bounds())
		}
	case types.MultiShape:
		for _, c := range s.Crops {
			out = append(out, regionBounds(c)...)
		}
	}
	return out
}

func canonical(format string) string {
	if f, ok := types.NormalizeFormat(format); ok {
		return f
	}
	return format
}

func drawBox(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	x0, x1 = max(x0, 0), min(x1, img.Bounds().Dx())
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	y0, y1 = max(y0, 0), min(y1, img.Bounds().Dy())
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
