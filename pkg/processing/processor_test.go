package processing

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/menta2k/cropmask/pkg/types"
)

// createTestImage creates a gradient test image
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 255 / width), uint8(y * 255 / height), 128, 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	p := NewProcessor()
	data := encodePNG(t, createTestImage(64, 32))

	img, format, err := p.Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if format != "png" {
		t.Errorf("Expected png, got %q", format)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 32 {
		t.Errorf("Expected 64x32, got %v", b)
	}

	if _, _, err := p.Decode([]byte("definitely not an image")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Expected ErrUnknownFormat, got %v", err)
	}
}

func TestEncode_Formats(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(40, 30)

	for _, format := range []string{"png", "jpeg", "jpg", "webp", "gif", "bmp", "tiff"} {
		t.Run(format, func(t *testing.T) {
			data, err := p.Encode(img, format, 80)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			back, got, err := p.Decode(data)
			if err != nil {
				t.Fatalf("Decode of encoded %s failed: %v", format, err)
			}
			want, _ := types.NormalizeFormat(format)
			if got != want {
				t.Errorf("Expected format %s, got %s", want, got)
			}
			if b := back.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
				t.Errorf("Expected 40x30, got %v", b)
			}
		})
	}

	if _, err := p.Encode(img, "psd", 80); err == nil {
		t.Error("Expected an error for an unsupported format")
	}
}

func TestResize(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(400, 200)

	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{"exact stretch", 100, 100, 100, 100},
		{"width only", 200, 0, 200, 100},
		{"height only", 0, 50, 100, 50},
		{"upscale", 800, 0, 800, 400},
		{"small target", 40, 0, 40, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := p.Resize(img, tt.width, tt.height)
			if b := out.Bounds(); b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("Expected %dx%d, got %dx%d", tt.wantW, tt.wantH, b.Dx(), b.Dy())
			}
			if w, h := TargetSize(img.Bounds(), tt.width, tt.height); w != tt.wantW || h != tt.wantH {
				t.Errorf("TargetSize = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}

	if out := p.Resize(img, 0, 0); out != image.Image(img) {
		t.Error("Resize without dimensions should return the input")
	}
}

func TestRawRoundTrip(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(16, 8)

	raw := p.ToRaw(img)
	if raw.Width != 16 || raw.Height != 8 || raw.Channels != 4 || len(raw.Data) != 16*8*4 {
		t.Fatalf("Unexpected raw geometry: %dx%dx%d (%d bytes)", raw.Width, raw.Height, raw.Channels, len(raw.Data))
	}

	back, err := p.FromRaw(raw)
	if err != nil {
		t.Fatalf("FromRaw failed: %v", err)
	}
	if !bytes.Equal(back.Pix, img.Pix) {
		t.Error("Pixels changed in raw round trip")
	}

	if _, err := p.FromRaw(RawImage{Data: raw.Data, Width: 17, Height: 8, Channels: 4}); err == nil {
		t.Error("Expected an error for mismatched geometry")
	}
	if _, err := p.FromRaw(RawImage{Data: raw.Data, Width: 16, Height: 8, Channels: 3}); err == nil {
		t.Error("Expected an error for 3 channels")
	}
}

func TestExtract(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(100, 100)

	out := p.Extract(img, image.Rect(10, 20, 50, 30))
	if b := out.Bounds(); b != image.Rect(0, 0, 40, 10) {
		t.Errorf("Expected origin-based 40x10 raster, got %v", b)
	}
	if out.NRGBAAt(0, 0) != img.NRGBAAt(10, 20) {
		t.Error("Extracted pixel does not match source")
	}
}

func TestCreateSelectionOverlay(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(100, 100)
	spec := types.RectShape{Regions: []types.Rect{{Left: 10, Top: 10, Width: 50, Height: 50}}}

	out := p.CreateSelectionOverlay(img, spec).(*image.NRGBA)
	if got := out.NRGBAAt(30, 10); got != (color.NRGBA{0, 170, 255, 255}) && got != (color.NRGBA{255, 204, 0, 255}) {
		t.Errorf("Expected an outline pixel at 30,10, got %v", got)
	}
	if out.NRGBAAt(30, 30) != img.NRGBAAt(30, 30) {
		t.Error("Interior pixel should be untouched")
	}
}
