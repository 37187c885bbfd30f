package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/menta2k/cropmask/pkg/processing"
	"github.com/menta2k/cropmask/pkg/types"
)

// encodePNG renders a solid opaque image with a red square in the middle
func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBA{20, 20, 220, 255}
			if x >= width/4 && x < 3*width/4 && y >= height/4 && y < 3*height/4 {
				c = color.NRGBA{220, 20, 20, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, _, err := processing.NewProcessor().Decode(data)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return img
}

func TestConvert_Passthrough(t *testing.T) {
	src := encodePNG(t, 40, 30)
	p := New(nil, nil, nil)

	res, err := p.Convert(context.Background(), src, types.ConversionOptions{
		ToFormat:       "png",
		Quality:        100,
		OriginalFormat: "png",
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !res.Passthrough {
		t.Error("Expected passthrough")
	}
	if !bytes.Equal(res.Data, src) {
		t.Error("Passthrough output differs from input")
	}
	if res.Width != 40 || res.Height != 30 {
		t.Errorf("Expected 40x30, got %dx%d", res.Width, res.Height)
	}
	if res.ContentType != "image/png" || res.Filename != "image.png" {
		t.Errorf("Unexpected metadata %q %q", res.ContentType, res.Filename)
	}
}

func TestConvert_SniffedFormatWins(t *testing.T) {
	src := encodePNG(t, 10, 10)

	// The hint claims jpeg but the bytes are png, so no passthrough to jpeg
	res, err := New(nil, nil, nil).Convert(context.Background(), src, types.ConversionOptions{
		ToFormat:       "jpeg",
		Quality:        100,
		OriginalFormat: "jpeg",
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if res.Passthrough {
		t.Error("Expected a real conversion")
	}
	if !bytes.HasPrefix(res.Data, []byte{0xFF, 0xD8}) {
		t.Error("Expected JPEG output")
	}
}

func TestConvert_StageErrors(t *testing.T) {
	p := New(nil, nil, nil)
	src := encodePNG(t, 10, 10)

	tests := []struct {
		name  string
		src   []byte
		opts  types.ConversionOptions
		stage Stage
	}{
		{"bad format", src, types.ConversionOptions{ToFormat: "psd", Quality: 90}, StageOptions},
		{"bad quality", src, types.ConversionOptions{ToFormat: "png", Quality: 0}, StageOptions},
		{"negative size", src, types.ConversionOptions{ToFormat: "png", Quality: 90, Width: -1}, StageOptions},
		{"garbage input", []byte("definitely not an image"), types.ConversionOptions{ToFormat: "png", Quality: 90}, StageDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Convert(context.Background(), tt.src, tt.opts)
			var stageErr *StageError
			if !errors.As(err, &stageErr) {
				t.Fatalf("Expected *StageError, got %v", err)
			}
			if stageErr.Stage != tt.stage {
				t.Errorf("Expected stage %s, got %s", tt.stage, stageErr.Stage)
			}
		})
	}
}

func TestConvert_OptionsErrorWraps(t *testing.T) {
	_, err := New(nil, nil, nil).Convert(context.Background(), nil, types.ConversionOptions{ToFormat: "png"})
	if !errors.Is(err, types.ErrInvalidOptions) {
		t.Errorf("Expected ErrInvalidOptions in chain, got %v", err)
	}
}

func TestConvert_RejectsOversizeTarget(t *testing.T) {
	p := New(nil, nil, nil)
	src := encodePNG(t, 40, 30)

	tests := []struct {
		name          string
		width, height int
	}{
		{"huge edges", 1 << 40, 1 << 40},
		{"edge over limit", types.MaxDimension + 1, 10},
		{"area over limit", 10000, 10000},
		{"derived height over limit", 16000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Convert(context.Background(), src, types.ConversionOptions{
				ToFormat: "png",
				Quality:  90,
				Width:    tt.width,
				Height:   tt.height,
			})
			var stageErr *StageError
			if !errors.As(err, &stageErr) || stageErr.Stage != StageOptions {
				t.Fatalf("Expected an options stage error, got %v", err)
			}
			if !errors.Is(err, types.ErrInvalidOptions) {
				t.Errorf("Expected ErrInvalidOptions in chain, got %v", err)
			}
		})
	}
}

func TestConvert_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil, nil, nil).Convert(ctx, encodePNG(t, 10, 10), types.ConversionOptions{ToFormat: "jpeg", Quality: 80})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestConvert_CropToRect(t *testing.T) {
	src := encodePNG(t, 100, 100)
	opts := types.ConversionOptions{
		ToFormat: "png",
		Quality:  90,
		Crop:     types.RectShape{Regions: []types.Rect{{Left: 10, Top: 20, Width: 40, Height: 10}}},
	}

	res, err := New(nil, nil, nil).ConvertNamed(context.Background(), "photo.jpg", src, opts)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !res.Masked {
		t.Error("Expected masked output")
	}
	if res.Width != 40 || res.Height != 10 {
		t.Errorf("Expected 40x10, got %dx%d", res.Width, res.Height)
	}
	if res.Filename != "photo.png" {
		t.Errorf("Expected photo.png, got %s", res.Filename)
	}
	out := decode(t, res.Data)
	if b := out.Bounds(); b.Dx() != 40 || b.Dy() != 10 {
		t.Errorf("Decoded output is %v", b)
	}
}

func TestConvert_InvertedCircle(t *testing.T) {
	src := encodePNG(t, 60, 60)
	opts := types.ConversionOptions{
		ToFormat:        "png",
		Quality:         100,
		Crop:            types.CircleShape{Regions: []types.Circle{{CX: 30, CY: 30, R: 10}}},
		InvertSelection: true,
	}

	res, err := New(nil, nil, nil).Convert(context.Background(), src, opts)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	out := decode(t, res.Data)
	if b := out.Bounds(); b.Dx() != 60 || b.Dy() != 60 {
		t.Fatalf("Inverted output must keep the full canvas, got %v", b)
	}
	if _, _, _, a := out.At(30, 30).RGBA(); a != 0 {
		t.Errorf("Circle center should be transparent, alpha=%d", a)
	}
	if _, _, _, a := out.At(2, 2).RGBA(); a != 0xffff {
		t.Errorf("Corner should be opaque, alpha=%d", a)
	}
}

func TestConvert_DegenerateCropIsIgnored(t *testing.T) {
	src := encodePNG(t, 20, 20)
	opts := types.ConversionOptions{
		ToFormat: "png",
		Quality:  90,
		Crop:     types.RectShape{Regions: []types.Rect{{Left: 5, Top: 5, Width: 0, Height: 10}}},
	}

	res, err := New(nil, nil, nil).Convert(context.Background(), src, opts)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if res.Masked || res.Width != 20 || res.Height != 20 {
		t.Errorf("Expected unmasked 20x20 output, got masked=%v %dx%d", res.Masked, res.Width, res.Height)
	}
}

func TestConvert_Resize(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{"both", 50, 20, 50, 20},
		{"width only", 40, 0, 40, 20},
		{"height only", 0, 10, 20, 10},
	}

	src := encodePNG(t, 80, 40)
	p := New(nil, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.Convert(context.Background(), src, types.ConversionOptions{
				ToFormat: "png",
				Quality:  90,
				Width:    tt.width,
				Height:   tt.height,
			})
			if err != nil {
				t.Fatalf("Convert failed: %v", err)
			}
			if res.Width != tt.wantW || res.Height != tt.wantH {
				t.Errorf("Expected %dx%d, got %dx%d", tt.wantW, tt.wantH, res.Width, res.Height)
			}
		})
	}
}

func TestConvert_WebPOutput(t *testing.T) {
	res, err := New(nil, nil, nil).Convert(context.Background(), encodePNG(t, 16, 16), types.ConversionOptions{
		ToFormat: "webp",
		Quality:  75,
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !bytes.HasPrefix(res.Data, []byte("RIFF")) || res.ContentType != "image/webp" {
		t.Errorf("Expected WebP output, got content type %s", res.ContentType)
	}
	if b := decode(t, res.Data).Bounds(); b.Dx() != 16 || b.Dy() != 16 {
		t.Errorf("Unexpected decoded size %v", b)
	}
}
