package cropmask

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/cropmask/internal/config"
	"github.com/menta2k/cropmask/pkg/types"
)

// createTestImage paints a red square on a blue background
func createTestImage(width, height int, square image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBA{20, 20, 220, 255}
			if image.Pt(x, y).In(square) {
				c = color.NRGBA{220, 20, 20, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "square.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNew(t *testing.T) {
	tk := New()
	if tk == nil {
		t.Fatal("New() returned nil")
	}
	if tk.HasSegmenter() {
		t.Error("Default toolkit should have no segmenter")
	}
	if tk.Server() == nil {
		t.Error("Server() returned nil")
	}
}

func TestNewWithConfig_Invalid(t *testing.T) {
	cfg := config.Default()
	cfg.Conversion.DefaultQuality = 0
	if _, err := NewWithConfig(cfg, nil); err == nil {
		t.Error("Expected error for invalid configuration")
	}
}

func TestNewSegmenter(t *testing.T) {
	tests := []struct {
		backend string
		url     string
		wantNil bool
		wantErr bool
	}{
		{"none", "", true, false},
		{"", "", true, false},
		{"ollama", "http://localhost:11434", false, false},
		{"ollama", "localhost", false, true},
		{"llamacpp", "", false, false},
		{"onnx", "", false, true},
	}
	for _, tt := range tests {
		seg, err := NewSegmenter(config.SegmentationConfig{Backend: tt.backend, URL: tt.url, Model: "m"}, nil)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: unexpected error %v", tt.backend, err)
			continue
		}
		if !tt.wantErr && (seg == nil) != tt.wantNil {
			t.Errorf("%s: segmenter nil=%v, want %v", tt.backend, seg == nil, tt.wantNil)
		}
	}
}

func TestSessionToConversion(t *testing.T) {
	tk := New()
	path := writePNG(t, createTestImage(100, 100, image.Rect(10, 10, 50, 50)))

	img, src, err := tk.LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}

	session := tk.NewSession()
	session.LoadImage(img)
	if _, err := session.SetMode(context.Background(), types.KindSAM); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	if err := session.Click(image.Pt(30, 30), false); err != nil {
		t.Fatalf("Click failed: %v", err)
	}

	spec, ok := session.Apply()
	if !ok {
		t.Fatal("Expected a selection")
	}
	if spec.Kind() != types.KindSAM {
		t.Errorf("Expected sam selection, got %s", spec.Kind())
	}

	res, err := tk.Convert(context.Background(), src, types.ConversionOptions{
		ToFormat: "png",
		Quality:  90,
		Crop:     spec,
	})
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !res.Masked {
		t.Error("Expected masked output")
	}
	if res.Width != 40 || res.Height != 40 {
		t.Errorf("Expected 40x40, got %dx%d", res.Width, res.Height)
	}
}

func TestConvertFile_DefaultOutput(t *testing.T) {
	cfg := config.Default()
	cfg.Output.OutputDir = filepath.Join(t.TempDir(), "out")
	tk, err := NewWithConfig(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	path := writePNG(t, createTestImage(60, 40, image.Rect(0, 0, 0, 0)))
	out, res, err := tk.ConvertFile(context.Background(), path, "", types.ConversionOptions{
		ToFormat: "jpeg",
		Quality:  80,
		Width:    30,
	})
	if err != nil {
		t.Fatalf("ConvertFile failed: %v", err)
	}
	if want := filepath.Join(cfg.Output.OutputDir, "square_masked.jpg"); out != want {
		t.Errorf("Expected %s, got %s", want, out)
	}
	if res.Width != 30 || res.Height != 20 {
		t.Errorf("Expected 30x20, got %dx%d", res.Width, res.Height)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("Output not written: %v", err)
	}
}

func TestOverlay(t *testing.T) {
	tk := New()
	img := createTestImage(50, 50, image.Rect(0, 0, 0, 0))
	spec := types.RectShape{Regions: []types.Rect{{Left: 5, Top: 5, Width: 20, Height: 20}}}

	out := tk.Overlay(img, spec)
	if out.Bounds() != img.Bounds() {
		t.Errorf("Overlay changed bounds to %v", out.Bounds())
	}
	if out.At(5, 5) == img.At(5, 5) {
		t.Error("Expected the box edge to be drawn")
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("GetVersion() = %s, want %s", GetVersion(), Version)
	}
}
