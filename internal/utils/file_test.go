package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSuggestedFilename(t *testing.T) {
	tests := []struct {
		source, format, want string
	}{
		{"holiday.png", "jpeg", "holiday.jpg"},
		{"/tmp/uploads/cat photo.JPG", "webp", "cat photo.webp"},
		{"", "png", "image.png"},
		{"...", "gif", "image.gif"},
		{"a:b.tiff", "tiff", "a_b.tiff"},
	}
	for _, tt := range tests {
		if got := SuggestedFilename(tt.source, tt.format); got != tt.want {
			t.Errorf("SuggestedFilename(%q, %q) = %q, want %q", tt.source, tt.format, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"png":  "image/png",
		"jpeg": "image/jpeg",
		"webp": "image/webp",
		"psd":  "application/octet-stream",
	}
	for format, want := range tests {
		if got := ContentType(format); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", format, got, want)
		}
	}
}

func TestGenerateOutputFilename(t *testing.T) {
	got := GenerateOutputFilename("/in/photo.png", "/out", "", "_masked", "jpeg")
	if want := filepath.Join("/out", "photo_masked.jpg"); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
	got = GenerateOutputFilename("/in/photo.webp", "/out", "crop_", "", "")
	if want := filepath.Join("/out", "crop_photo.webp"); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.png", "b.JPG", "c.webp", "d.tif"} {
		if !IsImageFile(name) {
			t.Errorf("%s should be an image file", name)
		}
	}
	if IsImageFile("notes.txt") {
		t.Error("notes.txt is not an image file")
	}
}

func TestEnsureDirAndFileExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	file := filepath.Join(dir, "x.png")
	if FileExists(file) {
		t.Error("File should not exist yet")
	}
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(file) || FileExists(dir) {
		t.Error("FileExists disagrees with the filesystem")
	}
}

func TestFormatFileSize(t *testing.T) {
	if got := FormatFileSize(512); got != "512 B" {
		t.Errorf("Expected 512 B, got %s", got)
	}
	if got := FormatFileSize(1536); got != "1.5 KB" {
		t.Errorf("Expected 1.5 KB, got %s", got)
	}
}
