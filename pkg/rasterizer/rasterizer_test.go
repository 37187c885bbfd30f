package rasterizer

import (
	"errors"
	"testing"
)

func TestRender_Rect(t *testing.T) {
	img, err := Render(Document{
		Width:      40,
		Height:     30,
		Background: "#000000",
		Shapes:     []Shape{{Type: ShapeRect, Fill: "#ffffff", X: 10, Y: 5, W: 20, H: 10}},
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 30 {
		t.Fatalf("Expected 40x30 raster, got %v", b)
	}

	tests := []struct {
		x, y int
		want uint8
	}{
		{15, 10, 255},
		{10, 5, 255},
		{29, 14, 255},
		{5, 5, 0},
		{30, 10, 0},
		{15, 15, 0},
	}
	for _, tt := range tests {
		if got := img.RGBAAt(tt.x, tt.y).R; got != tt.want {
			t.Errorf("pixel %d,%d: expected %d, got %d", tt.x, tt.y, tt.want, got)
		}
	}
}

func TestRender_CircleAndPolygon(t *testing.T) {
	img, err := Render(Document{
		Width:      100,
		Height:     100,
		Background: "#ffffff",
		Shapes: []Shape{
			{Type: ShapeCircle, Fill: "#000000", CX: 25, CY: 25, R: 10},
			{Type: ShapePolygon, Fill: "#000000", Points: []Vertex{{60, 60}, {90, 60}, {75, 90}}},
		},
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if img.RGBAAt(25, 25).R != 0 {
		t.Error("Circle center should be filled")
	}
	if img.RGBAAt(25, 40).R != 255 {
		t.Error("Outside the circle should keep the background")
	}
	if img.RGBAAt(75, 70).R != 0 {
		t.Error("Triangle interior should be filled")
	}
	if img.RGBAAt(62, 85).R != 255 {
		t.Error("Outside the triangle should keep the background")
	}
}

func TestRender_SkipsDegenerateShapes(t *testing.T) {
	img, err := Render(Document{
		Width:      10,
		Height:     10,
		Background: "#000000",
		Shapes: []Shape{
			{Type: ShapeRect, Fill: "#ffffff", X: 2, Y: 2, W: 0, H: 5},
			{Type: ShapePolygon, Fill: "#ffffff", Points: []Vertex{{0, 0}, {9, 9}}},
			{Type: "hexagon", Fill: "#ffffff"},
		},
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			t.Fatalf("Expected a blank canvas, found %d at offset %d", img.Pix[i], i)
		}
	}
}

func TestRender_Errors(t *testing.T) {
	if _, err := Render(Document{Width: 0, Height: 10}); !errors.Is(err, ErrEmptyCanvas) {
		t.Errorf("Expected ErrEmptyCanvas, got %v", err)
	}
	_, err := Render(Document{
		Width:  10,
		Height: 10,
		Shapes: []Shape{{Type: ShapeRect, Fill: "white", W: 1, H: 1}},
	})
	if err == nil {
		t.Error("Expected an error for a non-hex fill")
	}
}
