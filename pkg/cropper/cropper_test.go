package cropper

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/menta2k/cropmask/pkg/region"
	"github.com/menta2k/cropmask/pkg/types"
)

// createTestImage paints squares of fg on a solid bg
func createTestImage(width, height int, bg, fg color.Color, squares ...image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)
	for _, sq := range squares {
		draw.Draw(img, sq, &image.Uniform{fg}, image.Point{}, draw.Src)
	}
	return img
}

var (
	red   = color.NRGBA{220, 20, 20, 255}
	blue  = color.NRGBA{20, 20, 220, 255}
	green = color.NRGBA{20, 200, 20, 255}
	white = color.NRGBA{255, 255, 255, 255}
)

func TestRectTool(t *testing.T) {
	tool := NewRectTool()
	if tool.State() != Idle {
		t.Errorf("Expected idle, got %s", tool.State())
	}

	tool.Click(image.Pt(10, 10), false)
	if tool.State() != Collecting {
		t.Errorf("Expected collecting after first click, got %s", tool.State())
	}
	tool.Click(image.Pt(50, 40), false)
	if tool.State() != Ready || !tool.CanApply() {
		t.Errorf("Expected ready after second click, got %s", tool.State())
	}

	want := types.Rect{Left: 10, Top: 10, Width: 40, Height: 30}
	if got := tool.Regions(); len(got) != 1 || got[0] != want {
		t.Errorf("Expected %v, got %v", want, got)
	}

	shape, ok := tool.Apply()
	if !ok || shape.Kind() != types.KindRect {
		t.Fatalf("Apply returned %v, %v", shape, ok)
	}
	if tool.State() != Applied {
		t.Errorf("Expected applied, got %s", tool.State())
	}

	tool.Reset()
	if tool.State() != Idle || tool.CanApply() {
		t.Error("Reset should return the tool to idle")
	}
}

func TestRectTool_UnionAndReplace(t *testing.T) {
	tool := NewRectTool()
	tool.Click(image.Pt(0, 0), false)
	tool.Click(image.Pt(10, 10), false)

	tool.Click(image.Pt(20, 20), true)
	tool.Click(image.Pt(30, 30), false)
	if n := len(tool.Regions()); n != 2 {
		t.Fatalf("Shift-click should add a shape, got %d", n)
	}

	tool.Click(image.Pt(40, 40), false)
	tool.Click(image.Pt(60, 60), false)
	regions := tool.Regions()
	if len(regions) != 1 || regions[0].Left != 40 {
		t.Errorf("Plain click should replace all shapes, got %v", regions)
	}
}

func TestRectTool_DegenerateDiscarded(t *testing.T) {
	tool := NewRectTool()
	tool.Click(image.Pt(0, 0), false)
	tool.Click(image.Pt(10, 10), false)

	tool.Click(image.Pt(5, 5), false)
	tool.Click(image.Pt(5, 20), false)
	if n := len(tool.Regions()); n != 1 {
		t.Errorf("Zero-width rectangle must not replace the selection, got %d regions", n)
	}
}

func TestRectTool_UndoLast(t *testing.T) {
	tool := NewRectTool()
	if tool.UndoLast() {
		t.Error("UndoLast on empty tool should report false")
	}
	tool.Click(image.Pt(0, 0), false)
	tool.Click(image.Pt(10, 10), false)
	tool.Click(image.Pt(20, 20), true)
	tool.Click(image.Pt(30, 30), false)

	if !tool.UndoLast() || len(tool.Regions()) != 1 {
		t.Errorf("Expected one region after undo, got %v", tool.Regions())
	}
}

func TestCircleTool(t *testing.T) {
	tool := NewCircleTool()
	tool.Click(image.Pt(50, 50), false)
	tool.Click(image.Pt(53, 54), false)

	regions := tool.Regions()
	if len(regions) != 1 || regions[0] != (types.Circle{CX: 50, CY: 50, R: 5}) {
		t.Errorf("Expected circle r=5 at 50,50, got %v", regions)
	}

	tool.Click(image.Pt(10, 10), false)
	tool.Click(image.Pt(10, 10), false)
	if n := len(tool.Regions()); n != 1 {
		t.Errorf("Zero-radius circle should be discarded, got %d regions", n)
	}
}

func TestPolygonTool(t *testing.T) {
	tool := NewPolygonTool()
	tool.AddVertex(image.Pt(0, 0))
	tool.AddVertex(image.Pt(10, 0))
	if tool.Finish() {
		t.Error("Finish with two vertices should fail")
	}
	if tool.CanApply() {
		t.Error("Two vertices are not apply-eligible")
	}

	tool.AddVertex(image.Pt(5, 8))
	if !tool.Finish() {
		t.Fatal("Finish with three vertices should succeed")
	}
	if tool.State() != Ready {
		t.Errorf("Expected ready, got %s", tool.State())
	}

	// A second, unfinished polygon is still included at apply time
	tool.AddVertex(image.Pt(20, 20))
	tool.AddVertex(image.Pt(30, 20))
	tool.AddVertex(image.Pt(25, 30))

	shape, ok := tool.Apply()
	if !ok {
		t.Fatal("Apply failed")
	}
	poly := shape.(types.PolygonShape)
	if len(poly.Regions) != 2 {
		t.Errorf("Expected 2 polygons, got %d", len(poly.Regions))
	}

	tool.UndoLast()
	shape, _ = tool.Apply()
	if n := len(shape.(types.PolygonShape).Regions); n != 1 {
		t.Errorf("Expected 1 polygon after undoing a vertex, got %d", n)
	}
}

func TestWandTool(t *testing.T) {
	img := createTestImage(200, 200, white, green,
		image.Rect(20, 20, 40, 40),
		image.Rect(120, 140, 140, 160),
	)
	cfg := DefaultConfig()
	cfg.WandTolerance = 5
	tool := NewWandTool(region.New(), img, cfg)

	if err := tool.Click(image.Pt(25, 25), false); err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	regions := tool.Regions()
	if len(regions) != 2 {
		t.Fatalf("Expected 2 outlines, got %d", len(regions))
	}
	for _, poly := range regions {
		if len(poly) != 4 {
			t.Errorf("Expected square outline with 4 points, got %v", poly)
		}
	}

	shape, ok := tool.Apply()
	if !ok || shape.Kind() != types.KindMagic {
		t.Errorf("Apply returned %v, %v", shape, ok)
	}
}

func TestWandTool_FailureKeepsSelection(t *testing.T) {
	img := createTestImage(100, 100, white, green, image.Rect(10, 10, 30, 30))
	tool := NewWandTool(region.New(), img, DefaultConfig())

	if err := tool.Click(image.Pt(15, 15), false); err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	before := tool.Regions()

	if err := tool.Click(image.Pt(500, 500), false); err == nil {
		t.Fatal("Expected an error for a seed outside the image")
	}
	if after := tool.Regions(); len(after) != len(before) {
		t.Errorf("Failed click changed the selection: %v -> %v", before, after)
	}
}

func TestAggregate(t *testing.T) {
	rect := types.RectShape{Regions: []types.Rect{{Left: 0, Top: 0, Width: 5, Height: 5}}}
	circle := types.CircleShape{Regions: []types.Circle{{CX: 10, CY: 10, R: 3}}}

	if _, ok := Aggregate(nil); ok {
		t.Error("Nothing active should not apply")
	}
	if _, ok := Aggregate([]types.SingleShape{types.RectShape{}}); ok {
		t.Error("Empty shapes should not apply")
	}

	spec, ok := Aggregate([]types.SingleShape{rect})
	if !ok || spec.Kind() != types.KindRect {
		t.Errorf("Single shape should pass through, got %v", spec)
	}

	spec, ok = Aggregate([]types.SingleShape{rect, types.CircleShape{}, circle})
	if !ok || spec.Kind() != types.KindMulti {
		t.Fatalf("Two shapes should aggregate to multi, got %v", spec)
	}
	if n := len(spec.(types.MultiShape).Crops); n != 2 {
		t.Errorf("Expected 2 crops, got %d", n)
	}
}
