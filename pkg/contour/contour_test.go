package contour

import (
	"image"
	"reflect"
	"testing"

	"github.com/menta2k/cropmask/pkg/region"
	"github.com/menta2k/cropmask/pkg/types"
)

// squareSet builds a filled square pixel set
func squareSet(r image.Rectangle) region.PixelSet {
	var pts []image.Point
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			pts = append(pts, image.Pt(x, y))
		}
	}
	return region.NewPixelSet(pts)
}

func TestTrace_Square(t *testing.T) {
	set := squareSet(image.Rect(10, 10, 50, 50))
	pts := Trace(set)

	want := []types.Point{{10, 10}, {50, 10}, {50, 50}, {10, 50}}
	if !reflect.DeepEqual(pts, want) {
		t.Errorf("Expected %v, got %v", want, pts)
	}
}

func TestTrace_Shapes(t *testing.T) {
	tests := []struct {
		name   string
		points []image.Point
		want   []types.Point
	}{
		{
			name:   "single pixel",
			points: []image.Point{{5, 5}},
			want:   []types.Point{{5, 5}, {6, 5}, {6, 6}, {5, 6}},
		},
		{
			name:   "one pixel wide row",
			points: []image.Point{{0, 0}, {1, 0}, {2, 0}},
			want:   []types.Point{{0, 0}, {3, 0}, {3, 1}, {0, 1}},
		},
		{
			name:   "L shape",
			points: []image.Point{{0, 0}, {0, 1}, {1, 1}},
			want:   []types.Point{{0, 0}, {1, 0}, {1, 1}, {2, 1}, {2, 2}, {0, 2}},
		},
		{
			name:   "diagonal neighbours joined",
			points: []image.Point{{0, 0}, {1, 1}},
			want:   []types.Point{{0, 0}, {1, 0}, {1, 1}, {2, 1}, {2, 2}, {1, 2}, {1, 1}, {0, 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Trace(region.NewPixelSet(tt.points))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestTrace_StartTieBreak(t *testing.T) {
	// Column x=3 holds three pixels; the upper one starts the trace
	set := region.NewPixelSet([]image.Point{{3, 7}, {3, 5}, {3, 6}, {4, 5}})
	pts := Trace(set)
	if pts[0] != (types.Point{X: 3, Y: 5}) {
		t.Errorf("Expected start (3,5), got %v", pts[0])
	}
}

func TestTrace_Degenerate(t *testing.T) {
	if pts := Trace(region.PixelSet{}); pts != nil {
		t.Errorf("Expected nil for empty set, got %v", pts)
	}

	line := Trace(squareSet(image.Rect(0, 0, 10, 1)))
	if len(line) > 4*10+8 {
		t.Errorf("Trace exceeded step cap: %d points", len(line))
	}
}

func TestTrace_Pure(t *testing.T) {
	set := squareSet(image.Rect(3, 4, 20, 11))
	a := Trace(set)
	b := Trace(set)
	if !reflect.DeepEqual(a, b) {
		t.Error("Trace is not deterministic")
	}
}

func TestOutline_Square(t *testing.T) {
	poly := Outline(squareSet(image.Rect(10, 10, 50, 50)), 2)
	want := types.Polygon{{10, 10}, {50, 10}, {50, 50}, {10, 50}}
	if !reflect.DeepEqual(poly, want) {
		t.Errorf("Expected %v, got %v", want, poly)
	}
	if b := poly.Bounds(); b != image.Rect(10, 10, 50, 50) {
		t.Errorf("Expected bounds (10,10)-(50,50), got %v", b)
	}
}

func TestOutline_OnePixelWide(t *testing.T) {
	poly := Outline(squareSet(image.Rect(4, 7, 5, 20)), 1)
	if !poly.Valid() {
		t.Fatalf("Expected a valid outline, got %v", poly)
	}
	if b := poly.Bounds(); b != image.Rect(4, 7, 5, 20) {
		t.Errorf("Expected bounds (4,7)-(5,20), got %v", b)
	}
}

func TestSimplify_StraightLine(t *testing.T) {
	var line []types.Point
	for i := 0; i < 25; i++ {
		line = append(line, types.Point{X: i * 2, Y: i})
	}

	for _, eps := range []float64{0.01, 1, 100} {
		out := Simplify(line, eps)
		if len(out) != 2 {
			t.Errorf("epsilon %v: expected 2 points, got %d", eps, len(out))
			continue
		}
		if out[0] != line[0] || out[1] != line[len(line)-1] {
			t.Errorf("epsilon %v: endpoints not kept: %v", eps, out)
		}
	}
}

func TestSimplify_Properties(t *testing.T) {
	tests := []struct {
		name    string
		points  []types.Point
		epsilon float64
	}{
		{"zigzag", []types.Point{{0, 0}, {5, 4}, {10, 0}, {15, 4}, {20, 0}}, 1},
		{"zigzag wide epsilon", []types.Point{{0, 0}, {5, 4}, {10, 0}, {15, 4}, {20, 0}}, 10},
		{"two points", []types.Point{{0, 0}, {9, 9}}, 1},
		{"closed loop", []types.Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]types.Point(nil), tt.points...)
			out := Simplify(tt.points, tt.epsilon)

			if len(out) > len(tt.points) {
				t.Errorf("Output longer than input: %d > %d", len(out), len(tt.points))
			}
			if out[0] != tt.points[0] || out[len(out)-1] != tt.points[len(tt.points)-1] {
				t.Errorf("Endpoints not retained: %v", out)
			}
			if !reflect.DeepEqual(in, tt.points) {
				t.Error("Input was modified")
			}
			if !reflect.DeepEqual(out, Simplify(tt.points, tt.epsilon)) {
				t.Error("Simplify is not deterministic")
			}
		})
	}
}

func TestSimplify_KeepsCorner(t *testing.T) {
	pts := []types.Point{{0, 0}, {5, 0}, {10, 0}, {10, 5}, {10, 10}}
	out := Simplify(pts, 1)
	want := []types.Point{{0, 0}, {10, 0}, {10, 10}}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("Expected %v, got %v", want, out)
	}
}

func TestSimplifyClosed_KeepsTriangle(t *testing.T) {
	tri := []types.Point{{0, 0}, {10, 0}, {5, 8}}
	out := SimplifyClosed(tri, 1)
	if len(out) != 3 {
		t.Errorf("Expected triangle to survive, got %v", out)
	}
}
