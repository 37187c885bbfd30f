// Package contour turns pixel sets into simplified outline polygons.
package contour

import (
	"image"

	"github.com/menta2k/cropmask/pkg/region"
	"github.com/menta2k/cropmask/pkg/types"
)

// Headings in clockwise order with y pointing down: E, S, W, N
const (
	east = iota
	south
	west
	north
)

var heading = [4]image.Point{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}

// Trace walks the outer boundary of set and returns its corners in
// clockwise order. Vertices lie on the pixel grid lines, so the polygon
// encloses every pixel of the set: a square of pixels (10,10)-(49,49)
// traces to (10,10) (50,10) (50,50) (10,50).
//
// The walk starts at the top-left corner of the pixel with the smallest x,
// ties broken by the smallest y, and keeps the set on its right. At each
// corner it turns left if the pixel ahead-left is in the set, goes straight
// if the pixel ahead-right is, and turns right otherwise, so diagonal
// neighbours are joined as in 8-connected Moore tracing. Holes are not
// traced.
func Trace(set region.PixelSet) []types.Point {
	if set.Len() == 0 {
		return nil
	}

	start := set.Points[0]
	for _, p := range set.Points[1:] {
		if p.X < start.X || (p.X == start.X && p.Y < start.Y) {
			start = p
		}
	}

	// Nothing lies left of or above the start pixel, so its top-left
	// corner is convex: the walk arrives heading north and leaves east.
	pts := make([]types.Point, 0, 64)
	pts = append(pts, types.PointFrom(start))
	cur, dir := start.Add(heading[east]), east
	maxSteps := 4*set.Len() + 8

	for step := 0; step < maxSteps; step++ {
		next := turn(set, cur, dir)
		if cur == start && next == east {
			break
		}
		if next != dir {
			pts = append(pts, types.PointFrom(cur))
		}
		dir = next
		cur = cur.Add(heading[dir])
	}
	return pts
}

// turn picks the heading that leaves vertex v, given the arriving heading
func turn(set region.PixelSet, v image.Point, dir int) int {
	left, right := ahead(v, dir)
	switch {
	case set.Contains(left):
		return (dir + 3) % 4
	case set.Contains(right):
		return dir
	}
	return (dir + 1) % 4
}

// ahead returns the two pixels touching vertex v in front of heading dir.
// Pixel (x,y) covers the square from vertex (x,y) to (x+1,y+1).
func ahead(v image.Point, dir int) (left, right image.Point) {
	nw := v.Add(image.Pt(-1, -1))
	ne := v.Add(image.Pt(0, -1))
	sw := v.Add(image.Pt(-1, 0))
	se := v
	switch dir {
	case east:
		return ne, se
	case south:
		return se, sw
	case west:
		return sw, nw
	}
	return nw, ne
}

// Outline traces set and simplifies the result into a closed polygon
func Outline(set region.PixelSet, epsilon float64) types.Polygon {
	return types.Polygon(SimplifyClosed(Trace(set), epsilon))
}
