package contour

import (
	"math"

	"github.com/menta2k/cropmask/pkg/types"
)

// Simplify reduces an open point sequence with Douglas-Peucker. The first
// and last points are always kept and the input is never modified.
func Simplify(points []types.Point, epsilon float64) []types.Point {
	n := len(points)
	if n <= 2 {
		return append([]types.Point(nil), points...)
	}

	keep := make([]bool, n)
	keep[0], keep[n-1] = true, true

	type segment struct {
		start, end int
	}
	stack := []segment{{0, n - 1}}

	for len(stack) > 0 {
		seg := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seg.end-seg.start < 2 {
			continue
		}

		farthest, maxDist := -1, 0.0
		for i := seg.start + 1; i < seg.end; i++ {
			d := perpendicularDistance(points[i], points[seg.start], points[seg.end])
			if d > maxDist {
				farthest, maxDist = i, d
			}
		}

		if farthest >= 0 && maxDist > epsilon {
			keep[farthest] = true
			stack = append(stack, segment{seg.start, farthest}, segment{farthest, seg.end})
		}
	}

	out := make([]types.Point, 0, n)
	for i, p := range points {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// SimplifyClosed simplifies a closed outline. The ring is split at the point
// farthest from the first one and each half is simplified on its own, so both
// ends of the split survive. Trailing points within epsilon of the closing
// edge are then dropped. An outline thinner than epsilon would collapse below
// three points; it is returned unsimplified instead.
func SimplifyClosed(points []types.Point, epsilon float64) []types.Point {
	n := len(points)
	if n <= 3 {
		return append([]types.Point(nil), points...)
	}

	far, best := 1, -1.0
	for i := 1; i < n; i++ {
		d := math.Hypot(float64(points[i].X-points[0].X), float64(points[i].Y-points[0].Y))
		if d > best {
			far, best = i, d
		}
	}

	head := Simplify(points[:far+1], epsilon)
	ring := make([]types.Point, 0, n-far+1)
	ring = append(ring, points[far:]...)
	ring = append(ring, points[0])
	tail := Simplify(ring, epsilon)

	out := append(head, tail[1:len(tail)-1]...)
	for len(out) > 3 {
		m := len(out)
		if segmentDistance(out[m-1], out[m-2], out[0]) > epsilon {
			break
		}
		out = out[:m-1]
	}
	if len(out) < 3 {
		return append([]types.Point(nil), points...)
	}
	return out
}

// perpendicularDistance is the distance from p to the line through a and b,
// or to a itself when the chord is degenerate
func perpendicularDistance(p, a, b types.Point) float64 {
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return math.Hypot(float64(p.X-a.X), float64(p.Y-a.Y))
	}
	return math.Abs(dy*float64(p.X-a.X)-dx*float64(p.Y-a.Y)) / length
}

// segmentDistance is the distance from p to the segment a-b
func segmentDistance(p, a, b types.Point) float64 {
	dx, dy := float64(b.X-a.X), float64(b.Y-a.Y)
	px, py := float64(p.X-a.X), float64(p.Y-a.Y)
	lengthSq := dx*dx + dy*dy
	if lengthSq == 0 {
		return math.Hypot(px, py)
	}
	t := math.Max(0, math.Min(1, (px*dx+py*dy)/lengthSq))
	return math.Hypot(px-t*dx, py-t*dy)
}
