package region

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"
)

// AutoTolerance derives a Euclidean RGB tolerance from the color variance in
// a square window around seed, given in img's coordinates. Flat areas get a
// tight tolerance, textured areas a looser one; the result is clamped to
// [AutoMin, AutoMax].
func (d *Detector) AutoTolerance(img image.Image, seed image.Point) float64 {
	seed = seed.Sub(img.Bounds().Min)
	raster := asNRGBA(img)
	bounds := raster.Bounds()
	r := d.smart.WindowRadius
	if r < 1 {
		r = 1
	}

	window := image.Rect(seed.X-r, seed.Y-r, seed.X+r+1, seed.Y+r+1).Intersect(bounds)
	n := window.Dx() * window.Dy()
	if n == 0 {
		return d.smart.AutoMin
	}

	reds := make([]float64, 0, n)
	greens := make([]float64, 0, n)
	blues := make([]float64, 0, n)
	for y := window.Min.Y; y < window.Max.Y; y++ {
		for x := window.Min.X; x < window.Max.X; x++ {
			cr, cg, cb := rgbAt(raster, x, y)
			reds = append(reds, float64(cr))
			greens = append(greens, float64(cg))
			blues = append(blues, float64(cb))
		}
	}

	var variance float64
	if n > 1 {
		variance = stat.Variance(reds, nil) + stat.Variance(greens, nil) + stat.Variance(blues, nil)
	}
	spread := math.Sqrt(variance)

	tolerance := d.smart.AutoMin + 2*spread
	return math.Min(math.Max(tolerance, d.smart.AutoMin), d.smart.AutoMax)
}
