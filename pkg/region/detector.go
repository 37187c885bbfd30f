package region

import (
	"errors"
	"image"
	"sort"

	"github.com/disintegration/imaging"
)

// ErrNoRegion is returned when nothing around the seed matches the color predicate
var ErrNoRegion = errors.New("no region found")

// AutoTolerance asks SmartSelect to derive the tolerance from the seed's neighborhood
const AutoTolerance = -1

// Detector finds connected pixel sets by color similarity
type Detector struct {
	wand  WandConfig
	smart SmartConfig
}

// WandConfig holds configuration for the whole-image magic wand scan
type WandConfig struct {
	MinRegionPixels int
	MaxRegions      int
	MaxRegionPixels int
}

// SmartConfig holds configuration for single-component smart selection
type SmartConfig struct {
	WindowRadius    int
	AutoMin         float64
	AutoMax         float64
	MaxRegionPixels int
}

// DefaultWandConfig returns the magic wand defaults
func DefaultWandConfig() WandConfig {
	return WandConfig{
		MinRegionPixels: 64,
		MaxRegions:      20,
		MaxRegionPixels: 4_000_000,
	}
}

// DefaultSmartConfig returns the smart selection defaults
func DefaultSmartConfig() SmartConfig {
	return SmartConfig{
		WindowRadius:    5,
		AutoMin:         12,
		AutoMax:         60,
		MaxRegionPixels: 4_000_000,
	}
}

// New creates a new Detector with default configuration
func New() *Detector {
	return &Detector{
		wand:  DefaultWandConfig(),
		smart: DefaultSmartConfig(),
	}
}

// NewWithConfig creates a new Detector with custom configuration
func NewWithConfig(wand WandConfig, smart SmartConfig) *Detector {
	return &Detector{wand: wand, smart: smart}
}

// PixelSet is one 4-connected component. It only lives between detection and tracing.
type PixelSet struct {
	Points []image.Point
	Bounds image.Rectangle
	member []bool
}

// NewPixelSet builds a set from points, computing its bounds and membership bitmap
func NewPixelSet(points []image.Point) PixelSet {
	if len(points) == 0 {
		return PixelSet{}
	}
	b := image.Rectangle{Min: points[0], Max: points[0].Add(image.Pt(1, 1))}
	for _, p := range points[1:] {
		b = b.Union(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
	}
	member := make([]bool, b.Dx()*b.Dy())
	for _, p := range points {
		member[(p.Y-b.Min.Y)*b.Dx()+(p.X-b.Min.X)] = true
	}
	return PixelSet{Points: points, Bounds: b, member: member}
}

// Len returns the number of pixels in the set
func (s PixelSet) Len() int {
	return len(s.Points)
}

// Contains reports whether p belongs to the set
func (s PixelSet) Contains(p image.Point) bool {
	if !p.In(s.Bounds) {
		return false
	}
	return s.member[(p.Y-s.Bounds.Min.Y)*s.Bounds.Dx()+(p.X-s.Bounds.Min.X)]
}

// MagicWand scans the whole raster for every 4-connected component whose color
// is within tolerance (sum of absolute channel differences) of the seed's color.
// Components smaller than MinRegionPixels are dropped, the rest are returned
// largest first, at most MaxRegions of them.
func (d *Detector) MagicWand(img image.Image, seed image.Point, tolerance int) ([]PixelSet, error) {
	origin := img.Bounds().Min
	raster := asNRGBA(img)
	bounds := raster.Bounds()
	seed = seed.Sub(origin)
	if !seed.In(bounds) {
		return nil, ErrNoRegion
	}
	tolerance = clampInt(tolerance, 0, 255)

	sr, sg, sb := rgbAt(raster, seed.X, seed.Y)
	match := func(i int) bool {
		pix := raster.Pix[i : i+3 : i+3]
		return absDiff(pix[0], sr)+absDiff(pix[1], sg)+absDiff(pix[2], sb) <= tolerance
	}

	width, height := bounds.Dx(), bounds.Dy()
	seen := make([]bool, width*height)
	var sets []PixelSet

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			if seen[idx] {
				continue
			}
			if !match(y*raster.Stride + x*4) {
				seen[idx] = true
				continue
			}
			points := grow(raster, seen, image.Pt(x, y), d.wand.MaxRegionPixels, match)
			if len(points) < d.wand.MinRegionPixels {
				continue
			}
			sets = append(sets, NewPixelSet(translate(points, origin)))
		}
	}

	if len(sets) == 0 {
		return nil, ErrNoRegion
	}

	sort.SliceStable(sets, func(i, j int) bool {
		return sets[i].Len() > sets[j].Len()
	})
	if d.wand.MaxRegions > 0 && len(sets) > d.wand.MaxRegions {
		sets = sets[:d.wand.MaxRegions]
	}
	return sets, nil
}

// SmartSelect flood-fills the 4-connected component containing seed using
// Euclidean RGB distance. Pass AutoTolerance to derive the tolerance from
// the local color variance around the seed.
func (d *Detector) SmartSelect(img image.Image, seed image.Point, tolerance float64) (PixelSet, error) {
	origin := img.Bounds().Min
	raster := asNRGBA(img)
	bounds := raster.Bounds()
	seed = seed.Sub(origin)
	if !seed.In(bounds) {
		return PixelSet{}, ErrNoRegion
	}
	if tolerance < 0 {
		tolerance = d.AutoTolerance(raster, seed)
	}
	limit := tolerance * tolerance

	sr, sg, sb := rgbAt(raster, seed.X, seed.Y)
	match := func(i int) bool {
		dr := float64(raster.Pix[i]) - float64(sr)
		dg := float64(raster.Pix[i+1]) - float64(sg)
		db := float64(raster.Pix[i+2]) - float64(sb)
		return dr*dr+dg*dg+db*db <= limit
	}

	seen := make([]bool, bounds.Dx()*bounds.Dy())
	points := grow(raster, seen, seed, d.smart.MaxRegionPixels, match)
	if len(points) == 0 {
		return PixelSet{}, ErrNoRegion
	}
	return NewPixelSet(translate(points, origin)), nil
}

// LargestComponent returns the largest 4-connected group of non-zero pixels in mask
func LargestComponent(mask *image.Gray) (PixelSet, error) {
	bounds := mask.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	seen := make([]bool, width*height)

	on := func(x, y int) bool {
		return mask.Pix[y*mask.Stride+x] != 0
	}

	var best []image.Point
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			if seen[idx] {
				continue
			}
			seen[idx] = true
			if !on(x, y) {
				continue
			}
			cluster := []image.Point{{X: x, Y: y}}
			for k := 0; k < len(cluster); k++ {
				p := cluster[k]
				for _, n := range neighbors4(p) {
					if n.X < 0 || n.Y < 0 || n.X >= width || n.Y >= height {
						continue
					}
					ni := n.Y*width + n.X
					if seen[ni] {
						continue
					}
					seen[ni] = true
					if on(n.X, n.Y) {
						cluster = append(cluster, n)
					}
				}
			}
			if len(cluster) > len(best) {
				best = cluster
			}
		}
	}

	if len(best) == 0 {
		return PixelSet{}, ErrNoRegion
	}
	return NewPixelSet(translate(best, bounds.Min)), nil
}

// grow collects the 4-connected component around start. The component
// slice doubles as the BFS queue; growth stops once limit pixels are held,
// leaving the remaining pixels unvisited.
func grow(raster *image.NRGBA, seen []bool, start image.Point, limit int, match func(int) bool) []image.Point {
	width, height := raster.Rect.Dx(), raster.Rect.Dy()
	idx := func(p image.Point) int { return p.Y*raster.Stride + p.X*4 }

	startIdx := start.Y*width + start.X
	if seen[startIdx] || !match(idx(start)) {
		return nil
	}
	seen[startIdx] = true
	cluster := []image.Point{start}

	for k := 0; k < len(cluster); k++ {
		for _, n := range neighbors4(cluster[k]) {
			if limit > 0 && len(cluster) >= limit {
				return cluster
			}
			if n.X < 0 || n.Y < 0 || n.X >= width || n.Y >= height {
				continue
			}
			ni := n.Y*width + n.X
			if seen[ni] || !match(idx(n)) {
				continue
			}
			seen[ni] = true
			cluster = append(cluster, n)
		}
	}
	return cluster
}

func translate(points []image.Point, offset image.Point) []image.Point {
	if offset == (image.Point{}) {
		return points
	}
	for i := range points {
		points[i] = points[i].Add(offset)
	}
	return points
}

func neighbors4(p image.Point) [4]image.Point {
	return [4]image.Point{{p.X, p.Y - 1}, {p.X, p.Y + 1}, {p.X - 1, p.Y}, {p.X + 1, p.Y}}
}

// asNRGBA returns img as an NRGBA raster anchored at the origin
func asNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}

func rgbAt(img *image.NRGBA, x, y int) (uint8, uint8, uint8) {
	i := y*img.Stride + x*4
	return img.Pix[i], img.Pix[i+1], img.Pix[i+2]
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
