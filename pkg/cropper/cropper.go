// Package cropper implements the interactive crop tools: one state machine
// per selection mode, a Session that owns them, and the aggregation of their
// shapes into a single CropSpec.
package cropper

import (
	"errors"
	"time"

	"github.com/menta2k/cropmask/pkg/region"
	"github.com/menta2k/cropmask/pkg/types"
)

var (
	// ErrNoImage is returned when a detection tool is used before an image is loaded
	ErrNoImage = errors.New("no image loaded")
	// ErrNoForeground is returned when person segmentation finds no usable area
	ErrNoForeground = errors.New("no foreground found")
	// ErrBusy is returned when a detection is already running
	ErrBusy = errors.New("detection already in progress")
	// ErrNoSegmenter is returned when person mode has no inference backend
	ErrNoSegmenter = errors.New("no segmenter configured")
)

// State is the lifecycle position of a tool
type State int

const (
	// Idle means the tool holds nothing
	Idle State = iota
	// Collecting means input for a shape is in progress
	Collecting
	// Ready means the tool holds at least one complete region
	Ready
	// Applied means the current regions were handed out by Apply
	Applied
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Collecting:
		return "collecting"
	case Ready:
		return "ready"
	case Applied:
		return "applied"
	}
	return "unknown"
}

// Tool is the common surface of every crop mode
type Tool interface {
	Kind() types.Kind
	State() State
	// CanApply reports whether Apply would return a shape.
	CanApply() bool
	// Apply returns the tool's current shape. Regions stay in place so they
	// can be combined with other tools later.
	Apply() (types.SingleShape, bool)
	// Reset clears the tool's own state only.
	Reset()
}

// Undoer is implemented by tools that can drop their most recent region
type Undoer interface {
	UndoLast() bool
}

// Config holds tunables shared by the detection-backed tools
type Config struct {
	WandTolerance   int
	WandEpsilon     float64
	SmartTolerance  float64
	SmartEpsilon    float64
	HoverDelay      time.Duration
	PersonThreshold uint8
	PersonEpsilon   float64
}

// DefaultConfig returns the default tool configuration
func DefaultConfig() Config {
	return Config{
		WandTolerance:   32,
		WandEpsilon:     1.5,
		SmartTolerance:  region.AutoTolerance,
		SmartEpsilon:    2.0,
		HoverDelay:      150 * time.Millisecond,
		PersonThreshold: 128,
		PersonEpsilon:   2.0,
	}
}

// stateOf derives a tool state from its bookkeeping
func stateOf(pending bool, regions int, applied bool) State {
	switch {
	case pending:
		return Collecting
	case regions == 0:
		return Idle
	case applied:
		return Applied
	}
	return Ready
}

// validPolygons returns copies of the polygons that can enclose an area
func validPolygons(polys []types.Polygon) []types.Polygon {
	out := make([]types.Polygon, 0, len(polys))
	for _, p := range polys {
		if p.Valid() {
			out = append(out, append(types.Polygon(nil), p...))
		}
	}
	return out
}
