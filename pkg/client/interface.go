// Package client defines the vision model backend contract and the lenient
// JSON parsing shared by the backends.
package client

import (
	"context"

	"github.com/menta2k/cropmask/pkg/types"
)

// VisionClient is a vision model backend
type VisionClient interface {
	// SimpleQuery asks a free-form question about an image
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	// SegmentPerson asks for the outline of the most prominent person
	SegmentPerson(ctx context.Context, model, prompt, imgB64 string) (*types.SegmentationResult, error)
}
