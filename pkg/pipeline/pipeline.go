// Package pipeline runs the decode, mask, resize and encode sequence for
// one conversion request.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/menta2k/cropmask/internal/utils"
	"github.com/menta2k/cropmask/pkg/analyzer"
	"github.com/menta2k/cropmask/pkg/compositor"
	"github.com/menta2k/cropmask/pkg/processing"
	"github.com/menta2k/cropmask/pkg/types"
)

// Stage names a step of the conversion
type Stage string

const (
	StageOptions Stage = "options"
	StageDecode  Stage = "decode"
	StageMask    Stage = "mask"
	StageResize  Stage = "resize"
	StageEncode  Stage = "encode"
)

// StageError records which step of a conversion failed
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Result is a fully encoded conversion output
type Result struct {
	Data        []byte
	Format      string
	ContentType string
	Filename    string
	Width       int
	Height      int
	// Masked reports whether a selection was composited.
	Masked bool
	// Passthrough reports that Data is the unchanged input.
	Passthrough bool
}

// Pipeline converts images. It holds no per-request state and is safe for
// concurrent use.
type Pipeline struct {
	processor  *processing.Processor
	compositor *compositor.Compositor
	analyzer   *analyzer.ImageAnalyzer
	logger     *slog.Logger
}

// New creates a pipeline. Nil arguments get defaults.
func New(processor *processing.Processor, inspector *analyzer.ImageAnalyzer, logger *slog.Logger) *Pipeline {
	if processor == nil {
		processor = processing.NewProcessor()
	}
	if inspector == nil {
		inspector = analyzer.New()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		processor:  processor,
		compositor: compositor.New(processor),
		analyzer:   inspector,
		logger:     logger,
	}
}

// Convert runs the conversion for an unnamed source
func (p *Pipeline) Convert(ctx context.Context, src []byte, opts types.ConversionOptions) (*Result, error) {
	return p.ConvertNamed(ctx, "", src, opts)
}

// ConvertNamed runs the conversion; name seeds the suggested output filename.
// Options are validated before any image work. Every failure is a *StageError.
func (p *Pipeline) ConvertNamed(ctx context.Context, name string, src []byte, opts types.ConversionOptions) (*Result, error) {
	start := time.Now()

	if err := opts.Validate(); err != nil {
		return nil, &StageError{Stage: StageOptions, Err: err}
	}
	if opts.Width > 0 && opts.Height > 0 {
		if err := p.checkTarget(opts.Width, opts.Height); err != nil {
			return nil, err
		}
	}

	sourceFormat := p.analyzer.SniffFormat(src)
	if sourceFormat == "" {
		sourceFormat = opts.OriginalFormat
	}
	hasCrop := opts.Crop != nil && !opts.Crop.Empty()

	if sourceFormat == opts.ToFormat && !hasCrop && !opts.Resizes() && opts.Quality == 100 {
		p.logger.Debug("passthrough", "format", sourceFormat, "bytes", len(src))
		info, _ := p.analyzer.Inspect(src)
		return &Result{
			Data:        src,
			Format:      opts.ToFormat,
			ContentType: utils.ContentType(opts.ToFormat),
			Filename:    utils.SuggestedFilename(name, opts.ToFormat),
			Width:       info.Width,
			Height:      info.Height,
			Passthrough: true,
		}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, &StageError{Stage: StageDecode, Err: err}
	}
	if _, err := p.analyzer.Inspect(src); err != nil {
		return nil, &StageError{Stage: StageDecode, Err: err}
	}
	img, _, err := p.processor.Decode(src)
	if err != nil {
		return nil, &StageError{Stage: StageDecode, Err: err}
	}

	masked := false
	if hasCrop {
		if err := ctx.Err(); err != nil {
			return nil, &StageError{Stage: StageMask, Err: err}
		}
		img, masked, err = p.compositor.Composite(img, opts.Crop, opts.InvertSelection)
		if err != nil {
			return nil, &StageError{Stage: StageMask, Err: err}
		}
		if !masked {
			p.logger.Debug("selection has no area, mask skipped", "kind", opts.Crop.Kind())
		}
	}

	if opts.Resizes() {
		if err := ctx.Err(); err != nil {
			return nil, &StageError{Stage: StageResize, Err: err}
		}
		// A single dimension is only bounded once the source aspect is known
		if err := p.checkTarget(processing.TargetSize(img.Bounds(), opts.Width, opts.Height)); err != nil {
			return nil, err
		}
		img = p.processor.Resize(img, opts.Width, opts.Height)
		if b := img.Bounds(); b.Empty() {
			return nil, &StageError{Stage: StageResize, Err: fmt.Errorf("resize produced an empty image")}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, &StageError{Stage: StageEncode, Err: err}
	}
	data, err := p.processor.Encode(img, opts.ToFormat, opts.Quality)
	if err != nil {
		return nil, &StageError{Stage: StageEncode, Err: err}
	}

	b := img.Bounds()
	p.logger.Info("converted image",
		"from", sourceFormat,
		"to", opts.ToFormat,
		"width", b.Dx(),
		"height", b.Dy(),
		"masked", masked,
		"bytes", len(data),
		"duration", time.Since(start),
	)

	return &Result{
		Data:        data,
		Format:      opts.ToFormat,
		ContentType: utils.ContentType(opts.ToFormat),
		Filename:    utils.SuggestedFilename(name, opts.ToFormat),
		Width:       b.Dx(),
		Height:      b.Dy(),
		Masked:      masked,
	}, nil
}

// checkTarget rejects output sizes that would not fit the pixel budget
func (p *Pipeline) checkTarget(width, height int) error {
	if width > types.MaxDimension || height > types.MaxDimension {
		return &StageError{Stage: StageOptions, Err: fmt.Errorf("%w: target %dx%d exceeds %d per edge",
			types.ErrInvalidOptions, width, height, types.MaxDimension)}
	}
	if err := p.analyzer.CheckTarget(width, height); err != nil {
		return &StageError{Stage: StageOptions, Err: fmt.Errorf("%w: %w", types.ErrInvalidOptions, err)}
	}
	return nil
}
