// Package cropmask builds selections on images and applies them as alpha masks.
//
// A Toolkit wires the pieces together: region detection for the magic wand
// and smart tools, optional person segmentation through a vision model, and
// the decode, mask, resize and encode pipeline.
//
// Basic usage:
//
//	tk := cropmask.New()
//
//	img, src, err := tk.LoadImage("photo.jpg")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	session := tk.NewSession()
//	session.LoadImage(img)
//	session.SetMode(ctx, types.KindSAM)
//	session.Click(image.Pt(120, 80), false)
//
//	spec, ok := session.Apply()
//	if !ok {
//		log.Fatal("nothing selected")
//	}
//
//	res, err := tk.Convert(ctx, src, types.ConversionOptions{
//		ToFormat: "png",
//		Quality:  90,
//		Crop:     spec,
//	})
//
// Selections are expressed as a types.CropSpec and travel as JSON, so a
// browser can build them and hand them to the HTTP server instead.
package cropmask

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"

	"github.com/menta2k/cropmask/internal/config"
	"github.com/menta2k/cropmask/internal/server"
	"github.com/menta2k/cropmask/internal/utils"
	"github.com/menta2k/cropmask/pkg/analyzer"
	"github.com/menta2k/cropmask/pkg/client"
	"github.com/menta2k/cropmask/pkg/cropper"
	"github.com/menta2k/cropmask/pkg/detection"
	"github.com/menta2k/cropmask/pkg/llamacpp"
	"github.com/menta2k/cropmask/pkg/ollama"
	"github.com/menta2k/cropmask/pkg/pipeline"
	"github.com/menta2k/cropmask/pkg/processing"
	"github.com/menta2k/cropmask/pkg/region"
	"github.com/menta2k/cropmask/pkg/types"
)

// Version of the cropmask library
const Version = "1.0.0"

// Toolkit provides a high-level interface for selection and conversion
type Toolkit struct {
	config    *config.Config
	processor *processing.Processor
	analyzer  *analyzer.ImageAnalyzer
	detector  *region.Detector
	pipeline  *pipeline.Pipeline
	segmenter cropper.Segmenter
	logger    *slog.Logger
}

// New creates a Toolkit with default configuration and no segmentation backend
func New() *Toolkit {
	tk, err := NewWithConfig(config.Default(), nil)
	if err != nil {
		// The defaults always validate
		panic(err)
	}
	return tk
}

// NewWithConfig creates a Toolkit from cfg. A nil logger discards output.
func NewWithConfig(cfg *config.Config, logger *slog.Logger) (*Toolkit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	segmenter, err := NewSegmenter(cfg.Segmentation, logger)
	if err != nil {
		return nil, err
	}

	processor := cfg.Processor()
	inspector := cfg.Analyzer()
	return &Toolkit{
		config:    cfg,
		processor: processor,
		analyzer:  inspector,
		detector:  cfg.Detector(),
		pipeline:  pipeline.New(processor, inspector, logger),
		segmenter: segmenter,
		logger:    logger,
	}, nil
}

// NewSegmenter builds the person segmenter for the configured backend.
// Backend "none" yields a nil segmenter.
func NewSegmenter(cfg config.SegmentationConfig, logger *slog.Logger) (cropper.Segmenter, error) {
	var (
		vc  client.VisionClient
		err error
	)
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "ollama":
		vc, err = ollama.NewClient(cfg.URL)
	case "llamacpp":
		vc, err = llamacpp.NewClient(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown segmentation backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Backend, err)
	}

	dc := detection.DefaultConfig(cfg.Model)
	if cfg.MaxDim > 0 {
		dc.MaxDim = cfg.MaxDim
	}
	seg := detection.NewPersonSegmenter(vc, dc)
	seg.SetLogger(logger)
	return seg, nil
}

// Config returns the toolkit configuration
func (tk *Toolkit) Config() *config.Config {
	return tk.config
}

// HasSegmenter reports whether person selection is available
func (tk *Toolkit) HasSegmenter() bool {
	return tk.segmenter != nil
}

// NewSession creates an editing session wired to the toolkit's detectors
func (tk *Toolkit) NewSession() *cropper.Session {
	s := cropper.NewSession(tk.config.Tools(), tk.detector, tk.segmenter)
	s.SetLogger(tk.logger)
	return s
}

// LoadImage reads a file or http(s) URL and returns the decoded image with its source bytes
func (tk *Toolkit) LoadImage(source string) (image.Image, []byte, error) {
	data, err := tk.processor.LoadSource(source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load image: %w", err)
	}
	if _, err := tk.analyzer.Inspect(data); err != nil {
		return nil, nil, fmt.Errorf("image validation failed: %w", err)
	}
	img, _, err := tk.processor.Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, data, nil
}

// Convert runs the conversion pipeline on encoded source bytes
func (tk *Toolkit) Convert(ctx context.Context, src []byte, opts types.ConversionOptions) (*pipeline.Result, error) {
	return tk.pipeline.Convert(ctx, src, opts)
}

// ConvertFile converts inputPath and writes the result. An empty outputPath
// is derived from the output section of the configuration.
func (tk *Toolkit) ConvertFile(ctx context.Context, inputPath, outputPath string, opts types.ConversionOptions) (string, *pipeline.Result, error) {
	src, err := tk.processor.LoadSource(inputPath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load image: %w", err)
	}

	res, err := tk.pipeline.ConvertNamed(ctx, inputPath, src, opts)
	if err != nil {
		return "", nil, err
	}

	if outputPath == "" {
		out := tk.config.Output
		if err := utils.EnsureDir(out.OutputDir); err != nil {
			return "", nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		outputPath = utils.GenerateOutputFilename(inputPath, out.OutputDir, out.Prefix, out.Suffix, res.Format)
	}
	if err := os.WriteFile(outputPath, res.Data, 0o644); err != nil {
		return "", nil, fmt.Errorf("failed to write output: %w", err)
	}
	tk.logger.Info("wrote output", "path", outputPath, "size", utils.FormatFileSize(int64(len(res.Data))))
	return outputPath, res, nil
}

// Overlay draws the bounding boxes of spec on a copy of img
func (tk *Toolkit) Overlay(img image.Image, spec types.CropSpec) image.Image {
	return tk.processor.CreateSelectionOverlay(img, spec)
}

// SaveImage encodes img to path in the given format
func (tk *Toolkit) SaveImage(img image.Image, path, format string, quality int) error {
	return tk.processor.SaveImage(img, path, format, quality)
}

// Server returns the HTTP server for the toolkit
func (tk *Toolkit) Server() *server.Server {
	return server.New(server.Config{
		MaxUploadBytes: int64(tk.config.Server.MaxUploadMB) << 20,
		Tools:          tk.config.Tools(),
	}, tk.pipeline, tk.detector, tk.processor, tk.analyzer, tk.logger)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
