// Package server exposes conversion and region detection over HTTP.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/menta2k/cropmask/pkg/analyzer"
	"github.com/menta2k/cropmask/pkg/contour"
	"github.com/menta2k/cropmask/pkg/cropper"
	"github.com/menta2k/cropmask/pkg/pipeline"
	"github.com/menta2k/cropmask/pkg/processing"
	"github.com/menta2k/cropmask/pkg/region"
	"github.com/menta2k/cropmask/pkg/types"
)

// Config holds configuration for the HTTP handlers
type Config struct {
	MaxUploadBytes int64
	Tools          cropper.Config
}

// Server routes requests to the pipeline and the region detector.
// Handlers share only read-only state.
type Server struct {
	config    Config
	pipeline  *pipeline.Pipeline
	detector  *region.Detector
	processor *processing.Processor
	inspector *analyzer.ImageAnalyzer
	logger    *slog.Logger
}

// New creates a server. The inspector guards detection uploads the same way
// the pipeline guards conversions; nil uses the default limits. A nil logger
// discards output.
func New(config Config, p *pipeline.Pipeline, detector *region.Detector, processor *processing.Processor, inspector *analyzer.ImageAnalyzer, logger *slog.Logger) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 32 << 20
	}
	if inspector == nil {
		inspector = analyzer.New()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		config:    config,
		pipeline:  p,
		detector:  detector,
		processor: processor,
		inspector: inspector,
		logger:    logger,
	}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/convert", s.handleConvert)
	mux.HandleFunc("POST /api/detect/wand", s.handleDetect(detectWand))
	mux.HandleFunc("POST /api/detect/smart", s.handleDetect(detectSmart))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.logRequests(mux)
}

type errorBody struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

type pointBody struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type detectBody struct {
	Regions [][]pointBody `json:"regions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	src, name, form, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, pipeline.StageOptions, err)
		return
	}

	opts, err := types.ParseOptions([]byte(url.Values(form.Value).Get("options")))
	if err != nil {
		writeError(w, http.StatusBadRequest, pipeline.StageOptions, err)
		return
	}

	res, err := s.pipeline.ConvertNamed(r.Context(), name, src, opts)
	if err != nil {
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			writeError(w, statusFor(stageErr.Stage), stageErr.Stage, stageErr.Err)
			return
		}
		writeError(w, http.StatusInternalServerError, "", err)
		return
	}

	// The body is fully encoded before any header goes out
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Data); err != nil {
		s.logger.Warn("write response", "error", err)
	}
}

// detectFunc runs one detector at p and returns the outlined regions
type detectFunc func(s *Server, img image.Image, p image.Point, tolerance string) ([]types.Polygon, error)

func (s *Server) handleDetect(detect detectFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, _, form, err := s.readUpload(w, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, pipeline.StageOptions, err)
			return
		}
		x, errX := strconv.Atoi(url.Values(form.Value).Get("x"))
		y, errY := strconv.Atoi(url.Values(form.Value).Get("y"))
		if errX != nil || errY != nil {
			writeError(w, http.StatusBadRequest, pipeline.StageOptions, errors.New("x and y must be integers"))
			return
		}

		if _, err := s.inspector.Inspect(src); err != nil {
			status := http.StatusUnprocessableEntity
			if errors.Is(err, analyzer.ErrTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			writeError(w, status, pipeline.StageDecode, err)
			return
		}
		img, _, err := s.processor.Decode(src)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, pipeline.StageDecode, err)
			return
		}

		start := time.Now()
		polygons, err := detect(s, img, image.Pt(x, y), url.Values(form.Value).Get("tolerance"))
		switch {
		case errors.Is(err, region.ErrNoRegion):
			polygons = nil
		case err != nil:
			writeError(w, http.StatusBadRequest, pipeline.StageOptions, err)
			return
		}

		body := detectBody{Regions: make([][]pointBody, 0, len(polygons))}
		for _, poly := range polygons {
			pts := make([]pointBody, len(poly))
			for i, p := range poly {
				pts[i] = pointBody{X: p.X, Y: p.Y}
			}
			body.Regions = append(body.Regions, pts)
		}
		s.logger.Debug("detected regions", "x", x, "y", y, "regions", len(body.Regions), "duration", time.Since(start))
		writeJSON(w, http.StatusOK, body)
	}
}

func detectWand(s *Server, img image.Image, p image.Point, tolerance string) ([]types.Polygon, error) {
	tol := s.config.Tools.WandTolerance
	if tolerance != "" {
		v, err := strconv.Atoi(tolerance)
		if err != nil || v < 0 || v > 255 {
			return nil, fmt.Errorf("tolerance must be an integer between 0 and 255")
		}
		tol = v
	}

	sets, err := s.detector.MagicWand(img, p, tol)
	if err != nil {
		return nil, err
	}
	var polygons []types.Polygon
	for _, set := range sets {
		if poly := contour.Outline(set, s.config.Tools.WandEpsilon); poly.Valid() {
			polygons = append(polygons, poly)
		}
	}
	return polygons, nil
}

func detectSmart(s *Server, img image.Image, p image.Point, tolerance string) ([]types.Polygon, error) {
	tol := s.config.Tools.SmartTolerance
	if tolerance != "" && tolerance != "auto" {
		v, err := strconv.ParseFloat(tolerance, 64)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("tolerance must be a non-negative number or \"auto\"")
		}
		tol = v
	} else if tolerance == "auto" {
		tol = region.AutoTolerance
	}

	set, err := s.detector.SmartSelect(img, p, tol)
	if err != nil {
		return nil, err
	}
	poly := contour.Outline(set, s.config.Tools.SmartEpsilon)
	if !poly.Valid() {
		return nil, nil
	}
	return []types.Polygon{poly}, nil
}

// readUpload parses the multipart form and returns the image field's bytes and filename
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, *multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		return nil, "", nil, fmt.Errorf("invalid multipart request: %w", err)
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, "", nil, fmt.Errorf("missing image field: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return nil, "", nil, fmt.Errorf("read image: %w", err)
	}
	return buf.Bytes(), header.Filename, r.MultipartForm, nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusFor(stage pipeline.Stage) int {
	switch stage {
	case pipeline.StageOptions:
		return http.StatusBadRequest
	case pipeline.StageDecode:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, stage pipeline.Stage, err error) {
	writeJSON(w, status, errorBody{Error: err.Error(), Stage: string(stage)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
