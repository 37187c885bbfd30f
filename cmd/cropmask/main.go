package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gogpu/gg"

	"github.com/menta2k/cropmask"
	"github.com/menta2k/cropmask/internal/config"
	"github.com/menta2k/cropmask/internal/utils"
	"github.com/menta2k/cropmask/pkg/cropper"
	"github.com/menta2k/cropmask/pkg/types"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "cropmask: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return usage()
	}
	switch args[0] {
	case "-version", "--version", "version":
		fmt.Println("cropmask", cropmask.GetVersion())
		return nil
	case "serve":
		return serve(args[1:])
	case "apply":
		return apply(args[1:])
	}
	return usage()
}

func usage() error {
	return fmt.Errorf("usage: %s serve|apply [flags] (or -version)", filepath.Base(os.Args[0]))
}

// common flags shared by every sub-command
type common struct {
	configPath string
	logLevel   string
	backend    string
	url        string
	model      string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "config file (default "+config.GetConfigPath()+" when present)")
	fs.StringVar(&c.logLevel, "log-level", "", "debug|info|warn|error (overrides config and CROPMASK_LOG_LEVEL)")
	fs.StringVar(&c.backend, "backend", "", "segmentation backend: ollama|llamacpp|none")
	fs.StringVar(&c.url, "url", "", "segmentation server URL")
	fs.StringVar(&c.model, "model", "", "segmentation model name")
}

// toolkit loads the configuration, applies overrides and builds the logger and toolkit
func (c *common) toolkit() (*cropmask.Toolkit, *slog.Logger, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	if v := os.Getenv("CROPMASK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.backend != "" {
		cfg.Segmentation.Backend = c.backend
	}
	if c.url != "" {
		cfg.Segmentation.URL = c.url
	}
	if c.model != "" {
		cfg.Segmentation.Model = c.model
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	gg.SetLogger(logger)

	tk, err := cropmask.NewWithConfig(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return tk, logger, nil
}

func (c *common) loadConfig() (*config.Config, error) {
	if c.configPath != "" {
		return config.LoadFromFile(c.configPath)
	}
	if path := config.GetConfigPath(); utils.FileExists(path) {
		return config.LoadFromFile(path)
	}
	return config.Default(), nil
}

func serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var c common
	c.register(fs)
	addr := fs.String("addr", "", "listen address (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tk, logger, err := c.toolkit()
	if err != nil {
		return err
	}
	cfg := tk.Config()
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      tk.Server().Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "segmentation", tk.HasSegmenter())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// listFlag collects every occurrence of a repeatable flag
type listFlag []string

func (l *listFlag) String() string     { return strings.Join(*l, " ") }
func (l *listFlag) Set(v string) error { *l = append(*l, v); return nil }

func apply(args []string) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	var c common
	c.register(fs)

	var (
		in, out, to, cropFile, overlay string
		quality, width, height         int
		invert, person                 bool
		rects, circles, polys          listFlag
		wands, smarts                  listFlag
	)
	fs.StringVar(&in, "in", "", "input image path or URL")
	fs.StringVar(&out, "out", "", "output path (default derived from the output config)")
	fs.StringVar(&to, "to", "", "output format: png|jpeg|webp|gif|bmp|tiff (default from config)")
	fs.IntVar(&quality, "quality", 0, "output quality 1-100 (default from config)")
	fs.IntVar(&width, "width", 0, "target width")
	fs.IntVar(&height, "height", 0, "target height")
	fs.BoolVar(&invert, "invert", false, "keep everything except the selection")
	fs.StringVar(&cropFile, "crop", "", "JSON crop spec file; replaces the tool flags")
	fs.StringVar(&overlay, "overlay", "", "also write the source with selection boxes drawn to this path")
	fs.Var(&rects, "rect", "rectangle x0,y0,x1,y1 (repeatable)")
	fs.Var(&circles, "circle", "circle cx,cy,r (repeatable)")
	fs.Var(&polys, "polygon", "polygon \"x,y x,y x,y ...\" (repeatable)")
	fs.Var(&wands, "wand", "magic wand click x,y[,tolerance] (repeatable)")
	fs.Var(&smarts, "smart", "smart select click x,y (repeatable)")
	fs.BoolVar(&person, "person", false, "select the most prominent person")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if in == "" {
		return fmt.Errorf("apply: -in is required")
	}

	tk, logger, err := c.toolkit()
	if err != nil {
		return err
	}
	cfg := tk.Config()
	if to == "" {
		to = cfg.Conversion.DefaultFormat
	}
	if quality == 0 {
		quality = cfg.Conversion.DefaultQuality
	}

	ctx := context.Background()
	img, _, err := tk.LoadImage(in)
	if err != nil {
		return err
	}

	var spec types.CropSpec
	if cropFile != "" {
		data, err := os.ReadFile(cropFile)
		if err != nil {
			return err
		}
		if spec, err = types.ParseCropSpec(data); err != nil {
			return err
		}
	} else {
		session := tk.NewSession()
		session.OnNotice(func(n cropper.Notice) {
			logger.Warn(n.String(), "mode", n.Mode)
		})
		session.LoadImage(img)

		steps := actions{rects: rects, circles: circles, polys: polys, wands: wands, smarts: smarts, person: person}
		if err := steps.run(ctx, session); err != nil {
			return err
		}
		spec, _ = session.Apply()
	}

	if overlay != "" && spec != nil {
		format := filepath.Ext(overlay)
		if err := tk.SaveImage(tk.Overlay(img, spec), overlay, format, 92); err != nil {
			return fmt.Errorf("write overlay: %w", err)
		}
		logger.Info("wrote overlay", "path", overlay)
	}

	opts := types.ConversionOptions{
		ToFormat:        to,
		Quality:         quality,
		Width:           width,
		Height:          height,
		Crop:            spec,
		InvertSelection: invert,
	}
	path, res, err := tk.ConvertFile(ctx, in, out, opts)
	if err != nil {
		return err
	}
	fmt.Printf("%s %dx%d masked=%v\n", path, res.Width, res.Height, res.Masked)
	return nil
}

// actions replays command-line selections through a session's tools
type actions struct {
	rects, circles, polys, wands, smarts listFlag
	person                               bool
}

func (a actions) run(ctx context.Context, s *cropper.Session) error {
	for i, r := range a.rects {
		v, err := ints(r, 4)
		if err != nil {
			return fmt.Errorf("-rect %q: %w", r, err)
		}
		s.SetMode(ctx, types.KindRect)
		s.Click(image.Pt(v[0], v[1]), i > 0)
		s.Click(image.Pt(v[2], v[3]), i > 0)
	}

	for i, cv := range a.circles {
		v, err := ints(cv, 3)
		if err != nil {
			return fmt.Errorf("-circle %q: %w", cv, err)
		}
		s.SetMode(ctx, types.KindCircle)
		s.Click(image.Pt(v[0], v[1]), i > 0)
		s.Click(image.Pt(v[0]+v[2], v[1]), i > 0)
	}

	for _, p := range a.polys {
		s.SetMode(ctx, types.KindPolygon)
		for _, pair := range strings.Fields(p) {
			v, err := ints(pair, 2)
			if err != nil {
				return fmt.Errorf("-polygon %q: %w", p, err)
			}
			s.Click(image.Pt(v[0], v[1]), false)
		}
		s.Polygon().Finish()
	}

	for i, w := range a.wands {
		parts := strings.Split(w, ",")
		if len(parts) == 3 {
			tol, err := strconv.Atoi(strings.TrimSpace(parts[2]))
			if err != nil {
				return fmt.Errorf("-wand %q: %w", w, err)
			}
			s.Wand().SetTolerance(tol)
			w = strings.Join(parts[:2], ",")
		}
		v, err := ints(w, 2)
		if err != nil {
			return fmt.Errorf("-wand %q: %w", w, err)
		}
		s.SetMode(ctx, types.KindMagic)
		// A miss is reported through the notice hook
		_ = s.Click(image.Pt(v[0], v[1]), i > 0)
	}

	for i, sm := range a.smarts {
		v, err := ints(sm, 2)
		if err != nil {
			return fmt.Errorf("-smart %q: %w", sm, err)
		}
		s.SetMode(ctx, types.KindSAM)
		_ = s.Click(image.Pt(v[0], v[1]), i > 0)
	}

	if a.person {
		future, err := s.SetMode(ctx, types.KindSelfie)
		if err != nil {
			return err
		}
		if _, err := future.Wait(ctx); err != nil && !errors.Is(err, cropper.ErrNoForeground) {
			return fmt.Errorf("person selection: %w", err)
		}
	}
	return nil
}

// ints parses exactly n comma-separated integers
func ints(s string, n int) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma-separated integers", n)
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
