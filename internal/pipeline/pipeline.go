// Package pipeline runs a creative generation job end to end.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/creative-engine/internal/captions"
	"github.com/lehigh-university-libraries/creative-engine/internal/compositor"
	"github.com/lehigh-university-libraries/creative-engine/internal/concepts"
	"github.com/lehigh-university-libraries/creative-engine/internal/imagegen"
	"github.com/lehigh-university-libraries/creative-engine/internal/manifest"
	"github.com/lehigh-university-libraries/creative-engine/internal/packager"
	"github.com/lehigh-university-libraries/creative-engine/internal/seed"
)

// Options configures a run.
type Options struct {
	Library     *concepts.Library
	ProductDesc string
	LogoPath    string
	OutDir      string

	// Images is the requested image provider. Failures fall back to a
	// synthetic image.
	Images imagegen.Provider
	// Captions produces copy for every image and tone.
	Captions captions.Provider

	PerConcept  int
	Width       int
	Height      int
	Concurrency int
	Composite   compositor.Options

	// Budget bounds the whole run when positive. Calls still in flight when
	// it expires degrade to their offline fallbacks.
	Budget    time.Duration
	NoArchive bool
}

// Stats counts degradations during a run.
type Stats struct {
	Units             int           `json:"units"`
	Images            int64         `json:"images"`
	ImageFallbacks    int64         `json:"image_fallbacks"`
	CompositeFailures int64         `json:"composite_failures"`
	CaptionFallbacks  int64         `json:"caption_fallbacks"`
	DroppedUnits      int64         `json:"dropped_units"`
	Elapsed           time.Duration `json:"elapsed"`
}

// Result is what a completed run produced.
type Result struct {
	Manifest manifest.Manifest
	OutDir   string
	Outputs  *packager.Outputs
	Stats    Stats
}

type unit struct {
	concept    concepts.Concept
	repetition int
}

type counters struct {
	images    atomic.Int64
	imageFall atomic.Int64
	composite atomic.Int64
	dropped   atomic.Int64
}

// Run generates PerConcept images for every concept in the library, brands
// and captions them, and packages the outputs. Per-image failures degrade
// and never abort the run; only setup and packaging errors are returned.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	outDir, err := prepareOutDir(opts.OutDir)
	if err != nil {
		return nil, err
	}
	imagesDir := filepath.Join(outDir, packager.ImagesDir)

	requested := string(opts.Images.Kind())
	acc := manifest.NewAccumulator(opts.ProductDesc, requested, opts.Width, opts.Height, opts.Library.Names())
	comp := compositor.New(opts.LogoPath, opts.Composite)
	fallback := imagegen.NewSynthetic()

	var units []unit
	for _, c := range opts.Library.Concepts {
		for rep := 0; rep < opts.PerConcept; rep++ {
			units = append(units, unit{concept: c, repetition: rep})
		}
	}

	slog.Info("Starting creative run",
		"run_id", acc.RunID(),
		"out", outDir,
		"provider", requested,
		"captions", opts.Captions.Name(),
		"units", len(units),
		"concurrency", opts.Concurrency)

	runCtx := ctx
	if opts.Budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Budget)
		defer cancel()
	}

	var c counters
	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for i, u := range units {
		g.Go(func() error {
			slog.Debug("Processing unit", "concept", u.concept.Name, "repetition", u.repetition, "progress", fmt.Sprintf("%d/%d", i+1, len(units)))
			items, ok := processUnit(runCtx, opts, u, imagesDir, comp, fallback, &c)
			if !ok {
				c.dropped.Add(1)
				return nil
			}
			acc.Append(items...)
			return nil
		})
	}
	// Units never return errors.
	_ = g.Wait()

	m := acc.Finalize()

	archivePath := ""
	if !opts.NoArchive {
		archivePath = outDir + ".zip"
	}
	outputs, err := packager.Package(outDir, archivePath, m)
	if err != nil {
		return nil, fmt.Errorf("failed to package outputs: %w", err)
	}

	stats := Stats{
		Units:             len(units),
		Images:            c.images.Load(),
		ImageFallbacks:    c.imageFall.Load(),
		CompositeFailures: c.composite.Load(),
		DroppedUnits:      c.dropped.Load(),
		Elapsed:           time.Since(start),
	}
	if r, ok := opts.Captions.(interface{ Fallbacks() int64 }); ok {
		stats.CaptionFallbacks = r.Fallbacks()
	}

	slog.Info("Creative run complete",
		"run_id", m.RunID,
		"images", stats.Images,
		"items", len(m.Items),
		"image_fallbacks", stats.ImageFallbacks,
		"composite_failures", stats.CompositeFailures,
		"caption_fallbacks", stats.CaptionFallbacks,
		"elapsed", stats.Elapsed.Round(time.Millisecond))

	return &Result{Manifest: m, OutDir: outDir, Outputs: outputs, Stats: stats}, nil
}

func processUnit(ctx context.Context, opts Options, u unit, imagesDir string, comp *compositor.Compositor, fallback imagegen.Provider, c *counters) ([]manifest.Item, bool) {
	s := seed.Derive(opts.ProductDesc, u.concept.Name, u.repetition)
	req := imagegen.Request{
		Concept:            u.concept.Name,
		Repetition:         u.repetition,
		ProductDescription: opts.ProductDesc,
		Prompt:             opts.Library.Prompt(u.concept, opts.ProductDesc),
		Seed:               s,
		Width:              opts.Width,
		Height:             opts.Height,
	}

	raw, err := opts.Images.Generate(ctx, req)
	if err != nil {
		c.imageFall.Add(1)
		slog.Warn("Image provider failed, using synthetic image",
			"concept", u.concept.Name,
			"repetition", u.repetition,
			"provider", opts.Images.Kind(),
			"timeout", errors.Is(err, imagegen.ErrTimeout),
			"error", err)
		raw, err = fallback.Generate(ctx, req)
		if err != nil {
			slog.Error("Synthetic image failed, dropping unit", "concept", u.concept.Name, "repetition", u.repetition, "error", err)
			return nil, false
		}
	}
	defer func() {
		if err := raw.Remove(); err != nil {
			slog.Debug("Failed to remove raw image", "path", raw.Path, "error", err)
		}
	}()

	filename := fmt.Sprintf("%s_v%d_s%d.jpg", u.concept.Name, u.repetition, s)
	dest := filepath.Join(imagesDir, filename)
	if _, err := comp.Composite(raw.Path, dest); err != nil {
		c.composite.Add(1)
		slog.Warn("Compositing failed, keeping raw image", "file", filename, "error", err)
		if err := moveFile(raw.Path, dest); err != nil {
			slog.Error("Failed to place raw image, dropping unit", "file", filename, "error", err)
			return nil, false
		}
	}
	c.images.Add(1)

	items := make([]manifest.Item, 0, len(captions.Tones))
	for _, tone := range captions.Tones {
		items = append(items, manifest.Item{
			Filename:     filename,
			Concept:      u.concept.Name,
			Repetition:   u.repetition,
			Seed:         s,
			ProviderUsed: string(opts.Images.Kind()),
			Tone:         tone,
			Caption:      opts.Captions.Caption(ctx, opts.ProductDesc, u.concept.Name, tone),
			Prompt:       req.Prompt,
		})
	}
	return items, true
}

func (o *Options) validate() error {
	switch {
	case o.Library == nil:
		return errors.New("concept library is required")
	case o.Images == nil:
		return errors.New("image provider is required")
	case o.Captions == nil:
		return errors.New("caption provider is required")
	case o.OutDir == "":
		return errors.New("output directory is required")
	case o.Width <= 0 || o.Height <= 0:
		return fmt.Errorf("invalid image size %dx%d", o.Width, o.Height)
	}
	if err := o.Library.Validate(); err != nil {
		return err
	}
	if o.PerConcept < 1 {
		o.PerConcept = 1
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	return nil
}

// prepareOutDir creates dir with an images subdirectory. An existing dir is
// never reused; a _<unix seconds> suffix is added instead. The returned path
// is clean, so suffixes and the archive name land beside dir, not inside it.
func prepareOutDir(dir string) (string, error) {
	dir = filepath.Clean(dir)
	if _, err := os.Stat(dir); err == nil {
		base := fmt.Sprintf("%s_%d", dir, time.Now().Unix())
		dir = base
		for i := 1; ; i++ {
			if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
				break
			}
			dir = fmt.Sprintf("%s_%d", base, i)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, packager.ImagesDir), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return dir, nil
}

// moveFile renames src to dst, copying when a rename is not possible.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
