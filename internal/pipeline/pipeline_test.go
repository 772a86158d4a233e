package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/creative-engine/internal/captions"
	"github.com/lehigh-university-libraries/creative-engine/internal/compositor"
	"github.com/lehigh-university-libraries/creative-engine/internal/concepts"
	"github.com/lehigh-university-libraries/creative-engine/internal/imagegen"
	"github.com/lehigh-university-libraries/creative-engine/internal/packager"
	"github.com/lehigh-university-libraries/creative-engine/internal/seed"
)

const product = "Matte Black Travel Mug 12oz"

type failingProvider struct{}

func (failingProvider) Kind() imagegen.Kind { return imagegen.KindHorde }

func (failingProvider) Generate(context.Context, imagegen.Request) (*imagegen.RawImage, error) {
	return nil, fmt.Errorf("%w: job never finished", imagegen.ErrTimeout)
}

func writeLogo(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.NRGBA{R: 200, A: 255})
		}
	}
	path := filepath.Join(dir, "logo.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create logo: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode logo: %v", err)
	}
	return path
}

func testOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		Library:     concepts.Default(),
		ProductDesc: product,
		LogoPath:    writeLogo(t, dir),
		OutDir:      filepath.Join(dir, "out_creatives"),
		Images:      imagegen.NewSynthetic(),
		Captions:    captions.NewOffline(),
		PerConcept:  1,
		Width:       64,
		Height:      64,
		Concurrency: 4,
		Composite:   compositor.DefaultOptions(),
	}
}

func TestRunOffline(t *testing.T) {
	opts := testOptions(t)
	res, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Manifest.Items) != 30 {
		t.Fatalf("Expected 30 items, got %d", len(res.Manifest.Items))
	}
	if res.Stats.Images != 10 {
		t.Errorf("Expected 10 images, got %d", res.Stats.Images)
	}
	if res.Stats.ImageFallbacks != 0 || res.Stats.CompositeFailures != 0 {
		t.Errorf("Expected no degradations, got %+v", res.Stats)
	}

	entries, err := os.ReadDir(filepath.Join(res.OutDir, packager.ImagesDir))
	if err != nil {
		t.Fatalf("read images: %v", err)
	}
	if len(entries) != 10 {
		t.Errorf("Expected 10 image files, got %d", len(entries))
	}

	filenames := map[string]bool{}
	for i, item := range res.Manifest.Items {
		filenames[item.Filename] = true
		if !strings.Contains(item.Filename, item.Concept) {
			t.Errorf("Filename %s does not contain concept %s", item.Filename, item.Concept)
		}
		if !strings.Contains(item.Filename, fmt.Sprintf("_s%d", item.Seed)) {
			t.Errorf("Filename %s does not contain seed %d", item.Filename, item.Seed)
		}
		if item.ProviderUsed != "mock" {
			t.Errorf("Expected provider mock, got %s", item.ProviderUsed)
		}
		if item.Caption.Headline == "" || item.Caption.CTA == "" {
			t.Errorf("Item %d has an incomplete caption: %+v", i, item.Caption)
		}
		if _, err := os.Stat(filepath.Join(res.OutDir, packager.ImagesDir, item.Filename)); err != nil {
			t.Errorf("Missing image %s: %v", item.Filename, err)
		}
	}
	if len(filenames) != 10 {
		t.Errorf("Expected 10 unique filenames, got %d", len(filenames))
	}

	// Sorted by library order then tone.
	first := res.Manifest.Items[0]
	if first.Concept != "hero" || first.Tone != captions.ToneFormal {
		t.Errorf("Expected hero/formal first, got %s/%s", first.Concept, first.Tone)
	}
	if want := seed.Derive(product, "hero", 0); first.Seed != want {
		t.Errorf("Expected seed %d, got %d", want, first.Seed)
	}
	if res.Manifest.Items[2].Tone != captions.ToneUrgent || res.Manifest.Items[3].Concept != "lifestyle" {
		t.Errorf("Unexpected ordering: %s/%s", res.Manifest.Items[3].Concept, res.Manifest.Items[2].Tone)
	}

	for _, path := range []string{res.Outputs.Manifest, res.Outputs.CSV, res.Outputs.Parquet, res.Outputs.Archive} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Missing output %s: %v", path, err)
		}
	}
}

func TestRunProviderFallback(t *testing.T) {
	opts := testOptions(t)
	opts.Images = failingProvider{}

	res, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Manifest.Items) != 30 {
		t.Fatalf("Expected 30 items, got %d", len(res.Manifest.Items))
	}
	if res.Stats.ImageFallbacks != 10 {
		t.Errorf("Expected 10 image fallbacks, got %d", res.Stats.ImageFallbacks)
	}
	if res.Manifest.Provider != "ai_horde" {
		t.Errorf("Expected manifest provider ai_horde, got %s", res.Manifest.Provider)
	}
	for _, item := range res.Manifest.Items {
		if item.ProviderUsed != "ai_horde" {
			t.Errorf("Expected provider_used ai_horde, got %s", item.ProviderUsed)
		}
	}
}

func TestRunCompositeFailureKeepsRawImage(t *testing.T) {
	opts := testOptions(t)
	opts.LogoPath = filepath.Join(t.TempDir(), "missing.png")
	opts.PerConcept = 2

	res, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.CompositeFailures != 20 {
		t.Errorf("Expected 20 composite failures, got %d", res.Stats.CompositeFailures)
	}
	if len(res.Manifest.Items) != 60 {
		t.Errorf("Expected 60 items, got %d", len(res.Manifest.Items))
	}
	for _, item := range res.Manifest.Items {
		if _, err := os.Stat(filepath.Join(res.OutDir, packager.ImagesDir, item.Filename)); err != nil {
			t.Errorf("Missing image %s: %v", item.Filename, err)
		}
	}
}

func TestRunDeterministicFilenames(t *testing.T) {
	a, err := Run(context.Background(), testOptions(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, err := Run(context.Background(), testOptions(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := range a.Manifest.Items {
		if a.Manifest.Items[i].Filename != b.Manifest.Items[i].Filename {
			t.Errorf("Item %d: %s != %s", i, a.Manifest.Items[i].Filename, b.Manifest.Items[i].Filename)
		}
	}
	if a.Manifest.RunID == b.Manifest.RunID {
		t.Errorf("Expected distinct run ids")
	}
}

func TestRunExistingOutDir(t *testing.T) {
	opts := testOptions(t)
	opts.NoArchive = true
	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	res, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.OutDir == opts.OutDir {
		t.Errorf("Expected a fresh output directory, got %s", res.OutDir)
	}
	if !strings.HasPrefix(res.OutDir, opts.OutDir+"_") {
		t.Errorf("Expected suffixed directory, got %s", res.OutDir)
	}
	if res.Outputs.Archive != "" {
		t.Errorf("Expected no archive, got %s", res.Outputs.Archive)
	}
}

func TestRunCancelledContext(t *testing.T) {
	opts := testOptions(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Manifest.Items) != 30 {
		t.Errorf("Expected 30 items after cancellation, got %d", len(res.Manifest.Items))
	}
}

func TestRunValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"no library", func(o *Options) { o.Library = nil }},
		{"no images", func(o *Options) { o.Images = nil }},
		{"no captions", func(o *Options) { o.Captions = nil }},
		{"no out dir", func(o *Options) { o.OutDir = "" }},
		{"bad size", func(o *Options) { o.Width = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t)
			tt.modify(&opts)
			if _, err := Run(context.Background(), opts); err == nil {
				t.Errorf("Expected error")
			}
		})
	}
}

func TestRunBudgetExpires(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	opts := testOptions(t)
	opts.Images = imagegen.NewHorde(imagegen.HordeOptions{
		BaseURL:      srv.URL,
		PollInterval: 10 * time.Millisecond,
		Timeout:      time.Second,
	})
	opts.Budget = time.Nanosecond

	res, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Manifest.Items) != 30 {
		t.Errorf("Expected 30 items, got %d", len(res.Manifest.Items))
	}
	if res.Stats.ImageFallbacks != 10 {
		t.Errorf("Expected 10 image fallbacks, got %d", res.Stats.ImageFallbacks)
	}
	for _, item := range res.Manifest.Items {
		if item.ProviderUsed != "ai_horde" {
			t.Errorf("Expected provider_used ai_horde, got %s", item.ProviderUsed)
		}
	}
}

func TestRunOutDirTrailingSeparator(t *testing.T) {
	tests := []struct {
		name     string
		existing bool
	}{
		{"new directory", false},
		{"existing directory", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t)
			base := opts.OutDir
			if tt.existing {
				if err := os.MkdirAll(base, 0755); err != nil {
					t.Fatalf("mkdir: %v", err)
				}
			}
			opts.OutDir = base + string(filepath.Separator)

			res, err := Run(context.Background(), opts)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if filepath.Dir(res.OutDir) != filepath.Dir(base) {
				t.Errorf("Expected run directory beside %s, got %s", base, res.OutDir)
			}
			if tt.existing && !strings.HasPrefix(res.OutDir, base+"_") {
				t.Errorf("Expected suffixed sibling of %s, got %s", base, res.OutDir)
			}
			if !tt.existing && res.OutDir != base {
				t.Errorf("Expected %s, got %s", base, res.OutDir)
			}
			if res.Outputs.Archive != res.OutDir+".zip" {
				t.Errorf("Expected archive %s.zip, got %s", res.OutDir, res.Outputs.Archive)
			}
			if filepath.Dir(res.Outputs.Archive) != filepath.Dir(base) {
				t.Errorf("Expected archive beside %s, got %s", base, res.Outputs.Archive)
			}
		})
	}
}
