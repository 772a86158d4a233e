package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/creative-engine/internal/captions"
	"github.com/lehigh-university-libraries/creative-engine/internal/compositor"
	"github.com/lehigh-university-libraries/creative-engine/internal/config"
	"github.com/lehigh-university-libraries/creative-engine/internal/imagegen"
	"github.com/lehigh-university-libraries/creative-engine/internal/pipeline"
)

type generateFlags struct {
	logo        string
	product     string
	productDesc string
	out         string
	provider    string
	captions    string
	perConcept  int
	width       int
	height      int
	concurrency int
	concepts    string
	anchor      string
	logoScale   float64
	margin      int
	budget      time.Duration
	noArchive   bool
}

func newGenerateCmd() *cobra.Command {
	var f generateFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate branded creatives for a product",
		Long: `Generates images for every concept in the library, composites the logo,
writes captions in each tone and packages everything into an output
directory and zip archive.

Credentials for remote providers are read from the environment (or .env):
STABLEHORDE_API_KEY, HUGGINGFACE_API_TOKEN, GEMINI_API_KEY, OPENAI_API_KEY.`,
		Example: `  # Fully offline run
  creative-engine generate --logo logo.png --product matte_black_mug.jpg --captions offline

  # AI Horde images with Hugging Face captions
  creative-engine generate --logo logo.png --product mug.jpg \
    --product-desc "Matte Black Travel Mug 12oz" --provider ai_horde --per-concept 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.logo, "logo", "", "Logo image to composite (required)")
	cmd.Flags().StringVar(&f.product, "product", "", "Product image (required)")
	cmd.Flags().StringVar(&f.productDesc, "product-desc", "", "Product description (default: derived from the product file name)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "out_creatives", "Output directory")
	cmd.Flags().StringVar(&f.provider, "provider", string(imagegen.KindMock), "Image provider (mock, ai_horde)")
	cmd.Flags().StringVar(&f.captions, "captions", captions.SelectHuggingFace, "Caption provider ("+strings.Join(captions.Selectors, ", ")+")")
	cmd.Flags().IntVar(&f.perConcept, "per-concept", 1, "Images per concept")
	cmd.Flags().IntVar(&f.width, "width", 1024, "Image width")
	cmd.Flags().IntVar(&f.height, "height", 1024, "Image height")
	cmd.Flags().IntVarP(&f.concurrency, "concurrency", "c", 4, "Number of concurrent workers")
	cmd.Flags().StringVar(&f.concepts, "concepts", "", "YAML concept library (default: built-in)")
	cmd.Flags().StringVar(&f.anchor, "anchor", string(compositor.BottomRight), "Logo anchor (bottom_right, bottom_left, top_left, center)")
	cmd.Flags().Float64Var(&f.logoScale, "logo-scale", 0.12, "Logo width as a fraction of image width")
	cmd.Flags().IntVar(&f.margin, "margin", 40, "Logo margin in pixels")
	cmd.Flags().DurationVar(&f.budget, "budget", 0, "Overall time budget, e.g. 10m (0 = none)")
	cmd.Flags().BoolVar(&f.noArchive, "no-archive", false, "Skip the zip archive")

	_ = cmd.MarkFlagRequired("logo")
	_ = cmd.MarkFlagRequired("product")

	return cmd
}

func runGenerate(cmd *cobra.Command, f generateFlags) error {
	for _, p := range []string{f.logo, f.product} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("input not found: %s", p)
		}
	}

	desc := strings.TrimSpace(f.productDesc)
	if desc == "" {
		desc = describeFromPath(f.product)
	}

	lib, err := loadLibrary(f.concepts)
	if err != nil {
		return err
	}

	kind, err := imagegen.ParseKind(f.provider)
	if err != nil {
		return err
	}
	anchor, err := compositor.ParseAnchor(f.anchor)
	if err != nil {
		return err
	}

	cfg := config.Load()
	images, err := imagegen.New(kind, cfg)
	if err != nil {
		return err
	}
	captioner, err := captions.New(f.captions, cfg)
	if err != nil {
		return err
	}

	res, err := pipeline.Run(cmd.Context(), pipeline.Options{
		Library:     lib,
		ProductDesc: desc,
		LogoPath:    f.logo,
		OutDir:      f.out,
		Images:      images,
		Captions:    captioner,
		PerConcept:  f.perConcept,
		Width:       f.width,
		Height:      f.height,
		Concurrency: f.concurrency,
		Composite: compositor.Options{
			Anchor: anchor,
			Scale:  f.logoScale,
			Margin: f.margin,
		},
		Budget:    f.budget,
		NoArchive: f.noArchive,
	})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\nRun %s\n", res.Manifest.RunID)
	fmt.Fprintf(w, "  Images:             %d\n", res.Stats.Images)
	fmt.Fprintf(w, "  Captions:           %d\n", len(res.Manifest.Items))
	fmt.Fprintf(w, "  Image fallbacks:    %d\n", res.Stats.ImageFallbacks)
	fmt.Fprintf(w, "  Composite failures: %d\n", res.Stats.CompositeFailures)
	fmt.Fprintf(w, "  Caption fallbacks:  %d\n", res.Stats.CaptionFallbacks)
	fmt.Fprintf(w, "\nOutputs saved to: %s\n", res.OutDir)
	if res.Outputs.Archive != "" {
		fmt.Fprintf(w, "Archive: %s\n", res.Outputs.Archive)
	}
	return nil
}

// describeFromPath turns "matte_black_mug.jpg" into "matte black mug".
func describeFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.ReplaceAll(stem, "_", " ")
}
