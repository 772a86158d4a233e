// Package compositor places the brand overlay onto generated images.
package compositor

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/image/draw"
	// AI Horde r2 results are WebP.
	_ "golang.org/x/image/webp"
)

// JPEGQuality is the encoder quality for JPEG output.
const JPEGQuality = 95

// Anchor names the corner (or center) the overlay is pinned to.
type Anchor string

const (
	BottomRight Anchor = "bottom_right"
	BottomLeft  Anchor = "bottom_left"
	TopLeft     Anchor = "top_left"
	Center      Anchor = "center"
)

// ParseAnchor validates an anchor name.
func ParseAnchor(s string) (Anchor, error) {
	switch a := Anchor(strings.ToLower(strings.TrimSpace(s))); a {
	case BottomRight, BottomLeft, TopLeft, Center:
		return a, nil
	default:
		return "", fmt.Errorf("unsupported anchor: %s (supported: bottom_right, bottom_left, top_left, center)", s)
	}
}

// Options controls overlay size and placement.
type Options struct {
	Anchor Anchor
	// Scale is the overlay width as a fraction of the base width.
	Scale float64
	// Margin is the distance in pixels from the anchored edges.
	Margin int
}

// DefaultOptions pins a 12% wide overlay 40px from the bottom right corner.
func DefaultOptions() Options {
	return Options{Anchor: BottomRight, Scale: 0.12, Margin: 40}
}

// Compositor applies one overlay image to many base images. It is safe for
// concurrent use.
type Compositor struct {
	overlayPath string
	opts        Options

	once    sync.Once
	overlay image.Image
	loadErr error

	scaled *cache.Cache
}

// New returns a compositor for the overlay at overlayPath. The overlay is
// decoded on first use, so a broken asset surfaces as a per-image error.
func New(overlayPath string, opts Options) *Compositor {
	return &Compositor{
		overlayPath: overlayPath,
		opts:        opts,
		scaled:      cache.New(30*time.Minute, time.Hour),
	}
}

// Composite is the one-shot form of Compositor.Composite.
func Composite(basePath, overlayPath, destPath string, opts Options) (string, error) {
	return New(overlayPath, opts).Composite(basePath, destPath)
}

// Composite draws the overlay onto the image at basePath and writes the
// flattened result to destPath. The output has the base image's size. It is
// encoded as PNG when destPath ends in .png and as JPEG otherwise.
func (c *Compositor) Composite(basePath, destPath string) (string, error) {
	c.once.Do(func() {
		c.overlay, c.loadErr = decodeFile(c.overlayPath)
	})
	if c.loadErr != nil {
		return "", fmt.Errorf("failed to load overlay: %w", c.loadErr)
	}

	base, err := decodeFile(basePath)
	if err != nil {
		return "", fmt.Errorf("failed to load base image: %w", err)
	}

	bounds := base.Bounds()
	bw, bh := bounds.Dx(), bounds.Dy()

	logo := c.scaledOverlay(bw)
	lb := logo.Bounds()
	at := Placement(c.opts.Anchor, bw, bh, lb.Dx(), lb.Dy(), c.opts.Margin)

	canvas := image.NewRGBA(image.Rect(0, 0, bw, bh))
	draw.Draw(canvas, canvas.Bounds(), base, bounds.Min, draw.Src)
	draw.Draw(canvas, image.Rectangle{Min: at, Max: at.Add(lb.Size())}, logo, lb.Min, draw.Over)

	out := image.NewRGBA(canvas.Bounds())
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), canvas, image.Point{}, draw.Over)

	if err := encodeFile(destPath, out); err != nil {
		return "", err
	}
	return destPath, nil
}

// scaledOverlay returns the overlay resized for a base of width baseWidth.
// When the target size is degenerate the overlay is used at natural size.
func (c *Compositor) scaledOverlay(baseWidth int) image.Image {
	ob := c.overlay.Bounds()
	w, h := TargetSize(baseWidth, ob.Dx(), ob.Dy(), c.opts.Scale)
	if w <= 0 || h <= 0 {
		return c.overlay
	}

	key := strconv.Itoa(w) + "x" + strconv.Itoa(h)
	if cached, ok := c.scaled.Get(key); ok {
		return cached.(image.Image)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), c.overlay, ob, draw.Src, nil)
	c.scaled.SetDefault(key, image.Image(dst))
	return dst
}

// TargetSize computes the overlay size for a base of width baseWidth,
// preserving the overlay's aspect ratio. Results may be non-positive for
// degenerate inputs.
func TargetSize(baseWidth, overlayWidth, overlayHeight int, scale float64) (int, int) {
	w := int(float64(baseWidth) * scale)
	ratio := 1.0
	if overlayWidth > 0 {
		ratio = float64(w) / float64(overlayWidth)
	}
	h := int(float64(overlayHeight) * ratio)
	return w, h
}

// Placement returns the top-left corner of a w×h overlay on a bw×bh base.
// The center anchor ignores margin. Unknown anchors are treated as center.
func Placement(anchor Anchor, bw, bh, w, h, margin int) image.Point {
	switch anchor {
	case BottomRight:
		return image.Pt(bw-w-margin, bh-h-margin)
	case BottomLeft:
		return image.Pt(margin, bh-h-margin)
	case TopLeft:
		return image.Pt(margin, margin)
	default:
		return image.Pt((bw-w)/2, (bh-h)/2)
	}
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

func encodeFile(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output image: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".png") {
		err = png.Encode(f, img)
	} else {
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: JPEGQuality})
	}
	if err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to encode output image: %w", err)
	}
	return f.Close()
}
