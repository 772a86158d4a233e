package imagegen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	syntheticMargin    = 30
	syntheticPromptMax = 200
)

var (
	syntheticBackground = color.RGBA{245, 245, 245, 255}
	syntheticInk        = color.RGBA{30, 30, 30, 255}
)

// Synthetic renders placeholder images locally. It is used for offline runs
// and as the fallback for every other provider.
type Synthetic struct{}

// NewSynthetic returns the offline provider.
func NewSynthetic() *Synthetic {
	return &Synthetic{}
}

// Kind reports KindMock.
func (s *Synthetic) Kind() Kind {
	return KindMock
}

// Generate draws the seed and the start of the prompt on a neutral canvas.
// The context is not consulted so the fallback path still works after a
// deadline has passed.
func (s *Synthetic) Generate(_ context.Context, req Request) (*RawImage, error) {
	data, err := renderPlaceholder(req.Width, req.Height, req.Seed, req.Prompt)
	if err != nil {
		return nil, err
	}
	path, err := writeTemp(data)
	if err != nil {
		return nil, err
	}
	return &RawImage{Path: path, Request: req}, nil
}

func renderPlaceholder(width, height int, seed uint32, prompt string) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{syntheticBackground}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(syntheticInk),
		Face: face,
	}

	lines := []string{"MOCK IMAGE", fmt.Sprintf("seed:%d", seed)}
	lines = append(lines, wrap(truncateRunes(prompt, syntheticPromptMax), (width-2*syntheticMargin)/face.Advance)...)

	lineHeight := face.Height + 2
	y := syntheticMargin + face.Ascent
	for _, line := range lines {
		if y > height {
			break
		}
		d.Dot = fixed.P(syntheticMargin, y)
		d.DrawString(line)
		y += lineHeight
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// wrap breaks s into lines of at most width runes.
func wrap(s string, width int) []string {
	if width <= 0 {
		width = 1
	}
	r := []rune(s)
	var lines []string
	for len(r) > width {
		lines = append(lines, string(r[:width]))
		r = r[width:]
	}
	if len(r) > 0 {
		lines = append(lines, string(r))
	}
	return lines
}
