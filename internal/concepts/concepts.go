package concepts

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBrandConstraints is interpolated into {brand_constraints}.
	DefaultBrandConstraints = "include brand colors, no extra logos"
	// DefaultNegative lists what the image model should avoid.
	DefaultNegative = "watermark, lowres, text, extra fingers, logo of other brands, nsfw, noisy, oversaturated"
	// NegativeMarker separates the prompt from the negative clause.
	NegativeMarker = " NEGATIVE_PROMPT: "
)

// Concept is a named visual theme with a prompt template.
type Concept struct {
	Name     string `yaml:"name"`
	Template string `yaml:"template"`
}

// Library is an ordered set of concepts plus the clauses shared by every prompt.
type Library struct {
	BrandConstraints string    `yaml:"brand_constraints"`
	Negative         string    `yaml:"negative"`
	Concepts         []Concept `yaml:"concepts"`
}

// Default returns the built-in ten concept library.
func Default() *Library {
	return &Library{
		BrandConstraints: DefaultBrandConstraints,
		Negative:         DefaultNegative,
		Concepts: []Concept{
			{Name: "hero", Template: "Hero shot — clean studio white background; {product}; centered; natural soft shadow; 50mm, shallow DOF; {brand_constraints}; high-detail, photorealistic; no text/watermarks"},
			{Name: "lifestyle", Template: "Lifestyle — {product} placed on a wooden cafe table near a latte, shallow DOF, warm golden-hour lighting, candid human hand interacting (no faces visible), {brand_constraints}; high-detail, photorealistic; no text/watermarks"},
			{Name: "flatlay", Template: "Flat-lay — top-down composition, {product} among related accessories, minimal clutter, brand color accents; high-detail, photorealistic; no text/watermarks"},
			{Name: "closeup", Template: "Close-up — macro shot of {product} texture and logo area, crisp details, soft gradient background; high-detail, photorealistic; no text/watermarks"},
			{Name: "duotone", Template: "Graphic duotone — {product} silhouette styled with brand palette duotone, high contrast, geometric shapes background; high-detail, photorealistic; no text/watermarks"},
			{Name: "seasonal", Template: "Seasonal festive — {product} with subtle holiday props (winter - snow-soft bokeh), cozy warm lighting, no religious icons, brand voice warm; high-detail, photorealistic; no text/watermarks"},
			{Name: "action", Template: "Action shot — {product} in motion (pouring or being grabbed), motion blur artfully used, dynamic angle, realistic; high-detail, photorealistic; no text/watermarks"},
			{Name: "minimal", Template: "Minimalist — {product} on a large negative-space backdrop with brand color accent, strong composition, subtle shadow, premium feel; high-detail, photorealistic; no text/watermarks"},
			{Name: "outdoor", Template: "Outdoor — {product} on a hiking trail bench, natural light, rugged props, realistic environmental integration; high-detail, photorealistic; no text/watermarks"},
			{Name: "mockup", Template: "Ad mockup — {product} with top-left reserved space for text, safe margins, high-contrast area for CTA overlay (do NOT render text in image); high-detail, photorealistic; no text/watermarks"},
		},
	}
}

// LoadFile reads a YAML concept library. Missing shared clauses fall back to
// the built-in ones.
func LoadFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read concept library: %w", err)
	}

	var lib Library
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("failed to parse concept library: %w", err)
	}
	if lib.BrandConstraints == "" {
		lib.BrandConstraints = DefaultBrandConstraints
	}
	if lib.Negative == "" {
		lib.Negative = DefaultNegative
	}
	if err := lib.Validate(); err != nil {
		return nil, err
	}
	return &lib, nil
}

// Validate checks that the library has at least one concept and that names
// are non-empty and unique.
func (l *Library) Validate() error {
	if len(l.Concepts) == 0 {
		return fmt.Errorf("concept library has no concepts")
	}
	seen := make(map[string]bool, len(l.Concepts))
	for i, c := range l.Concepts {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return fmt.Errorf("concept %d has no name", i)
		}
		if strings.ContainsAny(name, `/\ `) {
			return fmt.Errorf("concept name %q must not contain spaces or path separators", name)
		}
		if seen[name] {
			return fmt.Errorf("duplicate concept %q", name)
		}
		if strings.TrimSpace(c.Template) == "" {
			return fmt.Errorf("concept %q has an empty template", name)
		}
		seen[name] = true
	}
	return nil
}

// Names returns the concept names in library order.
func (l *Library) Names() []string {
	names := make([]string, len(l.Concepts))
	for i, c := range l.Concepts {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named concept, or -1.
func (l *Library) Index(name string) int {
	for i, c := range l.Concepts {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Prompt renders the concept's template for product and appends the
// negative clause.
func (l *Library) Prompt(c Concept, product string) string {
	r := strings.NewReplacer(
		"{product}", product,
		"{brand_constraints}", l.BrandConstraints,
	)
	return r.Replace(c.Template) + NegativeMarker + l.Negative
}

// YAML serializes the library.
func (l *Library) YAML() ([]byte, error) {
	data, err := yaml.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal concept library: %w", err)
	}
	return data, nil
}
