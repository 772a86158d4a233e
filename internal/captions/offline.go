package captions

import (
	"context"
	"fmt"
)

type template struct {
	headline string
	body     string
	cta      string
}

var templates = map[Tone]template{
	ToneFormal: {
		headline: "Premium performance, reliable every day.",
		body:     "The %s combines refined design with lasting durability — perfect for daily use.",
		cta:      "Shop now",
	},
	ToneWitty: {
		headline: "Sip smarter, not harder.",
		body:     "This %s keeps your drink hot and your hands happy. Fancy that!",
		cta:      "Get it",
	},
	ToneUrgent: {
		headline: "Limited stock — grab yours now!",
		body:     "Hurry — %s selling fast. Take it before it's gone.",
		cta:      "Buy now",
	},
}

var defaultHashtags = []string{"#design", "#everyday", "#musthave"}

// Offline fills a static template per tone. Unknown tones use the formal
// entry.
type Offline struct{}

// NewOffline returns the template provider.
func NewOffline() *Offline {
	return &Offline{}
}

// Name returns "offline".
func (o *Offline) Name() string {
	return SelectOffline
}

// Caption renders the template for tone.
func (o *Offline) Caption(_ context.Context, product, _ string, tone Tone) Caption {
	return offlineCaption(product, tone)
}

func offlineCaption(product string, tone Tone) Caption {
	t, ok := templates[tone]
	if !ok {
		t = templates[ToneFormal]
	}
	return Caption{
		Headline: t.headline,
		Body:     fmt.Sprintf(t.body, product),
		CTA:      t.cta,
		Hashtags: append([]string(nil), defaultHashtags...),
	}
}
