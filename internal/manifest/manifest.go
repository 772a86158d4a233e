package manifest

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/creative-engine/internal/captions"
)

// Item records one image in one tone.
type Item struct {
	Filename     string           `json:"filename"`
	Concept      string           `json:"concept"`
	Repetition   int              `json:"repetition"`
	Seed         uint32           `json:"seed"`
	ProviderUsed string           `json:"provider_used"`
	Tone         captions.Tone    `json:"tone"`
	Caption      captions.Caption `json:"caption"`
	Prompt       string           `json:"prompt"`
}

// Manifest is the complete record of a run.
type Manifest struct {
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
	ProductDesc string    `json:"product_desc"`
	Provider    string    `json:"provider"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Items       []Item    `json:"items"`
}

// Accumulator collects items from concurrent workers.
type Accumulator struct {
	mu           sync.Mutex
	manifest     Manifest
	conceptOrder map[string]int
}

// NewAccumulator starts a manifest. conceptOrder lists concepts in the order
// items should be sorted by Finalize.
func NewAccumulator(productDesc, provider string, width, height int, conceptOrder []string) *Accumulator {
	order := make(map[string]int, len(conceptOrder))
	for i, c := range conceptOrder {
		order[c] = i
	}
	return &Accumulator{
		manifest: Manifest{
			RunID:       uuid.NewString(),
			CreatedAt:   time.Now().UTC(),
			ProductDesc: productDesc,
			Provider:    provider,
			Width:       width,
			Height:      height,
			Items:       []Item{},
		},
		conceptOrder: order,
	}
}

// Append adds items in the given order.
func (a *Accumulator) Append(items ...Item) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.manifest.Items = append(a.manifest.Items, items...)
}

// RunID identifies the run being accumulated.
func (a *Accumulator) RunID() string {
	return a.manifest.RunID
}

// Len returns the number of items collected so far.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.manifest.Items)
}

// Finalize sorts the items by concept order, repetition and tone and
// returns a copy of the manifest.
func (a *Accumulator) Finalize() Manifest {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.manifest
	m.Items = append([]Item(nil), a.manifest.Items...)
	sort.SliceStable(m.Items, func(i, j int) bool {
		x, y := m.Items[i], m.Items[j]
		if cx, cy := a.rank(x.Concept), a.rank(y.Concept); cx != cy {
			return cx < cy
		}
		if x.Concept != y.Concept {
			return x.Concept < y.Concept
		}
		if x.Repetition != y.Repetition {
			return x.Repetition < y.Repetition
		}
		return captions.ToneIndex(x.Tone) < captions.ToneIndex(y.Tone)
	})
	return m
}

func (a *Accumulator) rank(concept string) int {
	if i, ok := a.conceptOrder[concept]; ok {
		return i
	}
	return len(a.conceptOrder)
}
