package packager

import (
	"archive/zip"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/lehigh-university-libraries/creative-engine/internal/captions"
	"github.com/lehigh-university-libraries/creative-engine/internal/manifest"
)

func sampleManifest() manifest.Manifest {
	return manifest.Manifest{
		RunID:       "run-1",
		ProductDesc: "Matte Black Travel Mug 12oz",
		Provider:    "mock",
		Width:       64,
		Height:      64,
		Items: []manifest.Item{
			{
				Filename:     "hero_v0_s42.jpg",
				Concept:      "hero",
				Seed:         42,
				ProviderUsed: "mock",
				Tone:         captions.ToneFormal,
				Caption: captions.Caption{
					Headline: "Headline, with comma",
					Body:     "Body",
					CTA:      "Shop now",
					Hashtags: []string{"#a", "#b"},
				},
				Prompt: "prompt",
			},
			{
				Filename:     "hero_v0_s42.jpg",
				Concept:      "hero",
				Seed:         42,
				ProviderUsed: "mock",
				Tone:         captions.ToneWitty,
				Caption:      captions.Caption{Headline: "H", Body: "B", CTA: "Get it", Hashtags: []string{}},
				Prompt:       "prompt",
			},
		},
	}
}

func TestRows(t *testing.T) {
	rows := Rows(sampleManifest().Items)
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0].Hashtags != "#a #b" {
		t.Errorf("Expected space joined hashtags, got %q", rows[0].Hashtags)
	}
	if rows[1].Hashtags != "" {
		t.Errorf("Expected empty hashtags, got %q", rows[1].Hashtags)
	}
	if rows[0].Seed != 42 || rows[0].Tone != "formal" {
		t.Errorf("Unexpected row: %+v", rows[0])
	}
}

func TestPackage(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "run")
	if err := os.MkdirAll(filepath.Join(outDir, ImagesDir), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, ImagesDir, "hero_v0_s42.jpg"), []byte("jpeg"), 0644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	m := sampleManifest()
	out, err := Package(outDir, filepath.Join(dir, "run.zip"), m)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}

	// manifest.json
	data, err := os.ReadFile(out.Manifest)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var decoded manifest.Manifest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if len(decoded.Items) != 2 || decoded.Items[0].Caption.Headline != "Headline, with comma" {
		t.Errorf("Unexpected manifest contents: %+v", decoded)
	}

	// captions.csv
	f, err := os.Open(out.CSV)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	records, err := csv.NewReader(f).ReadAll()
	f.Close()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected header + 2 rows, got %d", len(records))
	}
	for i, col := range CSVHeader {
		if records[0][i] != col {
			t.Errorf("header %d: expected %s, got %s", i, col, records[0][i])
		}
	}
	if records[1][4] != "Headline, with comma" || records[1][7] != "#a #b" || records[1][2] != "42" {
		t.Errorf("Unexpected csv row: %v", records[1])
	}

	// captions.parquet
	rows, err := ReadCaptionsParquet(out.Parquet)
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if len(rows) != 2 || rows[1].CTA != "Get it" {
		t.Errorf("Unexpected parquet rows: %+v", rows)
	}

	// archive
	zr, err := zip.OpenReader(out.Archive)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	want := []string{"captions.csv", "captions.parquet", "images/hero_v0_s42.jpg", "manifest.json"}
	if len(names) != len(want) {
		t.Fatalf("Expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Expected %s, got %s", want[i], names[i])
		}
	}
}

func TestPackageWithoutArchive(t *testing.T) {
	dir := t.TempDir()
	out, err := Package(dir, "", sampleManifest())
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	if out.Archive != "" {
		t.Errorf("Expected no archive, got %s", out.Archive)
	}
}
