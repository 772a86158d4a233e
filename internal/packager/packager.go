// Package packager writes the run outputs: the manifest, the flattened
// caption tables and the zip archive bundling everything.
package packager

import (
	"archive/zip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/creative-engine/internal/manifest"
	"github.com/parquet-go/parquet-go"
)

// Output file names inside the run directory and the archive.
const (
	ManifestFile = "manifest.json"
	CSVFile      = "captions.csv"
	ParquetFile  = "captions.parquet"
	ImagesDir    = "images"
)

// CSVHeader is the column order of the caption table.
var CSVHeader = []string{"filename", "concept", "seed", "tone", "headline", "body", "cta", "hashtags"}

// CaptionRow is one flattened manifest item.
type CaptionRow struct {
	Filename string `parquet:"filename"`
	Concept  string `parquet:"concept"`
	Seed     int64  `parquet:"seed"`
	Tone     string `parquet:"tone"`
	Headline string `parquet:"headline"`
	Body     string `parquet:"body"`
	CTA      string `parquet:"cta"`
	Hashtags string `parquet:"hashtags"`
}

// Outputs lists the files written by Package.
type Outputs struct {
	Manifest string
	CSV      string
	Parquet  string
	Archive  string
}

// Rows flattens manifest items; hashtags are joined with spaces.
func Rows(items []manifest.Item) []CaptionRow {
	rows := make([]CaptionRow, 0, len(items))
	for _, it := range items {
		rows = append(rows, CaptionRow{
			Filename: it.Filename,
			Concept:  it.Concept,
			Seed:     int64(it.Seed),
			Tone:     string(it.Tone),
			Headline: it.Caption.Headline,
			Body:     it.Caption.Body,
			CTA:      it.Caption.CTA,
			Hashtags: strings.Join(it.Caption.Hashtags, " "),
		})
	}
	return rows
}

// Package writes every output for m into outDir. When archivePath is empty
// no archive is created.
func Package(outDir, archivePath string, m manifest.Manifest) (*Outputs, error) {
	out := &Outputs{
		Manifest: filepath.Join(outDir, ManifestFile),
		CSV:      filepath.Join(outDir, CSVFile),
		Parquet:  filepath.Join(outDir, ParquetFile),
	}

	if err := WriteManifest(out.Manifest, m); err != nil {
		return nil, err
	}
	rows := Rows(m.Items)
	if err := WriteCaptionsCSV(out.CSV, rows); err != nil {
		return nil, err
	}
	if err := WriteCaptionsParquet(out.Parquet, rows); err != nil {
		return nil, err
	}

	if archivePath != "" {
		if err := Archive(archivePath, outDir); err != nil {
			return nil, err
		}
		out.Archive = archivePath
	}
	return out, nil
}

// WriteManifest writes m as indented JSON.
func WriteManifest(path string, m manifest.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// WriteCaptionsCSV writes the caption table with a header row.
func WriteCaptionsCSV(path string, rows []CaptionRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create captions csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Filename,
			r.Concept,
			strconv.FormatInt(r.Seed, 10),
			r.Tone,
			r.Headline,
			r.Body,
			r.CTA,
			r.Hashtags,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush captions csv: %w", err)
	}
	return f.Close()
}

// WriteCaptionsParquet writes the caption table as a parquet file.
func WriteCaptionsParquet(path string, rows []CaptionRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create captions parquet: %w", err)
	}
	defer f.Close()

	w := parquet.NewGenericWriter[CaptionRow](f)
	if _, err := w.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return f.Close()
}

// ReadCaptionsParquet loads a caption table written by WriteCaptionsParquet.
func ReadCaptionsParquet(path string) ([]CaptionRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open captions parquet: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	reader := parquet.NewGenericReader[CaptionRow](pf)
	defer reader.Close()

	rows := make([]CaptionRow, pf.NumRows())
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read parquet rows: %w", err)
	}
	return rows[:n], nil
}

// Archive bundles outDir/images/*, the manifest and the caption tables into
// a deflated zip at zipPath.
func Archive(zipPath, outDir string) error {
	f, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	entries, err := os.ReadDir(filepath.Join(outDir, ImagesDir))
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := addFile(zw, filepath.Join(outDir, ImagesDir, name), ImagesDir+"/"+name); err != nil {
			return err
		}
	}

	for _, name := range []string{ManifestFile, CSVFile, ParquetFile} {
		path := filepath.Join(outDir, name)
		if _, err := os.Stat(path); err != nil {
			slog.Debug("Skipping missing output in archive", "file", name)
			continue
		}
		if err := addFile(zw, path, name); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return f.Close()
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to write %s to archive: %w", name, err)
	}
	return nil
}
