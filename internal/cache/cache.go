// Package cache persists canonical tables as a pair of artifacts per dataset
// key: a gzip-compressed CSV data file and a JSON metadata file recording
// creation time and provenance. Each save fully rewrites both artifacts.
package cache

import (
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pjanowski/regiolens/internal/dataset"
)

const (
	dataSuffix = ".csv.gz"
	metaSuffix = ".meta.json"
)

var header = []string{"year", "unitId", "unitName", "unemployment_rate", "avg_wage"}

// Meta is the metadata artifact stored alongside a cached dataset.
type Meta struct {
	CreatedAtISO string `json:"created_at_iso"`
	Source       string `json:"source"`
}

// CreatedAt parses the creation timestamp.
func (m Meta) CreatedAt() (time.Time, error) {
	return time.Parse(time.RFC3339, m.CreatedAtISO)
}

func dataPath(dir, key string) string { return filepath.Join(dir, key+dataSuffix) }
func metaPath(dir, key string) string { return filepath.Join(dir, key+metaSuffix) }

// ReadMeta loads the metadata artifact for a key.
func ReadMeta(dir, key string) (*Meta, error) {
	b, err := os.ReadFile(metaPath(dir, key))
	if err != nil {
		return nil, fmt.Errorf("reading cache metadata: %w", err)
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parsing cache metadata: %w", err)
	}
	return &m, nil
}

// IsFresh reports whether the cached dataset is young enough to reuse.
// Age exactly equal to the limit still counts as fresh. Missing or
// unparseable metadata means not fresh, never an error.
func IsFresh(dir, key string, maxAgeHours int) bool {
	m, err := ReadMeta(dir, key)
	if err != nil {
		return false
	}
	created, err := m.CreatedAt()
	if err != nil {
		return false
	}
	age := time.Now().UTC().Sub(created.UTC())
	return age <= time.Duration(maxAgeHours)*time.Hour
}

// Save writes the table and its metadata, creating the directory if needed.
// Both artifacts belong to the same generation: metadata is written last so
// a reader that observes fresh metadata finds matching data.
func Save(dir, key string, t dataset.Table, source string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	if err := writeData(dataPath(dir, key), t); err != nil {
		return fmt.Errorf("writing cache data: %w", err)
	}

	m := Meta{
		CreatedAtISO: time.Now().UTC().Format(time.RFC3339),
		Source:       source,
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache metadata: %w", err)
	}
	if err := os.WriteFile(metaPath(dir, key), b, 0o644); err != nil {
		return fmt.Errorf("writing cache metadata: %w", err)
	}
	return nil
}

// Load deserializes the data artifact. Missing or corrupt files fail loudly;
// the caller decides whether that means refetch.
func Load(dir, key string) (dataset.Table, error) {
	f, err := os.Open(dataPath(dir, key))
	if err != nil {
		return dataset.Table{}, fmt.Errorf("opening cache data: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return dataset.Table{}, fmt.Errorf("reading cache data: %w", err)
	}
	defer gz.Close()

	records, err := csv.NewReader(gz).ReadAll()
	if err != nil {
		return dataset.Table{}, fmt.Errorf("parsing cache data: %w", err)
	}
	if len(records) == 0 {
		return dataset.Table{}, fmt.Errorf("cache data for %q has no header", key)
	}

	var t dataset.Table
	for _, rec := range records[1:] {
		if len(rec) != len(header) {
			return dataset.Table{}, fmt.Errorf("cache data for %q has a malformed row", key)
		}
		year, err := strconv.Atoi(rec[0])
		if err != nil {
			return dataset.Table{}, fmt.Errorf("parsing cached year %q: %w", rec[0], err)
		}
		unemp, err := parseCell(rec[3])
		if err != nil {
			return dataset.Table{}, fmt.Errorf("parsing cached unemployment %q: %w", rec[3], err)
		}
		wage, err := parseCell(rec[4])
		if err != nil {
			return dataset.Table{}, fmt.Errorf("parsing cached wage %q: %w", rec[4], err)
		}
		t.Rows = append(t.Rows, dataset.Row{
			Year:         year,
			UnitID:       rec[1],
			UnitName:     rec[2],
			Unemployment: unemp,
			AvgWage:      wage,
		})
	}
	return t, nil
}

func writeData(path string, t dataset.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(f)
	w := csv.NewWriter(gz)

	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	for _, r := range t.Rows {
		rec := []string{
			strconv.Itoa(r.Year),
			r.UnitID,
			r.UnitName,
			formatCell(r.Unemployment),
			formatCell(r.AvgWage),
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func parseCell(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
