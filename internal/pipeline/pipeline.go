// Package pipeline composes the BDL client, normalizer and cache into the
// load-or-refresh flow that produces the canonical labour-market table.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pjanowski/regiolens/internal/bdl"
	"github.com/pjanowski/regiolens/internal/cache"
	"github.com/pjanowski/regiolens/internal/dataset"
)

const (
	// CacheKey identifies the labour-market dataset under the cache
	// directory. Bumped to v2 when the wage metric was added so old
	// single-metric caches are never reused.
	CacheKey = "bdl_labour_market_v2"

	// Voivodeship-level data.
	unitLevel = 2

	searchPageSize   = 100
	defaultStartYear = 2015
)

// Options configure a pipeline run.
type Options struct {
	CacheDir    string
	MaxAgeHours int
	ClientID    string
	BaseURL     string
	StartYear   int
}

// variableFilter is the strict selection rule for one metric: required unit
// substrings (any), required name substrings (any) and rejected name
// substrings, all case-insensitive. The rejects weed out indexed/dynamics
// variants of the indicator.
type variableFilter struct {
	phrase  string
	units   []string
	names   []string
	rejects []string
}

var (
	unemploymentFilter = variableFilter{
		phrase:  "stopa bezrobocia rejestrowanego",
		units:   []string{"%"},
		names:   []string{"bezrobocia", "stopa"},
		rejects: []string{"dynamika", "indeks", "rok poprzedni", "2015=100", "100=rok"},
	}
	wageFilter = variableFilter{
		phrase:  "przeciętne miesięczne wynagrodzenia brutto",
		units:   []string{"zł", "pln"},
		names:   []string{"wynagrod", "miesięcz"},
		rejects: []string{"dynamika", "indeks", "rok poprzedni", "2015=100", "100=rok"},
	}
)

// LoadOrRefresh returns the cached table when it is still fresh, loadable and
// non-empty, otherwise refreshes from the BDL API. A fresh cache hit never
// touches the network.
func LoadOrRefresh(ctx context.Context, opts Options) (dataset.Table, error) {
	if cache.IsFresh(opts.CacheDir, CacheKey, opts.MaxAgeHours) {
		t, err := cache.Load(opts.CacheDir, CacheKey)
		switch {
		case err != nil:
			// Fresh metadata but an unreadable data artifact: treat as
			// stale and refetch rather than surfacing a parse failure.
			log.Printf("Cache data for %s unreadable (%v); refreshing", CacheKey, err)
		case t.Empty():
			log.Printf("Cache data for %s is empty; refreshing", CacheKey)
		default:
			return t, nil
		}
	}
	return Refresh(ctx, opts)
}

// Refresh fetches both metrics from upstream, bypassing the freshness gate,
// and rewrites the cache. Any client failure propagates; no partial dataset
// is ever returned or cached.
func Refresh(ctx context.Context, opts Options) (dataset.Table, error) {
	client := bdl.NewClient(opts.BaseURL, opts.ClientID, 0)

	vUnemp, err := pickVariableStrict(ctx, client, unemploymentFilter)
	if err != nil {
		return dataset.Table{}, err
	}
	vWage, err := pickVariableStrict(ctx, client, wageFilter)
	if err != nil {
		return dataset.Table{}, err
	}
	log.Printf("Selected variables: unemployment=%d (%s), wage=%d (%s)",
		vUnemp.ID, vUnemp.Name, vWage.ID, vWage.Name)

	years := yearRange(opts.StartYear)
	fetchOpts := bdl.FetchOptions{UnitLevel: unitLevel}

	rowsUnemp, err := client.GetDataByVariable(ctx, vUnemp.ID, years, fetchOpts)
	if err != nil {
		return dataset.Table{}, err
	}
	rowsWage, err := client.GetDataByVariable(ctx, vWage.ID, years, fetchOpts)
	if err != nil {
		return dataset.Table{}, err
	}

	table := dataset.Merge(dataset.Normalize(rowsUnemp), dataset.Normalize(rowsWage))

	source := fmt.Sprintf("BDL vars: unemp=%d, wage=%d", vUnemp.ID, vWage.ID)
	if err := cache.Save(opts.CacheDir, CacheKey, table, source); err != nil {
		return dataset.Table{}, err
	}

	log.Printf("Refreshed dataset: %d rows (%s)", len(table.Rows), source)
	return table, nil
}

// strictScore ranks filter survivors: lower hierarchy level first, then
// phrase-in-name. Fields compare in declaration order.
type strictScore struct {
	levelScore int
	nameMatch  int
}

func (s strictScore) less(o strictScore) bool {
	if s.levelScore != o.levelScore {
		return s.levelScore < o.levelScore
	}
	return s.nameMatch < o.nameMatch
}

// pickVariableStrict collects candidates for the filter's phrase, keeps only
// those passing the unit/name/reject rules, and picks the best survivor.
// When nothing survives it falls back to the client's looser heuristic.
func pickVariableStrict(ctx context.Context, client *bdl.Client, f variableFilter) (bdl.Variable, error) {
	candidates, err := client.SearchVariables(ctx, f.phrase, searchPageSize)
	if err != nil {
		return bdl.Variable{}, err
	}

	var filtered []bdl.Variable
	for _, v := range candidates {
		if f.matches(v) {
			filtered = append(filtered, v)
		}
	}

	if len(filtered) == 0 {
		preferUnit := ""
		if len(f.units) > 0 {
			preferUnit = f.units[0]
		}
		return client.PickBestVariable(ctx, f.phrase, preferUnit)
	}

	best := filtered[0]
	bestScore := scoreStrict(best, f.phrase)
	for _, v := range filtered[1:] {
		if s := scoreStrict(v, f.phrase); bestScore.less(s) {
			best, bestScore = v, s
		}
	}
	return best, nil
}

func scoreStrict(v bdl.Variable, phrase string) strictScore {
	var s strictScore
	if v.Level != nil && *v.Level < 10 {
		s.levelScore = 10 - *v.Level
	}
	if strings.Contains(strings.ToLower(v.Name), strings.ToLower(phrase)) {
		s.nameMatch = 1
	}
	return s
}

func (f variableFilter) matches(v bdl.Variable) bool {
	name := strings.ToLower(v.Name)
	unit := strings.ToLower(v.MeasureUnit)

	if len(f.units) > 0 && !containsAny(unit, f.units) {
		return false
	}
	if len(f.names) > 0 && !containsAny(name, f.names) {
		return false
	}
	for _, r := range f.rejects {
		if strings.Contains(name, strings.ToLower(r)) {
			return false
		}
	}
	return true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func yearRange(start int) []int {
	if start <= 0 {
		start = defaultStartYear
	}
	end := time.Now().Year()
	years := make([]int, 0, end-start+1)
	for y := start; y <= end; y++ {
		years = append(years, y)
	}
	return years
}
