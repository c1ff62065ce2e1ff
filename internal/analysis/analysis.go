// Package analysis derives summary statistics, rankings and chart files from
// the canonical labour-market table. Data-quality problems (empty input,
// unparseable cells, thin correlation samples) degrade to nil fields and
// placeholder charts; they are never errors. Only chart file I/O can fail.
package analysis

import (
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/pjanowski/regiolens/internal/dataset"
)

// RankingColumns are the display headers of every ranking table, in column
// order. Empty tables still carry these headers.
var RankingColumns = []string{"Województwo", "Stopa bezrobocia (%)", "Przeciętne wynagrodzenie (zł)"}

// Summary aggregates the latest available years and headline statistics.
// Nil fields mean the underlying data was absent or insufficient.
type Summary struct {
	LatestUnempYear       *int
	LatestWageYear        *int
	LatestBothYear        *int
	AvgUnemploymentLatest *float64
	AvgWageLatest         *float64
	CorrUnempVsWageLatest *float64
}

// RankingRow is one region in the unemployment ranking, with the wage from
// the latest wage year left-joined by unit id.
type RankingRow struct {
	Name         string
	Unemployment float64
	AvgWage      *float64
}

// Tables holds the full ranking plus its two slices. Ranking and Top5 read
// high-to-low; Bottom5 reads low-to-high.
type Tables struct {
	Ranking []RankingRow
	Top5    []RankingRow
	Bottom5 []RankingRow
}

// ChartPaths point at the rendered PNGs, relative to the static root.
type ChartPaths struct {
	Trend    string
	BarUnemp string
	Scatter  string
}

// Outputs is everything the presentation layer consumes.
type Outputs struct {
	Summary Summary
	Tables  Tables
	Charts  ChartPaths
}

// Build runs the full analytics pass: coercion, scale auto-correction,
// summary, rankings and the three chart files under chartsDir.
func Build(table dataset.Table, chartsDir string, style Style) (*Outputs, error) {
	if err := os.MkdirAll(chartsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating charts directory: %w", err)
	}

	data := CorrectScales(coerce(table))

	out := &Outputs{}
	if data.Empty() {
		charts, err := renderAllPlaceholders(chartsDir, style)
		if err != nil {
			return nil, err
		}
		out.Charts = charts
		return out, nil
	}

	latestUnemp := latestYear(data.Rows, func(r dataset.Row) bool { return r.Unemployment != nil })
	latestWage := latestYear(data.Rows, func(r dataset.Row) bool { return r.AvgWage != nil })
	latestBoth := latestYear(data.Rows, func(r dataset.Row) bool {
		return r.Unemployment != nil && r.AvgWage != nil
	})

	out.Summary = Summary{
		LatestUnempYear: latestUnemp,
		LatestWageYear:  latestWage,
		LatestBothYear:  latestBoth,
	}
	if latestUnemp != nil {
		out.Summary.AvgUnemploymentLatest = meanOf(data.Rows, *latestUnemp, unemploymentOf)
	}
	if latestWage != nil {
		out.Summary.AvgWageLatest = meanOf(data.Rows, *latestWage, wageOf)
	}
	if latestBoth != nil {
		out.Summary.CorrUnempVsWageLatest = correlation(data.Rows, *latestBoth)
	}

	out.Tables = buildTables(data.Rows, latestUnemp, latestWage)

	charts, err := renderCharts(data, latestUnemp, latestBoth, chartsDir, style)
	if err != nil {
		return nil, err
	}
	out.Charts = charts

	return out, nil
}

// coerce trims region identifiers, turning missing ones into empty strings,
// and copies the rows so scale correction never mutates the caller's table.
func coerce(t dataset.Table) dataset.Table {
	rows := make([]dataset.Row, len(t.Rows))
	copy(rows, t.Rows)
	for i := range rows {
		rows[i].UnitID = strings.TrimSpace(rows[i].UnitID)
		rows[i].UnitName = strings.TrimSpace(rows[i].UnitName)
	}
	return dataset.Table{Rows: rows}
}

// CorrectScales fixes two known upstream scale inconsistencies, once,
// table-wide: a median unemployment rate in (0, 1] means the column arrived
// as a fraction and is multiplied by 100; a median wage in (1, 500) means
// truncated currency units, also multiplied by 100. Medians ignore nils.
func CorrectScales(t dataset.Table) dataset.Table {
	if med, ok := median(t.Rows, unemploymentOf); ok && med > 0 && med <= 1.0 {
		for i := range t.Rows {
			if v := t.Rows[i].Unemployment; v != nil {
				scaled := *v * 100.0
				t.Rows[i].Unemployment = &scaled
			}
		}
	}
	if med, ok := median(t.Rows, wageOf); ok && med > 1.0 && med < 500.0 {
		for i := range t.Rows {
			if v := t.Rows[i].AvgWage; v != nil {
				scaled := *v * 100.0
				t.Rows[i].AvgWage = &scaled
			}
		}
	}
	return t
}

func unemploymentOf(r dataset.Row) *float64 { return r.Unemployment }
func wageOf(r dataset.Row) *float64         { return r.AvgWage }

func median(rows []dataset.Row, metric func(dataset.Row) *float64) (float64, bool) {
	var xs []float64
	for _, r := range rows {
		if v := metric(r); v != nil {
			xs = append(xs, *v)
		}
	}
	if len(xs) == 0 {
		return 0, false
	}
	sort.Float64s(xs)
	return stat.Quantile(0.5, stat.LinInterp, xs, nil), true
}

func latestYear(rows []dataset.Row, ok func(dataset.Row) bool) *int {
	var best *int
	for _, r := range rows {
		if !ok(r) {
			continue
		}
		if best == nil || r.Year > *best {
			y := r.Year
			best = &y
		}
	}
	return best
}

func meanOf(rows []dataset.Row, year int, metric func(dataset.Row) *float64) *float64 {
	var xs []float64
	for _, r := range rows {
		if r.Year != year {
			continue
		}
		if v := metric(r); v != nil {
			xs = append(xs, *v)
		}
	}
	if len(xs) == 0 {
		return nil
	}
	m := stat.Mean(xs, nil)
	return &m
}

// correlation computes Pearson's r between unemployment and wage over the
// latest common year. It needs at least 3 paired rows and at least 2
// distinct values per metric; a NaN result is absent, not zero.
func correlation(rows []dataset.Row, year int) *float64 {
	var unemp, wage []float64
	for _, r := range rows {
		if r.Year != year || r.Unemployment == nil || r.AvgWage == nil {
			continue
		}
		unemp = append(unemp, *r.Unemployment)
		wage = append(wage, *r.AvgWage)
	}
	if len(unemp) < 3 {
		return nil
	}
	if distinct(unemp) < 2 || distinct(wage) < 2 {
		return nil
	}
	c := stat.Correlation(unemp, wage, nil)
	if math.IsNaN(c) {
		return nil
	}
	return &c
}

func distinct(xs []float64) int {
	seen := make(map[float64]struct{}, len(xs))
	for _, x := range xs {
		seen[x] = struct{}{}
	}
	return len(seen)
}

// buildTables assembles the unemployment ranking for the latest unemployment
// year, wages joined from the latest wage year. Regions without a name get a
// synthesized "ID: <unitId>" label.
func buildTables(rows []dataset.Row, latestUnemp, latestWage *int) Tables {
	if latestUnemp == nil {
		return Tables{}
	}

	wageByUnit := make(map[string]*float64)
	if latestWage != nil {
		for _, r := range rows {
			if r.Year == *latestWage {
				wageByUnit[r.UnitID] = r.AvgWage
			}
		}
	}

	var ranking []RankingRow
	for _, r := range rows {
		if r.Year != *latestUnemp || r.Unemployment == nil {
			continue
		}
		name := r.UnitName
		if name == "" {
			name = "ID: " + r.UnitID
		}
		ranking = append(ranking, RankingRow{
			Name:         name,
			Unemployment: *r.Unemployment,
			AvgWage:      wageByUnit[r.UnitID],
		})
	}

	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Unemployment > ranking[j].Unemployment
	})

	top5 := ranking
	if len(top5) > 5 {
		top5 = top5[:5]
	}

	// Bottom5 is re-sorted ascending on its own copy so the full ranking
	// keeps its descending order.
	tail := ranking
	if len(tail) > 5 {
		tail = tail[len(tail)-5:]
	}
	bottom5 := make([]RankingRow, len(tail))
	copy(bottom5, tail)
	sort.SliceStable(bottom5, func(i, j int) bool {
		return bottom5[i].Unemployment < bottom5[j].Unemployment
	})

	return Tables{Ranking: ranking, Top5: top5, Bottom5: bottom5}
}

// renderCharts writes the three chart files, degrading each to a placeholder
// when its series is absent.
func renderCharts(data dataset.Table, latestUnemp, latestBoth *int, chartsDir string, style Style) (ChartPaths, error) {
	var charts ChartPaths

	yearly := yearlyMeans(data.Rows)
	if err := renderTrend(yearly, filepath.Join(chartsDir, trendFile), style); err != nil {
		return charts, err
	}
	charts.Trend = relPath(trendFile)

	bars := barEntries(data.Rows, latestUnemp)
	if len(bars) == 0 || latestUnemp == nil {
		if err := renderPlaceholder(filepath.Join(chartsDir, barFile), msgNoBarData, style); err != nil {
			return charts, err
		}
	} else if err := renderBar(bars, *latestUnemp, filepath.Join(chartsDir, barFile), style); err != nil {
		return charts, err
	}
	charts.BarUnemp = relPath(barFile)

	points := scatterPoints(data.Rows, latestBoth)
	if len(points) < 2 || latestBoth == nil {
		if err := renderPlaceholder(filepath.Join(chartsDir, scatterFile), msgNoScatterData, style); err != nil {
			return charts, err
		}
	} else if err := renderScatter(points, *latestBoth, filepath.Join(chartsDir, scatterFile), style); err != nil {
		return charts, err
	}
	charts.Scatter = relPath(scatterFile)

	return charts, nil
}

func renderAllPlaceholders(chartsDir string, style Style) (ChartPaths, error) {
	for _, name := range []string{trendFile, barFile, scatterFile} {
		if err := renderPlaceholder(filepath.Join(chartsDir, name), msgNoData, style); err != nil {
			return ChartPaths{}, err
		}
	}
	return ChartPaths{
		Trend:    relPath(trendFile),
		BarUnemp: relPath(barFile),
		Scatter:  relPath(scatterFile),
	}, nil
}

func relPath(name string) string { return path.Join(chartURLPrefix, name) }

// yearlyPoint is one year's mean of each metric across regions; a nil mean
// means no region reported that metric that year.
type yearlyPoint struct {
	year  int
	unemp *float64
	wage  *float64
}

func yearlyMeans(rows []dataset.Row) []yearlyPoint {
	years := make(map[int]struct{})
	for _, r := range rows {
		years[r.Year] = struct{}{}
	}
	sorted := make([]int, 0, len(years))
	for y := range years {
		sorted = append(sorted, y)
	}
	sort.Ints(sorted)

	out := make([]yearlyPoint, 0, len(sorted))
	for _, y := range sorted {
		out = append(out, yearlyPoint{
			year:  y,
			unemp: meanOf(rows, y, unemploymentOf),
			wage:  meanOf(rows, y, wageOf),
		})
	}
	return out
}

type barEntry struct {
	label string
	value float64
}

// barEntries lists regions of the latest unemployment year sorted ascending,
// so the highest rate ends up as the top bar.
func barEntries(rows []dataset.Row, latestUnemp *int) []barEntry {
	if latestUnemp == nil {
		return nil
	}
	var out []barEntry
	for _, r := range rows {
		if r.Year != *latestUnemp || r.Unemployment == nil {
			continue
		}
		label := r.UnitName
		if label == "" {
			label = r.UnitID
		}
		out = append(out, barEntry{label: label, value: *r.Unemployment})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].value < out[j].value })
	return out
}

type scatterPoint struct {
	wage  float64
	unemp float64
}

func scatterPoints(rows []dataset.Row, latestBoth *int) []scatterPoint {
	if latestBoth == nil {
		return nil
	}
	var out []scatterPoint
	for _, r := range rows {
		if r.Year != *latestBoth || r.Unemployment == nil || r.AvgWage == nil {
			continue
		}
		out = append(out, scatterPoint{wage: *r.AvgWage, unemp: *r.Unemployment})
	}
	return out
}
