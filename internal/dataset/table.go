// Package dataset defines the canonical labour-market table and the
// normalization that reconciles the BDL API's response shapes into it.
package dataset

import "sort"

// Observation is one canonical row for a single metric: the value of that
// metric for one region in one year. A nil value means the upstream reported
// the cell but it did not parse to a number.
type Observation struct {
	Year     int
	UnitID   string
	UnitName string
	Value    *float64
}

// Row carries both metrics for one (year, region). Either metric may be nil
// when the region is missing from that metric's dataset.
type Row struct {
	Year         int
	UnitID       string
	UnitName     string
	Unemployment *float64
	AvgWage      *float64
}

// Table is the merged canonical table, ordered by (year, region name). It is
// the unit of caching and the analytics input.
type Table struct {
	Rows []Row
}

// Empty reports whether the table has no rows.
func (t Table) Empty() bool { return len(t.Rows) == 0 }

// Sort orders rows by (year, region name), with region id as a final
// tie-breaker so the order is deterministic.
func (t *Table) Sort() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		a, b := t.Rows[i], t.Rows[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.UnitName != b.UnitName {
			return a.UnitName < b.UnitName
		}
		return a.UnitID < b.UnitID
	})
}

// Merge outer-joins the two metrics on (year, unit id, unit name): a region
// present in only one metric still appears, with the other metric nil. The
// result is sorted.
func Merge(unemployment, wages []Observation) Table {
	type key struct {
		year             int
		unitID, unitName string
	}

	index := make(map[key]int, len(unemployment))
	rows := make([]Row, 0, len(unemployment))

	locate := func(o Observation) int {
		k := key{o.Year, o.UnitID, o.UnitName}
		if i, ok := index[k]; ok {
			return i
		}
		index[k] = len(rows)
		rows = append(rows, Row{Year: o.Year, UnitID: o.UnitID, UnitName: o.UnitName})
		return len(rows) - 1
	}

	for _, o := range unemployment {
		i := locate(o)
		rows[i].Unemployment = o.Value
	}
	for _, o := range wages {
		i := locate(o)
		rows[i].AvgWage = o.Value
	}

	t := Table{Rows: rows}
	t.Sort()
	return t
}
