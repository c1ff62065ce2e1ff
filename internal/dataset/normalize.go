package dataset

import (
	"encoding/json"
	"strconv"
	"strings"
)

// The data endpoint returns one of two shapes with no discriminator:
// flat rows carrying year and val directly, or nested rows carrying a region
// plus a values list of {year, val} entries.
type shape int

const (
	shapeUnknown shape = iota
	shapeFlat
	shapeNested
)

// probeRow decodes every field either shape may carry. Pointer fields record
// key presence, which is what shape detection needs.
type probeRow struct {
	UnitID        flexString   `json:"unitId"`
	UnitIDSnake   flexString   `json:"unit_id"`
	ID            flexString   `json:"id"`
	UnitName      flexString   `json:"unitName"`
	UnitNameSnake flexString   `json:"unit_name"`
	Name          flexString   `json:"name"`
	Year          *flexString  `json:"year"`
	Val           *flexString  `json:"val"`
	Values        []probeValue `json:"values"`
}

type probeValue struct {
	Year *flexString `json:"year"`
	Val  *flexString `json:"val"`
}

func (r probeRow) unitID() string   { return firstNonEmpty(r.UnitID, r.UnitIDSnake, r.ID) }
func (r probeRow) unitName() string { return firstNonEmpty(r.UnitName, r.UnitNameSnake, r.Name) }

// flexString tolerates strings, numbers, booleans and null in fields the
// upstream types inconsistently. null decodes to the empty string.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	// Numbers and booleans: keep the raw token.
	*s = flexString(raw)
	return nil
}

func firstNonEmpty(ss ...flexString) string {
	for _, s := range ss {
		if v := strings.TrimSpace(string(s)); v != "" {
			return v
		}
	}
	return ""
}

func deref(p *flexString) string {
	if p == nil {
		return ""
	}
	return string(*p)
}

// Normalize converts a raw row sequence into canonical observations for one
// metric. Rows with unparseable years are dropped, unparseable values become
// nil, and an empty or unrecognized payload yields an empty result; it never
// fails.
func Normalize(raw []json.RawMessage) []Observation {
	if len(raw) == 0 {
		return nil
	}

	probes := make([]probeRow, len(raw))
	for i, r := range raw {
		// Undecodable rows keep zero values and fall out at the year check.
		_ = json.Unmarshal(r, &probes[i])
	}

	switch detectShape(probes) {
	case shapeFlat:
		return normalizeFlat(probes)
	case shapeNested:
		return normalizeNested(probes)
	default:
		return nil
	}
}

// detectShape inspects key presence across the whole sequence, mirroring how
// the upstream mixes shapes: any year/val pair means flat, otherwise any
// values list means nested.
func detectShape(rows []probeRow) shape {
	anyYear, anyVal, anyValues := false, false, false
	for _, r := range rows {
		if r.Year != nil {
			anyYear = true
		}
		if r.Val != nil {
			anyVal = true
		}
		if r.Values != nil {
			anyValues = true
		}
	}
	if anyYear && anyVal {
		return shapeFlat
	}
	if anyValues {
		return shapeNested
	}
	return shapeUnknown
}

func normalizeFlat(rows []probeRow) []Observation {
	var out []Observation
	for _, r := range rows {
		year, ok := parseYear(deref(r.Year))
		if !ok {
			continue
		}
		out = append(out, Observation{
			Year:     year,
			UnitID:   r.unitID(),
			UnitName: r.unitName(),
			Value:    parseValue(deref(r.Val)),
		})
	}
	return out
}

func normalizeNested(rows []probeRow) []Observation {
	anyYear, anyVal := false, false
	for _, r := range rows {
		for _, v := range r.Values {
			if v.Year != nil {
				anyYear = true
			}
			if v.Val != nil {
				anyVal = true
			}
		}
	}
	if !anyYear || !anyVal {
		return nil
	}

	var out []Observation
	for _, r := range rows {
		id, name := r.unitID(), r.unitName()
		for _, v := range r.Values {
			year, ok := parseYear(deref(v.Year))
			if !ok {
				continue
			}
			out = append(out, Observation{
				Year:     year,
				UnitID:   id,
				UnitName: name,
				Value:    parseValue(deref(v.Val)),
			})
		}
	}
	return out
}

func parseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	// Some gateways emit years as floats.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// parseValue coerces an upstream value string to a float. Values may carry a
// comma decimal separator and space thousands grouping; anything that still
// does not parse is nil, never an error.
func parseValue(s string) *float64 {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
