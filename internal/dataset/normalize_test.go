package dataset

import (
	"encoding/json"
	"testing"
)

func raw(rows ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(rows))
	for i, r := range rows {
		out[i] = json.RawMessage(r)
	}
	return out
}

func TestNormalizeFlat(t *testing.T) {
	obs := Normalize(raw(
		`{"unitId":"011200000000","unitName":"MAŁOPOLSKIE","year":"2023","val":"4,5"}`,
		`{"id":"020000000000","name":"DOLNOŚLĄSKIE","year":2024,"val":"1 234,5"}`,
	))
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs))
	}
	if obs[0].Year != 2023 || obs[0].UnitID != "011200000000" || obs[0].UnitName != "MAŁOPOLSKIE" {
		t.Errorf("unexpected first observation: %+v", obs[0])
	}
	if obs[0].Value == nil || *obs[0].Value != 4.5 {
		t.Errorf("comma decimal not parsed: %v", obs[0].Value)
	}
	if obs[1].Year != 2024 {
		t.Errorf("numeric year not parsed: %+v", obs[1])
	}
	if obs[1].Value == nil || *obs[1].Value != 1234.5 {
		t.Errorf("space grouping not stripped: %v", obs[1].Value)
	}
}

func TestNormalizeFlatDropsUnparseableYears(t *testing.T) {
	obs := Normalize(raw(
		`{"unitId":"01","year":"n/a","val":"3"}`,
		`{"unitId":"02","year":"2023","val":"3"}`,
	))
	if len(obs) != 1 || obs[0].UnitID != "02" {
		t.Fatalf("expected only the parseable row, got %+v", obs)
	}
}

func TestNormalizeFlatKeepsRowsWithUnparseableValues(t *testing.T) {
	obs := Normalize(raw(`{"unitId":"01","year":"2023","val":"brak"}`))
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	if obs[0].Value != nil {
		t.Errorf("unparseable value should be nil, got %v", *obs[0].Value)
	}
}

func TestNormalizeFlatFloatYear(t *testing.T) {
	obs := Normalize(raw(`{"unitId":"01","year":"2023.0","val":"5"}`))
	if len(obs) != 1 || obs[0].Year != 2023 {
		t.Fatalf("float year not coerced: %+v", obs)
	}
}

func TestNormalizeNested(t *testing.T) {
	obs := Normalize(raw(
		`{"unitId":"01","unitName":"A","values":[{"year":"2022","val":"5,1"},{"year":"2023","val":null}]}`,
		`{"id":"02","name":"B","values":[{"year":"2023","val":"6"}]}`,
	))
	if len(obs) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(obs))
	}
	if obs[0].UnitID != "01" || obs[0].UnitName != "A" || obs[0].Year != 2022 {
		t.Errorf("region not propagated: %+v", obs[0])
	}
	if obs[0].Value == nil || *obs[0].Value != 5.1 {
		t.Errorf("unexpected value: %v", obs[0].Value)
	}
	if obs[1].Value != nil {
		t.Errorf("null val should be nil, got %v", *obs[1].Value)
	}
	if obs[2].UnitID != "02" || obs[2].UnitName != "B" {
		t.Errorf("alternate keys not honored: %+v", obs[2])
	}
}

func TestNormalizeNestedWithoutYearOrVal(t *testing.T) {
	obs := Normalize(raw(
		`{"unitId":"01","values":[{"attrId":1},{"attrId":2}]}`,
	))
	if len(obs) != 0 {
		t.Fatalf("expected no observations, got %+v", obs)
	}
}

func TestNormalizeUnknownShape(t *testing.T) {
	obs := Normalize(raw(`{"foo":"bar"}`, `{"baz":1}`))
	if len(obs) != 0 {
		t.Fatalf("expected no observations, got %+v", obs)
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	if obs := Normalize(nil); len(obs) != 0 {
		t.Fatalf("expected no observations, got %+v", obs)
	}
}

func TestNormalizeMixedShapePrefersFlat(t *testing.T) {
	// A sequence where some rows carry year/val and some only a values list
	// normalizes as flat; the nested rows fall out at the year check.
	obs := Normalize(raw(
		`{"unitId":"01","year":"2023","val":"4"}`,
		`{"unitId":"02","values":[{"year":"2023","val":"9"}]}`,
	))
	if len(obs) != 1 || obs[0].UnitID != "01" {
		t.Fatalf("expected flat interpretation, got %+v", obs)
	}
}
