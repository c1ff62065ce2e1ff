package bdl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func intPtr(n int) *int { return &n }

func searchResponse(vars ...Variable) string {
	type item struct {
		ID              int    `json:"id"`
		Name            string `json:"name"`
		MeasureUnitName string `json:"measureUnitName"`
		Level           *int   `json:"level"`
	}
	items := make([]item, len(vars))
	for i, v := range vars {
		items[i] = item{ID: v.ID, Name: v.Name, MeasureUnitName: v.MeasureUnit, Level: v.Level}
	}
	b, _ := json.Marshal(map[string]any{"results": items})
	return string(b)
}

func TestSearchVariablesFirstParamName(t *testing.T) {
	var gotParams []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/variables/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Error("missing Accept header")
		}
		gotParams = append(gotParams, r.URL.Query().Get("name"))
		fmt.Fprint(w, searchResponse(Variable{ID: 1, Name: "stopa bezrobocia", MeasureUnit: "%", Level: intPtr(2)}))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 0)
	vars, err := client.SearchVariables(context.Background(), "stopa bezrobocia", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vars) != 1 || vars[0].ID != 1 || vars[0].MeasureUnit != "%" {
		t.Errorf("unexpected result: %+v", vars)
	}
	if len(gotParams) != 1 || gotParams[0] != "stopa bezrobocia" {
		t.Errorf("expected one request with name param, got %v", gotParams)
	}
}

func TestSearchVariablesFallsBackToSecondParamName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("name") != "" {
			// Gateway that rejects the first parameter name.
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if q.Get("search") == "" {
			t.Error("expected search param on fallback request")
		}
		fmt.Fprint(w, searchResponse(Variable{ID: 7, Name: "wynagrodzenia", MeasureUnit: "zł"}))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 0)
	vars, err := client.SearchVariables(context.Background(), "wynagrodzenia", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vars) != 1 || vars[0].ID != 7 {
		t.Errorf("unexpected result: %+v", vars)
	}
}

func TestSearchVariablesExhaustsParamNames(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 0)
	_, err := client.SearchVariables(context.Background(), "anything", 50)
	if err == nil {
		t.Fatal("expected error")
	}
	var cerr *ClientError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ClientError, got %T", err)
	}
	if requests != 2 {
		t.Errorf("expected 2 attempts, got %d", requests)
	}
}

func TestPickBestVariablePrefersUnit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchResponse(
			Variable{ID: 1, Name: "stopa bezrobocia", MeasureUnit: "osoby", Level: intPtr(2)},
			Variable{ID: 2, Name: "stopa bezrobocia", MeasureUnit: "%", Level: intPtr(2)},
		))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 0)
	best, err := client.PickBestVariable(context.Background(), "stopa bezrobocia", "%")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best.ID != 2 {
		t.Errorf("expected unit match to rank first, got id %d", best.ID)
	}
}

func TestPickBestVariablePrefersLowerLevel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchResponse(
			Variable{ID: 1, Name: "stopa bezrobocia", MeasureUnit: "%", Level: intPtr(5)},
			Variable{ID: 2, Name: "stopa bezrobocia", MeasureUnit: "%", Level: intPtr(2)},
			Variable{ID: 3, Name: "stopa bezrobocia", MeasureUnit: "%"},
		))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 0)
	best, err := client.PickBestVariable(context.Background(), "stopa bezrobocia", "%")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best.ID != 2 {
		t.Errorf("expected lowest level to win, got id %d", best.ID)
	}
}

func TestPickBestVariableTiesKeepUpstreamOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchResponse(
			Variable{ID: 10, Name: "stopa bezrobocia", MeasureUnit: "%", Level: intPtr(2)},
			Variable{ID: 11, Name: "stopa bezrobocia", MeasureUnit: "%", Level: intPtr(2)},
		))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 0)
	best, err := client.PickBestVariable(context.Background(), "stopa bezrobocia", "%")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best.ID != 10 {
		t.Errorf("expected stable ordering to keep id 10 first, got %d", best.ID)
	}
}

func TestPickBestVariableEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 0)
	_, err := client.PickBestVariable(context.Background(), "nothing", "")
	var cerr *ClientError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ClientError, got %v", err)
	}
}

func TestGetDataByVariablePaginates(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/by-variable/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-ClientId") != "test-client" {
			t.Error("missing X-ClientId header")
		}
		q := r.URL.Query()
		if years := q["year"]; len(years) != 2 || years[0] != "2022" || years[1] != "2023" {
			t.Errorf("unexpected year params: %v", years)
		}
		page := q.Get("page")
		pages = append(pages, page)

		switch page {
		case "0":
			fmt.Fprint(w, `{"results":[{"n":1},{"n":2}],"links":{"next":"more"}}`)
		case "1":
			fmt.Fprint(w, `{"results":[{"n":3}],"links":{}}`)
		default:
			t.Errorf("unexpected page %s", page)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-client", 0)
	rows, err := client.GetDataByVariable(context.Background(), 42, []int{2022, 2023}, FetchOptions{PageDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	var first struct {
		N int `json:"n"`
	}
	if err := json.Unmarshal(rows[0], &first); err != nil || first.N != 1 {
		t.Errorf("rows not in arrival order: %s", rows[0])
	}
	if len(pages) != 2 {
		t.Errorf("expected 2 page requests, got %v", pages)
	}
}

func TestGetDataByVariableStopsOnEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[],"links":{"next":"lies"}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 0)
	rows, err := client.GetDataByVariable(context.Background(), 1, []int{2023}, FetchOptions{PageDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestGetDataByVariableHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 0)
	_, err := client.GetDataByVariable(context.Background(), 1, []int{2023}, FetchOptions{PageDelay: time.Millisecond})
	var cerr *ClientError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ClientError, got %v", err)
	}
}
