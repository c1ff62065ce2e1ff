package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func fakeBDL(requests *atomic.Int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		switch {
		case r.URL.Path == "/variables/search":
			phrase := r.URL.Query().Get("name")
			if strings.Contains(phrase, "bezrobocia") {
				fmt.Fprint(w, `{"results":[{"id":1,"name":"Stopa bezrobocia rejestrowanego","measureUnitName":"%","level":2}]}`)
			} else {
				fmt.Fprint(w, `{"results":[{"id":2,"name":"Przeciętne miesięczne wynagrodzenia brutto","measureUnitName":"zł","level":2}]}`)
			}

		case strings.HasPrefix(r.URL.Path, "/data/by-variable/1"):
			fmt.Fprint(w, `{"results":[
				{"unitId":"01","unitName":"LUBELSKIE","year":"2022","val":"6,1"},
				{"unitId":"01","unitName":"LUBELSKIE","year":"2023","val":"5,4"},
				{"unitId":"02","unitName":"MAZOWIECKIE","year":"2022","val":"4,9"},
				{"unitId":"02","unitName":"MAZOWIECKIE","year":"2023","val":"4,2"},
				{"unitId":"03","unitName":"PODLASKIE","year":"2023","val":"7,0"}
			],"links":{}}`)

		default:
			fmt.Fprint(w, `{"results":[
				{"unitId":"01","unitName":"LUBELSKIE","values":[{"year":"2022","val":"6000"},{"year":"2023","val":"6500"}]},
				{"unitId":"02","unitName":"MAZOWIECKIE","values":[{"year":"2022","val":"8000"},{"year":"2023","val":"8600"}]},
				{"unitId":"03","unitName":"PODLASKIE","values":[{"year":"2023","val":"5900"}]}
			],"links":{}}`)
		}
	}))
}

func TestGetEndToEnd(t *testing.T) {
	var requests atomic.Int64
	srv := fakeBDL(&requests)
	defer srv.Close()

	cacheDir := t.TempDir()
	chartsDir := t.TempDir()
	opts := Options{
		CacheDir:    cacheDir,
		ChartsDir:   chartsDir,
		MaxAgeHours: 24,
		BaseURL:     srv.URL,
		StartYear:   2022,
	}

	data, err := Get(context.Background(), opts)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if data.Summary.LatestUnempYear == nil || *data.Summary.LatestUnempYear != 2023 {
		t.Errorf("unexpected latest unemployment year: %+v", data.Summary)
	}
	if data.Summary.CorrUnempVsWageLatest == nil {
		t.Error("expected a correlation over three paired regions")
	}

	if len(data.Tables.Ranking) != 3 {
		t.Fatalf("expected 3 ranking rows, got %d", len(data.Tables.Ranking))
	}
	if data.Tables.Ranking[0].Name != "PODLASKIE" {
		t.Errorf("expected highest unemployment first, got %s", data.Tables.Ranking[0].Name)
	}

	for _, name := range []string{"trend.png", "bar_unemp.png", "scatter.png"} {
		if _, err := os.Stat(filepath.Join(chartsDir, name)); err != nil {
			t.Errorf("missing chart %s: %v", name, err)
		}
	}

	// A second call must be served from the fresh cache.
	requests.Store(0)
	if _, err := Get(context.Background(), opts); err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if n := requests.Load(); n != 0 {
		t.Errorf("cached get made %d network requests", n)
	}
}
