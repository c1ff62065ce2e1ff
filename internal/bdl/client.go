// Package bdl is a client for the GUS Bank Danych Lokalnych API
// (https://bdl.stat.gov.pl/api/v1). It covers exactly the two endpoints the
// pipeline needs: variable search and by-variable data, including the
// parameter-name quirks and pagination of that API.
package bdl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout  = 20 * time.Second
	defaultPageSize = 100
	defaultDelay    = 50 * time.Millisecond

	// maxPages bounds the pagination loop. The API signals the last page by
	// omitting links.next; the cap catches an upstream that never does.
	maxPages = 500
)

// Variable is an upstream indicator descriptor returned by the search
// endpoint. Level is the administrative hierarchy level of the data and may
// be absent.
type Variable struct {
	ID          int
	Name        string
	MeasureUnit string
	Level       *int
}

// ClientError wraps any transport failure, HTTP error status or undecodable
// response from the BDL API.
type ClientError struct {
	URL    string
	Params string
	Err    error
}

func (e *ClientError) Error() string {
	if e.Params != "" {
		return fmt.Sprintf("bdl request failed: %s params=%s: %v", e.URL, e.Params, e.Err)
	}
	return fmt.Sprintf("bdl request failed: %s: %v", e.URL, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

// Client issues authenticated requests to the BDL API.
type Client struct {
	baseURL  string
	clientID string
	http     *http.Client
}

// NewClient creates a BDL client. clientID may be empty for anonymous access;
// a zero timeout selects the default per-request timeout.
func NewClient(baseURL, clientID string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: strings.TrimSpace(clientID),
		http:     &http.Client{Timeout: timeout},
	}
}

// FetchOptions control a by-variable data fetch. Zero values select the
// defaults: unit level 2 (voivodeships), page size 100, 50ms between pages.
type FetchOptions struct {
	UnitLevel    int
	UnitParentID string
	PageSize     int
	PageDelay    time.Duration
}

// SearchVariables queries the variable search endpoint. Depending on the
// gateway the phrase is accepted under "name" or "search"; the first name is
// tried and, on any failure, the second, before giving up with a ClientError
// carrying the last underlying error.
func (c *Client) SearchVariables(ctx context.Context, phrase string, pageSize int) ([]Variable, error) {
	if pageSize <= 0 {
		pageSize = 50
	}

	var lastErr error
	for _, paramName := range []string{"name", "search"} {
		params := url.Values{}
		params.Set(paramName, phrase)
		params.Set("page-size", strconv.Itoa(pageSize))
		params.Set("page", "0")
		params.Set("lang", "pl")

		var payload struct {
			Results []struct {
				ID              int    `json:"id"`
				Name            string `json:"name"`
				MeasureUnitName string `json:"measureUnitName"`
				Level           *int   `json:"level"`
			} `json:"results"`
		}
		if err := c.getJSON(ctx, "/variables/search", params, &payload); err != nil {
			lastErr = err
			continue
		}

		vars := make([]Variable, 0, len(payload.Results))
		for _, r := range payload.Results {
			vars = append(vars, Variable{
				ID:          r.ID,
				Name:        r.Name,
				MeasureUnit: r.MeasureUnitName,
				Level:       r.Level,
			})
		}
		return vars, nil
	}

	return nil, &ClientError{
		URL: c.baseURL + "/variables/search",
		Err: fmt.Errorf("could not search variables for %q: %w", phrase, lastErr),
	}
}

// score ranks a search candidate. Fields are compared in declaration order;
// higher is better on every field.
type score struct {
	unitMatch  int
	nameMatch  int
	levelScore int
}

// less is the ordered comparator for scores.
func (s score) less(o score) bool {
	if s.unitMatch != o.unitMatch {
		return s.unitMatch < o.unitMatch
	}
	if s.nameMatch != o.nameMatch {
		return s.nameMatch < o.nameMatch
	}
	return s.levelScore < o.levelScore
}

func scoreVariable(v Variable, phrase, preferUnit string) score {
	var s score
	if preferUnit != "" && strings.Contains(strings.ToLower(v.MeasureUnit), strings.ToLower(preferUnit)) {
		s.unitMatch = 1
	}
	if strings.Contains(strings.ToLower(v.Name), strings.ToLower(phrase)) {
		s.nameMatch = 1
	}
	if v.Level != nil && *v.Level < 10 {
		s.levelScore = 10 - *v.Level
	}
	return s
}

// PickBestVariable searches for phrase and returns the highest-scoring
// candidate: preferred unit substring first, then phrase in the name, then
// lower hierarchy level. Ties keep the upstream order.
func (c *Client) PickBestVariable(ctx context.Context, phrase, preferUnit string) (Variable, error) {
	candidates, err := c.SearchVariables(ctx, phrase, 50)
	if err != nil {
		return Variable{}, err
	}
	if len(candidates) == 0 {
		return Variable{}, &ClientError{
			URL: c.baseURL + "/variables/search",
			Err: fmt.Errorf("no variables found for phrase: %s", phrase),
		}
	}

	scores := make([]score, len(candidates))
	for i, v := range candidates {
		scores[i] = scoreVariable(v, phrase, preferUnit)
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[j]].less(scores[order[i]])
	})

	return candidates[order[0]], nil
}

// GetDataByVariable fetches all pages of a variable's time series for the
// requested years. Rows accumulate in arrival order and are returned raw:
// the response shape varies between gateways and decoding is the
// normalizer's job.
func (c *Client) GetDataByVariable(ctx context.Context, varID int, years []int, opts FetchOptions) ([]json.RawMessage, error) {
	if opts.UnitLevel == 0 {
		opts.UnitLevel = 2
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.PageDelay == 0 {
		opts.PageDelay = defaultDelay
	}

	path := fmt.Sprintf("/data/by-variable/%d", varID)
	var rows []json.RawMessage

	for page := 0; ; page++ {
		if page >= maxPages {
			return nil, &ClientError{
				URL: c.baseURL + path,
				Err: fmt.Errorf("pagination did not terminate after %d pages", maxPages),
			}
		}

		params := url.Values{}
		params.Set("format", "json")
		params.Set("unit-level", strconv.Itoa(opts.UnitLevel))
		params.Set("page-size", strconv.Itoa(opts.PageSize))
		params.Set("page", strconv.Itoa(page))
		params.Set("lang", "pl")
		for _, y := range years {
			params.Add("year", strconv.Itoa(y))
		}
		if opts.UnitParentID != "" {
			params.Set("unit-parent-id", opts.UnitParentID)
		}

		var payload struct {
			Results []json.RawMessage `json:"results"`
			Links   struct {
				Next string `json:"next"`
			} `json:"links"`
		}
		if err := c.getJSON(ctx, path, params, &payload); err != nil {
			return nil, err
		}

		if len(payload.Results) == 0 {
			break
		}
		rows = append(rows, payload.Results...)

		if payload.Links.Next == "" {
			break
		}
		// Courtesy pacing toward the upstream, not a backoff.
		time.Sleep(opts.PageDelay)
	}

	return rows, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, v any) error {
	reqURL := c.baseURL + path
	full := reqURL
	if encoded := params.Encode(); encoded != "" {
		full += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return &ClientError{URL: reqURL, Params: params.Encode(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.clientID != "" {
		req.Header.Set("X-ClientId", c.clientID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &ClientError{URL: reqURL, Params: params.Encode(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ClientError{
			URL:    reqURL,
			Params: params.Encode(),
			Err:    fmt.Errorf("unexpected status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &ClientError{URL: reqURL, Params: params.Encode(), Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
