package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// braveBackend drives the Brave Search API; preferred over
// scraping whenever a subscription key is configured.
type braveBackend struct {
	apiKey string
	client *http.Client
}

func newBraveBackend(apiKey string) *braveBackend {
	return &braveBackend{apiKey: apiKey, client: guardedHTTPClient(false)}
}

func (p *braveBackend) Name() string { return "brave" }

// braveWebResponse is the slice of Brave's response shape this provider
// actually reads.
type braveWebResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (p *braveBackend) Search(ctx context.Context, params searchQuery) ([]searchHit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.requestURL(params), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave API returned %d: %s", resp.StatusCode, truncateStr(string(body), 200))
	}

	var decoded braveWebResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]searchHit, 0, len(decoded.Web.Results))
	for _, r := range decoded.Web.Results {
		results = append(results, searchHit(r))
	}
	return results, nil
}

func (p *braveBackend) requestURL(params searchQuery) string {
	q := url.Values{}
	q.Set("q", params.Query)
	q.Set("count", strconv.Itoa(params.Count))
	for key, val := range map[string]string{
		"country":     params.Country,
		"search_lang": params.SearchLang,
		"ui_lang":     params.UILang,
		"freshness":   normalizeFreshness(params.Freshness),
	} {
		if val != "" {
			q.Set(key, val)
		}
	}
	return braveEndpoint + "?" + q.Encode()
}

// Brave's freshness parameter: a shortcut code or a bounded date range.
var (
	freshnessShortcuts = map[string]bool{"pd": true, "pw": true, "pm": true, "py": true}
	freshnessRangeRe   = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})to(\d{4}-\d{2}-\d{2})$`)
)

// normalizeFreshness validates the model-supplied freshness filter;
// malformed values are dropped rather than passed through to the API.
func normalizeFreshness(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" || freshnessShortcuts[v] {
		return v
	}
	if m := freshnessRangeRe.FindStringSubmatch(v); len(m) == 3 {
		start, errS := time.Parse("2006-01-02", m[1])
		end, errE := time.Parse("2006-01-02", m[2])
		if errS == nil && errE == nil && !start.After(end) {
			return v
		}
	}
	return ""
}
