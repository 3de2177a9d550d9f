package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	defaultSearchCount = 5
	maxSearchCount     = 10
)

// searchQuery carries one search request through the provider chain.
type searchQuery struct {
	Query      string
	Count      int
	Country    string
	SearchLang string
	UILang     string
	Freshness  string
}

// searchHit is one hit from whichever provider answered.
type searchHit struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// searchBackend abstracts a web search backend.
type searchBackend interface {
	Search(ctx context.Context, params searchQuery) ([]searchHit, error)
	Name() string
}

// searchChain tries providers in priority order; the first one that
// answers wins, failures fall through to the next.
type searchChain []searchBackend

func (c searchChain) run(ctx context.Context, params searchQuery) ([]searchHit, string, error) {
	var lastErr error
	for _, p := range c {
		results, err := p.Search(ctx, params)
		if err != nil {
			slog.Warn("web_search provider failed", "provider", p.Name(), "error", err)
			lastErr = err
			continue
		}
		return results, p.Name(), nil
	}
	if lastErr != nil {
		return nil, "", fmt.Errorf("all search providers failed: %w", lastErr)
	}
	return nil, "", fmt.Errorf("no search providers configured")
}

// WebSearchTool queries the configured search providers in priority order.
type WebSearchTool struct {
	chain searchChain
	cache *webCache
}

// WebSearchConfig holds configuration for the web search tool.
type WebSearchConfig struct {
	BraveAPIKey     string
	BraveEnabled    bool
	BraveMaxResults int
	DDGEnabled      bool
	DDGMaxResults   int
	CacheTTL        time.Duration
}

func NewWebSearchTool(cfg WebSearchConfig) *WebSearchTool {
	var chain searchChain
	if cfg.BraveEnabled && cfg.BraveAPIKey != "" {
		chain = append(chain, newBraveBackend(cfg.BraveAPIKey))
	}
	if cfg.DDGEnabled {
		chain = append(chain, newDDGBackend())
	}
	if len(chain) == 0 {
		return nil
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &WebSearchTool{
		chain: chain,
		cache: newWebCache(defaultCacheMaxEntries, ttl),
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web for current information. Returns titles, URLs, and snippets from search results."
}

func (t *WebSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Search query string.",
			},
			"count": map[string]interface{}{
				"type":        "number",
				"description": "Number of results to return (1-10).",
				"minimum":     1.0,
				"maximum":     float64(maxSearchCount),
			},
			"country": map[string]interface{}{
				"type":        "string",
				"description": "2-letter country code for region-specific results (e.g., 'DE', 'US', 'ALL'). Default: 'US'.",
			},
			"search_lang": map[string]interface{}{
				"type":        "string",
				"description": "ISO language code for search results (e.g., 'de', 'en', 'fr').",
			},
			"ui_lang": map[string]interface{}{
				"type":        "string",
				"description": "ISO language code for UI elements.",
			},
			"freshness": map[string]interface{}{
				"type":        "string",
				"description": "Filter results by discovery time. Supports 'pd' (past day), 'pw' (past week), 'pm' (past month), 'py' (past year), and date range 'YYYY-MM-DDtoYYYY-MM-DD'.",
			},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if query == "" {
		return ErrorResult("query is required")
	}

	params := searchQuery{
		Query: query,
		Count: defaultSearchCount,
	}
	if c, ok := args["count"].(float64); ok && int(c) >= 1 && int(c) <= maxSearchCount {
		params.Count = int(c)
	}
	params.Country, _ = args["country"].(string)
	params.SearchLang, _ = args["search_lang"].(string)
	params.UILang, _ = args["ui_lang"].(string)
	params.Freshness, _ = args["freshness"].(string)

	// Same digest the breaker and stuck detector key on; a repeated
	// identical search is answered from cache instead of the network.
	cacheKey := "search:" + ParamsDigest(args)
	if cached, ok := t.cache.get(cacheKey); ok {
		slog.Debug("web_search cache hit", "query", query)
		return NewResult(cached)
	}

	results, provider, err := t.chain.run(ctx, params)
	if err != nil {
		return ErrorResult(err.Error())
	}

	wrapped := wrapExternalContent(renderSearchResults(query, provider, results), "Web Search", false)
	t.cache.set(cacheKey, wrapped)
	return NewResult(wrapped)
}

func renderSearchResults(query, provider string, results []searchHit) string {
	if len(results) == 0 {
		return "No results found for: " + query
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Search results for: %s (via %s)\n\n", query, provider)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, r.Title, r.URL)
		if r.Description != "" {
			fmt.Fprintf(&b, "   %s\n", r.Description)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
