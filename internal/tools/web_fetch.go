package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nextlevelbuilder/agentrt/internal/security"
)

const (
	defaultFetchMaxChars    = 200000 // fetch_webpage body cap, 200 KB
	defaultFetchMaxRedirect = 3
	defaultErrorMaxChars    = 4000
	webRequestTimeout       = 30 * time.Second
	webUserAgent            = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// guardedHTTPClient builds the HTTP client the web family shares: bounded
// timeout, and — when followRedirects is set — the SSRF check re-applied
// on every redirect hop, since a public hostname is free to 302 into a
// private range.
func guardedHTTPClient(followRedirects bool) *http.Client {
	c := &http.Client{
		Timeout: webRequestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 15 * time.Second,
		},
	}
	if followRedirects {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= defaultFetchMaxRedirect {
				return fmt.Errorf("stopped after %d redirects", defaultFetchMaxRedirect)
			}
			if err := security.CheckSSRF(req.URL.String()); err != nil {
				return fmt.Errorf("redirect blocked: %w", err)
			}
			return nil
		}
	}
	return c
}

// WebFetchTool implements fetch_webpage: load a URL through the SSRF
// guard and render its content for the model.
type WebFetchTool struct {
	maxChars int
	cache    *webCache
}

// WebFetchConfig holds configuration for the web fetch tool.
type WebFetchConfig struct {
	MaxChars int
	CacheTTL time.Duration
}

func NewWebFetchTool(cfg WebFetchConfig) *WebFetchTool {
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = defaultFetchMaxChars
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &WebFetchTool{
		maxChars: maxChars,
		cache:    newWebCache(defaultCacheMaxEntries, ttl),
	}
}

func (t *WebFetchTool) Name() string { return "fetch_webpage" }

func (t *WebFetchTool) Description() string {
	return "Fetch a URL and extract its content. Supports HTML (converted to markdown/text), JSON, and plain text. Includes SSRF protection."
}

func (t *WebFetchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "HTTP or HTTPS URL to fetch.",
			},
			"extractMode": map[string]interface{}{
				"type":        "string",
				"description": `Extraction mode ("markdown" or "text"). Default: "markdown".`,
				"enum":        []string{"markdown", "text"},
			},
			"maxChars": map[string]interface{}{
				"type":        "number",
				"description": "Maximum characters to return (truncates when exceeded).",
				"minimum":     100.0,
			},
		},
		"required": []string{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	rawURL, _ := args["url"].(string)
	if err := validateFetchURL(rawURL); err != nil {
		return ErrorResult(err.Error())
	}

	mode := "markdown"
	if em, ok := args["extractMode"].(string); ok && (em == "markdown" || em == "text") {
		mode = em
	}
	limit := t.maxChars
	if mc, ok := args["maxChars"].(float64); ok && int(mc) >= 100 {
		limit = int(mc)
	}

	cacheKey := "fetch:" + ParamsDigest(map[string]interface{}{"url": rawURL, "mode": mode, "limit": limit})
	if cached, ok := t.cache.get(cacheKey); ok {
		slog.Debug("fetch_webpage cache hit", "url", rawURL)
		return NewResult(cached)
	}

	report, err := fetchPage(ctx, rawURL, mode, limit)
	if err != nil {
		return ErrorResult("fetch failed: " + truncateStr(err.Error(), defaultErrorMaxChars))
	}

	rendered := report.render()
	t.cache.set(cacheKey, rendered)
	return NewResult(rendered)
}

// validateFetchURL rejects anything the fetch path won't touch: bad
// syntax, non-http schemes, hostless URLs, and SSRF targets.
func validateFetchURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("only http and https URLs are supported")
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing hostname in URL")
	}
	if err := security.CheckSSRF(rawURL); err != nil {
		return fmt.Errorf("SSRF protection: %v", err)
	}
	return nil
}

// fetchReport carries everything the model needs to trust (or distrust)
// fetched content: final URL after redirects, status, which extractor
// produced the text, and whether the limit truncated it.
type fetchReport struct {
	finalURL  string
	status    int
	extractor string
	text      string
	truncated bool
	limit     int
}

func fetchPage(ctx context.Context, rawURL, mode string, limit int) (*fetchReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", webUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := guardedHTTPClient(true).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Read at most 4 bytes of raw body per output char: HTML markup
	// overhead means the renderable text is a fraction of the page.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(limit*4)))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	report := &fetchReport{
		finalURL: resp.Request.URL.String(),
		status:   resp.StatusCode,
		limit:    limit,
	}
	report.text, report.extractor = renderBody(body, resp.Header.Get("Content-Type"), mode)

	if len(report.text) > limit {
		report.text = report.text[:limit]
		report.truncated = true
	}
	return report, nil
}

// renderBody picks the extractor by content type and mode.
func renderBody(body []byte, contentType, mode string) (text, extractor string) {
	switch {
	case strings.Contains(contentType, "application/json"):
		return extractJSON(body)
	case strings.Contains(contentType, "text/markdown"):
		if mode == "text" {
			return markdownToText(string(body)), "markdown-to-text"
		}
		return string(body), "markdown"
	case strings.Contains(contentType, "text/html"),
		strings.Contains(contentType, "application/xhtml"):
		if mode == "text" {
			return htmlToText(string(body)), "html-to-text"
		}
		return htmlToMarkdown(string(body)), "html-to-markdown"
	default:
		return string(body), "raw"
	}
}

func (r *fetchReport) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", r.finalURL)
	fmt.Fprintf(&b, "Status: %d\n", r.status)
	fmt.Fprintf(&b, "Extractor: %s\n", r.extractor)
	if r.truncated {
		fmt.Fprintf(&b, "Truncated: true (limit: %d chars)\n", r.limit)
	}
	fmt.Fprintf(&b, "Length: %d\n\n", len(r.text))
	b.WriteString(wrapExternalContent(r.text, r.finalURL, true))
	return b.String()
}
