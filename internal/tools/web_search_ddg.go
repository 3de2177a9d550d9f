package tools

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// ddgBackend scrapes the no-JS HTML endpoint — the keyless
// fallback when no search API is configured.
type ddgBackend struct {
	client *http.Client
}

func newDDGBackend() *ddgBackend {
	return &ddgBackend{client: guardedHTTPClient(false)}
}

func (p *ddgBackend) Name() string { return "duckduckgo" }

func (p *ddgBackend) Search(ctx context.Context, params searchQuery) ([]searchHit, error) {
	endpoint := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(params.Query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	page, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return parseDDGPage(string(page), params.Count), nil
}

var (
	ddgResultBlockRe = regexp.MustCompile(`(?s)<div[^>]*class="[^"]*result__body[^"]*".*?(?:</div>\s*){2}`)
	ddgTitleLinkRe   = regexp.MustCompile(`<a[^>]*class="[^"]*result__a[^"]*"[^>]*href="([^"]+)"[^>]*>([\s\S]*?)</a>`)
	ddgSnippetLinkRe = regexp.MustCompile(`<a[^>]*class="result__snippet[^"]*"[^>]*>([\s\S]*?)</a>`)
	anyMarkupRe      = regexp.MustCompile(`<[^>]+>`)
)

// parseDDGPage walks the page one result block at a time so each title
// stays paired with its own snippet, rather than zipping two independent
// match lists by index.
func parseDDGPage(page string, count int) []searchHit {
	blocks := ddgResultBlockRe.FindAllString(page, count+5)
	if len(blocks) == 0 {
		// Layout changed or a degraded page: fall back to bare title links.
		return parseDDGTitleLinks(page, count)
	}

	var results []searchHit
	for _, block := range blocks {
		if len(results) >= count {
			break
		}
		link := ddgTitleLinkRe.FindStringSubmatch(block)
		if link == nil {
			continue
		}
		r := searchHit{
			Title: cleanFragment(link[2]),
			URL:   unwrapDDGRedirect(link[1]),
		}
		if snip := ddgSnippetLinkRe.FindStringSubmatch(block); snip != nil {
			r.Description = cleanFragment(snip[1])
		}
		results = append(results, r)
	}
	return results
}

func parseDDGTitleLinks(page string, count int) []searchHit {
	var results []searchHit
	for _, link := range ddgTitleLinkRe.FindAllStringSubmatch(page, count) {
		results = append(results, searchHit{
			Title: cleanFragment(link[2]),
			URL:   unwrapDDGRedirect(link[1]),
		})
	}
	return results
}

// unwrapDDGRedirect recovers the destination from DDG's /l/?uddg=…
// redirect wrapper. Anything that doesn't parse as such passes through.
func unwrapDDGRedirect(href string) string {
	u, err := url.Parse(html.UnescapeString(href))
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

// cleanFragment strips markup and decodes entities from an extracted
// HTML fragment.
func cleanFragment(fragment string) string {
	return strings.TrimSpace(html.UnescapeString(anyMarkupRe.ReplaceAllString(fragment, "")))
}
