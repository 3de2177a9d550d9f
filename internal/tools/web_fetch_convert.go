package tools

import (
	"encoding/json"
	"html"
	"regexp"
	"strings"
)

// extractJSON pretty-prints JSON content, falling back to the raw bytes
// when the body doesn't actually parse.
func extractJSON(body []byte) (string, string) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body), "raw"
	}
	formatted, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return string(body), "raw"
	}
	return string(formatted), "json"
}

// renderRule is one step of the HTML→markdown rendering table: a pattern
// and its markdown replacement, applied in order.
type renderRule struct {
	re   *regexp.Regexp
	repl string
}

// stripRules remove non-content elements before any rendering happens.
var stripRules = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[\s\S]*?</script>`),
	regexp.MustCompile(`(?is)<style[\s\S]*?</style>`),
	regexp.MustCompile(`<!--[\s\S]*?-->`),
	regexp.MustCompile(`(?is)<nav[\s\S]*?</nav>`),
	regexp.MustCompile(`(?is)<header[\s\S]*?</header>`),
	regexp.MustCompile(`(?is)<footer[\s\S]*?</footer>`),
}

// markdownRules translate structural HTML into markdown, most-specific
// first: fenced blocks before inline code, links before the generic tag
// strip at the end of render.
var markdownRules = []renderRule{
	{regexp.MustCompile(`(?is)<pre[^>]*>([\s\S]*?)</pre>`), "\n```\n$1\n```\n"},
	{regexp.MustCompile(`(?i)<code[^>]*>([\s\S]*?)</code>`), "`$1`"},
	{regexp.MustCompile(`(?i)<h1[^>]*>([\s\S]*?)</h1>`), "\n# $1\n"},
	{regexp.MustCompile(`(?i)<h2[^>]*>([\s\S]*?)</h2>`), "\n## $1\n"},
	{regexp.MustCompile(`(?i)<h3[^>]*>([\s\S]*?)</h3>`), "\n### $1\n"},
	{regexp.MustCompile(`(?i)<h4[^>]*>([\s\S]*?)</h4>`), "\n#### $1\n"},
	{regexp.MustCompile(`(?i)<h5[^>]*>([\s\S]*?)</h5>`), "\n##### $1\n"},
	{regexp.MustCompile(`(?i)<h6[^>]*>([\s\S]*?)</h6>`), "\n###### $1\n"},
	{regexp.MustCompile(`(?i)<a[^>]*href="([^"]*)"[^>]*>([\s\S]*?)</a>`), "[$2]($1)"},
	{regexp.MustCompile(`(?i)<img[^>]*alt="([^"]*)"[^>]*/?>`), "![$1]"},
	{regexp.MustCompile(`(?i)<(?:strong|b)(?:\s[^>]*)?>([\s\S]*?)</(?:strong|b)>`), "**$1**"},
	{regexp.MustCompile(`(?i)<(?:em|i)(?:\s[^>]*)?>([\s\S]*?)</(?:em|i)>`), "*$1*"},
	{regexp.MustCompile(`(?i)<li[^>]*>([\s\S]*?)</li>`), "\n- $1"},
	{regexp.MustCompile(`(?i)<p[^>]*>([\s\S]*?)</p>`), "\n$1\n"},
	{regexp.MustCompile(`(?i)<br\s*/?>`), "\n"},
}

var (
	reBlockquote = regexp.MustCompile(`(?is)<blockquote[^>]*>([\s\S]*?)</blockquote>`)
	reAnyTag     = regexp.MustCompile(`<[^>]+>`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	reRunOfSpace = regexp.MustCompile(`[ \t]{2,}`)
)

// htmlToMarkdown renders HTML into a markdown-ish form via the rule
// table. Deliberately not a Readability port: predictable output for
// common page structure beats completeness here.
func htmlToMarkdown(page string) string {
	s := page
	for _, re := range stripRules {
		s = re.ReplaceAllString(s, "")
	}

	// Blockquotes need per-line prefixing, which a plain replacement
	// string can't express.
	s = reBlockquote.ReplaceAllStringFunc(s, func(match string) string {
		inner := reBlockquote.FindStringSubmatch(match)
		if len(inner) < 2 {
			return match
		}
		var b strings.Builder
		b.WriteByte('\n')
		for _, line := range strings.Split(strings.TrimSpace(inner[1]), "\n") {
			b.WriteString("> ")
			b.WriteString(strings.TrimSpace(line))
			b.WriteByte('\n')
		}
		return b.String()
	})

	for _, rule := range markdownRules {
		s = rule.re.ReplaceAllString(s, rule.repl)
	}
	s = reAnyTag.ReplaceAllString(s, "")

	s = html.UnescapeString(s)
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	s = reRunOfSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// htmlToText is the plain-text mode: render to markdown first, then
// strip the markdown syntax back out — one rendering path instead of two
// divergent ones.
func htmlToText(page string) string {
	var clean []string
	for _, line := range strings.Split(markdownToText(htmlToMarkdown(page)), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	return strings.Join(clean, "\n")
}

var (
	reMDHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reMDImage   = regexp.MustCompile(`!\[([^\]]*)\](?:\([^)]+\))?`)
	reMDLink    = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reMDCode    = regexp.MustCompile("`([^`]+)`")
	reMDEmph    = regexp.MustCompile(`\*([^*\n]+)\*`)
)

// markdownToText strips markdown syntax, keeping the visible text.
func markdownToText(md string) string {
	s := reMDHeading.ReplaceAllString(md, "")
	s = reMDImage.ReplaceAllString(s, "$1")
	s = reMDLink.ReplaceAllString(s, "$1")
	s = reMDCode.ReplaceAllString(s, "$1")
	s = strings.NewReplacer("**", "", "__", "", "```", "").Replace(s)
	s = reMDEmph.ReplaceAllString(s, "$1")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
