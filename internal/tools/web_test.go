package tools

import (
	"strings"
	"testing"
)

func TestUnwrapDDGRedirect(t *testing.T) {
	cases := map[string]string{
		"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fmenu&rut=abc": "https://example.com/menu",
		"https://example.com/direct":                                       "https://example.com/direct",
		"/relative/path":                                                   "/relative/path",
	}
	for in, want := range cases {
		if got := unwrapDDGRedirect(in); got != want {
			t.Errorf("unwrapDDGRedirect(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDDGPagePairsTitleAndSnippet(t *testing.T) {
	page := `
<div class="result__body">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fpizza.example%2F">Best <b>Pizza</b></a>
  <a class="result__snippet">Thin crust, wood fired.</a>
</div>
</div>
<div class="result__body">
  <a class="result__a" href="https://second.example/">Second Hit</a>
  <a class="result__snippet">Another snippet.</a>
</div>
</div>`
	results := parseDDGPage(page, 5)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Title != "Best Pizza" {
		t.Errorf("title = %q", results[0].Title)
	}
	if results[0].URL != "https://pizza.example/" {
		t.Errorf("url = %q", results[0].URL)
	}
	if results[0].Description != "Thin crust, wood fired." {
		t.Errorf("snippet = %q", results[0].Description)
	}
	if results[1].Description != "Another snippet." {
		t.Errorf("second snippet paired wrong: %q", results[1].Description)
	}
}

func TestParseDDGPageFallsBackToBareLinks(t *testing.T) {
	page := `<a class="result__a" href="https://only.example/">Only Link</a>`
	results := parseDDGPage(page, 3)
	if len(results) != 1 || results[0].URL != "https://only.example/" {
		t.Fatalf("fallback parse failed: %+v", results)
	}
}

func TestNormalizeFreshness(t *testing.T) {
	cases := map[string]string{
		"pd":                     "pd",
		" PW ":                   "pw",
		"2024-01-01to2024-06-30": "2024-01-01to2024-06-30",
		"2024-06-30to2024-01-01": "", // inverted range
		"yesterday":              "",
		"":                       "",
	}
	for in, want := range cases {
		if got := normalizeFreshness(in); got != want {
			t.Errorf("normalizeFreshness(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHTMLToMarkdown(t *testing.T) {
	page := `<html><head><style>p{color:red}</style><script>alert(1)</script></head>
<body><nav>skip me</nav>
<h1>Title</h1>
<p>Some <strong>bold</strong> and <a href="https://x.example/">a link</a>.</p>
<ul><li>first</li><li>second</li></ul>
</body></html>`
	md := htmlToMarkdown(page)

	if !strings.Contains(md, "# Title") {
		t.Errorf("missing heading: %q", md)
	}
	if !strings.Contains(md, "**bold**") {
		t.Errorf("missing bold: %q", md)
	}
	if !strings.Contains(md, "[a link](https://x.example/)") {
		t.Errorf("missing link: %q", md)
	}
	if !strings.Contains(md, "- first") || !strings.Contains(md, "- second") {
		t.Errorf("missing list items: %q", md)
	}
	if strings.Contains(md, "alert(1)") || strings.Contains(md, "skip me") || strings.Contains(md, "color:red") {
		t.Errorf("non-content survived: %q", md)
	}
}

func TestHTMLToTextStripsMarkdownSyntax(t *testing.T) {
	page := `<h2>Header</h2><p>Plain <em>emphasis</em> and <a href="https://x.example/">link text</a>.</p>`
	text := htmlToText(page)
	for _, forbidden := range []string{"##", "*emphasis*", "](", "<"} {
		if strings.Contains(text, forbidden) {
			t.Errorf("markup %q survived in %q", forbidden, text)
		}
	}
	for _, want := range []string{"Header", "emphasis", "link text"} {
		if !strings.Contains(text, want) {
			t.Errorf("content %q missing from %q", want, text)
		}
	}
}

func TestExtractJSONPrettyPrints(t *testing.T) {
	text, extractor := extractJSON([]byte(`{"b":1,"a":[2,3]}`))
	if extractor != "json" || !strings.Contains(text, "\n") {
		t.Fatalf("extractJSON = (%q, %q)", text, extractor)
	}
	raw, extractor := extractJSON([]byte("not json"))
	if extractor != "raw" || raw != "not json" {
		t.Fatalf("fallback = (%q, %q)", raw, extractor)
	}
}

func TestValidateFetchURL(t *testing.T) {
	// Literal public address so the check needs no DNS.
	if err := validateFetchURL("https://93.184.216.34/page"); err != nil {
		t.Fatalf("public https URL rejected: %v", err)
	}
	for _, bad := range []string{
		"",
		"ftp://example.com/file",
		"https://",
		"http://127.0.0.1/admin",
		"http://169.254.169.254/latest/meta-data/",
	} {
		if err := validateFetchURL(bad); err == nil {
			t.Errorf("validateFetchURL(%q) should fail", bad)
		}
	}
}
