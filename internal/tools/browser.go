package tools

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const (
	browserActionsPerIteration = 2
	browserNavTimeout          = 30 * time.Second
	screenshotMaxWidth         = 1024
)

// BrowserSession owns a single headless browser + page, shared across the
// browser tool family for one agent session. Tools never launch their own
// browser; they all operate on this shared instance so navigation state
// persists between calls.
type BrowserSession struct {
	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
}

func NewBrowserSession() *BrowserSession {
	return &BrowserSession{}
}

func (s *BrowserSession) ensure() (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page != nil {
		return s.page, nil
	}
	url, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	s.browser = rod.New().ControlURL(url)
	if err := s.browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	p, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	s.page = p
	return s.page, nil
}

func (s *BrowserSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser != nil {
		s.browser.Close()
	}
	s.page = nil
	s.browser = nil
}

// checkAndConsumeBudget enforces the per-iteration browser action cap,
// since an agent that mistakes browser automation for a cheap tool call
// can otherwise burn an entire turn driving a page.
func checkAndConsumeBudget(ctx context.Context) error {
	scope := IterationScopeFromCtx(ctx)
	if scope == nil || scope.BrowserActionsUsed == nil {
		return nil
	}
	if *scope.BrowserActionsUsed >= browserActionsPerIteration {
		return fmt.Errorf("browser action limit of %d reached for this iteration", browserActionsPerIteration)
	}
	*scope.BrowserActionsUsed++
	return nil
}

// BrowserNavigateTool loads a URL in the shared browser page.
type BrowserNavigateTool struct{ session *BrowserSession }

func NewBrowserNavigateTool(s *BrowserSession) *BrowserNavigateTool { return &BrowserNavigateTool{session: s} }

func (t *BrowserNavigateTool) Name() string        { return "browser_navigate" }
func (t *BrowserNavigateTool) Description() string { return "Navigate the browser to a URL." }
func (t *BrowserNavigateTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"url": map[string]interface{}{"type": "string"}},
		"required":   []string{"url"},
	}
}
func (t *BrowserNavigateTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if err := checkAndConsumeBudget(ctx); err != nil {
		return ErrorResult(err.Error())
	}
	url, _ := args["url"].(string)
	if url == "" {
		return ErrorResult("url is required")
	}
	page, err := t.session.ensure()
	if err != nil {
		return ErrorResult(err.Error())
	}
	page = page.Timeout(browserNavTimeout)
	if err := page.Navigate(url); err != nil {
		return ErrorResult(fmt.Sprintf("navigation failed: %v", err))
	}
	if err := page.WaitLoad(); err != nil {
		return ErrorResult(fmt.Sprintf("page load failed: %v", err))
	}
	return NewResult(fmt.Sprintf("navigated to %s", url))
}

// BrowserClickTool clicks the first element matching a CSS selector.
type BrowserClickTool struct{ session *BrowserSession }

func NewBrowserClickTool(s *BrowserSession) *BrowserClickTool { return &BrowserClickTool{session: s} }

func (t *BrowserClickTool) Name() string        { return "browser_click" }
func (t *BrowserClickTool) Description() string { return "Click an element matching a CSS selector." }
func (t *BrowserClickTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"selector": map[string]interface{}{"type": "string"}},
		"required":   []string{"selector"},
	}
}
func (t *BrowserClickTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if err := checkAndConsumeBudget(ctx); err != nil {
		return ErrorResult(err.Error())
	}
	selector, _ := args["selector"].(string)
	if selector == "" {
		return ErrorResult("selector is required")
	}
	page, err := t.session.ensure()
	if err != nil {
		return ErrorResult(err.Error())
	}
	el, err := page.Timeout(browserNavTimeout).Element(selector)
	if err != nil {
		return ErrorResult(fmt.Sprintf("element not found: %v", err))
	}
	if err := el.Click("left", 1); err != nil {
		return ErrorResult(fmt.Sprintf("click failed: %v", err))
	}
	return NewResult(fmt.Sprintf("clicked %s", selector))
}

// BrowserTypeTool types text into an element matching a CSS selector.
type BrowserTypeTool struct{ session *BrowserSession }

func NewBrowserTypeTool(s *BrowserSession) *BrowserTypeTool { return &BrowserTypeTool{session: s} }

func (t *BrowserTypeTool) Name() string        { return "browser_type" }
func (t *BrowserTypeTool) Description() string { return "Type text into an element matching a CSS selector." }
func (t *BrowserTypeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"selector": map[string]interface{}{"type": "string"},
			"text":     map[string]interface{}{"type": "string"},
		},
		"required": []string{"selector", "text"},
	}
}
func (t *BrowserTypeTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if err := checkAndConsumeBudget(ctx); err != nil {
		return ErrorResult(err.Error())
	}
	selector, _ := args["selector"].(string)
	text, _ := args["text"].(string)
	if selector == "" {
		return ErrorResult("selector is required")
	}
	page, err := t.session.ensure()
	if err != nil {
		return ErrorResult(err.Error())
	}
	el, err := page.Timeout(browserNavTimeout).Element(selector)
	if err != nil {
		return ErrorResult(fmt.Sprintf("element not found: %v", err))
	}
	if err := el.Input(text); err != nil {
		return ErrorResult(fmt.Sprintf("type failed: %v", err))
	}
	return NewResult(fmt.Sprintf("typed into %s", selector))
}

// BrowserSnapshotTool returns the page's visible text content, the cheap
// way to let the model inspect page state without spending a screenshot.
type BrowserSnapshotTool struct{ session *BrowserSession }

func NewBrowserSnapshotTool(s *BrowserSession) *BrowserSnapshotTool { return &BrowserSnapshotTool{session: s} }

func (t *BrowserSnapshotTool) Name() string        { return "browser_snapshot" }
func (t *BrowserSnapshotTool) Description() string { return "Get the visible text content of the current page." }
func (t *BrowserSnapshotTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (t *BrowserSnapshotTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if err := checkAndConsumeBudget(ctx); err != nil {
		return ErrorResult(err.Error())
	}
	page, err := t.session.ensure()
	if err != nil {
		return ErrorResult(err.Error())
	}
	text, err := page.Timeout(browserNavTimeout).Element("body")
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read page body: %v", err))
	}
	content, err := text.Text()
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to extract text: %v", err))
	}
	return SilentResult(wrapExternalContent(content, "browser_snapshot", false))
}

// BrowserScreenshotTool captures the current page as a downscaled PNG and
// writes it to the workspace scratchpad, returning the path as an artifact
// rather than inlining it into the model's context (images are expensive
// tokens and the model usually only needs to know a screenshot was taken).
type BrowserScreenshotTool struct{ session *BrowserSession }

func NewBrowserScreenshotTool(s *BrowserSession) *BrowserScreenshotTool {
	return &BrowserScreenshotTool{session: s}
}

func (t *BrowserScreenshotTool) Name() string        { return "browser_screenshot" }
func (t *BrowserScreenshotTool) Description() string { return "Capture a screenshot of the current page." }
func (t *BrowserScreenshotTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (t *BrowserScreenshotTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if err := checkAndConsumeBudget(ctx); err != nil {
		return ErrorResult(err.Error())
	}
	page, err := t.session.ensure()
	if err != nil {
		return ErrorResult(err.Error())
	}
	raw, err := page.Timeout(browserNavTimeout).Screenshot(true, nil)
	if err != nil {
		return ErrorResult(fmt.Sprintf("screenshot failed: %v", err))
	}

	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to decode screenshot: %v", err))
	}
	if img.Bounds().Dx() > screenshotMaxWidth {
		img = imaging.Resize(img, screenshotMaxWidth, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return ErrorResult(fmt.Sprintf("failed to encode screenshot: %v", err))
	}

	path, err := writeScratchFile(ctx, "screenshot", ".png", buf.Bytes())
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to save screenshot: %v", err))
	}
	res := NewResult(fmt.Sprintf("screenshot saved to %s", path))
	return res.WithArtifacts(path)
}
