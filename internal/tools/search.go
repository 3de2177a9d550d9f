package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/agentrt/internal/security"
)

const (
	defaultSearchMaxMatches = 200
	defaultGlobMaxResults   = 500
)

var defaultSkipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, ".venv": true,
	"__pycache__": true, "dist": true, "build": true, ".cache": true,
}

// SearchFilesTool greps file contents for a regex pattern, walking the
// workspace tree and skipping the usual build/VCS noise directories.
type SearchFilesTool struct {
	guard *security.PathGuard
}

func NewSearchFilesTool(guard *security.PathGuard) *SearchFilesTool {
	return &SearchFilesTool{guard: guard}
}

func (t *SearchFilesTool) Name() string        { return "search_files" }
func (t *SearchFilesTool) Description() string { return "Search file contents for a regex pattern." }
func (t *SearchFilesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{"type": "string", "description": "Regular expression to search for."},
			"path":    map[string]interface{}{"type": "string", "description": "Directory to search under (default: project root)."},
		},
		"required": []string{"pattern"},
	}
}

func (t *SearchFilesTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return ErrorResult("pattern is required")
	}
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	resolved, err := t.guard.Resolve(path)
	if err != nil {
		return ErrorResult(err.Error())
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid regex: %v", err))
	}

	var matches []string
	walkErr := filepath.Walk(resolved, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if len(matches) >= defaultSearchMaxMatches {
			return filepath.SkipDir
		}
		if info.IsDir() {
			if defaultSkipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if re.MatchString(scanner.Text()) {
				rel, _ := filepath.Rel(t.guard.Root(), p)
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, lineNo, strings.TrimSpace(scanner.Text())))
				if len(matches) >= defaultSearchMaxMatches {
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return ErrorResult(fmt.Sprintf("search failed: %v", walkErr))
	}
	if len(matches) == 0 {
		return SilentResult("no matches found")
	}
	return SilentResult(strings.Join(matches, "\n"))
}

// GlobTool matches file paths against a glob pattern relative to the
// workspace root.
type GlobTool struct {
	guard *security.PathGuard
}

func NewGlobTool(guard *security.PathGuard) *GlobTool {
	return &GlobTool{guard: guard}
}

func (t *GlobTool) Name() string        { return "glob" }
func (t *GlobTool) Description() string { return "Find files matching a glob pattern." }
func (t *GlobTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{"type": "string", "description": "Glob pattern, e.g. **/*.go"},
		},
		"required": []string{"pattern"},
	}
}

func (t *GlobTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return ErrorResult("pattern is required")
	}
	root := t.guard.Root()

	var results []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if len(results) >= defaultGlobMaxResults {
			return filepath.SkipDir
		}
		if info.IsDir() {
			if defaultSkipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			results = append(results, rel)
			return nil
		}
		if matched, _ := filepath.Match(pattern, filepath.Base(rel)); matched {
			results = append(results, rel)
		}
		return nil
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("glob failed: %v", err))
	}
	sort.Strings(results)
	if len(results) == 0 {
		return SilentResult("no files matched")
	}
	return SilentResult(strings.Join(results, "\n"))
}
