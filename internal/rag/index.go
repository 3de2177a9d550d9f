// Package rag provides the workspace BM25 index the context manager
// consults during prompt assembly. It is deliberately not a vector
// search: plain lexical BM25 over workspace file contents, re-indexed in
// the background when files change (see watcher.go).
package rag

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"
)

const (
	// BM25 free parameters, standard Robertson values.
	k1 = 1.2
	b  = 0.75

	// maxFileBytes skips files too large to be useful prompt context.
	maxFileBytes = 256 * 1024

	// snippetChars bounds each hit rendered into the prompt.
	snippetChars = 240
)

// indexableExts limits indexing to text-ish files. Everything else
// (binaries, images, archives) is skipped.
var indexableExts = map[string]bool{
	".go": true, ".md": true, ".txt": true, ".json": true, ".yaml": true,
	".yml": true, ".toml": true, ".js": true, ".ts": true, ".tsx": true,
	".py": true, ".rs": true, ".c": true, ".h": true, ".cpp": true,
	".java": true, ".sh": true, ".sql": true, ".html": true, ".css": true,
}

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, ".scratch": true, "vendor": true,
	"target": true, "dist": true, "__pycache__": true,
}

type document struct {
	path    string
	terms   map[string]int
	length  int
	preview string
}

// Hit is one scored result from Search.
type Hit struct {
	Path    string
	Score   float64
	Snippet string
}

// Index is an in-memory BM25 index over one workspace root.
type Index struct {
	mu        sync.RWMutex
	root      string
	docs      map[string]*document // keyed by relative path
	docFreq   map[string]int
	totalLen  int
}

// NewIndex creates an empty index rooted at root. Call Reindex (or start
// a Watcher) to populate it.
func NewIndex(root string) *Index {
	return &Index{
		root:    root,
		docs:    make(map[string]*document),
		docFreq: make(map[string]int),
	}
}

// Reindex walks the workspace and rebuilds the whole index. Errors on
// individual files are skipped; the walk itself only fails if the root is
// unreadable.
func (ix *Index) Reindex() error {
	docs := make(map[string]*document)

	err := filepath.WalkDir(ix.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") && path != ix.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !indexableExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxFileBytes {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(ix.root, path)
		if err != nil {
			return nil
		}
		docs[rel] = buildDocument(rel, string(data))
		return nil
	})
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.docs = docs
	ix.recompute()
	return nil
}

// Update re-indexes a single file (or removes it if it no longer exists).
// Called by the watcher on debounced change events.
func (ix *Index) Update(absPath string) {
	rel, err := filepath.Rel(ix.root, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	if !indexableExts[strings.ToLower(filepath.Ext(absPath))] {
		return
	}

	data, err := os.ReadFile(absPath)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err != nil {
		delete(ix.docs, rel)
	} else if len(data) <= maxFileBytes {
		ix.docs[rel] = buildDocument(rel, string(data))
	}
	ix.recompute()
}

// Search returns the top-k BM25 hits for a free-text query, highest score
// first, each with its path and a snippet sized for prompt injection.
func (ix *Index) Search(query string, k int) []Hit {
	terms := tokenize(query)
	if len(terms) == 0 || k <= 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := len(ix.docs)
	if n == 0 {
		return nil
	}
	avgLen := float64(ix.totalLen) / float64(n)

	var hits []Hit
	for _, doc := range ix.docs {
		var score float64
		for _, term := range terms {
			tf := doc.terms[term]
			if tf == 0 {
				continue
			}
			df := ix.docFreq[term]
			idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
			score += idf * float64(tf) * (k1 + 1) /
				(float64(tf) + k1*(1-b+b*float64(doc.length)/avgLen))
		}
		if score > 0 {
			hits = append(hits, Hit{Path: doc.path, Score: score, Snippet: doc.preview})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// DocCount returns the number of indexed files.
func (ix *Index) DocCount() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// recompute rebuilds document frequencies and the total length. Caller
// must hold ix.mu.
func (ix *Index) recompute() {
	ix.docFreq = make(map[string]int)
	ix.totalLen = 0
	for _, doc := range ix.docs {
		ix.totalLen += doc.length
		for term := range doc.terms {
			ix.docFreq[term]++
		}
	}
}

func buildDocument(rel, content string) *document {
	tokens := tokenize(content)
	terms := make(map[string]int, len(tokens))
	for _, t := range tokens {
		terms[t]++
	}
	preview := strings.TrimSpace(content)
	if len(preview) > snippetChars {
		preview = preview[:snippetChars]
	}
	return &document{path: rel, terms: terms, length: len(tokens), preview: preview}
}

func tokenize(s string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() >= 2 {
			tokens = append(tokens, strings.ToLower(b.String()))
		}
		b.Reset()
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
