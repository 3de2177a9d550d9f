// Package sessions — session key builder and parser.
//
// Session keys follow the canonical format:
//
//	session:{project}:{id}
//
// Where {project} is a short identifier derived from the project root
// (its base name, lowercased, unsafe chars replaced) and {id} is a
// caller-chosen or generated session identifier.
package sessions

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BuildKey builds the canonical session key for a project + session id.
func BuildKey(projectRoot, id string) string {
	return fmt.Sprintf("session:%s:%s", projectSlug(projectRoot), id)
}

// NewKey builds a session key with a fresh random id.
func NewKey(projectRoot string) string {
	return BuildKey(projectRoot, uuid.NewString()[:8])
}

// ParseKey splits a session key into its project slug and id. Returns
// ok=false for keys that don't follow the canonical format.
func ParseKey(key string) (project, id string, ok bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] != "session" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// projectSlug derives a filesystem- and key-safe identifier from a
// project root path.
func projectSlug(projectRoot string) string {
	base := filepath.Base(filepath.Clean(projectRoot))
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "default"
	}
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
