// Package security implements the path and command sanitizers that every
// tool execution passes through: canonical-path traversal guarding with
// symlink/hardlink awareness, and a denylist of dangerous shell constructs.
package security

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// PathGuard validates that paths resolve inside a fixed project root.
type PathGuard struct {
	root string
}

// NewPathGuard creates a guard rooted at root. root need not exist yet.
func NewPathGuard(root string) *PathGuard {
	return &PathGuard{root: root}
}

// Root returns the configured project root, unresolved.
func (g *PathGuard) Root() string { return g.root }

// Resolve canonicalizes path against the project root and rejects any
// result that escapes it: JSON-escape artifacts in Windows paths are
// repaired first, symlinks (including broken ones) are resolved before
// the containment check, mutable-symlink-parent components are rejected
// as a TOCTOU rebind risk, and hardlinked regular files are rejected
// outright.
func (g *PathGuard) Resolve(path string) (string, error) {
	path = repairEscapedWindowsPath(path)

	var candidate string
	if filepath.IsAbs(path) {
		candidate = filepath.Clean(path)
	} else {
		candidate = filepath.Clean(filepath.Join(g.root, path))
	}

	absRoot, _ := filepath.Abs(g.root)
	rootReal, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		rootReal = absRoot // root doesn't exist yet
	}

	absCandidate, _ := filepath.Abs(candidate)
	real, err := filepath.EvalSymlinks(absCandidate)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("security.path_resolve_failed", "path", path, "error", err)
			return "", fmt.Errorf("access denied: cannot resolve path")
		}
		real, err = resolveMissing(absCandidate, rootReal)
		if err != nil {
			return "", err
		}
	}

	if !isPathInside(real, rootReal) {
		slog.Warn("security.path_escape", "path", path, "resolved", real, "root", rootReal)
		return "", fmt.Errorf("access denied: path outside project root")
	}
	if hasMutableSymlinkParent(real) {
		slog.Warn("security.mutable_symlink_parent", "path", path, "resolved", real)
		return "", fmt.Errorf("access denied: path contains mutable symlink component")
	}
	if err := checkHardlink(real); err != nil {
		return "", err
	}
	return real, nil
}

// repairEscapedWindowsPath undoes JSON string-escape damage in Windows
// paths. A model that emits `C:\backups\temp` inside a JSON argument
// delivers `C:` + backspace + `ackups` + tab + `emp` after decoding —
// the `\b`, `\t`, `\f`, `\n`, `\r` sequences collapsed into control
// characters. Inside an absolute drive-letter prefix those control
// characters can only be mangled separators, so they are reinterpreted
// as the literal two-character sequences they started as. Paths without
// a drive-letter prefix pass through untouched.
func repairEscapedWindowsPath(path string) string {
	if len(path) < 2 || path[1] != ':' || !isDriveLetter(path[0]) {
		return path
	}
	var b strings.Builder
	b.Grow(len(path) + 4)
	for _, r := range path {
		switch r {
		case '\b':
			b.WriteString(`\b`)
		case '\t':
			b.WriteString(`\t`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDriveLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// resolveMissing handles a path that doesn't exist yet, including the case
// where the path itself is a dangling symlink.
func resolveMissing(absCandidate, rootReal string) (string, error) {
	if linfo, lerr := os.Lstat(absCandidate); lerr == nil && linfo.Mode()&os.ModeSymlink != 0 {
		target, readErr := os.Readlink(absCandidate)
		if readErr != nil {
			return "", fmt.Errorf("access denied: cannot resolve symlink")
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(absCandidate), target)
		}
		target = filepath.Clean(target)

		resolved, resolveErr := resolveThroughExistingAncestors(target)
		if resolveErr != nil {
			return "", fmt.Errorf("access denied: cannot resolve broken symlink target")
		}
		if !isPathInside(resolved, rootReal) {
			return "", fmt.Errorf("access denied: broken symlink target outside project root")
		}
		return resolved, nil
	}

	parentReal, parentErr := filepath.EvalSymlinks(filepath.Dir(absCandidate))
	if parentErr != nil {
		return "", fmt.Errorf("access denied: cannot resolve path")
	}
	return filepath.Join(parentReal, filepath.Base(absCandidate)), nil
}

func isPathInside(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

// resolveThroughExistingAncestors walks up from target to the deepest
// existing ancestor, canonicalizes that ancestor, then reappends the
// non-existent tail. Handles broken symlinks whose target contains
// intermediate symlinks that escape the root.
func resolveThroughExistingAncestors(target string) (string, error) {
	if real, err := filepath.EvalSymlinks(target); err == nil {
		return real, nil
	}

	current := target
	var tail []string
	for {
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		tail = append([]string{filepath.Base(current)}, tail...)
		current = parent

		if realParent, err := filepath.EvalSymlinks(current); err == nil {
			result := realParent
			for _, component := range tail {
				result = filepath.Join(result, component)
			}
			return result, nil
		}
	}
	return filepath.Clean(target), nil
}

// hasMutableSymlinkParent reports whether any path component is a symlink
// whose parent directory is writable by this process — such a symlink
// could be rebound between resolution and the actual file operation.
func hasMutableSymlinkParent(path string) bool {
	clean := filepath.Clean(path)
	components := strings.Split(clean, string(filepath.Separator))
	current := string(filepath.Separator)
	for _, comp := range components {
		if comp == "" {
			continue
		}
		current = filepath.Join(current, comp)
		info, err := os.Lstat(current)
		if err != nil {
			break
		}
		if info.Mode()&os.ModeSymlink != 0 {
			parentDir := filepath.Dir(current)
			if syscall.Access(parentDir, 0x2 /* W_OK */) == nil {
				return true
			}
		}
	}
	return false
}

// checkHardlink rejects regular files with nlink > 1. Directories are
// naturally nlink > 1 (each subdirectory's ".." entry) and are exempt.
func checkHardlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		return nil
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		if stat.Nlink > 1 {
			slog.Warn("security.hardlink_rejected", "path", path, "nlink", stat.Nlink)
			return fmt.Errorf("access denied: hardlinked file not allowed")
		}
	}
	return nil
}
