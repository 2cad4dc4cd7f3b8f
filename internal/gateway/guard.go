package gateway

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrForbidden is returned when a requested path escapes every permitted root.
var ErrForbidden = errors.New("forbidden")

// Guard confines file access to a fixed set of roots.
type Guard struct {
	roots []string
}

// NewGuard builds a guard over roots. Roots that do not exist yet are kept by
// their cleaned absolute path so that files created later still resolve.
func NewGuard(roots ...string) *Guard {
	g := &Guard{}
	seen := map[string]bool{}
	for _, r := range roots {
		if strings.TrimSpace(r) == "" {
			continue
		}
		abs, err := canonical(r)
		if err != nil {
			continue
		}
		if !seen[abs] {
			seen[abs] = true
			g.roots = append(g.roots, abs)
		}
	}
	return g
}

func (g *Guard) Roots() []string {
	return append([]string(nil), g.roots...)
}

// Resolve returns the canonical absolute form of path when it lies under one
// of the roots, and ErrForbidden otherwise. Symlinks are evaluated before the
// check, so a link inside a root pointing outside of it is rejected. A path
// that does not exist resolves as long as its location is confined.
func (g *Guard) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" || strings.ContainsRune(path, 0) {
		return "", ErrForbidden
	}
	abs, err := canonical(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	for _, root := range g.roots {
		if within(root, abs) {
			return abs, nil
		}
	}
	return "", ErrForbidden
}

// Allowed reports whether path resolves inside a root.
func (g *Guard) Allowed(path string) bool {
	_, err := g.Resolve(path)
	return err == nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// canonical makes p absolute and clean and evaluates symlinks on the longest
// existing prefix.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)
	var rest []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			parts := append([]string{resolved}, rest...)
			return filepath.Join(parts...), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}
