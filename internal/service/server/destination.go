package server

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

// destinationPolicy limits the directories an API client may write into
type destinationPolicy struct {
	roots []string
}

func newDestinationPolicy(dirs []string) destinationPolicy {
	roots := lo.FilterMap(dirs, func(dir string, _ int) (string, bool) {
		if dir == "" {
			return "", false
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", false
		}
		return resolvePath(abs), true
	})
	return destinationPolicy{roots: lo.Uniq(roots)}
}

// allows reports whether dir is one of the roots or lies below one.
// Symlinks are resolved on both sides before comparing.
func (p destinationPolicy) allows(dir string) bool {
	target := resolvePath(dir)
	return lo.SomeBy(p.roots, func(root string) bool {
		rel, err := filepath.Rel(root, target)
		if err != nil || filepath.IsAbs(rel) {
			return false
		}
		return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
	})
}

func (p destinationPolicy) empty() bool {
	return len(p.roots) == 0
}

func resolvePath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

// isJSON reports whether a Content-Type header names application/json
func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
