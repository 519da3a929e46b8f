// Package source knows where asset modules live and where their artifacts go.
//
// Modules are discovered by glob on every call to Enumerate. Nothing is
// cached: a module created or deleted between two events is seen by the
// second one.
package source

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/assetkit/internal/errors"
)

// Kind identifies an asset kind with its own modules, watch globs and output.
type Kind string

const (
	KindStylesheet Kind = "stylesheet"
	KindScript     Kind = "script"
)

// Kinds lists every supported kind in build order.
var Kinds = []Kind{KindStylesheet, KindScript}

func (k Kind) String() string {
	return string(k)
}

// Extension returns the artifact extension, dot included.
func (k Kind) Extension() string {
	switch k {
	case KindScript:
		return ".js"
	default:
		return ".css"
	}
}

// ParseKind accepts the kind name or its short config key.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "stylesheet", "css":
		return KindStylesheet, nil
	case "script", "js":
		return KindScript, nil
	default:
		return "", fmt.Errorf("unknown asset kind %q", s)
	}
}

// Enumerate expands patterns into an ordered, duplicate-free list of files.
// Pattern order is kept; matches of one pattern are sorted lexically.
// Dot files are never modules: tools write their temp files that way.
func Enumerate(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(normalize(pattern), doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.NewIOError(errors.CodeGlobFailed, "cannot expand pattern "+pattern, err)
		}
		sort.Strings(matches)

		for _, match := range matches {
			clean := filepath.Clean(match)
			if seen[clean] || strings.HasPrefix(filepath.Base(clean), ".") {
				continue
			}
			seen[clean] = true
			files = append(files, clean)
		}
	}

	return files, nil
}

// Match reports whether path matches any of patterns.
func Match(patterns []string, path string) bool {
	slashed := filepath.ToSlash(filepath.Clean(path))
	for _, pattern := range patterns {
		ok, err := doublestar.PathMatch(normalize(pattern), filepath.FromSlash(slashed))
		if err == nil && ok {
			return true
		}
	}

	return false
}

// Roots returns the static directory prefix of every pattern, deduplicated.
// A watcher registers these directories and their descendants.
func Roots(patterns []string) []string {
	seen := make(map[string]bool)
	var roots []string

	for _, pattern := range patterns {
		base, _ := doublestar.SplitPattern(filepath.ToSlash(normalize(pattern)))
		root := filepath.Clean(filepath.FromSlash(base))
		if seen[root] {
			continue
		}
		seen[root] = true
		roots = append(roots, root)
	}

	return roots
}

// normalize cleans pattern so "./static/*.html" and "static/*.html" match
// the same paths.
func normalize(pattern string) string {
	return filepath.Clean(filepath.FromSlash(pattern))
}

// Basename is the module filename without directory and extension.
func Basename(path string) string {
	name := filepath.Base(path)

	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ArtifactPath returns where the compiled artifact of module is written.
func ArtifactPath(dist string, kind Kind, module string) string {
	return filepath.Join(dist, Basename(module)+kind.Extension())
}

// SamePath compares two paths after cleaning.
func SamePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}
