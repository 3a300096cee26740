package scanner

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnorePattern represents a single gitignore-style pattern.
type IgnorePattern struct {
	pattern     string // Original pattern
	isNegation  bool   // True if pattern starts with !
	isDirectory bool   // True if pattern ends with /
	isAbsolute  bool   // True if pattern starts with /
	glob        string // doublestar glob matched against slash-separated relative paths
}

// ParseIgnorePattern parses a gitignore-style pattern string. Patterns
// without a leading slash match at any depth; patterns with a trailing
// slash match everything below the named directory.
func ParseIgnorePattern(pattern string) (IgnorePattern, error) {
	p := IgnorePattern{pattern: pattern}

	if strings.HasPrefix(pattern, "!") {
		p.isNegation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.isDirectory = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		p.isAbsolute = true
		pattern = pattern[1:]
	}

	glob := pattern
	if !p.isAbsolute && !strings.HasPrefix(glob, "**/") {
		glob = "**/" + glob
	}
	if p.isDirectory {
		glob += "/**"
	}
	if pattern == "" || !doublestar.ValidatePattern(glob) {
		return IgnorePattern{}, fmt.Errorf("invalid ignore pattern %q", p.pattern)
	}
	p.glob = glob

	return p, nil
}

// Match checks if the given path matches this ignore pattern.
// Negation patterns also report a match; the caller decides what it means.
func (p IgnorePattern) Match(path string) bool {
	ok, err := doublestar.Match(p.glob, filepath.ToSlash(path))
	return err == nil && ok
}

// IsNegation returns true if this pattern is a negation pattern.
func (p IgnorePattern) IsNegation() bool {
	return p.isNegation
}

func (p IgnorePattern) String() string {
	return p.pattern
}
