package cms

import (
	"path"
	"strings"
)

// defaultIgnorePatterns are always applied to remote listings.
var defaultIgnorePatterns = []string{".keep"}

type ignorePattern struct {
	pattern   string
	matchPath bool // match against the full path instead of the basename
}

// IgnoreMatcher filters remote directory entries by name.
// Patterns without '/' match the basename; patterns with '/' match the full path.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher builds a matcher from raw patterns plus the defaults.
// Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range append(append([]string{}, defaultIgnorePatterns...), rawPatterns...) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		patterns = append(patterns, ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether the entry at name (a slash-separated path) is ignored.
func (m *IgnoreMatcher) Match(name string) bool {
	base := path.Base(name)
	for _, p := range m.patterns {
		subject := base
		if p.matchPath {
			subject = strings.TrimPrefix(name, "/")
		}
		matched, err := path.Match(p.pattern, subject)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
