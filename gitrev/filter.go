package gitrev

import (
	"fmt"
	"path"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPatterns selects every JSON file in the repository.
var DefaultPatterns = []string{"**/*.json"}

// Filter selects manifest paths by doublestar glob.
type Filter struct {
	patterns []string
}

// NewFilter validates patterns. No patterns selects DefaultPatterns.
func NewFilter(patterns ...string) (*Filter, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid manifest pattern %q", p)
		}
	}
	return &Filter{patterns: append([]string(nil), patterns...)}, nil
}

// Match reports whether a repository path is a manifest.
func (f *Filter) Match(p string) bool {
	p = path.Clean(p)
	for _, pattern := range f.patterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

// Patterns returns the configured globs.
func (f *Filter) Patterns() []string {
	return append([]string(nil), f.patterns...)
}
