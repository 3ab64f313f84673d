package transfer

import (
	"path/filepath"

	"github.com/moby/patternmatcher"
)

// DefaultExcludes skips version control metadata, installed dependencies and dotfiles at
// any depth.
var DefaultExcludes = []string{"**/.git", "**/node_modules", "**/.*"}

// Matcher decides which local paths are left out of an upload. Patterns use
// .dockerignore syntax and are matched against paths relative to the upload root.
type Matcher struct {
	pm *patternmatcher.PatternMatcher
}

func NewMatcher(extra ...string) (*Matcher, error) {
	patterns := append(append([]string{}, DefaultExcludes...), extra...)
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, err
	}
	return &Matcher{pm: pm}, nil
}

// Excluded reports whether rel, or one of its parent directories, is excluded.
func (m *Matcher) Excluded(rel string) (bool, error) {
	rel = filepath.Clean(rel)
	if rel == "." {
		return false, nil
	}
	return m.pm.MatchesOrParentMatches(rel)
}
