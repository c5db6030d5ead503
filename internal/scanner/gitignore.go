package scanner

import (
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreMatcher wraps a gitignore pattern matcher.
type IgnoreMatcher struct {
	gi *gitignore.GitIgnore
}

// NewIgnoreMatcher loads .gitignore from the walk root.
// If no .gitignore file is found, the matcher accepts everything.
func NewIgnoreMatcher(root string) *IgnoreMatcher {
	path := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(path); err != nil {
		return &IgnoreMatcher{}
	}
	gi, err := gitignore.CompileIgnoreFile(path)
	if err != nil {
		return &IgnoreMatcher{}
	}
	return &IgnoreMatcher{gi: gi}
}

// Match returns true if the given path, relative to the root, should be
// ignored. Directories should be passed with a trailing slash so that
// "build/" style patterns apply to them.
func (m *IgnoreMatcher) Match(relPath string) bool {
	if m == nil || m.gi == nil {
		return false
	}
	return m.gi.MatchesPath(filepath.ToSlash(relPath))
}
