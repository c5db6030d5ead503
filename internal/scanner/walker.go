// Package scanner enumerates the files under a directory and feeds them to
// the file registry for /add_dir and /remove_dir.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	ctxpkg "github.com/localchat/localchat/internal/context"
	"github.com/localchat/localchat/internal/registry"
)

// Options controls a directory walk.
type Options struct {
	// RespectGitignore also skips paths matched by the root's .gitignore.
	RespectGitignore bool
	// MaxFileTokens skips files whose own token count is larger during
	// AddDir. Zero disables the limit.
	MaxFileTokens int
	// OnFile, when set, is called before each walked file is handled by
	// AddDir or RemoveDir.
	OnFile func(path string)
}

// Tracker is the part of the registry the directory operations drive.
type Tracker interface {
	Add(path string, opts ...registry.AddOption) (registry.AddResult, error)
	Remove(path string) (ctxpkg.TrackedFile, error)
	Tracked(path string) bool
	Paths() []string
}

type walkEntry struct {
	path string
	err  error
}

// Walk yields the regular files under root, recursively, in lexicographic
// order of their full path. Any entry below root whose name starts with "."
// is skipped along with everything beneath it; root itself is exempt, so
// walking "." works. Errors for unreadable directories are yielded in place
// with the directory's path.
//
// The sequence is restartable: every range walks the tree again.
func Walk(root string, opts Options) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, e := range collect(root, opts) {
			if !yield(e.path, e.err) {
				return
			}
		}
	}
}

func collect(root string, opts Options) []walkEntry {
	var ignore *IgnoreMatcher
	if opts.RespectGitignore {
		ignore = NewIgnoreMatcher(root)
	}

	// WalkDir does not follow a symlinked root, so walk its target and
	// report paths under root as given.
	walkRoot := root
	if fi, err := os.Lstat(root); err == nil && fi.Mode()&fs.ModeSymlink != 0 {
		if target, err := filepath.EvalSymlinks(root); err == nil {
			walkRoot = target
		}
	}

	var entries []walkEntry
	err := filepath.WalkDir(walkRoot, func(walked string, d fs.DirEntry, err error) error {
		rel, relErr := filepath.Rel(walkRoot, walked)
		if relErr != nil {
			return nil
		}
		path := filepath.Join(root, rel)
		if err != nil {
			entries = append(entries, walkEntry{path: path, err: err})
			if d != nil && d.IsDir() && walked != walkRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if walked == walkRoot {
			return nil
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || ignore.Match(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || ignore.Match(rel) {
			return nil
		}
		if !isRegular(walked, d) {
			return nil
		}

		entries = append(entries, walkEntry{path: path})
		return nil
	})
	if err != nil {
		entries = append(entries, walkEntry{path: root, err: err})
	}

	slices.SortStableFunc(entries, func(a, b walkEntry) int { return strings.Compare(a.path, b.path) })
	return entries
}

// isRegular accepts regular files and symlinks that resolve to one.
func isRegular(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Skip records a walked file that AddDir did not add.
type Skip struct {
	Path string
	Err  error
}

// DirResult summarises an AddDir.
type DirResult struct {
	Added     int
	Refreshed int
	// Delta is the total change to the registry's token count.
	Delta   int
	Skipped []Skip
	// Stopped is set when the walk ended early because the budget ran out.
	// Files before it stay tracked.
	Stopped *registry.BudgetExceededError
}

// checkDir returns a *registry.NotFoundError or *registry.ReadError when dir
// cannot be walked.
func checkDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &registry.NotFoundError{Path: dir}
	case err != nil:
		return &registry.ReadError{Path: dir, Err: err}
	case !info.IsDir():
		return &registry.ReadError{Path: dir, Err: errors.New("not a directory")}
	}
	return nil
}

// AddDir tracks every file Walk yields under dir. A budget failure stops the
// walk immediately; unreadable, binary, vanished and oversized files are
// skipped with their reason and the walk goes on. The returned error is only
// set when dir itself cannot be walked.
func AddDir(t Tracker, dir string, opts Options) (DirResult, error) {
	var res DirResult
	dir = registry.ExpandHome(dir)
	if err := checkDir(dir); err != nil {
		return res, err
	}

	for path, walkErr := range Walk(dir, opts) {
		if walkErr != nil {
			res.Skipped = append(res.Skipped, Skip{Path: path, Err: &registry.ReadError{Path: path, Err: walkErr}})
			slog.Warn("scanner: walk error", "path", path, "error", walkErr)
			continue
		}
		if opts.OnFile != nil {
			opts.OnFile(path)
		}

		added, err := t.Add(path, registry.WithMaxTokens(opts.MaxFileTokens))
		if err != nil {
			var be *registry.BudgetExceededError
			if errors.As(err, &be) {
				res.Stopped = be
				slog.Info("scanner: add_dir stopped", "dir", dir, "path", path, "added", res.Added)
				break
			}
			res.Skipped = append(res.Skipped, Skip{Path: path, Err: err})
			slog.Debug("scanner: skip", "path", path, "reason", err)
			continue
		}
		if added.Refreshed {
			res.Refreshed++
		} else {
			res.Added++
		}
		res.Delta += added.Delta
	}
	return res, nil
}

// RemoveDir untracks every tracked file Walk yields under dir, and every
// tracked file under dir that no longer exists on disk. A dir that has been
// deleted is not walked, but its tracked files are still released. It
// returns how many entries were removed.
func RemoveDir(t Tracker, dir string, opts Options) (int, error) {
	dir = registry.ExpandHome(dir)
	dirErr := checkDir(dir)
	var nf *registry.NotFoundError
	gone := errors.As(dirErr, &nf)
	if dirErr != nil && !gone {
		return 0, dirErr
	}

	removed := 0
	files := Walk(dir, opts)
	if gone {
		files = func(func(string, error) bool) {}
	}
	for path, walkErr := range files {
		if walkErr != nil || !t.Tracked(path) {
			continue
		}
		if opts.OnFile != nil {
			opts.OnFile(path)
		}
		if _, err := t.Remove(path); err != nil {
			return removed, fmt.Errorf("scanner: remove %s: %w", path, err)
		}
		removed++
	}

	root, err := registry.Canonical(dir)
	if err != nil {
		return removed, err
	}
	prefix := root + string(filepath.Separator)
	for _, p := range t.Paths() {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		if _, err := os.Stat(p); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if _, err := t.Remove(p); err != nil {
			return removed, fmt.Errorf("scanner: remove %s: %w", p, err)
		}
		slog.Debug("scanner: removed vanished file", "path", p)
		removed++
	}
	if gone && removed == 0 {
		return 0, dirErr
	}
	return removed, nil
}
