// Package registry keeps the set of files whose content goes into every
// prompt, together with the running token total the budget is checked
// against.
//
// Content is read and counted once, when a file is added. Later edits to the
// file on disk are not seen until the file is added again (or refreshed):
// there is no file watching.
package registry

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	ctxpkg "github.com/localchat/localchat/internal/context"
)

// Registry is the ordered set of tracked files. It is owned by one chat
// session and is not safe for concurrent use.
type Registry struct {
	counter ctxpkg.Counter
	budget  ctxpkg.Budget

	order []string // canonical paths, insertion order
	files map[string]ctxpkg.TrackedFile
	total int

	lenses *lensTable
}

// New creates an empty Registry. limits must already be validated.
func New(counter ctxpkg.Counter, limits ctxpkg.Limits) *Registry {
	r := &Registry{
		counter: counter,
		files:   make(map[string]ctxpkg.TrackedFile),
		lenses:  newLensTable(),
	}
	r.budget = ctxpkg.NewBudget(limits, r)
	return r
}

// ExpandHome replaces a leading "~" path element with the user's home
// directory. Other paths, and "~user" forms, are returned unchanged.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// Canonical returns the key a path is tracked under: home-expanded,
// absolute and cleaned. Symlinks are not resolved, so a file reached
// through two links is two entries.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(ExpandHome(path))
	if err != nil {
		return "", fmt.Errorf("registry: resolve %s: %w", path, err)
	}
	return abs, nil
}

// AddResult describes a successful Add.
type AddResult struct {
	File ctxpkg.TrackedFile
	// Refreshed is true when the path was already tracked and its entry
	// was replaced in place.
	Refreshed bool
	// Delta is the change to the total token count.
	Delta int
}

// AddOption adjusts a single Add.
type AddOption func(*addOptions)

type addOptions struct {
	maxTokens int
}

// WithMaxTokens rejects a file whose own token count exceeds n with a
// *TooLargeError. n <= 0 means no per-file limit.
func WithMaxTokens(n int) AddOption {
	return func(o *addOptions) { o.maxTokens = n }
}

// Add reads path, counts its tokens and tracks it. Re-adding a tracked path
// refreshes its content and count in place, keeping its position. On any
// error the registry is unchanged.
func (r *Registry) Add(path string, opts ...AddOption) (AddResult, error) {
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}

	abs, err := Canonical(path)
	if err != nil {
		return AddResult{}, &ReadError{Path: path, Err: err}
	}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return AddResult{}, &NotFoundError{Path: path}
	case err != nil:
		return AddResult{}, &ReadError{Path: path, Err: err}
	case info.IsDir():
		return AddResult{}, &ReadError{Path: path, Err: errors.New("is a directory (use /add_dir)")}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return AddResult{}, &ReadError{Path: path, Err: err}
	}
	if !isText(data) {
		return AddResult{}, &ReadError{Path: path, Err: errBinary}
	}

	content := string(data)
	tokens := r.counter.Count(content)

	if o.maxTokens > 0 && tokens > o.maxTokens {
		return AddResult{}, &TooLargeError{Path: path, Tokens: tokens, Limit: o.maxTokens}
	}

	prev, refreshed := r.files[abs]
	delta := tokens - prev.Tokens
	if !r.budget.CanFit(delta) {
		slog.Debug("registry: add rejected", "path", abs, "tokens", tokens, "available", r.budget.Available())
		return AddResult{}, &BudgetExceededError{Path: path, Needed: delta, Available: r.budget.Available()}
	}

	f := ctxpkg.TrackedFile{
		Path:    abs,
		Content: content,
		Tokens:  tokens,
		ModTime: info.ModTime(),
		Hash:    fmt.Sprintf("%x", sha256.Sum256(data)),
	}
	r.files[abs] = f
	if !refreshed {
		r.order = append(r.order, abs)
	}
	r.total += delta

	slog.Debug("registry: add", "path", abs, "tokens", tokens, "refreshed", refreshed, "total", r.total)
	return AddResult{File: f, Refreshed: refreshed, Delta: delta}, nil
}

// Remove stops tracking path. Removing a path that is not tracked is an
// error (*NotFoundError) and changes nothing. The file is also dropped from
// every lens.
func (r *Registry) Remove(path string) (ctxpkg.TrackedFile, error) {
	abs, err := Canonical(path)
	if err != nil {
		return ctxpkg.TrackedFile{}, &NotFoundError{Path: path, Tracked: true}
	}
	f, ok := r.files[abs]
	if !ok {
		return ctxpkg.TrackedFile{}, &NotFoundError{Path: path, Tracked: true}
	}

	delete(r.files, abs)
	r.order = slices.DeleteFunc(r.order, func(p string) bool { return p == abs })
	r.total -= f.Tokens
	r.lenses.forget(abs)

	slog.Debug("registry: remove", "path", abs, "tokens", f.Tokens, "total", r.total)
	return f, nil
}

// Clear stops tracking everything. Lenses survive but are emptied.
func (r *Registry) Clear() {
	r.order = nil
	r.files = make(map[string]ctxpkg.TrackedFile)
	r.total = 0
	r.lenses.empty()
	slog.Debug("registry: clear")
}

// Tracked reports whether path is tracked.
func (r *Registry) Tracked(path string) bool {
	abs, err := Canonical(path)
	if err != nil {
		return false
	}
	_, ok := r.files[abs]
	return ok
}

// Len returns the number of tracked files.
func (r *Registry) Len() int { return len(r.order) }

// TotalTokens is the sum of the token counts of all tracked files.
func (r *Registry) TotalTokens() int { return r.total }

// Budget returns the budget view over this registry.
func (r *Registry) Budget() ctxpkg.Budget { return r.budget }

// Files yields the tracked files in insertion order. Each range starts over.
func (r *Registry) Files() iter.Seq[ctxpkg.TrackedFile] {
	return func(yield func(ctxpkg.TrackedFile) bool) {
		for _, p := range r.order {
			if !yield(r.files[p]) {
				return
			}
		}
	}
}

// Entries yields (path, tokens) pairs in insertion order.
func (r *Registry) Entries() iter.Seq2[string, int] {
	return func(yield func(string, int) bool) {
		for _, p := range r.order {
			if !yield(p, r.files[p].Tokens) {
				return
			}
		}
	}
}

// Paths returns the tracked paths in insertion order.
func (r *Registry) Paths() []string {
	return slices.Clone(r.order)
}

// ContextFiles yields the files that go into the prompt: the members of the
// active lens when one is set, otherwise every tracked file. Order is
// registry insertion order either way.
func (r *Registry) ContextFiles() iter.Seq[ctxpkg.TrackedFile] {
	return func(yield func(ctxpkg.TrackedFile) bool) {
		active := r.lenses.activeSet()
		for _, p := range r.order {
			if active != nil {
				if _, ok := active[p]; !ok {
					continue
				}
			}
			if !yield(r.files[p]) {
				return
			}
		}
	}
}

// RefreshResult summarises a Refresh.
type RefreshResult struct {
	Refreshed int
	Delta     int
	// Failed maps paths that could not be re-read to the reason. Their
	// entries keep the previously cached content.
	Failed map[string]error
	// Stopped is set when a refresh would exceed the budget; files after
	// it were not refreshed.
	Stopped *BudgetExceededError
}

// Refresh re-reads every tracked file, in order. Each file is refreshed
// atomically; a file that vanished or became unreadable keeps its old entry.
// A budget failure stops the pass.
func (r *Registry) Refresh() RefreshResult {
	res := RefreshResult{Failed: make(map[string]error)}
	for _, p := range r.Paths() {
		added, err := r.Add(p)
		if err != nil {
			var be *BudgetExceededError
			if errors.As(err, &be) {
				res.Stopped = be
				break
			}
			res.Failed[p] = err
			continue
		}
		res.Refreshed++
		res.Delta += added.Delta
	}
	return res
}

// isText accepts valid UTF-8 without NUL bytes.
func isText(data []byte) bool {
	return utf8.Valid(data) && bytes.IndexByte(data, 0) < 0
}
