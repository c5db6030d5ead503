package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	ctxpkg "github.com/localchat/localchat/internal/context"
)

// NoLens is the name accepted by SwitchLens to deactivate the current lens.
const NoLens = "none"

var (
	ErrLensExists   = errors.New("lens already exists")
	ErrUnknownLens  = errors.New("lens does not exist")
	ErrNoActiveLens = errors.New("no active lens")
	ErrNotInLens    = errors.New("file is not part of the lens")
	ErrLensName     = errors.New("invalid lens name")
)

// lensTable holds the named subsets of tracked paths. Membership is keyed by
// canonical path; order comes from the registry.
type lensTable struct {
	names   []string
	members map[string]map[string]struct{}
	active  string
}

func newLensTable() *lensTable {
	return &lensTable{members: make(map[string]map[string]struct{})}
}

func (t *lensTable) activeSet() map[string]struct{} {
	if t.active == "" {
		return nil
	}
	return t.members[t.active]
}

func (t *lensTable) forget(path string) {
	for _, set := range t.members {
		delete(set, path)
	}
}

func (t *lensTable) empty() {
	for name := range t.members {
		t.members[name] = make(map[string]struct{})
	}
}

func validLensName(name string) error {
	if strings.TrimSpace(name) == "" || name == NoLens || strings.ContainsAny(name, " \t") {
		return fmt.Errorf("%w: %q", ErrLensName, name)
	}
	return nil
}

// CreateLens creates an empty lens and makes it active.
func (r *Registry) CreateLens(name string) error {
	if err := validLensName(name); err != nil {
		return err
	}
	if _, ok := r.lenses.members[name]; ok {
		return fmt.Errorf("%w: %s", ErrLensExists, name)
	}
	r.lenses.names = append(r.lenses.names, name)
	r.lenses.members[name] = make(map[string]struct{})
	r.lenses.active = name
	return nil
}

// DefineLens creates or replaces a lens with the tracked subset of paths,
// without changing which lens is active. It is used when restoring state.
func (r *Registry) DefineLens(name string, paths []string) error {
	if err := validLensName(name); err != nil {
		return err
	}
	if _, ok := r.lenses.members[name]; !ok {
		r.lenses.names = append(r.lenses.names, name)
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		abs, err := Canonical(p)
		if err != nil {
			continue
		}
		if _, tracked := r.files[abs]; tracked {
			set[abs] = struct{}{}
		}
	}
	r.lenses.members[name] = set
	return nil
}

// Lenses returns lens names in creation order.
func (r *Registry) Lenses() []string {
	return slices.Clone(r.lenses.names)
}

// ActiveLens returns the active lens name, or "" when none is active.
func (r *Registry) ActiveLens() string { return r.lenses.active }

// SwitchLens activates name. NoLens (or "") deactivates lenses so every
// tracked file is sent again.
func (r *Registry) SwitchLens(name string) error {
	if name == NoLens || name == "" {
		r.lenses.active = ""
		return nil
	}
	if _, ok := r.lenses.members[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLens, name)
	}
	r.lenses.active = name
	return nil
}

// AddToLens puts a tracked file into the active lens.
func (r *Registry) AddToLens(path string) error {
	set := r.lenses.activeSet()
	if set == nil {
		return ErrNoActiveLens
	}
	abs, err := Canonical(path)
	if err != nil {
		return &NotFoundError{Path: path, Tracked: true}
	}
	if _, ok := r.files[abs]; !ok {
		return &NotFoundError{Path: path, Tracked: true}
	}
	set[abs] = struct{}{}
	return nil
}

// RemoveFromLens takes a file out of the active lens. The file stays
// tracked.
func (r *Registry) RemoveFromLens(path string) error {
	set := r.lenses.activeSet()
	if set == nil {
		return ErrNoActiveLens
	}
	abs, err := Canonical(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotInLens, path)
	}
	if _, ok := set[abs]; !ok {
		return fmt.Errorf("%w: %s", ErrNotInLens, path)
	}
	delete(set, abs)
	return nil
}

// LensFiles returns the members of the named lens in registry order.
func (r *Registry) LensFiles(name string) ([]ctxpkg.TrackedFile, error) {
	set, ok := r.lenses.members[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLens, name)
	}
	var out []ctxpkg.TrackedFile
	for _, p := range r.order {
		if _, in := set[p]; in {
			out = append(out, r.files[p])
		}
	}
	return out, nil
}

// LensPaths returns the members of the named lens in registry order.
func (r *Registry) LensPaths(name string) []string {
	files, err := r.LensFiles(name)
	if err != nil {
		return nil
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}
