package context

import "time"

// TrackedFile is one file whose content is sent with every prompt. Entries
// are replaced whole on re-add and never mutated in place.
type TrackedFile struct {
	// Path is the canonical absolute path and the registry key.
	Path    string
	Content string
	Tokens  int
	// ModTime and Hash describe the file as it was when Content was read.
	ModTime time.Time
	Hash    string
}
