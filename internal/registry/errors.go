package registry

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Every typed error below matches one of them.
var (
	ErrNotFound       = errors.New("not found")
	ErrRead           = errors.New("unreadable file")
	ErrBudgetExceeded = errors.New("context budget exceeded")
	ErrTooLarge       = errors.New("file exceeds the per-file token limit")
)

// NotFoundError reports a path that is missing from the filesystem or from
// the registry.
type NotFoundError struct {
	Path string
	// Tracked is true when the path was looked up in the registry rather
	// than on disk.
	Tracked bool
}

func (e *NotFoundError) Error() string {
	if e.Tracked {
		return fmt.Sprintf("%s is not being tracked", e.Path)
	}
	return fmt.Sprintf("%s does not exist", e.Path)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ReadError reports a file that exists but cannot be used as text.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("cannot read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func (e *ReadError) Is(target error) bool { return target == ErrRead }

// BudgetExceededError reports an add that would leave the budget negative.
type BudgetExceededError struct {
	Path string
	// Needed is the token increase the add would have caused.
	Needed    int
	Available int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("adding %s needs %d tokens but only %d are available", e.Path, e.Needed, e.Available)
}

func (e *BudgetExceededError) Is(target error) bool { return target == ErrBudgetExceeded }

// TooLargeError reports a file over the per-file limit given with
// WithMaxTokens.
type TooLargeError struct {
	Path   string
	Tokens int
	Limit  int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("%s has %d tokens, over the per-file limit of %d", e.Path, e.Tokens, e.Limit)
}

func (e *TooLargeError) Is(target error) bool { return target == ErrTooLarge }

// errBinary is wrapped in a ReadError for content that is not text.
var errBinary = errors.New("binary or non-UTF-8 content")
