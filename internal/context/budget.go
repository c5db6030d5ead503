package context

import "fmt"

// Usage reports how many tokens tracked content currently occupies.
type Usage interface {
	TotalTokens() int
}

// Limits are the fixed numbers a Budget is computed from.
type Limits struct {
	// MaxContextTokens is the model's context window.
	MaxContextTokens int
	// ReservedTokens is held back for the system prompt, the conversation
	// history and the response.
	ReservedTokens int
}

// Validate checks that the limits leave room for tracked content.
func (l Limits) Validate() error {
	if l.MaxContextTokens <= 0 {
		return fmt.Errorf("budget: max_context_tokens must be positive, got %d", l.MaxContextTokens)
	}
	if l.ReservedTokens < 0 {
		return fmt.Errorf("budget: reserved_tokens must not be negative, got %d", l.ReservedTokens)
	}
	if l.ReservedTokens >= l.MaxContextTokens {
		return fmt.Errorf("budget: reserved_tokens (%d) must be less than max_context_tokens (%d)",
			l.ReservedTokens, l.MaxContextTokens)
	}
	return nil
}

// Capacity is the number of tokens available to tracked files when nothing
// is tracked.
func (l Limits) Capacity() int {
	return l.MaxContextTokens - l.ReservedTokens
}

// Budget is a read-only view over a Usage and fixed Limits. It keeps no
// state of its own: every call reads the live aggregate.
type Budget struct {
	limits Limits
	usage  Usage
}

// NewBudget creates a Budget over usage.
func NewBudget(limits Limits, usage Usage) Budget {
	return Budget{limits: limits, usage: usage}
}

// Limits returns the configured limits.
func (b Budget) Limits() Limits { return b.limits }

// Available returns max - reserved - tracked.
func (b Budget) Available() int {
	return b.limits.Capacity() - b.usage.TotalTokens()
}

// CanFit reports whether additional tokens fit in what is left.
func (b Budget) CanFit(additional int) bool {
	return b.Available()-additional >= 0
}
