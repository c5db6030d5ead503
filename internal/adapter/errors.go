package adapter

import "fmt"

// APIError is returned by every adapter when the provider call fails:
// network errors, authentication, rate limits, bad responses. The chat loop
// surfaces it as-is; nothing retries.
type APIError struct {
	Provider string
	// StatusCode is the HTTP status when one was received, else 0.
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s api: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s api: %v", e.Provider, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

func apiError(provider string, status int, err error) *APIError {
	return &APIError{Provider: provider, StatusCode: status, Err: err}
}
