package inference

import (
	"errors"
	"fmt"
)

var (
	ErrNoAPIKey      = errors.New("inference: api key required")
	ErrNoModel       = errors.New("inference: model required")
	ErrNoProvider    = errors.New("inference: no usable provider")
	ErrEmptyResponse = errors.New("inference: empty response")
)

// APIError is a non-2xx answer from a classifier backend.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("inference [%s]: status %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("inference [%s]: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// ProviderError tags err with the backend that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError returns nil for a nil err.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// ChainError holds one error per chain member, in call order.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "inference chain: no providers tried"
	case 1:
		return fmt.Sprintf("inference chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("inference chain: %d providers failed: %v", len(e.Errors), errors.Join(e.Errors...))
}

// Unwrap exposes every member error to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error { return e.Errors }
