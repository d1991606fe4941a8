package catalog

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrUnavailable is returned when the tool server cannot be reached or
	// the circuit breaker is open.
	ErrUnavailable = errors.New("catalog: tool server unavailable")

	// ErrMalformed is returned when a tool result is not the expected JSON.
	ErrMalformed = errors.New("catalog: malformed tool result")

	// ErrEmptyResult is returned when a result carries no text content.
	ErrEmptyResult = errors.New("catalog: empty tool result")
)

// ToolError is a failure reported by the tool itself, either through
// isError or an "Error:" prefixed text result.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("catalog: %s: %s", e.Tool, e.Message)
}

// KeyTableError lists attribute keys the tool server does not back with a
// vocabulary, and required tools it does not advertise.
type KeyTableError struct {
	MissingFields []string
	MissingTools  []string
}

func (e *KeyTableError) Error() string {
	return fmt.Sprintf("catalog: attribute key table mismatch: missing fields %v, missing tools %v",
		e.MissingFields, e.MissingTools)
}
