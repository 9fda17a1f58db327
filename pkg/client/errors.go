package client

import (
	"errors"
	"fmt"

	"deviceguard/pkg/domain"
)

// HTTPError represents a non-2xx HTTP response from the API. API holds the
// decoded protocol error when the body carried one.
type HTTPError struct {
	StatusCode int
	Message    string
	API        *domain.Error
}

func (e *HTTPError) Error() string {
	if e.API != nil {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.API.Error())
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap exposes the protocol error to errors.As and errors.Is.
func (e *HTTPError) Unwrap() error {
	if e.API == nil {
		return nil
	}
	return e.API
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}
