package apiclient

import "fmt"

// APIError represents an error response from chronovmd.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("chronovmd: %s (status %d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether the error is a 404 response.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsForbidden reports whether the error is a 403 response.
func (e *APIError) IsForbidden() bool {
	return e.StatusCode == 403
}
