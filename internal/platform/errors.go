package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from a platform API. The engine logs these
// per action; Transient distinguishes errors worth retrying on a later cycle
// from configuration/permission problems.
type APIError struct {
	Platform   string
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s failed: status %d: %s", e.Platform, e.Operation, e.StatusCode, e.Body)
}

// Transient reports whether the failure is likely to resolve on its own.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsTransient reports whether err is a transient platform failure.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return false
}
