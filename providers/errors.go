package providers

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMissingCredential means an upstream key is not configured. It is raised before any network call.
	ErrMissingCredential = errors.New("missing upstream credential")
	// ErrUpstreamUnavailable covers transport failures, open breakers and unreadable responses.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUnsupportedCategory = errors.New("unsupported category")
)

// UpstreamError is returned when the biller answered but declined the request.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s rejected request (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Definitive reports whether the biller certainly did not fulfil the request. A 5xx may come from a
// gateway in front of a biller that already delivered, so it is not definitive.
func (e *UpstreamError) Definitive() bool {
	return e.StatusCode < http.StatusInternalServerError
}
