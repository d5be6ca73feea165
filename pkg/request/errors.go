package request

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrBreakerOpen is returned without touching the network while a
// provider's circuit is open.
var ErrBreakerOpen = errors.New("circuit open")

// StatusError reports a non-2xx response after retries are exhausted.
type StatusError struct {
	Status int
	URL    string
	Body   string // first few hundred bytes, for diagnostics
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("api error: status %d (%s): %s", e.Status, e.URL, e.Body)
	}
	return fmt.Sprintf("api error: status %d (%s)", e.Status, e.URL)
}

// IsStatus reports whether err wraps a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == code
}

// IsAuth reports whether err is a 401 or 403 response.
func IsAuth(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

// IsRateLimited reports whether err is a 429 response.
func IsRateLimited(err error) bool {
	return IsStatus(err, http.StatusTooManyRequests)
}
