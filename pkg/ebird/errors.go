package ebird

import (
	"errors"

	"birdtrip/pkg/request"
)

// ErrMissingToken is returned by New when no API token is configured.
// The eBird API rejects every request without one, so this is fatal.
var ErrMissingToken = errors.New("ebird: API token not configured (set ebird.token or EBIRD_API_TOKEN)")

// IsAuthError reports whether err is an eBird 401/403 response,
// typically an invalid or revoked API token.
func IsAuthError(err error) bool {
	return request.IsAuth(err)
}

// IsNotFound reports whether err is a 404, e.g. an unknown region code.
func IsNotFound(err error) bool {
	return request.IsNotFound(err)
}

// IsRateLimited reports whether err is a 429 that survived retries.
func IsRateLimited(err error) bool {
	return request.IsRateLimited(err)
}
