package export

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy for the remote endpoint.
var (
	ErrNetworkFailure    = errors.New("network failure")
	ErrAuthExpired       = errors.New("authorization expired")
	ErrRemoteRejected    = errors.New("remote rejected request")
	ErrMalformedResponse = errors.New("malformed response")
	ErrInvalidInput      = errors.New("invalid input")

	// ErrMalformedConfig is a malformed response from the discovery endpoint.
	ErrMalformedConfig = fmt.Errorf("%w: malformed export config", ErrMalformedResponse)
)

// StatusError carries the HTTP status of a non-2xx response.
// It matches ErrAuthExpired for 401 and 403 and ErrRemoteRejected otherwise.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// Unwrap maps the status code onto the taxonomy.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return ErrAuthExpired
	}
	return ErrRemoteRejected
}

// IsSuccess reports whether code is in [200, 299].
func IsSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

// CheckStatus returns nil for 2xx and a *StatusError otherwise.
func CheckStatus(code int) error {
	if IsSuccess(code) {
		return nil
	}
	return &StatusError{Code: code}
}

// StatusCode extracts the HTTP status from err, or 0 if err carries none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
