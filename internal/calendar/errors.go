package calendar

import (
	"errors"
	"net/http"
	"strconv"

	"google.golang.org/api/googleapi"
)

var (
	// ErrNotSignedIn is returned when no access token is held.
	ErrNotSignedIn = errors.New("not signed in: authorize calendar access first")

	// ErrMissingEventID is returned by UpdateEvent and DeleteEvent for an
	// empty id.
	ErrMissingEventID = errors.New("event ID is required")
)

// APIError is a request the calendar API answered with an unexpected status.
type APIError struct {
	StatusCode int
	Message    string
}

// Error returns the provider's message, or the status text without one.
func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return "unexpected status " + strconv.Itoa(e.StatusCode)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether the API rejected the token.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// asAPIError converts googleapi errors. Other errors pass through.
func asAPIError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &APIError{StatusCode: gerr.Code, Message: gerr.Message}
	}
	return err
}
