package gwygb

import (
	"fmt"
	"net"
	"net/url"

	"github.com/pkg/errors"
)

var (
	// ErrNotValidated is returned when Fetch is called before Validate.
	ErrNotValidated = errors.New("fetcher hasn't been validated")

	// ErrInvalidURL is returned when the source URL is empty or not absolute.
	ErrInvalidURL = errors.New("source url is not valid")
)

// StatusError is returned when the server answers with a non-2xx status.
// It is reported as a transport error, nothing is retried.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s returned status code %d", e.URL, e.StatusCode)
}

// ReadError is returned when the response body breaks off mid-transfer.
type ReadError struct {
	URL string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading %s: %v", e.URL, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// IsTransportError reports whether err came from the network side of a
// fetch: a failed request, a broken response stream or a non-2xx status.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return true
	}

	var readErr *ReadError
	if errors.As(err, &readErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// StatusCode extracts the HTTP status carried by err, or 0 if there is none.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
