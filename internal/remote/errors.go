package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrTimeout            = errors.New("timed out")
	ErrHTTPStatus         = errors.New("unexpected HTTP status")
	ErrMalformedManifest  = errors.New("malformed manifest")
	ErrResponseTooLarge   = errors.New("response too large")
)

// Error describes a failed fetch. Kind is one of the package sentinels;
// errors.Is matches both Kind and the underlying cause.
type Error struct {
	Kind   error
	URL    string
	Status int // set when Kind is ErrHTTPStatus
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: %v %d", e.URL, e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Kind)
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// classify maps a transport error to a fetch error kind.
func classify(rawURL string, err error) *Error {
	kind := ErrNetworkUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = ErrTimeout
	}
	return &Error{Kind: kind, URL: rawURL, Err: err}
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}
