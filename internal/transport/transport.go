// Package transport retrieves raw configuration payloads from a remote
// location. Implementations own their own timeouts and connection state;
// the config store only sees bytes or an error.
package transport

import (
	"context"
	"fmt"
)

// Transport fetches the raw payload published at url.
type Transport interface {
	// Request returns the body at url. headers are sent as-is where the
	// underlying protocol supports them and ignored otherwise.
	Request(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// Func adapts a plain function to the Transport interface.
type Func func(ctx context.Context, url string, headers map[string]string) ([]byte, error)

// Request calls f.
func (f Func) Request(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return f(ctx, url, headers)
}

// Closer is implemented by transports that hold resources between requests.
type Closer interface {
	Close() error
}

// Describer is implemented by transports that can say what they last
// fetched, such as an object ETag or a commit hash.
type Describer interface {
	// Describe returns status fields for the last successful request, or
	// an empty map before the first one.
	Describe() map[string]any
}

// StatusError is returned when the remote answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}
