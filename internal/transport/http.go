package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/artemnikitin/remoteconf/internal/version"
)

// maxBodyBytes caps the payload size read from an HTTP endpoint.
const maxBodyBytes = 10 << 20

// HTTP fetches payloads with plain GET requests.
type HTTP struct {
	client *http.Client
}

// NewHTTP creates an HTTP transport. A zero timeout means no client-side
// timeout; the caller's context still applies.
func NewHTTP(timeout time.Duration) *HTTP {
	return &HTTP{client: &http.Client{Timeout: timeout}}
}

// Request performs a GET and returns the body of a 2xx response.
func (h *HTTP) Request(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", url, err)
	}
	if len(data) > maxBodyBytes {
		return nil, fmt.Errorf("body of %s exceeds %d bytes", url, maxBodyBytes)
	}
	return data, nil
}
