package outbound

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// maxDrainBytes bounds how much of a response body is read before closing.
const maxDrainBytes = 4 << 10

// HTTPRequester sends requests as HTTP GETs to the expanded template URL.
type HTTPRequester struct {
	client    *http.Client
	userAgent string
}

// NewHTTPRequester creates a requester using client. A nil client uses
// http.DefaultClient.
func NewHTTPRequester(client *http.Client, userAgent string) *HTTPRequester {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRequester{client: client, userAgent: userAgent}
}

// Do issues the GET. Any non-2xx status is an error.
func (h *HTTPRequester) Do(ctx context.Context, req device.Request) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if h.userAgent != "" {
		httpReq.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRequestFailed, req.Kind, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s: status %d", ErrRequestFailed, req.Kind, resp.StatusCode)
	}
	return nil
}
