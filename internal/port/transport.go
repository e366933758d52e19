package port

import (
	"context"
	"io"
)

// Response is an accepted (2xx) response of the network collaborator
type Response struct {
	StatusCode int

	// ContentLength is -1 when the server did not report a length
	ContentLength int64

	// ContentType is the raw Content-Type header value
	ContentType string

	// Body streams the payload; the caller must close it
	Body io.ReadCloser
}

// Transport issues GET requests for a transfer session.
// Cancelling ctx aborts the request, including an in-flight body read.
type Transport interface {
	// Get returns *domain.TransportError for connection failures and non-2xx statuses
	Get(ctx context.Context, rawURL string) (*Response, error)
}
