package httptransport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vertextoedge/safe-downloader/internal/domain"
	"github.com/vertextoedge/safe-downloader/internal/port"
)

// DefaultUserAgent is sent when no user agent is configured
const DefaultUserAgent = "safe-downloader/1.0"

// Config contains optional client configuration
type Config struct {
	UserAgent             string
	ResponseHeaderTimeout time.Duration // 0 waits for headers indefinitely
	BufferSizeKB          int           // Read/Write buffer size in KB (default: 256)
}

// Client is the net/http implementation of port.Transport
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// Ensure Client implements port.Transport
var _ port.Transport = (*Client)(nil)

// NewClient creates a new transport with default settings
func NewClient() *Client {
	return NewClientWithConfig(nil)
}

// NewClientWithConfig creates a new transport with custom configuration
func NewClientWithConfig(cfg *Config) *Client {
	bufferSize := 256 * 1024
	userAgent := DefaultUserAgent
	var headerTimeout time.Duration

	if cfg != nil {
		if cfg.BufferSizeKB > 0 {
			bufferSize = cfg.BufferSizeKB * 1024
		}
		if cfg.UserAgent != "" {
			userAgent = cfg.UserAgent
		}
		headerTimeout = cfg.ResponseHeaderTimeout
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 15 * time.Second,

		// Buffer sizes for high-speed transfers
		WriteBufferSize: bufferSize,
		ReadBufferSize:  bufferSize,

		ForceAttemptHTTP2: true,

		// Bytes on disk must match what the server sent
		DisableCompression: true,

		// Response header timeout (not total download timeout)
		ResponseHeaderTimeout: headerTimeout,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   0, // No timeout for downloads; ctx aborts them
		},
		userAgent: userAgent,
	}
}

// Get issues a GET request bound to ctx. Only 2xx responses are returned;
// everything else is a *domain.TransportError.
func (c *Client) Get(ctx context.Context, rawURL string) (*port.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domain.NewTransportError("create request", rawURL, 0, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewTransportError("request", rawURL, 0, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused
		io.CopyN(io.Discard, resp.Body, 4096)
		resp.Body.Close()
		return nil, domain.NewTransportError("request", rawURL, resp.StatusCode,
			fmt.Errorf("%s", http.StatusText(resp.StatusCode)))
	}

	length := resp.ContentLength
	if length < 0 {
		length = domain.UnknownTotal
	}

	return &port.Response{
		StatusCode:    resp.StatusCode,
		ContentLength: length,
		ContentType:   resp.Header.Get("Content-Type"),
		Body:          resp.Body,
	}, nil
}
