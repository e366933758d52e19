package httptransport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vertextoedge/safe-downloader/internal/domain"
)

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Length", "5")
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := NewClientWithConfig(&Config{UserAgent: "test-agent"})
	resp, err := c.Get(context.Background(), srv.URL+"/hello.txt")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(5), resp.ContentLength)
	assert.Equal(t, "text/plain", resp.ContentType)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestClient_Get_UnknownLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("chunk-1"))
		w.(http.Flusher).Flush()
		w.Write([]byte("chunk-2"))
	}))
	defer srv.Close()

	resp, err := NewClient().Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, domain.UnknownTotal, resp.ContentLength)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "chunk-1chunk-2", string(body))
}

func TestClient_Get_NonSuccessStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"server error", http.StatusInternalServerError},
		{"forbidden", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			resp, err := NewClient().Get(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Nil(t, resp)

			var te *domain.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.status, te.StatusCode)
			assert.Equal(t, srv.URL, te.URL)
		})
	}
}

func TestClient_Get_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient().Get(context.Background(), url)
	require.Error(t, err)
	assert.True(t, domain.IsTransportError(err))
}

func TestClient_Get_CancelMidStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("first"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	resp, err := NewClient().Get(ctx, srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := make([]byte, 5)
	_, err = io.ReadFull(resp.Body, buf)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := resp.Body.Read(make([]byte, 16))
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("body read was not aborted by cancellation")
	}
}

func TestClient_Get_InvalidURL(t *testing.T) {
	_, err := NewClient().Get(context.Background(), "http://[::1")
	require.Error(t, err)
	assert.True(t, domain.IsTransportError(err))
}
