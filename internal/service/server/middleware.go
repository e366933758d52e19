package server

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// middleware wraps a handler with one cross-cutting concern
type middleware func(http.Handler) http.Handler

// chain applies mws so that the first one sees the request first
func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// statusRecorder remembers the first status the wrapped handler wrote
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	if sr.status == 0 {
		sr.status = status
	}
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *statusRecorder) Write(p []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(p)
}

// withAccessLog emits one debug line per served request
func withAccessLog(logger *zap.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			sr := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(sr, r)

			if sr.status == 0 {
				sr.status = http.StatusOK
			}
			logger.Debug("request served",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sr.status),
				zap.Duration("elapsed", time.Since(began)),
				zap.String("peer", r.RemoteAddr))
		})
	}
}

// withSameOrigin refuses state-changing requests that a browser issued on
// behalf of another site. Clients that send no Origin header pass.
func withSameOrigin(logger *zap.Logger) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			if crossSite(r) {
				logger.Warn("cross-origin request rejected",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("origin", r.Header.Get("Origin")),
					zap.String("peer", r.RemoteAddr))
				writeError(w, http.StatusForbidden, "cross-origin request rejected")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func crossSite(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Site") == "cross-site" {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return true
	}
	return u.Host != r.Host
}

// withBasicAuth demands the configured credentials. An empty username
// leaves the handler open.
func withBasicAuth(username, password string, logger *zap.Logger) middleware {
	if username == "" {
		return func(next http.Handler) http.Handler { return next }
	}

	challenge := func(w http.ResponseWriter, message string) {
		w.Header().Set("WWW-Authenticate", `Basic realm="safe-downloader"`)
		writeError(w, http.StatusUnauthorized, message)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok {
				challenge(w, "authentication required")
				return
			}

			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username))
			passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password))
			if userOK&passOK != 1 {
				logger.Warn("rejected API credentials",
					zap.String("username", user),
					zap.String("peer", r.RemoteAddr))
				challenge(w, "invalid credentials")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
