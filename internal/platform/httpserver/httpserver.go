package httpserver

import (
	"net/http"
	"time"
)

// New builds the HTTP server. Every endpoint is a small JSON exchange
// (admission checks, referral calls, admin overrides), so the timeouts
// are tight: a request that needs longer than this is stuck, not slow.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
