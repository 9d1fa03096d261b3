package server

import (
	"net/http"
	"time"
)

// New wraps the router in an *http.Server. There is no WriteTimeout:
// an update run holds its response open for as long as the site takes.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
