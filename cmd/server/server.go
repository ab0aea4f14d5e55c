package main

import (
	"context"
	"net"
	"net/http"
	"time"
)

const (
	httpShutdownTimeout = 30 * time.Second
	// A run started just before SIGTERM may still be waiting on the LLM.
	drainTimeout = 5 * time.Minute
)

// newServer returns a server whose request contexts are cancelled as soon as
// Shutdown begins, so open status streams end instead of holding Shutdown
// until its deadline.
func newServer(addr string, handler http.Handler) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: the status stream holds connections open.
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return base },
	}
	server.RegisterOnShutdown(cancel)
	return server
}
