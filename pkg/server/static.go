// Package server serves the built benchmark page to the browser
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

const DefaultAddr = "127.0.0.1:1334"

// Static serves a directory over HTTP
type Static struct {
	addr string
	dir  string

	mu     sync.Mutex
	server *http.Server
	ln     net.Listener
	done   chan error
}

// NewStatic creates a server for dir on addr
func NewStatic(addr, dir string) *Static {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Static{addr: addr, dir: dir}
}

// Handler returns the router serving the directory
func (s *Static) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(noCache, wasmContentType)
	router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.dir)))
	return router
}

// Start begins listening and returns once the socket is bound
func (s *Static) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("server already running on %s", s.ln.Addr())
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	done := make(chan error, 1)

	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()

	s.server = srv
	s.ln = ln
	s.done = done
	return nil
}

// URL is the base URL of the running server
func (s *Static) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return "http://" + s.ln.Addr().String()
	}
	return "http://" + s.addr
}

// Stop shuts the server down gracefully. It also reports an error that stopped
// the server early, since requests made after that point failed without a cause.
func (s *Static) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.server, s.done
	s.server, s.ln, s.done = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down web server: %w", err)
	}
	if err := <-done; err != nil {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// Each build replaces the files, so the browser must never reuse a cached copy
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// Streaming compilation requires application/wasm
func wasmContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(filepath.Ext(r.URL.Path), ".wasm") {
			w.Header().Set("Content-Type", "application/wasm")
		}
		next.ServeHTTP(w, r)
	})
}
