// Package server serves result directories and page fixtures over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Server serves one directory over HTTP
type Server struct {
	listener net.Listener
	server   *http.Server
	dir      string
	temp     bool
}

// Serve starts a file server for dir on addr. An empty addr picks a free
// loopback port.
func Serve(dir, addr string) (*Server, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return start(dir, addr, false)
}

// Start writes files into a temp dir and serves it on a free loopback port.
// Stop removes the temp dir.
func Start(files map[string][]byte) (*Server, error) {
	dir, err := os.MkdirTemp("", "smarttest-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to create dir for %s: %w", name, err)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("failed to write file: %w", err)
		}
	}

	srv, err := start(dir, "", true)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return srv, nil
}

func start(dir, addr string, temp bool) (*Server, error) {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &Server{
		listener: listener,
		dir:      dir,
		temp:     temp,
		server: &http.Server{
			Handler:           http.FileServer(http.Dir(dir)),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	go srv.server.Serve(listener)

	return srv, nil
}

// URL returns the URL of a file relative to the served directory.
func (s *Server) URL(filename string) string {
	return fmt.Sprintf("http://%s/%s", s.listener.Addr().String(), filepath.ToSlash(filename))
}

// Dir returns the served directory.
func (s *Server) Dir() string {
	return s.dir
}

// Wait blocks until ctx is done, then stops the server.
func (s *Server) Wait(ctx context.Context) error {
	<-ctx.Done()
	s.Stop()
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// Stop shuts down the server and removes a temp dir created by Start.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
	if s.temp {
		os.RemoveAll(s.dir)
	}
}
