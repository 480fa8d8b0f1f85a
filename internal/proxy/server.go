// Package proxy relays cover artwork with permissive CORS headers so the
// palette sampler can read covers whose origin does not allow it.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/glowcard/internal/fetcher"
	"go.uber.org/zap"
)

const (
	// DefaultAddr matches the base the palette sampler retries through
	DefaultAddr = "127.0.0.1:65432"

	upstreamTimeout = 5 * time.Second
	cacheControl    = "max-age=30"
)

// Server answers GET /palette?url=<encoded> with the bytes behind url.
// http and https targets are downloaded, file targets are read from disk.
type Server struct {
	logger  *zap.Logger
	addr    string
	fetcher *fetcher.HTTPFetcher
	http    *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a palette proxy bound to addr once started
func NewServer(logger *zap.Logger, addr string) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		logger:  logger,
		addr:    addr,
		fetcher: fetcher.NewHTTPFetcherWithTimeout(logger, upstreamTimeout),
	}
	s.http = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/palette" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	// Query().Get already percent-decodes the parameter
	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}

	parsed, err := url.Parse(target)
	if err != nil {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}

	var data []byte
	var contentType string

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		res, err := s.fetcher.Fetch(r.Context(), target)
		if err != nil {
			s.logger.Debug("Palette proxy upstream failed", zap.String("url", target), zap.Error(err))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
			return
		}
		data = res.Data
		contentType = mediaType(res.ContentType)

	case "file":
		path := filePath(parsed)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			http.NotFound(w, r)
			return
		}
		data, err = os.ReadFile(path)
		if err != nil {
			s.logger.Debug("Palette proxy file read failed", zap.String("path", path), zap.Error(err))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
			return
		}
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))

	default:
		http.Error(w, "unsupported scheme", http.StatusBadRequest)
		return
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Cache-Control", cacheControl)
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("Palette proxy write failed", zap.Error(err))
	}
}

// Start binds the proxy. A failed bind is logged and leaves the proxy
// disabled: samples then fall back without it.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		s.logger.Warn("Palette proxy disabled, could not bind",
			zap.String("addr", s.addr),
			zap.Error(err))
		return nil
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Palette proxy listening", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Palette proxy stopped unexpectedly", zap.Error(err))
		}
	}()
	return nil
}

// Running reports whether the proxy is bound
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil
}

// Addr returns the bound address, or the configured one when not running
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts the proxy down
func (s *Server) Stop(ctx context.Context) error {
	if !s.Running() {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("palette proxy shutdown: %w", err)
	}
	s.logger.Info("Palette proxy stopped")
	return nil
}

// filePath converts a file URL to a local path, keeping UNC hosts.
// file:///C:/a.jpg carries the drive as /C:/a.jpg, the leading slash goes.
func filePath(u *url.URL) string {
	path := u.Path
	if u.Host != "" && u.Host != "localhost" {
		return filepath.FromSlash("//" + u.Host + path)
	}
	if hasDriveLetter(path) {
		path = path[1:]
	}
	return filepath.FromSlash(path)
}

func hasDriveLetter(path string) bool {
	if len(path) < 3 || path[0] != '/' || path[2] != ':' {
		return false
	}
	c := path[1]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// mediaType strips parameters from a Content-Type header
func mediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return mt
}
