package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	_maxImageSize = 10 * 1024 * 1024 // 10 MB

	userAgent = "glowcard/1.0"
	// requestOrigin is what a locally loaded overlay page reports as its origin
	requestOrigin = "null"
)

var (
	// ErrUnsupportedScheme is returned for URLs the loader cannot read directly (blob:, ftp:, ...)
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	// ErrCrossOrigin is returned when a cross-origin response does not allow pixel access
	ErrCrossOrigin = errors.New("cross-origin access denied")
)

// Resource is a fetched HTTP body with the headers the callers care about
type Resource struct {
	Data        []byte
	ContentType string
	AllowOrigin string
}

// HTTPFetcher handles downloading cover artwork from data: and HTTP/HTTPS URLs
type HTTPFetcher struct {
	logger *zap.Logger
	client *http.Client
}

// NewHTTPFetcher creates a new HTTP-based fetcher instance
func NewHTTPFetcher(logger *zap.Logger) *HTTPFetcher {
	return NewHTTPFetcherWithTimeout(logger, 10*time.Second)
}

// NewHTTPFetcherWithTimeout creates a fetcher whose requests give up after timeout
func NewHTTPFetcherWithTimeout(logger *zap.Logger, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		logger: logger,
		client: &http.Client{
			Timeout: timeout, // Essential to prevent blocking the daemon
		},
	}
}

// Load reads image bytes from url.
//
// data: URIs are decoded in place. http and https URLs are downloaded
// whatever their declared content type; only decoding the bytes decides
// whether they are an image. With crossOrigin set, the response must carry
// an Access-Control-Allow-Origin header granting access, otherwise the bytes
// are withheld and ErrCrossOrigin is returned.
func (f *HTTPFetcher) Load(ctx context.Context, url string, crossOrigin bool) ([]byte, error) {
	switch scheme(url) {
	case "data":
		data, _, err := decodeDataURI(url)
		if err != nil {
			return nil, err
		}
		return data, nil

	case "http", "https":
		header := http.Header{}
		if crossOrigin {
			header.Set("Origin", requestOrigin)
		}
		res, err := f.get(ctx, url, header)
		if err != nil {
			return nil, err
		}
		if crossOrigin && !allowsOrigin(res.AllowOrigin) {
			return nil, fmt.Errorf("%s: %w", url, ErrCrossOrigin)
		}
		return res.Data, nil

	default:
		return nil, fmt.Errorf("%q: %w", truncate(url, 64), ErrUnsupportedScheme)
	}
}

// Fetch downloads url and returns the body whatever its content type.
// Any status other than 200 is an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Resource, error) {
	return f.get(ctx, url, nil)
}

func (f *HTTPFetcher) get(ctx context.Context, url string, header http.Header) (*Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, _maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	f.logger.Debug("Image fetched successfully", zap.Int("bytes", len(data)), zap.String("url", url))
	return &Resource{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		AllowOrigin: resp.Header.Get("Access-Control-Allow-Origin"),
	}, nil
}

func allowsOrigin(header string) bool {
	header = strings.TrimSpace(header)
	return header == "*" || header == requestOrigin
}

func scheme(url string) string {
	i := strings.IndexByte(url, ':')
	if i <= 0 {
		return ""
	}
	return strings.ToLower(url[:i])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
