// Package fetch implements plain HTTP retrieval for ingestion sources.
//
// All requests are SSRF-validated up front and on every redirect, and
// response bodies are size-capped.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/corpus/safeurl"
)

// Result contains the outcome of a GET.
type Result struct {
	Body        []byte
	StatusCode  int
	ContentType string // from response header
	FinalURL    string // after redirects
}

// Error describes a failed fetch and keeps the offending URL attached.
type Error struct {
	URL        string
	StatusCode int // 0 when the request never produced a response
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config configures the fetcher.
type Config struct {
	Timeout  time.Duration // per-request timeout. Default: 10s.
	MaxBytes int64         // max response body size. Default: 10MB.
	// UserAgent sent with requests.
	UserAgent string
	// URLValidator validates URLs before fetch (SSRF prevention).
	// Default: safeurl.Validate.
	URLValidator func(string) error
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024 // 10MB
	}
	if c.UserAgent == "" {
		c.UserAgent = "corpus-ingest/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = safeurl.Validate
	}
}

// Options overrides Config for a single request. Zero values keep the
// fetcher defaults.
type Options struct {
	Timeout  time.Duration
	MaxBytes int64
	Accept   string
}

// Fetcher performs bounded HTTP requests.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher with SSRF protection on redirects.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Fetcher{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked (SSRF): %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Get retrieves a URL. Non-2xx responses produce an *Error carrying the
// status code. opts may be nil.
func (f *Fetcher) Get(ctx context.Context, url string, opts *Options) (*Result, error) {
	if err := f.config.URLValidator(url); err != nil {
		return nil, &Error{URL: url, Err: fmt.Errorf("URL blocked (SSRF): %w", err)}
	}

	timeout := f.config.Timeout
	maxBytes := f.config.MaxBytes
	accept := ""
	if opts != nil {
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		if opts.MaxBytes > 0 {
			maxBytes = opts.MaxBytes
		}
		accept = opts.Accept
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{URL: url, Err: fmt.Errorf("http get: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	body, err := safeurl.LimitedReadAll(resp.Body, maxBytes)
	if err != nil {
		return nil, &Error{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}

	return &Result{
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// Head issues a HEAD request and returns the status code and Content-Type.
// Used for cheap source-type probing before a full download.
func (f *Fetcher) Head(ctx context.Context, url string) (int, string, error) {
	if err := f.config.URLValidator(url); err != nil {
		return 0, "", &Error{URL: url, Err: fmt.Errorf("URL blocked (SSRF): %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, "", &Error{URL: url, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", &Error{URL: url, Err: fmt.Errorf("http head: %w", err)}
	}
	resp.Body.Close()

	return resp.StatusCode, resp.Header.Get("Content-Type"), nil
}
