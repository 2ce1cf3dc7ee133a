// Package fetch retrieves fragment text with plain GET requests.
//
// http and https URLs go over the network; file URLs are read from the local
// filesystem through the same http.Client, so a site directory can be
// previewed without a server. Any non-2xx response is a StatusError.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/conneroisu/stitch/internal/errors"
	"github.com/conneroisu/stitch/internal/version"
)

// DefaultTimeout bounds one fragment request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// DefaultMaxBody caps the size of one fragment when no limit is configured.
const DefaultMaxBody = 16 << 20

// Fetcher retrieves the text of a fragment.
type Fetcher interface {
	Fetch(ctx context.Context, u *url.URL) (string, error)
}

// StatusError reports a response whose status was not 2xx.
type StatusError struct {
	URL        string
	StatusCode int
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("Failed to load %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Options configures an HTTPFetcher.
type Options struct {
	Timeout time.Duration
	// UserAgent defaults to stitch/<version>.
	UserAgent string
	// FileRoot enables file:// URLs, served from this directory. Empty
	// disables them.
	FileRoot string
	// Transport overrides the base transport, mainly for tests.
	Transport http.RoundTripper
	// MaxBodySize rejects larger fragments. Zero means DefaultMaxBody.
	MaxBodySize int64
}

// HTTPFetcher fetches fragments with an http.Client.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

// New returns an HTTPFetcher.
func New(opts Options) *HTTPFetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var transport http.RoundTripper = opts.Transport
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		if opts.FileRoot != "" {
			base.RegisterProtocol("file", http.NewFileTransport(http.Dir(opts.FileRoot)))
		}
		transport = base
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}

	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout, Transport: transport},
		userAgent: userAgent,
		maxBody:   opts.MaxBodySize,
	}
}

// Fetch performs a GET for u and returns the body. A non-2xx status is a
// fetch error wrapping *StatusError; transport failures are fetch errors too.
func (f *HTTPFetcher) Fetch(ctx context.Context, u *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", errors.WrapResolution(err, u.String())
	}
	req.Header.Set("Accept", "text/html, */*;q=0.8")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", errors.WrapFetch(err, u.String())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, bodyLimit(f.maxBody)))
		status := &StatusError{URL: u.String(), StatusCode: resp.StatusCode}
		return "", errors.NewFetchError(errors.ErrCodeFetchStatus, "Failed to load", status).
			WithURL(u.String()).
			WithContext("status", resp.StatusCode)
	}

	return readBody(resp.Body, f.maxBody, u)
}

func bodyLimit(limit int64) int64 {
	if limit <= 0 {
		return DefaultMaxBody
	}
	return limit
}

// readBody reads at most limit bytes. A longer body is an error rather than
// a silently truncated fragment.
func readBody(r io.Reader, limit int64, u *url.URL) (string, error) {
	limit = bodyLimit(limit)
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", errors.WrapFetch(err, u.String())
	}
	if int64(len(body)) > limit {
		return "", errors.NewFetchError(errors.ErrCodeFetchTooLarge,
			fmt.Sprintf("Fragment exceeds %d bytes", limit), nil).
			WithURL(u.String()).
			WithContext("limit", limit)
	}
	return string(body), nil
}
