package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/gsearch/internal/cache"
)

const (
	defaultRedirectHops = 5
	// maxPageBytes bounds a results page read into memory.
	maxPageBytes = 4 << 20
)

// StatusError is a non-2xx, non-304 response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("unexpected status: %d", e.Code) }

// Transient reports whether a retry may succeed.
func (e *StatusError) Transient() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// ErrContentType is returned for responses that are not HTML.
var ErrContentType = errors.New("unsupported content type")

// Client fetches results pages with a per-request timeout, bounded retry on
// transient errors, and optional conditional-GET caching.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts       int
	PerRequestTimeout time.Duration
	RedirectMaxHops   int
	// RetryBackoff is multiplied by the attempt number. Zero means 200ms.
	RetryBackoff time.Duration

	Cache *cache.PageCache
	// MaxAge serves a cached page without contacting the origin while it is
	// younger than this. Zero always revalidates.
	MaxAge time.Duration
	// BypassCache fetches fresh without conditional headers but still saves.
	BypassCache bool
}

type response struct {
	status       int
	body         []byte
	contentType  string
	etag         string
	lastModified string
}

// Get returns the page body and its content type.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) {
		return nil, "", fmt.Errorf("unsupported URL scheme: %q", u.Scheme)
	}

	var meta *cache.Entry
	if c.Cache != nil && !c.BypassCache {
		if m, err := c.Cache.Meta(ctx, rawURL); err == nil {
			meta = m
			if m.Fresh(c.MaxAge, time.Now()) {
				if body, err := c.Cache.Body(ctx, rawURL); err == nil {
					log.Debug().Str("url", rawURL).Msg("page served from cache")
					return body, m.ContentType, nil
				}
			}
		}
	}

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := c.RetryBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, err := c.tryOnce(ctx, rawURL, meta)
		if err == nil {
			return c.finish(ctx, rawURL, meta, resp)
		}
		lastErr = err
		if !isTransient(err) || i == attempts-1 {
			break
		}
		log.Debug().Err(err).Int("attempt", i+1).Str("url", rawURL).Msg("fetch retry")
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(time.Duration(i+1) * backoff):
		}
	}
	return nil, "", lastErr
}

func (c *Client) finish(ctx context.Context, rawURL string, meta *cache.Entry, resp response) ([]byte, string, error) {
	if resp.status == http.StatusNotModified && meta != nil {
		body, err := c.Cache.Body(ctx, rawURL)
		if err != nil {
			return nil, "", fmt.Errorf("revalidated entry missing body: %w", err)
		}
		if err := c.Cache.Touch(ctx, rawURL); err != nil {
			log.Warn().Err(err).Str("url", rawURL).Msg("cache touch failed")
		}
		return body, meta.ContentType, nil
	}
	if c.Cache != nil {
		if err := c.Cache.Save(ctx, rawURL, resp.contentType, resp.etag, resp.lastModified, resp.body); err != nil {
			log.Warn().Err(err).Str("url", rawURL).Msg("cache save failed")
		}
	}
	return resp.body, resp.contentType, nil
}

func (c *Client) tryOnce(ctx context.Context, rawURL string, meta *cache.Entry) (response, error) {
	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return response{}, fmt.Errorf("new request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if meta != nil {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	out := response{
		status:       resp.StatusCode,
		contentType:  resp.Header.Get("Content-Type"),
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}
	if resp.StatusCode == http.StatusNotModified {
		if meta == nil {
			return response{}, &StatusError{Code: resp.StatusCode}
		}
		return out, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return response{}, &StatusError{Code: resp.StatusCode}
	}
	if !isHTMLContentType(out.contentType) {
		return response{}, fmt.Errorf("%w: %s", ErrContentType, out.contentType)
	}
	out.body, err = io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return response{}, fmt.Errorf("read body: %w", err)
	}
	return out, nil
}

func (c *Client) httpClient() *http.Client {
	base := http.Client{Timeout: c.PerRequestTimeout}
	if c.HTTPClient != nil {
		base = *c.HTTPClient
	}
	hops := c.RedirectMaxHops
	if hops <= 0 {
		hops = defaultRedirectHops
	}
	base.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= hops {
			return errors.New("too many redirects")
		}
		if !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
	return &base
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	return false
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	s := strings.ToLower(u.Scheme)
	return s == "http" || s == "https"
}

func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}
