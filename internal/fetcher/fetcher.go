// Package fetcher performs the HTTP extract step: one GET against a feed
// URL with a fixed timeout, bounded retries, and exponential backoff.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/seclens/feedbridge/internal/config"
	"github.com/seclens/feedbridge/internal/metrics"
)

// Kind classifies a fetch failure.
type Kind int

const (
	KindTimeout Kind = iota
	KindConnection
	KindRateLimited
	KindUnauthorized
	KindServer
)

// String returns a human-readable representation of the failure kind.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection_error"
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	case KindServer:
		return "server_error"
	default:
		return "unknown"
	}
}

// Error is a terminal fetch failure, returned after retries are exhausted
// or a non-retryable status is seen.
type Error struct {
	Kind     Kind
	Status   int
	Attempts int
	Detail   string
	Err      error

	retryAfter time.Duration
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("fetch failed (%s)", e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Source is a feed endpoint: a URL plus optional headers and query
// parameters.
type Source struct {
	URL     string
	Headers map[string]string
	Query   map[string]string
}

// Fetcher retrieves feed payloads with a bounded retry policy.
// Retry waits grow as base * 2^attempt, attempt starting at 0. A 429
// response waits out Retry-After (or a configured fallback) without
// escalating the backoff.
type Fetcher struct {
	client             *http.Client
	maxRetries         int
	backoffBase        time.Duration
	retryAfterFallback time.Duration
	sleep              func(time.Duration)
}

// Option customizes a Fetcher. Used by tests to avoid wall-clock waits.
type Option func(*Fetcher)

// WithSleep replaces the blocking sleep used between attempts.
func WithSleep(fn func(time.Duration)) Option {
	return func(f *Fetcher) { f.sleep = fn }
}

// WithClient replaces the underlying HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// New builds a Fetcher from the HTTP section of the configuration.
func New(cfg config.HTTPConfig, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:             &http.Client{Timeout: cfg.Timeout},
		maxRetries:         cfg.MaxRetries,
		backoffBase:        cfg.BackoffBase,
		retryAfterFallback: cfg.RetryAfterFallback,
		sleep:              time.Sleep,
	}
	if f.maxRetries < 1 {
		f.maxRetries = 1
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs the request, retrying transient failures up to the
// configured limit. It returns the raw response body on success.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]byte, error) {
	var lastErr *Error
	attempt := 0
	rateWaits := 0

	for attempt < f.maxRetries {
		payload, ferr := f.once(ctx, src)
		if ferr == nil {
			return payload, nil
		}

		switch ferr.Kind {
		case KindRateLimited:
			rateWaits++
			if rateWaits > f.maxRetries {
				ferr.Attempts = attempt + rateWaits
				return nil, ferr
			}
			slog.Warn("rate limited, honoring Retry-After",
				slog.Duration("wait", ferr.retryAfter),
				slog.String("url", src.URL))
			f.sleep(ferr.retryAfter)
			continue
		case KindUnauthorized, KindServer:
			ferr.Attempts = attempt + 1
			return nil, ferr
		}

		// Timeout or connection error: retryable.
		lastErr = ferr
		attempt++
		if attempt >= f.maxRetries {
			break
		}
		wait := f.backoffBase << (attempt - 1)
		slog.Info("fetch attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("kind", ferr.Kind.String()))
		f.sleep(wait)
	}

	lastErr.Attempts = attempt
	return nil, lastErr
}

func (f *Fetcher) once(ctx context.Context, src Source) ([]byte, *Error) {
	metrics.FetchAttempts.Inc()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, http.NoBody)
	if err != nil {
		return nil, &Error{Kind: KindConnection, Err: err}
	}

	if len(src.Query) > 0 {
		q := req.URL.Query()
		for k, v := range src.Query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	req.Header.Set("User-Agent", "feedbridge/1.0")
	req.Header.Set("Accept", "*/*")
	for k, v := range src.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, &Error{Kind: KindTimeout, Err: err}
		}
		return nil, &Error{Kind: KindConnection, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &Error{Kind: KindConnection, Err: err}
		}
		return body, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{
			Kind:       KindRateLimited,
			Status:     resp.StatusCode,
			retryAfter: f.parseRetryAfter(resp.Header.Get("Retry-After")),
		}

	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusUpgradeRequired:
		// Credentials or plan issue; retrying cannot help.
		return nil, &Error{Kind: KindUnauthorized, Status: resp.StatusCode}

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Error("feed request failed",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)))
		return nil, &Error{Kind: KindServer, Status: resp.StatusCode, Detail: string(body)}
	}
}

// parseRetryAfter accepts both Retry-After forms: delta-seconds and an
// HTTP-date. Anything else falls back to the configured wait.
func (f *Fetcher) parseRetryAfter(header string) time.Duration {
	if header == "" {
		return f.retryAfterFallback
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
		return 0
	}
	return f.retryAfterFallback
}
