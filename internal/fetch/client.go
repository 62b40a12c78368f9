// Package fetch provides the retry-aware HTTP client that consults and feeds
// the circuit breaker.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jonesrussell/bookwatch/internal/breaker"
	"github.com/jonesrussell/bookwatch/internal/logger"
	"github.com/jonesrussell/bookwatch/internal/metrics"
)

const (
	// DefaultMaxAttempts is the default attempt count for one URL.
	DefaultMaxAttempts = 3

	// DefaultInitialBackoff is the delay before the first retry.
	DefaultInitialBackoff = 500 * time.Millisecond

	// DefaultMaxBackoff caps the exponential backoff.
	DefaultMaxBackoff = 10 * time.Second

	// DefaultBackoffMultiplier is the exponential backoff multiplier.
	DefaultBackoffMultiplier = 2.0

	// DefaultRequestTimeout is the per-request time limit.
	DefaultRequestTimeout = 15 * time.Second

	// DefaultBatchDelay is the fixed delay between batch items.
	DefaultBatchDelay = 500 * time.Millisecond

	// DefaultBreakerWaitBudget bounds the total time one fetch spends waiting
	// for the breaker to re-admit traffic.
	DefaultBreakerWaitBudget = 90 * time.Second

	// DefaultMaxBodyBytes bounds response body reads.
	DefaultMaxBodyBytes = 10 << 20

	// DefaultMaxIdleConns is the connection pool size across all hosts.
	DefaultMaxIdleConns = 100

	// DefaultMaxIdleConnsPerHost is the per-host connection pool size.
	DefaultMaxIdleConnsPerHost = 10

	// DefaultIdleConnTimeout closes idle pooled connections.
	DefaultIdleConnTimeout = 90 * time.Second

	// probePollInterval is the wait between gate checks while the breaker is
	// half-open with all probe slots taken.
	probePollInterval = 100 * time.Millisecond
)

// Config configures the client.
type Config struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	BatchDelay        time.Duration `mapstructure:"batch_delay"`
	BreakerWaitBudget time.Duration `mapstructure:"breaker_wait_budget"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	UserAgent         string        `mapstructure:"user_agent"`

	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:         DefaultMaxAttempts,
		InitialBackoff:      DefaultInitialBackoff,
		MaxBackoff:          DefaultMaxBackoff,
		BackoffMultiplier:   DefaultBackoffMultiplier,
		RequestTimeout:      DefaultRequestTimeout,
		BatchDelay:          DefaultBatchDelay,
		BreakerWaitBudget:   DefaultBreakerWaitBudget,
		MaxBodyBytes:        DefaultMaxBodyBytes,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
	}
}

// Result is one item's outcome in a batch fetch.
type Result struct {
	URL  string
	Body []byte
	Err  error
}

// Client fetches JSON payloads with retry and circuit breaking. The
// underlying connection pool is shared and built lazily on first use.
type Client struct {
	config  Config
	breaker *breaker.Breaker
	logger  logger.Interface
	metrics *metrics.Metrics

	initOnce   sync.Once
	httpClient *http.Client
}

// NewClient creates a new client around an injected breaker.
func NewClient(config Config, b *breaker.Breaker, log logger.Interface, m *metrics.Metrics) *Client {
	def := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = def.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = def.MaxBackoff
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = def.RequestTimeout
	}
	if config.BatchDelay < 0 {
		config.BatchDelay = def.BatchDelay
	}
	if config.BreakerWaitBudget <= 0 {
		config.BreakerWaitBudget = def.BreakerWaitBudget
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = def.MaxBodyBytes
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = def.MaxIdleConns
	}
	if config.MaxIdleConnsPerHost <= 0 {
		config.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}
	if config.IdleConnTimeout <= 0 {
		config.IdleConnTimeout = def.IdleConnTimeout
	}
	if log == nil {
		log = logger.NewNoOp()
	}

	return &Client{
		config:  config,
		breaker: b,
		logger:  log,
		metrics: m,
	}
}

// client returns the shared HTTP client, building the pool exactly once.
func (c *Client) client() *http.Client {
	c.initOnce.Do(func() {
		c.httpClient = &http.Client{
			Timeout: c.config.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        c.config.MaxIdleConns,
				MaxIdleConnsPerHost: c.config.MaxIdleConnsPerHost,
				IdleConnTimeout:     c.config.IdleConnTimeout,
			},
		}
	})
	return c.httpClient
}

// FetchOne fetches a single URL. Retryable failures are retried up to
// MaxAttempts with capped exponential backoff; overload retries skip the
// backoff and instead wait out the breaker's recovery window at the gate.
// Exhaustion returns a terminal *FetchError wrapping the last cause.
func (c *Client) FetchOne(ctx context.Context, url string) ([]byte, error) {
	backoff := c.config.InitialBackoff
	var lastErr *FetchError

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if err := c.awaitGate(ctx, url); err != nil {
			return nil, err
		}

		start := time.Now()
		body, fetchErr := c.do(ctx, url)
		if fetchErr == nil {
			c.breaker.RecordSuccess()
			c.metrics.ObserveFetch("success", time.Since(start))
			return body, nil
		}

		c.breaker.RecordFailure(fetchErr.Kind == KindOverload)
		c.metrics.ObserveFetch(fetchErr.Kind.String(), time.Since(start))
		lastErr = fetchErr

		if !fetchErr.Kind.Retryable() || ctx.Err() != nil {
			return nil, fetchErr
		}
		if attempt == c.config.MaxAttempts {
			break
		}

		c.logger.Warn("retrying fetch",
			"url", url,
			"attempt", attempt,
			"kind", fetchErr.Kind.String(),
		)
		c.metrics.IncFetchRetry()

		// Overload waits are governed by the breaker's recovery window at the
		// gate, not by retry backoff.
		if fetchErr.Kind == KindTransient {
			if err := sleep(ctx, backoff); err != nil {
				return nil, fetchErr
			}
			backoff = time.Duration(float64(backoff) * c.config.BackoffMultiplier)
			if backoff > c.config.MaxBackoff {
				backoff = c.config.MaxBackoff
			}
		}
	}

	return nil, &FetchError{
		Kind:       lastErr.Kind,
		URL:        url,
		StatusCode: lastErr.StatusCode,
		Err:        fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, c.config.MaxAttempts, lastErr.Err),
	}
}

// FetchMany fetches URLs strictly sequentially with a fixed inter-request
// delay. Each item's outcome is collected independently; a failed item never
// aborts the remaining ones, and results preserve input order.
func (c *Client) FetchMany(ctx context.Context, urls []string) []Result {
	results := make([]Result, 0, len(urls))
	for i, u := range urls {
		if i > 0 && c.config.BatchDelay > 0 {
			// On cancellation the fetch below fails fast per item.
			_ = sleep(ctx, c.config.BatchDelay)
		}
		body, err := c.FetchOne(ctx, u)
		results = append(results, Result{URL: u, Body: body, Err: err})
	}
	return results
}

// awaitGate blocks until the breaker admits the call. Rejections do not
// consume retry attempts; the client sleeps the remaining recovery window,
// bounded by the overall wait budget.
func (c *Client) awaitGate(ctx context.Context, url string) error {
	deadline := time.Now().Add(c.config.BreakerWaitBudget)
	for {
		err := c.breaker.Allow()
		if err == nil {
			return nil
		}

		var openErr *breaker.OpenError
		if !errors.As(err, &openErr) {
			return &FetchError{Kind: KindCircuitOpen, URL: url, Err: err}
		}

		wait := openErr.RetryAfter
		if wait <= 0 {
			wait = probePollInterval
		}
		if time.Now().Add(wait).After(deadline) {
			return &FetchError{
				Kind: KindCircuitOpen,
				URL:  url,
				Err:  fmt.Errorf("recovery wait budget exhausted: %w", err),
			}
		}

		c.logger.Debug("circuit open, waiting for recovery", "url", url, "wait", wait)
		if serr := sleep(ctx, wait); serr != nil {
			return &FetchError{Kind: KindCircuitOpen, URL: url, Err: serr}
		}
	}
}

// do performs one HTTP attempt and classifies its outcome.
func (c *Client) do(ctx context.Context, url string) ([]byte, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, &FetchError{Kind: KindPermanent, URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, URL: url, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &FetchError{
			Kind:       KindOverload,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        errors.New("upstream overloaded"),
		}
	default:
		return nil, &FetchError{
			Kind:       KindPermanent,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes))
	if err != nil {
		return nil, &FetchError{
			Kind:       KindTransient,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("reading body: %w", err),
		}
	}
	if !json.Valid(body) {
		return nil, &FetchError{
			Kind:       KindTransient,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        errors.New("malformed response body"),
		}
	}

	return body, nil
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
