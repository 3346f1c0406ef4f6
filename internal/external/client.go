// Package external provides the resilient HTTP layer shared by every outbound
// vendor integration (embedding backends, the forecast provider). All calls go
// through BaseClient, which applies circuit breaking, retries with backoff,
// trace propagation, and error mapping to types.AppError.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"surfmaster/internal/types"
)

// DefaultUserAgent is sent on every outbound request unless overridden.
const DefaultUserAgent = "SurfMaster/1.0"

// RetryPolicy configures the retry behavior for the BaseClient.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns defaults suitable for most vendor APIs.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		MinWait:    500 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
}

// NoRetryPolicy performs a single attempt.
func NoRetryPolicy() RetryPolicy {
	return RetryPolicy{}
}

// BreakerStateFunc observes circuit breaker transitions.
type BreakerStateFunc func(name string, from, to gobreaker.State)

// BaseClient wraps an *http.Client and a circuit breaker. Provider clients
// hold one BaseClient each so that breakers trip per vendor.
type BaseClient struct {
	client       *http.Client
	breaker      *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy  RetryPolicy
	userAgent    string
	upstreamCode types.ErrorCode
	sleepFn      func(context.Context, time.Duration) error
}

type clientOptions struct {
	userAgent     string
	upstreamCode  types.ErrorCode
	sleepFn       func(context.Context, time.Duration) error
	failThreshold uint32
	openTimeout   time.Duration
	onStateChange BreakerStateFunc
}

// BaseClientOption is a functional option for configuring a BaseClient.
type BaseClientOption func(*clientOptions)

// WithSleepFunc overrides the sleep used between retries. Tests use it to
// avoid real delays.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(o *clientOptions) {
		o.sleepFn = func(_ context.Context, d time.Duration) error {
			fn(d)
			return nil
		}
	}
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) BaseClientOption {
	return func(o *clientOptions) { o.userAgent = ua }
}

// WithUpstreamCode sets the error code reported when the vendor stays
// unavailable after retries. Defaults to types.ErrCodeUpstreamUnavailable.
func WithUpstreamCode(code types.ErrorCode) BaseClientOption {
	return func(o *clientOptions) { o.upstreamCode = code }
}

// WithBreakerThreshold sets how many consecutive failures trip the breaker
// and how long it stays open before probing again.
func WithBreakerThreshold(consecutiveFailures uint32, openTimeout time.Duration) BaseClientOption {
	return func(o *clientOptions) {
		o.failThreshold = consecutiveFailures
		o.openTimeout = openTimeout
	}
}

// WithBreakerStateHook registers fn to be called on breaker transitions.
func WithBreakerStateHook(fn BreakerStateFunc) BaseClientOption {
	return func(o *clientOptions) { o.onStateChange = fn }
}

// NewBaseClient creates a BaseClient whose breaker is identified by
// breakerName.
func NewBaseClient(httpClient *http.Client, breakerName string, retryPolicy RetryPolicy, opts ...BaseClientOption) *BaseClient {
	o := clientOptions{
		userAgent:     DefaultUserAgent,
		upstreamCode:  types.ErrCodeUpstreamUnavailable,
		sleepFn:       sleepContext,
		failThreshold: 5,
		openTimeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     o.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > o.failThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	}
	if o.onStateChange != nil {
		settings.OnStateChange = o.onStateChange
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &BaseClient{
		client:       httpClient,
		breaker:      gobreaker.NewCircuitBreaker[*http.Response](settings),
		retryPolicy:  retryPolicy,
		userAgent:    o.userAgent,
		upstreamCode: o.upstreamCode,
		sleepFn:      o.sleepFn,
	}
}

// Name returns the breaker name.
func (c *BaseClient) Name() string {
	return c.breaker.Name()
}

// State returns the current breaker state.
func (c *BaseClient) State() gobreaker.State {
	return c.breaker.State()
}

// Do executes req with:
//  1. Trace ID injection (X-B3-TraceId from the request ID in context)
//  2. User-Agent injection
//  3. Circuit breaker wrapping
//  4. Retry on 429/5xx (respecting Retry-After)
//  5. Error mapping to types.AppError
//
// Responses other than 429/5xx are returned as-is and the caller closes the
// body. Exhausted retries or an open breaker yield an AppError.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if traceID := types.GetRequestID(ctx); traceID != "" {
		req.Header.Set("X-B3-TraceId", traceID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	// Snapshot the body so it can be replayed on retries.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to read request body for retry support", err)
		}
		req.Body.Close()
	}

	var lastResp *http.Response
	var lastErr error

	maxAttempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			if attempt < maxAttempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		if attempt < maxAttempts-1 {
			if sleepErr := c.sleepFn(ctx, c.computeBackoff(attempt, resp)); sleepErr != nil {
				lastErr = sleepErr
				break
			}
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}

	return nil, c.mapError(lastResp, lastErr)
}

// computeBackoff honors Retry-After when present, otherwise uses exponential
// backoff with jitter clamped to [MinWait, MaxWait].
func (c *BaseClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				return min(time.Duration(seconds)*time.Second, c.retryPolicy.MaxWait)
			}
			if t, err := http.ParseTime(retryAfter); err == nil {
				wait := time.Until(t)
				if wait <= 0 {
					return c.retryPolicy.MinWait
				}
				return min(wait, c.retryPolicy.MaxWait)
			}
		}
	}

	base := float64(c.retryPolicy.MinWait) * math.Pow(2, float64(attempt))
	base = math.Min(base, float64(c.retryPolicy.MaxWait))

	minWait := float64(c.retryPolicy.MinWait)
	if base <= minWait {
		return c.retryPolicy.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}

func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("circuit breaker %q is open; upstream service unavailable", c.breaker.Name()), err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return types.NewAppError(c.upstreamCode, "upstream request cancelled or timed out", err)
	}

	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return types.NewAppError(types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded", err)
		case resp.StatusCode >= 500:
			return types.NewAppError(c.upstreamCode,
				fmt.Sprintf("upstream returned %d after retries", resp.StatusCode), err)
		}
	}

	return types.NewAppError(c.upstreamCode, "upstream request failed", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ReadErrorBody drains at most 4KB of an error response body for logging.
func ReadErrorBody(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return string(b)
}
