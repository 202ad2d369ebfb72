package axon

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// retryProvider wraps a Provider and retries transient failures (timeouts,
// 429, 5xx) with exponential backoff and jitter. Context-overflow errors are
// never retried here; the engine handles those with a forced compression pass.
type retryProvider struct {
	inner       Provider
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *slog.Logger
}

// RetryOption configures a retryProvider.
type RetryOption func(*retryProvider)

// RetryMaxAttempts sets the maximum number of attempts (default: 2, i.e. one
// retry after the initial call).
func RetryMaxAttempts(n int) RetryOption {
	return func(r *retryProvider) { r.maxAttempts = n }
}

// RetryBaseDelay sets the initial backoff delay (default: 500ms). Each
// subsequent delay doubles up to the cap.
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.baseDelay = d }
}

// RetryMaxDelay caps the backoff delay (default: 4s).
func RetryMaxDelay(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.maxDelay = d }
}

// RetryLogger sets the structured logger for retry events.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(r *retryProvider) { r.logger = l }
}

// WithRetry wraps p with automatic retry on transient provider errors.
//
//	base = axon.WithRetry(client)
//	base = axon.WithRetry(client, axon.RetryMaxAttempts(3))
func WithRetry(p Provider, opts ...RetryOption) Provider {
	r := &retryProvider{
		inner:       p,
		maxAttempts: 2,
		baseDelay:   500 * time.Millisecond,
		maxDelay:    4 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = nopLogger
	}
	return r
}

func (r *retryProvider) Name() string  { return r.inner.Name() }
func (r *retryProvider) Model() string { return r.inner.Model() }

// Chat implements Provider with retry.
func (r *retryProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var lastErr error
	delay := r.baseDelay
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		resp, err := r.inner.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isTransient(err) || isContextOverflow(err) || attempt == r.maxAttempts {
			break
		}
		// Jitter in [0.5, 1.5) of the nominal delay.
		sleep := time.Duration(float64(delay) * (0.5 + rand.Float64()))
		r.logger.Warn("provider call failed, retrying",
			"provider", r.inner.Name(),
			"attempt", attempt,
			"delay", sleep,
			"error", err)
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ChatResponse{}, ctx.Err()
		}
		delay *= 2
		if delay > r.maxDelay {
			delay = r.maxDelay
		}
	}
	r.logger.Error("provider call failed permanently",
		"provider", r.inner.Name(), "error", lastErr)
	return ChatResponse{}, lastErr
}

// nopLogger discards all log output. Used wherever no logger is configured so
// call sites never nil-check.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
