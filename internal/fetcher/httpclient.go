package fetcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"resty.dev/v3"
)

const (
	// DefaultTimeout bounds a single provider request
	DefaultTimeout = 30 * time.Second

	defaultRetryWaitTime    = 1 * time.Second
	defaultRetryMaxWaitTime = 10 * time.Second
)

// HTTPOptions configures the provider HTTP client
type HTTPOptions struct {
	BaseURL string
	Timeout time.Duration
	// RetryCount is the number of extra attempts per request. Zero leaves
	// retrying to the external trigger.
	RetryCount int
	// RetryWaitTime is the initial backoff between attempts
	RetryWaitTime time.Duration
	Logger        *zap.Logger
}

// NewHTTPClient creates an HTTP client with a bounded request timeout and,
// when RetryCount > 0, retry with exponential backoff
func NewHTTPClient(opts HTTPOptions) *resty.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryWaitTime <= 0 {
		opts.RetryWaitTime = defaultRetryWaitTime
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(opts.Timeout).
		SetLogger(log.Sugar())

	if opts.RetryCount > 0 {
		client.
			SetRetryCount(opts.RetryCount).
			SetRetryWaitTime(opts.RetryWaitTime).
			SetRetryMaxWaitTime(defaultRetryMaxWaitTime).
			AddRetryConditions(retryCondition).
			AddRetryHooks(retryHook(log))
	}

	return client
}

// retryCondition determines whether a request should be retried based on the response and error
func retryCondition(r *resty.Response, err error) bool {
	// Retry on network errors, but never on a request the caller canceled
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	if r == nil {
		return true
	}

	switch code := r.StatusCode(); {
	case code >= 500:
		return true
	case code == 429:
		return true
	case code == 408:
		return true
	default:
		return false
	}
}

// retryHook logs retry attempts for observability
func retryHook(log *zap.Logger) resty.RetryHookFunc {
	return func(r *resty.Response, err error) {
		if r == nil || r.Request == nil {
			log.Debug("retrying request due to error", zap.Error(err))
			return
		}

		if err != nil {
			log.Debug("retrying request due to error",
				zap.String("url", r.Request.URL),
				zap.Int("attempt", r.Request.Attempt),
				zap.Error(err))
			return
		}

		log.Debug("retrying request due to status code",
			zap.String("url", r.Request.URL),
			zap.Int("attempt", r.Request.Attempt),
			zap.Int("status_code", r.StatusCode()))
	}
}
