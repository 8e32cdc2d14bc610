package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/i474232898/cycle-tracker/internal/logger"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// ErrUnauthorized is returned when the backend rejects the session token.
var ErrUnauthorized = errors.New("backend rejected credentials")

// statusError carries a non-retryable status code out of the breaker.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: %d %s", errUnexpected, e.code, e.body)
}

func (e *statusError) Unwrap() error {
	switch e.code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return errUnexpected
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// Client errors say nothing about backend health.
		IsSuccessful: func(err error) bool {
			var se *statusError
			return err == nil || errors.As(err, &se)
		},
	})
}

// doRequestWithResilience executes the HTTP request with retries, exponential backoff,
// and a circuit breaker. Only rate limits, server errors and transport errors are retried.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var (
		resp    *http.Response
		lastErr error
	)
	err := retry.Do(
		func() error {
			req, err := buildRequest()
			if err != nil {
				lastErr = err
				return retry.Unrecoverable(err)
			}
			// Ensure the request obeys context cancellation.
			req = req.WithContext(ctx)

			result, err := cb.Execute(func() (interface{}, error) {
				r, execErr := cfg.Client.Do(req)
				if execErr != nil {
					return nil, execErr
				}

				// Handle rate limiting and server errors explicitly.
				if r.StatusCode == http.StatusTooManyRequests {
					drain(r)
					return nil, errRateLimited
				}
				if r.StatusCode >= 500 {
					drain(r)
					return nil, fmt.Errorf("%w: %d", errServerError, r.StatusCode)
				}
				if r.StatusCode < 200 || r.StatusCode >= 300 {
					body, _ := io.ReadAll(io.LimitReader(r.Body, 512))
					r.Body.Close()
					return nil, &statusError{code: r.StatusCode, body: string(body)}
				}
				return r, nil
			})
			if err != nil {
				lastErr = err
				// If circuit is open, propagate immediately.
				if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
					lastErr = fmt.Errorf("%w: %v", errCircuitOpen, err)
					return retry.Unrecoverable(lastErr)
				}
				var se *statusError
				if errors.As(err, &se) {
					return retry.Unrecoverable(err)
				}
				return err
			}

			var ok bool
			resp, ok = result.(*http.Response)
			if !ok {
				lastErr = fmt.Errorf("unexpected result type from circuit breaker")
				return retry.Unrecoverable(lastErr)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(cfg.Backoff.MaxRetries)+1),
		retry.Delay(cfg.Backoff.InitialInterval),
		retry.MaxDelay(cfg.Backoff.MaxInterval),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			logger.Log.WithFields(logrus.Fields{
				"breaker": cb.Name(),
				"attempt": n + 1,
			}).WithError(err).Warn("sources: retrying backend request")
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if lastErr == nil {
			lastErr = err
		}
		return nil, lastErr
	}
	return resp, nil
}

func drain(r *http.Response) {
	_, _ = io.Copy(io.Discard, r.Body)
	r.Body.Close()
}
