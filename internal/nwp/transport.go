package nwp

import (
	"bytes"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

var (
	// ErrRateLimited signals an HTTP 429. It is never retried locally and
	// tells the caller to stop issuing requests to the provider.
	ErrRateLimited = errors.New("rate limited")

	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
	errCircuitOpen = errors.New("circuit breaker open")
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries int           // total attempts, not extra retries
	Base       time.Duration // delay after the first attempt; doubles per attempt
	Max        time.Duration // cap on the delay (0 = uncapped)
}

// DefaultBackoff is used when the caller does not override retry settings.
var DefaultBackoff = BackoffConfig{
	MaxRetries: 3,
	Base:       time.Second,
	Max:        30 * time.Second,
}

// isRateLimited reports whether err stems from an HTTP 429.
func isRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// Transport performs HTTP GETs with bounded retries, exponential backoff and
// a per-provider circuit breaker. Every other retrieval component builds on
// it.
type Transport struct {
	client  *http.Client
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewTransport builds a Transport with a circuit breaker named after the
// provider it serves.
func NewTransport(client *http.Client, name string, backoff BackoffConfig, log zerolog.Logger) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	if backoff.MaxRetries <= 0 {
		backoff.MaxRetries = DefaultBackoff.MaxRetries
	}
	if backoff.Base <= 0 {
		backoff.Base = DefaultBackoff.Base
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// A 4xx is a definitive answer, not server ill-health. Run probing
		// walks backward through many 404s and must not trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errUnexpected)
		},
	})

	return &Transport{
		client:  client,
		backoff: backoff,
		circuit: cb,
		log:     log.With().Str("component", "transport").Str("source", name).Logger(),
	}
}

// Fetch GETs url with the given per-attempt timeout and returns the body
// bytes. A 429 fails immediately with ErrRateLimited; any other failure is
// retried up to the configured attempt budget with 2^attempt backoff.
func (t *Transport) Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < t.backoff.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := t.backoff.Base << uint(attempt-1)
			if t.backoff.Max > 0 && delay > t.backoff.Max {
				delay = t.backoff.Max
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		body, err := t.fetchOnce(ctx, url, timeout)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		if errors.Is(err, errCircuitOpen) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		t.log.Debug().Err(err).Int("attempt", attempt+1).Str("url", url).Msg("fetch attempt failed")
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", t.backoff.MaxRetries, lastErr)
}

// FetchBzip2 fetches a bzip2-compressed artifact and returns the
// decompressed bytes. Decompression failure is reported the same way as a
// download failure.
func (t *Transport) FetchBzip2(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	raw, err := t.Fetch(ctx, url, timeout)
	if err != nil {
		return nil, err
	}
	out, err := io.ReadAll(bzip2.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", url, err)
	}
	return out, nil
}

func (t *Transport) fetchOnce(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	result, err := t.circuit.Execute(func() (interface{}, error) {
		resp, execErr := t.client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("%s: %w", url, ErrRateLimited)
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
		}

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, nil
}
