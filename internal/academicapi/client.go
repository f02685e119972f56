// Package academicapi fetches subject guides from the university planning API
// and turns them into faculty and evaluation snapshots.
package academicapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/metrics"
	"github.com/henny-hen/DASOS-backend/pkg/circuitbreaker"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
	"github.com/henny-hen/DASOS-backend/pkg/retry"
)

const maxPayloadBytes = 4 << 20

// Key identifies one subject guide.
type Key struct {
	AcademicYear string
	Semester     string
	PlanCode     string
	SubjectCode  string
}

func (k Key) name() string {
	return k.PlanCode + "_" + k.SubjectCode
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Retry      retry.Config
	Breaker    circuitbreaker.Config
	Cache      PayloadCache
	HTTPClient *http.Client
	// ForceRefresh skips cache reads; fetched payloads are still cached.
	ForceRefresh bool
}

type Client struct {
	baseURL      string
	httpClient   *http.Client
	cache        PayloadCache
	retry        retry.Config
	breaker      *circuitbreaker.CircuitBreaker
	forceRefresh bool
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	rc := opts.Retry
	if rc.Logger == nil {
		rc.Logger = logger.GetLogger()
	}
	rc.RetryIf = retryable

	bc := opts.Breaker
	if bc.Logger == nil {
		bc.Logger = logger.GetLogger()
	}
	bc.IsFailure = tripsBreaker
	onChange := bc.OnStateChange
	bc.OnStateChange = func(name string, from, to circuitbreaker.State) {
		metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		if onChange != nil {
			onChange(name, from, to)
		}
	}

	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		httpClient:   httpClient,
		cache:        opts.Cache,
		retry:        rc,
		breaker:      circuitbreaker.NewCircuitBreaker("academic-api", bc),
		forceRefresh: opts.ForceRefresh,
	}
}

// URL returns the address of the guide for key.
func (c *Client) URL(key Key) string {
	return fmt.Sprintf("%s/%s/%s/%s.json",
		c.baseURL,
		url.PathEscape(key.AcademicYear),
		url.PathEscape(key.Semester),
		url.PathEscape(key.name()),
	)
}

// Fetch returns the parsed guide for key, from the cache when possible.
func (c *Client) Fetch(ctx context.Context, key Key) (*Payload, error) {
	if c.cache != nil && !c.forceRefresh {
		data, found, err := c.cache.Get(ctx, key.AcademicYear, key.Semester, key.name())
		if err != nil {
			logger.Warn("Payload cache read failed", zap.String("subject_code", key.SubjectCode), zap.Error(err))
		}
		if found {
			if p, err := ParsePayload(data); err == nil {
				metrics.APIFetchTotal.WithLabelValues("cache_hit").Inc()
				return p, nil
			}
			logger.Warn("Discarding malformed cached payload",
				zap.String("subject_code", key.SubjectCode),
				zap.String("academic_year", key.AcademicYear),
			)
		}
	}

	target := c.URL(key)
	attempts := 0
	var payload *Payload
	data, err := retry.DoWithResult(ctx, c.retry, func() ([]byte, error) {
		attempts++
		return circuitbreaker.Run(ctx, c.breaker, func() ([]byte, error) {
			body, err := c.get(ctx, target)
			if err != nil {
				return nil, err
			}
			p, err := ParsePayload(body)
			if err != nil {
				return nil, err
			}
			payload = p
			return body, nil
		})
	})
	if err != nil {
		fetchErr := &ExternalFetchError{URL: target, Attempts: attempts, Err: err}
		var se *statusError
		if errors.As(err, &se) {
			fetchErr.StatusCode = se.code
		}
		metrics.APIFetchTotal.WithLabelValues(fetchResult(err)).Inc()
		logger.Warn("Academic API fetch failed",
			zap.String("subject_code", key.SubjectCode),
			zap.String("academic_year", key.AcademicYear),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return nil, fetchErr
	}

	metrics.APIFetchTotal.WithLabelValues("ok").Inc()
	if c.cache != nil {
		if err := c.cache.Set(ctx, key.AcademicYear, key.Semester, key.name(), data); err != nil {
			logger.Warn("Payload cache write failed", zap.String("subject_code", key.SubjectCode), zap.Error(err))
		}
	}
	logger.Debug("Fetched subject guide",
		zap.String("subject_code", key.SubjectCode),
		zap.String("academic_year", key.AcademicYear),
		zap.Int("faculty", len(payload.Faculty)),
		zap.Int("methods", len(payload.Methods)),
	)
	return payload, nil
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.APIFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to call api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, newStatusError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// retryable keeps retrying network errors and transient statuses. Malformed
// payloads, client errors and an open breaker end the attempt loop.
func retryable(err error) bool {
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, ErrMalformedPayload) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.transient()
	}
	return true
}

// tripsBreaker ignores answers that say nothing about the API's health.
func tripsBreaker(err error) bool {
	if errors.Is(err, ErrMalformedPayload) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.transient()
	}
	return true
}

func fetchResult(err error) string {
	var se *statusError
	switch {
	case errors.As(err, &se) && se.code == http.StatusNotFound:
		return "not_found"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed"
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return "circuit_open"
	}
	return "error"
}
