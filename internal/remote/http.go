package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ramonehamilton/binder-companion/internal/binder"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultRateInterval   = 50 * time.Millisecond
	maxRetries            = 3
	initialBackoff        = 500 * time.Millisecond
	maxBackoff            = 8 * time.Second
)

// patchRequest is the PATCH /binders/{id} body.
type patchRequest struct {
	ExpectedVersion int64       `json:"expectedVersion"`
	Diff            binder.Diff `json:"diff"`
}

// HTTPStore is a Store backed by a binder document server (see NewHandler).
type HTTPStore struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	userAgent   string
}

// HTTPOption configures an HTTPStore.
type HTTPOption func(*HTTPStore)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPStore) { s.httpClient = c }
}

// WithRateInterval sets the minimum spacing between requests.
func WithRateInterval(d time.Duration) HTTPOption {
	return func(s *HTTPStore) { s.rateLimiter = rate.NewLimiter(rate.Every(d), 1) }
}

// NewHTTPStore creates a client for the server at baseURL.
func NewHTTPStore(baseURL string, opts ...HTTPOption) *HTTPStore {
	s := &HTTPStore{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: defaultRequestTimeout},
		rateLimiter: rate.NewLimiter(rate.Every(defaultRateInterval), 1),
		userAgent:   "binder-companion/1.0",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPStore) binderURL(id string) string {
	return fmt.Sprintf("%s/binders/%s", s.baseURL, url.PathEscape(id))
}

// Fetch retrieves the current snapshot.
func (s *HTTPStore) Fetch(ctx context.Context, id string) (*Snapshot, error) {
	var snap Snapshot
	if err := s.doRequest(ctx, http.MethodGet, s.binderURL(id), nil, true, &snap); err != nil {
		return nil, fmt.Errorf("failed to fetch binder %s: %w", id, err)
	}
	return &snap, nil
}

// Patch sends a version-checked diff. It is not retried: a lost response
// surfaces on the next attempt as a version conflict.
func (s *HTTPStore) Patch(ctx context.Context, id string, diff binder.Diff, expectedVersion int64) (*Snapshot, error) {
	body, err := json.Marshal(patchRequest{ExpectedVersion: expectedVersion, Diff: diff})
	if err != nil {
		return nil, fmt.Errorf("failed to encode patch: %w", err)
	}
	var snap Snapshot
	if err := s.doRequest(ctx, http.MethodPatch, s.binderURL(id), body, false, &snap); err != nil {
		return nil, fmt.Errorf("failed to patch binder %s: %w", id, err)
	}
	return &snap, nil
}

// Delete removes the remote copy.
func (s *HTTPStore) Delete(ctx context.Context, id string) error {
	err := s.doRequest(ctx, http.MethodDelete, s.binderURL(id), nil, true, nil)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete binder %s: %w", id, err)
	}
	return nil
}

// doRequest performs an HTTP request with rate limiting. Idempotent requests
// are retried with exponential backoff on network errors, 429 and 5xx.
func (s *HTTPStore) doRequest(ctx context.Context, method, target string, body []byte, retry bool, result interface{}) error {
	attempts := 1
	if retry {
		attempts += maxRetries
	}
	backoff := initialBackoff
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
		}

		if err := s.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", s.userAgent)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		retryable, err := s.handle(req, result)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			return err
		}
	}
	return lastErr
}

// handle executes one request and decodes the outcome.
func (s *HTTPStore) handle(req *http.Request, result interface{}) (retryable bool, err error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return false, nil
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		if result == nil {
			return false, nil
		}
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return false, fmt.Errorf("failed to parse JSON response: %w", err)
		}
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return false, fmt.Errorf("failed to parse JSON response: %w", err)
		}
		return false, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		var conflict ConflictError
		if err := json.Unmarshal(data, &conflict); err != nil {
			return false, fmt.Errorf("%w: undecodable conflict body", binder.ErrConflictingVersion)
		}
		return false, &conflict
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return false, fmt.Errorf("%w: %s", ErrInvalidPatch, errorMessage(data))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("remote returned HTTP %d: %s", resp.StatusCode, errorMessage(data))
	default:
		return false, fmt.Errorf("unexpected HTTP %d: %s", resp.StatusCode, errorMessage(data))
	}
}

func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(data))
}
