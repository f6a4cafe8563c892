// Package catalog looks up card details (name, printed number, rarity,
// types) from a Pokémon-TCG-style REST API, caching them in memory and in
// the local SQLite cache. Lookups never fail the binder: when the catalog
// is unreachable the service hands out placeholder details.
package catalog

import (
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
	DefaultBaseURL = "https://api.pokemontcg.io/v2"

	defaultRateInterval = 100 * time.Millisecond
	defaultTimeout      = 15 * time.Second
	initialBackoff      = 500 * time.Millisecond
	maxBackoff          = 8 * time.Second
)

// ErrNotFound is returned when the catalog has no card with the given id.
var ErrNotFound = errors.New("card not found in catalog")

// Source resolves card ids to details.
type Source interface {
	GetCardByIdentity(ctx context.Context, cardID string) (*binder.CardDetails, error)
}

// Searcher is implemented by sources that can search by name.
type Searcher interface {
	Search(ctx context.Context, name string, limit int) ([]*binder.CardDetails, error)
}

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	BaseURL      string
	APIKey       string
	RateInterval time.Duration
	Timeout      time.Duration
	MaxRetries   int
	HTTPClient   *http.Client
}

// Client talks to the catalog API with rate limiting and retries.
type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	maxRetries  int
	userAgent   string
}

// NewClient creates a catalog API client.
func NewClient(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.RateInterval <= 0 {
		config.RateInterval = defaultRateInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		apiKey:      config.APIKey,
		httpClient:  httpClient,
		rateLimiter: rate.NewLimiter(rate.Every(config.RateInterval), 1),
		maxRetries:  config.MaxRetries,
		userAgent:   "binder-companion/1.0",
	}
}

// apiCard is the catalog's card representation.
type apiCard struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Number    string   `json:"number"`
	Rarity    string   `json:"rarity"`
	Supertype string   `json:"supertype"`
	Types     []string `json:"types"`
	Set       struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"set"`
	Images struct {
		Small string `json:"small"`
		Large string `json:"large"`
	} `json:"images"`
}

func (c apiCard) details() *binder.CardDetails {
	return &binder.CardDetails{
		ID:        c.ID,
		Name:      c.Name,
		Number:    c.Number,
		SetID:     c.Set.ID,
		SetName:   c.Set.Name,
		Rarity:    c.Rarity,
		Supertype: c.Supertype,
		Types:     c.Types,
		ImageURL:  c.Images.Small,
	}
}

// GetCardByIdentity retrieves one card.
func (c *Client) GetCardByIdentity(ctx context.Context, cardID string) (*binder.CardDetails, error) {
	var body struct {
		Data apiCard `json:"data"`
	}
	target := fmt.Sprintf("%s/cards/%s", c.baseURL, url.PathEscape(cardID))
	if err := c.doRequest(ctx, target, &body); err != nil {
		return nil, fmt.Errorf("failed to get card %s: %w", cardID, err)
	}
	return body.Data.details(), nil
}

// Search finds cards whose name matches.
func (c *Client) Search(ctx context.Context, name string, limit int) ([]*binder.CardDetails, error) {
	if limit <= 0 {
		limit = 20
	}
	query := url.Values{}
	query.Set("q", fmt.Sprintf("name:%q", name))
	query.Set("pageSize", fmt.Sprint(limit))

	var body struct {
		Data []apiCard `json:"data"`
	}
	if err := c.doRequest(ctx, c.baseURL+"/cards?"+query.Encode(), &body); err != nil {
		return nil, fmt.Errorf("failed to search cards named %q: %w", name, err)
	}

	out := make([]*binder.CardDetails, 0, len(body.Data))
	for _, card := range body.Data {
		out = append(out, card.details())
	}
	return out, nil
}

// doRequest performs a GET with rate limiting and retry logic. Transport
// failures, 429 and 5xx are retried with exponential backoff; when retries
// run out the error wraps binder.ErrCatalogUnavailable.
func (c *Client) doRequest(ctx context.Context, target string, result interface{}) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-Api-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close() // Explicitly ignore error - cleanup operation
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, result); err != nil {
				return fmt.Errorf("failed to parse JSON response: %w", err)
			}
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("catalog returned HTTP %d", resp.StatusCode)
			continue
		default:
			return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
	}

	return fmt.Errorf("%w: max retries exceeded: %w", binder.ErrCatalogUnavailable, lastErr)
}
