package tmdb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"torrentify/internal/domain"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

var (
	ErrNoAPIKey     = errors.New("tmdb api key not configured")
	ErrUnauthorized = errors.New("tmdb rejected the api key")
)

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Result is one search hit. Movies carry Title/ReleaseDate, shows
// Name/FirstAirDate.
type Result struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title,omitempty"`
	Name          string  `json:"name,omitempty"`
	OriginalTitle string  `json:"original_title,omitempty"`
	ReleaseDate   string  `json:"release_date,omitempty"`
	FirstAirDate  string  `json:"first_air_date,omitempty"`
	Popularity    float64 `json:"popularity,omitempty"`
}

// DisplayTitle returns the localized title for either kind.
func (r Result) DisplayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

// Date returns the release or first air date.
func (r Result) Date() string {
	if r.ReleaseDate != "" {
		return r.ReleaseDate
	}
	return r.FirstAirDate
}

type searchResponse struct {
	Results       []Result `json:"results"`
	StatusMessage string   `json:"status_message,omitempty"`
}

// Client is a thin TMDb v3 client.
type Client struct {
	client *resty.Client

	mu     sync.RWMutex
	apiKey string
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Client{client: client, apiKey: cfg.APIKey}
}

// SetAPIKey swaps the key used for subsequent requests.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
}

func (c *Client) key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// Search queries /search/movie or /search/tv depending on kind.
func (c *Client) Search(ctx context.Context, kind domain.MediaKind, query, language string) ([]Result, error) {
	key := c.key()
	if key == "" {
		return nil, ErrNoAPIKey
	}
	endpoint := "/search/movie"
	if kind == domain.KindTV {
		endpoint = "/search/tv"
	}

	var resp searchResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"api_key":  key,
			"query":    query,
			"language": language,
		}).
		SetResult(&resp).
		SetError(&resp).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("tmdb search: %w", err)
	}

	switch httpResp.StatusCode() {
	case http.StatusOK:
		return resp.Results, nil
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		if resp.StatusMessage != "" {
			return nil, fmt.Errorf("tmdb search: status %d: %s", httpResp.StatusCode(), resp.StatusMessage)
		}
		return nil, fmt.Errorf("tmdb search: status %d", httpResp.StatusCode())
	}
}

// Validate checks key against the /configuration endpoint. An empty key
// validates the configured one.
func (c *Client) Validate(ctx context.Context, key string) error {
	if key == "" {
		key = c.key()
	}
	if key == "" {
		return ErrNoAPIKey
	}
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("api_key", key).
		Get("/configuration")
	if err != nil {
		return fmt.Errorf("tmdb configuration: %w", err)
	}
	switch httpResp.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("tmdb configuration: status %d", httpResp.StatusCode())
	}
}
