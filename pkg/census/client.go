// Package census talks to the two Census Bureau services the enrichment
// needs: the Geocoder (coordinate -> block/tract geography) and the ACS5
// data API (tract-level statistics for one state).
package census

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultGeocoderURL = "https://geocoding.geo.census.gov/geocoder/geographies/coordinates"
	defaultACSURL      = "https://api.census.gov/data"
	defaultBenchmark   = "Public_AR_Current"
	defaultVintage     = "Current_Current"
	defaultBlocksLayer = "2020 Census Blocks"
)

// Failures surfaced by the Census services. None are retried here; callers
// decide their own retry policy.
var (
	ErrAPIFailure          = eris.New("census: api failure")
	ErrGeocodeFailure      = eris.New("census: coordinate resolves to no census block")
	ErrInvalidVariableCode = eris.New("census: invalid variable code")
)

// Option configures the Client.
type Option func(*Client)

// WithAPIKey sets the Census data API key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both services.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit shared by both services.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithGeocoderURL overrides the geographies/coordinates endpoint.
func WithGeocoderURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.geocoderURL = u
		}
	}
}

// WithACSURL overrides the data API base URL (the part before /{year}/acs/acs5).
func WithACSURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.acsURL = u
		}
	}
}

// WithBlocksLayer selects the geocoder layer holding census blocks.
func WithBlocksLayer(layer string) Option {
	return func(c *Client) {
		if layer != "" {
			c.blocksLayer = layer
		}
	}
}

// Client implements coordinate lookups and ACS5 tract queries.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	apiKey      string
	geocoderURL string
	acsURL      string
	benchmark   string
	vintage     string
	blocksLayer string
}

// NewClient creates a Client with the given options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		limiter:     rate.NewLimiter(10, 10),
		geocoderURL: defaultGeocoderURL,
		acsURL:      defaultACSURL,
		benchmark:   defaultBenchmark,
		vintage:     defaultVintage,
		blocksLayer: defaultBlocksLayer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs a rate-limited GET and returns status code and body.
// Transport failures are reported as ErrAPIFailure.
func (c *Client) get(ctx context.Context, reqURL, what string) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, eris.Wrapf(err, "census: %s rate limit", what)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, nil, eris.Wrapf(err, "census: %s build request", what)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, eris.Wrapf(ErrAPIFailure, "census: %s request: %v", what, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, eris.Wrapf(ErrAPIFailure, "census: %s read body: %v", what, err)
	}
	return resp.StatusCode, body, nil
}
