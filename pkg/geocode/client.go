// Package geocode resolves street addresses to coordinates through the Census
// Geocoder batch and one-line endpoints, with optional Google and PostGIS
// TIGER providers for single-address lookups.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client geocodes addresses against the Census Geocoder.
type Client interface {
	// Provider geocodes a single address through the one-line endpoint.
	Provider

	// BatchGeocode submits one batch to the batch endpoint. A returned error
	// means the whole batch failed and may be retried.
	BatchGeocode(ctx context.Context, addrs []AddressInput) (*BatchResponse, error)
}

// AddressInput is an address to geocode.
type AddressInput struct {
	ID      string // correlation id, unique within a batch
	Street  string
	City    string
	State   string
	ZipCode string
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Result holds the geocoding output for a single address.
type Result struct {
	Point   Point
	Source  string // "census", "google" or "tiger"
	Quality string // "rooftop", "range", "centroid", "approximate"
	Zip     string // zip of the matched address, "" when the provider did not say
	Matched bool
}

// BatchResponse is the parsed body of a batch call.
type BatchResponse struct {
	// Points maps each id the provider answered for to its coordinates, or to
	// nil when the provider found no confident match.
	Points map[string]*Point

	// Malformed counts rows that were skipped because they could not be parsed.
	Malformed int
}

// Matched returns how many ids resolved to coordinates.
func (b *BatchResponse) Matched() int {
	n := 0
	for _, p := range b.Points {
		if p != nil {
			n++
		}
	}
	return n
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit across all calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBatchTimeout bounds each batch request.
func WithBatchTimeout(d time.Duration) Option {
	return func(g *geocoder) {
		if d > 0 {
			g.batchTimeout = d
		}
	}
}

// WithOneLineTimeout bounds each single-address request.
func WithOneLineTimeout(d time.Duration) Option {
	return func(g *geocoder) {
		if d > 0 {
			g.oneLineTimeout = d
		}
	}
}

// WithBenchmark overrides the Census benchmark literal.
func WithBenchmark(benchmark string) Option {
	return func(g *geocoder) {
		if benchmark != "" {
			g.benchmark = benchmark
		}
	}
}

// WithBaseURL points the client at a different Census host, e.g. a test server.
func WithBaseURL(base string) Option {
	return func(g *geocoder) {
		if base != "" {
			g.batchURL = base + censusBatchPath
			g.oneLineURL = base + censusOneLinePath
		}
	}
}

type geocoder struct {
	httpClient     *http.Client
	limiter        *rate.Limiter
	batchURL       string
	oneLineURL     string
	benchmark      string
	batchTimeout   time.Duration
	oneLineTimeout time.Duration
}

// NewClient creates a Census geocoding Client.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient:     &http.Client{},
		limiter:        rate.NewLimiter(5, 5),
		batchURL:       censusBaseURL + censusBatchPath,
		oneLineURL:     censusBaseURL + censusOneLinePath,
		benchmark:      censusBenchmark,
		batchTimeout:   3 * time.Minute,
		oneLineTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements Provider.
func (g *geocoder) Name() string { return "census" }
