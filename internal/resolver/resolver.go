// Package resolver geocodes a single free-text address or zip at query time,
// behind a cache, a timeout and a circuit breaker.
package resolver

import (
	"context"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/voter-geo/internal/address"
	"github.com/sells-group/voter-geo/internal/metrics"
	"github.com/sells-group/voter-geo/internal/resilience"
	"github.com/sells-group/voter-geo/pkg/geocode"
)

// ErrEmptyQuery is returned for blank input.
var ErrEmptyQuery = eris.New("resolver: empty query")

// Resolver resolves query addresses to coordinates.
type Resolver struct {
	provider geocode.Provider
	cache    Cache
	breaker  *resilience.CircuitBreaker
	timeout  time.Duration
	metrics  *metrics.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache replaces the default in-memory cache.
func WithCache(c Cache) Option {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(r *Resolver) {
		if cb != nil {
			r.breaker = cb
		}
	}
}

// WithMetrics records lookups on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		if m != nil {
			r.metrics = m
		}
	}
}

// New creates a Resolver over provider.
func New(provider geocode.Provider, opts ...Option) *Resolver {
	r := &Resolver{
		provider: provider,
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = NewMemoryCache(24*time.Hour, 10000)
	}
	if r.breaker == nil {
		r.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("resolver: circuit breaker state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
	}
	if r.metrics == nil {
		r.metrics = metrics.NewUnregistered()
	}
	return r
}

// Query is a free-text address plus the state and zip the caller already
// knows. State and Zip are sent to the provider only when Text lacks them.
type Query struct {
	Text  string
	State string
	Zip   string
}

// Location is a resolved point and the zip of the matched address, when the
// provider reported one.
type Location struct {
	Point geocode.Point
	Zip   string
}

// input builds the provider request. The formatted one-line form doubles as
// the cache key, so the same street in two states never shares an entry.
func (q Query) input() geocode.AddressInput {
	text := strings.TrimSpace(q.Text)
	in := geocode.AddressInput{Street: text}
	if text == "" {
		return in
	}
	if address.Parse(text).Zip == "" {
		in.ZipCode = strings.TrimSpace(q.Zip)
	}
	if st := strings.ToUpper(strings.TrimSpace(q.State)); st != "" && !hasToken(text, st) {
		in.State = st
	}
	return in
}

func hasToken(text, token string) bool {
	fields := strings.FieldsFunc(strings.ToUpper(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return slices.Contains(fields, token)
}

// Resolve geocodes a query address. It returns (nil, nil) when the geocoder
// found no match and an error when it could not answer at all.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Location, error) {
	in := q.input()
	if in.Street == "" {
		return nil, ErrEmptyQuery
	}
	return r.resolve(ctx, geocode.FormatOneLine(in), in)
}

// ResolveZip geocodes a zip code as a stand-in center point.
func (r *Resolver) ResolveZip(ctx context.Context, zip string) (*Location, error) {
	zip = strings.TrimSpace(zip)
	if zip == "" {
		return nil, ErrEmptyQuery
	}
	loc, err := r.resolve(ctx, "zip:"+zip, geocode.AddressInput{ZipCode: zip})
	if loc != nil && loc.Zip == "" {
		loc.Zip = zip
	}
	return loc, err
}

func (r *Resolver) resolve(ctx context.Context, key string, in geocode.AddressInput) (*Location, error) {
	query := NormalizeQuery(key)
	log := zap.L().With(zap.String("query", query))

	loc, found, err := r.cache.Get(ctx, query)
	if err != nil {
		// a broken cache only costs a provider call
		log.Warn("resolver: cache read failed", zap.Error(err))
	} else if found {
		r.metrics.ResolverLookups.WithLabelValues("hit").Inc()
		return loc, nil
	}

	if r.provider == nil {
		r.metrics.ResolverLookups.WithLabelValues("error").Inc()
		return nil, eris.New("resolver: no geocode provider configured")
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := resilience.ExecuteVal(cctx, r.breaker, func(ctx context.Context) (*geocode.Result, error) {
		return r.provider.Geocode(ctx, in)
	})
	if err != nil {
		if eris.Is(err, resilience.ErrCircuitOpen) {
			r.metrics.ResolverLookups.WithLabelValues("open").Inc()
		} else {
			r.metrics.ResolverLookups.WithLabelValues("error").Inc()
		}
		return nil, eris.Wrap(err, "resolver: geocode")
	}

	r.metrics.ResolverLookups.WithLabelValues("miss").Inc()
	var out *Location
	if res != nil && res.Matched {
		out = &Location{Point: res.Point, Zip: res.Zip}
	}
	if err := r.cache.Set(ctx, query, out); err != nil {
		log.Warn("resolver: cache write failed", zap.Error(err))
	}
	return out, nil
}

// BreakerState reports the provider circuit state; /health surfaces it.
func (r *Resolver) BreakerState() resilience.CircuitState {
	return r.breaker.State()
}

// NormalizeQuery case-folds text and collapses whitespace so trivially
// different spellings share a cache entry.
func NormalizeQuery(text string) string {
	return strings.Join(strings.Fields(cases.Fold().String(text)), " ")
}
