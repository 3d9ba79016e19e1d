// Package search answers "who lives near this address" queries: it selects
// candidate rings from the voter store, resolves the query point, ranks,
// dedupes and pages the result.
package search

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/voter-geo/internal/address"
	"github.com/sells-group/voter-geo/internal/metrics"
	"github.com/sells-group/voter-geo/internal/proximity"
	"github.com/sells-group/voter-geo/internal/resilience"
	"github.com/sells-group/voter-geo/internal/resolver"
	"github.com/sells-group/voter-geo/internal/voter"
	"github.com/sells-group/voter-geo/pkg/geocode"
)

// Geocoder resolves the query point. *resolver.Resolver implements it.
type Geocoder interface {
	Resolve(ctx context.Context, q resolver.Query) (*resolver.Location, error)
	ResolveZip(ctx context.Context, zip string) (*resolver.Location, error)
}

// Service runs nearby-voter searches.
type Service struct {
	store    voter.Store
	geocoder Geocoder
	metrics  *metrics.Metrics
}

// NewService creates a Service. geocoder may be nil, in which case every
// search uses the lexical fallback.
func NewService(store voter.Store, geocoder Geocoder, m *metrics.Metrics) *Service {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Service{store: store, geocoder: geocoder, metrics: m}
}

// Nearby runs a search. Invalid input returns an error wrapping
// ErrInvalidRequest before any store work. Geocoder failures are never
// returned; the search falls back to lexical ranking instead, except for an
// address with no zip, which is invalid when the geocoder cannot supply one.
func (s *Service) Nearby(ctx context.Context, req Request) (*Response, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	parsed := address.Parse(req.Address)
	zip := req.Zip
	if zip == "" {
		zip = parsed.Zip
	}

	// An address without a zip takes the zip of the geocoder's match, and
	// that match is also the center.
	var center *geocode.Point
	located := false
	if zip == "" {
		loc := s.locate(ctx, req, "", zap.L().With(zap.String("state", req.State)))
		if loc == nil || loc.Zip == "" {
			return nil, eris.Wrap(ErrInvalidRequest, "no zip code in address and none could be geocoded; pass zip explicitly")
		}
		zip = loc.Zip
		center, located = &loc.Point, true
	}

	log := zap.L().With(zap.String("state", req.State), zap.String("zip", zip))

	exact, err := s.store.Candidates(ctx, req.State, zip)
	if err != nil {
		return nil, eris.Wrap(err, "search: exact zip candidates")
	}
	prefix, err := s.store.PrefixCandidates(ctx, req.State, voter.ZipPrefix(zip), zip)
	if err != nil {
		return nil, eris.Wrap(err, "search: zip prefix candidates")
	}

	if len(exact)+len(prefix) == 0 {
		s.metrics.SearchRequests.WithLabelValues(ModeEmpty).Inc()
		return &Response{Voters: []SanitizedVoter{}, Zip: zip, Mode: ModeEmpty}, nil
	}

	if !located {
		if loc := s.locate(ctx, req, zip, log); loc != nil {
			center = &loc.Point
		}
	}

	var ranked []proximity.Result
	resp := &Response{Zip: zip}
	if center != nil {
		ranked = proximity.Concat(
			proximity.RankByDistance(*center, exact, proximity.RingExactZip),
			proximity.RankByDistance(*center, prefix, proximity.RingPrefix),
		)
		lat, lng := center.Lat, center.Lng
		resp.CenterLat, resp.CenterLng = &lat, &lng
		resp.Mode = ModeGeocoded
	} else {
		ranked = proximity.Concat(
			proximity.RankLexical(parsed, exact, proximity.RingExactZip),
			proximity.RankLexical(parsed, prefix, proximity.RingPrefix),
		)
		resp.Mode = ModeLexical
	}

	page, total, hasMore := proximity.Paginate(proximity.Dedup(ranked), req.Limit, req.Offset)
	resp.Voters = sanitize(page)
	resp.Total = total
	resp.HasMore = hasMore

	s.metrics.SearchRequests.WithLabelValues(resp.Mode).Inc()
	log.Debug("search: nearby",
		zap.String("mode", resp.Mode),
		zap.Int("exact", len(exact)),
		zap.Int("prefix", len(prefix)),
		zap.Int("total", total),
	)
	return resp, nil
}

type breakerReporter interface {
	BreakerState() resilience.CircuitState
}

// Health reports the geocoder circuit state when the geocoder tracks one.
func (s *Service) Health() map[string]string {
	out := map[string]string{}
	if b, ok := s.geocoder.(breakerReporter); ok {
		out["geocoder"] = b.BreakerState().String()
	}
	return out
}

// locate geocodes the address with the request's state and zip, or the zip
// alone when there is no address. Any failure returns nil.
func (s *Service) locate(ctx context.Context, req Request, zip string, log *zap.Logger) *resolver.Location {
	if s.geocoder == nil {
		return nil
	}
	var (
		loc *resolver.Location
		err error
	)
	if req.Address != "" {
		loc, err = s.geocoder.Resolve(ctx, resolver.Query{Text: req.Address, State: req.State, Zip: zip})
	} else {
		loc, err = s.geocoder.ResolveZip(ctx, zip)
	}
	if err != nil {
		log.Warn("search: geocoding query failed, using lexical ranking", zap.Error(err))
		return nil
	}
	return loc
}
