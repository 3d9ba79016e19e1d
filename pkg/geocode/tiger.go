package geocode

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/voter-geo/internal/db"
)

// TigerProvider geocodes via the PostGIS TIGER geocoder installed alongside
// the voter database.
type TigerProvider struct {
	pool      db.Pool
	maxRating int
}

// NewTigerProvider creates a TigerProvider. Matches rated worse (higher) than
// maxRating are treated as no match.
func NewTigerProvider(pool db.Pool, maxRating int) *TigerProvider {
	return &TigerProvider{pool: pool, maxRating: maxRating}
}

// Name implements Provider.
func (p *TigerProvider) Name() string { return "tiger" }

// Geocode implements Provider.
func (p *TigerProvider) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	oneLine := FormatOneLine(addr)
	if oneLine == "" {
		return &Result{Matched: false, Source: p.Name()}, nil
	}

	var lat, lng float64
	var rating int
	var zip string
	err := p.pool.QueryRow(ctx, `
		SELECT ST_Y(geomout) AS lat, ST_X(geomout) AS lng, rating, COALESCE((addy).zip, '') AS zip
		FROM geocode($1, 1)`,
		oneLine,
	).Scan(&lat, &lng, &rating, &zip)
	if eris.Is(err, pgx.ErrNoRows) {
		return &Result{Matched: false, Source: p.Name()}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "geocode: tiger query")
	}

	if p.maxRating > 0 && rating > p.maxRating {
		zap.L().Debug("tiger provider: rating exceeds threshold",
			zap.String("address", oneLine),
			zap.Int("rating", rating),
			zap.Int("max_rating", p.maxRating),
		)
		return &Result{Matched: false, Source: p.Name()}, nil
	}

	return &Result{
		Point:   Point{Lat: lat, Lng: lng},
		Source:  p.Name(),
		Quality: ratingToQuality(rating),
		Zip:     zip,
		Matched: true,
	}, nil
}

// ratingToQuality maps a TIGER rating (0 = exact) to our quality taxonomy.
func ratingToQuality(rating int) string {
	switch {
	case rating <= 5:
		return "rooftop"
	case rating <= 20:
		return "range"
	case rating <= 50:
		return "centroid"
	default:
		return "approximate"
	}
}
