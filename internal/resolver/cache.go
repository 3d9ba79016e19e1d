package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/voter-geo/internal/db"
	"github.com/sells-group/voter-geo/pkg/geocode"
)

// Cache stores query-time geocodes. A nil location with found=true is a
// cached negative result.
type Cache interface {
	Get(ctx context.Context, query string) (loc *Location, found bool, err error)
	Set(ctx context.Context, query string, loc *Location) error
}

type memEntry struct {
	loc     *Location
	expires time.Time
}

// MemoryCache is a TTL map bounded to maxEntries. When full, expired entries
// are swept first and then an arbitrary entry is evicted.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memEntry
	ttl        time.Duration
	maxEntries int
	nowFunc    func() time.Time
}

// NewMemoryCache creates a MemoryCache.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryCache{
		entries:    make(map[string]memEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		nowFunc:    time.Now,
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, query string) (*Location, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[query]
	if !ok {
		return nil, false, nil
	}
	if !c.nowFunc().Before(e.expires) {
		delete(c.entries, query)
		return nil, false, nil
	}
	if e.loc == nil {
		return nil, true, nil
	}
	cp := *e.loc
	return &cp, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, query string, loc *Location) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFunc()
	if _, exists := c.entries[query]; !exists && len(c.entries) >= c.maxEntries {
		c.evict(now)
	}
	if loc != nil {
		cp := *loc
		loc = &cp
	}
	c.entries[query] = memEntry{loc: loc, expires: now.Add(c.ttl)}
	return nil
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) evict(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.maxEntries {
		return
	}
	for k := range c.entries {
		delete(c.entries, k)
		return
	}
}

// PostgresCache stores query-time geocodes in the geocode_cache table so
// they survive restarts and are shared between server replicas.
type PostgresCache struct {
	pool db.Pool
	ttl  time.Duration
}

// NewPostgresCache creates a PostgresCache.
func NewPostgresCache(pool db.Pool, ttl time.Duration) *PostgresCache {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &PostgresCache{pool: pool, ttl: ttl}
}

const postgresCacheMigration = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	query      TEXT PRIMARY KEY,
	matched    BOOLEAN NOT NULL,
	lat        DOUBLE PRECISION,
	lng        DOUBLE PRECISION,
	zip        TEXT,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

ALTER TABLE geocode_cache ADD COLUMN IF NOT EXISTS zip TEXT;

CREATE INDEX IF NOT EXISTS idx_geocode_cache_expires_at ON geocode_cache(expires_at);
`

// Migrate creates the geocode_cache table.
func (c *PostgresCache) Migrate(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, postgresCacheMigration)
	return eris.Wrap(err, "resolver: migrate geocode_cache")
}

// Get implements Cache.
func (c *PostgresCache) Get(ctx context.Context, query string) (*Location, bool, error) {
	var matched bool
	var lat, lng *float64
	var zip *string
	err := c.pool.QueryRow(ctx,
		`SELECT matched, lat, lng, zip FROM geocode_cache WHERE query = $1 AND expires_at > now()`,
		query,
	).Scan(&matched, &lat, &lng, &zip)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "resolver: read geocode_cache")
	}
	if !matched || lat == nil || lng == nil {
		return nil, true, nil
	}
	loc := &Location{Point: geocode.Point{Lat: *lat, Lng: *lng}}
	if zip != nil {
		loc.Zip = *zip
	}
	return loc, true, nil
}

// Set implements Cache.
func (c *PostgresCache) Set(ctx context.Context, query string, loc *Location) error {
	var lat, lng *float64
	var zip *string
	if loc != nil {
		lat, lng = &loc.Point.Lat, &loc.Point.Lng
		if loc.Zip != "" {
			zip = &loc.Zip
		}
	}
	_, err := c.pool.Exec(ctx, `
		INSERT INTO geocode_cache (query, matched, lat, lng, zip, cached_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, now(), $6)
		ON CONFLICT (query) DO UPDATE SET
			matched = EXCLUDED.matched,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			zip = EXCLUDED.zip,
			cached_at = EXCLUDED.cached_at,
			expires_at = EXCLUDED.expires_at`,
		query, loc != nil, lat, lng, zip, time.Now().UTC().Add(c.ttl),
	)
	return eris.Wrap(err, "resolver: write geocode_cache")
}

// DeleteExpired removes expired rows and returns how many were deleted.
func (c *PostgresCache) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM geocode_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "resolver: delete expired geocode_cache rows")
	}
	return tag.RowsAffected(), nil
}
