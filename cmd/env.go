package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/voter-geo/internal/db"
	"github.com/sells-group/voter-geo/internal/metrics"
	"github.com/sells-group/voter-geo/internal/resolver"
	"github.com/sells-group/voter-geo/internal/search"
	"github.com/sells-group/voter-geo/internal/voter"
	"github.com/sells-group/voter-geo/pkg/geocode"
)

// appEnv holds the store, metrics and clients shared by the commands.
type appEnv struct {
	Store    voter.Store
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	pool *pgxpool.Pool
}

// Close releases the store and the pool.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
}

// Pool returns the Postgres pool, connecting on first use. The voter store
// shares it when store.driver is postgres.
func (e *appEnv) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	if e.pool != nil {
		return e.pool, nil
	}
	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	e.pool = pool
	return pool, nil
}

// migrator is implemented by the SQL-backed stores.
type migrator interface {
	Migrate(ctx context.Context) error
}

// initEnv opens the configured store and a fresh metrics registry.
func initEnv(ctx context.Context) (*appEnv, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	env := &appEnv{Registry: reg, Metrics: metrics.NewMetrics(reg)}

	switch cfg.Store.Driver {
	case "postgres":
		pool, err := env.Pool(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = voter.NewPostgresStore(pool, cfg.Store.Table)
	case "sqlite":
		st, err := voter.NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		env.Store = st
	case "memory":
		env.Store = voter.NewMemoryStore()
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	zap.L().Debug("store opened", zap.String("driver", cfg.Store.Driver))
	return env, nil
}

// newCensusClient builds the Census client from config.
func newCensusClient() geocode.Client {
	return geocode.NewClient(
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithBenchmark(cfg.Geocode.Benchmark),
		geocode.WithRateLimit(cfg.Geocode.RateLimit),
		geocode.WithBatchTimeout(cfg.Geocode.BatchTimeout),
		geocode.WithOneLineTimeout(cfg.Geocode.OneLineTimeout),
	)
}

// newQueryProvider chains Census with Google and TIGER when configured.
func newQueryProvider(ctx context.Context, env *appEnv) (geocode.Provider, error) {
	providers := []geocode.Provider{newCensusClient()}

	if cfg.Geocode.GoogleAPIKey != "" {
		g, err := geocode.NewGoogleProviderFromKey(cfg.Geocode.GoogleAPIKey, cfg.Geocode.GoogleRPS)
		if err != nil {
			return nil, err
		}
		providers = append(providers, g)
	}

	if cfg.Geocode.TigerEnabled {
		pool, err := env.Pool(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "tiger provider")
		}
		providers = append(providers, geocode.NewTigerProvider(pool, cfg.Geocode.TigerMaxRating))
	}

	if len(providers) == 1 {
		return providers[0], nil
	}
	return geocode.NewCascade(providers...), nil
}

// newResolver builds the query-time resolver with the configured cache.
func newResolver(ctx context.Context, env *appEnv) (*resolver.Resolver, error) {
	provider, err := newQueryProvider(ctx, env)
	if err != nil {
		return nil, err
	}

	var cache resolver.Cache
	switch cfg.Search.CacheBackend {
	case "postgres":
		pool, err := env.Pool(ctx)
		if err != nil {
			return nil, err
		}
		pc := resolver.NewPostgresCache(pool, cfg.Search.CacheTTL)
		if err := pc.Migrate(ctx); err != nil {
			return nil, err
		}
		cache = pc
	default:
		cache = resolver.NewMemoryCache(cfg.Search.CacheTTL, cfg.Search.CacheMaxEntries)
	}

	return resolver.New(provider,
		resolver.WithCache(cache),
		resolver.WithTimeout(cfg.Search.GeocodeTimeout),
		resolver.WithMetrics(env.Metrics),
	), nil
}

// newSearchService wires store, resolver and metrics.
func newSearchService(ctx context.Context, env *appEnv) (*search.Service, error) {
	res, err := newResolver(ctx, env)
	if err != nil {
		return nil, err
	}
	return search.NewService(env.Store, res, env.Metrics), nil
}
