package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/voter-geo/internal/pipeline"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Search   SearchConfig   `yaml:"search" mapstructure:"search"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the voter store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres, sqlite or memory
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Table       string `yaml:"table" mapstructure:"table"`
}

// GeocodeConfig configures the Census client and the one-line fallbacks.
type GeocodeConfig struct {
	BaseURL        string        `yaml:"base_url" mapstructure:"base_url"`
	Benchmark      string        `yaml:"benchmark" mapstructure:"benchmark"`
	RateLimit      float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	BatchTimeout   time.Duration `yaml:"batch_timeout" mapstructure:"batch_timeout"`
	OneLineTimeout time.Duration `yaml:"oneline_timeout" mapstructure:"oneline_timeout"`
	GoogleAPIKey   string        `yaml:"google_api_key" mapstructure:"google_api_key"`
	GoogleRPS      int           `yaml:"google_rps" mapstructure:"google_rps"`
	TigerEnabled   bool          `yaml:"tiger_enabled" mapstructure:"tiger_enabled"`
	TigerMaxRating int           `yaml:"tiger_max_rating" mapstructure:"tiger_max_rating"`
}

// PipelineConfig configures batch geocoding runs.
type PipelineConfig struct {
	pipeline.Config `yaml:",inline" mapstructure:",squash"`

	CachePath string `yaml:"cache_path" mapstructure:"cache_path"`
}

// SearchConfig configures the query path resolver.
type SearchConfig struct {
	GeocodeTimeout  time.Duration `yaml:"geocode_timeout" mapstructure:"geocode_timeout"`
	CacheBackend    string        `yaml:"cache_backend" mapstructure:"cache_backend"` // memory or postgres
	CacheTTL        time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CacheMaxEntries int           `yaml:"cache_max_entries" mapstructure:"cache_max_entries"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int           `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VOTERGEO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	pd := pipeline.DefaultConfig()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "voters.db")
	v.SetDefault("store.table", "voters")
	v.SetDefault("geocode.base_url", "https://geocoding.geo.census.gov")
	v.SetDefault("geocode.benchmark", "Public_AR_Current")
	v.SetDefault("geocode.rate_limit", 5.0)
	v.SetDefault("geocode.batch_timeout", 5*time.Minute)
	v.SetDefault("geocode.oneline_timeout", 10*time.Second)
	v.SetDefault("geocode.google_api_key", "")
	v.SetDefault("geocode.google_rps", 10)
	v.SetDefault("geocode.tiger_enabled", false)
	v.SetDefault("geocode.tiger_max_rating", 20)
	v.SetDefault("pipeline.batch_size", pd.BatchSize)
	v.SetDefault("pipeline.concurrency", pd.Concurrency)
	v.SetDefault("pipeline.max_retries", pd.MaxRetries)
	v.SetDefault("pipeline.retry_delay_base", pd.RetryDelayBase)
	v.SetDefault("pipeline.checkpoint_every", pd.CheckpointEvery)
	v.SetDefault("pipeline.retry_failed_next_run", false)
	v.SetDefault("pipeline.cache_path", "geocode-cache.json")
	v.SetDefault("search.geocode_timeout", 5*time.Second)
	v.SetDefault("search.cache_backend", "memory")
	v.SetDefault("search.cache_ttl", 24*time.Hour)
	v.SetDefault("search.cache_max_entries", 10000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of "geocode",
// "apply", "search" or "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "geocode":
		if err := c.Pipeline.Config.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
		if c.Pipeline.CachePath == "" {
			problems = append(problems, "pipeline.cache_path is required")
		}
		if c.Geocode.RateLimit < 0 {
			problems = append(problems, "geocode.rate_limit must be >= 0")
		}
	case "apply":
		if c.Pipeline.CachePath == "" {
			problems = append(problems, "pipeline.cache_path is required")
		}
		problems = append(problems, c.storeProblems()...)
	case "search", "serve":
		problems = append(problems, c.storeProblems()...)
		switch c.Search.CacheBackend {
		case "memory":
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "search.cache_backend postgres needs store.database_url")
			}
		default:
			problems = append(problems, "search.cache_backend must be memory or postgres")
		}
		if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) storeProblems() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return []string{"store.sqlite_path is required"}
		}
	case "memory":
	default:
		return []string{"store.driver must be postgres, sqlite or memory"}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
