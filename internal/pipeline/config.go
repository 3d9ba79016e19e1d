package pipeline

import (
	"time"

	"github.com/rotisserie/eris"
)

// Config controls how the scheduler drives the batch geocoder.
type Config struct {
	// BatchSize is the number of unique addresses per request.
	BatchSize int `mapstructure:"batch_size"`

	// Concurrency is the number of batches in flight at once.
	Concurrency int `mapstructure:"concurrency"`

	// MaxRetries is the number of retries per batch after the first attempt.
	MaxRetries int `mapstructure:"max_retries"`

	// RetryDelayBase is multiplied by the retry number to get the delay.
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`

	// CheckpointEvery is the minimum time between cache flushes.
	CheckpointEvery time.Duration `mapstructure:"checkpoint_every"`

	// RetryFailedNextRun keeps addresses from exhausted batches out of the
	// cache file so a later run tries them again. When false they are
	// persisted as resolved-null.
	RetryFailedNextRun bool `mapstructure:"retry_failed_next_run"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:       1000,
		Concurrency:     4,
		MaxRetries:      3,
		RetryDelayBase:  2 * time.Second,
		CheckpointEvery: 5 * time.Second,
	}
}

// Validate checks the config for values the scheduler cannot run with.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return eris.New("pipeline: batch_size must be positive")
	}
	if c.BatchSize > 10000 {
		return eris.Errorf("pipeline: batch_size %d exceeds the provider limit of 10000", c.BatchSize)
	}
	if c.Concurrency <= 0 {
		return eris.New("pipeline: concurrency must be positive")
	}
	if c.MaxRetries < 0 {
		return eris.New("pipeline: max_retries must not be negative")
	}
	if c.RetryDelayBase < 0 {
		return eris.New("pipeline: retry_delay_base must not be negative")
	}
	return nil
}
