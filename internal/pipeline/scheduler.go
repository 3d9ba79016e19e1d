// Package pipeline geocodes large address sets through the batch geocoder,
// checkpointing results into a geocache.Cache so an interrupted run resumes
// where it stopped.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/voter-geo/internal/address"
	"github.com/sells-group/voter-geo/internal/geocache"
	"github.com/sells-group/voter-geo/internal/metrics"
	"github.com/sells-group/voter-geo/internal/resilience"
	"github.com/sells-group/voter-geo/pkg/geocode"
)

// BatchGeocoder submits one batch of addresses. geocode.Client implements it.
type BatchGeocoder interface {
	BatchGeocode(ctx context.Context, addrs []geocode.AddressInput) (*geocode.BatchResponse, error)
}

// Scheduler partitions unresolved addresses into batches and runs them
// through a fixed pool of workers.
type Scheduler struct {
	geocoder   BatchGeocoder
	cache      *geocache.Cache
	cfg        Config
	metrics    *metrics.Metrics
	onProgress func(Progress)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics records pipeline metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithProgress registers a callback invoked after every batch. It runs on
// the collector goroutine and should return quickly.
func WithProgress(fn func(Progress)) Option {
	return func(s *Scheduler) { s.onProgress = fn }
}

// NewScheduler creates a Scheduler that writes into cache.
func NewScheduler(geocoder BatchGeocoder, cache *geocache.Cache, cfg Config, opts ...Option) (*Scheduler, error) {
	if geocoder == nil {
		return nil, eris.New("pipeline: geocoder is required")
	}
	if cache == nil {
		return nil, eris.New("pipeline: cache is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		geocoder: geocoder,
		cache:    cache,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewUnregistered()
	}
	return s, nil
}

type pending struct {
	key   address.Key
	input geocode.AddressInput
}

type batchResult struct {
	index     int
	keys      []address.Key
	points    map[address.Key]*geocode.Point
	failed    bool
	cancelled bool
	calls     int
	malformed int
}

// Run geocodes every record whose address key is not yet in the cache. Keys
// already present, including resolved-null, are skipped, so a rerun against
// a complete cache makes no network calls. The cache is flushed on the
// checkpoint interval and once more before Run returns, even when ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context, records []geocode.AddressInput) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: uuid.New(), Records: len(records)}
	log := zap.L().With(zap.String("run_id", summary.RunID.String()))

	work := s.selectPending(records, summary)
	batches := partition(work, s.cfg.BatchSize)
	summary.Submitted = len(work)
	summary.Batches = len(batches)
	s.metrics.AddressesTotal.WithLabelValues("skipped").Add(float64(summary.Skipped))

	log.Info("pipeline: starting",
		zap.Int("records", summary.Records),
		zap.Int("unique", summary.Unique),
		zap.Int("skipped", summary.Skipped),
		zap.Int("submitted", summary.Submitted),
		zap.Int("batches", summary.Batches),
		zap.Int("concurrency", s.cfg.Concurrency),
	)

	cp := geocache.NewCheckpointer(s.cache, s.cfg.CheckpointEvery)

	if len(batches) > 0 {
		queue := make(chan int, len(batches))
		for i := range batches {
			queue <- i
		}
		close(queue)

		results := make(chan batchResult, s.cfg.Concurrency)
		var g errgroup.Group
		workers := min(s.cfg.Concurrency, len(batches))
		for range workers {
			g.Go(func() error {
				for idx := range queue {
					if ctx.Err() != nil {
						return nil
					}
					results <- s.runBatch(ctx, idx, batches[idx])
				}
				return nil
			})
		}
		go func() {
			_ = g.Wait()
			close(results)
		}()

		s.collect(ctx, results, cp, summary, start, log)
	}

	closeErr := cp.Close()
	if closeErr == nil {
		s.metrics.Checkpoints.Inc()
	}
	summary.Checkpoints = cp.Flushes()
	summary.Duration = time.Since(start)

	log.Info("pipeline: finished",
		zap.Int("matched", summary.Matched),
		zap.Int("null", summary.Null),
		zap.Int("failed", summary.Failed),
		zap.Int("failed_batches", summary.FailedBatches),
		zap.Int("network_calls", summary.NetworkCalls),
		zap.Int("unresolved", summary.Unresolved()),
		zap.Duration("duration", summary.Duration),
	)

	if err := ctx.Err(); err != nil {
		return summary, eris.Wrap(err, "pipeline: run cancelled")
	}
	if closeErr != nil {
		return summary, eris.Wrap(closeErr, "pipeline: final checkpoint")
	}
	return summary, nil
}

// selectPending dedupes records by address key and drops keys the cache
// already has.
func (s *Scheduler) selectPending(records []geocode.AddressInput, summary *Summary) []pending {
	seen := make(map[address.Key]struct{}, len(records))
	var work []pending
	for _, r := range records {
		key := address.NewKey(r.Street, r.City, r.State, r.ZipCode)
		if key.IsZero() {
			summary.Invalid++
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		summary.Unique++

		if s.cache.Has(key) {
			summary.Skipped++
			continue
		}
		work = append(work, pending{key: key, input: r})
	}
	return work
}

func partition(work []pending, size int) [][]pending {
	var batches [][]pending
	for i := 0; i < len(work); i += size {
		end := min(i+size, len(work))
		batches = append(batches, work[i:end])
	}
	return batches
}

// runBatch owns one batch end to end: build, submit with retries, parse.
func (s *Scheduler) runBatch(ctx context.Context, idx int, batch []pending) batchResult {
	res := batchResult{
		index:  idx,
		keys:   make([]address.Key, len(batch)),
		points: make(map[address.Key]*geocode.Point, len(batch)),
	}
	inputs := make([]geocode.AddressInput, len(batch))
	byID := make(map[string]address.Key, len(batch))
	for pos, p := range batch {
		in := p.input
		in.ID = fmt.Sprintf("%d-%d", idx, pos)
		inputs[pos] = in
		byID[in.ID] = p.key
		res.keys[pos] = p.key
	}

	log := zap.L().With(zap.Int("batch", idx), zap.Int("size", len(batch)))
	var calls atomic.Int32

	retry := resilience.RetryConfig{
		MaxRetries:  s.cfg.MaxRetries,
		BaseDelay:   s.cfg.RetryDelayBase,
		Backoff:     resilience.BackoffLinear,
		ShouldRetry: func(error) bool { return true },
		OnRetry: func(retry int, err error) {
			s.metrics.BatchRetries.Inc()
			log.Warn("pipeline: retrying batch",
				zap.Int("retry", retry),
				zap.Int("status", resilience.StatusCode(err)),
				zap.Error(err),
			)
		},
	}

	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*geocode.BatchResponse, error) {
		calls.Add(1)
		s.metrics.ActiveWorkers.Inc()
		defer s.metrics.ActiveWorkers.Dec()

		t0 := time.Now()
		resp, err := s.geocoder.BatchGeocode(ctx, inputs)
		s.metrics.RequestSeconds.WithLabelValues("census").Observe(time.Since(t0).Seconds())
		return resp, err
	})
	res.calls = int(calls.Load())

	if err != nil {
		if ctx.Err() != nil {
			res.cancelled = true
			return res
		}
		log.Error("pipeline: batch failed after retries",
			zap.Int("attempts", res.calls),
			zap.Error(err),
		)
		res.failed = true
		for _, key := range res.keys {
			res.points[key] = nil
		}
		return res
	}

	res.malformed = resp.Malformed
	for id, key := range byID {
		// ids the provider did not answer for are recorded as null
		res.points[key] = resp.Points[id]
	}
	return res
}

// collect is the single writer into the cache for the duration of a run.
func (s *Scheduler) collect(ctx context.Context, results <-chan batchResult, cp *geocache.Checkpointer, summary *Summary, start time.Time, log *zap.Logger) {
	var batchesDone, processed int
	warned := false
	for res := range results {
		summary.NetworkCalls += res.calls
		if res.cancelled {
			continue
		}
		summary.Malformed += res.malformed

		switch {
		case res.failed && s.cfg.RetryFailedNextRun:
			s.cache.MarkTransient(res.keys)
			summary.Failed += len(res.keys)
			summary.FailedBatches++
			s.metrics.BatchesProcessed.WithLabelValues("failed").Inc()
			s.metrics.AddressesTotal.WithLabelValues("transient").Add(float64(len(res.keys)))
		default:
			ms := s.cache.Merge(res.points)
			if ms.Protected > 0 {
				log.Debug("pipeline: kept existing coordinates over null results",
					zap.Int("batch", res.index),
					zap.Int("protected", ms.Protected),
				)
			}
			matched := 0
			for _, p := range res.points {
				if p != nil {
					matched++
				}
			}
			summary.Matched += matched
			summary.Null += len(res.keys) - matched
			if res.failed {
				summary.FailedBatches++
				s.metrics.BatchesProcessed.WithLabelValues("failed").Inc()
			} else {
				s.metrics.BatchesProcessed.WithLabelValues("ok").Inc()
			}
			s.metrics.AddressesTotal.WithLabelValues("matched").Add(float64(matched))
			s.metrics.AddressesTotal.WithLabelValues("null").Add(float64(len(res.keys) - matched))
		}

		batchesDone++
		processed += len(res.keys)
		p := newProgress(batchesDone, summary.Batches, processed, summary.Submitted, summary.Matched, time.Since(start))
		log.Info("pipeline: batch complete",
			zap.Int("batch", res.index),
			zap.Int("processed", p.Processed),
			zap.Int("total", p.Total),
			zap.Float64("match_rate", p.MatchRate),
			zap.Duration("elapsed", p.Elapsed),
			zap.Duration("eta", p.ETA),
		)
		if s.onProgress != nil {
			s.onProgress(p)
		}

		flushed, err := cp.MaybeFlush()
		if err != nil {
			log.Warn("pipeline: checkpoint failed, will retry at next interval", zap.Error(err))
		} else if flushed {
			s.metrics.Checkpoints.Inc()
		}

		if ctx.Err() != nil && !warned {
			warned = true
			log.Warn("pipeline: cancelled, draining in-flight batches")
		}
	}
}
