package geocache

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Checkpointer flushes a Cache on a time threshold so a crash loses at most
// one interval of work.
type Checkpointer struct {
	cache    *Cache
	interval time.Duration

	mu        sync.Mutex
	lastFlush time.Time
	flushes   int

	nowFunc func() time.Time
}

// NewCheckpointer creates a Checkpointer. A non-positive interval flushes on
// every MaybeFlush call.
func NewCheckpointer(cache *Cache, interval time.Duration) *Checkpointer {
	return &Checkpointer{
		cache:     cache,
		interval:  interval,
		lastFlush: time.Now(),
		nowFunc:   time.Now,
	}
}

// MaybeFlush flushes when the interval has elapsed since the last flush. It
// returns whether a flush happened.
func (cp *Checkpointer) MaybeFlush() (bool, error) {
	cp.mu.Lock()
	now := cp.nowFunc()
	if cp.interval > 0 && now.Sub(cp.lastFlush) < cp.interval {
		cp.mu.Unlock()
		return false, nil
	}
	cp.lastFlush = now
	cp.mu.Unlock()

	if err := cp.flush(); err != nil {
		return false, err
	}
	return true, nil
}

// Close flushes unconditionally.
func (cp *Checkpointer) Close() error {
	cp.mu.Lock()
	cp.lastFlush = cp.nowFunc()
	cp.mu.Unlock()
	return cp.flush()
}

// Flushes returns how many checkpoints have been written.
func (cp *Checkpointer) Flushes() int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.flushes
}

func (cp *Checkpointer) flush() error {
	start := cp.nowFunc()
	if err := cp.cache.Flush(); err != nil {
		zap.L().Error("geocache: checkpoint failed", zap.String("path", cp.cache.Path()), zap.Error(err))
		return err
	}
	cp.mu.Lock()
	cp.flushes++
	cp.mu.Unlock()

	zap.L().Debug("geocache: checkpoint written",
		zap.String("path", cp.cache.Path()),
		zap.Int("entries", cp.cache.Len()),
		zap.Duration("took", cp.nowFunc().Sub(start)),
	)
	return nil
}
