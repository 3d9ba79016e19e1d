// Package geocache holds the durable address → coordinate map written by the
// batch geocoding pipeline.
//
// A key that maps to nil is resolved-null: it was attempted and had no
// confident match. It is persisted so later runs do not re-query it. A key
// that is absent was never attempted.
package geocache

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/voter-geo/internal/address"
	"github.com/sells-group/voter-geo/pkg/geocode"
)

// Cache is the in-memory view of one cache file. It is owned by a single
// pipeline process; concurrent runs against the same file are unsupported.
type Cache struct {
	path string

	mu        sync.RWMutex
	entries   map[address.Key]*geocode.Point
	transient map[address.Key]struct{}

	flushMu sync.Mutex
}

// Stats summarizes the cache contents.
type Stats struct {
	Resolved  int `json:"resolved" yaml:"resolved"`
	Null      int `json:"null" yaml:"resolved_null"`
	Transient int `json:"transient" yaml:"transient"`
}

// Total returns the number of persisted entries.
func (s Stats) Total() int { return s.Resolved + s.Null }

// MergeStats reports what a Merge did.
type MergeStats struct {
	Added     int // keys seen for the first time
	Upgraded  int // null → coordinates
	Updated   int // coordinates replaced by newer coordinates
	Protected int // null results ignored because the key already had coordinates
}

// New returns an empty cache that flushes to path.
func New(path string) *Cache {
	return &Cache{
		path:      path,
		entries:   make(map[address.Key]*geocode.Point),
		transient: make(map[address.Key]struct{}),
	}
}

// Open loads the cache file at path. A missing file yields an empty cache.
// An unreadable or corrupt file also yields an empty cache and logs a
// warning; the next flush overwrites it.
func Open(path string) (*Cache, error) {
	if path == "" {
		return nil, eris.New("geocache: path is required")
	}
	c := New(path)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		zap.L().Warn("geocache: unreadable cache file, starting empty",
			zap.String("path", path),
			zap.Error(err),
		)
		return c, nil
	}
	if len(data) == 0 {
		return c, nil
	}

	var raw map[string]*geocode.Point
	if err := json.Unmarshal(data, &raw); err != nil {
		zap.L().Warn("geocache: corrupt cache file, starting empty",
			zap.String("path", path),
			zap.Error(err),
		)
		return c, nil
	}
	for k, p := range raw {
		c.entries[address.Key(k)] = p
	}

	s := c.Stats()
	zap.L().Info("geocache: loaded",
		zap.String("path", path),
		zap.Int("resolved", s.Resolved),
		zap.Int("null", s.Null),
	)
	return c, nil
}

// Path returns the file the cache flushes to.
func (c *Cache) Path() string { return c.path }

// Lookup returns the coordinates stored for key. attempted is false when the
// key has never been geocoded. A transient failure from this process counts
// as attempted with a nil point.
func (c *Cache) Lookup(key address.Key) (pt *geocode.Point, attempted bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.entries[key]; ok {
		if p == nil {
			return nil, true
		}
		cp := *p
		return &cp, true
	}
	_, ok := c.transient[key]
	return nil, ok
}

// Has reports whether key was attempted.
func (c *Cache) Has(key address.Key) bool {
	_, ok := c.Lookup(key)
	return ok
}

// Len returns the number of persisted entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats counts resolved, null and transient entries.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var s Stats
	for _, p := range c.entries {
		if p == nil {
			s.Null++
		} else {
			s.Resolved++
		}
	}
	s.Transient = len(c.transient)
	return s
}

// Merge applies a batch of results. A nil result never replaces existing
// coordinates.
func (c *Cache) Merge(results map[address.Key]*geocode.Point) MergeStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ms MergeStats
	for key, p := range results {
		if p != nil {
			cp := *p
			p = &cp
		}
		delete(c.transient, key)

		existing, ok := c.entries[key]
		switch {
		case !ok:
			c.entries[key] = p
			ms.Added++
		case p == nil:
			if existing != nil {
				ms.Protected++
			}
		case existing == nil:
			c.entries[key] = p
			ms.Upgraded++
		default:
			c.entries[key] = p
			ms.Updated++
		}
	}
	return ms
}

// MarkTransient records keys whose batch failed for this run only. They are
// skipped for the rest of the process but never written to disk, so the next
// run tries them again. Keys that already have a persisted entry are left
// alone. It returns how many keys were marked.
func (c *Cache) MarkTransient(keys []address.Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, key := range keys {
		if _, ok := c.entries[key]; ok {
			continue
		}
		if _, ok := c.transient[key]; !ok {
			c.transient[key] = struct{}{}
			n++
		}
	}
	return n
}

// Flush writes the persisted entries to disk. At most one flush runs at a
// time; the file is replaced atomically so a crash mid-write leaves the
// previous checkpoint intact.
func (c *Cache) Flush() error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.RLock()
	raw := make(map[string]*geocode.Point, len(c.entries))
	for k, p := range c.entries {
		raw[string(k)] = p
	}
	data, err := json.Marshal(raw)
	c.mu.RUnlock()
	if err != nil {
		return eris.Wrap(err, "geocache: marshal")
	}

	if err := writeAtomic(c.path, data); err != nil {
		return eris.Wrapf(err, "geocache: write %s", c.path)
	}
	return nil
}
