package voter

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sells-group/voter-geo/pkg/geocode"
)

// MemoryStore keeps voters in memory. It backs tests and small fixtures.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates a MemoryStore seeded with records.
func NewMemoryStore(records ...Record) *MemoryStore {
	s := &MemoryStore{records: make(map[string]Record, len(records))}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

var _ Store = (*MemoryStore)(nil)

// Candidates implements Store.
func (s *MemoryStore) Candidates(_ context.Context, state, zip string) ([]Record, error) {
	return s.filter(func(r Record) bool {
		return isActive(r.Status) && strings.EqualFold(r.State, state) && r.Zip == zip
	}), nil
}

// PrefixCandidates implements Store.
func (s *MemoryStore) PrefixCandidates(_ context.Context, state, prefix, excludeZip string) ([]Record, error) {
	if prefix == "" {
		return nil, nil
	}
	return s.filter(func(r Record) bool {
		return isActive(r.Status) && strings.EqualFold(r.State, state) &&
			strings.HasPrefix(r.Zip, prefix) && r.Zip != excludeZip
	}), nil
}

// AddressRecords implements Store.
func (s *MemoryStore) AddressRecords(_ context.Context, state string) ([]geocode.AddressInput, error) {
	recs := s.filter(func(r Record) bool {
		return state == "" || strings.EqualFold(r.State, state)
	})
	out := make([]geocode.AddressInput, len(recs))
	for i := range recs {
		out[i] = recs[i].AddressInput()
	}
	return out, nil
}

// ApplyCoordinates implements Store.
func (s *MemoryStore) ApplyCoordinates(_ context.Context, coords []Coordinate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range coords {
		r, ok := s.records[c.ID]
		if !ok {
			continue
		}
		lat, lng := c.Lat, c.Lng
		r.Lat, r.Lng = &lat, &lng
		s.records[c.ID] = r
		n++
	}
	return n, nil
}

// Insert implements Store.
func (s *MemoryStore) Insert(_ context.Context, records []Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.ID] = r
	}
	return int64(len(records)), nil
}

// Get returns a record by id.
func (s *MemoryStore) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// filter returns matching records ordered by id, like the SQL stores.
func (s *MemoryStore) filter(keep func(Record) bool) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
