package proximity

import (
	"cmp"
	"slices"
	"strings"

	"github.com/sells-group/voter-geo/internal/address"
	"github.com/sells-group/voter-geo/internal/voter"
	"github.com/sells-group/voter-geo/pkg/geocode"
)

// Ring numbers. Lower rings always come first in the combined result.
const (
	RingExactZip = 0
	RingPrefix   = 1
)

// Result is one ranked record. It is never persisted.
type Result struct {
	Record         voter.Record
	DistanceMeters float64
	HasDistance    bool
	Score          int // lexical score, 0 when ranked by distance
	Ring           int

	street   string
	house    int // -1 when absent
	houseGap int
}

func newResult(r voter.Record, ring int) Result {
	house, street := address.ParseStreetLine(r.StreetAddress)
	res := Result{Record: r, Ring: ring, street: street, house: -1, DistanceMeters: NoDistance}
	if n, ok := (address.Parsed{House: house}).HouseNumber(); ok {
		res.house = n
	}
	return res
}

// RankByDistance orders one ring by distance from center. Records without
// coordinates get NoDistance and sort last. Distances within
// TieEpsilonMeters of each other are ordered by street name and house number.
func RankByDistance(center geocode.Point, records []voter.Record, ring int) []Result {
	out := make([]Result, len(records))
	for i, r := range records {
		res := newResult(r, ring)
		if r.HasCoordinates() {
			res.DistanceMeters = Haversine(center, geocode.Point{Lat: *r.Lat, Lng: *r.Lng})
			res.HasDistance = true
		}
		out[i] = res
	}

	slices.SortFunc(out, func(a, b Result) int {
		if c := cmp.Compare(a.DistanceMeters, b.DistanceMeters); c != 0 {
			return c
		}
		return compareTieBreak(a, b)
	})

	// Walk clusters of near-equal distance; each cluster is anchored at its
	// nearest member so the grouping does not depend on sort internals.
	for start := 0; start < len(out); {
		end := start + 1
		for end < len(out) && out[end].DistanceMeters-out[start].DistanceMeters <= TieEpsilonMeters {
			end++
		}
		if end-start > 1 {
			slices.SortStableFunc(out[start:end], compareTieBreak)
		}
		start = end
	}
	return out
}

// compareTieBreak is a total order: street, house ascending (missing last),
// last name, first name, id.
func compareTieBreak(a, b Result) int {
	if c := strings.Compare(a.street, b.street); c != 0 {
		return c
	}
	if c := compareHouse(a.house, b.house); c != 0 {
		return c
	}
	if c := strings.Compare(strings.ToLower(a.Record.LastName), strings.ToLower(b.Record.LastName)); c != 0 {
		return c
	}
	if c := strings.Compare(strings.ToLower(a.Record.FirstName), strings.ToLower(b.Record.FirstName)); c != 0 {
		return c
	}
	return strings.Compare(a.Record.ID, b.Record.ID)
}

func compareHouse(a, b int) int {
	switch {
	case a == b:
		return 0
	case a < 0:
		return 1
	case b < 0:
		return -1
	default:
		return cmp.Compare(a, b)
	}
}

// Concat joins ranked rings in ring order without re-sorting, so every
// same-zip result precedes every cross-zip result.
func Concat(rings ...[]Result) []Result {
	n := 0
	for _, r := range rings {
		n += len(r)
	}
	out := make([]Result, 0, n)
	for _, r := range rings {
		out = append(out, r...)
	}
	return out
}

// Dedup keeps the first result for each (first name, last name, street
// address), compared case-insensitively.
func Dedup(results []Result) []Result {
	seen := make(map[string]struct{}, len(results))
	out := results[:0:0]
	for _, r := range results {
		key := dedupKey(r.Record)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func dedupKey(r voter.Record) string {
	norm := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return norm(r.FirstName) + "\x00" + norm(r.LastName) + "\x00" + norm(r.StreetAddress)
}

// Paginate slices results after sorting and dedup. hasMore reports whether
// offset+limit < total.
func Paginate(results []Result, limit, offset int) (page []Result, total int, hasMore bool) {
	total = len(results)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || offset >= total {
		return []Result{}, total, false
	}
	end := min(offset+limit, total)
	return results[offset:end], total, offset+limit < total
}
