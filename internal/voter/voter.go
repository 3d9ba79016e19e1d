// Package voter is the storage contract for voter records: candidate rings
// for the proximity search, address extraction for the batch pipeline, and
// coordinate write-back.
package voter

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/voter-geo/internal/address"
	"github.com/sells-group/voter-geo/pkg/geocode"
)

// StatusActive is the only status returned by candidate queries.
const StatusActive = "active"

// Record is one voter registration.
type Record struct {
	ID             string     `json:"id"`
	RegistrationID string     `json:"-"` // government voter id, never exposed
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	StreetAddress  string     `json:"street_address"`
	City           string     `json:"city"`
	State          string     `json:"state"`
	Zip            string     `json:"zip"`
	Status         string     `json:"status"`
	BirthDate      *time.Time `json:"-"`
	Lat            *float64   `json:"lat,omitempty"`
	Lng            *float64   `json:"lng,omitempty"`
}

// HasCoordinates reports whether both lat and lng are set.
func (r *Record) HasCoordinates() bool {
	return r.Lat != nil && r.Lng != nil
}

// Key returns the address key of the record.
func (r *Record) Key() address.Key {
	return address.NewKey(r.StreetAddress, r.City, r.State, r.Zip)
}

// AddressInput converts the record to a geocoder input keyed by voter id.
func (r *Record) AddressInput() geocode.AddressInput {
	return geocode.AddressInput{
		ID:      r.ID,
		Street:  r.StreetAddress,
		City:    r.City,
		State:   r.State,
		ZipCode: r.Zip,
	}
}

// Coordinate is a resolved location for one voter row.
type Coordinate struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Store reads and updates voter records.
type Store interface {
	// Candidates returns active voters in state with exactly this zip.
	Candidates(ctx context.Context, state, zip string) ([]Record, error)

	// PrefixCandidates returns active voters in state whose zip starts with
	// prefix, excluding excludeZip.
	PrefixCandidates(ctx context.Context, state, prefix, excludeZip string) ([]Record, error)

	// AddressRecords lists the address of every voter in state, for the
	// batch pipeline. An empty state lists all voters.
	AddressRecords(ctx context.Context, state string) ([]geocode.AddressInput, error)

	// ApplyCoordinates writes coordinates back to voter rows and returns the
	// number of rows updated.
	ApplyCoordinates(ctx context.Context, coords []Coordinate) (int64, error)

	// Insert adds or replaces voter rows.
	Insert(ctx context.Context, records []Record) (int64, error)

	Close() error
}

// CoordinateSource looks up cached coordinates by address key.
// *geocache.Cache implements it.
type CoordinateSource interface {
	Lookup(key address.Key) (pt *geocode.Point, attempted bool)
}

// ResolveCoordinates maps each address to its cached coordinates. Addresses
// that were never attempted or resolved to null are counted as unresolved and
// left out, so their rows keep whatever coordinates they had.
func ResolveCoordinates(addrs []geocode.AddressInput, src CoordinateSource) (coords []Coordinate, unresolved int) {
	for _, a := range addrs {
		pt, _ := src.Lookup(address.NewKey(a.Street, a.City, a.State, a.ZipCode))
		if pt == nil {
			unresolved++
			continue
		}
		coords = append(coords, Coordinate{ID: a.ID, Lat: pt.Lat, Lng: pt.Lng})
	}
	return coords, unresolved
}

// ZipPrefix returns the 3-digit prefix used for the outer ring, or "" when
// zip is too short.
func ZipPrefix(zip string) string {
	zip = strings.TrimSpace(zip)
	if len(zip) < 3 {
		return ""
	}
	return zip[:3]
}

func isActive(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), StatusActive)
}
