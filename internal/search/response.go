package search

import (
	"github.com/sells-group/voter-geo/internal/proximity"
)

// Resolution modes reported in Response.Mode.
const (
	ModeGeocoded = "geocoded"
	ModeLexical  = "lexical"
	ModeEmpty    = "empty"
)

// Response is a page of nearby voters.
type Response struct {
	Voters    []SanitizedVoter `json:"voters"`
	Total     int              `json:"total"`
	HasMore   bool             `json:"hasMore"`
	Zip       string           `json:"zip,omitempty"`
	CenterLat *float64         `json:"centerLat,omitempty"`
	CenterLng *float64         `json:"centerLng,omitempty"`
	Mode      string           `json:"mode"`
}

// SanitizedVoter is the public view of a voter: no government voter id, and
// only the birth year.
type SanitizedVoter struct {
	ID             string   `json:"id"`
	FirstName      string   `json:"firstName"`
	LastName       string   `json:"lastName"`
	StreetAddress  string   `json:"streetAddress"`
	City           string   `json:"city"`
	State          string   `json:"state"`
	Zip            string   `json:"zip"`
	BirthYear      *int     `json:"birthYear,omitempty"`
	Lat            *float64 `json:"lat,omitempty"`
	Lng            *float64 `json:"lng,omitempty"`
	DistanceMeters *float64 `json:"distanceMeters,omitempty"`
	Ring           string   `json:"ring"`
}

func sanitize(results []proximity.Result) []SanitizedVoter {
	out := make([]SanitizedVoter, len(results))
	for i, res := range results {
		r := res.Record
		v := SanitizedVoter{
			ID:            r.ID,
			FirstName:     r.FirstName,
			LastName:      r.LastName,
			StreetAddress: r.StreetAddress,
			City:          r.City,
			State:         r.State,
			Zip:           r.Zip,
			Lat:           r.Lat,
			Lng:           r.Lng,
			Ring:          ringName(res.Ring),
		}
		if r.BirthDate != nil {
			y := r.BirthDate.Year()
			v.BirthYear = &y
		}
		if res.HasDistance {
			d := res.DistanceMeters
			v.DistanceMeters = &d
		}
		out[i] = v
	}
	return out
}

func ringName(ring int) string {
	if ring == proximity.RingExactZip {
		return "exact_zip"
	}
	return "zip_prefix"
}
