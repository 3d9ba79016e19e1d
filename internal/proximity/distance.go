// Package proximity ranks voter records by distance from a query point, or
// lexically by street and house number when no point is available, and
// pages the result.
package proximity

import (
	"math"

	"github.com/sells-group/voter-geo/pkg/geocode"
)

const (
	// EarthRadiusMeters is the mean earth radius (IUGG).
	EarthRadiusMeters = 6371008.8

	// TieEpsilonMeters is the distance below which two results count as
	// equally near and are ordered by street instead.
	TieEpsilonMeters = 5.0
)

// NoDistance is the distance assigned to records without coordinates. It
// sorts after every real distance.
const NoDistance = math.MaxFloat64 / 4

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b geocode.Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	h = math.Min(1, h)
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}
