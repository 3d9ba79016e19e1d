package geocode

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"
)

type fakeGoogle struct {
	results []maps.GeocodingResult
	err     error
	got     *maps.GeocodingRequest
}

func (f *fakeGoogle) Geocode(_ context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error) {
	f.got = r
	return f.results, f.err
}

func TestGoogleProvider_Match(t *testing.T) {
	fake := &fakeGoogle{results: []maps.GeocodingResult{{
		Geometry: maps.AddressGeometry{
			Location:     maps.LatLng{Lat: 40.7128, Lng: -74.0060},
			LocationType: "ROOFTOP",
		},
		AddressComponents: []maps.AddressComponent{
			{LongName: "New York", ShortName: "NY", Types: []string{"administrative_area_level_1", "political"}},
			{LongName: "10007", ShortName: "10007", Types: []string{"postal_code"}},
		},
	}}}
	p := NewGoogleProvider(fake)

	result, err := p.Geocode(context.Background(), AddressInput{Street: "1 Main St", City: "New York", State: "NY"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "google", result.Source)
	assert.Equal(t, "rooftop", result.Quality)
	assert.InDelta(t, 40.7128, result.Point.Lat, 1e-9)
	assert.Equal(t, "10007", result.Zip)
	assert.Equal(t, "1 Main St, New York, NY", fake.got.Address)
	assert.Equal(t, "US", fake.got.Components[maps.ComponentCountry])
}

func TestGoogleProvider_ZeroResults(t *testing.T) {
	p := NewGoogleProvider(&fakeGoogle{err: errors.New("maps: ZERO_RESULTS - ")})
	result, err := p.Geocode(context.Background(), AddressInput{Street: "nowhere"})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestGoogleProvider_Error(t *testing.T) {
	p := NewGoogleProvider(&fakeGoogle{err: errors.New("maps: REQUEST_DENIED")})
	_, err := p.Geocode(context.Background(), AddressInput{Street: "1 Main"})
	require.Error(t, err)
}

func TestNewGoogleProviderFromKey(t *testing.T) {
	_, err := NewGoogleProviderFromKey("", 0)
	require.Error(t, err)

	p, err := NewGoogleProviderFromKey("test-key", 10)
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())
}

func TestGoogleLocationTypeToQuality(t *testing.T) {
	assert.Equal(t, "rooftop", googleLocationTypeToQuality("rooftop"))
	assert.Equal(t, "range", googleLocationTypeToQuality("RANGE_INTERPOLATED"))
	assert.Equal(t, "centroid", googleLocationTypeToQuality("GEOMETRIC_CENTER"))
	assert.Equal(t, "approximate", googleLocationTypeToQuality("APPROXIMATE"))
	assert.Equal(t, "approximate", googleLocationTypeToQuality(""))
}
