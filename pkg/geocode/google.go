package geocode

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"googlemaps.github.io/maps"
)

// GoogleAPIClient is the subset of *maps.Client used here.
type GoogleAPIClient interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// GoogleProvider geocodes single addresses with the Google Geocoding API.
type GoogleProvider struct {
	client GoogleAPIClient
}

// NewGoogleProvider wraps an existing Google Maps client.
func NewGoogleProvider(client GoogleAPIClient) *GoogleProvider {
	return &GoogleProvider{client: client}
}

// NewGoogleProviderFromKey builds a Google Maps client from an API key.
func NewGoogleProviderFromKey(apiKey string, rps int) (*GoogleProvider, error) {
	if apiKey == "" {
		return nil, eris.New("geocode: google api key is required")
	}
	opts := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if rps > 0 {
		opts = append(opts, maps.WithRateLimit(rps))
	}
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: create google maps client")
	}
	return NewGoogleProvider(client), nil
}

// Name implements Provider.
func (p *GoogleProvider) Name() string { return "google" }

// Geocode implements Provider.
func (p *GoogleProvider) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	oneLine := FormatOneLine(addr)
	if oneLine == "" {
		return &Result{Matched: false, Source: p.Name()}, nil
	}

	results, err := p.client.Geocode(ctx, &maps.GeocodingRequest{
		Address:    oneLine,
		Components: map[maps.Component]string{maps.ComponentCountry: "US"},
	})
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			return &Result{Matched: false, Source: p.Name()}, nil
		}
		return nil, eris.Wrap(err, "geocode: google request")
	}
	if len(results) == 0 {
		return &Result{Matched: false, Source: p.Name()}, nil
	}

	loc := results[0].Geometry
	return &Result{
		Point:   Point{Lat: loc.Location.Lat, Lng: loc.Location.Lng},
		Source:  p.Name(),
		Quality: googleLocationTypeToQuality(loc.LocationType),
		Zip:     postalCode(results[0].AddressComponents),
		Matched: true,
	}, nil
}

func postalCode(components []maps.AddressComponent) string {
	for _, c := range components {
		for _, t := range c.Types {
			if t == "postal_code" {
				return c.ShortName
			}
		}
	}
	return ""
}

// googleLocationTypeToQuality maps Google's location_type to our quality taxonomy.
func googleLocationTypeToQuality(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	default:
		return "approximate"
	}
}
