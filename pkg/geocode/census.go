package geocode

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/voter-geo/internal/resilience"
)

const (
	censusBaseURL     = "https://geocoding.geo.census.gov"
	censusOneLinePath = "/geocoder/locations/onelineaddress"
	censusBatchPath   = "/geocoder/locations/addressbatch"
	censusBenchmark   = "Public_AR_Current"
)

// censusOneLineResponse is the JSON response from the Census single-address API.
type censusOneLineResponse struct {
	Result struct {
		AddressMatches []censusAddressMatch `json:"addressMatches"`
	} `json:"result"`
}

type censusAddressMatch struct {
	Coordinates struct {
		X float64 `json:"x"` // longitude
		Y float64 `json:"y"` // latitude
	} `json:"coordinates"`
	MatchedAddress    string `json:"matchedAddress"`
	AddressComponents struct {
		Zip string `json:"zip"`
	} `json:"addressComponents"`
}

// Geocode geocodes a single address using the Census one-line API.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	oneLine := FormatOneLine(addr)
	if oneLine == "" {
		return &Result{Matched: false, Source: "census"}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.oneLineTimeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census rate limit")
	}

	params := url.Values{
		"address":   {oneLine},
		"benchmark": {g.benchmark},
		"format":    {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.oneLineURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census build request")
	}

	body, err := g.do(req)
	if err != nil {
		return nil, err
	}

	var censusResp censusOneLineResponse
	if err := json.Unmarshal(body, &censusResp); err != nil {
		return nil, eris.Wrap(err, "geocode: census parse response")
	}

	if len(censusResp.Result.AddressMatches) == 0 {
		return &Result{Matched: false, Source: "census"}, nil
	}

	match := censusResp.Result.AddressMatches[0]
	return &Result{
		Point:   Point{Lat: match.Coordinates.Y, Lng: match.Coordinates.X},
		Source:  "census",
		Quality: "rooftop",
		Zip:     match.AddressComponents.Zip,
		Matched: true,
	}, nil
}

// BatchGeocode submits one batch to the Census batch API.
func (g *geocoder) BatchGeocode(ctx context.Context, addrs []AddressInput) (*BatchResponse, error) {
	if len(addrs) == 0 {
		return &BatchResponse{Points: map[string]*Point{}}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.batchTimeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch rate limit")
	}

	payload, contentType, err := BuildBatchRequest(addrs, g.benchmark)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.batchURL, payload)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census batch build request")
	}
	req.Header.Set("Content-Type", contentType)

	body, err := g.do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census batch")
	}

	ids := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		ids[a.ID] = true
	}
	resp := ParseBatchResponse(string(body))
	for id := range resp.Points {
		if !ids[id] {
			delete(resp.Points, id)
			resp.Malformed++
		}
	}
	return resp, nil
}

// do sends req and returns the body of a 2xx response. Other statuses come
// back as resilience.StatusError so callers can classify them.
func (g *geocoder) do(req *http.Request) ([]byte, error) {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resilience.StatusError("geocode: census", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census read body")
	}
	return body, nil
}

// BuildBatchRequest renders addrs as the headerless CSV file
// (id,street,city,state,zip) wrapped in a multipart form with the benchmark
// part. It returns the body and its Content-Type.
func BuildBatchRequest(addrs []AddressInput, benchmark string) (*bytes.Buffer, string, error) {
	var file bytes.Buffer
	w := csv.NewWriter(&file)
	for _, a := range addrs {
		if err := w.Write([]string{a.ID, a.Street, a.City, a.State, a.ZipCode}); err != nil {
			return nil, "", eris.Wrap(err, "geocode: census batch write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", eris.Wrap(err, "geocode: census batch flush csv")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("benchmark", benchmark); err != nil {
		return nil, "", eris.Wrap(err, "geocode: census batch write benchmark")
	}
	part, err := mw.CreateFormFile("addressFile", "addresses.csv")
	if err != nil {
		return nil, "", eris.Wrap(err, "geocode: census batch create form file")
	}
	if _, err := part.Write(file.Bytes()); err != nil {
		return nil, "", eris.Wrap(err, "geocode: census batch write csv")
	}
	if err := mw.Close(); err != nil {
		return nil, "", eris.Wrap(err, "geocode: census batch close writer")
	}
	return &buf, mw.FormDataContentType(), nil
}

// ParseBatchResponse parses the Census batch CSV response:
//
//	"id","input address","Match","Exact","matched address","lon,lat","tigerlineid","side"
//	"id","input address","No_Match"
//
// Coordinates come longitude first. Rows that cannot be parsed are skipped
// and counted; they never fail the batch.
func ParseBatchResponse(body string) *BatchResponse {
	resp := &BatchResponse{Points: make(map[string]*Point)}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := splitCSVLine(line)
		if len(fields) < 3 {
			resp.Malformed++
			continue
		}

		id := strings.TrimSpace(fields[0])
		if id == "" {
			resp.Malformed++
			continue
		}

		if !isMatch(fields[2]) {
			resp.Points[id] = nil
			continue
		}

		if len(fields) < 6 {
			resp.Malformed++
			continue
		}
		pt, err := ParseLngLat(fields[5])
		if err != nil {
			resp.Malformed++
			continue
		}
		resp.Points[id] = &pt
	}
	return resp
}

// isMatch reports whether the match indicator column denotes a match.
func isMatch(indicator string) bool {
	switch strings.ToLower(strings.TrimSpace(indicator)) {
	case "match", "exact", "non_exact":
		return true
	default:
		return false
	}
}

// ParseLngLat parses the Census "lon,lat" coordinate string.
func ParseLngLat(coords string) (Point, error) {
	parts := strings.SplitN(strings.TrimSpace(coords), ",", 2)
	if len(parts) != 2 {
		return Point{}, eris.Errorf("geocode: invalid census coords %q", coords)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, eris.Wrap(err, "geocode: parse census lon")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, eris.Wrap(err, "geocode: parse census lat")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Point{}, eris.Errorf("geocode: census coords out of range %q", coords)
	}
	return Point{Lat: lat, Lng: lng}, nil
}

// splitCSVLine splits one CSV line, honoring quoted fields with embedded
// commas and doubled quotes. Surrounding quotes are removed.
func splitCSVLine(line string) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '"' && inQuotes && i+1 < len(runes) && runes[i+1] == '"':
			current.WriteRune('"')
			i++
		case ch == '"':
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	fields = append(fields, current.String())
	return fields
}

// FormatOneLine formats an address as a single line for the one-line APIs.
func FormatOneLine(addr AddressInput) string {
	parts := []string{addr.Street, addr.City, addr.State, addr.ZipCode}
	var nonEmpty []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}
