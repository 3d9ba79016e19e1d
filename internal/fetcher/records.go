package fetcher

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/voter-geo/internal/voter"
	"github.com/sells-group/voter-geo/pkg/geocode"
)

// ReadStats reports what a reader kept and dropped.
type ReadStats struct {
	Rows    int `json:"rows"`
	Kept    int `json:"kept"`
	Skipped int `json:"skipped"`
}

// ReadAddresses parses an ETL address file with columns
// id,street,city,state,zip. A header row is detected and skipped. Rows with
// fewer than five columns or an empty id are skipped.
func ReadAddresses(ctx context.Context, r io.Reader, d Dialect) ([]geocode.AddressInput, ReadStats, error) {
	rowCh, errCh := StreamRows(ctx, r, d)

	var (
		out   []geocode.AddressInput
		stats ReadStats
		first = true
	)
	for row := range rowCh {
		if first {
			first = false
			if strings.EqualFold(row.Field(0), "id") {
				continue
			}
		}
		stats.Rows++
		if len(row.Fields) < 5 || row.Field(0) == "" {
			stats.Skipped++
			zap.L().Debug("fetcher: skip address row", zap.Int("line", row.Line), zap.Int("fields", len(row.Fields)))
			continue
		}
		out = append(out, geocode.AddressInput{
			ID:      row.Field(0),
			Street:  row.Field(1),
			City:    row.Field(2),
			State:   row.Field(3),
			ZipCode: row.Field(4),
		})
	}
	if err := <-errCh; err != nil {
		return nil, stats, eris.Wrap(err, "fetcher: read addresses")
	}

	stats.Kept = len(out)
	if stats.Skipped > 0 {
		zap.L().Warn("fetcher: skipped short address rows", zap.Int("skipped", stats.Skipped))
	}
	return out, stats, nil
}

// Column aliases accepted in voter file headers. The NC statewide extract
// names are included so its files load without reshaping.
var voterColumns = map[string][]string{
	"id":              {"id", "voter_id", "ncid"},
	"registration_id": {"registration_id", "voter_reg_id", "voter_reg_num"},
	"first_name":      {"first_name"},
	"last_name":       {"last_name"},
	"street_address":  {"street_address", "street", "res_street_address"},
	"city":            {"city", "res_city_desc"},
	"state":           {"state", "state_cd"},
	"zip":             {"zip", "zip_code"},
	"status":          {"status", "voter_status_desc"},
	"birth_date":      {"birth_date"},
	"birth_year":      {"birth_year"},
	"lat":             {"lat", "latitude"},
	"lng":             {"lng", "lon", "longitude"},
}

// ReadVoters parses a delimited voter file. The header row is required and
// mapped through the known column aliases; id, street address and zip
// columns must be present. Rows without an id are skipped.
func ReadVoters(ctx context.Context, r io.Reader, d Dialect) ([]voter.Record, ReadStats, error) {
	rowCh, errCh := StreamRows(ctx, r, d)

	var (
		out   []voter.Record
		stats ReadStats
		idx   map[string]int
	)
	for row := range rowCh {
		if idx == nil {
			var err error
			if idx, err = mapVoterHeader(row.Fields); err != nil {
				// Drain so the parser goroutine exits.
				for range rowCh {
				}
				<-errCh
				return nil, stats, err
			}
			continue
		}

		stats.Rows++
		rec, ok := parseVoterRow(row, idx)
		if !ok {
			stats.Skipped++
			zap.L().Debug("fetcher: skip voter row without id", zap.Int("line", row.Line))
			continue
		}
		out = append(out, rec)
	}
	if err := <-errCh; err != nil {
		return nil, stats, eris.Wrap(err, "fetcher: read voters")
	}
	if idx == nil {
		return nil, stats, eris.New("fetcher: voter file is empty")
	}

	stats.Kept = len(out)
	return out, stats, nil
}

func mapVoterHeader(header []string) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(h)
		pos[h] = i
	}

	idx := make(map[string]int, len(voterColumns))
	for field, aliases := range voterColumns {
		for _, a := range aliases {
			if i, ok := pos[a]; ok {
				idx[field] = i
				break
			}
		}
	}

	var missing []string
	for _, req := range []string{"id", "street_address", "zip"} {
		if _, ok := idx[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("fetcher: voter header missing columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func parseVoterRow(row Row, idx map[string]int) (voter.Record, bool) {
	get := func(field string) string {
		i, ok := idx[field]
		if !ok {
			return ""
		}
		return row.Field(i)
	}

	rec := voter.Record{
		ID:             get("id"),
		RegistrationID: get("registration_id"),
		FirstName:      get("first_name"),
		LastName:       get("last_name"),
		StreetAddress:  strings.Join(strings.Fields(get("street_address")), " "),
		City:           get("city"),
		State:          strings.ToUpper(get("state")),
		Zip:            get("zip"),
		Status:         strings.ToLower(get("status")),
	}
	if rec.ID == "" {
		return rec, false
	}
	if len(rec.Zip) > 5 {
		rec.Zip = rec.Zip[:5]
	}

	if v := get("birth_date"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			rec.BirthDate = &t
		}
	} else if v := get("birth_year"); v != "" {
		if y, err := strconv.Atoi(v); err == nil && y > 1800 {
			t := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
			rec.BirthDate = &t
		}
	}

	lat, latErr := strconv.ParseFloat(get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(get("lng"), 64)
	if latErr == nil && lngErr == nil {
		rec.Lat, rec.Lng = &lat, &lng
	}
	return rec, true
}
