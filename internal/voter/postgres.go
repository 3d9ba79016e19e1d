package voter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/voter-geo/internal/db"
	"github.com/sells-group/voter-geo/pkg/geocode"
)

// DefaultTable is the voter table used when none is configured.
const DefaultTable = "voters"

// PostgresStore implements Store on a PostGIS-enabled Postgres database.
type PostgresStore struct {
	pool  db.Pool
	table string
}

// NewPostgresStore wraps pool. An empty table uses DefaultTable.
func NewPostgresStore(pool db.Pool, table string) *PostgresStore {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresStore{pool: pool, table: table}
}

var _ Store = (*PostgresStore)(nil)

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS %[1]s (
	id             TEXT PRIMARY KEY,
	voter_reg_id   TEXT,
	first_name     TEXT NOT NULL DEFAULT '',
	last_name      TEXT NOT NULL DEFAULT '',
	street_address TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL,
	zip            TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'active',
	birth_date     DATE,
	latitude       DOUBLE PRECISION,
	longitude      DOUBLE PRECISION,
	geom           geometry(Point, 4326)
);

CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (upper(state), zip) WHERE lower(status) = 'active';
CREATE INDEX IF NOT EXISTS %[3]s ON %[1]s USING GIST (geom);
`

// Migrate creates the voter table and its indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	zipIdx := pgx.Identifier{indexName(s.table, "state_zip_idx")}.Sanitize()
	geomIdx := pgx.Identifier{indexName(s.table, "geom_idx")}.Sanitize()
	_, err := s.pool.Exec(ctx, fmt.Sprintf(postgresMigration, db.SanitizeTable(s.table), zipIdx, geomIdx))
	return eris.Wrap(err, "voter: postgres migrate")
}

const selectColumns = `id, COALESCE(voter_reg_id, ''), first_name, last_name, street_address,
	city, state, zip, status, birth_date, latitude, longitude`

// Candidates implements Store.
func (s *PostgresStore) Candidates(ctx context.Context, state, zip string) ([]Record, error) {
	q := fmt.Sprintf(`SELECT %s FROM %s
		WHERE lower(status) = 'active' AND upper(state) = upper($1) AND zip = $2
		ORDER BY id`, selectColumns, db.SanitizeTable(s.table))
	return s.queryRecords(ctx, q, state, zip)
}

// PrefixCandidates implements Store.
func (s *PostgresStore) PrefixCandidates(ctx context.Context, state, prefix, excludeZip string) ([]Record, error) {
	if prefix == "" {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT %s FROM %s
		WHERE lower(status) = 'active' AND upper(state) = upper($1) AND left(zip, 3) = $2 AND zip <> $3
		ORDER BY id`, selectColumns, db.SanitizeTable(s.table))
	return s.queryRecords(ctx, q, state, prefix, excludeZip)
}

func (s *PostgresStore) queryRecords(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "voter: query candidates")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var birth *time.Time
		if err := rows.Scan(
			&r.ID, &r.RegistrationID, &r.FirstName, &r.LastName, &r.StreetAddress,
			&r.City, &r.State, &r.Zip, &r.Status, &birth, &r.Lat, &r.Lng,
		); err != nil {
			return nil, eris.Wrap(err, "voter: scan candidate")
		}
		r.BirthDate = birth
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "voter: iterate candidates")
}

// AddressRecords implements Store.
func (s *PostgresStore) AddressRecords(ctx context.Context, state string) ([]geocode.AddressInput, error) {
	q := fmt.Sprintf(`SELECT id, street_address, city, state, zip FROM %s
		WHERE ($1 = '' OR upper(state) = upper($1))
		ORDER BY id`, db.SanitizeTable(s.table))
	rows, err := s.pool.Query(ctx, q, state)
	if err != nil {
		return nil, eris.Wrap(err, "voter: query addresses")
	}
	defer rows.Close()

	var out []geocode.AddressInput
	for rows.Next() {
		var a geocode.AddressInput
		if err := rows.Scan(&a.ID, &a.Street, &a.City, &a.State, &a.ZipCode); err != nil {
			return nil, eris.Wrap(err, "voter: scan address")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "voter: iterate addresses")
}

// ApplyCoordinates implements Store. Rows are updated through a temp table
// with COPY; the PostGIS geom column is set from the same point.
func (s *PostgresStore) ApplyCoordinates(ctx context.Context, coords []Coordinate) (int64, error) {
	rows := make([][]any, 0, len(coords))
	for _, c := range coords {
		wkb, err := EncodePoint(c.Lat, c.Lng)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{c.ID, c.Lat, c.Lng, wkb})
	}

	n, err := db.BulkUpdate(ctx, s.pool, db.UpdateConfig{
		Table:     s.table,
		KeyColumn: "id",
		Columns:   []string{"id", "latitude", "longitude", "geom_ewkb"},
		TempTypes: []string{"text", "double precision", "double precision", "bytea"},
		SetExprs: []string{
			`"latitude" = s."latitude"`,
			`"longitude" = s."longitude"`,
			`"geom" = ST_GeomFromEWKB(s."geom_ewkb")`,
		},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "voter: apply coordinates")
	}
	return n, nil
}

// Insert implements Store. Existing ids are replaced.
func (s *PostgresStore) Insert(ctx context.Context, records []Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "voter: insert: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := fmt.Sprintf(`INSERT INTO %s
		(id, voter_reg_id, first_name, last_name, street_address, city, state, zip, status, birth_date, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			voter_reg_id = EXCLUDED.voter_reg_id,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			street_address = EXCLUDED.street_address,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			zip = EXCLUDED.zip,
			status = EXCLUDED.status,
			birth_date = EXCLUDED.birth_date`, db.SanitizeTable(s.table))

	var n int64
	for _, r := range records {
		tag, err := tx.Exec(ctx, q, r.ID, r.RegistrationID, r.FirstName, r.LastName, r.StreetAddress,
			r.City, strings.ToUpper(r.State), r.Zip, statusOrActive(r.Status), r.BirthDate, r.Lat, r.Lng)
		if err != nil {
			return 0, eris.Wrapf(err, "voter: insert %s", r.ID)
		}
		n += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "voter: insert: commit")
	}
	return n, nil
}

// Close implements Store. The pool belongs to the caller and stays open.
func (s *PostgresStore) Close() error {
	return nil
}

// EncodePoint returns the EWKB encoding of a WGS84 point (SRID 4326), in the
// form PostGIS accepts for ST_GeomFromEWKB.
func EncodePoint(lat, lng float64) ([]byte, error) {
	p := geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(4326)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "voter: encode point")
	}
	return data, nil
}

// indexName drops any schema qualifier; index names cannot carry one.
func indexName(table, suffix string) string {
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		table = table[i+1:]
	}
	return table + "_" + suffix
}

func statusOrActive(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return StatusActive
	}
	return status
}
