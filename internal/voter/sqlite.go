package voter

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/voter-geo/pkg/geocode"
)

const birthDateLayout = "2006-01-02"

// SQLiteStore implements Store using modernc.org/sqlite, for local runs
// without a Postgres server.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "voter: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "voter: sqlite exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS voters (
	id             TEXT PRIMARY KEY,
	voter_reg_id   TEXT NOT NULL DEFAULT '',
	first_name     TEXT NOT NULL DEFAULT '',
	last_name      TEXT NOT NULL DEFAULT '',
	street_address TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL,
	zip            TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'active',
	birth_date     TEXT,
	latitude       REAL,
	longitude      REAL
);

CREATE INDEX IF NOT EXISTS idx_voters_state_zip ON voters(state, zip);
`

// Migrate creates the voter table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "voter: sqlite migrate")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteSelect = `SELECT id, voter_reg_id, first_name, last_name, street_address,
	city, state, zip, status, birth_date, latitude, longitude FROM voters`

// Candidates implements Store.
func (s *SQLiteStore) Candidates(ctx context.Context, state, zip string) ([]Record, error) {
	return s.queryRecords(ctx, sqliteSelect+`
		WHERE lower(status) = 'active' AND upper(state) = upper(?) AND zip = ?
		ORDER BY id`, state, zip)
}

// PrefixCandidates implements Store.
func (s *SQLiteStore) PrefixCandidates(ctx context.Context, state, prefix, excludeZip string) ([]Record, error) {
	if prefix == "" {
		return nil, nil
	}
	return s.queryRecords(ctx, sqliteSelect+`
		WHERE lower(status) = 'active' AND upper(state) = upper(?) AND substr(zip, 1, 3) = ? AND zip <> ?
		ORDER BY id`, state, prefix, excludeZip)
}

func (s *SQLiteStore) queryRecords(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "voter: sqlite query candidates")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var birth sql.NullString
		var lat, lng sql.NullFloat64
		if err := rows.Scan(
			&r.ID, &r.RegistrationID, &r.FirstName, &r.LastName, &r.StreetAddress,
			&r.City, &r.State, &r.Zip, &r.Status, &birth, &lat, &lng,
		); err != nil {
			return nil, eris.Wrap(err, "voter: sqlite scan candidate")
		}
		if birth.Valid {
			if t, err := time.Parse(birthDateLayout, birth.String); err == nil {
				r.BirthDate = &t
			}
		}
		if lat.Valid && lng.Valid {
			r.Lat, r.Lng = &lat.Float64, &lng.Float64
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "voter: sqlite iterate candidates")
}

// AddressRecords implements Store.
func (s *SQLiteStore) AddressRecords(ctx context.Context, state string) ([]geocode.AddressInput, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, street_address, city, state, zip FROM voters
		WHERE ? = '' OR upper(state) = upper(?)
		ORDER BY id`, state, state)
	if err != nil {
		return nil, eris.Wrap(err, "voter: sqlite query addresses")
	}
	defer rows.Close()

	var out []geocode.AddressInput
	for rows.Next() {
		var a geocode.AddressInput
		if err := rows.Scan(&a.ID, &a.Street, &a.City, &a.State, &a.ZipCode); err != nil {
			return nil, eris.Wrap(err, "voter: sqlite scan address")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "voter: sqlite iterate addresses")
}

// ApplyCoordinates implements Store.
func (s *SQLiteStore) ApplyCoordinates(ctx context.Context, coords []Coordinate) (int64, error) {
	if len(coords) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "voter: sqlite begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `UPDATE voters SET latitude = ?, longitude = ? WHERE id = ?`)
	if err != nil {
		return 0, eris.Wrap(err, "voter: sqlite prepare update")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, c := range coords {
		res, err := stmt.ExecContext(ctx, c.Lat, c.Lng, c.ID)
		if err != nil {
			return 0, eris.Wrapf(err, "voter: sqlite update %s", c.ID)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "voter: sqlite rows affected")
		}
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "voter: sqlite commit")
	}
	return n, nil
}

// Insert implements Store. Existing ids are replaced.
func (s *SQLiteStore) Insert(ctx context.Context, records []Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "voter: sqlite begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO voters
		(id, voter_reg_id, first_name, last_name, street_address, city, state, zip, status, birth_date, latitude, longitude)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "voter: sqlite prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range records {
		var birth any
		if r.BirthDate != nil {
			birth = r.BirthDate.Format(birthDateLayout)
		}
		var lat, lng any
		if r.HasCoordinates() {
			lat, lng = *r.Lat, *r.Lng
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.RegistrationID, r.FirstName, r.LastName,
			r.StreetAddress, r.City, strings.ToUpper(r.State), r.Zip, statusOrActive(r.Status), birth, lat, lng); err != nil {
			return 0, eris.Wrapf(err, "voter: sqlite insert %s", r.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "voter: sqlite commit")
	}
	return int64(len(records)), nil
}
