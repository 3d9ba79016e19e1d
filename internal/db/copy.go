package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpdateConfig describes a bulk UPDATE driven by a temp table.
type UpdateConfig struct {
	Table     string   // target table, optionally schema-qualified
	KeyColumn string   // column joined between temp and target
	Columns   []string // columns copied into the temp table; must include KeyColumn
	// TempTypes gives the SQL type of each column in Columns, in order.
	TempTypes []string
	// SetExprs are raw assignment expressions for the target; "t" is the
	// target alias and "s" the temp table alias. Nil means "col = s.col" for
	// every non-key column.
	SetExprs []string
}

// BulkUpdate copies rows into a temp table with COPY and applies them to the
// target with a single UPDATE ... FROM, inside one transaction. It returns the
// number of target rows updated.
func BulkUpdate(ctx context.Context, pool Pool, cfg UpdateConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 || len(cfg.Columns) != len(cfg.TempTypes) {
		return 0, eris.New("db: update: columns and temp types must be non-empty and aligned")
	}
	if cfg.KeyColumn == "" {
		return 0, eris.New("db: update: no key column specified")
	}

	setExprs := cfg.SetExprs
	if setExprs == nil {
		for _, c := range cfg.Columns {
			if c == cfg.KeyColumn {
				continue
			}
			col := pgx.Identifier{c}.Sanitize()
			setExprs = append(setExprs, fmt.Sprintf("%s = s.%s", col, col))
		}
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: update: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tempTable := "_tmp_update_" + strings.ReplaceAll(cfg.Table, ".", "_")
	defs := make([]string, len(cfg.Columns))
	for i, c := range cfg.Columns {
		defs[i] = pgx.Identifier{c}.Sanitize() + " " + cfg.TempTypes[i]
	}
	createSQL := fmt.Sprintf("CREATE TEMP TABLE %s (%s) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(), strings.Join(defs, ", "))
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: update: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: update: COPY into temp table for %s", cfg.Table)
	}

	key := pgx.Identifier{cfg.KeyColumn}.Sanitize()
	updateSQL := fmt.Sprintf("UPDATE %s AS t SET %s FROM %s AS s WHERE t.%s = s.%s",
		SanitizeTable(cfg.Table),
		strings.Join(setExprs, ", "),
		pgx.Identifier{tempTable}.Sanitize(),
		key, key,
	)
	tag, err := tx.Exec(ctx, updateSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: update: UPDATE FROM for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: update: commit tx")
	}
	return tag.RowsAffected(), nil
}

// SanitizeTable quotes schema-qualified table names like "public.voters".
func SanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}
