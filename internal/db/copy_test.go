package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coordUpdateConfig() UpdateConfig {
	return UpdateConfig{
		Table:     "public.voters",
		KeyColumn: "id",
		Columns:   []string{"id", "latitude", "longitude"},
		TempTypes: []string{"text", "double precision", "double precision"},
	}
}

func TestBulkUpdate_EmptyRows(t *testing.T) {
	n, err := BulkUpdate(context.Background(), nil, coordUpdateConfig(), nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpdate_MisalignedTypes(t *testing.T) {
	cfg := coordUpdateConfig()
	cfg.TempTypes = cfg.TempTypes[:1]
	_, err := BulkUpdate(context.Background(), nil, cfg, [][]any{{"1", 1.0, 2.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aligned")
}

func TestBulkUpdate_NoKey(t *testing.T) {
	cfg := coordUpdateConfig()
	cfg.KeyColumn = ""
	_, err := BulkUpdate(context.Background(), nil, cfg, [][]any{{"1", 1.0, 2.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no key column")
}

func TestBulkUpdate_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_update_public_voters"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_update_public_voters"}, []string{"id", "latitude", "longitude"}).
		WillReturnResult(2)
	mock.ExpectExec(`UPDATE "public"."voters" AS t SET "latitude" = s."latitude", "longitude" = s."longitude" FROM`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	rows := [][]any{{"1", 35.2, -80.8}, {"2", 35.3, -80.9}}
	n, err := BulkUpdate(context.Background(), mock, coordUpdateConfig(), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpdate_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_update_public_voters"}, []string{"id", "latitude", "longitude"}).
		WillReturnError(fmt.Errorf("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpdate(context.Background(), mock, coordUpdateConfig(), [][]any{{"1", 1.0, 2.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for public.voters")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"simple"`, SanitizeTable("simple"))
	assert.Equal(t, `"public"."voters"`, SanitizeTable("public.voters"))
}

func TestConnect_EmptyDSN(t *testing.T) {
	_, err := Connect(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database_url")
}
