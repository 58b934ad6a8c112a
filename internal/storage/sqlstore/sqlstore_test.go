package sqlstore_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0BSoD/medhum/internal/storage"
	"github.com/0x0BSoD/medhum/internal/storage/sqlstore"
)

func TestStore_SQLite(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "medhum.db")

	s, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.Get(ctx, "articles")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Set(ctx, "articles", `[{"id":"a"}]`))
	require.NoError(t, s.Set(ctx, "articles", `[{"id":"b"}]`))

	got, err := s.Get(ctx, "articles")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"b"}]`, got)

	// reopening runs the migration again against an existing table
	s2, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })

	got, err = s2.Get(ctx, "articles")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"b"}]`, got)
}

func TestStore_Postgres(t *testing.T) {
	ctx := context.Background()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := sqlstore.New(sqlx.NewDb(db, "postgres"))

	testCases := []struct {
		name      string
		setupMock func()
		run       func() error
		wantErr   error
	}{
		{
			name: "get returns value",
			setupMock: func() {
				rows := sqlmock.NewRows([]string{"value"}).AddRow(`[]`)
				mock.ExpectQuery(`SELECT value FROM kv_store WHERE storage_key = \$1`).
					WithArgs("articles").
					WillReturnRows(rows)
			},
			run: func() error {
				v, getErr := s.Get(ctx, "articles")
				if getErr == nil && v != `[]` {
					t.Errorf("Get() = %q, want []", v)
				}
				return getErr
			},
		},
		{
			name: "get maps no rows to not found",
			setupMock: func() {
				mock.ExpectQuery("SELECT value FROM kv_store").
					WillReturnError(sql.ErrNoRows)
			},
			run: func() error {
				_, getErr := s.Get(ctx, "articles")
				return getErr
			},
			wantErr: storage.ErrNotFound,
		},
		{
			name: "set upserts",
			setupMock: func() {
				mock.ExpectExec(`INSERT INTO kv_store`).
					WithArgs("articles", `[]`, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(1, 1))
			},
			run: func() error {
				return s.Set(ctx, "articles", `[]`)
			},
		},
		{
			name: "set surfaces driver errors",
			setupMock: func() {
				mock.ExpectExec(`INSERT INTO kv_store`).
					WillReturnError(sql.ErrConnDone)
			},
			run: func() error {
				return s.Set(ctx, "articles", `[]`)
			},
			wantErr: sql.ErrConnDone,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			runErr := tc.run()
			if tc.wantErr != nil {
				assert.ErrorIs(t, runErr, tc.wantErr)
			} else {
				assert.NoError(t, runErr)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := sqlstore.Open(context.Background(), "mysql", "dsn")
	assert.Error(t, err)
}
