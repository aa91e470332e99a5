// Package integration holds tests that exercise internal/repository/sql
// against a real PostgreSQL instance. They are skipped unless
// FILEFORGE_TEST_DB_DSN points at one.
package integration

import (
	"context"
	"database/sql"
	"os"
	"testing"

	sqlconn "github.com/fileforge/fileforge/internal/storage/sql"
	"github.com/stretchr/testify/require"
)

// SetupTestDB opens a PostgreSQL connection pool, applies migrations, and
// truncates its tables on cleanup. Tests are skipped if FILEFORGE_TEST_DB_DSN
// is unset.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("FILEFORGE_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("FILEFORGE_TEST_DB_DSN not set; skipping Postgres integration test")
	}

	db, err := sqlconn.NewPostgresDB(context.Background(), dsn)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = db.Exec("TRUNCATE TABLE batches, quotas, shares, file_versions, files CASCADE")
		_ = db.Close()
	})

	return db
}
