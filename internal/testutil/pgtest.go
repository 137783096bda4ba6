// Package testutil provides shared test infrastructure for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

var (
	pgOnce sync.Once
	pgDSN  string
	pgErr  error
)

// PGTest opens a test database, runs all pending migrations, and returns
// the *sql.DB plus a cleanup function.
//
// Tests should call this at the top:
//
//	db, cleanup := testutil.PGTest(t)
//	defer cleanup()
//
// POSTGRES_URL takes priority when set. Without it a disposable postgres
// container is started once per test binary and shared between tests; the
// testcontainers reaper removes it after the binary exits. The test is
// skipped under -short and when neither source yields a database.
// The cleanup function truncates all application tables (not system tables).
func PGTest(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, err := sql.Open("postgres", testDSN(t))
	if err != nil {
		t.Fatalf("pgtest: open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: connect to database: %v", err)
	}

	ctx := context.Background()
	if err := migrateUp(ctx, db); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: run migrations: %v", err)
	}

	cleanup := func() {
		truncateAll(ctx, db)
		_ = db.Close()
	}

	return db, cleanup
}

// testDSN resolves the database to test against: POSTGRES_URL when set,
// otherwise a container shared by every test in the binary.
func testDSN(t *testing.T) string {
	t.Helper()

	if url := os.Getenv("POSTGRES_URL"); url != "" {
		return url
	}

	pgOnce.Do(func() {
		ctx := context.Background()
		// testcontainers panics in Docker-host detection when no daemon can
		// be found at all, instead of returning an error from Run; fold the
		// panic into pgErr so the no-database skip below still engages.
		defer func() {
			if r := recover(); r != nil {
				pgErr = fmt.Errorf("testcontainers: %v", r)
			}
		}()
		ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("warden_test"),
			tcpostgres.WithUsername("warden"),
			tcpostgres.WithPassword("warden"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			pgErr = err
			return
		}
		pgDSN, pgErr = ctr.ConnectionString(ctx, "sslmode=disable")
	})
	if pgErr != nil {
		t.Skipf("pgtest: no database available (set POSTGRES_URL or run Docker): %v", pgErr)
	}
	return pgDSN
}

// migrateUp applies all pending goose migrations from the project-level
// migrations/ directory. Repeat calls against the same database no-op.
func migrateUp(ctx context.Context, db *sql.DB) error {
	dir, err := findMigrationsDir()
	if err != nil {
		return err
	}
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, dir)
}

// findMigrationsDir walks up from the test working directory to the
// project-level migrations/ directory.
func findMigrationsDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("no migrations/ directory above the test working directory")
		}
		dir = parent
	}
}

// truncateAll truncates all user-created tables to provide a clean slate
// between tests, leaving goose's version bookkeeping in place. Uses
// TRUNCATE ... CASCADE to handle foreign keys.
func truncateAll(ctx context.Context, db *sql.DB) {
	rows, err := db.QueryContext(ctx, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		  AND tablename NOT LIKE 'pg_%'
		  AND tablename NOT LIKE 'sql_%'
		  AND tablename <> 'goose_db_version'
	`)
	if err != nil {
		return
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			tables = append(tables, name)
		}
	}

	if len(tables) > 0 {
		// Table names come from the pg_tables system catalog, not user input.
		stmt := "TRUNCATE " + strings.Join(tables, ", ") + " CASCADE" // #nosec G202
		_, _ = db.ExecContext(ctx, stmt)                              // #nosec G104 -- best-effort cleanup in test teardown
	}
}
