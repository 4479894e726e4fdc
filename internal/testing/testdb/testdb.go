package testdb

import (
	"context"
	"embed"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/forgo/modelfactory/internal/testing/helpers"
	"github.com/forgo/modelfactory/pkg/database"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Tables lists every table created by the fixture migrations, children first.
var Tables = []string{
	"division_employees",
	"employees",
	"images",
	"customers",
	"divisions",
	"departments",
	"companies",
	"users",
}

// TestDB provides an isolated store for testing.
type TestDB struct {
	Store database.Store

	// SQL is set for SQL-backed stores.
	SQL *database.SQLStore

	Driver string
	t      testing.TB
}

var (
	// counterMu protects the name counter
	counterMu sync.Mutex
	counter   int64
)

// uniqueName generates a unique database or namespace name for test isolation
func uniqueName() string {
	counterMu.Lock()
	defer counterMu.Unlock()
	counter++
	return fmt.Sprintf("test_%d_%s", counter, uuid.NewString()[:8])
}

// NewMemory creates an in-memory store. No schema is needed.
func NewMemory(t testing.TB) *TestDB {
	t.Helper()
	tdb := &TestDB{Store: database.NewMemoryStore(), Driver: database.DriverMemory, t: t}
	t.Cleanup(tdb.Close)
	return tdb
}

// NewSQLite creates a private in-memory SQLite database with the fixture migrations applied.
func NewSQLite(t testing.TB) *TestDB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := database.OpenSQLite(ctx, database.Config{Path: ":memory:"}, helpers.NewTestLogger(t))
	if err != nil {
		t.Fatalf("testdb: failed to open sqlite: %v", err)
	}

	if err := database.Migrate(store.DB(), store.Dialect(), migrations, "migrations"); err != nil {
		_ = store.Close()
		t.Fatalf("testdb: failed to migrate: %v", err)
	}

	tdb := &TestDB{Store: store, SQL: store, Driver: database.DriverSQLite, t: t}
	t.Cleanup(tdb.Close)
	return tdb
}

// NewSurreal connects to the SurrealDB instance named by TEST_SURREAL_HOST under a
// unique namespace. The test is skipped when the variable is unset.
func NewSurreal(t testing.TB) *TestDB {
	t.Helper()

	host := os.Getenv("TEST_SURREAL_HOST")
	if host == "" {
		t.Skip("testdb: TEST_SURREAL_HOST not set")
	}

	cfg := database.Config{
		Driver:    database.DriverSurrealDB,
		Host:      host,
		Port:      getenv("TEST_SURREAL_PORT", "8000"),
		User:      getenv("TEST_SURREAL_USER", "root"),
		Password:  getenv("TEST_SURREAL_PASSWORD", "root"),
		Namespace: uniqueName(),
		Database:  "test",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := database.Open(ctx, cfg, helpers.NewTestLogger(t))
	if err != nil {
		t.Fatalf("testdb: failed to connect: %v", err)
	}

	tdb := &TestDB{Store: store, Driver: database.DriverSurrealDB, t: t}
	t.Cleanup(tdb.Close)
	return tdb
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Close releases the store. Safe to call more than once.
func (tdb *TestDB) Close() {
	if tdb.Store == nil {
		return
	}
	_ = tdb.Store.Close()
	tdb.Store = nil
}

// Reset clears all data while preserving schema.
func (tdb *TestDB) Reset() {
	tdb.t.Helper()

	switch s := tdb.Store.(type) {
	case *database.MemoryStore:
		s.Truncate()
	case *database.SQLStore:
		for _, table := range Tables {
			tdb.MustExec(fmt.Sprintf("DELETE FROM %q", table))
		}
	default:
		tdb.t.Fatalf("testdb: reset not supported for %s", tdb.Driver)
	}
}

// Ctx returns a context cancelled when the test ends.
func (tdb *TestDB) Ctx() context.Context {
	return helpers.Ctx(tdb.t)
}

// MustExec executes a statement on a SQL store and fails the test on error.
func (tdb *TestDB) MustExec(query string, args ...any) {
	tdb.t.Helper()
	if tdb.SQL == nil {
		tdb.t.Fatalf("testdb: %s store does not take SQL", tdb.Driver)
	}
	if _, err := tdb.SQL.DB().ExecContext(tdb.Ctx(), query, args...); err != nil {
		tdb.t.Fatalf("testdb: exec failed: %v\nQuery: %s", err, query)
	}
}

// MustCount counts the rows of a table and fails the test on error.
func (tdb *TestDB) MustCount(table string) int {
	tdb.t.Helper()
	rows, err := tdb.Store.Select(tdb.Ctx(), table, database.Filter{})
	if err != nil {
		tdb.t.Fatalf("testdb: failed to count %s: %v", table, err)
	}
	return len(rows)
}
