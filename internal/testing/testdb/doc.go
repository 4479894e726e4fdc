// Package testdb provides isolated stores for e2e testing.
//
// NewSQLite opens a private in-memory SQLite database and applies the embedded
// goose migrations for the fixture domain, so tests run real inserts against real
// constraints. NewMemory returns the in-process store and NewSurreal connects to a
// SurrealDB instance under a unique namespace when TEST_SURREAL_HOST is set.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    tdb := testdb.NewSQLite(t)
//	    f := fixtures.New(t, fixtures.WithStore("default", tdb.Store))
//
//	    fixtures.CreateOne(t, f.Of("Company").With("owner"))
//	    assert.Equal(t, 1, tdb.MustCount("users"))
//	}
//
// Stores are closed automatically when the test ends.
package testdb
