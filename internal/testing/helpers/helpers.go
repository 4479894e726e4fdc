package helpers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/forgo/modelfactory/pkg/orm"
)

// ============================================================================
// Logging Helpers
// ============================================================================

// NewTestLogger returns a logger that writes to t.Log().
// Logs only appear on test failure or when running with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

// ============================================================================
// Context Helpers
// ============================================================================

// Ctx returns a context cancelled when the test ends or after ten seconds.
func Ctx(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// ============================================================================
// Assertion Helpers
// ============================================================================

// AssertCount fails the test unless exactly want models of the type exist on the
// default connection matching the column/value pairs in where.
func AssertCount(t testing.TB, db *orm.DB, model string, want int, where ...any) {
	t.Helper()
	AssertCountOn(t, db, "", model, want, where...)
}

// AssertCountOn is AssertCount against a named connection.
func AssertCountOn(t testing.TB, db *orm.DB, conn, model string, want int, where ...any) {
	t.Helper()
	if len(where)%2 != 0 {
		t.Fatalf("helpers: where needs column/value pairs, got %d values", len(where))
	}

	q := db.Query(model).On(conn)
	for i := 0; i < len(where); i += 2 {
		col, ok := where[i].(string)
		if !ok {
			t.Fatalf("helpers: column %v is not a string", where[i])
		}
		q = q.Where(col, where[i+1])
	}

	got, err := q.Count(Ctx(t))
	if err != nil {
		t.Fatalf("helpers: failed to count %s: %v", model, err)
	}
	if got != want {
		t.Errorf("expected %d %s rows, got %d", want, model, got)
	}
}

// Related loads a relation and fails the test on error.
func Related(t testing.TB, db *orm.DB, m *orm.Model, relation string) orm.Collection {
	t.Helper()
	related, err := db.Related(Ctx(t), m, relation)
	if err != nil {
		t.Fatalf("helpers: failed to load %s.%s: %v", m.Type().Name, relation, err)
	}
	return related
}

// AssertRelatedCount fails the test unless the relation holds want models.
func AssertRelatedCount(t testing.TB, db *orm.DB, m *orm.Model, relation string, want int) {
	t.Helper()
	if got := len(Related(t, db, m, relation)); got != want {
		t.Errorf("expected %s.%s to hold %d models, got %d", m.Type().Name, relation, want, got)
	}
}

// ============================================================================
// Value Helpers
// ============================================================================

// Int64 converts an integer-valued attribute (as returned by any store) to int64.
func Int64(t testing.TB, v any) int64 {
	t.Helper()
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	t.Fatalf("helpers: %v (%T) is not an integer", v, v)
	return 0
}
