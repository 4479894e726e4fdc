// Package database provides the storage backends behind the model factory ORM.
//
// This package defines the Store interface that abstracts record-level persistence,
// allowing the ORM layer to save and load models without knowing which engine holds them.
//
// # Interface Design
//
// The Store interface provides four data methods:
//   - Insert: Creates a row and returns its primary key (generated when absent)
//   - Update: Merges columns into an existing row addressed by its primary key
//   - Select: Returns rows matching column equality filters
//   - Ping/Close: Connection management
//
// Pivot rows (belongs-to-many join tables) have no primary key of their own.
// Insert them with an empty key column; the returned id is then nil.
//
// # Error Handling
//
// Standard errors are defined for common failure cases:
//   - ErrNotFound: Record does not exist
//   - ErrConnection: Database connection issues
//   - ErrQuery: Query execution failures
//   - ErrUnknownDriver: Config names a driver this package cannot open
//
// Use errors.Is() to check error types:
//
//	if errors.Is(err, database.ErrNotFound) {
//	    // Handle missing record
//	}
//
// # Usage Example
//
//	store, err := database.Open(ctx, database.Config{Driver: database.DriverSQLite, Path: ":memory:"}, logger)
//	defer store.Close()
//
//	id, err := store.Insert(ctx, "users", "id", map[string]interface{}{"name": "Ada"})
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Standard errors for database operations.
// Use errors.Is() to check these error types in calling code.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConnection indicates a failure to connect to or communicate with the database.
	ErrConnection = errors.New("database connection error")

	// ErrQuery indicates a query execution failure (syntax error, invalid reference, etc.).
	ErrQuery = errors.New("query error")

	// ErrUnknownDriver indicates a Config with a driver name this package does not support.
	ErrUnknownDriver = errors.New("unknown database driver")
)

// Supported driver names for Config.Driver.
const (
	DriverMemory    = "memory"
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverSurrealDB = "surrealdb"
)

// Row is a single stored record keyed by column name.
type Row = map[string]interface{}

// Filter selects rows by column equality. Where entries are ANDed together.
// OrderBy names a column to sort ascending by; empty keeps insertion order where the
// backend guarantees one.
type Filter struct {
	Where   map[string]interface{}
	OrderBy string
}

// Store defines the interface for record-level persistence
type Store interface {
	// Insert creates a row in table. key names the primary key column; when the row
	// carries no value for it the store generates one. An empty key inserts a keyless row.
	Insert(ctx context.Context, table, key string, row Row) (interface{}, error)

	// Update merges row into the record whose key column equals id
	Update(ctx context.Context, table, key string, id interface{}, row Row) error

	// Select returns every row in table matching the filter
	Select(ctx context.Context, table string, filter Filter) ([]Row, error)

	// Connection management
	Ping(ctx context.Context) error
	Close() error
}

// Config holds database configuration
type Config struct {
	Driver    string
	Host      string
	Port      string
	User      string
	Password  string
	Namespace string
	Database  string

	// Path is the SQLite file path (":memory:" for a private in-memory database).
	Path string

	// DSN overrides the connection string built from the fields above (SQL drivers only).
	DSN string

	// SSLMode is passed through to PostgreSQL; defaults to "disable".
	SSLMode string
}

// Open connects to the backend named by cfg.Driver.
// A nil logger discards everything.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, cfg, logger)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg, logger)
	case DriverSurrealDB:
		s := NewSurrealStore(cfg, logger)
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
