package database

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

// SurrealStore implements Store for SurrealDB.
// Record ids are SurrealDB record ids (models.RecordID); the key column is always "id".
type SurrealStore struct {
	db     *surrealdb.DB
	config Config
	logger *slog.Logger
}

// NewSurrealStore creates a new, unconnected SurrealDB store
func NewSurrealStore(cfg Config, logger *slog.Logger) *SurrealStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SurrealStore{
		config: cfg,
		logger: logger,
	}
}

// Connect establishes a connection to SurrealDB
func (s *SurrealStore) Connect(ctx context.Context) error {
	endpoint := fmt.Sprintf("ws://%s:%s", s.config.Host, s.config.Port)

	db, err := surrealdb.FromEndpointURLString(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	// Sign in as root user
	_, err = db.SignIn(ctx, &surrealdb.Auth{
		Username: s.config.User,
		Password: s.config.Password,
	})
	if err != nil {
		_ = db.Close(ctx)
		return fmt.Errorf("%w: signin failed: %v", ErrConnection, err)
	}

	if err := db.Use(ctx, s.config.Namespace, s.config.Database); err != nil {
		_ = db.Close(ctx)
		return fmt.Errorf("%w: use failed: %v", ErrConnection, err)
	}

	s.logger.Debug("connected to surrealdb",
		slog.String("endpoint", endpoint),
		slog.String("namespace", s.config.Namespace))

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SurrealStore) Close() error {
	if s.db != nil {
		return s.db.Close(context.Background())
	}
	return nil
}

// Ping checks the database connection
func (s *SurrealStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrConnection
	}
	if _, err := s.db.Version(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// Insert creates a record. A caller-supplied key value becomes the record id.
func (s *SurrealStore) Insert(ctx context.Context, table, key string, row Row) (interface{}, error) {
	data := copyRow(row)
	vars := map[string]interface{}{"tb": table}

	query := "CREATE type::table($tb) CONTENT $data"
	if key != "" {
		if v, ok := data[key]; ok && v != nil {
			vars["rid"] = recordID(table, v)
			query = "CREATE $rid CONTENT $data"
		}
		delete(data, key)
	}
	vars["data"] = data

	records, err := s.query(ctx, query, vars)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, nil
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: create %s returned no record", ErrQuery, table)
	}
	return records[0]["id"], nil
}

// Update merges row into the record addressed by id
func (s *SurrealStore) Update(ctx context.Context, table, key string, id interface{}, row Row) error {
	data := copyRow(row)
	delete(data, key)

	records, err := s.query(ctx, "UPDATE $rid MERGE $data", map[string]interface{}{
		"rid":  recordID(table, id),
		"data": data,
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: %s %v", ErrNotFound, table, id)
	}
	return nil
}

// Select returns matching records
func (s *SurrealStore) Select(ctx context.Context, table string, filter Filter) ([]Row, error) {
	query, vars, err := surrealSelect(table, filter)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, query, vars)
}

// surrealSelect renders a SELECT with one bound variable per filter column.
// Column names are interpolated, so they must be plain identifiers.
func surrealSelect(table string, filter Filter) (string, map[string]interface{}, error) {
	vars := map[string]interface{}{"tb": table}
	query := "SELECT * FROM type::table($tb)"

	cols := make([]string, 0, len(filter.Where))
	for col := range filter.Where {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	conds := make([]string, 0, len(cols))
	for i, col := range cols {
		if !identPattern.MatchString(col) {
			return "", nil, fmt.Errorf("%w: invalid column %q", ErrQuery, col)
		}
		name := fmt.Sprintf("w%d", i)
		vars[name] = filter.Where[col]
		conds = append(conds, fmt.Sprintf("%s = $%s", col, name))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	if filter.OrderBy != "" {
		if !identPattern.MatchString(filter.OrderBy) {
			return "", nil, fmt.Errorf("%w: invalid column %q", ErrQuery, filter.OrderBy)
		}
		query += " ORDER BY " + filter.OrderBy
	}
	return query, vars, nil
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// query runs a single statement and returns its records
func (s *SurrealStore) query(ctx context.Context, query string, vars map[string]interface{}) ([]Row, error) {
	if s.db == nil {
		return nil, ErrConnection
	}

	results, err := surrealdb.Query[interface{}](ctx, s.db, query, vars)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	if results == nil {
		return nil, nil
	}

	out := make([]Row, 0)
	for _, r := range *results {
		if r.Status != "OK" {
			if r.Error != nil {
				return nil, fmt.Errorf("%w: %s", ErrQuery, r.Error.Message)
			}
			return nil, ErrQuery
		}
		out = append(out, records(r.Result)...)
	}
	return out, nil
}

// records flattens a statement result into rows
func records(result interface{}) []Row {
	switch v := result.(type) {
	case []interface{}:
		out := make([]Row, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]interface{}:
		return []Row{v}
	default:
		return nil
	}
}

func recordID(table string, id interface{}) models.RecordID {
	switch v := id.(type) {
	case models.RecordID:
		return v
	case *models.RecordID:
		return *v
	default:
		return models.NewRecordID(table, id)
	}
}
