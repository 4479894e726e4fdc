package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

// Dialect captures the SQL differences between supported engines.
type Dialect struct {
	Name string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
}

// Dialects for the SQL engines this package opens.
var (
	SQLiteDialect = Dialect{
		Name:        DriverSQLite,
		Placeholder: func(int) string { return "?" },
	}

	PostgresDialect = Dialect{
		Name:        DriverPostgres,
		Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	}
)

// Queryer is satisfied by both *sql.DB and *sql.Tx, so a SQLStore can run inside a
// caller-owned transaction.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLStore implements Store over database/sql.
// Column lists are rendered in sorted order so generated statements are stable.
type SQLStore struct {
	db      Queryer
	dialect Dialect
	logger  *slog.Logger
}

// NewSQLStore wraps an open connection or transaction.
// If logger is nil, a discard logger is used.
func NewSQLStore(db Queryer, dialect Dialect, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLStore{db: db, dialect: dialect, logger: logger}
}

// Dialect returns the dialect statements are rendered in
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// DB returns the underlying *sql.DB, or nil when the store wraps a transaction.
func (s *SQLStore) DB() *sql.DB {
	db, _ := s.db.(*sql.DB)
	return db
}

// Insert creates a row. With a key column the generated key is read back via RETURNING.
func (s *SQLStore) Insert(ctx context.Context, table, key string, row Row) (interface{}, error) {
	cols := sortedColumns(row)
	args := make([]interface{}, 0, len(cols))
	marks := make([]string, 0, len(cols))
	for i, col := range cols {
		args = append(args, row[col])
		marks = append(marks, s.dialect.Placeholder(i+1))
	}

	var query string
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", quoteIdent(table))
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(table), joinIdents(cols), strings.Join(marks, ", "))
	}

	s.logger.Debug("insert", slog.String("table", table), slog.Int("columns", len(cols)))

	if key == "" {
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("%w: insert into %s: %v", ErrQuery, table, err)
		}
		return nil, nil
	}

	query += " RETURNING " + quoteIdent(key)
	var id interface{}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return nil, fmt.Errorf("%w: insert into %s: %v", ErrQuery, table, err)
	}
	return normalizeValue(id), nil
}

// Update merges row into the record whose key equals id
func (s *SQLStore) Update(ctx context.Context, table, key string, id interface{}, row Row) error {
	cols := sortedColumns(row)
	if len(cols) == 0 {
		return nil
	}

	sets := make([]string, 0, len(cols))
	args := make([]interface{}, 0, len(cols)+1)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = %s", quoteIdent(col), s.dialect.Placeholder(i+1)))
		args = append(args, row[col])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		quoteIdent(table), strings.Join(sets, ", "), quoteIdent(key), s.dialect.Placeholder(len(args)))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: update %s: %v", ErrQuery, table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s %v", ErrNotFound, table, id)
	}
	return nil
}

// Select returns matching rows; []byte column values are returned as strings
func (s *SQLStore) Select(ctx context.Context, table string, filter Filter) ([]Row, error) {
	query, args := s.selectQuery(table, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: select from %s: %v", ErrQuery, table, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}

	out := make([]Row, 0)
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", ErrQuery, table, err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return out, nil
}

func (s *SQLStore) selectQuery(table string, filter Filter) (string, []interface{}) {
	query := "SELECT * FROM " + quoteIdent(table)

	cols := sortedColumns(filter.Where)
	args := make([]interface{}, 0, len(cols))
	if len(cols) > 0 {
		conds := make([]string, 0, len(cols))
		for _, col := range cols {
			v := filter.Where[col]
			if v == nil {
				conds = append(conds, quoteIdent(col)+" IS NULL")
				continue
			}
			args = append(args, v)
			conds = append(conds, fmt.Sprintf("%s = %s", quoteIdent(col), s.dialect.Placeholder(len(args))))
		}
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	if filter.OrderBy != "" {
		query += " ORDER BY " + quoteIdent(filter.OrderBy)
	}
	return query, args
}

// Ping checks the database connection
func (s *SQLStore) Ping(ctx context.Context) error {
	db := s.DB()
	if db == nil {
		return nil
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// Close closes the underlying connection. Stores wrapping a transaction leave it to the owner.
func (s *SQLStore) Close() error {
	if c, ok := s.db.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func sortedColumns(m map[string]interface{}) []string {
	cols := make([]string, 0, len(m))
	for k := range m {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func joinIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
