package orm

import (
	"context"
	"fmt"

	"github.com/forgo/modelfactory/pkg/database"
)

// Query selects models of one type by column equality.
type Query struct {
	db      *DB
	typ     *ModelType
	conn    string
	where   map[string]interface{}
	orderBy string
	err     error
}

// Query starts a query over the named model type
func (db *DB) Query(model string) *Query {
	t, err := db.schema.Type(model)
	q := db.query(t)
	q.err = err
	return q
}

func (db *DB) query(t *ModelType) *Query {
	q := &Query{db: db, typ: t, where: make(map[string]interface{})}
	if t != nil {
		q.conn = t.Connection
		q.orderBy = t.PrimaryKey
	}
	return q
}

// On selects the connection to read from
func (q *Query) On(conn string) *Query {
	q.conn = conn
	return q
}

// Where adds an equality condition; a nil value matches NULL.
func (q *Query) Where(column string, value any) *Query {
	q.where[column] = value
	return q
}

// OrderBy sorts ascending by column instead of the primary key
func (q *Query) OrderBy(column string) *Query {
	q.orderBy = column
	return q
}

// Get returns every matching model
func (q *Query) Get(ctx context.Context) (Collection, error) {
	if q.err != nil {
		return nil, q.err
	}
	store, err := q.db.Store(q.conn)
	if err != nil {
		return nil, err
	}

	rows, err := store.Select(ctx, q.typ.Table, database.Filter{Where: q.where, OrderBy: q.orderBy})
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.typ.Name, err)
	}

	conn := q.conn
	if conn == "" {
		conn = q.db.defaultConnection
	}
	out := make(Collection, 0, len(rows))
	for _, row := range rows {
		out = append(out, &Model{
			typ:        q.typ,
			attributes: Attributes(row),
			connection: conn,
			exists:     true,
		})
	}
	return out, nil
}

// First returns the first matching model or database.ErrNotFound
func (q *Query) First(ctx context.Context) (*Model, error) {
	models, err := q.Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: %s %v", database.ErrNotFound, q.typ.Name, q.where)
	}
	return models[0], nil
}

// Count returns the number of matching models
func (q *Query) Count(ctx context.Context) (int, error) {
	models, err := q.Get(ctx)
	if err != nil {
		return 0, err
	}
	return len(models), nil
}
