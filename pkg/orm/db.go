package orm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/forgo/modelfactory/pkg/database"
)

// DefaultConnection is the connection name used when none is configured.
const DefaultConnection = "default"

// Standard errors for ORM operations.
var (
	ErrUnknownModel      = errors.New("unknown model type")
	ErrUnknownRelation   = errors.New("unknown relation")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrInvalidSchema     = errors.New("invalid schema")
	ErrRelationKind      = errors.New("relation kind does not support this operation")
)

// DB persists models of a Schema across named connections.
type DB struct {
	schema            *Schema
	stores            map[string]database.Store
	defaultConnection string
	logger            *slog.Logger
}

// Option configures a DB
type Option func(*DB)

// WithStore registers store under a connection name.
func WithStore(name string, store database.Store) Option {
	return func(db *DB) {
		db.stores[name] = store
	}
}

// WithDefaultConnection changes the connection used when neither the model nor its type names one.
func WithDefaultConnection(name string) Option {
	return func(db *DB) {
		db.defaultConnection = name
	}
}

// WithLogger sets the logger; the default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(db *DB) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// New creates a DB over schema.
func New(schema *Schema, opts ...Option) *DB {
	db := &DB{
		schema:            schema,
		stores:            make(map[string]database.Store),
		defaultConnection: DefaultConnection,
		logger:            slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// Schema returns the schema models are resolved against
func (db *DB) Schema() *Schema {
	return db.schema
}

// DefaultConnection returns the name of the fallback connection
func (db *DB) DefaultConnection() string {
	return db.defaultConnection
}

// Store returns the store behind a connection name; empty means the default.
func (db *DB) Store(name string) (database.Store, error) {
	if name == "" {
		name = db.defaultConnection
	}
	s, ok := db.stores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConnection, name)
	}
	return s, nil
}

// Connections returns every configured connection name, sorted
func (db *DB) Connections() []string {
	names := make([]string, 0, len(db.stores))
	for name := range db.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (db *DB) connectionFor(m *Model) string {
	switch {
	case m.connection != "":
		return m.connection
	case m.typ.Connection != "":
		return m.typ.Connection
	default:
		return db.defaultConnection
	}
}

// Save inserts a new model or updates an existing one.
func (db *DB) Save(ctx context.Context, m *Model) error {
	conn := db.connectionFor(m)
	store, err := db.Store(conn)
	if err != nil {
		return err
	}

	t := m.typ
	if m.exists {
		row := m.attributes.Clone()
		delete(row, t.PrimaryKey)
		if err := store.Update(ctx, t.Table, t.PrimaryKey, m.Key(), row); err != nil {
			return fmt.Errorf("update %s: %w", t.Name, err)
		}
		return nil
	}

	if t.KeyType == KeyUUID && m.Key() == nil {
		m.attributes[t.PrimaryKey] = uuid.NewString()
	}

	row := m.attributes.Clone()
	if row[t.PrimaryKey] == nil {
		delete(row, t.PrimaryKey)
	}
	id, err := store.Insert(ctx, t.Table, t.PrimaryKey, row)
	if err != nil {
		return fmt.Errorf("insert %s: %w", t.Name, err)
	}
	if id != nil {
		m.attributes[t.PrimaryKey] = id
	}
	m.exists = true
	m.connection = conn

	db.logger.Debug("model saved",
		slog.String("model", t.Name),
		slog.String("connection", conn),
		slog.Any("key", m.Key()))
	return nil
}

// Associate points child's belongs-to relation at parent. A nil parent clears the key.
func (db *DB) Associate(child *Model, relation string, parent *Model) error {
	r, ok := child.typ.Relation(relation)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownRelation, child.typ.Name, relation)
	}
	if r.Kind != RelationBelongsTo {
		return fmt.Errorf("%w: associate on %s %s.%s", ErrRelationKind, r.Kind, child.typ.Name, relation)
	}

	if parent == nil {
		child.Set(r.ForeignKey, nil)
		return nil
	}
	child.Set(r.ForeignKey, parent.Get(ownerKey(r, parent.typ)))
	return nil
}

// Attach inserts a pivot row joining m and related through a belongs-to-many relation.
func (db *DB) Attach(ctx context.Context, m *Model, relation string, related *Model, pivot Attributes) error {
	r, ok := m.typ.Relation(relation)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownRelation, m.typ.Name, relation)
	}
	if r.Kind != RelationBelongsToMany {
		return fmt.Errorf("%w: attach on %s %s.%s", ErrRelationKind, r.Kind, m.typ.Name, relation)
	}

	store, err := db.Store(db.connectionFor(m))
	if err != nil {
		return err
	}

	row := pivot.Clone()
	row[r.ForeignKey] = m.Get(ownerKey(r, m.typ))
	row[r.RelatedPivotKey] = related.Key()
	if _, err := store.Insert(ctx, r.PivotTable, "", row); err != nil {
		return fmt.Errorf("attach %s.%s: %w", m.typ.Name, relation, err)
	}
	return nil
}

// Related loads the models on the far side of relation.
// Models loaded through a belongs-to-many relation carry their pivot row.
func (db *DB) Related(ctx context.Context, m *Model, relation string) (Collection, error) {
	r, related, err := db.schema.Related(m.typ, relation)
	if err != nil {
		return nil, err
	}
	conn := db.connectionFor(m)

	switch {
	case r.Kind == RelationBelongsTo:
		fk := m.Get(r.ForeignKey)
		if fk == nil {
			return Collection{}, nil
		}
		return db.query(related).On(conn).Where(ownerKey(r, related), fk).Get(ctx)

	case r.IsOneOrMany():
		q := db.query(related).On(conn).Where(r.ForeignKey, m.Get(ownerKey(r, m.typ)))
		if r.IsMorph() {
			q = q.Where(r.MorphType, m.typ.MorphClass)
		}
		return q.Get(ctx)

	case r.Kind == RelationBelongsToMany:
		return db.relatedThroughPivot(ctx, m, r, related, conn)

	case r.Kind == RelationMorphTo:
		class, ok := m.Get(r.MorphType).(string)
		if !ok || m.Get(r.ForeignKey) == nil {
			return Collection{}, nil
		}
		target, err := db.schema.Type(class)
		if err != nil {
			return nil, err
		}
		return db.query(target).On(conn).Where(target.PrimaryKey, m.Get(r.ForeignKey)).Get(ctx)
	}
	return nil, fmt.Errorf("%w: %s", ErrRelationKind, r.Kind)
}

func (db *DB) relatedThroughPivot(ctx context.Context, m *Model, r *Relation, related *ModelType, conn string) (Collection, error) {
	store, err := db.Store(conn)
	if err != nil {
		return nil, err
	}
	rows, err := store.Select(ctx, r.PivotTable, database.Filter{
		Where: map[string]interface{}{r.ForeignKey: m.Get(ownerKey(r, m.typ))},
	})
	if err != nil {
		return nil, err
	}

	out := make(Collection, 0, len(rows))
	for _, row := range rows {
		found, err := db.query(related).On(conn).Where(related.PrimaryKey, row[r.RelatedPivotKey]).First(ctx)
		if err != nil {
			return nil, err
		}
		found.pivot = Attributes(row)
		out = append(out, found)
	}
	return out, nil
}

// Find loads a model by primary key on the default connection
func (db *DB) Find(ctx context.Context, model string, id any) (*Model, error) {
	t, err := db.schema.Type(model)
	if err != nil {
		return nil, err
	}
	return db.query(t).Where(t.PrimaryKey, id).First(ctx)
}

// Fresh reloads m from the connection it was saved on
func (db *DB) Fresh(ctx context.Context, m *Model) (*Model, error) {
	return db.query(m.typ).On(db.connectionFor(m)).Where(m.typ.PrimaryKey, m.Key()).First(ctx)
}

// Close closes every store, reporting all failures.
func (db *DB) Close() error {
	var err error
	for _, name := range db.Connections() {
		if cerr := db.stores[name].Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", name, cerr))
		}
	}
	return err
}

func ownerKey(r *Relation, t *ModelType) string {
	return r.OwnerKeyFor(t)
}
