package orm

import (
	"fmt"
	"sort"
	"sync"
)

// KeyType controls how primary keys are assigned on insert.
type KeyType int

const (
	// KeyIncrementing leaves key generation to the store.
	KeyIncrementing KeyType = iota

	// KeyUUID assigns a random UUID string before insert.
	KeyUUID
)

// ModelType describes one persisted model: its table, key and relations.
type ModelType struct {
	Name       string
	Table      string
	PrimaryKey string
	KeyType    KeyType

	// MorphClass is written to morph type columns; defaults to Name.
	MorphClass string

	// Connection pins the type to a named connection; empty uses the DB default.
	Connection string

	Relations []Relation

	index map[string]*Relation
}

// Relation returns the named relation
func (t *ModelType) Relation(name string) (*Relation, bool) {
	r, ok := t.index[name]
	return r, ok
}

// HasRelation reports whether name is a relation on t
func (t *ModelType) HasRelation(name string) bool {
	_, ok := t.index[name]
	return ok
}

// RelationNames returns every relation name, sorted
func (t *ModelType) RelationNames() []string {
	names := make([]string, 0, len(t.index))
	for name := range t.index {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds an unsaved model of this type holding a copy of attrs.
func (t *ModelType) New(attrs Attributes) *Model {
	return &Model{
		typ:        t,
		attributes: attrs.Clone(),
	}
}

// Schema is the set of model types known to a DB. Safe for concurrent use.
type Schema struct {
	mu    sync.RWMutex
	types map[string]*ModelType
}

// NewSchema creates a schema holding the given types.
// It panics on an invalid type, which is a programming error in fixture setup.
func NewSchema(types ...*ModelType) *Schema {
	s := &Schema{types: make(map[string]*ModelType)}
	for _, t := range types {
		if err := s.Register(t); err != nil {
			panic(err)
		}
	}
	return s
}

// Register validates t, fills defaults and indexes its relations.
func (s *Schema) Register(t *ModelType) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("%w: model type needs a name", ErrInvalidSchema)
	}
	if t.Table == "" {
		return fmt.Errorf("%w: model %s needs a table", ErrInvalidSchema, t.Name)
	}
	if t.PrimaryKey == "" {
		t.PrimaryKey = "id"
	}
	if t.MorphClass == "" {
		t.MorphClass = t.Name
	}

	t.index = make(map[string]*Relation, len(t.Relations))
	for i := range t.Relations {
		r := &t.Relations[i]
		if r.Name == "" {
			return fmt.Errorf("%w: model %s has an unnamed relation", ErrInvalidSchema, t.Name)
		}
		if _, dup := t.index[r.Name]; dup {
			return fmt.Errorf("%w: model %s declares relation %q twice", ErrInvalidSchema, t.Name, r.Name)
		}
		t.index[r.Name] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.types[t.Name]; dup {
		return fmt.Errorf("%w: model %s registered twice", ErrInvalidSchema, t.Name)
	}
	s.types[t.Name] = t
	return nil
}

// Type returns the named model type
func (s *Schema) Type(name string) (*ModelType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return t, nil
}

// Related resolves the model type on the far side of a relation.
func (s *Schema) Related(t *ModelType, relation string) (*Relation, *ModelType, error) {
	r, ok := t.Relation(relation)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, t.Name, relation)
	}
	if r.Kind == RelationMorphTo {
		return r, nil, nil
	}
	related, err := s.Type(r.Related)
	if err != nil {
		return nil, nil, err
	}
	return r, related, nil
}

// Names returns every registered model name, sorted
func (s *Schema) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.types))
	for name := range s.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
