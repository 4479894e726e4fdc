package orm

import "sort"

// Attributes maps column names to values.
type Attributes map[string]any

// Clone returns a shallow copy; a nil receiver yields an empty map.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Merge returns a copy of a overlaid with others, later maps winning.
func (a Attributes) Merge(others ...Attributes) Attributes {
	out := a.Clone()
	for _, o := range others {
		for k, v := range o {
			out[k] = v
		}
	}
	return out
}

// Keys returns the attribute names, sorted
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Model is one row of a ModelType, saved or not.
type Model struct {
	typ        *ModelType
	attributes Attributes
	connection string
	exists     bool
	pivot      Attributes
}

// Type returns the model's type
func (m *Model) Type() *ModelType {
	return m.typ
}

// Get returns an attribute value, nil when unset
func (m *Model) Get(key string) any {
	return m.attributes[key]
}

// Set assigns a single attribute
func (m *Model) Set(key string, value any) {
	m.attributes[key] = value
}

// Fill assigns every attribute in attrs
func (m *Model) Fill(attrs Attributes) {
	for k, v := range attrs {
		m.attributes[k] = v
	}
}

// Attributes returns a copy of the model's attributes
func (m *Model) Attributes() Attributes {
	return m.attributes.Clone()
}

// Key returns the primary key value
func (m *Model) Key() any {
	return m.attributes[m.typ.PrimaryKey]
}

// Exists reports whether the model has been persisted
func (m *Model) Exists() bool {
	return m.exists
}

// Connection returns the connection the model was (or will be) saved on
func (m *Model) Connection() string {
	return m.connection
}

// SetConnection sets the connection used by the next save
func (m *Model) SetConnection(name string) {
	m.connection = name
}

// Pivot returns the pivot row attributes when the model was loaded through a
// belongs-to-many relation, nil otherwise.
func (m *Model) Pivot() Attributes {
	return m.pivot
}

// Collection is an ordered list of models.
type Collection []*Model

// First returns the first model or nil
func (c Collection) First() *Model {
	if len(c) == 0 {
		return nil
	}
	return c[0]
}

// Keys returns the primary keys in order
func (c Collection) Keys() []any {
	keys := make([]any, len(c))
	for i, m := range c {
		keys[i] = m.Key()
	}
	return keys
}

// Pluck returns one attribute per model in order
func (c Collection) Pluck(key string) []any {
	out := make([]any, len(c))
	for i, m := range c {
		out[i] = m.Get(key)
	}
	return out
}
