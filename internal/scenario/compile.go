package scenario

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/forgo/modelfactory/pkg/factory"
	"github.com/forgo/modelfactory/pkg/orm"
)

const (
	bcryptPrefix = "bcrypt:"
	pivotPrefix  = "pivot."
)

// Schema builds a fresh orm schema from the declared models.
func (s *Scenario) Schema() (*orm.Schema, error) {
	schema := orm.NewSchema()
	for _, m := range s.Models {
		t := &orm.ModelType{
			Name:       m.Name,
			Table:      m.Table,
			PrimaryKey: m.PrimaryKey,
			MorphClass: m.MorphClass,
			Connection: m.Connection,
		}
		if m.Key == "uuid" {
			t.KeyType = orm.KeyUUID
		}
		for _, r := range m.Relations {
			t.Relations = append(t.Relations, r.relation())
		}
		if err := schema.Register(t); err != nil {
			return nil, err
		}
	}
	return schema, nil
}

func (r Relation) relation() orm.Relation {
	var rel orm.Relation
	switch r.Kind {
	case KindBelongsTo:
		rel = orm.BelongsTo(r.Name, r.Related, r.ForeignKey)
	case KindHasOne:
		rel = orm.HasOne(r.Name, r.Related, r.ForeignKey)
	case KindHasMany:
		rel = orm.HasMany(r.Name, r.Related, r.ForeignKey)
	case KindBelongsToMany:
		rel = orm.BelongsToMany(r.Name, r.Related, r.Pivot, r.ForeignKey, r.RelatedPivotKey)
	case KindMorphOne:
		rel = orm.MorphOne(r.Name, r.Related, r.Morph)
	case KindMorphMany:
		rel = orm.MorphMany(r.Name, r.Related, r.Morph)
	case KindMorphTo:
		rel = orm.MorphTo(r.Name, r.Morph)
	}
	if r.OwnerKey != "" {
		rel = rel.WithOwnerKey(r.OwnerKey)
	}
	return rel
}

// Registry builds a factory registry holding the declared definitions, states and presets.
// A definition named "default" is the model's default definition.
func (s *Scenario) Registry() (*factory.Registry, error) {
	reg := factory.NewRegistry()

	for _, model := range sortedKeys(s.Definitions) {
		for _, name := range sortedKeys(s.Definitions[model]) {
			overlay, _, err := compileAttributes(s.Definitions[model][name])
			if err != nil {
				return nil, fmt.Errorf("definitions.%s.%s: %w", model, name, err)
			}
			reg.DefineAs(model, name, overlay)
		}
	}

	for _, model := range sortedKeys(s.States) {
		for _, name := range sortedKeys(s.States[model]) {
			overlay, _, err := compileAttributes(s.States[model][name])
			if err != nil {
				return nil, fmt.Errorf("states.%s.%s: %w", model, name, err)
			}
			if err := reg.State(model, name, overlay); err != nil {
				return nil, err
			}
		}
	}

	for _, model := range sortedKeys(s.Presets) {
		for _, name := range sortedKeys(s.Presets[model]) {
			st, err := compileRecipe(s.Presets[model][name])
			if err != nil {
				return nil, fmt.Errorf("presets.%s.%s: %w", model, name, err)
			}
			if err := reg.Preset(model, name, func(b *factory.Builder) { st.apply(b) }); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}

// step is a compiled Recipe
type step struct {
	definition string
	count      *int
	states     []string
	presets    []string
	fill       factory.Overlay
	pivot      factory.Overlay
	with       []withStep
}

type withStep struct {
	relation string
	and      bool
	step
}

func compileRecipe(r Recipe) (step, error) {
	fill, pivot, err := compileAttributes(r.Attributes)
	if err != nil {
		return step{}, err
	}
	st := step{
		definition: r.Definition,
		count:      r.Count,
		states:     r.States,
		presets:    r.Presets,
		fill:       fill,
		pivot:      pivot,
	}
	for _, w := range r.With {
		child, err := compileRecipe(w.Recipe)
		if err != nil {
			return step{}, fmt.Errorf("with %s: %w", w.Relation, err)
		}
		st.with = append(st.with, withStep{relation: w.Relation, and: w.And, step: child})
	}
	return st, nil
}

// apply configures b. Relations receive their own settings through a tap so that
// nested with entries reach the child builder.
func (st step) apply(b *factory.Builder) *factory.Builder {
	if st.definition != "" {
		b = b.As(st.definition)
	}
	if st.count != nil {
		b = b.Times(*st.count)
	}
	if len(st.states) > 0 {
		b = b.State(st.states...)
	}
	if len(st.presets) > 0 {
		b = b.Preset(st.presets...)
	}
	if st.fill != nil {
		b = b.FillFunc(st.fill)
	}
	if st.pivot != nil {
		b = b.FillPivotFunc(st.pivot)
	}
	for _, w := range st.with {
		tap := func(child *factory.Builder) { w.apply(child) }
		if w.and {
			b = b.AndWith(w.relation, tap)
		} else {
			b = b.With(w.relation, tap)
		}
	}
	return b
}

// compileAttributes splits attrs into a model overlay and a pivot overlay.
// Either is nil when it would produce nothing.
func compileAttributes(attrs map[string]any) (factory.Overlay, factory.Overlay, error) {
	model := newValueSet()
	pivot := newValueSet()
	for _, k := range sortedKeys(attrs) {
		target, key := model, k
		if strings.HasPrefix(k, pivotPrefix) {
			target, key = pivot, strings.TrimPrefix(k, pivotPrefix)
		}
		if err := target.add(key, attrs[k]); err != nil {
			return nil, nil, fmt.Errorf("attribute %s: %w", k, err)
		}
	}
	return model.overlay(), pivot.overlay(), nil
}

// valueSet holds literal values and faker templates for one overlay
type valueSet struct {
	static    orm.Attributes
	templates []template
}

type template struct {
	key, pattern string
}

func newValueSet() *valueSet {
	return &valueSet{static: orm.Attributes{}}
}

func (v *valueSet) add(key string, value any) error {
	s, ok := value.(string)
	switch {
	case ok && strings.HasPrefix(s, bcryptPrefix):
		hash, err := bcrypt.GenerateFromPassword([]byte(strings.TrimPrefix(s, bcryptPrefix)), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		v.static[key] = string(hash)
	case ok && isTemplate(s):
		v.templates = append(v.templates, template{key: key, pattern: s})
	default:
		v.static[key] = value
	}
	return nil
}

// overlay generates templates in key order, so a seeded faker yields the same values.
func (v *valueSet) overlay() factory.Overlay {
	if len(v.static) == 0 && len(v.templates) == 0 {
		return nil
	}
	return func(s *factory.Scope) orm.Attributes {
		out := v.static.Clone()
		for _, t := range v.templates {
			out[t.key] = s.Faker.Generate(t.pattern)
		}
		return out
	}
}

func isTemplate(s string) bool {
	open := strings.Index(s, "{")
	return open >= 0 && strings.Contains(s[open:], "}")
}
