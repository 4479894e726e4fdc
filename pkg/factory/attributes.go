package factory

import (
	"context"
	"fmt"

	"github.com/forgo/modelfactory/pkg/orm"
)

// Lazy is an attribute value computed from the other attributes of the same instance.
type Lazy func(attrs orm.Attributes) any

// LazyModel is an attribute value that creates one model and resolves to its key.
type LazyModel struct {
	builder    *Builder
	attributes orm.Attributes
}

// resolveAttributes runs the overlay pipeline for instance index:
// definition, then states and preset fills, then inline fills, then call-site attributes.
func (b *Builder) resolveAttributes(ctx context.Context, opts buildOptions, index int) (orm.Attributes, error) {
	reg := b.factory.registry
	callsite := opts.attributes

	scope := &Scope{Faker: b.factory.faker, Parent: opts.parent, Index: index}
	acc := orm.Attributes{}
	apply := func(o Overlay) {
		if o == nil {
			return
		}
		scope.Attributes = acc.Merge(callsite)
		acc = acc.Merge(o(scope))
	}

	def, ok := reg.Definition(b.model.Name, b.definition)
	if !ok && b.definition != DefaultDefinition {
		return nil, fmt.Errorf("%w: [%s] for model [%s]", ErrUnknownDefinition, b.definition, b.model.Name)
	}
	apply(def)

	for _, e := range b.stateLayer {
		if e.state == "" {
			apply(e.overlay)
			continue
		}
		overlay, err := reg.LookupState(b.model.Name, e.state)
		if err != nil {
			return nil, err
		}
		apply(overlay)
	}

	for _, o := range b.fills {
		apply(o)
	}

	return b.expandAttributes(ctx, acc.Merge(callsite))
}

// pivotAttributes evaluates pivot overlays for one related model.
func (b *Builder) pivotAttributes(ctx context.Context, parent, related *orm.Model) (orm.Attributes, error) {
	scope := &Scope{Faker: b.factory.faker, Parent: parent, Related: related}
	acc := orm.Attributes{}
	for _, o := range b.pivot {
		scope.Attributes = acc.Clone()
		acc = acc.Merge(o(scope))
	}
	return b.expandAttributes(ctx, acc)
}

// expandAttributes replaces generator values. Builders and models resolve to their keys
// first; Lazy values then run in key order and see everything resolved before them.
func (b *Builder) expandAttributes(ctx context.Context, attrs orm.Attributes) (orm.Attributes, error) {
	out := attrs.Clone()

	var deferred []string
	for _, k := range out.Keys() {
		switch out[k].(type) {
		case Lazy, func(orm.Attributes) any, func() any:
			deferred = append(deferred, k)
			continue
		}
		v, err := b.resolveValue(ctx, out[k])
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		out[k] = v
	}

	for _, k := range deferred {
		var v any
		switch fn := out[k].(type) {
		case Lazy:
			v = fn(out.Clone())
		case func(orm.Attributes) any:
			v = fn(out.Clone())
		case func() any:
			v = fn()
		}
		v, err := b.resolveValue(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func (b *Builder) resolveValue(ctx context.Context, v any) (any, error) {
	switch x := v.(type) {
	case *Builder:
		m, err := x.CreateOne(ctx)
		if err != nil {
			return nil, err
		}
		return keyOf(m), nil
	case LazyModel:
		m, err := x.builder.CreateOne(ctx, x.attributes)
		if err != nil {
			return nil, err
		}
		return keyOf(m), nil
	case *orm.Model:
		return keyOf(x), nil
	}
	return v, nil
}

func keyOf(m *orm.Model) any {
	if m == nil {
		return nil
	}
	return m.Key()
}
