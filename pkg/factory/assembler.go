package factory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/forgo/modelfactory/pkg/orm"
)

// assemble persists m and its relation graph in a fixed order: belongs-to parents
// (first batch only), m itself, has-one/has-many/morph children, belongs-to-many
// attachments, then after-creating callbacks.
func (b *Builder) assemble(ctx context.Context, m *orm.Model, conn string) error {
	db := b.factory.db

	seen := make(map[string]bool)
	for _, c := range b.children {
		if c.key.method != loadBelongsTo || seen[c.relation.Name] {
			continue
		}
		seen[c.relation.Name] = true

		parent, err := b.resolveBelongsTo(ctx, c, conn)
		if err != nil {
			return err
		}
		if parent == nil {
			continue
		}
		if err := db.Associate(m, c.relation.Name, parent); err != nil {
			return err
		}
	}

	if err := db.Save(ctx, m); err != nil {
		return err
	}

	for _, c := range b.children {
		if c.key.method != loadHasMany {
			continue
		}
		if err := b.createHasMany(ctx, m, c, conn); err != nil {
			return err
		}
	}

	for _, c := range b.children {
		if c.key.method != loadBelongsToMany {
			continue
		}
		if err := b.attachMany(ctx, m, c, conn); err != nil {
			return err
		}
	}

	for _, cb := range b.factory.registry.afterCreatingCallbacks(b.model.Name, b.callbackNamesFor(m)) {
		if err := cb(ctx, m); err != nil {
			return fmt.Errorf("after creating %s: %w", b.model.Name, err)
		}
	}
	return nil
}

// resolveBelongsTo returns the parent for a belongs-to child: the first bound instance,
// or a single freshly created model when none was bound. An explicit count of zero
// yields nil.
func (b *Builder) resolveBelongsTo(ctx context.Context, c *child, conn string) (*orm.Model, error) {
	if c.bound && len(c.instances) > 0 {
		parent := c.instances[0]
		if !parent.Exists() {
			if err := b.factory.db.Save(ctx, parent); err != nil {
				return nil, err
			}
		}
		return parent, nil
	}

	if c.builder.count.materialize(b.factory.faker).skipped() {
		return nil, nil
	}
	one := count{}
	return firstOf(c.builder.create(ctx, buildOptions{connection: conn, count: &one}))
}

// createHasMany creates the children of m with the foreign key (and morph type) injected.
// Bound instances are re-pointed at m and saved.
func (b *Builder) createHasMany(ctx context.Context, m *orm.Model, c *child, conn string) error {
	rel := c.relation
	inject := orm.Attributes{rel.ForeignKey: m.Get(rel.OwnerKeyFor(m.Type()))}
	if rel.IsMorph() {
		inject[rel.MorphType] = m.Type().MorphClass
	}

	bound, fresh, err := b.resolveMany(ctx, c, buildOptions{attributes: inject, parent: m, connection: conn})
	if err != nil {
		return err
	}
	for _, r := range bound {
		r.Fill(inject)
		if err := b.factory.db.Save(ctx, r); err != nil {
			return err
		}
	}

	b.factory.logger.Debug("relation created",
		slog.String("model", b.model.Name),
		slog.String("relation", rel.Name),
		slog.Int("batch", c.key.batch),
		slog.Int("bound", len(bound)),
		slog.Int("created", len(fresh)))
	return nil
}

// attachMany attaches the related models of a belongs-to-many child to m, evaluating
// the child's pivot overlays once per related model.
func (b *Builder) attachMany(ctx context.Context, m *orm.Model, c *child, conn string) error {
	bound, fresh, err := b.resolveMany(ctx, c, buildOptions{parent: m, connection: conn})
	if err != nil {
		return err
	}

	related := append(append(orm.Collection{}, bound...), fresh...)
	for _, r := range related {
		if !r.Exists() {
			if err := b.factory.db.Save(ctx, r); err != nil {
				return err
			}
		}
		pivot, err := c.builder.pivotAttributes(ctx, m, r)
		if err != nil {
			return err
		}
		if err := b.factory.db.Attach(ctx, m, c.relation.Name, r, pivot); err != nil {
			return err
		}
	}
	return nil
}

// resolveMany returns the bound instances to reuse and the models created to top them
// up to the child's count. Without bound instances everything is created; with them the
// target is the count when set, otherwise the number of instances (at least one), and
// surplus instances are dropped.
func (b *Builder) resolveMany(ctx context.Context, c *child, opts buildOptions) (orm.Collection, orm.Collection, error) {
	cnt := c.builder.count.materialize(b.factory.faker)
	if cnt.skipped() {
		return nil, nil, nil
	}

	if !c.bound {
		opts.count = &cnt
		fresh, err := c.builder.create(ctx, opts)
		return nil, fresh, err
	}

	target := len(c.instances)
	if cnt.set {
		target = cnt.n
	}
	if target < 1 {
		target = 1
	}

	if len(c.instances) >= target {
		return c.instances[:target], nil, nil
	}

	missing := fixedCount(target - len(c.instances))
	opts.count = &missing
	fresh, err := c.builder.create(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	return c.instances, fresh, nil
}

func firstOf(models orm.Collection, err error) (*orm.Model, error) {
	if err != nil {
		return nil, err
	}
	return models.First(), nil
}
