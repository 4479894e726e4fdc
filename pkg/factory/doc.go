// Package factory builds graphs of test fixtures on top of the orm package.
//
// A Factory pairs a Registry of attribute definitions with an orm.DB. Builders
// obtained from it describe what to produce; terminal calls produce it:
//
//	companies, err := f.Of("Company").
//	    With("owner").
//	    With(2, "departments", "active").
//	    With(3, "departments.employees").
//	    Create(ctx)
//
// # Registry
//
// Per model type the registry holds:
//   - Definitions: the base attributes (Define, DefineAs for named variants)
//   - States: named attribute overlays (State)
//   - Presets: named builder functions, applied eagerly (Preset)
//   - Callbacks: run after making or creating, keyed by definition or state name
//
// States and presets share one namespace per model; registering both under one
// name fails with ErrNameCollision.
//
// # Attribute Precedence
//
// Attributes resolve per instance in this order, later layers winning:
//
//  1. The selected definition
//  2. States and preset fills, in declaration order
//  3. Inline fills (Fill, FillFunc, Sequence), in call order
//  4. Call-site attributes passed to Make, Create or Raw
//
// Values may be generators: Lazy functions see the other attributes, *Builder and
// LazyModel values create a model and resolve to its key, *orm.Model values resolve
// to their key.
//
// # With Arguments
//
// Each With argument is classified, first match wins:
//
//	nil                              ignored
//	int, float, CountFunc            count
//	orm.Attributes, map[string]any   attributes ("pivot." keys go to the pivot row)
//	func(*Builder) *Builder          replaces the relation builder
//	func(*Builder)                   called with the relation builder
//	*orm.Model, orm.Collection       bound instances
//	string naming a relation         relation path (dotted for nesting)
//	string naming a preset           preset
//	any other string                 state
//
// A single Relations map or []string loads several relations at once.
// AndWith starts a new batch so the same relation can be loaded twice with
// different settings.
//
// # Persistence Order
//
// Create saves belongs-to parents first (first batch only), then the model, then
// has-one/has-many/morph children with the foreign key injected, then belongs-to-many
// attachments with their pivot rows, then after-creating callbacks. Bound instances
// are topped up with fresh models, or truncated, to match the requested count.
//
// # Errors
//
// Fluent calls never panic on bad input; the first error is kept and returned by the
// next terminal call before anything is written:
//
//	_, err := f.Of("Company").With("nope").Create(ctx)
//	errors.Is(err, factory.ErrUnresolvableRelation) // true
package factory
