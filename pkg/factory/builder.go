package factory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/forgo/modelfactory/pkg/orm"
)

// loadMethod is how the assembler sequences a relation.
type loadMethod int

const (
	loadBelongsTo loadMethod = iota
	loadHasMany
	loadBelongsToMany
)

func loadMethodFor(r *orm.Relation) (loadMethod, error) {
	switch {
	case r.Kind == orm.RelationBelongsTo:
		return loadBelongsTo, nil
	case r.IsOneOrMany():
		return loadHasMany, nil
	case r.Kind == orm.RelationBelongsToMany:
		return loadBelongsToMany, nil
	}
	return 0, fmt.Errorf("%w: %s relation %q", ErrUnsupportedRelation, r.Kind, r.Name)
}

// childKey identifies one relation child. The same relation in another batch is a separate child.
type childKey struct {
	method   loadMethod
	relation string
	batch    int
}

type child struct {
	key       childKey
	relation  *orm.Relation
	builder   *Builder
	instances orm.Collection
	bound     bool
}

// layerEntry is a named state or an overlay added by a preset
type layerEntry struct {
	state   string
	overlay Overlay
}

// buildOptions carry what a parent passes down into a child build.
type buildOptions struct {
	attributes orm.Attributes
	parent     *orm.Model
	connection string

	// count overrides the builder's own count when set.
	count *count
}

// Builder configures and produces models of one type.
// Fluent calls record their first error, which the next terminal call returns
// before anything is persisted. A Builder is not safe for concurrent use.
type Builder struct {
	factory    *Factory
	model      *orm.ModelType
	definition string
	stateLayer []layerEntry
	fills      []Overlay
	pivot      []Overlay
	count      count
	connection string

	children   []*child
	childIndex map[childKey]*child
	batch      int

	// sequenceStates are the states Sequence picked for the instance being resolved;
	// madeStates keeps them per made model for the after-creating callbacks.
	sequenceStates []string
	madeStates     map[*orm.Model][]string

	presetDepth int
	err         error
}

func (f *Factory) newBuilder(t *orm.ModelType) *Builder {
	return &Builder{
		factory:    f,
		model:      t,
		definition: DefaultDefinition,
		childIndex: make(map[childKey]*child),
	}
}

// Model returns the model type being built
func (b *Builder) Model() *orm.ModelType {
	return b.model
}

// Err returns the first error recorded by this builder or any relation child.
func (b *Builder) Err() error {
	if b.err != nil {
		return b.err
	}
	for _, c := range b.children {
		if err := c.builder.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// ============================================================================
// Attributes
// ============================================================================

// Fill adds inline attributes. Inside a preset they join the state layer instead.
func (b *Builder) Fill(attrs orm.Attributes) *Builder {
	return b.FillFunc(Static(attrs))
}

// FillFunc adds inline attributes computed per instance.
func (b *Builder) FillFunc(fn Overlay) *Builder {
	if b.presetDepth > 0 {
		b.stateLayer = append(b.stateLayer, layerEntry{overlay: fn})
		return b
	}
	b.fills = append(b.fills, fn)
	return b
}

// FillPivot adds attributes for the pivot row written when this builder's models are
// attached through a belongs-to-many relation.
func (b *Builder) FillPivot(attrs orm.Attributes) *Builder {
	return b.FillPivotFunc(Static(attrs))
}

// FillPivotFunc adds pivot attributes computed per attached model; Scope.Related is that model.
func (b *Builder) FillPivotFunc(fn Overlay) *Builder {
	b.pivot = append(b.pivot, fn)
	return b
}

// State activates named states in order. Empty names are skipped; unknown names fail
// when the builder is made.
func (b *Builder) State(names ...string) *Builder {
	for _, name := range names {
		if name == "" {
			continue
		}
		b.stateLayer = append(b.stateLayer, layerEntry{state: name})
	}
	return b
}

// States is State for a slice
func (b *Builder) States(names []string) *Builder {
	return b.State(names...)
}

// Preset applies named presets immediately. An unknown name is recorded as an error.
func (b *Builder) Preset(names ...string) *Builder {
	for _, name := range names {
		fn, err := b.factory.registry.LookupPreset(b.model.Name, name)
		if err != nil {
			return b.fail(err)
		}
		b.presetDepth++
		fn(b)
		b.presetDepth--
	}
	return b
}

// Sequence adds an inline fill that takes the next value on every instance, wrapping
// around. Values are orm.Attributes, Overlay functions or state names. A state name
// contributes its attributes at the inline-fill layer, and its callbacks run for the
// instances that received it.
func (b *Builder) Sequence(values ...any) *Builder {
	overlays := make([]Overlay, 0, len(values))
	states := make([]string, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case orm.Attributes:
			overlays = append(overlays, Static(x))
		case map[string]any:
			overlays = append(overlays, Static(x))
		case Overlay:
			overlays = append(overlays, x)
		case func(*Scope) orm.Attributes:
			overlays = append(overlays, x)
		case string:
			overlays = append(overlays, b.stateOverlay(x))
			states[i] = x
		default:
			return b.fail(fmt.Errorf("%w: sequence value %T", ErrUnclassifiableArgument, v))
		}
	}
	if len(overlays) == 0 {
		return b
	}

	next := 0
	return b.FillFunc(func(s *Scope) orm.Attributes {
		i := next % len(overlays)
		next++
		if states[i] != "" {
			b.sequenceStates = append(b.sequenceStates, states[i])
		}
		return overlays[i](s)
	})
}

// stateOverlay resolves a state when evaluated; an unknown state yields no attributes
// and is recorded on the builder.
func (b *Builder) stateOverlay(name string) Overlay {
	return func(s *Scope) orm.Attributes {
		overlay, err := b.factory.registry.LookupState(b.model.Name, name)
		if err != nil {
			b.fail(err)
			return nil
		}
		return overlay(s)
	}
}

// ============================================================================
// Settings
// ============================================================================

// Times sets how many models a terminal call produces. Zero or less produces none.
func (b *Builder) Times(n int) *Builder {
	b.count = fixedCount(n)
	return b
}

// TimesFunc sets a count generator, evaluated once per terminal call.
func (b *Builder) TimesFunc(fn CountFunc) *Builder {
	b.count = count{set: true, fn: fn}
	return b
}

// Connection selects the named connection for this builder and, unless they select
// their own, every relation child.
func (b *Builder) Connection(name string) *Builder {
	b.connection = name
	return b
}

// As selects a named definition instead of the default one.
func (b *Builder) As(definition string) *Builder {
	b.definition = definition
	return b
}

// Tap calls fn with the builder.
func (b *Builder) Tap(fn func(*Builder)) *Builder {
	fn(b)
	return b
}

// Pipe returns fn's builder, or b when fn returns nil.
func (b *Builder) Pipe(fn func(*Builder) *Builder) *Builder {
	if nb := fn(b); nb != nil {
		return nb
	}
	return b
}

// When calls fn only when cond holds.
func (b *Builder) When(cond bool, fn func(*Builder)) *Builder {
	if cond {
		fn(b)
	}
	return b
}

// Odds calls fn with the given probability, as a fraction (0.25) or a percentage (25).
func (b *Builder) Odds(chance float64, fn func(*Builder)) *Builder {
	if chance > 1 {
		chance /= 100
	}
	return b.When(b.factory.faker.Float64Range(0, 1) < chance, fn)
}

// Apply classifies loose arguments and applies them to this builder: numbers set the
// count, maps fill attributes, functions tap or pipe, strings name presets or states.
func (b *Builder) Apply(args ...any) *Builder {
	cc := classifyContext{target: b.model.Name, registry: b.factory.registry}
	for _, a := range flattenArgs(args) {
		arg, err := classify(a, cc)
		if err != nil {
			return b.fail(err)
		}
		if arg.kind == argInstances {
			return b.fail(fmt.Errorf("%w: bound instances need a relation", ErrUnclassifiableArgument))
		}
		b = b.applyArgument(arg)
	}
	return b
}

// applyArgument applies one classified argument and returns the builder to continue
// with, which differs from b only after a pipe.
func (b *Builder) applyArgument(arg argument) *Builder {
	switch arg.kind {
	case argCount:
		b.count = arg.count
	case argAttributes:
		if arg.overlay != nil {
			b.FillFunc(arg.overlay)
		}
		if len(arg.attributes) > 0 {
			b.Fill(arg.attributes)
		}
		if len(arg.pivot) > 0 {
			b.FillPivot(arg.pivot)
		}
	case argTap:
		arg.tap(b)
	case argPipe:
		return b.Pipe(arg.pipe)
	case argPreset:
		b.Preset(arg.name)
	case argState:
		b.State(arg.name)
	}
	return b
}

// ============================================================================
// Relations
// ============================================================================

// With loads relations into the current batch. Arguments are classified as counts,
// attributes, states, presets, callbacks, bound instances or the relation path;
// dotted paths configure nested relations.
//
//	b.With(2, "departments", "active").With(3, "departments.employees")
func (b *Builder) With(args ...any) *Builder {
	if b.err != nil {
		return b
	}
	reqs, err := b.factory.expandRequests(b.model, b.batch, args)
	if err != nil {
		return b.fail(err)
	}
	for _, req := range reqs {
		if err := b.load(req); err != nil {
			return b.fail(err)
		}
	}
	return b
}

// AndWith starts a new batch, so relations already loaded get a separate child.
func (b *Builder) AndWith(args ...any) *Builder {
	b.batch++
	return b.With(args...)
}

// NewRequest resolves With arguments into a single request in the current batch.
func (b *Builder) NewRequest(args ...any) (*RelationRequest, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.factory.newRelationRequest(b.model, b.batch, args)
}

func (b *Builder) load(req *RelationRequest) error {
	if req.model.Name != b.model.Name {
		return &RelationNotFoundError{Model: b.model.Name, Candidates: []string{req.path}}
	}

	rel, related, err := b.factory.db.Schema().Related(b.model, req.RelationName())
	if err != nil {
		return err
	}
	method, err := loadMethodFor(rel)
	if err != nil {
		return err
	}

	c := b.child(method, rel, related, req.batch)
	if req.HasNesting() {
		nested, err := b.factory.nested(req)
		if err != nil {
			return err
		}
		return c.builder.load(nested)
	}

	for _, arg := range req.arguments {
		if arg.kind == argInstances {
			c.instances = append(c.instances, arg.instances...)
			c.bound = true
			continue
		}
		c.builder = c.builder.applyArgument(arg)
	}
	return c.builder.err
}

func (b *Builder) child(method loadMethod, rel *orm.Relation, related *orm.ModelType, batch int) *child {
	key := childKey{method: method, relation: rel.Name, batch: batch}
	if c, ok := b.childIndex[key]; ok {
		return c
	}
	c := &child{key: key, relation: rel, builder: b.factory.newBuilder(related)}
	b.childIndex[key] = c
	b.children = append(b.children, c)
	return c
}

// ============================================================================
// Terminal calls
// ============================================================================

// Make builds models without persisting them or their relations.
func (b *Builder) Make(ctx context.Context, attrs ...orm.Attributes) (orm.Collection, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	defer b.pinCount()()
	return b.make(ctx, buildOptions{attributes: mergeAttributes(attrs)})
}

// MakeOne builds a single model regardless of the configured count.
func (b *Builder) MakeOne(ctx context.Context, attrs ...orm.Attributes) (*orm.Model, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	one := count{}
	models, err := b.make(ctx, buildOptions{attributes: mergeAttributes(attrs), count: &one})
	if err != nil {
		return nil, err
	}
	return models.First(), nil
}

// Raw resolves attributes without constructing models.
func (b *Builder) Raw(ctx context.Context, attrs ...orm.Attributes) ([]orm.Attributes, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	defer b.pinCount()()

	opts := buildOptions{attributes: mergeAttributes(attrs)}
	n := b.amount(opts)
	out := make([]orm.Attributes, 0, n)
	for i := 0; i < n; i++ {
		resolved, err := b.resolveAttributes(ctx, opts, i)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	if err := b.err; err != nil {
		return nil, err
	}
	return out, nil
}

// Create builds and persists models together with every loaded relation.
func (b *Builder) Create(ctx context.Context, attrs ...orm.Attributes) (orm.Collection, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	return b.create(ctx, buildOptions{attributes: mergeAttributes(attrs)})
}

// CreateOne creates a single model regardless of the configured count.
func (b *Builder) CreateOne(ctx context.Context, attrs ...orm.Attributes) (*orm.Model, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	one := count{}
	models, err := b.create(ctx, buildOptions{attributes: mergeAttributes(attrs), count: &one})
	if err != nil {
		return nil, err
	}
	return models.First(), nil
}

// Lazy returns an attribute value that creates one model from this builder when
// attributes are resolved, standing in for its key.
func (b *Builder) Lazy(attrs ...orm.Attributes) LazyModel {
	return LazyModel{builder: b, attributes: mergeAttributes(attrs)}
}

// pinCount evaluates a count generator once and returns a func restoring it.
func (b *Builder) pinCount() func() {
	saved := b.count
	b.count = b.count.materialize(b.factory.faker)
	return func() { b.count = saved }
}

func (b *Builder) amount(opts buildOptions) int {
	if opts.count != nil {
		return opts.count.amount(b.factory.faker)
	}
	return b.count.amount(b.factory.faker)
}

// connectionFor is the builder's own connection, then the model type's pinned one,
// then the connection inherited from the parent.
func (b *Builder) connectionFor(opts buildOptions) string {
	switch {
	case b.connection != "":
		return b.connection
	case b.model.Connection != "":
		return b.model.Connection
	default:
		return opts.connection
	}
}

// callbackNames are the definition name followed by each active state
func (b *Builder) callbackNames() []string {
	names := []string{b.definition}
	for _, e := range b.stateLayer {
		if e.state != "" {
			names = append(names, e.state)
		}
	}
	return names
}

// callbackNamesFor adds the sequence states m received to callbackNames.
func (b *Builder) callbackNamesFor(m *orm.Model) []string {
	return append(b.callbackNames(), b.madeStates[m]...)
}

func (b *Builder) make(ctx context.Context, opts buildOptions) (orm.Collection, error) {
	n := b.amount(opts)
	conn := b.connectionFor(opts)
	b.madeStates = nil

	models := make(orm.Collection, 0, n)
	for i := 0; i < n; i++ {
		b.sequenceStates = nil
		attrs, err := b.resolveAttributes(ctx, opts, i)
		if err != nil {
			return nil, err
		}
		if b.err != nil {
			return nil, b.err
		}

		m := b.model.New(attrs)
		if conn != "" {
			m.SetConnection(conn)
		}
		if len(b.sequenceStates) > 0 {
			if b.madeStates == nil {
				b.madeStates = make(map[*orm.Model][]string)
			}
			b.madeStates[m] = b.sequenceStates
		}
		for _, cb := range b.factory.registry.afterMakingCallbacks(b.model.Name, b.callbackNamesFor(m)) {
			if err := cb(ctx, m); err != nil {
				return nil, fmt.Errorf("after making %s: %w", b.model.Name, err)
			}
		}
		models = append(models, m)
	}
	return models, nil
}

func (b *Builder) create(ctx context.Context, opts buildOptions) (models orm.Collection, err error) {
	if opts.count == nil {
		defer b.pinCount()()
	}

	ctx, span := startCreateSpan(ctx, b.model.Name)
	defer func() { endCreateSpan(span, len(models), err) }()

	made, err := b.make(ctx, opts)
	if err != nil {
		return nil, err
	}

	conn := b.connectionFor(opts)
	for _, m := range made {
		if err := b.assemble(ctx, m, conn); err != nil {
			return nil, err
		}
	}

	b.factory.history.track(b.model.Name, made)
	recordCreated(ctx, b.model.Name, len(made))
	b.factory.logger.Debug("models created",
		slog.String("model", b.model.Name),
		slog.Int("count", len(made)),
		slog.String("connection", conn))
	return made, nil
}

func mergeAttributes(attrs []orm.Attributes) orm.Attributes {
	return orm.Attributes{}.Merge(attrs...)
}
