package factory

import (
	"log/slog"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/forgo/modelfactory/pkg/orm"
)

// Factory hands out builders over one DB and Registry.
// A Factory may be shared between goroutines; the builders it returns may not.
type Factory struct {
	db       *orm.DB
	registry *Registry
	faker    *gofakeit.Faker
	logger   *slog.Logger
	history  *History
}

// Option configures a Factory
type Option func(*Factory)

// WithFaker sets the faker passed to every overlay.
func WithFaker(faker *gofakeit.Faker) Option {
	return func(f *Factory) {
		if faker != nil {
			f.faker = faker
		}
	}
}

// WithSeed seeds a new faker so generated attributes are reproducible.
func WithSeed(seed int64) Option {
	return func(f *Factory) {
		f.faker = gofakeit.New(seed)
	}
}

// WithLogger sets the logger; the default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates a Factory persisting through db with definitions from registry.
func New(db *orm.DB, registry *Registry, opts ...Option) *Factory {
	f := &Factory{
		db:       db,
		registry: registry,
		logger:   slog.New(slog.DiscardHandler),
		history:  NewHistory(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.faker == nil {
		f.faker = gofakeit.New(0)
	}
	return f
}

// Of returns a builder for model with args applied as by Builder.Apply.
// An unknown model is reported by the builder's terminal calls.
func (f *Factory) Of(model string, args ...any) *Builder {
	t, err := f.db.Schema().Type(model)
	if err != nil {
		b := f.newBuilder(&orm.ModelType{Name: model})
		b.err = err
		return b
	}
	b := f.newBuilder(t)
	if len(args) == 0 {
		return b
	}
	return b.Apply(args...)
}

// DB returns the DB models are persisted through
func (f *Factory) DB() *orm.DB {
	return f.db
}

// Registry returns the registry definitions are read from
func (f *Factory) Registry() *Registry {
	return f.registry
}

// Faker returns the faker passed to overlays
func (f *Factory) Faker() *gofakeit.Faker {
	return f.faker
}

// History returns the record of models created through this factory
func (f *Factory) History() *History {
	return f.history
}

// Latest returns a Lazy attribute value resolving to the key of the most recently
// created model of the given type, or nil when none exists yet.
func (f *Factory) Latest(model string) Lazy {
	return func(orm.Attributes) any {
		if m := f.history.Last(model); m != nil {
			return m.Key()
		}
		return nil
	}
}
