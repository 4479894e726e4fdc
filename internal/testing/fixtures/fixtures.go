// Package fixtures provides the test domain used across the model factory's tests.
//
// The domain is a small company graph: companies own departments, divisions and
// customers, departments and divisions employ users through pivot tables, and
// companies carry a polymorphic logo.
//
// Usage:
//
//	f := fixtures.New(t)
//	company := fixtures.CreateOne(t, f.Of("Company").With("owner"))
package fixtures

import (
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/forgo/modelfactory/internal/testing/helpers"
	"github.com/forgo/modelfactory/pkg/database"
	"github.com/forgo/modelfactory/pkg/factory"
	"github.com/forgo/modelfactory/pkg/orm"
)

// Password is the plain-text password every fixture user is created with.
const Password = "secret"

var (
	hashOnce sync.Once
	hash     string
)

// passwordHash hashes Password once per test binary
func passwordHash() string {
	hashOnce.Do(func() {
		b, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
		if err != nil {
			panic("fixtures: failed to hash password: " + err.Error())
		}
		hash = string(b)
	})
	return hash
}

// ============================================================================
// Schema
// ============================================================================

// Schema returns a fresh schema of the test domain.
func Schema() *orm.Schema {
	return orm.NewSchema(
		&orm.ModelType{Name: "User", Table: "users"},
		&orm.ModelType{Name: "Company", Table: "companies", Relations: []orm.Relation{
			orm.BelongsTo("owner", "User", "owner_id"),
			orm.HasMany("customers", "Customer", "company_id"),
			orm.HasMany("departments", "Department", "company_id"),
			orm.HasMany("divisions", "Division", "company_id"),
			orm.MorphOne("logo", "Image", "imageable"),
			orm.MorphMany("images", "Image", "imageable"),
		}},
		&orm.ModelType{Name: "Department", Table: "departments", Relations: []orm.Relation{
			orm.BelongsTo("company", "Company", "company_id"),
			orm.BelongsTo("manager", "User", "manager_id"),
			orm.BelongsToMany("employees", "User", "employees", "department_id", "user_id"),
		}},
		&orm.ModelType{Name: "Division", Table: "divisions", Relations: []orm.Relation{
			orm.BelongsTo("company", "Company", "company_id"),
			orm.BelongsTo("manager", "User", "manager_id"),
			orm.BelongsToMany("employees", "User", "division_employees", "division_id", "user_id"),
		}},
		&orm.ModelType{Name: "Customer", Table: "customers", Relations: []orm.Relation{
			orm.BelongsTo("company", "Company", "company_id"),
		}},
		&orm.ModelType{Name: "Image", Table: "images", Relations: []orm.Relation{
			orm.MorphTo("imageable", "imageable"),
		}},
	)
}

// ============================================================================
// Registry
// ============================================================================

// Registry returns a fresh registry with definitions for every domain model,
// the Customer "happy" state, the Department "active" and "flagship" states and
// the Company "enterprise" preset.
func Registry() *factory.Registry {
	r := factory.NewRegistry()

	r.Define("User", func(s *factory.Scope) orm.Attributes {
		return orm.Attributes{
			"name":     s.Faker.Name(),
			"email":    s.Faker.Email(),
			"password": passwordHash(),
		}
	})

	r.Define("Company", func(s *factory.Scope) orm.Attributes {
		return orm.Attributes{"name": s.Faker.Company()}
	})

	r.Define("Department", func(s *factory.Scope) orm.Attributes {
		return orm.Attributes{
			"name":     s.Faker.JobDescriptor() + " " + s.Faker.JobLevel(),
			"active":   0,
			"flagship": 0,
		}
	})
	must(r.State("Department", "active", factory.Static(orm.Attributes{"active": 1})))
	must(r.State("Department", "flagship", factory.Static(orm.Attributes{"flagship": 1})))

	r.Define("Division", func(s *factory.Scope) orm.Attributes {
		return orm.Attributes{"name": s.Faker.City()}
	})

	r.Define("Customer", func(s *factory.Scope) orm.Attributes {
		return orm.Attributes{
			"name":         s.Faker.Name(),
			"satisfaction": 3,
		}
	})
	must(r.State("Customer", "happy", factory.Static(orm.Attributes{"satisfaction": 5})))

	r.Define("Image", func(s *factory.Scope) orm.Attributes {
		return orm.Attributes{"url": s.Faker.URL()}
	})

	must(r.Preset("Company", "enterprise", func(b *factory.Builder) {
		b.Fill(orm.Attributes{"name": "Enterprise Inc"}).
			With("owner").
			With(2, "divisions")
	}))

	return r
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// ============================================================================
// Factory
// ============================================================================

// Options customizes New
type Options struct {
	// Stores maps connection names to stores; defaults to one memory store named "default".
	Stores map[string]database.Store

	// DefaultConnection overrides orm.DefaultConnection.
	DefaultConnection string

	// Seed makes generated attributes reproducible; zero picks a random seed.
	Seed int64

	// Registry replaces the fixture registry.
	Registry *factory.Registry
}

// New creates a factory over the test domain.
func New(t testing.TB, opts ...func(*Options)) *factory.Factory {
	t.Helper()

	o := &Options{Seed: 42}
	for _, fn := range opts {
		fn(o)
	}
	if len(o.Stores) == 0 {
		o.Stores = map[string]database.Store{orm.DefaultConnection: database.NewMemoryStore()}
	}
	if o.Registry == nil {
		o.Registry = Registry()
	}

	logger := helpers.NewTestLogger(t)
	dbOpts := []orm.Option{orm.WithLogger(logger)}
	for name, store := range o.Stores {
		dbOpts = append(dbOpts, orm.WithStore(name, store))
	}
	if o.DefaultConnection != "" {
		dbOpts = append(dbOpts, orm.WithDefaultConnection(o.DefaultConnection))
	}

	return factory.New(orm.New(Schema(), dbOpts...), o.Registry,
		factory.WithSeed(o.Seed),
		factory.WithLogger(logger),
	)
}

// WithStore sets the store of a connection
func WithStore(name string, store database.Store) func(*Options) {
	return func(o *Options) {
		if o.Stores == nil {
			o.Stores = make(map[string]database.Store)
		}
		o.Stores[name] = store
	}
}

// WithRegistry replaces the fixture registry
func WithRegistry(r *factory.Registry) func(*Options) {
	return func(o *Options) {
		o.Registry = r
	}
}

// ============================================================================
// Builder Helpers
// ============================================================================

// Create runs b.Create and fails the test on error.
func Create(t testing.TB, b *factory.Builder, attrs ...orm.Attributes) orm.Collection {
	t.Helper()
	models, err := b.Create(helpers.Ctx(t), attrs...)
	if err != nil {
		t.Fatalf("fixtures: failed to create %s: %v", b.Model().Name, err)
	}
	return models
}

// CreateOne runs b.CreateOne and fails the test on error.
func CreateOne(t testing.TB, b *factory.Builder, attrs ...orm.Attributes) *orm.Model {
	t.Helper()
	m, err := b.CreateOne(helpers.Ctx(t), attrs...)
	if err != nil {
		t.Fatalf("fixtures: failed to create %s: %v", b.Model().Name, err)
	}
	return m
}

// Make runs b.Make and fails the test on error.
func Make(t testing.TB, b *factory.Builder, attrs ...orm.Attributes) orm.Collection {
	t.Helper()
	models, err := b.Make(helpers.Ctx(t), attrs...)
	if err != nil {
		t.Fatalf("fixtures: failed to make %s: %v", b.Model().Name, err)
	}
	return models
}
