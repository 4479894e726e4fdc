package factory_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/forgo/modelfactory/internal/testing/fixtures"
	"github.com/forgo/modelfactory/internal/testing/helpers"
	"github.com/forgo/modelfactory/pkg/database"
	"github.com/forgo/modelfactory/pkg/factory"
	"github.com/forgo/modelfactory/pkg/orm"
)

/*
FEATURE: Fixture builder
DOMAIN: Test data

ACCEPTANCE CRITERIA:
===================

AC-BUILD-001: Attribute Precedence
  GIVEN a definition, states and inline fills for one attribute
  WHEN a model is made
  THEN call-site attributes beat inline fills, which beat states, which beat the definition

AC-BUILD-002: Skipped Relations
  GIVEN a relation requested with an explicit count of zero
  WHEN the parent is created
  THEN no related model is created

AC-BUILD-003: Batches
  GIVEN the same relation loaded twice with AndWith
  WHEN the parent is created
  THEN each batch is created with its own settings

AC-BUILD-004: Belongs-To Is Single
  GIVEN a belongs-to relation requested with a count above one
  WHEN the child is created
  THEN exactly one parent is created and associated

AC-BUILD-005: Belongs-To-Many Top-Up
  GIVEN bound instances fewer than the requested count
  WHEN the parent is created
  THEN fresh models fill the gap and all are attached

AC-BUILD-006: Errors Before Persistence
  GIVEN an invalid relation name
  WHEN Create is called
  THEN an unresolvable relation error is returned
  AND nothing is written
*/

// ============================================================================
// Basics
// ============================================================================

func TestBuilder_CreateOne(t *testing.T) {
	f := fixtures.New(t)

	user := fixtures.CreateOne(t, f.Of("User"))

	assert.True(t, user.Exists())
	assert.NotNil(t, user.Key())
	assert.NotEmpty(t, user.Get("name"))
	assert.NotEmpty(t, user.Get("email"))

	hash, ok := user.Get("password").(string)
	require.True(t, ok)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(fixtures.Password)))

	helpers.AssertCount(t, f.DB(), "User", 1)
	assert.Equal(t, orm.Collection{user}, f.History().All("User"))
}

func TestBuilder_Times(t *testing.T) {
	f := fixtures.New(t)

	users := fixtures.Create(t, f.Of("User").Times(3))
	assert.Len(t, users, 3)

	users = fixtures.Create(t, f.Of("User", 2))
	assert.Len(t, users, 2)

	users = fixtures.Create(t, f.Of("User").Times(0))
	assert.Empty(t, users)

	helpers.AssertCount(t, f.DB(), "User", 5)
}

func TestBuilder_CreateOneIgnoresCount(t *testing.T) {
	f := fixtures.New(t)

	fixtures.CreateOne(t, f.Of("User").Times(4))
	helpers.AssertCount(t, f.DB(), "User", 1)
}

func TestBuilder_MakeDoesNotPersist(t *testing.T) {
	f := fixtures.New(t)

	models := fixtures.Make(t, f.Of("Company").Times(2).With("owner").With(2, "departments"))

	require.Len(t, models, 2)
	for _, m := range models {
		assert.False(t, m.Exists())
		assert.Nil(t, m.Key())
	}
	helpers.AssertCount(t, f.DB(), "Company", 0)
	helpers.AssertCount(t, f.DB(), "User", 0)
	helpers.AssertCount(t, f.DB(), "Department", 0)
	assert.Empty(t, f.History().All("Company"))
}

func TestBuilder_Raw(t *testing.T) {
	f := fixtures.New(t)

	raw, err := f.Of("Customer").Times(2).State("happy").Raw(helpers.Ctx(t), orm.Attributes{"name": "Ada"})
	require.NoError(t, err)

	require.Len(t, raw, 2)
	for _, attrs := range raw {
		assert.Equal(t, 5, attrs["satisfaction"])
		assert.Equal(t, "Ada", attrs["name"])
	}
	helpers.AssertCount(t, f.DB(), "Customer", 0)
}

func TestBuilder_NamedDefinition(t *testing.T) {
	reg := fixtures.Registry()
	reg.DefineAs("User", "system", factory.Static(orm.Attributes{"name": "System", "email": "system@example.com"}))
	f := fixtures.New(t, fixtures.WithRegistry(reg))

	user := fixtures.CreateOne(t, f.Of("User").As("system"))
	assert.Equal(t, "System", user.Get("name"))

	_, err := f.Of("User").As("ghost").Create(helpers.Ctx(t))
	assert.True(t, errors.Is(err, factory.ErrUnknownDefinition))
}

// ============================================================================
// Attribute precedence
// ============================================================================

func TestBuilder_AttributePrecedence(t *testing.T) {
	// AC-BUILD-001: Attribute Precedence
	f := fixtures.New(t)

	tests := []struct {
		name    string
		builder *factory.Builder
		attrs   []orm.Attributes
		want    int64
	}{
		{"definition", f.Of("Customer"), nil, 3},
		{"state beats definition", f.Of("Customer").State("happy"), nil, 5},
		{"inline beats state", f.Of("Customer").State("happy").Fill(orm.Attributes{"satisfaction": 7}), nil, 7},
		{"inline beats later state", f.Of("Customer").Fill(orm.Attributes{"satisfaction": 7}).State("happy"), nil, 7},
		{"call site beats inline", f.Of("Customer").Fill(orm.Attributes{"satisfaction": 7}), []orm.Attributes{{"satisfaction": 9}}, 9},
		{"apply map is inline", f.Of("Customer", "happy", orm.Attributes{"satisfaction": 1}), nil, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			customer := fixtures.CreateOne(t, tt.builder, tt.attrs...)
			assert.Equal(t, tt.want, helpers.Int64(t, customer.Get("satisfaction")))
		})
	}
}

func TestBuilder_PresetFillsJoinStateLayer(t *testing.T) {
	reg := fixtures.Registry()
	require.NoError(t, reg.Preset("Customer", "vip", func(b *factory.Builder) {
		b.Fill(orm.Attributes{"satisfaction": 8})
	}))
	f := fixtures.New(t, fixtures.WithRegistry(reg))

	later := fixtures.CreateOne(t, f.Of("Customer").Preset("vip").State("happy"))
	assert.Equal(t, int64(5), helpers.Int64(t, later.Get("satisfaction")), "the later state wins")

	earlier := fixtures.CreateOne(t, f.Of("Customer").State("happy").Preset("vip"))
	assert.Equal(t, int64(8), helpers.Int64(t, earlier.Get("satisfaction")), "the later preset fill wins")

	inline := fixtures.CreateOne(t, f.Of("Customer").Fill(orm.Attributes{"satisfaction": 1}).Preset("vip"))
	assert.Equal(t, int64(1), helpers.Int64(t, inline.Get("satisfaction")), "inline fills beat preset fills")
}

func TestBuilder_EmptyStateIsSkipped(t *testing.T) {
	f := fixtures.New(t)

	dept := fixtures.CreateOne(t, f.Of("Department").State("", "active").States([]string{"", "flagship"}))
	assert.Equal(t, int64(1), helpers.Int64(t, dept.Get("active")))
	assert.Equal(t, int64(1), helpers.Int64(t, dept.Get("flagship")))
}

func TestBuilder_Sequence(t *testing.T) {
	f := fixtures.New(t)

	customers := fixtures.Create(t, f.Of("Customer").Times(3).Sequence(orm.Attributes{"satisfaction": 1}, "happy"))

	require.Len(t, customers, 3)
	got := make([]int64, 0, 3)
	for _, c := range customers {
		got = append(got, helpers.Int64(t, c.Get("satisfaction")))
	}
	assert.Equal(t, []int64{1, 5, 1}, got)
}

func TestBuilder_SequenceStateCallbacks(t *testing.T) {
	reg := fixtures.Registry()

	var made, created []string
	reg.AfterMaking("Customer", "happy", func(_ context.Context, m *orm.Model) error {
		made = append(made, m.Get("name").(string))
		return nil
	})
	reg.AfterCreating("Customer", "happy", func(_ context.Context, m *orm.Model) error {
		created = append(created, m.Get("name").(string))
		return nil
	})
	f := fixtures.New(t, fixtures.WithRegistry(reg))

	customers := fixtures.Create(t, f.Of("Customer").Times(3).Sequence(orm.Attributes{"satisfaction": 1}, "happy"))

	require.Len(t, customers, 3)
	happy := customers[1].Get("name").(string)
	assert.Equal(t, []string{happy}, made, "only the instance that received the state")
	assert.Equal(t, []string{happy}, created)
}

func TestBuilder_SequenceRejectsUnknownShapes(t *testing.T) {
	f := fixtures.New(t)

	_, err := f.Of("Customer").Sequence(42).Create(helpers.Ctx(t))
	assert.True(t, errors.Is(err, factory.ErrUnclassifiableArgument))
}

func TestBuilder_FillFuncSeesScope(t *testing.T) {
	f := fixtures.New(t)

	users := fixtures.Create(t, f.Of("User").Times(2).FillFunc(func(s *factory.Scope) orm.Attributes {
		return orm.Attributes{"email": fmt.Sprintf("user%d@example.com", s.Index)}
	}))

	require.Len(t, users, 2)
	assert.Equal(t, "user0@example.com", users[0].Get("email"))
	assert.Equal(t, "user1@example.com", users[1].Get("email"))
}

// ============================================================================
// Generated values
// ============================================================================

func TestBuilder_BuilderValueResolvesToKey(t *testing.T) {
	f := fixtures.New(t)

	dept := fixtures.CreateOne(t, f.Of("Department", orm.Attributes{"company_id": f.Of("Company")}))

	company := f.History().Last("Company")
	require.NotNil(t, company)
	assert.Equal(t, company.Key(), dept.Get("company_id"))
}

func TestBuilder_LazyModel(t *testing.T) {
	f := fixtures.New(t)

	dept := fixtures.CreateOne(t, f.Of("Department").Fill(orm.Attributes{
		"company_id": f.Of("Company").Lazy(orm.Attributes{"name": "Lazy Co"}),
	}))

	company, err := f.DB().Find(helpers.Ctx(t), "Company", dept.Get("company_id"))
	require.NoError(t, err)
	assert.Equal(t, "Lazy Co", company.Get("name"))
}

func TestBuilder_LazySeesOtherAttributes(t *testing.T) {
	f := fixtures.New(t)

	user := fixtures.CreateOne(t, f.Of("User").Fill(orm.Attributes{
		"name": "Grace Hopper",
		"email": factory.Lazy(func(a orm.Attributes) any {
			return strings.ToLower(strings.ReplaceAll(a["name"].(string), " ", ".")) + "@example.com"
		}),
	}))

	assert.Equal(t, "grace.hopper@example.com", user.Get("email"))
}

func TestBuilder_ModelValueResolvesToKey(t *testing.T) {
	f := fixtures.New(t)
	company := fixtures.CreateOne(t, f.Of("Company"))

	customer := fixtures.CreateOne(t, f.Of("Customer"), orm.Attributes{"company_id": company})
	assert.Equal(t, company.Key(), customer.Get("company_id"))
}

func TestFactory_Latest(t *testing.T) {
	f := fixtures.New(t)

	raw, err := f.Of("Customer").Fill(orm.Attributes{"company_id": f.Latest("Company")}).Raw(helpers.Ctx(t))
	require.NoError(t, err)
	assert.Nil(t, raw[0]["company_id"])

	fixtures.Create(t, f.Of("Company").Times(2))
	last := f.History().Last("Company")

	customer := fixtures.CreateOne(t, f.Of("Customer").Fill(orm.Attributes{"company_id": f.Latest("Company")}))
	assert.Equal(t, last.Key(), customer.Get("company_id"))

	f.History().Reset()
	assert.Nil(t, f.History().Last("Company"))
}

// ============================================================================
// Counts
// ============================================================================

func TestBuilder_CountGeneratorEvaluatedPerCall(t *testing.T) {
	f := fixtures.New(t)
	b := f.Of("User").TimesFunc(factory.Cycle(1, 2))

	first := fixtures.Create(t, b)
	second := fixtures.Create(t, b)

	assert.Len(t, first, 1)
	assert.Len(t, second, 2)
}

func TestBuilder_RelationCountGeneratorPerParent(t *testing.T) {
	f := fixtures.New(t)

	fixtures.Create(t, f.Of("Company").Times(2).With(factory.Cycle(1, 3), "departments"))
	helpers.AssertCount(t, f.DB(), "Department", 4)

	fixtures.Create(t, f.Of("Company").Times(2).With(factory.Cycle(0, 2), "customers"))
	helpers.AssertCount(t, f.DB(), "Customer", 2)
}

func TestBuilder_BetweenCount(t *testing.T) {
	f := fixtures.New(t)

	users := fixtures.Create(t, f.Of("User").TimesFunc(factory.Between(2, 4)))
	assert.GreaterOrEqual(t, len(users), 2)
	assert.LessOrEqual(t, len(users), 4)
}

func TestBuilder_BetweenCountFollowsSeed(t *testing.T) {
	counts := func() []int {
		f := fixtures.New(t)
		companies := fixtures.Create(t, f.Of("Company").Times(5).With(factory.Between(1, 20), "departments"))
		out := make([]int, 0, len(companies))
		for _, c := range companies {
			out = append(out, len(helpers.Related(t, f.DB(), c, "departments")))
		}
		return out
	}

	assert.Equal(t, counts(), counts(), "factories seeded alike create the same relation counts")
}

func TestBuilder_ZeroCountSkipsRelation(t *testing.T) {
	// AC-BUILD-002: Skipped Relations
	f := fixtures.New(t)

	company := fixtures.CreateOne(t, f.Of("Company").With(0, "owner").With(0, "departments").With(0, "logo"))

	assert.Nil(t, company.Get("owner_id"))
	helpers.AssertCount(t, f.DB(), "User", 0)
	helpers.AssertCount(t, f.DB(), "Department", 0)
	helpers.AssertCount(t, f.DB(), "Image", 0)
}

// ============================================================================
// Relations
// ============================================================================

func TestBuilder_BelongsTo(t *testing.T) {
	// AC-BUILD-004: Belongs-To Is Single
	f := fixtures.New(t)

	dept := fixtures.CreateOne(t, f.Of("Department").With("company").With(3, "manager"))

	helpers.AssertCount(t, f.DB(), "Company", 1)
	helpers.AssertCount(t, f.DB(), "User", 1)

	company := helpers.Related(t, f.DB(), dept, "company")
	require.Len(t, company, 1)
	assert.Equal(t, company[0].Key(), dept.Get("company_id"))
	helpers.AssertRelatedCount(t, f.DB(), dept, "manager", 1)
}

func TestBuilder_BelongsToSecondBatchIgnored(t *testing.T) {
	f := fixtures.New(t)

	dept := fixtures.CreateOne(t, f.Of("Department").
		With("manager", orm.Attributes{"name": "First"}).
		AndWith("manager", orm.Attributes{"name": "Second"}))

	managers := helpers.Related(t, f.DB(), dept, "manager")
	require.Len(t, managers, 1)
	assert.Equal(t, "First", managers[0].Get("name"))
	helpers.AssertCount(t, f.DB(), "User", 1)
}

func TestBuilder_HasMany(t *testing.T) {
	f := fixtures.New(t)

	company := fixtures.CreateOne(t, f.Of("Company").With(3, "departments").With(2, "customers", "happy"))

	helpers.AssertCount(t, f.DB(), "Department", 3, "company_id", company.Key())
	helpers.AssertCount(t, f.DB(), "Customer", 2, "company_id", company.Key(), "satisfaction", 5)
	helpers.AssertRelatedCount(t, f.DB(), company, "departments", 3)
}

func TestBuilder_HasManyScopeSeesParent(t *testing.T) {
	f := fixtures.New(t)

	company := fixtures.CreateOne(t, f.Of("Company", orm.Attributes{"name": "Initech"}).
		With(2, "departments", func(b *factory.Builder) {
			b.FillFunc(func(s *factory.Scope) orm.Attributes {
				return orm.Attributes{"name": fmt.Sprintf("%s %d", s.Parent.Get("name"), s.Index)}
			})
		}))

	depts := helpers.Related(t, f.DB(), company, "departments")
	require.Len(t, depts, 2)
	assert.Equal(t, "Initech 0", depts[0].Get("name"))
	assert.Equal(t, "Initech 1", depts[1].Get("name"))
}

func TestBuilder_MorphOne(t *testing.T) {
	f := fixtures.New(t)

	company := fixtures.CreateOne(t, f.Of("Company").With("logo").With(2, "images"))

	helpers.AssertCount(t, f.DB(), "Image", 3, "imageable_id", company.Key(), "imageable_type", "Company")

	logo := helpers.Related(t, f.DB(), company, "logo")
	require.NotEmpty(t, logo)

	owner := helpers.Related(t, f.DB(), logo[0], "imageable")
	require.Len(t, owner, 1)
	assert.Equal(t, company.Key(), owner[0].Key())
}

func TestBuilder_MorphToIsUnsupported(t *testing.T) {
	f := fixtures.New(t)

	_, err := f.Of("Image").With("imageable").Create(helpers.Ctx(t))
	assert.True(t, errors.Is(err, factory.ErrUnsupportedRelation))
	helpers.AssertCount(t, f.DB(), "Image", 0)
}

func TestBuilder_BelongsToMany(t *testing.T) {
	f := fixtures.New(t)

	dept := fixtures.CreateOne(t, f.Of("Department").With(3, "employees", orm.Attributes{"pivot.started_at": "2024-01-01"}))

	employees := helpers.Related(t, f.DB(), dept, "employees")
	require.Len(t, employees, 3)
	for _, e := range employees {
		assert.Equal(t, "2024-01-01", e.Pivot()["started_at"])
		assert.Equal(t, dept.Key(), e.Pivot()["department_id"])
	}
	helpers.AssertCount(t, f.DB(), "User", 3)
}

func TestBuilder_PivotEvaluatedPerRelatedModel(t *testing.T) {
	f := fixtures.New(t)

	dept := fixtures.CreateOne(t, f.Of("Department").With(2, "employees", func(b *factory.Builder) {
		b.FillPivotFunc(func(s *factory.Scope) orm.Attributes {
			return orm.Attributes{"started_at": fmt.Sprintf("joined-%v", s.Related.Key())}
		})
	}))

	employees := helpers.Related(t, f.DB(), dept, "employees")
	require.Len(t, employees, 2)
	for _, e := range employees {
		assert.Equal(t, fmt.Sprintf("joined-%v", e.Key()), e.Pivot()["started_at"])
	}
}

func TestBuilder_BelongsToManyTopUp(t *testing.T) {
	// AC-BUILD-005: Belongs-To-Many Top-Up
	f := fixtures.New(t)
	users := fixtures.Create(t, f.Of("User").Times(2))

	dept := fixtures.CreateOne(t, f.Of("Department").With(4, "employees", users))

	helpers.AssertRelatedCount(t, f.DB(), dept, "employees", 4)
	helpers.AssertCount(t, f.DB(), "User", 4)
}

func TestBuilder_BelongsToManyTruncates(t *testing.T) {
	f := fixtures.New(t)
	users := fixtures.Create(t, f.Of("User").Times(3))

	dept := fixtures.CreateOne(t, f.Of("Department").With(1, "employees", users))

	employees := helpers.Related(t, f.DB(), dept, "employees")
	require.Len(t, employees, 1)
	assert.Equal(t, users[0].Key(), employees[0].Key())
	helpers.AssertCount(t, f.DB(), "User", 3)
}

func TestBuilder_BoundInstancesWithoutCount(t *testing.T) {
	f := fixtures.New(t)
	users := fixtures.Create(t, f.Of("User").Times(2))

	dept := fixtures.CreateOne(t, f.Of("Department").With("employees", users))

	helpers.AssertRelatedCount(t, f.DB(), dept, "employees", 2)
	helpers.AssertCount(t, f.DB(), "User", 2)
}

func TestBuilder_BoundBelongsTo(t *testing.T) {
	f := fixtures.New(t)
	boss := fixtures.CreateOne(t, f.Of("User"))

	dept := fixtures.CreateOne(t, f.Of("Department").With("manager", boss))

	assert.Equal(t, boss.Key(), dept.Get("manager_id"))
	helpers.AssertCount(t, f.DB(), "User", 1)
}

func TestBuilder_EmptyBoundBelongsToCreatesParent(t *testing.T) {
	f := fixtures.New(t)

	company := fixtures.CreateOne(t, f.Of("Company").With(orm.Collection{}, "owner"))

	require.NotNil(t, company.Get("owner_id"))
	helpers.AssertCount(t, f.DB(), "User", 1)
}

func TestBuilder_BoundHasManyIsRepointed(t *testing.T) {
	f := fixtures.New(t)
	customer := fixtures.CreateOne(t, f.Of("Customer"))
	unsaved := fixtures.Make(t, f.Of("Customer"))

	company := fixtures.CreateOne(t, f.Of("Company").With("customers", customer, unsaved))

	assert.Equal(t, company.Key(), customer.Get("company_id"))
	assert.True(t, unsaved[0].Exists())
	helpers.AssertCount(t, f.DB(), "Customer", 2, "company_id", company.Key())
}

func TestBuilder_AndWithBatches(t *testing.T) {
	// AC-BUILD-003: Batches
	f := fixtures.New(t)

	company := fixtures.CreateOne(t, f.Of("Company").
		With(2, "departments").
		AndWith(1, "departments", "active").
		AndWith("departments.manager"))

	db := f.DB()
	helpers.AssertCount(t, db, "Department", 4, "company_id", company.Key())
	helpers.AssertCount(t, db, "Department", 1, "company_id", company.Key(), "active", 1)
	helpers.AssertCount(t, db, "Department", 3, "company_id", company.Key(), "manager_id", nil)
	helpers.AssertCount(t, db, "User", 1)
}

func TestBuilder_NestedRelations(t *testing.T) {
	f := fixtures.New(t)

	company := fixtures.CreateOne(t, f.Of("Company").
		With(2, "departments").
		With(3, "departments.employees").
		With("departments.manager"))

	depts := helpers.Related(t, f.DB(), company, "departments")
	require.Len(t, depts, 2)
	for _, d := range depts {
		helpers.AssertRelatedCount(t, f.DB(), d, "employees", 3)
		assert.NotNil(t, d.Get("manager_id"))
	}
	helpers.AssertCount(t, f.DB(), "User", 8)
}

func TestBuilder_NestedBoundInstances(t *testing.T) {
	f := fixtures.New(t)
	users := fixtures.Create(t, f.Of("User").Times(2))

	company := fixtures.CreateOne(t, f.Of("Company").With("departments.employees", users))

	depts := helpers.Related(t, f.DB(), company, "departments")
	require.Len(t, depts, 1)
	helpers.AssertRelatedCount(t, f.DB(), depts[0], "employees", 2)
	helpers.AssertCount(t, f.DB(), "User", 2)
}

func TestBuilder_RelationsMap(t *testing.T) {
	f := fixtures.New(t)

	company := fixtures.CreateOne(t, f.Of("Company").With(factory.Relations{
		"owner":               nil,
		"departments":         2,
		"departments.manager": []any{orm.Attributes{"name": "Manager"}},
	}))

	assert.NotNil(t, company.Get("owner_id"))
	helpers.AssertCount(t, f.DB(), "Department", 2)
	helpers.AssertCount(t, f.DB(), "User", 2, "name", "Manager")
	helpers.AssertCount(t, f.DB(), "User", 3)
}

func TestBuilder_StringSliceLoadsEach(t *testing.T) {
	f := fixtures.New(t)

	dept := fixtures.CreateOne(t, f.Of("Department").With([]string{"company", "manager"}))

	assert.NotNil(t, dept.Get("company_id"))
	assert.NotNil(t, dept.Get("manager_id"))
}

func TestBuilder_NewRequest(t *testing.T) {
	f := fixtures.New(t)
	b := f.Of("Company")

	req, err := b.NewRequest(2, "departments", "active")
	require.NoError(t, err)
	assert.Equal(t, "departments", req.Path())

	company := fixtures.CreateOne(t, b.With(req))
	helpers.AssertCount(t, f.DB(), "Department", 2, "company_id", company.Key(), "active", 1)
}

func TestBuilder_PresetOnRelation(t *testing.T) {
	f := fixtures.New(t)

	dept := fixtures.CreateOne(t, f.Of("Department").With("company", "enterprise"))

	company, err := f.DB().Find(helpers.Ctx(t), "Company", dept.Get("company_id"))
	require.NoError(t, err)
	assert.Equal(t, "Enterprise Inc", company.Get("name"))
	assert.NotNil(t, company.Get("owner_id"))
	helpers.AssertCount(t, f.DB(), "Division", 2, "company_id", company.Key())
}

func TestBuilder_PresetViaOf(t *testing.T) {
	f := fixtures.New(t)

	company := fixtures.CreateOne(t, f.Of("Company", "enterprise"))
	assert.Equal(t, "Enterprise Inc", company.Get("name"))
	helpers.AssertRelatedCount(t, f.DB(), company, "divisions", 2)

	renamed := fixtures.CreateOne(t, f.Of("Company").Preset("enterprise").Fill(orm.Attributes{"name": "Acme"}))
	assert.Equal(t, "Acme", renamed.Get("name"))
}

// ============================================================================
// Control flow
// ============================================================================

func TestBuilder_TapAndPipe(t *testing.T) {
	f := fixtures.New(t)

	company := fixtures.CreateOne(t, f.Of("Company").
		With("owner", func(b *factory.Builder) {
			b.Fill(orm.Attributes{"name": "Boss"})
		}).
		With(2, "departments", func(b *factory.Builder) *factory.Builder {
			return b.State("active")
		}))

	owner := helpers.Related(t, f.DB(), company, "owner")
	require.Len(t, owner, 1)
	assert.Equal(t, "Boss", owner[0].Get("name"))
	helpers.AssertCount(t, f.DB(), "Department", 2, "active", 1)
}

func TestBuilder_PipeCanReplaceBuilder(t *testing.T) {
	f := fixtures.New(t)

	company := fixtures.CreateOne(t, f.Of("Company").With("departments", func(*factory.Builder) *factory.Builder {
		return f.Of("Department").State("flagship").Times(2)
	}))

	helpers.AssertCount(t, f.DB(), "Department", 2, "company_id", company.Key(), "flagship", 1)
}

func TestBuilder_WhenAndOdds(t *testing.T) {
	f := fixtures.New(t)
	active := func(b *factory.Builder) { b.State("active") }

	tests := []struct {
		name    string
		builder *factory.Builder
		want    int64
	}{
		{"when true", f.Of("Department").When(true, active), 1},
		{"when false", f.Of("Department").When(false, active), 0},
		{"odds zero", f.Of("Department").Odds(0, active), 0},
		{"odds one", f.Of("Department").Odds(1, active), 1},
		{"odds percentage", f.Of("Department").Odds(100, active), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dept := fixtures.CreateOne(t, tt.builder)
			assert.Equal(t, tt.want, helpers.Int64(t, dept.Get("active")))
		})
	}
}

func TestBuilder_OddsFraction(t *testing.T) {
	f := fixtures.New(t)

	hits := 0
	for i := 0; i < 200; i++ {
		f.Of("Department").Odds(0.5, func(*factory.Builder) { hits++ })
	}
	assert.Greater(t, hits, 50)
	assert.Less(t, hits, 150)
}

func TestBuilder_NilArgumentsIgnored(t *testing.T) {
	f := fixtures.New(t)

	company := fixtures.CreateOne(t, f.Of("Company", nil).With(nil, "departments", nil))
	helpers.AssertCount(t, f.DB(), "Department", 1, "company_id", company.Key())
}

// ============================================================================
// Callbacks
// ============================================================================

func TestBuilder_Callbacks(t *testing.T) {
	reg := fixtures.Registry()

	made := 0
	reg.AfterMaking("User", factory.DefaultDefinition, func(_ context.Context, m *orm.Model) error {
		made++
		return nil
	})

	var happy []*orm.Model
	reg.AfterCreating("Customer", "happy", func(_ context.Context, m *orm.Model) error {
		if !m.Exists() {
			return errors.New("callback ran before save")
		}
		happy = append(happy, m)
		return nil
	})

	f := fixtures.New(t, fixtures.WithRegistry(reg))

	fixtures.Make(t, f.Of("User").Times(2))
	assert.Equal(t, 2, made)

	fixtures.Create(t, f.Of("Customer").Times(2))
	assert.Empty(t, happy)

	fixtures.Create(t, f.Of("Customer").Times(2).State("happy"))
	assert.Len(t, happy, 2)
}

func TestBuilder_CallbackErrorStopsCreate(t *testing.T) {
	reg := fixtures.Registry()
	reg.AfterCreating("Company", factory.DefaultDefinition, func(context.Context, *orm.Model) error {
		return errors.New("boom")
	})
	f := fixtures.New(t, fixtures.WithRegistry(reg))

	_, err := f.Of("Company").With(2, "departments").Create(helpers.Ctx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after creating Company: boom")
}

// ============================================================================
// Connections
// ============================================================================

func TestBuilder_ConnectionIsInherited(t *testing.T) {
	primary := database.NewMemoryStore()
	secondary := database.NewMemoryStore()
	f := fixtures.New(t,
		fixtures.WithStore(orm.DefaultConnection, primary),
		fixtures.WithStore("secondary", secondary),
	)

	company := fixtures.CreateOne(t, f.Of("Company").
		Connection("secondary").
		With("owner").
		With(2, "departments").
		With(2, "departments.employees"))

	assert.Equal(t, "secondary", company.Connection())

	db := f.DB()
	helpers.AssertCountOn(t, db, "secondary", "Company", 1)
	helpers.AssertCountOn(t, db, "secondary", "Department", 2)
	helpers.AssertCountOn(t, db, "secondary", "User", 5)
	helpers.AssertCount(t, db, "Company", 0)
	helpers.AssertCount(t, db, "User", 0)
	assert.Empty(t, primary.Tables())

	depts := helpers.Related(t, db, company, "departments")
	require.Len(t, depts, 2)
	helpers.AssertRelatedCount(t, db, depts[0], "employees", 2)
}

func TestBuilder_ChildConnectionOverrides(t *testing.T) {
	f := fixtures.New(t,
		fixtures.WithStore(orm.DefaultConnection, database.NewMemoryStore()),
		fixtures.WithStore("archive", database.NewMemoryStore()),
	)

	fixtures.CreateOne(t, f.Of("Company").With(2, "customers", func(b *factory.Builder) {
		b.Connection("archive")
	}))

	helpers.AssertCount(t, f.DB(), "Company", 1)
	helpers.AssertCount(t, f.DB(), "Customer", 0)
	helpers.AssertCountOn(t, f.DB(), "archive", "Customer", 2)
}

func TestBuilder_PinnedConnectionIsNotInherited(t *testing.T) {
	schema := orm.NewSchema(
		&orm.ModelType{Name: "User", Table: "users", Connection: "audit"},
		&orm.ModelType{Name: "Post", Table: "posts", Relations: []orm.Relation{
			orm.BelongsTo("author", "User", "user_id"),
		}},
	)
	db := orm.New(schema,
		orm.WithStore(orm.DefaultConnection, database.NewMemoryStore()),
		orm.WithStore("secondary", database.NewMemoryStore()),
		orm.WithStore("audit", database.NewMemoryStore()),
	)
	f := factory.New(db, factory.NewRegistry())
	f.Registry().Define("User", factory.Static(orm.Attributes{"name": "author"}))
	f.Registry().Define("Post", factory.Static(orm.Attributes{"title": "post"}))

	post := fixtures.CreateOne(t, f.Of("Post").Connection("secondary").With("author"))

	helpers.AssertCountOn(t, db, "secondary", "Post", 1)
	helpers.AssertCountOn(t, db, "audit", "User", 1)
	helpers.AssertCountOn(t, db, "secondary", "User", 0)
	assert.NotNil(t, post.Get("user_id"))
}

// ============================================================================
// Errors
// ============================================================================

func TestBuilder_InvalidRelationFailsBeforePersistence(t *testing.T) {
	// AC-BUILD-006: Errors Before Persistence
	f := fixtures.New(t)

	b := f.Of("Company").With(1, "doesNotExist").With(2, "departments")
	require.Error(t, b.Err())

	_, err := b.Create(helpers.Ctx(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, factory.ErrUnresolvableRelation))
	assert.Contains(t, err.Error(), "['doesNotExist']")

	helpers.AssertCount(t, f.DB(), "Company", 0)
	helpers.AssertCount(t, f.DB(), "Department", 0)
}

func TestBuilder_InvalidNestedRelation(t *testing.T) {
	f := fixtures.New(t)

	_, err := f.Of("Company").With("departments.nope").Create(helpers.Ctx(t))
	assert.True(t, errors.Is(err, factory.ErrUnresolvableRelation))
	helpers.AssertCount(t, f.DB(), "Company", 0)
}

func TestBuilder_AmbiguousRelation(t *testing.T) {
	f := fixtures.New(t)

	_, err := f.Of("Company").With("departments", "customers").Create(helpers.Ctx(t))
	assert.True(t, errors.Is(err, factory.ErrAmbiguousArgument))
}

func TestBuilder_UnknownState(t *testing.T) {
	f := fixtures.New(t)

	_, err := f.Of("Customer").State("ghost").Create(helpers.Ctx(t))
	assert.True(t, errors.Is(err, factory.ErrUnknownState))
	helpers.AssertCount(t, f.DB(), "Customer", 0)

	_, err = f.Of("Customer").Sequence("ghost").Raw(helpers.Ctx(t))
	assert.True(t, errors.Is(err, factory.ErrUnknownState))
}

func TestBuilder_UnknownPresetIsEager(t *testing.T) {
	f := fixtures.New(t)

	b := f.Of("Company").Preset("ghost")
	assert.True(t, errors.Is(b.Err(), factory.ErrUnknownPreset))

	_, err := b.Make(helpers.Ctx(t))
	assert.True(t, errors.Is(err, factory.ErrUnknownPreset))
}

func TestBuilder_UnknownModel(t *testing.T) {
	f := fixtures.New(t)

	b := f.Of("Ghost")
	assert.Equal(t, "Ghost", b.Model().Name)

	_, err := b.Create(helpers.Ctx(t))
	assert.True(t, errors.Is(err, orm.ErrUnknownModel))
}

func TestBuilder_ApplyRejectsInstances(t *testing.T) {
	f := fixtures.New(t)
	user := fixtures.CreateOne(t, f.Of("User"))

	b := f.Of("User", user)
	assert.True(t, errors.Is(b.Err(), factory.ErrUnclassifiableArgument))
}

func TestBuilder_FirstErrorIsKept(t *testing.T) {
	f := fixtures.New(t)

	b := f.Of("Company").Preset("ghost").With("nope")
	assert.True(t, errors.Is(b.Err(), factory.ErrUnknownPreset))
}
