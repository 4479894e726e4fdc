package factory

import (
	"errors"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/modelfactory/pkg/database"
	"github.com/forgo/modelfactory/pkg/orm"
)

// ============================================================================
// Test Schema
// ============================================================================

// newTestFactory returns a factory over a small blog schema backed by a memory store.
//
//	Post:  author (belongs-to User), comments (has-many), tags (belongs-to-many), image (morph-one)
//	User:  posts (has-many)
//	Comment: post, author (belongs-to)
//	Image: imageable (morph-to)
func newTestFactory(t *testing.T) *Factory {
	t.Helper()

	schema := orm.NewSchema(
		&orm.ModelType{Name: "User", Table: "users", Relations: []orm.Relation{
			orm.HasMany("posts", "Post", "author_id"),
		}},
		&orm.ModelType{Name: "Post", Table: "posts", Relations: []orm.Relation{
			orm.BelongsTo("author", "User", "author_id"),
			orm.HasMany("comments", "Comment", "post_id"),
			orm.BelongsToMany("tags", "Tag", "post_tag", "post_id", "tag_id"),
			orm.MorphOne("image", "Image", "imageable"),
		}},
		&orm.ModelType{Name: "Comment", Table: "comments", Relations: []orm.Relation{
			orm.BelongsTo("post", "Post", "post_id"),
			orm.BelongsTo("author", "User", "author_id"),
		}},
		&orm.ModelType{Name: "Tag", Table: "tags"},
		&orm.ModelType{Name: "Image", Table: "images", Relations: []orm.Relation{
			orm.MorphTo("imageable", "imageable"),
		}},
	)

	reg := NewRegistry()
	reg.Define("User", Static(orm.Attributes{"name": "user"}))
	reg.Define("Post", Static(orm.Attributes{"title": "post"}))
	reg.Define("Comment", Static(orm.Attributes{"body": "comment", "approved": false}))
	reg.Define("Tag", Static(orm.Attributes{"label": "tag"}))
	reg.Define("Image", Static(orm.Attributes{"url": "https://example.com/a.png"}))
	require.NoError(t, reg.State("Comment", "approved", Static(orm.Attributes{"approved": true})))
	require.NoError(t, reg.Preset("User", "admin", func(b *Builder) {
		b.Fill(orm.Attributes{"role": "admin"})
	}))

	db := orm.New(schema, orm.WithStore(orm.DefaultConnection, database.NewMemoryStore()))
	return New(db, reg, WithSeed(7))
}

func modelType(t *testing.T, f *Factory, name string) *orm.ModelType {
	t.Helper()
	mt, err := f.DB().Schema().Type(name)
	require.NoError(t, err)
	return mt
}

// ============================================================================
// Classification
// ============================================================================

func TestClassify(t *testing.T) {
	f := newTestFactory(t)
	post := modelType(t, f, "Post")
	user := modelType(t, f, "User")
	cc := classifyContext{model: post, target: "User", registry: f.registry}

	instance := user.New(orm.Attributes{"id": 1})

	tests := []struct {
		name string
		arg  any
		want argKind
	}{
		{"nil is ignored", nil, argIgnore},
		{"int is a count", 3, argCount},
		{"int64 is a count", int64(3), argCount},
		{"float is a count", 2.0, argCount},
		{"CountFunc is a count", CountFunc(func(*gofakeit.Faker) int { return 1 }), argCount},
		{"faker count func", func(*gofakeit.Faker) int { return 1 }, argCount},
		{"func() int is a count", func() int { return 1 }, argCount},
		{"Attributes", orm.Attributes{"name": "x"}, argAttributes},
		{"plain map", map[string]any{"name": "x"}, argAttributes},
		{"Overlay", Overlay(func(*Scope) orm.Attributes { return nil }), argAttributes},
		{"overlay func", func(*Scope) orm.Attributes { return nil }, argAttributes},
		{"pipe", func(b *Builder) *Builder { return b }, argPipe},
		{"tap", func(*Builder) {}, argTap},
		{"PresetFunc", PresetFunc(func(*Builder) {}), argTap},
		{"model", instance, argInstances},
		{"collection", orm.Collection{instance}, argInstances},
		{"model slice", []*orm.Model{instance}, argInstances},
		{"relation", "comments", argRelation},
		{"nested relation", "comments.author", argRelation},
		{"preset", "admin", argPreset},
		{"state", "approved", argState},
		{"unknown head is a state", "nope.author", argState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arg, err := classify(tt.arg, cc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, arg.kind, "got %s", arg.kind)
		})
	}
}

func TestClassify_CountValues(t *testing.T) {
	arg, err := classify(2.9, classifyContext{})
	require.NoError(t, err)
	assert.Equal(t, 2, arg.count.amount(nil))

	calls := 0
	arg, err = classify(func() int { calls++; return 4 }, classifyContext{})
	require.NoError(t, err)
	assert.Equal(t, 0, calls, "generator must not run during classification")
	assert.Equal(t, 4, arg.count.amount(nil))
	assert.Equal(t, 1, calls)
}

func TestClassify_SplitsPivotAttributes(t *testing.T) {
	arg, err := classify(orm.Attributes{"name": "x", "pivot.role": "owner"}, classifyContext{})
	require.NoError(t, err)

	assert.Equal(t, orm.Attributes{"name": "x"}, arg.attributes)
	assert.Equal(t, orm.Attributes{"role": "owner"}, arg.pivot)
}

func TestClassify_RelationWinsOverPreset(t *testing.T) {
	f := newTestFactory(t)
	require.NoError(t, f.registry.Preset("User", "posts", func(*Builder) {}))
	user := modelType(t, f, "User")

	arg, err := classify("posts", classifyContext{model: user, target: "User", registry: f.registry})
	require.NoError(t, err)
	assert.Equal(t, argRelation, arg.kind)

	arg, err = classify("posts", classifyContext{target: "User", registry: f.registry})
	require.NoError(t, err)
	assert.Equal(t, argPreset, arg.kind, "without a model the relation rule is off")
}

func TestClassify_Unclassifiable(t *testing.T) {
	_, err := classify(struct{}{}, classifyContext{})
	assert.True(t, errors.Is(err, ErrUnclassifiableArgument))

	_, err = classify([]int{1}, classifyContext{})
	assert.True(t, errors.Is(err, ErrUnclassifiableArgument))
}

func TestFlattenArgs(t *testing.T) {
	got := flattenArgs([]any{1, []string{"a", "b"}, nil})
	assert.Equal(t, []any{1, "a", "b", nil}, got)
}

func TestArgKind_String(t *testing.T) {
	assert.Equal(t, "preset", argPreset.String())
	assert.Equal(t, "argKind(42)", argKind(42).String())
}
