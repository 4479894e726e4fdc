package orm

// RelationKind identifies how two model types are linked.
type RelationKind string

const (
	// RelationBelongsTo: this model stores the related model's key in ForeignKey.
	RelationBelongsTo RelationKind = "BelongsTo"

	// RelationHasOne: the related model stores this model's key in ForeignKey.
	RelationHasOne RelationKind = "HasOne"

	// RelationHasMany: like HasOne, with any number of related rows.
	RelationHasMany RelationKind = "HasMany"

	// RelationBelongsToMany: rows in PivotTable join both sides.
	RelationBelongsToMany RelationKind = "BelongsToMany"

	// RelationMorphOne: HasOne where the related row also records this model's MorphClass in MorphType.
	RelationMorphOne RelationKind = "MorphOne"

	// RelationMorphMany: HasMany where the related rows also record this model's MorphClass in MorphType.
	RelationMorphMany RelationKind = "MorphMany"

	// RelationMorphTo: the inverse of a morph relation; the related type is only known per row.
	RelationMorphTo RelationKind = "MorphTo"
)

// Relation holds the key metadata of a named relation on a model type.
type Relation struct {
	Name    string
	Kind    RelationKind
	Related string

	// ForeignKey is the column holding the owner's key: on this model for BelongsTo,
	// on the related model for HasOne/HasMany/morphs, on the pivot table for BelongsToMany.
	ForeignKey string

	// OwnerKey is the column the foreign key points at: the related model's key for
	// BelongsTo, this model's key for the others. Empty means the primary key.
	OwnerKey string

	// Pivot (BelongsToMany)
	PivotTable      string
	RelatedPivotKey string

	// MorphType is the related column storing the owner's morph class.
	MorphType string
}

// BelongsTo declares that the model stores the related model's key in foreignKey.
func BelongsTo(name, related, foreignKey string) Relation {
	return Relation{Name: name, Kind: RelationBelongsTo, Related: related, ForeignKey: foreignKey}
}

// HasOne declares a single related row storing this model's key in foreignKey.
func HasOne(name, related, foreignKey string) Relation {
	return Relation{Name: name, Kind: RelationHasOne, Related: related, ForeignKey: foreignKey}
}

// HasMany declares related rows storing this model's key in foreignKey.
func HasMany(name, related, foreignKey string) Relation {
	return Relation{Name: name, Kind: RelationHasMany, Related: related, ForeignKey: foreignKey}
}

// BelongsToMany declares a many-to-many relation through pivotTable, where foreignPivotKey
// references this model and relatedPivotKey references the related one.
func BelongsToMany(name, related, pivotTable, foreignPivotKey, relatedPivotKey string) Relation {
	return Relation{
		Name:            name,
		Kind:            RelationBelongsToMany,
		Related:         related,
		ForeignKey:      foreignPivotKey,
		PivotTable:      pivotTable,
		RelatedPivotKey: relatedPivotKey,
	}
}

// MorphOne declares a polymorphic single related row using the morphName_id and
// morphName_type columns.
func MorphOne(name, related, morphName string) Relation {
	return Relation{
		Name:       name,
		Kind:       RelationMorphOne,
		Related:    related,
		ForeignKey: morphName + "_id",
		MorphType:  morphName + "_type",
	}
}

// MorphMany is MorphOne with any number of related rows.
func MorphMany(name, related, morphName string) Relation {
	r := MorphOne(name, related, morphName)
	r.Kind = RelationMorphMany
	return r
}

// MorphTo declares the inverse side of a morph relation.
func MorphTo(name, morphName string) Relation {
	return Relation{
		Name:       name,
		Kind:       RelationMorphTo,
		ForeignKey: morphName + "_id",
		MorphType:  morphName + "_type",
	}
}

// WithOwnerKey returns a copy of r pointing at ownerKey instead of the primary key.
func (r Relation) WithOwnerKey(ownerKey string) Relation {
	r.OwnerKey = ownerKey
	return r
}

// OwnerKeyFor returns the column the relation's keys point at on t.
func (r *Relation) OwnerKeyFor(t *ModelType) string {
	if r.OwnerKey != "" {
		return r.OwnerKey
	}
	return t.PrimaryKey
}

// IsMorph reports whether the related rows carry a morph type column
func (r *Relation) IsMorph() bool {
	return r.Kind == RelationMorphOne || r.Kind == RelationMorphMany
}

// IsOneOrMany reports whether the related rows store this model's key
func (r *Relation) IsOneOrMany() bool {
	switch r.Kind {
	case RelationHasOne, RelationHasMany, RelationMorphOne, RelationMorphMany:
		return true
	}
	return false
}
