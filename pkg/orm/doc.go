// Package orm is the small object-relational layer the model factory persists through.
//
// It knows three things: which model types exist (Schema), how they relate
// (Relation), and where rows live (named connections backed by database.Store).
//
// # Model Types
//
// A ModelType names a table, its primary key column and its relations:
//
//	company := &orm.ModelType{
//	    Name:  "Company",
//	    Table: "companies",
//	    Relations: []orm.Relation{
//	        orm.BelongsTo("owner", "User", "owner_id"),
//	        orm.HasMany("departments", "Department", "company_id"),
//	        orm.MorphOne("logo", "Image", "imageable"),
//	    },
//	}
//	schema := orm.NewSchema(company, user, department, image)
//
// # Relation Kinds
//
//   - BelongsTo: the foreign key lives on this model
//   - HasOne / HasMany: the foreign key lives on the related model
//   - MorphOne / MorphMany: like HasOne/HasMany plus a morph type column
//   - BelongsToMany: rows in a pivot table join both sides
//   - MorphTo: inverse of a morph relation, readable only
//
// # Connections
//
// A DB maps connection names to stores. A model saves on its own connection,
// else its type's connection, else the DB default:
//
//	db := orm.New(schema,
//	    orm.WithStore("default", database.NewMemoryStore()),
//	    orm.WithStore("secondary", sqliteStore),
//	)
//
// # Persistence Operations
//
//   - Save: insert (assigning the generated key) or update
//   - Associate: set a belongs-to foreign key from a parent model
//   - Attach: insert a belongs-to-many pivot row
//   - Related: load the models on the far side of a relation
//   - Query: column-equality reads with Get/First/Count
package orm
