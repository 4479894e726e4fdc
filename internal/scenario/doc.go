// Package scenario seeds databases from declarative YAML files.
//
// A scenario declares model types with their relations, attribute definitions,
// states and presets, followed by the seed requests to run:
//
//	models:
//	  - name: User
//	    table: users
//	    relations:
//	      - {name: posts, kind: has_many, related: Post, foreign_key: user_id}
//	  - name: Post
//	    table: posts
//	    relations:
//	      - {name: author, kind: belongs_to, related: User, foreign_key: user_id}
//	definitions:
//	  User:
//	    default: {name: "{firstname} {lastname}", password: "bcrypt:secret"}
//	  Post:
//	    default: {title: "{sentence:5}", published: false}
//	states:
//	  Post:
//	    published: {published: true}
//	seed:
//	  - model: User
//	    count: 3
//	    with:
//	      - {relation: posts, count: 2, states: [published]}
//
// Strings holding a {template} are generated with gofakeit for every instance.
// Strings starting with "bcrypt:" are hashed once when the scenario is compiled.
// Attribute keys prefixed "pivot." in a with entry fill the pivot row of a
// belongs-to-many relation.
//
// Usage:
//
//	s, err := scenario.Load("seed.yaml")
//	schema, err := s.Schema()
//	registry, err := s.Registry()
//	f := factory.New(orm.New(schema, orm.WithStore("default", store)), registry)
//	summary, err := scenario.NewRunner(f).Run(ctx, s)
//	summary.Render(os.Stdout)
package scenario
