package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxFileSize caps how much of a scenario file Load will read.
const MaxFileSize = 1024 * 1024

// ErrInvalidScenario wraps every validation failure.
var ErrInvalidScenario = errors.New("invalid scenario")

// Relation kinds accepted in a scenario file
const (
	KindBelongsTo     = "belongs_to"
	KindHasOne        = "has_one"
	KindHasMany       = "has_many"
	KindBelongsToMany = "belongs_to_many"
	KindMorphOne      = "morph_one"
	KindMorphMany     = "morph_many"
	KindMorphTo       = "morph_to"
)

// Scenario is a declarative seeding file: the model types, their definitions and
// states, and the seed requests to run against them.
type Scenario struct {
	Models []Model `yaml:"models"`

	// Definitions, States and Presets are keyed by model name, then by name.
	Definitions map[string]map[string]map[string]any `yaml:"definitions"`
	States      map[string]map[string]map[string]any `yaml:"states"`
	Presets     map[string]map[string]Recipe         `yaml:"presets"`

	Seed []Seed `yaml:"seed"`
}

// Model declares one model type
type Model struct {
	Name       string     `yaml:"name"`
	Table      string     `yaml:"table"`
	PrimaryKey string     `yaml:"primary_key"`
	Key        string     `yaml:"key"` // "incrementing" (default) or "uuid"
	MorphClass string     `yaml:"morph_class"`
	Connection string     `yaml:"connection"`
	Relations  []Relation `yaml:"relations"`
}

// Relation declares a named relation on a model
type Relation struct {
	Name            string `yaml:"name"`
	Kind            string `yaml:"kind"`
	Related         string `yaml:"related"`
	ForeignKey      string `yaml:"foreign_key"`
	OwnerKey        string `yaml:"owner_key"`
	Pivot           string `yaml:"pivot"`
	RelatedPivotKey string `yaml:"related_pivot_key"`
	Morph           string `yaml:"morph"`
}

// Recipe configures one builder. Attribute values are literals, except strings
// holding a {faker} template, generated per instance, and strings starting with
// "bcrypt:", hashed once when the scenario is compiled.
type Recipe struct {
	Count      *int           `yaml:"count"`
	Definition string         `yaml:"definition"`
	States     []string       `yaml:"states"`
	Presets    []string       `yaml:"presets"`
	Attributes map[string]any `yaml:"attributes"`
	With       []With         `yaml:"with"`
}

// Seed is one top-level create
type Seed struct {
	Model      string `yaml:"model"`
	Connection string `yaml:"connection"`
	Recipe     `yaml:",inline"`
}

// With loads a relation onto the enclosing recipe's builder. Relation may be a dotted
// path. And starts a new batch, so the same relation can be loaded twice.
type With struct {
	Relation string `yaml:"relation"`
	And      bool   `yaml:"and"`
	Recipe   `yaml:",inline"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("scenario %s exceeds %d bytes", path, MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a scenario. Unknown fields are rejected.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate reports every problem in the scenario at once.
func (s *Scenario) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(s.Models) == 0 {
		add("models must have at least one entry")
	}

	models := make(map[string]*Model, len(s.Models))
	for i := range s.Models {
		m := &s.Models[i]
		if m.Name == "" {
			add("models[%d]: name is required", i)
			continue
		}
		if _, dup := models[m.Name]; dup {
			add("models.%s: declared twice", m.Name)
			continue
		}
		models[m.Name] = m
	}

	for _, m := range s.Models {
		if m.Name == "" {
			continue
		}
		if m.Table == "" {
			add("models.%s: table is required", m.Name)
		}
		switch m.Key {
		case "", "incrementing", "uuid":
		default:
			add("models.%s: key must be 'incrementing' or 'uuid', got '%s'", m.Name, m.Key)
		}
		for _, r := range m.Relations {
			for _, err := range r.validate(models) {
				add("models.%s.relations.%s: %w", m.Name, r.Name, err)
			}
		}
	}

	for _, section := range []struct {
		name  string
		names []string
	}{
		{"definitions", sortedKeys(s.Definitions)},
		{"states", sortedKeys(s.States)},
		{"presets", sortedKeys(s.Presets)},
	} {
		for _, model := range section.names {
			if _, ok := models[model]; !ok {
				add("%s.%s: unknown model", section.name, model)
			}
		}
	}
	for _, model := range sortedKeys(s.Presets) {
		for _, name := range sortedKeys(s.Presets[model]) {
			if _, clash := s.States[model][name]; clash {
				add("presets.%s.%s: already declared as a state", model, name)
			}
			recipe := s.Presets[model][name]
			errs = append(errs, recipe.validate(fmt.Sprintf("presets.%s.%s", model, name))...)
		}
	}

	for i, seed := range s.Seed {
		where := fmt.Sprintf("seed[%d]", i)
		if seed.Model == "" {
			add("%s: model is required", where)
		} else if _, ok := models[seed.Model]; !ok {
			add("%s: unknown model %s", where, seed.Model)
		}
		errs = append(errs, seed.Recipe.validate(where)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, errors.Join(errs...))
	}
	return nil
}

func (r Relation) validate(models map[string]*Model) []error {
	var errs []error
	var missing []string
	require := func(field, value string) {
		if value == "" {
			missing = append(missing, field)
		}
	}

	if r.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	switch r.Kind {
	case KindBelongsTo, KindHasOne, KindHasMany:
		require("related", r.Related)
		require("foreign_key", r.ForeignKey)
	case KindBelongsToMany:
		require("related", r.Related)
		require("pivot", r.Pivot)
		require("foreign_key", r.ForeignKey)
		require("related_pivot_key", r.RelatedPivotKey)
	case KindMorphOne, KindMorphMany:
		require("related", r.Related)
		require("morph", r.Morph)
	case KindMorphTo:
		require("morph", r.Morph)
	case "":
		errs = append(errs, errors.New("kind is required"))
	default:
		errs = append(errs, fmt.Errorf("unknown kind '%s'", r.Kind))
	}
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required fields for %s: %s", r.Kind, strings.Join(missing, ", ")))
	}
	if r.Related != "" && r.Kind != KindMorphTo {
		if _, ok := models[r.Related]; !ok {
			errs = append(errs, fmt.Errorf("unknown related model %s", r.Related))
		}
	}
	return errs
}

func (r Recipe) validate(where string) []error {
	var errs []error
	if r.Count != nil && *r.Count < 0 {
		errs = append(errs, fmt.Errorf("%s: count must not be negative", where))
	}
	for i, w := range r.With {
		at := fmt.Sprintf("%s.with[%d]", where, i)
		if w.Relation == "" {
			errs = append(errs, fmt.Errorf("%s: relation is required", at))
		}
		errs = append(errs, w.Recipe.validate(at)...)
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
