package factory

import (
	"context"
	"fmt"
	"sync"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/forgo/modelfactory/pkg/orm"
)

// DefaultDefinition is the definition name used unless a builder selects another with As.
const DefaultDefinition = "default"

// Scope is what an Overlay sees while attributes are being resolved.
type Scope struct {
	Faker *gofakeit.Faker

	// Attributes holds everything resolved so far plus the call-site attributes.
	Attributes orm.Attributes

	// Parent is the owning model when building through a has-many or belongs-to-many relation.
	Parent *orm.Model

	// Related is the model a pivot overlay is evaluated for; nil elsewhere.
	Related *orm.Model

	// Index is the position of the instance within the current make.
	Index int
}

// Overlay produces attributes for one instance.
type Overlay func(s *Scope) orm.Attributes

// Static returns an Overlay yielding a copy of attrs every time.
func Static(attrs orm.Attributes) Overlay {
	return func(*Scope) orm.Attributes {
		return attrs.Clone()
	}
}

// Callback runs after a model is made or created.
type Callback func(ctx context.Context, m *orm.Model) error

// PresetFunc configures a builder with a named bundle of settings.
type PresetFunc func(b *Builder)

type modelEntry struct {
	definitions   map[string]Overlay
	states        map[string]Overlay
	presets       map[string]PresetFunc
	afterMaking   map[string][]Callback
	afterCreating map[string][]Callback
}

func newModelEntry() *modelEntry {
	return &modelEntry{
		definitions:   make(map[string]Overlay),
		states:        make(map[string]Overlay),
		presets:       make(map[string]PresetFunc),
		afterMaking:   make(map[string][]Callback),
		afterCreating: make(map[string][]Callback),
	}
}

// Registry holds definitions, states, presets and callbacks per model type.
// It is safe for concurrent use, so one registry can back parallel tests.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*modelEntry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*modelEntry)}
}

func (r *Registry) entry(model string) *modelEntry {
	e, ok := r.models[model]
	if !ok {
		e = newModelEntry()
		r.models[model] = e
	}
	return e
}

// Define registers the default definition of model, replacing any previous one.
func (r *Registry) Define(model string, def Overlay) {
	r.DefineAs(model, DefaultDefinition, def)
}

// DefineAs registers a named definition of model.
func (r *Registry) DefineAs(model, name string, def Overlay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(model).definitions[name] = def
}

// State registers a named attribute overlay. A preset with the same name is a collision.
func (r *Registry) State(model, name string, def Overlay) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(model)
	if _, ok := e.presets[name]; ok {
		return fmt.Errorf("%w: %s.%s is already a preset", ErrNameCollision, model, name)
	}
	e.states[name] = def
	return nil
}

// Preset registers a named builder function. A state with the same name is a collision.
func (r *Registry) Preset(model, name string, fn PresetFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(model)
	if _, ok := e.states[name]; ok {
		return fmt.Errorf("%w: %s.%s is already a state", ErrNameCollision, model, name)
	}
	e.presets[name] = fn
	return nil
}

// AfterMaking registers a callback run on every made instance whose definition or
// one of whose active states is called name.
func (r *Registry) AfterMaking(model, name string, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(model)
	e.afterMaking[name] = append(e.afterMaking[name], cb)
}

// AfterCreating is AfterMaking for persisted instances.
func (r *Registry) AfterCreating(model, name string, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entry(model)
	e.afterCreating[name] = append(e.afterCreating[name], cb)
}

// Definition returns a registered definition
func (r *Registry) Definition(model, name string) (Overlay, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.models[model]
	if !ok {
		return nil, false
	}
	def, ok := e.definitions[name]
	return def, ok
}

// LookupState returns the overlay of a state or ErrUnknownState
func (r *Registry) LookupState(model, name string) (Overlay, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.models[model]; ok {
		if def, ok := e.states[name]; ok {
			return def, nil
		}
	}
	return nil, fmt.Errorf("%w: unable to locate state [%s] for model [%s]", ErrUnknownState, name, model)
}

// LookupPreset returns a preset or ErrUnknownPreset
func (r *Registry) LookupPreset(model, name string) (PresetFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.models[model]; ok {
		if fn, ok := e.presets[name]; ok {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("%w: unable to locate preset [%s] for model [%s]", ErrUnknownPreset, name, model)
}

// HasPreset reports whether name is a preset of model
func (r *Registry) HasPreset(model, name string) bool {
	_, err := r.LookupPreset(model, name)
	return err == nil
}

// HasState reports whether name is a state of model
func (r *Registry) HasState(model, name string) bool {
	_, err := r.LookupState(model, name)
	return err == nil
}

func (r *Registry) afterMakingCallbacks(model string, names []string) []Callback {
	return r.callbacks(model, names, func(e *modelEntry) map[string][]Callback { return e.afterMaking })
}

func (r *Registry) afterCreatingCallbacks(model string, names []string) []Callback {
	return r.callbacks(model, names, func(e *modelEntry) map[string][]Callback { return e.afterCreating })
}

func (r *Registry) callbacks(model string, names []string, pick func(*modelEntry) map[string][]Callback) []Callback {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.models[model]
	if !ok {
		return nil
	}
	var out []Callback
	table := pick(e)
	for _, name := range names {
		out = append(out, table[name]...)
	}
	return out
}
