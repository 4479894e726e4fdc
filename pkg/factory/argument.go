package factory

import (
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/forgo/modelfactory/pkg/orm"
)

// pivotPrefix marks inline attribute keys destined for the pivot row.
const pivotPrefix = "pivot."

// argKind is the closed set of roles a With argument can play.
type argKind int

const (
	argIgnore argKind = iota
	argCount
	argAttributes
	argPipe
	argTap
	argInstances
	argRelation
	argPreset
	argState
)

func (k argKind) String() string {
	switch k {
	case argIgnore:
		return "ignore"
	case argCount:
		return "count"
	case argAttributes:
		return "attributes"
	case argPipe:
		return "pipe"
	case argTap:
		return "tap"
	case argInstances:
		return "instances"
	case argRelation:
		return "relation"
	case argPreset:
		return "preset"
	case argState:
		return "state"
	}
	return fmt.Sprintf("argKind(%d)", int(k))
}

// argument is one classified With argument. Only the fields of its kind are set.
type argument struct {
	kind       argKind
	count      count
	attributes orm.Attributes
	pivot      orm.Attributes
	overlay    Overlay
	pipe       func(*Builder) *Builder
	tap        func(*Builder)
	instances  orm.Collection
	name       string
}

// classifyContext is what classification of a string depends on.
type classifyContext struct {
	// model is checked for relation names; nil turns the relation rule off.
	model *orm.ModelType

	// target is the model type presets are looked up on.
	target   string
	registry *Registry
}

// classify assigns arg its role. Rules are tried in order and the first match wins:
// nil, count, inline attributes, builder callbacks, bound instances, relation path,
// preset, and finally state for any other string.
func classify(arg any, cc classifyContext) (argument, error) {
	if arg == nil {
		return argument{kind: argIgnore}, nil
	}

	if n, ok := numeric(arg); ok {
		return argument{kind: argCount, count: fixedCount(n)}, nil
	}

	switch v := arg.(type) {
	case CountFunc:
		return argument{kind: argCount, count: count{set: true, fn: v}}, nil
	case func(*gofakeit.Faker) int:
		return argument{kind: argCount, count: count{set: true, fn: v}}, nil
	case func() int:
		return argument{kind: argCount, count: count{set: true, fn: func(*gofakeit.Faker) int { return v() }}}, nil

	case orm.Attributes:
		return attributesArgument(v), nil
	case map[string]any:
		return attributesArgument(v), nil
	case Overlay:
		return argument{kind: argAttributes, overlay: v}, nil
	case func(*Scope) orm.Attributes:
		return argument{kind: argAttributes, overlay: v}, nil

	case func(*Builder) *Builder:
		return argument{kind: argPipe, pipe: v}, nil
	case func(*Builder):
		return argument{kind: argTap, tap: v}, nil
	case PresetFunc:
		return argument{kind: argTap, tap: v}, nil

	case *orm.Model:
		return argument{kind: argInstances, instances: orm.Collection{v}}, nil
	case orm.Collection:
		return argument{kind: argInstances, instances: v}, nil
	case []*orm.Model:
		return argument{kind: argInstances, instances: orm.Collection(v)}, nil

	case string:
		if cc.model != nil && isRelationPath(cc.model, v) {
			return argument{kind: argRelation, name: v}, nil
		}
		if cc.registry != nil && cc.registry.HasPreset(cc.target, v) {
			return argument{kind: argPreset, name: v}, nil
		}
		return argument{kind: argState, name: v}, nil
	}

	return argument{}, fmt.Errorf("%w: %T", ErrUnclassifiableArgument, arg)
}

func attributesArgument(in map[string]any) argument {
	attrs := orm.Attributes{}
	pivot := orm.Attributes{}
	for k, v := range in {
		if strings.HasPrefix(k, pivotPrefix) {
			pivot[strings.TrimPrefix(k, pivotPrefix)] = v
			continue
		}
		attrs[k] = v
	}
	return argument{kind: argAttributes, attributes: attrs, pivot: pivot}
}

// isRelationPath reports whether the first segment of path is a relation on t
func isRelationPath(t *orm.ModelType, path string) bool {
	head, _, _ := strings.Cut(path, ".")
	return head != "" && t.HasRelation(head)
}

// flattenArgs spreads []string arguments into individual strings.
func flattenArgs(args []any) []any {
	out := make([]any, 0, len(args))
	for _, a := range args {
		if ss, ok := a.([]string); ok {
			for _, s := range ss {
				out = append(out, s)
			}
			continue
		}
		out = append(out, a)
	}
	return out
}

func numeric(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
