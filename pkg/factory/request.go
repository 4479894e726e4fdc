package factory

import (
	"fmt"
	"strings"

	"github.com/forgo/modelfactory/pkg/orm"
)

// RelationRequest is one With call resolved against a model type: the relation path,
// the batch it belongs to and the remaining arguments, classified for the relation's
// target once the path has no further segments.
type RelationRequest struct {
	model *orm.ModelType
	path  string
	batch int

	// args are the raw arguments minus the path, forwarded unchanged to nested requests.
	args []any

	// arguments are args classified against the related type; set only when not nested.
	arguments []argument
}

// Model returns the type the path starts from
func (r *RelationRequest) Model() *orm.ModelType {
	return r.model
}

// Path returns the full dotted relation path
func (r *RelationRequest) Path() string {
	return r.path
}

// Batch returns the batch index
func (r *RelationRequest) Batch() int {
	return r.batch
}

// RelationName returns the first path segment
func (r *RelationRequest) RelationName() string {
	head, _, _ := strings.Cut(r.path, ".")
	return head
}

// HasNesting reports whether the path has more than one segment
func (r *RelationRequest) HasNesting() bool {
	return strings.Contains(r.path, ".")
}

// NestedPath returns the path minus its first segment
func (r *RelationRequest) NestedPath() string {
	_, rest, _ := strings.Cut(r.path, ".")
	return rest
}

// newRelationRequest extracts the relation path from args and classifies the rest.
func (f *Factory) newRelationRequest(model *orm.ModelType, batch int, args []any) (*RelationRequest, error) {
	args = flattenArgs(args)
	cc := classifyContext{model: model}

	pathIndex := -1
	var paths []string
	for i, a := range args {
		s, ok := a.(string)
		if !ok {
			continue
		}
		arg, err := classify(s, cc)
		if err != nil {
			return nil, err
		}
		if arg.kind == argRelation {
			paths = append(paths, s)
			if pathIndex < 0 {
				pathIndex = i
			}
		}
	}

	switch len(paths) {
	case 0:
		return nil, &RelationNotFoundError{Model: model.Name, Candidates: relationCandidates(args)}
	case 1:
	default:
		return nil, fmt.Errorf("%w: model [%s] got relations %s", ErrAmbiguousArgument, model.Name, formatCandidates(paths))
	}

	rest := make([]any, 0, len(args)-1)
	rest = append(rest, args[:pathIndex]...)
	rest = append(rest, args[pathIndex+1:]...)
	return f.resolveRequest(model, batch, paths[0], rest)
}

// resolveRequest builds a request whose path is already known. The path's first segment
// must name a relation on model.
func (f *Factory) resolveRequest(model *orm.ModelType, batch int, path string, args []any) (*RelationRequest, error) {
	if !isRelationPath(model, path) {
		return nil, &RelationNotFoundError{
			Model:      model.Name,
			Candidates: append(relationCandidates(args), path),
		}
	}

	req := &RelationRequest{model: model, path: path, batch: batch, args: args}
	if req.HasNesting() {
		return req, nil
	}

	rel, _ := model.Relation(req.RelationName())
	cc := classifyContext{target: rel.Related, registry: f.registry}
	req.arguments = make([]argument, 0, len(args))
	for _, a := range args {
		arg, err := classify(a, cc)
		if err != nil {
			return nil, fmt.Errorf("relation %s.%s: %w", model.Name, path, err)
		}
		req.arguments = append(req.arguments, arg)
	}
	return req, nil
}

// Nested derives the request for the next path segment: the related type becomes the
// model, the first segment is dropped and batch and arguments carry over unchanged.
func (f *Factory) nested(r *RelationRequest) (*RelationRequest, error) {
	_, related, err := f.db.Schema().Related(r.model, r.RelationName())
	if err != nil {
		return nil, err
	}
	if related == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnsupportedRelation, r.model.Name, r.RelationName())
	}
	return f.resolveRequest(related, r.batch, r.NestedPath(), r.args)
}

// relationCandidates lists the string and nil arguments for error reporting
func relationCandidates(args []any) []string {
	var out []string
	for _, a := range args {
		switch v := a.(type) {
		case nil:
			out = append(out, nullCandidate)
		case string:
			out = append(out, v)
		}
	}
	return out
}
