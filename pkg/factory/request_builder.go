package factory

import (
	"sort"

	"github.com/forgo/modelfactory/pkg/orm"
)

// Relations maps relation paths to their arguments, for loading several relations
// in one With call. A []any value is spread into separate arguments.
//
//	b.With(factory.Relations{
//	    "divisions":         2,
//	    "divisions.manager": nil,
//	    "owner":             []any{"admin", orm.Attributes{"name": "Ada"}},
//	})
type Relations map[string]any

// expandRequests turns the arguments of one With call into relation requests.
// A single *RelationRequest passes through, a single Relations map yields one request
// per key in sorted order, a single []string yields one request per element and
// anything else is one request.
func (f *Factory) expandRequests(model *orm.ModelType, batch int, args []any) ([]*RelationRequest, error) {
	if len(args) == 1 {
		switch v := args[0].(type) {
		case *RelationRequest:
			return []*RelationRequest{v}, nil

		case Relations:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			out := make([]*RelationRequest, 0, len(keys))
			for _, path := range keys {
				var reqArgs []any
				if spread, ok := v[path].([]any); ok {
					reqArgs = append(reqArgs, spread...)
				} else {
					reqArgs = append(reqArgs, v[path])
				}
				req, err := f.newRelationRequest(model, batch, append(reqArgs, path))
				if err != nil {
					return nil, err
				}
				out = append(out, req)
			}
			return out, nil

		case []string:
			out := make([]*RelationRequest, 0, len(v))
			for _, path := range v {
				req, err := f.newRelationRequest(model, batch, []any{path})
				if err != nil {
					return nil, err
				}
				out = append(out, req)
			}
			return out, nil
		}
	}

	req, err := f.newRelationRequest(model, batch, args)
	if err != nil {
		return nil, err
	}
	return []*RelationRequest{req}, nil
}
