package factory

import (
	"errors"
	"fmt"
	"strings"
)

// Standard errors for builder operations.
// Use errors.Is() to check these error types in calling code.
var (
	// ErrUnresolvableRelation indicates a relation request named no relation of the model.
	ErrUnresolvableRelation = errors.New("unresolvable relation")

	// ErrUnknownState indicates a state name with no registered overlay.
	ErrUnknownState = errors.New("unknown state")

	// ErrUnknownPreset indicates a preset name with no registered builder function.
	ErrUnknownPreset = errors.New("unknown preset")

	// ErrUnsupportedRelation indicates a relation kind the assembler cannot sequence.
	ErrUnsupportedRelation = errors.New("unsupported relation kind")

	// ErrUnclassifiableArgument indicates a With argument of no recognised shape.
	ErrUnclassifiableArgument = errors.New("unclassifiable argument")

	// ErrAmbiguousArgument indicates a request naming more than one relation.
	ErrAmbiguousArgument = errors.New("ambiguous relation arguments")

	// ErrNameCollision indicates a state and a preset registered under the same name.
	ErrNameCollision = errors.New("state and preset name collision")

	// ErrUnknownDefinition indicates a named definition that was never registered.
	ErrUnknownDefinition = errors.New("unknown definition")
)

// RelationNotFoundError reports a relation request with no valid relation name.
// Candidates holds every string and nil argument that was checked, in order.
type RelationNotFoundError struct {
	Model      string
	Candidates []string
}

func (e *RelationNotFoundError) Error() string {
	return fmt.Sprintf("no matching relations could be found on model [%s]. Following possible relation names was checked: %s",
		e.Model, formatCandidates(e.Candidates))
}

// Unwrap lets errors.Is match ErrUnresolvableRelation
func (e *RelationNotFoundError) Unwrap() error {
	return ErrUnresolvableRelation
}

const nullCandidate = "\x00null"

func formatCandidates(candidates []string) string {
	if len(candidates) == 0 {
		return "[NO POSSIBLE RELATION NAMES FOUND]"
	}
	parts := make([]string, len(candidates))
	for i, c := range candidates {
		if c == nullCandidate {
			parts[i] = "NULL"
			continue
		}
		parts[i] = "'" + c + "'"
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
