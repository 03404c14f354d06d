package onnx

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common errors.
var (
	// ErrExternalData marks structurally invalid external tensor data.
	// It aborts graph construction unconditionally; there is no zero-value
	// fallback for this class of failure.
	ErrExternalData = errors.New("invalid external tensor data")

	// ErrUnknownSymbol is returned when a tensor name cannot be resolved
	// anywhere in the scope chain. It indicates a malformed or
	// non-topologically-ordered source graph.
	ErrUnknownSymbol = errors.New("unknown tensor name")

	// ErrNoGraph is returned when a model carries no graph.
	ErrNoGraph = errors.New("model has no graph")

	// ErrSegmentedTensor is returned for tensors using the deprecated
	// segment encoding.
	ErrSegmentedTensor = errors.New("segmented tensors are not supported")
)

// UnsupportedOperatorError reports every operator identity that stayed
// unavailable after late domain registration. Identifiers are sorted and
// formatted as "domain.OpType" ("OpType" for the default domain).
type UnsupportedOperatorError struct {
	Operators []string
}

// Error implements the error interface.
func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("unsupported operations: %s", strings.Join(e.Operators, ", "))
}

// newUnsupportedOperatorError builds the aggregate error from a set of
// operator identifiers.
func newUnsupportedOperatorError(ops map[string]struct{}) *UnsupportedOperatorError {
	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)
	return &UnsupportedOperatorError{Operators: names}
}

// opIdentifier formats an operator identity for error reporting.
func opIdentifier(domain, opType string) string {
	if domain == "" {
		return opType
	}
	return domain + "." + opType
}
