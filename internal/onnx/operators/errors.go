package operators

import "fmt"

// ValidationError reports an operator-level validation failure: wrong
// arity, a missing or malformed attribute, or incompatible input shapes.
// It already carries node-identifying context, so the graph builder passes
// it through unwrapped.
type ValidationError struct {
	Node   string // Declared node name, may be empty
	Op     string // Operator identity, "domain.OpType" or "OpType"
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("node %q (%s): %s", e.Node, e.Op, e.Reason)
}

// validationf builds a ValidationError for the given node.
func validationf(n *Node, format string, args ...any) error {
	op := n.OpType
	if n.Domain != "" {
		op = n.Domain + "." + n.OpType
	}
	return &ValidationError{Node: n.Name, Op: op, Reason: fmt.Sprintf(format, args...)}
}
