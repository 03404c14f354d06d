// Package operators maps ONNX operator identities to IR-building handlers.
//
// The registry keys handlers by (domain, op type, since-version); lookups
// select the greatest since-version not above the model's declared opset.
// Handlers receive a node with already-resolved input values and return the
// output values of the IR subgraph implementing that operator. They never
// compute tensor math: shapes and constants are inspected only as far as
// structural wiring requires.
//
// Custom domains can be registered up front and enabled lazily while the
// importer scans a model for unknown operators.
package operators
