// Package ir defines the intermediate representation produced by the model
// importer: a dataflow graph of typed values connected by nodes.
//
// Key components:
//   - DType: element type of a tensor value (float32, int64, float16, ...)
//   - Dim/Shape: possibly partial shapes (static, symbolic, or unknown dims)
//   - Tensor: immutable constant payload (type + static shape + raw data)
//   - Value: one output port of a node, with names and consumer edges
//   - Node: constant, parameter, operator, or framework placeholder
//   - Function: a closed graph with ordered parameters and results
//
// Values track their consumers explicitly. Node.ReplaceInput and
// Value.ReplaceAllUsesWith are the only edge mutation points, so use lists
// and input slices cannot drift apart.
//
// The package performs no tensor math. Shapes and constants are inspected
// only as far as structural wiring requires (broadcasting, reshape folding).
package ir
