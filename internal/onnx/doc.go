// Package onnx imports ONNX models into the dataflow IR.
//
// The package has three layers. The wire layer (parser.go, proto.go) is a
// hand-written protobuf reader producing ModelProto and friends. The
// builder layer (graph.go, subgraph.go, node.go) walks a parsed graph in
// declared order, resolves tensor names through a scope chain of symbol
// caches, and dispatches each node to the operator registry. The entry
// layer (loader.go, model.go) ties both together behind Load and the
// Model type.
//
// Two conversion modes exist. Convert resolves every node immediately and
// fails on anything the registry cannot handle. Decode defers resolution:
// each node becomes an opaque framework node keeping its operator
// identity, and Resolve converts the function in place later, after extra
// operators have been registered.
//
// Nested control-flow bodies (If branches, Loop bodies) convert through
// subgraph builders whose name lookups fall back to the parent scope.
// Edges that cross the scope boundary are cut and replaced with boundary
// parameters; the captured parent values travel with the body so the
// control-flow conversion can wire them as extra operator inputs.
package onnx
