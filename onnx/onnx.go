// Package onnx imports ONNX models into the loom dataflow IR.
//
// The importer parses the ONNX protobuf format with a hand-written wire
// reader, resolves every graph node through a versioned operator
// registry, and produces an [ir.Function] with deterministic names,
// partial shapes, and converted control-flow bodies.
//
// # Example
//
//	model, err := onnx.Load("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fn, err := model.Convert()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for i, r := range fn.Results() {
//	    fmt.Printf("%s: %s%s\n", fn.ResultName(i), r.DType(), r.Shape())
//	}
//
// # Deferred conversion
//
// Decode keeps every graph node as an opaque framework node instead of
// converting it. Register the missing operators, then call [Resolve] to
// convert the decoded function in place:
//
//	model, _ := onnx.Load("model.onnx", onnx.WithCustomOp("Swish", swish))
//	fn, _ := model.Decode()
//	if err := onnx.Resolve(fn); err != nil {
//	    log.Fatal(err)
//	}
package onnx

import (
	internalonnx "github.com/loom-ml/loom/internal/onnx"
	"github.com/loom-ml/loom/internal/onnx/operators"
)

// Model is a loaded ONNX model ready for conversion.
type Model = internalonnx.Model

// Option configures model loading.
type Option = internalonnx.Option

// ModelInfo summarizes a model without converting it.
type ModelInfo = internalonnx.ModelInfo

// TensorDesc describes one declared graph input or output.
type TensorDesc = internalonnx.TensorDesc

// UnsupportedOperatorError aggregates every operator identity the
// registry cannot resolve for a model.
type UnsupportedOperatorError = internalonnx.UnsupportedOperatorError

// Handler converts one ONNX node into IR values. Custom operators and
// custom domains are registered as handlers.
type Handler = operators.Handler

// HandlerContext carries conversion-time context into a handler.
type HandlerContext = operators.Context

// HandlerNode is the handler-side view of one ONNX node.
type HandlerNode = operators.Node

// Sentinel errors of the import pipeline.
var (
	// ErrExternalData marks structurally invalid external tensor data.
	ErrExternalData = internalonnx.ErrExternalData
	// ErrUnknownSymbol marks an unresolvable tensor name reference.
	ErrUnknownSymbol = internalonnx.ErrUnknownSymbol
	// ErrNoGraph marks a model without a graph.
	ErrNoGraph = internalonnx.ErrNoGraph
)

// Loading options.
var (
	WithLogger                  = internalonnx.WithLogger
	WithExternalDataDir         = internalonnx.WithExternalDataDir
	WithoutChecksumVerification = internalonnx.WithoutChecksumVerification
	WithCustomOp                = internalonnx.WithCustomOp
	WithCustomDomain            = internalonnx.WithCustomDomain
)

// Load parses an ONNX model file. External tensor locations resolve
// relative to the model file's directory unless overridden with
// [WithExternalDataDir].
func Load(path string, opts ...Option) (*Model, error) {
	return internalonnx.Load(path, opts...)
}

// LoadFromBytes parses an in-memory ONNX model.
func LoadFromBytes(data []byte, opts ...Option) (*Model, error) {
	return internalonnx.LoadFromBytes(data, opts...)
}

// Resolve converts the framework nodes of a decoded function in place.
var Resolve = internalonnx.Resolve

// GetModelInfo extracts summary information from an ONNX file without
// converting it.
func GetModelInfo(path string) (*ModelInfo, error) {
	return internalonnx.GetModelInfo(path)
}

// ListSupportedOps returns every built-in operator identifier, sorted.
func ListSupportedOps() []string {
	return internalonnx.ListSupportedOps()
}
