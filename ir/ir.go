// Package ir exposes the dataflow intermediate representation produced
// by the model importers.
//
// A converted model is a [Function]: ordered parameters, ordered result
// values, and the graph of [Node]s connecting them. Every edge in the
// graph is a [Value], one output port of a node, carrying an element
// type, a partial shape, and the tensor names attached by the importer's
// naming pass.
package ir

import (
	internalir "github.com/loom-ml/loom/internal/ir"
)

// Core graph types.
type (
	// Function is a closed dataflow graph produced by a model import.
	Function = internalir.Function
	// Node is a vertex of the dataflow graph.
	Node = internalir.Node
	// Value is one output port of a node.
	Value = internalir.Value
	// Use is one consuming edge of a value.
	Use = internalir.Use
	// Tensor is an immutable constant payload.
	Tensor = internalir.Tensor
	// Shape is a partial shape: unranked, or ranked with static, named,
	// and unknown dimensions.
	Shape = internalir.Shape
	// Dim is a single dimension of a partial shape.
	Dim = internalir.Dim
	// DType is an element type.
	DType = internalir.DType
	// Kind distinguishes the node classes.
	Kind = internalir.Kind
)

// Node kinds.
const (
	KindOp        = internalir.KindOp
	KindConstant  = internalir.KindConstant
	KindParameter = internalir.KindParameter
	KindFramework = internalir.KindFramework
)

// Element types.
const (
	Undefined = internalir.Undefined
	Float32   = internalir.Float32
	Float64   = internalir.Float64
	Float16   = internalir.Float16
	BFloat16  = internalir.BFloat16
	Int8      = internalir.Int8
	Int16     = internalir.Int16
	Int32     = internalir.Int32
	Int64     = internalir.Int64
	Uint8     = internalir.Uint8
	Uint16    = internalir.Uint16
	Uint32    = internalir.Uint32
	Uint64    = internalir.Uint64
	Bool      = internalir.Bool
	String    = internalir.String
)

// Shape constructors.
var (
	Static     = internalir.Static
	FromDims   = internalir.FromDims
	Dynamic    = internalir.Dynamic
	StaticDim  = internalir.StaticDim
	NamedDim   = internalir.NamedDim
	DynamicDim = internalir.DynamicDim
	Broadcast  = internalir.Broadcast
)

// Tensor constructors.
var (
	NewTensor       = internalir.NewTensor
	NewStringTensor = internalir.NewStringTensor
	Zero            = internalir.Zero
)

// Graph constructors and helpers.
var (
	NewFunction  = internalir.NewFunction
	NewConstant  = internalir.NewConstant
	NewParameter = internalir.NewParameter
	NewOp        = internalir.NewOp
	NewFramework = internalir.NewFramework
	Null         = internalir.Null
	IsNull       = internalir.IsNull
)
