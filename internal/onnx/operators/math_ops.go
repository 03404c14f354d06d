package operators

import (
	"github.com/loom-ml/loom/internal/ir"
)

// registerMathOps adds arithmetic operators to the registry.
func (r *Registry) registerMathOps() {
	r.Register("", "Add", 1, broadcastBinary)
	r.Register("", "Sub", 1, broadcastBinary)
	r.Register("", "Mul", 1, broadcastBinary)
	r.Register("", "Div", 1, broadcastBinary)
	r.Register("", "Pow", 1, broadcastBinary)
	r.Register("", "Neg", 1, elementwiseUnary)
	r.Register("", "Abs", 1, elementwiseUnary)
	r.Register("", "Sqrt", 1, elementwiseUnary)
	r.Register("", "Exp", 1, elementwiseUnary)
	r.Register("", "Log", 1, elementwiseUnary)
	r.Register("", "MatMul", 1, handleMatMul)
	r.Register("", "Gemm", 1, handleGemm)
}

// elementwiseUnary builds a one-input op node preserving type and shape.
func elementwiseUnary(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 1 {
		return nil, validationf(node, "requires 1 input, got %d", len(node.Inputs))
	}
	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(node.Inputs[0].DType())
	n.Output(0).SetShape(node.Inputs[0].Shape())
	return n.Outputs(), nil
}

// broadcastBinary builds a two-input op node with multidirectional
// broadcasting applied to the output shape.
func broadcastBinary(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 2 {
		return nil, validationf(node, "requires 2 inputs, got %d", len(node.Inputs))
	}
	a, b := node.Inputs[0], node.Inputs[1]
	shape, err := ir.Broadcast(a.Shape(), b.Shape())
	if err != nil {
		return nil, validationf(node, "%v", err)
	}
	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(mergeDType(a.DType(), b.DType()))
	n.Output(0).SetShape(shape)
	return n.Outputs(), nil
}

// mergeDType picks the known element type when one side is still dynamic.
func mergeDType(a, b ir.DType) ir.DType {
	if a == ir.Undefined {
		return b
	}
	return a
}

func handleMatMul(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 2 {
		return nil, validationf(node, "requires 2 inputs, got %d", len(node.Inputs))
	}
	a, b := node.Inputs[0], node.Inputs[1]
	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(mergeDType(a.DType(), b.DType()))
	n.Output(0).SetShape(matmulShape(a.Shape(), b.Shape()))
	return n.Outputs(), nil
}

// matmulShape applies the NumPy matmul shape rule to two partial shapes.
// Rank-1 operands and unranked shapes degrade to an unranked result.
func matmulShape(a, b ir.Shape) ir.Shape {
	if !a.Ranked() || !b.Ranked() || a.Rank() < 2 || b.Rank() < 2 {
		return ir.Dynamic()
	}
	aDims, bDims := a.Dims(), b.Dims()
	batchA := ir.FromDims(aDims[:len(aDims)-2]...)
	batchB := ir.FromDims(bDims[:len(bDims)-2]...)
	batch, err := ir.Broadcast(batchA, batchB)
	if err != nil || !batch.Ranked() {
		return ir.Dynamic()
	}
	dims := append(batch.Dims(), aDims[len(aDims)-2], bDims[len(bDims)-1])
	return ir.FromDims(dims...)
}

func handleGemm(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) < 2 || len(node.Inputs) > 3 {
		return nil, validationf(node, "requires 2 or 3 inputs, got %d", len(node.Inputs))
	}
	a, b := node.Inputs[0], node.Inputs[1]
	transA := GetAttrInt(node, "transA", 0) != 0
	transB := GetAttrInt(node, "transB", 0) != 0

	out := ir.Dynamic()
	if a.Shape().Rank() == 2 && b.Shape().Rank() == 2 {
		m := a.Shape().Dim(0)
		ka := a.Shape().Dim(1)
		if transA {
			m, ka = ka, m
		}
		kb := b.Shape().Dim(0)
		n := b.Shape().Dim(1)
		if transB {
			kb, n = n, kb
		}
		if ka.IsStatic() && kb.IsStatic() && ka.Size() != kb.Size() {
			return nil, validationf(node, "inner dimensions disagree: %s vs %s", ka, kb)
		}
		out = ir.FromDims(m, n)
	}

	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(mergeDType(a.DType(), b.DType()))
	n.Output(0).SetShape(out)
	return n.Outputs(), nil
}
