package operators

import (
	"encoding/binary"

	"github.com/loom-ml/loom/internal/ir"
)

// registerShapeOps adds shape manipulation operators to the registry.
// Squeeze and Unsqueeze moved their axes from an attribute to an input in
// opset 13, so both versions are registered separately.
func (r *Registry) registerShapeOps() {
	r.Register("", "Reshape", 1, handleReshape)
	r.Register("", "Transpose", 1, handleTranspose)
	r.Register("", "Concat", 1, handleConcat)
	r.Register("", "Flatten", 1, handleFlatten)
	r.Register("", "Shape", 1, handleShape)
	r.Register("", "Squeeze", 1, handleSqueezeAttr)
	r.Register("", "Squeeze", 13, handleSqueezeInput)
	r.Register("", "Unsqueeze", 1, handleUnsqueezeAttr)
	r.Register("", "Unsqueeze", 13, handleUnsqueezeInput)
	r.Register("", "Gather", 1, handleGather)
	r.Register("", "Expand", 8, handleExpand)
	r.Register("", "Slice", 1, handleSlice)
}

// constInts folds a value produced by a constant node into its int64
// elements. The second result is false when the value is not a foldable
// integer constant.
func constInts(v *ir.Value) ([]int64, bool) {
	if ir.IsNull(v) || v.Node() == nil || v.Node().Kind() != ir.KindConstant {
		return nil, false
	}
	ints, err := v.Node().Tensor().Int64s()
	if err != nil {
		return nil, false
	}
	return ints, true
}

func handleReshape(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 2 {
		return nil, validationf(node, "requires 2 inputs (data, shape), got %d", len(node.Inputs))
	}
	data, shapeIn := node.Inputs[0], node.Inputs[1]

	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(data.DType())
	n.Output(0).SetShape(reshapeShape(data.Shape(), shapeIn))
	return n.Outputs(), nil
}

// reshapeShape folds a constant target shape, applying the ONNX 0 (copy
// input dimension) and -1 (infer) rules. A non-constant target with a
// static rank-1 shape still pins the output rank.
func reshapeShape(in ir.Shape, shapeIn *ir.Value) ir.Shape {
	target, ok := constInts(shapeIn)
	if !ok {
		if shapeIn.Shape().Rank() == 1 && shapeIn.Shape().Dim(0).IsStatic() {
			dims := make([]ir.Dim, shapeIn.Shape().Dim(0).Size())
			for i := range dims {
				dims[i] = ir.DynamicDim()
			}
			return ir.FromDims(dims...)
		}
		return ir.Dynamic()
	}

	dims := make([]ir.Dim, len(target))
	inferAt := -1
	known := int64(1)
	allKnown := true
	for i, v := range target {
		switch {
		case v == 0:
			if in.Ranked() && i < in.Rank() {
				dims[i] = in.Dim(i)
			} else {
				dims[i] = ir.DynamicDim()
			}
		case v == -1:
			inferAt = i
			dims[i] = ir.DynamicDim()
		default:
			dims[i] = ir.StaticDim(v)
		}
		if i != inferAt && !dims[i].IsStatic() {
			allKnown = false
		} else if i != inferAt {
			known *= dims[i].Size()
		}
	}
	if inferAt >= 0 && allKnown && known > 0 {
		if total, ok := in.NumElements(); ok {
			dims[inferAt] = ir.StaticDim(total / known)
		}
	}
	return ir.FromDims(dims...)
}

func handleTranspose(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 1 {
		return nil, validationf(node, "requires 1 input, got %d", len(node.Inputs))
	}
	in := node.Inputs[0]
	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(in.DType())

	if in.Shape().Ranked() {
		rank := in.Shape().Rank()
		perm := GetAttrInts(node, "perm")
		if perm == nil {
			perm = make([]int64, rank)
			for i := range perm {
				perm[i] = int64(rank - 1 - i)
			}
		}
		if len(perm) != rank {
			return nil, validationf(node, "perm has %d entries for rank %d input", len(perm), rank)
		}
		dims := make([]ir.Dim, rank)
		for i, p := range perm {
			if p < 0 || p >= int64(rank) {
				return nil, validationf(node, "perm entry %d out of range for rank %d", p, rank)
			}
			dims[i] = in.Shape().Dim(int(p))
		}
		n.Output(0).SetShape(ir.FromDims(dims...))
	}
	return n.Outputs(), nil
}

func handleConcat(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) == 0 {
		return nil, validationf(node, "requires at least 1 input")
	}
	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(node.Inputs[0].DType())

	first := node.Inputs[0].Shape()
	if first.Ranked() {
		rank := first.Rank()
		axis := int(GetAttrInt(node, "axis", 0))
		if axis < 0 {
			axis += rank
		}
		if axis < 0 || axis >= rank {
			return nil, validationf(node, "axis %d out of range for rank %d", axis, rank)
		}
		dims := first.Dims()
		sum := int64(0)
		static := true
		for _, in := range node.Inputs {
			s := in.Shape()
			if !s.Ranked() || s.Rank() != rank || !s.Dim(axis).IsStatic() {
				static = false
				break
			}
			sum += s.Dim(axis).Size()
		}
		if static {
			dims[axis] = ir.StaticDim(sum)
		} else {
			dims[axis] = ir.DynamicDim()
		}
		n.Output(0).SetShape(ir.FromDims(dims...))
	}
	return n.Outputs(), nil
}

func handleFlatten(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 1 {
		return nil, validationf(node, "requires 1 input, got %d", len(node.Inputs))
	}
	in := node.Inputs[0]
	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(in.DType())

	if in.Shape().Ranked() {
		rank := in.Shape().Rank()
		axis := int(GetAttrInt(node, "axis", 1))
		if axis < 0 {
			axis += rank
		}
		if axis < 0 || axis > rank {
			return nil, validationf(node, "axis %d out of range for rank %d", axis, rank)
		}
		outer, inner := flattenDim(in.Shape(), 0, axis), flattenDim(in.Shape(), axis, rank)
		n.Output(0).SetShape(ir.FromDims(outer, inner))
	}
	return n.Outputs(), nil
}

// flattenDim folds dims[from:to] into one dimension, dynamic when any of
// them is dynamic.
func flattenDim(s ir.Shape, from, to int) ir.Dim {
	size := int64(1)
	for i := from; i < to; i++ {
		if !s.Dim(i).IsStatic() {
			return ir.DynamicDim()
		}
		size *= s.Dim(i).Size()
	}
	return ir.StaticDim(size)
}

func handleShape(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 1 {
		return nil, validationf(node, "requires 1 input, got %d", len(node.Inputs))
	}
	in := node.Inputs[0]

	// A fully static input shape folds to an int64 constant, which keeps
	// downstream Reshape targets foldable.
	if sizes, ok := in.Shape().Sizes(); ok {
		data := make([]byte, len(sizes)*8)
		for i, v := range sizes {
			binary.LittleEndian.PutUint64(data[i*8:], uint64(v)) //nolint:gosec // G115: bit reinterpretation.
		}
		t, err := ir.NewTensor(ir.Int64, ir.Static(int64(len(sizes))), data)
		if err != nil {
			return nil, validationf(node, "%v", err)
		}
		return ir.NewConstant(t).Outputs(), nil
	}

	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(ir.Int64)
	if in.Shape().Ranked() {
		n.Output(0).SetShape(ir.Static(int64(in.Shape().Rank())))
	} else {
		n.Output(0).SetShape(ir.FromDims(ir.DynamicDim()))
	}
	return n.Outputs(), nil
}

func handleSqueezeAttr(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 1 {
		return nil, validationf(node, "requires 1 input, got %d", len(node.Inputs))
	}
	return squeeze(node, node.Inputs[0], GetAttrInts(node, "axes"), true)
}

func handleSqueezeInput(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) < 1 || len(node.Inputs) > 2 {
		return nil, validationf(node, "requires 1 or 2 inputs, got %d", len(node.Inputs))
	}
	var axes []int64
	known := true
	if len(node.Inputs) == 2 && !ir.IsNull(node.Inputs[1]) {
		axes, known = constInts(node.Inputs[1])
	}
	return squeeze(node, node.Inputs[0], axes, known)
}

func squeeze(node *Node, in *ir.Value, axes []int64, axesKnown bool) ([]*ir.Value, error) {
	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(in.DType())

	s := in.Shape()
	switch {
	case !axesKnown || !s.Ranked():
		// rank unknown until the axes resolve
	case len(axes) == 0:
		if s.IsStatic() {
			var dims []ir.Dim
			for _, d := range s.Dims() {
				if d.Size() != 1 {
					dims = append(dims, d)
				}
			}
			n.Output(0).SetShape(ir.FromDims(dims...))
		}
	default:
		drop := make(map[int]bool, len(axes))
		for _, a := range axes {
			if a < 0 {
				a += int64(s.Rank())
			}
			if a < 0 || a >= int64(s.Rank()) {
				return nil, validationf(node, "axis %d out of range for rank %d", a, s.Rank())
			}
			drop[int(a)] = true
		}
		var dims []ir.Dim
		for i, d := range s.Dims() {
			if !drop[i] {
				dims = append(dims, d)
			}
		}
		n.Output(0).SetShape(ir.FromDims(dims...))
	}
	return n.Outputs(), nil
}

func handleUnsqueezeAttr(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 1 {
		return nil, validationf(node, "requires 1 input, got %d", len(node.Inputs))
	}
	axes := GetAttrInts(node, "axes")
	if axes == nil {
		return nil, validationf(node, "missing required attribute %q", "axes")
	}
	return unsqueeze(node, node.Inputs[0], axes, true)
}

func handleUnsqueezeInput(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 2 {
		return nil, validationf(node, "requires 2 inputs (data, axes), got %d", len(node.Inputs))
	}
	axes, known := constInts(node.Inputs[1])
	return unsqueeze(node, node.Inputs[0], axes, known)
}

func unsqueeze(node *Node, in *ir.Value, axes []int64, axesKnown bool) ([]*ir.Value, error) {
	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(in.DType())

	s := in.Shape()
	if axesKnown && s.Ranked() {
		outRank := s.Rank() + len(axes)
		insert := make(map[int]bool, len(axes))
		for _, a := range axes {
			if a < 0 {
				a += int64(outRank)
			}
			if a < 0 || a >= int64(outRank) {
				return nil, validationf(node, "axis %d out of range for output rank %d", a, outRank)
			}
			insert[int(a)] = true
		}
		dims := make([]ir.Dim, 0, outRank)
		next := 0
		for i := 0; i < outRank; i++ {
			if insert[i] {
				dims = append(dims, ir.StaticDim(1))
			} else {
				dims = append(dims, s.Dim(next))
				next++
			}
		}
		n.Output(0).SetShape(ir.FromDims(dims...))
	}
	return n.Outputs(), nil
}

func handleGather(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 2 {
		return nil, validationf(node, "requires 2 inputs (data, indices), got %d", len(node.Inputs))
	}
	data, indices := node.Inputs[0], node.Inputs[1]
	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(data.DType())

	if data.Shape().Ranked() && indices.Shape().Ranked() {
		rank := data.Shape().Rank()
		axis := int(GetAttrInt(node, "axis", 0))
		if axis < 0 {
			axis += rank
		}
		if axis < 0 || axis >= rank {
			return nil, validationf(node, "axis %d out of range for rank %d", axis, rank)
		}
		dims := make([]ir.Dim, 0, rank-1+indices.Shape().Rank())
		dims = append(dims, data.Shape().Dims()[:axis]...)
		dims = append(dims, indices.Shape().Dims()...)
		dims = append(dims, data.Shape().Dims()[axis+1:]...)
		n.Output(0).SetShape(ir.FromDims(dims...))
	}
	return n.Outputs(), nil
}

func handleExpand(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 2 {
		return nil, validationf(node, "requires 2 inputs (data, shape), got %d", len(node.Inputs))
	}
	data := node.Inputs[0]
	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(data.DType())

	if target, ok := constInts(node.Inputs[1]); ok {
		out, err := ir.Broadcast(data.Shape(), ir.Static(target...))
		if err != nil {
			return nil, validationf(node, "%v", err)
		}
		n.Output(0).SetShape(out)
	}
	return n.Outputs(), nil
}

func handleSlice(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) < 1 {
		return nil, validationf(node, "requires at least 1 input")
	}
	in := node.Inputs[0]
	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(in.DType())

	// Slicing keeps the rank; the sizes stay unknown without folding the
	// start/end/step operands.
	if in.Shape().Ranked() {
		dims := make([]ir.Dim, in.Shape().Rank())
		for i := range dims {
			dims[i] = ir.DynamicDim()
		}
		n.Output(0).SetShape(ir.FromDims(dims...))
	}
	return n.Outputs(), nil
}
