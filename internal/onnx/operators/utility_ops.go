package operators

import (
	"github.com/loom-ml/loom/internal/ir"
)

// registerUtilityOps adds utility operators to the registry.
func (r *Registry) registerUtilityOps() {
	r.Register("", "Identity", 1, handleIdentity)
	r.Register("", "Cast", 1, handleCast)
	r.Register("", "Constant", 1, handleConstant)
	r.Register("", "ConstantOfShape", 9, handleConstantOfShape)
	r.Register("", "Dropout", 1, handleDropout)
	r.Register("", "Where", 9, handleWhere)
	r.Register("", "Range", 11, handleRange)
}

// ONNX data types (TensorProto.DataType), used by the Cast "to" attribute.
// Duplicated here to avoid an import cycle with the onnx package.
const (
	tensorProtoFloat    = 1
	tensorProtoUint8    = 2
	tensorProtoInt8     = 3
	tensorProtoUint16   = 4
	tensorProtoInt16    = 5
	tensorProtoInt32    = 6
	tensorProtoInt64    = 7
	tensorProtoString   = 8
	tensorProtoBool     = 9
	tensorProtoFloat16  = 10
	tensorProtoDouble   = 11
	tensorProtoUint32   = 12
	tensorProtoUint64   = 13
	tensorProtoBfloat16 = 16
)

// castDType maps a Cast "to" attribute value to the IR element type.
func castDType(to int64) (ir.DType, bool) {
	switch to {
	case tensorProtoFloat:
		return ir.Float32, true
	case tensorProtoDouble:
		return ir.Float64, true
	case tensorProtoFloat16:
		return ir.Float16, true
	case tensorProtoBfloat16:
		return ir.BFloat16, true
	case tensorProtoInt8:
		return ir.Int8, true
	case tensorProtoInt16:
		return ir.Int16, true
	case tensorProtoInt32:
		return ir.Int32, true
	case tensorProtoInt64:
		return ir.Int64, true
	case tensorProtoUint8:
		return ir.Uint8, true
	case tensorProtoUint16:
		return ir.Uint16, true
	case tensorProtoUint32:
		return ir.Uint32, true
	case tensorProtoUint64:
		return ir.Uint64, true
	case tensorProtoBool:
		return ir.Bool, true
	case tensorProtoString:
		return ir.String, true
	default:
		return ir.Undefined, false
	}
}

// handleIdentity passes the input value through unchanged. The naming pass
// treats Identity specially, so the declared output name lands on the
// original value without renaming its producer.
func handleIdentity(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 1 {
		return nil, validationf(node, "requires 1 input, got %d", len(node.Inputs))
	}
	return []*ir.Value{node.Inputs[0]}, nil
}

func handleCast(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 1 {
		return nil, validationf(node, "requires 1 input, got %d", len(node.Inputs))
	}
	to := GetAttrInt(node, "to", 0)
	dtype, ok := castDType(to)
	if !ok {
		return nil, validationf(node, "unsupported target type %d", to)
	}
	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(dtype)
	n.Output(0).SetShape(node.Inputs[0].Shape())
	return n.Outputs(), nil
}

func handleConstant(_ *Context, node *Node) ([]*ir.Value, error) {
	t, ok := GetAttrTensor(node, "value")
	if !ok {
		return nil, validationf(node, "missing required attribute %q", "value")
	}
	return ir.NewConstant(t).Outputs(), nil
}

func handleConstantOfShape(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 1 {
		return nil, validationf(node, "requires 1 input, got %d", len(node.Inputs))
	}
	dtype := ir.Float32
	if t, ok := GetAttrTensor(node, "value"); ok {
		dtype = t.DType()
	}
	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(dtype)
	if target, ok := constInts(node.Inputs[0]); ok {
		n.Output(0).SetShape(ir.Static(target...))
	}
	return n.Outputs(), nil
}

// handleDropout is a pass-through at import time. When the mask output is
// declared it is synthesized structurally via Shape + ConstantOfShape so
// nothing downstream dangles.
func handleDropout(ctx *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) < 1 {
		return nil, validationf(node, "requires at least 1 input")
	}
	data := node.Inputs[0]
	outputs := []*ir.Value{data}

	if len(node.Outputs) > 1 {
		shapeOuts, err := handleShape(ctx, &Node{
			Name:    node.Name,
			OpType:  "Shape",
			Inputs:  []*ir.Value{data},
			Outputs: []string{""},
		})
		if err != nil {
			return nil, err
		}
		mask := ir.NewOp("", "ConstantOfShape", shapeOuts, 1)
		mask.Output(0).SetDType(ir.Bool)
		mask.Output(0).SetShape(data.Shape())
		outputs = append(outputs, mask.Output(0))
	}
	return outputs, nil
}

func handleWhere(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 3 {
		return nil, validationf(node, "requires 3 inputs (condition, x, y), got %d", len(node.Inputs))
	}
	cond, x, y := node.Inputs[0], node.Inputs[1], node.Inputs[2]
	shape, err := ir.Broadcast(x.Shape(), y.Shape())
	if err == nil {
		shape, err = ir.Broadcast(shape, cond.Shape())
	}
	if err != nil {
		return nil, validationf(node, "%v", err)
	}
	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(mergeDType(x.DType(), y.DType()))
	n.Output(0).SetShape(shape)
	return n.Outputs(), nil
}

func handleRange(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 3 {
		return nil, validationf(node, "requires 3 inputs (start, limit, delta), got %d", len(node.Inputs))
	}
	n := ir.NewOp(node.Domain, node.OpType, node.Inputs, 1)
	n.Output(0).SetDType(node.Inputs[0].DType())
	n.Output(0).SetShape(ir.FromDims(ir.DynamicDim()))
	return n.Outputs(), nil
}
