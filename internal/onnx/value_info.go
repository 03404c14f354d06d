package onnx

import (
	"github.com/loom-ml/loom/internal/ir"
)

// shapeFromProto converts a TypeProto shape into a partial IR shape.
// dim_param entries become named symbolic dimensions; a missing shape
// message means the value is unranked.
func shapeFromProto(shape *TensorShapeProto) ir.Shape {
	if shape == nil {
		return ir.Dynamic()
	}
	dims := make([]ir.Dim, len(shape.Dims))
	for i, d := range shape.Dims {
		switch {
		case d.HasDimValue:
			dims[i] = ir.StaticDim(d.DimValue)
		case d.DimParam != "":
			dims[i] = ir.NamedDim(d.DimParam)
		default:
			dims[i] = ir.DynamicDim()
		}
	}
	return ir.FromDims(dims...)
}

// parameterFromValueInfo converts a declared graph input into a Parameter
// node. When the input carries no type information, the matching
// initializer (if any) supplies the element type and shape; otherwise the
// parameter stays fully dynamic.
func parameterFromValueInfo(vi *ValueInfoProto, initializers map[string]*TensorProto) *ir.Node {
	dtype := ir.Undefined
	shape := ir.Dynamic()

	if vi.Type != nil && vi.Type.TensorType != nil {
		if dt, err := protoDType(vi.Type.TensorType.ElemType); err == nil {
			dtype = dt
		}
		shape = shapeFromProto(vi.Type.TensorType.Shape)
	} else if init, ok := initializers[vi.Name]; ok {
		if dt, err := protoDType(init.DataType); err == nil {
			dtype = dt
		}
		shape = ir.Static(init.Dims...)
	}

	param := ir.NewParameter(dtype, shape)
	param.SetName(vi.Name)
	param.Output(0).AddName(vi.Name)
	return param
}
