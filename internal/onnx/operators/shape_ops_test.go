package operators

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ml/loom/internal/ir"
)

func int64Const(t *testing.T, values ...int64) *ir.Value {
	t.Helper()
	data := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(data[i*8:], uint64(v))
	}
	tensor, err := ir.NewTensor(ir.Int64, ir.Static(int64(len(values))), data)
	require.NoError(t, err)
	return ir.NewConstant(tensor).Output(0)
}

func dispatch(t *testing.T, opType string, opset int64, node *Node) []*ir.Value {
	t.Helper()
	node.OpType = opType
	h, err := NewRegistry().Get("", opType, opset)
	require.NoError(t, err)
	outs, err := h(&Context{Opset: opset}, node)
	require.NoError(t, err)
	return outs
}

func TestReshapeFoldsConstantShape(t *testing.T) {
	data := ir.NewParameter(ir.Float32, ir.Static(2, 3, 4)).Output(0)

	outs := dispatch(t, "Reshape", 13, &Node{
		Inputs:  []*ir.Value{data, int64Const(t, 0, -1)},
		Outputs: []string{"y"},
	})
	assert.Equal(t, "[2,12]", outs[0].Shape().String())
	assert.Equal(t, ir.Float32, outs[0].DType())
}

func TestReshapeNonConstantShapePinsRank(t *testing.T) {
	data := ir.NewParameter(ir.Float32, ir.Static(2, 3)).Output(0)
	shape := ir.NewParameter(ir.Int64, ir.Static(3)).Output(0)

	outs := dispatch(t, "Reshape", 13, &Node{
		Inputs:  []*ir.Value{data, shape},
		Outputs: []string{"y"},
	})
	assert.Equal(t, "[?,?,?]", outs[0].Shape().String())
}

func TestShapeFoldsToConstant(t *testing.T) {
	data := ir.NewParameter(ir.Float32, ir.Static(5, 7)).Output(0)

	outs := dispatch(t, "Shape", 13, &Node{
		Inputs:  []*ir.Value{data},
		Outputs: []string{"y"},
	})
	require.Equal(t, ir.KindConstant, outs[0].Node().Kind())
	sizes, err := outs[0].Node().Tensor().Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 7}, sizes)
}

func TestShapeDynamicInputStaysOp(t *testing.T) {
	data := ir.NewParameter(ir.Float32, ir.FromDims(ir.NamedDim("batch"), ir.StaticDim(7))).Output(0)

	outs := dispatch(t, "Shape", 13, &Node{
		Inputs:  []*ir.Value{data},
		Outputs: []string{"y"},
	})
	assert.Equal(t, ir.KindOp, outs[0].Node().Kind())
	assert.Equal(t, ir.Int64, outs[0].DType())
	assert.Equal(t, "[2]", outs[0].Shape().String())
}

func TestTransposeDefaultReversesDims(t *testing.T) {
	data := ir.NewParameter(ir.Float32, ir.Static(2, 3, 4)).Output(0)

	outs := dispatch(t, "Transpose", 13, &Node{
		Inputs:  []*ir.Value{data},
		Outputs: []string{"y"},
	})
	assert.Equal(t, "[4,3,2]", outs[0].Shape().String())
}

func TestConcatSumsAxis(t *testing.T) {
	a := ir.NewParameter(ir.Float32, ir.Static(2, 3)).Output(0)
	b := ir.NewParameter(ir.Float32, ir.Static(2, 5)).Output(0)

	outs := dispatch(t, "Concat", 13, &Node{
		Inputs:  []*ir.Value{a, b},
		Outputs: []string{"y"},
		Attrs:   []Attribute{{Name: "axis", Type: AttrInt, I: 1}},
	})
	assert.Equal(t, "[2,8]", outs[0].Shape().String())
}

func TestGatherShape(t *testing.T) {
	data := ir.NewParameter(ir.Float32, ir.Static(10, 4)).Output(0)
	indices := ir.NewParameter(ir.Int64, ir.Static(3, 2)).Output(0)

	outs := dispatch(t, "Gather", 13, &Node{
		Inputs:  []*ir.Value{data, indices},
		Outputs: []string{"y"},
	})
	assert.Equal(t, "[3,2,4]", outs[0].Shape().String())
}

func TestBroadcastBinaryShapes(t *testing.T) {
	a := ir.NewParameter(ir.Float32, ir.Static(4, 1, 3)).Output(0)
	b := ir.NewParameter(ir.Float32, ir.Static(2, 1)).Output(0)

	outs := dispatch(t, "Add", 13, &Node{
		Inputs:  []*ir.Value{a, b},
		Outputs: []string{"y"},
	})
	assert.Equal(t, "[4,2,3]", outs[0].Shape().String())

	// Incompatible static dimensions fail validation.
	c := ir.NewParameter(ir.Float32, ir.Static(4, 5)).Output(0)
	d := ir.NewParameter(ir.Float32, ir.Static(3)).Output(0)
	h, err := NewRegistry().Get("", "Add", 13)
	require.NoError(t, err)
	_, err = h(&Context{Opset: 13}, &Node{OpType: "Add", Inputs: []*ir.Value{c, d}, Outputs: []string{"y"}})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestMatMulBatchShape(t *testing.T) {
	a := ir.NewParameter(ir.Float32, ir.Static(8, 2, 3)).Output(0)
	b := ir.NewParameter(ir.Float32, ir.Static(3, 5)).Output(0)

	outs := dispatch(t, "MatMul", 13, &Node{
		Inputs:  []*ir.Value{a, b},
		Outputs: []string{"y"},
	})
	assert.Equal(t, "[8,2,5]", outs[0].Shape().String())
}
