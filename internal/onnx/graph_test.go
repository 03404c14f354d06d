package onnx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/loom-ml/loom/internal/ir"
	"github.com/loom-ml/loom/internal/onnx/operators"
)

func newTestModel(graph *GraphProto) *Model {
	proto := &ModelProto{
		IRVersion:   8,
		OpsetImport: []OperatorSetID{{Domain: "", Version: 17}},
		Graph:       graph,
	}
	return newModel(proto, operators.NewRegistry(), newExternalDataReader("", true), zap.NewNop())
}

func floatInput(name string, dims ...int64) ValueInfoProto {
	dimProtos := make([]DimensionProto, len(dims))
	for i, d := range dims {
		if d >= 0 {
			dimProtos[i] = DimensionProto{DimValue: d, HasDimValue: true}
		}
	}
	return ValueInfoProto{
		Name: name,
		Type: &TypeProto{TensorType: &TensorTypeProto{
			ElemType: TensorProtoFloat,
			Shape:    &TensorShapeProto{Dims: dimProtos},
		}},
	}
}

func floatInitializer(name string, dims []int64, values []float32) TensorProto {
	data := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return TensorProto{Name: name, DataType: TensorProtoFloat, Dims: dims, RawData: data}
}

func TestConvertSimpleAdd(t *testing.T) {
	model := newTestModel(&GraphProto{
		Name: "adder",
		Nodes: []NodeProto{
			{OpType: "Add", Name: "add0", Inputs: []string{"x", "y"}, Outputs: []string{"sum"}},
		},
		Inputs:  []ValueInfoProto{floatInput("x", 2, 3), floatInput("y", 2, 3)},
		Outputs: []ValueInfoProto{floatInput("sum", 2, 3)},
	})

	fn, err := model.Convert()
	require.NoError(t, err)

	assert.Equal(t, "adder", fn.Name())
	require.Len(t, fn.Parameters(), 2)
	require.Len(t, fn.Results(), 1)

	out := fn.Results()[0]
	assert.Equal(t, ir.Float32, out.DType())
	assert.Equal(t, "[2,3]", out.Shape().String())
	assert.Equal(t, "add0", out.Node().Name())
	assert.True(t, out.HasName("sum"))
	assert.Equal(t, "sum/sink_port_0", fn.ResultName(0))
}

func TestConvertInitializerShadowsInput(t *testing.T) {
	model := newTestModel(&GraphProto{
		Name: "weighted",
		Nodes: []NodeProto{
			{OpType: "MatMul", Inputs: []string{"x", "w"}, Outputs: []string{"y"}},
		},
		Inputs:       []ValueInfoProto{floatInput("x", 2, 4), floatInput("w", 4, 3)},
		Outputs:      []ValueInfoProto{floatInput("y", 2, 3)},
		Initializers: []TensorProto{floatInitializer("w", []int64{4, 3}, make([]float32, 12))},
	})

	assert.Equal(t, []string{"x"}, model.InputNames())

	fn, err := model.Convert()
	require.NoError(t, err)

	// the initializer is a constant, not a parameter
	require.Len(t, fn.Parameters(), 1)
	assert.Equal(t, "x", fn.Parameters()[0].Name())
	assert.Equal(t, "[2,3]", fn.Results()[0].Shape().String())
}

func TestNamingUnnamedNodeUsesOutputName(t *testing.T) {
	model := newTestModel(&GraphProto{
		Name: "unnamed",
		Nodes: []NodeProto{
			{OpType: "Relu", Inputs: []string{"x"}, Outputs: []string{"act"}},
		},
		Inputs:  []ValueInfoProto{floatInput("x", 4)},
		Outputs: []ValueInfoProto{floatInput("act", 4)},
	})

	fn, err := model.Convert()
	require.NoError(t, err)
	assert.Equal(t, "act", fn.Results()[0].Node().Name())
}

func TestNamingIdentityKeepsProducerName(t *testing.T) {
	model := newTestModel(&GraphProto{
		Name: "ident",
		Nodes: []NodeProto{
			{OpType: "Relu", Name: "act", Inputs: []string{"x"}, Outputs: []string{"h"}},
			{OpType: "Identity", Name: "copy", Inputs: []string{"h"}, Outputs: []string{"out"}},
		},
		Inputs:  []ValueInfoProto{floatInput("x", 4)},
		Outputs: []ValueInfoProto{floatInput("out", 4)},
	})

	fn, err := model.Convert()
	require.NoError(t, err)

	out := fn.Results()[0]
	// Identity forwards the value: the producer keeps its own display name
	// and the value accumulates both tensor names.
	assert.Equal(t, "act", out.Node().Name())
	assert.True(t, out.HasName("h"))
	assert.True(t, out.HasName("out"))
	assert.Equal(t, "out/sink_port_0", fn.ResultName(0))
}

func TestRemoveDanglingParameters(t *testing.T) {
	model := newTestModel(&GraphProto{
		Name: "dangling",
		Nodes: []NodeProto{
			{OpType: "Relu", Inputs: []string{"x"}, Outputs: []string{"y"}},
		},
		Inputs:  []ValueInfoProto{floatInput("x", 4), floatInput("unused", 4)},
		Outputs: []ValueInfoProto{floatInput("y", 4)},
	})

	fn, err := model.Convert()
	require.NoError(t, err)

	require.Len(t, fn.Parameters(), 1)
	assert.Equal(t, "x", fn.Parameters()[0].Name())
}

func TestPassThroughParameterSurvivesPruning(t *testing.T) {
	// An input wired directly to a graph output has no node uses, but it
	// must not be pruned.
	model := newTestModel(&GraphProto{
		Name:    "passthrough",
		Inputs:  []ValueInfoProto{floatInput("x", 4)},
		Outputs: []ValueInfoProto{floatInput("x", 4)},
	})

	fn, err := model.Convert()
	require.NoError(t, err)

	require.Len(t, fn.Parameters(), 1)
	require.Len(t, fn.Results(), 1)
	assert.Equal(t, fn.Parameters()[0].Output(0), fn.Results()[0])
}

func TestUnsupportedOperatorsAggregated(t *testing.T) {
	model := newTestModel(&GraphProto{
		Name: "unsupported",
		Nodes: []NodeProto{
			{OpType: "Relu", Inputs: []string{"x"}, Outputs: []string{"h"}},
			{OpType: "FancyOp", Inputs: []string{"h"}, Outputs: []string{"a"}},
			{OpType: "OtherOp", Domain: "com.acme", Inputs: []string{"a"}, Outputs: []string{"b"}},
			{OpType: "FancyOp", Inputs: []string{"b"}, Outputs: []string{"y"}},
		},
		Inputs:  []ValueInfoProto{floatInput("x", 4)},
		Outputs: []ValueInfoProto{floatInput("y", 4)},
	})

	_, err := model.Convert()
	require.Error(t, err)

	var unsupported *UnsupportedOperatorError
	require.ErrorAs(t, err, &unsupported)
	// distinct identifiers, sorted, duplicates collapsed
	assert.Equal(t, []string{"FancyOp", "com.acme.OtherOp"}, unsupported.Operators)
}

func TestCustomDomainEnabledDuringScan(t *testing.T) {
	registry := operators.NewRegistry()
	registry.RegisterDomain("com.acme", map[string]operators.Handler{
		"Double": func(ctx *operators.Context, node *operators.Node) ([]*ir.Value, error) {
			out := ir.NewOp("com.acme", "Double", node.Inputs, 1)
			out.Output(0).SetDType(node.Inputs[0].DType())
			out.Output(0).SetShape(node.Inputs[0].Shape())
			return out.Outputs(), nil
		},
	})
	proto := &ModelProto{
		IRVersion: 8,
		OpsetImport: []OperatorSetID{
			{Domain: "", Version: 17},
			{Domain: "com.acme", Version: 1},
		},
		Graph: &GraphProto{
			Name: "custom",
			Nodes: []NodeProto{
				{OpType: "Double", Domain: "com.acme", Inputs: []string{"x"}, Outputs: []string{"y"}},
			},
			Inputs:  []ValueInfoProto{floatInput("x", 4)},
			Outputs: []ValueInfoProto{floatInput("y", 4)},
		},
	}
	model := newModel(proto, registry, newExternalDataReader("", true), zap.NewNop())

	fn, err := model.Convert()
	require.NoError(t, err)
	assert.Equal(t, "[4]", fn.Results()[0].Shape().String())
}

func TestConvertNodeOutputCountMismatch(t *testing.T) {
	registry := operators.NewRegistry()
	registry.RegisterDomain("com.acme", map[string]operators.Handler{
		"OneOut": func(ctx *operators.Context, node *operators.Node) ([]*ir.Value, error) {
			return ir.NewOp("com.acme", "OneOut", node.Inputs, 1).Outputs(), nil
		},
	})
	proto := &ModelProto{
		IRVersion: 8,
		OpsetImport: []OperatorSetID{
			{Domain: "", Version: 17},
			{Domain: "com.acme", Version: 1},
		},
		Graph: &GraphProto{
			Name: "mismatch",
			Nodes: []NodeProto{
				{OpType: "OneOut", Domain: "com.acme", Name: "bad", Inputs: []string{"x"}, Outputs: []string{"a", "b"}},
			},
			Inputs:  []ValueInfoProto{floatInput("x", 4)},
			Outputs: []ValueInfoProto{floatInput("a", 4)},
		},
	}
	model := newModel(proto, registry, newExternalDataReader("", true), zap.NewNop())

	_, err := model.Convert()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Contains(t, err.Error(), "expected at least 2")
}

func TestConvertExtraOutputsStayUncached(t *testing.T) {
	// A handler may produce more outputs than the source node declares;
	// only the declared ones get tensor names and cache entries.
	registry := operators.NewRegistry()
	registry.RegisterDomain("com.acme", map[string]operators.Handler{
		"ThreeOut": func(ctx *operators.Context, node *operators.Node) ([]*ir.Value, error) {
			n := ir.NewOp("com.acme", "ThreeOut", node.Inputs, 3)
			for i := 0; i < 3; i++ {
				n.Output(i).SetDType(node.Inputs[0].DType())
				n.Output(i).SetShape(node.Inputs[0].Shape())
			}
			return n.Outputs(), nil
		},
	})
	proto := &ModelProto{
		IRVersion: 8,
		OpsetImport: []OperatorSetID{
			{Domain: "", Version: 17},
			{Domain: "com.acme", Version: 1},
		},
		Graph: &GraphProto{
			Name: "extra",
			Nodes: []NodeProto{
				{OpType: "ThreeOut", Domain: "com.acme", Inputs: []string{"x"}, Outputs: []string{"a", "b"}},
			},
			Inputs:  []ValueInfoProto{floatInput("x", 4)},
			Outputs: []ValueInfoProto{floatInput("b", 4)},
		},
	}
	model := newModel(proto, registry, newExternalDataReader("", true), zap.NewNop())

	g, err := newGraph(model, proto.Graph)
	require.NoError(t, err)
	fn, err := g.Convert()
	require.NoError(t, err)

	assert.True(t, g.cache.Contains("a"))
	assert.True(t, g.cache.Contains("b"))

	producer := fn.Results()[0].Node()
	require.Equal(t, 3, producer.NumOutputs())
	assert.True(t, producer.Output(0).HasName("a"))
	assert.True(t, producer.Output(1).HasName("b"))
	assert.Empty(t, producer.Output(2).Names())
	// an unnamed node ends up carrying the last declared output name
	assert.Equal(t, "b", producer.Name())
}

func TestValidationErrorPassesThrough(t *testing.T) {
	// Broadcast-incompatible shapes surface as a validation error carrying
	// the node's own context, not a wrapped conversion error.
	model := newTestModel(&GraphProto{
		Name: "invalid",
		Nodes: []NodeProto{
			{OpType: "Add", Name: "bcast", Inputs: []string{"x", "y"}, Outputs: []string{"z"}},
		},
		Inputs:  []ValueInfoProto{floatInput("x", 2, 3), floatInput("y", 4, 5)},
		Outputs: []ValueInfoProto{floatInput("z", 2, 3)},
	})

	_, err := model.Convert()
	require.Error(t, err)

	var vErr *operators.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "bcast", vErr.Node)
}

func TestDegradedInitializerWarnsAndSubstitutesZero(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	graph := &GraphProto{
		Name: "degraded",
		Nodes: []NodeProto{
			{OpType: "Identity", Inputs: []string{"w"}, Outputs: []string{"y"}},
		},
		Outputs: []ValueInfoProto{floatInput("y")},
		Initializers: []TensorProto{{
			Name:     "w",
			DataType: TensorProtoFloat,
			Segment:  &TensorSegment{Begin: 0, End: 4},
		}},
	}
	proto := &ModelProto{
		IRVersion:   8,
		OpsetImport: []OperatorSetID{{Domain: "", Version: 17}},
		Graph:       graph,
	}
	model := newModel(proto, operators.NewRegistry(), newExternalDataReader("", true), zap.New(core))

	fn, err := model.Convert()
	require.NoError(t, err)

	require.Len(t, fn.Results(), 1)
	out := fn.Results()[0]
	require.Equal(t, ir.KindConstant, out.Node().Kind())
	assert.Equal(t, 0, out.Shape().Rank())

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.WarnLevel, entry.Level)
	assert.Contains(t, entry.Message, "initializer")
}

func TestExternalDataFailureIsFatal(t *testing.T) {
	model := newTestModel(&GraphProto{
		Name: "ext",
		Initializers: []TensorProto{{
			Name:         "w",
			DataType:     TensorProtoFloat,
			Dims:         []int64{2},
			DataLocation: DataLocationExternal,
			// no location entry
		}},
		Outputs: []ValueInfoProto{floatInput("w", 2)},
	})

	_, err := model.Convert()
	require.ErrorIs(t, err, ErrExternalData)
}

func TestConvertMissingGraph(t *testing.T) {
	model := newModel(&ModelProto{IRVersion: 8}, operators.NewRegistry(),
		newExternalDataReader("", true), zap.NewNop())
	_, err := model.Convert()
	require.ErrorIs(t, err, ErrNoGraph)
}

func TestConvertUnknownInputName(t *testing.T) {
	model := newTestModel(&GraphProto{
		Name: "badref",
		Nodes: []NodeProto{
			{OpType: "Relu", Inputs: []string{"missing"}, Outputs: []string{"y"}},
		},
		Outputs: []ValueInfoProto{floatInput("y")},
	})

	_, err := model.Convert()
	require.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestConvertDeterministic(t *testing.T) {
	opTypes := []string{"Relu", "Sigmoid", "Tanh"}

	rapid.Check(t, func(t *rapid.T) {
		depth := rapid.IntRange(1, 6).Draw(t, "depth")
		nodes := make([]NodeProto, depth)
		prev := "x"
		for i := range nodes {
			out := fmt.Sprintf("v%d", i)
			name := ""
			if rapid.Bool().Draw(t, fmt.Sprintf("named%d", i)) {
				name = fmt.Sprintf("layer%d", i)
			}
			nodes[i] = NodeProto{
				OpType:  rapid.SampledFrom(opTypes).Draw(t, fmt.Sprintf("op%d", i)),
				Name:    name,
				Inputs:  []string{prev},
				Outputs: []string{out},
			}
			prev = out
		}
		graph := &GraphProto{
			Name:    "chain",
			Nodes:   nodes,
			Inputs:  []ValueInfoProto{floatInput("x", 4)},
			Outputs: []ValueInfoProto{floatInput(prev, 4)},
		}

		names := func() []string {
			fn, err := newTestModel(graph).Convert()
			if err != nil {
				t.Fatalf("convert: %v", err)
			}
			var out []string
			for _, n := range fn.Nodes() {
				out = append(out, n.Name())
			}
			out = append(out, fn.ResultNames()...)
			return out
		}

		first := names()
		second := names()
		if !assert.ObjectsAreEqual(first, second) {
			t.Fatalf("conversion not deterministic: %v vs %v", first, second)
		}
	})
}

func TestConvertErrorCarriesNodeContext(t *testing.T) {
	model := newTestModel(&GraphProto{
		Name: "ctx",
		Nodes: []NodeProto{
			{OpType: "Relu", Name: "act", Inputs: []string{"nope"}, Outputs: []string{"y"}},
		},
		Outputs: []ValueInfoProto{floatInput("y")},
	})

	_, err := model.Convert()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `node "act" (Relu)`)
	assert.True(t, errors.Is(err, ErrUnknownSymbol))
}
