package operators

import (
	"github.com/loom-ml/loom/internal/ir"
)

// ONNX attribute types (AttributeProto.Type). Duplicated here to avoid an
// import cycle between the onnx and operators packages.
const (
	AttrUndefined = 0
	AttrFloat     = 1
	AttrInt       = 2
	AttrString    = 3
	AttrTensor    = 4
	AttrGraph     = 5
	AttrFloats    = 6
	AttrInts      = 7
	AttrStrings   = 8
	AttrTensors   = 9
	AttrGraphs    = 10
)

// Node is the builder-side view of one ONNX node handed to a handler: the
// operator identity, the already-resolved input values, the declared output
// names, converted attributes, and any converted subgraph bodies.
type Node struct {
	Name    string      // Declared node name (optional)
	Domain  string      // Operator domain (empty for the default domain)
	OpType  string      // Operator type (e.g., "Add", "Loop")
	Inputs  []*ir.Value // Resolved inputs; ir.Null() marks an absent optional
	Outputs []string    // Declared output names
	Attrs   []Attribute // Converted attributes
	Bodies  []Body      // Converted subgraphs, ordered by attribute name
}

// Attribute is a converted node attribute with typed fields. Subgraph
// attributes are not carried here; they arrive as Bodies.
type Attribute struct {
	Name    string
	Type    int32
	F       float32
	I       int64
	S       []byte
	Floats  []float32
	Ints    []int64
	Strings [][]byte
	Tensor  *ir.Tensor
	Tensors []*ir.Tensor
}

// Body is one converted subgraph of a control-flow node: the attribute it
// came from, the converted function, and the parent-scope values captured
// by the function's boundary parameters, in parameter order.
//
// Refresh re-fetches the current type and shape of every captured parent
// value onto the corresponding boundary parameter and returns the current
// parent values. Handlers call it before wiring the captures as inputs, so
// a subgraph template converted once stays consistent with a parent scope
// refined after its conversion.
type Body struct {
	Attr     string
	Fn       *ir.Function
	Captures []*ir.Value
	Refresh  func() ([]*ir.Value, error)
}

// Body returns the converted subgraph attached under the given attribute
// name, or nil.
func (n *Node) Body(attr string) *Body {
	for i := range n.Bodies {
		if n.Bodies[i].Attr == attr {
			return &n.Bodies[i]
		}
	}
	return nil
}

// GetAttrInt returns an integer attribute or the default value.
func GetAttrInt(node *Node, name string, defaultVal int64) int64 {
	for i := range node.Attrs {
		if node.Attrs[i].Name == name {
			return node.Attrs[i].I
		}
	}
	return defaultVal
}

// GetAttrInts returns an integer array attribute, or nil.
func GetAttrInts(node *Node, name string) []int64 {
	for i := range node.Attrs {
		if node.Attrs[i].Name == name {
			return node.Attrs[i].Ints
		}
	}
	return nil
}

// GetAttrFloat returns a float attribute or the default value.
func GetAttrFloat(node *Node, name string, defaultVal float32) float32 {
	for i := range node.Attrs {
		if node.Attrs[i].Name == name {
			return node.Attrs[i].F
		}
	}
	return defaultVal
}

// GetAttrString returns a string attribute or the default value.
func GetAttrString(node *Node, name, defaultVal string) string {
	for i := range node.Attrs {
		if node.Attrs[i].Name == name {
			return string(node.Attrs[i].S)
		}
	}
	return defaultVal
}

// GetAttrTensor returns a tensor attribute.
func GetAttrTensor(node *Node, name string) (*ir.Tensor, bool) {
	for i := range node.Attrs {
		if node.Attrs[i].Name == name && node.Attrs[i].Tensor != nil {
			return node.Attrs[i].Tensor, true
		}
	}
	return nil, false
}
