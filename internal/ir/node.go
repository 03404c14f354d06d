package ir

import "sort"

// Kind distinguishes the node classes of the IR.
type Kind int

const (
	// KindOp is a regular operator node.
	KindOp Kind = iota
	// KindConstant produces a single constant tensor.
	KindConstant
	// KindParameter is a formal input of a function. Top-level graph
	// inputs and synthesized subgraph boundary inputs are parameters.
	KindParameter
	// KindFramework is an opaque placeholder preserving an unconverted
	// operator's identity for later re-resolution.
	KindFramework
)

// Node is a vertex of the dataflow graph. Operator identity (domain and
// type) is set for KindOp and KindFramework nodes; the display name is
// assigned by the importer's naming pass and is empty until then.
type Node struct {
	kind    Kind
	domain  string
	opType  string
	name    string
	inputs  []*Value
	outputs []*Value
	attrs   map[string]any
	bodies  []*Function
	tensor  *Tensor
	payload any
}

// NewConstant creates a constant node producing the given tensor.
func NewConstant(t *Tensor) *Node {
	n := &Node{kind: KindConstant, tensor: t}
	n.addOutputs(1)
	n.outputs[0].dtype = t.DType()
	n.outputs[0].shape = t.Shape()
	return n
}

// NewParameter creates a parameter node with the given value type.
func NewParameter(dtype DType, shape Shape) *Node {
	n := &Node{kind: KindParameter}
	n.addOutputs(1)
	n.outputs[0].dtype = dtype
	n.outputs[0].shape = shape
	return n
}

// NewOp creates an operator node over already-resolved inputs, producing
// numOutputs values of unknown type until the caller refines them.
func NewOp(domain, opType string, inputs []*Value, numOutputs int) *Node {
	n := &Node{kind: KindOp, domain: domain, opType: opType}
	n.setInputs(inputs)
	n.addOutputs(numOutputs)
	return n
}

// NewFramework creates an opaque placeholder node preserving the original
// operator identity.
func NewFramework(domain, opType string, inputs []*Value, numOutputs int) *Node {
	n := &Node{kind: KindFramework, domain: domain, opType: opType}
	n.setInputs(inputs)
	n.addOutputs(numOutputs)
	return n
}

func (n *Node) setInputs(inputs []*Value) {
	n.inputs = make([]*Value, len(inputs))
	for i, in := range inputs {
		n.inputs[i] = in
		in.addUse(n, i)
	}
}

func (n *Node) addOutputs(count int) {
	for i := 0; i < count; i++ {
		n.outputs = append(n.outputs, &Value{node: n, index: len(n.outputs), shape: Dynamic()})
	}
}

// Kind returns the node class.
func (n *Node) Kind() Kind { return n.kind }

// Domain returns the operator domain ("" for the default domain).
func (n *Node) Domain() string { return n.domain }

// OpType returns the operator type, empty for constants and parameters.
func (n *Node) OpType() string { return n.opType }

// Name returns the display name assigned by the naming pass.
func (n *Node) Name() string { return n.name }

// SetName sets the display name. Later assignments overwrite earlier ones.
func (n *Node) SetName(name string) { n.name = name }

// NumInputs returns the number of input edges.
func (n *Node) NumInputs() int { return len(n.inputs) }

// Input returns the value read through input slot i.
func (n *Node) Input(i int) *Value { return n.inputs[i] }

// Inputs returns a copy of the input values.
func (n *Node) Inputs() []*Value {
	out := make([]*Value, len(n.inputs))
	copy(out, n.inputs)
	return out
}

// AppendInput adds a new trailing input edge reading v.
func (n *Node) AppendInput(v *Value) {
	n.inputs = append(n.inputs, v)
	v.addUse(n, len(n.inputs)-1)
}

// ReplaceInput rewires input slot i to read from v, keeping both values'
// use lists consistent.
func (n *Node) ReplaceInput(i int, v *Value) {
	old := n.inputs[i]
	if old != nil {
		old.removeUse(n, i)
	}
	n.inputs[i] = v
	v.addUse(n, i)
}

// NumOutputs returns the number of produced values.
func (n *Node) NumOutputs() int { return len(n.outputs) }

// Output returns the i-th produced value.
func (n *Node) Output(i int) *Value { return n.outputs[i] }

// Outputs returns a copy of the produced values.
func (n *Node) Outputs() []*Value {
	out := make([]*Value, len(n.outputs))
	copy(out, n.outputs)
	return out
}

// Tensor returns the constant payload of a KindConstant node, else nil.
func (n *Node) Tensor() *Tensor { return n.tensor }

// Attr returns a node attribute.
func (n *Node) Attr(name string) (any, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

// SetAttr sets a node attribute.
func (n *Node) SetAttr(name string, value any) {
	if n.attrs == nil {
		n.attrs = make(map[string]any)
	}
	n.attrs[name] = value
}

// AttrNames returns the attribute names in sorted order.
func (n *Node) AttrNames() []string {
	if len(n.attrs) == 0 {
		return nil
	}
	names := make([]string, 0, len(n.attrs))
	for name := range n.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bodies returns the subgraph functions attached to a control-flow or
// framework node.
func (n *Node) Bodies() []*Function { return n.bodies }

// AddBody attaches a subgraph function.
func (n *Node) AddBody(fn *Function) { n.bodies = append(n.bodies, fn) }

// Payload returns the importer-private payload of a framework node.
func (n *Node) Payload() any { return n.payload }

// SetPayload sets the importer-private payload.
func (n *Node) SetPayload(p any) { n.payload = p }
