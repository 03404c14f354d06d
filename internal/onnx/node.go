package onnx

import (
	"fmt"
	"sort"

	"github.com/loom-ml/loom/internal/ir"
	"github.com/loom-ml/loom/internal/onnx/operators"
)

// nodeView is the builder-side view of one graph node: it resolves the
// node's declared input names through the owning builder's scope chain and
// converts its attributes into the operator library's form.
type nodeView struct {
	proto *NodeProto
	g     *Graph
}

func (n *nodeView) domain() string { return normalizeDomain(n.proto.Domain) }

func (n *nodeView) opType() string { return n.proto.OpType }

func (n *nodeView) name() string { return n.proto.Name }

func (n *nodeView) outputCount() int { return len(n.proto.Outputs) }

func (n *nodeView) output(i int) string { return n.proto.Outputs[i] }

// opID formats the node's operator identity for error reporting.
func (n *nodeView) opID() string {
	return opIdentifier(n.domain(), n.opType())
}

// errorContext prefixes an error with node-identifying context.
func (n *nodeView) errorContext(err error) error {
	if n.name() != "" {
		return fmt.Errorf("node %q (%s): %w", n.name(), n.opID(), err)
	}
	return fmt.Errorf("node (%s): %w", n.opID(), err)
}

// resolvedInputs looks up every declared input name in the builder's scope
// chain. An empty name marks an absent optional operand and resolves to
// the null value.
func (n *nodeView) resolvedInputs() ([]*ir.Value, error) {
	inputs := make([]*ir.Value, len(n.proto.Inputs))
	for i, name := range n.proto.Inputs {
		if name == "" {
			inputs[i] = ir.Null()
			continue
		}
		v, err := n.g.scope.nodeFromCache(name)
		if err != nil {
			return nil, n.errorContext(err)
		}
		inputs[i] = v
	}
	return inputs, nil
}

// subgraphAttr is one nested graph carried by a control-flow node.
type subgraphAttr struct {
	name  string
	graph *GraphProto
}

// subgraphAttrs collects the node's GRAPH and GRAPHS attributes, ordered
// by attribute name so subgraph conversion order is deterministic.
func (n *nodeView) subgraphAttrs() []subgraphAttr {
	var out []subgraphAttr
	for i := range n.proto.Attributes {
		attr := &n.proto.Attributes[i]
		if attr.G != nil {
			out = append(out, subgraphAttr{name: attr.Name, graph: attr.G})
		}
		for j := range attr.Graphs {
			out = append(out, subgraphAttr{name: attr.Name, graph: &attr.Graphs[j]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (n *nodeView) hasSubgraphs() bool {
	for i := range n.proto.Attributes {
		if n.proto.Attributes[i].G != nil || len(n.proto.Attributes[i].Graphs) > 0 {
			return true
		}
	}
	return false
}

// operatorNode assembles the operator library's node form from the
// resolved inputs and any already-converted subgraph bodies.
func (n *nodeView) operatorNode(inputs []*ir.Value, bodies []operators.Body) (*operators.Node, error) {
	attrs := make([]operators.Attribute, 0, len(n.proto.Attributes))
	for i := range n.proto.Attributes {
		attr, err := n.convertAttribute(&n.proto.Attributes[i])
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return &operators.Node{
		Name:    n.proto.Name,
		Domain:  n.domain(),
		OpType:  n.proto.OpType,
		Inputs:  inputs,
		Outputs: n.proto.Outputs,
		Attrs:   attrs,
		Bodies:  bodies,
	}, nil
}

func (n *nodeView) convertAttribute(attr *AttributeProto) (operators.Attribute, error) {
	out := operators.Attribute{
		Name:    attr.Name,
		Type:    attr.Type,
		F:       attr.F,
		I:       attr.I,
		S:       attr.S,
		Floats:  attr.Floats,
		Ints:    attr.Ints,
		Strings: attr.Strings,
	}
	if attr.T != nil {
		t, err := materializeTensor(attr.T, n.g.model.ext)
		if err != nil {
			return operators.Attribute{}, n.errorContext(fmt.Errorf("attribute %q: %w", attr.Name, err))
		}
		out.Tensor = t
	}
	for i := range attr.Tensors {
		t, err := materializeTensor(&attr.Tensors[i], n.g.model.ext)
		if err != nil {
			return operators.Attribute{}, n.errorContext(fmt.Errorf("attribute %q: %w", attr.Name, err))
		}
		out.Tensors = append(out.Tensors, t)
	}
	return out, nil
}
