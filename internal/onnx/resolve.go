package onnx

import (
	"errors"
	"fmt"

	"github.com/loom-ml/loom/internal/ir"
	"github.com/loom-ml/loom/internal/onnx/operators"
)

// frameworkPayload is the importer-private payload of a decoded framework
// node: enough to re-attempt conversion of the original node through the
// builder that produced it.
type frameworkPayload struct {
	proto  *NodeProto
	graph  *Graph
	bodies []operators.Body
}

// Resolve converts the framework nodes of a decoded function in place,
// splicing each node's real conversion into the graph. It recurses into
// decoded subgraph bodies before dispatching their owning node.
//
// Availability is re-checked first with the same enable-then-retry pass
// used at construction, so operators registered since the decode are
// picked up; anything still missing aborts with one aggregated error
// before any splicing happens.
func Resolve(fn *ir.Function) error {
	attr, ok := fn.Attr(FunctionGraphAttr)
	if !ok {
		return errors.New("function carries no decode state to resolve")
	}
	g, ok := attr.(*Graph)
	if !ok {
		return fmt.Errorf("unexpected decode state of type %T", attr)
	}
	if err := g.validateOperators(); err != nil {
		return err
	}

	for _, n := range fn.Nodes() {
		if n.Kind() != ir.KindFramework {
			continue
		}
		payload, ok := n.Payload().(*frameworkPayload)
		if !ok {
			return fmt.Errorf("framework node %q carries no decode state", n.Name())
		}
		if err := resolveNode(fn, n, payload); err != nil {
			return err
		}
	}
	return nil
}

func resolveNode(fn *ir.Function, n *ir.Node, payload *frameworkPayload) error {
	node := &nodeView{proto: payload.proto, g: payload.graph}

	for i := range payload.bodies {
		if err := Resolve(payload.bodies[i].Fn); err != nil {
			return node.errorContext(err)
		}
	}

	handler, err := payload.graph.model.GetOperator(node.domain(), node.opType())
	if err != nil {
		return node.errorContext(err)
	}

	// The framework node's leading inputs are the declared ones; trailing
	// slots hold capture values appended at decode time.
	inputs := n.Inputs()[:len(payload.proto.Inputs)]
	opNode, err := node.operatorNode(inputs, payload.bodies)
	if err != nil {
		return err
	}

	ctx := &operators.Context{Opset: payload.graph.model.Opset(node.domain()), Log: payload.graph.log}
	outputs, err := handler(ctx, opNode)
	if err != nil {
		var vErr *operators.ValidationError
		if errors.As(err, &vErr) {
			return err
		}
		return node.errorContext(err)
	}
	if len(outputs) < node.outputCount() {
		return node.errorContext(fmt.Errorf("produced %d outputs, expected at least %d",
			len(outputs), node.outputCount()))
	}

	payload.graph.setOutputNames(node, outputs)
	for i := 0; i < node.outputCount(); i++ {
		old := n.Output(i)
		old.ReplaceAllUsesWith(outputs[i])
		fn.ReplaceResult(old, outputs[i])
		payload.graph.cache.Insert(node.output(i), outputs[i])
	}
	return nil
}
