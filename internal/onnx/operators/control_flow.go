package operators

import (
	"github.com/loom-ml/loom/internal/ir"
)

// registerControlFlow adds the subgraph-carrying operators. Their bodies
// arrive already converted; the handlers re-fetch captured parent values
// and wire them as trailing inputs of the produced node, so the owning
// node can rebind fresh values at each instantiation without reconverting
// the body.
func (r *Registry) registerControlFlow() {
	r.Register("", "If", 1, handleIf)
	r.Register("", "Loop", 1, handleLoop)
}

// refreshCaptures re-infers boundary parameter types from the parent scope
// and returns the current captured values.
func refreshCaptures(body *Body) ([]*ir.Value, error) {
	if body.Refresh == nil {
		return body.Captures, nil
	}
	return body.Refresh()
}

func handleIf(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) != 1 {
		return nil, validationf(node, "requires 1 input (condition), got %d", len(node.Inputs))
	}
	thenBody := node.Body("then_branch")
	elseBody := node.Body("else_branch")
	if thenBody == nil || elseBody == nil {
		return nil, validationf(node, "requires then_branch and else_branch subgraphs")
	}

	thenCaps, err := refreshCaptures(thenBody)
	if err != nil {
		return nil, err
	}
	elseCaps, err := refreshCaptures(elseBody)
	if err != nil {
		return nil, err
	}

	// Condition first, then each branch's captures in branch order.
	inputs := make([]*ir.Value, 0, 1+len(thenCaps)+len(elseCaps))
	inputs = append(inputs, node.Inputs[0])
	inputs = append(inputs, thenCaps...)
	inputs = append(inputs, elseCaps...)

	n := ir.NewOp(node.Domain, node.OpType, inputs, len(node.Outputs))
	for i := range node.Bodies {
		n.AddBody(node.Bodies[i].Fn)
	}

	// Output types merge across branches; disagreements stay dynamic.
	thenResults := thenBody.Fn.Results()
	elseResults := elseBody.Fn.Results()
	for i := 0; i < n.NumOutputs(); i++ {
		if i >= len(thenResults) || i >= len(elseResults) {
			continue
		}
		tr, er := thenResults[i], elseResults[i]
		if tr.DType() == er.DType() {
			n.Output(i).SetDType(tr.DType())
		}
		if merged, err := tr.Shape().Merge(er.Shape()); err == nil {
			n.Output(i).SetShape(merged)
		}
	}
	return n.Outputs(), nil
}

func handleLoop(_ *Context, node *Node) ([]*ir.Value, error) {
	if len(node.Inputs) < 2 {
		return nil, validationf(node, "requires at least 2 inputs (trip count, condition), got %d", len(node.Inputs))
	}
	body := node.Body("body")
	if body == nil {
		return nil, validationf(node, "requires a body subgraph")
	}

	captures, err := refreshCaptures(body)
	if err != nil {
		return nil, err
	}
	inputs := make([]*ir.Value, 0, len(node.Inputs)+len(captures))
	inputs = append(inputs, node.Inputs...)
	inputs = append(inputs, captures...)

	n := ir.NewOp(node.Domain, node.OpType, inputs, len(node.Outputs))
	n.AddBody(body.Fn)

	// Body results are [condition, carried values..., scan outputs...].
	// Carried values keep the body's type and shape; scan outputs gain an
	// unknown leading iteration dimension.
	carried := len(node.Inputs) - 2
	results := body.Fn.Results()
	for i := 0; i < n.NumOutputs(); i++ {
		ri := 1 + i
		if ri >= len(results) {
			break
		}
		n.Output(i).SetDType(results[ri].DType())
		if i < carried {
			n.Output(i).SetShape(results[ri].Shape())
		} else if s := results[ri].Shape(); s.Ranked() {
			dims := append([]ir.Dim{ir.DynamicDim()}, s.Dims()...)
			n.Output(i).SetShape(ir.FromDims(dims...))
		}
	}
	return n.Outputs(), nil
}
