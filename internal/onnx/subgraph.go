package onnx

import (
	"github.com/loom-ml/loom/internal/ir"
	"github.com/loom-ml/loom/internal/onnx/operators"
)

// Capture records one synthesized boundary parameter of a subgraph and
// the parent-scope tensor name whose value it stands in for.
type Capture struct {
	Param      *ir.Node
	ParentName string
}

// Subgraph builds the IR for a nested control-flow body. Name resolution
// falls back to the parent scope, and after node conversion every edge
// that crossed the scope boundary is cut and replaced with a boundary
// parameter, recorded as a capture. The same capture list is preserved in
// encounter order, duplicates included, so callers can re-fetch the bound
// parent values positionally.
type Subgraph struct {
	Graph
	parent   scope
	captures []Capture
}

func newSubgraph(model *Model, graph *GraphProto, parent scope) (*Subgraph, error) {
	if graph == nil {
		return nil, ErrNoGraph
	}
	s := &Subgraph{parent: parent}
	s.Graph = Graph{
		model: model,
		graph: graph,
		cache: newSymbolCache(),
		log:   model.log,
	}
	s.scope = s
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// nodeInCache consults the local cache first, then the parent chain.
func (s *Subgraph) nodeInCache(name string) bool {
	return s.cache.Contains(name) || s.parent.nodeInCache(name)
}

// nodeFromCache resolves locally first; a local entry shadows any parent
// entry of the same name.
func (s *Subgraph) nodeFromCache(name string) (*ir.Value, error) {
	if s.cache.Contains(name) {
		return s.cache.Get(name)
	}
	return s.parent.nodeFromCache(name)
}

// Convert converts the body's nodes, materializes the scope-boundary
// captures, and assembles the body function.
func (s *Subgraph) Convert() (*ir.Function, error) {
	if err := s.convertNodes(); err != nil {
		return nil, err
	}
	if err := s.findInputsFromParent(); err != nil {
		return nil, err
	}
	// Body parameters are positional contracts with the owning control-flow
	// operator, so unused ones are never pruned.
	return s.createFunction()
}

// Decode mirrors Convert but keeps every node as a framework node. The
// body function carries the builder back-reference for Resolve.
func (s *Subgraph) Decode() (*ir.Function, error) {
	if err := s.decodeNodes(); err != nil {
		return nil, err
	}
	if err := s.findInputsFromParent(); err != nil {
		return nil, err
	}
	fn, err := s.createFunction()
	if err != nil {
		return nil, err
	}
	fn.SetAttr(FunctionGraphAttr, &s.Graph)
	return fn, nil
}

// body packages the converted function with its capture values and a
// refresh hook that re-reads the parent bindings. Control-flow conversion
// functions call the hook when they need captures typed against the
// parent values current at dispatch time.
func (s *Subgraph) body(attr string, fn *ir.Function) operators.Body {
	return operators.Body{
		Attr:     attr,
		Fn:       fn,
		Captures: s.captureValues(),
		Refresh: func() ([]*ir.Value, error) {
			if err := s.InferInputsFromParent(); err != nil {
				return nil, err
			}
			return s.InputsFromParent()
		},
	}
}

// findInputsFromParent cuts every dataflow edge that crosses the scope
// boundary and replaces it with a synthesized boundary parameter.
//
// Two sweeps over the body's nodes: the first handles edges named by a
// node's declared inputs, the second the implicit edges of nested
// control-flow nodes whose own capture parameters resolved into this
// scope's parent chain. Constants are never captured; a constant found
// through the parent chain is used directly.
func (s *Subgraph) findInputsFromParent() error {
	for ni := range s.graph.Nodes {
		np := &s.graph.Nodes[ni]
		for inIdx, inName := range np.Inputs {
			// empty names mark absent optional operands
			if inName == "" || !s.parent.nodeInCache(inName) {
				continue
			}
			parentVal, err := s.parent.nodeFromCache(inName)
			if err != nil {
				return err
			}
			if parentVal.Node() != nil && parentVal.Node().Kind() == ir.KindConstant {
				continue
			}
			for _, outName := range np.Outputs {
				if !s.cache.Contains(outName) {
					continue
				}
				cached, err := s.cache.Get(outName)
				if err != nil {
					return err
				}
				if cached.Node() == nil {
					continue
				}
				s.replaceInputFromParentScope(inName, parentVal, cached.Node(), inIdx)
			}
		}
	}

	for ni := range s.graph.Nodes {
		np := &s.graph.Nodes[ni]
		for _, outName := range np.Outputs {
			if !s.cache.Contains(outName) {
				continue
			}
			cached, err := s.cache.Get(outName)
			if err != nil {
				return err
			}
			node := cached.Node()
			if node == nil || len(node.Bodies()) == 0 {
				continue
			}
			for i, in := range node.Inputs() {
				if ir.IsNull(in) || in.Node() == nil || in.Node().Kind() == ir.KindConstant {
					continue
				}
				// edges already reading one of this scope's parameters no
				// longer cross the boundary
				if s.ownsParam(in.Node()) {
					continue
				}
				inName := in.Node().Name()
				if inName == "" || !s.parent.nodeInCache(inName) {
					continue
				}
				parentVal, err := s.parent.nodeFromCache(inName)
				if err != nil {
					return err
				}
				s.replaceInputFromParentScope(inName, parentVal, node, i)
			}
		}
	}
	return nil
}

func (s *Subgraph) ownsParam(n *ir.Node) bool {
	if n.Kind() != ir.KindParameter {
		return false
	}
	for _, p := range s.params {
		if p == n {
			return true
		}
	}
	return false
}

// replaceInputFromParentScope synthesizes a boundary parameter typed like
// the parent value, rewires the consumer's input slot to it, and records
// the capture. The parameter also enters the local cache so later
// lookups of the name resolve inside this scope.
func (s *Subgraph) replaceInputFromParentScope(inName string, parentVal *ir.Value, consumer *ir.Node, inputIdx int) {
	if inputIdx >= consumer.NumInputs() {
		return
	}
	param := ir.NewParameter(parentVal.DType(), parentVal.Shape())
	param.SetName(inName)
	param.Output(0).AddName(inName)
	consumer.ReplaceInput(inputIdx, param.Output(0))
	s.captures = append(s.captures, Capture{Param: param, ParentName: inName})
	s.cache.Insert(inName, param.Output(0))
	s.params = append(s.params, param)
}

// Captures returns the recorded scope-boundary captures in encounter
// order.
func (s *Subgraph) Captures() []Capture {
	out := make([]Capture, len(s.captures))
	copy(out, s.captures)
	return out
}

// InputsFromParent re-reads the parent-scope values bound to the
// captures, positionally aligned with Captures.
func (s *Subgraph) InputsFromParent() ([]*ir.Value, error) {
	out := make([]*ir.Value, 0, len(s.captures))
	for _, c := range s.captures {
		v, err := s.parent.nodeFromCache(c.ParentName)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// InferInputsFromParent refreshes each boundary parameter's element type
// and shape from the parent value it captures. Called before re-dispatch
// when the parent values may have been replaced since conversion.
func (s *Subgraph) InferInputsFromParent() error {
	for _, c := range s.captures {
		v, err := s.parent.nodeFromCache(c.ParentName)
		if err != nil {
			return err
		}
		c.Param.Output(0).SetDType(v.DType())
		c.Param.Output(0).SetShape(v.Shape())
	}
	return nil
}

// captureValues resolves the capture bindings, tolerating a parent entry
// that has since disappeared (the value is then skipped).
func (s *Subgraph) captureValues() []*ir.Value {
	out := make([]*ir.Value, 0, len(s.captures))
	for _, c := range s.captures {
		v, err := s.parent.nodeFromCache(c.ParentName)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
