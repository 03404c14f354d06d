package onnx

import (
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/loom-ml/loom/internal/ir"
	"github.com/loom-ml/loom/internal/onnx/operators"
)

// FunctionGraphAttr keys the back-reference from a decoded function to its
// originating graph builder, used by Resolve to re-attempt conversion.
const FunctionGraphAttr = "onnx_graph"

// scope is the uniform name-resolution contract shared by every graph
// level. A subgraph's lookup consults its own cache first and falls back
// to its parent's, so inner names shadow outer ones.
type scope interface {
	nodeInCache(name string) bool
	nodeFromCache(name string) (*ir.Value, error)
}

// Graph builds the IR for one ONNX graph. Construction ingests the
// initializers and declared inputs and validates operator availability;
// Convert and Decode then drive per-node conversion in declared order.
// The source format guarantees nodes arrive topologically sorted, so the
// builder never sorts.
//
// A Graph is constructed once per conversion pass, mutated only during
// that pass, and discarded in favor of the Function it produced.
type Graph struct {
	model  *Model
	graph  *GraphProto
	cache  *symbolCache
	params []*ir.Node
	scope  scope
	log    *zap.Logger
}

func newGraph(model *Model, graph *GraphProto) (*Graph, error) {
	if graph == nil {
		return nil, ErrNoGraph
	}
	g := &Graph{
		model: model,
		graph: graph,
		cache: newSymbolCache(),
		log:   model.log,
	}
	g.scope = g
	if err := g.init(); err != nil {
		return nil, err
	}
	return g, nil
}

// init runs the construction-time steps shared by Convert and Decode:
// initializer constants, input parameters, and operator availability.
func (g *Graph) init() error {
	initializers := make(map[string]*TensorProto, len(g.graph.Initializers))
	for i := range g.graph.Initializers {
		init := &g.graph.Initializers[i]
		if init.Name == "" {
			continue
		}
		initializers[init.Name] = init

		t, err := materializeTensor(init, g.model.ext)
		if err != nil {
			if errors.Is(err, ErrExternalData) {
				// invalid external data makes initializer creation impossible
				return err
			}
			g.log.Warn("could not materialize initializer, substituting a zero-valued scalar; "+
				"make sure the connected input is optional",
				zap.String("tensor", init.Name),
				zap.Error(err))
			dtype, dtErr := protoDType(init.DataType)
			if dtErr != nil {
				dtype = ir.Undefined
			}
			t = ir.Zero(dtype)
		}
		out := ir.NewConstant(t).Output(0)
		out.AddName(init.Name)
		g.cache.Insert(init.Name, out)
	}

	// Declared inputs become parameters unless an initializer of the same
	// name already shadows them.
	for i := range g.graph.Inputs {
		vi := &g.graph.Inputs[i]
		if g.cache.Contains(vi.Name) {
			continue
		}
		param := parameterFromValueInfo(vi, initializers)
		g.params = append(g.params, param)
		g.cache.Insert(vi.Name, param.Output(0))
	}

	return g.validateOperators()
}

// validateOperators scans every node for operator availability. Unknown
// domains are enabled during the scan and the collected unknowns are
// re-tested once afterwards; anything still unavailable is a hard failure
// naming every distinct missing identifier. Domains that would only become
// resolvable through another domain's registration are not re-scanned.
func (g *Graph) validateOperators() error {
	unknown := make(map[string]*NodeProto)
	for i := range g.graph.Nodes {
		np := &g.graph.Nodes[i]
		if !g.model.IsOperatorAvailable(np) {
			id := opIdentifier(normalizeDomain(np.Domain), np.OpType)
			if _, ok := unknown[id]; !ok {
				unknown[id] = np
			}
			g.model.EnableOpsetDomain(np.Domain)
		}
	}

	for id, np := range unknown {
		if g.model.IsOperatorAvailable(np) {
			delete(unknown, id)
		}
	}
	if len(unknown) > 0 {
		ids := make(map[string]struct{}, len(unknown))
		for id := range unknown {
			ids[id] = struct{}{}
		}
		return newUnsupportedOperatorError(ids)
	}
	return nil
}

// Convert visits every node in declared order, dispatches it through the
// operator registry, prunes dangling parameters, and assembles the
// function.
func (g *Graph) Convert() (*ir.Function, error) {
	if err := g.convertNodes(); err != nil {
		return nil, err
	}
	g.removeDanglingParameters()
	return g.createFunction()
}

// Decode visits every node in declared order but wraps each into an
// opaque framework node preserving its operator identity. The produced
// function carries a back-reference to this builder so Resolve can
// re-attempt conversion later.
func (g *Graph) Decode() (*ir.Function, error) {
	if err := g.decodeNodes(); err != nil {
		return nil, err
	}
	fn, err := g.createFunction()
	if err != nil {
		return nil, err
	}
	fn.SetAttr(FunctionGraphAttr, g)
	return fn, nil
}

func (g *Graph) nodeInCache(name string) bool { return g.cache.Contains(name) }

func (g *Graph) nodeFromCache(name string) (*ir.Value, error) { return g.cache.Get(name) }

func (g *Graph) convertNodes() error {
	for i := range g.graph.Nodes {
		node := &nodeView{proto: &g.graph.Nodes[i], g: g}
		bodies, err := g.convertSubgraphs(node)
		if err != nil {
			return err
		}
		if err := g.convertNode(node, bodies); err != nil {
			return err
		}
	}
	return nil
}

// convertSubgraphs recursively converts the nested graphs of a
// control-flow node through subgraph builders parented to this one.
func (g *Graph) convertSubgraphs(node *nodeView) ([]operators.Body, error) {
	if !node.hasSubgraphs() {
		return nil, nil
	}
	var bodies []operators.Body
	for _, attr := range node.subgraphAttrs() {
		sg, err := newSubgraph(g.model, attr.graph, g.scope)
		if err != nil {
			return nil, node.errorContext(err)
		}
		fn, err := sg.Convert()
		if err != nil {
			return nil, node.errorContext(err)
		}
		bodies = append(bodies, sg.body(attr.name, fn))
	}
	return bodies, nil
}

// convertNode dispatches one node to its conversion function and caches
// the produced outputs under the declared output names.
func (g *Graph) convertNode(node *nodeView, bodies []operators.Body) (err error) {
	defer func() {
		// A panicking handler is an unhandled failure; surface it in the
		// log with node context before letting it propagate.
		if r := recover(); r != nil {
			g.log.Error("unhandled conversion failure",
				zap.String("node", node.name()),
				zap.String("op", node.opID()))
			panic(r)
		}
	}()

	handler, err := g.model.GetOperator(node.domain(), node.opType())
	if err != nil {
		return node.errorContext(err)
	}
	inputs, err := node.resolvedInputs()
	if err != nil {
		return err
	}
	opNode, err := node.operatorNode(inputs, bodies)
	if err != nil {
		return err
	}

	ctx := &operators.Context{Opset: g.model.Opset(node.domain()), Log: g.log}
	outputs, err := handler(ctx, opNode)
	if err != nil {
		var vErr *operators.ValidationError
		if errors.As(err, &vErr) {
			// validation failures already carry node context
			return err
		}
		return node.errorContext(err)
	}
	if len(outputs) < node.outputCount() {
		return node.errorContext(fmt.Errorf("produced %d outputs, expected at least %d",
			len(outputs), node.outputCount()))
	}

	g.setOutputNames(node, outputs)
	for i := 0; i < node.outputCount(); i++ {
		g.cache.Insert(node.output(i), outputs[i])
	}
	return nil
}

func (g *Graph) decodeNodes() error {
	for i := range g.graph.Nodes {
		node := &nodeView{proto: &g.graph.Nodes[i], g: g}
		if err := g.decodeNode(node); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) decodeNode(node *nodeView) error {
	inputs, err := node.resolvedInputs()
	if err != nil {
		return err
	}
	payload := &frameworkPayload{proto: node.proto, graph: g}

	if node.hasSubgraphs() {
		for _, attr := range node.subgraphAttrs() {
			sg, err := newSubgraph(g.model, attr.graph, g.scope)
			if err != nil {
				return node.errorContext(err)
			}
			fn, err := sg.Decode()
			if err != nil {
				return node.errorContext(err)
			}
			body := sg.body(attr.name, fn)
			payload.bodies = append(payload.bodies, body)

			// Captured parent values become extra inputs of the framework
			// node, deduplicated against values it already reads.
			for _, captured := range body.Captures {
				if hasInputFromProducer(inputs, captured) {
					continue
				}
				inputs = append(inputs, captured)
			}
		}
	}

	fw := ir.NewFramework(node.domain(), node.opType(), inputs, node.outputCount())
	for i := range payload.bodies {
		fw.AddBody(payload.bodies[i].Fn)
	}
	fw.SetPayload(payload)

	outputs := fw.Outputs()
	g.setOutputNames(node, outputs)
	for i := 0; i < node.outputCount(); i++ {
		g.cache.Insert(node.output(i), outputs[i])
	}
	return nil
}

// hasInputFromProducer reports whether inputs already contains a value
// from the candidate's producer, matched by display name.
func hasInputFromProducer(inputs []*ir.Value, candidate *ir.Value) bool {
	if candidate.Node() == nil || candidate.Node().Name() == "" {
		return false
	}
	name := candidate.Node().Name()
	for _, in := range inputs {
		if in.Node() != nil && in.Node().Name() == name {
			return true
		}
	}
	return false
}

// setOutputNames applies the naming rule to a node's produced outputs.
//
// Identity keeps the declared output names verbatim with no display-name
// rewriting. Otherwise the display name of each output's producer is set
// on every visit with overwrite allowed: an unnamed node leaves its
// producer carrying the last declared output name, a named node whose
// outputs share one producer gets the declared name verbatim, and a named
// node with distinct producers gets per-output suffixed names. Trailing
// outputs beyond the declared count are neither named nor cached, and
// null values never receive tensor names.
func (g *Graph) setOutputNames(node *nodeView, outputs []*ir.Value) {
	if node.opType() == "Identity" {
		for i := 0; i < len(outputs) && i < node.outputCount(); i++ {
			outputs[i].AddName(node.output(i))
		}
		return
	}

	common := commonNodeForAllOutputs(outputs)
	for i := range outputs {
		if i >= node.outputCount() {
			break
		}
		if ir.IsNull(outputs[i]) {
			continue
		}
		switch {
		case node.name() == "":
			outputs[i].Node().SetName(node.output(i))
		case common:
			outputs[i].Node().SetName(node.name())
		default:
			outputs[i].Node().SetName(node.name() + "_" + node.output(i))
		}
		outputs[i].AddName(node.output(i))
	}
}

// commonNodeForAllOutputs reports whether every output comes from a single
// producing node.
func commonNodeForAllOutputs(outputs []*ir.Value) bool {
	if len(outputs) == 0 {
		return true
	}
	first := outputs[0].Node()
	for _, out := range outputs[1:] {
		if out.Node() != first {
			return false
		}
	}
	return true
}

// removeDanglingParameters drops parameters with no consumers, unless one
// of their tensor names matches a declared graph output (an identity
// pass-through of an unused-looking input must survive).
func (g *Graph) removeDanglingParameters() {
	outputNames := make(map[string]bool, len(g.graph.Outputs))
	for i := range g.graph.Outputs {
		outputNames[g.graph.Outputs[i].Name] = true
	}

	kept := g.params[:0]
	for _, param := range g.params {
		out := param.Output(0)
		if out.NumUses() == 0 {
			matches := false
			for _, name := range out.Names() {
				if outputNames[name] {
					matches = true
					break
				}
			}
			if !matches {
				g.cache.Remove(param.Name())
				continue
			}
		}
		kept = append(kept, param)
	}
	g.params = kept
}

// createFunction assembles the function from the parameter list and the
// declared outputs. Null values (optional-absent outputs) are skipped.
// Each result name gets a sink-port suffix derived from the producer port
// feeding it, so result names stay unique even in unnamed models.
func (g *Graph) createFunction() (*ir.Function, error) {
	results := make([]*ir.Value, 0, len(g.graph.Outputs))
	names := make([]string, 0, len(g.graph.Outputs))
	for i := range g.graph.Outputs {
		v, err := g.scope.nodeFromCache(g.graph.Outputs[i].Name)
		if err != nil {
			return nil, err
		}
		if ir.IsNull(v) {
			continue
		}
		results = append(results, v)
		names = append(names, g.graph.Outputs[i].Name)
	}

	fn := ir.NewFunction(g.graph.Name, g.params, results)
	for i, r := range results {
		fn.SetResultName(i, names[i]+"/sink_port_"+strconv.Itoa(r.Index()))
	}
	return fn, nil
}
