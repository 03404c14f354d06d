package ir

// Function is a closed dataflow graph: an ordered list of parameters, an
// ordered list of result values, and the nodes connecting them. Result
// names live on the function rather than on the values because one value
// may feed several results.
type Function struct {
	name        string
	params      []*Node
	results     []*Value
	resultNames []string
	attrs       map[string]any
}

// NewFunction assembles a function from its parameters and results.
func NewFunction(name string, params []*Node, results []*Value) *Function {
	return &Function{
		name:        name,
		params:      params,
		results:     results,
		resultNames: make([]string, len(results)),
	}
}

// Name returns the function name.
func (f *Function) Name() string { return f.name }

// SetName sets the function name.
func (f *Function) SetName(name string) { f.name = name }

// Parameters returns the ordered formal inputs.
func (f *Function) Parameters() []*Node { return f.params }

// Results returns the ordered result values.
func (f *Function) Results() []*Value { return f.results }

// ResultName returns the name assigned to result i.
func (f *Function) ResultName(i int) string { return f.resultNames[i] }

// SetResultName assigns a name to result i.
func (f *Function) SetResultName(i int, name string) { f.resultNames[i] = name }

// ResultNames returns the ordered result names.
func (f *Function) ResultNames() []string {
	out := make([]string, len(f.resultNames))
	copy(out, f.resultNames)
	return out
}

// ReplaceResult substitutes nv for every result slot currently holding
// ov and returns the number of slots replaced.
func (f *Function) ReplaceResult(ov, nv *Value) int {
	replaced := 0
	for i, r := range f.results {
		if r == ov {
			f.results[i] = nv
			replaced++
		}
	}
	return replaced
}

// Attr returns a function attribute.
func (f *Function) Attr(name string) (any, bool) {
	v, ok := f.attrs[name]
	return v, ok
}

// SetAttr sets a function attribute.
func (f *Function) SetAttr(name string, value any) {
	if f.attrs == nil {
		f.attrs = make(map[string]any)
	}
	f.attrs[name] = value
}

// Nodes returns every node of the function body in topological order
// (producers before consumers). The walk starts from the results and then
// the parameters, so dangling parameters are included. Traversal order is
// deterministic for a given function.
func (f *Function) Nodes() []*Node {
	var order []*Node
	seen := make(map[*Node]bool)

	var visit func(n *Node)
	visit = func(n *Node) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		for _, in := range n.inputs {
			if !IsNull(in) {
				visit(in.Node())
			}
		}
		order = append(order, n)
	}

	for _, r := range f.results {
		if !IsNull(r) {
			visit(r.Node())
		}
	}
	for _, p := range f.params {
		visit(p)
	}
	return order
}
