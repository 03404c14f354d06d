package ir

import (
	"testing"
)

func TestNodeWiring(t *testing.T) {
	a := NewParameter(Float32, Static(2, 2))
	b := NewParameter(Float32, Static(2, 2))

	add := NewOp("", "Add", []*Value{a.Output(0), b.Output(0)}, 1)

	if add.NumInputs() != 2 || add.NumOutputs() != 1 {
		t.Fatalf("Add arity = %d in, %d out, want 2, 1", add.NumInputs(), add.NumOutputs())
	}
	if a.Output(0).NumUses() != 1 {
		t.Errorf("parameter use count = %d, want 1", a.Output(0).NumUses())
	}
	uses := a.Output(0).Uses()
	if uses[0].Node != add || uses[0].Index != 0 {
		t.Errorf("use edge = (%p, %d), want (%p, 0)", uses[0].Node, uses[0].Index, add)
	}
}

func TestReplaceInput(t *testing.T) {
	a := NewParameter(Float32, Static(2))
	b := NewParameter(Float32, Static(2))
	relu := NewOp("", "Relu", []*Value{a.Output(0)}, 1)

	relu.ReplaceInput(0, b.Output(0))

	if a.Output(0).NumUses() != 0 {
		t.Errorf("old source use count = %d, want 0", a.Output(0).NumUses())
	}
	if b.Output(0).NumUses() != 1 {
		t.Errorf("new source use count = %d, want 1", b.Output(0).NumUses())
	}
	if relu.Input(0) != b.Output(0) {
		t.Error("input slot should read from the new source")
	}
}

func TestReplaceAllUsesWith(t *testing.T) {
	a := NewParameter(Float32, Static(2))
	b := NewParameter(Float32, Static(2))
	relu := NewOp("", "Relu", []*Value{a.Output(0)}, 1)
	neg := NewOp("", "Neg", []*Value{a.Output(0)}, 1)

	a.Output(0).ReplaceAllUsesWith(b.Output(0))

	if a.Output(0).NumUses() != 0 {
		t.Errorf("replaced value use count = %d, want 0", a.Output(0).NumUses())
	}
	if b.Output(0).NumUses() != 2 {
		t.Errorf("replacement use count = %d, want 2", b.Output(0).NumUses())
	}
	if relu.Input(0) != b.Output(0) || neg.Input(0) != b.Output(0) {
		t.Error("all consumers should read from the replacement")
	}
}

func TestNullValue(t *testing.T) {
	null := Null()
	if !IsNull(null) {
		t.Error("Null() should be null")
	}
	if IsNull(NewParameter(Float32, Static()).Output(0)) {
		t.Error("a parameter output is not null")
	}

	// Nulls ignore names and never track uses.
	null.AddName("x")
	if len(null.Names()) != 0 {
		t.Error("null values must not carry names")
	}
	op := NewOp("", "Pad", []*Value{null}, 1)
	if null.NumUses() != 0 {
		t.Errorf("null use count = %d, want 0", null.NumUses())
	}
	if !IsNull(op.Input(0)) {
		t.Error("null input should stay null")
	}
}

func TestValueNamesSorted(t *testing.T) {
	v := NewParameter(Float32, Static()).Output(0)
	v.AddName("zeta")
	v.AddName("alpha")
	v.AddName("")
	v.AddName("alpha")

	names := v.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("Names() = %v, want [alpha zeta]", names)
	}
	if !v.HasName("zeta") || v.HasName("missing") {
		t.Error("HasName lookup mismatch")
	}
}

func TestFunctionNodesOrder(t *testing.T) {
	p := NewParameter(Float32, Static(2))
	c := NewConstant(Zero(Float32))
	add := NewOp("", "Add", []*Value{p.Output(0), c.Output(0)}, 1)
	relu := NewOp("", "Relu", []*Value{add.Output(0)}, 1)
	dangling := NewParameter(Float32, Static(1))

	fn := NewFunction("f", []*Node{p, dangling}, []*Value{relu.Output(0)})
	nodes := fn.Nodes()

	if len(nodes) != 5 {
		t.Fatalf("Nodes() returned %d nodes, want 5", len(nodes))
	}
	pos := make(map[*Node]int, len(nodes))
	for i, n := range nodes {
		pos[n] = i
	}
	if pos[p] > pos[add] || pos[c] > pos[add] || pos[add] > pos[relu] {
		t.Error("producers must precede consumers in Nodes()")
	}
	if _, ok := pos[dangling]; !ok {
		t.Error("dangling parameters must appear in Nodes()")
	}
}

func TestFunctionReplaceResult(t *testing.T) {
	p := NewParameter(Float32, Static(2))
	a := NewOp("", "Relu", []*Value{p.Output(0)}, 1)
	b := NewOp("", "Neg", []*Value{p.Output(0)}, 1)

	fn := NewFunction("f", []*Node{p}, []*Value{a.Output(0), a.Output(0)})
	if n := fn.ReplaceResult(a.Output(0), b.Output(0)); n != 2 {
		t.Errorf("ReplaceResult replaced %d slots, want 2", n)
	}
	if fn.Results()[0] != b.Output(0) || fn.Results()[1] != b.Output(0) {
		t.Error("result slots should hold the replacement value")
	}
}
