package ir

import "sort"

// Use identifies one consuming edge: the node reading a value and the
// input slot it reads it through.
type Use struct {
	Node  *Node
	Index int
}

// Value is one output port of a node: the unit of connection in the
// graph. A value carries an element type, a partial shape, a set of
// tensor names, and the list of its consuming edges.
type Value struct {
	node  *Node
	index int
	dtype DType
	shape Shape
	names map[string]struct{}
	uses  []Use
	null  bool
}

// Null returns a fresh marker value for an absent optional operand. Null
// values have no producer, carry no names, and track no uses.
func Null() *Value {
	return &Value{null: true}
}

// IsNull reports whether v marks an absent optional operand.
func IsNull(v *Value) bool {
	return v == nil || v.null
}

// Node returns the producing node, or nil for a null value.
func (v *Value) Node() *Node { return v.node }

// Index returns the output port index on the producing node.
func (v *Value) Index() int { return v.index }

// DType returns the element type.
func (v *Value) DType() DType { return v.dtype }

// SetDType sets the element type.
func (v *Value) SetDType(dt DType) { v.dtype = dt }

// Shape returns the partial shape.
func (v *Value) Shape() Shape { return v.shape }

// SetShape sets the partial shape.
func (v *Value) SetShape(s Shape) { v.shape = s }

// AddName attaches a tensor name. Empty names and names on null values
// are ignored.
func (v *Value) AddName(name string) {
	if name == "" || v.null {
		return
	}
	if v.names == nil {
		v.names = make(map[string]struct{})
	}
	v.names[name] = struct{}{}
}

// HasName reports whether the value carries the given tensor name.
func (v *Value) HasName(name string) bool {
	_, ok := v.names[name]
	return ok
}

// Names returns the attached tensor names in sorted order.
func (v *Value) Names() []string {
	if len(v.names) == 0 {
		return nil
	}
	names := make([]string, 0, len(v.names))
	for name := range v.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Uses returns a copy of the consuming edges.
func (v *Value) Uses() []Use {
	if len(v.uses) == 0 {
		return nil
	}
	uses := make([]Use, len(v.uses))
	copy(uses, v.uses)
	return uses
}

// NumUses returns the number of consuming edges.
func (v *Value) NumUses() int { return len(v.uses) }

// ReplaceAllUsesWith rewires every consumer of v to read from nv instead.
func (v *Value) ReplaceAllUsesWith(nv *Value) {
	for _, use := range v.Uses() {
		use.Node.ReplaceInput(use.Index, nv)
	}
}

func (v *Value) addUse(n *Node, index int) {
	if v == nil || v.null {
		return
	}
	v.uses = append(v.uses, Use{Node: n, Index: index})
}

func (v *Value) removeUse(n *Node, index int) {
	if v == nil || v.null {
		return
	}
	for i, use := range v.uses {
		if use.Node == n && use.Index == index {
			v.uses = append(v.uses[:i], v.uses[i+1:]...)
			return
		}
	}
}
