package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Dim is a single dimension of a partial shape: a static size, a named
// symbolic size, or fully unknown.
type Dim struct {
	size  int64  // -1 when not static
	param string // symbolic name, set only for non-static dims
}

// StaticDim returns a dimension with a known size.
func StaticDim(size int64) Dim {
	if size < 0 {
		return DynamicDim()
	}
	return Dim{size: size}
}

// NamedDim returns a dynamic dimension carrying a symbolic name.
func NamedDim(param string) Dim {
	return Dim{size: -1, param: param}
}

// DynamicDim returns a dimension of unknown size.
func DynamicDim() Dim {
	return Dim{size: -1}
}

// IsStatic reports whether the dimension has a known size.
func (d Dim) IsStatic() bool { return d.size >= 0 }

// Size returns the dimension size, or -1 when the dimension is dynamic.
func (d Dim) Size() int64 { return d.size }

// Param returns the symbolic name of a dynamic dimension, if any.
func (d Dim) Param() string { return d.param }

// String returns the size, the symbolic name, or "?".
func (d Dim) String() string {
	if d.IsStatic() {
		return strconv.FormatInt(d.size, 10)
	}
	if d.param != "" {
		return d.param
	}
	return "?"
}

// compatible reports whether two dimensions can describe the same size.
func (d Dim) compatible(other Dim) bool {
	if !d.IsStatic() || !other.IsStatic() {
		return true
	}
	return d.size == other.size
}

// merge refines d with information from other. Static sizes must agree;
// a static size wins over a dynamic one; the first symbolic name is kept.
func (d Dim) merge(other Dim) (Dim, error) {
	if !d.compatible(other) {
		return Dim{}, fmt.Errorf("incompatible dimensions: %s vs %s", d, other)
	}
	if d.IsStatic() {
		return d, nil
	}
	if other.IsStatic() {
		return other, nil
	}
	if d.param != "" {
		return d, nil
	}
	return other, nil
}

// Shape describes the dimensions of a value. A shape is either unranked
// (nothing known) or ranked with a mix of static and dynamic dimensions.
type Shape struct {
	dims   []Dim
	ranked bool
}

// Static returns a ranked shape with the given static sizes. A negative
// size yields a dynamic dimension. Static() is the scalar shape.
func Static(sizes ...int64) Shape {
	dims := make([]Dim, len(sizes))
	for i, size := range sizes {
		dims[i] = StaticDim(size)
	}
	return Shape{dims: dims, ranked: true}
}

// FromDims returns a ranked shape over the given dimensions.
func FromDims(dims ...Dim) Shape {
	out := make([]Dim, len(dims))
	copy(out, dims)
	return Shape{dims: out, ranked: true}
}

// Dynamic returns the unranked shape.
func Dynamic() Shape {
	return Shape{}
}

// Ranked reports whether the rank of the shape is known.
func (s Shape) Ranked() bool { return s.ranked }

// Rank returns the number of dimensions, or -1 for an unranked shape.
func (s Shape) Rank() int {
	if !s.ranked {
		return -1
	}
	return len(s.dims)
}

// Dim returns the i-th dimension of a ranked shape.
func (s Shape) Dim(i int) Dim { return s.dims[i] }

// Dims returns a copy of the dimension list. Nil for an unranked shape.
func (s Shape) Dims() []Dim {
	if !s.ranked {
		return nil
	}
	out := make([]Dim, len(s.dims))
	copy(out, s.dims)
	return out
}

// IsStatic reports whether the shape is ranked with all sizes known.
func (s Shape) IsStatic() bool {
	if !s.ranked {
		return false
	}
	for _, d := range s.dims {
		if !d.IsStatic() {
			return false
		}
	}
	return true
}

// Sizes returns the static sizes of the shape. The second result is false
// when the shape is not fully static.
func (s Shape) Sizes() ([]int64, bool) {
	if !s.IsStatic() {
		return nil, false
	}
	sizes := make([]int64, len(s.dims))
	for i, d := range s.dims {
		sizes[i] = d.size
	}
	return sizes, true
}

// NumElements returns the total element count of a fully static shape.
// The second result is false when any dimension is dynamic or the shape
// is unranked. A scalar has one element.
func (s Shape) NumElements() (int64, bool) {
	sizes, ok := s.Sizes()
	if !ok {
		return 0, false
	}
	n := int64(1)
	for _, size := range sizes {
		n *= size
	}
	return n, true
}

// Equal reports whether two shapes are structurally identical, including
// the staticness and symbolic names of every dimension.
func (s Shape) Equal(other Shape) bool {
	if s.ranked != other.ranked {
		return false
	}
	if !s.ranked {
		return true
	}
	if len(s.dims) != len(other.dims) {
		return false
	}
	for i := range s.dims {
		if s.dims[i] != other.dims[i] {
			return false
		}
	}
	return true
}

// Compatible reports whether the two shapes can describe the same value:
// an unranked shape is compatible with anything; ranked shapes must have
// the same rank and pairwise compatible dimensions.
func (s Shape) Compatible(other Shape) bool {
	if !s.ranked || !other.ranked {
		return true
	}
	if len(s.dims) != len(other.dims) {
		return false
	}
	for i := range s.dims {
		if !s.dims[i].compatible(other.dims[i]) {
			return false
		}
	}
	return true
}

// Merge refines s with information from other, keeping the most specific
// description of every dimension.
func (s Shape) Merge(other Shape) (Shape, error) {
	if !s.ranked {
		return other, nil
	}
	if !other.ranked {
		return s, nil
	}
	if len(s.dims) != len(other.dims) {
		return Shape{}, fmt.Errorf("incompatible ranks: %s vs %s", s, other)
	}
	dims := make([]Dim, len(s.dims))
	for i := range s.dims {
		merged, err := s.dims[i].merge(other.dims[i])
		if err != nil {
			return Shape{}, fmt.Errorf("dimension %d: %s vs %s", i, s, other)
		}
		dims[i] = merged
	}
	return Shape{dims: dims, ranked: true}, nil
}

// String formats the shape as "[2,?,batch]", or "?" when unranked.
func (s Shape) String() string {
	if !s.ranked {
		return "?"
	}
	parts := make([]string, len(s.dims))
	for i, d := range s.dims {
		parts[i] = d.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Broadcast applies multidirectional (NumPy-style) broadcasting to two
// partial shapes.
//
// Dimensions are compared right to left; missing dimensions count as 1.
// A static 1 yields the other dimension; equal static sizes yield that
// size; a known non-1 size paired with a dynamic dimension yields the
// known size (the dynamic side must resolve to 1 or to the same size).
// If either shape is unranked the result is unranked.
func Broadcast(a, b Shape) (Shape, error) {
	if !a.ranked || !b.ranked {
		return Dynamic(), nil
	}

	maxLen := max(len(a.dims), len(b.dims))
	dims := make([]Dim, maxLen)

	for i := 0; i < maxLen; i++ {
		aIdx := len(a.dims) - 1 - i
		bIdx := len(b.dims) - 1 - i

		aDim := StaticDim(1)
		if aIdx >= 0 {
			aDim = a.dims[aIdx]
		}
		bDim := StaticDim(1)
		if bIdx >= 0 {
			bDim = b.dims[bIdx]
		}

		out := maxLen - 1 - i
		switch {
		case aDim.IsStatic() && bDim.IsStatic():
			switch {
			case aDim.size == bDim.size:
				dims[out] = aDim
			case aDim.size == 1:
				dims[out] = bDim
			case bDim.size == 1:
				dims[out] = aDim
			default:
				return Shape{}, fmt.Errorf("shapes not compatible for broadcasting: %s vs %s (dimension %d: %d vs %d)",
					a, b, out, aDim.size, bDim.size)
			}
		case aDim.IsStatic() && aDim.size != 1:
			dims[out] = aDim
		case bDim.IsStatic() && bDim.size != 1:
			dims[out] = bDim
		case aDim.IsStatic() && aDim.size == 1:
			dims[out] = bDim
		case bDim.IsStatic() && bDim.size == 1:
			dims[out] = aDim
		default:
			dims[out] = DynamicDim()
		}
	}

	return Shape{dims: dims, ranked: true}, nil
}
