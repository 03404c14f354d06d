package ir

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// Tensor is an immutable constant payload: an element type, a fully
// static shape, and the element data in little-endian layout. String
// tensors keep their elements separately since they have no fixed size.
type Tensor struct {
	dtype DType
	shape Shape
	data  []byte
	strs  [][]byte
}

// NewTensor creates a tensor over raw little-endian data. The shape must
// be fully static and the byte length must match the element count.
func NewTensor(dtype DType, shape Shape, data []byte) (*Tensor, error) {
	if dtype == Undefined || dtype == String {
		return nil, fmt.Errorf("cannot build raw tensor with element type %s", dtype)
	}
	n, ok := shape.NumElements()
	if !ok {
		return nil, fmt.Errorf("tensor shape must be static, got %s", shape)
	}
	if want := n * int64(dtype.Size()); int64(len(data)) != want {
		return nil, fmt.Errorf("tensor data size mismatch: got %d bytes, want %d for %s%s",
			len(data), want, dtype, shape)
	}
	return &Tensor{dtype: dtype, shape: shape, data: data}, nil
}

// NewStringTensor creates a string tensor. The shape must be fully static
// and the element count must match.
func NewStringTensor(shape Shape, elems [][]byte) (*Tensor, error) {
	n, ok := shape.NumElements()
	if !ok {
		return nil, fmt.Errorf("tensor shape must be static, got %s", shape)
	}
	if int64(len(elems)) != n {
		return nil, fmt.Errorf("string tensor element count mismatch: got %d, want %d", len(elems), n)
	}
	return &Tensor{dtype: String, shape: shape, strs: elems}, nil
}

// Zero returns a zero-valued scalar of the given element type.
func Zero(dtype DType) *Tensor {
	if dtype == String {
		return &Tensor{dtype: String, shape: Static(), strs: [][]byte{nil}}
	}
	if dtype == Undefined {
		dtype = Float32
	}
	return &Tensor{dtype: dtype, shape: Static(), data: make([]byte, dtype.Size())}
}

// DType returns the element type.
func (t *Tensor) DType() DType { return t.dtype }

// Shape returns the static shape.
func (t *Tensor) Shape() Shape { return t.shape }

// Data returns the raw little-endian element data. Nil for string tensors.
func (t *Tensor) Data() []byte { return t.data }

// Strings returns the elements of a string tensor, nil otherwise.
func (t *Tensor) Strings() [][]byte { return t.strs }

// NumElements returns the total element count.
func (t *Tensor) NumElements() int64 {
	n, _ := t.shape.NumElements()
	return n
}

// Int64s widens the tensor's elements to int64. Supported for the integer
// element types; used when a constant feeds a shape-like operand.
func (t *Tensor) Int64s() ([]int64, error) {
	n := t.NumElements()
	out := make([]int64, n)
	switch t.dtype {
	case Int64:
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(t.data[i*8:]))
		}
	case Int32:
		for i := range out {
			out[i] = int64(int32(binary.LittleEndian.Uint32(t.data[i*4:])))
		}
	case Int16:
		for i := range out {
			out[i] = int64(int16(binary.LittleEndian.Uint16(t.data[i*2:])))
		}
	case Int8:
		for i := range out {
			out[i] = int64(int8(t.data[i]))
		}
	case Uint8:
		for i := range out {
			out[i] = int64(t.data[i])
		}
	case Uint16:
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint16(t.data[i*2:]))
		}
	case Uint32:
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint32(t.data[i*4:]))
		}
	case Uint64:
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(t.data[i*8:]))
		}
	case Bool:
		for i := range out {
			if t.data[i] != 0 {
				out[i] = 1
			}
		}
	default:
		return nil, fmt.Errorf("cannot read %s tensor as int64", t.dtype)
	}
	return out, nil
}

// Float64s widens the tensor's elements to float64. Supported for the
// floating-point element types.
func (t *Tensor) Float64s() ([]float64, error) {
	n := t.NumElements()
	out := make([]float64, n)
	switch t.dtype {
	case Float32:
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(t.data[i*4:])))
		}
	case Float64:
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(t.data[i*8:]))
		}
	case Float16:
		for i := range out {
			out[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(t.data[i*2:])).Float32())
		}
	case BFloat16:
		for i := range out {
			bits := uint32(binary.LittleEndian.Uint16(t.data[i*2:])) << 16
			out[i] = float64(math.Float32frombits(bits))
		}
	default:
		return nil, fmt.Errorf("cannot read %s tensor as float64", t.dtype)
	}
	return out, nil
}

// String formats the tensor as "float32[2,3]".
func (t *Tensor) String() string {
	return t.dtype.String() + t.shape.String()
}
