package onnx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/loom-ml/loom/internal/ir"
)

// protoDType maps a TensorProto data type to the IR element type.
func protoDType(dataType int32) (ir.DType, error) {
	switch dataType {
	case TensorProtoFloat:
		return ir.Float32, nil
	case TensorProtoDouble:
		return ir.Float64, nil
	case TensorProtoFloat16:
		return ir.Float16, nil
	case TensorProtoBfloat16:
		return ir.BFloat16, nil
	case TensorProtoInt8:
		return ir.Int8, nil
	case TensorProtoInt16:
		return ir.Int16, nil
	case TensorProtoInt32:
		return ir.Int32, nil
	case TensorProtoInt64:
		return ir.Int64, nil
	case TensorProtoUint8:
		return ir.Uint8, nil
	case TensorProtoUint16:
		return ir.Uint16, nil
	case TensorProtoUint32:
		return ir.Uint32, nil
	case TensorProtoUint64:
		return ir.Uint64, nil
	case TensorProtoBool:
		return ir.Bool, nil
	case TensorProtoString:
		return ir.String, nil
	default:
		return ir.Undefined, fmt.Errorf("unsupported tensor data type: %d", dataType)
	}
}

// dtypeToProto maps an IR element type back to the TensorProto constant.
func dtypeToProto(dt ir.DType) int32 {
	switch dt {
	case ir.Float32:
		return TensorProtoFloat
	case ir.Float64:
		return TensorProtoDouble
	case ir.Float16:
		return TensorProtoFloat16
	case ir.BFloat16:
		return TensorProtoBfloat16
	case ir.Int8:
		return TensorProtoInt8
	case ir.Int16:
		return TensorProtoInt16
	case ir.Int32:
		return TensorProtoInt32
	case ir.Int64:
		return TensorProtoInt64
	case ir.Uint8:
		return TensorProtoUint8
	case ir.Uint16:
		return TensorProtoUint16
	case ir.Uint32:
		return TensorProtoUint32
	case ir.Uint64:
		return TensorProtoUint64
	case ir.Bool:
		return TensorProtoBool
	case ir.String:
		return TensorProtoString
	default:
		return TensorProtoUndefined
	}
}

// materializeTensor converts a TensorProto into an IR constant payload.
//
// Raw data is used when present; otherwise the legacy typed fields are
// repacked into little-endian layout (float16/bfloat16 bit patterns
// travel in int32_data, narrow integers too). External data is loaded
// through ext; failures on that path wrap ErrExternalData and must abort
// the caller, every other failure is recoverable by substitution.
func materializeTensor(t *TensorProto, ext *externalDataReader) (*ir.Tensor, error) {
	dtype, err := protoDType(t.DataType)
	if err != nil {
		return nil, err
	}
	if t.Segment != nil {
		return nil, fmt.Errorf("tensor %q: %w", t.Name, ErrSegmentedTensor)
	}

	shape, err := tensorShape(t.Dims)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", t.Name, err)
	}

	if t.DataLocation == DataLocationExternal {
		data, err := ext.read(t)
		if err != nil {
			return nil, err
		}
		return newRawTensor(dtype, shape, data, t.Name)
	}

	if dtype == ir.String {
		tensor, err := ir.NewStringTensor(shape, t.StringData)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", t.Name, err)
		}
		return tensor, nil
	}

	if len(t.RawData) > 0 || typedFieldLen(t) == 0 {
		return newRawTensor(dtype, shape, t.RawData, t.Name)
	}

	data, err := packTypedData(t, dtype)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", t.Name, err)
	}
	return newRawTensor(dtype, shape, data, t.Name)
}

func newRawTensor(dtype ir.DType, shape ir.Shape, data []byte, name string) (*ir.Tensor, error) {
	tensor, err := ir.NewTensor(dtype, shape, data)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	return tensor, nil
}

// tensorShape converts TensorProto dims to a static shape.
func tensorShape(dims []int64) (ir.Shape, error) {
	for _, d := range dims {
		if d < 0 {
			return ir.Shape{}, fmt.Errorf("negative dimension %d", d)
		}
	}
	return ir.Static(dims...), nil
}

// typedFieldLen returns the element count carried by the legacy typed
// fields for the tensor's element type.
func typedFieldLen(t *TensorProto) int {
	switch t.DataType {
	case TensorProtoFloat:
		return len(t.FloatData)
	case TensorProtoDouble:
		return len(t.DoubleData)
	case TensorProtoInt64:
		return len(t.Int64Data)
	case TensorProtoUint32, TensorProtoUint64:
		return len(t.Uint64Data)
	default:
		return len(t.Int32Data)
	}
}

// packTypedData repacks legacy typed fields into raw little-endian form.
//
//nolint:gocognit,gocyclo,cyclop // one packing loop per element width
func packTypedData(t *TensorProto, dtype ir.DType) ([]byte, error) {
	switch dtype {
	case ir.Float32:
		data := make([]byte, len(t.FloatData)*4)
		for i, v := range t.FloatData {
			binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
		}
		return data, nil
	case ir.Float64:
		data := make([]byte, len(t.DoubleData)*8)
		for i, v := range t.DoubleData {
			binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(v))
		}
		return data, nil
	case ir.Int64:
		data := make([]byte, len(t.Int64Data)*8)
		for i, v := range t.Int64Data {
			binary.LittleEndian.PutUint64(data[i*8:], uint64(v)) //nolint:gosec // G115: bit reinterpretation.
		}
		return data, nil
	case ir.Uint64:
		data := make([]byte, len(t.Uint64Data)*8)
		for i, v := range t.Uint64Data {
			binary.LittleEndian.PutUint64(data[i*8:], v)
		}
		return data, nil
	case ir.Uint32:
		data := make([]byte, len(t.Uint64Data)*4)
		for i, v := range t.Uint64Data {
			binary.LittleEndian.PutUint32(data[i*4:], uint32(v)) //nolint:gosec // G115: ONNX stores uint32 in uint64_data.
		}
		return data, nil
	case ir.Int32:
		data := make([]byte, len(t.Int32Data)*4)
		for i, v := range t.Int32Data {
			binary.LittleEndian.PutUint32(data[i*4:], uint32(v)) //nolint:gosec // G115: bit reinterpretation.
		}
		return data, nil
	case ir.Int16, ir.Uint16, ir.Float16, ir.BFloat16:
		// 16-bit payloads (including float16/bfloat16 bit patterns)
		// travel in int32_data, one element per entry.
		data := make([]byte, len(t.Int32Data)*2)
		for i, v := range t.Int32Data {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(v)) //nolint:gosec // G115: low 16 bits carry the value.
		}
		return data, nil
	case ir.Int8, ir.Uint8:
		data := make([]byte, len(t.Int32Data))
		for i, v := range t.Int32Data {
			data[i] = byte(v)
		}
		return data, nil
	case ir.Bool:
		data := make([]byte, len(t.Int32Data))
		for i, v := range t.Int32Data {
			if v != 0 {
				data[i] = 1
			}
		}
		return data, nil
	default:
		return nil, fmt.Errorf("no typed data field for %s", dtype)
	}
}
