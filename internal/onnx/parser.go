package onnx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// ParseFile parses an ONNX model from a file.
//
//nolint:gosec // G304: Path is provided by user, file inclusion is intentional for ONNX model loading
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
func Parse(data []byte) (*ModelProto, error) {
	p := &parser{data: data}
	model := &ModelProto{}
	if err := p.readModelProto(model); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return model, nil
}

// parser implements a minimal protobuf wire format decoder.
type parser struct {
	data []byte
	pos  int
}

// Protobuf wire types.
const (
	wireVarint = 0 // int32, int64, uint32, uint64, sint32, sint64, bool, enum
	wire64Bit  = 1 // fixed64, sfixed64, double
	wireBytes  = 2 // string, bytes, embedded messages, packed repeated fields
	wire32Bit  = 5 // fixed32, sfixed32, float
)

// readModelProto reads a ModelProto message.
//
//nolint:gocognit,gocyclo,cyclop // Protobuf parsing requires field-by-field switch logic
func (p *parser) readModelProto(m *ModelProto) error {
	for p.pos < len(p.data) {
		fieldNum, wireType, err := p.readTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		switch fieldNum {
		case 1: // ir_version
			m.IRVersion, err = p.readVarint()
		case 2: // producer_name
			m.ProducerName, err = p.readString()
		case 3: // producer_version
			m.ProducerVersion, err = p.readString()
		case 4: // domain
			m.Domain, err = p.readString()
		case 5: // model_version
			m.ModelVersion, err = p.readVarint()
		case 6: // doc_string
			m.DocString, err = p.readString()
		case 7: // graph
			sub, err2 := p.readSub()
			if err2 != nil {
				return err2
			}
			m.Graph = &GraphProto{}
			err = sub.readGraphProto(m.Graph)
		case 8: // opset_import
			sub, err2 := p.readSub()
			if err2 != nil {
				return err2
			}
			opset := OperatorSetID{}
			if err = sub.readOperatorSetID(&opset); err == nil {
				m.OpsetImport = append(m.OpsetImport, opset)
			}
		case 14: // metadata_props
			sub, err2 := p.readSub()
			if err2 != nil {
				return err2
			}
			entry := StringStringEntry{}
			if err = sub.readStringStringEntry(&entry); err == nil {
				m.MetadataProps = append(m.MetadataProps, entry)
			}
		default:
			err = p.skipField(wireType)
		}

		if err != nil {
			return err
		}
	}
	return nil
}

// readGraphProto reads a GraphProto message.
//
//nolint:gocognit,gocyclo,cyclop // Protobuf parsing requires field-by-field switch logic
func (p *parser) readGraphProto(m *GraphProto) error {
	for p.pos < len(p.data) {
		fieldNum, wireType, err := p.readTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		switch fieldNum {
		case 1: // node
			sub, err2 := p.readSub()
			if err2 != nil {
				return err2
			}
			node := NodeProto{}
			if err = sub.readNodeProto(&node); err == nil {
				m.Nodes = append(m.Nodes, node)
			}
		case 2: // name
			m.Name, err = p.readString()
		case 5: // initializer
			sub, err2 := p.readSub()
			if err2 != nil {
				return err2
			}
			tensor := TensorProto{}
			if err = sub.readTensorProto(&tensor); err == nil {
				m.Initializers = append(m.Initializers, tensor)
			}
		case 10: // doc_string
			m.DocString, err = p.readString()
		case 11: // input
			var vi ValueInfoProto
			if vi, err = p.readValueInfo(); err == nil {
				m.Inputs = append(m.Inputs, vi)
			}
		case 12: // output
			var vi ValueInfoProto
			if vi, err = p.readValueInfo(); err == nil {
				m.Outputs = append(m.Outputs, vi)
			}
		case 13: // value_info
			var vi ValueInfoProto
			if vi, err = p.readValueInfo(); err == nil {
				m.ValueInfo = append(m.ValueInfo, vi)
			}
		default:
			err = p.skipField(wireType)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readNodeProto reads a NodeProto message.
//
//nolint:gocognit,gocyclo,cyclop // Protobuf parsing requires field-by-field switch logic
func (p *parser) readNodeProto(m *NodeProto) error {
	for p.pos < len(p.data) {
		fieldNum, wireType, err := p.readTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		switch fieldNum {
		case 1: // input
			var s string
			if s, err = p.readString(); err == nil {
				m.Inputs = append(m.Inputs, s)
			}
		case 2: // output
			var s string
			if s, err = p.readString(); err == nil {
				m.Outputs = append(m.Outputs, s)
			}
		case 3: // name
			m.Name, err = p.readString()
		case 4: // op_type
			m.OpType, err = p.readString()
		case 5: // attribute
			sub, err2 := p.readSub()
			if err2 != nil {
				return err2
			}
			attr := AttributeProto{}
			if err = sub.readAttributeProto(&attr); err == nil {
				m.Attributes = append(m.Attributes, attr)
			}
		case 6: // doc_string
			m.DocString, err = p.readString()
		case 7: // domain
			m.Domain, err = p.readString()
		default:
			err = p.skipField(wireType)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readTensorProto reads a TensorProto message.
//
//nolint:gocognit,gocyclo,cyclop,funlen // Protobuf parsing requires field-by-field switch logic
func (p *parser) readTensorProto(m *TensorProto) error {
	for p.pos < len(p.data) {
		fieldNum, wireType, err := p.readTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		switch fieldNum {
		case 1: // dims (repeated int64)
			err = p.readRepeatedVarint(wireType, func(v int64) {
				m.Dims = append(m.Dims, v)
			})
		case 2: // data_type
			m.DataType, err = p.readInt32()
		case 3: // segment
			sub, err2 := p.readSub()
			if err2 != nil {
				return err2
			}
			m.Segment = &TensorSegment{}
			err = sub.readTensorSegment(m.Segment)
		case 4: // float_data
			err = p.readRepeatedFloat32(wireType, func(v float32) {
				m.FloatData = append(m.FloatData, v)
			})
		case 5: // int32_data
			err = p.readRepeatedVarint(wireType, func(v int64) {
				m.Int32Data = append(m.Int32Data, int32(v)) //nolint:gosec // G115: ONNX int32_data varint fits in int32.
			})
		case 6: // string_data
			var data []byte
			if data, err = p.readBytes(); err == nil {
				m.StringData = append(m.StringData, data)
			}
		case 7: // int64_data
			err = p.readRepeatedVarint(wireType, func(v int64) {
				m.Int64Data = append(m.Int64Data, v)
			})
		case 8: // name
			m.Name, err = p.readString()
		case 9: // raw_data
			m.RawData, err = p.readBytes()
		case 10: // double_data
			err = p.readRepeatedFloat64(wireType, func(v float64) {
				m.DoubleData = append(m.DoubleData, v)
			})
		case 11: // uint64_data
			err = p.readRepeatedVarint(wireType, func(v int64) {
				m.Uint64Data = append(m.Uint64Data, uint64(v)) //nolint:gosec // G115: reinterpreting the varint bits as uint64.
			})
		case 12: // doc_string
			m.DocString, err = p.readString()
		case 13: // external_data
			sub, err2 := p.readSub()
			if err2 != nil {
				return err2
			}
			entry := StringStringEntry{}
			if err = sub.readStringStringEntry(&entry); err == nil {
				m.ExternalData = append(m.ExternalData, entry)
			}
		case 14: // data_location
			m.DataLocation, err = p.readInt32()
		default:
			err = p.skipField(wireType)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readTensorSegment reads the deprecated TensorProto.Segment message.
func (p *parser) readTensorSegment(m *TensorSegment) error {
	for p.pos < len(p.data) {
		fieldNum, wireType, err := p.readTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		switch fieldNum {
		case 1: // begin
			m.Begin, err = p.readVarint()
		case 2: // end
			m.End, err = p.readVarint()
		default:
			err = p.skipField(wireType)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readValueInfo reads a length-delimited ValueInfoProto.
func (p *parser) readValueInfo() (ValueInfoProto, error) {
	vi := ValueInfoProto{}
	sub, err := p.readSub()
	if err != nil {
		return vi, err
	}
	return vi, sub.readValueInfoProto(&vi)
}

// readValueInfoProto reads a ValueInfoProto message.
func (p *parser) readValueInfoProto(m *ValueInfoProto) error {
	for p.pos < len(p.data) {
		fieldNum, wireType, err := p.readTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		switch fieldNum {
		case 1: // name
			m.Name, err = p.readString()
		case 2: // type
			sub, err2 := p.readSub()
			if err2 != nil {
				return err2
			}
			m.Type = &TypeProto{}
			err = sub.readTypeProto(m.Type)
		case 3: // doc_string
			m.DocString, err = p.readString()
		default:
			err = p.skipField(wireType)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readTypeProto reads a TypeProto message.
func (p *parser) readTypeProto(m *TypeProto) error {
	for p.pos < len(p.data) {
		fieldNum, wireType, err := p.readTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		switch fieldNum {
		case 1: // tensor_type
			sub, err2 := p.readSub()
			if err2 != nil {
				return err2
			}
			m.TensorType = &TensorTypeProto{}
			err = sub.readTensorTypeProto(m.TensorType)
		default:
			err = p.skipField(wireType)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readTensorTypeProto reads a TensorTypeProto message.
func (p *parser) readTensorTypeProto(m *TensorTypeProto) error {
	for p.pos < len(p.data) {
		fieldNum, wireType, err := p.readTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		switch fieldNum {
		case 1: // elem_type
			m.ElemType, err = p.readInt32()
		case 2: // shape
			sub, err2 := p.readSub()
			if err2 != nil {
				return err2
			}
			m.Shape = &TensorShapeProto{}
			err = sub.readTensorShapeProto(m.Shape)
		default:
			err = p.skipField(wireType)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readTensorShapeProto reads a TensorShapeProto message.
func (p *parser) readTensorShapeProto(m *TensorShapeProto) error {
	for p.pos < len(p.data) {
		fieldNum, wireType, err := p.readTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		switch fieldNum {
		case 1: // dim
			sub, err2 := p.readSub()
			if err2 != nil {
				return err2
			}
			dim := DimensionProto{}
			if err = sub.readDimensionProto(&dim); err == nil {
				m.Dims = append(m.Dims, dim)
			}
		default:
			err = p.skipField(wireType)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readDimensionProto reads a DimensionProto message.
func (p *parser) readDimensionProto(m *DimensionProto) error {
	for p.pos < len(p.data) {
		fieldNum, wireType, err := p.readTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		switch fieldNum {
		case 1: // dim_value
			if m.DimValue, err = p.readVarint(); err == nil {
				m.HasDimValue = true
			}
		case 2: // dim_param
			m.DimParam, err = p.readString()
		default:
			err = p.skipField(wireType)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readAttributeProto reads an AttributeProto message.
//
//nolint:gocognit,gocyclo,cyclop,funlen // Protobuf parsing requires field-by-field switch logic
func (p *parser) readAttributeProto(m *AttributeProto) error {
	for p.pos < len(p.data) {
		fieldNum, wireType, err := p.readTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		switch fieldNum {
		case 1: // name
			m.Name, err = p.readString()
		case 2: // f (float)
			m.F, err = p.readFloat32()
		case 3: // i (int)
			m.I, err = p.readVarint()
		case 4: // s (bytes)
			m.S, err = p.readBytes()
		case 5: // t (tensor)
			sub, err2 := p.readSub()
			if err2 != nil {
				return err2
			}
			m.T = &TensorProto{}
			err = sub.readTensorProto(m.T)
		case 6: // g (graph)
			sub, err2 := p.readSub()
			if err2 != nil {
				return err2
			}
			m.G = &GraphProto{}
			err = sub.readGraphProto(m.G)
		case 7: // floats
			err = p.readRepeatedFloat32(wireType, func(v float32) {
				m.Floats = append(m.Floats, v)
			})
		case 8: // ints
			err = p.readRepeatedVarint(wireType, func(v int64) {
				m.Ints = append(m.Ints, v)
			})
		case 9: // strings
			var data []byte
			if data, err = p.readBytes(); err == nil {
				m.Strings = append(m.Strings, data)
			}
		case 10: // tensors
			sub, err2 := p.readSub()
			if err2 != nil {
				return err2
			}
			tensor := TensorProto{}
			if err = sub.readTensorProto(&tensor); err == nil {
				m.Tensors = append(m.Tensors, tensor)
			}
		case 11: // graphs
			sub, err2 := p.readSub()
			if err2 != nil {
				return err2
			}
			graph := GraphProto{}
			if err = sub.readGraphProto(&graph); err == nil {
				m.Graphs = append(m.Graphs, graph)
			}
		case 13: // doc_string
			m.DocString, err = p.readString()
		case 20: // type
			m.Type, err = p.readInt32()
		default:
			err = p.skipField(wireType)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readOperatorSetID reads an OperatorSetID message.
func (p *parser) readOperatorSetID(m *OperatorSetID) error {
	for p.pos < len(p.data) {
		fieldNum, wireType, err := p.readTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		switch fieldNum {
		case 1: // domain
			m.Domain, err = p.readString()
		case 2: // version
			m.Version, err = p.readVarint()
		default:
			err = p.skipField(wireType)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readStringStringEntry reads a StringStringEntry message.
func (p *parser) readStringStringEntry(m *StringStringEntry) error {
	for p.pos < len(p.data) {
		fieldNum, wireType, err := p.readTag()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		switch fieldNum {
		case 1: // key
			m.Key, err = p.readString()
		case 2: // value
			m.Value, err = p.readString()
		default:
			err = p.skipField(wireType)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readTag reads a protobuf field tag. Field numbers above 15 are encoded
// on several bytes; readVarint handles them transparently.
func (p *parser) readTag() (fieldNum, wireType int, err error) {
	if p.pos >= len(p.data) {
		return 0, 0, io.EOF
	}
	tag, err := p.readVarint()
	if err != nil {
		return 0, 0, err
	}
	if tag>>3 == 0 {
		return 0, 0, errors.New("invalid field number 0")
	}
	fieldNum = int(tag >> 3)
	wireType = int(tag & 0x7)
	return fieldNum, wireType, nil
}

// readVarint reads a varint-encoded int64.
func (p *parser) readVarint() (int64, error) {
	var result uint64
	var shift uint
	for {
		if p.pos >= len(p.data) {
			return 0, io.ErrUnexpectedEOF
		}
		b := p.data[p.pos]
		p.pos++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 64 {
			return 0, errors.New("varint overflow")
		}
	}
	return int64(result), nil //nolint:gosec // G115: reinterpreting the varint bits as int64.
}

// readInt32 reads a varint-encoded int32.
func (p *parser) readInt32() (int32, error) {
	v, err := p.readVarint()
	if err != nil {
		return 0, err
	}
	return int32(v), nil //nolint:gosec // G115: ONNX enum values fit in int32.
}

// readBytes reads a length-delimited byte slice.
func (p *parser) readBytes() ([]byte, error) {
	length, err := p.readVarint()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, errors.New("negative length")
	}
	end := p.pos + int(length)
	if end > len(p.data) || end < p.pos {
		return nil, io.ErrUnexpectedEOF
	}
	result := p.data[p.pos:end]
	p.pos = end
	return result, nil
}

// readString reads a length-delimited string.
func (p *parser) readString() (string, error) {
	data, err := p.readBytes()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// readSub reads a length-delimited field into a nested parser.
func (p *parser) readSub() (*parser, error) {
	data, err := p.readBytes()
	if err != nil {
		return nil, err
	}
	return &parser{data: data}, nil
}

// readFloat32 reads a 32-bit float.
func (p *parser) readFloat32() (float32, error) {
	if p.pos+4 > len(p.data) {
		return 0, io.ErrUnexpectedEOF
	}
	bits := binary.LittleEndian.Uint32(p.data[p.pos:])
	p.pos += 4
	return math.Float32frombits(bits), nil
}

// readFloat64 reads a 64-bit float.
func (p *parser) readFloat64() (float64, error) {
	if p.pos+8 > len(p.data) {
		return 0, io.ErrUnexpectedEOF
	}
	bits := binary.LittleEndian.Uint64(p.data[p.pos:])
	p.pos += 8
	return math.Float64frombits(bits), nil
}

// readRepeatedVarint reads one element of a repeated varint field, or a
// whole packed run when the field is length-delimited.
func (p *parser) readRepeatedVarint(wireType int, emit func(int64)) error {
	if wireType == wireBytes {
		sub, err := p.readSub()
		if err != nil {
			return err
		}
		for sub.pos < len(sub.data) {
			v, err := sub.readVarint()
			if err != nil {
				return err
			}
			emit(v)
		}
		return nil
	}
	v, err := p.readVarint()
	if err != nil {
		return err
	}
	emit(v)
	return nil
}

// readRepeatedFloat32 reads one element of a repeated float field, or a
// whole packed run when the field is length-delimited.
func (p *parser) readRepeatedFloat32(wireType int, emit func(float32)) error {
	if wireType == wireBytes {
		sub, err := p.readSub()
		if err != nil {
			return err
		}
		for sub.pos+4 <= len(sub.data) {
			v, err := sub.readFloat32()
			if err != nil {
				return err
			}
			emit(v)
		}
		return nil
	}
	v, err := p.readFloat32()
	if err != nil {
		return err
	}
	emit(v)
	return nil
}

// readRepeatedFloat64 reads one element of a repeated double field, or a
// whole packed run when the field is length-delimited.
func (p *parser) readRepeatedFloat64(wireType int, emit func(float64)) error {
	if wireType == wireBytes {
		sub, err := p.readSub()
		if err != nil {
			return err
		}
		for sub.pos+8 <= len(sub.data) {
			v, err := sub.readFloat64()
			if err != nil {
				return err
			}
			emit(v)
		}
		return nil
	}
	v, err := p.readFloat64()
	if err != nil {
		return err
	}
	emit(v)
	return nil
}

// skipField skips a field based on wire type.
func (p *parser) skipField(wireType int) error {
	switch wireType {
	case wireVarint:
		_, err := p.readVarint()
		return err
	case wire64Bit:
		if p.pos+8 > len(p.data) {
			return io.ErrUnexpectedEOF
		}
		p.pos += 8
		return nil
	case wireBytes:
		_, err := p.readBytes()
		return err
	case wire32Bit:
		if p.pos+4 > len(p.data) {
			return io.ErrUnexpectedEOF
		}
		p.pos += 4
		return nil
	default:
		return fmt.Errorf("unknown wire type: %d", wireType)
	}
}
