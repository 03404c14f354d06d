package onnx

// ONNX protobuf data structures (hand-written, no protobuf runtime).

// ModelProto represents an ONNX model.
type ModelProto struct {
	IRVersion       int64               // IR version (e.g., 7, 8, 9)
	OpsetImport     []OperatorSetID     // Declared opset version per domain
	ProducerName    string              // Framework name (e.g., "pytorch", "tf")
	ProducerVersion string              // Framework version
	Domain          string              // Model domain
	ModelVersion    int64               // Model version number
	DocString       string              // Model description
	Graph           *GraphProto         // Computation graph
	MetadataProps   []StringStringEntry // Key-value metadata
}

// GraphProto represents the computation graph.
type GraphProto struct {
	Name         string           // Graph name
	Nodes        []NodeProto      // Operation nodes, topologically ordered
	Inputs       []ValueInfoProto // Declared graph inputs
	Outputs      []ValueInfoProto // Declared graph outputs
	Initializers []TensorProto    // Weight tensors
	ValueInfo    []ValueInfoProto // Intermediate tensor info
	DocString    string           // Graph description
}

// NodeProto represents a single operation.
type NodeProto struct {
	Name       string           // Node name (optional)
	OpType     string           // Operation type (e.g., "Conv", "MatMul", "Relu")
	Domain     string           // Operator domain (empty for the default domain)
	Inputs     []string         // Input tensor names ("" marks an absent optional)
	Outputs    []string         // Output tensor names
	Attributes []AttributeProto // Operation attributes
	DocString  string           // Node description
}

// TensorProto represents a tensor (weights/initializers).
type TensorProto struct {
	Name         string              // Tensor name
	DataType     int32               // Element data type
	Dims         []int64             // Tensor shape
	RawData      []byte              // Raw little-endian data (most common)
	FloatData    []float32           // float32/float16/bfloat16 data (legacy field)
	Int32Data    []int32             // int32 and narrower integer data (legacy field)
	Int64Data    []int64             // int64 data (legacy field)
	DoubleData   []float64           // float64 data (legacy field)
	Uint64Data   []uint64            // uint32/uint64 data (legacy field)
	StringData   [][]byte            // string data
	Segment      *TensorSegment      // Deprecated chunking info; rejected when set
	DataLocation int32               // DataLocationDefault or DataLocationExternal
	ExternalData []StringStringEntry // location/offset/length/checksum entries
	DocString    string              // Tensor description
}

// TensorSegment is the deprecated TensorProto.Segment message.
type TensorSegment struct {
	Begin int64
	End   int64
}

// Tensor data locations (TensorProto.DataLocation).
const (
	DataLocationDefault  = 0
	DataLocationExternal = 1
)

// ValueInfoProto describes an input/output tensor specification.
type ValueInfoProto struct {
	Name      string     // Tensor name
	Type      *TypeProto // Tensor type information
	DocString string     // Description
}

// TypeProto describes a value type.
type TypeProto struct {
	TensorType *TensorTypeProto // Tensor type (the only kind this importer handles)
}

// TensorTypeProto describes tensor shape and element type.
type TensorTypeProto struct {
	ElemType int32             // Element data type
	Shape    *TensorShapeProto // Tensor shape, nil when unranked
}

// TensorShapeProto describes tensor dimensions.
type TensorShapeProto struct {
	Dims []DimensionProto
}

// DimensionProto describes a single dimension: a static size, a named
// symbolic size, or neither (unknown).
type DimensionProto struct {
	DimValue    int64  // Static dimension value
	HasDimValue bool   // Whether dim_value was present
	DimParam    string // Symbolic dimension name (e.g., "batch_size")
}

// AttributeProto represents a node attribute.
type AttributeProto struct {
	Name      string        // Attribute name
	Type      int32         // Attribute type
	F         float32       // FLOAT value
	I         int64         // INT value
	S         []byte        // STRING value
	T         *TensorProto  // TENSOR value
	G         *GraphProto   // GRAPH value (control-flow body)
	Floats    []float32     // FLOATS array
	Ints      []int64       // INTS array
	Strings   [][]byte      // STRINGS array
	Tensors   []TensorProto // TENSORS array
	Graphs    []GraphProto  // GRAPHS array
	DocString string        // Description
}

// OperatorSetID identifies the opset version declared for one domain.
type OperatorSetID struct {
	Domain  string // Operator domain (empty for the default domain)
	Version int64  // Opset version number
}

// StringStringEntry represents a key-value pair.
type StringStringEntry struct {
	Key   string
	Value string
}

// ONNX data types (TensorProto.DataType).
const (
	TensorProtoUndefined  = 0
	TensorProtoFloat      = 1  // float32
	TensorProtoUint8      = 2  // uint8
	TensorProtoInt8       = 3  // int8
	TensorProtoUint16     = 4  // uint16
	TensorProtoInt16      = 5  // int16
	TensorProtoInt32      = 6  // int32
	TensorProtoInt64      = 7  // int64
	TensorProtoString     = 8  // string
	TensorProtoBool       = 9  // bool
	TensorProtoFloat16    = 10 // float16
	TensorProtoDouble     = 11 // float64
	TensorProtoUint32     = 12 // uint32
	TensorProtoUint64     = 13 // uint64
	TensorProtoComplex64  = 14 // complex64
	TensorProtoComplex128 = 15 // complex128
	TensorProtoBfloat16   = 16 // bfloat16
)

// ONNX attribute types (AttributeProto.Type).
const (
	AttributeProtoUndefined = 0
	AttributeProtoFloat     = 1  // FLOAT
	AttributeProtoInt       = 2  // INT
	AttributeProtoString    = 3  // STRING
	AttributeProtoTensor    = 4  // TENSOR
	AttributeProtoGraph     = 5  // GRAPH
	AttributeProtoFloats    = 6  // FLOATS
	AttributeProtoInts      = 7  // INTS
	AttributeProtoStrings   = 8  // STRINGS
	AttributeProtoTensors   = 9  // TENSORS
	AttributeProtoGraphs    = 10 // GRAPHS
)
