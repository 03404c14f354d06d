package onnx

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/loom-ml/loom/internal/ir"
	"github.com/loom-ml/loom/internal/onnx/operators"
)

// Option configures model loading.
type Option func(*loadConfig)

type loadConfig struct {
	log             *zap.Logger
	externalDataDir string
	verifyChecksums bool
	customOps       map[string]operators.Handler
	customDomains   map[string]map[string]operators.Handler
}

// WithLogger routes importer diagnostics (degraded initializers,
// conversion failures) to the given logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *loadConfig) { c.log = log }
}

// WithExternalDataDir overrides the directory external tensor locations
// resolve against. By default Load uses the model file's directory;
// LoadFromBytes has no default and rejects external references.
func WithExternalDataDir(dir string) Option {
	return func(c *loadConfig) { c.externalDataDir = dir }
}

// WithoutChecksumVerification disables SHA-1 verification of external
// tensor payloads that declare a checksum.
func WithoutChecksumVerification() Option {
	return func(c *loadConfig) { c.verifyChecksums = false }
}

// WithCustomOp registers an extra default-domain operator, available from
// opset version 1.
func WithCustomOp(opType string, h operators.Handler) Option {
	return func(c *loadConfig) {
		if c.customOps == nil {
			c.customOps = make(map[string]operators.Handler)
		}
		c.customOps[opType] = h
	}
}

// WithCustomDomain registers a custom operator domain. The domain stays
// pending until a model actually references it.
func WithCustomDomain(domain string, ops map[string]operators.Handler) Option {
	return func(c *loadConfig) {
		if c.customDomains == nil {
			c.customDomains = make(map[string]map[string]operators.Handler)
		}
		c.customDomains[domain] = ops
	}
}

// Load parses an ONNX model file and prepares it for conversion.
// External tensor locations resolve relative to the model file's
// directory unless overridden.
func Load(path string, opts ...Option) (*Model, error) {
	cfg := newLoadConfig(opts)
	if cfg.externalDataDir == "" {
		cfg.externalDataDir = filepath.Dir(path)
	}

	proto, err := ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return newLoadedModel(proto, cfg)
}

// LoadFromBytes parses an in-memory ONNX model. External tensor
// references fail unless WithExternalDataDir is given.
func LoadFromBytes(data []byte, opts ...Option) (*Model, error) {
	cfg := newLoadConfig(opts)

	proto, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse model bytes: %w", err)
	}
	return newLoadedModel(proto, cfg)
}

func newLoadConfig(opts []Option) *loadConfig {
	cfg := &loadConfig{
		log:             zap.NewNop(),
		verifyChecksums: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func newLoadedModel(proto *ModelProto, cfg *loadConfig) (*Model, error) {
	if proto.Graph == nil {
		return nil, ErrNoGraph
	}

	registry := operators.NewRegistry()
	for opType, h := range cfg.customOps {
		registry.Register(defaultDomain, opType, 1, h)
	}
	for domain, ops := range cfg.customDomains {
		registry.RegisterDomain(domain, ops)
	}

	ext := newExternalDataReader(cfg.externalDataDir, cfg.verifyChecksums)
	return newModel(proto, registry, ext, cfg.log), nil
}

// TensorDesc describes one declared graph input or output.
type TensorDesc struct {
	Name  string
	DType string
	Shape string
}

// ModelInfo summarizes a model without converting it.
type ModelInfo struct {
	IRVersion        int64
	OpsetVersion     int64
	ProducerName     string
	ProducerVersion  string
	Inputs           []TensorDesc
	Outputs          []TensorDesc
	OpCounts         map[string]int
	NodeCount        int
	InitializerCount int
}

func describeValueInfo(vi *ValueInfoProto) TensorDesc {
	desc := TensorDesc{Name: vi.Name, DType: ir.Undefined.String(), Shape: ir.Dynamic().String()}
	if vi.Type != nil && vi.Type.TensorType != nil {
		if dt, err := protoDType(vi.Type.TensorType.ElemType); err == nil {
			desc.DType = dt.String()
		}
		desc.Shape = shapeFromProto(vi.Type.TensorType.Shape).String()
	}
	return desc
}

// GetModelInfo extracts summary information from an ONNX file.
func GetModelInfo(path string) (*ModelInfo, error) {
	proto, err := ParseFile(path)
	if err != nil {
		return nil, err
	}

	info := &ModelInfo{
		IRVersion:       proto.IRVersion,
		ProducerName:    proto.ProducerName,
		ProducerVersion: proto.ProducerVersion,
	}
	for _, imp := range proto.OpsetImport {
		if normalizeDomain(imp.Domain) == defaultDomain {
			info.OpsetVersion = imp.Version
			break
		}
	}

	if proto.Graph != nil {
		shadowed := make(map[string]bool, len(proto.Graph.Initializers))
		for i := range proto.Graph.Initializers {
			shadowed[proto.Graph.Initializers[i].Name] = true
		}
		for i := range proto.Graph.Inputs {
			if !shadowed[proto.Graph.Inputs[i].Name] {
				info.Inputs = append(info.Inputs, describeValueInfo(&proto.Graph.Inputs[i]))
			}
		}
		for i := range proto.Graph.Outputs {
			info.Outputs = append(info.Outputs, describeValueInfo(&proto.Graph.Outputs[i]))
		}
		info.OpCounts = make(map[string]int, len(proto.Graph.Nodes))
		for _, n := range proto.Graph.Nodes {
			info.OpCounts[opIdentifier(normalizeDomain(n.Domain), n.OpType)]++
		}
		info.NodeCount = len(proto.Graph.Nodes)
		info.InitializerCount = len(proto.Graph.Initializers)
	}
	return info, nil
}

// ListSupportedOps returns every built-in operator identifier, sorted.
func ListSupportedOps() []string {
	return operators.NewRegistry().SupportedOps()
}
