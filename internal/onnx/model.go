package onnx

import (
	"go.uber.org/zap"

	"github.com/loom-ml/loom/internal/ir"
	"github.com/loom-ml/loom/internal/onnx/operators"
)

// defaultDomain is the ONNX default operator domain. "ai.onnx" is an
// alias for it and both share one opset entry.
const defaultDomain = ""

// normalizeDomain folds the "ai.onnx" alias into the default domain.
func normalizeDomain(domain string) string {
	if domain == "ai.onnx" {
		return defaultDomain
	}
	return domain
}

// Model wraps a parsed ONNX model together with the operator registry and
// the declared opset versions. It is the entry point for building the IR:
// Convert produces a fully-resolved function, Decode a pass-through one
// that preserves every node as an opaque framework node.
type Model struct {
	proto    *ModelProto
	opsets   map[string]int64
	registry *operators.Registry
	ext      *externalDataReader
	log      *zap.Logger
}

func newModel(proto *ModelProto, registry *operators.Registry, ext *externalDataReader, log *zap.Logger) *Model {
	opsets := make(map[string]int64)
	// Duplicate imports for one domain keep the last entry, matching the
	// later-fields-override semantics of the wire format.
	for _, imp := range proto.OpsetImport {
		opsets[normalizeDomain(imp.Domain)] = imp.Version
	}
	if _, ok := opsets[defaultDomain]; !ok {
		// Models without opset imports predate IR version 3; treat them as
		// targeting the latest registered default-domain version.
		opsets[defaultDomain] = registry.LatestVersion(defaultDomain)
	}
	return &Model{proto: proto, opsets: opsets, registry: registry, ext: ext, log: log}
}

// Convert builds the IR function for the model's graph, resolving every
// node through the operator registry.
func (m *Model) Convert() (*ir.Function, error) {
	g, err := newGraph(m, m.proto.Graph)
	if err != nil {
		return nil, err
	}
	return g.Convert()
}

// Decode builds a pass-through IR function that preserves every node as a
// framework node carrying its original operator identity, for later
// re-resolution with Resolve.
func (m *Model) Decode() (*ir.Function, error) {
	g, err := newGraph(m, m.proto.Graph)
	if err != nil {
		return nil, err
	}
	return g.Decode()
}

// Opset returns the declared opset version for a domain, or the latest
// registered version when the domain was never imported.
func (m *Model) Opset(domain string) int64 {
	if v, ok := m.opsets[normalizeDomain(domain)]; ok {
		return v
	}
	return m.registry.LatestVersion(normalizeDomain(domain))
}

// IsOperatorAvailable reports whether the node's operator identity is
// resolvable through the registry.
func (m *Model) IsOperatorAvailable(node *NodeProto) bool {
	return m.registry.IsAvailable(normalizeDomain(node.Domain), node.OpType)
}

// EnableOpsetDomain lazily enables an operator domain discovered during a
// scan. Enabling never fails; availability is re-checked afterwards.
func (m *Model) EnableOpsetDomain(domain string) {
	domain = normalizeDomain(domain)
	m.registry.EnableDomain(domain)
	if _, ok := m.opsets[domain]; !ok {
		m.opsets[domain] = m.registry.LatestVersion(domain)
	}
}

// GetOperator returns the conversion function for an operator identity at
// the domain's declared opset version.
func (m *Model) GetOperator(domain, opType string) (operators.Handler, error) {
	domain = normalizeDomain(domain)
	return m.registry.Get(domain, opType, m.Opset(domain))
}

// Proto returns the underlying parsed model.
func (m *Model) Proto() *ModelProto { return m.proto }

// IRVersion returns the model's declared IR version.
func (m *Model) IRVersion() int64 { return m.proto.IRVersion }

// OpsetVersion returns the default-domain opset version.
func (m *Model) OpsetVersion() int64 { return m.Opset(defaultDomain) }

// InputNames returns the declared graph inputs minus initializers.
func (m *Model) InputNames() []string {
	if m.proto.Graph == nil {
		return nil
	}
	shadowed := make(map[string]bool)
	for i := range m.proto.Graph.Initializers {
		shadowed[m.proto.Graph.Initializers[i].Name] = true
	}
	var names []string
	for i := range m.proto.Graph.Inputs {
		if !shadowed[m.proto.Graph.Inputs[i].Name] {
			names = append(names, m.proto.Graph.Inputs[i].Name)
		}
	}
	return names
}

// OutputNames returns the declared graph output names.
func (m *Model) OutputNames() []string {
	if m.proto.Graph == nil {
		return nil
	}
	names := make([]string, len(m.proto.Graph.Outputs))
	for i := range m.proto.Graph.Outputs {
		names[i] = m.proto.Graph.Outputs[i].Name
	}
	return names
}

// Metadata returns the model's metadata properties plus the producer
// fields, as key-value pairs.
func (m *Model) Metadata() map[string]string {
	meta := make(map[string]string)
	for _, prop := range m.proto.MetadataProps {
		meta[prop.Key] = prop.Value
	}
	meta["producer_name"] = m.proto.ProducerName
	meta["producer_version"] = m.proto.ProducerVersion
	meta["domain"] = m.proto.Domain
	return meta
}
