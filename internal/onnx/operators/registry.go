package operators

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/loom-ml/loom/internal/ir"
)

// Handler converts one ONNX node into IR output values.
type Handler func(ctx *Context, node *Node) ([]*ir.Value, error)

// Context carries conversion-time context for operator handlers.
type Context struct {
	// Opset is the model's declared opset version for the node's domain.
	Opset int64
	// Log receives handler diagnostics. Never nil.
	Log *zap.Logger
}

type versionedHandler struct {
	since   int64
	handler Handler
}

// Registry maps (domain, op type, since-version) to handler functions.
//
// Domains split into enabled and pending: the default domain is always
// enabled; a domain registered via RegisterDomain stays pending until
// EnableDomain installs it. Enabling an unregistered domain records an
// empty one, so enabling never fails; availability is re-checked by the
// caller afterwards.
type Registry struct {
	domains map[string]map[string][]versionedHandler
	pending map[string]map[string][]versionedHandler
}

// NewRegistry creates a registry with the default-domain operators.
func NewRegistry() *Registry {
	r := &Registry{
		domains: map[string]map[string][]versionedHandler{"": {}},
		pending: make(map[string]map[string][]versionedHandler),
	}
	r.registerMathOps()
	r.registerActivations()
	r.registerShapeOps()
	r.registerUtilityOps()
	r.registerControlFlow()
	return r
}

// Register adds a handler for an operator from the given since-version on.
// Handlers for a domain that is not enabled yet are held back until
// EnableDomain installs the domain.
func (r *Registry) Register(domain, opType string, since int64, h Handler) {
	target := r.domains
	if _, enabled := r.domains[domain]; !enabled {
		target = r.pending
	}
	ops := target[domain]
	if ops == nil {
		ops = make(map[string][]versionedHandler)
		target[domain] = ops
	}
	versions := append(ops[opType], versionedHandler{since: since, handler: h})
	sort.Slice(versions, func(i, j int) bool { return versions[i].since < versions[j].since })
	ops[opType] = versions
}

// RegisterDomain registers a full custom domain (all ops at since-version 1)
// without enabling it.
func (r *Registry) RegisterDomain(domain string, ops map[string]Handler) {
	for opType, h := range ops {
		r.Register(domain, opType, 1, h)
	}
}

// EnableDomain installs a pending domain, or records an empty enabled
// domain when nothing was registered for it. Enabling never fails.
func (r *Registry) EnableDomain(domain string) {
	if _, ok := r.domains[domain]; ok {
		return
	}
	if ops, ok := r.pending[domain]; ok {
		r.domains[domain] = ops
		delete(r.pending, domain)
		return
	}
	r.domains[domain] = make(map[string][]versionedHandler)
}

// IsAvailable reports whether an enabled domain carries the operator.
func (r *Registry) IsAvailable(domain, opType string) bool {
	ops, ok := r.domains[domain]
	if !ok {
		return false
	}
	return len(ops[opType]) > 0
}

// Get returns the handler whose since-version is the greatest one not above
// the requested opset version.
func (r *Registry) Get(domain, opType string, version int64) (Handler, error) {
	ops, ok := r.domains[domain]
	if !ok {
		return nil, errors.Errorf("domain %q is not enabled", domain)
	}
	versions := ops[opType]
	if len(versions) == 0 {
		return nil, errors.Errorf("operator %q is not registered in domain %q", opType, domain)
	}
	var h Handler
	for _, v := range versions {
		if v.since > version {
			break
		}
		h = v.handler
	}
	if h == nil {
		return nil, errors.Errorf("no version of %q supports opset %d (earliest is %d)",
			opType, version, versions[0].since)
	}
	return h, nil
}

// LatestVersion returns the greatest since-version registered in a domain,
// or 1 when the domain is empty or unknown.
func (r *Registry) LatestVersion(domain string) int64 {
	latest := int64(1)
	for _, versions := range r.domains[domain] {
		for _, v := range versions {
			if v.since > latest {
				latest = v.since
			}
		}
	}
	return latest
}

// SupportedOps lists every operator of every enabled domain, sorted.
// Default-domain operators appear as "OpType", others as "domain.OpType".
func (r *Registry) SupportedOps() []string {
	var out []string
	for domain, ops := range r.domains {
		for opType := range ops {
			if domain == "" {
				out = append(out, opType)
			} else {
				out = append(out, domain+"."+opType)
			}
		}
	}
	sort.Strings(out)
	return out
}
