package onnx

import (
	"fmt"

	"github.com/loom-ml/loom/internal/ir"
)

// symbolCache maps tensor names to the values produced for them within
// one graph scope. Re-insertion overwrites silently: the last writer
// wins, matching the source format's later-fields-override semantics.
type symbolCache struct {
	values map[string]*ir.Value
}

func newSymbolCache() *symbolCache {
	return &symbolCache{values: make(map[string]*ir.Value)}
}

// Contains reports whether a value is cached under the given name.
func (c *symbolCache) Contains(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Get returns the value cached under the given name.
func (c *symbolCache) Get(name string) (*ir.Value, error) {
	v, ok := c.values[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSymbol, name)
	}
	return v, nil
}

// Insert binds a name to a value, overwriting any existing binding.
func (c *symbolCache) Insert(name string, v *ir.Value) {
	c.values[name] = v
}

// Remove drops the binding for a name, if present.
func (c *symbolCache) Remove(name string) {
	delete(c.values, name)
}
