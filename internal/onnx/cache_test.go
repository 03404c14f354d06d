package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ml/loom/internal/ir"
)

func TestSymbolCacheLastInsertWins(t *testing.T) {
	cache := newSymbolCache()
	first := ir.NewParameter(ir.Float32, ir.Static(2)).Output(0)
	second := ir.NewParameter(ir.Float32, ir.Static(3)).Output(0)

	cache.Insert("x", first)
	cache.Insert("x", second)

	got, err := cache.Get("x")
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestSymbolCacheUnknownName(t *testing.T) {
	cache := newSymbolCache()
	assert.False(t, cache.Contains("missing"))

	_, err := cache.Get("missing")
	require.ErrorIs(t, err, ErrUnknownSymbol)
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestSymbolCacheRemove(t *testing.T) {
	cache := newSymbolCache()
	cache.Insert("x", ir.NewParameter(ir.Float32, ir.Dynamic()).Output(0))
	require.True(t, cache.Contains("x"))

	cache.Remove("x")
	assert.False(t, cache.Contains("x"))
	cache.Remove("x") // removing twice is fine
}

func TestScopeChainShadowing(t *testing.T) {
	outerVal := ir.NewParameter(ir.Float32, ir.Static(2)).Output(0)
	outer := &Graph{cache: newSymbolCache()}
	outer.scope = outer
	outer.cache.Insert("x", outerVal)
	outer.cache.Insert("y", outerVal)

	inner := &Subgraph{parent: outer}
	inner.Graph = Graph{cache: newSymbolCache()}
	inner.scope = inner

	// outer names are visible through the chain
	assert.True(t, inner.nodeInCache("x"))
	got, err := inner.nodeFromCache("x")
	require.NoError(t, err)
	assert.Same(t, outerVal, got)

	// a local entry shadows the outer one
	localVal := ir.NewParameter(ir.Float32, ir.Static(5)).Output(0)
	inner.cache.Insert("x", localVal)
	got, err = inner.nodeFromCache("x")
	require.NoError(t, err)
	assert.Same(t, localVal, got)

	// unknown everywhere
	assert.False(t, inner.nodeInCache("z"))
	_, err = inner.nodeFromCache("z")
	require.ErrorIs(t, err, ErrUnknownSymbol)
}
