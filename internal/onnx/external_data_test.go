package onnx

import (
	"crypto/sha1" //nolint:gosec // G505: format-mandated checksum algorithm.
	"encoding/binary"
	"encoding/hex"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loom-ml/loom/internal/ir"
)

func externalTensor(name, location string, entries ...StringStringEntry) *TensorProto {
	t := &TensorProto{
		Name:         name,
		DataType:     TensorProtoFloat,
		Dims:         []int64{2},
		DataLocation: DataLocationExternal,
	}
	if location != "" {
		t.ExternalData = append(t.ExternalData, StringStringEntry{Key: "location", Value: location})
	}
	t.ExternalData = append(t.ExternalData, entries...)
	return t
}

func writeWeights(t *testing.T, dir, name string, values ...float32) []byte {
	t.Helper()
	data := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
	return data
}

func TestExternalDataRead(t *testing.T) {
	dir := t.TempDir()
	data := writeWeights(t, dir, "weights.bin", 1.5, -2.0)
	reader := newExternalDataReader(dir, true)

	payload, err := reader.read(externalTensor("w", "weights.bin"))
	require.NoError(t, err)
	assert.Equal(t, data, payload)
}

func TestExternalDataOffsetAndLength(t *testing.T) {
	dir := t.TempDir()
	data := writeWeights(t, dir, "weights.bin", 0, 1.5, -2.0, 0)
	reader := newExternalDataReader(dir, true)

	payload, err := reader.read(externalTensor("w", "weights.bin",
		StringStringEntry{Key: "offset", Value: "4"},
		StringStringEntry{Key: "length", Value: "8"},
	))
	require.NoError(t, err)
	assert.Equal(t, data[4:12], payload)

	_, err = reader.read(externalTensor("w", "weights.bin",
		StringStringEntry{Key: "offset", Value: "12"},
		StringStringEntry{Key: "length", Value: "8"},
	))
	require.ErrorIs(t, err, ErrExternalData)
}

func TestExternalDataChecksum(t *testing.T) {
	dir := t.TempDir()
	data := writeWeights(t, dir, "weights.bin", 1.5, -2.0)
	digest := sha1.Sum(data) //nolint:gosec // G401: format-mandated checksum algorithm.

	reader := newExternalDataReader(dir, true)
	_, err := reader.read(externalTensor("w", "weights.bin",
		StringStringEntry{Key: "checksum", Value: hex.EncodeToString(digest[:])},
	))
	require.NoError(t, err)

	_, err = reader.read(externalTensor("w", "weights.bin",
		StringStringEntry{Key: "checksum", Value: "deadbeef"},
	))
	require.ErrorIs(t, err, ErrExternalData)
	assert.Contains(t, err.Error(), "checksum")

	// verification can be switched off
	relaxed := newExternalDataReader(dir, false)
	_, err = relaxed.read(externalTensor("w", "weights.bin",
		StringStringEntry{Key: "checksum", Value: "deadbeef"},
	))
	require.NoError(t, err)
}

func TestExternalDataRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	reader := newExternalDataReader(dir, true)

	_, err := reader.read(externalTensor("w", "../outside.bin"))
	require.ErrorIs(t, err, ErrExternalData)
	assert.Contains(t, err.Error(), "escapes")
}

func TestExternalDataMissingLocation(t *testing.T) {
	reader := newExternalDataReader(t.TempDir(), true)
	_, err := reader.read(externalTensor("w", ""))
	require.ErrorIs(t, err, ErrExternalData)
	assert.Contains(t, err.Error(), `tensor "w"`)
}

func TestExternalDataNoDirectory(t *testing.T) {
	reader := newExternalDataReader("", true)
	_, err := reader.read(externalTensor("w", "weights.bin"))
	require.ErrorIs(t, err, ErrExternalData)
}

func TestMaterializeExternalTensor(t *testing.T) {
	dir := t.TempDir()
	writeWeights(t, dir, "weights.bin", 1.5, -2.0)

	tensor, err := materializeTensor(
		externalTensor("w", "weights.bin"),
		newExternalDataReader(dir, true),
	)
	require.NoError(t, err)
	assert.Equal(t, ir.Float32, tensor.DType())

	values, err := tensor.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2.0}, values)
}
