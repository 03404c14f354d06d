package onnx

import (
	"crypto/sha1" //nolint:gosec // G505: the ONNX external-data checksum field is SHA-1 by format definition.
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// externalDataReader loads tensor payloads stored outside the model file
// (TensorProto.data_location == EXTERNAL). Every failure on this path
// wraps ErrExternalData: malformed external references make initializer
// creation impossible and must abort graph construction.
type externalDataReader struct {
	dir            string
	verifyChecksum bool
}

func newExternalDataReader(dir string, verifyChecksum bool) *externalDataReader {
	return &externalDataReader{dir: dir, verifyChecksum: verifyChecksum}
}

// read resolves the location/offset/length/checksum entries of an
// externally stored tensor and returns its payload bytes.
func (r *externalDataReader) read(t *TensorProto) ([]byte, error) {
	location := ""
	offset := int64(0)
	length := int64(-1)
	checksum := ""
	for _, entry := range t.ExternalData {
		var err error
		switch entry.Key {
		case "location":
			location = entry.Value
		case "offset":
			offset, err = strconv.ParseInt(entry.Value, 10, 64)
		case "length":
			length, err = strconv.ParseInt(entry.Value, 10, 64)
		case "checksum":
			checksum = entry.Value
		}
		if err != nil {
			return nil, r.fail(t, "invalid %s entry %q: %v", entry.Key, entry.Value, err)
		}
	}
	if location == "" {
		return nil, r.fail(t, "missing location entry")
	}
	if r.dir == "" {
		return nil, r.fail(t, "no external data directory available")
	}

	// The location must stay inside the model directory.
	full := filepath.Join(r.dir, filepath.Clean(location))
	rel, err := filepath.Rel(r.dir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, r.fail(t, "location %q escapes the model directory", location)
	}

	data, err := os.ReadFile(full) //nolint:gosec // G304: reading model-referenced data files is the point.
	if err != nil {
		return nil, r.fail(t, "cannot read %q: %v", location, err)
	}

	if offset < 0 || offset > int64(len(data)) {
		return nil, r.fail(t, "offset %d out of range for %q (%d bytes)", offset, location, len(data))
	}
	if length < 0 {
		length = int64(len(data)) - offset
	}
	if offset+length > int64(len(data)) {
		return nil, r.fail(t, "offset %d + length %d exceeds %q (%d bytes)", offset, length, location, len(data))
	}
	payload := data[offset : offset+length]

	if checksum != "" && r.verifyChecksum {
		digest := sha1.Sum(payload) //nolint:gosec // G401: format-mandated checksum, not a security boundary.
		if !strings.EqualFold(hex.EncodeToString(digest[:]), checksum) {
			return nil, r.fail(t, "checksum mismatch for %q", location)
		}
	}
	return payload, nil
}

func (r *externalDataReader) fail(t *TensorProto, format string, args ...any) error {
	return fmt.Errorf("tensor %q: %s: %w", t.Name, fmt.Sprintf(format, args...), ErrExternalData)
}
