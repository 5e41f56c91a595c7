package relay

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// maxSnapshotBytes bounds the inflated size of a host-state snapshot.
// Blobs that inflate past it are rejected before the JSON check.
const maxSnapshotBytes = 4 << 20

// Sentinel errors for snapshot validation.
var (
	// ErrSnapshotEmpty indicates an empty or non-string state payload.
	ErrSnapshotEmpty = errors.New("snapshot payload must be a non-empty string")

	// ErrSnapshotEncoding indicates a blob that does not round-trip
	// through the transport codec (base64 + DEFLATE) to valid JSON.
	ErrSnapshotEncoding = errors.New("snapshot payload is not valid compressed data")

	// ErrSnapshotTooLarge indicates a blob that inflates past the
	// supported bound.
	ErrSnapshotTooLarge = errors.New("snapshot payload inflates past the supported size")
)

// DecodeSnapshot verifies an opaque compressed snapshot blob: base64
// (standard, padded) wrapping raw DEFLATE wrapping a syntactically
// valid JSON document. The relay never interprets the document — it
// only proves the blob survives the codec. Returns the inflated size.
func DecodeSnapshot(blob string) (int, error) {
	if blob == "" {
		return 0, ErrSnapshotEmpty
	}

	compressed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSnapshotEncoding, err)
	}

	fr := flate.NewReader(bytes.NewReader(compressed))
	defer fr.Close()

	inflated, err := io.ReadAll(io.LimitReader(fr, maxSnapshotBytes+1))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSnapshotEncoding, err)
	}
	if len(inflated) > maxSnapshotBytes {
		return 0, ErrSnapshotTooLarge
	}

	if !json.Valid(inflated) {
		return 0, fmt.Errorf("%w: inflated payload is not JSON", ErrSnapshotEncoding)
	}

	return len(inflated), nil
}

// SnapshotHash computes the content hash of a snapshot blob: SHA-1 over
// the raw blob string bytes, base64-encoded. The hash is computed on
// the compressed form so byte-identical uploads dedupe without
// inflating anything.
func SnapshotHash(blob string) string {
	sum := sha1.Sum([]byte(blob))
	return base64.StdEncoding.EncodeToString(sum[:])
}
