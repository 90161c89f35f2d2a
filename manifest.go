// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

package pbin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// EncodeManifest serializes m as compact UTF-8 JSON with the fixed key
// order name, version, entries and, inside each entry, target, offset,
// compressed_size, uncompressed_size, checksum. No trailing newline.
// The output is byte-identical across runs for identical input.
func EncodeManifest(m *Manifest) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil manifest", ErrUsage)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeJSONString(&buf, "name", m.Name); err != nil {
		return nil, err
	}
	buf.WriteByte(',')
	if err := writeJSONString(&buf, "version", m.Version); err != nil {
		return nil, err
	}
	buf.WriteString(`,"entries":[`)

	for i := range m.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}

		e := &m.Entries[i]
		buf.WriteByte('{')
		if err := writeJSONString(&buf, "target", e.Target); err != nil {
			return nil, err
		}
		buf.WriteString(`,"offset":`)
		buf.WriteString(strconv.FormatUint(e.Offset, 10))
		buf.WriteString(`,"compressed_size":`)
		buf.WriteString(strconv.FormatUint(e.CompressedSize, 10))
		buf.WriteString(`,"uncompressed_size":`)
		buf.WriteString(strconv.FormatUint(e.UncompressedSize, 10))
		buf.WriteByte(',')
		if err := writeJSONString(&buf, "checksum", e.Checksum); err != nil {
			return nil, err
		}
		buf.WriteByte('}')
	}

	buf.WriteString(`]}`)

	return buf.Bytes(), nil
}

// writeJSONString writes one `"key":"value"` pair with JSON escaping.
func writeJSONString(buf *bytes.Buffer, key, value string) error {
	buf.WriteByte('"')
	buf.WriteString(key)
	buf.WriteString(`":`)

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode manifest string %s: %w", key, err)
	}

	buf.Write(encoded)

	return nil
}

// manifestWire mirrors Manifest with pointer fields so absent keys are
// distinguishable from zero values.
type manifestWire struct {
	Name    *string     `json:"name"`
	Version *string     `json:"version"`
	Entries []entryWire `json:"entries"`
}

// entryWire mirrors Entry for strict decoding.
type entryWire struct {
	Target           *string `json:"target"`
	Offset           *uint64 `json:"offset"`
	CompressedSize   *uint64 `json:"compressed_size"`
	UncompressedSize *uint64 `json:"uncompressed_size"`
	Checksum         *string `json:"checksum"`
}

// DecodeManifest parses manifest JSON and checks the schema: required
// fields present with the right types, registry targets without
// duplicates, well-formed checksums. Offset contiguity is checked
// separately by ValidateManifest once the container geometry is known.
func DecodeManifest(data []byte) (*Manifest, error) {
	var wire manifestWire

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&wire); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: field %s holds %s", ErrWrongType, typeErr.Field, typeErr.Value)
		}

		return nil, fmt.Errorf("%w: %w", ErrMalformedManifest, err)
	}

	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after document", ErrMalformedManifest)
	}

	if wire.Name == nil {
		return nil, fmt.Errorf("%w: name", ErrMissingField)
	}
	if wire.Version == nil {
		return nil, fmt.Errorf("%w: version", ErrMissingField)
	}
	if wire.Entries == nil {
		return nil, fmt.Errorf("%w: entries", ErrMissingField)
	}

	m := &Manifest{
		Name:    *wire.Name,
		Version: *wire.Version,
		Entries: make([]Entry, 0, len(wire.Entries)),
	}

	seen := make(map[string]struct{}, len(wire.Entries))
	for i := range wire.Entries {
		e, err := decodeEntry(&wire.Entries[i], i)
		if err != nil {
			return nil, err
		}

		if _, dup := seen[e.Target]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTarget, e.Target)
		}

		seen[e.Target] = struct{}{}
		m.Entries = append(m.Entries, e)
	}

	return m, nil
}

// decodeEntry validates one wire entry.
func decodeEntry(w *entryWire, idx int) (Entry, error) {
	var e Entry

	switch {
	case w.Target == nil:
		return e, fmt.Errorf("%w: entries[%d].target", ErrMissingField, idx)
	case w.Offset == nil:
		return e, fmt.Errorf("%w: entries[%d].offset", ErrMissingField, idx)
	case w.CompressedSize == nil:
		return e, fmt.Errorf("%w: entries[%d].compressed_size", ErrMissingField, idx)
	case w.UncompressedSize == nil:
		return e, fmt.Errorf("%w: entries[%d].uncompressed_size", ErrMissingField, idx)
	case w.Checksum == nil:
		return e, fmt.Errorf("%w: entries[%d].checksum", ErrMissingField, idx)
	}

	if !KnownTarget(*w.Target) {
		return e, fmt.Errorf("%w: %s", ErrUnknownTarget, *w.Target)
	}

	if _, err := decodeChecksum(*w.Checksum); err != nil {
		return e, fmt.Errorf("entries[%d]: %w", idx, err)
	}

	e = Entry{
		Target:           *w.Target,
		Offset:           *w.Offset,
		CompressedSize:   *w.CompressedSize,
		UncompressedSize: *w.UncompressedSize,
		Checksum:         *w.Checksum,
	}

	return e, nil
}

// ValidateManifest checks manifest invariants against the container
// geometry: the entry count matches the header, blobs pack back to back
// starting at firstOffset, and sizes agree with the compression kind.
// Pass firstOffset zero when the container origin is unknown.
func ValidateManifest(m *Manifest, kind CompressionKind, entryCount int, firstOffset uint64) error {
	if m == nil {
		return fmt.Errorf("%w: nil manifest", ErrUsage)
	}

	if len(m.Entries) == 0 {
		return fmt.Errorf("%w: manifest has no entries", ErrEntryCountOutOfRange)
	}

	if entryCount > 0 && len(m.Entries) != entryCount {
		return fmt.Errorf("%w: header says %d entries, manifest has %d", ErrSizeMismatch, entryCount, len(m.Entries))
	}

	next := firstOffset
	for i := range m.Entries {
		e := &m.Entries[i]

		if (i > 0 || firstOffset != 0) && e.Offset != next {
			return fmt.Errorf("%w: entry %s at %d, want %d", ErrNonContiguousOffsets, e.Target, e.Offset, next)
		}

		if kind == CompressionNone && e.CompressedSize != e.UncompressedSize {
			return fmt.Errorf(
				"%w: entry %s stores %d bytes but declares %d uncompressed under kind none",
				ErrSizeMismatch, e.Target, e.CompressedSize, e.UncompressedSize,
			)
		}

		next = e.Offset + e.CompressedSize
	}

	return nil
}
