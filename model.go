// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

package pbin

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Internal binary layout and format limits.
const (
	headerSize     = 64      // fixed PBIN header size in bytes
	markerLen      = 16      // payload marker length in bytes
	checksumLen    = 32      // BLAKE3-256 digest size in bytes
	checksumHexLen = 64      // hex-encoded digest length in manifest
	formatVersion  = 1       // current PBIN format version
	maxEntryCount  = 255     // max entries addressable by the header
	maxStubSize    = 4 << 10 // stub text must stay under 4 KiB
)

// PayloadMarker separates the polyglot stub from the structured container.
// The header begins immediately after it, with no separating newline.
const PayloadMarker = "__PBIN_PAYLOAD__"

// DefaultVersion is the manifest version used when the caller leaves it empty.
const DefaultVersion = "0.0.0"

// CompressionKind is the on-disk compression algorithm tag.
type CompressionKind uint8

// Compression tags stored in the header. One tag applies to every
// payload in a given PBIN.
const (
	// CompressionNone stores payloads as literal bytes.
	CompressionNone CompressionKind = 0
	// CompressionZstd stores zstandard frames.
	CompressionZstd CompressionKind = 1
	// CompressionLz4 stores LZ4 frames. Accepted on read, never emitted.
	CompressionLz4 CompressionKind = 2
)

// Valid returns nil iff the tag is known.
func (k CompressionKind) Valid() error {
	switch k {
	case CompressionNone, CompressionZstd, CompressionLz4:
		return nil
	}

	return fmt.Errorf("%w: tag 0x%02x", ErrInvalidCompressionTag, uint8(k))
}

// String returns the lower-case tag name.
func (k CompressionKind) String() string {
	switch k {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLz4:
		return "lz4"
	}

	return fmt.Sprintf("unknown(0x%02x)", uint8(k))
}

// CompressionProfile is the packer-facing preset selecting algorithm and
// level. Profiles are never serialized; the on-disk record collapses to
// a CompressionKind.
type CompressionProfile uint8

// Packer compression presets.
const (
	// ProfileNone disables compression entirely.
	ProfileNone CompressionProfile = iota
	// ProfileFast selects zstd level 3.
	ProfileFast
	// ProfileBalanced selects zstd level 11.
	ProfileBalanced
	// ProfileMaximum selects zstd level 19.
	ProfileMaximum
)

// Kind returns the on-disk tag a profile collapses to.
func (p CompressionProfile) Kind() CompressionKind {
	if p == ProfileNone {
		return CompressionNone
	}

	return CompressionZstd
}

// String returns the CLI-facing profile name.
func (p CompressionProfile) String() string {
	switch p {
	case ProfileNone:
		return "none"
	case ProfileFast:
		return "fast"
	case ProfileBalanced:
		return "balanced"
	case ProfileMaximum:
		return "maximum"
	}

	return fmt.Sprintf("unknown(%d)", uint8(p))
}

// ParseProfile resolves a CLI profile name.
func ParseProfile(s string) (CompressionProfile, error) {
	switch s {
	case "none":
		return ProfileNone, nil
	case "fast":
		return ProfileFast, nil
	case "balanced":
		return ProfileBalanced, nil
	case "maximum", "max":
		return ProfileMaximum, nil
	}

	return ProfileNone, fmt.Errorf("%w: unknown compression profile %q", ErrUsage, s)
}

// Header is the fixed 64-byte record following the payload marker.
// Numeric fields are little-endian; bytes 16..64 are reserved zeros.
type Header struct {
	// Version is the format version; readers reject values other than 1.
	Version uint16
	// Compression is the file-wide compression tag.
	Compression CompressionKind
	// EntryCount is the number of manifest entries, 1..255.
	EntryCount uint8
	// ManifestSize is the byte length of the manifest that follows.
	ManifestSize uint32
	// Flags is reserved and must be zero.
	Flags uint32
}

// Entry describes one embedded binary for one TargetId.
type Entry struct {
	// Target is a canonical TargetId from the registry.
	Target string `json:"target"`
	// Offset is the absolute byte offset of the payload blob in the file.
	Offset uint64 `json:"offset"`
	// CompressedSize is the stored blob size in bytes.
	CompressedSize uint64 `json:"compressed_size"`
	// UncompressedSize is the original binary size in bytes.
	UncompressedSize uint64 `json:"uncompressed_size"`
	// Checksum is the lowercase hex BLAKE3-256 of the uncompressed bytes.
	Checksum string `json:"checksum"`
}

// Manifest is the JSON document following the header.
type Manifest struct {
	// Name is the application name.
	Name string `json:"name"`
	// Version is the application version.
	Version string `json:"version"`
	// Entries are listed in the same order blobs appear in the file.
	Entries []Entry `json:"entries"`
}

// Entry returns the entry for target, if present.
func (m *Manifest) Entry(target string) (Entry, bool) {
	if m == nil {
		return Entry{}, false
	}

	for i := range m.Entries {
		if m.Entries[i].Target == target {
			return m.Entries[i], true
		}
	}

	return Entry{}, false
}

// Targets returns manifest TargetIds in entry order.
func (m *Manifest) Targets() []string {
	if m == nil {
		return nil
	}

	out := make([]string, len(m.Entries))
	for i := range m.Entries {
		out[i] = m.Entries[i].Target
	}

	return out
}

// Input describes one source binary to be packed into a PBIN entry.
type Input struct {
	// Target is the canonical TargetId this binary serves.
	Target string `json:"target"`
	// Path is the source file path, used when Open is nil.
	Path string `json:"path"`
	// Open returns the raw source stream for this input. When nil the
	// packer opens Path.
	Open func() (io.ReadCloser, error) `json:"-"`
}

// open returns the source stream for this input.
func (in Input) open() (io.ReadCloser, error) {
	if in.Open != nil {
		rc, err := in.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInputRead, in.Target, err)
		}

		return rc, nil
	}

	f, err := os.Open(in.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInputRead, in.Target, err)
	}

	return f, nil
}

// PackOptions tunes one Pack call.
type PackOptions struct {
	// Name is the manifest application name. Required.
	Name string
	// Version is the manifest application version; DefaultVersion when empty.
	Version string
	// Profile selects the compression preset.
	Profile CompressionProfile
	// Workers bounds parallel per-entry compression; GOMAXPROCS when <= 0.
	Workers int
	// Force lets PackFile overwrite an existing output file.
	Force bool
}

// applyDefaults fills unset option values.
func (o *PackOptions) applyDefaults() {
	if o.Version == "" {
		o.Version = DefaultVersion
	}
}

// PackResult describes one completed Pack call.
type PackResult struct {
	// Manifest is the final manifest as written, with resolved offsets.
	Manifest Manifest `json:"manifest"`
	// Kind is the compression tag written to the header.
	Kind CompressionKind `json:"kind"`
	// StubSize is the generated stub length in bytes.
	StubSize int `json:"stub_size"`
	// ManifestSize is the serialized manifest length in bytes.
	ManifestSize int `json:"manifest_size"`
	// OriginalSize sums uncompressed payload sizes.
	OriginalSize int64 `json:"original_size"`
	// CompressedSize sums stored blob sizes.
	CompressedSize int64 `json:"compressed_size"`
	// TotalSize is the full output file size in bytes.
	TotalSize int64 `json:"total_size"`
	// Duration is wall time spent packing.
	Duration time.Duration `json:"duration"`
}

// Ratio returns stored payload bytes as a fraction of original bytes.
func (r *PackResult) Ratio() float64 {
	if r == nil || r.OriginalSize == 0 {
		return 0
	}

	return float64(r.CompressedSize) / float64(r.OriginalSize)
}
