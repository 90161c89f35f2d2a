// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

package pbin

import "errors"

// Sentinel errors for PBIN operations. Use errors.Is in callers.
var (
	// ErrUsage means the caller supplied invalid options or arguments.
	ErrUsage = errors.New("invalid usage")
	// ErrBadMagic means the header does not start with "PBIN".
	ErrBadMagic = errors.New("bad header magic")
	// ErrUnsupportedVersion means the header carries an unknown format version.
	ErrUnsupportedVersion = errors.New("unsupported format version")
	// ErrNonZeroReserved means reserved header bytes or flags are not zero.
	ErrNonZeroReserved = errors.New("reserved header bytes are not zero")
	// ErrInvalidCompressionTag means the header compression tag is unknown.
	ErrInvalidCompressionTag = errors.New("invalid compression tag")
	// ErrEntryCountOutOfRange means the header entry count is outside 1..255.
	ErrEntryCountOutOfRange = errors.New("entry count out of range")
	// ErrMalformedManifest means the manifest is not valid JSON.
	ErrMalformedManifest = errors.New("malformed manifest JSON")
	// ErrMissingField means a required manifest field is absent.
	ErrMissingField = errors.New("missing manifest field")
	// ErrWrongType means a manifest field has the wrong JSON type.
	ErrWrongType = errors.New("wrong manifest field type")
	// ErrUnknownTarget means a TargetId is not in the registry.
	ErrUnknownTarget = errors.New("unknown target")
	// ErrDuplicateTarget means the same TargetId appears twice.
	ErrDuplicateTarget = errors.New("duplicate target")
	// ErrBadChecksumFormat means a checksum is not 64 lowercase hex characters.
	ErrBadChecksumFormat = errors.New("bad checksum format")
	// ErrNonContiguousOffsets means payload blobs do not pack back to back.
	ErrNonContiguousOffsets = errors.New("non-contiguous payload offsets")
	// ErrSizeMismatch means stored and computed sizes disagree.
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrCompressor means payload compression failed.
	ErrCompressor = errors.New("compressor failure")
	// ErrDecompressor means payload decompression failed.
	ErrDecompressor = errors.New("decompressor failure")
	// ErrMarkerNotFound means the payload marker is absent from the file.
	ErrMarkerNotFound = errors.New("payload marker not found")
	// ErrTruncatedInput means the file ends before a declared region.
	ErrTruncatedInput = errors.New("truncated input")
	// ErrIntegrityFailure means payload bytes do not match the recorded checksum.
	ErrIntegrityFailure = errors.New("payload integrity failure")
	// ErrInputRead means a pack input could not be read.
	ErrInputRead = errors.New("input read failed")
	// ErrWriteFailed means the output file could not be written.
	ErrWriteFailed = errors.New("write failed")
	// ErrPermissionFailed means the output file could not be marked executable.
	ErrPermissionFailed = errors.New("permission change failed")
	// ErrNoInputs means no pack inputs were provided.
	ErrNoInputs = errors.New("no inputs provided for pack")
	// ErrTooManyInputs means the input list exceeds the header entry count range.
	ErrTooManyInputs = errors.New("too many inputs for one PBIN")
	// ErrEntryNotFound means no manifest entry matches the requested target.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrStubTooLarge means the generated stub exceeds the 4 KiB limit.
	ErrStubTooLarge = errors.New("stub exceeds size limit")
	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrClosed means the reader or resource is already closed.
	ErrClosed = errors.New("reader or resource already closed")
	// ErrOutputExists means the output file exists and force is not set.
	ErrOutputExists = errors.New("output file already exists")
)
