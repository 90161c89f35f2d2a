// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

package pbin

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
)

// markerScanChunkSize is a chunk size used by the backward marker scan.
const markerScanChunkSize = 64 * 1024

// Reader provides read-only access to a parsed PBIN file.
type Reader struct {
	// ra is the underlying random-access reader used for payload reads.
	ra io.ReaderAt
	// file is set when Reader owns an *os.File opened via Open.
	file *os.File
	// header stores the decoded fixed header.
	header Header
	// manifest stores the decoded and validated manifest.
	manifest *Manifest
	// size is total source size in bytes.
	size int64
	// stubLen is the byte length of the polyglot stub before the marker.
	stubLen int64
	// mu guards closed state and close operation.
	mu sync.Mutex
	// closed reports whether Close was already called.
	closed bool
}

// Open opens a PBIN file by path and parses its container structures.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open PBIN: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	r, err := NewReaderFromReaderAt(f, fi.Size())
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	r.file = f

	return r, nil
}

// NewReaderFromReaderAt parses a PBIN from an existing ReaderAt and
// known size.
func NewReaderFromReaderAt(ra io.ReaderAt, size int64) (*Reader, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	r := &Reader{ra: ra, size: size}
	if err := r.parse(); err != nil {
		return nil, err
	}

	return r, nil
}

// Header returns the decoded fixed header.
func (r *Reader) Header() Header {
	if r == nil {
		return Header{}
	}

	return r.header
}

// Manifest returns a copy of the decoded manifest.
func (r *Reader) Manifest() *Manifest {
	if r == nil || r.manifest == nil {
		return nil
	}

	out := &Manifest{
		Name:    r.manifest.Name,
		Version: r.manifest.Version,
		Entries: make([]Entry, len(r.manifest.Entries)),
	}
	copy(out.Entries, r.manifest.Entries)

	return out
}

// Inspect returns manifest metadata without touching payload bytes.
func (r *Reader) Inspect() *Manifest {
	return r.Manifest()
}

// Entries returns a copy of manifest entries in file order.
func (r *Reader) Entries() []Entry {
	if r == nil || r.manifest == nil {
		return nil
	}

	entries := make([]Entry, len(r.manifest.Entries))
	copy(entries, r.manifest.Entries)

	return entries
}

// Entry returns the entry for target, if present.
func (r *Reader) Entry(target string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}

	return r.manifest.Entry(target)
}

// StubLen returns the stub length in bytes, the marker's file offset.
func (r *Reader) StubLen() int64 {
	if r == nil {
		return 0
	}

	return r.stubLen
}

// Size returns the total source size in bytes.
func (r *Reader) Size() int64 {
	if r == nil {
		return 0
	}

	return r.size
}

// Close closes the underlying file if the reader owns one.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	if r.file != nil {
		return r.file.Close()
	}

	return nil
}

// ensureOpen reports whether the reader is usable.
func (r *Reader) ensureOpen() error {
	if r == nil || r.ra == nil {
		return ErrNilReader
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	return nil
}

// Slice returns a reader over one stored payload blob,
// [offset, offset+compressed_size).
func (r *Reader) Slice(e Entry) (*io.SectionReader, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}

	end := e.Offset + e.CompressedSize
	if e.Offset > uint64(r.size) || end > uint64(r.size) {
		return nil, fmt.Errorf("%w: entry %s ends at %d, file has %d bytes", ErrTruncatedInput, e.Target, end, r.size)
	}

	return io.NewSectionReader(r.ra, int64(e.Offset), int64(e.CompressedSize)), nil
}

// parse locates the marker and reads the container structures.
func (r *Reader) parse() error {
	markerOff, err := findLastMarker(r.ra, r.size)
	if err != nil {
		return err
	}

	r.stubLen = markerOff
	headerOff := markerOff + markerLen

	if headerOff+headerSize > r.size {
		return fmt.Errorf("%w: file ends inside header", ErrTruncatedInput)
	}

	headerBuf := make([]byte, headerSize)
	if _, err := r.ra.ReadAt(headerBuf, headerOff); err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	header, err := DecodeHeader(headerBuf)
	if err != nil {
		return err
	}

	manifestOff := headerOff + headerSize
	manifestEnd := manifestOff + int64(header.ManifestSize)
	if manifestEnd > r.size {
		return fmt.Errorf("%w: file ends inside manifest", ErrTruncatedInput)
	}

	manifestBuf := make([]byte, header.ManifestSize)
	if _, err := r.ra.ReadAt(manifestBuf, manifestOff); err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	manifest, err := DecodeManifest(manifestBuf)
	if err != nil {
		return err
	}

	if err := ValidateManifest(manifest, header.Compression, int(header.EntryCount), uint64(manifestEnd)); err != nil {
		return err
	}

	last := manifest.Entries[len(manifest.Entries)-1]
	if last.Offset+last.CompressedSize > uint64(r.size) {
		return fmt.Errorf("%w: payloads end at %d, file has %d bytes",
			ErrTruncatedInput, last.Offset+last.CompressedSize, r.size)
	}

	r.header = header
	r.manifest = manifest

	return nil
}

// findLastMarker returns the offset of the last marker occurrence.
// Scanning is backward in chunks with marker-sized overlap, so the
// first hit is the last occurrence. Last, not first: the stub never
// contains the literal, but a hostile or hand-edited prologue could.
func findLastMarker(ra io.ReaderAt, size int64) (int64, error) {
	marker := []byte(PayloadMarker)
	if size < markerLen {
		return 0, ErrMarkerNotFound
	}

	buf := make([]byte, markerScanChunkSize+markerLen-1)
	end := size
	for end > 0 {
		start := end - markerScanChunkSize
		if start < 0 {
			start = 0
		}

		readEnd := end + markerLen - 1
		if readEnd > size {
			readEnd = size
		}

		b := buf[:readEnd-start]
		if _, err := ra.ReadAt(b, start); err != nil {
			return 0, fmt.Errorf("marker scan: %w", err)
		}

		if idx := bytes.LastIndex(b, marker); idx >= 0 {
			return start + int64(idx), nil
		}

		end = start
	}

	return 0, ErrMarkerNotFound
}
