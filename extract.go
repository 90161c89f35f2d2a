// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

package pbin

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// ExtractEntry decompresses one payload blob into w after verifying its
// BLAKE3 digest. Nothing is written on an integrity failure: the blob is
// decoded and checked in memory first.
func (r *Reader) ExtractEntry(e Entry, w io.Writer) error {
	if w == nil {
		return ErrNilWriter
	}

	sr, err := r.Slice(e)
	if err != nil {
		return err
	}

	blob := make([]byte, e.CompressedSize)
	if _, err := io.ReadFull(sr, blob); err != nil {
		return fmt.Errorf("%w: read blob %s: %w", ErrTruncatedInput, e.Target, err)
	}

	data, err := Decompress(r.header.Compression, blob, e.UncompressedSize)
	if err != nil {
		return fmt.Errorf("entry %s: %w", e.Target, err)
	}

	if err := verifyChecksum(data, e.Checksum); err != nil {
		return fmt.Errorf("entry %s: %w", e.Target, err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	return nil
}

// ExtractFile writes the decompressed, checksum-verified binary for
// target to dstPath with executable permissions.
func (r *Reader) ExtractFile(target, dstPath string) error {
	e, ok := r.Entry(target)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, target)
	}

	f, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrWriteFailed, dstPath, err)
	}

	if err := r.ExtractEntry(e, f); err != nil {
		_ = f.Close()
		_ = os.Remove(dstPath)
		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrWriteFailed, dstPath, err)
	}

	return nil
}

// EntryReader streams the decompressed payload for e. The digest is
// accumulated while reading; the final Read reports ErrSizeMismatch or
// ErrIntegrityFailure instead of io.EOF when the payload length or digest
// does not match the manifest. Decoder errors are reported as
// ErrDecompressor.
// The caller owns closing the returned stream.
func (r *Reader) EntryReader(e Entry) (io.ReadCloser, error) {
	sr, err := r.Slice(e)
	if err != nil {
		return nil, err
	}

	dec, err := decompressReader(r.header.Compression, sr)
	if err != nil {
		return nil, err
	}

	return &verifyingReader{
		entry:  e,
		src:    dec,
		hasher: blake3.New(),
	}, nil
}

// verifyingReader wraps a decompressed payload stream with size and
// digest verification at EOF.
type verifyingReader struct {
	entry    Entry
	src      io.ReadCloser
	hasher   *blake3.Hasher
	consumed uint64
	done     bool
}

// Read feeds digest state as bytes flow and swaps the final io.EOF for
// an integrity error when the stream does not match the manifest entry.
func (v *verifyingReader) Read(p []byte) (int, error) {
	if v.done {
		return 0, io.EOF
	}

	n, err := v.src.Read(p)
	if n > 0 {
		v.consumed += uint64(n)
		_, _ = v.hasher.Write(p[:n])
	}

	if err == io.EOF {
		v.done = true
		if verr := v.finish(); verr != nil {
			return n, verr
		}
	} else if err != nil {
		return n, fmt.Errorf("entry %s: %w: %w", v.entry.Target, ErrDecompressor, err)
	}

	return n, err
}

// finish checks stream length and digest against the manifest entry.
func (v *verifyingReader) finish() error {
	if v.consumed != v.entry.UncompressedSize {
		return fmt.Errorf("entry %s: %w: streamed %d bytes, want %d",
			v.entry.Target, ErrSizeMismatch, v.consumed, v.entry.UncompressedSize)
	}

	var sum [checksumLen]byte
	v.hasher.Sum(sum[:0])
	if err := verifyDigest(sum, v.entry.Checksum); err != nil {
		return fmt.Errorf("entry %s: %w", v.entry.Target, err)
	}

	return nil
}

// Close closes the underlying decompressor stream.
func (v *verifyingReader) Close() error {
	return v.src.Close()
}

// Verify streams every payload through its decompressor and checks each
// BLAKE3 digest. The first failing entry aborts the pass with an error
// naming its TargetId. Cancelable between entries.
func (r *Reader) Verify(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for _, e := range r.Entries() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := r.verifyEntry(e); err != nil {
			return err
		}
	}

	return nil
}

// verifyEntry streams one entry to completion, discarding payload bytes.
func (r *Reader) verifyEntry(e Entry) error {
	rc, err := r.EntryReader(e)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	if _, err := io.Copy(io.Discard, rc); err != nil {
		return err
	}

	return nil
}
