// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

package pbin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// packWriteBufferSize is the output buffer used by one Pack call.
	packWriteBufferSize = 1 << 20
	// offsetFixPointLimit bounds the serialize-recompute loop. Decimal
	// offset widths only grow, so two passes settle in practice.
	offsetFixPointLimit = 8
)

// packedEntry stores one compressed, digested payload before assembly.
type packedEntry struct {
	target           string
	blob             []byte
	checksum         string
	uncompressedSize uint64
}

// Pack assembles a PBIN from inputs and writes it to out in wire order:
// stub, marker, header, manifest, payload blobs. Entries keep the caller
// order, which is also the blob order in the file. Per-entry read,
// digest, and compression run in parallel; assembly is serial. Identical
// inputs produce byte-identical output.
func Pack(ctx context.Context, out io.Writer, inputs []Input, opts PackOptions) (*PackResult, error) {
	startedAt := time.Now()

	if out == nil {
		return nil, ErrNilWriter
	}

	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()
	if opts.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrUsage)
	}

	targets, err := validatePackInputs(inputs)
	if err != nil {
		return nil, err
	}

	packed, err := compressInputs(ctx, inputs, opts)
	if err != nil {
		return nil, err
	}

	stub, err := GenerateStub(targets)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{
		Name:    opts.Name,
		Version: opts.Version,
		Entries: make([]Entry, len(packed)),
	}
	for i := range packed {
		manifest.Entries[i] = Entry{
			Target:           packed[i].target,
			CompressedSize:   uint64(len(packed[i].blob)),
			UncompressedSize: packed[i].uncompressedSize,
			Checksum:         packed[i].checksum,
		}
	}

	manifestBytes, err := resolveOffsets(manifest, len(stub))
	if err != nil {
		return nil, err
	}

	header := Header{
		Version:      formatVersion,
		Compression:  opts.Profile.Kind(),
		EntryCount:   uint8(len(packed)),
		ManifestSize: uint32(len(manifestBytes)),
	}

	w := bufio.NewWriterSize(out, packWriteBufferSize)
	total := int64(0)
	for _, part := range [][]byte{stub, []byte(PayloadMarker), EncodeHeader(header), manifestBytes} {
		if _, err := w.Write(part); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
		}

		total += int64(len(part))
	}

	for i := range packed {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if _, err := w.Write(packed[i].blob); err != nil {
			return nil, fmt.Errorf("%w: blob %s: %w", ErrWriteFailed, packed[i].target, err)
		}

		total += int64(len(packed[i].blob))
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	res := &PackResult{
		Manifest:     *manifest,
		Kind:         header.Compression,
		StubSize:     len(stub),
		ManifestSize: len(manifestBytes),
		TotalSize:    total,
		Duration:     time.Since(startedAt),
	}
	for i := range packed {
		res.OriginalSize += int64(packed[i].uncompressedSize)
		res.CompressedSize += int64(len(packed[i].blob))
	}

	return res, nil
}

// PackFile assembles a PBIN at outPath. The file is built in a temp file
// in the destination directory and renamed on success, so a failed pack
// never leaves partial output. On POSIX the result is marked executable
// for owner, group, and other.
func PackFile(ctx context.Context, outPath string, inputs []Input, opts PackOptions) (*PackResult, error) {
	if !opts.Force {
		if _, err := os.Lstat(outPath); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrOutputExists, outPath)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".pbin-pack-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp output: %w", ErrWriteFailed, err)
	}

	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	res, err := Pack(ctx, tmp, inputs, opts)
	if err != nil {
		return nil, err
	}

	if err := tmp.Sync(); err != nil {
		return nil, fmt.Errorf("%w: sync: %w", ErrWriteFailed, err)
	}

	// Chmod always runs; the error is fatal only where the exec bits
	// matter. Windows has no POSIX permission model to enforce.
	if err := tmp.Chmod(0o755); err != nil && runtime.GOOS != "windows" {
		return nil, fmt.Errorf("%w: %w", ErrPermissionFailed, err)
	}

	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: close: %w", ErrWriteFailed, err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return nil, fmt.Errorf("%w: rename: %w", ErrWriteFailed, err)
	}

	committed = true

	return res, nil
}

// validatePackInputs checks the input list and returns its TargetIds in
// caller order.
func validatePackInputs(inputs []Input) ([]string, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}

	if len(inputs) > maxEntryCount {
		return nil, fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(inputs), maxEntryCount)
	}

	targets := make([]string, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for i := range inputs {
		id := inputs[i].Target
		if !KnownTarget(id) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, id)
		}

		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTarget, id)
		}

		seen[id] = struct{}{}
		targets[i] = id
	}

	return targets, nil
}

// compressInputs reads, digests, and compresses every input. Entries are
// independent, so the work fans out across workers; results land at the
// input's own index to keep caller order.
func compressInputs(ctx context.Context, inputs []Input, opts PackOptions) ([]packedEntry, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	packed := make([]packedEntry, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range inputs {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			data, err := readInput(inputs[i])
			if err != nil {
				return err
			}

			kind, blob, err := Compress(opts.Profile, data)
			if err != nil {
				return fmt.Errorf("compress %s: %w", inputs[i].Target, err)
			}

			if kind != opts.Profile.Kind() {
				return fmt.Errorf("%w: profile %s produced kind %s", ErrCompressor, opts.Profile, kind)
			}

			packed[i] = packedEntry{
				target:           inputs[i].Target,
				blob:             blob,
				checksum:         Checksum(data),
				uncompressedSize: uint64(len(data)),
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return packed, nil
}

// readInput reads one source binary fully.
func readInput(in Input) ([]byte, error) {
	rc, err := in.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInputRead, in.Target, err)
	}

	return data, nil
}

// resolveOffsets assigns absolute blob offsets and serializes the
// manifest to a fixed point: offsets depend on the manifest length, so
// the manifest is re-encoded until its length stabilizes. Decimal
// widths only grow, so the loop settles within two passes.
func resolveOffsets(manifest *Manifest, stubLen int) ([]byte, error) {
	manifestBytes, err := EncodeManifest(manifest)
	if err != nil {
		return nil, err
	}

	for i := 0; i < offsetFixPointLimit; i++ {
		first := uint64(stubLen + markerLen + headerSize + len(manifestBytes))
		next := first
		for j := range manifest.Entries {
			manifest.Entries[j].Offset = next
			next += manifest.Entries[j].CompressedSize
		}

		encoded, err := EncodeManifest(manifest)
		if err != nil {
			return nil, err
		}

		if len(encoded) == len(manifestBytes) {
			return encoded, nil
		}

		manifestBytes = encoded
	}

	return nil, fmt.Errorf("%w: manifest offsets did not converge", ErrWriteFailed)
}
