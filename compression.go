// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

package pbin

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// zstdLevel returns the zstandard level a profile selects.
func (p CompressionProfile) zstdLevel() int {
	switch p {
	case ProfileFast:
		return 3
	case ProfileBalanced:
		return 11
	case ProfileMaximum:
		return 19
	}

	return 0
}

var (
	// zstdEncoders caches one deterministic encoder per profile.
	// Encoders are stateless across EncodeAll calls.
	zstdEncoders sync.Map

	// zstdDecoderPool reuses decoders between Decompress calls.
	zstdDecoderPool = sync.Pool{
		New: func() any {
			dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
			if err != nil {
				return nil
			}
			return dec
		},
	}
)

// zstdEncoder returns the shared encoder for profile.
// Single-goroutine encoding keeps output byte-identical across runs.
func zstdEncoder(p CompressionProfile) (*zstd.Encoder, error) {
	if cached, ok := zstdEncoders.Load(p); ok {
		return cached.(*zstd.Encoder), nil //nolint:forcetypeassert // map contains only *zstd.Encoder
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(p.zstdLevel())),
		zstd.WithEncoderConcurrency(1),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: new zstd encoder: %w", ErrCompressor, err)
	}

	cached, _ := zstdEncoders.LoadOrStore(p, enc)

	return cached.(*zstd.Encoder), nil //nolint:forcetypeassert // map contains only *zstd.Encoder
}

// Compress encodes input under the selected profile and returns the
// on-disk tag with the stored blob bytes. ProfileNone returns the input
// unchanged.
func Compress(profile CompressionProfile, input []byte) (CompressionKind, []byte, error) {
	if profile == ProfileNone {
		return CompressionNone, input, nil
	}

	enc, err := zstdEncoder(profile)
	if err != nil {
		return CompressionNone, nil, err
	}

	return CompressionZstd, enc.EncodeAll(input, make([]byte, 0, len(input)/2)), nil
}

// Decompress decodes a stored blob under kind and checks the produced
// length against expectedSize.
func Decompress(kind CompressionKind, input []byte, expectedSize uint64) ([]byte, error) {
	if err := kind.Valid(); err != nil {
		return nil, err
	}

	var (
		out []byte
		err error
	)

	switch kind {
	case CompressionNone:
		out = input
	case CompressionZstd:
		out, err = decompressZstd(input, expectedSize)
	case CompressionLz4:
		out, err = decompressLz4(input, expectedSize)
	}

	if err != nil {
		return nil, err
	}

	if uint64(len(out)) != expectedSize {
		return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrSizeMismatch, len(out), expectedSize)
	}

	return out, nil
}

// decompressZstd decodes one zstandard frame sequence.
func decompressZstd(input []byte, expectedSize uint64) ([]byte, error) {
	pooled := zstdDecoderPool.Get()
	if pooled == nil {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("%w: new zstd decoder: %w", ErrDecompressor, err)
		}
		pooled = dec
	}

	dec := pooled.(*zstd.Decoder) //nolint:forcetypeassert // pool contains only *zstd.Decoder
	defer zstdDecoderPool.Put(dec)

	out, err := dec.DecodeAll(input, make([]byte, 0, expectedSize))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %w", ErrDecompressor, err)
	}

	return out, nil
}

// decompressLz4 decodes one LZ4 frame. The tag is read-compatibility
// only; no profile selects it on the write path.
func decompressLz4(input []byte, expectedSize uint64) ([]byte, error) {
	out := make([]byte, 0, expectedSize)
	buf := bytes.NewBuffer(out)

	zr := lz4.NewReader(bytes.NewReader(input))
	if _, err := io.Copy(buf, zr); err != nil {
		return nil, fmt.Errorf("%w: lz4: %w", ErrDecompressor, err)
	}

	return buf.Bytes(), nil
}

// decompressReader wraps a stored blob stream with the decoder for kind.
// The caller owns closing the returned stream.
func decompressReader(kind CompressionKind, r io.Reader) (io.ReadCloser, error) {
	switch kind {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("%w: new zstd decoder: %w", ErrDecompressor, err)
		}

		return dec.IOReadCloser(), nil
	case CompressionLz4:
		return io.NopCloser(lz4.NewReader(r)), nil
	}

	return nil, kind.Valid()
}
