// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

package pbin

import (
	"encoding/binary"
	"fmt"
)

// headerMagic is the fixed 4-byte header prefix.
var headerMagic = [4]byte{'P', 'B', 'I', 'N'}

// EncodeHeader serializes h into the fixed 64-byte layout.
// Bytes 16..64 are written as zeros regardless of h.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], headerMagic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	buf[6] = uint8(h.Compression)
	buf[7] = h.EntryCount
	binary.LittleEndian.PutUint32(buf[8:12], h.ManifestSize)
	binary.LittleEndian.PutUint32(buf[12:16], h.Flags)

	return buf
}

// DecodeHeader parses and validates a 64-byte header record.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header

	if len(buf) < headerSize {
		return h, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncatedInput, headerSize, len(buf))
	}

	if [4]byte(buf[0:4]) != headerMagic {
		return h, fmt.Errorf("%w: % x", ErrBadMagic, buf[0:4])
	}

	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	if h.Version != formatVersion {
		return h, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}

	h.Compression = CompressionKind(buf[6])
	if err := h.Compression.Valid(); err != nil {
		return h, err
	}

	h.EntryCount = buf[7]
	if h.EntryCount == 0 {
		return h, fmt.Errorf("%w: 0", ErrEntryCountOutOfRange)
	}

	h.ManifestSize = binary.LittleEndian.Uint32(buf[8:12])
	h.Flags = binary.LittleEndian.Uint32(buf[12:16])
	if h.Flags != 0 {
		return h, fmt.Errorf("%w: flags 0x%08x", ErrNonZeroReserved, h.Flags)
	}

	for i := 16; i < headerSize; i++ {
		if buf[i] != 0 {
			return h, fmt.Errorf("%w: byte %d is 0x%02x", ErrNonZeroReserved, i, buf[i])
		}
	}

	return h, nil
}
