// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

package pbin

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Checksum returns the BLAKE3-256 digest of data as 64 lowercase hex
// characters, the manifest encoding.
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// decodeChecksum parses a manifest checksum string into raw digest bytes.
func decodeChecksum(s string) ([checksumLen]byte, error) {
	var sum [checksumLen]byte

	if len(s) != checksumHexLen {
		return sum, fmt.Errorf("%w: %d characters, want %d", ErrBadChecksumFormat, len(s), checksumHexLen)
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return sum, fmt.Errorf("%w: byte %d is %q", ErrBadChecksumFormat, i, c)
		}
	}

	if _, err := hex.Decode(sum[:], []byte(s)); err != nil {
		return sum, fmt.Errorf("%w: %w", ErrBadChecksumFormat, err)
	}

	return sum, nil
}

// verifyChecksum compares the digest of data against the recorded hex
// checksum in constant time.
func verifyChecksum(data []byte, recorded string) error {
	want, err := decodeChecksum(recorded)
	if err != nil {
		return err
	}

	got := blake3.Sum256(data)
	if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
		return ErrIntegrityFailure
	}

	return nil
}

// verifyDigest compares an already computed digest against the recorded
// hex checksum in constant time.
func verifyDigest(got [checksumLen]byte, recorded string) error {
	want, err := decodeChecksum(recorded)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
		return ErrIntegrityFailure
	}

	return nil
}
