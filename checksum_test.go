// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

package pbin

import (
	"errors"
	"strings"
	"testing"
)

func TestChecksum_Shape(t *testing.T) {
	t.Parallel()

	sum := Checksum([]byte("hello"))
	if len(sum) != checksumHexLen {
		t.Fatalf("checksum length=%d, want %d", len(sum), checksumHexLen)
	}

	for i := 0; i < len(sum); i++ {
		c := sum[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("checksum byte %d is %q, want lowercase hex", i, c)
		}
	}

	if Checksum([]byte("hello")) != sum {
		t.Fatal("checksum is not deterministic")
	}

	if Checksum([]byte("hellp")) == sum {
		t.Fatal("different inputs produced the same checksum")
	}
}

func TestVerifyChecksum(t *testing.T) {
	t.Parallel()

	data := []byte("payload bytes")
	sum := Checksum(data)

	if err := verifyChecksum(data, sum); err != nil {
		t.Fatalf("matching checksum rejected: %v", err)
	}

	if err := verifyChecksum([]byte("other bytes"), sum); !errors.Is(err, ErrIntegrityFailure) {
		t.Fatalf("mismatch err=%v, want ErrIntegrityFailure", err)
	}
}

func TestDecodeChecksum_Format(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		ok   bool
	}{
		{"valid", strings.Repeat("0f", 32), true},
		{"short", strings.Repeat("0f", 31), false},
		{"long", strings.Repeat("0f", 33), false},
		{"uppercase", strings.Repeat("0F", 32), false},
		{"non-hex", strings.Repeat("0g", 32), false},
		{"empty", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := decodeChecksum(tc.in)
			if tc.ok && err != nil {
				t.Fatalf("decodeChecksum(%q): %v", tc.in, err)
			}
			if !tc.ok && !errors.Is(err, ErrBadChecksumFormat) {
				t.Fatalf("decodeChecksum(%q) err=%v, want ErrBadChecksumFormat", tc.in, err)
			}
		})
	}
}
