// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

package pbin

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// openBytes parses a packed file from memory.
func openBytes(t *testing.T, file []byte) *Reader {
	t.Helper()

	r, err := NewReaderFromReaderAt(bytes.NewReader(file), int64(len(file)))
	if err != nil {
		t.Fatalf("NewReaderFromReaderAt: %v", err)
	}

	return r
}

func TestReader_RoundTrip(t *testing.T) {
	t.Parallel()

	linuxBin := bytes.Repeat([]byte{0x7f, 'E', 'L', 'F'}, 300)
	darwinBin := bytes.Repeat([]byte("feedface"), 150)

	file, res := packToBytes(t,
		[]Input{
			memInput("linux-x86_64", linuxBin),
			memInput("darwin-aarch64", darwinBin),
		},
		PackOptions{Name: "hello", Version: "2.1.0", Profile: ProfileBalanced},
	)

	r := openBytes(t, file)

	if r.Header().Compression != CompressionZstd {
		t.Fatalf("parsed compression=%v, want zstd", r.Header().Compression)
	}

	m := r.Manifest()
	if m.Name != "hello" || m.Version != "2.1.0" {
		t.Fatalf("manifest metadata %s/%s, want hello/2.1.0", m.Name, m.Version)
	}

	if len(m.Entries) != 2 {
		t.Fatalf("entries=%d, want 2", len(m.Entries))
	}

	for i := range m.Entries {
		if m.Entries[i] != res.Manifest.Entries[i] {
			t.Fatalf("parsed entry %d differs from packed entry", i)
		}
	}

	if r.StubLen() != int64(res.StubSize) {
		t.Fatalf("parsed stub length=%d, packed %d", r.StubLen(), res.StubSize)
	}

	var out bytes.Buffer
	e, ok := r.Entry("linux-x86_64")
	if !ok {
		t.Fatal("linux-x86_64 entry missing")
	}
	if err := r.ExtractEntry(e, &out); err != nil {
		t.Fatalf("ExtractEntry: %v", err)
	}
	if !bytes.Equal(out.Bytes(), linuxBin) {
		t.Fatal("extracted payload differs from the original input")
	}
}

func TestReader_ExtractionIsIdempotent(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{0xAA, 0x55}, 2048)
	file, _ := packToBytes(t,
		[]Input{memInput("linux-aarch64", payload)},
		PackOptions{Name: "x", Profile: ProfileMaximum},
	)

	r := openBytes(t, file)
	e, _ := r.Entry("linux-aarch64")

	for i := 0; i < 2; i++ {
		var out bytes.Buffer
		if err := r.ExtractEntry(e, &out); err != nil {
			t.Fatalf("ExtractEntry pass %d: %v", i, err)
		}
		if !bytes.Equal(out.Bytes(), payload) {
			t.Fatalf("pass %d produced different bytes", i)
		}
	}
}

func TestReader_Verify(t *testing.T) {
	t.Parallel()

	file, _ := packToBytes(t,
		[]Input{
			memInput("linux-x86_64", bytes.Repeat([]byte{0x41}, 4096)),
			memInput("darwin-aarch64", bytes.Repeat([]byte{0x42}, 4096)),
		},
		PackOptions{Name: "x", Profile: ProfileBalanced},
	)

	if err := openBytes(t, file).Verify(context.Background()); err != nil {
		t.Fatalf("Verify on intact file: %v", err)
	}
}

func TestReader_CorruptedPayloadDetected(t *testing.T) {
	t.Parallel()

	file, res := packToBytes(t,
		[]Input{
			memInput("linux-x86_64", bytes.Repeat([]byte{0x41}, 4096)),
			memInput("darwin-aarch64", bytes.Repeat([]byte{0x41}, 4096)),
		},
		PackOptions{Name: "x", Profile: ProfileBalanced},
	)

	// Flip one byte inside the first payload blob.
	corrupted := make([]byte, len(file))
	copy(corrupted, file)
	corrupted[res.Manifest.Entries[0].Offset+5] ^= 0xff

	r, err := NewReaderFromReaderAt(bytes.NewReader(corrupted), int64(len(corrupted)))
	if err != nil {
		t.Fatalf("parse corrupted file: %v", err)
	}

	err = r.Verify(context.Background())
	if err == nil {
		t.Fatal("Verify accepted a corrupted payload")
	}

	// Depending on where the flip lands, the frame fails to decode or
	// the digest comparison trips; both are integrity-class failures.
	if !errors.Is(err, ErrIntegrityFailure) && !errors.Is(err, ErrDecompressor) && !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("Verify err=%v, want an integrity-class failure", err)
	}

	if !strings.Contains(err.Error(), "linux-x86_64") {
		t.Fatalf("diagnostic does not name the failing target: %v", err)
	}
}

func TestReader_CorruptedChecksumByteDetected(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{7}, 512)
	file, res := packToBytes(t,
		[]Input{memInput("linux-x86_64", payload)},
		PackOptions{Name: "x", Profile: ProfileNone},
	)

	r := openBytes(t, file)
	e := res.Manifest.Entries[0]
	e.Checksum = Checksum([]byte("something else"))

	var out bytes.Buffer
	if err := r.ExtractEntry(e, &out); !errors.Is(err, ErrIntegrityFailure) {
		t.Fatalf("ExtractEntry err=%v, want ErrIntegrityFailure", err)
	}
	if out.Len() != 0 {
		t.Fatal("bytes were written despite the integrity failure")
	}
}

func TestReader_TruncatedFile(t *testing.T) {
	t.Parallel()

	file, _ := packToBytes(t,
		[]Input{
			memInput("linux-x86_64", bytes.Repeat([]byte{0x41}, 4096)),
			memInput("darwin-aarch64", bytes.Repeat([]byte{0x41}, 4096)),
		},
		PackOptions{Name: "x", Profile: ProfileBalanced},
	)

	// Remove the last 16 bytes: payloads no longer fit.
	_, err := NewReaderFromReaderAt(bytes.NewReader(file[:len(file)-16]), int64(len(file)-16))
	if !errors.Is(err, ErrTruncatedInput) {
		t.Fatalf("tail truncation err=%v, want ErrTruncatedInput", err)
	}

	// Cut before the marker: nothing to parse at all.
	markerOff := bytes.Index(file, []byte(PayloadMarker))
	_, err = NewReaderFromReaderAt(bytes.NewReader(file[:markerOff]), int64(markerOff))
	if !errors.Is(err, ErrMarkerNotFound) {
		t.Fatalf("marker truncation err=%v, want ErrMarkerNotFound", err)
	}

	// Cut inside the header.
	cut := markerOff + markerLen + 10
	_, err = NewReaderFromReaderAt(bytes.NewReader(file[:cut]), int64(cut))
	if !errors.Is(err, ErrTruncatedInput) {
		t.Fatalf("header truncation err=%v, want ErrTruncatedInput", err)
	}
}

func TestReader_HeaderCorruptionRejected(t *testing.T) {
	t.Parallel()

	file, _ := packToBytes(t,
		[]Input{memInput("linux-x86_64", make([]byte, 128))},
		PackOptions{Name: "x", Profile: ProfileNone},
	)

	markerOff := bytes.Index(file, []byte(PayloadMarker))
	headerOff := markerOff + markerLen

	corrupt := func(offset int, value byte) []byte {
		b := make([]byte, len(file))
		copy(b, file)
		b[offset] = value
		return b
	}

	cases := []struct {
		name string
		data []byte
		want error
	}{
		{"version", corrupt(headerOff+4, 9), ErrUnsupportedVersion},
		{"compression tag", corrupt(headerOff+6, 9), ErrInvalidCompressionTag},
		{"reserved", corrupt(headerOff+30, 1), ErrNonZeroReserved},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewReaderFromReaderAt(bytes.NewReader(tc.data), int64(len(tc.data)))
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v, want %v", err, tc.want)
			}
		})
	}
}

func TestReader_ManifestCorruptionRejected(t *testing.T) {
	t.Parallel()

	file, res := packToBytes(t,
		[]Input{memInput("linux-x86_64", make([]byte, 128))},
		PackOptions{Name: "x", Profile: ProfileNone},
	)

	manifestOff := int(res.Manifest.Entries[0].Offset) - res.ManifestSize

	b := make([]byte, len(file))
	copy(b, file)
	b[manifestOff] = '[' // was '{'

	_, err := NewReaderFromReaderAt(bytes.NewReader(b), int64(len(b)))
	if !errors.Is(err, ErrMalformedManifest) && !errors.Is(err, ErrWrongType) {
		t.Fatalf("err=%v, want a manifest decode failure", err)
	}
}

func TestReader_LastMarkerWins(t *testing.T) {
	t.Parallel()

	file, _ := packToBytes(t,
		[]Input{memInput("linux-x86_64", []byte("bin"))},
		PackOptions{Name: "x", Profile: ProfileNone},
	)

	// Plant a decoy marker inside the stub text. Absolute offsets are
	// unchanged, so parsing must keep working off the real, last marker.
	decoy := make([]byte, len(file))
	copy(decoy, file)
	copy(decoy[100:], PayloadMarker)

	r, err := NewReaderFromReaderAt(bytes.NewReader(decoy), int64(len(decoy)))
	if err != nil {
		t.Fatalf("parse with decoy marker: %v", err)
	}

	if len(r.Entries()) != 1 {
		t.Fatalf("entries=%d, want 1", len(r.Entries()))
	}

	if r.StubLen() <= 116 {
		t.Fatalf("stub length=%d, decoy was not ahead of the marker", r.StubLen())
	}
}

func TestReader_EntryReaderStreams(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("stream"), 1000)
	file, _ := packToBytes(t,
		[]Input{memInput("linux-x86_64", payload)},
		PackOptions{Name: "x", Profile: ProfileFast},
	)

	r := openBytes(t, file)
	e, _ := r.Entry("linux-x86_64")

	rc, err := r.EntryReader(e)
	if err != nil {
		t.Fatalf("EntryReader: %v", err)
	}
	defer func() { _ = rc.Close() }()

	out, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}

	if !bytes.Equal(out, payload) {
		t.Fatal("streamed payload differs from the original input")
	}
}

func TestReader_EntryReaderReportsCorruption(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{3}, 512)
	file, res := packToBytes(t,
		[]Input{memInput("linux-x86_64", payload)},
		PackOptions{Name: "x", Profile: ProfileNone},
	)

	b := make([]byte, len(file))
	copy(b, file)
	b[res.Manifest.Entries[0].Offset] ^= 0x01

	r, err := NewReaderFromReaderAt(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	e, _ := r.Entry("linux-x86_64")
	rc, err := r.EntryReader(e)
	if err != nil {
		t.Fatalf("EntryReader: %v", err)
	}
	defer func() { _ = rc.Close() }()

	if _, err := io.ReadAll(rc); !errors.Is(err, ErrIntegrityFailure) {
		t.Fatalf("stream err=%v, want ErrIntegrityFailure", err)
	}
}

func TestReader_SliceBounds(t *testing.T) {
	t.Parallel()

	file, _ := packToBytes(t,
		[]Input{memInput("linux-x86_64", []byte("bin"))},
		PackOptions{Name: "x", Profile: ProfileNone},
	)

	r := openBytes(t, file)
	if _, err := r.Slice(Entry{Target: "linux-x86_64", Offset: uint64(len(file)), CompressedSize: 10}); !errors.Is(err, ErrTruncatedInput) {
		t.Fatalf("out-of-range slice err=%v, want ErrTruncatedInput", err)
	}
}

func TestReader_ClosedReaderRefusesWork(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	outPath := filepath.Join(dir, "x.pbin")
	if _, err := PackFile(context.Background(), outPath,
		[]Input{memInput("linux-x86_64", []byte("bin"))},
		PackOptions{Name: "x", Profile: ProfileNone},
	); err != nil {
		t.Fatalf("PackFile: %v", err)
	}

	r, err := Open(outPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	e, _ := r.Entry("linux-x86_64")
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := r.Slice(e); !errors.Is(err, ErrClosed) {
		t.Fatalf("Slice after close err=%v, want ErrClosed", err)
	}
}

func TestReader_ExtractFileWritesExecutable(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte{0x7f}, 64)
	file, _ := packToBytes(t,
		[]Input{memInput("linux-x86_64", payload)},
		PackOptions{Name: "x", Profile: ProfileNone},
	)

	r := openBytes(t, file)
	dst := filepath.Join(t.TempDir(), "extracted")
	if err := r.ExtractFile("linux-x86_64", dst); err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read extracted: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("extracted file differs from the original input")
	}

	fi, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("stat extracted: %v", err)
	}
	if runtime.GOOS != "windows" && fi.Mode().Perm()&0o100 == 0 {
		t.Fatalf("extracted mode=%v, want owner-executable", fi.Mode())
	}

	if err := r.ExtractFile("darwin-aarch64", filepath.Join(t.TempDir(), "no")); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("missing target err=%v, want ErrEntryNotFound", err)
	}
}
