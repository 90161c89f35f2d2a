// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

package pbin

import "runtime"

// targetTriples maps every registry TargetId to its toolchain triple.
// The registry is closed at format version 1: readers and writers reject
// identifiers outside this table. Comparison is exact byte equality.
var targetTriples = map[string]string{
	"linux-x86_64":       "x86_64-unknown-linux-gnu",
	"linux-aarch64":      "aarch64-unknown-linux-gnu",
	"linux-riscv64":      "riscv64gc-unknown-linux-gnu",
	"linux-armv7":        "armv7-unknown-linux-gnueabihf",
	"linux-ppc64le":      "powerpc64le-unknown-linux-gnu",
	"linux-s390x":        "s390x-unknown-linux-gnu",
	"linux-mips64":       "mips64-unknown-linux-gnuabi64",
	"linux-loongarch64":  "loongarch64-unknown-linux-gnu",
	"linux-x86_64-musl":  "x86_64-unknown-linux-musl",
	"linux-aarch64-musl": "aarch64-unknown-linux-musl",
	"darwin-x86_64":      "x86_64-apple-darwin",
	"darwin-aarch64":     "aarch64-apple-darwin",
	"windows-x86_64":     "x86_64-pc-windows-msvc",
	"windows-aarch64":    "aarch64-pc-windows-msvc",
	"windows-x86":        "i686-pc-windows-msvc",
	"freebsd-x86_64":     "x86_64-unknown-freebsd",
	"freebsd-aarch64":    "aarch64-unknown-freebsd",
	"netbsd-x86_64":      "x86_64-unknown-netbsd",
	"openbsd-x86_64":     "x86_64-unknown-openbsd",
	"android-aarch64":    "aarch64-linux-android",
	"android-armv7":      "armv7-linux-androideabi",
	"android-x86_64":     "x86_64-linux-android",
	"ios-aarch64":        "aarch64-apple-ios",
	"wasi-wasm32":        "wasm32-wasip1",
}

// targetOrder lists registry TargetIds in canonical order.
var targetOrder = []string{
	"linux-x86_64",
	"linux-aarch64",
	"linux-riscv64",
	"linux-armv7",
	"linux-ppc64le",
	"linux-s390x",
	"linux-mips64",
	"linux-loongarch64",
	"linux-x86_64-musl",
	"linux-aarch64-musl",
	"darwin-x86_64",
	"darwin-aarch64",
	"windows-x86_64",
	"windows-aarch64",
	"windows-x86",
	"freebsd-x86_64",
	"freebsd-aarch64",
	"netbsd-x86_64",
	"openbsd-x86_64",
	"android-aarch64",
	"android-armv7",
	"android-x86_64",
	"ios-aarch64",
	"wasi-wasm32",
}

// KnownTarget reports whether id is a registry TargetId.
func KnownTarget(id string) bool {
	_, ok := targetTriples[id]
	return ok
}

// TripleOf returns the toolchain triple for id, or "" when id is unknown.
func TripleOf(id string) string {
	return targetTriples[id]
}

// Targets returns registry TargetIds in canonical order.
func Targets() []string {
	out := make([]string, len(targetOrder))
	copy(out, targetOrder)
	return out
}

// DetectHost returns the TargetId matching the running host, or "" when
// the host maps to no registry identifier. On Linux the glibc identifier
// is returned; the musl variants are selected only by the stub's
// fallback, never by detection.
func DetectHost() string {
	return hostTarget(runtime.GOOS, runtime.GOARCH)
}

// hostTarget maps a GOOS/GOARCH pair to a registry TargetId.
func hostTarget(goos, goarch string) string {
	arch := ""
	switch goarch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "arm":
		arch = "armv7"
	case "riscv64":
		arch = "riscv64"
	case "ppc64le":
		arch = "ppc64le"
	case "s390x":
		arch = "s390x"
	case "mips64":
		arch = "mips64"
	case "loong64":
		arch = "loongarch64"
	case "386":
		arch = "x86"
	case "wasm":
		arch = "wasm32"
	default:
		return ""
	}

	os := goos
	switch goos {
	case "wasip1":
		os = "wasi"
	case "ios":
		os = "ios"
	}

	id := os + "-" + arch
	if !KnownTarget(id) {
		return ""
	}

	return id
}
