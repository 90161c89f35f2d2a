// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

/*
Package pbin reads and writes PBIN files: single-file cross-platform
launchers that are simultaneously a POSIX shell script, a cmd.exe batch
file, and a structured container of compressed native executables
indexed by platform.

A PBIN is laid out as polyglot stub, payload marker, fixed 64-byte
header, JSON manifest, and contiguous payload blobs. Running the file
lets the embedded stub detect the host, slice out the matching payload,
decompress it to a private temp directory, and re-execute it with the
original arguments.

# Packing

	inputs := []pbin.Input{
	    {Target: "linux-x86_64", Path: "build/app-linux-amd64"},
	    {Target: "darwin-aarch64", Path: "build/app-darwin-arm64"},
	}
	res, err := pbin.PackFile(ctx, "app.pbin", inputs, pbin.PackOptions{
	    Name:    "app",
	    Version: "1.2.0",
	    Profile: pbin.ProfileBalanced,
	})

Packing is deterministic: the same inputs produce byte-identical files.

# Reading

	r, err := pbin.Open("app.pbin")
	if err != nil {
	    return err
	}
	defer r.Close()
	for _, e := range r.Entries() {
	    // e.Target, e.Offset, e.CompressedSize, ...
	}
	err = r.ExtractFile("linux-x86_64", "app-linux")

Verify streams every payload and checks the recorded BLAKE3 digests:

	err = r.Verify(ctx)
*/
package pbin
