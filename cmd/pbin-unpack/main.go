// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

// Command pbin-unpack inspects, extracts, and verifies PBIN files.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/watchthelight/pbin"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

const usage = `pbin-unpack - inspect, extract, and verify PBIN files

USAGE:
    pbin-unpack inspect <file> [--target <pattern>]...
    pbin-unpack extract <file> --target <id> --output <path>
    pbin-unpack verify <file> [--target <pattern>]...

inspect prints the manifest as JSON. verify reads every selected entry
and checks its BLAKE3 digest. --target accepts exact TargetIds and glob
patterns such as linux-*.
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		fmt.Fprint(os.Stderr, usage)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "inspect":
		err = runInspect(args[1:])
	case "extract":
		err = runExtract(args[1:])
	case "verify":
		err = runVerify(ctx, args[1:])
	case "--help", "-h", "help":
		fmt.Print(usage)
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "pbin-unpack: unknown command: %s\n", args[0])
		return exitUsage
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "pbin-unpack: %v\n", err)

		var uerr usageError
		if errors.As(err, &uerr) {
			return exitUsage
		}

		return exitFail
	}

	return exitOK
}

// usageError marks command-line mistakes so run can exit 2 instead of 1.
type usageError string

func (e usageError) Error() string { return string(e) }

// parseFileAndTargets splits one positional file argument and repeated
// --target values.
func parseFileAndTargets(args []string) (string, []string, error) {
	file := ""
	var patterns []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--target":
			i++
			if i >= len(args) {
				return "", nil, usageError("--target requires a value")
			}
			patterns = append(patterns, args[i])
		default:
			if file != "" {
				return "", nil, usageError("unexpected argument: " + args[i])
			}
			file = args[i]
		}
	}

	if file == "" {
		return "", nil, usageError("missing <file> argument")
	}

	return file, patterns, nil
}

func runInspect(args []string) error {
	file, patterns, err := parseFileAndTargets(args)
	if err != nil {
		return err
	}

	filter, err := pbin.NewTargetFilter(patterns)
	if err != nil {
		return usageError(err.Error())
	}

	r, err := pbin.Open(file)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	manifest := r.Inspect()
	manifest.Entries = pbin.FilterEntries(manifest.Entries, filter)

	out, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	fmt.Println(string(out))

	return nil
}

func runExtract(args []string) error {
	file := ""
	target := ""
	output := ""

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--target":
			i++
			if i >= len(args) {
				return usageError("--target requires a value")
			}
			target = args[i]
		case "--output":
			i++
			if i >= len(args) {
				return usageError("--output requires a value")
			}
			output = args[i]
		default:
			if file != "" {
				return usageError("unexpected argument: " + args[i])
			}
			file = args[i]
		}
	}

	switch {
	case file == "":
		return usageError("missing <file> argument")
	case target == "":
		return usageError("--target is required")
	case output == "":
		return usageError("--output is required")
	}

	if !pbin.KnownTarget(target) {
		return usageError("unknown target: " + target)
	}

	r, err := pbin.Open(file)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	return r.ExtractFile(target, output)
}

func runVerify(ctx context.Context, args []string) error {
	file, patterns, err := parseFileAndTargets(args)
	if err != nil {
		return err
	}

	filter, err := pbin.NewTargetFilter(patterns)
	if err != nil {
		return usageError(err.Error())
	}

	r, err := pbin.Open(file)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	entries := pbin.FilterEntries(r.Entries(), filter)
	if len(entries) == 0 {
		return usageError("no entries match the target patterns")
	}

	for _, e := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rc, err := r.EntryReader(e)
		if err != nil {
			return err
		}

		_, err = io.Copy(io.Discard, rc)
		_ = rc.Close()
		if err != nil {
			return err
		}

		fmt.Printf("%s: ok\n", e.Target)
	}

	return nil
}
