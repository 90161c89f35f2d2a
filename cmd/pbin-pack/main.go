// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

// Command pbin-pack assembles platform binaries into a single PBIN file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/watchthelight/pbin"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

const usage = `pbin-pack - pack binaries into PBIN format

USAGE:
    pbin-pack [OPTIONS]

OPTIONS:
    --name <NAME>        application name (required)
    --version <VERSION>  application version (default: 0.0.0)
    --output <PATH>      output .pbin file (required)
    --<target-id> <PATH> input binary for one target, repeatable
                         (e.g. --linux-x86_64, --darwin-aarch64)
    --compress <LEVEL>   fast, balanced, or maximum (default: balanced)
    --no-compress        store payloads uncompressed
    --force              overwrite the output file if it exists
    --quiet              suppress the pack summary
    --help               show this help

EXAMPLE:
    pbin-pack \
        --name hello \
        --version 1.0.0 \
        --linux-x86_64 build/hello-linux-amd64 \
        --darwin-aarch64 build/hello-darwin-arm64 \
        --output hello.pbin
`

// config is the parsed command line.
type config struct {
	output string
	inputs []pbin.Input
	opts   pbin.PackOptions
	quiet  bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pbin-pack: %v\n", err)
		return exitUsage
	}

	if cfg == nil {
		fmt.Print(usage)
		return exitOK
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := pbin.PackFile(ctx, cfg.output, cfg.inputs, cfg.opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pbin-pack: %v\n", err)
		return exitFail
	}

	if !cfg.quiet {
		printSummary(cfg.output, res)
	}

	return exitOK
}

// parseArgs parses the option list. A nil config with nil error means
// help was requested.
func parseArgs(args []string) (*config, error) {
	cfg := &config{
		opts: pbin.PackOptions{Profile: pbin.ProfileBalanced},
	}
	noCompress := false

	for i := 0; i < len(args); i++ {
		arg := args[i]

		value := func() (string, error) {
			i++
			if i >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			return args[i], nil
		}

		switch arg {
		case "--help", "-h":
			return nil, nil
		case "--name":
			v, err := value()
			if err != nil {
				return nil, err
			}
			cfg.opts.Name = v
		case "--version":
			v, err := value()
			if err != nil {
				return nil, err
			}
			cfg.opts.Version = v
		case "--output":
			v, err := value()
			if err != nil {
				return nil, err
			}
			cfg.output = v
		case "--compress":
			v, err := value()
			if err != nil {
				return nil, err
			}
			profile, err := pbin.ParseProfile(v)
			if err != nil || profile == pbin.ProfileNone {
				return nil, fmt.Errorf("unknown compression level: %s", v)
			}
			cfg.opts.Profile = profile
		case "--no-compress":
			noCompress = true
		case "--force":
			cfg.opts.Force = true
		case "--quiet":
			cfg.quiet = true
		default:
			id := strings.TrimPrefix(arg, "--")
			if id == arg || !pbin.KnownTarget(id) {
				return nil, fmt.Errorf("unknown argument: %s", arg)
			}

			v, err := value()
			if err != nil {
				return nil, err
			}
			cfg.inputs = append(cfg.inputs, pbin.Input{Target: id, Path: v})
		}
	}

	if noCompress {
		cfg.opts.Profile = pbin.ProfileNone
	}

	if cfg.opts.Name == "" {
		return nil, fmt.Errorf("--name is required")
	}
	if cfg.output == "" {
		return nil, fmt.Errorf("--output is required")
	}
	if len(cfg.inputs) == 0 {
		return nil, fmt.Errorf("at least one --<target-id> binary is required")
	}

	return cfg, nil
}

// printSummary reports what was written, in the shape of the inputs.
func printSummary(output string, res *pbin.PackResult) {
	fmt.Printf("Packed %s v%s\n", res.Manifest.Name, res.Manifest.Version)
	for _, e := range res.Manifest.Entries {
		fmt.Printf("  %-20s %10d -> %d bytes\n", e.Target, e.UncompressedSize, e.CompressedSize)
	}
	fmt.Printf("  stub %d bytes, manifest %d bytes, compression %s\n",
		res.StubSize, res.ManifestSize, res.Kind)
	fmt.Printf("Created %s (%d bytes, %.1f%% of original payload)\n",
		output, res.TotalSize, res.Ratio()*100)
}
