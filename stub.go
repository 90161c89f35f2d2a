// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

package pbin

import (
	"bytes"
	"fmt"
	"strings"
)

// stubOffsetPlaceholder is replaced by the space-padded decimal header
// offset once the stub length is known. Replacement has the same width,
// so substitution never changes the stub size. Space padding keeps the
// number safe inside shell arithmetic, where a leading zero would flip
// the base to octal.
const stubOffsetPlaceholder = "@PBHOFF@"

// muslFallbacks maps glibc TargetIds to the musl entry the stub selects
// when only the musl build is packed. Musl binaries are static and run
// on glibc hosts, so the substitution is always safe.
var muslFallbacks = map[string]string{
	"linux-x86_64":  "linux-x86_64-musl",
	"linux-aarch64": "linux-aarch64-musl",
}

// batchArchKeys maps windows TargetIds to the PROCESSOR_ARCHITECTURE
// value the batch section matches against.
var batchArchKeys = map[string]string{
	"windows-x86_64":  "AMD64",
	"windows-aarch64": "ARM64",
	"windows-x86":     "x86",
}

// GenerateStub emits the polyglot prologue for a PBIN carrying entries
// for exactly the given targets. The same bytes parse as a POSIX shell
// script (every shell line is prefixed ":;", a no-op label for cmd.exe)
// and as a batch file (the batch section sits after the shell's
// unconditional exit). Output is deterministic for a given target set
// and stays under 4 KiB. The emitted text never contains the payload
// marker literal; the shell spells it in two halves.
func GenerateStub(targets []string) ([]byte, error) {
	ordered, err := orderedTargetSet(targets)
	if err != nil {
		return nil, err
	}

	var unix, windows []string
	for _, id := range ordered {
		if strings.HasPrefix(id, "windows-") {
			windows = append(windows, id)
		} else {
			unix = append(unix, id)
		}
	}

	var b bytes.Buffer
	writeShellSection(&b, unix)
	writeBatchSection(&b, windows)

	text := b.Bytes()
	headerOffset := len(text) + markerLen
	substituted := bytes.ReplaceAll(
		text,
		[]byte(stubOffsetPlaceholder),
		[]byte(fmt.Sprintf("%8d", headerOffset)),
	)
	if len(substituted) != len(text) {
		return nil, fmt.Errorf("%w: offset substitution changed stub length", ErrStubTooLarge)
	}

	if len(substituted) >= maxStubSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrStubTooLarge, len(substituted))
	}

	if bytes.Contains(substituted, []byte(PayloadMarker)) {
		return nil, fmt.Errorf("%w: stub text contains the payload marker", ErrUsage)
	}

	return substituted, nil
}

// orderedTargetSet validates targets and returns them in canonical
// registry order, making the stub a pure function of the target set.
func orderedTargetSet(targets []string) ([]string, error) {
	if len(targets) == 0 {
		return nil, ErrNoInputs
	}

	set := make(map[string]struct{}, len(targets))
	for _, id := range targets {
		if !KnownTarget(id) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, id)
		}

		if _, dup := set[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTarget, id)
		}

		set[id] = struct{}{}
	}

	ordered := make([]string, 0, len(set))
	for _, id := range targetOrder {
		if _, ok := set[id]; ok {
			ordered = append(ordered, id)
		}
	}

	return ordered, nil
}

// writeShellSection emits the POSIX shell half of the stub. Every line
// is a complete command list: cmd.exe sees each as a label and skips it,
// and the final exit keeps the shell from ever parsing the batch half.
// The runtime walk is DetectHost, LocateSelf, ReadHeader, ReadManifest,
// SelectEntry, Extract, SpawnChild, Cleanup. Header and manifest fields
// are parsed through command substitutions only; nothing touches the
// positional parameters, so "$@" still holds the caller's arguments when
// the child is spawned.
func writeShellSection(b *bytes.Buffer, unixTargets []string) {
	packed := make(map[string]struct{}, len(unixTargets))
	for _, id := range unixTargets {
		packed[id] = struct{}{}
	}

	lines := []string{
		"#!/bin/sh",
		`:;pb_self="$0"`,
		`:;case "$pb_self" in */*) ;; *) pb_self=$(command -v -- "$pb_self" 2>/dev/null || printf %s "$pb_self") ;; esac`,
		`:;pb_die() { printf 'pbin: %s (%s) %s\n' "$2" "${pb_target:-unknown}" "$pb_self" >&2; exit "$1"; }`,
		`:;case "$(uname -s)" in Linux) pb_os=linux ;; Darwin) pb_os=darwin ;; FreeBSD) pb_os=freebsd ;; NetBSD) pb_os=netbsd ;; OpenBSD) pb_os=openbsd ;; *) pb_os=unknown ;; esac`,
		`:;[ -n "${ANDROID_ROOT:-}" ] && [ "$pb_os" = linux ] && pb_os=android`,
		`:;case "$(uname -m)" in x86_64|amd64) pb_arch=x86_64 ;; aarch64|arm64) pb_arch=aarch64 ;; armv7*) pb_arch=armv7 ;; riscv64) pb_arch=riscv64 ;; ppc64le) pb_arch=ppc64le ;; s390x) pb_arch=s390x ;; mips64) pb_arch=mips64 ;; loongarch64) pb_arch=loongarch64 ;; i?86) pb_arch=x86 ;; *) pb_arch=unknown ;; esac`,
		`:;pb_target="$pb_os-$pb_arch"`,
		`:;pb_hdr=$((` + stubOffsetPlaceholder + `))`,
		`:;[ "$(tail -c +$((pb_hdr-15)) -- "$pb_self" 2>/dev/null | head -c 16)" = "__PBIN_""PAYLOAD__" ] || pb_die 110 "no marker"`,
		`:;pb_hb=$(od -An -v -tu1 -j "$pb_hdr" -N 12 -- "$pb_self" | awk '{print $1"-"$2"-"$3"-"$4"-"$5"-"$6" "$7" "$9+$10*256+$11*65536+$12*16777216}')`,
		`:;case "$pb_hb" in "80-66-73-78-1-0 "*) ;; *) pb_die 111 "bad header" ;; esac`,
		`:;pb_ht=${pb_hb#* }`,
		`:;pb_comp=${pb_ht%% *} pb_msize=${pb_ht##* }`,
		`:;[ "$pb_msize" -gt 0 ] || pb_die 112 "bad manifest"`,
		`:;pb_man=$(tail -c +$((pb_hdr+65)) -- "$pb_self" | head -c "$pb_msize")`,
	}

	// Glibc hosts fall back to a packed musl entry when no glibc entry
	// exists. Emitted only for files where the fallback can ever fire.
	var fallbacks []string
	for _, gnu := range []string{"linux-x86_64", "linux-aarch64"} {
		musl := muslFallbacks[gnu]
		_, hasGnu := packed[gnu]
		_, hasMusl := packed[musl]
		if !hasGnu && hasMusl {
			fallbacks = append(fallbacks, gnu)
		}
	}
	if len(fallbacks) > 0 {
		lines = append(lines,
			`:;case "$pb_target" in `+strings.Join(fallbacks, "|")+`) pb_target="$pb_target-musl" ;; esac`)
	}

	lines = append(lines,
		`:;pb_ent=$(printf %s "$pb_man" | tr '}' '\n' | grep -F "\"target\":\"$pb_target\"" | head -n 1)`,
		`:;[ -n "$pb_ent" ] || pb_die 113 "no matching target"`,
		`:;pb_off=$(printf %s "$pb_ent" | sed -n 's/.*"offset":\([0-9]*\).*/\1/p')`,
		`:;pb_csz=$(printf %s "$pb_ent" | sed -n 's/.*"compressed_size":\([0-9]*\).*/\1/p')`,
		`:;pb_sum=$(printf %s "$pb_ent" | sed -n 's/.*"checksum":"\([0-9a-f]*\)".*/\1/p')`,
		`:;[ -n "$pb_off" ] && [ -n "$pb_csz" ] || pb_die 112 "bad manifest"`,
		`:;pb_name=$(printf %s "$pb_man" | sed -n 's/.*"name":"\([^"]*\)".*/\1/p')`,
		`:;[ -n "$pb_name" ] || pb_name=app`,
		`:;pb_tmp=$(mktemp -d "${TMPDIR:-/tmp}/pbin.XXXXXX") || pb_die 115 "tmpdir failed"`,
		`:;pb_bin="$pb_tmp/$pb_name"`,
		`:;trap 'rm -rf -- "$pb_tmp"' EXIT`,
		`:;trap 'exit 130' INT TERM HUP`,
		`:;tail -c +$((pb_off+1)) -- "$pb_self" | head -c "$pb_csz" > "$pb_tmp/payload" || pb_die 115 "read failed"`,
		`:;case "$pb_comp" in 0) mv -- "$pb_tmp/payload" "$pb_bin" ;; 1) zstd -q -d -f -o "$pb_bin" -- "$pb_tmp/payload" || pb_die 115 "zstd failed" ;; 2) lz4 -q -d -f "$pb_tmp/payload" "$pb_bin" || pb_die 115 "lz4 failed" ;; *) pb_die 111 "bad tag" ;; esac`,
		`:;[ -z "$pb_sum" ] || ! command -v b3sum >/dev/null 2>&1 || [ "$(b3sum --no-names -- "$pb_bin")" = "$pb_sum" ] || pb_die 114 "integrity failure"`,
		`:;chmod 755 -- "$pb_bin" || pb_die 115 "chmod failed"`,
		`:;[ -x "$pb_bin" ] || pb_die 116 "spawn failed"`,
		// The status is captured on the spawn line: a leading ":" no-op
		// on the next line would already have reset $?.
		`:;"$pb_bin" "$@"; pb_rc=$?`,
		`:;exit "$pb_rc"`,
	)

	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

// writeBatchSection emits the cmd.exe half. cmd skipped every ":" label
// line above and lands here; the shell exited before this point. The
// PowerShell extractor slices the payload, decompresses, runs the child
// with forwarded arguments, and removes the temp directory after it
// returns. Only packed windows TargetIds appear in the detection chain.
func writeBatchSection(b *bytes.Buffer, windowsTargets []string) {
	lines := []string{
		`@echo off 2>nul`,
		`setlocal`,
		`set "S=%~f0"`,
		`set "A=%PROCESSOR_ARCHITECTURE%"`,
		`if defined PROCESSOR_ARCHITEW6432 set "A=%PROCESSOR_ARCHITEW6432%"`,
		`set "T="`,
	}

	for _, id := range windowsTargets {
		lines = append(lines, fmt.Sprintf(`if /i "%%A%%"=="%s" set "T=%s"`, batchArchKeys[id], id))
	}

	lines = append(lines,
		`if defined T goto pbrun`,
		`echo pbin: no matching target (windows-%A%) "%S%" 1>&2`,
		`exit /b 113`,
		`:pbrun`,
		`powershell -NoProfile -Command "& {`+powerShellExtractor()+`}" %*`,
		`exit /b %ERRORLEVEL%`,
	)

	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

// powerShellExtractor returns the single-line extractor run by the batch
// section. Self path and target arrive through the environment; the
// child's arguments arrive as $args. The extraction directory lives
// under %TEMP% so stale runs are reclaimed by OS temp sweepers.
func powerShellExtractor() string {
	steps := []string{
		`$b=[IO.File]::ReadAllBytes($env:S)`,
		`if($b.Length -lt ($h=` + stubOffsetPlaceholder + `)+64 -or [Text.Encoding]::ASCII.GetString($b,$h,4) -ne 'PBIN'){exit 111}`,
		`$ms=[BitConverter]::ToUInt32($b,$h+8)`,
		`$c=$b[$h+6]`,
		`$m=[Text.Encoding]::UTF8.GetString($b,$h+64,$ms)|ConvertFrom-Json`,
		`if(!$m){exit 112}`,
		`$e=$m.entries.Where({$_.target -eq $env:T})[0]`,
		`if(!$e){exit 113}`,
		`$d=$env:TEMP+'\pbin-'+[Guid]::NewGuid()`,
		`$null=md $d`,
		`$p=$d+'\payload'`,
		`$x=$d+'\'+$m.name+'.exe'`,
		`$s=New-Object byte[] $e.compressed_size`,
		`[Array]::Copy($b,[int64]$e.offset,$s,0,[int64]$e.compressed_size)`,
		`[IO.File]::WriteAllBytes($p,$s)`,
		`if($c -eq 0){mv $p $x}elseif($c -eq 1){zstd -q -d -f -o $x $p;if($LASTEXITCODE){exit 115}}else{lz4 -q -d -f $p $x;if($LASTEXITCODE){exit 115}}`,
		`if(!(Test-Path $x)){exit 115}`,
		`& $x @args`,
		`$r=$LASTEXITCODE`,
		`rm -Recurse -Force $d`,
		`exit $r`,
	}

	return strings.Join(steps, ";")
}
