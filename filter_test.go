// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

package pbin

import "testing"

func filterEntriesFixture() []Entry {
	return []Entry{
		{Target: "linux-x86_64"},
		{Target: "linux-aarch64"},
		{Target: "darwin-aarch64"},
		{Target: "windows-x86_64"},
	}
}

func TestNewTargetFilter_NilForNoPatterns(t *testing.T) {
	t.Parallel()

	for _, patterns := range [][]string{nil, {}, {"", "  "}} {
		f, err := NewTargetFilter(patterns)
		if err != nil {
			t.Fatalf("NewTargetFilter(%v): %v", patterns, err)
		}
		if f != nil {
			t.Fatalf("NewTargetFilter(%v) returned a filter, want nil", patterns)
		}
	}

	var nilFilter *TargetFilter
	if !nilFilter.Match("linux-x86_64") {
		t.Fatal("nil filter must match everything")
	}
}

func TestTargetFilter_Globs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{"exact", []string{"linux-x86_64"}, []string{"linux-x86_64"}},
		{"os wildcard", []string{"linux-*"}, []string{"linux-x86_64", "linux-aarch64"}},
		{"arch wildcard", []string{"*-aarch64"}, []string{"linux-aarch64", "darwin-aarch64"}},
		{"union", []string{"windows-*", "darwin-*"}, []string{"darwin-aarch64", "windows-x86_64"}},
		{"no match", []string{"freebsd-*"}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f, err := NewTargetFilter(tc.patterns)
			if err != nil {
				t.Fatalf("NewTargetFilter: %v", err)
			}

			got := FilterEntries(filterEntriesFixture(), f)
			if len(got) != len(tc.want) {
				t.Fatalf("selected %d entries, want %d (%v)", len(got), len(tc.want), got)
			}

			for i := range tc.want {
				if got[i].Target != tc.want[i] {
					t.Fatalf("entry %d is %s, want %s", i, got[i].Target, tc.want[i])
				}
			}
		})
	}
}

func TestTargetFilter_CaseSensitive(t *testing.T) {
	t.Parallel()

	f, err := NewTargetFilter([]string{"Linux-*"})
	if err != nil {
		t.Fatalf("NewTargetFilter: %v", err)
	}

	if f.Match("linux-x86_64") {
		t.Fatal("matching is case-insensitive, TargetIds are case-significant")
	}
}
