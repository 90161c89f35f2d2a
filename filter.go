// SPDX-License-Identifier: MIT
// Copyright (c) 2026 watchthelight
// Source: github.com/watchthelight/pbin

package pbin

import (
	"fmt"
	"strings"

	"github.com/woozymasta/pathrules"
)

// TargetFilter selects manifest entries by TargetId glob patterns,
// e.g. "linux-*" or "*-aarch64". A nil filter matches everything.
type TargetFilter struct {
	matcher *pathrules.Matcher
}

// NewTargetFilter compiles include patterns into a filter. Empty and
// blank patterns are dropped; no usable pattern yields a nil filter.
// Matching is case-sensitive, like TargetId comparison.
func NewTargetFilter(patterns []string) (*TargetFilter, error) {
	rules := make([]pathrules.Rule, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		rules = append(rules, pathrules.Rule{
			Action:  pathrules.ActionInclude,
			Pattern: pattern,
		})
	}

	if len(rules) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(rules, pathrules.MatcherOptions{
		DefaultAction: pathrules.ActionExclude,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: compile target patterns: %w", ErrUsage, err)
	}

	return &TargetFilter{matcher: matcher}, nil
}

// Match reports whether target is selected by the filter.
func (f *TargetFilter) Match(target string) bool {
	if f == nil || f.matcher == nil {
		return true
	}

	return f.matcher.Included(target, false)
}

// FilterEntries keeps entries whose TargetId the filter selects,
// preserving file order.
func FilterEntries(entries []Entry, f *TargetFilter) []Entry {
	if f == nil || f.matcher == nil {
		return entries
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if f.Match(e.Target) {
			out = append(out, e)
		}
	}

	return out
}
