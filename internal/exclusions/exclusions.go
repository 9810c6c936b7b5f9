// Package exclusions holds the per-runner lists of smoke tests that a test
// selector skips.
package exclusions

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-yaml"
)

// AlwaysExcluded are skipped by every runner.
var AlwaysExcluded = []string{
	"lantern-idle-callback-short",
	"issues-mixed-content",
	"trusted-types-directive-present",
}

// ErrUnknownRunner is returned by Lookup for runners missing from the table.
var ErrUnknownRunner = errors.New("unknown runner")

//go:embed default.yaml
var defaultTable []byte

// Table maps a runner name to the test ids it skips.
type Table map[string][]string

// Default returns the built-in table.
func Default() Table {
	t, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("exclusions: built-in table: %v", err))
	}
	return t
}

// Parse decodes a YAML table.
func Parse(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse exclusions: %w", err)
	}
	if t == nil {
		t = Table{}
	}
	return t, nil
}

// Load reads a YAML table from path. An empty path returns Default.
func Load(path string) (Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exclusions: %w", err)
	}
	return Parse(data)
}

// For returns the ids runner skips: its own list followed by AlwaysExcluded,
// without duplicates. Unknown runners get AlwaysExcluded only.
func (t Table) For(runner string) []string {
	own := t[runner]
	out := make([]string, 0, len(own)+len(AlwaysExcluded))
	seen := make(map[string]struct{}, cap(out))
	for _, list := range [][]string{own, AlwaysExcluded} {
		for _, id := range list {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Lookup is For restricted to runners present in the table.
func (t Table) Lookup(runner string) ([]string, error) {
	if _, ok := t[runner]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRunner, runner)
	}
	return t.For(runner), nil
}

// Excluded reports whether runner skips test.
func (t Table) Excluded(runner, test string) bool {
	for _, id := range t.For(runner) {
		if id == test {
			return true
		}
	}
	return false
}

// Runners returns the runner names in sorted order.
func (t Table) Runners() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
