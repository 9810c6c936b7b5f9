package exclusions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	table := Default()
	assert.Equal(t, []string{"bundle", "cli", "devtools", "devtools-mcp"}, table.Runners())

	cli := table.For("cli")
	assert.Equal(t, AlwaysExcluded, cli)

	mcp := table.For("devtools-mcp")
	assert.Contains(t, mcp, "timing")
	assert.Contains(t, mcp, "issues-mixed-content")
}

func TestForDeduplicates(t *testing.T) {
	table := Table{"devtools-mcp": {"dbw", "lantern-idle-callback-short", "dbw"}}

	got := table.For("devtools-mcp")
	assert.Equal(t, []string{
		"dbw",
		"lantern-idle-callback-short",
		"issues-mixed-content",
		"trusted-types-directive-present",
	}, got)
}

func TestForDoesNotAlias(t *testing.T) {
	table := Table{"cli": {"a11y"}}
	got := table.For("cli")
	got[0] = "changed"
	assert.Equal(t, []string{"a11y"}, table["cli"])
	assert.Equal(t, "lantern-idle-callback-short", AlwaysExcluded[0])
}

func TestLookup(t *testing.T) {
	table := Default()

	_, err := table.Lookup("nope")
	assert.ErrorIs(t, err, ErrUnknownRunner)

	got, err := table.Lookup("bundle")
	require.NoError(t, err)
	assert.Equal(t, AlwaysExcluded, got)

	assert.True(t, table.Excluded("devtools", "crash"))
	assert.True(t, table.Excluded("cli", "trusted-types-directive-present"))
	assert.False(t, table.Excluded("cli", "crash"))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclusions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("custom:\n  - perf-fonts\n"), 0o644))

	table, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"custom"}, table.Runners())
	assert.Equal(t, "perf-fonts", table.For("custom")[0])

	table, err = Load("")
	require.NoError(t, err)
	assert.Contains(t, table.Runners(), "devtools-mcp")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("cli: [unterminated"))
	assert.Error(t, err)
}
