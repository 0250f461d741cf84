// ABOUTME: Tests for codex config.toml MCP server management.
// ABOUTME: Covers add/list/remove roundtrips and foreign-key preservation.

package mcpconf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testFile(t *testing.T) *File {
	t.Helper()
	return NewFile(filepath.Join(t.TempDir(), "config.toml"))
}

func TestListMissingFile(t *testing.T) {
	f := testFile(t)

	servers, err := f.List()
	require.NoError(t, err)
	require.Empty(t, servers)
}

func TestSetAndList(t *testing.T) {
	f := testFile(t)

	err := f.Set("search", ServerConfig{
		Command: "python3",
		Args:    []string{"-u", "/opt/codex-home/mcp/serpapi-search.py"},
		Env:     map[string]string{"SERPAPI_KEY": "dummy"},
	})
	require.NoError(t, err)

	servers, err := f.List()
	require.NoError(t, err)
	require.Len(t, servers, 1)
	require.Equal(t, "python3", servers["search"].Command)
	require.Equal(t, []string{"-u", "/opt/codex-home/mcp/serpapi-search.py"}, servers["search"].Args)
	require.Equal(t, "dummy", servers["search"].Env["SERPAPI_KEY"])
}

func TestSetReplacesExisting(t *testing.T) {
	f := testFile(t)

	require.NoError(t, f.Set("time", ServerConfig{Command: "python3", Args: []string{"old.py"}}))
	require.NoError(t, f.Set("time", ServerConfig{Command: "python3", Args: []string{"new.py"}}))

	servers, err := f.List()
	require.NoError(t, err)
	require.Len(t, servers, 1)
	require.Equal(t, []string{"new.py"}, servers["time"].Args)
}

func TestSetPreservesForeignKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	existing := "model = \"gpt-5.1-codex\"\napproval_policy = \"never\"\n\n[mcp_servers.files]\ncommand = \"python3\"\n"
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o644))

	f := NewFile(path)
	require.NoError(t, f.Set("crawl", ServerConfig{Command: "python3", Args: []string{"crawl.py"}}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `model = "gpt-5.1-codex"`)
	require.Contains(t, string(raw), `approval_policy = "never"`)

	servers, err := f.List()
	require.NoError(t, err)
	require.Len(t, servers, 2)
	require.Equal(t, "python3", servers["files"].Command)
	require.Equal(t, []string{"crawl.py"}, servers["crawl"].Args)
}

func TestRemove(t *testing.T) {
	f := testFile(t)

	require.NoError(t, f.Set("files", ServerConfig{Command: "python3"}))
	require.NoError(t, f.Set("time", ServerConfig{Command: "python3"}))

	removed, err := f.Remove("files")
	require.NoError(t, err)
	require.True(t, removed)

	names, err := f.Names()
	require.NoError(t, err)
	require.Equal(t, []string{"time"}, names)
}

func TestRemoveMissing(t *testing.T) {
	f := testFile(t)

	removed, err := f.Remove("ghost")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestSetValidation(t *testing.T) {
	f := testFile(t)

	require.Error(t, f.Set("bad name!", ServerConfig{Command: "python3"}))
	require.Error(t, f.Set("", ServerConfig{Command: "python3"}))
	require.Error(t, f.Set("ok-name", ServerConfig{Command: "   "}))
}

func TestNamesSorted(t *testing.T) {
	f := testFile(t)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, f.Set(name, ServerConfig{Command: "python3"}))
	}

	names, err := f.Names()
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestDefaultPathHonorsCodexHome(t *testing.T) {
	t.Setenv("CODEX_HOME", "/opt/codex-home")
	require.Equal(t, filepath.Join("/opt/codex-home", "config.toml"), DefaultPath())
}
