package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupCLIEnv points the CLI at temp directories with the deterministic
// embedder so tests need no running Ollama.
func setupCLIEnv(t *testing.T) (vault, dataDir string) {
	t.Helper()
	vault = t.TempDir()
	dataDir = t.TempDir()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VAULTMCP_VAULT_PATH", vault)
	t.Setenv("VAULTMCP_DATA_DIR", dataDir)
	t.Setenv("VAULTMCP_EMBEDDINGS_PROVIDER", "static")
	return vault, dataDir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestIndexCmd_IndexesVault(t *testing.T) {
	vault, _ := setupCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(vault, "recipes.md"),
		[]byte("# Recipes\n\nPasta with tomato sauce and basil."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(vault, "todo.txt"),
		[]byte("buy groceries, call the plumber"), 0o644))

	output, err := runCLI(t, "index")

	require.NoError(t, err)
	assert.Contains(t, output, "Scanned 2 documents")
	assert.Contains(t, output, "indexed 2")
}

func TestIndexCmd_SecondRunSkipsUnchanged(t *testing.T) {
	vault, _ := setupCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(vault, "note.md"),
		[]byte("a note that does not change"), 0o644))

	_, err := runCLI(t, "index")
	require.NoError(t, err)

	output, err := runCLI(t, "index")
	require.NoError(t, err)
	assert.Contains(t, output, "indexed 0")
}

func TestSearchCmd_FindsRelevantNote(t *testing.T) {
	vault, _ := setupCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(vault, "recipes.md"),
		[]byte("pasta with tomato sauce and fresh basil"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(vault, "taxes.md"),
		[]byte("quarterly tax filing deadline checklist"), 0o644))

	_, err := runCLI(t, "index")
	require.NoError(t, err)

	output, err := runCLI(t, "search", "tomato", "basil", "pasta")
	require.NoError(t, err)
	assert.Contains(t, output, "Found 2 results")
	assert.Contains(t, output, "recipes.md")
}

func TestSearchCmd_JSONOutput(t *testing.T) {
	vault, _ := setupCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(vault, "note.md"),
		[]byte("a single note about gardening"), 0o644))

	_, err := runCLI(t, "index")
	require.NoError(t, err)

	output, err := runCLI(t, "search", "gardening", "--format", "json")
	require.NoError(t, err)

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &results))
	require.NotEmpty(t, results)
	assert.Contains(t, results[0]["source_path"], "note.md")
}

func TestSearchCmd_NoIndexIsError(t *testing.T) {
	setupCLIEnv(t)

	_, err := runCLI(t, "search", "anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestStatsCmd_ReportsByType(t *testing.T) {
	vault, _ := setupCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(vault, "a.md"), []byte("markdown note"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(vault, "b.txt"), []byte("text note"), 0o644))

	_, err := runCLI(t, "index")
	require.NoError(t, err)

	output, err := runCLI(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, output, "Total chunks: 2")
	assert.Contains(t, output, "markdown: 1")
	assert.Contains(t, output, "text: 1")
}

func TestStatsCmd_JSONOutput(t *testing.T) {
	vault, _ := setupCLIEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(vault, "a.md"), []byte("a note"), 0o644))

	_, err := runCLI(t, "index")
	require.NoError(t, err)

	output, err := runCLI(t, "stats", "--json")
	require.NoError(t, err)

	var stats struct {
		TotalChunks int            `json:"total_chunks"`
		TotalFiles  int            `json:"total_files"`
		ByType      map[string]int `json:"by_type"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &stats))
	assert.Equal(t, 1, stats.TotalChunks)
	assert.Equal(t, 1, stats.TotalFiles)
}

func TestRootCmd_HasExpectedSubcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"serve", "index", "search", "watch", "stats", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
