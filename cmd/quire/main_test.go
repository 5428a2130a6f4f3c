package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	schemaJSON = `{"rootType":"Expense","types":{"Expense":{"type":"struct","properties":{"title":{"type":"string"},"amount":{"type":"number"}}}}}`
	summaryJS  = `module.exports = function (e) { return { "{position:1,sortable:true}title": e.title, "{position:2,sortable:true}amount": e.amount }; };`
	keysJS     = `module.exports = function (e) { return [e.title.toLowerCase()]; };`
)

// run executes the root command against dataDir with stdin.
func run(t *testing.T, dataDir, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--data-dir", dataDir, "--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func idOf(t *testing.T, out string) string {
	t.Helper()
	var v struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	require.NotEmpty(t, v.ID)
	return v.ID
}

func TestCLIWorkflow(t *testing.T) {
	dataDir := t.TempDir()
	files := t.TempDir()

	out, err := run(t, dataDir, "", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration initialized")
	assert.FileExists(t, filepath.Join(dataDir, "quire.toml"))

	_, err = run(t, dataDir, "", "init")
	assert.Error(t, err, "init refuses to overwrite")

	out, err = run(t, dataDir, "", "collection", "create",
		"--name", "Expenses",
		"--schema", writeFile(t, files, "schema.json", schemaJSON),
		"--summary", writeFile(t, files, "summary.js", summaryJS),
		"--blocking-keys", writeFile(t, files, "keys.js", keysJS))
	require.NoError(t, err)
	colID := idOf(t, out)

	out, err = run(t, dataDir, "", "collection", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Expenses")

	out, err = run(t, dataDir, `{"title":"Coffee","amount":3.5}`, "doc", "create", colID)
	require.NoError(t, err)
	coffeeID := idOf(t, out)

	_, err = run(t, dataDir, `{"title":"Plumber","amount":90}`, "doc", "create", colID)
	require.NoError(t, err)

	t.Run("duplicate is not written", func(t *testing.T) {
		out, err := run(t, dataDir, `{"title":"coffee","amount":4}`, "doc", "create", colID)
		require.NoError(t, err)
		assert.Contains(t, out, coffeeID)
		assert.Contains(t, out, "possibleDuplicate")

		out, err = run(t, dataDir, "", "doc", "list", colID)
		require.NoError(t, err)
		var docs []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &docs))
		assert.Len(t, docs, 2)
	})

	t.Run("list with filter", func(t *testing.T) {
		out, err := run(t, dataDir, "", "doc", "list", colID, "--filter", `{"condition":{"field":"amount","operator":"gt","value":10}}`)
		require.NoError(t, err)
		assert.Contains(t, out, "Plumber")
		assert.NotContains(t, out, "Coffee")

		_, err = run(t, dataDir, "", "doc", "list", colID, "--filter", `{"condition":`)
		assert.Error(t, err)
	})

	t.Run("search", func(t *testing.T) {
		out, err := run(t, dataDir, "", "search", "plumber")
		require.NoError(t, err)
		assert.NotEmpty(t, strings.TrimSpace(out))
	})

	t.Run("export", func(t *testing.T) {
		out, err := run(t, dataDir, "", "export", colID)
		require.NoError(t, err)
		assert.Contains(t, out, "name: Expenses")
	})

	t.Run("delete needs confirmation", func(t *testing.T) {
		_, err := run(t, dataDir, "", "doc", "delete", coffeeID)
		assert.Error(t, err)

		_, err = run(t, dataDir, "", "doc", "delete", coffeeID, "--yes")
		require.NoError(t, err)

		_, err = run(t, dataDir, "", "doc", "get", coffeeID)
		assert.Error(t, err)
	})
}

func TestCLIRequiresInit(t *testing.T) {
	_, err := run(t, t.TempDir(), "", "collection", "list")
	assert.ErrorContains(t, err, "quire init")
}
