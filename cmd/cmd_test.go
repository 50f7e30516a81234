package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func resetFlags(t *testing.T) {
	t.Helper()
	composeOutput = ""
	composeInstanceID = ""
	lsMirror = ""
	require.NoError(t, lsFormat.Set("table"))
	require.NoError(t, versionFormat.Set("text"))
	versionShort = false
}

func run(t *testing.T, fn func(*cobra.Command, []string) error, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	err := fn(c, args)
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestComposeCommand(t *testing.T) {
	resetFlags(t)
	dir := t.TempDir()
	markup := writeFile(t, dir, "index.html", `<html class="dark"><body><p>hi</p></body></html>`)
	style := writeFile(t, dir, "style.css", "p{color:red}")
	script := writeFile(t, dir, "script.js", "go()")

	composeInstanceID = "cmdtest01"
	out, err := run(t, runCompose, markup, style, script)
	require.NoError(t, err)

	assert.Contains(t, out, "<p>hi</p>")
	assert.Contains(t, out, `<style id="sandbox-style-cmdtest01">p{color:red}</style>`)
	assert.Contains(t, out, "go()\n//# sourceURL=script.js")
	assert.Contains(t, out, "litterbox-state-cmdtest01")
}

func TestComposeToFile(t *testing.T) {
	resetFlags(t)
	dir := t.TempDir()
	markup := writeFile(t, dir, "index.html", "<p>only markup</p>")

	composeOutput = filepath.Join(dir, "out.html")
	out, err := run(t, runCompose, markup)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(composeOutput)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<p>only markup</p>")
}

func TestComposeMissingFile(t *testing.T) {
	resetFlags(t)
	_, err := run(t, runCompose, filepath.Join(t.TempDir(), "missing.html"))
	assert.Error(t, err)
}

func TestLsCommandJSON(t *testing.T) {
	resetFlags(t)
	host := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(host, "css"), 0o755))
	writeFile(t, host, "css/site.css", "body{}")

	lsMirror = host
	require.NoError(t, lsFormat.Set("json"))
	out, err := run(t, runLs)
	require.NoError(t, err)

	var nodes []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &nodes))

	paths := make(map[string]string, len(nodes))
	for _, n := range nodes {
		paths[n.Path] = n.Type
	}
	assert.Equal(t, "file", paths["/index.html"])
	assert.Equal(t, "file", paths["/file.txt"])
	assert.Equal(t, "directory", paths["/css"])
	assert.Equal(t, "file", paths["/css/site.css"])
}

func TestLsCommandYAMLSubtree(t *testing.T) {
	resetFlags(t)
	host := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(host, "js"), 0o755))
	writeFile(t, host, "js/app.js", "run()")

	lsMirror = host
	require.NoError(t, lsFormat.Set("yaml"))
	out, err := run(t, runLs, "/js")
	require.NoError(t, err)

	var nodes []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &nodes))
	require.Len(t, nodes, 2)
	assert.Equal(t, "/js", nodes[0]["path"])
	assert.Equal(t, "directory", nodes[0]["type"])
	assert.Equal(t, "/js/app.js", nodes[1]["path"])
	assert.Equal(t, "rw", nodes[1]["permissions"])
}

func TestLsCommandTable(t *testing.T) {
	resetFlags(t)
	out, err := run(t, runLs)
	require.NoError(t, err)

	assert.Contains(t, out, "PATH")
	assert.Contains(t, out, "PERMISSIONS")
	assert.Contains(t, out, "/style.css")
	assert.Contains(t, out, "4 Nodes")
}

func TestLsMissingDirectory(t *testing.T) {
	resetFlags(t)
	_, err := run(t, runLs, "/nowhere")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	resetFlags(t)

	out, err := run(t, runVersionCommand)
	require.NoError(t, err)
	assert.Contains(t, out, "litterbox ")
	assert.Contains(t, out, "Platform: ")

	require.NoError(t, versionFormat.Set("json"))
	out, err = run(t, runVersionCommand)
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")
}

func TestFormatValue(t *testing.T) {
	v := newFormatValue("table", "table", "json")
	assert.Equal(t, "table", v.String())
	assert.Equal(t, "format", v.Type())

	assert.NoError(t, v.Set("JSON"))
	assert.Equal(t, "json", v.String())

	err := v.Set("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table, json")
	assert.Equal(t, "json", v.String())
}

func TestFlagValidation(t *testing.T) {
	assert.NoError(t, ValidatePort("0"))
	assert.NoError(t, ValidatePort("8080"))
	assert.Error(t, ValidatePort("70000"))
	assert.Error(t, ValidatePort("http"))

	dir := t.TempDir()
	assert.NoError(t, ValidateDirExists(""))
	assert.NoError(t, ValidateDirExists(dir))
	assert.Error(t, ValidateDirExists(filepath.Join(dir, "missing")))
	assert.Error(t, ValidateDirExists(writeFile(t, dir, "f.txt", "x")))

	c := &cobra.Command{}
	c.Flags().Int("port", 1, "")
	AddFlagValidation(c, "port", ValidatePort)
	assert.Error(t, c.Flags().Set("port", "99999"))
	assert.NoError(t, c.Flags().Set("port", "3000"))
	port, err := c.Flags().GetInt("port")
	require.NoError(t, err)
	assert.Equal(t, 3000, port)
}
