package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cactusdynamics/wesviz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestConfigCommand(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		out, err := executeCommand(t, "config", "default")
		require.NoError(t, err)

		expected, err := wesviz.SerializeConfig(wesviz.DefaultVisualizations())
		require.NoError(t, err)
		assert.Equal(t, expected+"\n", out)
	})

	t.Run("fmt", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "charts.json", `{"visualizations":[{"title":"a","inputs":[{"data":"0.x"}]}]}`)

		out, err := executeCommand(t, "config", "fmt", path)
		require.NoError(t, err)

		visualizations, err := wesviz.DeserializeConfig(out)
		require.NoError(t, err)
		require.Len(t, visualizations, 1)
		assert.Equal(t, "a", visualizations[0].Title)
	})

	t.Run("fmt rejects a bad document", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "charts.json", `{"visualizations": 3}`)

		_, err := executeCommand(t, "config", "fmt", path)
		assert.ErrorContains(t, err, "charts.json")
	})
}

func TestRunRender(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "a.csv", "x,y\n0,1\n1,2\n2,4\n")

	t.Run("writes one file per chart", func(t *testing.T) {
		settings := wesviz.DefaultSettings()
		settings.ConfigPath = writeFile(t, dir, "ok.json", `{"visualizations": [
			{"title": "one", "height": 200, "inputs": [{"data": "0.x"}, {"data": "0.y", "stroke": "red"}]},
			{"title": "two", "height": 200, "inputs": [{"data": "0.x"}, {"data": "0.y"}]}
		]}`)
		out := filepath.Join(dir, "ok")

		var stdout, stderr bytes.Buffer
		err := runRender(context.Background(), settings, out, []string{data}, &stdout, &stderr)
		require.NoError(t, err)

		first := filepath.Join(out, "plot-0.png")
		second := filepath.Join(out, "plot-1.png")
		assert.Equal(t, "wrote "+first+"\nwrote "+second+"\n", stdout.String())
		assert.Empty(t, stderr.String())
		assert.FileExists(t, first)
		assert.FileExists(t, second)
	})

	t.Run("unresolved inputs fail the command", func(t *testing.T) {
		settings := wesviz.DefaultSettings()
		settings.ConfigPath = writeFile(t, dir, "missing.json", `{"visualizations": [
			{"inputs": [{"data": "0.x"}, {"data": "1.z"}]}
		]}`)

		var stdout, stderr bytes.Buffer
		err := runRender(context.Background(), settings, filepath.Join(dir, "missing"), []string{data}, &stdout, &stderr)
		assert.ErrorIs(t, err, errRenderIncomplete)
		assert.Contains(t, stderr.String(), "Unable to access 1.z because dataset 1 is not available!")
	})

	t.Run("invalid config", func(t *testing.T) {
		settings := wesviz.DefaultSettings()
		settings.ConfigPath = writeFile(t, dir, "bad.json", "{")

		var stdout, stderr bytes.Buffer
		err := runRender(context.Background(), settings, filepath.Join(dir, "bad"), []string{data}, &stdout, &stderr)
		assert.ErrorIs(t, err, errRenderIncomplete)
		assert.Contains(t, stderr.String(), "Invalid config!")
		assert.Empty(t, stdout.String())
	})

	t.Run("missing config file", func(t *testing.T) {
		settings := wesviz.DefaultSettings()
		settings.ConfigPath = filepath.Join(dir, "nope.json")

		var stdout, stderr bytes.Buffer
		err := runRender(context.Background(), settings, filepath.Join(dir, "nope"), nil, &stdout, &stderr)
		assert.ErrorContains(t, err, "failed to read config file")
	})
}
