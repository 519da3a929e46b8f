package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetkit/internal/config"
	assetErrors "github.com/conneroisu/assetkit/internal/errors"
)

func scriptFixture(t *testing.T) (dir string, entry string) {
	t.Helper()
	dir = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "modules"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "partials"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partials", "greet.js"),
		[]byte("export const greet = (name) => `hello ${name}`\n"), 0o644))
	entry = filepath.Join(dir, "modules", "hello.js")
	require.NoError(t, os.WriteFile(entry,
		[]byte("import { greet } from '../partials/greet.js'\nconsole.log(greet('assetkit'))\n"), 0o644))
	return dir, entry
}

func scriptConfig(dist string, legacy bool) *config.ScriptConfig {
	cfg := config.Default()
	cfg.JS.Dist = dist
	cfg.JS.Legacy = legacy
	return &cfg.JS
}

func TestScriptCompilerDevelopment(t *testing.T) {
	dir, entry := scriptFixture(t)
	dist := filepath.Join(dir, "dist")

	c, err := NewScriptCompiler(Development, scriptConfig(dist, true), nil)
	require.NoError(t, err)

	out, err := c.Compile(context.Background(), []string{entry})
	require.NoError(t, err)
	require.Len(t, out.Artifacts, 1)
	assert.Equal(t, "hello.js", filepath.Base(out.Artifacts[0]))

	data, err := os.ReadFile(filepath.Join(dist, "hello.js"))
	require.NoError(t, err)
	js := string(data)
	assert.Contains(t, js, "hello ")
	assert.NotContains(t, js, "import {")
	assert.Contains(t, js, "sourceMappingURL=data:")
}

func TestScriptCompilerProductionWithLegacy(t *testing.T) {
	dir, entry := scriptFixture(t)
	dist := filepath.Join(dir, "dist")

	c, err := NewScriptCompiler(Production, scriptConfig(dist, true), nil)
	require.NoError(t, err)

	out, err := c.Compile(context.Background(), []string{entry})
	require.NoError(t, err)

	var names []string
	for _, a := range out.Artifacts {
		names = append(names, filepath.Base(a))
	}
	assert.ElementsMatch(t, []string{"hello.js", "hello.js.map", "hello.iife.js", "hello.iife.js.map"}, names)

	data, err := os.ReadFile(filepath.Join(dist, "hello.js"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "sourceMappingURL=hello.js.map")
	assert.LessOrEqual(t, strings.Count(strings.TrimSpace(string(data)), "\n"), 2)
}

func TestScriptCompilerBatchFailsAsAWhole(t *testing.T) {
	dir, entry := scriptFixture(t)
	broken := filepath.Join(dir, "modules", "broken.js")
	require.NoError(t, os.WriteFile(broken, []byte("export const = ;\n"), 0o644))
	dist := filepath.Join(dir, "dist")

	c, err := NewScriptCompiler(Development, scriptConfig(dist, false), nil)
	require.NoError(t, err)

	_, err = c.Compile(context.Background(), []string{entry, broken})
	require.Error(t, err)
	assert.True(t, assetErrors.IsTransformError(err))

	var ae *assetErrors.AssetError
	require.ErrorAs(t, err, &ae)
	require.NotEmpty(t, ae.Diagnostics)
	assert.Contains(t, ae.Diagnostics[0].File, "broken.js")
	assert.Greater(t, ae.Diagnostics[0].Line, 0)

	_, statErr := os.Stat(filepath.Join(dist, "hello.js"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestScriptCompilerNoEntries(t *testing.T) {
	c, err := NewScriptCompiler(Production, scriptConfig(t.TempDir(), false), nil)
	require.NoError(t, err)

	out, err := c.Compile(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out.Artifacts)
}
