package cmd

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetkit/internal/logging"
)

// setupProject changes into a fresh project directory holding files and
// resets the global viper state.
func setupProject(t *testing.T, files map[string]string) {
	t.Helper()
	t.Chdir(t.TempDir())

	viper.Reset()
	t.Cleanup(viper.Reset)

	for name, contents := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, os.WriteFile(name, []byte(contents), 0o644))
	}
}

func newTestCmd() (*cobra.Command, *bytes.Buffer) {
	c := &cobra.Command{}
	out := &bytes.Buffer{}
	c.SetOut(out)
	c.SetErr(io.Discard)
	c.SetContext(context.Background())
	return c, out
}

var sampleProject = map[string]string{
	"src/css/modules/button.css":  `@import "../partials/colors.css"; .btn { color: var(--brand); }`,
	"src/css/partials/colors.css": `:root { --brand: #ff0000; }`,
	"src/js/modules/app.js":       `import { greet } from "../lib/greet.js"; greet("app");`,
	"src/js/lib/greet.js":         `export function greet(name) { console.log("hello " + name); }`,
}

func TestBuildDevelopment(t *testing.T) {
	setupProject(t, sampleProject)
	viper.Set("mode", "development")
	buildManifest, buildSize = true, false
	t.Cleanup(func() { buildManifest = false })

	c, out := newTestCmd()
	require.NoError(t, runBuild(c, nil))
	assert.Contains(t, out.String(), "Built 2 module(s)")

	css, err := os.ReadFile("static/dist/css/button.css")
	require.NoError(t, err)
	assert.Contains(t, string(css), "--brand")
	assert.Contains(t, string(css), "sourceMappingURL=data:")

	js, err := os.ReadFile("static/dist/js/app.js")
	require.NoError(t, err)
	assert.Contains(t, string(js), "hello ")

	data, err := os.ReadFile("static/dist/manifest.json")
	require.NoError(t, err)
	var m map[string]string
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, m, "button.css")
	assert.Contains(t, m, "app.js")
}

func TestAppSharesBuildMetrics(t *testing.T) {
	setupProject(t, sampleProject)
	viper.Set("mode", "development")

	cfg, err := loadConfig()
	require.NoError(t, err)
	a, err := newApp(cfg, logging.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, a.metrics, a.scheduler.Metrics())

	ctx := context.Background()
	tasks, err := a.buildAll(ctx)
	require.NoError(t, err)
	collector, artifacts := awaitAll(ctx, tasks)
	require.False(t, collector.HasErrors())
	assert.GreaterOrEqual(t, artifacts, 2)

	require.NoError(t, a.scheduler.Wait(ctx))
	assert.Equal(t, int64(2), a.metrics.GetSnapshot().TotalBuilds)
}

func TestBuildFailsWhenAModuleFails(t *testing.T) {
	files := map[string]string{
		"src/css/modules/ok.css":     `.ok { color: red; }`,
		"src/css/modules/broken.css": `@import "./missing.css";`,
	}
	setupProject(t, files)
	viper.Set("mode", "development")
	viper.Set("js.enabled", false)

	c, _ := newTestCmd()
	err := runBuild(c, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.css")

	assert.FileExists(t, "static/dist/css/ok.css")
	assert.NoFileExists(t, "static/dist/css/broken.css")
}

func TestWatchRebuildsParentOfChangedPartial(t *testing.T) {
	setupProject(t, sampleProject)
	viper.Set("mode", "development")
	viper.Set("watch.debounce", "20ms")

	cfg, err := loadConfig()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, _ := newTestCmd()
	done := make(chan error, 1)
	go func() { done <- watchLoop(ctx, c, cfg, logging.NopLogger{}) }()

	artifact := "static/dist/css/button.css"
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(artifact)
		return err == nil && strings.Contains(string(data), "#ff0000")
	}, 5*time.Second, 20*time.Millisecond)

	// let the watcher register its directories before editing
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile("src/css/partials/colors.css", []byte(`:root { --brand: #00ff00; }`), 0o644))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(artifact)
		return err == nil && strings.Contains(string(data), "#00ff00")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("watch loop did not stop")
	}
}

func TestManifestCommand(t *testing.T) {
	setupProject(t, map[string]string{
		"static/dist/css/site.css": "body{}",
		"static/dist/js/site.js":   "1",
	})
	manifestPrint = true
	t.Cleanup(func() { manifestPrint = false })

	c, out := newTestCmd()
	require.NoError(t, runManifest(c, nil))

	assert.Contains(t, out.String(), "site.css -> site.css?ver=")
	assert.Contains(t, out.String(), "Wrote 2 entries")
	assert.FileExists(t, "static/dist/manifest.json")
}

func TestSizeCommand(t *testing.T) {
	noisy := make([]byte, 3000)
	_, err := rand.Read(noisy)
	require.NoError(t, err)

	setupProject(t, map[string]string{
		"static/dist/js/big.js":    string(noisy),
		"static/dist/css/tiny.css": strings.Repeat("a", 500),
	})
	viper.Set("size.rules", []map[string]interface{}{
		{"pattern": "static/dist/**/*.js", "limit": 1},
		{"pattern": "static/dist/**/*.css", "limit": 1},
	})
	t.Cleanup(func() { sizeFail, sizeNoColor, sizeFormat = false, false, "text" })

	sizeNoColor, sizeFormat = true, "text"
	c, out := newTestCmd()
	require.NoError(t, runSize(c, nil))
	assert.Contains(t, out.String(), "✓ static/dist/css/tiny.css")
	assert.Contains(t, out.String(), "✗ static/dist/js/big.js")

	sizeFail = true
	c, _ = newTestCmd()
	assert.Error(t, runSize(c, nil))
}

func TestConfigShow(t *testing.T) {
	setupProject(t, nil)
	t.Cleanup(func() { configFormat = "yaml" })

	configFormat = "yaml"
	c, out := newTestCmd()
	require.NoError(t, runConfigShow(c, nil))
	assert.Contains(t, out.String(), "mode: production")
	assert.Contains(t, out.String(), "utility_module: src/css/modules/utility.css")

	configFormat = "json"
	c, out = newTestCmd()
	require.NoError(t, runConfigShow(c, nil))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "production", decoded["mode"])
}

func TestConfigValidateRejectsBadFile(t *testing.T) {
	setupProject(t, map[string]string{".assetkit.yml": "css:\n  markup_policy: sometimes\n"})
	viper.SetConfigFile(".assetkit.yml")
	require.NoError(t, viper.ReadInConfig())

	c, _ := newTestCmd()
	err := runConfigValidate(c, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "markup_policy")
}

func TestVersionJSON(t *testing.T) {
	t.Cleanup(func() { versionFormat = "text" })
	versionFormat = "json"

	c, out := newTestCmd()
	require.NoError(t, runVersionCommand(c, nil))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Contains(t, decoded, "version")
	assert.Contains(t, decoded, "is_release")
}

func TestLoadDotEnvKeepsExistingValues(t *testing.T) {
	setupProject(t, map[string]string{
		".env":       "ASSETKIT_DOTENV_A=env\nASSETKIT_DOTENV_B=env\nASSETKIT_DOTENV_C=env\n",
		".env.local": "ASSETKIT_DOTENV_A=local\n",
	})
	t.Setenv("ASSETKIT_DOTENV_C", "process")
	t.Cleanup(func() {
		os.Unsetenv("ASSETKIT_DOTENV_A")
		os.Unsetenv("ASSETKIT_DOTENV_B")
	})

	require.NoError(t, loadDotEnv(".env.local", ".env", ".env.missing"))

	assert.Equal(t, "local", os.Getenv("ASSETKIT_DOTENV_A"))
	assert.Equal(t, "env", os.Getenv("ASSETKIT_DOTENV_B"))
	assert.Equal(t, "process", os.Getenv("ASSETKIT_DOTENV_C"))
}
