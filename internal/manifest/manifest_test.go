package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetkit/internal/config"
	"github.com/conneroisu/assetkit/internal/errors"
)

func defaultManifestConfig() config.ManifestConfig {
	return config.Default().Manifest
}

func writeDist(t *testing.T, dist string, files map[string]string) {
	t.Helper()
	for name, contents := range files {
		path := filepath.Join(dist, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	}
}

func TestHash(t *testing.T) {
	// md5("") = d41d8cd98f00b204e9800998ecf8427e
	assert.Equal(t, "d41d8cd98f", Hash(nil, 10))
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Hash([]byte{}, 0))
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", Hash([]byte{}, 64))
	assert.Len(t, Hash([]byte("body{}"), 10), 10)
}

func TestGeneratorWrite(t *testing.T) {
	dist := t.TempDir()
	writeDist(t, dist, map[string]string{
		"css/button.css":  ".btn{}",
		"js/hello.js":     "console.log(1)",
		"img/logo.svg":    "<svg/>",
		"js/hello.js.map": "{}",
		"notes.txt":       "ignored",
	})

	g := NewGenerator(dist, defaultManifestConfig(), nil)
	m, err := g.Write(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"button.css", "hello.js", "logo.svg"}, m.Keys())
	assert.Equal(t, "button.css?ver="+Hash([]byte(".btn{}"), 10), m["button.css"])

	data, err := os.ReadFile(filepath.Join(dist, "manifest.json"))
	require.NoError(t, err)

	var onDisk map[string]string
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, map[string]string(m), onDisk)
	assert.Equal(t,
		fmt.Sprintf(`{"button.css":"button.css?ver=%s","hello.js":"hello.js?ver=%s","logo.svg":"logo.svg?ver=%s"}`,
			Hash([]byte(".btn{}"), 10), Hash([]byte("console.log(1)"), 10), Hash([]byte("<svg/>"), 10)),
		string(data))
}

func TestGeneratorHashFollowsContent(t *testing.T) {
	dist := t.TempDir()
	path := filepath.Join(dist, "app.css")
	g := NewGenerator(dist, defaultManifestConfig(), nil)

	require.NoError(t, os.WriteFile(path, []byte("a{}"), 0o644))
	first, err := g.Generate(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("b{}"), 0o644))
	changed, err := g.Generate(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first["app.css"], changed["app.css"])

	require.NoError(t, os.WriteFile(path, []byte("a{}"), 0o644))
	reverted, err := g.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first["app.css"], reverted["app.css"])
}

func TestGeneratorIsIdempotent(t *testing.T) {
	dist := t.TempDir()
	writeDist(t, dist, map[string]string{"a.css": "a", "b.js": "b"})

	cfg := defaultManifestConfig()
	cfg.Extensions = append(cfg.Extensions, "json")
	g := NewGenerator(dist, cfg, nil)

	_, err := g.Write(context.Background())
	require.NoError(t, err)
	first, err := os.ReadFile(g.Path())
	require.NoError(t, err)

	m, err := g.Write(context.Background())
	require.NoError(t, err)
	second, err := os.ReadFile(g.Path())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotContains(t, m, "manifest.json")
}

func TestGeneratorAbortsOnReadFailure(t *testing.T) {
	dist := t.TempDir()
	writeDist(t, dist, map[string]string{"a.css": "a", "b.css": "b"})

	g := NewGenerator(dist, defaultManifestConfig(), nil)
	g.read = func(path string) ([]byte, error) {
		if filepath.Base(path) == "b.css" {
			return nil, os.ErrPermission
		}
		return os.ReadFile(path)
	}

	_, err := g.Write(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))
	assert.ErrorIs(t, err, os.ErrPermission)

	_, statErr := os.Stat(g.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestGeneratorReportsFirstFailureInOrder(t *testing.T) {
	dist := t.TempDir()
	writeDist(t, dist, map[string]string{"a.css": "a", "b.css": "b", "c.css": "c"})

	g := NewGenerator(dist, defaultManifestConfig(), nil)
	g.read = func(path string) ([]byte, error) {
		switch filepath.Base(path) {
		case "a.css":
			time.Sleep(50 * time.Millisecond)
			return nil, os.ErrPermission
		case "c.css":
			return nil, os.ErrNotExist
		}
		return os.ReadFile(path)
	}

	for i := 0; i < 3; i++ {
		_, err := g.Generate(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "a.css")
		assert.ErrorIs(t, err, os.ErrPermission)
	}
}

func TestGeneratorWriteLeavesNoTempFiles(t *testing.T) {
	dist := t.TempDir()
	writeDist(t, dist, map[string]string{"app.js": "1"})

	g := NewGenerator(dist, defaultManifestConfig(), nil)
	_, err := g.Write(context.Background())
	require.NoError(t, err)
	_, err = g.Write(context.Background())
	require.NoError(t, err)

	entries, err := os.ReadDir(dist)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"app.js", filepath.Base(g.Path())}, names)
}

func TestGeneratorEmptyDist(t *testing.T) {
	dist := t.TempDir()
	g := NewGenerator(dist, defaultManifestConfig(), nil)

	m, err := g.Write(context.Background())
	require.NoError(t, err)
	assert.Empty(t, m)

	data, err := os.ReadFile(g.Path())
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}
