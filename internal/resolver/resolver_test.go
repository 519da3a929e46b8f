package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeFS(files map[string]string) ReadFunc {
	return func(path string) ([]byte, error) {
		contents, ok := files[path]
		if !ok {
			return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
		}
		return []byte(contents), nil
	}
}

func TestSubstringResolver(t *testing.T) {
	files := map[string]string{
		"src/css/modules/button.css": `@import "../partials/colors.css";` + "\n.btn { color: red; }",
		"src/css/modules/card.css":   `@import "../partials/spacing.css";`,
		"src/css/modules/theme.css":  `/* uses colors.css and spacing.css */`,
	}
	modules := []string{"src/css/modules/button.css", "src/css/modules/card.css", "src/css/modules/theme.css"}
	r := NewSubstringResolver(nil, 2, fakeFS(files))

	tests := []struct {
		name    string
		partial string
		want    []string
	}{
		{"comment mention counts", "src/css/partials/spacing.css", []string{"src/css/modules/card.css", "src/css/modules/theme.css"}},
		{"enumeration order kept", "src/css/partials/colors.css", []string{"src/css/modules/button.css", "src/css/modules/theme.css"}},
		{"no parent", "src/css/partials/type.css", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.partial, modules)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubstringResolverIsNotPathAware(t *testing.T) {
	files := map[string]string{
		"m.css": `@import "vendor/colors.css";`,
	}
	r := NewSubstringResolver(nil, 1, fakeFS(files))

	got, err := r.Resolve(context.Background(), "src/css/partials/colors.css", []string{"m.css"})
	require.NoError(t, err)
	assert.Equal(t, []string{"m.css"}, got)
}

func TestResolverSkipsUnreadableModules(t *testing.T) {
	files := map[string]string{
		"a.css": `@import "colors.css";`,
		"c.css": `@import "colors.css";`,
	}
	r := NewSubstringResolver(nil, 4, fakeFS(files))

	got, err := r.Resolve(context.Background(), "colors.css", []string{"a.css", "missing.css", "c.css"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.css", "c.css"}, got)
}

func TestResolverDeduplicates(t *testing.T) {
	files := map[string]string{"a.css": `@import "colors.css";`}
	r := NewSubstringResolver(nil, 4, fakeFS(files))

	got, err := r.Resolve(context.Background(), "colors.css", []string{"a.css", "a.css"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.css"}, got)
}

func TestResolverBoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	read := func(path string) ([]byte, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		defer atomic.AddInt32(&inFlight, -1)
		return []byte("colors.css"), nil
	}

	var modules []string
	for i := 0; i < 32; i++ {
		modules = append(modules, fmt.Sprintf("m%02d.css", i))
	}

	r := NewSubstringResolver(nil, 3, read)
	got, err := r.Resolve(context.Background(), "colors.css", modules)
	require.NoError(t, err)
	assert.Equal(t, modules, got)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestResolverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewSubstringResolver(nil, 1, fakeFS(map[string]string{"a.css": "colors.css"}))
	_, err := r.Resolve(ctx, "colors.css", []string{"a.css"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolverReadsDisk(t *testing.T) {
	dir := t.TempDir()
	button := filepath.Join(dir, "button.css")
	require.NoError(t, os.WriteFile(button, []byte(`@import "./partials/colors.css";`), 0o644))

	r := NewSubstringResolver(nil, 0, nil)
	got, err := r.Resolve(context.Background(), filepath.Join(dir, "partials", "colors.css"), []string{button})
	require.NoError(t, err)
	assert.Equal(t, []string{button}, got)
}

func TestSpecifiers(t *testing.T) {
	src := `
import Alpine from 'alpinejs'
import { debounce, throttle } from "../partials/timing.js"
import "./partials/polyfills"
export { format } from './partials/format'
export * from "./partials/all.js"
const legacy = require('./partials/legacy')
const lazy = () => import("./partials/lazy.js")
// important: not an import
`
	assert.Equal(t, []string{
		"alpinejs",
		"../partials/timing.js",
		"./partials/polyfills",
		"./partials/format",
		"./partials/all.js",
		"./partials/legacy",
		"./partials/lazy.js",
	}, Specifiers([]byte(src)))
}

func TestImportResolver(t *testing.T) {
	files := map[string]string{
		"src/js/modules/a.js": `import { debounce } from "../partials/timing.js"`,
		"src/js/modules/b.js": `import format from '../partials/format'`,
		"src/js/modules/c.js": `const timing = "timing.js is mentioned but not imported"`,
		"src/js/modules/d.js": `import x from './timingx.js'`,
	}
	modules := []string{"src/js/modules/a.js", "src/js/modules/b.js", "src/js/modules/c.js", "src/js/modules/d.js"}
	r := NewImportResolver(nil, 2, fakeFS(files))

	tests := []struct {
		partial string
		want    []string
	}{
		{"src/js/partials/timing.js", []string{"src/js/modules/a.js"}},
		{"src/js/partials/format.js", []string{"src/js/modules/b.js"}},
		{"src/js/partials/unused.js", nil},
	}

	for _, tt := range tests {
		t.Run(tt.partial, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.partial, modules)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolversSatisfyInterface(t *testing.T) {
	var _ Resolver = NewSubstringResolver(nil, 0, nil)
	var _ Resolver = NewImportResolver(nil, 0, nil)
}
