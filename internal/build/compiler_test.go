package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetkit/internal/errors"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", Production, false},
		{"production", Production, false},
		{"Development", Development, false},
		{"dev", Development, false},
		{"staging", Production, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "development", Development.String())
}

func TestEngines(t *testing.T) {
	got, err := engines([]string{"chrome58", "Safari 11.1", "edge16"})
	require.NoError(t, err)
	assert.Equal(t, []api.Engine{
		{Name: api.EngineChrome, Version: "58"},
		{Name: api.EngineSafari, Version: "11.1"},
		{Name: api.EngineEdge, Version: "16"},
	}, got)

	_, err = engines([]string{"58"})
	assert.Error(t, err)
	_, err = engines([]string{"lynx2"})
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	assert.NoError(t, validateCommand("tailwindcss", []string{"--input", "a.css"}))
	assert.Error(t, validateCommand("", nil))
	assert.Error(t, validateCommand("sass", []string{"a.scss; rm -rf /"}))
	assert.Error(t, validateCommand("sass$(id)", nil))
}

func TestSplitCommand(t *testing.T) {
	name, args := splitCommand("npx tailwindcss --minify")
	assert.Equal(t, "npx", name)
	assert.Equal(t, []string{"tailwindcss", "--minify"}, args)

	name, args = splitCommand("   ")
	assert.Empty(t, name)
	assert.Empty(t, args)
}

func TestExecRunnerMissingCommand(t *testing.T) {
	_, err := ExecRunner(context.Background(), "", "assetkit-no-such-binary", nil, nil)
	require.Error(t, err)

	var ae *errors.AssetError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, errors.CodeCommandMissing, ae.Code)
}

func TestDiagnostics(t *testing.T) {
	got := diagnostics([]api.Message{
		{Text: "Expected identifier", Location: &api.Location{File: "a.js", Line: 3, Column: 4}},
		{Text: "no location"},
	}, errors.ErrorSeverityError)

	require.Len(t, got, 2)
	assert.Equal(t, "a.js", got[0].File)
	assert.Equal(t, 3, got[0].Line)
	assert.Equal(t, 5, got[0].Column)
	assert.Equal(t, "error: no location", got[1].Error())
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.css")

	require.NoError(t, WriteFileAtomic(path, []byte("first")))
	require.NoError(t, WriteFileAtomic(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestBuildMetrics(t *testing.T) {
	m := NewBuildMetrics()
	m.RecordBuild(Result{Duration: 10 * time.Millisecond})
	m.RecordBuild(Result{Duration: 30 * time.Millisecond, Err: assert.AnError})
	m.RecordCoalesced()

	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap.TotalBuilds)
	assert.Equal(t, int64(1), snap.FailedBuilds)
	assert.Equal(t, int64(1), snap.Coalesced)
	assert.Equal(t, 20*time.Millisecond, snap.AverageDuration)
	assert.Equal(t, 50.0, m.GetSuccessRate())

	m.Reset()
	assert.Equal(t, int64(0), m.GetSnapshot().TotalBuilds)
	assert.Equal(t, 0.0, m.GetSuccessRate())
}
