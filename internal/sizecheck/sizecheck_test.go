package sizecheck

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/assetkit/internal/config"
)

func TestIsOverLimit(t *testing.T) {
	tests := []struct {
		name    string
		gzip    int64
		limitKB float64
		want    bool
	}{
		{"well under", 14950, 15, false},
		{"exactly at limit", 15000, 15, false},
		{"one byte over", 15001, 15, true},
		{"fractional limit", 12600, 12.5, true},
		{"empty file", 0, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOverLimit(tt.gzip, tt.limitKB))
		})
	}
}

func TestSortRecordsIsStable(t *testing.T) {
	records := []Record{
		{Path: "a", OverLimit: true},
		{Path: "b"},
		{Path: "c", OverLimit: true},
		{Path: "d"},
		{Path: "e"},
	}
	SortRecords(records)

	var order []string
	for _, r := range records {
		order = append(order, r.Path)
	}
	assert.Equal(t, []string{"b", "d", "e", "a", "c"}, order)
}

func TestMeasure(t *testing.T) {
	data := bytes.Repeat([]byte(".btn{color:red}"), 1000)
	rec, err := Measure(data)
	require.NoError(t, err)

	assert.Equal(t, int64(len(data)), rec.RawBytes)
	assert.Greater(t, rec.GzipBytes, int64(0))
	assert.Less(t, rec.GzipBytes, rec.RawBytes)
	assert.Greater(t, rec.BrotliBytes, int64(0))
	assert.Less(t, rec.BrotliBytes, rec.RawBytes)
}

func TestAudit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "js"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "css"), 0o755))

	small := bytes.Repeat([]byte("a"), 2000)
	noisy := make([]byte, 3000)
	_, err := rand.Read(noisy)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "js", "big.js"), noisy, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "js", "small.js"), small, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "css", "app.css"), small, 0o644))

	auditor := NewAuditor([]config.SizeRule{
		{Pattern: filepath.Join(dir, "**", "*.js"), Limit: 1},
		{Pattern: filepath.Join(dir, "**", "*.css"), Limit: 1},
	})

	report, err := auditor.Audit(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Records, 3)

	assert.Equal(t, filepath.Join(dir, "js", "small.js"), report.Records[0].Path)
	assert.Equal(t, filepath.Join(dir, "css", "app.css"), report.Records[1].Path)
	assert.Equal(t, filepath.Join(dir, "js", "big.js"), report.Records[2].Path)
	assert.True(t, report.Records[2].OverLimit)
	assert.Len(t, report.OverLimit(), 1)
	assert.Equal(t, int64(3000), report.Records[2].RawBytes)
}

func TestAuditNoMatches(t *testing.T) {
	auditor := NewAuditor([]config.SizeRule{{Pattern: filepath.Join(t.TempDir(), "*.js"), Limit: 20}})

	report, err := auditor.Audit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Records)
	assert.Empty(t, report.OverLimit())
}

// A 25,600 byte file compressing to 14,950 bytes is within a 15KB budget.
func TestRenderScenarioWithinBudget(t *testing.T) {
	report := &Report{Records: []Record{{
		Path:      "static/dist/css/main.css",
		RawBytes:  25600,
		GzipBytes: 14950,
		LimitKB:   15,
		OverLimit: IsOverLimit(14950, 15),
	}}}
	require.False(t, report.Records[0].OverLimit)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, report, FormatText, false))
	out := buf.String()

	assert.Contains(t, out, "✓ static/dist/css/main.css")
	assert.Contains(t, out, "raw: 25.6KB")
	assert.Contains(t, out, "limit 15KB")
	assert.Contains(t, out, "14,950 bytes gzip")
	assert.Contains(t, out, "1 files within budget")
	assert.NotContains(t, out, "\x1b[")
}

func TestRenderOverBudgetText(t *testing.T) {
	report := &Report{Records: []Record{{
		Path: "static/dist/js/app.js", RawBytes: 80000, GzipBytes: 21000, LimitKB: 20, OverLimit: true,
	}}}

	var plain, colored bytes.Buffer
	require.NoError(t, Render(&plain, report, FormatText, false))
	require.NoError(t, Render(&colored, report, FormatText, true))

	assert.Contains(t, plain.String(), "✗ static/dist/js/app.js")
	assert.Contains(t, plain.String(), "over limit (21.0/20KB)")
	assert.Contains(t, plain.String(), "1 of 1 files over budget")
	assert.Contains(t, colored.String(), "\x1b[")
}

func TestRenderStructured(t *testing.T) {
	report := &Report{Records: []Record{{Path: "a.js", RawBytes: 10, GzipBytes: 30, LimitKB: 1}}}

	var jsonBuf bytes.Buffer
	require.NoError(t, Render(&jsonBuf, report, "JSON", false))
	var decoded Report
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &decoded))
	assert.Equal(t, *report, decoded)

	var yamlBuf bytes.Buffer
	require.NoError(t, Render(&yamlBuf, report, FormatYAML, false))
	assert.True(t, strings.HasPrefix(yamlBuf.String(), "records:"))
	var fromYAML Report
	require.NoError(t, yaml.Unmarshal(yamlBuf.Bytes(), &fromYAML))
	assert.Equal(t, *report, fromYAML)

	assert.Error(t, Render(&bytes.Buffer{}, report, "xml", false))
}
