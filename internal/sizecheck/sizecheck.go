// Package sizecheck measures built artifacts against per-pattern budgets.
//
// A file is over budget when its gzip-compressed size exceeds the rule's
// limit in kilobytes (1 KB = 1000 bytes). The audit only reports; callers
// decide whether an over-budget file is fatal.
package sizecheck

import (
	"bytes"
	"context"
	"os"
	"sort"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/conneroisu/assetkit/internal/config"
	"github.com/conneroisu/assetkit/internal/errors"
	"github.com/conneroisu/assetkit/internal/source"
)

// Record is the measurement of one file against one rule.
type Record struct {
	Path        string  `json:"path" yaml:"path"`
	Pattern     string  `json:"pattern" yaml:"pattern"`
	RawBytes    int64   `json:"raw_bytes" yaml:"raw_bytes"`
	GzipBytes   int64   `json:"gzip_bytes" yaml:"gzip_bytes"`
	BrotliBytes int64   `json:"brotli_bytes" yaml:"brotli_bytes"`
	LimitKB     float64 `json:"limit_kb" yaml:"limit_kb"`
	OverLimit   bool    `json:"over_limit" yaml:"over_limit"`
}

// IsOverLimit applies the budget rule to a gzip size.
func IsOverLimit(gzipBytes int64, limitKB float64) bool {
	return float64(gzipBytes) > limitKB*1000
}

// Report holds the records of one audit, within-limit records first.
type Report struct {
	Records []Record `json:"records" yaml:"records"`
}

// OverLimit returns the records that exceed their budget.
func (r *Report) OverLimit() []Record {
	var over []Record
	for _, rec := range r.Records {
		if rec.OverLimit {
			over = append(over, rec)
		}
	}

	return over
}

// Auditor measures files matched by size rules.
type Auditor struct {
	rules []config.SizeRule
	read  func(string) ([]byte, error)
}

// NewAuditor creates an Auditor for rules.
func NewAuditor(rules []config.SizeRule) *Auditor {
	return &Auditor{rules: rules, read: os.ReadFile}
}

// Audit measures every file matched by every rule. Records keep rule order
// and glob order; a stable sort then moves over-limit records to the end.
func (a *Auditor) Audit(ctx context.Context) (*Report, error) {
	report := &Report{}

	for _, rule := range a.rules {
		files, err := source.Enumerate([]string{rule.Pattern})
		if err != nil {
			return nil, err
		}

		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			data, err := a.read(file)
			if err != nil {
				return nil, errors.NewIOError(errors.CodeReadFailed, "cannot read file for size check", err).WithFile(file)
			}

			rec, err := Measure(data)
			if err != nil {
				return nil, errors.NewIOError(errors.CodeReadFailed, "cannot compress file", err).WithFile(file)
			}
			rec.Path = file
			rec.Pattern = rule.Pattern
			rec.LimitKB = rule.Limit
			rec.OverLimit = IsOverLimit(rec.GzipBytes, rule.Limit)
			report.Records = append(report.Records, rec)
		}
	}

	SortRecords(report.Records)

	return report, nil
}

// SortRecords stably groups within-limit records before over-limit ones.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return !records[i].OverLimit && records[j].OverLimit
	})
}

// Measure computes the raw, gzip and brotli sizes of data.
func Measure(data []byte) (Record, error) {
	gz, err := gzipSize(data)
	if err != nil {
		return Record{}, err
	}
	br, err := brotliSize(data)
	if err != nil {
		return Record{}, err
	}

	return Record{
		RawBytes:    int64(len(data)),
		GzipBytes:   gz,
		BrotliBytes: br,
	}, nil
}

func gzipSize(data []byte) (int64, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(data); err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}

	return int64(buf.Len()), nil
}

func brotliSize(data []byte) (int64, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	if _, err := w.Write(data); err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}

	return int64(buf.Len()), nil
}
