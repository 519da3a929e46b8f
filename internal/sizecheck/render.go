package sizecheck

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mitchellh/colorstring"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by Render.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Render writes report to w in format. Color applies to text only.
func Render(w io.Writer, report *Report, format string, color bool) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		return renderText(w, report, color)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown report format %q (text, json, yaml)", format)
	}
}

func toKB(bytes int64) string {
	return fmt.Sprintf("%.1f", float64(bytes)/1000)
}

// renderText prints one status line and one detail line per record:
//
//	✓ static/dist/js/hello.js
//	  raw: 2.0KB | gzip: 0.5KB | brotli: 0.4KB | limit 20KB
func renderText(w io.Writer, report *Report, color bool) error {
	colorize := colorstring.Colorize{
		Colors:  colorstring.DefaultColors,
		Disable: !color,
		Reset:   true,
	}
	p := message.NewPrinter(language.English)

	if len(report.Records) == 0 {
		_, err := fmt.Fprintln(w, colorize.Color("[yellow]no files matched the size rules"))
		return err
	}

	for _, rec := range report.Records {
		var line, status string
		if rec.OverLimit {
			line = fmt.Sprintf("[bold][red]✗ %s", rec.Path)
			status = fmt.Sprintf("over limit (%s/%gKB)", toKB(rec.GzipBytes), rec.LimitKB)
		} else {
			line = fmt.Sprintf("[green]✓ %s", rec.Path)
			status = fmt.Sprintf("limit %gKB", rec.LimitKB)
		}
		detail := p.Sprintf("[dim]  raw: %sKB | gzip: %sKB | brotli: %sKB | %s (%d bytes gzip)",
			toKB(rec.RawBytes), toKB(rec.GzipBytes), toKB(rec.BrotliBytes), status, rec.GzipBytes)

		if _, err := fmt.Fprintln(w, colorize.Color(line)); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, colorize.Color(detail)); err != nil {
			return err
		}
	}

	over := len(report.OverLimit())
	summary := p.Sprintf("[green]%d files within budget", len(report.Records)-over)
	if over > 0 {
		summary = p.Sprintf("[bold][red]%d of %d files over budget", over, len(report.Records))
	}
	_, err := fmt.Fprintln(w, colorize.Color("\n"+summary))

	return err
}
