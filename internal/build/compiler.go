package build

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/assetkit/internal/errors"
	"github.com/conneroisu/assetkit/internal/source"
)

// Compiler turns module paths into artifacts on disk.
type Compiler interface {
	Kind() source.Kind
	// Compile builds modules and writes their artifacts. A failed
	// compilation writes nothing for the modules it concerns.
	Compile(ctx context.Context, modules []string) (*Output, error)
}

// Output describes what one compilation produced.
type Output struct {
	Artifacts []string
	Warnings  []errors.BuildError
}

// Runner executes an external command with stdin and returns its stdout.
type Runner func(ctx context.Context, dir, name string, args []string, stdin []byte) ([]byte, error)

// ExecRunner runs commands with os/exec. Stderr is folded into the error.
func ExecRunner(ctx context.Context, dir, name string, args []string, stdin []byte) ([]byte, error) {
	if err := validateCommand(name, args); err != nil {
		return nil, errors.NewTransformError(errors.CodeCommandMissing, "command validation failed", err)
	}
	if _, err := exec.LookPath(name); err != nil {
		return nil, errors.NewTransformError(errors.CodeCommandMissing, fmt.Sprintf("%s not found in PATH", name), err)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s cancelled: %w", name, ctx.Err())
		}
		return nil, fmt.Errorf("%s failed: %w\nOutput: %s", name, err, strings.TrimSpace(stderr.String()))
	}

	return stdout.Bytes(), nil
}

// validateCommand rejects shell metacharacters in the command and its
// arguments. Commands come from configuration and are never run via a shell.
func validateCommand(name string, args []string) error {
	if name == "" {
		return fmt.Errorf("empty command")
	}
	for _, s := range append([]string{name}, args...) {
		if strings.ContainsAny(s, ";&|$`<>\n") {
			return fmt.Errorf("invalid argument %q: contains shell metacharacters", s)
		}
	}

	return nil
}

// splitCommand splits a configured command line on whitespace.
func splitCommand(command string) (string, []string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil
	}

	return fields[0], fields[1:]
}

// diagnostics converts esbuild messages into build errors.
func diagnostics(msgs []api.Message, severity errors.ErrorSeverity) []errors.BuildError {
	out := make([]errors.BuildError, 0, len(msgs))
	now := time.Now()
	for _, msg := range msgs {
		be := errors.BuildError{
			Message:   msg.Text,
			Severity:  severity,
			Timestamp: now,
		}
		if msg.Location != nil {
			be.File = msg.Location.File
			be.Line = msg.Location.Line
			be.Column = msg.Location.Column + 1
		}
		out = append(out, be)
	}

	return out
}

// engines parses browser targets such as "chrome58" or "safari11.1".
func engines(targets []string) ([]api.Engine, error) {
	names := map[string]api.EngineName{
		"chrome":  api.EngineChrome,
		"edge":    api.EngineEdge,
		"firefox": api.EngineFirefox,
		"ie":      api.EngineIE,
		"ios":     api.EngineIOS,
		"node":    api.EngineNode,
		"opera":   api.EngineOpera,
		"safari":  api.EngineSafari,
	}

	out := make([]api.Engine, 0, len(targets))
	for _, target := range targets {
		t := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(target), " ", ""))
		i := strings.IndexAny(t, "0123456789")
		if i <= 0 {
			return nil, fmt.Errorf("invalid browser target %q", target)
		}
		name, ok := names[t[:i]]
		if !ok {
			return nil, fmt.Errorf("unsupported browser %q", t[:i])
		}
		out = append(out, api.Engine{Name: name, Version: t[i:]})
	}

	return out, nil
}
