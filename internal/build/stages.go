package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/assetkit/internal/errors"
)

// Unit is the stylesheet flowing through the stages of one compilation.
type Unit struct {
	// Module is the source path the unit was read from.
	Module string
	// Artifact is the path the result is written to.
	Artifact string
	Contents []byte
	// Map is an external source map, set only by the final stage.
	Map []byte
	// Warnings collects non-fatal diagnostics from every stage.
	Warnings []errors.BuildError
}

// Stage transforms a Unit in place.
type Stage interface {
	Name() string
	Apply(ctx context.Context, unit *Unit) error
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, unit *Unit) error
}

func (s StageFunc) Name() string { return s.StageName }

func (s StageFunc) Apply(ctx context.Context, unit *Unit) error { return s.Fn(ctx, unit) }

// assetExternals keeps url() references to static files untouched when
// stylesheets are bundled.
var assetExternals = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg", "*.webp", "*.avif", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.otf", "*.eot",
}

// sassStage compiles SCSS through the configured Sass CLI.
type sassStage struct {
	command string
	run     Runner
}

func (s *sassStage) Name() string { return "sass" }

func (s *sassStage) Apply(ctx context.Context, unit *Unit) error {
	name, args := splitCommand(s.command)
	dir := filepath.Dir(unit.Module)
	args = append(args, "--stdin", "--no-source-map", "--load-path", dir)
	if filepath.Ext(unit.Module) == ".sass" {
		args = append(args, "--indented")
	}

	out, err := s.run(ctx, "", name, args, unit.Contents)
	if err != nil {
		return err
	}
	unit.Contents = out

	return nil
}

// importsStage inlines @import rules with esbuild's CSS bundler.
type importsStage struct{}

func (importsStage) Name() string { return "imports" }

func (importsStage) Apply(_ context.Context, unit *Unit) error {
	dir, err := filepath.Abs(filepath.Dir(unit.Module))
	if err != nil {
		return err
	}

	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   string(unit.Contents),
			ResolveDir: dir,
			Sourcefile: unit.Module,
			Loader:     api.LoaderCSS,
		},
		Bundle:   true,
		Outfile:  unit.Artifact,
		External: assetExternals,
		Write:    false,
		LogLevel: api.LogLevelSilent,
	})
	unit.Warnings = append(unit.Warnings, diagnostics(result.Warnings, errors.ErrorSeverityWarning)...)
	if len(result.Errors) > 0 {
		return errors.NewTransformError(errors.CodeBundleFailed, "cannot inline imports", nil).
			WithDiagnostics(diagnostics(result.Errors, errors.ErrorSeverityError))
	}

	for _, file := range result.OutputFiles {
		if strings.HasSuffix(file.Path, ".css") {
			unit.Contents = file.Contents
			return nil
		}
	}

	return errors.NewTransformError(errors.CodeBundleFailed, "bundler produced no stylesheet", nil)
}

// utilitiesStage runs the utility-class generator over the stylesheet.
type utilitiesStage struct {
	command string
	config  string
	run     Runner
}

func (s *utilitiesStage) Name() string { return "utilities" }

func (s *utilitiesStage) Apply(ctx context.Context, unit *Unit) error {
	// imports are already inlined, so the input can live outside every
	// watched root; a temp file next to the module would trigger a rebuild
	in, err := os.CreateTemp("", "assetkit-utilities-*.css")
	if err != nil {
		return err
	}
	defer os.Remove(in.Name())

	if _, err := in.Write(unit.Contents); err != nil {
		in.Close()
		return err
	}
	if err := in.Close(); err != nil {
		return err
	}

	name, args := splitCommand(s.command)
	args = append(args, "--input", in.Name())
	if s.config != "" {
		args = append(args, "--config", s.config)
	}

	out, err := s.run(ctx, "", name, args, nil)
	if err != nil {
		return err
	}
	unit.Contents = out

	return nil
}

// targetsStage lowers syntax and adds vendor prefixes for the configured
// browsers.
type targetsStage struct {
	engines []api.Engine
}

func (s *targetsStage) Name() string { return "targets" }

func (s *targetsStage) Apply(_ context.Context, unit *Unit) error {
	result := api.Transform(string(unit.Contents), api.TransformOptions{
		Loader:     api.LoaderCSS,
		Sourcefile: unit.Module,
		Engines:    s.engines,
		LogLevel:   api.LogLevelSilent,
	})
	unit.Warnings = append(unit.Warnings, diagnostics(result.Warnings, errors.ErrorSeverityWarning)...)
	if len(result.Errors) > 0 {
		return errors.NewTransformError(errors.CodeStageFailed, "cannot lower stylesheet", nil).
			WithDiagnostics(diagnostics(result.Errors, errors.ErrorSeverityError))
	}
	unit.Contents = result.Code

	return nil
}

// purgeStage drops rulesets that match nothing in the content scope.
type purgeStage struct {
	content  []string
	safelist []string
	read     func(string) ([]byte, error)
}

func (s *purgeStage) Name() string { return "purge" }

func (s *purgeStage) Apply(_ context.Context, unit *Unit) error {
	used, err := collectUsedNames(s.content, s.read)
	if err != nil {
		return err
	}
	for _, name := range s.safelist {
		used[name] = true
	}

	out, err := purgeStylesheet(unit.Contents, used)
	if err != nil {
		return err
	}
	unit.Contents = out

	return nil
}

// finalStage emits the source map and, in production, minifies.
type finalStage struct {
	mode    Mode
	engines []api.Engine
}

func (s *finalStage) Name() string {
	if s.mode == Development {
		return "sourcemap"
	}

	return "minify"
}

func (s *finalStage) Apply(_ context.Context, unit *Unit) error {
	opts := api.TransformOptions{
		Loader:     api.LoaderCSS,
		Sourcefile: unit.Module,
		Engines:    s.engines,
		Sourcemap:  api.SourceMapInline,
		LogLevel:   api.LogLevelSilent,
	}
	if s.mode == Production {
		opts.Sourcemap = api.SourceMapExternal
		opts.MinifyWhitespace = true
		opts.MinifySyntax = true
		opts.MinifyIdentifiers = true
	}

	result := api.Transform(string(unit.Contents), opts)
	unit.Warnings = append(unit.Warnings, diagnostics(result.Warnings, errors.ErrorSeverityWarning)...)
	if len(result.Errors) > 0 {
		return errors.NewTransformError(errors.CodeStageFailed, "cannot finalize stylesheet", nil).
			WithDiagnostics(diagnostics(result.Errors, errors.ErrorSeverityError))
	}

	unit.Contents = result.Code
	if s.mode == Production && len(result.Map) > 0 {
		unit.Map = result.Map
		code := bytes.TrimRight(unit.Contents, "\n")
		unit.Contents = append(code, []byte(fmt.Sprintf("\n/*# sourceMappingURL=%s.map */\n", filepath.Base(unit.Artifact)))...)
	}

	return nil
}
