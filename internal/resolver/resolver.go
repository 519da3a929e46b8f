// Package resolver finds the modules that reference a changed partial.
//
// Resolution is textual. No dependency graph is kept between events; every
// call re-reads the candidate modules, so a reference added or removed a
// moment ago is honored by the next event.
package resolver

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/conneroisu/assetkit/internal/errors"
	"github.com/conneroisu/assetkit/internal/logging"
)

// DefaultConcurrency bounds the number of modules read at once.
const DefaultConcurrency = 8

// Resolver maps a partial to the modules that include it.
type Resolver interface {
	// Resolve returns the subset of modules referencing partialPath, in the
	// order given. An unreadable module is logged and left out.
	Resolve(ctx context.Context, partialPath string, modules []string) ([]string, error)
}

// ReadFunc reads one module. os.ReadFile is used when nil.
type ReadFunc func(path string) ([]byte, error)

// matchFunc decides whether contents reference the partial named name.
type matchFunc func(contents []byte, name string) bool

// scanner holds the concurrent read loop shared by every resolver.
type scanner struct {
	logger      logging.Logger
	concurrency int
	read        ReadFunc
	match       matchFunc
}

func newScanner(logger logging.Logger, concurrency int, read ReadFunc, match matchFunc) scanner {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if read == nil {
		read = os.ReadFile
	}

	return scanner{
		logger:      logger.WithComponent("resolver"),
		concurrency: concurrency,
		read:        read,
		match:       match,
	}
}

func (s scanner) resolve(ctx context.Context, partialPath string, modules []string) ([]string, error) {
	name := filepath.Base(partialPath)
	if name == "" || name == "." || len(modules) == 0 {
		return nil, nil
	}

	matched := make([]bool, len(modules))
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.concurrency)

	for i, module := range modules {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, module string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			contents, err := s.read(module)
			if err != nil {
				s.logger.Warn(ctx, errors.NewResolveError(module, err), "Skipping unreadable module",
					"partial", partialPath)
				return
			}
			matched[i] = s.match(contents, name)
		}(i, module)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var parents []string
	seen := make(map[string]bool)
	for i, module := range modules {
		if matched[i] && !seen[module] {
			seen[module] = true
			parents = append(parents, module)
		}
	}

	return parents, nil
}

// SubstringResolver matches modules whose contents contain the partial's bare
// filename anywhere. It is the stylesheet strategy: @import lines name the
// partial file, and a false positive only costs a redundant rebuild.
type SubstringResolver struct {
	scanner
}

// NewSubstringResolver creates a SubstringResolver reading with read.
func NewSubstringResolver(logger logging.Logger, concurrency int, read ReadFunc) *SubstringResolver {
	return &SubstringResolver{scanner: newScanner(logger, concurrency, read, containsName)}
}

// Resolve implements Resolver.
func (r *SubstringResolver) Resolve(ctx context.Context, partialPath string, modules []string) ([]string, error) {
	return r.resolve(ctx, partialPath, modules)
}

func containsName(contents []byte, name string) bool {
	return bytes.Contains(contents, []byte(name))
}

// ImportResolver matches script modules that import the partial. A specifier
// matches when its last path segment equals the partial filename, with or
// without the extension. Unlike SubstringResolver, a bare mention of the
// filename outside an import does not match.
type ImportResolver struct {
	scanner
}

// NewImportResolver creates an ImportResolver reading with read.
func NewImportResolver(logger logging.Logger, concurrency int, read ReadFunc) *ImportResolver {
	return &ImportResolver{scanner: newScanner(logger, concurrency, read, importsName)}
}

// Resolve implements Resolver.
func (r *ImportResolver) Resolve(ctx context.Context, partialPath string, modules []string) ([]string, error) {
	return r.resolve(ctx, partialPath, modules)
}

var importSpecifier = regexp.MustCompile(
	`(?:\bimport\s*(?:[\w$*{}\s,]+?\s*from\s*)?|\bexport\s*[\w$*{}\s,]*?\s*from\s*|\brequire\s*\(\s*|\bimport\s*\(\s*)["'\x60]([^"'\x60\n]+)["'\x60]`,
)

// Specifiers returns every module specifier referenced by import, export-from,
// require and dynamic import forms, in source order.
func Specifiers(contents []byte) []string {
	var specs []string
	for _, m := range importSpecifier.FindAllSubmatch(contents, -1) {
		specs = append(specs, string(m[1]))
	}

	return specs
}

func importsName(contents []byte, name string) bool {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	for _, specifier := range Specifiers(contents) {
		last := specifier
		if i := strings.LastIndexAny(specifier, `/\`); i >= 0 {
			last = specifier[i+1:]
		}
		if last == name || last == stem {
			return true
		}
	}

	return false
}
