// Package manifest writes the cache-busting manifest of a dist directory.
//
// Every matched file maps its bare filename to "filename?ver=<hash>", where
// the hash is the leading hex characters of the MD5 digest of its bytes. The
// hash depends on content only: reverting a file restores its previous
// version string, so clients keep their cached copy.
package manifest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/conneroisu/assetkit/internal/build"
	"github.com/conneroisu/assetkit/internal/config"
	"github.com/conneroisu/assetkit/internal/errors"
	"github.com/conneroisu/assetkit/internal/logging"
	"github.com/conneroisu/assetkit/internal/source"
)

// Manifest maps bare filenames to versioned references.
type Manifest map[string]string

// Keys returns the filenames in sorted order.
func (m Manifest) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// Hash returns the first n hex characters of the MD5 digest of data.
func Hash(data []byte, n int) string {
	sum := md5.Sum(data)
	h := hex.EncodeToString(sum[:])
	if n > 0 && n < len(h) {
		return h[:n]
	}

	return h
}

// Generator hashes the files of a dist directory.
type Generator struct {
	dist        string
	extensions  []string
	hashLength  int
	file        string
	concurrency int
	logger      logging.Logger
	read        func(string) ([]byte, error)
}

// NewGenerator creates a Generator for the given dist and manifest settings.
func NewGenerator(dist string, cfg config.ManifestConfig, logger logging.Logger) *Generator {
	if logger == nil {
		logger = logging.NopLogger{}
	}

	return &Generator{
		dist:        dist,
		extensions:  cfg.Extensions,
		hashLength:  cfg.HashLength,
		file:        cfg.File,
		concurrency: 8,
		logger:      logger.WithComponent("manifest"),
		read:        os.ReadFile,
	}
}

// Path is where the manifest is written.
func (g *Generator) Path() string {
	return filepath.Join(g.dist, g.file)
}

// Pattern is the glob of files included in the manifest.
func (g *Generator) Pattern() string {
	exts := g.extensions
	if len(exts) == 1 {
		return filepath.Join(g.dist, "**", "*."+exts[0])
	}

	return filepath.Join(g.dist, "**", "*.{"+strings.Join(exts, ",")+"}")
}

// Generate hashes every matched file. Any read failure aborts generation.
func (g *Generator) Generate(ctx context.Context) (Manifest, error) {
	files, err := source.Enumerate([]string{g.Pattern()})
	if err != nil {
		return nil, err
	}

	manifestPath := filepath.Clean(g.Path())
	var inputs []string
	for _, f := range files {
		if f != manifestPath {
			inputs = append(inputs, f)
		}
	}

	hashes, err := g.hashFiles(ctx, inputs)
	if err != nil {
		return nil, err
	}

	m := make(Manifest, len(inputs))
	owner := make(map[string]string, len(inputs))
	for i, file := range inputs {
		name := filepath.Base(file)
		if prev, ok := owner[name]; ok {
			g.logger.Warn(ctx, nil, "Duplicate filename in manifest, later path wins",
				"name", name, "previous", prev, "path", file)
		}
		owner[name] = file
		m[name] = fmt.Sprintf("%s?ver=%s", name, hashes[i])
	}

	return m, nil
}

// hashFiles hashes files with bounded parallelism, keeping input order.
func (g *Generator) hashFiles(ctx context.Context, files []string) ([]string, error) {
	hashes := make([]string, len(files))
	failures := make([]error, len(files))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, g.concurrency)

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}

		wg.Add(1)
		go func(i int, file string) {
			defer wg.Done()
			semaphore <- struct{}{}        // Acquire semaphore
			defer func() { <-semaphore }() // Release semaphore

			data, err := g.read(file)
			if err != nil {
				failures[i] = errors.NewIOError(errors.CodeHashFailed, "cannot read file for hashing", err).WithFile(file)
				return
			}
			hashes[i] = Hash(data, g.hashLength)
		}(i, file)
	}
	wg.Wait()

	// report the first failure in enumeration order, whichever finished first
	for _, err := range failures {
		if err != nil {
			return nil, err
		}
	}

	return hashes, nil
}

// Write generates the manifest and writes it with sorted keys. Nothing is
// written when generation fails.
func (g *Generator) Write(ctx context.Context) (Manifest, error) {
	op := logging.StartOperation(g.logger, "manifest", "dist", g.dist)

	m, err := g.Generate(ctx)
	if err != nil {
		op.EndWithError(ctx, err, "Manifest not written")
		return nil, err
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.NewInternalError(errors.CodeWriteFailed, "cannot encode manifest", err)
	}

	path := g.Path()
	if err := build.WriteFileAtomic(path, data); err != nil {
		op.EndWithError(ctx, err, "Manifest not written")
		return nil, err
	}

	op.End(ctx, fmt.Sprintf("Created file hashes in %s", path))

	return m, nil
}
