package build

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/conneroisu/assetkit/internal/errors"
)

// WriteFileAtomic writes data next to path and renames it into place, so a
// reader never sees a half-written artifact.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewIOError(errors.CodeWriteFailed, "cannot create output directory", err).WithFile(path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.NewIOError(errors.CodeWriteFailed, "cannot create temp file", err).WithFile(path)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewIOError(errors.CodeWriteFailed, "cannot write temp file", err).WithFile(path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError(errors.CodeWriteFailed, "cannot close temp file", err).WithFile(path)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError(errors.CodeWriteFailed, "cannot set artifact permissions", err).WithFile(path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError(errors.CodeWriteFailed, fmt.Sprintf("cannot rename into %s", path), err).WithFile(path)
	}

	return nil
}
