package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidFilename is returned for names that would escape the output
// directory or are not a single path element.
var ErrInvalidFilename = errors.New("invalid file name")

// DirSink stores documents as files in one directory. Files with the same
// name are overwritten.
type DirSink struct {
	dir string
}

// NewDirSink creates a DirSink writing to dir. The directory is created on
// the first Store.
func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

// Dir returns the output directory.
func (s *DirSink) Dir() string {
	return s.dir
}

// Store writes content to filename inside the output directory and reports
// whether a file with that name already existed.
func (s *DirSink) Store(ctx context.Context, filename string, content []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if filename == "" || filename == "." || filename == ".." ||
		strings.ContainsAny(filename, `/\`) {
		return false, fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return false, fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(s.dir, filename)

	overwrote := false
	if _, err := os.Stat(path); err == nil {
		overwrote = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := os.WriteFile(path, content, 0o644); err != nil { //nolint:gosec // mirrored pages are meant to be world readable
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return overwrote, nil
}
