// Package artifact holds the filesystem stages shared by the conversion
// pipelines: reading a staged source, writing an output next to it, and
// scoped intermediate files.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/mediaflow/internal/domain"
	"github.com/dunamismax/mediaflow/internal/id"
)

type Source struct {
	Path string
	Data []byte
	Size int64
}

// Dir is the directory outputs and intermediates are written to.
func (s Source) Dir() string {
	return filepath.Dir(s.Path)
}

type Output struct {
	Path  string
	Bytes int64
}

type Fetcher interface {
	Fetch(ctx context.Context, path string) (Source, error)
}

type Emitter interface {
	Emit(ctx context.Context, dir, name string, data []byte) (Output, error)
}

type LocalFileFetcher struct{}

// Fetch reads a staged source. Missing, empty and directory paths are all
// reported as MissingFile.
func (LocalFileFetcher) Fetch(_ context.Context, path string) (Source, error) {
	if strings.TrimSpace(path) == "" {
		return Source{}, domain.Errorf(domain.KindMissingFile, "source path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Source{}, domain.Errorf(domain.KindMissingFile, "source file not found: %s", filepath.Base(path))
		}
		return Source{}, domain.Wrap(domain.KindMissingFile, err, "stat source file")
	}
	if info.IsDir() {
		return Source{}, domain.Errorf(domain.KindMissingFile, "source path is a directory: %s", filepath.Base(path))
	}
	if info.Size() == 0 {
		return Source{}, domain.Errorf(domain.KindMissingFile, "source file is empty: %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, domain.Wrap(domain.KindMissingFile, err, "read source file")
	}

	return Source{Path: path, Data: data, Size: info.Size()}, nil
}

type LocalFileEmitter struct{}

// Emit writes data to dir/name and reports the on-disk size. A file that
// cannot be found after the write is an EncodeFailure.
func (LocalFileEmitter) Emit(_ context.Context, dir, name string, data []byte) (Output, error) {
	if strings.TrimSpace(name) == "" {
		return Output{}, domain.Errorf(domain.KindEncodeFailure, "output name is required")
	}

	fullPath := filepath.Join(dir, name)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return Output{}, domain.Wrap(domain.KindEncodeFailure, err, "write output file")
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return Output{}, domain.Wrap(domain.KindEncodeFailure, err, "output file missing after write: %s", name)
	}

	return Output{Path: fullPath, Bytes: info.Size()}, nil
}

// OutputName returns "{stem}_{8hex}.{token}" for a source filename.
func OutputName(sourceFilename, token string) string {
	base := filepath.Base(strings.TrimSpace(sourceFilename))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "output"
	}
	return fmt.Sprintf("%s_%s.%s", stem, id.Short(), domain.NormalizeToken(token))
}

// SourceToken returns the normalized extension of a filename without the dot.
func SourceToken(filename string) string {
	return domain.NormalizeToken(filepath.Ext(filename))
}
