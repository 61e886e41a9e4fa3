package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dunamismax/mediaflow/internal/id"
)

// Scratch is an intermediate file scoped to one conversion call. Callers
// defer Release right after NewScratch so the file is removed on every
// exit path.
type Scratch struct {
	path string
}

func NewScratch(dir, ext string) *Scratch {
	return &Scratch{path: filepath.Join(dir, fmt.Sprintf("temp_%s.%s", id.New(), ext))}
}

func (s *Scratch) Path() string {
	return s.path
}

// Release removes the file. Calling it when the file was never written is
// fine.
func (s *Scratch) Release() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove scratch file %s: %w", s.path, err)
	}
	return nil
}
