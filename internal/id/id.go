package id

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random 32-char hex id.
func New() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Short returns the first 8 hex chars of a fresh id. Used to suffix output
// filenames.
func Short() string {
	return New()[:8]
}
