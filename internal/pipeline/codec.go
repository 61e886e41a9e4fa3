package pipeline

import (
	"context"
	"image"

	"github.com/dunamismax/mediaflow/internal/domain"
)

// HEIFCodec decodes and encodes the AVIF/HEIF family. The implementation is
// picked at build time: libvips with the govips tag and cgo, pure Go
// decoders plus an external heif-enc otherwise. Encode writes any
// intermediate files into workDir.
type HEIFCodec interface {
	Name() string
	Decode(ctx context.Context, data []byte, f domain.ImageFormat) (image.Image, error)
	Encode(ctx context.Context, img image.Image, f domain.ImageFormat, quality int, workDir string) ([]byte, error)
}
