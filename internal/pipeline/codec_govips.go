//go:build govips && cgo

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/rs/zerolog"

	"github.com/dunamismax/mediaflow/internal/domain"
)

type vipsCodec struct{}

func newHEIFCodec(_ Options, logger zerolog.Logger) (HEIFCodec, error) {
	if err := Startup(); err != nil {
		return nil, err
	}
	logger.Debug().Msg("libvips heif codec enabled")
	return vipsCodec{}, nil
}

func (vipsCodec) Name() string {
	return "libvips"
}

func (vipsCodec) Decode(_ context.Context, data []byte, f domain.ImageFormat) (image.Image, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("vips load %s: %w", f, err)
	}
	defer ref.Close()

	img, err := ref.ToImage(vips.NewDefaultPNGExportParams())
	if err != nil {
		return nil, fmt.Errorf("vips export %s: %w", f, err)
	}
	return img, nil
}

func (vipsCodec) Encode(_ context.Context, img image.Image, f domain.ImageFormat, quality int, _ string) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("stage vips input: %w", err)
	}

	ref, err := vips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("vips load staged input: %w", err)
	}
	defer ref.Close()

	switch f {
	case domain.ImageAVIF:
		params := vips.NewAvifExportParams()
		params.Quality = quality
		data, _, err := ref.ExportAvif(params)
		if err != nil {
			return nil, fmt.Errorf("vips encode avif: %w", err)
		}
		return data, nil
	case domain.ImageHEIF:
		params := vips.NewHeifExportParams()
		params.Quality = quality
		data, _, err := ref.ExportHeif(params)
		if err != nil {
			return nil, fmt.Errorf("vips encode heif: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("libvips codec cannot encode %s", f)
	}
}
