//go:build !govips || !cgo

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/heic"
	"github.com/rs/zerolog"

	"github.com/dunamismax/mediaflow/internal/artifact"
	"github.com/dunamismax/mediaflow/internal/domain"
)

const avifSpeed = 8

type nativeCodec struct {
	// heifEnc is the resolved heif-enc path; empty when it was not found.
	heifEnc string
}

func newHEIFCodec(opts Options, logger zerolog.Logger) (HEIFCodec, error) {
	path, err := exec.LookPath(opts.HEIFEncoder)
	if err != nil {
		logger.Warn().Str("command", opts.HEIFEncoder).Msg("heif encoder not found in PATH, heif output disabled")
		return nativeCodec{}, nil
	}
	logger.Debug().Str("command", path).Msg("heif encoder registered")
	return nativeCodec{heifEnc: path}, nil
}

func (nativeCodec) Name() string {
	return "native"
}

func (nativeCodec) Decode(_ context.Context, data []byte, f domain.ImageFormat) (image.Image, error) {
	switch f {
	case domain.ImageAVIF:
		return avif.Decode(bytes.NewReader(data))
	case domain.ImageHEIF:
		return heic.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("native codec cannot decode %s", f)
	}
}

func (c nativeCodec) Encode(ctx context.Context, img image.Image, f domain.ImageFormat, quality int, workDir string) ([]byte, error) {
	switch f {
	case domain.ImageAVIF:
		var buf bytes.Buffer
		err := avif.Encode(&buf, img, avif.Options{
			Quality:      quality,
			QualityAlpha: quality,
			Speed:        avifSpeed,
		})
		if err != nil {
			return nil, fmt.Errorf("avif encode: %w", err)
		}
		return buf.Bytes(), nil
	case domain.ImageHEIF:
		return c.encodeHEIF(ctx, img, quality, workDir)
	default:
		return nil, fmt.Errorf("native codec cannot encode %s", f)
	}
}

// encodeHEIF hands a PNG to heif-enc. Both files are scratch files in
// workDir and are removed before returning.
func (c nativeCodec) encodeHEIF(ctx context.Context, img image.Image, quality int, workDir string) ([]byte, error) {
	if c.heifEnc == "" {
		return nil, fmt.Errorf("heif encoder is not available")
	}

	input := artifact.NewScratch(workDir, "png")
	output := artifact.NewScratch(workDir, "heic")
	defer func() {
		_ = input.Release()
		_ = output.Release()
	}()
	in, out := input.Path(), output.Path()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode heif input: %w", err)
	}
	if err := os.WriteFile(in, buf.Bytes(), 0o600); err != nil {
		return nil, fmt.Errorf("write heif input: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.heifEnc, "-q", strconv.Itoa(quality), "-o", out, in)
	if msg, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("heif-enc: %w: %s", err, strings.TrimSpace(string(msg)))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read heif output: %w", err)
	}
	return data, nil
}
