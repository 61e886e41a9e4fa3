package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"

	_ "image/gif"
	_ "image/jpeg"

	ico "github.com/biessek/golang-ico"
	_ "github.com/gen2brain/avif"
	_ "github.com/gen2brain/heic"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/dunamismax/mediaflow/internal/artifact"
	"github.com/dunamismax/mediaflow/internal/domain"
)

// ColorMode is the pixel layout of a decoded raster.
type ColorMode int

const (
	ModeRGB ColorMode = iota
	ModeRGBA
	ModeGrayscale
	ModePalette
)

func (m ColorMode) String() string {
	switch m {
	case ModeRGB:
		return "RGB"
	case ModeRGBA:
		return "RGBA"
	case ModeGrayscale:
		return "L"
	case ModePalette:
		return "P"
	}
	return "unknown"
}

func colorModeOf(img image.Image) ColorMode {
	switch img.(type) {
	case *image.Paletted:
		return ModePalette
	case *image.Gray, *image.Gray16:
		return ModeGrayscale
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64, *image.NYCbCrA, *image.Alpha, *image.Alpha16:
		return ModeRGBA
	default:
		return ModeRGB
	}
}

type decodeFunc func(ctx context.Context, src artifact.Source) (image.Image, error)

type decodeStrategy struct {
	name   string
	decode decodeFunc
}

// decodeStrategies returns the decoders to try for a source format, in
// order. Only the HEIF family has a fallback.
func (p *Processor) decodeStrategies(f domain.ImageFormat) []decodeStrategy {
	switch f {
	case domain.ImageAVIF, domain.ImageHEIF:
		return []decodeStrategy{
			{name: p.codec.Name(), decode: func(ctx context.Context, src artifact.Source) (image.Image, error) {
				return p.codec.Decode(ctx, src.Data, f)
			}},
			{name: "generic", decode: decodeGeneric},
		}
	case domain.ImageSVG:
		return []decodeStrategy{{name: "oksvg", decode: p.decodeSVG}}
	case domain.ImageICO:
		return []decodeStrategy{{name: "ico", decode: decodeICO}}
	case domain.ImageJPEG, domain.ImagePNG, domain.ImageGIF, domain.ImageBMP,
		domain.ImageTIFF, domain.ImageWEBP:
		return []decodeStrategy{{name: "generic", decode: decodeGeneric}}
	case domain.ImageUnknown:
		return nil
	}
	return nil
}

func (p *Processor) decode(ctx context.Context, src artifact.Source, f domain.ImageFormat) (image.Image, error) {
	ctx, span := p.span(ctx, "pipeline.decode")
	defer span.End()

	strategies := p.decodeStrategies(f)
	if len(strategies) == 0 {
		return nil, domain.Errorf(domain.KindUnsupportedFormat, "no decoder for %s", f)
	}

	var errs []error
	for _, s := range strategies {
		img, err := s.decode(ctx, src)
		if err == nil {
			w, h := dims(img)
			p.logger.Debug().
				Str("strategy", s.name).
				Str("mode", colorModeOf(img).String()).
				Int("width", w).
				Int("height", h).
				Msg("decoded source")
			return img, nil
		}
		if domain.KindOf(err) == domain.KindMissingFile {
			return nil, err
		}
		p.logger.Warn().Err(err).Str("strategy", s.name).Str("format", f.String()).Msg("decode strategy failed")
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}

	return nil, domain.Wrap(domain.KindDecodeFailure, errors.Join(errs...), "decode %s source", f)
}

func decodeGeneric(_ context.Context, src artifact.Source) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(src.Data))
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("decoded image has empty bounds %v", b)
	}
	return img, nil
}

func decodeICO(_ context.Context, src artifact.Source) (image.Image, error) {
	return ico.Decode(bytes.NewReader(src.Data))
}

// decodeSVG rasterizes the vector source onto the fixed canvas, writes the
// raster as an intermediate PNG next to the source and decodes it back. The
// intermediate is removed before returning.
func (p *Processor) decodeSVG(ctx context.Context, src artifact.Source) (image.Image, error) {
	raster, err := rasterizeSVG(src.Data, p.opts.SVGCanvas)
	if err != nil {
		return nil, err
	}

	scratch := artifact.NewScratch(src.Dir(), "png")
	defer func() {
		if err := scratch.Release(); err != nil {
			p.logger.Warn().Err(err).Msg("release svg intermediate")
		}
	}()

	var buf bytes.Buffer
	if err := png.Encode(&buf, raster); err != nil {
		return nil, fmt.Errorf("encode svg intermediate: %w", err)
	}
	if err := os.WriteFile(scratch.Path(), buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write svg intermediate: %w", err)
	}

	data, err := os.ReadFile(scratch.Path())
	if err != nil {
		return nil, fmt.Errorf("read svg intermediate: %w", err)
	}
	return decodeGeneric(ctx, artifact.Source{Path: scratch.Path(), Data: data, Size: int64(len(data))})
}
