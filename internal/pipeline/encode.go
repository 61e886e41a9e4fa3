package pipeline

import (
	"bytes"
	"context"
	"image"

	ico "github.com/biessek/golang-ico"
	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"

	"github.com/dunamismax/mediaflow/internal/domain"
)

func (p *Processor) encode(ctx context.Context, img image.Image, target domain.ImageFormat, quality int, workDir string) ([]byte, error) {
	ctx, span := p.span(ctx, "pipeline.encode")
	defer span.End()

	var (
		buf bytes.Buffer
		err error
	)

	switch target {
	case domain.ImageSVG:
		return vectorize(img)
	case domain.ImageAVIF, domain.ImageHEIF:
		data, err := p.codec.Encode(ctx, img, target, quality, workDir)
		if err != nil {
			return nil, domain.Wrap(domain.KindEncodeFailure, err, "encode %s with %s", target, p.codec.Name())
		}
		return data, nil
	case domain.ImageJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case domain.ImageWEBP:
		err = webp.Encode(&buf, img, webp.Options{Quality: quality})
	case domain.ImagePNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	case domain.ImageGIF:
		err = imaging.Encode(&buf, img, imaging.GIF)
	case domain.ImageBMP:
		err = imaging.Encode(&buf, img, imaging.BMP)
	case domain.ImageTIFF:
		err = imaging.Encode(&buf, img, imaging.TIFF)
	case domain.ImageICO:
		err = ico.Encode(&buf, img)
	case domain.ImageUnknown:
		return nil, domain.Errorf(domain.KindUnsupportedFormat, "no encoder for %s", target)
	}
	if err != nil {
		return nil, domain.Wrap(domain.KindEncodeFailure, err, "encode %s", target)
	}

	p.logger.Debug().Str("format", target.String()).Int("bytes", buf.Len()).Msg("encoded")
	return buf.Bytes(), nil
}
