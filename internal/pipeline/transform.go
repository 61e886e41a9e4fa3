package pipeline

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/dunamismax/mediaflow/internal/domain"
)

// icoMaxEdge is the largest edge an ICO directory entry can describe.
const icoMaxEdge = 256

// normalize applies, in order: auto-downscale, user resize, palette
// normalization, alpha flattening and the ICO size cap. Each step is a
// no-op when it does not apply.
func (p *Processor) normalize(img image.Image, sourceBytes int64, req domain.ImageRequest, target domain.ImageFormat) (image.Image, error) {
	img = p.autoDownscale(img, sourceBytes)

	img, err := p.userResize(img, req.Width, req.Height)
	if err != nil {
		return nil, err
	}

	if colorModeOf(img) == ModePalette && !target.SupportsAlpha() {
		p.logger.Debug().Msg("expanding palette to full colour")
		img = imaging.Clone(img)
	}

	if !target.SupportsAlpha() && colorModeOf(img) == ModeRGBA {
		p.logger.Debug().Str("target", target.String()).Msg("flattening alpha onto white")
		img = flattenAlpha(img)
	}

	if target == domain.ImageICO {
		if w, h := dims(img); w > icoMaxEdge || h > icoMaxEdge {
			img = imaging.Fit(img, icoMaxEdge, icoMaxEdge, imaging.Lanczos)
		}
	}

	return img, nil
}

func (p *Processor) autoDownscale(img image.Image, sourceBytes int64) image.Image {
	if sourceBytes <= p.opts.LargeSourceBytes {
		return img
	}

	w, h := dims(img)
	nw, nh, ok := clampLongEdge(w, h, p.opts.MaxEdge)
	if !ok {
		return img
	}

	p.logger.Debug().
		Int64("source_bytes", sourceBytes).
		Int("width", nw).
		Int("height", nh).
		Msg("auto-downscaling large source")
	return imaging.Resize(img, nw, nh, imaging.Lanczos)
}

func (p *Processor) userResize(img image.Image, width, height int) (image.Image, error) {
	if width < 0 || height < 0 {
		return nil, domain.Errorf(domain.KindInvalidParameter, "resize dimensions must be positive, got %dx%d", width, height)
	}
	if width == 0 && height == 0 {
		return img, nil
	}

	w, h := dims(img)
	nw, nh := resizeBox(w, h, width, height)
	if nw == w && nh == h {
		return img, nil
	}

	p.logger.Debug().Int("width", nw).Int("height", nh).Msg("resizing")
	return imaging.Resize(img, nw, nh, imaging.Lanczos), nil
}

// clampLongEdge scales (w, h) so the longer edge equals maxEdge. It reports
// false when the image already fits.
func clampLongEdge(w, h, maxEdge int) (int, int, bool) {
	if w <= maxEdge && h <= maxEdge {
		return w, h, false
	}
	if w >= h {
		return maxEdge, scaleEdge(h, maxEdge, w), true
	}
	return scaleEdge(w, maxEdge, h), maxEdge, true
}

// resizeBox resolves a requested size. Both given is an exact box; one given
// derives the other from the original aspect ratio.
func resizeBox(w, h, width, height int) (int, int) {
	switch {
	case width > 0 && height > 0:
		return width, height
	case width > 0:
		return width, scaleEdge(h, width, w)
	case height > 0:
		return scaleEdge(w, height, h), height
	default:
		return w, h
	}
}

// scaleEdge returns round(other * requested / original), at least 1.
func scaleEdge(other, requested, original int) int {
	if original <= 0 {
		return max(1, other)
	}
	v := int(math.Round(float64(other) * float64(requested) / float64(original)))
	return max(1, v)
}

// flattenAlpha composites img onto an opaque white canvas of the same size.
func flattenAlpha(img image.Image) *image.NRGBA {
	w, h := dims(img)
	bg := imaging.New(w, h, color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
