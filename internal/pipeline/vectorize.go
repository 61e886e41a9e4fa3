package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	svg "github.com/ajstarks/svgo"
	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/dunamismax/mediaflow/internal/domain"
)

const (
	vectorMinCells    = 10
	vectorAlphaCutoff = 128
)

// vectorize renders img as a grid of solid rectangles over a white
// background. The output depends only on the pixels, so equal inputs give
// byte-identical documents.
func vectorize(img image.Image) ([]byte, error) {
	w, h := dims(img)
	if w <= 0 || h <= 0 {
		return nil, domain.Errorf(domain.KindEncodeFailure, "cannot vectorize empty image")
	}

	scale := max(1, min(w, h)/100)
	cols := max(vectorMinCells, w/scale)
	rows := max(vectorMinCells, h/scale)
	small := downsample(img, cols, rows)
	origin := small.Bounds().Min

	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Start(w, h)
	canvas.Rect(0, 0, w, h, "fill:rgb(255,255,255)")

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			c := resolvePixel(small, origin.X+x, origin.Y+y)
			if c.A < vectorAlphaCutoff {
				continue
			}
			canvas.Rect(x*scale, y*scale, scale, scale, fmt.Sprintf("fill:rgb(%d,%d,%d)", c.R, c.G, c.B))
		}
	}
	canvas.End()

	return buf.Bytes(), nil
}

// downsample keeps palette and grey images in their own colour model so
// pixels can still be resolved through the palette afterwards.
func downsample(img image.Image, w, h int) image.Image {
	rect := image.Rect(0, 0, w, h)
	switch src := img.(type) {
	case *image.Paletted:
		dst := image.NewPaletted(rect, src.Palette)
		xdraw.NearestNeighbor.Scale(dst, rect, src, src.Bounds(), xdraw.Src, nil)
		return dst
	case *image.Gray:
		dst := image.NewGray(rect)
		xdraw.CatmullRom.Scale(dst, rect, src, src.Bounds(), xdraw.Src, nil)
		return dst
	default:
		return imaging.Resize(img, w, h, imaging.Lanczos)
	}
}

// resolvePixel returns the non-premultiplied colour at (x, y). Palette
// indices go through the palette and an index with no palette entry is
// black. Single-channel pixels come back as grey.
func resolvePixel(img image.Image, x, y int) color.NRGBA {
	switch src := img.(type) {
	case *image.Paletted:
		idx := src.ColorIndexAt(x, y)
		if int(idx) < len(src.Palette) {
			return color.NRGBAModel.Convert(src.Palette[idx]).(color.NRGBA)
		}
		return color.NRGBA{A: 0xff}
	case *image.Gray:
		v := src.GrayAt(x, y).Y
		return color.NRGBA{R: v, G: v, B: v, A: 0xff}
	case *image.Gray16:
		v := uint8(src.Gray16At(x, y).Y >> 8)
		return color.NRGBA{R: v, G: v, B: v, A: 0xff}
	default:
		return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	}
}
