package domain

import (
	"sort"
	"strings"
)

// ImageFormat is the closed set of image container formats the engine can
// read or write. Switches over it are expected to be exhaustive.
type ImageFormat int

const (
	ImageUnknown ImageFormat = iota
	ImageJPEG
	ImagePNG
	ImageGIF
	ImageBMP
	ImageTIFF
	ImageWEBP
	ImageICO
	ImageSVG
	ImageAVIF
	ImageHEIF
)

// SubtitleFormat is the closed set of text cue formats.
type SubtitleFormat int

const (
	SubtitleUnknown SubtitleFormat = iota
	SubtitleSRT
	SubtitleVTT
	SubtitleASS
	SubtitleSSA
)

var imageFormatTable = map[string]ImageFormat{
	"jpg":  ImageJPEG,
	"jpeg": ImageJPEG,
	"png":  ImagePNG,
	"gif":  ImageGIF,
	"bmp":  ImageBMP,
	"tiff": ImageTIFF,
	"webp": ImageWEBP,
	"ico":  ImageICO,
	"svg":  ImageSVG,
	"avif": ImageAVIF,
	"heif": ImageHEIF,
	"heic": ImageHEIF,
}

var subtitleFormatTable = map[string]SubtitleFormat{
	"srt": SubtitleSRT,
	"vtt": SubtitleVTT,
	"ass": SubtitleASS,
	"ssa": SubtitleSSA,
}

// NormalizeToken lowercases a format token and strips a leading dot so
// ".JPG" and "jpg" resolve to the same table key.
func NormalizeToken(token string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(token)), ".")
}

func ParseImageFormat(token string) (ImageFormat, bool) {
	f, ok := imageFormatTable[NormalizeToken(token)]
	return f, ok
}

func ParseSubtitleFormat(token string) (SubtitleFormat, bool) {
	f, ok := subtitleFormatTable[NormalizeToken(token)]
	return f, ok
}

// ImageTokens returns every accepted image token, sorted.
func ImageTokens() []string {
	return sortedKeys(imageFormatTable)
}

// SubtitleTokens returns every accepted subtitle token, sorted.
func SubtitleTokens() []string {
	return sortedKeys(subtitleFormatTable)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the canonical codec identifier.
func (f ImageFormat) String() string {
	switch f {
	case ImageJPEG:
		return "JPEG"
	case ImagePNG:
		return "PNG"
	case ImageGIF:
		return "GIF"
	case ImageBMP:
		return "BMP"
	case ImageTIFF:
		return "TIFF"
	case ImageWEBP:
		return "WEBP"
	case ImageICO:
		return "ICO"
	case ImageSVG:
		return "SVG"
	case ImageAVIF:
		return "AVIF"
	case ImageHEIF:
		return "HEIF"
	case ImageUnknown:
		return "UNKNOWN"
	}
	return "UNKNOWN"
}

// SupportsAlpha reports whether the container can carry transparency.
func (f ImageFormat) SupportsAlpha() bool {
	switch f {
	case ImageJPEG:
		return false
	case ImagePNG, ImageGIF, ImageBMP, ImageTIFF, ImageWEBP, ImageICO, ImageSVG, ImageAVIF, ImageHEIF:
		return true
	case ImageUnknown:
		return false
	}
	return false
}

// IsHEIFFamily reports whether pixels go through the external HEIF/AVIF codec.
func (f ImageFormat) IsHEIFFamily() bool {
	return f == ImageAVIF || f == ImageHEIF
}

func (f ImageFormat) MIMEType() string {
	switch f {
	case ImageJPEG:
		return "image/jpeg"
	case ImagePNG:
		return "image/png"
	case ImageGIF:
		return "image/gif"
	case ImageBMP:
		return "image/bmp"
	case ImageTIFF:
		return "image/tiff"
	case ImageWEBP:
		return "image/webp"
	case ImageICO:
		return "image/x-icon"
	case ImageSVG:
		return "image/svg+xml"
	case ImageAVIF:
		return "image/avif"
	case ImageHEIF:
		return "image/heif"
	case ImageUnknown:
		return "application/octet-stream"
	}
	return "application/octet-stream"
}

func (f SubtitleFormat) String() string {
	switch f {
	case SubtitleSRT:
		return "SubRip"
	case SubtitleVTT:
		return "WebVTT"
	case SubtitleASS:
		return "Advanced SubStation Alpha"
	case SubtitleSSA:
		return "SubStation Alpha"
	case SubtitleUnknown:
		return "Unknown"
	}
	return "Unknown"
}

// IsASSFamily groups ASS and SSA, which share one script syntax.
func (f SubtitleFormat) IsASSFamily() bool {
	return f == SubtitleASS || f == SubtitleSSA
}

func (f SubtitleFormat) MIMEType() string {
	switch f {
	case SubtitleSRT:
		return "application/x-subrip"
	case SubtitleVTT:
		return "text/vtt"
	case SubtitleASS, SubtitleSSA:
		return "text/x-ssa"
	case SubtitleUnknown:
		return "application/octet-stream"
	}
	return "application/octet-stream"
}
