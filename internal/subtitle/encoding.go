package subtitle

import (
	"bytes"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/dunamismax/mediaflow/internal/domain"
)

// minDetectConfidence is the chardet score below which detection is treated
// as inconclusive.
const minDetectConfidence = 10

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decodeText turns raw subtitle bytes into a UTF-8 string. A byte order
// mark always wins; otherwise "auto" runs statistical detection and falls
// back to UTF-8, and an explicit name must be a known charset.
func decodeText(data []byte, requested string) (string, string, error) {
	enc, name, err := resolveEncoding(data, requested)
	if err != nil {
		return "", "", err
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", domain.Wrap(domain.KindParseFailure, err, "decode text as %s", name)
	}
	return strings.TrimPrefix(string(out), "\ufeff"), name, nil
}

func resolveEncoding(data []byte, requested string) (encoding.Encoding, string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return unicode.UTF8BOM, "utf-8", nil
	case bytes.HasPrefix(data, bomUTF16LE):
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), "utf-16le", nil
	case bytes.HasPrefix(data, bomUTF16BE):
		return unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), "utf-16be", nil
	}

	requested = strings.ToLower(strings.TrimSpace(requested))
	if requested == "" || requested == domain.EncodingAuto {
		enc, name := detectEncoding(data)
		return enc, name, nil
	}

	enc, err := htmlindex.Get(requested)
	if err != nil {
		return nil, "", domain.Errorf(domain.KindInvalidParameter, "unknown encoding: %q", requested)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = requested
	}
	return enc, name, nil
}

func detectEncoding(data []byte) (encoding.Encoding, string) {
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil || result.Confidence < minDetectConfidence {
		return unicode.UTF8, "utf-8"
	}

	enc, err := htmlindex.Get(result.Charset)
	if err != nil {
		return unicode.UTF8, "utf-8"
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = strings.ToLower(result.Charset)
	}
	return enc, name
}
