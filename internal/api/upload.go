package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/dunamismax/mediaflow/internal/domain"
	"github.com/dunamismax/mediaflow/internal/id"
	"golang.org/x/text/unicode/norm"
)

type upload struct {
	name string
	file multipart.File
}

type stagedUpload struct {
	name string
	path string
}

// readUpload parses the multipart body and opens the "file" part. On
// failure it writes the response itself and returns false. The caller
// closes the returned file.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, domain.KindInvalidParameter, uploadLimitMessage(s.opts.MaxUploadBytes))
			return upload{}, false
		}
		s.fail(w, r, domain.Wrap(domain.KindMissingFile, err, "file is missing"))
		return upload{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, domain.Wrap(domain.KindMissingFile, err, "file is missing"))
		return upload{}, false
	}
	if strings.TrimSpace(header.Filename) == "" {
		_ = file.Close()
		s.fail(w, r, domain.Errorf(domain.KindMissingFile, "select a file to convert"))
		return upload{}, false
	}

	name := safeFilename(header.Filename)
	if name != header.Filename {
		s.logger.Debug().Str("filename", header.Filename).Str("sanitized", name).Msg("upload filename sanitized")
	}
	return upload{name: name, file: file}, true
}

// stage copies the upload into <uploadDir>/<folder> under a name prefixed
// with a short id, so concurrent uploads of the same file never collide.
func (s *Server) stage(u upload, folder string) (stagedUpload, error) {
	name := id.Short() + "_" + u.name
	path := filepath.Join(s.opts.UploadDir, folder, name)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return stagedUpload{}, fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(dst, u.file); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return stagedUpload{}, fmt.Errorf("write %s: %w", path, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return stagedUpload{}, fmt.Errorf("close %s: %w", path, err)
	}

	return stagedUpload{name: name, path: path}, nil
}

// safeFilename reduces a client-supplied name to ASCII letters, digits,
// '-', '_' and a single extension. Names with nothing usable left become
// "upload".
func safeFilename(in string) string {
	in = filepath.Base(strings.ReplaceAll(in, "\\", "/"))
	ext := filepath.Ext(in)
	stem := sanitizeToken(strings.TrimSuffix(in, ext))
	ext = sanitizeToken(strings.TrimPrefix(ext, "."))

	if stem == "" {
		stem = "upload"
	}
	if ext == "" {
		return stem
	}
	return stem + "." + strings.ToLower(ext)
}

func sanitizeToken(in string) string {
	var b strings.Builder
	b.Grow(len(in))
	lastUnderscore := false
	for _, r := range norm.NFKD.String(strings.TrimSpace(in)) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case unicode.Is(unicode.Mn, r), r > unicode.MaxASCII && unicode.IsLetter(r):
			// dropped: combining marks and non-Latin letters
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_-")
}

func sourceExt(name string) string {
	return domain.NormalizeToken(filepath.Ext(name))
}

func baseName(path string) string {
	return filepath.Base(path)
}
