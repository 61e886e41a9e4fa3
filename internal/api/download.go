package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dunamismax/mediaflow/internal/domain"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	if folder != folderImages && folder != folderSubtitles {
		writeError(w, http.StatusBadRequest, domain.KindInvalidParameter, "unknown download folder")
		return
	}

	filename := chi.URLParam(r, "filename")
	if filename == "" || filename != filepath.Base(filename) || filename == "." || filename == ".." {
		writeError(w, http.StatusBadRequest, domain.KindInvalidParameter, "invalid filename")
		return
	}

	path := filepath.Join(s.opts.UploadDir, folder, filename)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, domain.KindMissingFile, "file not found")
			return
		}
		s.logger.Error().Err(err).Str("path", path).Msg("open download failed")
		writeError(w, http.StatusInternalServerError, domain.KindUnexpected, "failed to open file")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, domain.KindMissingFile, "file not found")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeContent(w, r, filename, info.ModTime(), f)
}
