package api

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/xclinic/dental-clinic/internal/storage"
)

// publicObjectHandler serves files from the public buckets without auth.
func publicObjectHandler(disk *storage.Disk, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bucket := chi.URLParam(r, "bucket")
		objectPath := chi.URLParam(r, "*")

		f, err := disk.Open(bucket, objectPath)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrNotFound):
				writeError(w, http.StatusNotFound, "not_found", "object not found")
			case errors.Is(err, storage.ErrInvalidPath):
				writeError(w, http.StatusBadRequest, "invalid_path", err.Error())
			default:
				log.Error().Err(err).Str("bucket", bucket).Str("path", objectPath).Msg("open object")
				writeError(w, http.StatusInternalServerError, "internal_error", "could not read object")
			}
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			writeError(w, http.StatusNotFound, "not_found", "object not found")
			return
		}
		if ct := mime.TypeByExtension(strings.ToLower(path.Ext(objectPath))); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	}
}
