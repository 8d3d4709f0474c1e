package handlers

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"palmtell/internal/storage"
)

// FileServe returns a stored object addressed by a signed URL. Signatures
// are minted by the same signer, so only URLs this service handed out work.
func (a *App) FileServe(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	q := r.URL.Query()
	if err := a.Signer.Verify(key, q.Get("exp"), q.Get("sig")); err != nil {
		a.error(w, http.StatusForbidden, "forbidden", "invalid or expired link")
		return
	}
	data, err := a.Files.Read(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		a.Logger.Error().Err(err).Str("key", key).Msg("file read failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read file")
		return
	}
	contentType := mime.TypeByExtension(filepath.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
