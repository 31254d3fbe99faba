package handler

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/AhmAshraf1/PlanTech/internal/api/response"
	"github.com/AhmAshraf1/PlanTech/internal/uploads"
	"github.com/go-chi/chi/v5"
)

// FileOpener defines the interface the uploads handler depends on.
type FileOpener interface {
	Open(name string) (*os.File, fs.FileInfo, error)
}

// NewUploadHandler returns an http.HandlerFunc for GET /uploads/{name}.
func NewUploadHandler(files FileOpener) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		f, info, err := files.Open(name)
		if err != nil {
			if !errors.Is(err, uploads.ErrNotFound) && !errors.Is(err, uploads.ErrInvalidName) {
				slog.Error("failed to open upload", "name", name, "error", err)
			}
			response.Error(w, http.StatusNotFound, "File not found")
			return
		}
		defer f.Close()

		w.Header().Set("X-Content-Type-Options", "nosniff")
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	}
}
