// File: internal/handlers/image_handler.go
package handlers

import (
	"errors"
	"mime"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iyunix/mcp-openai/internal/services/images"
)

// ImageFiles resolves stored originals by name.
type ImageFiles interface {
	Path(name string) (string, error)
}

type ImageHandler struct {
	files  ImageFiles
	logger Logger
}

func NewImageHandler(files ImageFiles, logger Logger) *ImageHandler {
	return &ImageHandler{files: files, logger: logger}
}

// Download serves a stored original as an attachment. Link tokens are
// checked by middleware before this runs.
func (h *ImageHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]

	path, err := h.files.Path(name)
	switch {
	case errors.Is(err, images.ErrInvalidName):
		h.logger.Warn("rejected image name", "name", name, "remote", r.RemoteAddr)
		writeError(w, "Invalid file name", http.StatusBadRequest)
		return
	case errors.Is(err, images.ErrNotFound):
		writeError(w, "Image not found", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("image lookup failed", "name", name, "error", err)
		writeError(w, "Could not read image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", images.ContentType(name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, path)
}
