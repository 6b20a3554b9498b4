package daemon

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"kiln/internal/blobstore"
	"kiln/internal/logging"
)

// handleFile streams a published artifact. Web builds ship engine-compressed
// payloads (.br, .gz) that browsers only accept with the matching
// Content-Encoding header and the inner file's Content-Type, so those
// suffixes are peeled off before type resolution.
func (d *Daemon) handleFile(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if key == "" {
		d.writeError(w, http.StatusBadRequest, "missing file path")
		return
	}
	clean := path.Clean(key)
	if clean == "." || strings.HasPrefix(clean, "..") {
		d.writeError(w, http.StatusBadRequest, "invalid file path")
		return
	}

	reader, err := d.artifacts.Get(r.Context(), clean)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			d.writeError(w, http.StatusNotFound, "file not found")
			return
		}
		d.writeError(w, http.StatusInternalServerError, "could not open file")
		return
	}
	defer reader.Close()

	contentType, encoding := resolveFileHeaders(clean)
	w.Header().Set("Content-Type", contentType)
	if encoding != "" {
		w.Header().Set("Content-Encoding", encoding)
	}
	w.Header().Set("Cache-Control", "no-store")
	if _, err := io.Copy(w, reader); err != nil {
		d.logger.Debug("file stream interrupted", logging.Error(err))
	}
}

func resolveFileHeaders(key string) (contentType, encoding string) {
	name := key
	switch {
	case strings.HasSuffix(name, ".br"):
		encoding = "br"
		name = strings.TrimSuffix(name, ".br")
	case strings.HasSuffix(name, ".gz"):
		encoding = "gzip"
		name = strings.TrimSuffix(name, ".gz")
	}

	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".wasm":
		contentType = "application/wasm"
	case ".data":
		contentType = "application/octet-stream"
	case ".apk":
		contentType = "application/vnd.android.package-archive"
	default:
		contentType = mime.TypeByExtension(ext)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return contentType, encoding
}
