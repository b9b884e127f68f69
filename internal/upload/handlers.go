package upload

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/Tyrowin/lanchat/internal/metrics"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

// Handlers exposes a Store over HTTP.
type Handlers struct {
	store   Store
	maxSize int64
	logger  *slog.Logger
}

// NewHandlers creates upload handlers limited to maxSize bytes per request.
func NewHandlers(store Store, maxSize int64, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: store, maxSize: maxSize, logger: logger}
}

// Upload accepts a multipart form with a single "file" field and responds
// with the stored file's URL and original name.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
			metrics.Uploads.WithLabelValues("too_large").Inc()
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		metrics.Uploads.WithLabelValues("bad_request").Inc()
		http.Error(w, "Invalid upload", http.StatusBadRequest)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	src, header, err := r.FormFile("file")
	if err != nil {
		metrics.Uploads.WithLabelValues("bad_request").Inc()
		http.Error(w, "Missing file", http.StatusBadRequest)
		return
	}
	defer src.Close()

	file, err := h.store.Save(header.Filename, src)
	if err != nil {
		metrics.Uploads.WithLabelValues("error").Inc()
		h.logger.Error("Failed to store upload", "name", header.Filename, "error", err)
		http.Error(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	metrics.Uploads.WithLabelValues("ok").Inc()
	h.logger.Info("File uploaded", "url", file.URL, "size", header.Size)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(file); err != nil {
		h.logger.Warn("Error writing upload response", "error", err)
	}
}

// Download serves a stored file as an attachment.
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")

	path, err := h.store.Path(name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrInvalidName) {
			h.logger.Error("Failed to resolve download", "name", name, "error", err)
		}
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeFile(w, r, path)
}

// Files serves the upload directory under URLPrefix. Only regular files are
// served; directory requests get a 404 instead of a listing.
func (h *Handlers) Files() http.Handler {
	return http.StripPrefix(URLPrefix, http.FileServer(filesOnly{http.Dir(h.store.Dir())}))
}

// filesOnly hides directories so http.FileServer never renders an index.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
