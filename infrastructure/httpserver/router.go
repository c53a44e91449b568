// Package httpserver serves stored upload bytes over HTTP, next to the
// relay's health and metrics endpoints.
package httpserver

import (
	"encoding/json"
	stderrors "errors"
	"feedback-relay/errors"
	"feedback-relay/observability"
	"feedback-relay/storage"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type LiveCounter interface {
	Count() int
}

// FileLookup maps a file message id to the stored name of its artifact.
type FileLookup interface {
	StoredName(fileID string) (string, error)
}

// NewRouter wires the file bridge routes:
//
//	GET /download?file_name=<stored_name>
//	GET /download?file_id=<file message id>
//	GET /files/{name}
//	GET /health
//	GET /metrics
func NewRouter(
	store *storage.ArtifactStore,
	lookup FileLookup,
	sessions LiveCounter,
	metrics *observability.Metrics,
	gatherer prometheus.Gatherer,
	log *slog.Logger,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware(metrics))
	r.Use(requestLogger(log))

	files := fileHandler{store: store, lookup: lookup, log: log}
	r.Get("/download", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if name := query.Get("file_name"); name != "" || query.Get("file_id") == "" {
			files.serve(w, r, name)
			return
		}
		files.serveByID(w, r, query.Get("file_id"))
	})
	r.Get("/files/{name}", func(w http.ResponseWriter, r *http.Request) {
		files.serve(w, r, chi.URLParam(r, "name"))
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "live_sessions": sessions.Count()})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

type fileHandler struct {
	store  *storage.ArtifactStore
	lookup FileLookup
	log    *slog.Logger
}

// serveByID answers links built from a file message id instead of a stored
// name.
func (h fileHandler) serveByID(w http.ResponseWriter, r *http.Request, fileID string) {
	name, err := h.lookup.StoredName(fileID)
	switch {
	case stderrors.Is(err, errors.ErrFileNotFound):
		http.Error(w, "file not found", http.StatusNotFound)
		return
	case err != nil:
		h.log.Error("Resolving file id failed", "file_id", fileID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.serve(w, r, name)
}

func (h fileHandler) serve(w http.ResponseWriter, r *http.Request, name string) {
	if name == "" {
		http.Error(w, "missing file_name", http.StatusBadRequest)
		return
	}
	f, artifact, err := h.store.Open(name)
	switch {
	case stderrors.Is(err, errors.ErrInvalidFile):
		http.Error(w, "invalid file name", http.StatusBadRequest)
		return
	case stderrors.Is(err, errors.ErrFileNotFound):
		http.Error(w, "file not found", http.StatusNotFound)
		return
	case err != nil:
		h.log.Error("Opening artifact failed", "name", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	modTime := time.Time{}
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": artifact.StoredName}))
	w.Header().Set("Content-Type", artifact.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(artifact.Size, 10))
	http.ServeContent(w, r, artifact.StoredName, modTime, f)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
