package handlers

import (
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/kozaktomas/photo-dedup/internal/database"
)

// FilesHandler handles filesystem lookups for paths the cache knows about
type FilesHandler struct {
	cache  database.CacheReader
	exists func(string) bool
	logger *slog.Logger
}

// NewFilesHandler creates a new files handler
func NewFilesHandler(cache database.CacheReader, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{cache: cache, exists: database.FileExists, logger: logger}
}

// CheckRequest represents a file existence check
type CheckRequest struct {
	Paths []string `json:"paths"`
}

// FileStatus reports whether a path exists on disk
type FileStatus struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

// Check reports which of the given paths still exist
func (h *FilesHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out := make([]FileStatus, len(req.Paths))
	for i, p := range req.Paths {
		out[i] = FileStatus{Path: p, Exists: h.exists(p)}
	}
	respondJSON(w, http.StatusOK, out)
}

// Image serves an image file. Only paths recorded in the cache are served.
func (h *FilesHandler) Image(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}

	record, err := h.cache.LookupByPath(r.Context(), path)
	if err != nil {
		respondErr(w, h.logger, "image lookup", err)
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, "image not found")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		h.logger.Warn("cached image unreadable", "path", sanitizeForLog(path), "error", err)
		respondError(w, http.StatusNotFound, "image not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		respondError(w, http.StatusNotFound, "image not found")
		return
	}

	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}
