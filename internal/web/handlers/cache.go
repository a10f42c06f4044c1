package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/photo-dedup/internal/database"
)

// CacheHandler handles cache maintenance endpoints
type CacheHandler struct {
	cache  database.Cache
	exists func(string) bool
	logger *slog.Logger
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(cache database.Cache, logger *slog.Logger) *CacheHandler {
	return &CacheHandler{cache: cache, exists: database.FileExists, logger: logger}
}

// Stats returns cache statistics
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.Stats(r.Context())
	if err != nil {
		respondErr(w, h.logger, "cache stats", err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Clean removes records of files that no longer exist and orphaned fingerprints
func (h *CacheHandler) Clean(w http.ResponseWriter, r *http.Request) {
	result, err := database.CleanMissing(r.Context(), h.cache, h.exists)
	if err != nil {
		respondErr(w, h.logger, "cache clean", err)
		return
	}
	h.logger.Info("cache cleaned",
		"checked", result.Checked,
		"files_removed", result.FilesRemoved,
		"fingerprints_removed", result.FingerprintsRemoved)
	respondJSON(w, http.StatusOK, result)
}
