package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/photo-dedup/internal/cluster"
	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/scan"
)

// MatchesHandler clusters fingerprints already stored in the cache
type MatchesHandler struct {
	config *config.Config
	cache  database.CacheReader
	logger *slog.Logger
}

// NewMatchesHandler creates a new matches handler
func NewMatchesHandler(cfg *config.Config, cache database.CacheReader, logger *slog.Logger) *MatchesHandler {
	return &MatchesHandler{config: cfg, cache: cache, logger: logger}
}

// MatchesResponse represents the matches response
type MatchesResponse struct {
	GridSize  int             `json:"grid_size"`
	Threshold int             `json:"threshold"`
	Files     int             `json:"files"`
	Groups    []cluster.Group `json:"groups"`
}

// List returns duplicate groups from cached fingerprints
func (h *MatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	gridSize, err := queryInt(r, "grid_size", h.config.Scan.GridSize)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	threshold, err := queryInt(r, "threshold", h.config.Scan.Threshold)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := scan.FromCache(r.Context(), h.cache, gridSize, threshold, h.config.Scan.Workers)
	if err != nil {
		respondErr(w, h.logger, "matches", err)
		return
	}

	groups := result.Groups
	if groups == nil {
		groups = []cluster.Group{}
	}
	respondJSON(w, http.StatusOK, MatchesResponse{
		GridSize:  gridSize,
		Threshold: threshold,
		Files:     result.Stats.Files,
		Groups:    groups,
	})
}
