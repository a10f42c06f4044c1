package handlers

import (
	"net/http"

	"github.com/kozaktomas/photo-dedup/internal/config"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	GridSize  int    `json:"grid_size"`
	Threshold int    `json:"threshold"`
	Workers   int    `json:"workers"`
	Backend   string `json:"backend"`
}

// Get returns the effective scan configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ConfigResponse{
		GridSize:  h.config.Scan.GridSize,
		Threshold: h.config.Scan.Threshold,
		Workers:   h.config.Scan.Workers,
		Backend:   h.config.Cache.Backend,
	})
}
