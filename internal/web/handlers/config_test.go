package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/photo-dedup/internal/config"
)

func TestConfigHandler_Get(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Backend = config.BackendPostgres
	handler := NewConfigHandler(cfg)

	req := httptest.NewRequest("GET", "/api/v1/config", nil)
	recorder := httptest.NewRecorder()

	handler.Get(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")

	var resp ConfigResponse
	parseJSONResponse(t, recorder, &resp)

	want := ConfigResponse{GridSize: 4, Threshold: 2, Workers: 2, Backend: config.BackendPostgres}
	if resp != want {
		t.Errorf("expected %+v, got %+v", want, resp)
	}
}
