package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/contentid"
	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/database/mock"
	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Scan: config.ScanConfig{
			GridSize:  4,
			Threshold: 2,
			Workers:   2,
		},
		Cache: config.CacheConfig{
			Backend: config.BackendSQLite,
			Path:    "/tmp/cache.db",
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedEntry records path with a 4x4 fingerprint in the mock cache.
func seedEntry(t *testing.T, cache *mock.MockCache, path string, id byte, bits ...byte) {
	t.Helper()
	ctx := context.Background()
	fp, err := fingerprint.FromBytes(4, bits)
	if err != nil {
		t.Fatalf("invalid fingerprint: %v", err)
	}
	digest := contentid.Digest{id}
	if err := cache.UpsertFile(ctx, database.StoredFile{Path: path, Size: int64(id), ModTime: time.Unix(1, 0), Digest: digest}); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}
	if err := cache.UpsertFingerprint(ctx, database.StoredFingerprint{Digest: digest, Size: int64(id), Fingerprint: fp}); err != nil {
		t.Fatalf("UpsertFingerprint: %v", err)
	}
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
