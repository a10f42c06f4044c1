package handlers

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/database/mock"
)

// writePatternPNG writes a 16x16 image split into black and white regions.
func writePatternPNG(t *testing.T, path string, black func(x, y int) bool) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := range 16 {
		for x := range 16 {
			if black(x, y) {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func scanLibrary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	half := func(x, _ int) bool { return x < 8 }
	checker := func(x, y int) bool { return (x < 8) == (y < 8) }
	writePatternPNG(t, filepath.Join(dir, "a.png"), half)
	writePatternPNG(t, filepath.Join(dir, "b.png"), half)
	writePatternPNG(t, filepath.Join(dir, "c.png"), checker)
	return dir
}

func createScanHandlerForTest(cache *mock.MockCache) *ScanHandler {
	return NewScanHandler(testConfig(), cache, NewJobManager(), testLogger())
}

func waitForJob(t *testing.T, job *ScanJob) JobStatus {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if status := job.GetStatus(); isJobTerminal(status) {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", job.ID)
	return ""
}

func startScan(t *testing.T, handler *ScanHandler, body string) *ScanJob {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/scans", strings.NewReader(body))
	recorder := httptest.NewRecorder()

	handler.Start(recorder, req)

	assertStatusCode(t, recorder, http.StatusAccepted)
	var resp map[string]string
	parseJSONResponse(t, recorder, &resp)
	if resp["status"] != string(JobStatusPending) {
		t.Errorf("expected pending status, got %q", resp["status"])
	}
	job := handler.jobManager.GetJob(resp["job_id"])
	if job == nil {
		t.Fatalf("job %q not registered", resp["job_id"])
	}
	return job
}

func TestScanHandler_Start_RunsScan(t *testing.T) {
	dir := scanLibrary(t)
	cache := mock.NewMockCache()
	handler := createScanHandlerForTest(cache)

	job := startScan(t, handler, `{"paths":["`+dir+`"],"threshold":0}`)
	if status := waitForJob(t, job); status != JobStatusCompleted {
		t.Fatalf("expected completed, got %s (error %q)", status, job.snapshot().Error)
	}

	snapshot := job.snapshot()
	if snapshot.TotalFiles != 3 || snapshot.ProcessedFiles != 3 || snapshot.Progress != 100 {
		t.Errorf("unexpected progress: total %d processed %d progress %d",
			snapshot.TotalFiles, snapshot.ProcessedFiles, snapshot.Progress)
	}
	if snapshot.Options.GridSize != 4 || snapshot.Options.Threshold != 0 {
		t.Errorf("unexpected options: %+v", snapshot.Options)
	}

	groups := snapshot.Result.Groups
	want := []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")}
	if len(groups) != 1 || !slices.Equal(groups[0].Members, want) {
		t.Errorf("expected one group %v, got %+v", want, groups)
	}
	if cache.FileCount() != 3 {
		t.Errorf("expected 3 cached files, got %d", cache.FileCount())
	}
}

func TestScanHandler_Start_Validation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{"invalid json", `{`, errInvalidRequestBody},
		{"no paths", `{"paths":[]}`, "paths is required"},
		{"negative threshold", `{"paths":["/x"],"threshold":-1}`, ""},
		{"grid too large", `{"paths":["/x"],"grid_size":300}`, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := createScanHandlerForTest(mock.NewMockCache())
			req := httptest.NewRequest("POST", "/api/v1/scans", strings.NewReader(tc.body))
			recorder := httptest.NewRecorder()

			handler.Start(recorder, req)

			assertStatusCode(t, recorder, http.StatusBadRequest)
			if tc.wantError != "" {
				assertJSONError(t, recorder, tc.wantError)
			}
			if n := len(handler.jobManager.ListJobs()); n != 0 {
				t.Errorf("expected no jobs, got %d", n)
			}
		})
	}
}

func TestScanHandler_MissingRootFailsJob(t *testing.T) {
	handler := createScanHandlerForTest(mock.NewMockCache())
	missing := filepath.Join(t.TempDir(), "nope")

	job := startScan(t, handler, `{"paths":["`+missing+`"]}`)
	if status := waitForJob(t, job); status != JobStatusFailed {
		t.Fatalf("expected failed, got %s", status)
	}
	if !strings.Contains(job.snapshot().Error, "failed to collect images") {
		t.Errorf("unexpected error: %q", job.snapshot().Error)
	}
}

func TestScanHandler_CancelledBeforeRunStaysCancelled(t *testing.T) {
	handler := createScanHandlerForTest(mock.NewMockCache())
	job := handler.jobManager.CreateJob(context.Background(), "job-1", ScanJobOptions{
		Paths:    []string{scanLibrary(t)},
		GridSize: 4,
	})
	job.Cancel()

	handler.runScanJob(job)

	snapshot := job.snapshot()
	if snapshot.Status != JobStatusCancelled || snapshot.Result != nil {
		t.Errorf("expected cancelled job without result, got %s", snapshot.Status)
	}
}

// jobResponse is the part of a serialized ScanJob the handler tests inspect.
type jobResponse struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
}

func TestScanHandler_StatusAndCancel(t *testing.T) {
	handler := createScanHandlerForTest(mock.NewMockCache())
	job := handler.jobManager.CreateJob(context.Background(), "job-1", ScanJobOptions{Paths: []string{"/photos"}})

	t.Run("status", func(t *testing.T) {
		req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/scans/job-1", nil), map[string]string{"jobId": "job-1"})
		recorder := httptest.NewRecorder()
		handler.Status(recorder, req)

		assertStatusCode(t, recorder, http.StatusOK)
		var resp jobResponse
		parseJSONResponse(t, recorder, &resp)
		if resp.ID != "job-1" || resp.Status != JobStatusPending {
			t.Errorf("unexpected job: %+v", resp)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/scans/nope", nil), map[string]string{"jobId": "nope"})
		recorder := httptest.NewRecorder()
		handler.Status(recorder, req)

		assertStatusCode(t, recorder, http.StatusNotFound)
		assertJSONError(t, recorder, "job not found")
	})

	t.Run("cancel", func(t *testing.T) {
		for _, want := range []bool{true, false} {
			req := requestWithChiParams(httptest.NewRequest("DELETE", "/api/v1/scans/job-1", nil), map[string]string{"jobId": "job-1"})
			recorder := httptest.NewRecorder()
			handler.Cancel(recorder, req)

			assertStatusCode(t, recorder, http.StatusOK)
			var resp map[string]bool
			parseJSONResponse(t, recorder, &resp)
			if resp["cancelled"] != want {
				t.Errorf("expected cancelled=%v, got %v", want, resp["cancelled"])
			}
		}
		if job.GetStatus() != JobStatusCancelled {
			t.Errorf("expected cancelled status, got %s", job.GetStatus())
		}
	})

	t.Run("list", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		handler.List(recorder, httptest.NewRequest("GET", "/api/v1/scans", nil))

		assertStatusCode(t, recorder, http.StatusOK)
		var resp []jobResponse
		parseJSONResponse(t, recorder, &resp)
		if len(resp) != 1 || resp[0].ID != "job-1" {
			t.Errorf("unexpected job list: %+v", resp)
		}
	})
}

func TestScanHandler_Events_FinishedJob(t *testing.T) {
	handler := createScanHandlerForTest(mock.NewMockCache())
	job := handler.jobManager.CreateJob(context.Background(), "job-1", ScanJobOptions{})
	job.Cancel()

	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/scans/job-1/events", nil), map[string]string{"jobId": "job-1"})
	recorder := httptest.NewRecorder()
	handler.Events(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "text/event-stream")

	body := recorder.Body.String()
	if !strings.HasPrefix(body, "event: status\ndata: ") {
		t.Fatalf("expected a status event first, got %q", body)
	}
	if !strings.Contains(body, `"status":"cancelled"`) {
		t.Errorf("expected cancelled status in event, got %q", body)
	}
	if strings.Count(body, "event: ") != 1 {
		t.Errorf("expected a single event for a finished job, got %q", body)
	}
}

func TestScanHandler_Events_StreamsUntilCompleted(t *testing.T) {
	dir := scanLibrary(t)
	handler := createScanHandlerForTest(mock.NewMockCache())
	job := handler.jobManager.CreateJob(context.Background(), "job-1", ScanJobOptions{
		Paths:    []string{dir},
		GridSize: 4,
	})

	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/scans/job-1/events", nil), map[string]string{"jobId": "job-1"})
	recorder := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.Events(recorder, req)
		close(done)
	}()

	// Wait for the stream to register its listener before the job starts.
	deadline := time.Now().Add(5 * time.Second)
	for {
		job.mu.RLock()
		n := len(job.listeners)
		job.mu.RUnlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("listener never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	go handler.runScanJob(job)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("event stream did not end")
	}

	body := recorder.Body.String()
	for _, event := range []string{"event: status\n", "event: started\n", "event: collected\n", "event: progress\n", "event: completed\n"} {
		if !strings.Contains(body, event) {
			t.Errorf("expected %q in stream", event)
		}
	}
}

func TestScanHandler_Events_UnknownJob(t *testing.T) {
	handler := createScanHandlerForTest(mock.NewMockCache())
	req := requestWithChiParams(httptest.NewRequest("GET", "/api/v1/scans/nope/events", nil), map[string]string{"jobId": "nope"})
	recorder := httptest.NewRecorder()

	handler.Events(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}
