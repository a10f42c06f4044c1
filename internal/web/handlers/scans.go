package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/scan"
	"github.com/kozaktomas/photo-dedup/internal/walker"
)

// ScanHandler handles scan job endpoints
type ScanHandler struct {
	config     *config.Config
	cache      database.Cache
	jobManager *JobManager
	logger     *slog.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(cfg *config.Config, cache database.Cache, jm *JobManager, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{
		config:     cfg,
		cache:      cache,
		jobManager: jm,
		logger:     logger,
	}
}

// StartScanRequest represents a scan start request. Zero grid size or a nil
// threshold fall back to the configuration.
type StartScanRequest struct {
	Paths          []string `json:"paths"`
	Threshold      *int     `json:"threshold"`
	GridSize       int      `json:"grid_size"`
	IncludeHidden  bool     `json:"include_hidden"`
	SkipValidation bool     `json:"skip_validation"`
}

// Start starts a new scan job
func (h *ScanHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartScanRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if len(req.Paths) == 0 {
		respondError(w, http.StatusBadRequest, "paths is required")
		return
	}

	options := ScanJobOptions{
		Paths:          req.Paths,
		GridSize:       h.config.Scan.GridSize,
		Threshold:      h.config.Scan.Threshold,
		IncludeHidden:  req.IncludeHidden,
		SkipValidation: req.SkipValidation,
	}
	if req.GridSize != 0 {
		options.GridSize = req.GridSize
	}
	if req.Threshold != nil {
		options.Threshold = *req.Threshold
	}
	if err := config.ValidateScan(options.GridSize, options.Threshold); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID := uuid.New().String()
	job := h.jobManager.CreateJob(context.Background(), jobID, options)

	h.jobManager.Go(func() { h.runScanJob(job) })

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(JobStatusPending),
	})
}

// List returns all scan jobs without their results
func (h *ScanHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobManager.ListJobs()
	out := make([]ScanJob, len(jobs))
	for i, job := range jobs {
		out[i] = job.snapshot()
		out[i].Result = nil
	}
	respondJSON(w, http.StatusOK, out)
}

// Status returns the status of a scan job
func (h *ScanHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}
	snapshot := job.snapshot()
	respondJSON(w, http.StatusOK, &snapshot)
}

// Events streams job events via SSE
func (h *ScanHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			snapshot := job.(*ScanJob).snapshot()
			return &snapshot
		},
	)
}

// Cancel cancels a scan job
func (h *ScanHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": job.Cancel()})
}

func (h *ScanHandler) lookup(w http.ResponseWriter, r *http.Request) *ScanJob {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return nil
	}
	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return nil
	}
	return job
}

// runScanJob runs the scan job in the background
func (h *ScanHandler) runScanJob(job *ScanJob) {
	ctx := job.ctx
	defer job.cancel()

	job.mu.Lock()
	if isJobTerminal(job.Status) {
		job.mu.Unlock()
		return
	}
	job.Status = JobStatusRunning
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "started", Message: "Scan started"})

	paths, err := walker.Walk(ctx, job.Options.Paths, walker.Options{
		IncludeHidden:  job.Options.IncludeHidden,
		SkipValidation: job.Options.SkipValidation,
		IgnorePrefixes: h.config.Scan.IgnorePrefixes,
		Logger:         h.logger,
	})
	if err != nil {
		h.failJob(job, fmt.Sprintf("failed to collect images: %v", err))
		return
	}

	job.mu.Lock()
	job.TotalFiles = len(paths)
	job.mu.Unlock()
	job.SendEvent(JobEvent{
		Type:    "collected",
		Message: fmt.Sprintf("Found %d images", len(paths)),
		Data:    map[string]int{"total": len(paths)},
	})

	scanner := scan.New(h.cache,
		scan.WithResolution(job.Options.GridSize),
		scan.WithThreshold(job.Options.Threshold),
		scan.WithWorkers(h.config.Scan.Workers),
		scan.WithLogger(h.logger),
		scan.WithProgress(func(p scan.Progress) {
			// Workers may report out of order.
			job.mu.Lock()
			if p.Done > job.ProcessedFiles {
				job.ProcessedFiles = p.Done
				if p.Total > 0 {
					job.Progress = p.Done * 100 / p.Total
				}
			}
			job.mu.Unlock()
			job.SendEvent(JobEvent{Type: "progress", Data: p})
		}),
	)

	result, err := scanner.Scan(ctx, paths)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Cancel already recorded the terminal state.
			return
		}
		h.logger.Error("scan job failed", "job", job.ID, "error", err)
		h.failJob(job, err.Error())
		return
	}

	job.mu.Lock()
	if isJobTerminal(job.Status) {
		job.mu.Unlock()
		return
	}
	job.Status = JobStatusCompleted
	job.Progress = 100
	job.Result = result
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()

	job.SendEvent(JobEvent{
		Type:    "completed",
		Message: fmt.Sprintf("Found %d duplicate groups", len(result.Groups)),
		Data:    result,
	})
}

// failJob marks a job as failed and notifies listeners
func (h *ScanHandler) failJob(job *ScanJob, message string) {
	job.mu.Lock()
	if isJobTerminal(job.Status) {
		job.mu.Unlock()
		return
	}
	job.Status = JobStatusFailed
	job.Error = message
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()

	job.SendEvent(JobEvent{Type: "failed", Message: message})
}
