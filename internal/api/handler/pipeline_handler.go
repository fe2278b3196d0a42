package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ecommerce-analytics-pipeline/internal/app"
	"ecommerce-analytics-pipeline/internal/model"
	"ecommerce-analytics-pipeline/internal/store"
	"ecommerce-analytics-pipeline/pkg/logger"
	"ecommerce-analytics-pipeline/pkg/utils"
)

// RunStarter launches pipeline runs in the background.
type RunStarter interface {
	Start(ctx context.Context, trigger string) (string, error)
}

// RunReader reads the run history.
type RunReader interface {
	ListRuns(ctx context.Context) ([]store.RunSummary, error)
	GetRun(ctx context.Context, runID string) (*store.RunRecord, error)
}

// PipelineHandler serves the run history API.
type PipelineHandler struct {
	runs    RunReader
	starter RunStarter
	outputs *utils.OutputManager
	log     *logger.Logger
}

// NewPipelineHandler builds the handler. outputDir is where run artifacts live.
func NewPipelineHandler(runs RunReader, starter RunStarter, outputDir string, log *logger.Logger) *PipelineHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &PipelineHandler{
		runs:    runs,
		starter: starter,
		outputs: utils.NewOutputManager(outputDir),
		log:     log,
	}
}

// FileInfo describes a downloadable run artifact.
type FileInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	DownloadURL string `json:"download_url"`
}

// Health reports liveness.
// GET /healthz
func (h *PipelineHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateRun starts a pipeline run and answers before it finishes.
// POST /api/v1/runs
func (h *PipelineHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	runID, err := h.starter.Start(r.Context(), app.TriggerAPI)
	if errors.Is(err, app.ErrLockHeld) {
		h.respondError(w, r, err, http.StatusConflict)
		return
	}
	if err != nil {
		h.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":    "Pipeline run started",
		"run_id":     runID,
		"status":     model.StatusRunning,
		"created_at": time.Now().UTC(),
	})
}

// ListRuns returns the run history, newest first.
// GET /api/v1/runs
func (h *PipelineHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.runs.ListRuns(r.Context())
	if err != nil {
		h.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun returns one run with its result and artifacts.
// GET /api/v1/runs/{id}
func (h *PipelineHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	rec, err := h.runs.GetRun(r.Context(), runID)
	if errors.Is(err, store.ErrRunNotFound) {
		h.respondError(w, r, err, http.StatusNotFound)
		return
	}
	if err != nil {
		h.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	files := []FileInfo{}
	names, err := h.outputs.ListFiles(runID)
	if err != nil && !os.IsNotExist(err) {
		h.log.Warn("failed to list run files", "run_id", runID, "error", err)
	}
	for _, name := range names {
		files = append(files, FileInfo{
			Name:        name,
			Type:        h.outputs.FileType(name),
			DownloadURL: h.outputs.DownloadURL(runID, name),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":   rec,
		"files": files,
	})
}

// GetRunFile downloads a run artifact.
// GET /api/v1/runs/{id}/files/{name}
func (h *PipelineHandler) GetRunFile(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")

	path, err := h.outputs.ExistingFilePath(runID, name)
	if err != nil {
		h.respondError(w, r, errors.New("file not found"), http.StatusNotFound)
		return
	}

	switch h.outputs.FileType(name) {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
	case "json":
		w.Header().Set("Content-Type", "application/json")
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Disposition", "attachment; filename=\""+name+"\"")
	http.ServeFile(w, r, path)
}

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (h *PipelineHandler) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	requestID := middleware.GetReqID(r.Context())
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", r.URL.Path, "status", status, "error", err, "request_id", requestID)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
