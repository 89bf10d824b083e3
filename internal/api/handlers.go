package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fieldform/dashboard/internal/config"
	"github.com/fieldform/dashboard/internal/orchestrator"
)

var startTime = time.Now()

type Handlers struct {
	cfg  *config.Config
	orch *orchestrator.Orchestrator
}

func NewHandlers(cfg *config.Config, orch *orchestrator.Orchestrator) *Handlers {
	return &Handlers{cfg: cfg, orch: orch}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":        "0.1.0",
		"uptime_seconds": int(time.Since(startTime).Seconds()),
	})
}

type LaunchSingleRequest struct {
	URL            string `json:"url"`
	Headless       bool   `json:"headless"`
	VisitNumber    string `json:"visit_number,omitempty"`
	StoreName      string `json:"store_name,omitempty"`
	DispenserCount int    `json:"dispenser_count,omitempty"`
}

func (h *Handlers) LaunchSingle(w http.ResponseWriter, r *http.Request) {
	var req LaunchSingleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.orch.LaunchSingle(r.Context(), orchestrator.SingleRequest{
		TargetURL:      req.URL,
		Headless:       req.Headless,
		VisitNumber:    req.VisitNumber,
		StoreName:      req.StoreName,
		DispenserCount: req.DispenserCount,
	})
	if err != nil {
		writeLaunchError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"job_id": id})
}

type LaunchBatchRequest struct {
	SourcePath        string   `json:"source_path"`
	Headless          bool     `json:"headless"`
	SelectedVisits    []string `json:"selected_visits"`
	ResumeFromBatchID string   `json:"resume_from_batch_id,omitempty"`
}

func (h *Handlers) LaunchBatch(w http.ResponseWriter, r *http.Request) {
	var req LaunchBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.orch.LaunchBatch(r.Context(), orchestrator.BatchRequest{
		SourcePath:        req.SourcePath,
		Headless:          req.Headless,
		SelectedVisits:    req.SelectedVisits,
		ResumeFromBatchID: req.ResumeFromBatchID,
	})
	if err != nil {
		writeLaunchError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"job_id":       id,
		"total_visits": len(req.SelectedVisits),
	})
}

type CancelRequest struct {
	JobID string `json:"job_id,omitempty"`
}

func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.orch.Cancel(r.Context(), req.JobID); err != nil {
		if errors.Is(err, orchestrator.ErrNoActiveJob) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handlers) SingleState(w http.ResponseWriter, r *http.Request) {
	active, history := h.orch.SingleState()
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  active,
		"history": history,
	})
}

func (h *Handlers) BatchState(w http.ResponseWriter, r *http.Request) {
	current, lastFailedID := h.orch.BatchState()
	writeJSON(w, http.StatusOK, map[string]any{
		"current":              current,
		"last_failed_batch_id": lastFailedID,
	})
}

func (h *Handlers) LastURL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"url": h.orch.LastURL()})
}

func writeLaunchError(w http.ResponseWriter, err error) {
	var vErr *orchestrator.ValidationError
	if errors.As(err, &vErr) {
		writeError(w, http.StatusBadRequest, vErr.Error())
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
