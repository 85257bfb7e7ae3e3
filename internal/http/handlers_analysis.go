package httpx

import (
	"net/http"

	"github.com/chainsight/persona-api/internal/domain/model"
	"github.com/chainsight/persona-api/internal/service"
)

// AnalysisHandlers serves the asynchronous wallet analysis endpoints.
type AnalysisHandlers struct {
	Svc *service.AnalysisService
}

// Start handles POST /analyze/start/{wallet_address}. It returns promptly
// with a job handle: queued for new work, completed for cache hits.
func (h *AnalysisHandlers) Start(w http.ResponseWriter, r *http.Request) {
	handle, err := h.Svc.Start(r.Context(), r.PathValue("wallet_address"))
	if err != nil {
		WriteAppError(w, err)
		return
	}

	code := http.StatusAccepted
	if handle.Status == model.JobStatusCompleted {
		code = http.StatusOK
	}
	WriteJSON(w, code, handle)
}

// statusResponse is the polling view of a job record. Result fields are
// flattened so clients read persona and scores without an extra nesting
// level.
type statusResponse struct {
	JobID            string             `json:"job_id"`
	Status           model.JobStatus    `json:"status"`
	WalletAddress    string             `json:"wallet_address,omitempty"`
	Persona          string             `json:"persona,omitempty"`
	ClusterLabel     *int               `json:"cluster_label,omitempty"`
	ConfidenceScores map[string]float64 `json:"confidence_scores,omitempty"`
	Explanation      string             `json:"explanation,omitempty"`
	Stats            map[string]float64 `json:"stats,omitempty"`
	MissingFields    []string           `json:"missing_fields,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// Status handles GET /analyze/status/{job_id}.
func (h *AnalysisHandlers) Status(w http.ResponseWriter, r *http.Request) {
	job, err := h.Svc.Status(r.Context(), r.PathValue("job_id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}

	resp := statusResponse{
		JobID:         job.ID,
		Status:        job.Status,
		WalletAddress: job.WalletAddress,
		Error:         job.Error,
	}
	if job.Result != nil {
		label := job.Result.ClusterLabel
		resp.Persona = job.Result.Persona
		resp.ClusterLabel = &label
		resp.ConfidenceScores = job.Result.ConfidenceScores
		resp.Explanation = job.Result.Explanation
		resp.Stats = job.Result.Stats
		resp.MissingFields = job.Result.MissingFields
	}
	WriteJSON(w, http.StatusOK, resp)
}
