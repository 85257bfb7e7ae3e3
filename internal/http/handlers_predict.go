package httpx

import (
	"net/http"

	"github.com/chainsight/persona-api/internal/service"
)

// PredictHandlers serves the synchronous model endpoint for callers that
// already hold feature values and want a classification without the
// analytics engine round trip.
type PredictHandlers struct {
	Svc *service.AnalysisService
}

type predictRequest struct {
	Features map[string]float64 `json:"features"`
}

// Predict handles POST /predict.
func (h *PredictHandlers) Predict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	prediction, err := h.Svc.Predict(req.Features)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, prediction)
}
