package httpx

import (
	"net/http"

	"github.com/chainsight/persona-api/internal/core"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	Cache core.CacheRepository
}

// Health handles GET /healthz. Readiness depends on the cache store, the
// only stateful dependency on the request path.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.Cache != nil {
		if err := h.Cache.Health(r.Context()); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"cache":  err.Error(),
			})
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Root handles GET /. A plain banner so load balancers and humans get a
// sensible answer at the root path.
func (h *HealthHandlers) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "not_found",
			Err:     errNotFound,
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"service": "persona-api",
		"status":  "running",
	})
}
