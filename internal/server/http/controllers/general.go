package controllers

import (
	"net/http"

	"github.com/dreadatour/deque/internal/engine"
)

// GeneralController handles health and introspection endpoints.
type GeneralController struct {
	eng *engine.Engine
}

func NewGeneralController(eng *engine.Engine) *GeneralController {
	return &GeneralController{eng: eng}
}

// RegisterRoutes registers general routes with the given mux.
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
}

// handleHealth returns 200 with {"status":"ok"} while the engine is
// serving, 503 otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if err := c.eng.CheckHealth(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}
