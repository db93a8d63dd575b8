package controllers

import (
	"net/http"

	"github.com/dreadatour/deque/internal/engine"
	tubesvc "github.com/dreadatour/deque/internal/services/tubes"
)

// Registry manages all HTTP controllers.
type Registry struct {
	general *GeneralController
	tubes   *TubesController
}

// NewRegistry creates controllers for the engine and tubes service.
func NewRegistry(eng *engine.Engine, svc *tubesvc.Service) *Registry {
	return &Registry{
		general: NewGeneralController(eng),
		tubes:   NewTubesController(svc),
	}
}

// RegisterAllRoutes registers every controller route with the given mux.
func (r *Registry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.tubes.RegisterRoutes(mux)
}
