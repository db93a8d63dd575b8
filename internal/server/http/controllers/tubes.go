package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	tubesvc "github.com/dreadatour/deque/internal/services/tubes"
)

// TubesController exposes the tube lifecycle operations.
type TubesController struct {
	svc *tubesvc.Service
}

func NewTubesController(svc *tubesvc.Service) *TubesController {
	return &TubesController{svc: svc}
}

// RegisterRoutes registers tube and session routes with the given mux.
func (c *TubesController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/tubes/put", c.handlePut)
	mux.HandleFunc("/v1/tubes/take", c.handleTake)
	mux.HandleFunc("/v1/tubes/ack", c.handleAck)
	mux.HandleFunc("/v1/tubes/release", c.handleRelease)
	mux.HandleFunc("/v1/tubes/peek", c.handlePeek)
	mux.HandleFunc("/v1/tubes/delete", c.handleDelete)
	mux.HandleFunc("/v1/tubes/drop", c.handleDrop)
	mux.HandleFunc("/v1/tubes/list", c.handleList)
	mux.HandleFunc("/v1/tubes/stats", c.handleStats)
	mux.HandleFunc("/v1/sessions/new", c.handleSessionNew)
	mux.HandleFunc("/v1/sessions/close", c.handleSessionClose)
}

func (c *TubesController) handlePut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req tubesvc.PutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	row, err := c.svc.Put(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, row)
}

// handleTake returns the next task row, or 204 when no task arrived
// within the timeout.
func (c *TubesController) handleTake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req tubesvc.TakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	row, ok, err := c.svc.Take(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		writeNoContent(w)
		return
	}
	writeJSON(w, row)
}

func (c *TubesController) handleAck(w http.ResponseWriter, r *http.Request) {
	c.handleTaskOp(w, r, c.svc.Ack)
}

func (c *TubesController) handleRelease(w http.ResponseWriter, r *http.Request) {
	c.handleTaskOp(w, r, c.svc.Release)
}

func (c *TubesController) handleTaskOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, req tubesvc.TaskRequest) (tubesvc.Row, error)) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req tubesvc.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	row, err := op(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, row)
}

func (c *TubesController) handlePeek(w http.ResponseWriter, r *http.Request) {
	tube, id, ok := c.taskArgs(w, r)
	if !ok {
		return
	}
	row, err := c.svc.Peek(r.Context(), tube, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, row)
}

func (c *TubesController) handleDelete(w http.ResponseWriter, r *http.Request) {
	tube, id, ok := c.taskArgs(w, r)
	if !ok {
		return
	}
	row, err := c.svc.Delete(r.Context(), tube, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, row)
}

// taskArgs decodes the {tube, id} pair shared by peek and delete.
func (c *TubesController) taskArgs(w http.ResponseWriter, r *http.Request) (string, uint64, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return "", 0, false
	}
	var req tubesvc.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return "", 0, false
	}
	return req.Tube, req.ID, true
}

func (c *TubesController) handleDrop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req struct {
		Tube string `json:"tube"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := c.svc.Drop(r.Context(), req.Tube); err != nil {
		writeServiceError(w, err)
		return
	}
	writeNoContent(w)
}

func (c *TubesController) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	rows, err := c.svc.ListTasks(r.Context(), q.Get("tube"), q.Get("filter"), parseLimit(q.Get("limit")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"tasks": rows})
}

// handleStats reports per-state counts for one tube, or the registered
// tube names plus per-tube counts when no tube is given.
func (c *TubesController) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	name := r.URL.Query().Get("tube")
	if name != "" {
		st, err := c.svc.Stats(r.Context(), name)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, st)
		return
	}
	out := make(map[string]any)
	for _, n := range c.svc.Tubes(r.Context()) {
		st, err := c.svc.Stats(r.Context(), n)
		if err != nil {
			continue
		}
		out[n] = st
	}
	writeJSON(w, map[string]any{"tubes": out})
}

func (c *TubesController) handleSessionNew(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, map[string]string{"session": c.svc.NewSession()})
}

// handleSessionClose releases every task the session still holds. This
// is the disconnect hook consumers call on teardown.
func (c *TubesController) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req struct {
		Session string `json:"session"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Session == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	released := c.svc.CloseSession(r.Context(), req.Session)
	writeJSON(w, map[string]int{"released": released})
}
