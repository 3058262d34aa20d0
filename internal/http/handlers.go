package http

import (
	"net/http"

	"goalplanner/internal/core"
	"goalplanner/internal/filter"
	"goalplanner/internal/log"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeError(w, r, http.StatusServiceUnavailable, "goals not loaded")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleListGoals returns the collection, optionally only the goals whose
// deadline is at least threshold days away.
func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	far, threshold, err := parseFarQuery(r, s.farThreshold)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ref, err := parseRefDate(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	goals := s.goals.Snapshot()
	if far {
		goals = filter.FarGoals(goals, ref, threshold)
	}
	if goals == nil {
		goals = []core.Goal{}
	}
	writeJSON(w, r, http.StatusOK, goals)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	g, ok := s.goals.Get(r.PathValue("id"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "goal not found")
		return
	}
	writeJSON(w, r, http.StatusOK, g)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var d core.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	d.Name = sanitizeInput(d.Name)
	d.Category = sanitizeInput(d.Category)

	out, err := s.goals.Add(r.Context(), d)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Goal created",
		log.NewFields().WithGoal(out.Goal).WithOperation(log.OpCreate).ToSlice()...)
	w.Header().Set("Location", "/goals/"+out.Goal.ID)
	writeOutcome(w, r, http.StatusCreated, out, true)
}

func (s *Server) handleReplaceGoal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var g core.Goal
	if err := decodeJSON(w, r, &g); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if g.ID != "" && g.ID != id {
		writeError(w, r, http.StatusUnprocessableEntity, "goal id does not match the path")
		return
	}
	g.ID = id
	g.Name = sanitizeInput(g.Name)
	g.Category = sanitizeInput(g.Category)

	out, err := s.goals.Update(r.Context(), g)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Goal replaced",
		log.NewFields().WithGoal(out.Goal).WithOperation(log.OpUpdate).ToSlice()...)
	writeOutcome(w, r, http.StatusOK, out, true)
}

func (s *Server) handlePatchGoal(w http.ResponseWriter, r *http.Request) {
	var p core.Patch
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if p.IsEmpty() {
		writeError(w, r, http.StatusUnprocessableEntity, "patch changes nothing")
		return
	}
	if p.Name != nil {
		name := sanitizeInput(*p.Name)
		p.Name = &name
	}
	if p.Category != nil {
		category := sanitizeInput(*p.Category)
		p.Category = &category
	}

	out, err := s.goals.Edit(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Goal edited",
		log.NewFields().WithGoal(out.Goal).WithOperation(log.OpPatch).ToSlice()...)
	writeOutcome(w, r, http.StatusOK, out, true)
}

type depositRequest struct {
	Amount core.Money `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.goals.Deposit(r.Context(), r.PathValue("id"), req.Amount)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Deposit recorded",
		log.NewFields().WithGoal(out.Goal).WithAmount(req.Amount).WithOperation(log.OpDeposit).ToSlice()...)
	writeOutcome(w, r, http.StatusOK, out, true)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	out, err := s.goals.Remove(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Goal deleted",
		log.NewFields().WithGoal(out.Goal).WithOperation(log.OpDelete).ToSlice()...)
	writeOutcome(w, r, http.StatusOK, out, false)
}
