package http

import (
	"errors"
	"net/http"

	"goalplanner/internal/core"
	"goalplanner/internal/filter"
	"goalplanner/internal/log"
	"goalplanner/internal/metrics"
	"goalplanner/internal/storage"
	"goalplanner/internal/store"
)

type overviewResponse struct {
	Date       core.Date            `json:"date"`
	Summary    metrics.Overview     `json:"summary"`
	Goals      []metrics.GoalReport `json:"goals"`
	Categories []core.CategoryTotal `json:"categories"`
}

// handleOverview returns the summary, per-goal report and category totals,
// computed over all goals or only the far ones.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
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

	resp := overviewResponse{
		Date:       ref,
		Summary:    metrics.Summarize(goals),
		Goals:      metrics.Report(goals, ref),
		Categories: metrics.ByCategory(goals),
	}
	if resp.Categories == nil {
		resp.Categories = []core.CategoryTotal{}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

type reloadResponse struct {
	Count   int    `json:"count"`
	Warning string `json:"warning,omitempty"`
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.reload == nil {
		writeError(w, r, http.StatusNotImplemented, "reload not configured")
		return
	}

	res, err := s.reload(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNoFallback) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Reload failed without fallback",
				log.FieldOperation, log.OpLoad, log.FieldError, err)
			writeError(w, r, http.StatusBadGateway, "remote service unavailable and no local fallback")
			return
		}
		writeStoreError(w, r, err)
		return
	}
	s.SetReady(true)

	resp := reloadResponse{Count: res.Count}
	if res.Degraded {
		w.Header().Set(HeaderSyncDegraded, "true")
		resp.Warning = "remote service unavailable; serving the last known goals"
	}
	writeJSON(w, r, http.StatusOK, resp)
}

type syncStatusResponse struct {
	Ready   bool                          `json:"ready"`
	Goals   int                           `json:"goals"`
	Journal bool                          `json:"journal"`
	Queue   *storage.GetSyncQueueStatsRow `json:"queue,omitempty"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	resp := syncStatusResponse{
		Ready:   s.ready.Load(),
		Goals:   len(s.goals.Snapshot()),
		Journal: s.sync != nil,
	}
	if s.sync != nil {
		stats, err := s.sync.Stats(r.Context())
		if err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to read sync queue stats", log.FieldError, err)
			writeError(w, r, http.StatusInternalServerError, "sync status unavailable")
			return
		}
		resp.Queue = stats
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleSyncRetry(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		writeError(w, r, http.StatusServiceUnavailable, "sync journal disabled")
		return
	}
	n, err := s.sync.RetryFailed(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int64{"requeued": n})
}
