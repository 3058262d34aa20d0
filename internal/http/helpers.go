package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"goalplanner/internal/core"
	"goalplanner/internal/log"
	"goalplanner/internal/store"
)

const (
	maxBodyBytes = 1 << 20

	// HeaderSyncDegraded marks a mutation that was applied locally only.
	HeaderSyncDegraded = "X-Sync-Degraded"
	HeaderRequestID    = "X-Request-ID"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// mutationResponse is the body of every successful mutation. Warning is set
// when the remote service could not be reached and the change is pending.
type mutationResponse struct {
	ID      string     `json:"id"`
	Goal    *core.Goal `json:"goal,omitempty"`
	Warning string     `json:"warning,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to encode response", log.FieldError, err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg, RequestID: w.Header().Get(HeaderRequestID)})
}

// writeOutcome answers a mutation. Degraded outcomes keep the success status
// and carry a warning.
func writeOutcome(w http.ResponseWriter, r *http.Request, status int, out store.Outcome, includeGoal bool) {
	resp := mutationResponse{ID: out.Goal.ID}
	if includeGoal {
		g := out.Goal
		resp.Goal = &g
	}
	if out.Degraded {
		w.Header().Set(HeaderSyncDegraded, "true")
		resp.Warning = "saved locally; the remote service is unavailable and the change will be synced later"
		log.FromContext(r.Context()).WarnContext(r.Context(), "Mutation applied locally only",
			log.FieldGoalID, out.Goal.ID, log.FieldDegraded, true, log.FieldError, out.Cause)
	}
	writeJSON(w, r, status, resp)
}

// writeStoreError maps store and validation errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrGoalNotFound):
		writeError(w, r, http.StatusNotFound, "goal not found")
	case isValidationError(err):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusServiceUnavailable, "request cancelled")
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Goal operation failed", log.FieldError, err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidAmount,
		core.ErrNegativeAmount,
		core.ErrEmptyName,
		core.ErrNameTooLong,
		core.ErrMissingDeadline,
		core.ErrInvalidDate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// decodeJSON reads a size-limited JSON body into v. Unknown fields are
// rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}

// parseFarQuery reads ?far=true&threshold=N. The threshold defaults to def.
func parseFarQuery(r *http.Request, def int) (far bool, threshold int, err error) {
	q := r.URL.Query()
	threshold = def
	if v := strings.TrimSpace(q.Get("far")); v != "" {
		far, err = strconv.ParseBool(v)
		if err != nil {
			return false, 0, fmt.Errorf("invalid far parameter %q", v)
		}
	}
	if v := strings.TrimSpace(q.Get("threshold")); v != "" {
		threshold, err = strconv.Atoi(v)
		if err != nil || threshold < 0 {
			return false, 0, fmt.Errorf("invalid threshold parameter %q", v)
		}
		far = true
	}
	return far, threshold, nil
}

// parseRefDate reads ?date=YYYY-MM-DD, defaulting to today.
func parseRefDate(r *http.Request) (core.Date, error) {
	v := strings.TrimSpace(r.URL.Query().Get("date"))
	if v == "" {
		return core.Today(), nil
	}
	return core.ParseDate(v)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// requestID reuses a well-formed incoming X-Request-ID or generates one.
func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(HeaderRequestID)); id != "" && len(id) <= 64 && sanitizeInput(id) == id {
		return id
	}
	return generateRequestID()
}
