package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dayflow/internal/runner"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type runRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

type runResponse struct {
	UserID string `json:"user_id"`
	Queued bool   `json:"queued"`
}

// handleRun enqueues a scheduling pass. 202 on accept; a duplicate request for
// a user already queued or running is a conflict, not an error to retry.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body runRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	body.UserID = strings.TrimSpace(body.UserID)
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	reason := body.Reason
	if reason == "" {
		reason = "api"
	}

	err := s.run.Enqueue(runner.Request{UserID: body.UserID, Reason: reason})
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, runResponse{UserID: body.UserID, Queued: true})
	case errors.Is(err, runner.ErrAlreadyRuns):
		writeError(w, http.StatusConflict, "run already queued for user")
	case errors.Is(err, runner.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "queue full, try again later")
	case errors.Is(err, runner.ErrDisabled), errors.Is(err, runner.ErrStopped), errors.Is(err, runner.ErrStopping):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type runRecordDTO struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
	TookMS    int64     `json:"took_ms"`
	Placed    int       `json:"placed"`
	Unplaced  int       `json:"unplaced"`
	Error     string    `json:"error,omitempty"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeError(w, http.StatusBadRequest, "limit must be an integer in [1,200]")
			return
		}
		limit = n
	}

	recs, err := s.store.ListRuns(r.Context(), userID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]runRecordDTO, 0, len(recs))
	for _, rec := range recs {
		out = append(out, runRecordDTO{
			ID:        rec.ID,
			UserID:    rec.UserID,
			StartedAt: rec.StartedAt,
			TookMS:    rec.TookMS,
			Placed:    rec.Placed,
			Unplaced:  rec.Unplaced,
			Error:     rec.Error,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type statusResponse struct {
	Enabled  bool   `json:"enabled"`
	Workers  int    `json:"workers"`
	QueueLen int    `json:"queue_len"`
	QueueCap int    `json:"queue_cap"`
	InFlight int    `json:"in_flight"`
	Pending  int    `json:"pending"`
	Dropped  uint64 `json:"dropped"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap := s.run.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{
		Enabled:  snap.Enabled,
		Workers:  snap.Workers,
		QueueLen: snap.QueueLen,
		QueueCap: snap.QueueCap,
		InFlight: snap.InFlight,
		Pending:  snap.Pending,
		Dropped:  snap.Dropped,
	})
}
