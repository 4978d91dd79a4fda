package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/nerrad567/labeldash/internal/labels"
)

// handlePrint validates a print job and queues it for the printer listener.
// Delivery is fire-and-forget, so success is 202 Accepted.
func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	var job labels.PrintJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sub, err := s.submitter.Submit(r.Context(), job)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":       sub.Job.JobID,
		"topic":        sub.Topic,
		"submitted_at": sub.SubmittedAt,
		"connected":    s.session.Snapshot().Connected,
	})
}

// handleListJobs returns recently submitted jobs, newest first.
// The optional limit query parameter caps the result.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "job history is disabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	jobs, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing print jobs failed", "error", err)
		writeInternalError(w, "listing print jobs failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}
