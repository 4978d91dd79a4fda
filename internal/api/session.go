package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// subscriptionRequest is the body of POST /api/v1/subscriptions.
type subscriptionRequest struct {
	Topic string `json:"topic"`
}

// handleGetState returns the latest session snapshot.
func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handleListSubscriptions returns the tracked topics and their states.
func (s *Server) handleListSubscriptions(w http.ResponseWriter, _ *http.Request) {
	snap := s.session.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": snap.Subscriptions,
		"count":         len(snap.Subscriptions),
	})
}

// handleSubscribe adds a topic to the desired subscription set.
//
// The response carries the topic's state once the session has handled the
// request; the broker acknowledgment may still be pending.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "topic is required")
		return
	}

	s.session.Subscribe(req.Topic)
	if err := s.session.Sync(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "session not running")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"topic": req.Topic,
		"state": s.session.Snapshot().Subscriptions[req.Topic],
	})
}

// handleUnsubscribe removes the topic given by the topic query parameter.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	topic := strings.TrimSpace(r.URL.Query().Get("topic"))
	if topic == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "topic query parameter is required")
		return
	}
	if _, tracked := s.session.Snapshot().Subscriptions[topic]; !tracked {
		writeNotFound(w, "topic is not subscribed")
		return
	}

	s.session.Unsubscribe(topic)
	if err := s.session.Sync(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "session not running")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
