package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/store"
)

// userID resolves the user from the request, falling back to the single
// local user. Every route stays keyed by user id even though the current
// deployment only ever passes one.
func userID(r *http.Request) string {
	if u := r.URL.Query().Get("user_id"); u != "" {
		return u
	}
	return config.DefaultUserID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string  `json:"user_id"`
		Type   string  `json:"type"`
		Topic  string  `json:"topic"`
		Meta   string  `json:"meta"`
		Weight float64 `json:"weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		http.Error(w, `{"error":"type required"}`, http.StatusBadRequest)
		return
	}

	e := store.NewEvent(req.Type, req.Topic, req.Meta, req.Weight)
	if req.UserID != "" {
		e.UserID = req.UserID
	}
	// Fire-and-forget: Append never reports persistence failure upward.
	s.mem.Append(e)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// maxRecentEventsLimit bounds one recent-events response.
const maxRecentEventsLimit = 500

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxRecentEventsLimit {
		limit = maxRecentEventsLimit
	}

	events := s.mem.RecentEvents(userID(r), limit)
	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		out = append(out, map[string]any{
			"id":     e.ID,
			"type":   e.Type,
			"topic":  e.Topic,
			"weight": e.Weight,
			"at_utc": e.AtUTC,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) handleUpsertFact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string  `json:"user_id"`
		Key        string  `json:"key"`
		Value      string  `json:"value"`
		ScoreDelta float64 `json:"score_delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.Key == "" {
		http.Error(w, `{"error":"key required"}`, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = config.DefaultUserID
	}

	s.mem.UpsertFact(req.UserID, req.Key, req.Value, req.ScoreDelta)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Server) handleListFacts(w http.ResponseWriter, r *http.Request) {
	facts := s.mem.Facts(userID(r))
	out := make([]map[string]any, 0, len(facts))
	for _, f := range facts {
		out = append(out, map[string]any{
			"key":         f.Key,
			"value":       f.Value,
			"score":       f.Score,
			"updated_utc": f.UpdatedUTC,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"facts": out})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	maxAge := 15 * time.Minute
	if v := r.URL.Query().Get("max_age_seconds"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			maxAge = time.Duration(n) * time.Second
		}
	}

	snap, err := s.mem.GetOrBuild(userID(r), maxAge)
	if err != nil {
		http.Error(w, `{"error":"snapshot rebuild failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snapshotJSON(snap))
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mem.Rebuild(userID(r))
	if err != nil {
		http.Error(w, `{"error":"snapshot rebuild failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snapshotJSON(snap))
}

func snapshotJSON(snap *store.Snapshot) map[string]any {
	return map[string]any{
		"user_id":   snap.UserID,
		"version":   snap.Version,
		"built_utc": snap.BuiltUTC,
		"lines":     snap.Lines,
		"text":      snap.AsText(),
	}
}

func (s *Server) handleListProfile(w http.ResponseWriter, r *http.Request) {
	entries, err := s.db.ListProfile(userID(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	out := make(map[string]string, len(entries))
	for _, p := range entries {
		out[p.Key] = p.Value
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": out})
}

func (s *Server) handleSetProfile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	if err := s.db.SetProfile(userID(r), key, req.Value); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if err := s.db.DeleteProfile(userID(r), key); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	if err := s.mem.RunMaintenance(userID(r)); err != nil {
		http.Error(w, `{"error":"maintenance failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	// Forget is the one destructive multi-table operation; its failure must
	// surface so the host can tell the user the erasure did not complete.
	if err := s.mem.Forget(userID(r)); err != nil {
		http.Error(w, `{"error":"forget failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "forgotten"})
}
