package web

import (
	"net/http"

	"github.com/lbastidas/inboundscan/internal/domain"
)

type claimRequest struct {
	OuterBoxID  string `json:"outerBoxId"`
	InnerBoxID  string `json:"innerBoxId"`
	ExpectedQty int    `json:"expectedQty"`
	Operator    string `json:"operator"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, items, err := s.coordinator.Claim(r.Context(), req.OuterBoxID, req.InnerBoxID, req.ExpectedQty, req.Operator)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"session":   toSessionJSON(session),
		"items":     toItemsJSON(items),
		"batchSize": s.batchSize,
	})
}

type operatorRequest struct {
	Operator string `json:"operator"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}
	var req operatorRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	alive, err := s.coordinator.Heartbeat(r.Context(), id, req.Operator)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if !alive {
		respondJSON(w, http.StatusForbidden, errorJSON{
			Error:  "ownership",
			Reason: "heartbeat rejected: session is not in progress under this operator",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}
	var req operatorRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, scanned, expected, err := s.coordinator.Complete(r.Context(), id, req.Operator)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"session":  toSessionJSON(session),
		"scanned":  scanned,
		"expected": expected,
	})
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}
	var req operatorRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.coordinator.Abandon(r.Context(), id, req.Operator); err != nil {
		writeError(w, s.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}
	var req operatorRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	deleted, err := s.coordinator.Reset(r.Context(), id, req.Operator)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	status := domain.SessionStatus(r.URL.Query().Get("status"))

	sessions, err := s.coordinator.ListSessions(r.Context(), status)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	out := make([]*sessionJSON, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionJSON(sess))
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}

	session, items, err := s.coordinator.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"session": toSessionJSON(session),
		"items":   toItemsJSON(items),
	})
}
