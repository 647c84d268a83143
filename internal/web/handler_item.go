package web

import "net/http"

type insertItemRequest struct {
	SKU          string `json:"sku"`
	SerialNumber string `json:"serialNumber"`
	Operator     string `json:"operator"`
}

func (s *Server) handleInsertItem(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}
	var req insertItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := s.ledger.Insert(r.Context(), id, req.SKU, req.SerialNumber, req.Operator)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"item": toItemJSON(item)})
}

type validateSKURequest struct {
	SKU      string `json:"sku"`
	Operator string `json:"operator"`
}

func (s *Server) handleValidateSKU(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}
	var req validateSKURequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lockedSKU, err := s.ledger.ValidateSKU(r.Context(), id, req.SKU, req.Operator)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "lockedSku": lockedSKU})
}

type resetBatchRequest struct {
	Serials  []string `json:"serials"`
	Operator string   `json:"operator"`
}

func (s *Server) handleResetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(w, r)
	if !ok {
		return
	}
	var req resetBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	deleted, err := s.ledger.ResetBatch(r.Context(), id, req.Serials, req.Operator)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}
