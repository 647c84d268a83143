package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/lbastidas/inboundscan/internal/domain"
)

// maxBodyBytes caps request bodies; every payload here is a handful of scan
// codes.
const maxBodyBytes = 64 << 10

type sessionJSON struct {
	ID          int64      `json:"id"`
	OuterBoxID  string     `json:"outerBoxId"`
	InnerBoxID  string     `json:"innerBoxId"`
	ExpectedQty int        `json:"expectedQty"`
	Status      string     `json:"status"`
	LockedBy    string     `json:"lockedBy"`
	LockedSKU   string     `json:"lockedSku,omitempty"`
	LockedAt    time.Time  `json:"lockedAt"`
	LastSeen    time.Time  `json:"lastSeen"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
}

type itemJSON struct {
	ID           int64     `json:"id"`
	SessionID    int64     `json:"sessionId"`
	SKU          string    `json:"sku"`
	SerialNumber string    `json:"serialNumber"`
	PackedBy     string    `json:"packedBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toSessionJSON(s *domain.Session) *sessionJSON {
	return &sessionJSON{
		ID:          s.ID,
		OuterBoxID:  s.OuterBoxID,
		InnerBoxID:  s.InnerBoxID,
		ExpectedQty: s.ExpectedQty,
		Status:      string(s.Status),
		LockedBy:    s.LockedBy,
		LockedSKU:   s.LockedSKU,
		LockedAt:    s.LockedAt,
		LastSeen:    s.LastSeen,
		ConfirmedAt: s.ConfirmedAt,
	}
}

func toItemJSON(i *domain.Item) *itemJSON {
	return &itemJSON{
		ID:           i.ID,
		SessionID:    i.SessionID,
		SKU:          i.SKU,
		SerialNumber: i.SerialNumber,
		PackedBy:     i.PackedBy,
		CreatedAt:    i.CreatedAt,
	}
}

func toItemsJSON(items []*domain.Item) []*itemJSON {
	out := make([]*itemJSON, 0, len(items))
	for _, item := range items {
		out = append(out, toItemJSON(item))
	}
	return out
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, nil, &domain.ValidationError{Field: "body", Reason: "malformed JSON"})
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// errorJSON carries a machine-readable code, the human-readable reason, and
// enough structured detail for the client to pick its next UI state without a
// follow-up query.
type errorJSON struct {
	Error  string         `json:"error"`
	Reason string         `json:"reason"`
	Detail map[string]any `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ve *domain.ValidationError
	var nf *domain.NotFoundError
	var oe *domain.OwnershipError
	var se *domain.StateError
	var ce *domain.ConflictError

	switch {
	case errors.As(err, &ve):
		respondJSON(w, http.StatusBadRequest, errorJSON{
			Error:  "validation",
			Reason: ve.Error(),
			Detail: map[string]any{"field": ve.Field},
		})
	case errors.As(err, &nf):
		respondJSON(w, http.StatusNotFound, errorJSON{
			Error:  "not-found",
			Reason: nf.Error(),
			Detail: map[string]any{"sessionId": nf.SessionID},
		})
	case errors.As(err, &oe):
		respondJSON(w, http.StatusForbidden, errorJSON{
			Error:  "ownership",
			Reason: oe.Error(),
			Detail: map[string]any{"lockedBy": oe.Holder},
		})
	case errors.As(err, &se):
		// Acting on a session outside IN_PROGRESS is a state conflict, not a
		// permissions problem: the session exists but has moved on.
		respondJSON(w, http.StatusConflict, errorJSON{
			Error:  "state",
			Reason: se.Error(),
			Detail: map[string]any{"status": string(se.Status)},
		})
	case errors.As(err, &ce):
		respondJSON(w, http.StatusConflict, errorJSON{
			Error:  "conflict",
			Reason: ce.Error(),
			Detail: conflictDetail(ce),
		})
	default:
		if logger != nil {
			logger.Error("internal error", "error", err)
		} else {
			slog.Error("internal error", "error", err)
		}
		respondJSON(w, http.StatusInternalServerError, errorJSON{
			Error:  "internal",
			Reason: "internal server error",
		})
	}
}

func conflictDetail(ce *domain.ConflictError) map[string]any {
	detail := map[string]any{"kind": string(ce.Kind)}
	switch ce.Kind {
	case domain.ConflictDuplicateSerial:
		detail["serialNumber"] = ce.SerialNumber
	case domain.ConflictSKUMismatch:
		detail["lockedSku"] = ce.LockedSKU
		detail["offeredSku"] = ce.OfferedSKU
	case domain.ConflictQuantityMismatch:
		detail["scanned"] = ce.Scanned
		detail["expected"] = ce.Expected
	}
	return detail
}

func sessionIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, nil, &domain.ValidationError{Field: "id", Reason: "must be an integer"})
		return 0, false
	}
	return id, true
}
