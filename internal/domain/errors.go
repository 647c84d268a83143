package domain

import "fmt"

// ValidationError reports malformed or missing input. No state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an unknown session id.
type NotFoundError struct {
	SessionID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %d not found", e.SessionID)
}

// OwnershipError reports an operation attempted by an operator who does not
// hold the session's claim. Holder names the current lock holder so the
// caller can surface it without another query.
type OwnershipError struct {
	Holder   string
	Operator string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("session is locked by %q, not %q", e.Holder, e.Operator)
}

// StateError reports an operation that is invalid for the session's current
// status, such as completing a session that is no longer IN_PROGRESS or
// completing a session whose expected quantity was never configured.
type StateError struct {
	Status SessionStatus
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s (status %s)", e.Reason, e.Status)
}

// ConflictKind discriminates the conflict variants so the HTTP layer and
// clients can branch without string matching.
type ConflictKind string

const (
	ConflictDuplicateSerial  ConflictKind = "duplicate-serial"
	ConflictSKUMismatch      ConflictKind = "sku-mismatch"
	ConflictQuantityMismatch ConflictKind = "quantity-mismatch"
	ConflictAlreadyConfirmed ConflictKind = "already-confirmed"
)

// ConflictError reports a request that was well-formed and owned but collides
// with recorded state: a serial already in the ledger, a SKU other than the
// session's pinned one, a completion count that does not match, or a claim on
// a box that was already confirmed.
type ConflictError struct {
	Kind         ConflictKind
	SerialNumber string
	LockedSKU    string
	OfferedSKU   string
	Scanned      int
	Expected     int
}

func (e *ConflictError) Error() string {
	switch e.Kind {
	case ConflictDuplicateSerial:
		return fmt.Sprintf("serial %q has already been scanned", e.SerialNumber)
	case ConflictSKUMismatch:
		return fmt.Sprintf("session is locked to SKU %q, got %q", e.LockedSKU, e.OfferedSKU)
	case ConflictQuantityMismatch:
		return fmt.Sprintf("scanned %d items but expected %d", e.Scanned, e.Expected)
	case ConflictAlreadyConfirmed:
		return "box has already been confirmed"
	default:
		return string(e.Kind)
	}
}

func NewDuplicateSerial(serial string) *ConflictError {
	return &ConflictError{Kind: ConflictDuplicateSerial, SerialNumber: serial}
}

func NewSKUMismatch(locked, offered string) *ConflictError {
	return &ConflictError{Kind: ConflictSKUMismatch, LockedSKU: locked, OfferedSKU: offered}
}

func NewQuantityMismatch(scanned, expected int) *ConflictError {
	return &ConflictError{Kind: ConflictQuantityMismatch, Scanned: scanned, Expected: expected}
}

func NewAlreadyConfirmed() *ConflictError {
	return &ConflictError{Kind: ConflictAlreadyConfirmed}
}
