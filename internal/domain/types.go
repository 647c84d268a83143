package domain

import "time"

// SessionStatus is the lifecycle state of an inbound scan session.
// IN_PROGRESS is the only non-terminal state.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "IN_PROGRESS"
	StatusConfirmed  SessionStatus = "CONFIRMED"
	StatusAbandoned  SessionStatus = "ABANDONED"
)

// Session is one claim on an inner box inside an outer box. At most one
// non-ABANDONED session may exist per (OuterBoxID, InnerBoxID) pair;
// CONFIRMED sessions block that pair permanently.
type Session struct {
	ID          int64
	OuterBoxID  string
	InnerBoxID  string
	ExpectedQty int
	Status      SessionStatus
	LockedBy    string
	LockedSKU   string // empty until the first accepted item pins it
	LockedAt    time.Time
	LastSeen    time.Time
	ConfirmedAt *time.Time
}

// Item is one accepted (SKU, serial) scan. Items are append-only and are
// removed only by a whole-session reset or a batch-scoped reset.
type Item struct {
	ID           int64
	SessionID    int64
	SKU          string
	SerialNumber string
	PackedBy     string
	CreatedAt    time.Time
}
