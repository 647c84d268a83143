package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lbastidas/inboundscan/internal/domain"
	"github.com/lbastidas/inboundscan/internal/store"
)

// Coordinator arbitrates exclusive, resumable ownership of inner-box scan
// sessions. Every mutating operation runs as one immediate transaction; the
// session row is the sole serialization point.
type Coordinator struct {
	db     *sql.DB
	lease  time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewCoordinator(db *sql.DB, lease time.Duration, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		db:     db,
		lease:  lease,
		logger: logger,
		now:    time.Now,
	}
}

// Claim grants or resumes ownership of the (outerBoxID, innerBoxID) scan task.
//
// A missing row is created IN_PROGRESS for operator. An existing CONFIRMED row
// rejects all claims. An existing IN_PROGRESS row is resumed by its holder, or
// taken over by anyone once the holder's lease has expired; otherwise the
// claim fails naming the current holder. On resume the session's items are
// returned in insertion order so the client can rebuild its batch state.
func (c *Coordinator) Claim(ctx context.Context, outerBoxID, innerBoxID string, expectedQty int, operator string) (*domain.Session, []*domain.Item, error) {
	outerBoxID = domain.NormalizeID(outerBoxID)
	innerBoxID = domain.NormalizeID(innerBoxID)
	operator = domain.NormalizeID(operator)

	if outerBoxID == "" {
		return nil, nil, &domain.ValidationError{Field: "outerBoxId", Reason: "must not be empty"}
	}
	if innerBoxID == "" {
		return nil, nil, &domain.ValidationError{Field: "innerBoxId", Reason: "must not be empty"}
	}
	if operator == "" {
		return nil, nil, &domain.ValidationError{Field: "operator", Reason: "must not be empty"}
	}

	var session *domain.Session
	var items []*domain.Item

	err := withTx(ctx, c.db, func(tx *sql.Tx) error {
		sessions := store.NewSessionStore(tx)

		existing, err := sessions.GetActiveByBox(ctx, outerBoxID, innerBoxID)
		if err != nil {
			return err
		}

		if existing == nil {
			// expectedQty is validated only on first creation; resumed
			// sessions keep their stored value.
			if expectedQty < 1 {
				return &domain.ValidationError{Field: "expectedQty", Reason: "must be at least 1"}
			}
			session, err = sessions.Create(ctx, outerBoxID, innerBoxID, expectedQty, operator, c.now())
			if err != nil {
				return err
			}
			c.logger.Info("session created",
				"session_id", session.ID, "outer_box", outerBoxID, "inner_box", innerBoxID,
				"expected_qty", expectedQty, "operator", operator)
			return nil
		}

		if existing.Status == domain.StatusConfirmed {
			return domain.NewAlreadyConfirmed()
		}

		leaseExpired := c.now().Sub(existing.LastSeen) > c.lease
		if existing.LockedBy != operator && !leaseExpired {
			return &domain.OwnershipError{Holder: existing.LockedBy, Operator: operator}
		}

		takeover := existing.LockedBy != operator
		if err := sessions.UpdateClaim(ctx, existing.ID, operator, expectedQty, c.now()); err != nil {
			return err
		}

		session, err = sessions.GetByID(ctx, existing.ID)
		if err != nil {
			return err
		}

		items, err = store.NewItemStore(tx).ListBySession(ctx, existing.ID)
		if err != nil {
			return err
		}

		if takeover {
			c.logger.Info("session taken over",
				"session_id", session.ID, "previous_operator", existing.LockedBy, "operator", operator)
		} else {
			c.logger.Info("session resumed", "session_id", session.ID, "operator", operator, "items", len(items))
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return session, items, nil
}

// Heartbeat refreshes the holder's lease. It is best-effort liveness: a
// rejected heartbeat returns ok=false rather than an error, because the only
// consequence of missing heartbeats is earlier lease expiry.
func (c *Coordinator) Heartbeat(ctx context.Context, sessionID int64, operator string) (bool, error) {
	operator = domain.NormalizeID(operator)
	if operator == "" {
		return false, nil
	}

	ok, err := store.NewSessionStore(c.db).TouchIfOwner(ctx, sessionID, operator, c.now())
	if err != nil {
		return false, fmt.Errorf("heartbeat failed: %w", err)
	}
	return ok, nil
}

// Complete confirms the session once the scanned count matches the expected
// quantity exactly. On a count mismatch the session stays IN_PROGRESS so the
// operator can keep scanning or reset.
func (c *Coordinator) Complete(ctx context.Context, sessionID int64, operator string) (*domain.Session, int, int, error) {
	operator = domain.NormalizeID(operator)

	var session *domain.Session
	var scanned, expected int

	err := withTx(ctx, c.db, func(tx *sql.Tx) error {
		sessions := store.NewSessionStore(tx)

		sess, err := c.ownedInProgress(ctx, sessions, sessionID, operator)
		if err != nil {
			return err
		}

		if sess.ExpectedQty < 1 {
			return &domain.StateError{Status: sess.Status, Reason: "session has no expected quantity configured"}
		}

		scanned, err = store.NewItemStore(tx).CountBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		expected = sess.ExpectedQty

		if scanned != expected {
			return domain.NewQuantityMismatch(scanned, expected)
		}

		if err := sessions.MarkConfirmed(ctx, sessionID, c.now()); err != nil {
			return err
		}

		session, err = sessions.GetByID(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, scanned, expected, err
	}

	c.logger.Info("session confirmed", "session_id", sessionID, "operator", operator, "scanned", scanned)
	return session, scanned, expected, nil
}

// Abandon releases the claim without deleting items. The session becomes
// terminal; a new claim on the same box starts a fresh row.
func (c *Coordinator) Abandon(ctx context.Context, sessionID int64, operator string) error {
	operator = domain.NormalizeID(operator)

	err := withTx(ctx, c.db, func(tx *sql.Tx) error {
		sessions := store.NewSessionStore(tx)

		if _, err := c.ownedInProgress(ctx, sessions, sessionID, operator); err != nil {
			return err
		}

		return sessions.MarkAbandoned(ctx, sessionID)
	})
	if err != nil {
		return err
	}

	c.logger.Info("session abandoned", "session_id", sessionID, "operator", operator)
	return nil
}

// Reset deletes every item of the session, clears its SKU pin, and abandons
// it. The claim is intentionally forfeited: re-scanning the box goes through
// Claim again and gets a brand-new session row.
func (c *Coordinator) Reset(ctx context.Context, sessionID int64, operator string) (int64, error) {
	operator = domain.NormalizeID(operator)

	var deleted int64

	err := withTx(ctx, c.db, func(tx *sql.Tx) error {
		sessions := store.NewSessionStore(tx)

		if _, err := c.ownedInProgress(ctx, sessions, sessionID, operator); err != nil {
			return err
		}

		var err error
		deleted, err = store.NewItemStore(tx).DeleteBySession(ctx, sessionID)
		if err != nil {
			return err
		}

		if err := sessions.ClearLockedSKU(ctx, sessionID); err != nil {
			return err
		}

		return sessions.MarkAbandoned(ctx, sessionID)
	})
	if err != nil {
		return 0, err
	}

	c.logger.Info("session reset", "session_id", sessionID, "operator", operator, "items_deleted", deleted)
	return deleted, nil
}

// GetSession is the read-only reporting lookup: no transaction, no ownership
// checks.
func (c *Coordinator) GetSession(ctx context.Context, sessionID int64) (*domain.Session, []*domain.Item, error) {
	session, err := store.NewSessionStore(c.db).GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, &domain.NotFoundError{SessionID: sessionID}
	}

	items, err := store.NewItemStore(c.db).ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	return session, items, nil
}

// ListSessions is the read-only reporting listing, optionally filtered by
// status.
func (c *Coordinator) ListSessions(ctx context.Context, status domain.SessionStatus) ([]*domain.Session, error) {
	return store.NewSessionStore(c.db).List(ctx, status)
}

// ownedInProgress loads the session and enforces the shared preconditions:
// it exists, is IN_PROGRESS, and is held by operator.
func (c *Coordinator) ownedInProgress(ctx context.Context, sessions *store.SessionStore, sessionID int64, operator string) (*domain.Session, error) {
	sess, err := sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, &domain.NotFoundError{SessionID: sessionID}
	}
	if sess.Status != domain.StatusInProgress {
		return nil, &domain.StateError{Status: sess.Status, Reason: "session is not in progress"}
	}
	if sess.LockedBy != operator {
		return nil, &domain.OwnershipError{Holder: sess.LockedBy, Operator: operator}
	}
	return sess, nil
}
