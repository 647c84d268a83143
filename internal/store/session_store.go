package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lbastidas/inboundscan/internal/domain"
)

const sessionColumns = `id, outer_box_id, inner_box_id, expected_qty, status, locked_by, locked_sku, locked_at, last_seen, confirmed_at`

type SessionStore struct {
	db DBTX
}

func NewSessionStore(db DBTX) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, outerBoxID, innerBoxID string, expectedQty int, operator string, now time.Time) (*domain.Session, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (outer_box_id, inner_box_id, expected_qty, status, locked_by, locked_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, outerBoxID, innerBoxID, expectedQty, domain.StatusInProgress, operator, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *SessionStore) GetByID(ctx context.Context, id int64) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE id = ?
	`, id)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return sess, nil
}

// GetActiveByBox returns the live (IN_PROGRESS or CONFIRMED) session for a box
// pair, or nil. ABANDONED rows are history and never block a new claim.
func (s *SessionStore) GetActiveByBox(ctx context.Context, outerBoxID, innerBoxID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE outer_box_id = ? AND inner_box_id = ? AND status != ?
	`, outerBoxID, innerBoxID, domain.StatusAbandoned)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session by box: %w", err)
	}

	return sess, nil
}

// UpdateClaim transfers or refreshes ownership during a claim. expected_qty
// may only grow; the SQL MAX keeps the stored value when the resubmitted one
// is smaller or absent.
func (s *SessionStore) UpdateClaim(ctx context.Context, id int64, operator string, expectedQty int, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET locked_by = ?, last_seen = ?, expected_qty = MAX(expected_qty, ?)
		WHERE id = ?
	`, operator, now, expectedQty, id)
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	return nil
}

// TouchIfOwner refreshes last_seen only when the session is still IN_PROGRESS
// and held by operator. Returns false when the heartbeat was rejected.
func (s *SessionStore) TouchIfOwner(ctx context.Context, id int64, operator string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET last_seen = ?
		WHERE id = ? AND status = ? AND locked_by = ?
	`, now, id, domain.StatusInProgress, operator)
	if err != nil {
		return false, fmt.Errorf("failed to touch session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

func (s *SessionStore) TouchLastSeen(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET last_seen = ? WHERE id = ?
	`, now, id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (s *SessionStore) SetLockedSKU(ctx context.Context, id int64, sku string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET locked_sku = ? WHERE id = ?
	`, sku, id)
	if err != nil {
		return fmt.Errorf("failed to set locked sku: %w", err)
	}
	return nil
}

func (s *SessionStore) ClearLockedSKU(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET locked_sku = NULL WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to clear locked sku: %w", err)
	}
	return nil
}

func (s *SessionStore) MarkConfirmed(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, confirmed_at = ?, last_seen = ? WHERE id = ?
	`, domain.StatusConfirmed, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to confirm session: %w", err)
	}
	return nil
}

func (s *SessionStore) MarkAbandoned(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ? WHERE id = ?
	`, domain.StatusAbandoned, id)
	if err != nil {
		return fmt.Errorf("failed to abandon session: %w", err)
	}
	return nil
}

// List returns sessions newest-first, optionally filtered by status.
func (s *SessionStore) List(ctx context.Context, status domain.SessionStatus) ([]*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*domain.Session, error) {
	sess := &domain.Session{}
	var lockedSKU sql.NullString
	var confirmedAt sql.NullTime

	err := row.Scan(
		&sess.ID, &sess.OuterBoxID, &sess.InnerBoxID, &sess.ExpectedQty,
		&sess.Status, &sess.LockedBy, &lockedSKU, &sess.LockedAt,
		&sess.LastSeen, &confirmedAt,
	)
	if err != nil {
		return nil, err
	}

	if lockedSKU.Valid {
		sess.LockedSKU = lockedSKU.String
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		sess.ConfirmedAt = &t
	}

	return sess, nil
}
