package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lbastidas/inboundscan/internal/domain"
)

type ItemStore struct {
	db DBTX
}

func NewItemStore(db DBTX) *ItemStore {
	return &ItemStore{db: db}
}

// Insert records an accepted scan. A UNIQUE violation on serial_number is
// surfaced as domain.ConflictError so callers need not inspect driver errors.
func (s *ItemStore) Insert(ctx context.Context, sessionID int64, sku, serialNumber, operator string, now time.Time) (*domain.Item, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO items (session_id, sku, serial_number, packed_by, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, sku, serialNumber, operator, now)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, domain.NewDuplicateSerial(serialNumber)
		}
		return nil, fmt.Errorf("failed to insert item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *ItemStore) GetByID(ctx context.Context, id int64) (*domain.Item, error) {
	item := &domain.Item{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, sku, serial_number, packed_by, created_at FROM items WHERE id = ?
	`, id).Scan(&item.ID, &item.SessionID, &item.SKU, &item.SerialNumber, &item.PackedBy, &item.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return item, nil
}

// ListBySession returns a session's items in insertion order, which is the
// order the batch state machine rehydrates from.
func (s *ItemStore) ListBySession(ctx context.Context, sessionID int64) ([]*domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, sku, serial_number, packed_by, created_at FROM items
		WHERE session_id = ? ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var items []*domain.Item
	for rows.Next() {
		item := &domain.Item{}
		if err := rows.Scan(&item.ID, &item.SessionID, &item.SKU, &item.SerialNumber, &item.PackedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	return items, nil
}

func (s *ItemStore) CountBySession(ctx context.Context, sessionID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM items WHERE session_id = ?
	`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

// SerialExists is the best-effort pre-check; the UNIQUE constraint remains the
// authority under concurrent inserts.
func (s *ItemStore) SerialExists(ctx context.Context, serialNumber string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM items WHERE serial_number = ?)
	`, serialNumber).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check serial: %w", err)
	}
	return exists, nil
}

// DeleteBySession removes every item of a session (whole-session reset).
func (s *ItemStore) DeleteBySession(ctx context.Context, sessionID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM items WHERE session_id = ?
	`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete items: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// DeleteBySerials removes the named serials from one session (batch reset).
// Serials belonging to other sessions are untouched.
func (s *ItemStore) DeleteBySerials(ctx context.Context, sessionID int64, serials []string) (int64, error) {
	if len(serials) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(serials)), ", ")
	args := make([]any, 0, len(serials)+1)
	args = append(args, sessionID)
	for _, serial := range serials {
		args = append(args, serial)
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM items WHERE session_id = ? AND serial_number IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete items by serial: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}
