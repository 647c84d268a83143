package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lbastidas/inboundscan/internal/domain"
	"github.com/lbastidas/inboundscan/internal/store"
)

// SKUValidator is the injected lookup predicate for acceptable SKUs. It is a
// pure function: the ledger never mutates or caches through it.
type SKUValidator func(sku string) bool

// Ledger owns the append-only item records of a session: accepting scans under
// the session's SKU pin, rejecting duplicate serials globally, and the
// batch-scoped delete that backs a client batch reset.
type Ledger struct {
	db         *sql.DB
	isValidSKU SKUValidator
	logger     *slog.Logger
	now        func() time.Time
}

func NewLedger(db *sql.DB, isValidSKU SKUValidator, logger *slog.Logger) *Ledger {
	return &Ledger{
		db:         db,
		isValidSKU: isValidSKU,
		logger:     logger,
		now:        time.Now,
	}
}

// Insert accepts one scanned (SKU, serial) pair into the session.
//
// The first accepted item pins the session to its SKU; later items must match
// it. Serial numbers are unique across the whole ledger, enforced by the
// storage constraint (the EXISTS pre-check only short-circuits the common
// case). The ownership checks, the SKU pin mutation, and the insert commit as
// one transaction so two racing first-inserts cannot both observe an unset
// pin.
func (l *Ledger) Insert(ctx context.Context, sessionID int64, sku, serialNumber, operator string) (*domain.Item, error) {
	sku = domain.NormalizeCode(sku)
	serialNumber = domain.NormalizeCode(serialNumber)
	operator = domain.NormalizeID(operator)

	if sku == "" {
		return nil, &domain.ValidationError{Field: "sku", Reason: "must not be empty"}
	}
	if serialNumber == "" {
		return nil, &domain.ValidationError{Field: "serialNumber", Reason: "must not be empty"}
	}
	if operator == "" {
		return nil, &domain.ValidationError{Field: "operator", Reason: "must not be empty"}
	}
	if !l.isValidSKU(sku) {
		return nil, &domain.ValidationError{Field: "sku", Reason: "unknown sku"}
	}

	var item *domain.Item

	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		sessions := store.NewSessionStore(tx)
		items := store.NewItemStore(tx)

		sess, err := l.ownedInProgress(ctx, sessions, sessionID, operator)
		if err != nil {
			return err
		}

		if sess.LockedSKU == "" {
			if err := sessions.SetLockedSKU(ctx, sessionID, sku); err != nil {
				return err
			}
		} else if sess.LockedSKU != sku {
			return domain.NewSKUMismatch(sess.LockedSKU, sku)
		}

		exists, err := items.SerialExists(ctx, serialNumber)
		if err != nil {
			return err
		}
		if exists {
			return domain.NewDuplicateSerial(serialNumber)
		}

		item, err = items.Insert(ctx, sessionID, sku, serialNumber, operator, l.now())
		if err != nil {
			return err
		}

		return sessions.TouchLastSeen(ctx, sessionID, l.now())
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug("item recorded",
		"session_id", sessionID, "sku", sku, "serial", serialNumber, "operator", operator)
	return item, nil
}

// ValidateSKU is the read-only pre-check the UI runs before a serial is typed.
// It never establishes the pin; only a successful Insert does.
func (l *Ledger) ValidateSKU(ctx context.Context, sessionID int64, sku, operator string) (string, error) {
	sku = domain.NormalizeCode(sku)
	operator = domain.NormalizeID(operator)

	if sku == "" {
		return "", &domain.ValidationError{Field: "sku", Reason: "must not be empty"}
	}
	if !l.isValidSKU(sku) {
		return "", &domain.ValidationError{Field: "sku", Reason: "unknown sku"}
	}

	sess, err := l.ownedInProgress(ctx, store.NewSessionStore(l.db), sessionID, operator)
	if err != nil {
		return "", err
	}

	if sess.LockedSKU != "" && sess.LockedSKU != sku {
		return "", domain.NewSKUMismatch(sess.LockedSKU, sku)
	}

	return sess.LockedSKU, nil
}

// ResetBatch deletes the named not-yet-confirmed serials from the session.
// This is the server half of a client batch reset, distinct from the
// whole-session Reset: confirmed items survive. If the delete empties the
// session the SKU pin is cleared so a different SKU can restart the box.
func (l *Ledger) ResetBatch(ctx context.Context, sessionID int64, serials []string, operator string) (int64, error) {
	operator = domain.NormalizeID(operator)

	if len(serials) == 0 {
		return 0, &domain.ValidationError{Field: "serials", Reason: "must not be empty"}
	}
	normalized := make([]string, 0, len(serials))
	for _, serial := range serials {
		serial = domain.NormalizeCode(serial)
		if serial == "" {
			return 0, &domain.ValidationError{Field: "serials", Reason: "must not contain empty serials"}
		}
		normalized = append(normalized, serial)
	}

	var deleted int64

	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		sessions := store.NewSessionStore(tx)
		items := store.NewItemStore(tx)

		if _, err := l.ownedInProgress(ctx, sessions, sessionID, operator); err != nil {
			return err
		}

		var err error
		deleted, err = items.DeleteBySerials(ctx, sessionID, normalized)
		if err != nil {
			return err
		}

		remaining, err := items.CountBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := sessions.ClearLockedSKU(ctx, sessionID); err != nil {
				return err
			}
		}

		return sessions.TouchLastSeen(ctx, sessionID, l.now())
	})
	if err != nil {
		return 0, err
	}

	l.logger.Info("batch reset", "session_id", sessionID, "operator", operator, "items_deleted", deleted)
	return deleted, nil
}

func (l *Ledger) ownedInProgress(ctx context.Context, sessions *store.SessionStore, sessionID int64, operator string) (*domain.Session, error) {
	if operator == "" {
		return nil, &domain.ValidationError{Field: "operator", Reason: "must not be empty"}
	}

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
