// Package batch implements the client-resident scan sequencing discipline:
// items are accepted in fixed-size batches, each batch must be explicitly
// confirmed or reset before scanning continues, and a serial-length drift
// guard halts the batch when a scan looks anomalous. The machine holds no
// storage of its own; it is rebuilt deterministically from the session's
// persisted items on every resume.
package batch

import (
	"errors"
	"fmt"

	"github.com/lbastidas/inboundscan/internal/domain"
)

// State names the observable phase of the scan cycle.
type State string

const (
	// StateEmpty: no items scanned yet and no SKU entered.
	StateEmpty State = "EMPTY"
	// StateSKUPending: ready for the next item's SKU scan.
	StateSKUPending State = "SKU_PENDING"
	// StateSKUReady: a SKU has been entered; waiting for its serial.
	StateSKUReady State = "SKU_READY"
	// StateBatchLocked: serial entry is blocked until the batch is
	// confirmed or reset.
	StateBatchLocked State = "BATCH_LOCKED"
	// StateComplete: every expected item is scanned and confirmed.
	StateComplete State = "COMPLETE"
)

// LockReason distinguishes the ordinary full-batch gate from the
// serial-length anomaly guard, which demands a reset rather than a confirm.
type LockReason string

const (
	LockNone        LockReason = ""
	LockBatchFull   LockReason = "BATCH_FULL"
	LockLengthDrift LockReason = "LENGTH_DRIFT"
)

var (
	ErrBatchLocked    = errors.New("batch is locked; confirm or reset it first")
	ErrDriftLocked    = errors.New("batch is locked by a serial-length anomaly; reset it to continue")
	ErrNoSKU          = errors.New("a SKU must be entered before each serial")
	ErrNothingPending = errors.New("no pending items in the open batch")
	ErrSerialDrift    = errors.New("serial length differs from the batch baseline")
)

// Machine tracks one inner-box scan task. It is a plain value object: callers
// feed it the outcomes of server operations (saved items, batch resets) and
// read back what the UI may do next. It is not safe for concurrent use.
type Machine struct {
	batchSize   int
	expectedQty int

	confirmed     int
	pending       []string
	pendingSKU    string
	lock          LockReason
	baselineLen   int
	hasBaseline   bool
	confirmedLens map[int]int
}

// New creates an empty machine. batchSize must be positive.
func New(batchSize, expectedQty int) (*Machine, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", batchSize)
	}
	if expectedQty < 0 {
		return nil, fmt.Errorf("expected quantity must not be negative, got %d", expectedQty)
	}
	return &Machine{
		batchSize:     batchSize,
		expectedQty:   expectedQty,
		confirmedLens: make(map[int]int),
	}, nil
}

// Resume rebuilds the machine from the items returned by a claim. Every full
// batch of persisted items counts as confirmed; the remainder is the open
// batch. The drift baseline is the mode of confirmed serial lengths once at
// least one full batch is confirmed, otherwise the first serial of the open
// batch.
func Resume(batchSize, expectedQty int, items []*domain.Item) (*Machine, error) {
	m, err := New(batchSize, expectedQty)
	if err != nil {
		return nil, err
	}

	m.confirmed = len(items) - len(items)%batchSize
	for i, item := range items {
		serial := domain.NormalizeCode(item.SerialNumber)
		if i < m.confirmed {
			m.confirmedLens[len(serial)]++
		} else {
			m.pending = append(m.pending, serial)
		}
	}

	switch {
	case m.confirmed >= m.batchSize:
		m.setBaselineFromMode()
	case len(m.pending) > 0:
		m.baselineLen = len(m.pending[0])
		m.hasBaseline = true
	}

	// A drift lock must survive a rebuild: if any pending serial disagrees
	// with the baseline, the open batch is still anomalous and still needs
	// an explicit reset.
	if m.hasBaseline {
		for _, serial := range m.pending {
			if len(serial) != m.baselineLen {
				m.lock = LockLengthDrift
				break
			}
		}
	}

	return m, nil
}

// EnterSKU records the per-item SKU scan that precedes every serial. The
// server validates the value against the session pin; the machine only
// enforces the ritual.
func (m *Machine) EnterSKU(sku string) error {
	if err := m.lockErr(); err != nil {
		return err
	}
	sku = domain.NormalizeCode(sku)
	if sku == "" {
		return errors.New("sku must not be empty")
	}
	m.pendingSKU = sku
	return nil
}

// RecordSaved registers a serial the server has durably accepted. The serial
// joins the open batch; a length differing from the baseline locks the batch
// for an explicit reset (the offending serial stays pending, so the reset
// purges it). Filling the batch triggers the ordinary full-batch lock.
func (m *Machine) RecordSaved(serialNumber string) error {
	if err := m.lockErr(); err != nil {
		return err
	}
	if m.pendingSKU == "" {
		return ErrNoSKU
	}

	serial := domain.NormalizeCode(serialNumber)
	m.pending = append(m.pending, serial)
	m.pendingSKU = ""

	if !m.hasBaseline {
		m.baselineLen = len(serial)
		m.hasBaseline = true
	} else if len(serial) != m.baselineLen {
		m.lock = LockLengthDrift
		return ErrSerialDrift
	}

	if len(m.pending) >= m.batchSize {
		m.lock = LockBatchFull
	}
	return nil
}

// ConfirmBatch closes the open batch. Allowed only when it holds between one
// and batchSize items and the drift guard has not fired. Confirmation is a
// pure counter advance; the items are already persisted.
func (m *Machine) ConfirmBatch() error {
	if m.lock == LockLengthDrift {
		return ErrDriftLocked
	}
	if len(m.pending) == 0 {
		return ErrNothingPending
	}

	for _, serial := range m.pending {
		m.confirmedLens[len(serial)]++
	}
	m.confirmed += len(m.pending)
	m.pending = nil
	m.lock = LockNone

	if m.confirmed >= m.batchSize {
		m.setBaselineFromMode()
	}
	return nil
}

// ResetBatch discards the open batch, returning the serials the caller must
// delete from the ledger. Clears both lock kinds and the pending SKU. If
// nothing confirmed remains, the drift baseline resets too (and the session's
// SKU pin becomes eligible to clear server-side once the ledger empties).
func (m *Machine) ResetBatch() ([]string, error) {
	if len(m.pending) == 0 {
		return nil, ErrNothingPending
	}

	serials := m.pending
	m.pending = nil
	m.pendingSKU = ""
	m.lock = LockNone

	if m.confirmed == 0 {
		m.hasBaseline = false
		m.baselineLen = 0
	}
	return serials, nil
}

// CanComplete mirrors the server's completion precondition so the UI and the
// coordinator never disagree: all expected items scanned, the last batch
// confirmed, no lock in force.
func (m *Machine) CanComplete() bool {
	return m.expectedQty > 0 &&
		m.ScannedCount() == m.expectedQty &&
		len(m.pending) == 0 &&
		m.lock == LockNone
}

func (m *Machine) State() State {
	switch {
	case m.CanComplete():
		return StateComplete
	case m.lock != LockNone:
		return StateBatchLocked
	case m.pendingSKU != "":
		return StateSKUReady
	case m.ScannedCount() == 0:
		return StateEmpty
	default:
		return StateSKUPending
	}
}

func (m *Machine) Lock() LockReason  { return m.lock }
func (m *Machine) BatchSize() int    { return m.batchSize }
func (m *Machine) ExpectedQty() int  { return m.expectedQty }
func (m *Machine) PendingCount() int { return len(m.pending) }

func (m *Machine) ConfirmedCount() int { return m.confirmed }

// ScannedCount is the total the server's completion check will see.
func (m *Machine) ScannedCount() int { return m.confirmed + len(m.pending) }

// BaselineLength returns the drift baseline and whether one is established.
func (m *Machine) BaselineLength() (int, bool) { return m.baselineLen, m.hasBaseline }

func (m *Machine) lockErr() error {
	switch m.lock {
	case LockBatchFull:
		return ErrBatchLocked
	case LockLengthDrift:
		return ErrDriftLocked
	default:
		return nil
	}
}

// setBaselineFromMode recomputes the baseline as the most common confirmed
// serial length. Ties resolve to the shorter length so a creeping drift never
// wins the vote.
func (m *Machine) setBaselineFromMode() {
	best, bestCount := 0, 0
	for length, count := range m.confirmedLens {
		if count > bestCount || (count == bestCount && length < best) {
			best, bestCount = length, count
		}
	}
	if bestCount > 0 {
		m.baselineLen = best
		m.hasBaseline = true
	}
}
