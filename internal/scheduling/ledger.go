package scheduling

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/citasalud/agenda/internal/model"
)

// Ledger owns the booked/available count of availability windows.  It
// guarantees booked_slots never leaves [0, capacity] and that the
// window status tracks occupancy.  All mutations lock the window row
// exclusively, so concurrent increments on the same window serialize
// and at most capacity of them succeed.
type Ledger struct {
	store Store
	log   zerolog.Logger
}

func NewLedger(store Store, log zerolog.Logger) *Ledger {
	return &Ledger{store: store, log: log}
}

// CapacityReport is the result of ValidateCapacity: a read-only view
// of a window's occupancy after a resync.
type CapacityReport struct {
	CanBook   bool `json:"can_book"`
	Available int  `json:"available"`
	Capacity  int  `json:"capacity"`
	Booked    int  `json:"booked"`
}

// statusFor derives the window status from its occupancy.
func statusFor(booked, capacity int) model.WindowStatus {
	if booked >= capacity {
		return model.WindowFull
	}
	return model.WindowActive
}

// Resync recomputes booked_slots from the count of non-cancelled
// appointments, clamps it to [0, capacity] and updates the status.
// It repairs drift; it never books or releases anything itself.
func (l *Ledger) Resync(ctx context.Context, windowID uint64) error {
	return l.store.InTx(ctx, func(tx Tx) error {
		return l.ResyncTx(ctx, tx, windowID)
	})
}

// ResyncTx is Resync inside an existing transaction.
func (l *Ledger) ResyncTx(ctx context.Context, tx Tx, windowID uint64) error {
	w, err := tx.WindowForUpdate(ctx, windowID)
	if err != nil {
		return err
	}
	booked, err := tx.CountBookedAppointments(ctx, windowID)
	if err != nil {
		return fmt.Errorf("count appointments for window %d: %w", windowID, err)
	}
	if booked > w.Capacity {
		l.log.Warn().Uint64("window_id", windowID).
			Int("appointments", booked).Int("capacity", w.Capacity).
			Msg("ledger: appointment count exceeds capacity, clamping")
		booked = w.Capacity
	}
	if booked < 0 {
		booked = 0
	}
	return tx.UpdateWindowCounts(ctx, windowID, booked, statusFor(booked, w.Capacity))
}

// Increment consumes one slot of the window.  It fails with
// ErrCapacityExceeded when the window is already at capacity, in which
// case nothing is written; the caller must not keep an appointment
// whose increment failed.
func (l *Ledger) Increment(ctx context.Context, windowID uint64) error {
	return l.store.InTx(ctx, func(tx Tx) error {
		return l.IncrementTx(ctx, tx, windowID)
	})
}

// IncrementTx is Increment inside an existing transaction, for callers
// that create the appointment in the same unit of work.
func (l *Ledger) IncrementTx(ctx context.Context, tx Tx, windowID uint64) error {
	w, err := tx.WindowForUpdate(ctx, windowID)
	if err != nil {
		return err
	}
	if w.BookedSlots >= w.Capacity {
		return fmt.Errorf("window %d at %d/%d: %w", windowID, w.BookedSlots, w.Capacity, ErrCapacityExceeded)
	}
	booked := w.BookedSlots + 1
	return tx.UpdateWindowCounts(ctx, windowID, booked, statusFor(booked, w.Capacity))
}

// Decrement releases one slot of the window, flooring at zero.  It
// fails with ErrNothingToRelease when booked_slots is already zero.
func (l *Ledger) Decrement(ctx context.Context, windowID uint64) error {
	return l.store.InTx(ctx, func(tx Tx) error {
		return l.DecrementTx(ctx, tx, windowID)
	})
}

// DecrementTx is Decrement inside an existing transaction.
func (l *Ledger) DecrementTx(ctx context.Context, tx Tx, windowID uint64) error {
	w, err := tx.WindowForUpdate(ctx, windowID)
	if err != nil {
		return err
	}
	if w.BookedSlots <= 0 {
		return fmt.Errorf("window %d: %w", windowID, ErrNothingToRelease)
	}
	booked := w.BookedSlots - 1
	return tx.UpdateWindowCounts(ctx, windowID, booked, statusFor(booked, w.Capacity))
}

// ValidateCapacity resyncs the window and reports whether it can take
// another booking.  It is a pre-check; it holds no reservation, so a
// later Increment may still fail under concurrency.
func (l *Ledger) ValidateCapacity(ctx context.Context, windowID uint64) (*CapacityReport, error) {
	var report CapacityReport
	err := l.store.InTx(ctx, func(tx Tx) error {
		if err := l.ResyncTx(ctx, tx, windowID); err != nil {
			return err
		}
		w, err := tx.WindowForUpdate(ctx, windowID)
		if err != nil {
			return err
		}
		report = CapacityReport{
			CanBook:   w.Available() > 0,
			Available: w.Available(),
			Capacity:  w.Capacity,
			Booked:    w.BookedSlots,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// ResyncAll resyncs every active or full window.  A failure on one
// window is logged and does not stop the rest.
func (l *Ledger) ResyncAll(ctx context.Context) (synced, failed int, err error) {
	ids, err := l.store.ActiveWindowIDs(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, id := range ids {
		if err := l.Resync(ctx, id); err != nil {
			l.log.Error().Err(err).Uint64("window_id", id).Msg("ledger: resync failed")
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}
