package scheduling

import (
	"context"
	"time"

	"github.com/citasalud/agenda/internal/model"
)

// SlotCandidate is a same-day booking opportunity found by
// Tx.FindOpenSlot: a quota row with remaining capacity joined to its
// active availability window.
type SlotCandidate struct {
	WindowID  uint64
	QuotaID   uint64
	StartTime string
}

// Tx is the unit of work handed to engine operations.  Every method
// runs inside the surrounding database transaction; the ...ForUpdate
// readers take exclusive row locks so concurrent mutations of the same
// window or day serialize.  Implementations return ErrNotFound,
// ErrConflict and wrapped driver errors as documented per method.
type Tx interface {
	// WindowForUpdate loads an availability window under an exclusive
	// lock.  Returns ErrNotFound when the window does not exist.
	WindowForUpdate(ctx context.Context, windowID uint64) (*model.AvailabilityWindow, error)
	// UpdateWindowCounts persists booked_slots and status for a window
	// previously locked in this transaction.
	UpdateWindowCounts(ctx context.Context, windowID uint64, booked int, status model.WindowStatus) error
	// CountBookedAppointments counts the window's non-cancelled
	// appointments, the source of truth for resync.
	CountBookedAppointments(ctx context.Context, windowID uint64) (int, error)

	// DeleteDayQuotas removes every quota row of the window and
	// returns how many were deleted.
	DeleteDayQuotas(ctx context.Context, windowID uint64) (int64, error)
	// CountQuotasWithProgress counts the window's quota rows that
	// already have assignments; used to warn before a destructive
	// re-plan.
	CountQuotasWithProgress(ctx context.Context, windowID uint64) (int, error)
	// InsertDayQuotas bulk-inserts a fresh plan.
	InsertDayQuotas(ctx context.Context, rows []model.DayQuota) error
	// PastSurplusForUpdate locks and returns quota rows dated before
	// the given day that still have unassigned quota, oldest first.
	PastSurplusForUpdate(ctx context.Context, windowID uint64, before time.Time) ([]model.DayQuota, error)
	// QuotasInRangeForUpdate locks and returns quota rows with
	// from <= date <= to, in date order.
	QuotasInRangeForUpdate(ctx context.Context, windowID uint64, from, to time.Time) ([]model.DayQuota, error)
	// AddQuota increases a quota row's quota by delta.
	AddQuota(ctx context.Context, quotaID uint64, delta int) error
	// CollapseQuota sets a quota row's quota down to its assigned
	// count, discarding the surplus.
	CollapseQuota(ctx context.Context, quotaID uint64) error
	// IncrementAssigned consumes one unit of a quota row.  Returns
	// ErrConflict when assigned has already reached quota.
	IncrementAssigned(ctx context.Context, quotaID uint64) error

	// FindOpenSlot locks and returns the best bookable slot for the
	// given day and specialty: exact doctor/location preference
	// matches first, then earliest start time, only rows with
	// remaining quota on an active window.  Returns ErrNotFound when
	// nothing is bookable.
	FindOpenSlot(ctx context.Context, day time.Time, specialtyID uint64, doctorID, locationID *uint64) (*SlotCandidate, error)
	// CreateAppointment inserts an appointment and fills in its ID.
	CreateAppointment(ctx context.Context, appt *model.Appointment) error
	// AppointmentForUpdate locks and returns an appointment.  Returns
	// ErrNotFound when it does not exist.
	AppointmentForUpdate(ctx context.Context, apptID uint64) (*model.Appointment, error)
	// UpdateAppointmentStatus persists a status transition for an
	// appointment previously locked in this transaction.
	UpdateAppointmentStatus(ctx context.Context, apptID uint64, status model.AppointmentStatus) error

	// HasWaitingEntry reports whether the patient already has a
	// waiting entry for the specialty.
	HasWaitingEntry(ctx context.Context, patientID, specialtyID uint64) (bool, error)
	// HasAppointmentOn reports whether the patient already holds a
	// non-cancelled appointment for the specialty on the given day.
	HasAppointmentOn(ctx context.Context, patientID, specialtyID uint64, day time.Time) (bool, error)
	// CreateWaitingEntry inserts a queue entry and fills in its ID.
	CreateWaitingEntry(ctx context.Context, entry *model.WaitingEntry) error
	// WaitingEntryForUpdate locks and returns a queue entry.  Returns
	// ErrNotFound when it does not exist.
	WaitingEntryForUpdate(ctx context.Context, entryID uint64) (*model.WaitingEntry, error)
	// MarkEntryAssigned transitions a waiting entry to assigned and
	// links the appointment.  Returns ErrConflict when the entry is no
	// longer waiting.
	MarkEntryAssigned(ctx context.Context, entryID, appointmentID uint64) error
	// MarkEntryCancelled transitions a waiting entry to cancelled.
	// Returns ErrConflict when the entry is no longer waiting.
	MarkEntryCancelled(ctx context.Context, entryID uint64) error
}

// Store is the persistence boundary of the engine.  InTx runs fn
// inside one database transaction and commits iff fn returns nil; any
// error rolls everything back.  The remaining methods are plain reads
// used outside transactions.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error

	// WaitingEntries returns up to limit waiting entries ordered by
	// priority rank then creation time.
	WaitingEntries(ctx context.Context, limit int) ([]model.WaitingEntry, error)
	// DayQuotas returns the window's quota rows in date order.
	DayQuotas(ctx context.Context, windowID uint64) ([]model.DayQuota, error)
	// ActiveWindowIDs returns windows eligible for a ledger resync
	// (active or full).
	ActiveWindowIDs(ctx context.Context) ([]uint64, error)
	// PlannedWindowIDs returns active windows that have at least one
	// quota row, the population for bulk redistribution.
	PlannedWindowIDs(ctx context.Context) ([]uint64, error)
}
