package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/citasalud/agenda/internal/model"
)

// AssignmentQueue tries same-day assignment for booking requests and
// holds the ones that found no capacity in a priority waiting queue.
// A periodic sweep (ProcessQueue) drains waiting entries as capacity
// frees up.
type AssignmentQueue struct {
	store  Store
	ledger *Ledger
	cal    Calendar
	log    zerolog.Logger
}

func NewAssignmentQueue(store Store, ledger *Ledger, cal Calendar, log zerolog.Logger) *AssignmentQueue {
	return &AssignmentQueue{store: store, ledger: ledger, cal: cal, log: log}
}

// AssignmentRequest is a validated booking request.  DoctorID and
// LocationID are optional preferences.
type AssignmentRequest struct {
	PatientID   uint64
	SpecialtyID uint64
	DoctorID    *uint64
	LocationID  *uint64
	Priority    model.Priority
	Notes       string
}

// AssignmentResult reports what TryAssignOrQueue did: either an
// appointment was created for today, or the request was enqueued.
type AssignmentResult struct {
	Assigned      bool   `json:"assigned"`
	AppointmentID uint64 `json:"appointment_id,omitempty"`
	WindowID      uint64 `json:"availability_id,omitempty"`
	QueueID       uint64 `json:"queue_id,omitempty"`
	Message       string `json:"message"`
}

// errSlotRace marks a candidate slot whose window turned out to be
// full; the quota row promised capacity the ledger no longer has.
var errSlotRace = errors.New("slot lost to concurrent booking")

// TryAssignOrQueue attempts a same-day assignment for the request and
// enqueues it when no capacity exists.  It rejects with ErrConflict
// when the patient already waits for the specialty or already holds a
// non-cancelled appointment for it today.  Appointment creation, the
// day-quota increment and the ledger increment all commit in one
// transaction; a slot lost to a concurrent booking is retried once
// before falling back to the queue.
func (q *AssignmentQueue) TryAssignOrQueue(ctx context.Context, req AssignmentRequest) (*AssignmentResult, error) {
	if req.PatientID == 0 || req.SpecialtyID == 0 {
		return nil, fmt.Errorf("patient and specialty are required: %w", ErrValidation)
	}
	today := q.cal.Today()

	var result AssignmentResult
	err := q.store.InTx(ctx, func(tx Tx) error {
		waiting, err := tx.HasWaitingEntry(ctx, req.PatientID, req.SpecialtyID)
		if err != nil {
			return err
		}
		if waiting {
			return fmt.Errorf("patient %d already waiting for specialty %d: %w", req.PatientID, req.SpecialtyID, ErrConflict)
		}
		booked, err := tx.HasAppointmentOn(ctx, req.PatientID, req.SpecialtyID, today)
		if err != nil {
			return err
		}
		if booked {
			return fmt.Errorf("patient %d already has an appointment today for specialty %d: %w", req.PatientID, req.SpecialtyID, ErrConflict)
		}

		appt, start, err := q.assignOnce(ctx, tx, today, req)
		if err == nil {
			result = AssignmentResult{
				Assigned:      true,
				AppointmentID: appt.ID,
				WindowID:      appt.AvailabilityID,
				Message:       fmt.Sprintf("appointment assigned for today at %s", start),
			}
			return nil
		}
		if errors.Is(err, errSlotRace) {
			// One retry: the quota row and window state were re-read
			// under lock, a second loss means the day is genuinely out
			// of capacity for this request.
			appt, start, err = q.assignOnce(ctx, tx, today, req)
			if err == nil {
				result = AssignmentResult{
					Assigned:      true,
					AppointmentID: appt.ID,
					WindowID:      appt.AvailabilityID,
					Message:       fmt.Sprintf("appointment assigned for today at %s", start),
				}
				return nil
			}
		}
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, errSlotRace) {
			return err
		}

		entry := &model.WaitingEntry{
			PatientID:   req.PatientID,
			SpecialtyID: req.SpecialtyID,
			DoctorID:    req.DoctorID,
			LocationID:  req.LocationID,
			Priority:    req.Priority,
			Notes:       req.Notes,
			Status:      model.EntryWaiting,
		}
		if err := tx.CreateWaitingEntry(ctx, entry); err != nil {
			return err
		}
		result = AssignmentResult{
			QueueID: entry.ID,
			Message: "no capacity available today, patient added to the waiting queue",
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// assignOnce performs one assignment attempt inside tx: find the best
// open slot, consume window capacity and day quota, then create the
// appointment.  The ledger increment runs before any write so a full
// window leaves the transaction untouched and the caller can retry or
// enqueue within the same unit of work.
func (q *AssignmentQueue) assignOnce(ctx context.Context, tx Tx, day time.Time, req AssignmentRequest) (*model.Appointment, string, error) {
	cand, err := tx.FindOpenSlot(ctx, day, req.SpecialtyID, req.DoctorID, req.LocationID)
	if err != nil {
		return nil, "", err
	}
	if err := q.ledger.IncrementTx(ctx, tx, cand.WindowID); err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			q.log.Warn().Uint64("window_id", cand.WindowID).
				Msg("queue: day quota promised capacity on a full window")
			return nil, "", fmt.Errorf("window %d: %w", cand.WindowID, errSlotRace)
		}
		return nil, "", err
	}
	if err := tx.IncrementAssigned(ctx, cand.QuotaID); err != nil {
		return nil, "", err
	}
	appt := &model.Appointment{
		PatientID:      req.PatientID,
		AvailabilityID: cand.WindowID,
		Status:         model.AppointmentPending,
		ScheduledAt:    day,
	}
	if err := tx.CreateAppointment(ctx, appt); err != nil {
		return nil, "", err
	}
	return appt, cand.StartTime, nil
}

// SweepAssignment records one waiting entry assigned during a sweep,
// for post-commit notification.
type SweepAssignment struct {
	EntryID       uint64 `json:"entry_id"`
	PatientID     uint64 `json:"patient_id"`
	AppointmentID uint64 `json:"appointment_id"`
	WindowID      uint64 `json:"availability_id"`
}

// SweepResult is the outcome of one ProcessQueue invocation.
type SweepResult struct {
	Processed   int               `json:"processed"`
	Assigned    int               `json:"assigned"`
	Errors      []string          `json:"errors"`
	Assignments []SweepAssignment `json:"assignments,omitempty"`
}

// ProcessQueue drains up to batchSize waiting entries against current
// same-day capacity, most urgent and oldest first.  Each entry runs in
// its own transaction: one entry failing (no capacity, or a race lost
// to a direct booking) is recorded in the error list and never aborts
// the rest of the batch.  Priority ordering is a scheduling preference
// within this invocation, not a global guarantee across concurrent
// sweeps or direct bookings.
func (q *AssignmentQueue) ProcessQueue(ctx context.Context, batchSize int) (*SweepResult, error) {
	if batchSize <= 0 {
		batchSize = 20
	}
	entries, err := q.store.WaitingEntries(ctx, batchSize)
	if err != nil {
		return nil, err
	}

	today := q.cal.Today()
	result := &SweepResult{Errors: []string{}}
	for _, entry := range entries {
		result.Processed++

		var assignment SweepAssignment
		err := q.store.InTx(ctx, func(tx Tx) error {
			current, err := tx.WaitingEntryForUpdate(ctx, entry.ID)
			if err != nil {
				return err
			}
			if current.Status != model.EntryWaiting {
				return fmt.Errorf("entry %d already %s: %w", entry.ID, current.Status, ErrConflict)
			}
			req := AssignmentRequest{
				PatientID:   current.PatientID,
				SpecialtyID: current.SpecialtyID,
				DoctorID:    current.DoctorID,
				LocationID:  current.LocationID,
			}
			appt, _, err := q.assignOnce(ctx, tx, today, req)
			if errors.Is(err, errSlotRace) {
				appt, _, err = q.assignOnce(ctx, tx, today, req)
			}
			if err != nil {
				return err
			}
			if err := tx.MarkEntryAssigned(ctx, entry.ID, appt.ID); err != nil {
				return err
			}
			assignment = SweepAssignment{
				EntryID:       entry.ID,
				PatientID:     current.PatientID,
				AppointmentID: appt.ID,
				WindowID:      appt.AvailabilityID,
			}
			return nil
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: %v", entry.ID, err))
			continue
		}
		result.Assigned++
		result.Assignments = append(result.Assignments, assignment)
	}
	return result, nil
}

// CancelWaitingEntry administratively cancels a waiting entry.  It
// returns ErrNotFound for an unknown entry and ErrConflict when the
// entry already reached a terminal state.
func (q *AssignmentQueue) CancelWaitingEntry(ctx context.Context, entryID uint64) error {
	return q.store.InTx(ctx, func(tx Tx) error {
		entry, err := tx.WaitingEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != model.EntryWaiting {
			return fmt.Errorf("entry %d already %s: %w", entryID, entry.Status, ErrConflict)
		}
		return tx.MarkEntryCancelled(ctx, entryID)
	})
}
