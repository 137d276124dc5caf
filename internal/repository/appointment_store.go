package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/citasalud/agenda/internal/model"
	"github.com/citasalud/agenda/internal/scheduling"
)

// Legacy appointment status strings.  Cancelled appointments are the
// only ones that do not count against window capacity.
const (
	dbApptPending        = "Pendiente"
	dbApptConfirmed      = "Confirmada"
	dbApptRescheduled    = "Reagendada"
	dbApptInConsultation = "En consulta"
	dbApptCompleted      = "Atendida"
	dbApptCancelled      = "Cancelada"
)

func apptStatusToDB(s model.AppointmentStatus) string {
	switch s {
	case model.AppointmentConfirmed:
		return dbApptConfirmed
	case model.AppointmentRescheduled:
		return dbApptRescheduled
	case model.AppointmentInConsultation:
		return dbApptInConsultation
	case model.AppointmentCompleted:
		return dbApptCompleted
	case model.AppointmentCancelled:
		return dbApptCancelled
	default:
		return dbApptPending
	}
}

func apptStatusFromDB(s string) model.AppointmentStatus {
	switch s {
	case dbApptConfirmed:
		return model.AppointmentConfirmed
	case dbApptRescheduled:
		return model.AppointmentRescheduled
	case dbApptInConsultation:
		return model.AppointmentInConsultation
	case dbApptCompleted:
		return model.AppointmentCompleted
	case dbApptCancelled:
		return model.AppointmentCancelled
	default:
		return model.AppointmentPending
	}
}

// CreateAppointment inserts an appointment and fills in its ID.
func (t *storeTx) CreateAppointment(ctx context.Context, appt *model.Appointment) error {
	const q = `INSERT INTO appointments (patient_id, availability_id, status, scheduled_at, created_at)
	           VALUES (?, ?, ?, ?, NOW())`
	res, err := t.tx.ExecContext(ctx, q,
		appt.PatientID, appt.AvailabilityID, apptStatusToDB(appt.Status), appt.ScheduledAt)
	if err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	appt.ID = uint64(id)
	return nil
}

// HasAppointmentOn reports whether the patient already holds a
// non-cancelled appointment for the specialty on the given day.
func (t *storeTx) HasAppointmentOn(ctx context.Context, patientID, specialtyID uint64, day time.Time) (bool, error) {
	const q = `SELECT EXISTS (
	             SELECT 1 FROM appointments ap
	             JOIN availabilities a ON a.id = ap.availability_id
	             WHERE ap.patient_id = ? AND a.specialty_id = ?
	               AND DATE(ap.scheduled_at) = ? AND ap.status <> ?)`
	var exists bool
	err := t.tx.QueryRowContext(ctx, q, patientID, specialtyID, day.Format(dateLayout), dbApptCancelled).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check same-day appointment: %w", err)
	}
	return exists, nil
}

// AppointmentForUpdate loads an appointment under an exclusive lock.
func (t *storeTx) AppointmentForUpdate(ctx context.Context, apptID uint64) (*model.Appointment, error) {
	const q = `SELECT id, patient_id, availability_id, status, scheduled_at, created_at
	           FROM appointments WHERE id = ? FOR UPDATE`
	var (
		a      model.Appointment
		status string
	)
	err := t.tx.QueryRowContext(ctx, q, apptID).Scan(
		&a.ID, &a.PatientID, &a.AvailabilityID, &status, &a.ScheduledAt, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("appointment %d: %w", apptID, scheduling.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load appointment %d: %w", apptID, err)
	}
	a.Status = apptStatusFromDB(status)
	return &a, nil
}

// UpdateAppointmentStatus persists a status transition for an
// appointment the transaction already locked.
func (t *storeTx) UpdateAppointmentStatus(ctx context.Context, apptID uint64, status model.AppointmentStatus) error {
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE appointments SET status = ? WHERE id = ?`, apptStatusToDB(status), apptID); err != nil {
		return fmt.Errorf("update appointment %d status: %w", apptID, err)
	}
	return nil
}
