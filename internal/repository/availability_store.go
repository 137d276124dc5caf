package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/citasalud/agenda/internal/model"
	"github.com/citasalud/agenda/internal/scheduling"
)

// Legacy status strings as stored in the availabilities table.  The
// original system persisted Spanish labels; they are mapped to the
// model enum here and nowhere else.
const (
	dbWindowActive    = "Activa"
	dbWindowFull      = "Completa"
	dbWindowCancelled = "Cancelada"
)

func windowStatusToDB(s model.WindowStatus) string {
	switch s {
	case model.WindowFull:
		return dbWindowFull
	case model.WindowCancelled:
		return dbWindowCancelled
	default:
		return dbWindowActive
	}
}

func windowStatusFromDB(s string) model.WindowStatus {
	switch s {
	case dbWindowFull:
		return model.WindowFull
	case dbWindowCancelled:
		return model.WindowCancelled
	default:
		return model.WindowActive
	}
}

// WindowForUpdate loads an availability window under an exclusive row
// lock.  The lock is held until the surrounding transaction commits or
// rolls back.
func (t *storeTx) WindowForUpdate(ctx context.Context, windowID uint64) (*model.AvailabilityWindow, error) {
	const q = `SELECT id, doctor_id, specialty_id, location_id, date, start_time, end_time,
	                  capacity, booked_slots, status, created_at, updated_at
	           FROM availabilities WHERE id = ? FOR UPDATE`
	var (
		w      model.AvailabilityWindow
		status string
	)
	err := t.tx.QueryRowContext(ctx, q, windowID).Scan(
		&w.ID, &w.DoctorID, &w.SpecialtyID, &w.LocationID, &w.Date, &w.StartTime, &w.EndTime,
		&w.Capacity, &w.BookedSlots, &status, &w.CreatedAt, &w.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("availability %d: %w", windowID, scheduling.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load availability %d: %w", windowID, err)
	}
	w.Status = windowStatusFromDB(status)
	return &w, nil
}

// UpdateWindowCounts persists booked_slots and status for a window the
// transaction already locked.
func (t *storeTx) UpdateWindowCounts(ctx context.Context, windowID uint64, booked int, status model.WindowStatus) error {
	const q = `UPDATE availabilities SET booked_slots = ?, status = ? WHERE id = ?`
	if _, err := t.tx.ExecContext(ctx, q, booked, windowStatusToDB(status), windowID); err != nil {
		return fmt.Errorf("update availability %d counts: %w", windowID, err)
	}
	return nil
}

// CountBookedAppointments counts the window's non-cancelled
// appointments, the authoritative booked figure used by resync.
func (t *storeTx) CountBookedAppointments(ctx context.Context, windowID uint64) (int, error) {
	const q = `SELECT COUNT(*) FROM appointments WHERE availability_id = ? AND status <> ?`
	var n int
	if err := t.tx.QueryRowContext(ctx, q, windowID, dbApptCancelled).Scan(&n); err != nil {
		return 0, fmt.Errorf("count appointments for availability %d: %w", windowID, err)
	}
	return n, nil
}

// ActiveWindowIDs returns every window still participating in booking
// (active or full), the population for a bulk resync.
func (s *Store) ActiveWindowIDs(ctx context.Context) ([]uint64, error) {
	const q = `SELECT id FROM availabilities WHERE status IN (?, ?) ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, dbWindowActive, dbWindowFull)
	if err != nil {
		return nil, fmt.Errorf("list active availabilities: %w", err)
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PlannedWindowIDs returns active windows that have at least one quota
// row, the population for bulk redistribution.
func (s *Store) PlannedWindowIDs(ctx context.Context) ([]uint64, error) {
	const q = `SELECT DISTINCT a.id
	           FROM availabilities a
	           JOIN availability_distribution ad ON ad.availability_id = a.id
	           WHERE a.status = ?
	           ORDER BY a.id`
	rows, err := s.db.QueryContext(ctx, q, dbWindowActive)
	if err != nil {
		return nil, fmt.Errorf("list planned availabilities: %w", err)
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
