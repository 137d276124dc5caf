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

const (
	dbEntryWaiting   = "waiting"
	dbEntryAssigned  = "assigned"
	dbEntryCancelled = "cancelled"
)

func entryStatusFromDB(s string) model.EntryStatus {
	switch s {
	case dbEntryAssigned:
		return model.EntryAssigned
	case dbEntryCancelled:
		return model.EntryCancelled
	default:
		return model.EntryWaiting
	}
}

// FindOpenSlot locks and returns the best bookable slot for the day:
// quota rows with remaining capacity on an active window, exact
// doctor/location preference matches ordered first, then earliest
// start time.
func (t *storeTx) FindOpenSlot(ctx context.Context, day time.Time, specialtyID uint64, doctorID, locationID *uint64) (*scheduling.SlotCandidate, error) {
	const q = `SELECT a.id, ad.id, a.start_time
	           FROM availabilities a
	           JOIN availability_distribution ad ON ad.availability_id = a.id
	           WHERE ad.day_date = ?
	             AND a.specialty_id = ?
	             AND a.status = ?
	             AND a.booked_slots < a.capacity
	             AND ad.assigned < ad.quota
	           ORDER BY (? IS NOT NULL AND a.doctor_id = ?) DESC,
	                    (? IS NOT NULL AND a.location_id = ?) DESC,
	                    a.start_time ASC
	           LIMIT 1
	           FOR UPDATE`
	var cand scheduling.SlotCandidate
	err := t.tx.QueryRowContext(ctx, q,
		day.Format(dateLayout), specialtyID, dbWindowActive,
		doctorID, doctorID, locationID, locationID,
	).Scan(&cand.WindowID, &cand.QuotaID, &cand.StartTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no open slot for specialty %d on %s: %w",
			specialtyID, day.Format(dateLayout), scheduling.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find open slot: %w", err)
	}
	return &cand, nil
}

// HasWaitingEntry reports whether the patient already waits for the
// specialty.
func (t *storeTx) HasWaitingEntry(ctx context.Context, patientID, specialtyID uint64) (bool, error) {
	const q = `SELECT EXISTS (
	             SELECT 1 FROM daily_assignment_queue
	             WHERE patient_id = ? AND specialty_id = ? AND status = ?)`
	var exists bool
	if err := t.tx.QueryRowContext(ctx, q, patientID, specialtyID, dbEntryWaiting).Scan(&exists); err != nil {
		return false, fmt.Errorf("check waiting entry: %w", err)
	}
	return exists, nil
}

// CreateWaitingEntry inserts a queue entry and fills in its ID.  The
// numeric rank is persisted next to the label so reads sort without a
// CASE expression.
func (t *storeTx) CreateWaitingEntry(ctx context.Context, entry *model.WaitingEntry) error {
	const q = `INSERT INTO daily_assignment_queue
	             (patient_id, specialty_id, doctor_id, location_id, priority, priority_rank, notes, status, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW())`
	res, err := t.tx.ExecContext(ctx, q,
		entry.PatientID, entry.SpecialtyID, entry.DoctorID, entry.LocationID,
		entry.Priority.String(), entry.Priority.Rank(), entry.Notes, dbEntryWaiting)
	if err != nil {
		return fmt.Errorf("create waiting entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	entry.ID = uint64(id)
	return nil
}

const entryColumns = `id, patient_id, specialty_id, doctor_id, location_id,
	priority, notes, status, appointment_id, created_at, assigned_at`

func scanEntry(row interface{ Scan(...interface{}) error }) (*model.WaitingEntry, error) {
	var (
		e          model.WaitingEntry
		doctorID   sql.NullInt64
		locationID sql.NullInt64
		apptID     sql.NullInt64
		notes      sql.NullString
		priority   string
		status     string
		assignedAt sql.NullTime
	)
	err := row.Scan(&e.ID, &e.PatientID, &e.SpecialtyID, &doctorID, &locationID,
		&priority, &notes, &status, &apptID, &e.CreatedAt, &assignedAt)
	if err != nil {
		return nil, err
	}
	if doctorID.Valid {
		v := uint64(doctorID.Int64)
		e.DoctorID = &v
	}
	if locationID.Valid {
		v := uint64(locationID.Int64)
		e.LocationID = &v
	}
	if apptID.Valid {
		v := uint64(apptID.Int64)
		e.AppointmentID = &v
	}
	if notes.Valid {
		e.Notes = notes.String
	}
	if assignedAt.Valid {
		t := assignedAt.Time
		e.AssignedAt = &t
	}
	p, err := model.ParsePriority(priority)
	if err != nil {
		p = model.PriorityNormal
	}
	e.Priority = p
	e.Status = entryStatusFromDB(status)
	return &e, nil
}

// WaitingEntryForUpdate locks and returns a queue entry.
func (t *storeTx) WaitingEntryForUpdate(ctx context.Context, entryID uint64) (*model.WaitingEntry, error) {
	q := `SELECT ` + entryColumns + ` FROM daily_assignment_queue WHERE id = ? FOR UPDATE`
	entry, err := scanEntry(t.tx.QueryRowContext(ctx, q, entryID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("queue entry %d: %w", entryID, scheduling.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load queue entry %d: %w", entryID, err)
	}
	return entry, nil
}

// MarkEntryAssigned transitions a waiting entry to assigned and links
// the appointment.  The status guard keeps terminal entries terminal.
func (t *storeTx) MarkEntryAssigned(ctx context.Context, entryID, appointmentID uint64) error {
	const q = `UPDATE daily_assignment_queue
	           SET status = ?, appointment_id = ?, assigned_at = NOW()
	           WHERE id = ? AND status = ?`
	res, err := t.tx.ExecContext(ctx, q, dbEntryAssigned, appointmentID, entryID, dbEntryWaiting)
	if err != nil {
		return fmt.Errorf("mark entry %d assigned: %w", entryID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("queue entry %d is not waiting: %w", entryID, scheduling.ErrConflict)
	}
	return nil
}

// MarkEntryCancelled transitions a waiting entry to cancelled.
func (t *storeTx) MarkEntryCancelled(ctx context.Context, entryID uint64) error {
	const q = `UPDATE daily_assignment_queue SET status = ? WHERE id = ? AND status = ?`
	res, err := t.tx.ExecContext(ctx, q, dbEntryCancelled, entryID, dbEntryWaiting)
	if err != nil {
		return fmt.Errorf("mark entry %d cancelled: %w", entryID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("queue entry %d is not waiting: %w", entryID, scheduling.ErrConflict)
	}
	return nil
}

// WaitingEntries returns up to limit waiting entries, most urgent and
// oldest first.
func (s *Store) WaitingEntries(ctx context.Context, limit int) ([]model.WaitingEntry, error) {
	q := `SELECT ` + entryColumns + `
	      FROM daily_assignment_queue
	      WHERE status = ?
	      ORDER BY priority_rank ASC, created_at ASC
	      LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, dbEntryWaiting, limit)
	if err != nil {
		return nil, fmt.Errorf("list waiting entries: %w", err)
	}
	defer rows.Close()
	var out []model.WaitingEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// QueueFilter narrows ListQueue.  Zero values mean no filtering.
type QueueFilter struct {
	SpecialtyID uint64
	Status      string
}

// ListQueue returns queue entries for the staff listing, waiting ones
// most urgent and oldest first, everything else by creation time.
func (s *Store) ListQueue(ctx context.Context, f QueueFilter) ([]model.WaitingEntry, error) {
	q := `SELECT ` + entryColumns + ` FROM daily_assignment_queue WHERE 1=1`
	var args []interface{}
	if f.SpecialtyID != 0 {
		q += ` AND specialty_id = ?`
		args = append(args, f.SpecialtyID)
	}
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, f.Status)
	}
	q += ` ORDER BY priority_rank ASC, created_at ASC`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()
	var out []model.WaitingEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// QueueStats is the waiting-queue overview for the staff dashboard.
type QueueStats struct {
	TotalWaiting      int                   `json:"total_waiting"`
	UrgentCount       int                   `json:"urgent_count"`
	HighCount         int                   `json:"high_count"`
	NormalCount       int                   `json:"normal_count"`
	LowCount          int                   `json:"low_count"`
	AvgWaitingMinutes float64               `json:"avg_waiting_minutes"`
	BySpecialty       []SpecialtyQueueStats `json:"by_specialty"`
}

// SpecialtyQueueStats breaks the waiting count down per specialty.
type SpecialtyQueueStats struct {
	SpecialtyID       uint64  `json:"specialty_id"`
	WaitingCount      int     `json:"waiting_count"`
	AvgWaitingMinutes float64 `json:"avg_waiting_minutes"`
}

// QueueStats aggregates the current waiting queue.
func (s *Store) QueueStats(ctx context.Context) (*QueueStats, error) {
	const overview = `SELECT
	    COUNT(*),
	    COUNT(CASE WHEN priority = 'urgent' THEN 1 END),
	    COUNT(CASE WHEN priority = 'high' THEN 1 END),
	    COUNT(CASE WHEN priority = 'normal' THEN 1 END),
	    COUNT(CASE WHEN priority = 'low' THEN 1 END),
	    AVG(TIMESTAMPDIFF(MINUTE, created_at, NOW()))
	  FROM daily_assignment_queue
	  WHERE status = ?`
	var (
		stats QueueStats
		avg   sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, overview, dbEntryWaiting).Scan(
		&stats.TotalWaiting, &stats.UrgentCount, &stats.HighCount,
		&stats.NormalCount, &stats.LowCount, &avg)
	if err != nil {
		return nil, fmt.Errorf("queue stats overview: %w", err)
	}
	stats.AvgWaitingMinutes = avg.Float64

	const perSpecialty = `SELECT specialty_id, COUNT(*),
	    AVG(TIMESTAMPDIFF(MINUTE, created_at, NOW()))
	  FROM daily_assignment_queue
	  WHERE status = ?
	  GROUP BY specialty_id
	  ORDER BY COUNT(*) DESC`
	rows, err := s.db.QueryContext(ctx, perSpecialty, dbEntryWaiting)
	if err != nil {
		return nil, fmt.Errorf("queue stats per specialty: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			sp    SpecialtyQueueStats
			spAvg sql.NullFloat64
		)
		if err := rows.Scan(&sp.SpecialtyID, &sp.WaitingCount, &spAvg); err != nil {
			return nil, err
		}
		sp.AvgWaitingMinutes = spAvg.Float64
		stats.BySpecialty = append(stats.BySpecialty, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &stats, nil
}

// TodaySlot is one availability window bookable today, joined with its
// day quota.
type TodaySlot struct {
	WindowID    uint64 `json:"availability_id"`
	DoctorID    uint64 `json:"doctor_id"`
	SpecialtyID uint64 `json:"specialty_id"`
	LocationID  uint64 `json:"location_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Capacity    int    `json:"capacity"`
	BookedSlots int    `json:"booked_slots"`
	DayQuota    int    `json:"day_quota"`
	DayAssigned int    `json:"day_assigned"`
}

// TodayAvailability lists the windows that still have same-day
// capacity for the given day, optionally narrowed to one specialty.
func (s *Store) TodayAvailability(ctx context.Context, day time.Time, specialtyID uint64) ([]TodaySlot, error) {
	q := `SELECT a.id, a.doctor_id, a.specialty_id, a.location_id,
	        a.start_time, a.end_time, a.capacity, a.booked_slots,
	        ad.quota, ad.assigned
	      FROM availabilities a
	      JOIN availability_distribution ad ON ad.availability_id = a.id
	      WHERE ad.day_date = ?
	        AND a.status = ?
	        AND a.booked_slots < a.capacity
	        AND ad.assigned < ad.quota`
	args := []interface{}{day.Format(dateLayout), dbWindowActive}
	if specialtyID != 0 {
		q += ` AND a.specialty_id = ?`
		args = append(args, specialtyID)
	}
	q += ` ORDER BY a.start_time ASC`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list today availability: %w", err)
	}
	defer rows.Close()
	var out []TodaySlot
	for rows.Next() {
		var slot TodaySlot
		if err := rows.Scan(&slot.WindowID, &slot.DoctorID, &slot.SpecialtyID, &slot.LocationID,
			&slot.StartTime, &slot.EndTime, &slot.Capacity, &slot.BookedSlots,
			&slot.DayQuota, &slot.DayAssigned); err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}
