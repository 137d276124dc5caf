package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/citasalud/agenda/internal/model"
)

var (
	_ Store = (*memStore)(nil)
	_ Tx    = (*memTx)(nil)
)

// memStore is an in-memory Store for the engine tests.  InTx
// serializes on a mutex and restores a snapshot when fn fails, which
// mirrors the row-locking and rollback behaviour of the SQL store.
type memStore struct {
	mu      sync.Mutex
	windows map[uint64]*model.AvailabilityWindow
	quotas  map[uint64]*model.DayQuota
	entries map[uint64]*model.WaitingEntry
	appts   map[uint64]*model.Appointment
	lastID  uint64
}

func newMemStore() *memStore {
	return &memStore{
		windows: map[uint64]*model.AvailabilityWindow{},
		quotas:  map[uint64]*model.DayQuota{},
		entries: map[uint64]*model.WaitingEntry{},
		appts:   map[uint64]*model.Appointment{},
	}
}

func (s *memStore) nextID() uint64 { s.lastID++; return s.lastID }

func (s *memStore) addWindow(w model.AvailabilityWindow) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == 0 {
		w.ID = s.nextID()
	}
	s.windows[w.ID] = &w
	return w.ID
}

func (s *memStore) addQuota(q model.DayQuota) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.ID == 0 {
		q.ID = s.nextID()
	}
	s.quotas[q.ID] = &q
	return q.ID
}

func (s *memStore) addEntry(e model.WaitingEntry) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == 0 {
		e.ID = s.nextID()
	}
	s.entries[e.ID] = &e
	return e.ID
}

func (s *memStore) addAppointment(a model.Appointment) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.nextID()
	}
	s.appts[a.ID] = &a
	return a.ID
}

func (s *memStore) window(id uint64) model.AvailabilityWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.windows[id]
}

func (s *memStore) quota(id uint64) model.DayQuota {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.quotas[id]
}

func (s *memStore) entry(id uint64) model.WaitingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.entries[id]
}

func (s *memStore) appointmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.appts)
}

type memSnapshot struct {
	windows map[uint64]model.AvailabilityWindow
	quotas  map[uint64]model.DayQuota
	entries map[uint64]model.WaitingEntry
	appts   map[uint64]model.Appointment
	lastID  uint64
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		windows: make(map[uint64]model.AvailabilityWindow, len(s.windows)),
		quotas:  make(map[uint64]model.DayQuota, len(s.quotas)),
		entries: make(map[uint64]model.WaitingEntry, len(s.entries)),
		appts:   make(map[uint64]model.Appointment, len(s.appts)),
		lastID:  s.lastID,
	}
	for id, w := range s.windows {
		snap.windows[id] = *w
	}
	for id, q := range s.quotas {
		snap.quotas[id] = *q
	}
	for id, e := range s.entries {
		snap.entries[id] = *e
	}
	for id, a := range s.appts {
		snap.appts[id] = *a
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.windows = make(map[uint64]*model.AvailabilityWindow, len(snap.windows))
	s.quotas = make(map[uint64]*model.DayQuota, len(snap.quotas))
	s.entries = make(map[uint64]*model.WaitingEntry, len(snap.entries))
	s.appts = make(map[uint64]*model.Appointment, len(snap.appts))
	for id, w := range snap.windows {
		w := w
		s.windows[id] = &w
	}
	for id, q := range snap.quotas {
		q := q
		s.quotas[id] = &q
	}
	for id, e := range snap.entries {
		e := e
		s.entries[id] = &e
	}
	for id, a := range snap.appts {
		a := a
		s.appts[id] = &a
	}
	s.lastID = snap.lastID
}

func (s *memStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) WaitingEntries(ctx context.Context, limit int) ([]model.WaitingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.WaitingEntry
	for _, e := range s.entries {
		if e.Status == model.EntryWaiting {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) DayQuotas(ctx context.Context, windowID uint64) ([]model.DayQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DayQuota
	for _, q := range s.quotas {
		if q.AvailabilityID == windowID {
			out = append(out, *q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *memStore) ActiveWindowIDs(ctx context.Context) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint64
	for id, w := range s.windows {
		if w.Status != model.WindowCancelled {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *memStore) PlannedWindowIDs(ctx context.Context) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[uint64]bool{}
	for _, q := range s.quotas {
		if w, ok := s.windows[q.AvailabilityID]; ok && w.Status == model.WindowActive {
			seen[q.AvailabilityID] = true
		}
	}
	var ids []uint64
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// memTx runs under the store mutex held by InTx.
type memTx struct {
	s *memStore
}

func (t *memTx) WindowForUpdate(ctx context.Context, windowID uint64) (*model.AvailabilityWindow, error) {
	w, ok := t.s.windows[windowID]
	if !ok {
		return nil, fmt.Errorf("availability %d: %w", windowID, ErrNotFound)
	}
	cp := *w
	return &cp, nil
}

func (t *memTx) UpdateWindowCounts(ctx context.Context, windowID uint64, booked int, status model.WindowStatus) error {
	w, ok := t.s.windows[windowID]
	if !ok {
		return fmt.Errorf("availability %d: %w", windowID, ErrNotFound)
	}
	w.BookedSlots = booked
	w.Status = status
	return nil
}

func (t *memTx) CountBookedAppointments(ctx context.Context, windowID uint64) (int, error) {
	n := 0
	for _, a := range t.s.appts {
		if a.AvailabilityID == windowID && a.Status.CountsAgainstCapacity() {
			n++
		}
	}
	return n, nil
}

func (t *memTx) DeleteDayQuotas(ctx context.Context, windowID uint64) (int64, error) {
	var deleted int64
	for id, q := range t.s.quotas {
		if q.AvailabilityID == windowID {
			delete(t.s.quotas, id)
			deleted++
		}
	}
	return deleted, nil
}

func (t *memTx) CountQuotasWithProgress(ctx context.Context, windowID uint64) (int, error) {
	n := 0
	for _, q := range t.s.quotas {
		if q.AvailabilityID == windowID && q.Assigned > 0 {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertDayQuotas(ctx context.Context, rows []model.DayQuota) error {
	for _, r := range rows {
		r.ID = t.s.nextID()
		q := r
		t.s.quotas[q.ID] = &q
	}
	return nil
}

func (t *memTx) PastSurplusForUpdate(ctx context.Context, windowID uint64, before time.Time) ([]model.DayQuota, error) {
	var out []model.DayQuota
	for _, q := range t.s.quotas {
		if q.AvailabilityID == windowID && q.Date.Before(before) && q.Available() > 0 {
			out = append(out, *q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (t *memTx) QuotasInRangeForUpdate(ctx context.Context, windowID uint64, from, to time.Time) ([]model.DayQuota, error) {
	var out []model.DayQuota
	for _, q := range t.s.quotas {
		if q.AvailabilityID == windowID && !q.Date.Before(from) && !q.Date.After(to) {
			out = append(out, *q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (t *memTx) AddQuota(ctx context.Context, quotaID uint64, delta int) error {
	q, ok := t.s.quotas[quotaID]
	if !ok {
		return fmt.Errorf("quota %d: %w", quotaID, ErrNotFound)
	}
	q.Quota += delta
	return nil
}

func (t *memTx) CollapseQuota(ctx context.Context, quotaID uint64) error {
	q, ok := t.s.quotas[quotaID]
	if !ok {
		return fmt.Errorf("quota %d: %w", quotaID, ErrNotFound)
	}
	q.Quota = q.Assigned
	return nil
}

func (t *memTx) IncrementAssigned(ctx context.Context, quotaID uint64) error {
	q, ok := t.s.quotas[quotaID]
	if !ok {
		return fmt.Errorf("quota %d: %w", quotaID, ErrNotFound)
	}
	if q.Assigned >= q.Quota {
		return fmt.Errorf("quota row %d exhausted: %w", quotaID, ErrConflict)
	}
	q.Assigned++
	return nil
}

func (t *memTx) FindOpenSlot(ctx context.Context, day time.Time, specialtyID uint64, doctorID, locationID *uint64) (*SlotCandidate, error) {
	type scored struct {
		cand        SlotCandidate
		doctorMatch bool
		locMatch    bool
	}
	var found []scored
	for _, q := range t.s.quotas {
		if !SameDay(q.Date, day) || q.Available() <= 0 {
			continue
		}
		w, ok := t.s.windows[q.AvailabilityID]
		if !ok || w.Status != model.WindowActive || w.SpecialtyID != specialtyID {
			continue
		}
		if w.BookedSlots >= w.Capacity {
			continue
		}
		found = append(found, scored{
			cand:        SlotCandidate{WindowID: w.ID, QuotaID: q.ID, StartTime: w.StartTime},
			doctorMatch: doctorID != nil && w.DoctorID == *doctorID,
			locMatch:    locationID != nil && w.LocationID == *locationID,
		})
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no open slot: %w", ErrNotFound)
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].doctorMatch != found[j].doctorMatch {
			return found[i].doctorMatch
		}
		if found[i].locMatch != found[j].locMatch {
			return found[i].locMatch
		}
		if found[i].cand.StartTime != found[j].cand.StartTime {
			return found[i].cand.StartTime < found[j].cand.StartTime
		}
		return found[i].cand.WindowID < found[j].cand.WindowID
	})
	return &found[0].cand, nil
}

func (t *memTx) CreateAppointment(ctx context.Context, appt *model.Appointment) error {
	appt.ID = t.s.nextID()
	appt.CreatedAt = time.Now()
	cp := *appt
	t.s.appts[cp.ID] = &cp
	return nil
}

func (t *memTx) AppointmentForUpdate(ctx context.Context, apptID uint64) (*model.Appointment, error) {
	a, ok := t.s.appts[apptID]
	if !ok {
		return nil, fmt.Errorf("appointment %d: %w", apptID, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (t *memTx) UpdateAppointmentStatus(ctx context.Context, apptID uint64, status model.AppointmentStatus) error {
	a, ok := t.s.appts[apptID]
	if !ok {
		return fmt.Errorf("appointment %d: %w", apptID, ErrNotFound)
	}
	a.Status = status
	return nil
}

func (t *memTx) HasWaitingEntry(ctx context.Context, patientID, specialtyID uint64) (bool, error) {
	for _, e := range t.s.entries {
		if e.PatientID == patientID && e.SpecialtyID == specialtyID && e.Status == model.EntryWaiting {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) HasAppointmentOn(ctx context.Context, patientID, specialtyID uint64, day time.Time) (bool, error) {
	for _, a := range t.s.appts {
		if a.PatientID != patientID || !a.Status.CountsAgainstCapacity() || !SameDay(a.ScheduledAt, day) {
			continue
		}
		if w, ok := t.s.windows[a.AvailabilityID]; ok && w.SpecialtyID == specialtyID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CreateWaitingEntry(ctx context.Context, entry *model.WaitingEntry) error {
	entry.ID = t.s.nextID()
	entry.CreatedAt = time.Now()
	cp := *entry
	t.s.entries[cp.ID] = &cp
	return nil
}

func (t *memTx) WaitingEntryForUpdate(ctx context.Context, entryID uint64) (*model.WaitingEntry, error) {
	e, ok := t.s.entries[entryID]
	if !ok {
		return nil, fmt.Errorf("queue entry %d: %w", entryID, ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (t *memTx) MarkEntryAssigned(ctx context.Context, entryID, appointmentID uint64) error {
	e, ok := t.s.entries[entryID]
	if !ok {
		return fmt.Errorf("queue entry %d: %w", entryID, ErrNotFound)
	}
	if e.Status != model.EntryWaiting {
		return fmt.Errorf("queue entry %d: %w", entryID, ErrConflict)
	}
	now := time.Now()
	e.Status = model.EntryAssigned
	e.AppointmentID = &appointmentID
	e.AssignedAt = &now
	return nil
}

func (t *memTx) MarkEntryCancelled(ctx context.Context, entryID uint64) error {
	e, ok := t.s.entries[entryID]
	if !ok {
		return fmt.Errorf("queue entry %d: %w", entryID, ErrNotFound)
	}
	if e.Status != model.EntryWaiting {
		return fmt.Errorf("queue entry %d: %w", entryID, ErrConflict)
	}
	e.Status = model.EntryCancelled
	return nil
}

// fixedCalendar pins "today" for deterministic tests.
type fixedCalendar struct {
	today    time.Time
	holidays map[string]struct{}
}

func (c fixedCalendar) Today() time.Time { return c.today }

func (c fixedCalendar) IsWorkingDay(t time.Time) bool {
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := c.holidays[t.Format(dateLayout)]
	return !holiday
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
