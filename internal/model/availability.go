package model

import "time"

// WindowStatus is the lifecycle state of an availability window.  The
// persistence layer maps these values to the legacy status strings
// stored in the availabilities table; business logic only ever sees
// the enum.
type WindowStatus int

const (
	WindowActive WindowStatus = iota
	WindowFull
	WindowCancelled
)

// String returns the API representation of the status.
func (s WindowStatus) String() string {
	switch s {
	case WindowFull:
		return "full"
	case WindowCancelled:
		return "cancelled"
	default:
		return "active"
	}
}

// AvailabilityWindow represents a doctor/specialty/location time block
// with a finite appointment capacity on a given date.  BookedSlots is
// the count of non-cancelled appointments consuming that capacity and
// must always stay within [0, Capacity].  The window flips to
// WindowFull when BookedSlots reaches Capacity and back to
// WindowActive when it drops below.  StartTime and EndTime are stored
// as "HH:MM:SS" strings; Date is midnight in the clinic timezone.
type AvailabilityWindow struct {
	ID          uint64
	DoctorID    uint64
	SpecialtyID uint64
	LocationID  uint64
	Date        time.Time
	StartTime   string
	EndTime     string
	Capacity    int
	BookedSlots int
	Status      WindowStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Available returns the remaining bookable slots, floored at zero.
func (w *AvailabilityWindow) Available() int {
	if n := w.Capacity - w.BookedSlots; n > 0 {
		return n
	}
	return 0
}
