package model

import (
	"errors"
	"time"
)

// Priority orders waiting entries when the queue is drained.  Lower
// rank is served first.  The rank is persisted alongside the label so
// the database can sort numerically instead of relying on a CASE
// expression over strings.
type Priority int

const (
	PriorityUrgent Priority = iota + 1
	PriorityHigh
	PriorityNormal
	PriorityLow
)

// ErrUnknownPriority is returned by ParsePriority for labels outside
// the closed set.
var ErrUnknownPriority = errors.New("unknown priority")

// Rank returns the numeric sort key stored in priority_rank.
func (p Priority) Rank() int { return int(p) }

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// ParsePriority maps a request label to a Priority.  An empty label
// defaults to normal.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "urgent":
		return PriorityUrgent, nil
	case "high":
		return PriorityHigh, nil
	case "normal", "":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	}
	return 0, ErrUnknownPriority
}

// EntryStatus is the state of a waiting entry.  Entries only ever move
// waiting -> assigned or waiting -> cancelled; terminal states are
// never reopened.
type EntryStatus int

const (
	EntryWaiting EntryStatus = iota
	EntryAssigned
	EntryCancelled
)

func (s EntryStatus) String() string {
	switch s {
	case EntryAssigned:
		return "assigned"
	case EntryCancelled:
		return "cancelled"
	default:
		return "waiting"
	}
}

// WaitingEntry is a patient request held in the daily assignment queue
// because no same-day capacity existed when it was made.  DoctorID and
// LocationID are optional preferences; when set, matching windows are
// preferred but not required.
type WaitingEntry struct {
	ID            uint64
	PatientID     uint64
	SpecialtyID   uint64
	DoctorID      *uint64
	LocationID    *uint64
	Priority      Priority
	Notes         string
	Status        EntryStatus
	AppointmentID *uint64
	CreatedAt     time.Time
	AssignedAt    *time.Time
}
