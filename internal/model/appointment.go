package model

import "time"

// AppointmentStatus is the lifecycle state of an appointment.  The
// capacity ledger counts every non-cancelled appointment against the
// window's capacity; that count is the authoritative definition of
// "booked" used by resync.
type AppointmentStatus int

const (
	AppointmentPending AppointmentStatus = iota
	AppointmentConfirmed
	AppointmentRescheduled
	AppointmentInConsultation
	AppointmentCompleted
	AppointmentCancelled
)

func (s AppointmentStatus) String() string {
	switch s {
	case AppointmentConfirmed:
		return "confirmed"
	case AppointmentRescheduled:
		return "rescheduled"
	case AppointmentInConsultation:
		return "in_consultation"
	case AppointmentCompleted:
		return "completed"
	case AppointmentCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// CountsAgainstCapacity reports whether an appointment in this status
// consumes a slot of its availability window.
func (s AppointmentStatus) CountsAgainstCapacity() bool {
	return s != AppointmentCancelled
}

// Appointment links a patient to an availability window.  Only the
// fields the scheduling engine needs are modeled here; clinical data
// lives elsewhere.
type Appointment struct {
	ID             uint64
	PatientID      uint64
	AvailabilityID uint64
	Status         AppointmentStatus
	ScheduledAt    time.Time
	CreatedAt      time.Time
}
