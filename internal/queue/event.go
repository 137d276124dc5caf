// Package queue defines message payloads exchanged over the message
// broker and the background consumer that processes them.
package queue

// AppointmentAssignedEvent is published after an appointment commits,
// either from a direct booking attempt or from a queue sweep.  It
// carries enough context for downstream consumers to notify the
// patient without querying the primary database.
type AppointmentAssignedEvent struct {
	AppointmentID uint64 `json:"appointment_id"`
	PatientID     uint64 `json:"patient_id"`
	WindowID      uint64 `json:"availability_id"`
	SpecialtyID   uint64 `json:"specialty_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time,omitempty"`
	Source        string `json:"source"` // "direct" or "queue"
	QueueEntryID  uint64 `json:"queue_entry_id,omitempty"`
	AssignedAt    string `json:"assigned_at"`
}
