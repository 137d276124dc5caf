// Package scheduling implements the appointment capacity engine: the
// capacity ledger for availability windows, the quota distribution
// planner, the quota redistributor and the daily assignment queue.
// All state lives in a relational store accessed through the Store
// interface; every mutating operation runs inside a transaction that
// takes exclusive row locks on what it updates.
package scheduling

import "errors"

// Sentinel errors returned by the engine.  Handlers translate them to
// HTTP codes with errors.Is; anything not in this set is a persistence
// failure and surfaces as a 500.
var (
	// ErrNotFound indicates the referenced window, quota row or
	// waiting entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCapacityExceeded is returned by Increment when the window is
	// already at capacity.  Callers should offer the waiting queue
	// instead of treating this as a generic failure.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrNothingToRelease is returned by Decrement when booked_slots
	// is already zero.
	ErrNothingToRelease = errors.New("nothing to release")

	// ErrConflict covers duplicate waiting entries, duplicate same-day
	// appointments and attempts to transition a terminal entry.
	ErrConflict = errors.New("conflict")

	// ErrNoValidDays is returned by the planner when the date range
	// contains no plannable days after filtering.
	ErrNoValidDays = errors.New("no valid days in range")

	// ErrInvalidQuota is returned by the planner for a non-positive
	// total quota.
	ErrInvalidQuota = errors.New("total quota must be positive")

	// ErrInvalidRange is returned when end_date precedes start_date.
	ErrInvalidRange = errors.New("end date before start date")

	// ErrValidation covers malformed input that reaches the engine:
	// zero ids, unknown priorities.  The caller's fault, not retried.
	ErrValidation = errors.New("invalid argument")
)
