package model

import "time"

// DayQuota is the portion of an availability window's total quota
// allotted to one calendar day.  Rows are created by the distribution
// planner (which deletes and replaces any prior plan for the window),
// Assigned is incremented by the daily assignment queue, and Quota is
// only ever changed by redistribution or re-planning.  Invariant:
// Assigned <= Quota.
type DayQuota struct {
	ID             uint64
	AvailabilityID uint64
	Date           time.Time
	Quota          int
	Assigned       int
}

// Available returns the unconsumed quota for the day.
func (q *DayQuota) Available() int { return q.Quota - q.Assigned }
