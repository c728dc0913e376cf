// Package domain implements the routine-activity resolution and
// completion-tracking engine.
package domain

import "time"

// Activity is a single named, optionally timed step within a routine.
type Activity struct {
	ID          string
	Name        string
	DurationMin int
	Icon        string
	Description string
}

// Routine is the ordered, user-owned collection of activities considered active.
// At most one active routine exists per (tenant, user).
type Routine struct {
	TenantID         string
	UserID           string
	Activities       []Activity
	TotalDurationMin int
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DailyRecord tracks which activities a user completed on one calendar day.
// Version supports optimistic-concurrency updates; zero means the record has
// not been persisted yet.
type DailyRecord struct {
	TenantID     string
	UserID       string
	Day          time.Time
	CompletedIDs []string
	AllCompleted bool
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Contains reports whether the activity id is already in the completed set.
func (r *DailyRecord) Contains(activityID string) bool {
	for _, id := range r.CompletedIDs {
		if id == activityID {
			return true
		}
	}
	return false
}

// Cursor models the pagination token for completion-history listings.
type Cursor struct {
	Day time.Time
}

// DayOf truncates a timestamp to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
