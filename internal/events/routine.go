// Package events defines the event payloads emitted by the routine service.
package events

import "time"

// Journal entry kinds carried in JournalEntry.Kind.
const (
	JournalKindActivityCompleted = "activity_completed"
	JournalKindRoutineCompleted  = "routine_completed"
	JournalKindActivityUpdated   = "activity_updated"
)

// JournalEntry is the structured record handed to the journal-log sink after a
// completion or edit. Bulk completions produce a single entry carrying every
// newly completed name.
type JournalEntry struct {
	TenantID            string    `json:"tenant_id"`
	UserID              string    `json:"user_id"`
	Kind                string    `json:"kind"`
	Day                 string    `json:"day"`
	ActivityID          string    `json:"activity_id,omitempty"`
	ActivityName        string    `json:"activity_name,omitempty"`
	CompletedCount      int       `json:"completed_count,omitempty"`
	TotalActivities     int       `json:"total_activities,omitempty"`
	NewlyCompletedNames []string  `json:"newly_completed_names,omitempty"`
	Changes             []string  `json:"changes,omitempty"`
	OccurredAt          time.Time `json:"occurred_at"`
}

// MilestoneAwarded marks the first transition of a day's record to fully complete.
type MilestoneAwarded struct {
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	Day        string    `json:"day"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MilestoneFullRoutine is the only milestone kind the tracker emits today.
const MilestoneFullRoutine = "full_routine_completed"

// MemoryRecorded is a free-text summary handed to the memory/insight sink.
type MemoryRecorded struct {
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	Summary    string    `json:"summary"`
	OccurredAt time.Time `json:"occurred_at"`
}
