// Package outbox persists side-effect events and delivers them to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/routine/internal/events"
	"example.com/routine/internal/observability"
)

// Event types written by the Recorder.
const (
	EventTypeJournal   = "routine.journal"
	EventTypeMilestone = "routine.milestone"
	EventTypeMemory    = "routine.memory"
)

type eventMeta struct {
	Topic         string
	SchemaSubject string
	Schema        string
}

var eventCatalog = map[string]eventMeta{
	EventTypeJournal: {
		Topic:         "routine_journal",
		SchemaSubject: "routine_journal-value",
		Schema:        routineJournalSchema,
	},
	EventTypeMilestone: {
		Topic:         "routine_milestones",
		SchemaSubject: "routine_milestones-value",
		Schema:        routineMilestoneSchema,
	},
	EventTypeMemory: {
		Topic:         "routine_memory",
		SchemaSubject: "routine_memory-value",
		Schema:        routineMemorySchema,
	},
}

// Recorder writes events into the outbox table. It implements the domain's
// journal, milestone, and memory sinks; the Dispatcher delivers the rows
// asynchronously, so a sink call never blocks on Kafka.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder constructs a Recorder.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Record enqueues a journal entry event.
func (r *Recorder) Record(ctx context.Context, entry events.JournalEntry) error {
	return r.insert(ctx, entry.TenantID, entry.UserID, EventTypeJournal, entry, nil)
}

// Award enqueues a milestone event. The dedupe key guards against double
// awards for the same day should a retried completion slip past the tracker.
func (r *Recorder) Award(ctx context.Context, milestone events.MilestoneAwarded) error {
	dedupe := fmt.Sprintf("%s:%s:%s:%s", milestone.TenantID, milestone.UserID, milestone.Day, milestone.Kind)
	if err := r.insert(ctx, milestone.TenantID, milestone.UserID, EventTypeMilestone, milestone, &dedupe); err != nil {
		return err
	}
	observability.RecordMilestone(milestone.Kind)
	return nil
}

// Remember enqueues a memory summary event.
func (r *Recorder) Remember(ctx context.Context, memory events.MemoryRecorded) error {
	return r.insert(ctx, memory.TenantID, memory.UserID, EventTypeMemory, memory, nil)
}

func (r *Recorder) insert(ctx context.Context, tenantID, userID, eventType string, payload interface{}, dedupeKey *string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	partitionKey := tenantID + ":" + userID
	if _, err := tx.Exec(ctx, stmt,
		tenantID,
		"routine",
		userID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
