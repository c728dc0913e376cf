package consumer

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/routine/internal/events"
	"example.com/routine/internal/outbox"
)

// JournalHandler projects journal and milestone events into the
// journal_entries table so the companion surface can render a user's day
// without touching the write-side tables.
type JournalHandler struct {
	pool *pgxpool.Pool
}

// NewJournalHandler constructs a handler backed by the provided pool.
func NewJournalHandler(pool *pgxpool.Pool) *JournalHandler {
	return &JournalHandler{pool: pool}
}

// Handle stores the event as a journal_entries row. Event types the
// projection does not care about are acknowledged without a write.
func (h *JournalHandler) Handle(ctx context.Context, msg Message) error {
	var (
		userID     string
		kind       string
		day        string
		occurredAt any
	)

	switch msg.EventType {
	case outbox.EventTypeJournal:
		var entry events.JournalEntry
		if err := json.Unmarshal(msg.Payload, &entry); err != nil {
			return err
		}
		userID, kind, day, occurredAt = entry.UserID, entry.Kind, entry.Day, entry.OccurredAt
	case outbox.EventTypeMilestone:
		var milestone events.MilestoneAwarded
		if err := json.Unmarshal(msg.Payload, &milestone); err != nil {
			return err
		}
		userID, kind, day, occurredAt = milestone.UserID, "milestone:"+milestone.Kind, milestone.Day, milestone.OccurredAt
	default:
		return nil
	}

	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx,
		`INSERT INTO journal_entries (tenant_id, user_id, kind, day, payload, occurred_at, topic, record_offset, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		msg.TenantID,
		userID,
		kind,
		day,
		msg.Payload,
		occurredAt,
		msg.Topic,
		msg.Offset,
		msg.Timestamp,
	)
	return err
}
