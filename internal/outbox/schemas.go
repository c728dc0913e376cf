package outbox

const routineJournalSchema = `{
  "type": "object",
  "title": "RoutineJournalEntry",
  "properties": {
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "kind": {"type": "string"},
    "day": {"type": "string", "format": "date"},
    "activity_id": {"type": "string"},
    "activity_name": {"type": "string"},
    "completed_count": {"type": "integer"},
    "total_activities": {"type": "integer"},
    "newly_completed_names": {"type": "array", "items": {"type": "string"}},
    "changes": {"type": "array", "items": {"type": "string"}},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["tenant_id", "user_id", "kind", "day", "occurred_at"],
  "additionalProperties": false
}`

const routineMilestoneSchema = `{
  "type": "object",
  "title": "RoutineMilestoneAwarded",
  "properties": {
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "kind": {"type": "string"},
    "day": {"type": "string", "format": "date"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["tenant_id", "user_id", "kind", "day", "occurred_at"],
  "additionalProperties": false
}`

const routineMemorySchema = `{
  "type": "object",
  "title": "RoutineMemoryRecorded",
  "properties": {
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "summary": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["tenant_id", "user_id", "summary", "occurred_at"],
  "additionalProperties": false
}`
