// Package postgres provides Postgres-backed persistence for routines and
// daily completion records.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/routine/internal/domain"
	"example.com/routine/internal/observability"
)

// Repository implements domain.RoutineStore and domain.CompletionStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// storedActivity is the JSONB representation of one routine step. Activities
// are decoded exactly once here; business logic only ever sees []domain.Activity.
type storedActivity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DurationMin int    `json:"duration_min,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
}

func encodeActivities(activities []domain.Activity) ([]byte, error) {
	stored := make([]storedActivity, len(activities))
	for i, activity := range activities {
		stored[i] = storedActivity(activity)
	}
	return json.Marshal(stored)
}

func decodeActivities(raw []byte) ([]domain.Activity, error) {
	var stored []storedActivity
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	activities := make([]domain.Activity, len(stored))
	for i, activity := range stored {
		activities[i] = domain.Activity(activity)
	}
	return activities, nil
}

// ActiveRoutine loads the user's active routine, or nil when none exists.
func (r *Repository) ActiveRoutine(ctx context.Context, tenantID, userID string) (*domain.Routine, error) {
	const query = `SELECT activities, total_duration_min, is_active, created_at, updated_at
        FROM routines WHERE tenant_id=$1 AND user_id=$2 AND is_active`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	routine := domain.Routine{TenantID: tenantID, UserID: userID}
	var raw []byte
	row := tx.QueryRow(ctx, query, tenantID, userID)
	if err := row.Scan(&raw, &routine.TotalDurationMin, &routine.IsActive, &routine.CreatedAt, &routine.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}

	if routine.Activities, err = decodeActivities(raw); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &routine, nil
}

// SaveRoutine creates or replaces the user's routine definition.
func (r *Repository) SaveRoutine(ctx context.Context, routine domain.Routine) error {
	raw, err := encodeActivities(routine.Activities)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", routine.TenantID); err != nil {
		return err
	}

	const stmt = `INSERT INTO routines (tenant_id, user_id, activities, total_duration_min, is_active, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (tenant_id, user_id) DO UPDATE
        SET activities=EXCLUDED.activities,
            total_duration_min=EXCLUDED.total_duration_min,
            is_active=EXCLUDED.is_active,
            updated_at=EXCLUDED.updated_at`

	if _, err = tx.Exec(ctx, stmt,
		routine.TenantID,
		routine.UserID,
		raw,
		routine.TotalDurationMin,
		routine.IsActive,
		routine.CreatedAt,
		routine.UpdatedAt,
	); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

// ReplaceActivities persists the full activity list and recomputed total.
func (r *Repository) ReplaceActivities(ctx context.Context, tenantID, userID string, activities []domain.Activity, totalDurationMin int) error {
	raw, err := encodeActivities(activities)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}

	const stmt = `UPDATE routines
        SET activities=$3, total_duration_min=$4, updated_at=NOW()
        WHERE tenant_id=$1 AND user_id=$2 AND is_active`

	tag, err := tx.Exec(ctx, stmt, tenantID, userID, raw, totalDurationMin)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = domain.ErrNoActiveRoutine
		return err
	}

	err = tx.Commit(ctx)
	return err
}

// Record loads the day's completion record, or nil when absent.
func (r *Repository) Record(ctx context.Context, tenantID, userID string, day time.Time) (*domain.DailyRecord, error) {
	const query = `SELECT completed_ids, all_completed, version, created_at, updated_at
        FROM daily_completions WHERE tenant_id=$1 AND user_id=$2 AND day=$3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	record := domain.DailyRecord{TenantID: tenantID, UserID: userID, Day: domain.DayOf(day)}
	row := tx.QueryRow(ctx, query, tenantID, userID, record.Day)
	if err := row.Scan(&record.CompletedIDs, &record.AllCompleted, &record.Version, &record.CreatedAt, &record.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpsertRecord writes the record guarded by its version so concurrent
// completions of different activities on the same day are both preserved.
// It fails with domain.ErrVersionConflict when the guard no longer holds.
func (r *Repository) UpsertRecord(ctx context.Context, record domain.DailyRecord, expectedVersion int64) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", record.TenantID); err != nil {
		return err
	}

	day := domain.DayOf(record.Day)
	var tag pgconn.CommandTag
	if expectedVersion == 0 {
		const stmt = `INSERT INTO daily_completions (tenant_id, user_id, day, completed_ids, all_completed, version, created_at, updated_at)
            VALUES ($1,$2,$3,$4,$5,1,$6,$7)
            ON CONFLICT (tenant_id, user_id, day) DO NOTHING`
		tag, err = tx.Exec(ctx, stmt,
			record.TenantID,
			record.UserID,
			day,
			record.CompletedIDs,
			record.AllCompleted,
			record.CreatedAt,
			record.UpdatedAt,
		)
	} else {
		const stmt = `UPDATE daily_completions
            SET completed_ids=$4, all_completed=$5, version=version+1, updated_at=$6
            WHERE tenant_id=$1 AND user_id=$2 AND day=$3 AND version=$7`
		tag, err = tx.Exec(ctx, stmt,
			record.TenantID,
			record.UserID,
			day,
			record.CompletedIDs,
			record.AllCompleted,
			record.UpdatedAt,
			expectedVersion,
		)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = domain.ErrVersionConflict
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordCompletionPersisted(record.UpdatedAt)
	return nil
}

// CompletedDays lists every day whose routine was fully completed, newest first.
func (r *Repository) CompletedDays(ctx context.Context, tenantID, userID string) ([]time.Time, error) {
	const query = `SELECT day FROM daily_completions
        WHERE tenant_id=$1 AND user_id=$2 AND all_completed
        ORDER BY day DESC`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := make([]time.Time, 0)
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		days = append(days, domain.DayOf(day))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return days, nil
}

// ListRecords returns completion records newest first with keyset pagination.
func (r *Repository) ListRecords(ctx context.Context, tenantID, userID string, cursor *domain.Cursor, limit int) ([]domain.DailyRecord, *domain.Cursor, error) {
	args := []interface{}{tenantID, userID, limit}
	query := `SELECT day, completed_ids, all_completed, version, created_at, updated_at
        FROM daily_completions WHERE tenant_id=$1 AND user_id=$2`

	if cursor != nil {
		query += ` AND day < $4`
		args = append(args, domain.DayOf(cursor.Day))
	}

	query += ` ORDER BY day DESC LIMIT $3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	records := make([]domain.DailyRecord, 0, limit)
	for rows.Next() {
		record := domain.DailyRecord{TenantID: tenantID, UserID: userID}
		if err := rows.Scan(&record.Day, &record.CompletedIDs, &record.AllCompleted, &record.Version, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, nil, err
		}
		record.Day = domain.DayOf(record.Day)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(records) == limit {
		next = &domain.Cursor{Day: records[len(records)-1].Day}
	}
	return records, next, nil
}
