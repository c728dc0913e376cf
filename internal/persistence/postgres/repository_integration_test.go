//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/routine/internal/domain"
)

func TestRepositoryRoutineRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t, ctx)

	tenantID := uuid.NewString()
	userID := uuid.NewString()

	routine := domain.Routine{
		TenantID: tenantID,
		UserID:   userID,
		Activities: []domain.Activity{
			{ID: uuid.NewString(), Name: "Morning meditation", DurationMin: 10, Icon: "🧘"},
			{ID: uuid.NewString(), Name: "Stretch", DurationMin: 5},
		},
		TotalDurationMin: 15,
		IsActive:         true,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}

	require.NoError(t, repo.SaveRoutine(ctx, routine))

	stored, err := repo.ActiveRoutine(ctx, tenantID, userID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Len(t, stored.Activities, 2)
	require.Equal(t, "Morning meditation", stored.Activities[0].Name)
	require.Equal(t, 15, stored.TotalDurationMin)
}

func TestRepositoryUpsertRecordVersionGuard(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t, ctx)

	tenantID := uuid.NewString()
	userID := uuid.NewString()
	day := domain.DayOf(time.Now().UTC())

	record := domain.DailyRecord{
		TenantID:     tenantID,
		UserID:       userID,
		Day:          day,
		CompletedIDs: []string{"a1"},
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	require.NoError(t, repo.UpsertRecord(ctx, record, 0))

	// A second insert for the same day must surface a version conflict.
	err := repo.UpsertRecord(ctx, record, 0)
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	stored, err := repo.Record(ctx, tenantID, userID, day)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, int64(1), stored.Version)

	stored.CompletedIDs = append(stored.CompletedIDs, "a2")
	stored.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.UpsertRecord(ctx, *stored, stored.Version))

	// A stale writer holding the old version must lose.
	err = repo.UpsertRecord(ctx, *stored, stored.Version)
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	final, err := repo.Record(ctx, tenantID, userID, day)
	require.NoError(t, err)
	require.Equal(t, int64(2), final.Version)
	require.ElementsMatch(t, []string{"a1", "a2"}, final.CompletedIDs)
}

func TestRepositoryRespectsTenantIsolation(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t, ctx)

	tenantID := uuid.NewString()
	userID := uuid.NewString()

	routine := domain.Routine{
		TenantID:         tenantID,
		UserID:           userID,
		Activities:       []domain.Activity{{ID: uuid.NewString(), Name: "Stretch"}},
		TotalDurationMin: 0,
		IsActive:         true,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	require.NoError(t, repo.SaveRoutine(ctx, routine))

	otherTenant := uuid.NewString()
	stored, err := repo.ActiveRoutine(ctx, otherTenant, userID)
	require.NoError(t, err)
	require.Nil(t, stored, "RLS should prevent cross-tenant access")
}

func TestRepositoryListRecordsPagination(t *testing.T) {
	ctx := context.Background()
	repo, _ := setupRepository(t, ctx)

	tenantID := uuid.NewString()
	userID := uuid.NewString()
	today := domain.DayOf(time.Now().UTC())

	for i := 0; i < 5; i++ {
		record := domain.DailyRecord{
			TenantID:     tenantID,
			UserID:       userID,
			Day:          today.AddDate(0, 0, -i),
			CompletedIDs: []string{"a1"},
			AllCompleted: true,
			CreatedAt:    time.Now().UTC(),
			UpdatedAt:    time.Now().UTC(),
		}
		require.NoError(t, repo.UpsertRecord(ctx, record, 0))
	}

	page, next, err := repo.ListRecords(ctx, tenantID, userID, nil, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.NotNil(t, next)
	require.True(t, page[0].Day.After(page[2].Day))

	rest, last, err := repo.ListRecords(ctx, tenantID, userID, next, 3)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.Nil(t, last)
	require.True(t, page[2].Day.After(rest[0].Day))

	days, err := repo.CompletedDays(ctx, tenantID, userID)
	require.NoError(t, err)
	require.Len(t, days, 5)
}

func setupRepository(t *testing.T, ctx context.Context) (*Repository, *pgxpool.Pool) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("wellness"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return NewRepository(pool), pool
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/postgres/migrations/0001_init.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
