package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/routine/internal/events"
)

var fixedNow = time.Date(2025, time.June, 10, 8, 15, 0, 0, time.UTC)

type fakeRoutineStore struct {
	routine        *Routine
	replaceCalls   int
	lastActivities []Activity
	lastTotal      int
}

func (f *fakeRoutineStore) ActiveRoutine(_ context.Context, _, _ string) (*Routine, error) {
	return f.routine, nil
}

func (f *fakeRoutineStore) SaveRoutine(_ context.Context, routine Routine) error {
	f.routine = &routine
	return nil
}

func (f *fakeRoutineStore) ReplaceActivities(_ context.Context, _, _ string, activities []Activity, totalDurationMin int) error {
	f.replaceCalls++
	f.lastActivities = activities
	f.lastTotal = totalDurationMin
	f.routine.Activities = activities
	f.routine.TotalDurationMin = totalDurationMin
	return nil
}

type fakeCompletionStore struct {
	records       map[string]DailyRecord
	upsertCalls   int
	conflictsLeft int
	completedDays []time.Time
}

func newFakeCompletionStore() *fakeCompletionStore {
	return &fakeCompletionStore{records: make(map[string]DailyRecord)}
}

func recordKey(userID string, day time.Time) string {
	return fmt.Sprintf("%s:%s", userID, day.Format(time.DateOnly))
}

func (f *fakeCompletionStore) Record(_ context.Context, _, userID string, day time.Time) (*DailyRecord, error) {
	record, ok := f.records[recordKey(userID, day)]
	if !ok {
		return nil, nil
	}
	copied := record
	copied.CompletedIDs = append([]string(nil), record.CompletedIDs...)
	return &copied, nil
}

func (f *fakeCompletionStore) UpsertRecord(_ context.Context, record DailyRecord, expectedVersion int64) error {
	f.upsertCalls++
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return ErrVersionConflict
	}

	key := recordKey(record.UserID, record.Day)
	stored, exists := f.records[key]
	if expectedVersion == 0 {
		if exists {
			return ErrVersionConflict
		}
	} else if stored.Version != expectedVersion {
		return ErrVersionConflict
	}

	record.Version = expectedVersion + 1
	record.CompletedIDs = append([]string(nil), record.CompletedIDs...)
	f.records[key] = record
	return nil
}

func (f *fakeCompletionStore) CompletedDays(_ context.Context, _, _ string) ([]time.Time, error) {
	return f.completedDays, nil
}

func (f *fakeCompletionStore) ListRecords(_ context.Context, _, _ string, _ *Cursor, _ int) ([]DailyRecord, *Cursor, error) {
	return nil, nil, nil
}

type capturingSinks struct {
	journal    []events.JournalEntry
	milestones []events.MilestoneAwarded
	memories   []events.MemoryRecorded
	err        error
}

func (c *capturingSinks) Record(_ context.Context, entry events.JournalEntry) error {
	if c.err != nil {
		return c.err
	}
	c.journal = append(c.journal, entry)
	return nil
}

func (c *capturingSinks) Award(_ context.Context, milestone events.MilestoneAwarded) error {
	if c.err != nil {
		return c.err
	}
	c.milestones = append(c.milestones, milestone)
	return nil
}

func (c *capturingSinks) Remember(_ context.Context, memory events.MemoryRecorded) error {
	if c.err != nil {
		return c.err
	}
	c.memories = append(c.memories, memory)
	return nil
}

func testRoutine() *Routine {
	return &Routine{
		TenantID: "tenant-1",
		UserID:   "user-1",
		Activities: []Activity{
			{ID: "a1", Name: "Stretch", DurationMin: 10},
			{ID: "a2", Name: "Meditation", DurationMin: 15},
			{ID: "a3", Name: "Evening walk", DurationMin: 20},
		},
		TotalDurationMin: 45,
		IsActive:         true,
	}
}

func newTestService(routines *fakeRoutineStore, records *fakeCompletionStore, sinks *capturingSinks) *Service {
	return NewService(
		routines,
		records,
		Sinks{Journal: sinks, Milestones: sinks, Memories: sinks},
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(log.New(discardWriter{}, "", 0)),
	)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestCompleteActivityMarksMatchedActivity(t *testing.T) {
	routines := &fakeRoutineStore{routine: testRoutine()}
	records := newFakeCompletionStore()
	sinks := &capturingSinks{}
	service := newTestService(routines, records, sinks)

	result, err := service.CompleteActivity(context.Background(), "tenant-1", "user-1", "the stretch thing")
	require.NoError(t, err)

	require.Equal(t, "Stretch", result.MatchedActivityName)
	require.Equal(t, 1, result.CompletedToday)
	require.Equal(t, 3, result.TotalActivities)
	require.False(t, result.AllCompleted)
	require.False(t, result.AlreadyComplete)

	require.Len(t, sinks.journal, 1)
	require.Equal(t, events.JournalKindActivityCompleted, sinks.journal[0].Kind)
	require.Equal(t, "2025-06-10", sinks.journal[0].Day)
	require.Empty(t, sinks.milestones)
}

func TestCompleteActivityIsIdempotent(t *testing.T) {
	routines := &fakeRoutineStore{routine: testRoutine()}
	records := newFakeCompletionStore()
	sinks := &capturingSinks{}
	service := newTestService(routines, records, sinks)

	first, err := service.CompleteActivity(context.Background(), "tenant-1", "user-1", "stretch")
	require.NoError(t, err)
	require.False(t, first.AlreadyComplete)

	second, err := service.CompleteActivity(context.Background(), "tenant-1", "user-1", "stretch")
	require.NoError(t, err)
	require.True(t, second.AlreadyComplete)
	require.Equal(t, 1, second.CompletedToday)

	stored, err := records.Record(context.Background(), "tenant-1", "user-1", DayOf(fixedNow))
	require.NoError(t, err)
	require.Equal(t, []string{"a1"}, stored.CompletedIDs)

	// The replay must not emit side effects or write again.
	require.Len(t, sinks.journal, 1)
	require.Equal(t, 1, records.upsertCalls)
}

func TestCompleteActivityMilestoneOnFirstFullCompletionOnly(t *testing.T) {
	routines := &fakeRoutineStore{routine: testRoutine()}
	records := newFakeCompletionStore()
	sinks := &capturingSinks{}
	service := newTestService(routines, records, sinks)

	ctx := context.Background()
	for _, identifier := range []string{"evening walk", "meditation", "stretch"} {
		_, err := service.CompleteActivity(ctx, "tenant-1", "user-1", identifier)
		require.NoError(t, err)
	}

	stored, err := records.Record(ctx, "tenant-1", "user-1", DayOf(fixedNow))
	require.NoError(t, err)
	require.True(t, stored.AllCompleted)
	require.Len(t, sinks.milestones, 1)
	require.Equal(t, events.MilestoneFullRoutine, sinks.milestones[0].Kind)

	// Completion order must not matter and replays must not re-award.
	replay, err := service.CompleteActivity(ctx, "tenant-1", "user-1", "stretch")
	require.NoError(t, err)
	require.True(t, replay.AlreadyComplete)
	require.Len(t, sinks.milestones, 1)
}

func TestCompleteAllUnionsRemainingInOneWrite(t *testing.T) {
	routines := &fakeRoutineStore{routine: testRoutine()}
	records := newFakeCompletionStore()
	sinks := &capturingSinks{}
	service := newTestService(routines, records, sinks)

	ctx := context.Background()
	_, err := service.CompleteActivity(ctx, "tenant-1", "user-1", "stretch")
	require.NoError(t, err)
	writesBefore := records.upsertCalls

	result, err := service.CompleteAll(ctx, "tenant-1", "user-1")
	require.NoError(t, err)

	require.Equal(t, 2, result.NewlyCompleted)
	require.Equal(t, 3, result.TotalActivities)
	require.False(t, result.AllWereAlreadyComplete)
	require.Equal(t, []string{"Meditation", "Evening walk"}, result.NewlyCompletedNames)
	require.Equal(t, writesBefore+1, records.upsertCalls)

	require.Len(t, sinks.milestones, 1)
	bulk := sinks.journal[len(sinks.journal)-1]
	require.Equal(t, events.JournalKindRoutineCompleted, bulk.Kind)
	require.Equal(t, []string{"Meditation", "Evening walk"}, bulk.NewlyCompletedNames)
}

func TestCompleteAllNoOpWhenEverythingDone(t *testing.T) {
	routines := &fakeRoutineStore{routine: testRoutine()}
	records := newFakeCompletionStore()
	sinks := &capturingSinks{}
	service := newTestService(routines, records, sinks)

	ctx := context.Background()
	_, err := service.CompleteAll(ctx, "tenant-1", "user-1")
	require.NoError(t, err)
	writesBefore := records.upsertCalls
	journalBefore := len(sinks.journal)

	result, err := service.CompleteAll(ctx, "tenant-1", "user-1")
	require.NoError(t, err)

	require.True(t, result.AllWereAlreadyComplete)
	require.Zero(t, result.NewlyCompleted)
	require.Equal(t, writesBefore, records.upsertCalls, "no-op must not write")
	require.Len(t, sinks.journal, journalBefore)
	require.Len(t, sinks.milestones, 1)
}

func TestCompleteActivityAmbiguousIdentifier(t *testing.T) {
	routines := &fakeRoutineStore{routine: &Routine{
		TenantID: "tenant-1",
		UserID:   "user-1",
		Activities: []Activity{
			{ID: "a1", Name: "Gratitude journal"},
			{ID: "a2", Name: "Gratitude walk"},
		},
		IsActive: true,
	}}
	service := newTestService(routines, newFakeCompletionStore(), &capturingSinks{})

	_, err := service.CompleteActivity(context.Background(), "tenant-1", "user-1", "gratitude")

	var ambiguous *AmbiguousMatchError
	require.ErrorAs(t, err, &ambiguous)
	require.Len(t, ambiguous.Candidates, 2)
}

func TestCompleteActivityUnknownIdentifier(t *testing.T) {
	routines := &fakeRoutineStore{routine: testRoutine()}
	service := newTestService(routines, newFakeCompletionStore(), &capturingSinks{})

	_, err := service.CompleteActivity(context.Background(), "tenant-1", "user-1", "underwater basket weaving")
	require.ErrorIs(t, err, ErrActivityNotFound)
}

func TestCompleteActivityRequiresActiveRoutine(t *testing.T) {
	service := newTestService(&fakeRoutineStore{}, newFakeCompletionStore(), &capturingSinks{})

	_, err := service.CompleteActivity(context.Background(), "tenant-1", "user-1", "stretch")
	require.ErrorIs(t, err, ErrNoActiveRoutine)
}

func TestCompleteActivityRequiresNonEmptyRoutine(t *testing.T) {
	routines := &fakeRoutineStore{routine: &Routine{TenantID: "tenant-1", UserID: "user-1", IsActive: true}}
	service := newTestService(routines, newFakeCompletionStore(), &capturingSinks{})

	_, err := service.CompleteActivity(context.Background(), "tenant-1", "user-1", "stretch")
	require.ErrorIs(t, err, ErrEmptyRoutine)
}

func TestCompleteActivityRetriesOnVersionConflict(t *testing.T) {
	routines := &fakeRoutineStore{routine: testRoutine()}
	records := newFakeCompletionStore()
	records.conflictsLeft = 2
	service := newTestService(routines, records, &capturingSinks{})

	result, err := service.CompleteActivity(context.Background(), "tenant-1", "user-1", "stretch")
	require.NoError(t, err)
	require.False(t, result.AlreadyComplete)
	require.Equal(t, 3, records.upsertCalls)
}

func TestCompleteActivitySurfacesConflictWhenRetriesExhausted(t *testing.T) {
	routines := &fakeRoutineStore{routine: testRoutine()}
	records := newFakeCompletionStore()
	records.conflictsLeft = 3
	service := newTestService(routines, records, &capturingSinks{})

	_, err := service.CompleteActivity(context.Background(), "tenant-1", "user-1", "stretch")
	require.ErrorIs(t, err, ErrUpdateConflict)
}

func TestCompleteActivitySinkFailuresAreSwallowed(t *testing.T) {
	routines := &fakeRoutineStore{routine: testRoutine()}
	records := newFakeCompletionStore()
	sinks := &capturingSinks{err: errors.New("kafka is down")}
	service := newTestService(routines, records, sinks)

	result, err := service.CompleteActivity(context.Background(), "tenant-1", "user-1", "stretch")
	require.NoError(t, err)
	require.Equal(t, "Stretch", result.MatchedActivityName)

	stored, err := records.Record(context.Background(), "tenant-1", "user-1", DayOf(fixedNow))
	require.NoError(t, err)
	require.Equal(t, []string{"a1"}, stored.CompletedIDs)
}

func TestUpdateActivityRenameAndDuration(t *testing.T) {
	routines := &fakeRoutineStore{routine: testRoutine()}
	sinks := &capturingSinks{}
	service := newTestService(routines, newFakeCompletionStore(), sinks)

	newName := "Deep stretch"
	newDuration := 25
	result, err := service.UpdateActivity(context.Background(), "tenant-1", "user-1", "stretch", ActivityChanges{
		Name:        &newName,
		DurationMin: &newDuration,
	})
	require.NoError(t, err)

	require.Equal(t, "Stretch", result.MatchedOriginalName)
	require.Equal(t, "Deep stretch", result.Updated.Name)
	require.Equal(t, 25, result.Updated.DurationMin)
	require.Len(t, result.Changes, 2)

	require.Equal(t, 1, routines.replaceCalls)
	require.Equal(t, 25+15+20, routines.lastTotal)

	require.Len(t, sinks.journal, 1)
	require.Equal(t, events.JournalKindActivityUpdated, sinks.journal[0].Kind)
	require.Len(t, sinks.memories, 1)
	require.Contains(t, sinks.memories[0].Summary, "Stretch")
}

func TestUpdateActivityNoChanges(t *testing.T) {
	routines := &fakeRoutineStore{routine: testRoutine()}
	sinks := &capturingSinks{}
	service := newTestService(routines, newFakeCompletionStore(), sinks)

	sameName := "Stretch"
	sameDuration := 10
	result, err := service.UpdateActivity(context.Background(), "tenant-1", "user-1", "stretch", ActivityChanges{
		Name:        &sameName,
		DurationMin: &sameDuration,
	})
	require.NoError(t, err)

	require.Equal(t, []string{"no changes"}, result.Changes)
	require.Zero(t, routines.replaceCalls)
	require.Empty(t, sinks.journal)
	require.Empty(t, sinks.memories)
}

func TestUpdateActivityRenamedActivityResolvesByNewName(t *testing.T) {
	routines := &fakeRoutineStore{routine: testRoutine()}
	service := newTestService(routines, newFakeCompletionStore(), &capturingSinks{})

	newName := "Sun salutation"
	_, err := service.UpdateActivity(context.Background(), "tenant-1", "user-1", "stretch", ActivityChanges{Name: &newName})
	require.NoError(t, err)

	result, err := service.CompleteActivity(context.Background(), "tenant-1", "user-1", "sun salutation")
	require.NoError(t, err)
	require.Equal(t, "Sun salutation", result.MatchedActivityName)
}

func TestStreakUsesInjectedClock(t *testing.T) {
	routines := &fakeRoutineStore{routine: testRoutine()}
	records := newFakeCompletionStore()
	records.completedDays = []time.Time{
		DayOf(fixedNow),
		DayOf(fixedNow).AddDate(0, 0, -1),
		DayOf(fixedNow).AddDate(0, 0, -2),
	}
	service := newTestService(routines, records, &capturingSinks{})

	result, err := service.Streak(context.Background(), "tenant-1", "user-1", 30)
	require.NoError(t, err)
	require.Equal(t, 3, result.CurrentStreak)
	require.Equal(t, 3, result.LongestStreak)
	require.InDelta(t, 10.0, result.CompletionRate, 0.0001)
}

func TestConfigureRoutineAssignsIDsAndTotals(t *testing.T) {
	routines := &fakeRoutineStore{}
	service := newTestService(routines, newFakeCompletionStore(), &capturingSinks{})

	routine, err := service.ConfigureRoutine(context.Background(), "tenant-1", "user-1", []ActivityInput{
		{Name: "Stretch", DurationMin: 10},
		{Name: "Meditation", DurationMin: 15},
	})
	require.NoError(t, err)

	require.Len(t, routine.Activities, 2)
	require.NotEmpty(t, routine.Activities[0].ID)
	require.NotEqual(t, routine.Activities[0].ID, routine.Activities[1].ID)
	require.Equal(t, 25, routine.TotalDurationMin)
	require.True(t, routine.IsActive)
}
