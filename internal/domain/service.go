package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/routine/internal/events"
)

var (
	// ErrNoActiveRoutine is returned when the user has not configured a routine.
	ErrNoActiveRoutine = errors.New("no active routine")
	// ErrEmptyRoutine is returned when the active routine has zero activities.
	ErrEmptyRoutine = errors.New("routine has no activities")
	// ErrActivityNotFound is returned when the resolver finds nothing above threshold.
	ErrActivityNotFound = errors.New("no activity matched the identifier")
	// ErrUpdateConflict is returned when the optimistic retry loop exhausts its attempts.
	ErrUpdateConflict = errors.New("daily record update conflict")
	// ErrVersionConflict is reported by CompletionStore when a write loses the race.
	ErrVersionConflict = errors.New("daily record version conflict")
)

// AmbiguousMatchError carries the tied candidate set so the caller can ask the
// user to pick one.
type AmbiguousMatchError struct {
	Query      string
	Candidates []ScoredActivity
}

func (e *AmbiguousMatchError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, candidate := range e.Candidates {
		names[i] = candidate.Activity.Name
	}
	return fmt.Sprintf("identifier %q is ambiguous between: %s", e.Query, strings.Join(names, ", "))
}

// RoutineStore persists routine definitions.
type RoutineStore interface {
	ActiveRoutine(ctx context.Context, tenantID, userID string) (*Routine, error)
	SaveRoutine(ctx context.Context, routine Routine) error
	ReplaceActivities(ctx context.Context, tenantID, userID string, activities []Activity, totalDurationMin int) error
}

// CompletionStore persists per-day completion records. UpsertRecord must fail
// with ErrVersionConflict when expectedVersion no longer matches the stored
// row, so concurrent completions of different activities are both preserved.
type CompletionStore interface {
	Record(ctx context.Context, tenantID, userID string, day time.Time) (*DailyRecord, error)
	UpsertRecord(ctx context.Context, record DailyRecord, expectedVersion int64) error
	CompletedDays(ctx context.Context, tenantID, userID string) ([]time.Time, error)
	ListRecords(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]DailyRecord, *Cursor, error)
}

// JournalSink accepts structured completion and edit events.
type JournalSink interface {
	Record(ctx context.Context, entry events.JournalEntry) error
}

// MilestoneSink accepts first-full-completion awards.
type MilestoneSink interface {
	Award(ctx context.Context, milestone events.MilestoneAwarded) error
}

// MemorySink accepts free-text summaries of what changed.
type MemorySink interface {
	Remember(ctx context.Context, memory events.MemoryRecorded) error
}

// Sinks bundles the best-effort side-effect collaborators. Any field may be
// nil; failures are logged and never surfaced to the caller.
type Sinks struct {
	Journal    JournalSink
	Milestones MilestoneSink
	Memories   MemorySink
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithClock overrides the wall clock, keeping day-boundary logic testable.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger overrides the logger used for swallowed sink failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRetryAttempts bounds the optimistic-concurrency retry loop.
func WithRetryAttempts(attempts int) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.retryAttempts = attempts
		}
	}
}

// Service orchestrates routine resolution, completion tracking, editing, and
// streak analytics.
type Service struct {
	routines      RoutineStore
	records       CompletionStore
	sinks         Sinks
	now           func() time.Time
	retryAttempts int
	logger        *log.Logger
}

// NewService constructs a Service.
func NewService(routines RoutineStore, records CompletionStore, sinks Sinks, opts ...Option) *Service {
	s := &Service{
		routines:      routines,
		records:       records,
		sinks:         sinks,
		now:           time.Now,
		retryAttempts: 3,
		logger:        log.New(log.Writer(), "[routine] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ActivityInput captures one activity in a routine configuration request.
type ActivityInput struct {
	Name        string
	DurationMin int
	Icon        string
	Description string
}

// ConfigureRoutine creates or replaces the user's active routine.
func (s *Service) ConfigureRoutine(ctx context.Context, tenantID, userID string, inputs []ActivityInput) (*Routine, error) {
	now := s.now().UTC()
	activities := make([]Activity, 0, len(inputs))
	total := 0
	for _, input := range inputs {
		name := strings.TrimSpace(input.Name)
		if name == "" {
			return nil, errors.New("activity name is required")
		}
		activities = append(activities, Activity{
			ID:          uuid.NewString(),
			Name:        name,
			DurationMin: input.DurationMin,
			Icon:        input.Icon,
			Description: input.Description,
		})
		total += input.DurationMin
	}

	routine := Routine{
		TenantID:         tenantID,
		UserID:           userID,
		Activities:       activities,
		TotalDurationMin: total,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.routines.SaveRoutine(ctx, routine); err != nil {
		return nil, err
	}
	return &routine, nil
}

// ActiveRoutine returns the user's active routine.
func (s *Service) ActiveRoutine(ctx context.Context, tenantID, userID string) (*Routine, error) {
	routine, err := s.routines.ActiveRoutine(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if routine == nil || !routine.IsActive {
		return nil, ErrNoActiveRoutine
	}
	return routine, nil
}

// ResolveActivity resolves a free-text query against the active routine's
// catalog. The call is stateless and re-callable, so a caller holding an
// ambiguous result may re-invoke it with the user's follow-up text.
func (s *Service) ResolveActivity(ctx context.Context, tenantID, userID, query string) (MatchResult, error) {
	routine, err := s.activeRoutineWithActivities(ctx, tenantID, userID)
	if err != nil {
		return MatchResult{}, err
	}
	return Resolve(query, routine.Activities), nil
}

// CompletionResult reports the outcome of completing a single activity.
type CompletionResult struct {
	MatchedActivityName string
	CompletedToday      int
	TotalActivities     int
	AllCompleted        bool
	AlreadyComplete     bool
}

// CompleteActivity resolves identifier against the active routine and marks
// the matched activity complete for today. Repeating the call is a no-op.
func (s *Service) CompleteActivity(ctx context.Context, tenantID, userID, identifier string) (*CompletionResult, error) {
	routine, err := s.activeRoutineWithActivities(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	catalog := NewCatalog(routine.Activities)

	matched, err := s.resolveOne(identifier, routine.Activities)
	if err != nil {
		return nil, err
	}

	day := DayOf(s.now())
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		record, err := s.loadOrNewRecord(ctx, tenantID, userID, day)
		if err != nil {
			return nil, err
		}

		if record.Contains(matched.ID) {
			return &CompletionResult{
				MatchedActivityName: matched.Name,
				CompletedToday:      len(record.CompletedIDs),
				TotalActivities:     catalog.Len(),
				AllCompleted:        record.AllCompleted,
				AlreadyComplete:     true,
			}, nil
		}

		wasComplete := record.AllCompleted
		expected := record.Version
		record.CompletedIDs = append(record.CompletedIDs, matched.ID)
		record.AllCompleted = catalog.CoveredBy(record.CompletedIDs)
		record.UpdatedAt = s.now().UTC()

		if err := s.records.UpsertRecord(ctx, *record, expected); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return nil, err
		}

		result := &CompletionResult{
			MatchedActivityName: matched.Name,
			CompletedToday:      len(record.CompletedIDs),
			TotalActivities:     catalog.Len(),
			AllCompleted:        record.AllCompleted,
		}

		s.emitJournal(ctx, events.JournalEntry{
			TenantID:        tenantID,
			UserID:          userID,
			Kind:            events.JournalKindActivityCompleted,
			Day:             day.Format(time.DateOnly),
			ActivityID:      matched.ID,
			ActivityName:    matched.Name,
			CompletedCount:  result.CompletedToday,
			TotalActivities: result.TotalActivities,
			OccurredAt:      record.UpdatedAt,
		})
		if record.AllCompleted && !wasComplete {
			s.emitMilestone(ctx, tenantID, userID, day, record.UpdatedAt)
		}
		return result, nil
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrUpdateConflict, s.retryAttempts)
}

// BulkCompletionResult reports the outcome of completing every activity.
type BulkCompletionResult struct {
	NewlyCompleted         int
	TotalActivities        int
	AllWereAlreadyComplete bool
	NewlyCompletedNames    []string
}

// CompleteAll marks every remaining activity complete for today in a single
// mutation and emits one journal event carrying the newly completed names.
func (s *Service) CompleteAll(ctx context.Context, tenantID, userID string) (*BulkCompletionResult, error) {
	routine, err := s.activeRoutineWithActivities(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	catalog := NewCatalog(routine.Activities)

	day := DayOf(s.now())
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		record, err := s.loadOrNewRecord(ctx, tenantID, userID, day)
		if err != nil {
			return nil, err
		}

		remaining := catalog.Missing(record.CompletedIDs)
		if len(remaining) == 0 {
			return &BulkCompletionResult{
				TotalActivities:        catalog.Len(),
				AllWereAlreadyComplete: true,
			}, nil
		}

		names := make([]string, len(remaining))
		wasComplete := record.AllCompleted
		expected := record.Version
		for i, activity := range remaining {
			record.CompletedIDs = append(record.CompletedIDs, activity.ID)
			names[i] = activity.Name
		}
		record.AllCompleted = true
		record.UpdatedAt = s.now().UTC()

		if err := s.records.UpsertRecord(ctx, *record, expected); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				continue
			}
			return nil, err
		}

		s.emitJournal(ctx, events.JournalEntry{
			TenantID:            tenantID,
			UserID:              userID,
			Kind:                events.JournalKindRoutineCompleted,
			Day:                 day.Format(time.DateOnly),
			CompletedCount:      len(record.CompletedIDs),
			TotalActivities:     catalog.Len(),
			NewlyCompletedNames: names,
			OccurredAt:          record.UpdatedAt,
		})
		if !wasComplete {
			s.emitMilestone(ctx, tenantID, userID, day, record.UpdatedAt)
		}

		return &BulkCompletionResult{
			NewlyCompleted:      len(remaining),
			TotalActivities:     catalog.Len(),
			NewlyCompletedNames: names,
		}, nil
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrUpdateConflict, s.retryAttempts)
}

// ActivityChanges carries the optional fields an edit may touch.
type ActivityChanges struct {
	Name        *string
	DurationMin *int
	Icon        *string
}

// UpdateResult reports the outcome of an in-place activity edit.
type UpdateResult struct {
	Updated             Activity
	MatchedOriginalName string
	Changes             []string
}

// UpdateActivity locates an activity through the resolver and applies an
// in-place rename/duration/icon update, recomputing the routine's total
// duration. If nothing actually differs it reports "no changes" and neither
// persists nor emits side effects.
func (s *Service) UpdateActivity(ctx context.Context, tenantID, userID, identifier string, changes ActivityChanges) (*UpdateResult, error) {
	routine, err := s.activeRoutineWithActivities(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	matched, err := s.resolveOne(identifier, routine.Activities)
	if err != nil {
		return nil, err
	}

	index := -1
	for i, activity := range routine.Activities {
		if activity.ID == matched.ID {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, ErrActivityNotFound
	}

	updated := routine.Activities[index]
	applied := make([]string, 0, 3)

	if changes.Name != nil {
		newName := strings.TrimSpace(*changes.Name)
		if newName != "" && newName != updated.Name {
			applied = append(applied, fmt.Sprintf("renamed %q to %q", updated.Name, newName))
			updated.Name = newName
		}
	}
	if changes.DurationMin != nil && *changes.DurationMin != updated.DurationMin {
		applied = append(applied, fmt.Sprintf("duration %d min to %d min", updated.DurationMin, *changes.DurationMin))
		updated.DurationMin = *changes.DurationMin
	}
	if changes.Icon != nil && *changes.Icon != updated.Icon {
		applied = append(applied, fmt.Sprintf("icon set to %s", *changes.Icon))
		updated.Icon = *changes.Icon
	}

	if len(applied) == 0 {
		return &UpdateResult{
			Updated:             *matched,
			MatchedOriginalName: matched.Name,
			Changes:             []string{"no changes"},
		}, nil
	}

	activities := make([]Activity, len(routine.Activities))
	copy(activities, routine.Activities)
	activities[index] = updated
	total := NewCatalog(activities).TotalDurationMin()

	if err := s.routines.ReplaceActivities(ctx, tenantID, userID, activities, total); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	s.emitJournal(ctx, events.JournalEntry{
		TenantID:     tenantID,
		UserID:       userID,
		Kind:         events.JournalKindActivityUpdated,
		Day:          DayOf(now).Format(time.DateOnly),
		ActivityID:   updated.ID,
		ActivityName: updated.Name,
		Changes:      applied,
		OccurredAt:   now,
	})
	s.emitMemory(ctx, tenantID, userID, fmt.Sprintf("Routine activity %q: %s", matched.Name, strings.Join(applied, "; ")), now)

	return &UpdateResult{
		Updated:             updated,
		MatchedOriginalName: matched.Name,
		Changes:             applied,
	}, nil
}

// Streak computes current streak, longest streak, and completion rate from the
// user's fully-completed days.
func (s *Service) Streak(ctx context.Context, tenantID, userID string, windowDays int) (*StreakResult, error) {
	days, err := s.records.CompletedDays(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	result := ComputeStreak(days, windowDays, s.now())
	return &result, nil
}

// History lists daily completion records, newest first, with keyset pagination.
func (s *Service) History(ctx context.Context, tenantID, userID string, cursor *Cursor, limit int) ([]DailyRecord, *Cursor, error) {
	return s.records.ListRecords(ctx, tenantID, userID, cursor, limit)
}

func (s *Service) activeRoutineWithActivities(ctx context.Context, tenantID, userID string) (*Routine, error) {
	routine, err := s.ActiveRoutine(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if len(routine.Activities) == 0 {
		return nil, ErrEmptyRoutine
	}
	return routine, nil
}

func (s *Service) resolveOne(identifier string, activities []Activity) (*Activity, error) {
	result := Resolve(identifier, activities)
	switch result.Confidence {
	case ConfidenceHigh, ConfidenceMedium:
		return result.Best, nil
	case ConfidenceAmbiguous:
		return nil, &AmbiguousMatchError{Query: identifier, Candidates: result.Candidates}
	default:
		return nil, ErrActivityNotFound
	}
}

func (s *Service) loadOrNewRecord(ctx context.Context, tenantID, userID string, day time.Time) (*DailyRecord, error) {
	record, err := s.records.Record(ctx, tenantID, userID, day)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = &DailyRecord{
			TenantID:  tenantID,
			UserID:    userID,
			Day:       day,
			CreatedAt: s.now().UTC(),
		}
	}
	return record, nil
}

// Sink failures are best-effort by contract: logged, never propagated.

func (s *Service) emitJournal(ctx context.Context, entry events.JournalEntry) {
	if s.sinks.Journal == nil {
		return
	}
	if err := s.sinks.Journal.Record(ctx, entry); err != nil {
		s.logger.Printf("journal sink failed (user=%s, kind=%s): %v", entry.UserID, entry.Kind, err)
	}
}

func (s *Service) emitMilestone(ctx context.Context, tenantID, userID string, day, occurredAt time.Time) {
	if s.sinks.Milestones == nil {
		return
	}
	milestone := events.MilestoneAwarded{
		TenantID:   tenantID,
		UserID:     userID,
		Kind:       events.MilestoneFullRoutine,
		Day:        day.Format(time.DateOnly),
		OccurredAt: occurredAt,
	}
	if err := s.sinks.Milestones.Award(ctx, milestone); err != nil {
		s.logger.Printf("milestone sink failed (user=%s): %v", userID, err)
	}
}

func (s *Service) emitMemory(ctx context.Context, tenantID, userID, summary string, occurredAt time.Time) {
	if s.sinks.Memories == nil {
		return
	}
	memory := events.MemoryRecorded{
		TenantID:   tenantID,
		UserID:     userID,
		Summary:    summary,
		OccurredAt: occurredAt,
	}
	if err := s.sinks.Memories.Remember(ctx, memory); err != nil {
		s.logger.Printf("memory sink failed (user=%s): %v", userID, err)
	}
}
