package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var streakToday = time.Date(2025, time.March, 15, 9, 30, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return DayOf(streakToday).AddDate(0, 0, -n)
}

func TestComputeStreakConsecutiveRunEndingToday(t *testing.T) {
	days := []time.Time{daysAgo(0), daysAgo(1), daysAgo(2)}

	result := ComputeStreak(days, 30, streakToday)

	require.Equal(t, 3, result.CurrentStreak)
	require.Equal(t, 3, result.LongestStreak)
	require.InDelta(t, 10.0, result.CompletionRate, 0.0001)
}

func TestComputeStreakGracePeriodForYesterday(t *testing.T) {
	days := []time.Time{daysAgo(1), daysAgo(2), daysAgo(3)}

	result := ComputeStreak(days, 30, streakToday)

	require.Equal(t, 3, result.CurrentStreak)
	require.Equal(t, 3, result.LongestStreak)
}

func TestComputeStreakBrokenStreakIsZero(t *testing.T) {
	days := []time.Time{daysAgo(3), daysAgo(4)}

	result := ComputeStreak(days, 30, streakToday)

	require.Equal(t, 0, result.CurrentStreak)
	require.Equal(t, 2, result.LongestStreak)
}

func TestComputeStreakLongestRunInHistory(t *testing.T) {
	days := []time.Time{
		daysAgo(0),
		daysAgo(10), daysAgo(11), daysAgo(12), daysAgo(13), daysAgo(14),
		daysAgo(20), daysAgo(21),
	}

	result := ComputeStreak(days, 30, streakToday)

	require.Equal(t, 1, result.CurrentStreak)
	require.Equal(t, 5, result.LongestStreak)
}

func TestComputeStreakInputOrderAndDuplicatesIgnored(t *testing.T) {
	days := []time.Time{
		daysAgo(2), daysAgo(0), daysAgo(1),
		daysAgo(1).Add(14 * time.Hour), // same day, different time
	}

	result := ComputeStreak(days, 30, streakToday)

	require.Equal(t, 3, result.CurrentStreak)
	require.Equal(t, 3, result.LongestStreak)
}

func TestComputeStreakCompletionRateCappedAt100(t *testing.T) {
	days := make([]time.Time, 0, 40)
	for i := 0; i < 40; i++ {
		days = append(days, daysAgo(i))
	}

	result := ComputeStreak(days, 30, streakToday)

	require.InDelta(t, 100.0, result.CompletionRate, 0.0001)
	require.Equal(t, 40, result.LongestStreak)
	require.Equal(t, 40, result.CurrentStreak)
}

func TestComputeStreakEmptyHistory(t *testing.T) {
	result := ComputeStreak(nil, 30, streakToday)

	require.Equal(t, 0, result.CurrentStreak)
	require.Equal(t, 0, result.LongestStreak)
	require.Zero(t, result.CompletionRate)
}

func TestComputeStreakZeroWindow(t *testing.T) {
	result := ComputeStreak([]time.Time{daysAgo(0)}, 0, streakToday)

	require.Zero(t, result.CompletionRate)
	require.Equal(t, 1, result.CurrentStreak)
}
