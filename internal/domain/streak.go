package domain

import (
	"sort"
	"time"
)

// StreakResult summarises consecutive-day completion runs and the completion
// rate over the lookback window.
type StreakResult struct {
	CurrentStreak  int
	LongestStreak  int
	CompletionRate float64
}

// ComputeStreak derives streaks from the set of days whose routine was fully
// completed. Input order does not matter; duplicates are ignored. The current
// streak only counts when its most recent day is today or yesterday, giving a
// one-day grace period for users who have not checked in yet.
func ComputeStreak(days []time.Time, windowDays int, today time.Time) StreakResult {
	today = DayOf(today)

	unique := make(map[time.Time]struct{}, len(days))
	for _, day := range days {
		unique[DayOf(day)] = struct{}{}
	}

	sorted := make([]time.Time, 0, len(unique))
	for day := range unique {
		sorted = append(sorted, day)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].After(sorted[j]) })

	result := StreakResult{CompletionRate: completionRate(sorted, windowDays, today)}
	if len(sorted) == 0 {
		return result
	}

	run := 1
	firstRun := 0
	for i := 1; i <= len(sorted); i++ {
		if i < len(sorted) && sorted[i-1].Sub(sorted[i]) == 24*time.Hour {
			run++
			continue
		}
		if firstRun == 0 {
			firstRun = run
		}
		if run > result.LongestStreak {
			result.LongestStreak = run
		}
		run = 1
	}

	anchor := sorted[0]
	if anchor.Equal(today) || anchor.Equal(today.AddDate(0, 0, -1)) {
		result.CurrentStreak = firstRun
	}
	return result
}

func completionRate(sortedDays []time.Time, windowDays int, today time.Time) float64 {
	if windowDays <= 0 {
		return 0
	}
	windowStart := today.AddDate(0, 0, -(windowDays - 1))

	count := 0
	for _, day := range sortedDays {
		if !day.Before(windowStart) && !day.After(today) {
			count++
		}
	}

	rate := 100 * float64(count) / float64(windowDays)
	if rate > 100 {
		rate = 100
	}
	return rate
}
