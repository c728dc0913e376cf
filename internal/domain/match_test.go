package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveExactMatchIsAlwaysHigh(t *testing.T) {
	activities := []Activity{
		{ID: "a1", Name: "Stretch"},
		{ID: "a2", Name: "Stretching routine"},
		{ID: "a3", Name: "Morning stretch session"},
	}

	for _, query := range []string{"Stretch", "stretch", "  STRETCH  "} {
		result := Resolve(query, activities)
		require.Equal(t, ConfidenceHigh, result.Confidence, "query %q", query)
		require.NotNil(t, result.Best)
		require.Equal(t, "a1", result.Best.ID)
	}
}

func TestResolveExactBeatsPrefixWithHighConfidence(t *testing.T) {
	activities := []Activity{
		{ID: "a1", Name: "Stretch"},
		{ID: "a2", Name: "Stretching routine"},
	}

	result := Resolve("stretch", activities)

	require.Equal(t, ConfidenceHigh, result.Confidence)
	require.Equal(t, "a1", result.Best.ID)
	require.Len(t, result.Candidates, 2)
	require.Equal(t, 100.0, result.Candidates[0].Score)
	require.Equal(t, MatchExact, result.Candidates[0].Type)
	require.Equal(t, 80.0, result.Candidates[1].Score)
	require.Equal(t, MatchStartsWith, result.Candidates[1].Type)
}

func TestResolveNearTieIsAmbiguous(t *testing.T) {
	activities := []Activity{
		{ID: "a1", Name: "Gratitude journal"},
		{ID: "a2", Name: "Gratitude walk"},
	}

	result := Resolve("gratitude", activities)

	require.Equal(t, ConfidenceAmbiguous, result.Confidence)
	require.Nil(t, result.Best)
	require.Len(t, result.Candidates, 2)
	for _, candidate := range result.Candidates {
		require.Equal(t, 60.0, candidate.Score)
		require.Equal(t, MatchContains, candidate.Type)
	}
}

func TestResolveSingleContainsIsMedium(t *testing.T) {
	activities := []Activity{
		{ID: "a1", Name: "Morning meditation"},
		{ID: "a2", Name: "Evening walk"},
	}

	result := Resolve("meditation", activities)

	require.Equal(t, ConfidenceMedium, result.Confidence)
	require.NotNil(t, result.Best)
	require.Equal(t, "a1", result.Best.ID)
}

func TestResolveReverseContains(t *testing.T) {
	activities := []Activity{{ID: "a1", Name: "Stretch"}}

	result := Resolve("do the stretch thing now please everyone", activities)

	require.NotEmpty(t, result.Candidates)
	require.Equal(t, MatchReverseContains, result.Candidates[0].Type)
	require.Equal(t, 50.0, result.Candidates[0].Score)
	require.Equal(t, ConfidenceMedium, result.Confidence)
}

func TestResolveTokenOverlap(t *testing.T) {
	activities := []Activity{
		{ID: "a1", Name: "Deep breathing exercise"},
		{ID: "a2", Name: "Cold shower"},
	}

	result := Resolve("breathing deep", activities)

	require.NotEmpty(t, result.Candidates)
	top := result.Candidates[0]
	require.Equal(t, "a1", top.Activity.ID)
	require.Equal(t, MatchTokenOverlap, top.Type)
	// 2 of max(2, 3) tokens overlap: 40 + 30*(2/3) = 60.
	require.InDelta(t, 60.0, top.Score, 0.0001)
}

func TestResolveDiscardsNonOverlappingCandidates(t *testing.T) {
	activities := []Activity{
		{ID: "a1", Name: "Evening walk"},
		{ID: "a2", Name: "Journaling"},
	}

	result := Resolve("piano practice", activities)

	require.Equal(t, ConfidenceLow, result.Confidence)
	require.Nil(t, result.Best)
	require.Empty(t, result.Candidates)
}

func TestResolveEmptyQueryIsLow(t *testing.T) {
	activities := []Activity{{ID: "a1", Name: "Stretch"}}

	result := Resolve("   ", activities)

	require.Equal(t, ConfidenceLow, result.Confidence)
	require.Nil(t, result.Best)
}

func TestResolveIsDeterministic(t *testing.T) {
	activities := []Activity{
		{ID: "a1", Name: "Gratitude journal"},
		{ID: "a2", Name: "Gratitude walk"},
		{ID: "a3", Name: "Gratitude list"},
	}

	first := Resolve("gratitude", activities)
	for i := 0; i < 20; i++ {
		again := Resolve("gratitude", activities)
		require.Equal(t, first.Confidence, again.Confidence)
		require.Equal(t, len(first.Candidates), len(again.Candidates))
		for j := range first.Candidates {
			require.Equal(t, first.Candidates[j].Activity.ID, again.Candidates[j].Activity.ID)
		}
	}
}

func TestBestMatchReturnsNilOnAmbiguity(t *testing.T) {
	activities := []Activity{
		{ID: "a1", Name: "Gratitude journal"},
		{ID: "a2", Name: "Gratitude walk"},
	}

	require.Nil(t, BestMatch("gratitude", activities))
	require.Nil(t, BestMatch("unrelated", activities))

	match := BestMatch("gratitude journal", activities)
	require.NotNil(t, match)
	require.Equal(t, "a1", match.ID)
}
