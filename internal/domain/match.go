package domain

import (
	"sort"
	"strings"
)

// MatchType identifies which scoring rule produced a candidate's score.
type MatchType string

const (
	MatchExact           MatchType = "exact"
	MatchStartsWith      MatchType = "starts_with"
	MatchContains        MatchType = "contains"
	MatchReverseContains MatchType = "reverse_contains"
	MatchTokenOverlap    MatchType = "token_overlap"
)

// Confidence classifies how certain a free-text resolution is.
type Confidence string

const (
	ConfidenceHigh      Confidence = "high"
	ConfidenceMedium    Confidence = "medium"
	ConfidenceAmbiguous Confidence = "ambiguous"
	ConfidenceLow       Confidence = "low"
)

const (
	minMatchScore  = 40.0
	mediumFloor    = 50.0
	highScoreFloor = 70.0
	highScoreGap   = 20.0
	ambiguityBand  = 15.0
)

// ScoredActivity is one surviving candidate with its score and rule.
type ScoredActivity struct {
	Activity Activity
	Score    float64
	Type     MatchType
}

// MatchResult is the outcome of resolving a free-text query against a catalog.
// Best is nil for ambiguous and low confidence; for ambiguous, Candidates holds
// the tied set so the caller can ask the user to pick one.
type MatchResult struct {
	Best       *Activity
	Candidates []ScoredActivity
	Confidence Confidence
}

// Resolve scores query against every activity name and classifies the result.
// The function is pure: identical inputs always produce identical results.
func Resolve(query string, activities []Activity) MatchResult {
	normalized := normalizeName(query)
	if normalized == "" {
		return MatchResult{Confidence: ConfidenceLow}
	}

	candidates := make([]ScoredActivity, 0, len(activities))
	for _, activity := range activities {
		score, matchType, ok := scoreActivity(normalized, activity)
		if !ok || score < minMatchScore {
			continue
		}
		candidates = append(candidates, ScoredActivity{Activity: activity, Score: score, Type: matchType})
	}

	// Stable sort keeps catalog order as the tie-break so results are deterministic.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) == 0 {
		return MatchResult{Confidence: ConfidenceLow}
	}

	top := candidates[0]
	second := 0.0
	if len(candidates) > 1 {
		second = candidates[1].Score
	}

	if top.Score == 100 || (top.Score >= highScoreFloor && top.Score-second >= highScoreGap) {
		best := top.Activity
		return MatchResult{Best: &best, Candidates: candidates, Confidence: ConfidenceHigh}
	}

	// Ambiguity is checked before the single-winner rule so near-ties surface
	// as a disambiguation choice instead of being silently resolved.
	tied := make([]ScoredActivity, 0, len(candidates))
	for _, candidate := range candidates {
		if top.Score-candidate.Score <= ambiguityBand {
			tied = append(tied, candidate)
		}
	}
	if len(tied) > 1 {
		return MatchResult{Candidates: tied, Confidence: ConfidenceAmbiguous}
	}

	if top.Score >= mediumFloor {
		best := top.Activity
		return MatchResult{Best: &best, Candidates: candidates, Confidence: ConfidenceMedium}
	}

	return MatchResult{Candidates: candidates, Confidence: ConfidenceLow}
}

// BestMatch returns the high- or medium-confidence winner, or nil. Callers
// that want to surface disambiguation choices should use Resolve directly.
func BestMatch(query string, activities []Activity) *Activity {
	result := Resolve(query, activities)
	if result.Confidence == ConfidenceHigh || result.Confidence == ConfidenceMedium {
		return result.Best
	}
	return nil
}

// scoreActivity applies the scoring rules in priority order; the first rule
// that applies wins for that candidate.
func scoreActivity(query string, activity Activity) (float64, MatchType, bool) {
	name := normalizeName(activity.Name)
	if name == "" {
		return 0, "", false
	}

	switch {
	case name == query:
		return 100, MatchExact, true
	case strings.HasPrefix(name, query):
		return 80, MatchStartsWith, true
	case strings.Contains(name, query):
		return 60, MatchContains, true
	case strings.Contains(query, name):
		return 50, MatchReverseContains, true
	}

	queryTokens := strings.Fields(query)
	nameTokens := strings.Fields(name)
	overlap := 0
	for _, qt := range queryTokens {
		for _, nt := range nameTokens {
			if strings.Contains(nt, qt) || strings.Contains(qt, nt) {
				overlap++
				break
			}
		}
	}
	if overlap == 0 {
		return 0, "", false
	}

	denominator := len(queryTokens)
	if len(nameTokens) > denominator {
		denominator = len(nameTokens)
	}
	ratio := float64(overlap) / float64(denominator)
	return 40 + 30*ratio, MatchTokenOverlap, true
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
