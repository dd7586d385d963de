// Package scoring computes pairwise compatibility between profiles. It is
// pure: no store access, no clock, deterministic for a given pair of inputs.
package scoring

import (
	"strings"

	"drop-match-api/internal/models"
)

// Weights and baselines for the score formula. The denominators are the
// expected overlap (3 shared interests, 2 shared cuisines): overlap beyond
// the baseline pushes the score past 100 and callers must not clamp it.
const (
	interestWeight   = 0.4
	cuisineWeight    = 0.4
	priceWeight      = 0.2
	interestBaseline = 3.0
	cuisineBaseline  = 2.0
)

// Result holds the score and the shared attributes that produced it.
type Result struct {
	Score           float64
	CommonInterests []string
	CommonCuisines  []string
}

// Score computes the compatibility between two profiles.
func Score(a, b models.Profile) Result {
	common := intersect(a.Interests, b.Interests)
	cuisines := intersect(a.CuisinePreferences, b.CuisinePreferences)

	score := interestWeight * float64(len(common)) / interestBaseline
	score += cuisineWeight * float64(len(cuisines)) / cuisineBaseline
	if a.PriceRange == b.PriceRange {
		score += priceWeight
	}

	return Result{
		Score:           score * 100,
		CommonInterests: common,
		CommonCuisines:  cuisines,
	}
}

// RecommendCuisine picks the single cuisine to suggest for a pair: the first
// shared cuisine, else the first cuisine unique to either user, else the
// configured fallback.
func RecommendCuisine(a, b models.Profile, common []string, fallback string) string {
	if len(common) > 0 {
		return common[0]
	}
	if len(a.CuisinePreferences) > 0 {
		return a.CuisinePreferences[0]
	}
	if len(b.CuisinePreferences) > 0 {
		return b.CuisinePreferences[0]
	}
	return fallback
}

// intersect returns the elements of a that also appear in b, case-insensitive,
// preserving a's order and dropping duplicates. Order of arguments affects
// only the ordering of the result, never its size.
func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	inB := make(map[string]bool, len(b))
	for _, v := range b {
		inB[strings.ToLower(strings.TrimSpace(v))] = true
	}

	var out []string
	seen := make(map[string]bool, len(a))
	for _, v := range a {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		if inB[key] {
			out = append(out, v)
		}
	}
	return out
}
