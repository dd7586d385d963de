// Package pairing partitions a drop's registrants into disjoint pairs using
// the compatibility scorer. It is pure planning logic; persistence and the
// idempotency claim on the drop live in the store.
package pairing

import (
	"strings"

	"drop-match-api/internal/models"
	"drop-match-api/internal/scoring"
)

// Pair is one planned match between two registrant profiles.
type Pair struct {
	A       models.Profile
	B       models.Profile
	Score   scoring.Result
	Cuisine string
}

// Plan is the output of one pairing pass over a registrant list.
type Plan struct {
	Pairs     []Pair
	Unmatched []string // user IDs left over, one per odd-sized location group
}

// BuildPlan groups profiles by location and greedily pairs within each group:
// take the first unpaired user, score against every other unpaired user in
// the group, pair with the maximum (ties broken by input order), repeat. An
// odd group leaves exactly one user unmatched; leftovers are not retried
// against other groups.
func BuildPlan(profiles []models.Profile, defaultCuisine string) Plan {
	var plan Plan

	groups, order := groupByLocation(profiles)
	for _, loc := range order {
		pool := groups[loc]

		for len(pool) >= 2 {
			anchor := pool[0]

			best := 1
			bestScore := scoring.Score(anchor, pool[1])
			for i := 2; i < len(pool); i++ {
				s := scoring.Score(anchor, pool[i])
				if s.Score > bestScore.Score {
					best = i
					bestScore = s
				}
			}

			partner := pool[best]
			plan.Pairs = append(plan.Pairs, Pair{
				A:       anchor,
				B:       partner,
				Score:   bestScore,
				Cuisine: scoring.RecommendCuisine(anchor, partner, bestScore.CommonCuisines, defaultCuisine),
			})

			pool = append(pool[1:best], pool[best+1:]...)
		}

		if len(pool) == 1 {
			plan.Unmatched = append(plan.Unmatched, pool[0].UserID)
		}
	}

	return plan
}

// groupByLocation buckets profiles by their region key, preserving input
// order both within groups and across group iteration.
func groupByLocation(profiles []models.Profile) (map[string][]models.Profile, []string) {
	groups := make(map[string][]models.Profile)
	var order []string

	for _, p := range profiles {
		key := strings.ToLower(strings.TrimSpace(p.Location))
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p)
	}

	return groups, order
}
