package internal

import (
	"sort"
	"time"
)

// Candidate is the part of a node the selection needs to know about.
type Candidate struct {
	ID         string
	LaunchedAt time.Time
}

// NbNodesToCreate and NbNodesToStop split the gap between observed and desired
// counts into a create or a stop request. At most one of them is positive.
func NbNodesToCreate(desired, observed int) int {
	return max(desired-observed, 0)
}

func NbNodesToStop(desired, observed int) int {
	return max(observed-desired, 0)
}

// OldestFirst returns the ids of the count oldest candidates, oldest first.
// Candidates launched at the same instant are ordered by id.
func OldestFirst(candidates []Candidate, count int) []string {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].LaunchedAt.Equal(sorted[j].LaunchedAt) {
			return sorted[i].LaunchedAt.Before(sorted[j].LaunchedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	count = min(max(count, 0), len(sorted))
	ids := make([]string, 0, count)
	for _, candidate := range sorted[:count] {
		ids = append(ids, candidate.ID)
	}
	return ids
}
