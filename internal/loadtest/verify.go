package loadtest

import (
	"fmt"
)

// Verify checks a ranking against the check-ins the run saw accepted per
// team: scores match exactly, rows are ordered by score desc then team id,
// and ranks run 1..n.
func Verify(entries []RankingEntry, accepted map[int64]int64) error {
	if err := verifyOrder(entries); err != nil {
		return err
	}
	seen := make(map[int64]bool, len(entries))
	for _, e := range entries {
		if want := accepted[e.TeamID]; e.Score != want {
			return fmt.Errorf("team %d scored %d, want %d", e.TeamID, e.Score, want)
		}
		seen[e.TeamID] = true
	}
	for team, n := range accepted {
		if !seen[team] && n > 0 {
			return fmt.Errorf("team %d with %d check-ins missing from ranking", team, n)
		}
	}
	return nil
}

// VerifyMembership checks every ranked team counts each joined user once,
// however many times the user asked to join.
func VerifyMembership(entries []RankingEntry, joined map[int64]int) error {
	for _, e := range entries {
		if want := joined[e.TeamID]; e.TeamSize != want {
			return fmt.Errorf("team %d has %d members, want %d", e.TeamID, e.TeamSize, want)
		}
	}
	return nil
}

func verifyOrder(entries []RankingEntry) error {
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("entry %d has rank %d", i, e.Rank)
		}
		if i > 0 {
			prev := entries[i-1]
			if prev.Score < e.Score || (prev.Score == e.Score && prev.TeamID > e.TeamID) {
				return fmt.Errorf("entries %d and %d out of order", i-1, i)
			}
		}
	}
	return nil
}
