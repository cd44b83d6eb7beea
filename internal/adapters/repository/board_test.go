package repository

import (
	"math/rand"
	"sort"
	"testing"
)

func TestBoard_Ordering(t *testing.T) {
	b := newBoard()
	for id := int64(1); id <= 5; id++ {
		b.add(id, 0)
	}

	// Team 3 gets two points, team 5 one.
	b.increment(3, 1)
	b.increment(5, 1)
	b.increment(3, 1)

	got := b.ordered()
	want := []int64{3, 5, 1, 2, 4}
	if len(got) != len(want) {
		t.Fatalf("expected %d teams, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected team %d, got %d", i+1, want[i], got[i])
		}
	}
}

func TestBoard_AddIsIdempotent(t *testing.T) {
	b := newBoard()
	b.add(1, 0)
	b.increment(1, 4)
	b.add(1, 0)

	if b.len() != 1 {
		t.Fatalf("expected 1 team, got %d", b.len())
	}
	if b.scores[1] != 4 {
		t.Errorf("expected score 4 to survive re-add, got %d", b.scores[1])
	}
}

func TestBoard_IncrementUnknownTeam(t *testing.T) {
	b := newBoard()
	b.increment(7, 1)
	if b.len() != 0 {
		t.Errorf("expected empty board, got %d teams", b.len())
	}
}

func TestBoard_MatchesSort(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	b := newBoard()
	scores := make(map[int64]int64)
	for id := int64(1); id <= 200; id++ {
		b.add(id, 0)
		scores[id] = 0
	}
	for i := 0; i < 5000; i++ {
		id := int64(r.Intn(200) + 1)
		b.increment(id, 1)
		scores[id]++
	}

	want := make([]int64, 0, len(scores))
	for id := range scores {
		want = append(want, id)
	}
	sort.Slice(want, func(i, j int) bool {
		return less(scores[want[i]], want[i], scores[want[j]], want[j])
	})

	got := b.ordered()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected team %d, got %d", i+1, want[i], got[i])
		}
	}
}
