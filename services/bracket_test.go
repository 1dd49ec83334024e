package services

import (
	"math/rand"
	"reflect"
	"testing"

	"argufight-arena/models"
)

func TestBracketRounds(t *testing.T) {
	tests := []struct{ n, want int }{
		{1, 1}, {2, 1}, {3, 2}, {4, 2}, {5, 3}, {8, 3}, {9, 4}, {64, 6},
	}
	for _, tt := range tests {
		if got := bracketRounds(tt.n); got != tt.want {
			t.Errorf("bracketRounds(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestSeedOrderKeepsTopSeedsApart(t *testing.T) {
	if got := seedOrder(8); !reflect.DeepEqual(got, []int{1, 8, 4, 5, 2, 7, 3, 6}) {
		t.Errorf("seedOrder(8) = %v", got)
	}
	if got := seedOrder(2); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("seedOrder(2) = %v", got)
	}
}

func seeded(n int) []*models.TournamentParticipant {
	out := make([]*models.TournamentParticipant, n)
	for i := range out {
		out[i] = &models.TournamentParticipant{ID: string(rune('a' + i)), Seed: i + 1}
	}
	return out
}

func TestPairSeededGivesByesToTopSeeds(t *testing.T) {
	ps := seeded(5)
	slots := pairSeeded(ps)
	if len(slots) != 4 {
		t.Fatalf("got %d slots, want 4", len(slots))
	}

	byes := map[int]bool{}
	for _, s := range slots {
		if s.isBye() {
			byes[s.advancing().Seed] = true
		}
	}
	if len(byes) != 3 || !byes[1] || !byes[2] || !byes[3] {
		t.Errorf("byes went to %v, want seeds 1-3", byes)
	}
	if s := slots[1]; s.first.Seed != 4 || s.second.Seed != 5 {
		t.Errorf("the only debate should be 4 v 5, got %+v", s)
	}
}

func TestEloReseedUsesCurrentRatings(t *testing.T) {
	ps := seeded(3)
	for i, p := range ps {
		p.UserID = "user-" + p.ID
		p.EloAtRegistration = 1300 - i*100
	}
	ratings := map[string]int{"user-a": 1150, "user-b": 1320}

	ranked := rankParticipants(ps, models.ReseedEloBased, ratings, nil)
	if ranked[0].Seed != 2 || ranked[1].Seed != 1 || ranked[2].Seed != 3 {
		t.Errorf("reseed order = %d,%d,%d, want 2,1,3", ranked[0].Seed, ranked[1].Seed, ranked[2].Seed)
	}
}

func TestPairByPositionCarriesOddWinner(t *testing.T) {
	slots := pairByPosition(seeded(3))
	if len(slots) != 2 || slots[0].isBye() || !slots[1].isBye() {
		t.Errorf("unexpected slots %+v", slots)
	}
}

func TestRankParticipants(t *testing.T) {
	ps := seeded(3)
	ps[0].EloAtRegistration, ps[1].EloAtRegistration, ps[2].EloAtRegistration = 1100, 1300, 1300
	ps[0].Wins = 2

	byElo := rankParticipants(ps, models.ReseedEloBased, nil, nil)
	if byElo[0].Seed != 2 || byElo[1].Seed != 3 || byElo[2].Seed != 1 {
		t.Errorf("ELO order = %d,%d,%d", byElo[0].Seed, byElo[1].Seed, byElo[2].Seed)
	}
	byWins := rankParticipants(ps, models.ReseedTournamentWins, nil, nil)
	if byWins[0].Seed != 1 {
		t.Errorf("most wins should lead, got seed %d", byWins[0].Seed)
	}

	shuffled := rankParticipants(ps, models.ReseedRandom, nil, rand.New(rand.NewSource(7)))
	if len(shuffled) != 3 || ps[0].Seed != 1 {
		t.Error("random reseed must not reorder the input slice")
	}
}

func TestSplitPrizePool(t *testing.T) {
	tiers := [][]string{{"champ"}, {"runner"}, {"semi1", "semi2"}}
	got := splitPrizePool(400, []int64{60, 30, 10}, tiers)
	want := []prizePayout{{"champ", 240}, {"runner", 120}, {"semi1", 20}, {"semi2", 20}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitPrizePool = %+v, want %+v", got, want)
	}

	// Rounding leftovers and unfilled tiers fall to the winner.
	got = splitPrizePool(101, []int64{60, 30, 10}, [][]string{{"champ"}, {"runner"}})
	want = []prizePayout{{"champ", 71}, {"runner", 30}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitPrizePool with leftovers = %+v, want %+v", got, want)
	}

	if got := splitPrizePool(0, []int64{100}, tiers); got != nil {
		t.Errorf("empty pool paid %+v", got)
	}
}

func TestPlacementTier(t *testing.T) {
	if got := placementTier(3, 3); got != 1 {
		t.Errorf("final loser tier = %d", got)
	}
	if got := placementTier(3, 1); got != 3 {
		t.Errorf("first round loser tier = %d", got)
	}
	if got := placementTier(2, 5); got != 1 {
		t.Errorf("out of range tier = %d", got)
	}
}
