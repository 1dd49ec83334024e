package services

import (
	"testing"
	"time"
)

func TestSweeperTick(t *testing.T) {
	env := newTestEnv(t)
	holder := env.newUser(t, "holder", 0)
	challenger := env.newUser(t, "challenger", 100)
	alice := env.newUser(t, "alice", 0)
	bob := env.newUser(t, "bob", 0)

	env.challenge(t, env.newBelt(t, holder), challenger)
	env.startMatch(t, alice, bob, 2)
	startsAt := env.clock.Now().Add(time.Hour)
	env.newTournament(t, alice, CreateTournamentParams{Name: "Empty", StartsAt: &startsAt})

	sweeper := &Sweeper{Belts: env.belts, Settlement: env.settlement, Tournaments: env.tournaments}
	if res := sweeper.Tick(env.ctx); res != (TickResult{}) {
		t.Fatalf("nothing is due yet, got %+v", res)
	}

	env.clock.Advance(73 * time.Hour)
	res := sweeper.Tick(env.ctx)
	want := TickResult{ChallengesExpired: 1, MatchesForfeited: 1}
	if res != want {
		t.Errorf("Tick() = %+v, want %+v", res, want)
	}
	if again := sweeper.Tick(env.ctx); again != (TickResult{}) {
		t.Errorf("second tick changed %+v", again)
	}
}
