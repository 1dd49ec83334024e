package services

import (
	"testing"

	"argufight-arena/models"
)

func TestProfilesAndLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	profiles := NewProfileService(env.db)
	alice := env.newUser(t, "Alice", 0)
	bob := env.newUser(t, "bob", 0)
	m := env.startMatch(t, alice, bob, 1)
	env.playOut(t, m.ID)
	if _, err := env.settlement.SettleVerdict(env.ctx, m.ID, models.VerdictChallengerWins, Scores{}); err != nil {
		t.Fatalf("SettleVerdict: %v", err)
	}

	p, err := profiles.GetProfile(env.ctx, alice.ID, 0)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.User.EloRating != 1216 || len(p.EloHistory) != 1 || p.EloHistory[0].EloChange != 16 {
		t.Errorf("profile = %+v", p)
	}

	board, err := profiles.Leaderboard(env.ctx, 10)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(board) == 0 || board[0].ID != alice.ID {
		t.Errorf("leaderboard should open with alice, got %+v", board)
	}

	if _, err := profiles.SetBanned(env.ctx, alice.ID, true); err != nil {
		t.Fatalf("SetBanned: %v", err)
	}
	board, _ = profiles.Leaderboard(env.ctx, 10)
	for _, u := range board {
		if u.ID == alice.ID {
			t.Error("banned users must not be ranked")
		}
	}
	_, err = profiles.SetBanned(env.ctx, "missing", true)
	assertKind(t, err, ErrNotFound)

	found, err := profiles.SearchUsers(env.ctx, "ALI", 10)
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if len(found) != 1 || found[0].ID != alice.ID {
		t.Errorf("search = %+v", found)
	}
}
