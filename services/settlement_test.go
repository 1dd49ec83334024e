package services

import (
	"context"
	"testing"
	"time"

	"argufight-arena/models"
)

func TestSettleVerdictAppliesRatingsOnce(t *testing.T) {
	env := newTestEnv(t)
	alice := env.newUser(t, "alice", 0)
	bob := env.newUser(t, "bob", 0)
	m := env.startMatch(t, alice, bob, 1)
	env.playOut(t, m.ID)

	settled, err := env.settlement.SettleVerdict(env.ctx, m.ID, models.VerdictChallengerWins, Scores{Challenger: ptr(82), Opponent: ptr(64)})
	if err != nil {
		t.Fatalf("SettleVerdict: %v", err)
	}
	if settled.Status != models.MatchVerdictReady || !settled.VerdictReached || settled.WinnerID == nil || *settled.WinnerID != alice.ID {
		t.Errorf("settled match: status %s reached %v winner %v", settled.Status, settled.VerdictReached, settled.WinnerID)
	}
	if settled.ChallengerEloDelta != 16 || settled.OpponentEloDelta != -16 {
		t.Errorf("deltas = %d/%d, want 16/-16", settled.ChallengerEloDelta, settled.OpponentEloDelta)
	}

	_, err = env.settlement.SettleVerdict(env.ctx, m.ID, models.VerdictOpponentWins, Scores{})
	assertKind(t, err, ErrAlreadySettled)
	if !IsBenign(err) {
		t.Error("settling twice should be benign")
	}

	a, b := env.reload(t, alice.ID), env.reload(t, bob.ID)
	if a.EloRating != 1216 || a.Wins != 1 || b.EloRating != 1184 || b.Losses != 1 {
		t.Errorf("after settlement: alice %d/%dW, bob %d/%dL", a.EloRating, a.Wins, b.EloRating, b.Losses)
	}
	var history int64
	env.db.Model(&models.EloHistory{}).Where("debate_match_id = ?", m.ID).Count(&history)
	if history != 2 {
		t.Errorf("elo history rows = %d, want 2", history)
	}
}

func TestSettleVerdictRequiresCompletedMatch(t *testing.T) {
	env := newTestEnv(t)
	alice := env.newUser(t, "alice", 0)
	bob := env.newUser(t, "bob", 0)
	m := env.startMatch(t, alice, bob, 2)

	_, err := env.settlement.SettleVerdict(env.ctx, m.ID, models.VerdictTie, Scores{})
	assertKind(t, err, ErrNotCompleted)

	_, err = env.settlement.SettleVerdict(env.ctx, m.ID, models.Verdict("BOTH_WIN"), Scores{})
	assertKind(t, err, ErrInvalidInput)
}

func TestChallengerWinTransfersBelt(t *testing.T) {
	env := newTestEnv(t)
	holder := env.newUser(t, "holder", 0)
	challenger := env.newUser(t, "challenger", 150)
	belt := env.newBelt(t, holder)
	ch := env.challenge(t, belt, challenger)
	resp, err := env.belts.RespondToChallenge(env.ctx, ch.ID, holder.ID, true)
	if err != nil {
		t.Fatalf("RespondToChallenge: %v", err)
	}
	env.playOut(t, resp.Match.ID)

	if _, err := env.settlement.SettleVerdict(env.ctx, resp.Match.ID, models.VerdictChallengerWins, Scores{}); err != nil {
		t.Fatalf("SettleVerdict: %v", err)
	}

	won, err := env.belts.GetBelt(env.ctx, belt.ID)
	if err != nil {
		t.Fatalf("GetBelt: %v", err)
	}
	if won.Status != models.BeltActive || won.CurrentHolderID == nil || *won.CurrentHolderID != challenger.ID || won.StakedInMatchID != nil {
		t.Errorf("belt after loss: %s holder %v staked %v", won.Status, won.CurrentHolderID, won.StakedInMatchID)
	}
	if got := env.reload(t, holder.ID).BeltsHeld; got != 0 {
		t.Errorf("old holder belts held = %d", got)
	}
	if got := env.reload(t, challenger.ID).BeltsHeld; got != 1 {
		t.Errorf("new holder belts held = %d", got)
	}

	// 150 - 100 entry + 80 reward; the holder gets the 10% consolation, the platform the rest.
	if got := env.balance(t, challenger.ID); got != 130 {
		t.Errorf("challenger balance = %d, want 130", got)
	}
	if got := env.balance(t, holder.ID); got != 10 {
		t.Errorf("holder balance = %d, want 10", got)
	}
	if got := env.balance(t, testPlatformID); got != 10 {
		t.Errorf("platform balance = %d, want 10", got)
	}

	history, err := env.belts.BeltHistory(env.ctx, belt.ID)
	if err != nil {
		t.Fatalf("BeltHistory: %v", err)
	}
	if len(history) != 1 || history[0].Reason != models.BeltReasonChallengeWin {
		t.Errorf("history = %+v", history)
	}

	found := false
	for _, typ := range env.events.Types() {
		if typ == EventBeltTransferred {
			found = true
		}
	}
	if !found {
		t.Errorf("no %s event in %v", EventBeltTransferred, env.events.Types())
	}
	env.assertReconciled(t, holder.ID, challenger.ID, testPlatformID)
}

func TestBannedChallengerWinVacatesBelt(t *testing.T) {
	env := newTestEnv(t)
	holder := env.newUser(t, "holder", 0)
	challenger := env.newUser(t, "challenger", 100)
	belt := env.newBelt(t, holder)
	ch := env.challenge(t, belt, challenger)
	resp, err := env.belts.RespondToChallenge(env.ctx, ch.ID, holder.ID, true)
	if err != nil {
		t.Fatalf("RespondToChallenge: %v", err)
	}
	env.playOut(t, resp.Match.ID)
	if err := env.db.Model(&models.User{}).Where("id = ?", challenger.ID).Update("is_banned", true).Error; err != nil {
		t.Fatalf("ban: %v", err)
	}

	if _, err := env.settlement.SettleVerdict(env.ctx, resp.Match.ID, models.VerdictChallengerWins, Scores{}); err != nil {
		t.Fatalf("SettleVerdict: %v", err)
	}

	vacant, err := env.belts.GetBelt(env.ctx, belt.ID)
	if err != nil {
		t.Fatalf("GetBelt: %v", err)
	}
	if vacant.Status != models.BeltVacant || vacant.CurrentHolderID != nil || vacant.StakedInMatchID != nil {
		t.Errorf("belt = %s holder %v staked %v, want VACANT and unheld", vacant.Status, vacant.CurrentHolderID, vacant.StakedInMatchID)
	}
	if got := env.reload(t, holder.ID).BeltsHeld; got != 0 {
		t.Errorf("old holder belts held = %d", got)
	}

	// The banned winner's 80 goes to the platform with its own 10.
	if got := env.balance(t, challenger.ID); got != 0 {
		t.Errorf("banned challenger balance = %d, want 0", got)
	}
	if got := env.balance(t, holder.ID); got != 10 {
		t.Errorf("holder balance = %d, want 10", got)
	}
	if got := env.balance(t, testPlatformID); got != 90 {
		t.Errorf("platform balance = %d, want 90", got)
	}
	env.assertReconciled(t, challenger.ID, holder.ID, testPlatformID)
}

func TestSuccessfulDefenseKeepsBelt(t *testing.T) {
	env := newTestEnv(t)
	holder := env.newUser(t, "holder", 0)
	challenger := env.newUser(t, "challenger", 100)
	belt := env.newBelt(t, holder)
	ch := env.challenge(t, belt, challenger)
	resp, err := env.belts.RespondToChallenge(env.ctx, ch.ID, holder.ID, true)
	if err != nil {
		t.Fatalf("RespondToChallenge: %v", err)
	}
	env.playOut(t, resp.Match.ID)

	if _, err := env.settlement.SettleVerdict(env.ctx, resp.Match.ID, models.VerdictOpponentWins, Scores{}); err != nil {
		t.Fatalf("SettleVerdict: %v", err)
	}

	kept, err := env.belts.GetBelt(env.ctx, belt.ID)
	if err != nil {
		t.Fatalf("GetBelt: %v", err)
	}
	if *kept.CurrentHolderID != holder.ID || kept.Status != models.BeltActive || kept.SuccessfulDefenses != 1 || kept.TimesDefended != 1 {
		t.Errorf("belt after defense: holder %s status %s defenses %d/%d",
			*kept.CurrentHolderID, kept.Status, kept.SuccessfulDefenses, kept.TimesDefended)
	}
	if got := env.balance(t, holder.ID); got != 80 {
		t.Errorf("holder balance = %d, want 80", got)
	}
	if got := env.balance(t, challenger.ID); got != 10 {
		t.Errorf("challenger balance = %d, want 10", got)
	}
}

func TestTiedBeltChallengeRefundsChallenger(t *testing.T) {
	env := newTestEnv(t)
	holder := env.newUser(t, "holder", 0)
	challenger := env.newUser(t, "challenger", 100)
	belt := env.newBelt(t, holder)
	ch := env.challenge(t, belt, challenger)
	resp, err := env.belts.RespondToChallenge(env.ctx, ch.ID, holder.ID, true)
	if err != nil {
		t.Fatalf("RespondToChallenge: %v", err)
	}
	env.playOut(t, resp.Match.ID)

	if _, err := env.settlement.SettleVerdict(env.ctx, resp.Match.ID, models.VerdictTie, Scores{}); err != nil {
		t.Fatalf("SettleVerdict: %v", err)
	}
	if got := env.balance(t, challenger.ID); got != 100 {
		t.Errorf("challenger balance = %d, want 100", got)
	}
	kept, _ := env.belts.GetBelt(env.ctx, belt.ID)
	if kept.TimesDefended != 1 || kept.SuccessfulDefenses != 0 {
		t.Errorf("tie defenses = %d/%d, want 1/0", kept.TimesDefended, kept.SuccessfulDefenses)
	}
}

func TestForfeitOverdueMatches(t *testing.T) {
	env := newTestEnv(t)
	alice := env.newUser(t, "alice", 0)
	bob := env.newUser(t, "bob", 0)
	carol := env.newUser(t, "carol", 0)
	dave := env.newUser(t, "dave", 0)

	oneSided := env.startMatch(t, alice, bob, 3)
	if _, err := env.debates.SubmitStatement(env.ctx, oneSided.ID, alice.ID, 1, "only me"); err != nil {
		t.Fatalf("SubmitStatement: %v", err)
	}
	silent := env.startMatch(t, carol, dave, 3)

	if ok, err := env.settlement.ForfeitOverdue(env.ctx, oneSided.ID); err != nil || ok {
		t.Fatalf("match within deadline was forfeited: %v %v", ok, err)
	}

	env.clock.Advance(env.economy.Debate.DefaultRoundDuration + time.Minute)
	n, err := env.settlement.ForfeitAllOverdue(env.ctx)
	if err != nil || n != 2 {
		t.Fatalf("ForfeitAllOverdue: n=%d err=%v", n, err)
	}

	m := env.match(t, oneSided.ID)
	if m.Verdict != models.VerdictChallengerWins || m.ForfeitedBy == nil || *m.ForfeitedBy != bob.ID {
		t.Errorf("one-sided forfeit: verdict %s forfeited by %v", m.Verdict, m.ForfeitedBy)
	}
	if m.Status != models.MatchVerdictReady {
		t.Errorf("status = %s, want VERDICT_READY", m.Status)
	}

	s := env.match(t, silent.ID)
	if s.Verdict != models.VerdictTie || s.ForfeitedBy != nil {
		t.Errorf("silent forfeit: verdict %s forfeited by %v", s.Verdict, s.ForfeitedBy)
	}

	if n, _ := env.settlement.ForfeitAllOverdue(env.ctx); n != 0 {
		t.Errorf("second sweep forfeited %d matches", n)
	}
}

func TestAppealOverturnsUnownedMatch(t *testing.T) {
	env := newTestEnv(t)
	alice := env.newUser(t, "alice", 0)
	bob := env.newUser(t, "bob", 0)
	m := env.startMatch(t, alice, bob, 1)
	env.playOut(t, m.ID)
	if _, err := env.settlement.SettleVerdict(env.ctx, m.ID, models.VerdictChallengerWins, Scores{}); err != nil {
		t.Fatalf("SettleVerdict: %v", err)
	}

	appealed, err := env.debates.RaiseAppeal(env.ctx, m.ID, bob.ID, "the judge ignored my rebuttal")
	if err != nil {
		t.Fatalf("RaiseAppeal: %v", err)
	}
	if appealed.Status != models.MatchAppealed || appealed.AppealStatus != models.AppealPending {
		t.Fatalf("appealed match: %s/%s", appealed.Status, appealed.AppealStatus)
	}
	_, err = env.debates.RaiseAppeal(env.ctx, m.ID, alice.ID, "me too")
	assertKind(t, err, ErrAppealNotAllowed)

	resolved, err := env.settlement.ResolveAppeal(env.ctx, m.ID, AppealDecision{Upheld: true, Verdict: models.VerdictOpponentWins})
	if err != nil {
		t.Fatalf("ResolveAppeal: %v", err)
	}
	if resolved.Status != models.MatchVerdictReady || resolved.AppealStatus != models.AppealResolved || resolved.Verdict != models.VerdictOpponentWins {
		t.Errorf("resolved: %s/%s/%s", resolved.Status, resolved.AppealStatus, resolved.Verdict)
	}

	a, b := env.reload(t, alice.ID), env.reload(t, bob.ID)
	if a.EloRating != 1184 || a.Wins != 0 || a.Losses != 1 {
		t.Errorf("alice after overturn: %d %dW %dL", a.EloRating, a.Wins, a.Losses)
	}
	if b.EloRating != 1216 || b.Wins != 1 || b.Losses != 0 {
		t.Errorf("bob after overturn: %d %dW %dL", b.EloRating, b.Wins, b.Losses)
	}

	_, err = env.settlement.ResolveAppeal(env.ctx, m.ID, AppealDecision{})
	assertKind(t, err, ErrInvalidTransition)
}

func TestBeltMatchAppealCannotOverturn(t *testing.T) {
	env := newTestEnv(t)
	holder := env.newUser(t, "holder", 0)
	challenger := env.newUser(t, "challenger", 100)
	belt := env.newBelt(t, holder)
	ch := env.challenge(t, belt, challenger)
	resp, err := env.belts.RespondToChallenge(env.ctx, ch.ID, holder.ID, true)
	if err != nil {
		t.Fatalf("RespondToChallenge: %v", err)
	}
	env.playOut(t, resp.Match.ID)
	if _, err := env.settlement.SettleVerdict(env.ctx, resp.Match.ID, models.VerdictOpponentWins, Scores{}); err != nil {
		t.Fatalf("SettleVerdict: %v", err)
	}
	if _, err := env.debates.RaiseAppeal(env.ctx, resp.Match.ID, challenger.ID, "unfair"); err != nil {
		t.Fatalf("RaiseAppeal: %v", err)
	}

	_, err = env.settlement.ResolveAppeal(env.ctx, resp.Match.ID, AppealDecision{Upheld: true, Verdict: models.VerdictChallengerWins})
	assertKind(t, err, ErrAppealNotAllowed)

	denied, err := env.settlement.ResolveAppeal(env.ctx, resp.Match.ID, AppealDecision{Upheld: false})
	if err != nil {
		t.Fatalf("ResolveAppeal: %v", err)
	}
	if denied.AppealStatus != models.AppealDenied || denied.Verdict != models.VerdictOpponentWins {
		t.Errorf("denied appeal: %s verdict %s", denied.AppealStatus, denied.Verdict)
	}
}

type cappedQuota struct{ left int }

func (q *cappedQuota) Remaining(_ context.Context, _ string) (int, error) { return q.left, nil }
func (q *cappedQuota) Consume(_ context.Context, _ string) error {
	q.left--
	return nil
}

func TestAppealQuotaIsConsumedOnResolution(t *testing.T) {
	env := newTestEnv(t)
	quota := &cappedQuota{left: 1}
	env.debates.Quota = quota
	env.settlement.Quota = quota

	alice := env.newUser(t, "alice", 0)
	bob := env.newUser(t, "bob", 0)
	first := env.startMatch(t, alice, bob, 1)
	env.playOut(t, first.ID)
	if _, err := env.settlement.SettleVerdict(env.ctx, first.ID, models.VerdictChallengerWins, Scores{}); err != nil {
		t.Fatalf("SettleVerdict: %v", err)
	}
	if _, err := env.debates.RaiseAppeal(env.ctx, first.ID, bob.ID, "again"); err != nil {
		t.Fatalf("RaiseAppeal: %v", err)
	}
	if _, err := env.settlement.ResolveAppeal(env.ctx, first.ID, AppealDecision{}); err != nil {
		t.Fatalf("ResolveAppeal: %v", err)
	}
	if quota.left != 0 {
		t.Fatalf("quota left = %d, want 0", quota.left)
	}

	second := env.startMatch(t, alice, bob, 1)
	env.playOut(t, second.ID)
	if _, err := env.settlement.SettleVerdict(env.ctx, second.ID, models.VerdictChallengerWins, Scores{}); err != nil {
		t.Fatalf("SettleVerdict: %v", err)
	}
	_, err := env.debates.RaiseAppeal(env.ctx, second.ID, bob.ID, "out of appeals")
	assertKind(t, err, ErrAppealNotAllowed)
}

func TestPendingAppealsHoldTheAllotment(t *testing.T) {
	env := newTestEnv(t)
	quota := &cappedQuota{left: 1}
	env.debates.Quota = quota
	env.settlement.Quota = quota

	alice := env.newUser(t, "alice", 0)
	bob := env.newUser(t, "bob", 0)
	matches := make([]*models.DebateMatch, 3)
	for i := range matches {
		matches[i] = env.startMatch(t, alice, bob, 1)
		env.playOut(t, matches[i].ID)
		if _, err := env.settlement.SettleVerdict(env.ctx, matches[i].ID, models.VerdictChallengerWins, Scores{}); err != nil {
			t.Fatalf("SettleVerdict: %v", err)
		}
	}

	if _, err := env.debates.RaiseAppeal(env.ctx, matches[0].ID, bob.ID, "first"); err != nil {
		t.Fatalf("RaiseAppeal: %v", err)
	}
	for _, m := range matches[1:] {
		_, err := env.debates.RaiseAppeal(env.ctx, m.ID, bob.ID, "one more")
		assertKind(t, err, ErrAppealNotAllowed)
		if got := env.match(t, m.ID); got.AppealStatus != models.AppealNone {
			t.Errorf("refused appeal left match %s as %s", m.ID, got.AppealStatus)
		}
	}

	if _, err := env.settlement.ResolveAppeal(env.ctx, matches[0].ID, AppealDecision{}); err != nil {
		t.Fatalf("ResolveAppeal: %v", err)
	}
	if quota.left != 0 {
		t.Errorf("quota left = %d, want 0", quota.left)
	}
}
