package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"argufight-arena/models"
	"argufight-arena/rating"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Scores are the judge's per-side scores. Either may be omitted.
type Scores struct {
	Challenger *int `json:"challenger_score"`
	Opponent   *int `json:"opponent_score"`
}

// SettlementService applies judged outcomes: ratings, counters and whatever the
// match's owner (belt challenge or tournament) needs to happen next.
type SettlementService struct {
	DB          *gorm.DB
	Elo         *rating.Elo
	Belts       *BeltService
	Tournaments *TournamentService
	Quota       AppealQuota
	Events      EventPublisher
	Clock       Clock
}

func NewSettlementService(db *gorm.DB, elo *rating.Elo, belts *BeltService, tournaments *TournamentService, events EventPublisher) *SettlementService {
	return &SettlementService{
		DB:          db,
		Elo:         elo,
		Belts:       belts,
		Tournaments: tournaments,
		Quota:       UnlimitedAppeals{},
		Events:      events,
	}
}

// SettleVerdict applies the oracle's decision to a COMPLETED match exactly once.
func (s *SettlementService) SettleVerdict(ctx context.Context, matchID string, decision models.Verdict, scores Scores) (*models.DebateMatch, error) {
	if !decision.Valid() {
		return nil, newError(KindInvalidInput, "unknown decision %q", decision)
	}

	var (
		match  models.DebateMatch
		events []Event
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate).First(&match, "id = ?", matchID).Error; err != nil {
			return notFound(err, "match", matchID)
		}
		if match.VerdictReached {
			return newError(KindAlreadySettled, "match %s already has a verdict", matchID)
		}
		if match.Status != models.MatchCompleted {
			return newError(KindNotCompleted, "match %s is %s", matchID, match.Status)
		}
		var err error
		events, err = s.settleTx(tx, &match, decision, scores)
		return err
	})
	if err != nil {
		return nil, err
	}

	publishAll(ctx, s.Events, events)
	return &match, nil
}

func (s *SettlementService) settleTx(tx *gorm.DB, match *models.DebateMatch, decision models.Verdict, scores Scores) ([]Event, error) {
	next, ok := match.Status.Next(models.MatchEventVerdict)
	if !ok {
		return nil, invalidTransition("match", match.Status, models.MatchEventVerdict)
	}
	if match.OpponentID == nil {
		return nil, newError(KindNotCompleted, "match %s never had an opponent", match.ID)
	}

	d1, d2, err := s.rateTx(tx, match, decision)
	if err != nil {
		return nil, err
	}

	now := s.Clock.now()
	winnerID := winnerOf(match, decision)
	if err := tx.Model(match).Updates(map[string]interface{}{
		"status":               next,
		"verdict":              decision,
		"winner_id":            winnerID,
		"challenger_score":     scores.Challenger,
		"opponent_score":       scores.Opponent,
		"verdict_reached":      true,
		"verdict_date":         now,
		"challenger_elo_delta": d1,
		"opponent_elo_delta":   d2,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to record verdict: %w", err)
	}
	match.Status = next
	match.Verdict = decision
	match.WinnerID = winnerID
	match.ChallengerScore = scores.Challenger
	match.OpponentScore = scores.Opponent
	match.VerdictReached = true
	match.VerdictDate = &now
	match.ChallengerEloDelta = d1
	match.OpponentEloDelta = d2

	events := []Event{newEvent(EventMatchSettled, match.ID, map[string]interface{}{
		"verdict":              decision,
		"winner_id":            deref(winnerID),
		"challenger_elo_delta": d1,
		"opponent_elo_delta":   d2,
	})}

	var owned []Event
	switch match.OwnerKind {
	case models.OwnerBeltChallenge:
		owned, err = s.Belts.settleTx(tx, match)
	case models.OwnerTournamentMatch:
		owned, err = s.Tournaments.recordResultTx(tx, match)
	}
	if err != nil {
		return nil, err
	}
	return append(events, owned...), nil
}

func winnerOf(match *models.DebateMatch, decision models.Verdict) *string {
	switch decision {
	case models.VerdictChallengerWins:
		return &match.ChallengerID
	case models.VerdictOpponentWins:
		return match.OpponentID
	}
	return nil
}

func outcomeOf(decision models.Verdict) float64 {
	switch decision {
	case models.VerdictChallengerWins:
		return rating.Win
	case models.VerdictOpponentWins:
		return rating.Loss
	}
	return rating.Draw
}

// lockPair locks the two participants in id order.
func lockPair(tx *gorm.DB, match *models.DebateMatch) (*models.User, *models.User, error) {
	var users []models.User
	if err := tx.Clauses(forUpdate).
		Where("id IN ?", []string{match.ChallengerID, *match.OpponentID}).
		Order("id ASC").Find(&users).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to lock participants: %w", err)
	}
	var challenger, opponent *models.User
	for i := range users {
		switch users[i].ID {
		case match.ChallengerID:
			challenger = &users[i]
		case *match.OpponentID:
			opponent = &users[i]
		}
	}
	if challenger == nil || opponent == nil {
		return nil, nil, newError(KindNotFound, "participants of match %s not found", match.ID)
	}
	return challenger, opponent, nil
}

// rateTx applies rating deltas and win/loss/tie counters for decision.
func (s *SettlementService) rateTx(tx *gorm.DB, match *models.DebateMatch, decision models.Verdict) (int, int, error) {
	challenger, opponent, err := lockPair(tx, match)
	if err != nil {
		return 0, 0, err
	}
	d1, d2 := s.Elo.Deltas(challenger.EloRating, opponent.EloRating, outcomeOf(decision))

	if err := s.applyTx(tx, match.ID, challenger, d1, counterFor(decision, true), 1); err != nil {
		return 0, 0, err
	}
	if err := s.applyTx(tx, match.ID, opponent, d2, counterFor(decision, false), 1); err != nil {
		return 0, 0, err
	}
	return d1, d2, nil
}

// unrateTx reverses a previously applied verdict.
func (s *SettlementService) unrateTx(tx *gorm.DB, match *models.DebateMatch) error {
	challenger, opponent, err := lockPair(tx, match)
	if err != nil {
		return err
	}
	if err := s.applyTx(tx, match.ID, challenger, -match.ChallengerEloDelta, counterFor(match.Verdict, true), -1); err != nil {
		return err
	}
	return s.applyTx(tx, match.ID, opponent, -match.OpponentEloDelta, counterFor(match.Verdict, false), -1)
}

func counterFor(decision models.Verdict, challenger bool) string {
	switch decision {
	case models.VerdictTie:
		return "ties"
	case models.VerdictChallengerWins:
		if challenger {
			return "wins"
		}
		return "losses"
	default:
		if challenger {
			return "losses"
		}
		return "wins"
	}
}

func (s *SettlementService) applyTx(tx *gorm.DB, matchID string, user *models.User, delta int, counter string, step int) error {
	after := user.EloRating + delta
	if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"elo_rating": after,
		counter:      gorm.Expr(counter+" + ?", step),
	}).Error; err != nil {
		return fmt.Errorf("failed to update rating for %s: %w", user.ID, err)
	}
	if err := tx.Create(&models.EloHistory{
		ID:            uuid.NewString(),
		UserID:        user.ID,
		DebateMatchID: matchID,
		EloBefore:     user.EloRating,
		EloAfter:      after,
		EloChange:     delta,
	}).Error; err != nil {
		return fmt.Errorf("failed to record rating history: %w", err)
	}
	user.EloRating = after
	return nil
}

// ForfeitOverdue completes an ACTIVE match whose round deadline has passed and
// settles it against whoever failed to submit. Both absent is a tie. Matches
// that are not overdue are left alone.
func (s *SettlementService) ForfeitOverdue(ctx context.Context, matchID string) (bool, error) {
	var events []Event
	forfeited := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var match models.DebateMatch
		if err := tx.Clauses(forUpdate).First(&match, "id = ?", matchID).Error; err != nil {
			return notFound(err, "match", matchID)
		}
		next, ok := match.Status.Next(models.MatchEventForfeit)
		if !ok || match.RoundDeadline == nil || match.OpponentID == nil {
			return nil
		}
		now := s.Clock.now()
		if now.Before(*match.RoundDeadline) {
			return nil
		}

		var authors []string
		if err := tx.Model(&models.Statement{}).
			Where("debate_match_id = ? AND round = ?", match.ID, match.CurrentRound).
			Pluck("author_id", &authors).Error; err != nil {
			return fmt.Errorf("failed to load round statements: %w", err)
		}
		submitted := map[string]bool{}
		for _, a := range authors {
			submitted[a] = true
		}

		decision := models.VerdictTie
		var forfeitedBy *string
		switch {
		case submitted[match.ChallengerID] && !submitted[*match.OpponentID]:
			decision, forfeitedBy = models.VerdictChallengerWins, match.OpponentID
		case !submitted[match.ChallengerID] && submitted[*match.OpponentID]:
			decision, forfeitedBy = models.VerdictOpponentWins, &match.ChallengerID
		}

		if err := tx.Model(&match).Updates(map[string]interface{}{
			"status":         next,
			"round_deadline": nil,
			"ended_at":       now,
			"forfeited_by":   forfeitedBy,
		}).Error; err != nil {
			return fmt.Errorf("failed to forfeit match: %w", err)
		}
		match.Status = next
		match.RoundDeadline = nil
		match.EndedAt = &now
		match.ForfeitedBy = forfeitedBy

		var err error
		events, err = s.settleTx(tx, &match, decision, Scores{})
		if err != nil {
			return err
		}
		forfeited = true
		log.Printf("[SETTLEMENT] Match %s forfeited at round %d: %s", match.ID, match.CurrentRound, decision)
		return nil
	})
	if err != nil {
		return false, err
	}
	publishAll(ctx, s.Events, events)
	return forfeited, nil
}

// ForfeitAllOverdue sweeps every ACTIVE match past its round deadline.
func (s *SettlementService) ForfeitAllOverdue(ctx context.Context) (int, error) {
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.DebateMatch{}).
		Where("status = ? AND round_deadline <= ?", models.MatchActive, s.Clock.now()).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to find overdue matches: %w", err)
	}
	count := 0
	for _, id := range ids {
		ok, err := s.ForfeitOverdue(ctx, id)
		if err != nil {
			log.Printf("[SETTLEMENT] Failed to forfeit %s: %v", id, err)
			continue
		}
		if ok {
			count++
		}
	}
	return count, nil
}

// AppealDecision is the adjudicator's ruling on a pending appeal. Verdict is only
// read when the appeal is upheld and replaces the original decision.
type AppealDecision struct {
	Upheld  bool           `json:"upheld"`
	Verdict models.Verdict `json:"verdict,omitempty"`
}

// ResolveAppeal closes an APPEALED match as RESOLVED or DENIED. An upheld appeal
// with a different verdict re-rates both players; belt and tournament results
// are final and cannot be overturned.
func (s *SettlementService) ResolveAppeal(ctx context.Context, matchID string, d AppealDecision) (*models.DebateMatch, error) {
	var match models.DebateMatch
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate).First(&match, "id = ?", matchID).Error; err != nil {
			return notFound(err, "match", matchID)
		}
		next, ok := match.Status.Next(models.MatchEventResolveAppeal)
		if !ok || match.AppealStatus != models.AppealPending {
			return invalidTransition("match", match.Status, models.MatchEventResolveAppeal)
		}

		appeal := models.AppealDenied
		if d.Upheld {
			appeal = models.AppealResolved
		}
		now := s.Clock.now()
		updates := map[string]interface{}{
			"status":             next,
			"appeal_status":      appeal,
			"appeal_resolved_at": now,
		}

		overturn := d.Upheld && d.Verdict != models.VerdictNone && d.Verdict != match.Verdict
		if overturn {
			if !d.Verdict.Valid() {
				return newError(KindInvalidInput, "unknown verdict %q", d.Verdict)
			}
			if match.OwnerKind != models.OwnerNone {
				return newError(KindAppealNotAllowed, "results of %s matches cannot be overturned", match.OwnerKind)
			}
			if err := s.unrateTx(tx, &match); err != nil {
				return err
			}
			d1, d2, err := s.rateTx(tx, &match, d.Verdict)
			if err != nil {
				return err
			}
			updates["verdict"] = d.Verdict
			updates["winner_id"] = winnerOf(&match, d.Verdict)
			updates["challenger_elo_delta"] = d1
			updates["opponent_elo_delta"] = d2
		}

		if err := tx.Model(&match).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to resolve appeal: %w", err)
		}
		return tx.First(&match, "id = ?", matchID).Error
	})
	if err != nil {
		return nil, err
	}

	if match.AppealedBy != nil && s.Quota != nil {
		if err := s.Quota.Consume(ctx, *match.AppealedBy); err != nil {
			log.Printf("⚠️ [SETTLEMENT] Failed to consume appeal for %s: %v", *match.AppealedBy, err)
		}
	}
	publishAll(ctx, s.Events, []Event{newEvent(EventAppealResolved, match.ID, map[string]interface{}{
		"appeal_status": match.AppealStatus,
		"verdict":       match.Verdict,
	})})
	return &match, nil
}

// EnsurePlatformAccount creates the account that receives platform fees.
func EnsurePlatformAccount(ctx context.Context, db *gorm.DB, id string) error {
	var user models.User
	err := db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load platform account: %w", err)
	}
	if err := db.WithContext(ctx).Create(&models.User{
		ID:        id,
		Username:  "platform",
		EloRating: models.DefaultEloRating,
	}).Error; err != nil {
		return fmt.Errorf("failed to create platform account: %w", err)
	}
	log.Printf("[LEDGER] Created platform account %s", id)
	return nil
}
