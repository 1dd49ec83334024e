// services/debate_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"argufight-arena/config"
	"argufight-arena/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AppealQuota is the subscription collaborator that owns monthly appeal allotments.
type AppealQuota interface {
	Remaining(ctx context.Context, userID string) (int, error)
	Consume(ctx context.Context, userID string) error
}

// UnlimitedAppeals never runs out.
type UnlimitedAppeals struct{}

func (UnlimitedAppeals) Remaining(context.Context, string) (int, error) { return math.MaxInt32, nil }
func (UnlimitedAppeals) Consume(context.Context, string) error          { return nil }

// DebateService runs the debate match state machine. Belt challenges and
// tournaments create their matches through createTx/startTx.
type DebateService struct {
	DB     *gorm.DB
	Config config.DebateConfig
	Events EventPublisher
	Quota  AppealQuota
	Clock  Clock
}

func NewDebateService(db *gorm.DB, cfg config.DebateConfig, events EventPublisher) *DebateService {
	return &DebateService{DB: db, Config: cfg, Events: events, Quota: UnlimitedAppeals{}}
}

type CreateMatchParams struct {
	ChallengerID      string
	InvitedOpponentID *string
	Topic             string
	Category          string
	Position          models.Position
	TotalRounds       int
	RoundDuration     time.Duration
}

type matchOwner struct {
	kind models.OwnerKind
	id   *string
}

var noOwner = matchOwner{kind: models.OwnerNone}

// normalize fills defaults and validates the parameters.
func (s *DebateService) normalize(p *CreateMatchParams) error {
	p.Topic = strings.TrimSpace(p.Topic)
	if p.Topic == "" {
		return newError(KindInvalidInput, "topic is required")
	}
	if p.Position == "" {
		p.Position = models.PositionFor
	}
	if !p.Position.Valid() {
		return newError(KindInvalidInput, "position must be FOR or AGAINST")
	}
	if p.TotalRounds == 0 {
		p.TotalRounds = s.Config.DefaultRounds
	}
	if p.TotalRounds < 1 || p.TotalRounds > s.Config.MaxRounds {
		return newError(KindInvalidInput, "total rounds must be between 1 and %d", s.Config.MaxRounds)
	}
	if p.RoundDuration == 0 {
		p.RoundDuration = s.Config.DefaultRoundDuration
	}
	if p.RoundDuration < time.Minute {
		return newError(KindInvalidInput, "round duration must be at least one minute")
	}
	if p.InvitedOpponentID != nil && *p.InvitedOpponentID == p.ChallengerID {
		return newError(KindSelfChallenge, "cannot invite yourself")
	}
	return nil
}

// Create opens a new match in WAITING.
func (s *DebateService) Create(ctx context.Context, p CreateMatchParams) (*models.DebateMatch, error) {
	if err := s.normalize(&p); err != nil {
		return nil, err
	}

	var match *models.DebateMatch
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := activeUser(tx, p.ChallengerID); err != nil {
			return err
		}
		if p.InvitedOpponentID != nil {
			if _, err := activeUser(tx, *p.InvitedOpponentID); err != nil {
				return err
			}
		}
		var err error
		match, err = s.createTx(tx, p, noOwner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return match, nil
}

func (s *DebateService) createTx(tx *gorm.DB, p CreateMatchParams, owner matchOwner) (*models.DebateMatch, error) {
	match := &models.DebateMatch{
		ID:                   uuid.NewString(),
		Topic:                p.Topic,
		Category:             p.Category,
		ChallengerID:         p.ChallengerID,
		InvitedOpponentID:    p.InvitedOpponentID,
		ChallengerPosition:   p.Position,
		OpponentPosition:     p.Position.Opposite(),
		TotalRounds:          p.TotalRounds,
		CurrentRound:         1,
		RoundDurationSeconds: int64(p.RoundDuration / time.Second),
		Status:               models.MatchWaiting,
		AppealStatus:         models.AppealNone,
		OwnerKind:            owner.kind,
		OwnerID:              owner.id,
	}
	if err := tx.Create(match).Error; err != nil {
		return nil, fmt.Errorf("failed to create debate match: %w", err)
	}
	return match, nil
}

// startTx fills the opponent slot and opens round 1.
func (s *DebateService) startTx(tx *gorm.DB, match *models.DebateMatch, opponentID string) error {
	next, ok := match.Status.Next(models.MatchEventAccept)
	if !ok {
		return invalidTransition("match", match.Status, models.MatchEventAccept)
	}
	now := s.Clock.now()
	deadline := now.Add(time.Duration(match.RoundDurationSeconds) * time.Second)

	res := tx.Model(&models.DebateMatch{}).
		Where("id = ? AND status = ? AND opponent_id IS NULL", match.ID, models.MatchWaiting).
		Updates(map[string]interface{}{
			"opponent_id":    opponentID,
			"status":         next,
			"current_round":  1,
			"round_deadline": deadline,
			"started_at":     now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to start match %s: %w", match.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return newError(KindAlreadyHasOpponent, "match %s was accepted concurrently", match.ID)
	}

	match.OpponentID = &opponentID
	match.Status = next
	match.CurrentRound = 1
	match.RoundDeadline = &deadline
	match.StartedAt = &now
	return nil
}

// Accept lets a user (or the invited opponent) take the open slot.
func (s *DebateService) Accept(ctx context.Context, matchID, userID string) (*models.DebateMatch, error) {
	var match models.DebateMatch
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate).First(&match, "id = ?", matchID).Error; err != nil {
			return notFound(err, "match", matchID)
		}
		if match.OpponentID != nil {
			return newError(KindAlreadyHasOpponent, "match already has an opponent")
		}
		if match.Status != models.MatchWaiting {
			return newError(KindNotWaiting, "match is %s", match.Status)
		}
		if match.ChallengerID == userID {
			return newError(KindForbidden, "challenger cannot accept their own match")
		}
		if match.InvitedOpponentID != nil && *match.InvitedOpponentID != userID {
			return newError(KindForbidden, "match is reserved for another opponent")
		}
		if _, err := activeUser(tx, userID); err != nil {
			return err
		}
		return s.startTx(tx, &match, userID)
	})
	if err != nil {
		return nil, err
	}

	publishAll(ctx, s.Events, []Event{newEvent(EventMatchAccepted, match.ID, map[string]interface{}{
		"challenger_id": match.ChallengerID,
		"opponent_id":   userID,
	})})
	return &match, nil
}

// Decline lets the invited opponent refuse a WAITING match.
func (s *DebateService) Decline(ctx context.Context, matchID, userID string) (*models.DebateMatch, error) {
	return s.cancel(ctx, matchID, userID, models.MatchEventDecline)
}

// Withdraw lets the challenger cancel a WAITING match.
func (s *DebateService) Withdraw(ctx context.Context, matchID, userID string) (*models.DebateMatch, error) {
	return s.cancel(ctx, matchID, userID, models.MatchEventWithdraw)
}

func (s *DebateService) cancel(ctx context.Context, matchID, userID string, ev models.MatchEvent) (*models.DebateMatch, error) {
	var match models.DebateMatch
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate).First(&match, "id = ?", matchID).Error; err != nil {
			return notFound(err, "match", matchID)
		}
		if match.Status != models.MatchWaiting {
			return newError(KindNotWaiting, "match is %s", match.Status)
		}
		switch ev {
		case models.MatchEventDecline:
			if match.InvitedOpponentID == nil || *match.InvitedOpponentID != userID {
				return newError(KindForbidden, "only the invited opponent can decline")
			}
		case models.MatchEventWithdraw:
			if match.ChallengerID != userID {
				return newError(KindForbidden, "only the challenger can withdraw")
			}
		}
		next, ok := match.Status.Next(ev)
		if !ok {
			return invalidTransition("match", match.Status, ev)
		}

		now := s.Clock.now()
		if err := tx.Model(&match).Updates(map[string]interface{}{
			"status":              next,
			"opponent_id":         nil,
			"invited_opponent_id": nil,
			"ended_at":            now,
		}).Error; err != nil {
			return fmt.Errorf("failed to cancel match %s: %w", matchID, err)
		}
		match.Status = next
		match.OpponentID = nil
		match.InvitedOpponentID = nil
		match.EndedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// SubmitResult reports what a statement submission did to the match.
type SubmitResult struct {
	Statement    *models.Statement  `json:"statement"`
	CurrentRound int                `json:"current_round"`
	Status       models.MatchStatus `json:"status"`
	Advanced     bool               `json:"advanced"`
}

// SubmitStatement records one argument and advances the round once both sides have submitted.
func (s *DebateService) SubmitStatement(ctx context.Context, matchID, authorID string, round int, content string) (*SubmitResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, newError(KindInvalidInput, "statement content is required")
	}

	result := &SubmitResult{}
	var match models.DebateMatch
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate).First(&match, "id = ?", matchID).Error; err != nil {
			return notFound(err, "match", matchID)
		}
		if match.Status != models.MatchActive {
			return newError(KindNotActive, "match is %s", match.Status)
		}
		if !match.IsParticipant(authorID) {
			return newError(KindNotParticipant, "user %s is not in match %s", authorID, matchID)
		}
		if round != match.CurrentRound {
			return newError(KindWrongRound, "current round is %d, got %d", match.CurrentRound, round)
		}

		var existing int64
		if err := tx.Model(&models.Statement{}).
			Where("debate_match_id = ? AND author_id = ? AND round = ?", matchID, authorID, round).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check statements: %w", err)
		}
		if existing > 0 {
			return newError(KindDuplicate, "already submitted round %d", round)
		}

		stmt := &models.Statement{
			ID:            uuid.NewString(),
			DebateMatchID: matchID,
			AuthorID:      authorID,
			Round:         round,
			Content:       content,
		}
		if err := tx.Create(stmt).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return newError(KindDuplicate, "already submitted round %d", round)
			}
			return fmt.Errorf("failed to save statement: %w", err)
		}
		result.Statement = stmt

		var submitted int64
		if err := tx.Model(&models.Statement{}).
			Where("debate_match_id = ? AND round = ?", matchID, round).
			Count(&submitted).Error; err != nil {
			return fmt.Errorf("failed to count statements: %w", err)
		}

		result.CurrentRound = match.CurrentRound
		result.Status = match.Status
		if submitted < 2 {
			return nil
		}

		advanced, err := s.advanceRoundTx(tx, &match, round)
		if err != nil {
			return err
		}
		result.Advanced = advanced
		result.CurrentRound = match.CurrentRound
		result.Status = match.Status
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Advanced && result.Status == models.MatchCompleted {
		log.Printf("[DEBATE] Match %s completed after %d rounds", match.ID, match.TotalRounds)
		publishAll(ctx, s.Events, []Event{newEvent(EventMatchCompleted, match.ID, map[string]interface{}{
			"owner_kind": match.OwnerKind,
			"owner_id":   deref(match.OwnerID),
		})})
	}
	return result, nil
}

// advanceRoundTx moves the match past expectedRound. The update is guarded on
// current_round so a second caller for the same round changes nothing.
func (s *DebateService) advanceRoundTx(tx *gorm.DB, match *models.DebateMatch, expectedRound int) (bool, error) {
	now := s.Clock.now()
	updates := map[string]interface{}{}

	if expectedRound >= match.TotalRounds {
		next, ok := match.Status.Next(models.MatchEventFinalRound)
		if !ok {
			return false, invalidTransition("match", match.Status, models.MatchEventFinalRound)
		}
		updates["status"] = next
		updates["round_deadline"] = nil
		updates["ended_at"] = now
	} else {
		deadline := now.Add(time.Duration(match.RoundDurationSeconds) * time.Second)
		updates["current_round"] = expectedRound + 1
		updates["round_deadline"] = deadline
	}

	res := tx.Model(&models.DebateMatch{}).
		Where("id = ? AND current_round = ? AND status = ?", match.ID, expectedRound, models.MatchActive).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to advance match %s: %w", match.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	if err := tx.First(match, "id = ?", match.ID).Error; err != nil {
		return false, fmt.Errorf("failed to reload match %s: %w", match.ID, err)
	}
	return true, nil
}

// RaiseAppeal lets a participant dispute a verdict.
func (s *DebateService) RaiseAppeal(ctx context.Context, matchID, userID, reason string) (*models.DebateMatch, error) {
	remaining, err := s.Quota.Remaining(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read appeal allotment: %w", err)
	}
	if remaining <= 0 {
		return nil, newError(KindAppealNotAllowed, "no appeals left this month")
	}

	var match models.DebateMatch
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate).First(&match, "id = ?", matchID).Error; err != nil {
			return notFound(err, "match", matchID)
		}
		if !match.IsParticipant(userID) {
			return newError(KindNotParticipant, "user %s is not in match %s", userID, matchID)
		}
		if match.AppealStatus != models.AppealNone {
			return newError(KindAppealNotAllowed, "match already appealed (%s)", match.AppealStatus)
		}

		// Pending appeals hold an allotment until they are resolved.
		if err := tx.Clauses(forUpdate).Select("id").First(&models.User{}, "id = ?", userID).Error; err != nil {
			return notFound(err, "user", userID)
		}
		var pending int64
		if err := tx.Model(&models.DebateMatch{}).
			Where("appealed_by = ? AND appeal_status = ?", userID, models.AppealPending).
			Count(&pending).Error; err != nil {
			return fmt.Errorf("failed to count pending appeals: %w", err)
		}
		if pending >= int64(remaining) {
			return newError(KindAppealNotAllowed, "%d appeals already pending, %d left this month", pending, remaining)
		}
		next, ok := match.Status.Next(models.MatchEventAppeal)
		if !ok {
			return newError(KindAppealNotAllowed, "match is %s", match.Status)
		}
		if err := tx.Model(&match).Updates(map[string]interface{}{
			"status":        next,
			"appeal_status": models.AppealPending,
			"appealed_by":   userID,
			"appeal_reason": strings.TrimSpace(reason),
		}).Error; err != nil {
			return fmt.Errorf("failed to record appeal: %w", err)
		}
		match.Status = next
		match.AppealStatus = models.AppealPending
		match.AppealedBy = &userID
		match.AppealReason = strings.TrimSpace(reason)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// Get loads one match.
func (s *DebateService) Get(ctx context.Context, matchID string) (*models.DebateMatch, error) {
	var match models.DebateMatch
	if err := s.DB.WithContext(ctx).First(&match, "id = ?", matchID).Error; err != nil {
		return nil, notFound(err, "match", matchID)
	}
	return &match, nil
}

// ListStatements returns a match's statements in round order.
func (s *DebateService) ListStatements(ctx context.Context, matchID string) ([]models.Statement, error) {
	var stmts []models.Statement
	if err := s.DB.WithContext(ctx).
		Where("debate_match_id = ?", matchID).
		Order("round ASC, created_at ASC").
		Find(&stmts).Error; err != nil {
		return nil, fmt.Errorf("failed to list statements: %w", err)
	}
	return stmts, nil
}

// activeUser loads a user and refuses banned accounts.
func activeUser(tx *gorm.DB, userID string) (*models.User, error) {
	var user models.User
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user", userID)
	}
	if user.IsBanned {
		return nil, newError(KindBanned, "user %s is banned", userID)
	}
	return &user, nil
}
