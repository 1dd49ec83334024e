// services/belt_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"argufight-arena/config"
	"argufight-arena/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type BeltService struct {
	DB                *gorm.DB
	Ledger            *LedgerService
	Debates           *DebateService
	Tiers             map[models.BeltType]config.BeltTierConfig
	PlatformAccountID string
	Events            EventPublisher
	Clock             Clock
}

func NewBeltService(db *gorm.DB, ledger *LedgerService, debates *DebateService, tiers map[models.BeltType]config.BeltTierConfig, platformAccountID string, events EventPublisher) *BeltService {
	return &BeltService{
		DB:                db,
		Ledger:            ledger,
		Debates:           debates,
		Tiers:             tiers,
		PlatformAccountID: platformAccountID,
		Events:            events,
	}
}

func (s *BeltService) tier(t models.BeltType) (config.BeltTierConfig, error) {
	tier, ok := s.Tiers[t]
	if !ok {
		return config.BeltTierConfig{}, newError(KindInvalidInput, "no settings configured for belt type %s", t)
	}
	return tier, nil
}

type CreateBeltParams struct {
	Name     string
	Type     models.BeltType
	Category string
	HolderID *string
	Status   models.BeltStatus // ACTIVE (default), MANDATORY or GRACE_PERIOD when held
}

// CreateBelt registers a new championship. Without a holder it starts VACANT.
func (s *BeltService) CreateBelt(ctx context.Context, p CreateBeltParams) (*models.Belt, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, newError(KindInvalidInput, "belt name is required")
	}
	if !p.Type.Valid() {
		return nil, newError(KindInvalidInput, "unknown belt type %q", p.Type)
	}
	if _, err := s.tier(p.Type); err != nil {
		return nil, err
	}

	belt := &models.Belt{
		ID:       uuid.NewString(),
		Name:     p.Name,
		Slug:     slug.Make(p.Name) + "-" + uuid.NewString()[:8],
		Type:     p.Type,
		Category: p.Category,
		Status:   models.BeltVacant,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.HolderID != nil {
			if _, err := activeUser(tx, *p.HolderID); err != nil {
				return err
			}
			status := p.Status
			if status == "" {
				status = models.BeltActive
			}
			if !status.Challengeable() {
				return newError(KindInvalidInput, "a held belt cannot start as %s", status)
			}
			now := s.Clock.now()
			belt.Status = status
			belt.CurrentHolderID = p.HolderID
			belt.AcquiredAt = &now
		}
		if err := tx.Create(belt).Error; err != nil {
			return fmt.Errorf("failed to create belt: %w", err)
		}
		if belt.CurrentHolderID != nil {
			return adjustBeltsHeld(tx, *belt.CurrentHolderID, 1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return belt, nil
}

type CreateChallengeParams struct {
	BeltID           string
	ChallengerID     string
	Topic            string
	Category         string
	Position         models.Position
	TotalRounds      int
	RoundDuration    time.Duration
	UseFreeChallenge bool
}

// CreateChallenge validates the belt and pre-pays the entry fee.
func (s *BeltService) CreateChallenge(ctx context.Context, p CreateChallengeParams) (*models.BeltChallenge, error) {
	debate := CreateMatchParams{
		ChallengerID:  p.ChallengerID,
		Topic:         p.Topic,
		Category:      p.Category,
		Position:      p.Position,
		TotalRounds:   p.TotalRounds,
		RoundDuration: p.RoundDuration,
	}
	if err := s.Debates.normalize(&debate); err != nil {
		return nil, err
	}

	var challenge *models.BeltChallenge
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var belt models.Belt
		if err := tx.Clauses(forUpdate).First(&belt, "id = ?", p.BeltID).Error; err != nil {
			return notFound(err, "belt", p.BeltID)
		}
		if belt.CurrentHolderID == nil || belt.Status == models.BeltVacant {
			return newError(KindVacant, "belt %s has no holder", belt.Name)
		}
		if *belt.CurrentHolderID == p.ChallengerID {
			return newError(KindSelfChallenge, "you already hold %s", belt.Name)
		}
		if !belt.Status.Challengeable() {
			return newError(KindNotChallengeable, "belt %s is %s", belt.Name, belt.Status)
		}

		var pending int64
		if err := tx.Model(&models.BeltChallenge{}).
			Where("belt_id = ? AND challenger_id = ? AND status = ?", belt.ID, p.ChallengerID, models.ChallengePending).
			Count(&pending).Error; err != nil {
			return fmt.Errorf("failed to check pending challenges: %w", err)
		}
		if pending > 0 {
			return newError(KindAlreadyPending, "you already have a pending challenge for %s", belt.Name)
		}

		if _, err := activeUser(tx, p.ChallengerID); err != nil {
			return err
		}
		tier, err := s.tier(belt.Type)
		if err != nil {
			return err
		}

		now := s.Clock.now()
		challenge = &models.BeltChallenge{
			ID:                   uuid.NewString(),
			BeltID:               belt.ID,
			ChallengerID:         p.ChallengerID,
			HolderID:             *belt.CurrentHolderID,
			Status:               models.ChallengePending,
			ExpiresAt:            now.Add(tier.ChallengeExpiry),
			Topic:                debate.Topic,
			Category:             debate.Category,
			TotalRounds:          debate.TotalRounds,
			ChallengerPosition:   debate.Position,
			RoundDurationSeconds: int64(debate.RoundDuration / time.Second),
		}

		if p.UseFreeChallenge {
			if err := tx.Clauses(forUpdate).Select("id").First(&models.User{}, "id = ?", p.ChallengerID).Error; err != nil {
				return notFound(err, "user", p.ChallengerID)
			}
			used, err := s.freeChallengesUsed(tx, p.ChallengerID, belt.Type)
			if err != nil {
				return err
			}
			if used >= tier.FreeChallengesPerUser {
				return newError(KindInsufficientFunds, "no free %s belt challenges left", belt.Type)
			}
			challenge.UsedFreeChallenge = true
		} else {
			challenge.EntryFee = tier.EntryFee
			challenge.CoinReward = tier.EntryFee * tier.WinnerRewardPercent / 100
		}

		if err := tx.Create(challenge).Error; err != nil {
			return fmt.Errorf("failed to create challenge: %w", err)
		}

		if challenge.EntryFee > 0 {
			if _, err := s.Ledger.DebitTx(tx, p.ChallengerID, challenge.EntryFee, models.TxBeltChallengeEntry, LedgerRef{
				Description:     fmt.Sprintf("challenge entry for %s", belt.Name),
				BeltID:          &belt.ID,
				BeltChallengeID: &challenge.ID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishAll(ctx, s.Events, []Event{newEvent(EventChallengeCreated, challenge.ID, map[string]interface{}{
		"belt_id":       challenge.BeltID,
		"challenger_id": challenge.ChallengerID,
		"holder_id":     challenge.HolderID,
	})})
	return challenge, nil
}

// ChallengeResponse is the outcome of RespondToChallenge.
type ChallengeResponse struct {
	Challenge *models.BeltChallenge `json:"challenge"`
	Match     *models.DebateMatch   `json:"match,omitempty"`
}

// RespondToChallenge lets the holder of record accept (staking the belt) or decline (refunding the fee).
func (s *BeltService) RespondToChallenge(ctx context.Context, challengeID, userID string, accept bool) (*ChallengeResponse, error) {
	resp := &ChallengeResponse{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ch models.BeltChallenge
		if err := tx.Clauses(forUpdate).First(&ch, "id = ?", challengeID).Error; err != nil {
			return notFound(err, "challenge", challengeID)
		}
		resp.Challenge = &ch

		ev := models.ChallengeEventDecline
		if accept {
			ev = models.ChallengeEventAccept
		}
		next, ok := ch.Status.Next(ev)
		if !ok {
			return invalidTransition("challenge", ch.Status, ev)
		}
		if ch.HolderID != userID {
			return newError(KindForbidden, "only the belt holder can respond")
		}

		var belt models.Belt
		if err := tx.Clauses(forUpdate).First(&belt, "id = ?", ch.BeltID).Error; err != nil {
			return notFound(err, "belt", ch.BeltID)
		}
		if belt.CurrentHolderID == nil || *belt.CurrentHolderID != userID {
			return newError(KindForbidden, "you no longer hold %s", belt.Name)
		}

		now := s.Clock.now()
		if !now.Before(ch.ExpiresAt) {
			return newError(KindChallengeExpired, "challenge expired at %s", ch.ExpiresAt.Format(time.RFC3339))
		}

		if !accept {
			if err := s.refundTx(tx, &ch, "challenge declined"); err != nil {
				return err
			}
			return s.closeChallengeTx(tx, &ch, next, now)
		}

		staked, ok := belt.Status.Next(models.BeltEventStake)
		if !ok {
			return newError(KindNotChallengeable, "belt %s is %s", belt.Name, belt.Status)
		}

		match, err := s.Debates.createTx(tx, CreateMatchParams{
			ChallengerID:  ch.ChallengerID,
			Topic:         ch.Topic,
			Category:      ch.Category,
			Position:      ch.ChallengerPosition,
			TotalRounds:   ch.TotalRounds,
			RoundDuration: time.Duration(ch.RoundDurationSeconds) * time.Second,
		}, matchOwner{kind: models.OwnerBeltChallenge, id: &ch.ID})
		if err != nil {
			return err
		}
		if err := s.Debates.startTx(tx, match, ch.HolderID); err != nil {
			return err
		}
		resp.Match = match

		if err := tx.Model(&belt).Updates(map[string]interface{}{
			"status":             staked,
			"staked_in_match_id": match.ID,
		}).Error; err != nil {
			return fmt.Errorf("failed to stake belt: %w", err)
		}

		ch.DebateMatchID = &match.ID
		if err := tx.Model(&ch).Update("debate_match_id", match.ID).Error; err != nil {
			return fmt.Errorf("failed to link match: %w", err)
		}
		return s.closeChallengeTx(tx, &ch, next, now)
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{"status": resp.Challenge.Status}
	if resp.Match != nil {
		payload["debate_match_id"] = resp.Match.ID
	}
	publishAll(ctx, s.Events, []Event{newEvent(EventChallengeResolved, resp.Challenge.ID, payload)})
	return resp, nil
}

// ExpireChallenge closes a PENDING challenge whose expiry has passed and refunds
// the fee. Calling it on any other challenge changes nothing.
func (s *BeltService) ExpireChallenge(ctx context.Context, challengeID string) (bool, error) {
	expired := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ch models.BeltChallenge
		if err := tx.Clauses(forUpdate).First(&ch, "id = ?", challengeID).Error; err != nil {
			return notFound(err, "challenge", challengeID)
		}
		next, ok := ch.Status.Next(models.ChallengeEventExpire)
		if !ok {
			return nil
		}
		now := s.Clock.now()
		if now.Before(ch.ExpiresAt) {
			return nil
		}
		if err := s.refundTx(tx, &ch, "challenge expired"); err != nil {
			return err
		}
		expired = true
		return s.closeChallengeTx(tx, &ch, next, now)
	})
	return expired, err
}

// ExpireOverdue sweeps every overdue PENDING challenge.
func (s *BeltService) ExpireOverdue(ctx context.Context) (int, error) {
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.BeltChallenge{}).
		Where("status = ? AND expires_at <= ?", models.ChallengePending, s.Clock.now()).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to find overdue challenges: %w", err)
	}

	count := 0
	for _, id := range ids {
		expired, err := s.ExpireChallenge(ctx, id)
		if err != nil {
			log.Printf("[BELTS] Failed to expire challenge %s: %v", id, err)
			continue
		}
		if expired {
			count++
		}
	}
	return count, nil
}

// freeChallengesUsed counts a user's free challenges on belts of one type.
// Declined and expired challenges give their allowance back.
func (s *BeltService) freeChallengesUsed(tx *gorm.DB, userID string, beltType models.BeltType) (int, error) {
	var used int64
	if err := tx.Model(&models.BeltChallenge{}).
		Joins("JOIN belts ON belts.id = belt_challenges.belt_id").
		Where("belt_challenges.challenger_id = ? AND belt_challenges.used_free_challenge = ?", userID, true).
		Where("belts.type = ? AND belt_challenges.status NOT IN ?", beltType,
			[]models.ChallengeStatus{models.ChallengeDeclined, models.ChallengeExpired}).
		Count(&used).Error; err != nil {
		return 0, fmt.Errorf("failed to count free challenges: %w", err)
	}
	return int(used), nil
}

func (s *BeltService) refundTx(tx *gorm.DB, ch *models.BeltChallenge, reason string) error {
	if ch.UsedFreeChallenge || ch.EntryFee <= 0 {
		return nil
	}
	_, err := s.Ledger.CreditTx(tx, ch.ChallengerID, ch.EntryFee, models.TxRefund, LedgerRef{
		Description:     reason,
		BeltID:          &ch.BeltID,
		BeltChallengeID: &ch.ID,
	})
	return err
}

func (s *BeltService) closeChallengeTx(tx *gorm.DB, ch *models.BeltChallenge, status models.ChallengeStatus, now time.Time) error {
	if err := tx.Model(ch).Updates(map[string]interface{}{
		"status":       status,
		"responded_at": now,
	}).Error; err != nil {
		return fmt.Errorf("failed to close challenge %s: %w", ch.ID, err)
	}
	ch.Status = status
	ch.RespondedAt = &now
	return nil
}

// ClaimVacantBelt assigns a vacant (or inactive, unheld) belt to a user.
func (s *BeltService) ClaimVacantBelt(ctx context.Context, beltID, userID string) (*models.Belt, error) {
	var belt models.Belt
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate).First(&belt, "id = ?", beltID).Error; err != nil {
			return notFound(err, "belt", beltID)
		}
		if belt.CurrentHolderID != nil {
			return newError(KindInvalidTransition, "belt %s is held", belt.Name)
		}
		next, ok := belt.Status.Next(models.BeltEventClaim)
		if !ok {
			return invalidTransition("belt", belt.Status, models.BeltEventClaim)
		}
		if _, err := activeUser(tx, userID); err != nil {
			return err
		}

		now := s.Clock.now()
		if err := tx.Model(&belt).Updates(map[string]interface{}{
			"status":              next,
			"current_holder_id":   userID,
			"acquired_at":         now,
			"times_defended":      0,
			"successful_defenses": 0,
		}).Error; err != nil {
			return fmt.Errorf("failed to claim belt: %w", err)
		}
		if err := tx.Create(&models.BeltHistory{
			ID:       uuid.NewString(),
			BeltID:   belt.ID,
			ToUserID: &userID,
			Reason:   models.BeltReasonClaimed,
		}).Error; err != nil {
			return fmt.Errorf("failed to record belt history: %w", err)
		}
		return adjustBeltsHeld(tx, userID, 1)
	})
	if err != nil {
		return nil, err
	}
	return s.GetBelt(ctx, beltID)
}

// settleTx applies a verdict to the belt a challenge match was staked on and pays
// out the entry fee shares. It runs inside the settlement transaction.
func (s *BeltService) settleTx(tx *gorm.DB, match *models.DebateMatch) ([]Event, error) {
	if match.OwnerID == nil {
		return nil, fmt.Errorf("belt match %s has no owning challenge", match.ID)
	}
	var ch models.BeltChallenge
	if err := tx.First(&ch, "id = ?", *match.OwnerID).Error; err != nil {
		return nil, notFound(err, "challenge", *match.OwnerID)
	}
	var belt models.Belt
	if err := tx.Clauses(forUpdate).First(&belt, "id = ?", ch.BeltID).Error; err != nil {
		return nil, notFound(err, "belt", ch.BeltID)
	}
	if belt.StakedInMatchID == nil || *belt.StakedInMatchID != match.ID {
		return nil, fmt.Errorf("belt %s is not staked on match %s", belt.ID, match.ID)
	}
	tier, err := s.tier(belt.Type)
	if err != nil {
		return nil, err
	}

	now := s.Clock.now()
	holderID := ch.HolderID
	challengerID := ch.ChallengerID
	updates := map[string]interface{}{"staked_in_match_id": nil}
	forfeitReward := false
	var events []Event

	switch match.Verdict {
	case models.VerdictChallengerWins:
		winner, err := loadUser(tx, challengerID)
		if err != nil {
			return nil, err
		}
		if winner.IsBanned {
			next, _ := belt.Status.Next(models.BeltEventVacate)
			updates["status"] = next
			updates["current_holder_id"] = nil
			if err := s.recordHistoryTx(tx, &belt, &holderID, nil, models.BeltReasonVacated, match.ID, now); err != nil {
				return nil, err
			}
			if err := adjustBeltsHeld(tx, holderID, -1); err != nil {
				return nil, err
			}
			log.Printf("[BELTS] Belt %s vacated: winner %s is banned", belt.ID, challengerID)
			forfeitReward = true
			break
		}

		next, _ := belt.Status.Next(models.BeltEventUnstake)
		updates["status"] = next
		updates["current_holder_id"] = challengerID
		updates["acquired_at"] = now
		updates["times_defended"] = 0
		updates["successful_defenses"] = 0
		updates["last_defended_at"] = nil
		if err := s.recordHistoryTx(tx, &belt, &holderID, &challengerID, models.BeltReasonChallengeWin, match.ID, now); err != nil {
			return nil, err
		}
		if err := adjustBeltsHeld(tx, holderID, -1); err != nil {
			return nil, err
		}
		if err := adjustBeltsHeld(tx, challengerID, 1); err != nil {
			return nil, err
		}
		events = append(events, newEvent(EventBeltTransferred, belt.ID, map[string]interface{}{
			"from_user_id":    holderID,
			"to_user_id":      challengerID,
			"debate_match_id": match.ID,
		}))

	case models.VerdictOpponentWins:
		next, _ := belt.Status.Next(models.BeltEventUnstake)
		updates["status"] = next
		updates["times_defended"] = belt.TimesDefended + 1
		updates["successful_defenses"] = belt.SuccessfulDefenses + 1
		updates["last_defended_at"] = now

	case models.VerdictTie:
		next, _ := belt.Status.Next(models.BeltEventUnstake)
		updates["status"] = next
		updates["times_defended"] = belt.TimesDefended + 1
		updates["last_defended_at"] = now

	default:
		return nil, newError(KindInvalidInput, "unknown verdict %q", match.Verdict)
	}

	if err := tx.Model(&belt).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update belt %s: %w", belt.ID, err)
	}

	if err := s.payoutTx(tx, &ch, match, tier, forfeitReward); err != nil {
		return nil, err
	}
	return events, nil
}

// payoutTx splits the pre-paid entry fee between winner, loser and platform.
// A tie refunds the challenger. A forfeited winner reward goes to the platform.
func (s *BeltService) payoutTx(tx *gorm.DB, ch *models.BeltChallenge, match *models.DebateMatch, tier config.BeltTierConfig, forfeitReward bool) error {
	if ch.EntryFee <= 0 {
		return nil
	}
	ref := LedgerRef{BeltID: &ch.BeltID, BeltChallengeID: &ch.ID, DebateMatchID: &match.ID}

	if match.Verdict == models.VerdictTie {
		ref.Description = "belt challenge tied"
		_, err := s.Ledger.CreditTx(tx, ch.ChallengerID, ch.EntryFee, models.TxRefund, ref)
		return err
	}

	winnerID, loserID := ch.ChallengerID, ch.HolderID
	if match.Verdict == models.VerdictOpponentWins {
		winnerID, loserID = ch.HolderID, ch.ChallengerID
	}

	reward := ch.CoinReward
	consolation := ch.EntryFee * tier.LoserConsolationPercent / 100
	platform := ch.EntryFee - reward - consolation
	if platform < 0 {
		consolation += platform
		platform = 0
	}
	if forfeitReward {
		platform += reward
		reward = 0
	}

	payouts := []struct {
		userID string
		amount int64
		txType models.CoinTransactionType
		desc   string
	}{
		{winnerID, reward, models.TxBeltChallengeReward, "belt challenge reward"},
		{loserID, consolation, models.TxBeltChallengeConsolation, "belt challenge consolation"},
		{s.PlatformAccountID, platform, models.TxPlatformFee, "belt challenge platform fee"},
	}
	for _, p := range payouts {
		if p.amount <= 0 || p.userID == "" {
			continue
		}
		ref.Description = p.desc
		if _, err := s.Ledger.CreditTx(tx, p.userID, p.amount, p.txType, ref); err != nil {
			return fmt.Errorf("failed to pay %s: %w", p.desc, err)
		}
	}
	return nil
}

func (s *BeltService) recordHistoryTx(tx *gorm.DB, belt *models.Belt, from, to *string, reason models.BeltHistoryReason, matchID string, now time.Time) error {
	daysHeld := 0
	if belt.AcquiredAt != nil {
		daysHeld = int(now.Sub(*belt.AcquiredAt).Hours() / 24)
	}
	h := &models.BeltHistory{
		ID:            uuid.NewString(),
		BeltID:        belt.ID,
		FromUserID:    from,
		ToUserID:      to,
		Reason:        reason,
		DebateMatchID: &matchID,
		DaysHeld:      daysHeld,
		DefensesWon:   belt.SuccessfulDefenses,
	}
	if err := tx.Create(h).Error; err != nil {
		return fmt.Errorf("failed to record belt history: %w", err)
	}
	return nil
}

// GetBelt loads one belt.
func (s *BeltService) GetBelt(ctx context.Context, beltID string) (*models.Belt, error) {
	var belt models.Belt
	if err := s.DB.WithContext(ctx).First(&belt, "id = ?", beltID).Error; err != nil {
		return nil, notFound(err, "belt", beltID)
	}
	return &belt, nil
}

// GetChallenge loads one challenge.
func (s *BeltService) GetChallenge(ctx context.Context, challengeID string) (*models.BeltChallenge, error) {
	var ch models.BeltChallenge
	if err := s.DB.WithContext(ctx).First(&ch, "id = ?", challengeID).Error; err != nil {
		return nil, notFound(err, "challenge", challengeID)
	}
	return &ch, nil
}

// ListChallenges returns challenges involving a user, newest first.
func (s *BeltService) ListChallenges(ctx context.Context, userID string, status models.ChallengeStatus) ([]models.BeltChallenge, error) {
	q := s.DB.WithContext(ctx).Where("challenger_id = ? OR holder_id = ?", userID, userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.BeltChallenge
	if err := q.Order("created_at DESC").Limit(maxPageSize).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	return out, nil
}

// BeltHistory returns a belt's ownership changes, newest first.
func (s *BeltService) BeltHistory(ctx context.Context, beltID string) ([]models.BeltHistory, error) {
	var out []models.BeltHistory
	if err := s.DB.WithContext(ctx).Where("belt_id = ?", beltID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load belt history: %w", err)
	}
	return out, nil
}

func adjustBeltsHeld(tx *gorm.DB, userID string, delta int) error {
	return tx.Model(&models.User{}).Where("id = ?", userID).
		Update("belts_held", gorm.Expr("belts_held + ?", delta)).Error
}

func loadUser(tx *gorm.DB, userID string) (*models.User, error) {
	var user models.User
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(KindNotFound, "user %s not found", userID)
		}
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	return &user, nil
}
