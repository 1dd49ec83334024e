package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"argufight-arena/config"
	"argufight-arena/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TournamentService struct {
	DB      *gorm.DB
	Ledger  *LedgerService
	Debates *DebateService
	Config  config.TournamentConfig
	Events  EventPublisher
	Clock   Clock
}

func NewTournamentService(db *gorm.DB, ledger *LedgerService, debates *DebateService, cfg config.TournamentConfig, events EventPublisher) *TournamentService {
	return &TournamentService{DB: db, Ledger: ledger, Debates: debates, Config: cfg, Events: events}
}

type CreateTournamentParams struct {
	CreatorID           string
	Name                string
	Description         string
	Format              models.TournamentFormat
	MaxParticipants     int
	MinElo              int
	EntryFee            int64
	PrizeDistribution   []int64
	ReseedMethod        models.ReseedMethod
	ReseedAfterRound    bool
	Topic               string
	DebateRounds        int
	RoundDuration       time.Duration
	RegistrationOpensAt *time.Time
	StartsAt            *time.Time
}

// CreateTournament creates the tournament with all of its rounds and registers the creator.
func (s *TournamentService) CreateTournament(ctx context.Context, p CreateTournamentParams) (*models.Tournament, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, newError(KindInvalidInput, "tournament name is required")
	}
	if p.Format == "" {
		p.Format = models.FormatBracket
	}
	if !p.Format.Valid() {
		return nil, newError(KindInvalidInput, "unknown format %q", p.Format)
	}
	if p.MaxParticipants < 2 || p.MaxParticipants > s.Config.MaxParticipants {
		return nil, newError(KindInvalidInput, "max participants must be between 2 and %d", s.Config.MaxParticipants)
	}
	if p.EntryFee < 0 || p.MinElo < 0 {
		return nil, newError(KindInvalidInput, "entry fee and minimum ELO cannot be negative")
	}
	if p.ReseedMethod == "" {
		p.ReseedMethod = models.ReseedEloBased
	}
	if !p.ReseedMethod.Valid() {
		return nil, newError(KindInvalidInput, "unknown reseed method %q", p.ReseedMethod)
	}
	if len(p.PrizeDistribution) == 0 {
		p.PrizeDistribution = s.Config.DefaultPrizeDistribution
	}
	if err := config.ValidatePrizeDistribution(p.PrizeDistribution); err != nil {
		return nil, newError(KindInvalidInput, "%v", err)
	}
	distribution, err := json.Marshal(p.PrizeDistribution)
	if err != nil {
		return nil, fmt.Errorf("failed to encode prize distribution: %w", err)
	}

	debate := CreateMatchParams{
		ChallengerID:  p.CreatorID,
		Topic:         p.Topic,
		TotalRounds:   p.DebateRounds,
		RoundDuration: p.RoundDuration,
	}
	if err := s.Debates.normalize(&debate); err != nil {
		return nil, err
	}

	now := s.Clock.now()
	status := models.TournamentRegistrationOpen
	if p.RegistrationOpensAt != nil && p.RegistrationOpensAt.After(now) {
		status = models.TournamentUpcoming
	}

	t := &models.Tournament{
		ID:                   uuid.NewString(),
		Name:                 p.Name,
		Slug:                 slug.Make(p.Name) + "-" + uuid.NewString()[:8],
		Description:          p.Description,
		CreatorID:            p.CreatorID,
		Format:               p.Format,
		Status:               status,
		MaxParticipants:      p.MaxParticipants,
		MinElo:               p.MinElo,
		TotalRounds:          bracketRounds(p.MaxParticipants),
		EntryFee:             p.EntryFee,
		PrizeDistribution:    datatypes.JSON(distribution),
		ReseedMethod:         p.ReseedMethod,
		ReseedAfterRound:     p.ReseedAfterRound,
		Topic:                debate.Topic,
		DebateRounds:         debate.TotalRounds,
		RoundDurationSeconds: int64(debate.RoundDuration / time.Second),
		RegistrationOpensAt:  p.RegistrationOpensAt,
		StartsAt:             p.StartsAt,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := activeUser(tx, p.CreatorID); err != nil {
			return err
		}
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("failed to create tournament: %w", err)
		}
		rounds := make([]models.TournamentRound, 0, t.TotalRounds)
		for n := 1; n <= t.TotalRounds; n++ {
			rounds = append(rounds, models.TournamentRound{
				ID:           uuid.NewString(),
				TournamentID: t.ID,
				RoundNumber:  n,
				Status:       models.RoundPending,
			})
		}
		if err := tx.Create(&rounds).Error; err != nil {
			return fmt.Errorf("failed to create rounds: %w", err)
		}
		if t.Status != models.TournamentRegistrationOpen {
			return nil
		}
		_, err := s.registerTx(tx, t, p.CreatorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[TOURNAMENT] Created %s (%s) with %d rounds", t.Name, t.ID, t.TotalRounds)
	return s.Get(ctx, t.ID)
}

// Register adds a user to a tournament that is open for registration and debits the entry fee.
func (s *TournamentService) Register(ctx context.Context, tournamentID, userID string) (*models.TournamentParticipant, error) {
	var participant *models.TournamentParticipant
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.Tournament
		if err := tx.Clauses(forUpdate).First(&t, "id = ?", tournamentID).Error; err != nil {
			return notFound(err, "tournament", tournamentID)
		}
		var err error
		participant, err = s.registerTx(tx, &t, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return participant, nil
}

// registerTx expects the tournament row to be locked by the caller.
func (s *TournamentService) registerTx(tx *gorm.DB, t *models.Tournament, userID string) (*models.TournamentParticipant, error) {
	if t.Status != models.TournamentRegistrationOpen {
		return nil, newError(KindNotOpen, "registration for %s is not open", t.Name)
	}

	var existing int64
	if err := tx.Model(&models.TournamentParticipant{}).
		Where("tournament_id = ? AND user_id = ?", t.ID, userID).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check registration: %w", err)
	}
	if existing > 0 {
		return nil, newError(KindAlreadyRegistered, "already registered for %s", t.Name)
	}

	var stats struct {
		Count   int64
		MaxSeed int
	}
	if err := tx.Model(&models.TournamentParticipant{}).
		Select("COUNT(*) AS count, COALESCE(MAX(seed), 0) AS max_seed").
		Where("tournament_id = ?", t.ID).
		Scan(&stats).Error; err != nil {
		return nil, fmt.Errorf("failed to count participants: %w", err)
	}
	if int(stats.Count) >= t.MaxParticipants {
		return nil, newError(KindFull, "%s is full", t.Name)
	}

	user, err := activeUser(tx, userID)
	if err != nil {
		return nil, err
	}
	if user.EloRating < t.MinElo {
		return nil, newError(KindBelowMinElo, "ELO %d is below the minimum of %d", user.EloRating, t.MinElo)
	}

	if t.EntryFee > 0 {
		if _, err := s.Ledger.DebitTx(tx, userID, t.EntryFee, models.TxTournamentEntry, LedgerRef{
			Description:  fmt.Sprintf("entry fee for %s", t.Name),
			TournamentID: &t.ID,
		}); err != nil {
			return nil, err
		}
		if err := tx.Model(&models.Tournament{}).Where("id = ?", t.ID).
			Update("prize_pool", gorm.Expr("prize_pool + ?", t.EntryFee)).Error; err != nil {
			return nil, fmt.Errorf("failed to grow prize pool: %w", err)
		}
		t.PrizePool += t.EntryFee
	}

	participant := &models.TournamentParticipant{
		ID:                uuid.NewString(),
		TournamentID:      t.ID,
		UserID:            userID,
		Seed:              stats.MaxSeed + 1,
		CurrentSeed:       stats.MaxSeed + 1,
		EloAtRegistration: user.EloRating,
		Status:            models.ParticipantRegistered,
		EntryFeePaid:      t.EntryFee,
		RegisteredAt:      s.Clock.now(),
	}
	if err := tx.Create(participant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, newError(KindAlreadyRegistered, "already registered for %s", t.Name)
		}
		return nil, fmt.Errorf("failed to register participant: %w", err)
	}
	return participant, nil
}

// Unregister withdraws a registration while registration is still open and refunds the fee.
func (s *TournamentService) Unregister(ctx context.Context, tournamentID, userID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.Tournament
		if err := tx.Clauses(forUpdate).First(&t, "id = ?", tournamentID).Error; err != nil {
			return notFound(err, "tournament", tournamentID)
		}
		if t.Status != models.TournamentRegistrationOpen {
			return newError(KindNotOpen, "registration for %s is closed", t.Name)
		}

		var p models.TournamentParticipant
		if err := tx.Where("tournament_id = ? AND user_id = ?", t.ID, userID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newError(KindNotParticipant, "not registered for %s", t.Name)
			}
			return fmt.Errorf("failed to load registration: %w", err)
		}

		if p.EntryFeePaid > 0 {
			if _, err := s.Ledger.CreditTx(tx, userID, p.EntryFeePaid, models.TxRefund, LedgerRef{
				Description:  fmt.Sprintf("unregistered from %s", t.Name),
				TournamentID: &t.ID,
			}); err != nil {
				return err
			}
			if err := tx.Model(&models.Tournament{}).Where("id = ?", t.ID).
				Update("prize_pool", gorm.Expr("prize_pool - ?", p.EntryFeePaid)).Error; err != nil {
				return fmt.Errorf("failed to shrink prize pool: %w", err)
			}
		}
		return tx.Delete(&p).Error
	})
}

// OpenRegistration moves an UPCOMING tournament to REGISTRATION_OPEN and registers
// its creator. A creator who can no longer register (banned, short of the entry
// fee or the minimum ELO) is skipped; the tournament opens anyway.
func (s *TournamentService) OpenRegistration(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.Tournament
		if err := tx.Clauses(forUpdate).First(&t, "id = ?", tournamentID).Error; err != nil {
			return notFound(err, "tournament", tournamentID)
		}
		next, ok := t.Status.Next(models.TournamentEventOpen)
		if !ok {
			return invalidTransition("tournament", t.Status, models.TournamentEventOpen)
		}
		if err := tx.Model(&t).Update("status", next).Error; err != nil {
			return fmt.Errorf("failed to open registration: %w", err)
		}
		t.Status = next

		err := tx.Transaction(func(sp *gorm.DB) error {
			_, err := s.registerTx(sp, &t, t.CreatorID)
			return err
		})
		if kind, ok := KindOf(err); ok {
			log.Printf("[TOURNAMENT] Creator %s not registered for %s: %s", t.CreatorID, t.ID, kind)
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, tournamentID)
}

// Start closes registration, seeds the bracket and schedules round 1. Only the
// creator or an admin may start a tournament by hand.
func (s *TournamentService) Start(ctx context.Context, tournamentID, userID string, isAdmin bool) (*models.Tournament, error) {
	t, err := s.Get(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && t.CreatorID != userID {
		return nil, newError(KindForbidden, "only the creator can start %s", t.Name)
	}
	return s.start(ctx, tournamentID)
}

func (s *TournamentService) start(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	var events []Event
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.Tournament
		if err := tx.Clauses(forUpdate).First(&t, "id = ?", tournamentID).Error; err != nil {
			return notFound(err, "tournament", tournamentID)
		}
		next, ok := t.Status.Next(models.TournamentEventStart)
		if !ok {
			return invalidTransition("tournament", t.Status, models.TournamentEventStart)
		}

		var participants []*models.TournamentParticipant
		if err := tx.Where("tournament_id = ? AND status = ?", t.ID, models.ParticipantRegistered).
			Order("seed ASC").Find(&participants).Error; err != nil {
			return fmt.Errorf("failed to load participants: %w", err)
		}
		if len(participants) < 2 {
			return newError(KindInvalidInput, "%s needs at least two participants", t.Name)
		}

		ranked := rankParticipants(participants, t.ReseedMethod, nil, s.rng())
		for i, p := range ranked {
			status, _ := p.Status.Next(models.ParticipantEventActivate)
			p.CurrentSeed = i + 1
			p.Status = status
			if err := tx.Model(p).Updates(map[string]interface{}{
				"current_seed": p.CurrentSeed,
				"status":       status,
			}).Error; err != nil {
				return fmt.Errorf("failed to seed participant: %w", err)
			}
		}

		// The bracket shrinks to fit the field that actually registered.
		totalRounds := bracketRounds(len(ranked))
		if totalRounds < t.TotalRounds {
			if err := tx.Where("tournament_id = ? AND round_number > ?", t.ID, totalRounds).
				Delete(&models.TournamentRound{}).Error; err != nil {
				return fmt.Errorf("failed to trim rounds: %w", err)
			}
		}

		now := s.Clock.now()
		if err := tx.Model(&t).Updates(map[string]interface{}{
			"status":        next,
			"total_rounds":  totalRounds,
			"current_round": 1,
			"starts_at":     now,
		}).Error; err != nil {
			return fmt.Errorf("failed to start tournament: %w", err)
		}
		t.Status = next
		t.TotalRounds = totalRounds
		t.CurrentRound = 1

		if err := s.scheduleRoundTx(tx, &t, 1, pairSeeded(ranked)); err != nil {
			return err
		}
		events = append(events, newEvent(EventTournamentStarted, t.ID, map[string]interface{}{
			"participants": len(ranked),
			"total_rounds": totalRounds,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishAll(ctx, s.Events, events)
	log.Printf("[TOURNAMENT] Started %s", tournamentID)
	return s.Get(ctx, tournamentID)
}

// scheduleRoundTx writes the round's matches and spawns a debate for every
// pairing with two participants. A bye is recorded as already won.
func (s *TournamentService) scheduleRoundTx(tx *gorm.DB, t *models.Tournament, roundNumber int, slots []bracketSlot) error {
	var round models.TournamentRound
	if err := tx.Where("tournament_id = ? AND round_number = ?", t.ID, roundNumber).First(&round).Error; err != nil {
		return notFound(err, "round", fmt.Sprintf("%s/%d", t.ID, roundNumber))
	}

	now := s.Clock.now()
	for i, slot := range slots {
		tm := models.TournamentMatch{
			ID:           uuid.NewString(),
			TournamentID: t.ID,
			RoundID:      round.ID,
			RoundNumber:  roundNumber,
			Slot:         i,
			Status:       models.TournamentMatchPending,
		}
		if slot.first != nil {
			tm.Participant1ID = &slot.first.ID
		}
		if slot.second != nil {
			tm.Participant2ID = &slot.second.ID
		}

		if slot.isBye() {
			adv := slot.advancing()
			if adv == nil {
				continue
			}
			tm.IsBye = true
			tm.WinnerParticipantID = &adv.ID
			tm.Status = models.TournamentMatchCompleted
			tm.CompletedAt = &now
		} else {
			match, err := s.Debates.createTx(tx, CreateMatchParams{
				ChallengerID:  slot.first.UserID,
				Topic:         t.Topic,
				Category:      "tournament",
				Position:      models.PositionFor,
				TotalRounds:   t.DebateRounds,
				RoundDuration: time.Duration(t.RoundDurationSeconds) * time.Second,
			}, matchOwner{kind: models.OwnerTournamentMatch, id: &tm.ID})
			if err != nil {
				return err
			}
			if err := s.Debates.startTx(tx, match, slot.second.UserID); err != nil {
				return err
			}
			tm.DebateMatchID = &match.ID
			tm.Status = models.TournamentMatchInProgress
		}

		if err := tx.Create(&tm).Error; err != nil {
			return fmt.Errorf("failed to create tournament match: %w", err)
		}
	}

	return tx.Model(&round).Updates(map[string]interface{}{
		"status":     models.RoundInProgress,
		"started_at": now,
	}).Error
}

// recordResultTx feeds a settled debate back into the bracket and advances the
// tournament when the round is finished. Runs inside the settlement transaction.
func (s *TournamentService) recordResultTx(tx *gorm.DB, match *models.DebateMatch) ([]Event, error) {
	if match.OwnerID == nil {
		return nil, fmt.Errorf("tournament match for debate %s is missing", match.ID)
	}
	var tm models.TournamentMatch
	if err := tx.Clauses(forUpdate).First(&tm, "id = ?", *match.OwnerID).Error; err != nil {
		return nil, notFound(err, "tournament match", *match.OwnerID)
	}
	if tm.Status == models.TournamentMatchCompleted {
		return nil, nil
	}
	if tm.Participant1ID == nil || tm.Participant2ID == nil {
		return nil, fmt.Errorf("tournament match %s has an empty slot", tm.ID)
	}

	var p1, p2 models.TournamentParticipant
	if err := tx.Clauses(forUpdate).First(&p1, "id = ?", *tm.Participant1ID).Error; err != nil {
		return nil, notFound(err, "participant", *tm.Participant1ID)
	}
	if err := tx.Clauses(forUpdate).First(&p2, "id = ?", *tm.Participant2ID).Error; err != nil {
		return nil, notFound(err, "participant", *tm.Participant2ID)
	}

	s1, s2 := scoreOf(match.ChallengerScore), scoreOf(match.OpponentScore)
	winner, loser := &p1, &p2
	winnerScore, loserScore := s1, s2
	switch match.Verdict {
	case models.VerdictOpponentWins:
		winner, loser = &p2, &p1
		winnerScore, loserScore = s2, s1
	case models.VerdictTie:
		// Elimination needs a winner: higher score, then the better current seed.
		if s2 > s1 || (s2 == s1 && p2.CurrentSeed < p1.CurrentSeed) {
			winner, loser = &p2, &p1
			winnerScore, loserScore = s2, s1
		}
	}

	if err := tx.Model(winner).Updates(map[string]interface{}{
		"wins":             winner.Wins + 1,
		"cumulative_score": winner.CumulativeScore + winnerScore,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to record win: %w", err)
	}
	eliminated, ok := loser.Status.Next(models.ParticipantEventEliminate)
	if !ok {
		return nil, invalidTransition("participant", loser.Status, models.ParticipantEventEliminate)
	}
	if err := tx.Model(loser).Updates(map[string]interface{}{
		"losses":            loser.Losses + 1,
		"cumulative_score":  loser.CumulativeScore + loserScore,
		"status":            eliminated,
		"elimination_round": tm.RoundNumber,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to eliminate participant: %w", err)
	}

	if err := tx.Model(&tm).Updates(map[string]interface{}{
		"winner_participant_id": winner.ID,
		"status":                models.TournamentMatchCompleted,
		"completed_at":          s.Clock.now(),
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to complete tournament match: %w", err)
	}

	return s.advanceTx(tx, tm.TournamentID, tm.RoundNumber)
}

// currentRatings loads the live ELO of each participant's user.
func currentRatings(tx *gorm.DB, ps []*models.TournamentParticipant) (map[string]int, error) {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.UserID)
	}
	var users []models.User
	if err := tx.Select("id", "elo_rating").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load ratings: %w", err)
	}
	ratings := make(map[string]int, len(users))
	for _, u := range users {
		ratings[u.ID] = u.EloRating
	}
	return ratings, nil
}

func scoreOf(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// advanceTx moves the tournament past roundNumber once every match in it has a
// winner. Any other call is a no-op.
func (s *TournamentService) advanceTx(tx *gorm.DB, tournamentID string, roundNumber int) ([]Event, error) {
	var t models.Tournament
	if err := tx.Clauses(forUpdate).First(&t, "id = ?", tournamentID).Error; err != nil {
		return nil, notFound(err, "tournament", tournamentID)
	}
	if t.Status != models.TournamentInProgress || t.CurrentRound != roundNumber {
		return nil, nil
	}

	var matches []models.TournamentMatch
	if err := tx.Where("tournament_id = ? AND round_number = ?", t.ID, roundNumber).
		Order("slot ASC").Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("failed to load round %d: %w", roundNumber, err)
	}
	winnerIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Status != models.TournamentMatchCompleted || m.WinnerParticipantID == nil {
			return nil, nil
		}
		winnerIDs = append(winnerIDs, *m.WinnerParticipantID)
	}

	now := s.Clock.now()
	if err := tx.Model(&models.TournamentRound{}).
		Where("tournament_id = ? AND round_number = ?", t.ID, roundNumber).
		Updates(map[string]interface{}{"status": models.RoundCompleted, "ended_at": now}).Error; err != nil {
		return nil, fmt.Errorf("failed to close round %d: %w", roundNumber, err)
	}

	var loaded []*models.TournamentParticipant
	if err := tx.Where("id IN ?", winnerIDs).Find(&loaded).Error; err != nil {
		return nil, fmt.Errorf("failed to load winners: %w", err)
	}
	byID := make(map[string]*models.TournamentParticipant, len(loaded))
	for _, p := range loaded {
		byID[p.ID] = p
	}
	winners := make([]*models.TournamentParticipant, 0, len(winnerIDs))
	for _, id := range winnerIDs {
		if p, ok := byID[id]; ok {
			winners = append(winners, p)
		}
	}

	if len(winners) == 1 {
		return s.completeTx(tx, &t, winners[0])
	}
	if roundNumber+1 > t.TotalRounds {
		return nil, fmt.Errorf("tournament %s has %d winners after its last round", t.ID, len(winners))
	}

	var slots []bracketSlot
	if t.ReseedAfterRound {
		ratings, err := currentRatings(tx, winners)
		if err != nil {
			return nil, err
		}
		ranked := rankParticipants(winners, t.ReseedMethod, ratings, s.rng())
		for i, p := range ranked {
			p.CurrentSeed = i + 1
			if err := tx.Model(p).Update("current_seed", p.CurrentSeed).Error; err != nil {
				return nil, fmt.Errorf("failed to reseed participant: %w", err)
			}
		}
		slots = pairSeeded(ranked)
	} else {
		slots = pairByPosition(winners)
	}

	if err := tx.Model(&t).Update("current_round", roundNumber+1).Error; err != nil {
		return nil, fmt.Errorf("failed to advance tournament: %w", err)
	}
	t.CurrentRound = roundNumber + 1
	if err := s.scheduleRoundTx(tx, &t, t.CurrentRound, slots); err != nil {
		return nil, err
	}

	log.Printf("[TOURNAMENT] %s advanced to round %d/%d", t.ID, t.CurrentRound, t.TotalRounds)
	return []Event{newEvent(EventTournamentAdvanced, t.ID, map[string]interface{}{
		"round": t.CurrentRound,
	})}, nil
}

// completeTx records the champion and pays the prize pool by placement.
func (s *TournamentService) completeTx(tx *gorm.DB, t *models.Tournament, champion *models.TournamentParticipant) ([]Event, error) {
	next, ok := t.Status.Next(models.TournamentEventComplete)
	if !ok {
		return nil, invalidTransition("tournament", t.Status, models.TournamentEventComplete)
	}
	now := s.Clock.now()
	if err := tx.Model(t).Updates(map[string]interface{}{
		"status":    next,
		"winner_id": champion.UserID,
		"ended_at":  now,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to complete tournament: %w", err)
	}
	if err := tx.Model(&models.TournamentRound{}).
		Where("tournament_id = ? AND round_number = ?", t.ID, t.CurrentRound).
		Updates(map[string]interface{}{"status": models.RoundCompleted, "ended_at": now}).Error; err != nil {
		return nil, fmt.Errorf("failed to close final round: %w", err)
	}

	var distribution []int64
	if len(t.PrizeDistribution) > 0 {
		if err := json.Unmarshal(t.PrizeDistribution, &distribution); err != nil {
			return nil, fmt.Errorf("failed to decode prize distribution: %w", err)
		}
	}

	var eliminated []models.TournamentParticipant
	if err := tx.Where("tournament_id = ? AND status = ? AND elimination_round IS NOT NULL", t.ID, models.ParticipantEliminated).
		Order("current_seed ASC").Find(&eliminated).Error; err != nil {
		return nil, fmt.Errorf("failed to load placements: %w", err)
	}
	tiers := make([][]string, t.TotalRounds+1)
	tiers[0] = []string{champion.UserID}
	for _, p := range eliminated {
		tier := placementTier(t.TotalRounds, *p.EliminationRound)
		if tier < len(tiers) {
			tiers[tier] = append(tiers[tier], p.UserID)
		}
	}

	for _, payout := range splitPrizePool(t.PrizePool, distribution, tiers) {
		if _, err := s.Ledger.CreditTx(tx, payout.UserID, payout.Amount, models.TxTournamentReward, LedgerRef{
			Description:  fmt.Sprintf("prize from %s", t.Name),
			TournamentID: &t.ID,
		}); err != nil {
			return nil, fmt.Errorf("failed to pay prize: %w", err)
		}
	}

	log.Printf("🏆 [TOURNAMENT] %s won by %s (pool %d)", t.ID, champion.UserID, t.PrizePool)
	return []Event{newEvent(EventTournamentCompleted, t.ID, map[string]interface{}{
		"winner_id":  champion.UserID,
		"prize_pool": t.PrizePool,
	})}, nil
}

// Cancel stops a tournament that has not started and refunds every entry fee.
func (s *TournamentService) Cancel(ctx context.Context, tournamentID, userID string, isAdmin bool) (*models.Tournament, error) {
	t, err := s.Get(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && t.CreatorID != userID {
		return nil, newError(KindForbidden, "only the creator can cancel %s", t.Name)
	}
	return s.cancel(ctx, tournamentID, "cancelled")
}

func (s *TournamentService) cancel(ctx context.Context, tournamentID, reason string) (*models.Tournament, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.Tournament
		if err := tx.Clauses(forUpdate).First(&t, "id = ?", tournamentID).Error; err != nil {
			return notFound(err, "tournament", tournamentID)
		}
		next, ok := t.Status.Next(models.TournamentEventCancel)
		if !ok {
			return invalidTransition("tournament", t.Status, models.TournamentEventCancel)
		}

		var participants []models.TournamentParticipant
		if err := tx.Where("tournament_id = ?", t.ID).Find(&participants).Error; err != nil {
			return fmt.Errorf("failed to load participants: %w", err)
		}
		for _, p := range participants {
			if p.EntryFeePaid <= 0 {
				continue
			}
			if _, err := s.Ledger.CreditTx(tx, p.UserID, p.EntryFeePaid, models.TxRefund, LedgerRef{
				Description:  fmt.Sprintf("%s %s", t.Name, reason),
				TournamentID: &t.ID,
			}); err != nil {
				return err
			}
		}

		return tx.Model(&t).Updates(map[string]interface{}{
			"status":     next,
			"prize_pool": 0,
			"ended_at":   s.Clock.now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	publishAll(ctx, s.Events, []Event{newEvent(EventTournamentCancelled, tournamentID, map[string]interface{}{"reason": reason})})
	return s.Get(ctx, tournamentID)
}

// OpenDue opens registration for every UPCOMING tournament whose opening time has passed.
func (s *TournamentService) OpenDue(ctx context.Context) (int, error) {
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.Tournament{}).
		Where("status = ? AND registration_opens_at <= ?", models.TournamentUpcoming, s.Clock.now()).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to find tournaments to open: %w", err)
	}
	opened := 0
	for _, id := range ids {
		if _, err := s.OpenRegistration(ctx, id); err != nil {
			log.Printf("[TOURNAMENT] Failed to open %s: %v", id, err)
			continue
		}
		opened++
	}
	return opened, nil
}

// StartDue starts tournaments whose start time has passed, cancelling those
// that did not attract two participants.
func (s *TournamentService) StartDue(ctx context.Context) (int, error) {
	var due []models.Tournament
	if err := s.DB.WithContext(ctx).
		Where("status = ? AND starts_at IS NOT NULL AND starts_at <= ?", models.TournamentRegistrationOpen, s.Clock.now()).
		Find(&due).Error; err != nil {
		return 0, fmt.Errorf("failed to find tournaments to start: %w", err)
	}
	started := 0
	for _, t := range due {
		var count int64
		if err := s.DB.WithContext(ctx).Model(&models.TournamentParticipant{}).
			Where("tournament_id = ?", t.ID).Count(&count).Error; err != nil {
			return started, fmt.Errorf("failed to count participants: %w", err)
		}
		if count < 2 {
			if _, err := s.cancel(ctx, t.ID, "cancelled for lack of participants"); err != nil {
				log.Printf("[TOURNAMENT] Failed to cancel %s: %v", t.ID, err)
			}
			continue
		}
		if _, err := s.start(ctx, t.ID); err != nil {
			log.Printf("[TOURNAMENT] Failed to start %s: %v", t.ID, err)
			continue
		}
		started++
	}
	return started, nil
}

// Get loads a tournament with its participant count.
func (s *TournamentService) Get(ctx context.Context, tournamentID string) (*models.Tournament, error) {
	var t models.Tournament
	db := s.DB.WithContext(ctx)
	if err := db.First(&t, "id = ?", tournamentID).Error; err != nil {
		return nil, notFound(err, "tournament", tournamentID)
	}
	if err := db.Model(&models.TournamentParticipant{}).
		Where("tournament_id = ?", t.ID).Count(&t.ParticipantCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count participants: %w", err)
	}
	return &t, nil
}

// List returns tournaments, optionally filtered by status, newest first.
func (s *TournamentService) List(ctx context.Context, status models.TournamentStatus) ([]models.Tournament, error) {
	q := s.DB.WithContext(ctx).Model(&models.Tournament{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.Tournament
	if err := q.Order("created_at DESC").Limit(maxPageSize).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	return out, nil
}

// Bracket is the full round-by-round view of a tournament.
type Bracket struct {
	Tournament   *models.Tournament             `json:"tournament"`
	Participants []models.TournamentParticipant `json:"participants"`
	Rounds       []models.TournamentRound       `json:"rounds"`
}

func (s *TournamentService) GetBracket(ctx context.Context, tournamentID string) (*Bracket, error) {
	t, err := s.Get(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	b := &Bracket{Tournament: t}
	db := s.DB.WithContext(ctx)
	if err := db.Where("tournament_id = ?", t.ID).Order("current_seed ASC, seed ASC").Find(&b.Participants).Error; err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	if err := db.Where("tournament_id = ?", t.ID).
		Preload("Matches", func(q *gorm.DB) *gorm.DB { return q.Order("slot ASC") }).
		Order("round_number ASC").Find(&b.Rounds).Error; err != nil {
		return nil, fmt.Errorf("failed to load rounds: %w", err)
	}
	return b, nil
}

func (s *TournamentService) rng() *rand.Rand {
	return rand.New(rand.NewSource(s.Clock.now().UnixNano()))
}
