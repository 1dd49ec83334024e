package models

import (
	"time"

	"gorm.io/datatypes"
)

type TournamentFormat string

const (
	FormatBracket       TournamentFormat = "BRACKET"
	FormatChampionship  TournamentFormat = "CHAMPIONSHIP"
	FormatKingOfTheHill TournamentFormat = "KING_OF_THE_HILL"
)

func (f TournamentFormat) Valid() bool {
	switch f {
	case FormatBracket, FormatChampionship, FormatKingOfTheHill:
		return true
	}
	return false
}

type TournamentStatus string

const (
	TournamentUpcoming         TournamentStatus = "UPCOMING"
	TournamentRegistrationOpen TournamentStatus = "REGISTRATION_OPEN"
	TournamentInProgress       TournamentStatus = "IN_PROGRESS"
	TournamentCompleted        TournamentStatus = "COMPLETED"
	TournamentCancelled        TournamentStatus = "CANCELLED"
)

type ReseedMethod string

const (
	ReseedEloBased       ReseedMethod = "ELO_BASED"
	ReseedTournamentWins ReseedMethod = "TOURNAMENT_WINS"
	ReseedRandom         ReseedMethod = "RANDOM"
)

func (m ReseedMethod) Valid() bool {
	switch m {
	case ReseedEloBased, ReseedTournamentWins, ReseedRandom:
		return true
	}
	return false
}

// Tournament is a single-elimination competition built from debate matches.
type Tournament struct {
	ID          string           `json:"id" gorm:"primaryKey;type:uuid"`
	Name        string           `json:"name" gorm:"not null"`
	Slug        string           `json:"slug" gorm:"uniqueIndex;not null"`
	Description string           `json:"description"`
	CreatorID   string           `json:"creator_id" gorm:"type:uuid;not null;index"`
	Format      TournamentFormat `json:"format" gorm:"type:varchar(24);not null"`
	Status      TournamentStatus `json:"status" gorm:"type:varchar(24);not null;index"`

	MaxParticipants int `json:"max_participants" gorm:"not null"`
	MinElo          int `json:"min_elo" gorm:"not null;default:0"`
	TotalRounds     int `json:"total_rounds" gorm:"not null"`
	CurrentRound    int `json:"current_round" gorm:"not null;default:0"`

	EntryFee  int64 `json:"entry_fee" gorm:"not null;default:0"`
	PrizePool int64 `json:"prize_pool" gorm:"not null;default:0"`
	// PrizeDistribution lists payout percentages by placement tier:
	// winner, runner-up, semi-finalists (split), quarter-finalists (split), ...
	PrizeDistribution datatypes.JSON `json:"prize_distribution"`

	ReseedMethod     ReseedMethod `json:"reseed_method" gorm:"type:varchar(24);not null"`
	ReseedAfterRound bool         `json:"reseed_after_round" gorm:"not null;default:false"`

	// Debate parameters for every spawned match.
	Topic                string `json:"topic" gorm:"not null"`
	DebateRounds         int    `json:"debate_rounds" gorm:"not null"`
	RoundDurationSeconds int64  `json:"round_duration_seconds" gorm:"not null"`

	RegistrationOpensAt *time.Time `json:"registration_opens_at,omitempty"`
	StartsAt            *time.Time `json:"starts_at,omitempty" gorm:"index"`
	EndedAt             *time.Time `json:"ended_at,omitempty"`
	WinnerID            *string    `json:"winner_id,omitempty" gorm:"type:uuid"`

	Timestamps

	// Calculated fields (not stored in DB)
	ParticipantCount int64 `json:"participant_count,omitempty" gorm:"-"`
}

type ParticipantStatus string

const (
	ParticipantRegistered   ParticipantStatus = "REGISTERED"
	ParticipantActive       ParticipantStatus = "ACTIVE"
	ParticipantEliminated   ParticipantStatus = "ELIMINATED"
	ParticipantDisqualified ParticipantStatus = "DISQUALIFIED"
)

type TournamentParticipant struct {
	ID                string            `json:"id" gorm:"primaryKey;type:uuid"`
	TournamentID      string            `json:"tournament_id" gorm:"type:uuid;not null;uniqueIndex:idx_tournament_user,priority:1"`
	UserID            string            `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_tournament_user,priority:2"`
	Seed              int               `json:"seed" gorm:"not null"`
	CurrentSeed       int               `json:"current_seed" gorm:"not null"`
	EloAtRegistration int               `json:"elo_at_registration" gorm:"not null"`
	Wins              int               `json:"wins" gorm:"not null;default:0"`
	Losses            int               `json:"losses" gorm:"not null;default:0"`
	CumulativeScore   int               `json:"cumulative_score" gorm:"not null;default:0"`
	Status            ParticipantStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	EliminationRound  *int              `json:"elimination_round,omitempty"`
	EntryFeePaid      int64             `json:"entry_fee_paid" gorm:"not null;default:0"`
	RegisteredAt      time.Time         `json:"registered_at" gorm:"not null"`
}

type RoundStatus string

const (
	RoundPending    RoundStatus = "PENDING"
	RoundInProgress RoundStatus = "IN_PROGRESS"
	RoundCompleted  RoundStatus = "COMPLETED"
)

type TournamentRound struct {
	ID           string      `json:"id" gorm:"primaryKey;type:uuid"`
	TournamentID string      `json:"tournament_id" gorm:"type:uuid;not null;uniqueIndex:idx_tournament_round,priority:1"`
	RoundNumber  int         `json:"round_number" gorm:"not null;uniqueIndex:idx_tournament_round,priority:2"`
	Status       RoundStatus `json:"status" gorm:"type:varchar(16);not null"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	EndedAt      *time.Time  `json:"ended_at,omitempty"`

	Matches []TournamentMatch `json:"matches,omitempty" gorm:"foreignKey:RoundID"`
}

type TournamentMatchStatus string

const (
	TournamentMatchPending    TournamentMatchStatus = "PENDING"
	TournamentMatchInProgress TournamentMatchStatus = "IN_PROGRESS"
	TournamentMatchCompleted  TournamentMatchStatus = "COMPLETED"
)

// TournamentMatch pairs two participants (or one and a bye) and owns one debate match.
type TournamentMatch struct {
	ID                  string                `json:"id" gorm:"primaryKey;type:uuid"`
	TournamentID        string                `json:"tournament_id" gorm:"type:uuid;not null;index"`
	RoundID             string                `json:"round_id" gorm:"type:uuid;not null;index"`
	RoundNumber         int                   `json:"round_number" gorm:"not null"`
	Slot                int                   `json:"slot" gorm:"not null"`
	Participant1ID      *string               `json:"participant1_id,omitempty" gorm:"type:uuid"`
	Participant2ID      *string               `json:"participant2_id,omitempty" gorm:"type:uuid"`
	IsBye               bool                  `json:"is_bye" gorm:"not null;default:false"`
	DebateMatchID       *string               `json:"debate_match_id,omitempty" gorm:"type:uuid;uniqueIndex"`
	WinnerParticipantID *string               `json:"winner_participant_id,omitempty" gorm:"type:uuid"`
	Status              TournamentMatchStatus `json:"status" gorm:"type:varchar(16);not null"`
	CompletedAt         *time.Time            `json:"completed_at,omitempty"`
}
