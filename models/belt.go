package models

import "time"

type BeltType string

const (
	BeltRookie       BeltType = "ROOKIE"
	BeltCategory     BeltType = "CATEGORY"
	BeltChampionship BeltType = "CHAMPIONSHIP"
	BeltUndefeated   BeltType = "UNDEFEATED"
	BeltTournament   BeltType = "TOURNAMENT"
)

func (t BeltType) Valid() bool {
	switch t {
	case BeltRookie, BeltCategory, BeltChampionship, BeltUndefeated, BeltTournament:
		return true
	}
	return false
}

type BeltStatus string

const (
	BeltActive      BeltStatus = "ACTIVE"
	BeltInactive    BeltStatus = "INACTIVE"
	BeltVacant      BeltStatus = "VACANT"
	BeltStaked      BeltStatus = "STAKED"
	BeltGracePeriod BeltStatus = "GRACE_PERIOD"
	BeltMandatory   BeltStatus = "MANDATORY"
)

// Challengeable reports whether a new challenge may target a belt in this status.
func (s BeltStatus) Challengeable() bool {
	return s == BeltActive || s == BeltMandatory || s == BeltGracePeriod
}

type Belt struct {
	ID       string     `gorm:"primaryKey;type:uuid" json:"id"`
	Name     string     `gorm:"not null" json:"name"`
	Slug     string     `gorm:"uniqueIndex;not null" json:"slug"`
	Type     BeltType   `gorm:"type:varchar(16);not null;index" json:"type"`
	Category string     `gorm:"index" json:"category,omitempty"`
	Status   BeltStatus `gorm:"type:varchar(16);not null;index" json:"status"`

	CurrentHolderID *string    `gorm:"type:uuid;index" json:"current_holder_id,omitempty"` // nil = vacant
	AcquiredAt      *time.Time `json:"acquired_at,omitempty"`
	StakedInMatchID *string    `gorm:"type:uuid;uniqueIndex" json:"staked_in_match_id,omitempty"`

	TimesDefended      int        `gorm:"not null;default:0" json:"times_defended"`
	SuccessfulDefenses int        `gorm:"not null;default:0" json:"successful_defenses"`
	LastDefendedAt     *time.Time `json:"last_defended_at,omitempty"`

	Timestamps
}

type BeltHistoryReason string

const (
	BeltReasonChallengeWin BeltHistoryReason = "CHALLENGE_WIN"
	BeltReasonClaimed      BeltHistoryReason = "CLAIMED"
	BeltReasonVacated      BeltHistoryReason = "VACATED"
)

type BeltHistory struct {
	ID            string            `gorm:"primaryKey;type:uuid" json:"id"`
	BeltID        string            `gorm:"type:uuid;not null;index" json:"belt_id"`
	FromUserID    *string           `gorm:"type:uuid" json:"from_user_id,omitempty"`
	ToUserID      *string           `gorm:"type:uuid" json:"to_user_id,omitempty"`
	Reason        BeltHistoryReason `gorm:"type:varchar(16);not null" json:"reason"`
	DebateMatchID *string           `gorm:"type:uuid" json:"debate_match_id,omitempty"`
	DaysHeld      int               `json:"days_held"`
	DefensesWon   int               `json:"defenses_won"`
	CreatedAt     time.Time         `json:"created_at" gorm:"autoCreateTime"`
}

func (BeltHistory) TableName() string {
	return "belt_history"
}

type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "PENDING"
	ChallengeAccepted ChallengeStatus = "ACCEPTED"
	ChallengeDeclined ChallengeStatus = "DECLINED"
	ChallengeExpired  ChallengeStatus = "EXPIRED"
)

// BeltChallenge is a paid request to contest a belt. HolderID is a snapshot of
// the belt holder when the challenge was issued.
type BeltChallenge struct {
	ID                string          `gorm:"primaryKey;type:uuid" json:"id"`
	BeltID            string          `gorm:"type:uuid;not null;index" json:"belt_id"`
	ChallengerID      string          `gorm:"type:uuid;not null;index" json:"challenger_id"`
	HolderID          string          `gorm:"type:uuid;not null;index" json:"holder_id"`
	EntryFee          int64           `gorm:"not null;default:0" json:"entry_fee"`
	CoinReward        int64           `gorm:"not null;default:0" json:"coin_reward"`
	UsedFreeChallenge bool            `gorm:"not null;default:false" json:"used_free_challenge"`
	Status            ChallengeStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	DebateMatchID     *string         `gorm:"type:uuid" json:"debate_match_id,omitempty"`
	ExpiresAt         time.Time       `gorm:"not null;index" json:"expires_at"`
	RespondedAt       *time.Time      `json:"responded_at,omitempty"`

	// Debate parameters used when the holder accepts.
	Topic                string   `gorm:"not null" json:"topic"`
	Category             string   `json:"category,omitempty"`
	TotalRounds          int      `gorm:"not null" json:"total_rounds"`
	ChallengerPosition   Position `gorm:"type:varchar(8);not null" json:"challenger_position"`
	RoundDurationSeconds int64    `gorm:"not null" json:"round_duration_seconds"`

	Timestamps
}
