package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultEloRating is assigned to every new account.
const DefaultEloRating = 1200

// User is the local competitive profile of an account owned by the identity provider.
// Coins are only written by the ledger; rating and counters only by verdict settlement.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `gorm:"index;not null" json:"username"`

	Coins     int64 `gorm:"not null;default:0" json:"coins"`
	EloRating int   `gorm:"not null;default:1200" json:"elo_rating"`
	Wins      int   `gorm:"not null;default:0" json:"wins"`
	Losses    int   `gorm:"not null;default:0" json:"losses"`
	Ties      int   `gorm:"not null;default:0" json:"ties"`
	BeltsHeld int   `gorm:"not null;default:0" json:"belts_held"`

	LastDailyRewardAt *time.Time `json:"last_daily_reward_at,omitempty"`

	IsBanned bool `gorm:"not null;default:false" json:"is_banned"` // soft ban, accounts are never deleted

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// EloHistory records every rating change applied by settlement.
type EloHistory struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string    `gorm:"type:uuid;not null;index" json:"user_id"`
	DebateMatchID string    `gorm:"type:uuid;not null;index" json:"debate_match_id"`
	EloBefore     int       `gorm:"not null" json:"elo_before"`
	EloAfter      int       `gorm:"not null" json:"elo_after"`
	EloChange     int       `gorm:"not null" json:"elo_change"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (EloHistory) TableName() string {
	return "elo_history"
}
