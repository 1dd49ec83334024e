// models/coin_transaction.go
package models

import "time"

type CoinTransactionType string

const (
	TxBeltChallengeEntry       CoinTransactionType = "BELT_CHALLENGE_ENTRY"
	TxBeltChallengeReward      CoinTransactionType = "BELT_CHALLENGE_REWARD"
	TxBeltChallengeConsolation CoinTransactionType = "BELT_CHALLENGE_CONSOLATION"
	TxTournamentEntry          CoinTransactionType = "TOURNAMENT_ENTRY"
	TxTournamentReward         CoinTransactionType = "TOURNAMENT_REWARD"
	TxAdminGrant               CoinTransactionType = "ADMIN_GRANT"
	TxAdminDeduct              CoinTransactionType = "ADMIN_DEDUCT"
	TxRefund                   CoinTransactionType = "REFUND"
	TxPlatformFee              CoinTransactionType = "PLATFORM_FEE"
	TxCoinPurchase             CoinTransactionType = "COIN_PURCHASE"
	TxDailyReward              CoinTransactionType = "DAILY_REWARD"
)

// Valid reports whether t is one of the known transaction types.
func (t CoinTransactionType) Valid() bool {
	switch t {
	case TxBeltChallengeEntry, TxBeltChallengeReward, TxBeltChallengeConsolation,
		TxTournamentEntry, TxTournamentReward, TxAdminGrant, TxAdminDeduct,
		TxRefund, TxPlatformFee, TxCoinPurchase, TxDailyReward:
		return true
	}
	return false
}

type CoinTransactionStatus string

const (
	TxStatusCompleted CoinTransactionStatus = "COMPLETED"
)

// CoinTransaction is one append-only ledger row. BalanceAfter equals the running
// sum of Amount over the user's rows ordered by Sequence.
type CoinTransaction struct {
	ID           string                `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string                `gorm:"type:uuid;not null;uniqueIndex:idx_coin_tx_user_seq,priority:1" json:"user_id"`
	Sequence     int64                 `gorm:"not null;uniqueIndex:idx_coin_tx_user_seq,priority:2" json:"sequence"`
	Amount       int64                 `gorm:"not null" json:"amount"`
	BalanceAfter int64                 `gorm:"not null" json:"balance_after"`
	Type         CoinTransactionType   `gorm:"type:varchar(32);not null;index" json:"type"`
	Status       CoinTransactionStatus `gorm:"type:varchar(16);not null;default:'COMPLETED'" json:"status"`
	Description  string                `json:"description,omitempty"`

	BeltID          *string `gorm:"type:uuid;index" json:"belt_id,omitempty"`
	BeltChallengeID *string `gorm:"type:uuid;index" json:"belt_challenge_id,omitempty"`
	TournamentID    *string `gorm:"type:uuid;index" json:"tournament_id,omitempty"`
	DebateMatchID   *string `gorm:"type:uuid;index" json:"debate_match_id,omitempty"`

	// ExternalRef deduplicates credits that originate outside the core (payments, daily rewards).
	ExternalRef *string `gorm:"uniqueIndex" json:"external_ref,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
