// services/ledger.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"argufight-arena/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerRef links a transaction to the entity that caused it.
type LedgerRef struct {
	Description     string
	BeltID          *string
	BeltChallengeID *string
	TournamentID    *string
	DebateMatchID   *string
	ExternalRef     *string
}

// LedgerService is the only writer of User.Coins. Every balance change appends
// one CoinTransaction inside the same database transaction.
type LedgerService struct {
	DB          *gorm.DB
	Clock       Clock
	DailyReward int64
}

func NewLedgerService(db *gorm.DB, dailyReward int64) *LedgerService {
	return &LedgerService{DB: db, DailyReward: dailyReward}
}

// Credit adds amount coins to the user's balance.
func (s *LedgerService) Credit(ctx context.Context, userID string, amount int64, txType models.CoinTransactionType, ref LedgerRef) (*models.CoinTransaction, error) {
	var out *models.CoinTransaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = s.CreditTx(tx, userID, amount, txType, ref)
		return err
	})
	return out, err
}

// Debit removes amount coins; fails with INSUFFICIENT_FUNDS rather than going negative.
func (s *LedgerService) Debit(ctx context.Context, userID string, amount int64, txType models.CoinTransactionType, ref LedgerRef) (*models.CoinTransaction, error) {
	var out *models.CoinTransaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = s.DebitTx(tx, userID, amount, txType, ref)
		return err
	})
	return out, err
}

// CreditTx is Credit inside the caller's transaction.
func (s *LedgerService) CreditTx(tx *gorm.DB, userID string, amount int64, txType models.CoinTransactionType, ref LedgerRef) (*models.CoinTransaction, error) {
	if amount <= 0 {
		return nil, newError(KindInvalidInput, "credit amount must be positive, got %d", amount)
	}
	return s.apply(tx, userID, amount, txType, ref)
}

// DebitTx is Debit inside the caller's transaction.
func (s *LedgerService) DebitTx(tx *gorm.DB, userID string, amount int64, txType models.CoinTransactionType, ref LedgerRef) (*models.CoinTransaction, error) {
	if amount <= 0 {
		return nil, newError(KindInvalidInput, "debit amount must be positive, got %d", amount)
	}
	return s.apply(tx, userID, -amount, txType, ref)
}

func (s *LedgerService) apply(tx *gorm.DB, userID string, delta int64, txType models.CoinTransactionType, ref LedgerRef) (*models.CoinTransaction, error) {
	if !txType.Valid() {
		return nil, newError(KindInvalidInput, "unknown transaction type %q", txType)
	}

	var user models.User
	if err := tx.Clauses(forUpdate).First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user", userID)
	}

	balance := user.Coins + delta
	if balance < 0 {
		return nil, newError(KindInsufficientFunds, "balance %d cannot cover %d", user.Coins, -delta)
	}

	var lastSeq int64
	if err := tx.Model(&models.CoinTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&lastSeq).Error; err != nil {
		return nil, fmt.Errorf("failed to read ledger sequence: %w", err)
	}

	if err := tx.Model(&models.User{}).Where("id = ?", userID).Update("coins", balance).Error; err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	entry := models.CoinTransaction{
		ID:              uuid.NewString(),
		UserID:          userID,
		Sequence:        lastSeq + 1,
		Amount:          delta,
		BalanceAfter:    balance,
		Type:            txType,
		Status:          models.TxStatusCompleted,
		Description:     ref.Description,
		BeltID:          ref.BeltID,
		BeltChallengeID: ref.BeltChallengeID,
		TournamentID:    ref.TournamentID,
		DebateMatchID:   ref.DebateMatchID,
		ExternalRef:     ref.ExternalRef,
		CreatedAt:       s.Clock.now(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to append coin transaction: %w", err)
	}
	return &entry, nil
}

// GetBalance returns the user's current coin balance.
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (int64, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Select("id", "coins").First(&user, "id = ?", userID).Error; err != nil {
		return 0, notFound(err, "user", userID)
	}
	return user.Coins, nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TransactionFilter narrows ListTransactions. Cursor is the Sequence of the last
// row already seen; zero starts from the newest entry.
type TransactionFilter struct {
	Cursor int64
	Limit  int
	Types  []models.CoinTransactionType
	Since  *time.Time
	Until  *time.Time
}

type TransactionPage struct {
	Transactions []models.CoinTransaction `json:"transactions"`
	NextCursor   int64                    `json:"next_cursor,omitempty"`
}

// ListTransactions pages through a user's ledger, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, userID string, filter TransactionFilter) (*TransactionPage, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	q := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Cursor > 0 {
		q = q.Where("sequence < ?", filter.Cursor)
	}
	if len(filter.Types) > 0 {
		q = q.Where("type IN ?", filter.Types)
	}
	if filter.Since != nil {
		q = q.Where("created_at >= ?", filter.Since.UTC())
	}
	if filter.Until != nil {
		q = q.Where("created_at < ?", filter.Until.UTC())
	}

	var rows []models.CoinTransaction
	if err := q.Order("sequence DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	page := &TransactionPage{Transactions: rows}
	if len(rows) > limit {
		page.Transactions = rows[:limit]
		page.NextCursor = rows[limit-1].Sequence
	}
	return page, nil
}

// AdminAdjust grants (amount > 0) or deducts (amount < 0) coins on an admin's behalf.
func (s *LedgerService) AdminAdjust(ctx context.Context, adminID, userID string, amount int64, reason string) (*models.CoinTransaction, error) {
	if amount == 0 {
		return nil, newError(KindInvalidInput, "adjustment amount must not be zero")
	}
	ref := LedgerRef{Description: fmt.Sprintf("admin %s: %s", adminID, reason)}

	var (
		entry *models.CoinTransaction
		err   error
	)
	if amount > 0 {
		entry, err = s.Credit(ctx, userID, amount, models.TxAdminGrant, ref)
	} else {
		entry, err = s.Debit(ctx, userID, -amount, models.TxAdminDeduct, ref)
	}
	if err != nil {
		return nil, err
	}
	log.Printf("[LEDGER] Admin %s adjusted %s by %d (balance %d): %s", adminID, userID, amount, entry.BalanceAfter, reason)
	return entry, nil
}

// ClaimDailyReward credits the configured daily reward once per UTC day.
func (s *LedgerService) ClaimDailyReward(ctx context.Context, userID string) (*models.CoinTransaction, error) {
	if s.DailyReward <= 0 {
		return nil, newError(KindInvalidInput, "daily rewards are disabled")
	}
	now := s.Clock.now()
	key := fmt.Sprintf("daily:%s:%s", userID, now.Format("2006-01-02"))

	var entry *models.CoinTransaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.CoinTransaction
		err := tx.Where("external_ref = ?", key).First(&existing).Error
		if err == nil {
			return newError(KindAlreadyClaimed, "daily reward already claimed today")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check daily reward: %w", err)
		}

		entry, err = s.CreditTx(tx, userID, s.DailyReward, models.TxDailyReward, LedgerRef{
			Description: "daily login reward",
			ExternalRef: &key,
		})
		if err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).Update("last_daily_reward_at", now).Error
	})
	return entry, err
}

// CreditPurchase credits coins bought through the payment provider. Replaying the
// same payment id returns the original transaction.
func (s *LedgerService) CreditPurchase(ctx context.Context, userID, paymentID string, coins int64) (*models.CoinTransaction, bool, error) {
	if paymentID == "" {
		return nil, false, newError(KindInvalidInput, "payment id is required")
	}
	key := "purchase:" + paymentID

	var (
		entry   *models.CoinTransaction
		created bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.CoinTransaction
		err := tx.Where("external_ref = ?", key).First(&existing).Error
		if err == nil {
			entry = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check purchase %s: %w", paymentID, err)
		}

		entry, err = s.CreditTx(tx, userID, coins, models.TxCoinPurchase, LedgerRef{
			Description: "coin purchase",
			ExternalRef: &key,
		})
		created = err == nil
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return entry, created, nil
}
