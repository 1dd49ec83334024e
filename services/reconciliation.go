package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"argufight-arena/models"

	"gorm.io/gorm"
)

// ReportArchive stores finished reconciliation reports.
type ReportArchive interface {
	Store(ctx context.Context, key string, body []byte, contentType string) error
}

// AccountCheck is the reconciliation result for one user.
type AccountCheck struct {
	UserID         string  `json:"user_id"`
	Balance        int64   `json:"balance"`
	LedgerSum      int64   `json:"ledger_sum"`
	Entries        int     `json:"entries"`
	BrokenSequence []int64 `json:"broken_sequence,omitempty"`
	BadSnapshots   []int64 `json:"bad_snapshots,omitempty"`
}

// Consistent reports whether the cached balance matches the ledger and every
// balance_after snapshot matches the running sum.
func (a AccountCheck) Consistent() bool {
	return a.Balance == a.LedgerSum && len(a.BrokenSequence) == 0 && len(a.BadSnapshots) == 0
}

type ReconciliationReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Accounts    int            `json:"accounts"`
	Mismatches  []AccountCheck `json:"mismatches"`
}

// Reconciler replays the ledger against the cached balances on users.
type Reconciler struct {
	DB      *gorm.DB
	Archive ReportArchive
	Clock   Clock
}

func NewReconciler(db *gorm.DB, archive ReportArchive) *Reconciler {
	return &Reconciler{DB: db, Archive: archive}
}

// Reconcile checks one user's ledger.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) (*AccountCheck, error) {
	db := r.DB.WithContext(ctx)
	var user models.User
	if err := db.Select("id", "coins").First(&user, "id = ?", userID).Error; err != nil {
		return nil, notFound(err, "user", userID)
	}

	var entries []models.CoinTransaction
	if err := db.Where("user_id = ?", userID).Order("sequence ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load ledger for %s: %w", userID, err)
	}

	check := &AccountCheck{UserID: userID, Balance: user.Coins, Entries: len(entries)}
	for i, e := range entries {
		check.LedgerSum += e.Amount
		if e.Sequence != int64(i+1) {
			check.BrokenSequence = append(check.BrokenSequence, e.Sequence)
		}
		if e.BalanceAfter != check.LedgerSum {
			check.BadSnapshots = append(check.BadSnapshots, e.Sequence)
		}
	}
	return check, nil
}

// ReconcileAll checks every account and archives the report when an archive is configured.
func (r *Reconciler) ReconcileAll(ctx context.Context) (*ReconciliationReport, error) {
	var ids []string
	if err := r.DB.WithContext(ctx).Model(&models.User{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	report := &ReconciliationReport{GeneratedAt: r.Clock.now(), Accounts: len(ids), Mismatches: []AccountCheck{}}
	for _, id := range ids {
		check, err := r.Reconcile(ctx, id)
		if err != nil {
			return nil, err
		}
		if !check.Consistent() {
			log.Printf("🚨 [RECONCILE] Ledger mismatch for %s: balance %d, ledger %d", id, check.Balance, check.LedgerSum)
			report.Mismatches = append(report.Mismatches, *check)
		}
	}

	if r.Archive != nil {
		body, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode report: %w", err)
		}
		key := fmt.Sprintf("reconciliation/%s.json", report.GeneratedAt.Format("2006-01-02T15-04-05Z"))
		if err := r.Archive.Store(ctx, key, body, "application/json"); err != nil {
			return report, fmt.Errorf("failed to archive report: %w", err)
		}
	}
	log.Printf("[RECONCILE] Checked %d accounts, %d mismatches", report.Accounts, len(report.Mismatches))
	return report, nil
}
