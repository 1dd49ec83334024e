package services

import (
	"sync"
	"testing"
	"time"

	"argufight-arena/models"
)

func TestCreditAndDebitAppendSequencedEntries(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "alice", 0)

	if _, err := env.ledger.Credit(env.ctx, u.ID, 100, models.TxAdminGrant, LedgerRef{}); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	entry, err := env.ledger.Debit(env.ctx, u.ID, 30, models.TxBeltChallengeEntry, LedgerRef{Description: "entry"})
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if entry.Amount != -30 || entry.BalanceAfter != 70 || entry.Sequence != 2 {
		t.Errorf("unexpected debit entry: amount=%d balance_after=%d seq=%d", entry.Amount, entry.BalanceAfter, entry.Sequence)
	}
	if got := env.balance(t, u.ID); got != 70 {
		t.Errorf("balance = %d, want 70", got)
	}
	env.assertReconciled(t, u.ID)
}

func TestDebitNeverOverdraws(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "bob", 50)

	_, err := env.ledger.Debit(env.ctx, u.ID, 80, models.TxTournamentEntry, LedgerRef{})
	assertKind(t, err, ErrInsufficientFunds)

	if got := env.balance(t, u.ID); got != 50 {
		t.Errorf("balance = %d, want 50", got)
	}
	var count int64
	env.db.Model(&models.CoinTransaction{}).Where("user_id = ?", u.ID).Count(&count)
	if count != 1 {
		t.Errorf("expected only the funding entry, got %d entries", count)
	}
}

func TestCreditRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "carol", 0)

	_, err := env.ledger.Credit(env.ctx, u.ID, 0, models.TxAdminGrant, LedgerRef{})
	assertKind(t, err, ErrInvalidInput)

	_, err = env.ledger.Credit(env.ctx, u.ID, 10, models.CoinTransactionType("GIFT"), LedgerRef{})
	assertKind(t, err, ErrInvalidInput)

	_, err = env.ledger.Credit(env.ctx, "missing", 10, models.TxAdminGrant, LedgerRef{})
	assertKind(t, err, ErrNotFound)
}

func TestConcurrentDebits(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "dave", 100)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, refused := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.ledger.Debit(env.ctx, u.ID, 30, models.TxTournamentEntry, LedgerRef{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if kind, _ := KindOf(err); kind == KindInsufficientFunds {
				refused++
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 3 || refused != 7 {
		t.Errorf("succeeded=%d refused=%d, want 3 and 7", succeeded, refused)
	}
	if got := env.balance(t, u.ID); got != 10 {
		t.Errorf("balance = %d, want 10", got)
	}
	env.assertReconciled(t, u.ID)
}

func TestListTransactionsPagesNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "erin", 0)
	for i := 0; i < 4; i++ {
		env.clock.Advance(time.Minute)
		if _, err := env.ledger.Credit(env.ctx, u.ID, 10, models.TxDailyReward, LedgerRef{}); err != nil {
			t.Fatalf("Credit: %v", err)
		}
	}
	if _, err := env.ledger.Debit(env.ctx, u.ID, 5, models.TxAdminDeduct, LedgerRef{}); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	page, err := env.ledger.ListTransactions(env.ctx, u.ID, TransactionFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(page.Transactions) != 2 || page.Transactions[0].Sequence != 5 || page.NextCursor != 4 {
		t.Fatalf("unexpected first page: %d rows, next %d", len(page.Transactions), page.NextCursor)
	}

	var seqs []int64
	cursor := page.NextCursor
	for cursor != 0 {
		page, err = env.ledger.ListTransactions(env.ctx, u.ID, TransactionFilter{Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatalf("ListTransactions: %v", err)
		}
		for _, tx := range page.Transactions {
			seqs = append(seqs, tx.Sequence)
		}
		cursor = page.NextCursor
	}
	if len(seqs) != 3 || seqs[0] != 3 || seqs[2] != 1 {
		t.Errorf("remaining sequences = %v, want [3 2 1]", seqs)
	}

	page, err = env.ledger.ListTransactions(env.ctx, u.ID, TransactionFilter{Types: []models.CoinTransactionType{models.TxAdminDeduct}})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(page.Transactions) != 1 || page.Transactions[0].Amount != -5 {
		t.Errorf("type filter returned %+v", page.Transactions)
	}
}

func TestClaimDailyRewardOncePerDay(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "frank", 0)

	if _, err := env.ledger.ClaimDailyReward(env.ctx, u.ID); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := env.ledger.ClaimDailyReward(env.ctx, u.ID)
	assertKind(t, err, ErrAlreadyClaimed)
	if !IsBenign(err) {
		t.Error("a repeated claim should be benign")
	}

	env.clock.Advance(24 * time.Hour)
	if _, err := env.ledger.ClaimDailyReward(env.ctx, u.ID); err != nil {
		t.Fatalf("next day claim: %v", err)
	}
	if got := env.balance(t, u.ID); got != 2*env.economy.DailyReward {
		t.Errorf("balance = %d, want %d", got, 2*env.economy.DailyReward)
	}
	if env.reload(t, u.ID).LastDailyRewardAt == nil {
		t.Error("last_daily_reward_at was not recorded")
	}
}

func TestCreditPurchaseIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "gina", 0)

	first, created, err := env.ledger.CreditPurchase(env.ctx, u.ID, "pay_123", 500)
	if err != nil || !created {
		t.Fatalf("first purchase: created=%v err=%v", created, err)
	}
	again, created, err := env.ledger.CreditPurchase(env.ctx, u.ID, "pay_123", 500)
	if err != nil {
		t.Fatalf("replayed purchase: %v", err)
	}
	if created || again.ID != first.ID {
		t.Errorf("replay should return the original entry")
	}
	if got := env.balance(t, u.ID); got != 500 {
		t.Errorf("balance = %d, want 500", got)
	}
}

func TestAdminAdjust(t *testing.T) {
	env := newTestEnv(t)
	admin := env.newUser(t, "admin", 0)
	u := env.newUser(t, "hank", 100)

	entry, err := env.ledger.AdminAdjust(env.ctx, admin.ID, u.ID, -40, "chargeback")
	if err != nil {
		t.Fatalf("AdminAdjust: %v", err)
	}
	if entry.Type != models.TxAdminDeduct || entry.BalanceAfter != 60 {
		t.Errorf("unexpected entry %s balance_after=%d", entry.Type, entry.BalanceAfter)
	}

	_, err = env.ledger.AdminAdjust(env.ctx, admin.ID, u.ID, 0, "nothing")
	assertKind(t, err, ErrInvalidInput)

	_, err = env.ledger.AdminAdjust(env.ctx, admin.ID, u.ID, -1000, "too much")
	assertKind(t, err, ErrInsufficientFunds)
}
