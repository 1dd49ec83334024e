package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"argufight-arena/models"
)

type memoryArchive struct {
	keys   []string
	bodies [][]byte
}

func (a *memoryArchive) Store(_ context.Context, key string, body []byte, _ string) error {
	a.keys = append(a.keys, key)
	a.bodies = append(a.bodies, body)
	return nil
}

func TestReconcileDetectsTamperedBalance(t *testing.T) {
	env := newTestEnv(t)
	honest := env.newUser(t, "honest", 100)
	tampered := env.newUser(t, "tampered", 100)
	env.db.Model(&models.User{}).Where("id = ?", tampered.ID).Update("coins", 1000)

	check, err := env.reconciler.Reconcile(env.ctx, tampered.ID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if check.Consistent() || check.Balance != 1000 || check.LedgerSum != 100 {
		t.Errorf("tampering not detected: %+v", check)
	}

	archive := &memoryArchive{}
	env.reconciler.Archive = archive
	report, err := env.reconciler.ReconcileAll(env.ctx)
	if err != nil {
		t.Fatalf("ReconcileAll: %v", err)
	}
	// honest, tampered and the platform account
	if report.Accounts != 3 || len(report.Mismatches) != 1 || report.Mismatches[0].UserID != tampered.ID {
		t.Errorf("report = %+v", report)
	}
	if len(archive.keys) != 1 || !strings.HasPrefix(archive.keys[0], "reconciliation/") {
		t.Fatalf("archived keys = %v", archive.keys)
	}
	var stored ReconciliationReport
	if err := json.Unmarshal(archive.bodies[0], &stored); err != nil {
		t.Fatalf("archived report is not JSON: %v", err)
	}
	if len(stored.Mismatches) != 1 {
		t.Errorf("archived %d mismatches", len(stored.Mismatches))
	}
	env.assertReconciled(t, honest.ID)
}

func TestReconcileDetectsBrokenSnapshots(t *testing.T) {
	env := newTestEnv(t)
	u := env.newUser(t, "u", 50)
	if _, err := env.ledger.Debit(env.ctx, u.ID, 20, models.TxAdminDeduct, LedgerRef{}); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	env.db.Model(&models.CoinTransaction{}).Where("user_id = ? AND sequence = ?", u.ID, 2).Update("balance_after", 40)

	check, err := env.reconciler.Reconcile(env.ctx, u.ID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if check.Consistent() || len(check.BadSnapshots) != 1 || check.BadSnapshots[0] != 2 {
		t.Errorf("bad snapshot not reported: %+v", check)
	}

	_, err = env.reconciler.Reconcile(env.ctx, "nobody")
	assertKind(t, err, ErrNotFound)
}
