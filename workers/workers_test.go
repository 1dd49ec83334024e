package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"argufight-arena/models"
	"argufight-arena/services"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&models.User{}, &models.CoinTransaction{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestProfileSyncUpsertsWithoutTouchingBalances(t *testing.T) {
	db := newTestDB(t)
	const aliceID = "11111111-1111-1111-1111-111111111111"
	const bobID = "22222222-2222-2222-2222-222222222222"
	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	batch := []RemoteProfile{
		{ID: aliceID, Username: "alice", AccountStatus: "active", UpdatedAt: t0},
		{ID: bobID, Username: "bob", AccountStatus: "suspended", UpdatedAt: t0.Add(time.Minute)},
	}
	var gotToken, gotSince string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Service-Token")
		gotSince = r.URL.Query().Get("since")
		_ = json.NewEncoder(w).Encode(profileChangesResponse{Users: batch})
	}))
	defer srv.Close()

	w := NewProfileSyncWorker(db, srv.URL, "/api/v1/public/profiles", "svc-token")
	next, err := w.SyncOnce(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if gotToken != "svc-token" || gotSince != "0001-01-01T00:00:00Z" {
		t.Errorf("request token %q since %q", gotToken, gotSince)
	}
	if !next.Equal(t0.Add(time.Minute)) {
		t.Errorf("cursor = %v, want %v", next, t0.Add(time.Minute))
	}

	var bob models.User
	if err := db.First(&bob, "id = ?", bobID).Error; err != nil {
		t.Fatalf("bob was not created: %v", err)
	}
	if !bob.IsBanned || bob.EloRating != models.DefaultEloRating {
		t.Errorf("bob = banned %v elo %d", bob.IsBanned, bob.EloRating)
	}

	db.Model(&models.User{}).Where("id = ?", aliceID).Updates(map[string]interface{}{"coins": 70, "elo_rating": 1333})
	batch = []RemoteProfile{{ID: aliceID, Username: "alice_renamed", AccountStatus: "active", UpdatedAt: t0.Add(time.Hour)}}
	if _, err := w.SyncOnce(context.Background(), next); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	var alice models.User
	db.First(&alice, "id = ?", aliceID)
	if alice.Username != "alice_renamed" || alice.Coins != 70 || alice.EloRating != 1333 {
		t.Errorf("alice = %s coins %d elo %d", alice.Username, alice.Coins, alice.EloRating)
	}
}

func TestProfileSyncKeepsCursorOnFailure(t *testing.T) {
	db := newTestDB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	since := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	next, err := NewProfileSyncWorker(db, srv.URL, "/profiles", "t").SyncOnce(context.Background(), since)
	if err == nil {
		t.Fatal("expected an error for a 502 response")
	}
	if !next.Equal(since) {
		t.Errorf("cursor moved to %v", next)
	}
}

func TestPurchaseSyncCreditsOnce(t *testing.T) {
	db := newTestDB(t)
	const userID = "33333333-3333-3333-3333-333333333333"
	if err := db.Create(&models.User{ID: userID, Username: "payer", EloRating: models.DefaultEloRating}).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	ledger := services.NewLedgerService(db, 10)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/public/coin-purchases" || r.URL.Query().Get("status") != "completed" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"purchases": []Purchase{
			{PaymentID: "pay_1", UserID: userID, Coins: 500, Status: "completed"},
			{PaymentID: "pay_2", UserID: userID, Coins: 900, Status: "refunded"},
		}})
	}))
	defer srv.Close()

	client := NewPurchaseSyncClient(srv.URL, "svc-token", ledger)
	ctx := context.Background()
	purchases, err := client.GetCompletedPurchases(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetCompletedPurchases: %v", err)
	}
	if len(purchases) != 2 {
		t.Fatalf("got %d purchases", len(purchases))
	}

	for i, want := range []int{1, 0} {
		n, err := client.Credit(ctx, purchases)
		if err != nil {
			t.Fatalf("Credit pass %d: %v", i, err)
		}
		if n != want {
			t.Errorf("pass %d credited %d, want %d", i, n, want)
		}
	}
	balance, err := ledger.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance != 500 {
		t.Errorf("balance = %d, want 500", balance)
	}
}
