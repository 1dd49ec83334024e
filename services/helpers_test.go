package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"argufight-arena/config"
	"argufight-arena/models"
	"argufight-arena/rating"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testPlatformID = "00000000-0000-0000-0000-000000000001"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	ctx         context.Context
	db          *gorm.DB
	clock       *testClock
	events      *recordingPublisher
	economy     config.Economy
	ledger      *LedgerService
	debates     *DebateService
	belts       *BeltService
	tournaments *TournamentService
	settlement  *SettlementService
	reconciler  *Reconciler
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// A single connection keeps the in-memory database alive and serialises transactions.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.User{},
		&models.EloHistory{},
		&models.CoinTransaction{},
		&models.DebateMatch{},
		&models.Statement{},
		&models.Belt{},
		&models.BeltHistory{},
		&models.BeltChallenge{},
		&models.Tournament{},
		&models.TournamentParticipant{},
		&models.TournamentRound{},
		&models.TournamentMatch{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	clock := &testClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	events := &recordingPublisher{}
	economy := config.DefaultEconomy()

	ledger := NewLedgerService(db, economy.DailyReward)
	ledger.Clock = clock.Now
	debates := NewDebateService(db, economy.Debate, events)
	debates.Clock = clock.Now
	belts := NewBeltService(db, ledger, debates, economy.Belts, testPlatformID, events)
	belts.Clock = clock.Now
	tournaments := NewTournamentService(db, ledger, debates, economy.Tournaments, events)
	tournaments.Clock = clock.Now
	elo := rating.New(&rating.Config{KFactor: economy.Elo.KFactor, MinRating: economy.Elo.MinRating})
	settlement := NewSettlementService(db, elo, belts, tournaments, events)
	settlement.Clock = clock.Now
	reconciler := NewReconciler(db, nil)
	reconciler.Clock = clock.Now

	ctx := context.Background()
	if err := EnsurePlatformAccount(ctx, db, testPlatformID); err != nil {
		t.Fatalf("failed to create platform account: %v", err)
	}

	return &testEnv{
		ctx:         ctx,
		db:          db,
		clock:       clock,
		events:      events,
		economy:     economy,
		ledger:      ledger,
		debates:     debates,
		belts:       belts,
		tournaments: tournaments,
		settlement:  settlement,
		reconciler:  reconciler,
	}
}

// newUser creates an account and funds it through the ledger so balances reconcile.
func (e *testEnv) newUser(t *testing.T, name string, coins int64) *models.User {
	t.Helper()
	u := &models.User{ID: uuid.NewString(), Username: name, EloRating: models.DefaultEloRating}
	if err := e.db.Create(u).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
	if coins > 0 {
		if _, err := e.ledger.Credit(e.ctx, u.ID, coins, models.TxAdminGrant, LedgerRef{Description: "test funds"}); err != nil {
			t.Fatalf("failed to fund %s: %v", name, err)
		}
	}
	return e.reload(t, u.ID)
}

func (e *testEnv) reload(t *testing.T, userID string) *models.User {
	t.Helper()
	var u models.User
	if err := e.db.First(&u, "id = ?", userID).Error; err != nil {
		t.Fatalf("failed to reload user %s: %v", userID, err)
	}
	return &u
}

func (e *testEnv) balance(t *testing.T, userID string) int64 {
	t.Helper()
	b, err := e.ledger.GetBalance(e.ctx, userID)
	if err != nil {
		t.Fatalf("GetBalance(%s): %v", userID, err)
	}
	return b
}

func (e *testEnv) match(t *testing.T, matchID string) *models.DebateMatch {
	t.Helper()
	m, err := e.debates.Get(e.ctx, matchID)
	if err != nil {
		t.Fatalf("Get(%s): %v", matchID, err)
	}
	return m
}

// startMatch creates an open match by challenger and has opponent accept it.
func (e *testEnv) startMatch(t *testing.T, challenger, opponent *models.User, rounds int) *models.DebateMatch {
	t.Helper()
	m, err := e.debates.Create(e.ctx, CreateMatchParams{
		ChallengerID: challenger.ID,
		Topic:        "Cities should ban cars",
		TotalRounds:  rounds,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m, err = e.debates.Accept(e.ctx, m.ID, opponent.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	return m
}

// playOut submits a statement for both sides in every remaining round.
func (e *testEnv) playOut(t *testing.T, matchID string) *models.DebateMatch {
	t.Helper()
	m := e.match(t, matchID)
	for m.Status == models.MatchActive {
		round := m.CurrentRound
		for _, author := range []string{m.ChallengerID, *m.OpponentID} {
			if _, err := e.debates.SubmitStatement(e.ctx, m.ID, author, round, "argument for round"); err != nil {
				t.Fatalf("SubmitStatement(round %d): %v", round, err)
			}
		}
		m = e.match(t, matchID)
	}
	if m.Status != models.MatchCompleted {
		t.Fatalf("match %s ended as %s, want COMPLETED", matchID, m.Status)
	}
	return m
}

func (e *testEnv) assertReconciled(t *testing.T, userIDs ...string) {
	t.Helper()
	for _, id := range userIDs {
		check, err := e.reconciler.Reconcile(e.ctx, id)
		if err != nil {
			t.Fatalf("Reconcile(%s): %v", id, err)
		}
		if !check.Consistent() {
			t.Errorf("ledger for %s is inconsistent: %+v", id, check)
		}
	}
}

func assertKind(t *testing.T, err error, want *Error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want.Kind)
	}
	if !errors.Is(err, want) {
		t.Fatalf("expected %s, got %v", want.Kind, err)
	}
}

// recordingPublisher keeps events in memory.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Types returns the recorded event types in order.
func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
