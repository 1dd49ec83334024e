// services/scheduler.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Sweeper drives the time-based transitions (challenge expiry, round deadlines,
// tournament opening and start) through the same operations users call.
type Sweeper struct {
	Belts       *BeltService
	Settlement  *SettlementService
	Tournaments *TournamentService
	Reconciler  *Reconciler
}

// TickResult counts what one sweep changed.
type TickResult struct {
	ChallengesExpired  int
	MatchesForfeited   int
	TournamentsOpened  int
	TournamentsStarted int
}

// Tick runs one sweep. Every step is idempotent so overlapping ticks are harmless.
func (s *Sweeper) Tick(ctx context.Context) TickResult {
	var res TickResult
	var err error

	if res.ChallengesExpired, err = s.Belts.ExpireOverdue(ctx); err != nil {
		log.Printf("[Sweeper] Challenge expiry failed: %v", err)
	}
	if res.MatchesForfeited, err = s.Settlement.ForfeitAllOverdue(ctx); err != nil {
		log.Printf("[Sweeper] Forfeit sweep failed: %v", err)
	}
	if res.TournamentsOpened, err = s.Tournaments.OpenDue(ctx); err != nil {
		log.Printf("[Sweeper] Tournament opening failed: %v", err)
	}
	if res.TournamentsStarted, err = s.Tournaments.StartDue(ctx); err != nil {
		log.Printf("[Sweeper] Tournament start failed: %v", err)
	}
	return res
}

// Start schedules the sweep every minute and ledger reconciliation every hour.
func (s *Sweeper) Start(ctx context.Context) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			res := s.Tick(ctx)
			if res != (TickResult{}) {
				log.Printf("✅ [Sweeper] expired=%d forfeited=%d opened=%d started=%d",
					res.ChallengesExpired, res.MatchesForfeited, res.TournamentsOpened, res.TournamentsStarted)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	if s.Reconciler != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(1*time.Hour),
			gocron.NewTask(func() {
				if _, err := s.Reconciler.ReconcileAll(ctx); err != nil {
					log.Printf("[Sweeper] Reconciliation failed: %v", err)
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}

	sched.Start()
	return sched, nil
}
