package handlers

import (
	"argufight-arena/middleware"

	"github.com/gofiber/fiber/v2"
)

// Handlers bundles every route group.
type Handlers struct {
	Debates     *DebateHandler
	Belts       *BeltHandler
	Tournaments *TournamentHandler
	Ledger      *LedgerHandler
	Profiles    *ProfileHandler
}

// SetupRoutes mounts user routes under /s, admin routes under /s/admin and
// collaborator routes (judging oracle, external scheduler) under /internal.
// Gateway auth is applied globally by the caller.
func SetupRoutes(app *fiber.App, h Handlers) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 🔓 Public reads
	app.Get("/tournaments", h.Tournaments.List)
	app.Get("/tournaments/:id", h.Tournaments.Bracket)
	app.Get("/belts/:id", h.Belts.Get)
	app.Get("/leaderboard", h.Profiles.Leaderboard)
	app.Get("/debates/:id", h.Debates.Get)

	// 🔐 User routes
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Get("/me", h.Profiles.Me)
	secured.Get("/users/search", h.Profiles.Search)
	secured.Get("/users/:id", h.Profiles.Get)

	secured.Post("/debates", h.Debates.Create)
	secured.Get("/debates/:id", h.Debates.Get)
	secured.Post("/debates/:id/accept", h.Debates.Accept)
	secured.Post("/debates/:id/decline", h.Debates.Decline)
	secured.Post("/debates/:id/withdraw", h.Debates.Withdraw)
	secured.Post("/debates/:id/statements", h.Debates.SubmitStatement)
	secured.Post("/debates/:id/appeal", h.Debates.Appeal)

	secured.Post("/belts/:id/challenges", h.Belts.CreateChallenge)
	secured.Post("/challenges/:id/respond", h.Belts.RespondToChallenge)
	secured.Get("/challenges", h.Belts.ListMyChallenges)

	secured.Post("/tournaments", h.Tournaments.Create)
	secured.Post("/tournaments/:id/register", h.Tournaments.Register)
	secured.Delete("/tournaments/:id/register", h.Tournaments.Unregister)
	secured.Post("/tournaments/:id/start", h.Tournaments.Start)
	secured.Post("/tournaments/:id/cancel", h.Tournaments.Cancel)

	secured.Get("/wallet", h.Ledger.Balance)
	secured.Get("/wallet/transactions", h.Ledger.Transactions)
	secured.Post("/wallet/daily-reward", h.Ledger.ClaimDailyReward)

	// 🔒 Admin-only routes
	admin := secured.Group("/admin", middleware.RequireRole("admin"))
	admin.Post("/belts", h.Belts.CreateBelt)
	admin.Post("/belts/:id/claim", h.Belts.ClaimVacant)
	admin.Post("/wallet/adjust", h.Ledger.AdminAdjust)
	admin.Get("/wallet/:user_id/reconcile", h.Ledger.Reconcile)
	admin.Post("/tournaments/:id/open", h.Tournaments.OpenRegistration)
	admin.Post("/users/:id/ban", h.Profiles.SetBanned)

	// 🤖 Collaborators
	internal := app.Group("/internal")
	internal.Post("/debates/:id/verdict", h.Debates.SettleVerdict)
	internal.Post("/debates/:id/appeal/resolve", h.Debates.ResolveAppeal)
	internal.Post("/debates/:id/forfeit", h.Debates.Forfeit)
	internal.Post("/challenges/:id/expire", h.Belts.ExpireChallenge)
}
