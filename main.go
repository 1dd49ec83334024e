package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"argufight-arena/config"
	"argufight-arena/handlers"
	"argufight-arena/middleware"
	"argufight-arena/models"
	"argufight-arena/rating"
	"argufight-arena/services"
	"argufight-arena/utils"
	"argufight-arena/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

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
		log.Fatal("failed to migrate database:", err)
	}

	if err := services.EnsurePlatformAccount(ctx, db, cfg.PlatformAccountID); err != nil {
		log.Fatal("failed to ensure platform account:", err)
	}

	// Redis is optional: without it events are dropped and appeals are unlimited.
	var events services.EventPublisher = services.NoopPublisher{}
	var quota services.AppealQuota = services.UnlimitedAppeals{}
	if cfg.RedisAddr != "" {
		rdb, err := utils.InitRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal("failed to connect to redis:", err)
		}
		defer rdb.Close()
		events = utils.NewStreamPublisher(rdb, cfg.EventStream)
		quota = utils.NewRedisAppealQuota(rdb, cfg.Economy.MonthlyAppeals)
	} else {
		log.Println("⚠️  REDIS_ADDR not set, domain events are not published")
	}

	var archive services.ReportArchive
	if cfg.R2Bucket != "" {
		r2, err := utils.InitR2(ctx, cfg.R2AccountID, cfg.R2AccessKey, cfg.R2AccessSecret, cfg.R2Bucket)
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		archive = r2
	}

	economy := cfg.Economy
	ledger := services.NewLedgerService(db, economy.DailyReward)
	debates := services.NewDebateService(db, economy.Debate, events)
	debates.Quota = quota
	belts := services.NewBeltService(db, ledger, debates, economy.Belts, cfg.PlatformAccountID, events)
	tournaments := services.NewTournamentService(db, ledger, debates, economy.Tournaments, events)
	elo := rating.New(&rating.Config{KFactor: economy.Elo.KFactor, MinRating: economy.Elo.MinRating})
	settlement := services.NewSettlementService(db, elo, belts, tournaments, events)
	settlement.Quota = quota
	reconciler := services.NewReconciler(db, archive)
	profiles := services.NewProfileService(db)

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken))

	allowedOrigins := strings.Join(cfg.AllowedOriginsList(), ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupRoutes(app, handlers.Handlers{
		Debates:     &handlers.DebateHandler{Debates: debates, Settlement: settlement},
		Belts:       &handlers.BeltHandler{Belts: belts},
		Tournaments: &handlers.TournamentHandler{Tournaments: tournaments},
		Ledger:      &handlers.LedgerHandler{Ledger: ledger, Reconciler: reconciler},
		Profiles:    &handlers.ProfileHandler{Profiles: profiles},
	})

	if cfg.SyncServiceURL != "" {
		workers.NewProfileSyncWorker(db, cfg.SyncServiceURL, "/api/v1/public/profiles", cfg.ServiceToken).Start(ctx)
	} else {
		log.Println("⚠️  SYNC_SERVICE_URL not set, profile sync disabled")
	}
	if cfg.PaymentServiceURL != "" {
		go workers.PollPurchases(ctx, workers.NewPurchaseSyncClient(cfg.PaymentServiceURL, cfg.ServiceToken, ledger), 10*time.Second)
	} else {
		log.Println("⚠️  PAYMENT_SERVICE_URL not set, purchase sync disabled")
	}

	sweeper := &services.Sweeper{Belts: belts, Settlement: settlement, Tournaments: tournaments, Reconciler: reconciler}
	sched, err := sweeper.Start(ctx)
	if err != nil {
		log.Fatal("failed to start scheduler:", err)
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := sched.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
