package main // Entry point package

import (
	"log" // Logging library

	"github.com/joho/godotenv"    // Loads .env files in development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/indiehoy/discount-supervision/internal/config"     // Internal config loader
	"github.com/indiehoy/discount-supervision/internal/database"   // MySQL connection helper
	"github.com/indiehoy/discount-supervision/internal/handler"    // HTTP handlers
	"github.com/indiehoy/discount-supervision/internal/mailer"     // Email templates and transport
	"github.com/indiehoy/discount-supervision/internal/matcher"    // Show matcher configuration
	"github.com/indiehoy/discount-supervision/internal/middleware" // Cache and rate limit middleware
	"github.com/indiehoy/discount-supervision/internal/queue"      // Broker consumer
	"github.com/indiehoy/discount-supervision/internal/repository" // DB repositories
	"github.com/indiehoy/discount-supervision/internal/router"     // Route registration
	"github.com/indiehoy/discount-supervision/internal/service"    // Decision engine and supervision workflow
)

func main() {
	_ = godotenv.Load() // Load .env when present; real env vars win

	cfg := config.Load() // Load environment config

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional: a nil client disables response caching and
	// rate limiting, the middleware degrades to pass-through.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; cache and rate limiting disabled")
	}

	// Repositories.
	users := repository.NewUserRepo(db)
	shows := repository.NewShowRepo(db)
	queueRepo := repository.NewQueueRepo(db)
	supervisors := repository.NewSupervisorRepo(db)
	tokens := repository.NewTokenRepo(db)

	// Services.
	renderer := mailer.NewRenderer()
	matchCfg := matcher.Config{
		MinScore:  cfg.MatchMinScore,
		HighScore: cfg.MatchHighScore,
		Band:      cfg.MatchBand,
	}
	prefilter := service.NewPrefilter(users, queueRepo, cfg.DuplicateLookback)
	engine := service.NewDecisionEngine(shows, queueRepo, prefilter, renderer, matchCfg)
	supervision := service.NewSupervisionService(shows, queueRepo, users, renderer, mailer.LogSender{})

	// Handlers.
	showHandler := handler.NewShowHandler(shows)
	discountHandler := handler.NewDiscountHandler(engine)
	supervisionHandler := handler.NewSupervisionHandler(supervision)
	authHandler := handler.NewAuthHandler(cfg, supervisors, tokens)

	e := echo.New()
	e.HideBanner = true

	// Rate limiting applies to all routes; it no-ops when Redis is
	// down. The response cache is scoped to the public show-browse
	// routes inside RegisterPublic; caching authenticated supervision
	// responses would leak reviewer data to unauthenticated callers
	// and serve stale queue state.
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	cacheMW := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	router.RegisterRoutes(e)
	router.RegisterPublic(e, showHandler, discountHandler, cacheMW)
	router.RegisterAuth(e, authHandler, cfg.JWTSecret)
	router.RegisterSupervision(e, supervisionHandler, cfg.JWTSecret)

	// Background consumer writing the broker-fed decision audit log.
	go func() {
		if err := queue.StartDecisionConsumer(); err != nil {
			log.Printf("decision consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
