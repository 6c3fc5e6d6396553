package main // Entry point package

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/fudly/marketplace-api/internal/cache"
	"github.com/fudly/marketplace-api/internal/config"
	"github.com/fudly/marketplace-api/internal/database"
	"github.com/fudly/marketplace-api/internal/handler"
	"github.com/fudly/marketplace-api/internal/middleware"
	"github.com/fudly/marketplace-api/internal/queue"
	"github.com/fudly/marketplace-api/internal/repository"
	"github.com/fudly/marketplace-api/internal/router"
	"github.com/fudly/marketplace-api/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional: without it reads hit the database and the cache /
	// rate limit middleware stay disabled.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; running without read cache and rate limiting")
	}
	dataCache := cache.New(rdb, cfg.DataCacheTTL)

	offers := repository.NewOfferRepo(db, dataCache)
	stores := repository.NewStoreRepo(db, dataCache)
	bookings := repository.NewBookingRepo(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	stats := repository.NewStatsRepo(db)

	engine := service.NewEngine(offers, bookings, stores,
		service.WithTxRunner(func(ctx context.Context, fn func(ctx context.Context) error) error {
			return repository.WithTx(ctx, db, fn)
		}),
		service.WithMaxPerReservation(uint32(cfg.MaxPerBooking)),
		service.WithTxTimeout(cfg.BookingTxTTL),
		service.WithPublisher(func(ctx context.Context, ev queue.BookingEvent) {
			// Fire and forget; a dead broker must not block bookings.
			go func() { _ = queue.PublishBookingEvent(context.Background(), cfg.AmqpURL, ev) }()
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := service.NewSweeper(offers, cfg.SweepInterval)
	go sweeper.Start(ctx)
	if n, err := sweeper.RunOnce(ctx); err != nil {
		log.Printf("startup sweep failed: %v", err)
	} else if n > 0 {
		log.Printf("startup sweep deactivated %d expired offers", n)
	}

	go func() {
		if err := queue.StartBookingConsumer(cfg.AmqpURL); err != nil {
			log.Printf("booking consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true

	var publicMW []echo.MiddlewareFunc
	if rdb != nil {
		publicMW = append(publicMW,
			middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
			middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
		)
	}

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterPublic(e, handler.NewPublicHandler(offers, stores), publicMW...)
	router.RegisterCustomer(e, handler.NewCustomerHandler(engine, bookings), cfg.JWTSecret)
	router.RegisterSeller(e, handler.NewSellerHandler(engine, stores, offers, bookings), cfg.JWTSecret)
	router.RegisterAdmin(e, handler.NewAdminHandler(stores, stats), cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	go func() {
		<-ctx.Done()
		_ = e.Shutdown(context.Background())
	}()

	if err := e.Start(addr); err != nil {
		log.Println(err)
	}
}
