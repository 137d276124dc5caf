package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/citasalud/agenda/internal/config"
	"github.com/citasalud/agenda/internal/database"
	"github.com/citasalud/agenda/internal/handler"
	"github.com/citasalud/agenda/internal/middleware"
	"github.com/citasalud/agenda/internal/queue"
	"github.com/citasalud/agenda/internal/repository"
	"github.com/citasalud/agenda/internal/router"
	"github.com/citasalud/agenda/internal/scheduling"
	publisher "github.com/citasalud/agenda/internal/service"
	"github.com/citasalud/agenda/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.Env == "dev" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect failed")
	}
	defer db.Close()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Timezone).Msg("invalid clinic timezone")
	}
	var holidays []time.Time
	for _, h := range cfg.Holidays {
		d, err := time.ParseInLocation("2006-01-02", h, loc)
		if err != nil {
			log.Fatal().Str("holiday", h).Msg("invalid holiday date, want YYYY-MM-DD")
		}
		holidays = append(holidays, d)
	}
	cal := scheduling.NewClinicCalendar(loc, holidays)

	store := repository.NewStore(db)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	ledger := scheduling.NewLedger(store, log)
	planner := scheduling.NewPlanner(store, cal, rng, log)
	redist := scheduling.NewRedistributor(store, cal, log)
	assignQueue := scheduling.NewAssignmentQueue(store, ledger, cal, log)

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	events := publisher.New(cfg.RabbitURL)

	e := echo.New()
	e.HideBanner = true

	// Redis is optional: a nil client disables caching and rate
	// limiting without affecting the API.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unavailable, cache and rate limiting disabled")
	}
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	e.Use(middleware.NewRedisCache(config.LoadCacheConfig(), rdb))

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterScheduling(e, handler.NewSchedulingHandler(ledger, planner, redist, store, log), cfg.JWTSecret)
	router.RegisterDailyQueue(e, handler.NewQueueHandler(assignQueue, store, cal, events, log), cfg.JWTSecret)
	router.RegisterAppointments(e, handler.NewAppointmentHandler(ledger, store, log), cfg.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := queue.StartAssignmentConsumer(cfg.RabbitURL); err != nil {
			log.Error().Err(err).Msg("assignment consumer stopped")
		}
	}()

	sweeper := &worker.Sweeper{
		Queue:     assignQueue,
		Redist:    redist,
		Ledger:    ledger,
		Cal:       cal,
		Interval:  cfg.SweepInterval,
		BatchSize: cfg.SweepBatchSize,
		Log:       log,
	}
	go sweeper.Run(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
	if err := e.Start(addr); err != nil {
		log.Info().Err(err).Msg("server stopped")
	}
}
