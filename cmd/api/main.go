package main

import (
	"database/sql"
	"net/http"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "lahari_hotel/internal/adapters/http_server"
	"lahari_hotel/internal/adapters/notify"
	"lahari_hotel/internal/adapters/observability"
	redisad "lahari_hotel/internal/adapters/redis"
	"lahari_hotel/internal/adapters/stripe"
	"lahari_hotel/internal/app"
	"lahari_hotel/internal/shared"
	mysqlrepo "lahari_hotel/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	loc := cfg.Location()
	repo := mysqlrepo.New(db, cfg.PendingTTL, loc)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	payments, err := stripe.New(cfg.StripeBase, cfg.StripeKey, 10)
	if err != nil {
		log.Fatal().Err(err).Msg("stripe client init failed")
	}
	notifier := notify.NewLogNotifier()

	avail := app.NewAvailabilityService(repo, repo, cache, cfg.CacheTTL, loc, cfg.AllowPastCheckIn)
	bookings := app.NewBookingService(repo, repo, payments, notifier, avail, app.CheckoutConfig{
		Currency:   cfg.Currency,
		SuccessURL: cfg.SuccessURL,
		CancelURL:  cfg.CancelURL,
	})
	reconcile := app.NewReconcileService(repo, payments, notifier)

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Avail:     avail,
		Bookings:  bookings,
		Reconcile: reconcile,
		Loc:       loc,
	})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
