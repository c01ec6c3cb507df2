package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"lahari_hotel/internal/adapters/notify"
	"lahari_hotel/internal/adapters/observability"
	"lahari_hotel/internal/adapters/stripe"
	"lahari_hotel/internal/app"
	"lahari_hotel/internal/shared"
	mysqlrepo "lahari_hotel/internal/storage/mysql"
)

// The sweeper expires pending bookings whose payment window lapsed. It
// is safe to run more than one instance; the status update linearizes
// in the database, so each stale booking settles exactly once.
func main() {
	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Dur("interval", cfg.SweepInterval).
		Dur("pending_ttl", cfg.PendingTTL).
		Int("workers", cfg.SweepWorkers).
		Msg("sweeper starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db, cfg.PendingTTL, cfg.Location())
	payments, err := stripe.New(cfg.StripeBase, cfg.StripeKey, 5)
	if err != nil {
		log.Fatal().Err(err).Msg("stripe client init failed")
	}
	sweep := app.NewExpiryService(repo, payments, notify.NewLogNotifier(), cfg.PendingTTL, cfg.SweepWorkers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run := func() {
		runCtx, cancel := context.WithTimeout(ctx, cfg.SweepInterval)
		defer cancel()
		n, err := sweep.Sweep(runCtx)
		if err != nil {
			log.Warn().Err(err).Msg("sweep pass failed")
			return
		}
		log.Info().Int("settled", n).Msg("sweep pass done")
	}

	run()
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sweeper stopping")
			return
		case <-ticker.C:
			run()
		}
	}
}
