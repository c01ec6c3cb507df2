package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	StripeBase string
	StripeKey  string
	Currency   string
	SuccessURL string
	CancelURL  string

	CacheTTL      time.Duration
	PendingTTL    time.Duration
	SweepInterval time.Duration
	SweepWorkers  int

	BookingTZ        string
	AllowPastCheckIn bool
}

func Load() Config {
	// Local dev convenience; absent .env files are not an error.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Msg("no .env loaded")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/lahari?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisDB:     atoi("REDIS_DB", 0),
		RedisPass:   env("REDIS_PASSWORD", ""),

		StripeBase: env("STRIPE_BASE_URL", "https://api.stripe.com"),
		StripeKey:  env("STRIPE_SECRET_KEY", ""),
		Currency:   env("CURRENCY", "usd"),
		SuccessURL: env("CHECKOUT_SUCCESS_URL", "http://localhost:3000/booking-success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  env("CHECKOUT_CANCEL_URL", "http://localhost:3000/booking-cancelled"),

		CacheTTL:      time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,
		PendingTTL:    time.Duration(atoi("PENDING_TTL_MINUTES", 30)) * time.Minute,
		SweepInterval: time.Duration(atoi("SWEEP_INTERVAL_MINUTES", 10)) * time.Minute,
		SweepWorkers:  atoi("SWEEP_WORKERS", 4),

		BookingTZ:        env("BOOKING_TZ", "UTC"),
		AllowPastCheckIn: os.Getenv("ALLOW_PAST_CHECKIN") == "true",
	}
	if c.StripeKey == "" {
		log.Warn().Msg("STRIPE_SECRET_KEY is empty")
	}
	return c
}

// Location resolves BOOKING_TZ, falling back to UTC on a bad name so a
// misconfigured zone degrades loudly instead of crashing the process.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.BookingTZ)
	if err != nil {
		log.Error().Err(err).Str("tz", c.BookingTZ).Msg("invalid BOOKING_TZ, using UTC")
		return time.UTC
	}
	return loc
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
