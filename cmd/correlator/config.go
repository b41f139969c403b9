package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type config struct {
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	Environment string `env:"SERVICE_ENVIRONMENT" envDefault:"development"`

	InstantlyAPIKey  string `env:"INSTANTLY_API_KEY"`
	InstantlyAccount string `env:"INSTANTLY_EACCOUNT"`
	InstantlyBaseURL string `env:"INSTANTLY_BASE_URL" envDefault:"https://api.instantly.ai"`
	LinkBaseURL      string `env:"LINK_BASE_URL" envDefault:"https://l.riverlinedebtsupport.in"`

	ClickTTL      time.Duration `env:"CLICK_TTL" envDefault:"1h"`
	ResolutionTTL time.Duration `env:"RESOLUTION_TTL" envDefault:"1h"`
	PendingTTL    time.Duration `env:"PENDING_TTL" envDefault:"2m"`

	LookupLimit    int           `env:"LOOKUP_LIMIT" envDefault:"18"`
	LookupWindow   time.Duration `env:"LOOKUP_WINDOW" envDefault:"60s"`
	RetryQueueSize int           `env:"RETRY_QUEUE_SIZE" envDefault:"1000"`
	RetryBackoff   time.Duration `env:"RETRY_BACKOFF" envDefault:"5s"`
	WorkerIdle     time.Duration `env:"WORKER_IDLE" envDefault:"60s"`

	// IMPORTANTE: o burst permite uma rajada inicial; com RPS muito baixo
	// as primeiras requisições passam e parece que o limite não funciona.
	RateEnabled        bool          `env:"RATE_ENABLED" envDefault:"true"`
	RateRPS            float64       `env:"RATE_RPS" envDefault:"10"`
	RateBurst          int           `env:"RATE_BURST" envDefault:"20"`
	RateKeyHeader      string        `env:"RATE_KEY_HEADER"`
	TrustXFF           bool          `env:"TRUST_XFF" envDefault:"false"`
	RetryAfter         time.Duration `env:"RETRY_AFTER" envDefault:"1s"`
	AddHeaders         bool          `env:"ADD_RATELIMIT_HEADERS" envDefault:"false"`
	ConcurrencyMax     int           `env:"CONCURRENCY_MAX" envDefault:"100"`
	ConcurrencyTimeout time.Duration `env:"CONCURRENCY_TIMEOUT" envDefault:"0s"`

	StatsRedisAddr     string        `env:"STATS_REDIS_ADDR"`
	StatsRedisPassword string        `env:"STATS_REDIS_PASSWORD"`
	StatsRedisDB       int           `env:"STATS_REDIS_DB" envDefault:"0"`
	StatsPrefix        string        `env:"STATS_PREFIX" envDefault:"correlator:stats"`
	StatsTTL           time.Duration `env:"STATS_TTL" envDefault:"24h"`
}

func readConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c config) validate() error {
	if strings.TrimSpace(c.InstantlyAPIKey) == "" || strings.TrimSpace(c.InstantlyAccount) == "" {
		return errors.New("INSTANTLY_API_KEY and INSTANTLY_EACCOUNT are required")
	}
	if c.LookupLimit <= 0 {
		return errors.New("LOOKUP_LIMIT must be > 0")
	}
	if c.LookupWindow <= 0 {
		return errors.New("LOOKUP_WINDOW must be > 0")
	}
	if c.RetryQueueSize <= 0 {
		return errors.New("RETRY_QUEUE_SIZE must be > 0")
	}
	if c.ClickTTL <= 0 || c.ResolutionTTL <= 0 || c.PendingTTL <= 0 {
		return errors.New("CLICK_TTL, RESOLUTION_TTL and PENDING_TTL must be > 0")
	}
	if c.RateEnabled && c.RateRPS <= 0 {
		return errors.New("RATE_RPS must be > 0")
	}
	if c.RateEnabled && c.RateBurst <= 0 {
		return errors.New("RATE_BURST must be > 0")
	}
	if c.ConcurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return nil
}
