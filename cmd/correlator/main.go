package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"click-reply-correlator/correlator"
	"click-reply-correlator/correlator/application"
	"click-reply-correlator/correlator/domain"
	"click-reply-correlator/correlator/infra"
	"click-reply-correlator/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "correlator",
		Short: "Click/webhook correlator that sends one threaded reply per click",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and the retry worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig()
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("listen"); v != "" {
				cfg.ListenAddr = v
			}
			if v, _ := cmd.Flags().GetString("env"); v != "" {
				cfg.Environment = v
			}
			if err := cfg.validate(); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, cfg)
		},
	}
	serveCmd.Flags().String("listen", "", "listen address (overrides LISTEN_ADDR)")
	serveCmd.Flags().String("env", "", "service environment (overrides SERVICE_ENVIRONMENT)")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	ring := logging.NewRing(logging.DefaultRingSize)
	log, err := logging.New(cfg.Environment, ring)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	stats, closeStats, err := newStatsStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStats()

	limiter := infra.NewSlidingWindow(cfg.LookupLimit, cfg.LookupWindow, infra.WithWindowLogger(log.Named("limiter")))
	queue := infra.NewRetryQueue(cfg.RetryQueueSize, log.Named("retry_queue"))
	client := infra.NewInstantlyClient(cfg.InstantlyBaseURL, cfg.InstantlyAPIKey, infra.WithClientLogger(log.Named("instantly")))

	resolutions := infra.NewTTLStore[domain.ResolveRequest, domain.Resolution](cfg.ResolutionTTL, nil)
	clicks := infra.NewTTLStore[domain.Identity, domain.ClickRecord](cfg.ClickTTL, nil)
	pending := infra.NewPendingStore(cfg.PendingTTL, nil)

	resolver := application.NewResolver(application.ResolverConfig{
		Cache:   resolutions,
		Limiter: limiter,
		Lookup:  client,
		Retries: queue,
		Backoff: cfg.RetryBackoff,
		Log:     log.Named("resolver"),
	})

	core := application.NewCorrelator(application.CorrelatorConfig{
		Clicks:         clicks,
		Pending:        pending,
		Resolver:       resolver,
		Sender:         client,
		Renderer:       infra.NewHTMLRenderer(cfg.LinkBaseURL),
		Limiter:        limiter,
		Stats:          stats,
		DefaultAccount: cfg.InstantlyAccount,
		Log:            log.Named("correlator"),
	})

	worker := application.NewWorker(application.WorkerConfig{
		Queue:     queue,
		Refresher: resolver,
		Stats:     stats,
		Idle:      cfg.WorkerIdle,
		Log:       log.Named("worker"),
	})
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = worker.Run(ctx)
	}()

	memStats, _ := stats.(*infra.MemoryStatsStore)
	router := correlator.NewRouter(correlator.RouterOptions{
		Core: core,
		Ring: ring,
		Log:  log.Named("http"),

		RedirectHosts: redirectHosts(cfg.LinkBaseURL),
		Status: func() correlator.Status {
			c, p := core.Sizes()
			st := correlator.Status{
				Clicks:          c,
				PendingWebhooks: p,
				Resolutions:     resolutions.Len(),
				LookupsInWindow: limiter.InWindow(),
				LookupLimit:     limiter.Limit(),
				RetryQueueLen:   queue.Len(),
				RetryQueueCap:   queue.Cap(),
				RetryDropped:    queue.Dropped(),
			}
			if memStats != nil {
				st.Outcomes = memStats.ByOutcome()
			}
			return st
		},
	})

	admission := correlator.AdmissionOptions{
		KeyHeader:          cfg.RateKeyHeader,
		TrustXForwardedFor: cfg.TrustXFF,
		RetryAfter:         cfg.RetryAfter,
		AcquireTimeout:     cfg.ConcurrencyTimeout,
		AddHeaders:         cfg.AddHeaders,
		Log:                log.Named("admission"),
	}
	if cfg.RateEnabled {
		limits := infra.NewClientLimits(cfg.RateRPS, cfg.RateBurst, infra.WithClientLimitsLogger(log.Named("client_limits")))
		limits.StartJanitor(ctx)
		admission.Limits = limits
	}
	if cfg.ConcurrencyMax > 0 {
		admission.Pool = infra.NewChanPool(cfg.ConcurrencyMax)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           correlator.AdmissionMiddleware(admission)(router),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	log.Info("Correlator listening",
		zap.String("address", cfg.ListenAddr),
		zap.String("environment", cfg.Environment),
		zap.Int("lookup_limit", cfg.LookupLimit),
		zap.Duration("lookup_window", cfg.LookupWindow),
		zap.Int("retry_queue_size", cfg.RetryQueueSize),
		zap.Bool("rate_enabled", cfg.RateEnabled),
		zap.Int("concurrency_max", cfg.ConcurrencyMax))

	if err := serve(ctx, srv, core.Wait, 10*time.Second, log); err != nil {
		return err
	}
	<-workerDone
	return nil
}

// serve atende até ctx encerrar e só volta depois de drenar as requisições e
// o trabalho de fundo (drain), ou de esgotar timeout.
func serve(ctx context.Context, srv *http.Server, drain func(context.Context) error, timeout time.Duration, log *zap.Logger) error {
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP server did not drain in time", zap.Error(err))
		}
		if err := drain(shutdownCtx); err != nil {
			log.Warn("Background webhook processing did not finish", zap.Error(err))
		}
		log.Info("Correlator stopped")
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	// Shutdown faz ListenAndServe voltar na hora; stats e logs só fecham
	// depois do dreno
	<-shutdownDone
	return nil
}

// redirectHosts libera /lt/ só para o host dos links de escolha.
func redirectHosts(linkBase string) []string {
	u, err := url.Parse(linkBase)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	return []string{u.Hostname()}
}

// newStatsStore usa Redis quando STATS_REDIS_ADDR existe; senão memória.
func newStatsStore(ctx context.Context, cfg config, log *zap.Logger) (domain.StatsStore, func(), error) {
	if cfg.StatsRedisAddr == "" {
		return infra.NewMemoryStatsStore(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.StatsRedisAddr,
		Password: cfg.StatsRedisPassword,
		DB:       cfg.StatsRedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	_, err := rdb.Ping(pingCtx).Result()
	cancel()
	if err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis stats ping: %w", err)
	}
	log.Info("Recording decision stats in Redis", zap.String("addr", cfg.StatsRedisAddr))

	store := infra.NewRedisStatsStore(rdb,
		infra.WithStatsPrefix(cfg.StatsPrefix),
		infra.WithStatsTTL(cfg.StatsTTL),
	)
	return store, func() { _ = rdb.Close() }, nil
}
