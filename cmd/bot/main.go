package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"tg_loyalty_bot/internal/access"
	"tg_loyalty_bot/internal/config"
	"tg_loyalty_bot/internal/dispatch"
	"tg_loyalty_bot/internal/domain"
	"tg_loyalty_bot/internal/feature/admin"
	"tg_loyalty_bot/internal/feature/user"
	"tg_loyalty_bot/internal/flow"
	"tg_loyalty_bot/internal/health"
	"tg_loyalty_bot/internal/logging"
	"tg_loyalty_bot/internal/metrics"
	"tg_loyalty_bot/internal/session"
	"tg_loyalty_bot/internal/store"
	"tg_loyalty_bot/internal/telegram"
)

const (
	storeConnectTimeout     = 10 * time.Second
	storeInitTimeout        = 5 * time.Second
	storeCloseTimeout       = 5 * time.Second
	adminBootstrapTimeout   = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
	healthShutdownTimeout   = 5 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":         "startup",
		"store_backend": cfg.StoreBackend,
		"state_backend": cfg.StateBackend,
	}).Info("configuration loaded")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("bot stopped with error")
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

func run(cfg config.Config, logger *logrus.Entry) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	botMetrics := metrics.New(registry)

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}

	records, err := store.New(backend, logger,
		store.WithStrict(cfg.StoreStrict),
		store.WithRecoveryHook(func(name store.Collection) {
			botMetrics.StoreRecovered(string(name))
		}),
	)
	if err != nil {
		return fmt.Errorf("record store setup: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), storeCloseTimeout)
		defer cancel()
		if err := records.Close(closeCtx); err != nil {
			logger.WithError(err).Error("record store close error")
			return
		}
		logger.WithField("event", "store_closed").Info("record store closed")
	}()

	initCtx, cancelInit := context.WithTimeout(context.Background(), storeInitTimeout)
	err = records.EnsureCollections(initCtx)
	cancelInit()
	if err != nil {
		return fmt.Errorf("record store init: %w", err)
	}

	logger.WithField("event", "store_ready").Info("record store ready")

	users := domain.NewUserRepository(records)
	promotions := domain.NewPromotionRepository(records)
	admins := domain.NewAdminRepository(records)

	adminID, err := strconv.ParseInt(cfg.BootstrapAdmin, 10, 64)
	if err != nil {
		return fmt.Errorf("parse bootstrap admin: %w", err)
	}
	adminCtx, cancelAdmin := context.WithTimeout(context.Background(), adminBootstrapTimeout)
	err = admin.NewRegistrar(admins, logger).EnsureAdmin(adminCtx, adminID)
	cancelAdmin()
	if err != nil {
		return fmt.Errorf("admin bootstrap: %w", err)
	}

	sessions, sessionChecker, closeSessions := openSessions(cfg, logger)
	defer closeSessions()

	tgClient, err := telegram.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("telegram client setup: %w", err)
	}

	policy := access.NewPolicy(users, admins)

	flows, err := flow.New(flow.Deps{
		Sessions:   sessions,
		Users:      users,
		Registrar:  user.NewRegistrar(users, logger),
		Promotions: promotions,
		Menus:      policy,
		Sender:     tgClient,
		Metrics:    botMetrics,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("flow controller setup: %w", err)
	}

	dispatcher, err := dispatch.New(dispatch.Deps{
		Sessions:   sessions,
		Flows:      flows,
		Policy:     policy,
		Users:      users,
		Promotions: promotions,
		Sender:     tgClient,
		Metrics:    botMetrics,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("dispatcher setup: %w", err)
	}
	tgClient.Route(dispatcher)

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	healthServer := health.NewServer(cfg.HTTPPort, health.Checks{
		Store:    records,
		Sessions: sessionChecker,
		Stats:    store.NewStatsProvider(records),
		Gatherer: registry,
	}, logger)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("health server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(healthCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelHealth()

	return nil
}

func openBackend(cfg config.Config) (store.Backend, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendMongo:
		ctx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
		defer cancel()
		backend, err := store.NewMongoBackend(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("mongo connection error: %w", err)
		}
		return backend, nil
	case config.StoreBackendFile:
		backend, err := store.NewFileBackend(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("data directory error: %w", err)
		}
		return backend, nil
	default:
		return nil, errors.New("unsupported store backend " + cfg.StoreBackend)
	}
}

// openSessions returns the conversation state store, its health checker (nil
// for the in-memory store) and a close func.
func openSessions(cfg config.Config, logger *logrus.Entry) (session.Store, health.Checker, func()) {
	if cfg.StateBackend != config.StateBackendRedis {
		return session.NewMemoryStore(), nil, func() {}
	}

	redisStore := session.NewRedisStore(session.NewRedisClient(cfg), cfg.StateTTL)
	logger.WithFields(logging.Fields{
		"event":      "redis_state",
		"redis_addr": cfg.RedisAddr,
	}).Info("using redis for conversation state")

	return redisStore, redisStore, func() {
		if err := redisStore.Close(); err != nil {
			logger.WithError(err).Error("redis close error")
		}
	}
}
