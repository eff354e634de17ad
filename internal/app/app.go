package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"telegram-forwarder/internal/command"
	"telegram-forwarder/internal/config"
	"telegram-forwarder/internal/db"
	"telegram-forwarder/internal/handler"
	"telegram-forwarder/internal/metrics"
	"telegram-forwarder/internal/model"
	"telegram-forwarder/internal/router"
	"telegram-forwarder/internal/rulestore"
	"telegram-forwarder/internal/scheduler"
	"telegram-forwarder/internal/storage"
	"telegram-forwarder/internal/supervisor"
	"telegram-forwarder/internal/telegram"
)

// Run initializes and starts the application
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := setupLogging(cfg.Log); err != nil {
		return err
	}

	logrus.Info("Starting Telegram Forwarder")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	store := rulestore.New(backend, rulestore.WithPublishHook(func(snap *model.Snapshot) {
		sources := 0
		for _, r := range snap.Rules {
			sources += len(r.Sources)
		}
		m.TotalRules.Set(float64(len(snap.Rules)))
		m.TotalSources.Set(float64(sources))
	}))

	if err := bootstrap(ctx, store, cfg.Storage.SeedFile, cfg.Telegram.ForwarderToken); err != nil {
		return err
	}

	opts := telegram.Options{
		PollTimeout: cfg.Telegram.PollTimeout,
		Debug:       cfg.Telegram.Debug,
	}
	controlBot, err := telegram.Connect(cfg.Telegram.ControlToken, opts)
	if err != nil {
		return fmt.Errorf("failed to start control bot: %w", err)
	}

	var sup *supervisor.Supervisor
	processor := command.NewProcessor(store,
		command.WithForwarderState(func() string { return sup.Status() }),
		command.WithCredentialHook(func() { sup.Trigger() }),
	)
	dispatcher := command.NewDispatcher(processor, cfg.Telegram.AdminID, m)
	control := telegram.NewControlBot(controlBot, dispatcher, cfg.Telegram.AdminID, cfg.Telegram.PollTimeout)
	sup = supervisor.New(store, telegram.NewRunnerFactory(store, m, opts), control, m)

	sched := scheduler.NewScheduler(cfg.Scheduler, store, sup)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return control.Run(gctx) })
	g.Go(func() error { return sup.Run(gctx) })

	if cfg.Server.Enabled {
		if cfg.Server.AdminToken == "" {
			logrus.Warn("No admin API token configured, only /health and /metrics are served")
		}
		h := handler.NewHandlers(processor, sched, prometheus.DefaultGatherer)
		srv := &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router.SetupRouter(h, cfg.Server.AdminToken),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}

		g.Go(func() error {
			logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logrus.Errorf("HTTP server shutdown error: %v", err)
			}
			return nil
		})
	}

	err = g.Wait()

	logrus.Info("Shutting down...")
	if stopErr := sched.Stop(); stopErr != nil {
		logrus.Errorf("Failed to stop scheduler: %v", stopErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logrus.Info("Telegram Forwarder stopped gracefully")
	return nil
}

func setupLogging(cfg config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logrus.SetLevel(level)

	if cfg.Format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

// openBackend builds the configured persistence backend and a function
// releasing its resources
func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		rb, err := storage.ConnectRedis(ctx, storage.RedisOptions{
			Addr:          cfg.Redis.Addr,
			Username:      cfg.Redis.Username,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			Key:           cfg.Redis.Key,
			DialTimeout:   cfg.Redis.DialTimeout,
			ReadTimeout:   cfg.Redis.ReadTimeout,
			WriteTimeout:  cfg.Redis.WriteTimeout,
			PingTimeout:   cfg.Redis.PingTimeout,
			RetryInterval: cfg.Redis.RetryInterval,
			ConnectTries:  cfg.Redis.ConnectTries,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis backend: %w", err)
		}
		return rb, func() {
			if err := rb.Close(); err != nil {
				logrus.Errorf("Failed to close redis: %v", err)
			}
		}, nil

	case config.BackendMySQL:
		dbConn, err := db.Init(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return storage.NewSQLBackend(dbConn, cfg.Storage.RecordName), func() {
			if err := db.Close(dbConn); err != nil {
				logrus.Errorf("Failed to close database: %v", err)
			}
		}, nil

	default:
		return storage.NewFileBackend(cfg.Storage.FilePath), func() {}, nil
	}
}

// bootstrap writes the initial rule set and forwarder credential on first
// start and warms the cache. A stored rule set always wins over the seed
// and the configured token.
func bootstrap(ctx context.Context, store *rulestore.Store, seedPath, forwarderToken string) error {
	seed := model.NewSnapshot()
	if seedPath != "" {
		s, err := rulestore.LoadSeed(seedPath)
		if err != nil {
			return err
		}
		seed = s
	}
	seed.Session = forwarderToken

	err := store.Bootstrap(ctx, seed)
	switch {
	case err == nil:
	case errors.Is(err, rulestore.ErrAlreadyBootstrapped):
		logrus.WithField("backend", store.Location()).Info("Using existing forwarding rules")
	case errors.Is(err, rulestore.ErrCorruptData):
		logrus.WithField("backend", store.Location()).WithError(err).
			Error("Stored forwarding rules are corrupt and were left untouched, repair them to resume forwarding")
	default:
		return fmt.Errorf("failed to bootstrap forwarding rules: %w", err)
	}

	if _, err := store.Load(ctx); err != nil {
		logrus.WithError(err).Warn("Starting with an empty rule set")
	}
	return nil
}
