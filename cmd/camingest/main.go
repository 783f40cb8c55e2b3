// Command camingest runs the camera ingestion service: an FTP server that
// accepts camera uploads, a durable queue, and a worker pool that runs each
// upload through detection and alerting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyberinferno/camingest/armed"
	"github.com/cyberinferno/camingest/config"
	"github.com/cyberinferno/camingest/ftpserver"
	"github.com/cyberinferno/camingest/logger"
	"github.com/cyberinferno/camingest/notify"
	"github.com/cyberinferno/camingest/pipeline"
	"github.com/cyberinferno/camingest/queue"
	"github.com/cyberinferno/camingest/session"
	"github.com/cyberinferno/camingest/tenant"
	"github.com/cyberinferno/camingest/worker"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const serviceName = "camingest"

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the YAML or JSON configuration file")
	pflag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log, err := logger.New(logger.Options{
		Service:       serviceName,
		Level:         level,
		Dir:           cfg.Log.Dir,
		RetentionDays: cfg.Log.RetentionDays,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Close() }()

	tenants, err := cfg.Directory()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := newNotifier(cfg, log)

	store, closeStore, err := newArmedStore(ctx, cfg, tenants.All(), log)
	if err != nil {
		return err
	}
	defer closeStore()

	var detector pipeline.Detector = pipeline.NopDetector{}
	if cfg.Detector.URL != "" {
		detector = pipeline.NewHTTPDetector(cfg.Detector.URL, cfg.Detector.Timeout)
	} else {
		log.Warn("detector.url not set, images will never produce detections")
	}

	qstore, err := queue.OpenStore(cfg.Queue.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = qstore.Close() }()
	q := queue.New(cfg.Queue.MemoryCapacity, qstore, log)

	srv := ftpserver.New(ftpserver.Options{
		Addr:              cfg.Server.Addr(),
		Root:              cfg.Storage.Root,
		PublicHost:        cfg.Server.PublicHost,
		PassivePortStart:  cfg.Server.PassivePortStart,
		PassivePortEnd:    cfg.Server.PassivePortEnd,
		DataAcceptTimeout: cfg.Server.DataAcceptTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		Welcome:           cfg.Server.Welcome,
	}, tenants, session.NewManager(), q, log)

	if err := srv.PrepareDirectories(); err != nil {
		return err
	}
	if cfg.Storage.PositiveDir != "" {
		if err := os.MkdirAll(cfg.Storage.PositiveDir, 0755); err != nil {
			return fmt.Errorf("create positive photo directory: %w", err)
		}
		log.Info("positive photos are archived", logger.Field{Key: "dir", Value: cfg.Storage.PositiveDir})
	}

	recovered, err := pipeline.SweepLeftovers(ctx, cfg.Storage.Root, tenants.All(), cfg.Storage.LeftoverExtensions, q, log)
	if err != nil {
		log.Error("leftover sweep failed", logger.Field{Key: "error", Value: err})
	}
	log.Info("leftover sweep done",
		logger.Field{Key: "recovered", Value: recovered},
		logger.Field{Key: "queue_size", Value: q.Size(ctx)})

	processor := pipeline.NewProcessor(cfg.Storage.Root, store, detector, notifier, nil, log).
		WithArchive(cfg.Storage.PositiveDir)
	pool := worker.NewPool(q, processor.Process, worker.Options{
		Size:               cfg.Workers.Count,
		SupervisorInterval: cfg.Workers.SupervisorInterval,
		IdleWait:           cfg.Workers.IdleWait,
	}, log)
	pool.Start()

	if err := srv.Start(); err != nil {
		pool.Stop(cfg.Workers.ShutdownGrace)
		return fmt.Errorf("start ftp server: %w", err)
	}
	log.Info("ftp server listening",
		logger.Field{Key: "addr", Value: srv.Addr().String()},
		logger.Field{Key: "tenants", Value: tenants.Len()},
		logger.Field{Key: "workers", Value: cfg.Workers.Count})

	autoArmer := armed.NewAutoArmer(store, notifier, tenants.All(), nil, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q.RunSizeReporter(gctx, cfg.Queue.SizeLogInterval)
		return nil
	})
	g.Go(func() error {
		autoArmer.Run(gctx, cfg.Armed.AutoArmInterval)
		return nil
	})
	_ = g.Wait()

	log.Info("shutting down")
	srv.Stop()
	if !pool.Stop(cfg.Workers.ShutdownGrace) {
		log.Warn("workers did not stop within grace period",
			logger.Field{Key: "grace", Value: cfg.Workers.ShutdownGrace.String()})
	}

	sizeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	log.Info("stopped", logger.Field{Key: "queue_size", Value: q.Size(sizeCtx)})

	return nil
}

func newNotifier(cfg *config.Config, log logger.Logger) notify.Notifier {
	if cfg.Notify.TelegramToken == "" {
		log.Warn("notify.telegram_token not set, notifications disabled")
		return notify.Nop{}
	}

	return notify.NewTelegram(cfg.Notify.APIBase, cfg.Notify.TelegramToken, 30*time.Second, log)
}

// newArmedStore connects to redis when configured and seeds missing states
// from the tenant defaults. Without redis, states live in memory.
func newArmedStore(ctx context.Context, cfg *config.Config, tenants []tenant.Config, log logger.Logger) (armed.Store, func(), error) {
	if cfg.Redis.Addr == "" {
		log.Warn("redis.addr not set, armed state is kept in memory")
		return armed.NewStaticStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	store := armed.NewRedisStore(client, cfg.Redis.ArmedKeyPrefix, cfg.Redis.CacheTTL, log)
	if err := store.InitDefaults(ctx, tenants); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return store, func() { _ = client.Close() }, nil
}
