package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/md-rashed-zaman/zonebridge/libs/config"
	"github.com/md-rashed-zaman/zonebridge/libs/db"
	"github.com/md-rashed-zaman/zonebridge/libs/grpcx"
	"github.com/md-rashed-zaman/zonebridge/libs/httpx"
	"github.com/md-rashed-zaman/zonebridge/libs/kafkax"
	otelx "github.com/md-rashed-zaman/zonebridge/libs/otel"
	"github.com/md-rashed-zaman/zonebridge/libs/runtime"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/bridge"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/codec"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/delivery"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/httpapi"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/source"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/storage"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/syncsched"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/transport"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge: event sources, MQTT publisher, sync loop and HTTP surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve()
		},
	}
}

func serve() error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	creds, err := config.LoadMQTTCredentials()
	if err != nil {
		return err
	}

	logger := runtime.NewLogger(s.Service)
	if s.AppID != "" {
		logger.Info("app id", "app_id", s.AppID)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(s.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var checks []runtime.ReadyCheck

	var repo *storage.Repository
	var recorder delivery.Recorder
	if s.DatabaseURL != "" {
		pool, err := db.Open(ctx, s.DatabaseURL, db.Options{})
		if err != nil {
			return err
		}
		defer pool.Close()
		repo = storage.NewRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		recorder = repo
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	}

	var rdb *redis.Client
	if s.RedisAddr != "" {
		rdb, err = openRedis(ctx, s)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	c, err := codec.New(codec.DefaultTopics())
	if err != nil {
		return err
	}

	sink := newSink(s, logger, repo)
	defer sink.Close()

	tracker := delivery.NewTracker(logger, delivery.Config{Recorder: recorder})
	client := newMQTTClient(s, creds, logger, tracker.OnPublish)
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if err := client.Connect(connectCtx); err != nil {
		logger.Warn("mqtt not connected yet, retrying in background", "err", err)
	}
	cancel()
	defer client.Close(5 * time.Second)
	checks = append(checks, runtime.ReadyCheck{Name: "mqtt", Check: client.ReadyCheck()})

	b := bridge.New(c, sink, transport.NewMQTTPublisher(client), logger)
	sched := newScheduler(s, sink, logger, rdb)

	runCtx, cancelRun := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancelRun()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		syncsched.NewLoop(sched, logger, s.SyncInterval, s.SyncState).Run(runCtx)
	}()

	if s.KafkaBrokers != "" {
		consumer := source.NewKafkaConsumer(logger, kafkax.ReaderConfig{
			Brokers: s.KafkaBrokers,
			GroupID: s.KafkaGroupID,
			Topic:   s.KafkaTopic,
		}, b)
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(runCtx)
		}()
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(s.KafkaBrokers)})
	}

	if s.LocationBackendAddr != "" {
		conn, err := grpcx.NewClient(s.LocationBackendAddr, grpcx.DialOptions{})
		if err != nil {
			return err
		}
		checker := grpcx.NewHealthChecker(conn, s.LocationBackendService)
		defer func() { _ = checker.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "location-backend", Check: checker.Check})
	}

	var limiter httpx.Limiter = httpx.NewMemoryLimiter(s.RateLimitPerMinute, time.Minute)
	if rdb != nil {
		limiter = httpx.NewRedisLimiter(rdb, s.RateLimitPerMinute, time.Minute, "zonebridge:rl")
	}

	srv := &http.Server{
		Addr: ":" + s.Port,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Logger:        logger,
			Ingest:        source.NewIngestHandler(b, logger),
			Scheduler:     sched,
			Checks:        checks,
			DeviceSecret:  s.DeviceSecret,
			Limiter:       limiter,
			LimitFailOpen: s.RateLimitFailOpen,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeUntilDone(ctx, srv, logger, 10*time.Second)
	return nil
}
