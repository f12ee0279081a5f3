package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/zonebridge/libs/config"
	"github.com/md-rashed-zaman/zonebridge/libs/mqttx"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/notify"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/storage"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/syncsched"
	"github.com/redis/go-redis/v9"
)

func newAlerter(s settings, logger *slog.Logger) notify.Alerter {
	switch s.NotifyAlerter {
	case "email":
		return notify.NewEmailAlerter(s.SMTPHost, s.SMTPPort, s.SMTPFrom, s.SMTPTo)
	case "webhook":
		return notify.NewWebhookAlerter(s.WebhookURL, s.WebhookToken)
	case "noop":
		return notify.NoopAlerter{}
	default:
		return notify.NewLogAlerter(logger)
	}
}

// newSink persists final notification statuses when repo is non-nil.
func newSink(s settings, logger *slog.Logger, repo *storage.Repository) *notify.Sink {
	cfg := notify.Config{
		Delay:    s.NotifyDelay,
		Timeout:  s.NotifyTimeout,
		Disabled: s.NotifyDisabled,
	}
	if repo != nil {
		cfg.OnStatus = func(ev notify.StatusEvent) {
			if ev.Status == notify.StatusScheduled {
				return
			}
			n := storage.Notification{Status: string(ev.Status), Text: ev.Text}
			if ev.Err != nil {
				n.Error = ev.Err.Error()
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := repo.RecordNotification(ctx, n); err != nil {
				logger.Error("notification record failed", "err", err)
			}
		}
	}
	return notify.NewSink(newAlerter(s, logger), logger, cfg)
}

func newSynchronizer(s settings) syncsched.Synchronizer {
	if s.SyncURL == "" {
		return syncsched.NoopSynchronizer{}
	}
	return syncsched.NewHTTPSynchronizer(s.SyncURL, s.SyncToken)
}

func newScheduler(s settings, n syncsched.Notifier, logger *slog.Logger, rdb *redis.Client) *syncsched.Scheduler {
	cfg := syncsched.Config{
		FetchBudget:   s.SyncFetchBudget,
		ReportOutcome: s.SyncReportOutcome,
		MinInterval:   s.SyncMinInterval,
	}
	if rdb != nil && s.SyncMinInterval > 0 {
		cfg.Gate = syncsched.NewRedisGate(rdb)
		cfg.GateKey = "zonebridge:sync:" + s.Service
	}
	return syncsched.New(newSynchronizer(s), n, logger, cfg)
}

func newMQTTClient(s settings, creds config.MQTTCredentials, logger *slog.Logger, onPublish func(mqttx.PublishResult)) *mqttx.Client {
	return mqttx.New(mqttx.Config{
		ClientID:       creds.ClientID,
		Host:           creds.Host,
		Port:           creds.PortNumber(),
		KeepAlive:      creds.KeepAliveDuration(),
		Username:       creds.Username,
		Password:       creds.Password,
		PublishTimeout: s.MQTTPublishTimeout,
		Subscriptions:  s.MQTTSubscriptions,
		OnPublish:      onPublish,
		OnMessage: func(topic string, payload []byte) {
			logger.Info("mqtt message received", "topic", topic, "bytes", len(payload))
		},
		OnConnect: func(code byte) {
			logger.Info("mqtt connect result", "code", code)
		},
	}, logger)
}

func openRedis(ctx context.Context, s settings) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     s.RedisAddr,
		Password: s.RedisPassword,
		DB:       s.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", s.RedisAddr, err)
	}
	return rdb, nil
}
