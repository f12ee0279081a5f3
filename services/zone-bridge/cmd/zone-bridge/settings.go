package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/zonebridge/libs/config"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/notify"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/syncsched"
)

type settings struct {
	Service string
	Port    string
	AppID   string

	NotifyAlerter  string
	NotifyDelay    time.Duration
	NotifyTimeout  time.Duration
	NotifyDisabled bool
	WebhookURL     string
	WebhookToken   string
	SMTPHost       string
	SMTPPort       string
	SMTPFrom       string
	SMTPTo         string

	SyncURL           string
	SyncToken         string
	SyncFetchBudget   time.Duration
	SyncInterval      time.Duration
	SyncMinInterval   time.Duration
	SyncReportOutcome bool
	SyncState         model.ProcessState

	MQTTPublishTimeout time.Duration
	MQTTSubscriptions  []string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers string
	KafkaGroupID string
	KafkaTopic   string

	RateLimitPerMinute int
	RateLimitFailOpen  bool
	DeviceSecret       string

	LocationBackendAddr    string
	LocationBackendService string
}

func loadDotEnv(paths []string) error {
	if err := config.LoadDotEnv(paths...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

func loadSettings() (settings, error) {
	s := settings{
		Service:       config.String("SERVICE_NAME", "zone-bridge"),
		AppID:         config.String("APP_ID", ""),
		NotifyAlerter: strings.ToLower(config.String("NOTIFY_ALERTER", "log")),
		WebhookURL:    config.String("NOTIFY_WEBHOOK_URL", ""),
		WebhookToken:  config.String("NOTIFY_WEBHOOK_TOKEN", ""),
		SMTPHost:      config.String("SMTP_HOST", "mailhog"),
		SMTPPort:      config.String("SMTP_PORT", "1025"),
		SMTPFrom:      config.String("SMTP_FROM", "zone-bridge@localhost"),
		SMTPTo:        config.String("NOTIFY_EMAIL_TO", ""),

		NotifyDisabled:    config.Bool("NOTIFY_DISABLED", false),
		SyncURL:           config.String("SYNC_URL", ""),
		SyncToken:         config.String("SYNC_TOKEN", ""),
		SyncReportOutcome: config.Bool("SYNC_REPORT_OUTCOME", false),
		MQTTSubscriptions: splitList(config.String("MQTT_SUBSCRIBE", "")),

		DatabaseURL:   config.String("DATABASE_URL", ""),
		RedisAddr:     config.String("REDIS_ADDR", ""),
		RedisPassword: config.String("REDIS_PASSWORD", ""),
		KafkaBrokers:  config.String("KAFKA_BROKERS", ""),
		KafkaGroupID:  config.String("KAFKA_GROUP_ID", "zone-bridge"),
		KafkaTopic:    config.String("KAFKA_CONSUME_TOPIC", "geofence.zone.events.v1"),

		RateLimitFailOpen:      config.Bool("RATE_LIMIT_FAIL_OPEN", true),
		DeviceSecret:           config.String("INGEST_DEVICE_SECRET", ""),
		LocationBackendAddr:    config.String("LOCATION_BACKEND_GRPC_ADDR", ""),
		LocationBackendService: config.String("LOCATION_BACKEND_SERVICE", ""),
	}

	var err error
	if s.Port, err = config.Port("PORT", "8090"); err != nil {
		return s, err
	}
	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"NOTIFY_DELAY", notify.DefaultDelay, &s.NotifyDelay},
		{"NOTIFY_TIMEOUT", notify.DefaultTimeout, &s.NotifyTimeout},
		{"SYNC_FETCH_BUDGET", syncsched.DefaultFetchBudget, &s.SyncFetchBudget},
		{"SYNC_INTERVAL", 0, &s.SyncInterval},
		{"SYNC_MIN_INTERVAL", 0, &s.SyncMinInterval},
		{"MQTT_PUBLISH_TIMEOUT", 10 * time.Second, &s.MQTTPublishTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = config.Duration(d.key, d.fallback); err != nil {
			return s, err
		}
	}
	if s.RedisDB, err = config.Int("REDIS_DB", 0); err != nil {
		return s, err
	}
	if s.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return s, err
	}
	if s.SyncState, err = model.ParseProcessState(config.String("SYNC_STATE", "background")); err != nil {
		return s, fmt.Errorf("SYNC_STATE: %w", err)
	}

	switch s.NotifyAlerter {
	case "log", "noop":
	case "webhook":
		if s.WebhookURL == "" {
			return s, fmt.Errorf("NOTIFY_WEBHOOK_URL is required for the webhook alerter")
		}
	case "email":
		if s.SMTPTo == "" {
			return s, fmt.Errorf("NOTIFY_EMAIL_TO is required for the email alerter")
		}
	default:
		return s, fmt.Errorf("NOTIFY_ALERTER must be one of log|email|webhook|noop (got %q)", s.NotifyAlerter)
	}
	return s, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
