package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/zonebridge/libs/auth"
	"github.com/md-rashed-zaman/zonebridge/libs/config"
	"github.com/md-rashed-zaman/zonebridge/libs/runtime"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/bridge"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/codec"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/delivery"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/source"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/transport"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one background fetch and print the reported status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			ps, err := model.ParseProcessState(state)
			if err != nil {
				return err
			}
			logger := runtime.NewLoggerTo(cmd.ErrOrStderr(), s.Service, config.String("LOG_LEVEL", ""))

			sink := newSink(s, logger, nil)
			defer sink.Close()
			status := newScheduler(s, sink, logger, nil).Run(cmd.Context(), ps)

			waitCtx, cancel := context.WithTimeout(context.Background(), s.NotifyDelay+s.NotifyTimeout)
			defer cancel()
			_ = sink.Wait(waitCtx)

			fmt.Fprintln(cmd.OutOrStdout(), status.String())
			if status == model.FetchFailed {
				return fmt.Errorf("background fetch failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "background", "process state hint: active|inactive|background")
	return cmd
}

func newEmitCmd() *cobra.Command {
	var (
		kind    string
		zone    string
		id      string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Send one zone event through the bridge and wait for the publish result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			creds, err := config.LoadMQTTCredentials()
			if err != nil {
				return err
			}
			logger := runtime.NewLoggerTo(cmd.ErrOrStderr(), s.Service, config.String("LOG_LEVEL", ""))

			k, err := model.ParseEventKind(kind)
			if err != nil {
				k = model.KindUnknown
			}
			evt := model.LocationEvent{ID: id, Kind: k, ZoneName: zone, Timestamp: time.Now().UTC()}
			if evt.ID == "" {
				evt.ID = fmt.Sprintf("emit-%d", evt.Timestamp.UnixNano())
			}
			return emit(cmd.Context(), cmd.OutOrStdout(), s, creds, logger, evt, timeout)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "entry", "event kind: entry|exit")
	cmd.Flags().StringVar(&zone, "zone", "", "zone name")
	cmd.Flags().StringVar(&id, "id", "", "event id (generated when empty)")
	cmd.Flags().DurationVar(&timeout, "timeout", 20*time.Second, "how long to wait for the broker")
	return cmd
}

type emitReport struct {
	EventID   string `json:"event_id"`
	Topic     string `json:"topic,omitempty"`
	Published bool   `json:"published"`
	MessageID uint16 `json:"mid,omitempty"`
	Error     string `json:"error,omitempty"`
}

func emit(ctx context.Context, out io.Writer, s settings, creds config.MQTTCredentials, logger *slog.Logger, evt model.LocationEvent, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan model.DeliveryResult, 1)
	tracker := delivery.NewTracker(logger, delivery.Config{OnResult: func(res model.DeliveryResult) {
		select {
		case results <- res:
		default:
		}
	}})
	client := newMQTTClient(s, creds, logger, tracker.OnPublish)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close(2 * time.Second)

	c, err := codec.New(codec.DefaultTopics())
	if err != nil {
		return err
	}
	sink := newSink(s, logger, nil)
	defer sink.Close()

	report := emitReport{EventID: evt.ID}
	b := bridge.New(c, sink, transport.NewMQTTPublisher(client), logger, bridge.WithDropHook(func(f bridge.EncodeFailure) {
		report.Error = f.Err.Error()
	}))

	feed := source.NewFeed(b, 1)
	if err := feed.Emit(ctx, evt); err != nil {
		return err
	}
	feed.Close()
	feed.Run(ctx)

	if report.Error == "" {
		select {
		case res := <-results:
			report.Topic = res.Topic
			report.MessageID = res.MessageID
			report.Published = res.Success
			if res.Err != nil {
				report.Error = res.Err.Error()
			}
		case <-ctx.Done():
			report.Error = ctx.Err().Error()
		}
	}
	_ = sink.Wait(ctx)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if !report.Published {
		return fmt.Errorf("event %s not published", evt.ID)
	}
	return nil
}

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate settings and MQTT credentials without connecting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return checkConfig(cmd.OutOrStdout())
		},
	}
}

func checkConfig(out io.Writer) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	creds, err := config.LoadMQTTCredentials()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "mqtt broker:     tcp://%s:%s\n", creds.Host, creds.Port)
	fmt.Fprintf(out, "mqtt client id:  %s\n", creds.ClientID)
	fmt.Fprintf(out, "mqtt username:   %s\n", creds.Username)
	fmt.Fprintf(out, "mqtt password:   %s\n", mask(creds.Password))
	fmt.Fprintf(out, "mqtt keep-alive: %s\n", creds.KeepAliveDuration())
	fmt.Fprintf(out, "http port:       %s\n", s.Port)
	fmt.Fprintf(out, "notify alerter:  %s (delay %s)\n", s.NotifyAlerter, s.NotifyDelay)
	fmt.Fprintf(out, "sync budget:     %s\n", s.SyncFetchBudget)
	fmt.Fprintf(out, "sync interval:   %s\n", orDisabled(s.SyncInterval))
	fmt.Fprintf(out, "database:        %s\n", enabled(s.DatabaseURL))
	fmt.Fprintf(out, "redis:           %s\n", enabled(s.RedisAddr))
	fmt.Fprintf(out, "kafka:           %s\n", enabled(s.KafkaBrokers))
	return nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func enabled(v string) string {
	if v == "" {
		return "disabled"
	}
	return "enabled"
}

func orDisabled(d time.Duration) string {
	if d <= 0 {
		return "disabled"
	}
	return d.String()
}

func newDeviceTokenCmd() *cobra.Command {
	var (
		device string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "device-token",
		Short: "Issue an ingest token for a device using INGEST_DEVICE_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := config.RequiredString("INGEST_DEVICE_SECRET")
			if err != nil {
				return err
			}
			now := time.Now()
			claims := auth.DeviceClaims{Sub: device, App: config.String("APP_ID", ""), Iat: now.Unix()}
			if ttl > 0 {
				claims.Exp = now.Add(ttl).Unix()
			}
			token, err := auth.SignHS256(claims, secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "device id carried as the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime; 0 issues a token without expiry")
	_ = cmd.MarkFlagRequired("device")
	return cmd
}
