// Package delivery records the asynchronous outcome of MQTT publishes.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/zonebridge/libs/mqttx"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/metrics"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
)

const (
	KindTimeout      = "timeout"
	KindNotConnected = "not_connected"
	KindTransport    = "transport"
)

// Recorder persists results; storage.Repository satisfies it.
type Recorder interface {
	RecordDelivery(ctx context.Context, res model.DeliveryResult) error
}

type Tracker struct {
	logger   *slog.Logger
	recorder Recorder
	timeout  time.Duration
	onResult func(model.DeliveryResult)
}

type Config struct {
	// Recorder is optional.
	Recorder Recorder
	// RecordTimeout bounds each persistence call. Defaults to 2s.
	RecordTimeout time.Duration
	OnResult      func(model.DeliveryResult)
}

func NewTracker(logger *slog.Logger, cfg Config) *Tracker {
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 2 * time.Second
	}
	return &Tracker{
		logger:   logger,
		recorder: cfg.Recorder,
		timeout:  cfg.RecordTimeout,
		onResult: cfg.OnResult,
	}
}

// OnPublish is installed as mqttx.Config.OnPublish. It runs on the publish goroutine.
func (t *Tracker) OnPublish(pr mqttx.PublishResult) {
	t.Track(Result(pr))
}

func (t *Tracker) Track(res model.DeliveryResult) {
	metrics.Delivered(resultLabel(res))
	if res.Success {
		t.logger.Info("mqtt publish acknowledged", "mid", res.MessageID, "event_id", res.EventID, "topic", res.Topic)
	} else {
		t.logger.Error("mqtt publish failed", "mid", res.MessageID, "event_id", res.EventID, "topic", res.Topic, "kind", res.ErrorKind, "err", res.Err)
	}

	if t.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		if err := t.recorder.RecordDelivery(ctx, res); err != nil {
			t.logger.Error("delivery record failed", "err", err, "event_id", res.EventID)
		}
		cancel()
	}
	if t.onResult != nil {
		t.onResult(res)
	}
}

// Result maps a client publish result to the domain delivery result.
func Result(pr mqttx.PublishResult) model.DeliveryResult {
	res := model.DeliveryResult{
		MessageID: pr.MessageID,
		EventID:   pr.Ref,
		Topic:     pr.Topic,
		Success:   pr.Err == nil,
		Err:       pr.Err,
	}
	if pr.Err != nil {
		res.ErrorKind = ErrorKind(pr.Err)
	}
	return res
}

func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, mqttx.ErrPublishTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, mqttx.ErrNotConnected):
		return KindNotConnected
	default:
		return KindTransport
	}
}

func resultLabel(res model.DeliveryResult) string {
	if res.Success {
		return "success"
	}
	return res.ErrorKind
}
