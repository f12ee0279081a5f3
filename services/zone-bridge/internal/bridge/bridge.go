// Package bridge turns location events into a local notification and an MQTT message.
package bridge

import (
	"context"
	"errors"
	"log/slog"

	otelx "github.com/md-rashed-zaman/zonebridge/libs/otel"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/codec"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/metrics"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Encoder interface {
	Encode(evt model.LocationEvent) (model.OutboundMessage, error)
}

type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Publisher hands a message to the transport and returns without waiting for the broker.
type Publisher interface {
	Publish(ctx context.Context, msg model.OutboundMessage)
}

// EncodeFailure is passed to the optional error hook when an event is dropped.
type EncodeFailure struct {
	Event model.LocationEvent
	Err   error
}

type Bridge struct {
	codec     Encoder
	notifier  Notifier
	publisher Publisher
	logger    *slog.Logger
	onDrop    func(EncodeFailure)
}

type Option func(*Bridge)

// WithDropHook observes events that were notified but not published.
func WithDropHook(fn func(EncodeFailure)) Option {
	return func(b *Bridge) { b.onDrop = fn }
}

func New(c Encoder, n Notifier, p Publisher, logger *slog.Logger, opts ...Option) *Bridge {
	b := &Bridge{codec: c, notifier: n, publisher: p, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnEvent notifies unconditionally, then encodes and publishes at most once.
func (b *Bridge) OnEvent(ctx context.Context, evt model.LocationEvent) {
	ctx, span := otelx.Tracer("bridge").Start(ctx, "bridge.on_event",
		trace.WithAttributes(
			attribute.String("zone.event_id", evt.ID),
			attribute.String("zone.kind", evt.Kind.String()),
		),
	)
	defer span.End()

	metrics.EventReceived(evt.Kind.String())
	b.notifier.Notify(ctx, NotificationText(evt))

	msg, err := b.codec.Encode(evt)
	if err != nil {
		reason := "serialization"
		if errors.Is(err, codec.ErrUnknownEventKind) {
			reason = "unknown_kind"
		}
		metrics.EncodeFailed(reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		b.logger.Error("event not published", "err", err, "event_id", evt.ID, "kind", evt.Kind.String(), "reason", reason)
		if b.onDrop != nil {
			b.onDrop(EncodeFailure{Event: evt, Err: err})
		}
		return
	}

	b.publisher.Publish(ctx, msg)
	metrics.Published(msg.Topic)
	b.logger.Debug("event published", "event_id", evt.ID, "topic", msg.Topic, "zone", evt.ZoneName)
}

// NotificationText is what the user sees for an event: the zone name.
func NotificationText(evt model.LocationEvent) string {
	if evt.ZoneName == "" {
		return "Zone " + evt.Kind.String()
	}
	return evt.ZoneName
}
