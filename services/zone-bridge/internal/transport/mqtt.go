// Package transport adapts the shared MQTT client to the bridge's publisher port.
package transport

import (
	"context"

	"github.com/md-rashed-zaman/zonebridge/libs/mqttx"
	otelx "github.com/md-rashed-zaman/zonebridge/libs/otel"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type client interface {
	Publish(ctx context.Context, msg mqttx.Message)
}

type MQTTPublisher struct {
	client client
}

func NewMQTTPublisher(c *mqttx.Client) *MQTTPublisher {
	return &MQTTPublisher{client: c}
}

// Publish uses the event id as the client ref so delivery results can be correlated.
func (p *MQTTPublisher) Publish(ctx context.Context, msg model.OutboundMessage) {
	ctx, span := otelx.Tracer("mqtt").Start(ctx, "mqtt.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "mqtt"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int("messaging.mqtt.qos", int(msg.QoS)),
		),
	)
	defer span.End()

	p.client.Publish(ctx, mqttx.Message{
		Ref:     msg.EventID,
		Topic:   msg.Topic,
		Payload: msg.Payload,
		QoS:     msg.QoS,
		Retain:  msg.Retain,
	})
}
