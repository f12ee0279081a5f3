package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/zonebridge/libs/kafkax"
	otelx "github.com/md-rashed-zaman/zonebridge/libs/otel"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type KafkaConsumer struct {
	reader   reader
	logger   *slog.Logger
	listener Listener
	backoff  time.Duration
	now      func() time.Time
}

func NewKafkaConsumer(logger *slog.Logger, cfg kafkax.ReaderConfig, listener Listener) *KafkaConsumer {
	return &KafkaConsumer{
		reader:   kafkax.NewReader(cfg),
		logger:   logger,
		listener: listener,
		backoff:  time.Second,
		now:      time.Now,
	}
}

// Run reads until ctx is cancelled. Undecodable messages are logged and skipped.
func (c *KafkaConsumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otelx.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	evt, err := Decode(msg.Value, c.now())
	if err != nil {
		c.logger.Warn("kafka message skipped", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		span.RecordError(err)
		return
	}
	evt = withID(evt, kafkax.HeaderValue(msg.Headers, "event_id"), string(msg.Key))
	span.SetAttributes(attribute.String("zone.event_id", evt.ID))
	c.listener.OnEvent(ctxSpan, evt)
}
