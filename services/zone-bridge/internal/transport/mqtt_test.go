package transport

import (
	"context"
	"testing"

	"github.com/md-rashed-zaman/zonebridge/libs/mqttx"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	msgs []mqttx.Message
}

func (r *recordingClient) Publish(_ context.Context, msg mqttx.Message) {
	r.msgs = append(r.msgs, msg)
}

func TestPublishMapsOutboundMessage(t *testing.T) {
	rc := &recordingClient{}
	p := &MQTTPublisher{client: rc}

	p.Publish(context.Background(), model.OutboundMessage{
		EventID: "evt-9",
		Topic:   "iot-2/evt/Exit/fmt/json",
		Payload: []byte(`{"d":{"zoneName":"Office"}}`),
	})

	require.Len(t, rc.msgs, 1)
	assert.Equal(t, mqttx.Message{
		Ref:     "evt-9",
		Topic:   "iot-2/evt/Exit/fmt/json",
		Payload: []byte(`{"d":{"zoneName":"Office"}}`),
	}, rc.msgs[0])
}
