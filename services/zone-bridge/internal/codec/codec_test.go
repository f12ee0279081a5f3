package codec

import (
	"testing"

	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := New(DefaultTopics())
	require.NoError(t, err)
	return c
}

func TestEncodeTopicPerKind(t *testing.T) {
	c := newCodec(t)

	msg, err := c.Encode(model.LocationEvent{ID: "1", Kind: model.ZoneEntry, ZoneName: "Office"})
	require.NoError(t, err)
	assert.Equal(t, "iot-2/evt/Entry/fmt/json", msg.Topic)

	msg, err = c.Encode(model.LocationEvent{ID: "2", Kind: model.ZoneExit, ZoneName: "Office"})
	require.NoError(t, err)
	assert.Equal(t, "iot-2/evt/Exit/fmt/json", msg.Topic)
}

func TestEncodeHomeExample(t *testing.T) {
	msg, err := newCodec(t).Encode(model.LocationEvent{ID: "evt-1", Kind: model.ZoneEntry, ZoneName: "Home"})
	require.NoError(t, err)

	assert.Equal(t, "iot-2/evt/Entry/fmt/json", msg.Topic)
	assert.Equal(t, `{"d":{"zoneName":"Home"}}`, string(msg.Payload))
	assert.Equal(t, byte(0), msg.QoS)
	assert.False(t, msg.Retain)
	assert.Equal(t, "evt-1", msg.EventID)
}

func TestEncodeRoundTrip(t *testing.T) {
	c := newCodec(t)
	names := []string{
		"Home",
		`Bob's "Garage"`,
		`back\slash`,
		"Zürich Hauptbahnhof",
		"東京タワー",
		"line\nbreak\ttab",
		"<script>&</script>",
		"🏠",
		"",
	}
	for _, name := range names {
		msg, err := c.Encode(model.LocationEvent{Kind: model.ZoneExit, ZoneName: name})
		require.NoError(t, err, name)

		var decoded map[string]map[string]string
		require.NoError(t, json.Unmarshal(msg.Payload, &decoded), name)
		assert.Equal(t, map[string]map[string]string{"d": {"zoneName": name}}, decoded, name)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	c := newCodec(t)
	evt := model.LocationEvent{ID: "x", Kind: model.ZoneEntry, ZoneName: "Café \"Sud\""}

	a, err := c.Encode(evt)
	require.NoError(t, err)
	b, err := c.Encode(evt)
	require.NoError(t, err)
	assert.Equal(t, a.Payload, b.Payload)
}

func TestEncodeUnknownKindFailsClosed(t *testing.T) {
	c := newCodec(t)
	msg, err := c.Encode(model.LocationEvent{Kind: model.KindUnknown, ZoneName: "Home"})
	assert.ErrorIs(t, err, ErrUnknownEventKind)
	assert.Empty(t, msg.Topic)
	assert.Empty(t, msg.Payload)

	entryOnly, err := New(map[model.EventKind]string{model.ZoneEntry: EntryTopic})
	require.NoError(t, err)
	_, err = entryOnly.Encode(model.LocationEvent{Kind: model.ZoneExit, ZoneName: "Home"})
	assert.ErrorIs(t, err, ErrUnknownEventKind)
}

func TestEncodeRejectsInvalidUTF8(t *testing.T) {
	msg, err := newCodec(t).Encode(model.LocationEvent{Kind: model.ZoneEntry, ZoneName: "bad\xff\xfe"})
	assert.ErrorIs(t, err, ErrSerializationFailed)
	assert.Empty(t, msg.Payload)
}

func TestNewValidatesTopics(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
	_, err = New(map[model.EventKind]string{model.ZoneEntry: ""})
	assert.Error(t, err)

	topics := DefaultTopics()
	c, err := New(topics)
	require.NoError(t, err)
	topics[model.ZoneEntry] = "mutated"
	got, ok := c.Topic(model.ZoneEntry)
	assert.True(t, ok)
	assert.Equal(t, EntryTopic, got)
}
