package codec

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
	"github.com/segmentio/encoding/json"
)

var (
	ErrUnknownEventKind    = errors.New("unknown event kind")
	ErrSerializationFailed = errors.New("payload serialization failed")
)

const (
	EntryTopic = "iot-2/evt/Entry/fmt/json"
	ExitTopic  = "iot-2/evt/Exit/fmt/json"
)

func DefaultTopics() map[model.EventKind]string {
	return map[model.EventKind]string{
		model.ZoneEntry: EntryTopic,
		model.ZoneExit:  ExitTopic,
	}
}

// payload field order is fixed by the struct, which keeps output byte-stable.
type payload struct {
	D zoneData `json:"d"`
}

type zoneData struct {
	ZoneName string `json:"zoneName"`
}

type Codec struct {
	topics map[model.EventKind]string
}

// New copies topics; later changes to the map do not affect the codec.
func New(topics map[model.EventKind]string) (*Codec, error) {
	if len(topics) == 0 {
		return nil, errors.New("codec: no topics configured")
	}
	c := &Codec{topics: make(map[model.EventKind]string, len(topics))}
	for kind, topic := range topics {
		if topic == "" {
			return nil, fmt.Errorf("codec: empty topic for %s", kind)
		}
		c.topics[kind] = topic
	}
	return c, nil
}

func (c *Codec) Topic(kind model.EventKind) (string, bool) {
	t, ok := c.topics[kind]
	return t, ok
}

func (c *Codec) Encode(evt model.LocationEvent) (model.OutboundMessage, error) {
	topic, ok := c.topics[evt.Kind]
	if !ok {
		return model.OutboundMessage{}, fmt.Errorf("%w: %s", ErrUnknownEventKind, evt.Kind)
	}
	body, err := marshalPayload(evt.ZoneName)
	if err != nil {
		return model.OutboundMessage{}, err
	}
	return model.OutboundMessage{
		EventID: evt.ID,
		Topic:   topic,
		Payload: body,
		QoS:     0,
		Retain:  false,
	}, nil
}

func marshalPayload(zoneName string) ([]byte, error) {
	// The encoder would silently substitute U+FFFD; a zone name that is not text is rejected.
	if !utf8.ValidString(zoneName) {
		return nil, fmt.Errorf("%w: zone name is not valid UTF-8", ErrSerializationFailed)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload{D: zoneData{ZoneName: zoneName}}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrSerializationFailed)
	}
	return out, nil
}
