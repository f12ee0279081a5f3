// Package source delivers location events from Kafka, HTTP and in-process feeds to the
// single registered listener.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
	"github.com/segmentio/encoding/json"
)

// Listener receives every decoded event. The bridge is the only production listener.
type Listener interface {
	OnEvent(ctx context.Context, evt model.LocationEvent)
}

type ListenerFunc func(ctx context.Context, evt model.LocationEvent)

func (f ListenerFunc) OnEvent(ctx context.Context, evt model.LocationEvent) { f(ctx, evt) }

var ErrInvalidEvent = errors.New("invalid location event")

// Payload is the JSON shape shared by the Kafka topic and the HTTP endpoint.
type Payload struct {
	ID        string     `json:"id" validate:"omitempty,max=128"`
	Type      string     `json:"type" validate:"required,max=32"`
	ZoneName  string     `json:"zone_name" validate:"max=256"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode parses and validates a payload. Unrecognized types become model.KindUnknown so
// the bridge can still notify and refuse to publish. The id stays empty when absent.
func Decode(b []byte, now time.Time) (model.LocationEvent, error) {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return model.LocationEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return p.Event(now)
}

func (p Payload) Event(now time.Time) (model.LocationEvent, error) {
	if err := validate.Struct(p); err != nil {
		return model.LocationEvent{}, fmt.Errorf("%w: %s", ErrInvalidEvent, validationSummary(err))
	}
	kind, err := model.ParseEventKind(p.Type)
	if err != nil {
		kind = model.KindUnknown
	}
	evt := model.LocationEvent{
		ID:        strings.TrimSpace(p.ID),
		Kind:      kind,
		ZoneName:  p.ZoneName,
		Timestamp: now.UTC(),
	}
	if p.Timestamp != nil && !p.Timestamp.IsZero() {
		evt.Timestamp = p.Timestamp.UTC()
	}
	return evt, nil
}

// withID fills a missing id from the fallbacks in order, then a random UUID.
func withID(evt model.LocationEvent, fallbacks ...string) model.LocationEvent {
	for _, id := range fallbacks {
		if evt.ID != "" {
			break
		}
		evt.ID = strings.TrimSpace(id)
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	return evt
}

func validationSummary(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+":"+fe.Tag())
	}
	return strings.Join(parts, ",")
}
