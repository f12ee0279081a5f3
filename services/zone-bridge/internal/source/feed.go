package source

import (
	"context"

	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
)

// Feed is an in-process source backed by a channel.
type Feed struct {
	events   chan model.LocationEvent
	listener Listener
}

func NewFeed(listener Listener, buffer int) *Feed {
	return &Feed{events: make(chan model.LocationEvent, buffer), listener: listener}
}

// Emit queues evt or returns ctx.Err when the feed is full and ctx ends first.
func (f *Feed) Emit(ctx context.Context, evt model.LocationEvent) error {
	select {
	case f.events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops Run after queued events are delivered. Emit must not be called afterwards.
func (f *Feed) Close() { close(f.events) }

func (f *Feed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-f.events:
			if !ok {
				return
			}
			f.listener.OnEvent(ctx, evt)
		}
	}
}
