package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/md-rashed-zaman/zonebridge/libs/mqttx"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRecorder struct {
	mu   sync.Mutex
	rows []model.DeliveryResult
	err  error
}

func (m *memRecorder) RecordDelivery(_ context.Context, res model.DeliveryResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, res)
	return m.err
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, KindTimeout, ErrorKind(mqttx.ErrPublishTimeout))
	assert.Equal(t, KindNotConnected, ErrorKind(fmt.Errorf("%w: closed", mqttx.ErrNotConnected)))
	assert.Equal(t, KindTransport, ErrorKind(errors.New("broken pipe")))
}

func TestOnPublishSuccess(t *testing.T) {
	rec := &memRecorder{}
	var seen []model.DeliveryResult
	tr := NewTracker(discardLogger(), Config{Recorder: rec, OnResult: func(r model.DeliveryResult) { seen = append(seen, r) }})

	tr.OnPublish(mqttx.PublishResult{Ref: "evt-1", Topic: "iot-2/evt/Entry/fmt/json", MessageID: 7})

	require.Len(t, rec.rows, 1)
	got := rec.rows[0]
	assert.True(t, got.Success)
	assert.Equal(t, "evt-1", got.EventID)
	assert.Equal(t, uint16(7), got.MessageID)
	assert.Empty(t, got.ErrorKind)
	assert.Len(t, seen, 1)
}

func TestOnPublishFailureRecordsErrorKind(t *testing.T) {
	rec := &memRecorder{}
	tr := NewTracker(discardLogger(), Config{Recorder: rec})

	tr.OnPublish(mqttx.PublishResult{Ref: "evt-2", Topic: "t", Err: mqttx.ErrPublishTimeout})

	require.Len(t, rec.rows, 1)
	assert.False(t, rec.rows[0].Success)
	assert.Equal(t, KindTimeout, rec.rows[0].ErrorKind)
	assert.ErrorIs(t, rec.rows[0].Err, mqttx.ErrPublishTimeout)
}

func TestRecorderErrorDoesNotStopHook(t *testing.T) {
	rec := &memRecorder{err: errors.New("db down")}
	called := false
	tr := NewTracker(discardLogger(), Config{Recorder: rec, OnResult: func(model.DeliveryResult) { called = true }})

	tr.OnPublish(mqttx.PublishResult{Ref: "evt-3"})
	assert.True(t, called)
}

func TestTrackerWithoutRecorder(t *testing.T) {
	tr := NewTracker(discardLogger(), Config{})
	assert.NotPanics(t, func() {
		tr.OnPublish(mqttx.PublishResult{Ref: "evt-4", Err: errors.New("x")})
	})
}
