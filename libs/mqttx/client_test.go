package mqttx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	done chan struct{}
	err  error
	mid  uint16
}

func newFakeToken(mid uint16) *fakeToken { return &fakeToken{done: make(chan struct{}), mid: mid} }

func (t *fakeToken) complete(err error) { t.err = err; close(t.done) }

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }
func (t *fakeToken) MessageID() uint16     { return t.mid }

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeConn struct {
	mu         sync.Mutex
	calls      []publishCall
	next       *fakeToken
	connectTok *fakeToken
	open       bool
	disconnect int
}

func (f *fakeConn) Connect() mqtt.Token { return f.connectTok }
func (f *fakeConn) Disconnect(uint)     { f.mu.Lock(); f.disconnect++; f.mu.Unlock() }
func (f *fakeConn) IsConnectionOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}
func (f *fakeConn) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, publishCall{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return f.next
}

func testClient(cfg Config, conn *fakeConn) *Client {
	return &Client{cfg: withDefaults(cfg), conn: conn, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestClientOptionsFromConfig(t *testing.T) {
	c := New(Config{ClientID: "d:org:type:dev", Host: "broker.example", Username: "use-token-auth", Password: "secret"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	opts := c.clientOptions()

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://broker.example:1883", opts.Servers[0].String())
	assert.Equal(t, "d:org:type:dev", opts.ClientID)
	assert.Equal(t, "use-token-auth", opts.Username)
	assert.Equal(t, "secret", opts.Password)
	assert.EqualValues(t, 60, opts.KeepAlive)
	assert.True(t, opts.AutoReconnect)
}

func TestPublishReportsResultAsynchronously(t *testing.T) {
	results := make(chan PublishResult, 1)
	conn := &fakeConn{next: newFakeToken(7)}
	c := testClient(Config{Host: "h", OnPublish: func(r PublishResult) { results <- r }}, conn)

	c.Publish(context.Background(), Message{Ref: "evt-1", Topic: "iot-2/evt/Entry/fmt/json", Payload: []byte(`{"d":{}}`)})

	// Publish returned before the broker acknowledged anything.
	select {
	case <-results:
		t.Fatal("result delivered before token completed")
	default:
	}
	require.Len(t, conn.calls, 1)
	assert.Equal(t, byte(0), conn.calls[0].qos)
	assert.False(t, conn.calls[0].retained)

	conn.next.complete(nil)
	select {
	case r := <-results:
		assert.Equal(t, "evt-1", r.Ref)
		assert.Equal(t, uint16(7), r.MessageID)
		assert.NoError(t, r.Err)
	case <-time.After(time.Second):
		t.Fatal("no publish result")
	}
}

func TestPublishMapsNotConnected(t *testing.T) {
	results := make(chan PublishResult, 1)
	conn := &fakeConn{next: newFakeToken(0)}
	c := testClient(Config{Host: "h", OnPublish: func(r PublishResult) { results <- r }}, conn)

	conn.next.complete(mqtt.ErrNotConnected)
	c.Publish(context.Background(), Message{Topic: "t"})

	r := <-results
	assert.True(t, errors.Is(r.Err, ErrNotConnected))
}

func TestPublishTimeout(t *testing.T) {
	results := make(chan PublishResult, 1)
	conn := &fakeConn{next: newFakeToken(0)}
	c := testClient(Config{Host: "h", PublishTimeout: 20 * time.Millisecond, OnPublish: func(r PublishResult) { results <- r }}, conn)

	c.Publish(context.Background(), Message{Topic: "t"})

	select {
	case r := <-results:
		assert.ErrorIs(t, r.Err, ErrPublishTimeout)
	case <-time.After(time.Second):
		t.Fatal("timeout result not delivered")
	}
}

func TestConnectHonoursContext(t *testing.T) {
	conn := &fakeConn{connectTok: newFakeToken(0)}
	c := testClient(Config{Host: "h"}, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := c.Connect(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)

	conn.connectTok = newFakeToken(0)
	conn.connectTok.complete(nil)
	assert.NoError(t, c.Connect(context.Background()))
}

func TestReadyCheckAndClose(t *testing.T) {
	conn := &fakeConn{}
	c := testClient(Config{Host: "h"}, conn)
	assert.ErrorIs(t, c.ReadyCheck()(context.Background()), ErrNotConnected)

	conn.open = true
	assert.NoError(t, c.ReadyCheck()(context.Background()))

	c.Close(10 * time.Millisecond)
	assert.Equal(t, 1, conn.disconnect)
}
