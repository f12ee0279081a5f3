// Package mqttx wraps the paho MQTT client with the connect/publish/callback surface the
// bridge needs. Publish never blocks on the broker: completion is reported through
// Config.OnPublish from a separate goroutine.
package mqttx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	ErrNotConnected   = errors.New("mqtt client not connected")
	ErrPublishTimeout = errors.New("mqtt publish timed out")
)

// Message is one outbound publish. Ref is opaque to the client and echoed in PublishResult.
type Message struct {
	Ref     string
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

type PublishResult struct {
	Ref       string
	Topic     string
	MessageID uint16
	Err       error
}

type Config struct {
	ClientID  string
	Host      string
	Port      int
	KeepAlive time.Duration
	Username  string
	Password  string

	ConnectRetryInterval time.Duration
	PublishTimeout       time.Duration
	// Subscriptions are (re)subscribed on every connect; inbound messages go to OnMessage.
	Subscriptions []string

	OnPublish        func(PublishResult)
	OnMessage        func(topic string, payload []byte)
	OnConnect        func(returnCode byte)
	OnConnectionLost func(err error)
}

type conn interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type Client struct {
	cfg    Config
	conn   conn
	logger *slog.Logger
	wg     sync.WaitGroup
}

func New(cfg Config, logger *slog.Logger) *Client {
	c := &Client{cfg: withDefaults(cfg), logger: logger}
	c.conn = mqtt.NewClient(c.clientOptions())
	return c
}

func withDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 1883
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 60 * time.Second
	}
	if cfg.ConnectRetryInterval <= 0 {
		cfg.ConnectRetryInterval = 5 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	return cfg
}

// BrokerURL is tcp://host:port.
func (cfg Config) BrokerURL() string {
	return "tcp://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

func (c *Client) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.BrokerURL())
	opts.SetClientID(c.cfg.ClientID)
	opts.SetUsername(c.cfg.Username)
	opts.SetPassword(c.cfg.Password)
	opts.SetKeepAlive(c.cfg.KeepAlive)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(c.cfg.ConnectRetryInterval)
	opts.SetOnConnectHandler(c.handleConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn("mqtt connection lost", "err", err)
		if c.cfg.OnConnectionLost != nil {
			c.cfg.OnConnectionLost(err)
		}
	})
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, m mqtt.Message) {
		c.deliverInbound(m.Topic(), m.Payload())
	})
	return opts
}

func (c *Client) handleConnect(client mqtt.Client) {
	c.logger.Info("mqtt connected", "broker", c.cfg.BrokerURL())
	if c.cfg.OnConnect != nil {
		c.cfg.OnConnect(0)
	}
	for _, topic := range c.cfg.Subscriptions {
		tok := client.Subscribe(topic, 0, func(_ mqtt.Client, m mqtt.Message) {
			c.deliverInbound(m.Topic(), m.Payload())
		})
		go func(topic string, tok mqtt.Token) {
			<-tok.Done()
			if err := tok.Error(); err != nil {
				c.logger.Error("mqtt subscribe failed", "topic", topic, "err", err)
			}
		}(topic, tok)
	}
}

func (c *Client) deliverInbound(topic string, payload []byte) {
	if c.cfg.OnMessage != nil {
		c.cfg.OnMessage(topic, payload)
	}
}

// Connect waits for the first successful connection or ctx. The underlying client keeps
// retrying in the background when ctx expires first.
func (c *Client) Connect(ctx context.Context) error {
	tok := c.conn.Connect()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			if ct, ok := tok.(*mqtt.ConnectToken); ok && c.cfg.OnConnect != nil {
				c.cfg.OnConnect(ct.ReturnCode())
			}
			return fmt.Errorf("mqtt connect %s: %w", c.cfg.BrokerURL(), err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mqtt connect %s: %w", c.cfg.BrokerURL(), ErrNotConnected)
	}
}

// Publish hands msg to the client and returns. The outcome is reported once via OnPublish.
func (c *Client) Publish(_ context.Context, msg Message) {
	tok := c.conn.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
	c.wg.Add(1)
	go c.await(msg, tok)
}

func (c *Client) await(msg Message, tok mqtt.Token) {
	defer c.wg.Done()

	res := PublishResult{Ref: msg.Ref, Topic: msg.Topic}
	timer := time.NewTimer(c.cfg.PublishTimeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		res.Err = normalizeError(tok.Error())
	case <-timer.C:
		res.Err = ErrPublishTimeout
	}
	if pt, ok := tok.(interface{ MessageID() uint16 }); ok {
		res.MessageID = pt.MessageID()
	}
	if c.cfg.OnPublish != nil {
		c.cfg.OnPublish(res)
	}
}

func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mqtt.ErrNotConnected) {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return err
}

func (c *Client) IsConnected() bool {
	return c.conn.IsConnectionOpen()
}

func (c *Client) ReadyCheck() func(context.Context) error {
	return func(context.Context) error {
		if !c.IsConnected() {
			return ErrNotConnected
		}
		return nil
	}
}

// Close waits up to grace for pending publish callbacks, then disconnects.
func (c *Client) Close(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		c.logger.Warn("mqtt close: pending publishes abandoned")
	}
	c.conn.Disconnect(250)
}
