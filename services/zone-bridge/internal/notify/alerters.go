package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type NoopAlerter struct{}

func (NoopAlerter) Name() string                        { return "noop" }
func (NoopAlerter) Alert(context.Context, string) error { return nil }

// LogAlerter writes the alert as a structured log line; the default on headless hosts.
type LogAlerter struct {
	logger *slog.Logger
}

func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Name() string { return "log" }

func (a *LogAlerter) Alert(ctx context.Context, text string) error {
	a.logger.InfoContext(ctx, "local notification", "text", text)
	return nil
}

// WebhookAlerter POSTs {"text": ...} to a push relay.
type WebhookAlerter struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookAlerter(url string, token string) *WebhookAlerter {
	return &WebhookAlerter{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (a *WebhookAlerter) Name() string { return "webhook" }

func (a *WebhookAlerter) Alert(ctx context.Context, text string) error {
	if a.url == "" {
		return errors.New("notification webhook url not configured")
	}
	raw, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned %d", resp.StatusCode)
	}
	return nil
}

// EmailAlerter sends the alert via unauthenticated SMTP (Mailpit-compatible).
type EmailAlerter struct {
	addr string
	from string
	to   string
	send func(ctx context.Context, addr, from string, to []string, msg []byte) error
}

func NewEmailAlerter(host, port, from, to string) *EmailAlerter {
	from = strings.TrimSpace(from)
	if from == "" {
		from = "zonebridge@localhost"
	}
	return &EmailAlerter{
		addr: strings.TrimSpace(host) + ":" + strings.TrimSpace(port),
		from: from,
		to:   strings.TrimSpace(to),
		send: sendMail,
	}
}

func (a *EmailAlerter) Name() string { return "email" }

func (a *EmailAlerter) Alert(ctx context.Context, text string) error {
	if a.to == "" {
		return errors.New("notification recipient not configured")
	}
	return a.send(ctx, a.addr, a.from, []string{a.to}, buildMessage(a.from, a.to, text))
}

// sendMail is smtp.SendMail bounded by ctx: the whole SMTP exchange shares the ctx deadline
// and a cancelled ctx closes the connection.
func sendMail(ctx context.Context, addr, from string, to []string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	host, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return ctxErr(ctx, fmt.Errorf("smtp greeting: %w", err))
	}
	defer c.Close()
	if err := c.Mail(from); err != nil {
		return ctxErr(ctx, err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return ctxErr(ctx, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return ctxErr(ctx, err)
	}
	if _, err := w.Write(msg); err != nil {
		return ctxErr(ctx, err)
	}
	if err := w.Close(); err != nil {
		return ctxErr(ctx, err)
	}
	return ctxErr(ctx, c.Quit())
}

func ctxErr(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

func buildMessage(from, to, text string) []byte {
	subject := []rune(strings.NewReplacer("\r", " ", "\n", " ").Replace(text))
	if len(subject) > 60 {
		subject = subject[:60]
	}
	return []byte(fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		string(subject),
		text,
	))
}
