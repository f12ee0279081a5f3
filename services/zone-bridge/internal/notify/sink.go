// Package notify schedules best-effort local alerts. Notify never blocks on delivery and
// never reports an error to its caller; outcomes are only visible through the status hook,
// logs and metrics.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/metrics"
)

const (
	DefaultDelay   = time.Second
	DefaultTimeout = 5 * time.Second
)

var (
	ErrPermissionDenied = errors.New("notifications not permitted")
	ErrSinkClosed       = errors.New("notification sink closed")
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusDenied    Status = "denied"
)

type StatusEvent struct {
	Status Status
	Text   string
	Err    error
}

// Alerter is the backend that actually shows or sends the alert.
type Alerter interface {
	Name() string
	Alert(ctx context.Context, text string) error
}

type Config struct {
	// Delay between Notify and delivery. Zero means DefaultDelay.
	Delay time.Duration
	// Timeout bounds one Alert call. Zero means DefaultTimeout.
	Timeout time.Duration
	// Disabled models a platform that did not grant notification permission.
	Disabled bool
	// OnStatus receives every report, in order, on a goroutine owned by the sink.
	// Reports made after Close run on their own goroutine.
	OnStatus func(StatusEvent)
}

type Sink struct {
	alerter Alerter
	logger  *slog.Logger
	cfg     Config

	mu      sync.Mutex
	pending map[*time.Timer]struct{}
	closed  bool
	wg      sync.WaitGroup

	hooks *statusQueue
}

func NewSink(alerter Alerter, logger *slog.Logger, cfg Config) *Sink {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if alerter == nil {
		alerter = NoopAlerter{}
	}
	s := &Sink{
		alerter: alerter,
		logger:  logger,
		cfg:     cfg,
		pending: map[*time.Timer]struct{}{},
	}
	if cfg.OnStatus != nil {
		s.hooks = newStatusQueue()
		go s.hooks.run(s.callHook)
	}
	return s
}

// Notify schedules text for delivery after the configured delay and returns immediately.
func (s *Sink) Notify(ctx context.Context, text string) {
	defer func() {
		if rec := recover(); rec != nil {
			s.report(StatusEvent{Status: StatusFailed, Text: text, Err: fmt.Errorf("notify panic: %v", rec)})
		}
	}()

	if s.cfg.Disabled {
		s.report(StatusEvent{Status: StatusDenied, Text: text, Err: ErrPermissionDenied})
		return
	}

	alertCtx := context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.report(StatusEvent{Status: StatusFailed, Text: text, Err: ErrSinkClosed})
		return
	}
	s.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(s.cfg.Delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		delete(s.pending, timer)
		s.mu.Unlock()
		s.fire(alertCtx, text)
	})
	s.pending[timer] = struct{}{}
	s.mu.Unlock()

	s.report(StatusEvent{Status: StatusScheduled, Text: text})
}

func (s *Sink) fire(ctx context.Context, text string) {
	defer func() {
		if rec := recover(); rec != nil {
			s.report(StatusEvent{Status: StatusFailed, Text: text, Err: fmt.Errorf("alerter panic: %v", rec)})
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := s.alerter.Alert(ctx, text); err != nil {
		s.report(StatusEvent{Status: StatusFailed, Text: text, Err: err})
		return
	}
	s.report(StatusEvent{Status: StatusDelivered, Text: text})
}

func (s *Sink) report(ev StatusEvent) {
	metrics.Notification(string(ev.Status))
	switch ev.Status {
	case StatusFailed, StatusDenied:
		s.logger.Warn("notification not delivered", "status", ev.Status, "alerter", s.alerter.Name(), "err", ev.Err)
	default:
		s.logger.Debug("notification", "status", ev.Status, "alerter", s.alerter.Name())
	}
	if s.hooks != nil && !s.hooks.push(ev) {
		go s.callHook(ev)
	}
}

func (s *Sink) callHook(ev StatusEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("notification status hook panic", "status", ev.Status, "panic", rec)
		}
	}()
	s.cfg.OnStatus(ev)
}

// Close cancels alerts that have not fired yet, waits for the ones in flight and drains
// queued status reports.
func (s *Sink) Close() {
	s.mu.Lock()
	s.closed = true
	var cancelled int
	for t := range s.pending {
		if t.Stop() {
			cancelled++
			s.wg.Done()
		}
		delete(s.pending, t)
	}
	s.mu.Unlock()
	if cancelled > 0 {
		s.logger.Info("pending notifications cancelled", "count", cancelled)
	}
	s.wg.Wait()
	if s.hooks != nil {
		s.hooks.close()
	}
}

// Wait blocks until every scheduled alert has fired or ctx ends.
func (s *Sink) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// statusQueue hands reports to a single worker so a slow hook never runs on the
// goroutine that called Notify.
type statusQueue struct {
	mu     sync.Mutex
	items  []StatusEvent
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newStatusQueue() *statusQueue {
	return &statusQueue{wake: make(chan struct{}, 1), done: make(chan struct{})}
}

// push reports false once the queue is closed.
func (q *statusQueue) push(ev StatusEvent) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.signal()
	return true
}

func (q *statusQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *statusQueue) run(hook func(StatusEvent)) {
	defer close(q.done)
	for {
		q.mu.Lock()
		batch, closed := q.items, q.closed
		q.items = nil
		q.mu.Unlock()
		for _, ev := range batch {
			hook(ev)
		}
		if closed && len(batch) == 0 {
			return
		}
		if len(batch) == 0 {
			<-q.wake
		}
	}
}

// close stops accepting reports and returns once the backlog has been handed to the hook.
func (q *statusQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.signal()
	<-q.done
}
