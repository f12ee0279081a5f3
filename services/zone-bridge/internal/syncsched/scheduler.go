// Package syncsched runs the background data synchronization triggered by the platform or
// a periodic loop, and reports a fetch status exactly once per run.
package syncsched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	otelx "github.com/md-rashed-zaman/zonebridge/libs/otel"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/metrics"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultFetchBudget = 30 * time.Second

var ErrSyncPanic = errors.New("synchronizer panicked")

type Synchronizer interface {
	Synchronize(ctx context.Context) (model.SyncOutcome, error)
}

type Notifier interface {
	Notify(ctx context.Context, text string)
}

type Config struct {
	// FetchBudget is the deadline for one synchronization. Zero means DefaultFetchBudget.
	FetchBudget time.Duration
	// ReportOutcome maps a sync without new data to NoData instead of NewData.
	ReportOutcome bool
	// MinInterval debounces background runs through Gate. Zero disables debouncing.
	MinInterval time.Duration
	Gate        Gate
	GateKey     string
	Now         func() time.Time
}

type Scheduler struct {
	sync     Synchronizer
	notifier Notifier
	logger   *slog.Logger
	cfg      Config
}

func New(s Synchronizer, n Notifier, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.FetchBudget <= 0 {
		cfg.FetchBudget = DefaultFetchBudget
	}
	if cfg.MinInterval > 0 && cfg.Gate == nil {
		cfg.Gate = NewMemoryGate(nil)
	}
	if cfg.GateKey == "" {
		cfg.GateKey = "zonebridge:sync"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if s == nil {
		s = NoopSynchronizer{}
	}
	return &Scheduler{sync: s, notifier: n, logger: logger, cfg: cfg}
}

// Run blocks until the run completes and returns the reported status. A sync that fails,
// panics or outlives the fetch budget reports FetchFailed, never NewData; only a sync that
// returns nil within the budget reports FetchNewData.
func (s *Scheduler) Run(ctx context.Context, state model.ProcessState) model.FetchStatus {
	var status model.FetchStatus
	s.RunWithCompletion(ctx, state, func(st model.FetchStatus) { status = st })
	return status
}

// RunWithCompletion invokes complete exactly once, on the calling goroutine, before it
// returns. The status follows the same rules as Run. A synchronizer still running after the budget elapsed is left to finish on its own.
func (s *Scheduler) RunWithCompletion(ctx context.Context, state model.ProcessState, complete func(model.FetchStatus)) {
	ctx, span := otelx.Tracer("sync").Start(ctx, "sync.run",
		trace.WithAttributes(attribute.String("sync.state", state.String())),
	)
	defer span.End()

	var once sync.Once
	finish := func(st model.FetchStatus) {
		once.Do(func() {
			span.SetAttributes(attribute.String("sync.status", st.String()))
			metrics.SyncRun(state.String(), st.String())
			if complete != nil {
				complete(st)
			}
		})
	}

	if state != model.StateBackground && state != model.StateInactive {
		finish(model.FetchNoData)
		return
	}

	if s.cfg.MinInterval > 0 {
		ok, err := s.cfg.Gate.Allow(ctx, s.cfg.GateKey, s.cfg.MinInterval)
		if err != nil {
			s.logger.Warn("sync gate unavailable, running anyway", "err", err)
		} else if !ok {
			s.logger.Debug("sync debounced", "min_interval", s.cfg.MinInterval)
			finish(model.FetchNoData)
			return
		}
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, FetchNotificationText(s.cfg.Now()))
	}

	status, err := s.synchronize(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sync failed")
		s.logger.Error("background sync failed", "err", err, "state", state.String())
	} else {
		s.logger.Info("background sync completed", "state", state.String(), "status", status.String())
	}
	finish(status)
}

type syncResult struct {
	outcome model.SyncOutcome
	err     error
}

func (s *Scheduler) synchronize(ctx context.Context) (model.FetchStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchBudget)
	defer cancel()

	start := time.Now()
	done := make(chan syncResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- syncResult{err: fmt.Errorf("%w: %v", ErrSyncPanic, r)}
			}
		}()
		out, err := s.sync.Synchronize(ctx)
		done <- syncResult{outcome: out, err: err}
	}()

	select {
	case res := <-done:
		metrics.SyncDuration(time.Since(start).Seconds())
		if res.err != nil {
			return model.FetchFailed, res.err
		}
		if s.cfg.ReportOutcome && !res.outcome.HasNewData {
			return model.FetchNoData, nil
		}
		return model.FetchNewData, nil
	case <-ctx.Done():
		metrics.SyncDuration(time.Since(start).Seconds())
		return model.FetchFailed, fmt.Errorf("sync budget %s: %w", s.cfg.FetchBudget, ctx.Err())
	}
}

// FetchNotificationText is the alert shown when a background fetch starts.
func FetchNotificationText(now time.Time) string {
	return "Background fetch triggered: " + now.Format(time.RFC1123)
}
