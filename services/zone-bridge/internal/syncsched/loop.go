package syncsched

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
)

// Loop triggers the scheduler periodically with a fixed process state hint.
type Loop struct {
	sched    *Scheduler
	logger   *slog.Logger
	interval time.Duration
	state    model.ProcessState
}

func NewLoop(s *Scheduler, logger *slog.Logger, interval time.Duration, state model.ProcessState) *Loop {
	return &Loop{sched: s, logger: logger, interval: interval, state: state}
}

// Run returns immediately when the interval is not positive.
func (l *Loop) Run(ctx context.Context) {
	if l.interval <= 0 {
		return
	}
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := l.sched.Run(ctx, l.state)
			l.logger.Debug("periodic sync", "status", st.String())
		}
	}
}
