package syncsched

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncFunc func(ctx context.Context) (model.SyncOutcome, error)

func (f syncFunc) Synchronize(ctx context.Context) (model.SyncOutcome, error) { return f(ctx) }

type countingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *countingNotifier) Notify(_ context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestActiveStateReportsNoDataWithoutSync(t *testing.T) {
	var calls atomic.Int32
	n := &countingNotifier{}
	s := New(syncFunc(func(context.Context) (model.SyncOutcome, error) {
		calls.Add(1)
		return model.SyncOutcome{HasNewData: true}, nil
	}), n, discardLogger(), Config{})

	assert.Equal(t, model.FetchNoData, s.Run(context.Background(), model.StateActive))
	assert.Zero(t, calls.Load())
	assert.Empty(t, n.texts)
}

func TestBackgroundAndInactiveReportNewData(t *testing.T) {
	now := time.Date(2026, time.October, 14, 9, 30, 0, 0, time.UTC)
	for _, state := range []model.ProcessState{model.StateBackground, model.StateInactive} {
		n := &countingNotifier{}
		s := New(NoopSynchronizer{}, n, discardLogger(), Config{Now: func() time.Time { return now }})

		assert.Equal(t, model.FetchNewData, s.Run(context.Background(), state), state.String())
		require.Len(t, n.texts, 1)
		assert.Equal(t, "Background fetch triggered: Wed, 14 Oct 2026 09:30:00 UTC", n.texts[0])
	}
}

func TestReportOutcomeMapsNoNewData(t *testing.T) {
	s := New(NoopSynchronizer{}, nil, discardLogger(), Config{ReportOutcome: true})
	assert.Equal(t, model.FetchNoData, s.Run(context.Background(), model.StateBackground))

	s = New(syncFunc(func(context.Context) (model.SyncOutcome, error) {
		return model.SyncOutcome{HasNewData: true}, nil
	}), nil, discardLogger(), Config{ReportOutcome: true})
	assert.Equal(t, model.FetchNewData, s.Run(context.Background(), model.StateBackground))
}

func TestCompletionExactlyOnce(t *testing.T) {
	cases := map[string]syncFunc{
		"error": func(context.Context) (model.SyncOutcome, error) {
			return model.SyncOutcome{}, errors.New("backend down")
		},
		"panic": func(context.Context) (model.SyncOutcome, error) {
			panic("boom")
		},
		"budget": func(context.Context) (model.SyncOutcome, error) {
			time.Sleep(200 * time.Millisecond)
			return model.SyncOutcome{HasNewData: true}, nil
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			s := New(fn, nil, discardLogger(), Config{FetchBudget: 20 * time.Millisecond})
			var calls []model.FetchStatus
			s.RunWithCompletion(context.Background(), model.StateBackground, func(st model.FetchStatus) {
				calls = append(calls, st)
			})
			require.Len(t, calls, 1)
			assert.Equal(t, model.FetchFailed, calls[0])
		})
	}
}

func TestBudgetElapsesWhileSynchronizerIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := New(syncFunc(func(context.Context) (model.SyncOutcome, error) {
		<-release
		return model.SyncOutcome{}, nil
	}), nil, discardLogger(), Config{FetchBudget: 10 * time.Millisecond})

	start := time.Now()
	assert.Equal(t, model.FetchFailed, s.Run(context.Background(), model.StateBackground))
	assert.Less(t, time.Since(start), time.Second)
}

func TestCancelledParentReportsFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(syncFunc(func(ctx context.Context) (model.SyncOutcome, error) {
		<-ctx.Done()
		return model.SyncOutcome{}, ctx.Err()
	}), nil, discardLogger(), Config{})
	assert.Equal(t, model.FetchFailed, s.Run(ctx, model.StateBackground))
}

func TestDebouncedRunSkipsSynchronizer(t *testing.T) {
	var calls atomic.Int32
	current := time.Unix(1_700_000_000, 0)
	gate := NewMemoryGate(func() time.Time { return current })
	n := &countingNotifier{}
	s := New(syncFunc(func(context.Context) (model.SyncOutcome, error) {
		calls.Add(1)
		return model.SyncOutcome{HasNewData: true}, nil
	}), n, discardLogger(), Config{MinInterval: time.Minute, Gate: gate})

	assert.Equal(t, model.FetchNewData, s.Run(context.Background(), model.StateBackground))
	current = current.Add(30 * time.Second)
	assert.Equal(t, model.FetchNoData, s.Run(context.Background(), model.StateBackground))
	current = current.Add(31 * time.Second)
	assert.Equal(t, model.FetchNewData, s.Run(context.Background(), model.StateBackground))

	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, n.texts, 2)
}

type failingGate struct{}

func (failingGate) Allow(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis unavailable")
}

func TestGateErrorRunsAnyway(t *testing.T) {
	s := New(NoopSynchronizer{}, nil, discardLogger(), Config{MinInterval: time.Minute, Gate: failingGate{}})
	assert.Equal(t, model.FetchNewData, s.Run(context.Background(), model.StateBackground))
}

type fakeSetNX struct {
	set map[string]bool
	ttl time.Duration
}

func (f *fakeSetNX) SetNX(_ context.Context, key string, _ interface{}, expiration time.Duration) *redis.BoolCmd {
	f.ttl = expiration
	if f.set[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.set[key] = true
	return redis.NewBoolResult(true, nil)
}

func TestRedisGate(t *testing.T) {
	f := &fakeSetNX{set: map[string]bool{}}
	g := &RedisGate{rdb: f}

	ok, err := g.Allow(context.Background(), "k", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, f.ttl)

	ok, err = g.Allow(context.Background(), "k", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPSynchronizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/new":
			_, _ = io.WriteString(w, `{"has_new_data":true}`)
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	out, err := NewHTTPSynchronizer(srv.URL+"/new", "secret").Synchronize(context.Background())
	require.NoError(t, err)
	assert.True(t, out.HasNewData)

	out, err = NewHTTPSynchronizer(srv.URL+"/empty", "secret").Synchronize(context.Background())
	require.NoError(t, err)
	assert.False(t, out.HasNewData)

	_, err = NewHTTPSynchronizer(srv.URL+"/down", "secret").Synchronize(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "502"))
}

func TestLoopStopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	s := New(syncFunc(func(context.Context) (model.SyncOutcome, error) {
		calls.Add(1)
		return model.SyncOutcome{}, nil
	}), nil, discardLogger(), Config{})
	l := NewLoop(s, discardLogger(), 5*time.Millisecond, model.StateBackground)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopDisabled(t *testing.T) {
	l := NewLoop(New(nil, nil, discardLogger(), Config{}), discardLogger(), 0, model.StateBackground)
	l.Run(context.Background())
}
