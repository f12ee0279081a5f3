// Package httpapi mounts the bridge's HTTP surface on a chi router.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/zonebridge/libs/auth"
	"github.com/md-rashed-zaman/zonebridge/libs/httpx"
	"github.com/md-rashed-zaman/zonebridge/libs/runtime"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// FetchRunner is satisfied by *syncsched.Scheduler.
type FetchRunner interface {
	Run(ctx context.Context, state model.ProcessState) model.FetchStatus
}

type Deps struct {
	Logger *slog.Logger
	// Ingest serves POST /v1/events; nil leaves the route unmounted.
	Ingest    http.Handler
	Scheduler FetchRunner
	Checks    []runtime.ReadyCheck
	// DeviceSecret enables HS256 device tokens on the ingest route.
	DeviceSecret string
	// Limiter applies to the ingest route only, keyed by device.
	Limiter       httpx.Limiter
	LimitFailOpen bool
	BodyLimit     int64
}

func NewRouter(d Deps) http.Handler {
	if d.BodyLimit <= 0 {
		d.BodyLimit = 1 << 20
	}
	r := chi.NewRouter()
	r.Use(
		httpx.WithRequestID,
		httpx.WithRecover(d.Logger),
		httpx.WithAccessLog(d.Logger, "/healthz", "/readyz", "/metrics"),
		httpx.WithBodyLimit(d.BodyLimit),
	)

	r.Get("/healthz", runtime.HealthHandler)
	r.Get("/readyz", runtime.ReadyHandler(2*time.Second, d.Checks...))
	r.Handle("/metrics", promhttp.Handler())

	if d.Ingest != nil {
		ingest := d.Ingest
		if d.Limiter != nil {
			ingest = httpx.RateLimit(d.Limiter, deviceKey, d.Logger, d.LimitFailOpen)(ingest)
		}
		if d.DeviceSecret != "" {
			ingest = auth.RequireDevice(d.DeviceSecret)(ingest)
		}
		r.Method(http.MethodPost, "/v1/events", ingest)
	}
	if d.Scheduler != nil {
		r.Post("/v1/background-fetch", backgroundFetch(d.Scheduler, d.Logger))
	}

	return otelhttp.NewHandler(r, "zone-bridge")
}

var headerDeviceKey = httpx.HeaderKey("X-Device-Id")

// deviceKey prefers the authenticated device over the self-reported header.
func deviceKey(r *http.Request) string {
	if device := auth.DeviceFromContext(r.Context()); device != "" {
		return device
	}
	return headerDeviceKey(r)
}

type fetchResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
}

// backgroundFetch runs the scheduler for ?state= (default background) and waits for the
// completion status.
func backgroundFetch(s FetchRunner, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("state")
		if raw == "" {
			raw = model.StateBackground.String()
		}
		state, err := model.ParseProcessState(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		status := s.Run(r.Context(), state)
		logger.Info("background fetch", "state", state.String(), "status", status.String())
		writeJSON(w, http.StatusOK, fetchResponse{Status: status.String(), State: state.String()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
