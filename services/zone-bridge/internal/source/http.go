package source

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/segmentio/encoding/json"
)

const maxIngestBody = 16 << 10

// IngestHandler serves POST /v1/events.
type IngestHandler struct {
	listener Listener
	logger   *slog.Logger
	now      func() time.Time
}

func NewIngestHandler(listener Listener, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{listener: listener, logger: logger, now: time.Now}
}

type ingestResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "read body failed"})
		return
	}
	if len(body) > maxIngestBody {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "body too large"})
		return
	}

	evt, err := Decode(body, h.now())
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, ErrInvalidEvent) {
			status = http.StatusInternalServerError
		}
		h.logger.Warn("ingest rejected", "err", err, "status", status)
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	evt = withID(evt)

	h.listener.OnEvent(r.Context(), evt)
	writeJSON(w, http.StatusAccepted, ingestResponse{ID: evt.ID, Status: "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
