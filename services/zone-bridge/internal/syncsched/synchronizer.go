package syncsched

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
	"github.com/segmentio/encoding/json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NoopSynchronizer always succeeds without new data.
type NoopSynchronizer struct{}

func (NoopSynchronizer) Synchronize(context.Context) (model.SyncOutcome, error) {
	return model.SyncOutcome{}, nil
}

// HTTPSynchronizer asks a data source to synchronize. The response body is
// {"has_new_data": bool}; an empty body means no new data.
type HTTPSynchronizer struct {
	url    string
	token  string
	client *http.Client
}

func NewHTTPSynchronizer(url, token string) *HTTPSynchronizer {
	return &HTTPSynchronizer{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type syncResponse struct {
	HasNewData bool `json:"has_new_data"`
}

func (s *HTTPSynchronizer) Synchronize(ctx context.Context) (model.SyncOutcome, error) {
	if strings.TrimSpace(s.url) == "" {
		return model.SyncOutcome{}, fmt.Errorf("sync url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader([]byte("{}")))
	if err != nil {
		return model.SyncOutcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return model.SyncOutcome{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return model.SyncOutcome{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.SyncOutcome{}, fmt.Errorf("sync endpoint returned %d", resp.StatusCode)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return model.SyncOutcome{}, nil
	}
	var out syncResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return model.SyncOutcome{}, fmt.Errorf("decode sync response: %w", err)
	}
	return model.SyncOutcome{HasNewData: out.HasNewData}, nil
}
