package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/zonebridge/libs/db"
	otelx "github.com/md-rashed-zaman/zonebridge/libs/otel"
	"github.com/md-rashed-zaman/zonebridge/services/zone-bridge/internal/model"
)

// Schema is applied with db.Migrate on startup when DATABASE_URL is set.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS zone_deliveries (
		id          BIGSERIAL PRIMARY KEY,
		event_id    TEXT NOT NULL,
		topic       TEXT NOT NULL,
		message_id  INTEGER NOT NULL,
		success     BOOLEAN NOT NULL,
		error_kind  TEXT NOT NULL DEFAULT '',
		error       TEXT NOT NULL DEFAULT '',
		traceparent TEXT NOT NULL DEFAULT '',
		tracestate  TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS zone_deliveries_event_id_idx ON zone_deliveries (event_id)`,
	`CREATE TABLE IF NOT EXISTS zone_notifications (
		id         BIGSERIAL PRIMARY KEY,
		status     TEXT NOT NULL,
		text       TEXT NOT NULL,
		error      TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

type Notification struct {
	Status    string
	Text      string
	Error     string
	CreatedAt time.Time
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Migrate(ctx context.Context) error {
	return r.pool.Migrate(ctx, Schema...)
}

func (r *Repository) RecordDelivery(ctx context.Context, res model.DeliveryResult) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO zone_deliveries (event_id, topic, message_id, success, error_kind, error, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, res.EventID, res.Topic, int32(res.MessageID), res.Success, res.ErrorKind, errText, traceparent, tracestate)
	return err
}

func (r *Repository) RecordNotification(ctx context.Context, n Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO zone_notifications (status, text, error, created_at)
		VALUES ($1, $2, $3, $4)
	`, n.Status, n.Text, n.Error, n.CreatedAt)
	return err
}

// RecentDeliveries returns the newest delivery rows for an event, newest first.
func (r *Repository) RecentDeliveries(ctx context.Context, eventID string, limit int) ([]model.DeliveryResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT event_id, topic, message_id, success, error_kind
		FROM zone_deliveries
		WHERE event_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, eventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DeliveryResult
	for rows.Next() {
		var res model.DeliveryResult
		var mid int32
		if err := rows.Scan(&res.EventID, &res.Topic, &mid, &res.Success, &res.ErrorKind); err != nil {
			return nil, err
		}
		res.MessageID = uint16(mid)
		out = append(out, res)
	}
	return out, rows.Err()
}
