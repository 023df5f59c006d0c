// Package postgres records delivery outcomes for the pairing dashboard.
// The table is append-only; correlation never reads it back.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pixelbridge/conversion-bridge/internal/domain"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Migrate creates the deliveries table if it is missing. The service owns
// its schema; there is no separate migration tool for a single table.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS deliveries (
			id          BIGSERIAL PRIMARY KEY,
			pixel_id    TEXT NOT NULL,
			source      TEXT NOT NULL,
			event_name  TEXT NOT NULL,
			event_id    TEXT NOT NULL DEFAULT '',
			degraded    BOOLEAN NOT NULL DEFAULT FALSE,
			accepted    BOOLEAN NOT NULL DEFAULT FALSE,
			events_received INT NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_deliveries_created_at ON deliveries (created_at);
		CREATE INDEX IF NOT EXISTS idx_deliveries_event_id ON deliveries (event_id) WHERE event_id <> '';
	`)
	return err
}

func (r *Repository) Insert(ctx context.Context, d domain.Delivery) error {
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO deliveries (pixel_id, source, event_name, event_id, degraded, accepted, events_received, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, d.PixelID, string(d.Source), d.EventName, d.EventID, d.Degraded, d.Accepted, d.EventsReceived, createdAt)
	return err
}

// Stats aggregates deliveries since the cutoff. Paired counts event ids
// reported by both sources inside the window.
func (r *Repository) Stats(ctx context.Context, since time.Time) (domain.PairingStats, error) {
	var stats domain.PairingStats

	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE source = 'webhook'),
			COUNT(*) FILTER (WHERE source = 'browser'),
			COUNT(*) FILTER (WHERE accepted),
			COUNT(*) FILTER (WHERE degraded)
		FROM deliveries
		WHERE created_at >= $1
	`, since).Scan(&stats.Total, &stats.Webhook, &stats.Browser, &stats.Accepted, &stats.Degraded)
	if err != nil {
		return domain.PairingStats{}, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT event_id
			FROM deliveries
			WHERE created_at >= $1 AND event_id <> ''
			GROUP BY event_id
			HAVING COUNT(DISTINCT source) > 1
		) paired
	`, since).Scan(&stats.Paired)
	if err != nil {
		return domain.PairingStats{}, err
	}
	return stats, nil
}
